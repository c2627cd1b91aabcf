package mutation

import (
	"bytes"
	"encoding/json"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Mutation types used by the marketplace client. The queue accepts any
// non-empty type; these are the ones the application registers handlers for.
const (
	TypeCreateOrder       = "create_order"
	TypeCancelOrder       = "cancel_order"
	TypeUpdateProfile     = "update_profile"
	TypeCreateListing     = "create_listing"
	TypeUpdateListing     = "update_listing"
	TypeDeleteListing     = "delete_listing"
	TypeUpdateOrderStatus = "update_order_status"
)

// KnownTypes lists the application mutation types in declaration order.
var KnownTypes = []string{
	TypeCreateOrder,
	TypeCancelOrder,
	TypeUpdateProfile,
	TypeCreateListing,
	TypeUpdateListing,
	TypeDeleteListing,
	TypeUpdateOrderStatus,
}

// Mutation is one pending write.
type Mutation struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp int64           `json:"timestamp"`
	Retries   int             `json:"retries"`
	UserID    string          `json:"userId,omitempty"`
}

// Clone returns a copy that shares no memory with m.
func (m Mutation) Clone() Mutation {
	c := m
	if m.Payload != nil {
		c.Payload = bytes.Clone(m.Payload)
	}
	return c
}

// NormalizeType trims surrounding whitespace and converts the tag to Unicode
// NFC so that handler registration and enqueue agree on the same key.
func NormalizeType(t string) string {
	return norm.NFC.String(strings.TrimSpace(t))
}

// IsKnownType reports whether t (after normalization) is one of KnownTypes.
func IsKnownType(t string) bool {
	t = NormalizeType(t)
	for _, k := range KnownTypes {
		if k == t {
			return true
		}
	}
	return false
}
