package analytics

// Event names a tracked user action.
type Event string

// Authentication
const (
	EventSignUp        Event = "sign_up"
	EventLogin         Event = "login"
	EventLogout        Event = "logout"
	EventPasswordReset Event = "password_reset"
)

// Navigation
const (
	EventScreenView     Event = "screen_view"
	EventDeepLinkOpened Event = "deep_link_opened"
)

// Products
const (
	EventProductView   Event = "product_view"
	EventProductSearch Event = "product_search"
	EventProductFilter Event = "product_filter"
)

// Booking and payment
const (
	EventBookingStarted   Event = "booking_started"
	EventBookingCompleted Event = "booking_completed"
	EventBookingCancelled Event = "booking_cancelled"
	EventPaymentInitiated Event = "payment_initiated"
	EventPaymentCompleted Event = "payment_completed"
	EventPaymentFailed    Event = "payment_failed"
)

// Vendor
const (
	EventListingCreated Event = "listing_created"
	EventListingUpdated Event = "listing_updated"
	EventListingDeleted Event = "listing_deleted"
	EventOrderAccepted  Event = "order_accepted"
	EventOrderRejected  Event = "order_rejected"
)

// Engagement
const (
	EventNotificationReceived Event = "notification_received"
	EventNotificationOpened   Event = "notification_opened"
	EventShare                Event = "share"
	EventAppOpen              Event = "app_open"
	EventAppBackground        Event = "app_background"
)

// Events lists every event in declaration order.
var Events = []Event{
	EventSignUp, EventLogin, EventLogout, EventPasswordReset,
	EventScreenView, EventDeepLinkOpened,
	EventProductView, EventProductSearch, EventProductFilter,
	EventBookingStarted, EventBookingCompleted, EventBookingCancelled,
	EventPaymentInitiated, EventPaymentCompleted, EventPaymentFailed,
	EventListingCreated, EventListingUpdated, EventListingDeleted,
	EventOrderAccepted, EventOrderRejected,
	EventNotificationReceived, EventNotificationOpened, EventShare,
	EventAppOpen, EventAppBackground,
}

// ParseEvent returns the Event named s, or false if s is not one of Events.
func ParseEvent(s string) (Event, bool) {
	for _, e := range Events {
		if string(e) == s {
			return e, true
		}
	}
	return "", false
}

// Properties are free-form event attributes. Values should be strings,
// numbers, booleans or nil.
type Properties map[string]any

// UserProperties are attached to an identified user for segmentation.
type UserProperties struct {
	UserID      string `json:"userId,omitempty"`
	Email       string `json:"email,omitempty"`
	Role        string `json:"role,omitempty"`
	SignUpDate  string `json:"signUpDate,omitempty"`
	TotalOrders int    `json:"totalOrders,omitempty"`
	IsVendor    bool   `json:"isVendor,omitempty"`
}
