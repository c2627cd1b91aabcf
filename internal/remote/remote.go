// Package remote turns mutation types into HTTP calls against the
// marketplace backend, for binaries that replay the queue outside the app.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/roach88/offlineq/internal/mutation"
	"github.com/roach88/offlineq/internal/offline"
)

// DefaultTimeout bounds a request when the Dispatcher has no Client.
const DefaultTimeout = 15 * time.Second

// Endpoint is where one mutation type is sent.
type Endpoint struct {
	Method string
	Path   string
}

// StatusError is returned for a non-2xx response.
type StatusError struct {
	MutationType string
	StatusCode   int
	Body         string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: backend returned %d", e.MutationType, e.StatusCode)
	}
	return fmt.Sprintf("%s: backend returned %d: %s", e.MutationType, e.StatusCode, e.Body)
}

// Dispatcher sends mutation payloads as JSON request bodies.
type Dispatcher struct {
	BaseURL   string
	Endpoints map[string]Endpoint
	Headers   map[string]string
	Client    *http.Client
	Logger    *slog.Logger
}

// DefaultEndpoints maps the application's mutation types to REST routes.
func DefaultEndpoints() map[string]Endpoint {
	return map[string]Endpoint{
		mutation.TypeCreateOrder:       {Method: http.MethodPost, Path: "/orders"},
		mutation.TypeCancelOrder:       {Method: http.MethodPost, Path: "/orders/cancel"},
		mutation.TypeUpdateOrderStatus: {Method: http.MethodPatch, Path: "/orders/status"},
		mutation.TypeUpdateProfile:     {Method: http.MethodPatch, Path: "/profile"},
		mutation.TypeCreateListing:     {Method: http.MethodPost, Path: "/listings"},
		mutation.TypeUpdateListing:     {Method: http.MethodPatch, Path: "/listings"},
		mutation.TypeDeleteListing:     {Method: http.MethodDelete, Path: "/listings"},
	}
}

// Handler returns the queue handler for typ, or an error if typ has no
// endpoint.
func (d *Dispatcher) Handler(typ string) (offline.Handler, error) {
	typ = mutation.NormalizeType(typ)
	ep, ok := d.Endpoints[typ]
	if !ok {
		return nil, fmt.Errorf("no endpoint for mutation type %q", typ)
	}
	target, err := d.resolve(ep.Path)
	if err != nil {
		return nil, fmt.Errorf("endpoint for %q: %w", typ, err)
	}
	method := strings.ToUpper(ep.Method)
	if method == "" {
		method = http.MethodPost
	}

	return func(ctx context.Context, payload json.RawMessage) error {
		return d.send(ctx, typ, method, target, payload)
	}, nil
}

// Register registers a handler on q for every configured endpoint and
// returns the registered types in sorted order.
func (d *Dispatcher) Register(q *offline.Queue) ([]string, error) {
	types := make([]string, 0, len(d.Endpoints))
	for typ := range d.Endpoints {
		types = append(types, typ)
	}
	sort.Strings(types)

	for _, typ := range types {
		h, err := d.Handler(typ)
		if err != nil {
			return nil, err
		}
		q.RegisterHandler(typ, h)
	}
	return types, nil
}

func (d *Dispatcher) resolve(path string) (string, error) {
	base, err := url.Parse(d.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return "", fmt.Errorf("base url %q must be absolute", d.BaseURL)
	}
	return base.JoinPath(path).String(), nil
}

func (d *Dispatcher) send(ctx context.Context, typ, method, target string, payload json.RawMessage) error {
	if len(payload) == 0 {
		payload = json.RawMessage("null")
	}
	req, err := http.NewRequestWithContext(ctx, method, target, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build %s request: %w", typ, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range d.Headers {
		req.Header.Set(k, v)
	}

	resp, err := d.client().Do(req)
	if err != nil {
		return fmt.Errorf("send %s: %w", typ, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{
			MutationType: typ,
			StatusCode:   resp.StatusCode,
			Body:         strings.TrimSpace(string(body)),
		}
	}

	d.logger().Debug("mutation sent", "type", typ, "method", method, "url", target, "status", resp.StatusCode)
	return nil
}

func (d *Dispatcher) client() *http.Client {
	if d.Client != nil {
		return d.Client
	}
	return &http.Client{Timeout: DefaultTimeout}
}

func (d *Dispatcher) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}
