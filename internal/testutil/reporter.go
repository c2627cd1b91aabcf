package testutil

import (
	"sync"

	"github.com/roach88/offlineq/internal/report"
)

// Exception is one captured exception.
type Exception struct {
	Err    error
	Fields map[string]any
}

// RecordingReporter keeps everything it is given.
//
// Thread-safety: all methods are safe for concurrent use.
type RecordingReporter struct {
	mu          sync.Mutex
	exceptions  []Exception
	breadcrumbs []report.Breadcrumb
}

var _ report.Reporter = (*RecordingReporter)(nil)

// NewRecordingReporter creates an empty recorder.
func NewRecordingReporter() *RecordingReporter {
	return &RecordingReporter{}
}

func (r *RecordingReporter) CaptureException(err error, fields map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.exceptions = append(r.exceptions, Exception{Err: err, Fields: fields})
}

func (r *RecordingReporter) AddBreadcrumb(b report.Breadcrumb) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.breadcrumbs = append(r.breadcrumbs, b)
}

// Exceptions returns a copy of the captured exceptions.
func (r *RecordingReporter) Exceptions() []Exception {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Exception, len(r.exceptions))
	copy(out, r.exceptions)
	return out
}

// Breadcrumbs returns a copy of the recorded breadcrumbs.
func (r *RecordingReporter) Breadcrumbs() []report.Breadcrumb {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]report.Breadcrumb, len(r.breadcrumbs))
	copy(out, r.breadcrumbs)
	return out
}

// BreadcrumbMessages returns the messages of breadcrumbs in category.
func (r *RecordingReporter) BreadcrumbMessages(category string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, b := range r.breadcrumbs {
		if b.Category == category {
			out = append(out, b.Message)
		}
	}
	return out
}
