package offline

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/offlineq/internal/mutation"
	"github.com/roach88/offlineq/internal/report"
)

// trigger starts a pass in the background. The pass is claimed under the
// lock before the goroutine starts, so triggers that arrive while a pass is
// scheduled or running are no-ops. It is also a no-op unless the queue is
// Ready, online and not empty.
func (q *Queue) trigger() {
	q.mu.Lock()
	snapshot, ok := q.claimLocked()
	ctx := q.lifeCtx
	q.mu.Unlock()
	if !ok {
		return
	}

	go q.run(ctx, snapshot)
}

// ProcessNow runs one pass in the calling goroutine and reports whether it
// ran. It does not run when the queue is not Ready, offline, empty, or
// already processing. The pass stops early when ctx is cancelled or the
// queue is destroyed.
func (q *Queue) ProcessNow(ctx context.Context) bool {
	q.mu.Lock()
	snapshot, ok := q.claimLocked()
	lifeCtx := q.lifeCtx
	q.mu.Unlock()
	if !ok {
		return false
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(lifeCtx, cancel)
	defer stop()

	q.run(ctx, snapshot)
	return true
}

// Wait blocks until no pass is running. A pass that starts after Wait
// returns is not waited for.
func (q *Queue) Wait() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.processing {
		q.idle.Wait()
	}
}

// claimLocked marks a pass as running and returns its work list: the queue
// as it is now. Mutations enqueued later wait for the next pass.
func (q *Queue) claimLocked() ([]mutation.Mutation, bool) {
	if q.state != Ready || q.processing || !q.online || len(q.queue) == 0 {
		return nil, false
	}
	q.processing = true
	snapshot := make([]mutation.Mutation, len(q.queue))
	copy(snapshot, q.queue)
	return snapshot, true
}

// run works through a claimed snapshot and releases the claim.
func (q *Queue) run(ctx context.Context, snapshot []mutation.Mutation) {
	defer func() {
		q.mu.Lock()
		q.processing = false
		q.idle.Broadcast()
		q.mu.Unlock()
	}()

	q.reporter.AddBreadcrumb(report.Breadcrumb{
		Category: CategoryQueue,
		Message:  "Processing queue",
		Data:     map[string]any{"count": len(snapshot)},
		Level:    report.LevelInfo,
	})
	q.logger.Debug("processing queue", "count", len(snapshot))

	for _, m := range snapshot {
		if ctx.Err() != nil {
			q.logger.Debug("processing pass cancelled", "error", ctx.Err())
			return
		}
		if !q.step(ctx, m.ID) {
			return
		}
	}
}

// step handles one mutation. It returns false when the pass must stop.
func (q *Queue) step(ctx context.Context, id string) bool {
	q.mu.Lock()
	m, ok := q.findLocked(id)
	h := q.handlers[m.Type]
	q.mu.Unlock()
	if !ok {
		// Dequeued by someone else since the snapshot.
		return true
	}

	if h == nil {
		q.missingHandler(ctx, m)
		return true
	}

	err := q.invoke(ctx, h, m)
	if err == nil {
		q.remove(ctx, m.ID)
		return true
	}
	if ctx.Err() != nil {
		// Stopped mid-call; the attempt does not count.
		return false
	}

	q.mu.Lock()
	retries, ok := q.incrementLocked(m.ID)
	q.mu.Unlock()
	if !ok {
		return true
	}

	q.logger.Warn("mutation failed",
		"id", m.ID, "type", m.Type, "retries", retries, "max_retries", q.cfg.MaxRetries, "error", err)

	if retries >= q.cfg.MaxRetries {
		q.reporter.CaptureException(&MutationError{
			Code:         CodePermanentFailure,
			MutationID:   m.ID,
			MutationType: m.Type,
			Retries:      retries,
			Err:          err,
		}, map[string]any{
			"mutationType": m.Type,
			"mutationId":   m.ID,
			"retries":      retries,
		})
		q.remove(ctx, m.ID)
		q.reporter.AddBreadcrumb(report.Breadcrumb{
			Category: CategoryQueue,
			Message:  "Mutation failed permanently",
			Data:     map[string]any{"type": m.Type, "id": m.ID},
			Level:    report.LevelError,
		})
		return true
	}

	q.persist(ctx)
	return q.sleep(ctx, q.cfg.RetryDelay*time.Duration(retries))
}

func (q *Queue) missingHandler(ctx context.Context, m mutation.Mutation) {
	if q.cfg.MissingHandler == KeepMissing {
		q.logger.Warn("no handler for mutation type, leaving queued", "id", m.ID, "type", m.Type)
		return
	}

	dropped := &MutationError{
		Code:         CodeMissingHandler,
		MutationID:   m.ID,
		MutationType: m.Type,
		Retries:      m.Retries,
	}
	q.logger.Warn("no handler for mutation type, dropping", "id", m.ID, "type", m.Type, "error", dropped)
	q.remove(ctx, m.ID)
	q.reporter.CaptureException(dropped, map[string]any{
		"mutationType": m.Type,
		"mutationId":   m.ID,
		"retries":      m.Retries,
	})
	q.reporter.AddBreadcrumb(report.Breadcrumb{
		Category: CategoryQueue,
		Message:  "Mutation dropped: no handler",
		Data:     map[string]any{"type": m.Type, "id": m.ID},
		Level:    report.LevelWarning,
	})
}

// invoke calls h, turning a panic into an error.
func (q *Queue) invoke(ctx context.Context, h Handler, m mutation.Mutation) (err error) {
	if q.cfg.HandlerTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, q.cfg.HandlerTimeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			err = &MutationError{
				Code:         CodeHandlerPanic,
				MutationID:   m.ID,
				MutationType: m.Type,
				Retries:      m.Retries,
				Err:          fmt.Errorf("handler panicked: %v", r),
			}
		}
	}()
	return h(ctx, m.Payload)
}

func (q *Queue) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	select {
	case <-q.clock.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}

func (q *Queue) remove(ctx context.Context, id string) {
	q.mu.Lock()
	q.removeLocked(id)
	q.mu.Unlock()
	q.persist(ctx)
}

// findLocked returns a copy of the live record for id.
func (q *Queue) findLocked(id string) (mutation.Mutation, bool) {
	for _, m := range q.queue {
		if m.ID == id {
			return m.Clone(), true
		}
	}
	return mutation.Mutation{}, false
}

func (q *Queue) incrementLocked(id string) (int, bool) {
	for i := range q.queue {
		if q.queue[i].ID == id {
			q.queue[i].Retries++
			return q.queue[i].Retries, true
		}
	}
	return 0, false
}
