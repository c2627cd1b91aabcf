// Package offline implements the offline mutation queue.
//
// Writes the client cannot send right now are recorded as mutations,
// persisted under a single store key and replayed against registered
// handlers once the network is available.
//
// LIFECYCLE:
//
//	Uninitialized --Initialize--> Initializing --> Ready --Destroy--> Uninitialized
//
// Enqueue and Dequeue require Ready so the persisted list is never
// overwritten before it has been loaded.
//
// PROCESSING:
//
// A pass is triggered by Enqueue while online, by an offline to online
// transition, by Initialize when the initial state is online, or explicitly
// by ProcessNow. A trigger claims the pass and snapshots the queue under
// the queue lock before any goroutine starts; the pass then works through
// that snapshot one mutation at a time in FIFO order. Mutations enqueued
// after the claim wait for the next trigger. Only one pass is claimed at a
// time; a trigger that finds a pass scheduled or running is a no-op.
//
// A failed handler call increments the mutation's retry count in place.
// Once the count reaches Config.MaxRetries the mutation is dropped and
// reported. Otherwise the pass waits RetryDelay*retries before moving on.
//
// STORAGE:
//
// Every mutating operation persists the whole list. Storage errors are
// logged by the Store and never returned to callers, so memory and disk may
// briefly disagree until the next successful write.
package offline
