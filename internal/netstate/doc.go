// Package netstate tracks device connectivity for the offline queues.
//
// A Source is the external collaborator that knows whether the device is
// online: it answers an immediate Fetch and calls subscribers on every
// change. Every signaled change is authoritative; nothing is debounced.
//
// Monitor wraps a Source, caches the latest State and fans changes out to its
// own subscribers. Manual is a settable Source; Probe derives connectivity
// from periodic TCP dials.
//
// Unsubscribe functions returned by Subscribe are idempotent and must be
// called on teardown.
package netstate
