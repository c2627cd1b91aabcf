// Package mutation defines the record stored by the offline mutation queue.
//
// A Mutation is an application write (update a profile, create an order)
// deferred until the device is back online. The queue never interprets the
// payload; handlers registered per type do.
//
// # Wire Format
//
// The persisted value is a JSON array of records:
//
//	[{"id":"...","type":"update_profile","payload":{...},"timestamp":1700000000000,"retries":0,"userId":"..."}]
//
// timestamp is epoch milliseconds and userId is omitted when empty. Existing
// data written by the mobile client uses exactly these names, so they must not
// change.
package mutation
