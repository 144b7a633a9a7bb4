// Package hook implements named extension points.
//
// A Registry maps an event name to the ordered list of handlers registered
// against it. It is populated once during start-up and frozen before the
// first dispatch; after that it is read-only and safe for concurrent use.
//
// A Dispatcher runs an event's handlers synchronously in registration order,
// threading one mutable *Args through all of them. A handler returning Stop
// ends the dispatch early. The dispatcher cannot tell "nobody cared" from
// "everybody continued"; callers that need a definitive answer use
// Args.Claim and DispatchClaim.
package hook
