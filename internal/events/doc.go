// Package events emits ordered status lines for request lifecycle
// observability.
//
// The reporter is an injectable sink: the retrieval engine writes one line
// per observed state transition and throttled byte counters during
// downloads. Output defaults to stderr so stdout stays clean for piping.
package events
