// Package api provides the authenticated HTTP transport shared by both API
// dialects.
//
// This package handles:
//   - JSON request/response round trips with a per-call timeout
//   - Retry of transient failures with jittered exponential backoff
//     (idempotent methods only; submissions are never silently retried)
//   - Request rate limiting
//   - Classification of error responses into the shared taxonomy
//   - Streaming artifact downloads with Range resume support
//
// # Usage
//
//	client := api.NewClient(mode, true, api.DefaultOptions())
//
//	var reply taskReply
//	err := client.DoJSON(ctx, http.MethodGet, url, nil, &reply)
//
//	dl, err := client.Get(ctx, file.Location, 0)
//	defer dl.Body.Close()
package api
