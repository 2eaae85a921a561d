// Package retrieve implements the request lifecycle engine: submit, poll,
// resolve, download.
//
// The service exposes two incompatible API dialects selected by the
// credential shape. A UID:APIKEY pair drives the legacy /resources + /tasks
// endpoints; a personal access token drives the modern /api/retrieve/v1
// endpoints. Both are modeled as a workflow with submit/poll/resolve
// capabilities behind one engine, so no dialect-specific type reaches
// callers.
//
// # Lifecycle
//
//	client, _ := retrieve.New(creds, retrieve.Options{})
//	file, err := client.Retrieve(ctx, "reanalysis-era5-pressure-levels",
//	    retrieve.Request{"variable": []string{"geopotential"}},
//	    "download.grib")
//
// Polling uses bounded exponential backoff and emits one event per observed
// state transition. Terminal states are sticky: once a job is done or
// failed, no further polls happen and the outcome is final.
package retrieve
