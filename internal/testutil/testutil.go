// Package testutil provides mock dialect servers shared by package tests.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
)

// LicenceBody is a 403 response body indicating unaccepted dataset licences.
const LicenceBody = `{
	"type": "permissions error",
	"title": "required licences not accepted",
	"status": 403,
	"detail": "Not all the required licences have been accepted; please visit https://example.org/datasets/test-dataset?tab=download#manage-licences to accept them",
	"trace_id": "trace-1234"
}`

// LegacyOptions scripts a mock legacy (/resources + /tasks) server.
type LegacyOptions struct {
	// States is the task state progression. The submit reply carries
	// States[0]; each poll advances one step and holds at the last entry.
	States []string

	// Artifact is the file content served on completion.
	Artifact []byte

	// SubmitStatus, when non-zero, fails the submission with this HTTP
	// status and SubmitBody.
	SubmitStatus int
	SubmitBody   string

	// PollFailures answers this many initial polls with 503.
	PollFailures int

	// FailMessage and FailReason populate the error object of a "failed"
	// terminal state.
	FailMessage string
	FailReason  string

	// OnlyV2 mounts the resources endpoint under /api/v2 only, so plain
	// /resources submissions get a 404.
	OnlyV2 bool
}

// LegacyServer is a scripted mock of the legacy dialect.
type LegacyServer struct {
	*httptest.Server
	opts LegacyOptions

	mu          sync.Mutex
	taskID      string
	step        int
	pollsFailed int

	SubmitCount int
	PollCount   int
	LastAuth    string
}

// NewLegacyServer starts a scripted legacy server. It is closed with the
// test.
func NewLegacyServer(t *testing.T, opts LegacyOptions) *LegacyServer {
	t.Helper()

	s := &LegacyServer{opts: opts, taskID: uuid.NewString()}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.Close)
	return s
}

func (s *LegacyServer) handle(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.LastAuth = r.Header.Get("Authorization")

	switch {
	case r.Method == http.MethodPost && strings.Contains(r.URL.Path, "/resources/"):
		if s.opts.OnlyV2 && !strings.HasPrefix(r.URL.Path, "/api/v2/") {
			http.NotFound(w, r)
			return
		}
		s.SubmitCount++
		if s.opts.SubmitStatus != 0 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(s.opts.SubmitStatus)
			fmt.Fprint(w, s.opts.SubmitBody)
			return
		}
		s.writeReply(w)

	case r.Method == http.MethodGet && strings.Contains(r.URL.Path, "/tasks/"):
		s.PollCount++
		if s.pollsFailed < s.opts.PollFailures {
			s.pollsFailed++
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		if s.step < len(s.opts.States)-1 {
			s.step++
		}
		s.writeReply(w)

	case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/download/data.bin"):
		ServeArtifact(w, r, s.opts.Artifact)

	default:
		http.NotFound(w, r)
	}
}

func (s *LegacyServer) writeReply(w http.ResponseWriter) {
	state := s.opts.States[s.step]
	reply := map[string]any{
		"state":      state,
		"request_id": s.taskID,
	}
	switch state {
	case "completed":
		reply["result"] = map[string]any{
			"location":      "/download/data.bin",
			"contentLength": len(s.opts.Artifact),
			"contentType":   "application/x-grib",
		}
	case "failed":
		reply["error"] = map[string]any{
			"message": s.opts.FailMessage,
			"reason":  s.opts.FailReason,
		}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(reply)
}

// ModernOptions scripts a mock modern (/api/retrieve/v1) server.
type ModernOptions struct {
	// States is the job status progression. The submission reply carries
	// States[0]; each poll advances one step and holds at the last entry.
	States []string

	// Artifact is the asset content served on success.
	Artifact []byte

	// SubmitStatus, when non-zero, fails the submission with this HTTP
	// status and SubmitBody.
	SubmitStatus int
	SubmitBody   string

	// PollFailures answers this many initial polls with 503.
	PollFailures int

	// FailMessage populates the status document of a failed job.
	FailMessage string
}

// ModernServer is a scripted mock of the modern dialect.
type ModernServer struct {
	*httptest.Server
	opts ModernOptions

	mu          sync.Mutex
	jobID       string
	step        int
	pollsFailed int

	SubmitCount int
	PollCount   int
	LastToken   string
	LastInputs  json.RawMessage
}

// NewModernServer starts a scripted modern server. It is closed with the
// test.
func NewModernServer(t *testing.T, opts ModernOptions) *ModernServer {
	t.Helper()

	s := &ModernServer{opts: opts, jobID: uuid.NewString()}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.Close)
	return s
}

func (s *ModernServer) handle(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.LastToken = r.Header.Get("PRIVATE-TOKEN")

	jobsPath := "/api/retrieve/v1/jobs/" + s.jobID

	switch {
	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/execute"):
		s.SubmitCount++
		if s.opts.SubmitStatus != 0 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(s.opts.SubmitStatus)
			fmt.Fprint(w, s.opts.SubmitBody)
			return
		}
		var body struct {
			Inputs json.RawMessage `json:"inputs"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		s.LastInputs = body.Inputs

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"jobID":  s.jobID,
			"status": s.opts.States[0],
			"links": []map[string]string{
				{"rel": "monitor", "href": s.URL + jobsPath},
			},
		})

	case r.Method == http.MethodGet && r.URL.Path == jobsPath:
		s.PollCount++
		if s.pollsFailed < s.opts.PollFailures {
			s.pollsFailed++
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		if s.step < len(s.opts.States)-1 {
			s.step++
		}
		state := s.opts.States[s.step]
		doc := map[string]any{"status": state}
		if state == "successful" {
			doc["links"] = []map[string]string{
				{"rel": "results", "href": s.URL + jobsPath + "/results"},
			}
		}
		if s.opts.FailMessage != "" {
			doc["message"] = s.opts.FailMessage
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(doc)

	case r.Method == http.MethodGet && r.URL.Path == jobsPath+"/results":
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"asset": map[string]any{
				"value": map[string]any{
					"href":      s.URL + "/download/data.bin",
					"file:size": len(s.opts.Artifact),
					"type":      "application/x-grib",
				},
			},
		})

	case r.Method == http.MethodGet && r.URL.Path == "/download/data.bin":
		ServeArtifact(w, r, s.opts.Artifact)

	default:
		http.NotFound(w, r)
	}
}

// ServeArtifact serves data with Range request support, mirroring how the
// service's storage backend answers resume requests.
func ServeArtifact(w http.ResponseWriter, r *http.Request, data []byte) {
	size := int64(len(data))
	var start int64

	if rng := r.Header.Get("Range"); strings.HasPrefix(rng, "bytes=") {
		spec := strings.TrimSuffix(strings.TrimPrefix(rng, "bytes="), "-")
		if v, err := strconv.ParseInt(spec, 10, 64); err == nil && v < size {
			start = v
		}
		w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, size-1, size))
		w.Header().Set("Content-Length", strconv.FormatInt(size-start, 10))
		w.WriteHeader(http.StatusPartialContent)
		w.Write(data[start:])
		return
	}

	w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	w.Write(data)
}
