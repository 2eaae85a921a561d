package retrieve

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/hkwk/cdsapi/internal/api"
	"github.com/hkwk/cdsapi/internal/errs"
)

// modernWorkflow drives the /api/retrieve/v1 endpoint family used by
// personal-access-token credentials.
type modernWorkflow struct {
	c *api.Client

	// base is the retrieve API root, e.g. https://host/api/retrieve/v1.
	base string
}

// retrieveBase derives the retrieve API root from the configured base url.
// The wire path is always /api/retrieve/v1 regardless of whether the
// configured url already ends in /api.
func retrieveBase(base string) string {
	b := strings.TrimRight(base, "/")
	if strings.HasSuffix(b, "/api") {
		return b + "/retrieve/v1"
	}
	return b + "/api/retrieve/v1"
}

func (*modernWorkflow) label() string { return "Job status" }

func (*modernWorkflow) supportsNoWait() bool { return false }

func (w *modernWorkflow) submit(ctx context.Context, dataset string, params Request) (job, error) {
	execURL := w.base + "/processes/" + dataset + "/execute"
	body := map[string]any{"inputs": params}

	var sub modernSubmission
	if err := w.c.DoJSON(ctx, http.MethodPost, execURL, body, &sub); err != nil {
		return nil, err
	}

	monitor := findLink(sub.Links, "monitor")
	if monitor == "" && sub.JobID != "" {
		monitor = w.base + "/jobs/" + sub.JobID
	}
	if monitor == "" {
		return nil, errors.New("missing monitor link in job submission response")
	}

	raw := sub.Status
	if raw == "" {
		raw = "accepted"
	}

	return &modernJob{
		c:       w.c,
		monitor: urljoin(w.base, monitor),
		last:    modernStatus{Status: raw},
	}, nil
}

// modernJob tracks one job through the modern state machine.
type modernJob struct {
	c       *api.Client
	monitor string
	last    modernStatus
}

func (j *modernJob) status() Status {
	raw := j.last.Status
	switch raw {
	case "accepted", "running":
		return Status{State: StatePending, Raw: raw}
	case "successful":
		return Status{State: StateDone, Raw: raw}
	case "failed", "rejected", "dismissed", "deleted":
		return Status{State: StateError, Raw: raw, Err: &errs.JobError{
			Status:  raw,
			Message: j.last.Message,
			Reason:  j.last.Detail,
		}}
	default:
		return Status{
			State: StateError,
			Raw:   raw,
			Err:   fmt.Errorf("unknown job status %q", raw),
		}
	}
}

func (j *modernJob) poll(ctx context.Context) (Status, error) {
	var st modernStatus
	if err := j.c.DoJSON(ctx, http.MethodGet, j.statusURL(), nil, &st); err != nil {
		return Status{}, err
	}
	j.last = st

	return j.status(), nil
}

// statusURL asks the service to include log and request context in the
// status document.
func (j *modernJob) statusURL() string {
	u, err := url.Parse(j.monitor)
	if err != nil {
		return j.monitor
	}
	q := u.Query()
	q.Set("log", "true")
	q.Set("request", "true")
	u.RawQuery = q.Encode()
	return u.String()
}

func (j *modernJob) resolve(ctx context.Context) (*api.RemoteFile, error) {
	resultsURL := findLink(j.last.Links, "results")
	if resultsURL == "" {
		resultsURL = strings.TrimRight(j.monitor, "/") + "/results"
	} else {
		resultsURL = urljoin(j.monitor, resultsURL)
	}

	var res modernResults
	if err := j.c.DoJSON(ctx, http.MethodGet, resultsURL, nil, &res); err != nil {
		return nil, err
	}

	href := strings.TrimSpace(res.Asset.Value.Href)
	if href == "" {
		return nil, errors.New("missing results asset href")
	}

	return &api.RemoteFile{
		Location:      urljoin(resultsURL, href),
		ContentLength: res.Asset.Value.FileSize,
		ContentType:   res.Asset.Value.Type,
	}, nil
}

// modernSubmission is the job document returned by the execute endpoint.
// Both jobID and job_id spellings appear in the wild.
type modernSubmission struct {
	JobID  string `json:"-"`
	Status string `json:"status"`
	Links  []link `json:"links"`
}

func (s *modernSubmission) UnmarshalJSON(data []byte) error {
	var aux struct {
		JobIDCamel string `json:"jobID"`
		JobIDSnake string `json:"job_id"`
		Status     string `json:"status"`
		Links      []link `json:"links"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	s.JobID = firstString(aux.JobIDCamel, aux.JobIDSnake)
	s.Status = aux.Status
	s.Links = aux.Links
	return nil
}

// modernStatus is the job status document.
type modernStatus struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Detail  string `json:"detail"`
	Links   []link `json:"links"`
}

// modernResults is the results document; the artifact sits in a single
// asset value.
type modernResults struct {
	Asset struct {
		Value struct {
			Href     string `json:"href"`
			FileSize int64  `json:"file:size"`
			Type     string `json:"type"`
		} `json:"value"`
	} `json:"asset"`
}
