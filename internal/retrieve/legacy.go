package retrieve

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/hkwk/cdsapi/internal/api"
	"github.com/hkwk/cdsapi/internal/errs"
)

// legacyWorkflow drives the /resources + /tasks endpoint family used by
// UID:APIKEY credentials.
type legacyWorkflow struct {
	c    *api.Client
	base string
}

func (*legacyWorkflow) label() string { return "Request state" }

func (*legacyWorkflow) supportsNoWait() bool { return true }

func (w *legacyWorkflow) submit(ctx context.Context, dataset string, params Request) (job, error) {
	url := w.base + "/resources/" + dataset

	var reply legacyReply
	err := w.c.DoJSON(ctx, http.MethodPost, url, params, &reply)
	if err == nil {
		return &legacyJob{c: w.c, base: w.base, reply: reply}, nil
	}

	// The legacy API has been mounted under both /api and /api/v2. Some
	// deployments only answer on /api/v2, so a 404 gets one shot at the
	// variant base before surfacing.
	var ep *errs.EndpointError
	if errors.As(err, &ep) {
		if alt, ok := apiV2Variant(w.base); ok {
			var altReply legacyReply
			if altErr := w.c.DoJSON(ctx, http.MethodPost, alt+"/resources/"+dataset, params, &altReply); altErr == nil {
				return &legacyJob{c: w.c, base: alt, reply: altReply}, nil
			}
		}
	}

	return nil, err
}

// apiV2Variant derives the /api/v2 base from a configured base url.
func apiV2Variant(base string) (string, bool) {
	b := strings.TrimRight(base, "/")
	if strings.Contains(b, "/api/v2") {
		return "", false
	}
	if strings.HasSuffix(b, "/api") {
		return b + "/v2", true
	}
	if !strings.Contains(b, "/api/") {
		return b + "/api/v2", true
	}
	return "", false
}

// legacyJob tracks one task through the legacy state machine. The last reply
// is retained because a completed task's download location arrives in the
// reply body itself.
type legacyJob struct {
	c     *api.Client
	base  string
	reply legacyReply
}

func (j *legacyJob) status() Status {
	switch j.reply.State {
	case "queued", "running":
		return Status{State: StatePending, Raw: j.reply.State}
	case "completed":
		return Status{State: StateDone, Raw: j.reply.State}
	case "failed":
		jobErr := &errs.JobError{Status: "failed", Message: "request failed"}
		if j.reply.Error != nil {
			if j.reply.Error.Message != "" {
				jobErr.Message = j.reply.Error.Message
			}
			jobErr.Reason = j.reply.Error.Reason
		}
		return Status{State: StateError, Raw: j.reply.State, Err: jobErr}
	default:
		return Status{
			State: StateError,
			Raw:   j.reply.State,
			Err:   fmt.Errorf("unknown request state %q", j.reply.State),
		}
	}
}

func (j *legacyJob) poll(ctx context.Context) (Status, error) {
	if j.reply.RequestID == "" {
		return Status{}, fmt.Errorf("missing request_id while state=%s", j.reply.State)
	}

	url := j.base + "/tasks/" + j.reply.RequestID

	var reply legacyReply
	if err := j.c.DoJSON(ctx, http.MethodGet, url, nil, &reply); err != nil {
		return Status{}, err
	}
	if reply.RequestID == "" {
		reply.RequestID = j.reply.RequestID
	}
	j.reply = reply

	return j.status(), nil
}

func (j *legacyJob) resolve(ctx context.Context) (*api.RemoteFile, error) {
	if j.reply.Result != nil && j.reply.Result.Location != "" {
		return &api.RemoteFile{
			Location:      urljoin(j.base, j.reply.Result.Location),
			ContentLength: j.reply.Result.ContentLength,
			ContentType:   j.reply.Result.ContentType,
		}, nil
	}

	if j.reply.Location != "" {
		return &api.RemoteFile{
			Location:      urljoin(j.base, j.reply.Location),
			ContentLength: j.reply.ContentLength,
			ContentType:   j.reply.ContentType,
		}, nil
	}

	return nil, errors.New("missing download info in API reply")
}

// legacyReply is the task document returned by submit and poll.
type legacyReply struct {
	State     string        `json:"state"`
	RequestID string        `json:"request_id"`
	Result    *legacyResult `json:"result"`
	Error     *legacyError  `json:"error"`

	// Completed tasks may carry the download fields at the top level
	// instead of under result.
	Location      string
	ContentLength int64
	ContentType   string
}

func (r *legacyReply) UnmarshalJSON(data []byte) error {
	var aux struct {
		State     string        `json:"state"`
		RequestID string        `json:"request_id"`
		Result    *legacyResult `json:"result"`
		Error     *legacyError  `json:"error"`
		Location  string        `json:"location"`

		ContentLengthCamel int64  `json:"contentLength"`
		ContentLengthSnake int64  `json:"content_length"`
		ContentTypeCamel   string `json:"contentType"`
		ContentTypeSnake   string `json:"content_type"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	r.State = aux.State
	r.RequestID = aux.RequestID
	r.Result = aux.Result
	r.Error = aux.Error
	r.Location = aux.Location
	r.ContentLength = firstInt64(aux.ContentLengthCamel, aux.ContentLengthSnake)
	r.ContentType = firstString(aux.ContentTypeCamel, aux.ContentTypeSnake)
	return nil
}

// legacyResult is the nested download descriptor on completed tasks. Both
// camelCase and snake_case field spellings appear in the wild.
type legacyResult struct {
	Location      string
	ContentLength int64
	ContentType   string
}

func (r *legacyResult) UnmarshalJSON(data []byte) error {
	var aux struct {
		Location           string `json:"location"`
		ContentLengthCamel int64  `json:"contentLength"`
		ContentLengthSnake int64  `json:"content_length"`
		ContentTypeCamel   string `json:"contentType"`
		ContentTypeSnake   string `json:"content_type"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	r.Location = aux.Location
	r.ContentLength = firstInt64(aux.ContentLengthCamel, aux.ContentLengthSnake)
	r.ContentType = firstString(aux.ContentTypeCamel, aux.ContentTypeSnake)
	return nil
}

type legacyError struct {
	Message string `json:"message"`
	Reason  string `json:"reason"`
}

func firstInt64(vals ...int64) int64 {
	for _, v := range vals {
		if v != 0 {
			return v
		}
	}
	return 0
}

func firstString(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
