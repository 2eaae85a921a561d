package retrieve

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hkwk/cdsapi/internal/api"
	"github.com/hkwk/cdsapi/internal/auth"
	"github.com/hkwk/cdsapi/internal/download"
	"github.com/hkwk/cdsapi/internal/events"
)

// Credentials is the resolved configuration the engine consumes. See the
// config package for how it is sourced.
type Credentials struct {
	URL       string
	Key       string
	VerifyTLS bool
}

// Request is the dataset request payload. It is forwarded to the dialect
// endpoint verbatim; the engine does not validate dataset-specific schema.
type Request map[string]any

// Options configures the retrieval engine.
type Options struct {
	// API configures the underlying transport.
	API api.Options

	// PollBackoff is the delay before the first poll.
	// Default: 1s
	PollBackoff time.Duration

	// PollMaxBackoff caps the delay between polls. The total polling
	// duration is unbounded; only individual round trips time out.
	// Default: 120s
	PollMaxBackoff time.Duration

	// NoWait returns right after submission with whatever location the
	// submission reply carries. Only the legacy dialect supports it.
	NoWait bool

	// Reporter receives ordered status-transition events.
	// Default: stderr
	Reporter *events.Reporter

	// Logger receives debug logging.
	// Default: zap.NewNop()
	Logger *zap.Logger
}

// Client is the request lifecycle engine: it submits a dataset request
// through the dialect selected by the credential shape, polls until a
// terminal state, resolves the artifact and optionally downloads it.
type Client struct {
	api      *api.Client
	wf       workflow
	opts     Options
	reporter *events.Reporter
	log      *zap.Logger
}

// New classifies creds.Key, selects the matching workflow and builds the
// transport. Classification happens exactly once; the resulting client is
// safe for sequential reuse across retrieve calls.
func New(creds Credentials, opts Options) (*Client, error) {
	mode, err := auth.Classify(creds.Key)
	if err != nil {
		return nil, err
	}

	if opts.PollBackoff <= 0 {
		opts.PollBackoff = time.Second
	}
	if opts.PollMaxBackoff <= 0 {
		opts.PollMaxBackoff = 120 * time.Second
	}
	if opts.Reporter == nil {
		opts.Reporter = events.NewReporter(nil)
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.API.Logger == nil {
		opts.API.Logger = opts.Logger
	}

	base := strings.TrimRight(creds.URL, "/")
	client := api.NewClient(mode, creds.VerifyTLS, opts.API)

	var wf workflow
	switch mode.(type) {
	case auth.Legacy:
		wf = &legacyWorkflow{c: client, base: base}
	case auth.Token:
		wf = &modernWorkflow{c: client, base: retrieveBase(base)}
	}

	opts.Logger.Debug("client configured",
		zap.String("url", base),
		zap.String("auth", mode.Name()),
		zap.Bool("verify_tls", creds.VerifyTLS),
	)

	return &Client{
		api:      client,
		wf:       wf,
		opts:     opts,
		reporter: opts.Reporter,
		log:      opts.Logger,
	}, nil
}

// Retrieve submits a request for dataset, waits for it to finish and, when
// target is non-empty, downloads the artifact there atomically. With an
// empty target the resolved remote location is returned without fetching
// bytes.
//
// The job is submitted exactly once. Transient transport failures while
// polling are retried at the transport level and never cause a
// re-submission. Cancelling ctx stops polling; the remote job is left to
// complete or expire on the server.
func (c *Client) Retrieve(ctx context.Context, dataset string, params Request, target string) (*api.RemoteFile, error) {
	if dataset == "" {
		return nil, errors.New("retrieve: dataset is required")
	}
	if c.opts.NoWait && !c.wf.supportsNoWait() {
		return nil, errors.New("retrieve: NoWait is not supported for token credentials")
	}

	j, err := c.wf.submit(ctx, dataset, params)
	if err != nil {
		return nil, err
	}

	last := ""
	emit := func(st Status) {
		if st.Raw != last {
			last = st.Raw
			c.reporter.State(c.wf.label(), st.Raw)
		}
	}

	st := j.status()
	emit(st)

	if c.opts.NoWait {
		return c.finish(ctx, j, target)
	}

	delay := c.opts.PollBackoff
	for !st.Terminal() {
		if err := sleepCtx(ctx, delay); err != nil {
			return nil, err
		}
		delay = nextPollDelay(delay, c.opts.PollMaxBackoff)

		st, err = j.poll(ctx)
		if err != nil {
			return nil, err
		}
		emit(st)
	}

	if st.State == StateError {
		return nil, st.Err
	}

	return c.finish(ctx, j, target)
}

// finish resolves the artifact and downloads it when a target was given.
func (c *Client) finish(ctx context.Context, j job, target string) (*api.RemoteFile, error) {
	file, err := j.resolve(ctx)
	if err != nil {
		return nil, err
	}

	c.log.Debug("artifact resolved",
		zap.String("location", file.Location),
		zap.Int64("content_length", file.ContentLength),
	)

	if target == "" {
		return file, nil
	}

	path, err := download.ToFile(ctx, c.api, file, target, download.Options{
		Reporter: c.reporter,
		Logger:   c.log,
	})
	if err != nil {
		return nil, err
	}
	c.reporter.Printf("Downloaded to %s", path)

	return file, nil
}

// Download fetches an already-resolved artifact to target atomically.
func (c *Client) Download(ctx context.Context, file *api.RemoteFile, target string) (string, error) {
	return download.ToFile(ctx, c.api, file, target, download.Options{
		Reporter: c.reporter,
		Logger:   c.log,
	})
}

// Transport exposes the underlying API client, for callers that stream the
// artifact to a non-file sink.
func (c *Client) Transport() *api.Client {
	return c.api
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
