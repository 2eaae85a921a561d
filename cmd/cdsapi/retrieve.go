package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"gocloud.dev/blob"

	// Registered bucket schemes for -bucket URLs.
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/s3blob"

	"github.com/hkwk/cdsapi/internal/config"
	"github.com/hkwk/cdsapi/internal/download"
	"github.com/hkwk/cdsapi/internal/errs"
	"github.com/hkwk/cdsapi/internal/events"
	"github.com/hkwk/cdsapi/internal/retrieve"
)

func runRetrieve(args []string) int {
	fs := flag.NewFlagSet("retrieve", flag.ExitOnError)

	dataset := fs.String("dataset", "", "Dataset name (required)")
	request := fs.String("request", "", "Path to the JSON request file, or '-' for stdin (required)")
	target := fs.String("target", "", "Output file path (default: derived from the artifact URL)")
	bucket := fs.String("bucket", "", "Destination bucket URL (s3://, gs://, file://) instead of a local file")
	object := fs.String("object", "", "Destination object key when -bucket is set")
	urlFlag := fs.String("url", "", "API base url (overrides environment and rc file)")
	key := fs.String("key", "", "API key (overrides environment and rc file)")
	rc := fs.String("rc", "", "Path to the rc file")
	insecure := fs.Bool("insecure", false, "Skip TLS certificate verification")
	noWait := fs.Bool("no-wait", false, "Return after submission without waiting for completion")
	locationOnly := fs.Bool("location-only", false, "Print the artifact URL without downloading")
	quiet := fs.Bool("quiet", false, "Suppress status output")
	verbose := fs.Bool("v", false, "Enable debug logging")

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, `Usage: cdsapi retrieve [options]

Submit a dataset request, poll until the server finishes processing it, and
download the resulting artifact. The credential format selects the API
dialect automatically.

Options:`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return ExitInvalidArgs
	}

	if *dataset == "" || *request == "" {
		fmt.Fprintln(os.Stderr, "Error: -dataset and -request are required")
		fs.Usage()
		return ExitInvalidArgs
	}
	if *bucket != "" && *object == "" {
		fmt.Fprintln(os.Stderr, "Error: -object is required with -bucket")
		fs.Usage()
		return ExitInvalidArgs
	}

	params, err := readRequest(*request)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitInvalidArgs
	}

	var verify *bool
	if *insecure {
		f := false
		verify = &f
	}
	creds, err := config.Resolve(config.Overrides{
		URL:    *urlFlag,
		Key:    *key,
		RCPath: *rc,
		Verify: verify,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitCode(err)
	}

	logger := buildLogger(*verbose)
	defer logger.Sync()

	reporter := events.NewReporter(nil)
	if *quiet {
		reporter = events.Discard()
	}

	client, err := retrieve.New(retrieve.Credentials{
		URL:       creds.URL,
		Key:       creds.Key,
		VerifyTLS: creds.VerifyTLS,
	}, retrieve.Options{
		NoWait:   *noWait,
		Reporter: reporter,
		Logger:   logger,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitCode(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nReceived interrupt, shutting down...")
		cancel()
	}()

	fileTarget := *target
	if *bucket != "" || *locationOnly {
		fileTarget = ""
	}

	file, err := client.Retrieve(ctx, *dataset, params, fileTarget)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitCode(err)
	}

	switch {
	case *locationOnly:
		fmt.Println(file.Location)

	case *bucket != "":
		b, err := blob.OpenBucket(ctx, *bucket)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: open bucket: %v\n", err)
			return ExitGeneralError
		}
		defer b.Close()

		err = download.ToBucket(ctx, client.Transport(), file, b, *object, download.Options{
			Reporter: reporter,
			Logger:   logger,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return exitCode(err)
		}
		reporter.Printf("Stored %s/%s", *bucket, *object)
	}

	return ExitSuccess
}

// readRequest loads the request params from path or stdin.
func readRequest(path string) (retrieve.Request, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read request: %w", err)
	}

	var params retrieve.Request
	if err := json.Unmarshal(data, &params); err != nil {
		return nil, fmt.Errorf("parse request: %w", err)
	}
	return params, nil
}

// exitCode maps the error taxonomy onto process exit codes.
func exitCode(err error) int {
	var (
		configErr    *errs.ConfigError
		authErr      *errs.AuthError
		licenceErr   *errs.LicenceError
		endpointErr  *errs.EndpointError
		jobErr       *errs.JobError
		transportErr *errs.TransportError
	)

	switch {
	case errors.As(err, &configErr):
		return ExitConfigError
	case errors.As(err, &licenceErr):
		return ExitLicenceError
	case errors.As(err, &authErr):
		return ExitAuthError
	case errors.As(err, &endpointErr):
		return ExitEndpoint
	case errors.As(err, &jobErr):
		return ExitJobFailed
	case errors.As(err, &transportErr):
		return ExitTransport
	default:
		return ExitGeneralError
	}
}

func buildLogger(verbose bool) *zap.Logger {
	cfg := zap.NewDevelopmentConfig()
	cfg.OutputPaths = []string{"stderr"}
	if !verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	}

	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
