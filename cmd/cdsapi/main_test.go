package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/hkwk/cdsapi/internal/errs"
	"github.com/hkwk/cdsapi/internal/testutil"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"CDSAPI_URL", "CDSAPI_KEY", "CDSAPI_RC", "CDSAPI_VERIFY"} {
		t.Setenv(k, "")
	}
}

func TestRunNoArgs(t *testing.T) {
	if code := run(nil); code != ExitInvalidArgs {
		t.Errorf("run() = %d, want %d", code, ExitInvalidArgs)
	}
}

func TestRunUnknownCommand(t *testing.T) {
	if code := run([]string{"explode"}); code != ExitInvalidArgs {
		t.Errorf("run(explode) = %d, want %d", code, ExitInvalidArgs)
	}
}

func TestRunVersion(t *testing.T) {
	if code := run([]string{"version"}); code != ExitSuccess {
		t.Errorf("run(version) = %d, want %d", code, ExitSuccess)
	}
}

func TestRunHelp(t *testing.T) {
	if code := run([]string{"help"}); code != ExitSuccess {
		t.Errorf("run(help) = %d, want %d", code, ExitSuccess)
	}
}

func TestRetrieveMissingFlags(t *testing.T) {
	if code := runRetrieve([]string{"-dataset", "d"}); code != ExitInvalidArgs {
		t.Errorf("runRetrieve = %d, want %d", code, ExitInvalidArgs)
	}
}

func TestRetrieveEndToEnd(t *testing.T) {
	clearEnv(t)

	artifact := []byte("cli artifact")
	server := testutil.NewLegacyServer(t, testutil.LegacyOptions{
		States:   []string{"completed"},
		Artifact: artifact,
	})
	t.Setenv("CDSAPI_URL", server.URL)
	t.Setenv("CDSAPI_KEY", "12345:cli-secret")

	dir := t.TempDir()
	reqPath := filepath.Join(dir, "request.json")
	if err := os.WriteFile(reqPath, []byte(`{"variable": "2m_temperature"}`), 0o644); err != nil {
		t.Fatal(err)
	}
	target := filepath.Join(dir, "out.grib")

	code := runRetrieve([]string{
		"-dataset", "test-dataset",
		"-request", reqPath,
		"-target", target,
		"-quiet",
	})
	if code != ExitSuccess {
		t.Fatalf("runRetrieve = %d, want %d", code, ExitSuccess)
	}

	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("read target: %v", err)
	}
	if !bytes.Equal(data, artifact) {
		t.Error("downloaded bytes differ")
	}
}

func TestRetrieveLicenceExitCode(t *testing.T) {
	clearEnv(t)

	server := testutil.NewLegacyServer(t, testutil.LegacyOptions{
		States:       []string{"queued"},
		SubmitStatus: 403,
		SubmitBody:   testutil.LicenceBody,
	})
	t.Setenv("CDSAPI_URL", server.URL)
	t.Setenv("CDSAPI_KEY", "12345:cli-secret")

	reqPath := filepath.Join(t.TempDir(), "request.json")
	if err := os.WriteFile(reqPath, []byte(`{}`), 0o644); err != nil {
		t.Fatal(err)
	}

	code := runRetrieve([]string{"-dataset", "d", "-request", reqPath, "-quiet"})
	if code != ExitLicenceError {
		t.Errorf("runRetrieve = %d, want %d", code, ExitLicenceError)
	}
}

func TestCheckWithEnvCredentials(t *testing.T) {
	clearEnv(t)
	t.Setenv("CDSAPI_URL", "https://cds.example.org/api")
	t.Setenv("CDSAPI_KEY", "12345:check-secret")

	if code := runCheck(nil); code != ExitSuccess {
		t.Errorf("runCheck = %d, want %d", code, ExitSuccess)
	}
}

func TestCheckMissingCredentials(t *testing.T) {
	clearEnv(t)
	t.Setenv("HOME", t.TempDir())
	t.Setenv("CDSAPI_RC", filepath.Join(t.TempDir(), "absent"))

	if code := runCheck(nil); code != ExitConfigError {
		t.Errorf("runCheck = %d, want %d", code, ExitConfigError)
	}
}

func TestReadRequest(t *testing.T) {
	reqPath := filepath.Join(t.TempDir(), "req.json")
	if err := os.WriteFile(reqPath, []byte(`{"year": [2024], "month": "01"}`), 0o644); err != nil {
		t.Fatal(err)
	}

	params, err := readRequest(reqPath)
	if err != nil {
		t.Fatalf("readRequest: %v", err)
	}
	if params["month"] != "01" {
		t.Errorf("month = %v", params["month"])
	}

	if _, err := readRequest(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Error("expected an error for a missing file")
	}
}

func TestExitCodeMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{&errs.ConfigError{Reason: "x"}, ExitConfigError},
		{&errs.AuthError{Status: 401}, ExitAuthError},
		{&errs.LicenceError{Title: "x"}, ExitLicenceError},
		{&errs.EndpointError{URL: "x"}, ExitEndpoint},
		{&errs.JobError{Status: "failed"}, ExitJobFailed},
		{&errs.TransportError{Attempts: 3, Err: errors.New("x")}, ExitTransport},
		{errors.New("plain"), ExitGeneralError},
	}
	for _, tc := range cases {
		if got := exitCode(tc.err); got != tc.want {
			t.Errorf("exitCode(%T) = %d, want %d", tc.err, got, tc.want)
		}
	}
}
