package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/hkwk/cdsapi/internal/errs"
)

func writeRC(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".cdsapirc")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write rc file: %v", err)
	}
	return path
}

func clearEnv(t *testing.T) {
	t.Helper()
	t.Setenv(EnvURL, "")
	t.Setenv(EnvKey, "")
	t.Setenv(EnvVerify, "")
	t.Setenv(EnvRC, "")
}

func TestResolveFromRCFile(t *testing.T) {
	clearEnv(t)
	rc := writeRC(t, "url: https://example.org/api\nkey: 12345:abcdef\n")

	creds, err := Resolve(Overrides{RCPath: rc})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	if creds.URL != "https://example.org/api" {
		t.Errorf("URL = %q", creds.URL)
	}
	if creds.Key != "12345:abcdef" {
		t.Errorf("Key = %q", creds.Key)
	}
	if !creds.VerifyTLS {
		t.Error("VerifyTLS = false, want true by default")
	}
}

func TestResolveEnvOverridesFile(t *testing.T) {
	clearEnv(t)
	rc := writeRC(t, "url: https://file.example.org/api\nkey: file-key\n")
	t.Setenv(EnvURL, "https://env.example.org/api")

	creds, err := Resolve(Overrides{RCPath: rc})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	if creds.URL != "https://env.example.org/api" {
		t.Errorf("URL = %q, want the environment value", creds.URL)
	}
	if creds.Key != "file-key" {
		t.Errorf("Key = %q, want the rc file value", creds.Key)
	}
}

func TestResolveExplicitOverridesEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvURL, "https://env.example.org/api")
	t.Setenv(EnvKey, "env-key")

	creds, err := Resolve(Overrides{URL: "https://flag.example.org/api", Key: "flag-key"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	if creds.URL != "https://flag.example.org/api" || creds.Key != "flag-key" {
		t.Errorf("got (%q, %q), want explicit overrides to win", creds.URL, creds.Key)
	}
}

func TestResolveRCPathFromEnv(t *testing.T) {
	clearEnv(t)
	rc := writeRC(t, "url: https://rcenv.example.org/api\nkey: rc-env-key\n")
	t.Setenv(EnvRC, rc)

	creds, err := Resolve(Overrides{})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if creds.Key != "rc-env-key" {
		t.Errorf("Key = %q", creds.Key)
	}
}

func TestResolveVerifyZero(t *testing.T) {
	clearEnv(t)
	rc := writeRC(t, "url: https://example.org/api\nkey: k\nverify: 0\n")

	creds, err := Resolve(Overrides{RCPath: rc})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if creds.VerifyTLS {
		t.Error("VerifyTLS = true, want false for verify: 0")
	}
}

func TestResolveMissingKey(t *testing.T) {
	clearEnv(t)
	rc := writeRC(t, "url: https://example.org/api\n")

	_, err := Resolve(Overrides{RCPath: rc})
	var cfgErr *errs.ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("Resolve = %v, want ConfigError", err)
	}
}

func TestResolveTrimsTrailingSlash(t *testing.T) {
	clearEnv(t)

	creds, err := Resolve(Overrides{URL: "https://example.org/api/", Key: "k"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if creds.URL != "https://example.org/api" {
		t.Errorf("URL = %q, want trailing slash trimmed", creds.URL)
	}
}

func TestReadRCContinuationLines(t *testing.T) {
	rc := writeRC(t, `# legacy format
url:
https://example.org/api
key:
12345:abcdef
verify: 1
`)

	cfg, err := readRC(rc)
	if err != nil {
		t.Fatalf("readRC: %v", err)
	}

	if cfg.URL != "https://example.org/api" {
		t.Errorf("URL = %q", cfg.URL)
	}
	if cfg.Key != "12345:abcdef" {
		t.Errorf("Key = %q", cfg.Key)
	}
	if cfg.Verify == nil || !*cfg.Verify {
		t.Errorf("Verify = %v, want true", cfg.Verify)
	}
}

func TestReadRCQuotedValues(t *testing.T) {
	rc := writeRC(t, "url: \"https://example.org/api\"\nkey: 'quoted-key'\n")

	cfg, err := readRC(rc)
	if err != nil {
		t.Fatalf("readRC: %v", err)
	}

	if cfg.URL != "https://example.org/api" {
		t.Errorf("URL = %q, want quotes stripped", cfg.URL)
	}
	if cfg.Key != "quoted-key" {
		t.Errorf("Key = %q, want quotes stripped", cfg.Key)
	}
}
