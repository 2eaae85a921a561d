package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hkwk/cdsapi/internal/errs"
)

// Credentials is the resolved client configuration. It is built once and
// never mutated afterwards.
type Credentials struct {
	// URL is the API base url, e.g. https://cds.climate.copernicus.eu/api.
	URL string

	// Key is the raw API key; its shape selects the dialect.
	Key string

	// VerifyTLS controls TLS certificate verification.
	VerifyTLS bool
}

// Overrides carries explicit values that take precedence over environment
// variables and rc files. A nil Verify means "not set".
type Overrides struct {
	URL    string
	Key    string
	RCPath string
	Verify *bool
}

// Environment variables consulted by Resolve.
const (
	EnvURL    = "CDSAPI_URL"
	EnvKey    = "CDSAPI_KEY"
	EnvRC     = "CDSAPI_RC"
	EnvVerify = "CDSAPI_VERIFY"
)

const rcFileName = ".cdsapirc"

// Resolve builds Credentials with the precedence explicit overrides >
// environment variables > rc file. The rc file is the first existing of:
// the path in o.RCPath, the path in CDSAPI_RC, ./.cdsapirc, ~/.cdsapirc.
func Resolve(o Overrides) (Credentials, error) {
	url := o.URL
	key := o.Key
	verify := o.Verify

	if url == "" {
		url = os.Getenv(EnvURL)
	}
	if key == "" {
		key = os.Getenv(EnvKey)
	}
	if verify == nil {
		if v := os.Getenv(EnvVerify); v != "" {
			b := parseVerify(v)
			verify = &b
		}
	}

	candidates := rcCandidates(o.RCPath)

	if url == "" || key == "" || verify == nil {
		for _, path := range candidates {
			if _, err := os.Stat(path); err != nil {
				continue
			}
			rc, err := readRC(path)
			if err != nil {
				return Credentials{}, fmt.Errorf("read configuration file %s: %w", path, err)
			}
			if url == "" {
				url = rc.URL
			}
			if key == "" {
				key = rc.Key
			}
			if verify == nil {
				verify = rc.Verify
			}
			break
		}
	}

	if url == "" {
		return Credentials{}, missingErr("url", EnvURL, candidates)
	}
	if key == "" {
		return Credentials{}, missingErr("key", EnvKey, candidates)
	}

	verifyTLS := true
	if verify != nil {
		verifyTLS = *verify
	}

	return Credentials{
		URL:       strings.TrimRight(strings.TrimSpace(url), "/"),
		Key:       strings.TrimSpace(key),
		VerifyTLS: verifyTLS,
	}, nil
}

func missingErr(field, env string, candidates []string) error {
	return &errs.ConfigError{Reason: fmt.Sprintf(
		"missing %s (set %s or put `%s:` in one of: %s)",
		field, env, field, strings.Join(candidates, ", "),
	)}
}

func rcCandidates(explicit string) []string {
	if explicit != "" {
		return []string{explicit}
	}
	if p := os.Getenv(EnvRC); p != "" {
		return []string{p}
	}

	var v []string
	if cwd, err := os.Getwd(); err == nil {
		v = append(v, filepath.Join(cwd, rcFileName))
	}
	if home, err := os.UserHomeDir(); err == nil {
		v = append(v, filepath.Join(home, rcFileName))
	}
	return v
}

// rcConfig is the parsed rc file content.
type rcConfig struct {
	URL    string
	Key    string
	Verify *bool
}

// rcYAML mirrors the well-formed YAML shape of an rc file.
type rcYAML struct {
	URL    string  `yaml:"url"`
	Key    string  `yaml:"key"`
	Verify *rcBool `yaml:"verify"`
}

// rcBool accepts the rc file's loose verify encodings: 0/1, true/false.
type rcBool bool

func (b *rcBool) UnmarshalYAML(value *yaml.Node) error {
	*b = rcBool(parseVerify(strings.TrimSpace(value.Value)))
	return nil
}

func parseVerify(v string) bool {
	return v != "0" && !strings.EqualFold(v, "false")
}

// readRC parses an rc file. Well-formed files are YAML mappings with url,
// key and verify entries. Some historical files put the value on the line
// after a bare `key:`, which is not valid YAML; those fall back to a
// line-oriented parser.
func readRC(path string) (rcConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return rcConfig{}, err
	}

	var y rcYAML
	if err := yaml.Unmarshal(data, &y); err == nil && (y.URL != "" || y.Key != "") {
		cfg := rcConfig{URL: strings.TrimSpace(y.URL), Key: strings.TrimSpace(y.Key)}
		if y.Verify != nil {
			b := bool(*y.Verify)
			cfg.Verify = &b
		}
		return cfg, nil
	}

	return readRCLines(string(data)), nil
}

// readRCLines is the tolerant fallback parser. It understands comments,
// quoted values, and the continuation format where the value follows a bare
// `url:` or `key:` on its own line.
func readRCLines(text string) rcConfig {
	var cfg rcConfig
	pending := ""

	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if pending != "" {
			if !strings.Contains(line, ":") {
				setRCField(&cfg, pending, stripQuotes(line))
				pending = ""
				continue
			}
			pending = ""
		}

		k, v, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		k = strings.TrimSpace(k)
		v = stripQuotes(strings.TrimSpace(v))

		switch k {
		case "url", "key":
			if v == "" {
				pending = k
			} else {
				setRCField(&cfg, k, v)
			}
		case "verify":
			if v != "" {
				b := parseVerify(v)
				cfg.Verify = &b
			}
		}
	}

	return cfg
}

func setRCField(cfg *rcConfig, key, value string) {
	switch key {
	case "url":
		cfg.URL = value
	case "key":
		cfg.Key = value
	}
}

func stripQuotes(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}
