package auth

import (
	"errors"
	"net/http"
	"testing"

	"github.com/hkwk/cdsapi/internal/errs"
)

func TestClassifyLegacy(t *testing.T) {
	tests := []struct {
		key    string
		uid    string
		apikey string
	}{
		{"12345:abcdef-0123-4567", "12345", "abcdef-0123-4567"},
		{"u1:secret", "u1", "secret"},
		{"ABC123:another-key", "ABC123", "another-key"},
		{"  98765:trimmed  ", "98765", "trimmed"},
	}

	for _, tt := range tests {
		mode, err := Classify(tt.key)
		if err != nil {
			t.Errorf("Classify(%q): %v", tt.key, err)
			continue
		}
		l, ok := mode.(Legacy)
		if !ok {
			t.Errorf("Classify(%q) = %T, want Legacy", tt.key, mode)
			continue
		}
		if l.UID != tt.uid || l.APIKey != tt.apikey {
			t.Errorf("Classify(%q) = {%q, %q}, want {%q, %q}", tt.key, l.UID, l.APIKey, tt.uid, tt.apikey)
		}
	}
}

func TestClassifyToken(t *testing.T) {
	tests := []string{
		"abcdef-0123-4567-89ab",                   // no colon
		"a:b:c",                                   // more than one colon
		"averylongprefixlongerthanuids:something", // left segment not UID-shaped
		"pre.fix:value",                           // non-alphanumeric left segment
		":missing-uid",
		"missing-apikey:",
	}

	for _, key := range tests {
		mode, err := Classify(key)
		if err != nil {
			t.Errorf("Classify(%q): %v", key, err)
			continue
		}
		if _, ok := mode.(Token); !ok {
			t.Errorf("Classify(%q) = %T, want Token", key, mode)
		}
	}
}

func TestClassifyMalformed(t *testing.T) {
	for _, key := range []string{"", "   ", "has space:key", "tab\there"} {
		_, err := Classify(key)
		var cfgErr *errs.ConfigError
		if !errors.As(err, &cfgErr) {
			t.Errorf("Classify(%q) = %v, want ConfigError", key, err)
		}
	}
}

func TestApplyHeaders(t *testing.T) {
	req, _ := http.NewRequest(http.MethodGet, "http://example.org", nil)
	Legacy{UID: "123", APIKey: "abc"}.Apply(req)
	user, pass, ok := req.BasicAuth()
	if !ok || user != "123" || pass != "abc" {
		t.Errorf("Legacy.Apply: basic auth = (%q, %q, %v)", user, pass, ok)
	}

	req, _ = http.NewRequest(http.MethodGet, "http://example.org", nil)
	Token{Token: "tok-1"}.Apply(req)
	if got := req.Header.Get("PRIVATE-TOKEN"); got != "tok-1" {
		t.Errorf("Token.Apply: PRIVATE-TOKEN = %q, want %q", got, "tok-1")
	}
}
