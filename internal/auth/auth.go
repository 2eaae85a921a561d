// Package auth classifies raw API keys and applies the matching
// authentication scheme to outgoing requests.
//
// The service accepts two credential formats:
//   - Legacy: "<UID>:<APIKEY>", authenticated with HTTP Basic auth and served
//     by the /resources + /tasks endpoint family.
//   - Token: a personal access token (no colon), authenticated with the
//     PRIVATE-TOKEN header and served by the /api/retrieve/v1 endpoints.
package auth

import (
	"net/http"
	"strings"

	"github.com/hkwk/cdsapi/internal/errs"
)

// Mode is the classified credential. Exactly two implementations exist:
// Legacy and Token.
type Mode interface {
	// Apply sets the authentication header(s) on req.
	Apply(req *http.Request)

	// Name identifies the mode for logging ("legacy" or "token").
	Name() string

	sealed()
}

// Legacy is a UID:APIKEY pair used with the legacy endpoints.
type Legacy struct {
	UID    string
	APIKey string
}

func (l Legacy) Apply(req *http.Request) {
	req.SetBasicAuth(l.UID, l.APIKey)
}

func (Legacy) Name() string { return "legacy" }
func (Legacy) sealed()      {}

// Token is a personal access token used with the modern endpoints.
type Token struct {
	Token string
}

func (t Token) Apply(req *http.Request) {
	req.Header.Set("PRIVATE-TOKEN", t.Token)
}

func (Token) Name() string { return "token" }
func (Token) sealed()      {}

// maxUIDLen bounds the left segment of a legacy key. UIDs are short numeric
// or alphanumeric account identifiers; anything longer is assumed to be a
// token that happens to contain a colon.
const maxUIDLen = 16

// Classify parses a raw key string into a Mode.
//
// A key with exactly one colon separating two non-empty segments, where the
// left segment is UID-shaped (short, alphanumeric), is Legacy. Everything
// else is Token. The heuristic can misclassify a token that legitimately
// contains a single colon with a short alphanumeric prefix; the service does
// not issue such tokens.
//
// An empty key, or one containing whitespace, returns a *errs.ConfigError.
func Classify(raw string) (Mode, error) {
	key := strings.TrimSpace(raw)
	if key == "" {
		return nil, &errs.ConfigError{Reason: "malformed key: empty"}
	}
	if strings.ContainsAny(key, " \t\r\n") {
		return nil, &errs.ConfigError{Reason: "malformed key: contains whitespace"}
	}

	if uid, apikey, ok := splitLegacy(key); ok {
		return Legacy{UID: uid, APIKey: apikey}, nil
	}

	return Token{Token: key}, nil
}

// splitLegacy reports whether key has the legacy UID:APIKEY shape.
func splitLegacy(key string) (uid, apikey string, ok bool) {
	if strings.Count(key, ":") != 1 {
		return "", "", false
	}

	uid, apikey, _ = strings.Cut(key, ":")
	if uid == "" || apikey == "" {
		return "", "", false
	}
	if !uidShaped(uid) {
		return "", "", false
	}

	return uid, apikey, true
}

func uidShaped(s string) bool {
	if len(s) > maxUIDLen {
		return false
	}
	for _, r := range s {
		alnum := (r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
		if !alnum {
			return false
		}
	}
	return true
}
