// Package errs defines the error taxonomy shared by the client.
//
// Every failure surfaced to callers is one of the types below, regardless of
// which API dialect produced it. Use errors.As to inspect a specific kind.
package errs

import (
	"fmt"
	"strings"
)

// ConfigError indicates invalid or missing client configuration, such as a
// malformed API key or an unresolvable url. It is fatal and never retried.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return "config: " + e.Reason
}

// AuthError indicates the service rejected the credentials (HTTP 401/403
// without licence metadata).
type AuthError struct {
	Status   int
	Title    string
	Detail   string
	Kind     string
	Instance string
	TraceID  string
	URL      string
}

func (e *AuthError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "authentication/authorization failed (HTTP %d)\n", e.Status)
	b.WriteString("- Check that the configured key is a valid Personal Access Token (often WITHOUT the deprecated '<UID>:' prefix)\n")
	b.WriteString("- Ensure the token is not expired\n")
	b.WriteString("- If dataset licences are not accepted, the service returns: 403 required licences not accepted\n")
	if e.Title != "" {
		fmt.Fprintf(&b, "\nServer message: %s\n", e.Title)
	}
	if e.Detail != "" {
		fmt.Fprintf(&b, "%s\n", e.Detail)
	}
	if e.Kind != "" {
		fmt.Fprintf(&b, "kind: %s\n", e.Kind)
	}
	if e.Instance != "" {
		fmt.Fprintf(&b, "instance: %s\n", e.Instance)
	}
	fmt.Fprintf(&b, "trace_id: %s\n", orNone(e.TraceID))
	fmt.Fprintf(&b, "request: %s", e.URL)
	return b.String()
}

// LicenceError indicates a 403 response caused by unaccepted dataset usage
// licences. Detail carries the server's licence description verbatim; Link is
// the remediation URL extracted from the response when present.
type LicenceError struct {
	Title   string
	Detail  string
	TraceID string
	Link    string
}

func (e *LicenceError) Error() string {
	var b strings.Builder
	b.WriteString("the service returned 403: required dataset licence(s) have not been accepted.\n")
	b.WriteString("\nHow to fix:\n")
	fmt.Fprintf(&b, "1) Open and sign in: %s\n", e.Link)
	b.WriteString("2) Scroll to the bottom and accept the required licence(s) (Manage licences)\n")
	b.WriteString("3) Re-run this program\n")
	fmt.Fprintf(&b, "\nServer message: %s\n", e.Title)
	fmt.Fprintf(&b, "trace_id: %s", orNone(e.TraceID))
	return b.String()
}

// EndpointError indicates a 404 on an API endpoint, usually caused by a
// misconfigured base url.
type EndpointError struct {
	Title  string
	Detail string
	URL    string
}

func (e *EndpointError) Error() string {
	var b strings.Builder
	b.WriteString("API endpoint not found (HTTP 404)\n")
	b.WriteString("- The API path may have changed, or your configured base url is incorrect\n")
	if e.Title != "" {
		fmt.Fprintf(&b, "\nServer message: %s\n", e.Title)
	}
	if e.Detail != "" {
		fmt.Fprintf(&b, "%s\n", e.Detail)
	}
	fmt.Fprintf(&b, "request: %s", e.URL)
	return b.String()
}

// JobError indicates the remote job reached a failed terminal state. Message
// and Reason carry the server-provided text verbatim.
type JobError struct {
	Status  string
	Message string
	Reason  string
}

func (e *JobError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = fmt.Sprintf("request failed with status %s", e.Status)
	}
	if e.Reason != "" {
		return msg + ". " + e.Reason
	}
	return msg
}

// TransportError indicates a network-level failure or exhausted retries on a
// single logical round trip.
type TransportError struct {
	Attempts int
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("request failed after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
