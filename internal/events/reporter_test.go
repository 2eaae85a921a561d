package events

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestStateLines(t *testing.T) {
	var buf bytes.Buffer
	r := NewReporter(&buf)

	r.State("Request state", "queued")
	r.State("Request state", "running")
	r.State("Request state", "completed")

	want := "Request state: queued\nRequest state: running\nRequest state: completed\n"
	if buf.String() != want {
		t.Errorf("output = %q, want %q", buf.String(), want)
	}
}

func TestPrintfClosesProgressLine(t *testing.T) {
	var buf bytes.Buffer
	r := NewReporter(&buf)

	r.Progress(512, 1024)
	r.Printf("Downloaded to %s", "/tmp/out.grib")

	out := buf.String()
	if !strings.Contains(out, "Downloading: 512 B / 1.00 KB") {
		t.Errorf("missing progress line in %q", out)
	}
	// The status line must start on a fresh row, not overwrite the
	// in-place progress counter.
	if !strings.Contains(out, "\nDownloaded to /tmp/out.grib\n") {
		t.Errorf("status line not on its own row in %q", out)
	}
}

func TestProgressThrottled(t *testing.T) {
	var buf bytes.Buffer
	r := NewReporter(&buf)

	r.Progress(100, 1000)
	r.Progress(200, 1000)
	r.Progress(300, 1000)

	if n := strings.Count(buf.String(), "Downloading:"); n != 1 {
		t.Errorf("progress lines = %d, want 1 within the throttle window", n)
	}
}

func TestDownloadDone(t *testing.T) {
	var buf bytes.Buffer
	r := NewReporter(&buf)

	r.DownloadDone(2048, 2*time.Second)

	out := buf.String()
	if !strings.Contains(out, "Downloaded 2.00 KB in 2s (1.00 KB/s)") {
		t.Errorf("output = %q", out)
	}
}

func TestDiscard(t *testing.T) {
	r := Discard()
	r.State("Job status", "running")
	r.Printf("nothing to see")
}

func TestFormatBytes(t *testing.T) {
	cases := []struct {
		in   int64
		want string
	}{
		{0, "0 B"},
		{512, "512 B"},
		{1024, "1.00 KB"},
		{1536, "1.50 KB"},
		{1048576, "1.00 MB"},
		{5 * 1024 * 1024 * 1024, "5.00 GB"},
		{3 * 1024 * 1024 * 1024 * 1024, "3.00 TB"},
	}
	for _, tc := range cases {
		if got := FormatBytes(tc.in); got != tc.want {
			t.Errorf("FormatBytes(%d) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestFormatDuration(t *testing.T) {
	cases := []struct {
		in   time.Duration
		want string
	}{
		{30 * time.Second, "30s"},
		{90 * time.Second, "1m 30s"},
		{3930 * time.Second, "1h 5m 30s"},
	}
	for _, tc := range cases {
		if got := formatDuration(tc.in); got != tc.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
