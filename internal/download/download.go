package download

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"gocloud.dev/blob"

	"github.com/hkwk/cdsapi/internal/api"
	"github.com/hkwk/cdsapi/internal/errs"
	"github.com/hkwk/cdsapi/internal/events"
)

// tmpSuffix marks the in-progress file next to the final target. The final
// path only ever appears via rename, so no observer sees partial bytes.
const tmpSuffix = ".cdsapi-tmp"

// Options configures a download.
type Options struct {
	// Attempts is the resume-attempt budget for an interrupted transfer.
	// Default: 5
	Attempts int

	// RetryDelay is the wait between resume attempts.
	// Default: 2s
	RetryDelay time.Duration

	// Reporter receives byte-progress events.
	Reporter *events.Reporter

	// Logger receives debug logging.
	Logger *zap.Logger
}

func (o Options) withDefaults() Options {
	if o.Attempts <= 0 {
		o.Attempts = 5
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = 2 * time.Second
	}
	if o.Reporter == nil {
		o.Reporter = events.Discard()
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// ToFile streams the artifact to target, creating parent directories as
// needed. Bytes are written to a temporary path and renamed into place only
// after the expected length has arrived, so a failed download never leaves a
// file at target. An interrupted transfer resumes with Range requests
// against the temporary file. Returns the final path, which is derived from
// the artifact URL when target is empty.
func ToFile(ctx context.Context, c *api.Client, file *api.RemoteFile, target string, opts Options) (string, error) {
	opts = opts.withDefaults()

	if target == "" {
		target = GuessFilename(file.Location)
	}
	if dir := filepath.Dir(target); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	tmp := target + tmpSuffix
	start := time.Now()

	written, err := fetchToTemp(ctx, c, file, tmp, opts)
	if err != nil {
		os.Remove(tmp)
		return "", err
	}

	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("finalize %s: %w", target, err)
	}

	opts.Reporter.DownloadDone(written, time.Since(start))
	opts.Logger.Debug("download complete",
		zap.String("target", target),
		zap.Int64("bytes", written),
	)

	return target, nil
}

// fetchToTemp downloads into tmp, resuming across attempts, and returns the
// byte count once the transfer is complete.
func fetchToTemp(ctx context.Context, c *api.Client, file *api.RemoteFile, tmp string, opts Options) (int64, error) {
	var offset int64
	var lastErr error

	for attempt := 0; attempt < opts.Attempts; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, opts.RetryDelay); err != nil {
				return 0, err
			}
			if fi, err := os.Stat(tmp); err == nil {
				offset = fi.Size()
			}
			opts.Logger.Debug("resuming download",
				zap.Int64("offset", offset),
				zap.Int("attempt", attempt+1),
			)
		}

		n, err := fetchOnce(ctx, c, file.Location, tmp, offset, file.ContentLength, opts.Reporter)
		if err == nil {
			return n, nil
		}
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		lastErr = err
		offset = n
	}

	return 0, &errs.TransportError{Attempts: opts.Attempts, Err: lastErr}
}

// fetchOnce performs a single transfer attempt. It returns the total bytes
// present in tmp afterwards; the error is nil only when the file is
// complete.
func fetchOnce(ctx context.Context, c *api.Client, location, tmp string, offset, expected int64, reporter *events.Reporter) (int64, error) {
	dl, err := c.Get(ctx, location, offset)
	if err != nil {
		return offset, err
	}
	defer dl.Body.Close()

	// A server that ignores the Range request replays the whole body, so
	// the partial bytes must be discarded.
	if offset > 0 && !dl.Partial {
		offset = 0
	}

	flags := os.O_CREATE | os.O_WRONLY
	if offset > 0 {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	out, err := os.OpenFile(tmp, flags, 0o644)
	if err != nil {
		return offset, fmt.Errorf("open %s: %w", tmp, err)
	}

	total := offset
	if expected <= 0 && dl.ContentLength > 0 {
		expected = offset + dl.ContentLength
	}

	buf := make([]byte, 64*1024)
	for {
		n, readErr := dl.Body.Read(buf)
		if n > 0 {
			if _, writeErr := out.Write(buf[:n]); writeErr != nil {
				out.Close()
				return total, fmt.Errorf("write %s: %w", tmp, writeErr)
			}
			total += int64(n)
			reporter.Progress(total, expected)
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			out.Close()
			return total, fmt.Errorf("download interrupted: %w", readErr)
		}
	}

	if err := out.Close(); err != nil {
		return total, fmt.Errorf("close %s: %w", tmp, err)
	}

	if expected > 0 && total < expected {
		return total, fmt.Errorf("short download: %d of %d byte(s)", total, expected)
	}

	return total, nil
}

// ToBucket streams the artifact into a blob bucket under key. The blob
// writer commits on Close, so a failed transfer leaves no object behind.
func ToBucket(ctx context.Context, c *api.Client, file *api.RemoteFile, bucket *blob.Bucket, key string, opts Options) error {
	opts = opts.withDefaults()

	start := time.Now()

	dl, err := c.Get(ctx, file.Location, 0)
	if err != nil {
		return err
	}
	defer dl.Body.Close()

	wctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w, err := bucket.NewWriter(wctx, key, &blob.WriterOptions{
		ContentType: file.ContentType,
	})
	if err != nil {
		return fmt.Errorf("create bucket writer: %w", err)
	}

	expected := file.ContentLength
	if expected <= 0 {
		expected = dl.ContentLength
	}

	var total int64
	buf := make([]byte, 64*1024)
	for {
		n, readErr := dl.Body.Read(buf)
		if n > 0 {
			if _, writeErr := w.Write(buf[:n]); writeErr != nil {
				cancel() // abort the blob write
				w.Close()
				return fmt.Errorf("write object %s: %w", key, writeErr)
			}
			total += int64(n)
			opts.Reporter.Progress(total, expected)
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			cancel()
			w.Close()
			return fmt.Errorf("download interrupted: %w", readErr)
		}
	}

	if expected > 0 && total < expected {
		cancel()
		w.Close()
		return fmt.Errorf("short download: %d of %d byte(s)", total, expected)
	}

	if err := w.Close(); err != nil {
		return fmt.Errorf("commit object %s: %w", key, err)
	}

	opts.Reporter.DownloadDone(total, time.Since(start))
	return nil
}

// GuessFilename derives a local filename from an artifact URL.
func GuessFilename(location string) string {
	path := location
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		path = path[i+1:]
	}
	if path == "" {
		return "download"
	}
	return path
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
