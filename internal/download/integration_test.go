//go:build integration

package download

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	_ "gocloud.dev/blob/s3blob"

	"github.com/hkwk/cdsapi/internal/api"
	"github.com/hkwk/cdsapi/internal/testutil"
)

// TestToBucketS3 exercises the bucket sink against a real S3 API served by
// Minio instead of the in-memory driver.
func TestToBucketS3(t *testing.T) {
	ctx := context.Background()

	data := make([]byte, 2*1024*1024)
	for i := range data {
		data[i] = byte(i % 251)
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		testutil.ServeArtifact(w, r, data)
	}))
	defer server.Close()

	env := testutil.StartMinio(t, ctx, "cdsapi-artifacts")
	bucket, err := env.OpenBucket(ctx)
	if err != nil {
		t.Fatalf("open bucket: %v", err)
	}
	defer bucket.Close()

	file := &api.RemoteFile{
		Location:      server.URL + "/era5.grib",
		ContentLength: int64(len(data)),
		ContentType:   "application/x-grib",
	}
	if err := ToBucket(ctx, testClient(), file, bucket, "era5/2024/era5.grib", Options{}); err != nil {
		t.Fatalf("ToBucket: %v", err)
	}

	got, err := bucket.ReadAll(ctx, "era5/2024/era5.grib")
	if err != nil {
		t.Fatalf("read object: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Error("object bytes differ from the artifact")
	}
}
