// Package download streams resolved artifacts to their destination.
//
// Two sinks are supported:
//   - ToFile writes a local file atomically: bytes land in a temporary path
//     next to the target and are renamed into place only once complete. An
//     interrupted transfer resumes with HTTP Range requests.
//   - ToBucket streams into a gocloud.dev blob bucket (file://, s3://,
//     gs://, mem://); blob writers commit on Close, giving the same
//     no-partial-object guarantee.
package download
