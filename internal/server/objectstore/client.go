// Package objectstore wraps the S3-compatible backend behind a small client
// interface. No data-plane traffic passes through the service: clients PUT
// and GET blobs directly via short-lived presigned URLs.
package objectstore

import "context"

// Client is the object-store surface the storage coordinator depends on.
type Client interface {
	// PresignPut returns a time-limited URL authorizing one PUT of the blob
	// at key with the given content type.
	PresignPut(ctx context.Context, key, contentType string) (string, error)

	// PresignGet returns a time-limited URL authorizing one GET of the blob
	// at key. The content-disposition is inline when preview is true,
	// attachment otherwise, with filename as the download name.
	PresignGet(ctx context.Context, key, filename string, preview bool) (string, error)

	// Delete removes the blob at key. Deleting an absent blob is not an
	// error on S3-compatible stores.
	Delete(ctx context.Context, key string) error
}
