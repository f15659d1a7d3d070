// Package blobstore is the binary-upload boundary. The core hands
// image bytes in and gets an opaque public URL back; it never parses
// the URL beyond handing it back for deletion.
package blobstore

import "context"

type Store interface {
	// Upload stores the bytes and returns a public URL. pathHint is a
	// relative name the backend may use as-is or decorate.
	Upload(ctx context.Context, data []byte, pathHint string) (string, error)
	// Delete removes the object a previous Upload returned url for.
	Delete(ctx context.Context, url string) error
}
