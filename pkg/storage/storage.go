// Package storage defines the remote store contract used by the sync
// orchestrator. Implementations live in subpackages.
package storage

import (
	"context"
	"errors"
	"io"
)

// ErrAuth is returned when credentials are missing, invalid or cannot be
// refreshed and no interactive consent is available.
var ErrAuth = errors.New("authentication failed")

// RemoteFile describes one file in a remote folder
type RemoteFile struct {
	ID       string
	Name     string
	MimeType string
	// Size is the byte size reported by the store, -1 when unknown
	Size int64
}

// Store lists, downloads and uploads files in remote folders
type Store interface {
	// List returns the non-trashed files directly inside folderID
	List(ctx context.Context, folderID string) ([]RemoteFile, error)
	// Download copies the content of file into w and returns the byte count
	Download(ctx context.Context, file RemoteFile, w io.Writer) (int64, error)
	// Upload creates name inside folderID with the given content type
	Upload(ctx context.Context, folderID, name, contentType string, r io.Reader) (RemoteFile, error)
}

// Connector authenticates against a remote store. Errors from Connect
// wrap ErrAuth.
type Connector interface {
	Connect(ctx context.Context) (Store, error)
}

// ConnectorFunc adapts a function to the Connector interface
type ConnectorFunc func(ctx context.Context) (Store, error)

// Connect calls f(ctx)
func (f ConnectorFunc) Connect(ctx context.Context) (Store, error) {
	return f(ctx)
}
