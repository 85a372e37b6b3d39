// Package gdrive implements storage.Store on Google Drive.
//
// Authentication uses an installed-app OAuth client secret and a cached
// token file. A missing or unrefreshable token triggers the consent flow
// when one is configured; otherwise Connect fails with storage.ErrAuth.
package gdrive

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/menta2k/helmet-inspector/pkg/storage"
)

const (
	fileFields = "id, name, size, mimeType"
	listFields = "nextPageToken, files(" + fileFields + ")"
	pageSize   = 100

	// Native Docs, Sheets and folders have no downloadable content
	googleAppsPrefix = "application/vnd.google-apps."
)

// Store talks to the Drive v3 API
type Store struct {
	svc *drive.Service
}

// NewStore creates a Drive store using an already authorized client
func NewStore(ctx context.Context, httpClient *http.Client, opts ...option.ClientOption) (*Store, error) {
	opts = append([]option.ClientOption{option.WithHTTPClient(httpClient)}, opts...)
	svc, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to create drive client: %w", err)
	}
	return &Store{svc: svc}, nil
}

// List returns every non-trashed file directly inside folderID
func (s *Store) List(ctx context.Context, folderID string) ([]storage.RemoteFile, error) {
	q := fmt.Sprintf("'%s' in parents and trashed = false", escapeQuery(folderID))

	var files []storage.RemoteFile
	err := s.svc.Files.List().
		Q(q).
		Fields(listFields).
		PageSize(pageSize).
		SupportsAllDrives(true).
		IncludeItemsFromAllDrives(true).
		Pages(ctx, func(page *drive.FileList) error {
			for _, f := range page.Files {
				if strings.HasPrefix(f.MimeType, googleAppsPrefix) {
					continue
				}
				files = append(files, toRemote(f))
			}
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("unable to list folder %s: %w", folderID, err)
	}
	return files, nil
}

// Download streams the file content into w
func (s *Store) Download(ctx context.Context, file storage.RemoteFile, w io.Writer) (int64, error) {
	resp, err := s.svc.Files.Get(file.ID).SupportsAllDrives(true).Context(ctx).Download()
	if err != nil {
		return 0, fmt.Errorf("unable to download %s: %w", file.Name, err)
	}
	defer resp.Body.Close()
	return io.Copy(w, resp.Body)
}

// Upload creates a new file named name in folderID
func (s *Store) Upload(ctx context.Context, folderID, name, contentType string, r io.Reader) (storage.RemoteFile, error) {
	meta := &drive.File{
		Name:    name,
		Parents: []string{folderID},
	}
	f, err := s.svc.Files.Create(meta).
		Media(r, googleapi.ContentType(contentType)).
		Fields(fileFields).
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return storage.RemoteFile{}, fmt.Errorf("unable to upload %s: %w", name, err)
	}
	return toRemote(f), nil
}

// escapeQuery quotes a value for a single-quoted Drive query string
func escapeQuery(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	return strings.ReplaceAll(v, "'", `\'`)
}

func toRemote(f *drive.File) storage.RemoteFile {
	return storage.RemoteFile{
		ID:       f.Id,
		Name:     f.Name,
		MimeType: f.MimeType,
		Size:     f.Size,
	}
}

// Connector authenticates and opens a Drive store
type Connector struct {
	auth *Authenticator
	opts []option.ClientOption
}

// NewConnector creates a connector. opts are passed to the Drive client.
func NewConnector(auth *Authenticator, opts ...option.ClientOption) *Connector {
	return &Connector{auth: auth, opts: opts}
}

// Connect obtains credentials and builds the Drive client
func (c *Connector) Connect(ctx context.Context) (storage.Store, error) {
	httpClient, err := c.auth.HTTPClient(ctx)
	if err != nil {
		return nil, err
	}
	s, err := NewStore(ctx, httpClient, c.opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", storage.ErrAuth, err)
	}
	return s, nil
}
