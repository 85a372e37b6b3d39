// Package localfs implements storage.Store over a local directory tree.
// A folder id is a directory path relative to the store root.
package localfs

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/menta2k/helmet-inspector/internal/utils"
	"github.com/menta2k/helmet-inspector/pkg/storage"
)

// Store serves folders below root
type Store struct {
	root string
}

// New creates a store rooted at root. The root must exist.
func New(root string) (*Store, error) {
	if !utils.DirExists(root) {
		return nil, fmt.Errorf("%w: store root %s is not a directory", storage.ErrAuth, root)
	}
	return &Store{root: root}, nil
}

// Connector returns a storage.Connector that opens root on Connect
func Connector(root string) storage.Connector {
	return storage.ConnectorFunc(func(ctx context.Context) (storage.Store, error) {
		return New(root)
	})
}

func (s *Store) folder(folderID string) (string, error) {
	clean := filepath.Clean("/" + folderID)
	dir := filepath.Join(s.root, clean)
	if !utils.DirExists(dir) {
		return "", fmt.Errorf("folder %q not found", folderID)
	}
	return dir, nil
}

// List returns the regular files in folderID sorted by name. The id of each
// file is its path relative to the root.
func (s *Store) List(ctx context.Context, folderID string) ([]storage.RemoteFile, error) {
	dir, err := s.folder(folderID)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var files []storage.RemoteFile
	for _, e := range entries {
		if !e.Type().IsRegular() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, err
		}
		rel, _ := filepath.Rel(s.root, filepath.Join(dir, e.Name()))
		files = append(files, storage.RemoteFile{
			ID:       filepath.ToSlash(rel),
			Name:     e.Name(),
			MimeType: utils.ContentType(e.Name()),
			Size:     info.Size(),
		})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}

// Download copies the file identified by file.ID into w
func (s *Store) Download(ctx context.Context, file storage.RemoteFile, w io.Writer) (int64, error) {
	path := filepath.Join(s.root, filepath.Clean("/"+file.ID))
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return io.Copy(w, f)
}

// Upload writes r to folderID/name, replacing any existing file
func (s *Store) Upload(ctx context.Context, folderID, name, contentType string, r io.Reader) (storage.RemoteFile, error) {
	dir, err := s.folder(folderID)
	if err != nil {
		return storage.RemoteFile{}, err
	}
	name = utils.SanitizeFilename(name)
	if name == "" {
		return storage.RemoteFile{}, fmt.Errorf("invalid file name")
	}

	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		return storage.RemoteFile{}, err
	}
	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return storage.RemoteFile{}, err
	}

	rel, _ := filepath.Rel(s.root, path)
	return storage.RemoteFile{ID: filepath.ToSlash(rel), Name: name, MimeType: contentType, Size: n}, nil
}
