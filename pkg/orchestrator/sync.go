// Package orchestrator drives a full run: fetch images from a remote folder
// into a private staging directory, process them, push the annotated copies to
// a second folder and remove the staging directory. A local variant processes
// a directory in place and archives the originals.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/menta2k/helmet-inspector/internal/utils"
	"github.com/menta2k/helmet-inspector/pkg/batch"
	"github.com/menta2k/helmet-inspector/pkg/storage"
)

var (
	// ErrTransfer marks a failed download, upload or listing
	ErrTransfer = errors.New("transfer failed")
	// ErrCleanup marks a failure to remove the staging directory. It is only logged.
	ErrCleanup = errors.New("staging cleanup failed")
)

// Config names the remote folders and the staging parent
type Config struct {
	SourceFolderID string
	DestFolderID   string
	// StagingDir is the parent of the per-run staging directory
	StagingDir string
}

// RunReport summarizes one sync run
type RunReport struct {
	Downloaded     int
	DownloadFailed int
	Uploaded       int
	UploadFailed   int
	Batch          *batch.Report
	// TransferErrors collects the per-file download and upload failures
	TransferErrors error
}

// SyncOrchestrator runs authenticate, list, download, process, upload and
// cleanup, strictly in that order and one file at a time.
type SyncOrchestrator struct {
	connector storage.Connector
	processor *batch.Processor
	config    Config
	logger    *zap.SugaredLogger
}

// NewSyncOrchestrator creates an orchestrator
func NewSyncOrchestrator(connector storage.Connector, processor *batch.Processor, config Config, logger *zap.SugaredLogger) *SyncOrchestrator {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &SyncOrchestrator{
		connector: connector,
		processor: processor,
		config:    config,
		logger:    logger,
	}
}

// Run performs one round trip. Authentication errors wrap storage.ErrAuth and
// are returned before any staging directory exists. A detector failure is
// returned after the staging directory has been removed. Per-file transfer
// failures do not fail the run; they are counted and aggregated in the report.
func (o *SyncOrchestrator) Run(ctx context.Context) (*RunReport, error) {
	store, err := o.connector.Connect(ctx)
	if err != nil {
		if !errors.Is(err, storage.ErrAuth) {
			err = fmt.Errorf("%w: %w", storage.ErrAuth, err)
		}
		return nil, err
	}
	o.logger.Infow("authenticated with remote store")

	report := &RunReport{}
	err = WithStagingDir(o.config.StagingDir, o.logger, func(dir string) error {
		return o.runStaged(ctx, store, dir, report)
	})

	o.logger.Infow("sync finished",
		"downloaded", report.Downloaded, "download_failed", report.DownloadFailed,
		"uploaded", report.Uploaded, "upload_failed", report.UploadFailed)
	return report, err
}

func (o *SyncOrchestrator) runStaged(ctx context.Context, store storage.Store, dir string, report *RunReport) error {
	files, err := store.List(ctx, o.config.SourceFolderID)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTransfer, err)
	}
	o.logger.Infow("listed source folder", "folder", o.config.SourceFolderID, "files", len(files))

	for _, f := range files {
		if !utils.IsImageFile(f.Name) {
			o.logger.Debugw("ignoring non-image file", "file", f.Name)
			continue
		}
		path, err := o.download(ctx, store, f, dir)
		if err != nil {
			o.logger.Warnw("download failed", "file", f.Name, "error", err)
			report.DownloadFailed++
			report.TransferErrors = multierr.Append(report.TransferErrors, err)
			continue
		}
		report.Downloaded++
		o.logger.Infow("downloaded", "file", f.Name, "path", path, "size", utils.FormatFileSize(f.Size))
	}

	batchReport, err := o.processor.ProcessDir(ctx, dir, dir)
	report.Batch = batchReport
	if err != nil {
		return err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read staging directory: %w", err)
	}
	for _, e := range entries {
		if !e.Type().IsRegular() || !utils.IsProcessedFile(e.Name()) {
			continue
		}
		if err := o.upload(ctx, store, filepath.Join(dir, e.Name())); err != nil {
			o.logger.Warnw("upload failed", "file", e.Name(), "error", err)
			report.UploadFailed++
			report.TransferErrors = multierr.Append(report.TransferErrors, err)
			continue
		}
		report.Uploaded++
		o.logger.Infow("uploaded", "file", e.Name(), "folder", o.config.DestFolderID)
	}
	return nil
}

// download fetches f into dir through a temporary file. The result is kept
// only when the byte count matches the size reported by the store.
func (o *SyncOrchestrator) download(ctx context.Context, store storage.Store, f storage.RemoteFile, dir string) (string, error) {
	name := utils.SanitizeFilename(f.Name)
	if name == "" {
		return "", fmt.Errorf("%w: %q has no usable file name", ErrTransfer, f.Name)
	}
	path := filepath.Join(dir, name)
	if _, err := os.Lstat(path); err == nil {
		path = filepath.Join(dir, utils.SanitizeFilename(f.ID)+"_"+name)
	}

	tmp, err := os.CreateTemp(dir, ".download-*")
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrTransfer, err)
	}
	n, err := store.Download(ctx, f, tmp)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err == nil && f.Size >= 0 && n != f.Size {
		err = fmt.Errorf("size mismatch: received %d bytes, expected %d", n, f.Size)
	}
	if err == nil {
		err = os.Rename(tmp.Name(), path)
	}
	if err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("%w: download %s: %w", ErrTransfer, f.Name, err)
	}
	return path, nil
}

func (o *SyncOrchestrator) upload(ctx context.Context, store storage.Store, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTransfer, err)
	}
	defer f.Close()

	name := filepath.Base(path)
	if _, err := store.Upload(ctx, o.config.DestFolderID, name, utils.ContentType(name), f); err != nil {
		return fmt.Errorf("%w: upload %s: %w", ErrTransfer, name, err)
	}
	return nil
}
