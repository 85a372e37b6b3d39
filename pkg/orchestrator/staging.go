package orchestrator

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/menta2k/helmet-inspector/internal/utils"
)

// StagingPattern names the per-run staging directories
const StagingPattern = "helmet-staging-*"

// WithStagingDir creates a fresh staging directory below base (the system
// temp dir when base is empty), runs fn with it and removes it afterwards.
// Removal happens on every exit path, including a panic in fn. A removal
// failure is logged and does not change the returned error.
func WithStagingDir(base string, logger *zap.SugaredLogger, fn func(dir string) error) error {
	if base != "" {
		if err := utils.EnsureDir(base); err != nil {
			return fmt.Errorf("failed to create staging parent: %w", err)
		}
	}
	dir, err := os.MkdirTemp(base, StagingPattern)
	if err != nil {
		return fmt.Errorf("failed to create staging directory: %w", err)
	}
	logger.Debugw("created staging directory", "dir", dir)

	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			logger.Errorw("failed to remove staging directory", "dir", dir, "error", fmt.Errorf("%w: %w", ErrCleanup, err))
			return
		}
		logger.Debugw("removed staging directory", "dir", dir)
	}()

	return fn(dir)
}
