// Package batch renders stored polygon annotations over image files in bulk.
package batch

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ProcessBatch discovers images under paths and renders each one with its
// polygon sidecar.
func ProcessBatch(ctx context.Context, paths []string, config *Config) (*Result, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid batch config: %w", err)
	}

	files, err := discoverImageFiles(paths, config.Recursive, config.IncludePatterns, config.ExcludePatterns)
	if err != nil {
		return nil, fmt.Errorf("failed to discover image files: %w", err)
	}
	if len(files) == 0 {
		return nil, errors.New("no image files found")
	}

	startTime := time.Now()
	results, err := processImagesParallel(ctx, files, config)
	duration := time.Since(startTime)
	if err != nil {
		return nil, fmt.Errorf("batch processing failed: %w", err)
	}

	return &Result{
		Files:       results,
		Duration:    duration,
		WorkerCount: min(config.Workers, len(files)),
	}, nil
}
