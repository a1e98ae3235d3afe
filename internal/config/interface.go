package config

import (
	"context"

	"github.com/vk/burstcluster/internal/graphspec"
)

// Loader is the interface for a format-specific run request loader.
type Loader interface {
	// Load reads every file at the given paths (files or directories) and
	// translates them into one format-agnostic run request.
	Load(ctx context.Context, paths ...string) (*graphspec.RunRequest, error)
}
