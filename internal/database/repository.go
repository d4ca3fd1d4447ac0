package database

import (
	"context"

	"github.com/flowpbx/voiceswitch/internal/directory"
)

// SettingsRepository manages key-value switch metadata.
type SettingsRepository interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	GetAll(ctx context.Context) (map[string]string, error)
}

// DirectoryRepository persists the facility tree consoles are configured
// from. Replace swaps the whole tree atomically; Load returns nil when no
// directory has been stored yet.
type DirectoryRepository interface {
	Replace(ctx context.Context, root *directory.Facility) error
	Load(ctx context.Context) (*directory.Facility, error)
}

// Settings keys written by the server.
const (
	SettingDirectorySource    = "directory.source"
	SettingDirectoryUpdatedAt = "directory.updated_at"
)
