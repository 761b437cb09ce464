package repository

import "context"

// SliceRepository stores the synchronized state, one JSON value per slice
type SliceRepository interface {
	GetSlice(ctx context.Context, key string) (string, error)
	LoadSlices(ctx context.Context) (map[string]string, error)
	SaveSlices(ctx context.Context, slices map[string]string) error
}

// SettingsRepository holds local, unsynchronized preferences
type SettingsRepository interface {
	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error
}

// FullRepository combines all repository interfaces
type FullRepository interface {
	SliceRepository
	SettingsRepository
}

// Ensure Repository implements all interfaces
var _ FullRepository = (*Repository)(nil)
