package mock

import (
	"context"
	"sync"

	"github.com/abrezinsky/rallyoverlay/internal/repository"
)

// Repository wraps a real repository and allows injecting errors for testing.
// This provides a flexible way to test error paths without complex database manipulation.
//
// Usage:
//
//	realRepo := testutil.NewTestRepository(t)
//	mockRepo := mock.NewRepository(realRepo)
//	mockRepo.SaveSlicesError = errors.New("disk full")
//	st, _ := store.New(ctx, log, mockRepo, clock)
//	_, err := st.AddPilot(ctx, store.PilotInput{Name: "Ogier"})
//	// err will now contain the injected error
type Repository struct {
	repository.FullRepository

	// ===== Slice Errors =====
	GetSliceError   error
	LoadSlicesError error
	SaveSlicesError error

	// ===== Settings Errors =====
	GetSettingError error
	SetSettingError error

	mu        sync.Mutex
	saveCalls int
	savedKeys []string
}

// NewRepository creates a mock repository wrapping a real one
func NewRepository(real repository.FullRepository) *Repository {
	return &Repository{
		FullRepository: real,
	}
}

// SaveCalls returns how many times SaveSlices was called
func (m *Repository) SaveCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveCalls
}

// SavedKeys returns the slice keys passed to the last SaveSlices call
func (m *Repository) SavedKeys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.savedKeys...)
}

// ===== Slice Methods =====

func (m *Repository) GetSlice(ctx context.Context, key string) (string, error) {
	if m.GetSliceError != nil {
		return "", m.GetSliceError
	}
	return m.FullRepository.GetSlice(ctx, key)
}

func (m *Repository) LoadSlices(ctx context.Context) (map[string]string, error) {
	if m.LoadSlicesError != nil {
		return nil, m.LoadSlicesError
	}
	return m.FullRepository.LoadSlices(ctx)
}

func (m *Repository) SaveSlices(ctx context.Context, slices map[string]string) error {
	m.mu.Lock()
	m.saveCalls++
	m.savedKeys = m.savedKeys[:0]
	for k := range slices {
		m.savedKeys = append(m.savedKeys, k)
	}
	m.mu.Unlock()

	if m.SaveSlicesError != nil {
		return m.SaveSlicesError
	}
	return m.FullRepository.SaveSlices(ctx, slices)
}

// ===== Settings Methods =====

func (m *Repository) GetSetting(ctx context.Context, key string) (string, error) {
	if m.GetSettingError != nil {
		return "", m.GetSettingError
	}
	return m.FullRepository.GetSetting(ctx, key)
}

func (m *Repository) SetSetting(ctx context.Context, key, value string) error {
	if m.SetSettingError != nil {
		return m.SetSettingError
	}
	return m.FullRepository.SetSetting(ctx, key, value)
}
