package s1st2md

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// OptionStore persists per-thread export options in the user data directory,
// so repeated exports of the same thread reuse the last settings.
type OptionStore struct {
	rootDir string
}

// NewOptionStore creates an option store under the given root directory.
func NewOptionStore(rootDir string) *OptionStore {
	return &OptionStore{rootDir: rootDir}
}

// RootDir returns the root directory of the store.
func (s *OptionStore) RootDir() string {
	return s.rootDir
}

func (s *OptionStore) optionsPath(tid string) string {
	return filepath.Join(s.rootDir, tid, "options.toml")
}

// Load returns the stored options for one thread id. A missing file yields
// the defaults, not an error.
func (s *OptionStore) Load(tid string) (ExportOptions, error) {
	opts := DefaultExportOptions()
	if s == nil || s.rootDir == "" {
		return opts, fmt.Errorf("option store is not initialized")
	}
	if tid == "" {
		return opts, fmt.Errorf("tid is empty")
	}

	data, err := os.ReadFile(s.optionsPath(tid))
	if err != nil {
		if os.IsNotExist(err) {
			return opts, nil
		}
		return opts, fmt.Errorf("failed to read options from store: %w", err)
	}
	if err := toml.Unmarshal(data, &opts); err != nil {
		return opts, fmt.Errorf("failed to decode options from store: %w", err)
	}
	return opts, nil
}

// Save writes the options for one thread id.
func (s *OptionStore) Save(tid string, opts ExportOptions) error {
	if s == nil || s.rootDir == "" {
		return fmt.Errorf("option store is not initialized")
	}
	if tid == "" {
		return fmt.Errorf("tid is empty")
	}

	dir := filepath.Join(s.rootDir, tid)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create store dir: %w", err)
	}

	data, err := toml.Marshal(opts)
	if err != nil {
		return fmt.Errorf("failed to encode options: %w", err)
	}
	if err := os.WriteFile(s.optionsPath(tid), data, 0644); err != nil {
		return fmt.Errorf("failed to write options to store: %w", err)
	}
	return nil
}
