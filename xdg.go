package s1st2md

import (
	"os"
	"path/filepath"
)

// DefaultDataDir resolves where persistent state (the per-thread option
// store and the session token) lives: $XDG_DATA_HOME/<app>, falling back
// to ~/.local/share/<app>.
func DefaultDataDir(app string) string {
	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			// 定位不到用户目录时退回当前目录
			return "."
		}
		dataHome = filepath.Join(home, ".local", "share")
	}
	if app == "" {
		return dataHome
	}
	return filepath.Join(dataHome, app)
}
