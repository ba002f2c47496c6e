package cursormonitor

import (
	"os"
	"path/filepath"
)

// candidateUserDirs returns Cursor's "User" data directory for each
// platform this core supports, probed in the order spec §6 names:
// macOS, Linux, Windows. The first one that exists is used, so a
// single binary works unmodified regardless of which platform it
// actually runs on (e.g. a Linux container mounting a macOS home dir).
func candidateUserDirs() []string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}

	dirs := []string{
		filepath.Join(home, "Library", "Application Support", "Cursor", "User"), // macOS
		filepath.Join(home, ".config", "Cursor", "User"),                        // Linux
	}
	if appData := os.Getenv("APPDATA"); appData != "" {
		dirs = append(dirs, filepath.Join(appData, "Cursor", "User")) // Windows
	}
	return dirs
}

// UserDir returns the first candidate Cursor User directory that
// exists on disk, or "" if none do.
func UserDir() string {
	for _, p := range candidateUserDirs() {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			return p
		}
	}
	return ""
}

// GlobalStoragePath returns the path to the global state.vscdb
// holding cursorDiskKV, under userDir.
func GlobalStoragePath(userDir string) string {
	return filepath.Join(userDir, "globalStorage", "state.vscdb")
}

// WorkspaceStoragePath returns the path to one workspace's
// ItemTable-holding state.vscdb, under userDir.
func WorkspaceStoragePath(userDir, workspaceHash string) string {
	return filepath.Join(userDir, "workspaceStorage", workspaceHash, "state.vscdb")
}
