package watcher

import (
	"os"
	"path/filepath"
	"strings"
	"time"
)

// SessionFile describes one discovered session log.
type SessionFile struct {
	SessionID  string
	Path       string
	WorkingDir string
	ModTime    time.Time
	Size       int64
}

// SessionIDFromPath derives the stable session id from a log path. The
// filename-based id survives in-file sessionId changes across resumes.
func SessionIDFromPath(path string) string {
	return strings.TrimSuffix(filepath.Base(path), ".jsonl")
}

// DiscoverSessions scans root (e.g. ~/.claude/projects) for session JSONL
// files modified within the given window, newest first left to the caller.
func DiscoverSessions(root string, within time.Duration) ([]SessionFile, error) {
	projectEntries, err := os.ReadDir(root)
	if err != nil {
		return nil, err
	}

	cutoff := time.Now().Add(-within)
	var results []SessionFile

	for _, projEntry := range projectEntries {
		if !projEntry.IsDir() {
			continue
		}
		projPath := filepath.Join(root, projEntry.Name())
		files, err := os.ReadDir(projPath)
		if err != nil {
			continue
		}
		for _, f := range files {
			if f.IsDir() || !strings.HasSuffix(f.Name(), ".jsonl") {
				continue
			}
			info, err := f.Info()
			if err != nil {
				continue
			}
			if within > 0 && info.ModTime().Before(cutoff) {
				continue
			}
			path := filepath.Join(projPath, f.Name())
			results = append(results, SessionFile{
				SessionID:  SessionIDFromPath(path),
				Path:       path,
				WorkingDir: DecodeProjectPath(projEntry.Name()),
				ModTime:    info.ModTime(),
				Size:       info.Size(),
			})
		}
	}

	return results, nil
}

// DefaultSessionRoot returns the Claude Code projects directory.
func DefaultSessionRoot() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".claude", "projects")
}

// DecodeProjectPath reverses the project-directory encoding (slashes
// replaced by dashes) back into a working directory. The encoding is
// ambiguous for directories whose names contain dashes, so candidates are
// checked against the filesystem; the basename is the best-effort fallback.
func DecodeProjectPath(encoded string) string {
	if !strings.HasPrefix(encoded, "-") {
		return encoded
	}

	candidate := strings.ReplaceAll(encoded, "-", "/")
	if _, err := os.Stat(candidate); err == nil {
		return candidate
	}

	parts := strings.Split(encoded[1:], "-")
	for numSlashes := len(parts) - 1; numSlashes > 0; numSlashes-- {
		candidate := "/" + strings.Join(parts[:numSlashes], "/")
		if numSlashes < len(parts) {
			candidate = candidate + "/" + strings.Join(parts[numSlashes:], "-")
		}
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}

	if len(parts) > 2 {
		return strings.Join(parts[2:], "-")
	}
	if len(parts) > 0 {
		return parts[len(parts)-1]
	}
	return encoded
}
