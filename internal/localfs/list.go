package localfs

import (
	"os"
	"path/filepath"
	"time"
)

// FileEntry represents a file or directory in the local filesystem.
type FileEntry struct {
	Path    string    // Full path to the file
	Name    string    // Base name of the file
	Size    int64     // Size in bytes (0 for directories)
	IsDir   bool      // True if this is a directory
	ModTime time.Time // Last modification time
}

// ListOptions configures ListDirectory.
type ListOptions struct {
	// IncludeHidden includes entries whose names start with a dot.
	IncludeHidden bool

	// FilesOnly keeps regular files and drops directories, symlinks to
	// directories, devices and the like.
	FilesOnly bool
}

// ListDirectory returns the entries of dir sorted by name. Entries that
// cannot be stat'ed are skipped.
func ListDirectory(dir string, opts ListOptions) ([]FileEntry, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	result := make([]FileEntry, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if !opts.IncludeHidden && IsHiddenName(name) {
			continue
		}

		p := filepath.Join(dir, name)
		// Stat follows symlinks so a link to a media file counts as a file.
		info, err := os.Stat(p)
		if err != nil {
			continue
		}
		if opts.FilesOnly && !info.Mode().IsRegular() {
			continue
		}

		fe := FileEntry{
			Path:    p,
			Name:    name,
			IsDir:   info.IsDir(),
			ModTime: info.ModTime(),
		}
		if !fe.IsDir {
			fe.Size = info.Size()
		}
		result = append(result, fe)
	}
	return result, nil
}
