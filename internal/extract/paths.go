package extract

import (
	"os"
	"path/filepath"
	"strings"

	"ragchat/internal/domain"
)

// ReadPaths expands each pattern as a glob (falling back to the literal path)
// and reads the matching regular files. Unreadable paths are reported as
// skipped instead of failing the whole upload.
func ReadPaths(patterns []string) ([]domain.RawFile, []Skipped) {
	var files []domain.RawFile
	var skipped []Skipped
	seen := map[string]struct{}{}
	for _, p := range patterns {
		p = expandHome(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		matches, _ := filepath.Glob(p)
		if matches == nil {
			matches = []string{p}
		}
		for _, m := range matches {
			if _, dup := seen[m]; dup {
				continue
			}
			seen[m] = struct{}{}
			info, err := os.Stat(m)
			if err != nil {
				skipped = append(skipped, Skipped{Name: m, Reason: "not found"})
				continue
			}
			if info.IsDir() {
				skipped = append(skipped, Skipped{Name: m, Reason: "is a directory"})
				continue
			}
			data, err := os.ReadFile(m)
			if err != nil {
				skipped = append(skipped, Skipped{Name: m, Reason: "unreadable"})
				continue
			}
			files = append(files, domain.RawFile{Name: m, Data: data})
		}
	}
	return files, skipped
}

func expandHome(p string) string {
	if !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, p[2:])
}
