package checkpoint

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/slok/stager/internal/model"
)

// MatchGlob reports whether the slash separated name matches pattern.
// `*` and `?` never match a slash, `**` as a full segment matches any number
// of segments, including none. Dotfiles are matched like any other file.
func MatchGlob(pattern, name string) (bool, error) {
	if _, err := path.Match(strings.ReplaceAll(pattern, "**", "*"), ""); err != nil {
		return false, fmt.Errorf("invalid glob %q: %w", pattern, model.ErrNotValid)
	}
	return matchSegments(strings.Split(pattern, "/"), strings.Split(name, "/")), nil
}

func matchSegments(pattern, name []string) bool {
	for len(pattern) > 0 {
		if pattern[0] == "**" {
			// Collapse consecutive `**`.
			for len(pattern) > 1 && pattern[1] == "**" {
				pattern = pattern[1:]
			}
			if len(pattern) == 1 {
				return true
			}
			for i := 0; i <= len(name); i++ {
				if matchSegments(pattern[1:], name[i:]) {
					return true
				}
			}
			return false
		}

		if len(name) == 0 {
			return false
		}
		ok, err := path.Match(pattern[0], name[0])
		if err != nil || !ok {
			return false
		}
		pattern, name = pattern[1:], name[1:]
	}

	return len(name) == 0
}

// globBase returns the leading segments of the pattern without wildcards,
// the walk starts there.
func globBase(pattern string) string {
	segments := strings.Split(pattern, "/")
	base := make([]string, 0, len(segments))
	for _, s := range segments[:len(segments)-1] {
		if strings.ContainsAny(s, "*?[\\") {
			break
		}
		base = append(base, s)
	}
	return strings.Join(base, "/")
}

// matchesFileOrParent reports whether the glob matches the file or any of
// its parent directories, a matched directory selects all its files.
func matchesFileOrParent(glob, rel string) bool {
	for p := rel; p != "." && p != "/" && p != ""; p = path.Dir(p) {
		if ok, _ := MatchGlob(glob, p); ok {
			return true
		}
	}
	return false
}

// FindFiles returns the regular files under rootDir matching the glob, as
// sorted slash separated paths relative to rootDir. A glob matching a
// directory selects it recursively. The glob can be
// relative to rootDir or absolute under rootDir.
func FindFiles(rootDir, glob string) ([]string, error) {
	if rootDir == "" {
		rootDir = "."
	}
	if filepath.IsAbs(glob) {
		rel, err := filepath.Rel(rootDir, glob)
		if err != nil || strings.HasPrefix(rel, "..") {
			return nil, fmt.Errorf("glob %q is not under %q: %w", glob, rootDir, model.ErrNotValid)
		}
		glob = rel
	}
	glob = strings.TrimPrefix(filepath.ToSlash(glob), "./")
	if glob == "" {
		return nil, fmt.Errorf("glob is required: %w", model.ErrNotValid)
	}
	if _, err := MatchGlob(glob, ""); err != nil {
		return nil, err
	}

	start := filepath.Join(rootDir, filepath.FromSlash(globBase(glob)))
	if _, err := os.Stat(rootDir); err != nil {
		return nil, fmt.Errorf("could not read root dir: %w", err)
	}

	var files []string
	err := filepath.WalkDir(start, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == start && errors.Is(err, fs.ErrNotExist) {
				return fs.SkipAll
			}
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(rootDir, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if matchesFileOrParent(glob, rel) {
			files = append(files, rel)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("could not walk %q: %w", start, err)
	}

	sort.Strings(files)
	return files, nil
}
