// Package walker builds the current File Metadata set for a sender's
// source tree: a plain recursive walk with hidden-entry exclusion and
// an optional .diodeinclude gitignore-syntax allow-list.
package walker

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	gitignore "github.com/sabhiram/go-gitignore"

	"diodesync/internal/snapshot"
)

// IncludeFileName is the allow-list file consulted at the root of a
// sync tree. When present, only files it matches are walked; when
// absent, every non-hidden file is included.
const IncludeFileName = ".diodeinclude"

// Walk collects a File Metadata tuple for every file under root that
// survives hidden-entry exclusion and the optional .diodeinclude
// allow-list.
func Walk(root string) (snapshot.Set, error) {
	matcher, err := loadIncludeMatcher(root)
	if err != nil {
		return nil, err
	}

	var metas []snapshot.FileMeta
	err = filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if path == root {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return fmt.Errorf("walker: relativize %s: %w", path, err)
		}

		if hasHiddenComponent(rel) {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if info.IsDir() {
			return nil
		}

		if matcher != nil && !matcher.MatchesPath(rel) {
			return nil
		}

		metas = append(metas, snapshot.FileMeta{
			RelPath: filepath.ToSlash(rel),
			Size:    info.Size(),
			ModTime: info.ModTime().UTC(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walker: walk %s: %w", root, err)
	}

	return snapshot.NewSet(metas), nil
}

// loadIncludeMatcher compiles .diodeinclude at root, if present. Its
// absence is not an error: the caller then includes everything that
// survives hidden-entry filtering.
func loadIncludeMatcher(root string) (*gitignore.GitIgnore, error) {
	path := filepath.Join(root, IncludeFileName)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("walker: stat %s: %w", path, err)
	}
	matcher, err := gitignore.CompileIgnoreFile(path)
	if err != nil {
		return nil, fmt.Errorf("walker: parse %s: %w", path, err)
	}
	return matcher, nil
}

// hasHiddenComponent reports whether any path component (after the
// root) starts with a dot, mirroring the sender's "name starts with
// '.' is hidden" rule for every directory level, not just the leaf.
func hasHiddenComponent(rel string) bool {
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if strings.HasPrefix(part, ".") {
			return true
		}
	}
	return false
}
