package deploy

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// FindArtifact locates the deployable archive under workspace. The
// conventional path wins when it exists; otherwise the workspace is searched
// recursively for files with ext and the lexically first match is adopted.
// fallback reports which branch produced the path. No match is not an error:
// the caller decides how to classify an empty result.
func FindArtifact(workspace, conventional, ext string) (path string, fallback bool, err error) {
	want := filepath.Join(workspace, conventional)
	if info, err := os.Stat(want); err == nil && !info.IsDir() {
		return want, false, nil
	}

	var matches []string
	err = filepath.WalkDir(workspace, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if strings.EqualFold(filepath.Ext(p), ext) {
			matches = append(matches, p)
		}
		return nil
	})
	if err != nil {
		return "", false, fmt.Errorf("scan workspace: %w", err)
	}
	if len(matches) == 0 {
		return "", false, nil
	}

	sort.Strings(matches)
	return matches[0], true, nil
}
