package files

import (
	"fmt"
	"os"
	"path/filepath"
)

// FindUp looks for the first of names in dir and then in each parent directory.
// It returns "" when none is found before the filesystem root.
func FindUp(dir string, names ...string) (string, error) {
	curDir := dir
	for {
		for _, name := range names {
			p := filepath.Join(curDir, name)
			info, err := os.Stat(p)
			if err == nil && !info.IsDir() {
				return p, nil
			}
			if err != nil && !os.IsNotExist(err) {
				return "", fmt.Errorf("checking %s: %w", p, err)
			}
		}
		newDir := filepath.Dir(curDir)
		if newDir == curDir {
			return "", nil
		}
		curDir = newDir
	}
}
