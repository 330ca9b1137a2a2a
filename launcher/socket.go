package launcher

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// LinkSocket makes the display socket actual reachable as name, both inside runtimeDir.
// Clients are always pointed at name, whatever socket the display ended up with.
// The returned func removes the link again
func LinkSocket(runtimeDir, actual, name string) (func(), error) {
	if name == "" || name == actual {
		return func() {}, nil
	}
	link := filepath.Join(runtimeDir, name)

	info, err := os.Lstat(link)
	switch {
	case err == nil && info.Mode()&fs.ModeSymlink == 0:
		return nil, fmt.Errorf("%s exists and is not a link, another compositor may be using it", link)
	case err == nil:
		// Left behind by an earlier run
		if err := os.Remove(link); err != nil {
			return nil, fmt.Errorf("failed to remove stale socket link %s: %w", link, err)
		}
	case !errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("failed to check socket link %s: %w", link, err)
	}

	if err := os.Symlink(actual, link); err != nil {
		return nil, fmt.Errorf("failed to link socket %s to %s: %w", link, actual, err)
	}
	return func() { _ = os.Remove(link) }, nil
}
