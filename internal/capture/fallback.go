package capture

import (
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
)

// FallbackLibrary serves stock images when the camera is absent. Samples
// are copies of a library file, never the file itself, so post-analysis
// deletion cannot drain the library.
type FallbackLibrary struct {
	dir string
}

// NewFallbackLibrary creates a library over the given directory
func NewFallbackLibrary(dir string) *FallbackLibrary {
	return &FallbackLibrary{dir: dir}
}

// Pick returns the path of one randomly chosen stock image.
func (l *FallbackLibrary) Pick() (string, error) {
	matches, err := filepath.Glob(filepath.Join(l.dir, "*.jpg"))
	if err != nil {
		return "", fmt.Errorf("failed to list fallback images: %w", err)
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("no fallback images in %s", l.dir)
	}
	return matches[rand.Intn(len(matches))], nil
}

// CopyTo duplicates the stock image at src into dst.
func (l *FallbackLibrary) CopyTo(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open fallback image: %w", err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create fallback copy: %w", err)
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("failed to copy fallback image: %w", err)
	}
	return out.Close()
}
