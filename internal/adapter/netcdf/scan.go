package netcdf

import (
	"fmt"
	"os"
	"path/filepath"
)

// SmallestFile returns the smallest *.nc file in dir by byte size. Coordinate
// validation only needs the axes, which every catalog file shares, so the
// cheapest file to open is the best reference. Ties break toward the
// lexically first name.
func SmallestFile(dir string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.nc"))
	if err != nil {
		return "", fmt.Errorf("scan %s: %w", dir, err)
	}

	best := ""
	var bestSize int64
	for _, path := range matches {
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			continue
		}
		if best == "" || info.Size() < bestSize {
			best = path
			bestSize = info.Size()
		}
	}
	if best == "" {
		return "", fmt.Errorf("no .nc files in %s", dir)
	}
	return best, nil
}
