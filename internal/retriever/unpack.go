package retriever

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/zip"
)

// ShapefileLayout names the shapefile inside a vector archive after its timestamp.
const ShapefileLayout = "02-01-2006-15-04"

// unpack extracts archive into a sibling directory named after its stem and
// returns the shapefile expected for t.
func unpack(archive string, t time.Time, ws Workspace) (string, error) {
	dest := strings.TrimSuffix(archive, filepath.Ext(archive))
	if err := extractZip(archive, dest); err != nil {
		return "", err
	}

	shp := filepath.Join(dest, t.UTC().Format(ShapefileLayout)+".shp")
	if _, err := os.Stat(shp); err != nil {
		return "", fmt.Errorf("archive %s has no %s: %w", filepath.Base(archive), filepath.Base(shp), err)
	}
	ws.Track(shp)
	return shp, nil
}

func extractZip(archive, dest string) error {
	zr, err := zip.OpenReader(archive)
	if err != nil {
		return fmt.Errorf("open archive %s: %w", archive, err)
	}
	defer zr.Close()

	clean := filepath.Clean(dest)
	root := clean + string(os.PathSeparator)
	for _, f := range zr.File {
		target := filepath.Join(dest, f.Name)
		if target != clean && !strings.HasPrefix(target, root) {
			return fmt.Errorf("archive %s: entry %q escapes destination", archive, f.Name)
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("create %s: %w", target, err)
			}
			continue
		}
		if err := extractFile(f, target); err != nil {
			return err
		}
	}
	return nil
}

func extractFile(f *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(target), err)
	}
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("open entry %s: %w", f.Name, err)
	}
	defer rc.Close()

	out, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("create %s: %w", target, err)
	}
	if _, err := io.Copy(out, rc); err != nil {
		_ = out.Close()
		return fmt.Errorf("extract %s: %w", f.Name, err)
	}
	return out.Close()
}
