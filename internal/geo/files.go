package geo

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/SaferPlaces2023/dpc-retriever/internal/domain"
)

// writeAtomic lets write produce a sibling temporary file and then renames
// it, with any shapefile sidecars, over dest. dest may be the input itself.
func writeAtomic(dest string, write func(tmp string) error) error {
	ext := filepath.Ext(dest)
	tmp := strings.TrimSuffix(dest, ext) + "_tmp" + uuid.NewString()[:8] + ext

	if err := write(tmp); err != nil {
		removeWithSidecars(tmp)
		return err
	}

	removeWithSidecars(dest)
	if err := os.Rename(tmp, dest); err != nil {
		removeWithSidecars(tmp)
		return fmt.Errorf("rename %s: %w", tmp, err)
	}
	destSidecars := domain.Sidecars(dest)
	for i, sc := range domain.Sidecars(tmp) {
		if _, err := os.Stat(sc); err != nil {
			continue
		}
		if err := os.Rename(sc, destSidecars[i]); err != nil {
			return fmt.Errorf("rename %s: %w", sc, err)
		}
	}
	if _, err := os.Stat(tmp + ".aux.xml"); err == nil {
		if err := os.Rename(tmp+".aux.xml", dest+".aux.xml"); err != nil {
			return fmt.Errorf("rename %s.aux.xml: %w", tmp, err)
		}
	}
	return nil
}

// removeWithSidecars deletes p and its sidecars, ignoring missing files.
func removeWithSidecars(p string) {
	for _, f := range append([]string{p, p + ".aux.xml"}, domain.Sidecars(p)...) {
		_ = os.Remove(f)
	}
}

// moveFile renames src to dst, copying when they sit on different filesystems.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("move %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("move %s: %w", src, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("move %s: %w", src, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("move %s: %w", src, err)
	}
	return os.Remove(src)
}
