package geo

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/airbusgeo/godal"

	"github.com/SaferPlaces2023/dpc-retriever/internal/domain"
)

// ConcatRequest selects shapefiles under Src by basename and merges them into
// Out, which defaults to <Src>/<basename of Src>.shp.
type ConcatRequest struct {
	Src       string
	Prefix    string
	Suffix    string
	Contains  string
	Out       string
	RemoveSrc bool
}

// ConcatShapefiles merges every matching shapefile into one. It returns an
// empty path and no error when nothing matches.
func (p *Processor) ConcatShapefiles(ctx context.Context, req ConcatRequest) (string, error) {
	info, err := os.Stat(req.Src)
	if err != nil || !info.IsDir() {
		return "", domain.Invalid("source path %q is not a directory", req.Src)
	}

	out := req.Out
	if out == "" {
		src := filepath.Clean(req.Src)
		out = filepath.Join(src, filepath.Base(src)+".shp")
	}
	if !strings.EqualFold(filepath.Ext(out), ".shp") {
		return "", domain.Invalid("output %q is not a shapefile", out)
	}

	sources, err := findShapefiles(req, out)
	if err != nil {
		return "", err
	}
	if len(sources) == 0 {
		p.logger.Debug("no shapefiles to concatenate", "src", req.Src)
		return "", nil
	}

	err = writeAtomic(out, func(tmp string) error {
		layer := stem(tmp)
		for i, shp := range sources {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := appendShapefile(shp, tmp, layer, i > 0); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		p.metrics.Processed.WithLabelValues("concat", "error").Inc()
		return "", &domain.ProcessingError{Path: out, Err: err}
	}
	p.metrics.Processed.WithLabelValues("concat", "success").Inc()
	p.logger.Debug("shapefiles concatenated", "count", len(sources), "out", out)

	if req.RemoveSrc {
		for _, shp := range sources {
			removeWithSidecars(shp)
		}
		p.logger.Debug("source shapefiles removed", "src", req.Src)
	}
	return out, nil
}

// findShapefiles walks req.Src recursively, skipping out itself.
func findShapefiles(req ConcatRequest, out string) ([]string, error) {
	absOut, _ := filepath.Abs(out)
	var found []string
	err := filepath.WalkDir(req.Src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ".shp") {
			return nil
		}
		if abs, _ := filepath.Abs(path); abs == absOut {
			return nil
		}
		name := filepath.Base(path)
		if req.Prefix != "" && !strings.HasPrefix(name, req.Prefix) {
			return nil
		}
		if req.Suffix != "" && !strings.HasSuffix(name, req.Suffix) {
			return nil
		}
		if req.Contains != "" && !strings.Contains(name, req.Contains) {
			return nil
		}
		found = append(found, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", req.Src, err)
	}
	return found, nil
}

func appendShapefile(src, dst, layer string, appending bool) error {
	ds, err := godal.Open(src, godal.VectorOnly())
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer func() { _ = ds.Close() }()

	sw := []string{"-f", "ESRI Shapefile", "-nln", layer}
	if appending {
		sw = append(sw, "-append", "-addfields")
	}
	merged, err := ds.VectorTranslate(dst, sw)
	if err != nil {
		return fmt.Errorf("merge %s: %w", src, err)
	}
	return merged.Close()
}
