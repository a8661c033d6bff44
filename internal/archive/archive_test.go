package archive

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SaferPlaces2023/dpc-retriever/internal/catalog"
	"github.com/SaferPlaces2023/dpc-retriever/internal/domain"
	"github.com/SaferPlaces2023/dpc-retriever/internal/lock"
	"github.com/SaferPlaces2023/dpc-retriever/internal/observability"
	"github.com/SaferPlaces2023/dpc-retriever/internal/scratch"
	"github.com/SaferPlaces2023/dpc-retriever/internal/storage"
)

var testDateTime = time.Date(2025, 6, 30, 10, 55, 0, 0, time.UTC)

// flakyStore fails uploads whose local path has one of the listed extensions.
type flakyStore struct {
	storage.ObjectStore
	failExt map[string]bool
}

func (s *flakyStore) Upload(ctx context.Context, localPath, key string) (string, error) {
	if s.failExt[filepath.Ext(localPath)] {
		return "", errors.New("connection reset")
	}
	return s.ObjectStore.Upload(ctx, localPath, key)
}

type recordingNotifier struct {
	mu      sync.Mutex
	records []domain.CatalogRecord
	err     error
}

func (n *recordingNotifier) Notify(_ context.Context, rec domain.CatalogRecord) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.records = append(n.records, rec)
	return n.err
}

type fixture struct {
	service  *Service
	store    storage.ObjectStore
	notifier *recordingNotifier
	metrics  *observability.Metrics
	ws       *scratch.Registry
	bucket   string
}

func newFixture(t *testing.T, failExt ...string) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	metrics := observability.NewMetricsForTesting()
	bucket := t.TempDir()
	local, err := storage.NewLocalStore(bucket)
	require.NoError(t, err)

	var store storage.ObjectStore = local
	if len(failExt) > 0 {
		fs := &flakyStore{ObjectStore: local, failExt: map[string]bool{}}
		for _, e := range failExt {
			fs.failExt[e] = true
		}
		store = fs
	}
	opener := func(context.Context, string, storage.Options) (storage.ObjectStore, error) { return store, nil }

	registrar := catalog.NewRegistrar(lock.NewFileMutex(t.TempDir(), 5*time.Second, logger, metrics), logger, metrics)
	notifier := &recordingNotifier{}
	ws, err := scratch.New(t.TempDir(), logger)
	require.NoError(t, err)
	t.Cleanup(ws.Close)

	return &fixture{
		service:  NewService(opener, storage.Options{}, registrar, notifier, logger, metrics),
		store:    store,
		notifier: notifier,
		metrics:  metrics,
		ws:       ws,
		bucket:   bucket,
	}
}

func product(t *testing.T, code string) domain.Product {
	t.Helper()
	p, ok := domain.LookupProduct(code)
	require.True(t, ok)
	return p
}

func writeFiles(t *testing.T, dir string, names ...string) string {
	t.Helper()
	for _, n := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, n), []byte(n), 0o644))
	}
	return filepath.Join(dir, names[0])
}

func TestStore_RasterWithCatalog(t *testing.T) {
	f := newFixture(t)
	src := writeFiles(t, t.TempDir(), "SRI.tif")

	uri, err := f.service.Store(context.Background(), f.ws, StoreRequest{
		Product:         product(t, "SRI"),
		Path:            src,
		DateTime:        testDateTime,
		Bucket:          f.bucket,
		RegisterCatalog: true,
	})
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(uri, "data/year=2025/month=6/day=30/product=SRI/SRI.tif"), uri)

	records, err := catalog.Read(context.Background(), f.store, f.ws, testDateTime, "SRI")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, uri, records[0].URI)

	require.Len(t, f.notifier.records, 1)
	assert.Equal(t, uri, f.notifier.records[0].URI)
}

func TestStore_WithoutCatalog(t *testing.T) {
	f := newFixture(t)
	src := writeFiles(t, t.TempDir(), "SRI.tif")

	_, err := f.service.Store(context.Background(), f.ws, StoreRequest{Product: product(t, "SRI"), Path: src, DateTime: testDateTime, Bucket: f.bucket})
	require.NoError(t, err)

	ok, err := f.store.Exists(context.Background(), domain.CatalogKey(testDateTime, "SRI"))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, f.notifier.records)
}

func TestStore_ShapefileSidecars(t *testing.T) {
	f := newFixture(t)
	src := writeFiles(t, t.TempDir(), "30-06-2025-10-55.shp", "30-06-2025-10-55.shx", "30-06-2025-10-55.dbf", "30-06-2025-10-55.prj")

	_, err := f.service.Store(context.Background(), f.ws, StoreRequest{Product: product(t, "LTG"), Path: src, DateTime: testDateTime, Bucket: f.bucket})
	require.NoError(t, err)

	for _, ext := range []string{".shp", ".shx", ".dbf", ".prj"} {
		ok, err := f.store.Exists(context.Background(), domain.DataKey(testDateTime, "LTG", "30-06-2025-10-55"+ext))
		require.NoError(t, err)
		assert.True(t, ok, ext)
	}
	assert.Equal(t, 4.0, testutil.ToFloat64(f.metrics.Uploads.WithLabelValues("success")))
}

func TestStore_PartialSidecarFailure(t *testing.T) {
	f := newFixture(t, ".dbf")
	dir := t.TempDir()
	src := writeFiles(t, dir, "LTG.shp", "LTG.shx", "LTG.dbf", "LTG.prj", "LTG.cpg")

	_, err := f.service.Store(context.Background(), f.ws, StoreRequest{
		Product:         product(t, "LTG"),
		Path:            src,
		DateTime:        testDateTime,
		Bucket:          f.bucket,
		RegisterCatalog: true,
	})
	var serr *domain.StorageError
	require.ErrorAs(t, err, &serr)
	assert.ErrorIs(t, err, domain.ErrStorage)
	assert.NotErrorIs(t, err, domain.ErrCatalog)
	assert.Equal(t, filepath.Join(dir, "LTG.dbf"), serr.Path)
	assert.Contains(t, serr.URI, "LTG.dbf")

	// The remaining files were still transferred.
	ok, err := f.store.Exists(context.Background(), domain.DataKey(testDateTime, "LTG", "LTG.cpg"))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, f.notifier.records)
}

func TestStore_MissingMandatorySidecar(t *testing.T) {
	f := newFixture(t)
	src := writeFiles(t, t.TempDir(), "LTG.shp", "LTG.shx")

	_, err := f.service.Store(context.Background(), f.ws, StoreRequest{Product: product(t, "LTG"), Path: src, DateTime: testDateTime, Bucket: f.bucket})
	assert.ErrorIs(t, err, domain.ErrStorage)
}

func TestStore_ShapefileWithoutCRS(t *testing.T) {
	f := newFixture(t)
	dir := t.TempDir()
	src := writeFiles(t, dir, "30-06-2025-10-50.shp", "30-06-2025-10-50.shx", "30-06-2025-10-50.dbf")

	_, err := f.service.Store(context.Background(), f.ws, StoreRequest{
		Product:         product(t, "LTG"),
		Path:            src,
		DateTime:        testDateTime,
		Bucket:          f.bucket,
		RegisterCatalog: true,
	})
	var serr *domain.StorageError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, filepath.Join(dir, "30-06-2025-10-50.prj"), serr.Path)

	ok, err := f.store.Exists(context.Background(), domain.CatalogKey(testDateTime, "LTG"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_NotificationFailureIsIgnored(t *testing.T) {
	f := newFixture(t)
	f.notifier.err = errors.New("broker down")
	src := writeFiles(t, t.TempDir(), "SRI.tif")

	_, err := f.service.Store(context.Background(), f.ws, StoreRequest{
		Product:         product(t, "SRI"),
		Path:            src,
		DateTime:        testDateTime,
		Bucket:          f.bucket,
		RegisterCatalog: true,
	})
	assert.NoError(t, err)
}

func TestStore_ConcurrentSamePartition(t *testing.T) {
	f := newFixture(t)
	dir := t.TempDir()
	times := []time.Time{testDateTime, testDateTime.Add(-5 * time.Minute)}

	var wg sync.WaitGroup
	for i, ts := range times {
		src := writeFiles(t, dir, ts.Format("1504")+".tif")
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.service.Store(context.Background(), f.ws, StoreRequest{
				Product:         product(t, "SRI"),
				Path:            src,
				DateTime:        times[i],
				Bucket:          f.bucket,
				RegisterCatalog: true,
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	records, err := catalog.Read(context.Background(), f.store, f.ws, testDateTime, "SRI")
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestUpload(t *testing.T) {
	f := newFixture(t)
	src := writeFiles(t, t.TempDir(), "DPC__SRI__2025-06-30T11-55-00.tif")

	uri, err := f.service.Upload(context.Background(), f.bucket, src)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(uri, "/DPC__SRI__2025-06-30T11-55-00.tif"), uri)

	ok, err := f.store.Exists(context.Background(), "DPC__SRI__2025-06-30T11-55-00.tif")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestUpload_Failure(t *testing.T) {
	f := newFixture(t, ".tif")
	src := writeFiles(t, t.TempDir(), "out.tif")

	_, err := f.service.Upload(context.Background(), f.bucket, src)
	var serr *domain.StorageError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, src, serr.Path)
}
