package reconciler

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cuemby/kiosksync/pkg/events"
	"github.com/cuemby/kiosksync/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDownloader serves bodies from a map and tracks peak concurrency
type fakeDownloader struct {
	mu       sync.Mutex
	bodies   map[string]string
	failures map[string]error
	calls    []string
	inFlight int
	peak     int
	delay    time.Duration
}

func newFakeDownloader(bodies map[string]string) *fakeDownloader {
	return &fakeDownloader{bodies: bodies, failures: map[string]error{}}
}

func (f *fakeDownloader) Download(ctx context.Context, source string) (io.ReadCloser, error) {
	f.mu.Lock()
	f.calls = append(f.calls, source)
	f.inFlight++
	if f.inFlight > f.peak {
		f.peak = f.inFlight
	}
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()

	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	if err, ok := f.failures[source]; ok {
		return nil, err
	}
	body, ok := f.bodies[source]
	if !ok {
		return nil, errors.New("not found: " + source)
	}
	return io.NopCloser(strings.NewReader(body)), nil
}

func (f *fakeDownloader) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []*events.Event
}

func (p *recordingPublisher) Publish(event *events.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *recordingPublisher) Types() []events.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []events.EventType
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

func listFiles(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)

	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func threeAssets() []types.Asset {
	return []types.Asset{
		{Filename: "a.jpg", Path: "/a"},
		{Filename: "b.jpg", Path: "/b"},
		{Filename: "c.jpg", URL: "https://cdn.example.com/c"},
	}
}

func TestReconcileEmptyCache(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "42")
	dl := newFakeDownloader(map[string]string{
		"/a":                        "alpha",
		"/b":                        "bravo",
		"https://cdn.example.com/c": "charlie",
	})
	rec := NewReconciler(dl, Config{})

	result, err := rec.Reconcile(context.Background(), threeAssets(), dir)
	require.NoError(t, err)
	require.NoError(t, result.Err())

	assert.Len(t, result.Downloaded, 3)
	assert.Empty(t, result.Evicted)
	assert.Equal(t, []string{"a.jpg", "b.jpg", "c.jpg"}, listFiles(t, dir))

	data, err := os.ReadFile(filepath.Join(dir, "c.jpg"))
	require.NoError(t, err)
	assert.Equal(t, "charlie", string(data))

	for _, d := range result.Downloaded {
		assert.True(t, strings.HasPrefix(d.Digest, "sha256:"), d.Digest)
		assert.Positive(t, d.Size)
	}
}

func TestReconcileIdempotent(t *testing.T) {
	dir := t.TempDir()
	dl := newFakeDownloader(map[string]string{
		"/a":                        "alpha",
		"/b":                        "bravo",
		"https://cdn.example.com/c": "charlie",
	})
	rec := NewReconciler(dl, Config{})

	_, err := rec.Reconcile(context.Background(), threeAssets(), dir)
	require.NoError(t, err)
	require.Len(t, dl.Calls(), 3)

	result, err := rec.Reconcile(context.Background(), threeAssets(), dir)
	require.NoError(t, err)

	assert.Len(t, dl.Calls(), 3, "second pass must not download")
	assert.Empty(t, result.Downloaded)
	assert.Empty(t, result.Evicted)
	assert.ElementsMatch(t, []string{"a.jpg", "b.jpg", "c.jpg"}, result.Present)
}

func TestReconcileEvictsUnlistedFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.jpg"), "alpha")
	writeFile(t, filepath.Join(dir, "stale.jpg"), "old")
	writeFile(t, filepath.Join(dir, ".download-123"), "partial")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "thumbs"), 0755))
	writeFile(t, filepath.Join(dir, "thumbs", "x.jpg"), "nested")

	pub := &recordingPublisher{}
	rec := NewReconciler(newFakeDownloader(nil), Config{Events: pub})

	result, err := rec.Reconcile(context.Background(), []types.Asset{{Filename: "a.jpg", Path: "/a"}}, dir)
	require.NoError(t, err)
	require.NoError(t, result.Err())

	assert.ElementsMatch(t, []string{".download-123", "stale.jpg"}, result.Evicted)
	assert.Equal(t, []string{"a.jpg"}, listFiles(t, dir))

	// sub-directories are left alone
	_, err = os.Stat(filepath.Join(dir, "thumbs", "x.jpg"))
	assert.NoError(t, err)

	assert.Contains(t, pub.Types(), events.EventAssetEvicted)
}

func TestReconcileEmptyManifestEvictsEverything(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.jpg"), "alpha")
	writeFile(t, filepath.Join(dir, "b.jpg"), "bravo")

	rec := NewReconciler(newFakeDownloader(nil), Config{})
	result, err := rec.Reconcile(context.Background(), []types.Asset{}, dir)
	require.NoError(t, err)

	assert.Len(t, result.Evicted, 2)
	assert.Empty(t, listFiles(t, dir))
}

func TestReconcileDuplicateFilenameLastWins(t *testing.T) {
	dir := t.TempDir()
	dl := newFakeDownloader(map[string]string{"/x": "first", "/y": "second"})
	rec := NewReconciler(dl, Config{})

	assets := []types.Asset{
		{Filename: "a.jpg", Path: "/x"},
		{Filename: "a.jpg", Path: "/y"},
	}
	result, err := rec.Reconcile(context.Background(), assets, dir)
	require.NoError(t, err)
	require.NoError(t, result.Err())

	assert.Equal(t, []string{"/y"}, dl.Calls())
	assert.Equal(t, []string{"a.jpg"}, listFiles(t, dir))

	data, err := os.ReadFile(filepath.Join(dir, "a.jpg"))
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))
}

func TestReconcileFailedDownload(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "stale.jpg"), "old")

	dl := newFakeDownloader(map[string]string{
		"/a":                        "alpha",
		"https://cdn.example.com/c": "charlie",
	})
	dl.failures["/b"] = errors.New("connection reset")
	pub := &recordingPublisher{}
	rec := NewReconciler(dl, Config{Events: pub})

	result, err := rec.Reconcile(context.Background(), threeAssets(), dir)
	require.NoError(t, err)

	require.Len(t, result.Failed, 1)
	assert.Equal(t, "b.jpg", result.Failed[0].Filename)
	assert.Equal(t, OpDownload, result.Failed[0].Op)
	assert.ErrorContains(t, result.Err(), "connection reset")

	// the other downloads and the eviction still happened, and nothing
	// was left behind for b.jpg
	assert.Len(t, result.Downloaded, 2)
	assert.Equal(t, []string{"stale.jpg"}, result.Evicted)
	assert.Equal(t, []string{"a.jpg", "c.jpg"}, listFiles(t, dir))

	assert.Contains(t, pub.Types(), events.EventAssetFailed)

	// the next pass retries only the missing asset
	delete(dl.failures, "/b")
	dl.bodies["/b"] = "bravo"
	result, err = rec.Reconcile(context.Background(), threeAssets(), dir)
	require.NoError(t, err)
	require.NoError(t, result.Err())
	require.Len(t, result.Downloaded, 1)
	assert.Equal(t, "b.jpg", result.Downloaded[0].Asset.Filename)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("stream cut") }

type truncatingDownloader struct{}

func (truncatingDownloader) Download(ctx context.Context, source string) (io.ReadCloser, error) {
	return io.NopCloser(io.MultiReader(strings.NewReader("partial"), failingReader{})), nil
}

func TestReconcileTruncatedBodyLeavesNoFile(t *testing.T) {
	dir := t.TempDir()
	rec := NewReconciler(truncatingDownloader{}, Config{})

	result, err := rec.Reconcile(context.Background(), []types.Asset{{Filename: "a.jpg", Path: "/a"}}, dir)
	require.NoError(t, err)

	require.Len(t, result.Failed, 1)
	assert.Empty(t, listFiles(t, dir), "partial body must not be claimed as present")
}

func TestReconcileConcurrencyLimit(t *testing.T) {
	dir := t.TempDir()

	bodies := map[string]string{}
	var assets []types.Asset
	for _, name := range []string{"1", "2", "3", "4", "5", "6", "7", "8", "9", "10"} {
		bodies["/"+name] = name
		assets = append(assets, types.Asset{Filename: name + ".png", Path: "/" + name})
	}
	dl := newFakeDownloader(bodies)
	dl.delay = 20 * time.Millisecond

	rec := NewReconciler(dl, Config{Concurrency: 2})
	result, err := rec.Reconcile(context.Background(), assets, dir)
	require.NoError(t, err)
	require.NoError(t, result.Err())

	assert.Len(t, result.Downloaded, 10)
	assert.LessOrEqual(t, dl.peak, 2)
	assert.Len(t, listFiles(t, dir), 10)
}

func TestReconcileInvalidFilename(t *testing.T) {
	dir := t.TempDir()
	outside := filepath.Join(filepath.Dir(dir), "escaped.jpg")

	dl := newFakeDownloader(map[string]string{"/a": "alpha", "/evil": "evil"})
	rec := NewReconciler(dl, Config{})

	assets := []types.Asset{
		{Filename: "a.jpg", Path: "/a"},
		{Filename: "../escaped.jpg", Path: "/evil"},
		{Filename: "", Path: "/evil"},
	}
	result, err := rec.Reconcile(context.Background(), assets, dir)
	require.NoError(t, err)

	require.Len(t, result.Failed, 2)
	for _, f := range result.Failed {
		assert.ErrorIs(t, f, ErrInvalidFilename)
	}
	assert.Equal(t, []string{"/a"}, dl.Calls())

	_, err = os.Stat(outside)
	assert.True(t, os.IsNotExist(err))
}

func TestReconcileCacheDirUnusable(t *testing.T) {
	base := t.TempDir()
	blocker := filepath.Join(base, "file")
	writeFile(t, blocker, "x")

	rec := NewReconciler(newFakeDownloader(nil), Config{})
	_, err := rec.Reconcile(context.Background(), threeAssets(), filepath.Join(blocker, "cache"))
	assert.Error(t, err)
}

func TestPlan(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.jpg"), "alpha")
	writeFile(t, filepath.Join(dir, "old.jpg"), "old")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0755))

	rec := NewReconciler(newFakeDownloader(nil), Config{})
	plan, err := rec.Plan([]types.Asset{
		{Filename: "a.jpg", Path: "/a"},
		{Filename: "b.jpg", Path: "/b1"},
		{Filename: "b.jpg", URL: "https://cdn.example.com/b2"},
		{Filename: "bad/name.jpg", Path: "/x"},
	}, dir)
	require.NoError(t, err)

	assert.Equal(t, map[string]string{
		"a.jpg": "/a",
		"b.jpg": "https://cdn.example.com/b2",
	}, plan.Want)
	assert.Equal(t, []types.Asset{{Filename: "b.jpg", Path: "https://cdn.example.com/b2"}}, plan.Download)
	assert.Equal(t, []string{"a.jpg"}, plan.Present)
	assert.Equal(t, []string{"old.jpg"}, plan.Evict)
	assert.Equal(t, []string{"bad/name.jpg"}, plan.Invalid)

	// planning touches nothing
	assert.Equal(t, []string{"a.jpg", "old.jpg"}, listFiles(t, dir))
}

func TestValidFilename(t *testing.T) {
	tests := []struct {
		name  string
		valid bool
	}{
		{"photo.jpg", true},
		{"clip with spaces.mp4", true},
		{".hidden", true},
		{"", false},
		{".", false},
		{"..", false},
		{"a/b.jpg", false},
		{`a\b.jpg`, false},
		{"nul\x00.jpg", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.valid, ValidFilename(tt.name))
		})
	}
}
