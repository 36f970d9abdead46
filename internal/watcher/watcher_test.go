package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mechvault/mechvault/internal/bom"
	"github.com/mechvault/mechvault/internal/classify"
	"github.com/mechvault/mechvault/internal/registry"
	"github.com/mechvault/mechvault/internal/storage"
)

type fixture struct {
	watcher *Watcher
	runner  *ExtractRunner
	store   *storage.SQLiteStore
	watch   string
	data    string
}

func setupWatcher(t *testing.T) *fixture {
	store, err := storage.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	reg := registry.New(store, nil)
	extractor := bom.NewExtractor(store, nil)
	runner, err := NewExtractRunner(extractor, nil, 1, 2, time.Millisecond)
	require.NoError(t, err)
	t.Cleanup(runner.Release)

	root := t.TempDir()
	watch := filepath.Join(root, "dropbox")
	data := filepath.Join(root, "vault")
	require.NoError(t, os.MkdirAll(watch, 0o755))
	require.NoError(t, os.MkdirAll(data, 0o755))

	w := New(Config{
		WatchDir:  watch,
		DataDir:   data,
		Debounce:  0,
		Workers:   2,
		QueueSize: 16,
	}, reg, runner, nil)

	return &fixture{watcher: w, runner: runner, store: store, watch: watch, data: data}
}

func (f *fixture) drop(t *testing.T, name, content string) string {
	path := filepath.Join(f.watch, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestHandleFile_CADFile(t *testing.T) {
	f := setupWatcher(t)
	ctx := context.Background()

	path := f.drop(t, "csp0030.prt", "cad data")
	f.watcher.handleFile(ctx, path)

	// Moved into the data root
	moved := filepath.Join(f.data, "csp0030.prt")
	assert.FileExists(t, moved)
	assert.NoFileExists(t, path)

	// Item created with defaults, file registered, sync tasks enqueued
	item, err := f.store.GetItem(ctx, "csp0030")
	require.NoError(t, err)
	assert.Equal(t, "A", item.Revision)

	file, err := f.store.GetFile(ctx, "csp0030", moved)
	require.NoError(t, err)
	assert.Equal(t, string(classify.TypeCAD), file.FileType)

	tasks, err := f.store.ListWork(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, tasks, 2)
}

func TestHandleFile_SuffixedVariantCollapses(t *testing.T) {
	f := setupWatcher(t)
	ctx := context.Background()

	path := f.drop(t, "csp0030_dxf.dxf", "dxf data")
	f.watcher.handleFile(ctx, path)

	moved := filepath.Join(f.data, "dxf", "csp0030_dxf.dxf")
	assert.FileExists(t, moved)

	// Registered under csp0030, not csp0030_dxf
	_, err := f.store.GetFile(ctx, "csp0030", moved)
	assert.NoError(t, err)
	_, err = f.store.GetItem(ctx, "csp0030_dxf")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestHandleFile_SinglePartNeutralDeleted(t *testing.T) {
	f := setupWatcher(t)
	ctx := context.Background()

	path := f.drop(t, "oldpart.neu", "neutral data")
	f.watcher.handleFile(ctx, path)

	// Deleted, and no item or file record exists
	assert.NoFileExists(t, path)
	_, err := f.store.GetItem(ctx, "oldpart")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestHandleFile_TempFileSkipped(t *testing.T) {
	f := setupWatcher(t)
	ctx := context.Background()

	path := f.drop(t, "~csp0030.prt", "scratch")
	f.watcher.handleFile(ctx, path)

	// Left in place, nothing recorded
	assert.FileExists(t, path)
	_, err := f.store.GetItem(ctx, "csp0030")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestHandleFile_AssemblyExportTriggersExtraction(t *testing.T) {
	f := setupWatcher(t)
	ctx := context.Background()

	path := f.drop(t, "wma20120_asm.neu", `
component CSP0030 part
component CSP0030 part
component SUB_ASM part
`)
	f.watcher.handleFile(ctx, path)
	f.runner.Wait()

	moved := filepath.Join(f.data, "neu", "wma20120_asm.neu")
	assert.FileExists(t, moved)

	_, err := f.store.GetFile(ctx, "wma20120", moved)
	require.NoError(t, err)

	children, err := f.store.ListChildren(ctx, "wma20120")
	require.NoError(t, err)
	require.Len(t, children, 2)

	byChild := map[string]int64{}
	for _, e := range children {
		byChild[e.ChildItem] = e.Quantity
	}
	assert.Equal(t, int64(2), byChild["csp0030"])
	assert.Equal(t, int64(1), byChild["sub_asm"])
}

func TestHandleFile_OtherTypeArchived(t *testing.T) {
	f := setupWatcher(t)
	ctx := context.Background()

	path := f.drop(t, "csp0030_notes.txt", "notes")
	f.watcher.handleFile(ctx, path)

	moved := filepath.Join(f.data, "archive", "csp0030_notes.txt")
	assert.FileExists(t, moved)

	file, err := f.store.GetFile(ctx, "csp0030", moved)
	require.NoError(t, err)
	assert.Equal(t, string(classify.TypeOther), file.FileType)

	// Non-CAD files enqueue no sync tasks
	tasks, err := f.store.ListWork(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestHandleFile_VanishedFile(t *testing.T) {
	f := setupWatcher(t)

	// Must not panic or record anything
	f.watcher.handleFile(context.Background(), filepath.Join(f.watch, "ghost.prt"))

	tasks, err := f.store.ListWork(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestRun_ProcessesDroppedFiles(t *testing.T) {
	f := setupWatcher(t)
	f.watcher.cfg.Debounce = 5 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- f.watcher.Run(ctx) }()

	// Give the watch a moment to establish before dropping the file
	time.Sleep(100 * time.Millisecond)
	f.drop(t, "csp0040.prt", "cad data")

	assert.Eventually(t, func() bool {
		_, err := f.store.GetFile(context.Background(), "csp0040", filepath.Join(f.data, "csp0040.prt"))
		return err == nil
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop after cancellation")
	}
}

func TestRun_KeepsListeningAfterBadFile(t *testing.T) {
	f := setupWatcher(t)
	f.watcher.cfg.Debounce = 5 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- f.watcher.Run(ctx) }()
	time.Sleep(100 * time.Millisecond)

	// A cleanup-path file followed by a normal one; the loop must survive both
	f.drop(t, "oldpart.neu", "neutral")
	f.drop(t, "csp0050.prt", "cad data")

	assert.Eventually(t, func() bool {
		_, err := f.store.GetFile(context.Background(), "csp0050", filepath.Join(f.data, "csp0050.prt"))
		return err == nil
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	<-done
}
