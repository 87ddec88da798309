package task

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"hiremote_portal/internal/service"
)

type staticIndex struct {
	paths []string
	err   error
}

func (s staticIndex) StoredPaths(ctx context.Context) ([]string, error) {
	return s.paths, s.err
}

// writeBatch 在存储根目录下写入一个批次目录并设置其修改时间
func writeBatch(t *testing.T, root, batch string, mtime time.Time, names ...string) {
	t.Helper()
	dir := filepath.Join(root, batch)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	for _, name := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("data"), 0o644))
	}
	require.NoError(t, os.Chtimes(dir, mtime, mtime))
}

func newLocal(t *testing.T) *service.LocalStorage {
	t.Helper()
	local, err := service.NewLocalStorage(service.StorageConfig{BasePath: t.TempDir()})
	require.NoError(t, err)
	return local
}

func TestCleanupTask_RemovesOnlyOldOrphans(t *testing.T) {
	local := newLocal(t)
	root := local.Root()
	now := time.Date(2024, 3, 2, 12, 0, 0, 0, time.UTC)

	writeBatch(t, root, "20240301000000", now.Add(-3*time.Hour), "orphan.jpg")
	writeBatch(t, root, "20240301010000", now.Add(-3*time.Hour), "kept.jpg", "stray.png")
	writeBatch(t, root, "20240302115500", now.Add(-5*time.Minute), "inflight.mp4")
	// 非批次目录不参与清理
	writeBatch(t, root, "misc", now.Add(-48*time.Hour), "readme.txt")

	task := NewCleanupTask(local, staticIndex{paths: []string{"20240301010000/kept.jpg"}}, nil)
	task.now = func() time.Time { return now }

	res, err := task.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Batches)
	assert.Equal(t, 2, res.Removed)
	assert.Equal(t, 0, res.Failed)

	assert.NoDirExists(t, filepath.Join(root, "20240301000000"))
	assert.FileExists(t, filepath.Join(root, "20240301010000", "kept.jpg"))
	assert.NoFileExists(t, filepath.Join(root, "20240301010000", "stray.png"))
	assert.FileExists(t, filepath.Join(root, "20240302115500", "inflight.mp4"))
	assert.FileExists(t, filepath.Join(root, "misc", "readme.txt"))
}

func TestCleanupTask_MinAge(t *testing.T) {
	local := newLocal(t)
	now := time.Date(2024, 3, 2, 12, 0, 0, 0, time.UTC)
	writeBatch(t, local.Root(), "20240302110000", now.Add(-30*time.Minute), "orphan.jpg")

	task := NewCleanupTask(local, staticIndex{}, nil)
	task.now = func() time.Time { return now }

	res, err := task.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, res.Removed)

	task.SetMinAge(10 * time.Minute)
	res, err = task.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Removed)
}

func TestCleanupTask_IndexError(t *testing.T) {
	local := newLocal(t)
	task := NewCleanupTask(local, staticIndex{err: errors.New("db down")}, nil)

	_, err := task.Run(context.Background())
	assert.Error(t, err)
}

func TestCleanupTask_StartRejectsBadExpression(t *testing.T) {
	task := NewCleanupTask(newLocal(t), staticIndex{}, nil)
	assert.Error(t, task.Start("not a cron"))
}

func TestTaskManager(t *testing.T) {
	defer goleak.VerifyNone(t)
	local := newLocal(t)

	disabled := NewTaskManager(&TaskManagerDeps{}, nil)
	assert.False(t, disabled.Status()["cleanup"])
	_, err := disabled.TriggerCleanup(context.Background())
	assert.ErrorIs(t, err, ErrTaskDisabled)

	off := NewTaskManager(&TaskManagerDeps{Store: local, Index: staticIndex{}}, &TaskManagerConfig{})
	assert.False(t, off.Status()["cleanup"])

	tm := NewTaskManager(&TaskManagerDeps{Store: local, Index: staticIndex{}}, nil)
	assert.True(t, tm.Status()["cleanup"])
	require.NoError(t, tm.Start())
	defer tm.Stop()

	res, err := tm.TriggerCleanup(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, res.Removed)
}
