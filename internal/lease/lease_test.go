package lease

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTryAcquireIsExclusive(t *testing.T) {
	dir := t.TempDir()
	workingFile := filepath.Join(dir, "abnt_nbr_5410_1.pdf")

	acquired, err := TryAcquire(workingFile)
	require.NoError(t, err)
	assert.True(t, acquired)

	// A second acquire on the same working file must lose, not block.
	acquired, err = TryAcquire(workingFile)
	require.NoError(t, err)
	assert.False(t, acquired)

	data, err := os.ReadFile(PathFor(workingFile))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "started "))
}

func TestAppendPID(t *testing.T) {
	dir := t.TempDir()
	workingFile := filepath.Join(dir, "iec_61850_2.pdf")

	_, err := TryAcquire(workingFile)
	require.NoError(t, err)

	require.NoError(t, AppendPID(workingFile, 4242))

	data, err := os.ReadFile(PathFor(workingFile))
	require.NoError(t, err)
	assert.Contains(t, string(data), "pid 4242\n")
}

func TestReleaseIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	workingFile := filepath.Join(dir, "doc_3.pdf")

	_, err := TryAcquire(workingFile)
	require.NoError(t, err)

	require.NoError(t, Release(workingFile))
	require.NoError(t, Release(workingFile))

	_, err = os.Stat(PathFor(workingFile))
	assert.True(t, os.IsNotExist(err))
}

func TestSweepOrphans(t *testing.T) {
	dir := t.TempDir()

	// Live pair: working file plus lease, must survive the sweep.
	live := filepath.Join(dir, "live_1.pdf")
	require.NoError(t, os.WriteFile(live, []byte("%PDF"), 0644))
	_, err := TryAcquire(live)
	require.NoError(t, err)

	// Orphan: lease whose working file is gone.
	orphan := filepath.Join(dir, "gone_2.pdf")
	_, err = TryAcquire(orphan)
	require.NoError(t, err)

	removed, err := SweepOrphans(dir)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = os.Stat(PathFor(live))
	assert.NoError(t, err)
	_, err = os.Stat(PathFor(orphan))
	assert.True(t, os.IsNotExist(err))
}

func TestWorkingFileName(t *testing.T) {
	a := WorkingFileName("/tmp/working", "abnt_nbr_5410", ".pdf")
	b := WorkingFileName("/tmp/working", "abnt_nbr_5410", ".pdf")

	assert.True(t, strings.HasPrefix(filepath.Base(a), "abnt_nbr_5410_"))
	assert.True(t, strings.HasSuffix(a, ".pdf"))
	assert.NotEqual(t, a, b)
}
