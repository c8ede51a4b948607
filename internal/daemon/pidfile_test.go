package daemon

import (
	"os"
	"path/filepath"
	"strconv"
	"syscall"
	"testing"

	"github.com/gofrs/flock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPIDFile_Write(t *testing.T) {
	tmpDir := t.TempDir()
	pidPath := filepath.Join(tmpDir, "test.pid")

	pf := NewPIDFile(pidPath)
	err := pf.Write()
	require.NoError(t, err)

	_, err = os.Stat(pidPath)
	require.NoError(t, err)

	data, err := os.ReadFile(pidPath)
	require.NoError(t, err)

	pid, err := strconv.Atoi(string(data))
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)
}

func TestPIDFile_Write_LockHeldByAnotherProcessFails(t *testing.T) {
	tmpDir := t.TempDir()
	pidPath := filepath.Join(tmpDir, "test.pid")
	require.NoError(t, os.MkdirAll(filepath.Dir(pidPath), 0o755))

	fl := flock.New(pidPath + ".lock")
	locked, err := fl.TryLock()
	require.NoError(t, err)
	require.True(t, locked)
	defer fl.Unlock()

	pf := NewPIDFile(pidPath)
	err = pf.Write()
	require.Error(t, err, "Write must fail while another process holds the lock file")
}

func TestPIDFile_Read(t *testing.T) {
	tmpDir := t.TempDir()
	pidPath := filepath.Join(tmpDir, "test.pid")

	expectedPID := 12345
	err := os.WriteFile(pidPath, []byte(strconv.Itoa(expectedPID)), 0644)
	require.NoError(t, err)

	pf := NewPIDFile(pidPath)
	pid, err := pf.Read()
	require.NoError(t, err)
	assert.Equal(t, expectedPID, pid)
}

func TestPIDFile_Read_NotExists(t *testing.T) {
	tmpDir := t.TempDir()
	pidPath := filepath.Join(tmpDir, "nonexistent.pid")

	pf := NewPIDFile(pidPath)
	_, err := pf.Read()
	require.Error(t, err)
	assert.True(t, os.IsNotExist(err) || err == ErrPIDFileNotFound)
}

func TestPIDFile_Read_InvalidContent(t *testing.T) {
	tmpDir := t.TempDir()
	pidPath := filepath.Join(tmpDir, "test.pid")

	err := os.WriteFile(pidPath, []byte("not-a-number"), 0644)
	require.NoError(t, err)

	pf := NewPIDFile(pidPath)
	_, err = pf.Read()
	require.Error(t, err)
}

func TestPIDFile_Remove(t *testing.T) {
	tmpDir := t.TempDir()
	pidPath := filepath.Join(tmpDir, "test.pid")

	err := os.WriteFile(pidPath, []byte("12345"), 0644)
	require.NoError(t, err)

	pf := NewPIDFile(pidPath)
	err = pf.Remove()
	require.NoError(t, err)

	_, err = os.Stat(pidPath)
	assert.True(t, os.IsNotExist(err))
}

func TestPIDFile_Remove_NotExists(t *testing.T) {
	tmpDir := t.TempDir()
	pidPath := filepath.Join(tmpDir, "nonexistent.pid")

	pf := NewPIDFile(pidPath)
	err := pf.Remove()
	require.NoError(t, err)
}

func TestPIDFile_IsRunning_CurrentProcess(t *testing.T) {
	tmpDir := t.TempDir()
	pidPath := filepath.Join(tmpDir, "test.pid")

	err := os.WriteFile(pidPath, []byte(strconv.Itoa(os.Getpid())), 0644)
	require.NoError(t, err)

	pf := NewPIDFile(pidPath)
	running := pf.IsRunning()
	assert.True(t, running, "Current process should be detected as running")
}

func TestPIDFile_IsRunning_NoFile(t *testing.T) {
	tmpDir := t.TempDir()
	pidPath := filepath.Join(tmpDir, "nonexistent.pid")

	pf := NewPIDFile(pidPath)
	running := pf.IsRunning()
	assert.False(t, running, "Should return false when PID file doesn't exist")
}

func TestPIDFile_IsRunning_StalePID(t *testing.T) {
	tmpDir := t.TempDir()
	pidPath := filepath.Join(tmpDir, "test.pid")

	stalePID := 4194304
	err := os.WriteFile(pidPath, []byte(strconv.Itoa(stalePID)), 0644)
	require.NoError(t, err)

	pf := NewPIDFile(pidPath)
	running := pf.IsRunning()
	assert.False(t, running, "Stale PID should be detected as not running")
}

func TestPIDFile_Signal(t *testing.T) {
	tmpDir := t.TempDir()
	pidPath := filepath.Join(tmpDir, "test.pid")

	err := os.WriteFile(pidPath, []byte(strconv.Itoa(os.Getpid())), 0644)
	require.NoError(t, err)

	pf := NewPIDFile(pidPath)

	err = pf.Signal(syscall.Signal(0))
	require.NoError(t, err, "Signal to current process should succeed")
}

func TestPIDFile_Signal_NoProcess(t *testing.T) {
	tmpDir := t.TempDir()
	pidPath := filepath.Join(tmpDir, "test.pid")

	err := os.WriteFile(pidPath, []byte("4194304"), 0644)
	require.NoError(t, err)

	pf := NewPIDFile(pidPath)
	err = pf.Signal(syscall.Signal(0))
	require.Error(t, err, "Signal to non-existent process should fail")
}

func TestPIDFile_WriteCreatesDirectory(t *testing.T) {
	tmpDir := t.TempDir()
	nestedPath := filepath.Join(tmpDir, "nested", "deep", "test.pid")

	pf := NewPIDFile(nestedPath)
	err := pf.Write()
	require.NoError(t, err)

	_, err = os.Stat(nestedPath)
	require.NoError(t, err)
}
