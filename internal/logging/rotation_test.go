package logging

import (
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestWriter(t *testing.T, maxBytes int64, backups int, compress bool) (*RotatingWriter, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), LogFileName)
	rw, err := NewRotatingWriter(path, RotationConfig{MaxBackups: backups, Compress: compress})
	if err != nil {
		t.Fatalf("NewRotatingWriter failed: %v", err)
	}
	rw.maxSizeB = maxBytes
	t.Cleanup(func() { rw.Close() })
	return rw, path
}

func TestDefaultRotationConfig(t *testing.T) {
	cfg := DefaultRotationConfig()
	if cfg.MaxSizeMB != 10 || cfg.MaxBackups != 3 || cfg.Compress {
		t.Errorf("DefaultRotationConfig() = %+v", cfg)
	}
}

func TestRotatingWriter_AppendsToExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), LogFileName)
	if err := os.WriteFile(path, []byte("previous\n"), 0644); err != nil {
		t.Fatal(err)
	}

	rw, err := NewRotatingWriter(path, DefaultRotationConfig())
	if err != nil {
		t.Fatalf("NewRotatingWriter failed: %v", err)
	}
	defer rw.Close()

	if got := rw.CurrentSize(); got != int64(len("previous\n")) {
		t.Errorf("CurrentSize() = %d, want %d", got, len("previous\n"))
	}
	if rw.FilePath() != path {
		t.Errorf("FilePath() = %q, want %q", rw.FilePath(), path)
	}
}

func TestRotatingWriter_Rotates(t *testing.T) {
	rw, path := newTestWriter(t, 20, 2, false)

	line := []byte("0123456789abcde\n") // 16 bytes
	for i := 0; i < 3; i++ {
		if _, err := rw.Write(line); err != nil {
			t.Fatalf("Write() = %v", err)
		}
	}

	for _, p := range []string{path, path + ".1", path + ".2"} {
		data, err := os.ReadFile(p)
		if err != nil {
			t.Fatalf("expected %s: %v", p, err)
		}
		if string(data) != string(line) {
			t.Errorf("%s = %q, want one line", filepath.Base(p), data)
		}
	}
	if rw.CurrentSize() != int64(len(line)) {
		t.Errorf("CurrentSize() = %d, want %d", rw.CurrentSize(), len(line))
	}
}

func TestRotatingWriter_DropsOldestBackup(t *testing.T) {
	rw, path := newTestWriter(t, 10, 1, false)

	for _, s := range []string{"first-one\n", "second-on\n", "third-one\n"} {
		if _, err := rw.Write([]byte(s)); err != nil {
			t.Fatalf("Write() = %v", err)
		}
	}

	if _, err := os.Stat(path + ".2"); !os.IsNotExist(err) {
		t.Errorf("backup .2 should not exist with MaxBackups=1")
	}
	data, _ := os.ReadFile(path + ".1")
	if string(data) != "second-on\n" {
		t.Errorf(".1 = %q, want second-on", data)
	}
}

func TestRotatingWriter_NoBackups(t *testing.T) {
	rw, path := newTestWriter(t, 10, 0, false)

	rw.Write([]byte("aaaaaaaaa\n"))
	rw.Write([]byte("bbbbbbbbb\n"))
	rw.Write([]byte("ccccccccc\n"))

	data, _ := os.ReadFile(path)
	if string(data) != "ccccccccc\n" {
		t.Errorf("active file = %q", data)
	}
}

func TestRotatingWriter_OversizedFirstWrite(t *testing.T) {
	rw, path := newTestWriter(t, 4, 2, false)

	if _, err := rw.Write([]byte("longer than limit\n")); err != nil {
		t.Fatalf("Write() = %v", err)
	}
	if _, err := os.Stat(path + ".1"); !os.IsNotExist(err) {
		t.Error("an empty file should not be rotated")
	}
}

func TestRotatingWriter_Compress(t *testing.T) {
	rw, path := newTestWriter(t, 10, 2, true)

	rw.Write([]byte("aaaaaaaaa\n"))
	rw.Write([]byte("bbbbbbbbb\n"))

	if _, err := os.Stat(path + ".1"); !os.IsNotExist(err) {
		t.Error("uncompressed backup should be removed after compression")
	}

	f, err := os.Open(path + ".1.gz")
	if err != nil {
		t.Fatalf("compressed backup missing: %v", err)
	}
	defer f.Close()
	zr, err := gzip.NewReader(f)
	if err != nil {
		t.Fatalf("gzip.NewReader() = %v", err)
	}
	data, _ := io.ReadAll(zr)
	if string(data) != "aaaaaaaaa\n" {
		t.Errorf("decompressed = %q", data)
	}
}

func TestRotatingWriter_Close(t *testing.T) {
	rw, _ := newTestWriter(t, 0, 0, false)

	if err := rw.Close(); err != nil {
		t.Fatalf("Close() = %v", err)
	}
	if err := rw.Close(); err != nil {
		t.Errorf("second Close() = %v, want nil", err)
	}
	if err := rw.Sync(); err != nil {
		t.Errorf("Sync() after Close = %v, want nil", err)
	}
	if _, err := rw.Write([]byte("x")); err == nil {
		t.Error("Write() after Close should fail")
	}
}

func TestNewLoggerWithRotation(t *testing.T) {
	dir := t.TempDir()
	logger, err := NewLoggerWithRotation(dir, LevelInfo, RotationConfig{MaxBackups: 2})
	if err != nil {
		t.Fatalf("NewLoggerWithRotation failed: %v", err)
	}
	logger.rotation.maxSizeB = 200

	child := logger.WithComponent("session")
	if child.rotation != logger.rotation {
		t.Error("child logger should share the rotating writer")
	}

	for i := 0; i < 10; i++ {
		child.Info("share accepted", "payload", strings.Repeat("x", 40))
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("Close() = %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, LogFileName+".1")); err != nil {
		t.Errorf("expected a rotated backup: %v", err)
	}
}

func TestNewLoggerWithRotation_Stderr(t *testing.T) {
	logger, err := NewLoggerWithRotation("", LevelInfo, DefaultRotationConfig())
	if err != nil {
		t.Fatalf("NewLoggerWithRotation failed: %v", err)
	}
	if logger.rotation != nil {
		t.Error("stderr logger should not rotate")
	}
}
