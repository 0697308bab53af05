package obslog

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// RotatingWriter is a zapcore.WriteSyncer backed directly by os.File: no
// rotation library appears anywhere in the retrieved pack, so this stays on
// the standard library rather than inventing a dependency the corpus never
// reaches for. Rotation renames the current file aside (shifting older
// backups up by one, dropping the oldest past the configured count) and
// opens a fresh file in its place.
type RotatingWriter struct {
	mu       sync.Mutex
	path     string
	maxBytes int64
	backups  int
	file     *os.File
	size     int64
}

// NewRotatingWriter opens (creating if needed) the log file at path.
func NewRotatingWriter(path string, maxBytes int64, backups int) (*RotatingWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	rw := &RotatingWriter{path: path, maxBytes: maxBytes, backups: backups}
	if err := rw.open(); err != nil {
		return nil, err
	}
	return rw, nil
}

func (rw *RotatingWriter) open() error {
	f, err := os.OpenFile(rw.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return err
	}
	rw.file = f
	rw.size = info.Size()
	return nil
}

// Write implements zapcore.WriteSyncer.
func (rw *RotatingWriter) Write(p []byte) (int, error) {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	if rw.maxBytes > 0 && rw.size+int64(len(p)) > rw.maxBytes {
		if err := rw.rotate(); err != nil {
			return 0, err
		}
	}
	n, err := rw.file.Write(p)
	rw.size += int64(n)
	return n, err
}

// Sync implements zapcore.WriteSyncer.
func (rw *RotatingWriter) Sync() error {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	return rw.file.Sync()
}

func (rw *RotatingWriter) rotate() error {
	if err := rw.file.Close(); err != nil {
		return err
	}
	for i := rw.backups; i >= 1; i-- {
		src := rw.backupPath(i - 1)
		dst := rw.backupPath(i)
		if i == rw.backups {
			os.Remove(dst)
		}
		if _, err := os.Stat(src); err == nil {
			os.Rename(src, dst)
		}
	}
	return rw.open()
}

func (rw *RotatingWriter) backupPath(n int) string {
	if n == 0 {
		return rw.path
	}
	return fmt.Sprintf("%s.%d", rw.path, n)
}
