package probe

import (
	"io"
	"os"
	"time"
)

// Mtime returns the modification time of path, or ok=false if it does not
// exist or cannot be stat'd.
func Mtime(path string) (time.Time, bool) {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}, false
	}
	return info.ModTime(), true
}

// Exists satisfies taskdoc.FileExister.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// OSFileExister is the concrete taskdoc.FileExister backed by the real
// filesystem, for callers that need a value rather than the bare function.
type OSFileExister struct{}

// Exists delegates to the package-level Exists.
func (OSFileExister) Exists(path string) bool { return Exists(path) }

// Tail reads the trailing maxBytes of path, from max(0, size-maxBytes) to
// EOF. Lossy on rotation by construction; callers needing incremental
// tailing across polls should use TailFrom instead.
func Tail(path string, maxBytes int64) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	start := info.Size() - maxBytes
	if start < 0 {
		start = 0
	}
	if _, err := f.Seek(start, io.SeekStart); err != nil {
		return nil, err
	}
	return io.ReadAll(f)
}

// TailFrom reads path starting at lastOffset. If the file has shrunk since
// lastOffset was recorded (rotation), it resets to the start of the file
// and reads from there instead of erroring. Returns the data read and the
// offset to pass on the next call.
func TailFrom(path string, lastOffset int64) (data []byte, newOffset int64, rotated bool, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, lastOffset, false, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, lastOffset, false, err
	}
	size := info.Size()

	offset := lastOffset
	if offset > size {
		offset = 0
		rotated = true
	}
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return nil, lastOffset, rotated, err
	}
	data, err = io.ReadAll(f)
	if err != nil {
		return nil, lastOffset, rotated, err
	}
	return data, offset + int64(len(data)), rotated, nil
}
