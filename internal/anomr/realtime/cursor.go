package realtime

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/vaibhaw-/anomr/internal/anomr/artifact"
)

// Cursor is the byte offset of the first unconsumed line in the watched log.
// It is persisted after every successful read so a restart resumes where the
// previous run stopped.
type Cursor struct {
	LogPath string `json:"log_path"`
	Offset  int64  `json:"offset"`

	path string
}

// LoadCursor reads the cursor stored at path for logPath. A missing file, or
// one recorded for a different log, yields a fresh cursor at offset 0. An
// empty path keeps the cursor in memory only.
func LoadCursor(path, logPath string) (*Cursor, error) {
	c := &Cursor{LogPath: logPath, path: path}
	if path == "" {
		return c, nil
	}
	var stored Cursor
	if err := artifact.Load(path, &stored); err != nil {
		if errors.Is(err, artifact.ErrMissing) {
			return c, nil
		}
		return nil, fmt.Errorf("load cursor: %w", err)
	}
	if stored.LogPath == logPath && stored.Offset > 0 {
		c.Offset = stored.Offset
	}
	return c, nil
}

// Save persists the cursor. It is a no-op for in-memory cursors.
func (c *Cursor) Save() error {
	if c.path == "" {
		return nil
	}
	return artifact.Save(c.path, c)
}

// Advance moves the cursor past n consumed bytes and persists it.
func (c *Cursor) Advance(n int64) error {
	c.Offset += n
	return c.Save()
}

// SkipToEnd moves a fresh cursor to the start of the line being written at
// the current end of the log, so only lines completed from now on are read.
// A cursor restored from disk is left where it was.
func (c *Cursor) SkipToEnd() error {
	if c.Offset > 0 {
		return nil
	}
	f, err := os.Open(c.LogPath)
	if err != nil {
		return fmt.Errorf("open log: %w", err)
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat log: %w", err)
	}
	off, err := lineStartBefore(f, st.Size())
	if err != nil {
		return fmt.Errorf("scan log: %w", err)
	}
	c.Offset = off
	return c.Save()
}

// lineStartBefore returns the offset just past the last newline before
// size, or 0 when there is none.
func lineStartBefore(r io.ReaderAt, size int64) (int64, error) {
	buf := make([]byte, 64<<10)
	for end := size; end > 0; {
		start := max(end-int64(len(buf)), 0)
		chunk := buf[:end-start]
		if _, err := r.ReadAt(chunk, start); err != nil && !errors.Is(err, io.EOF) {
			return 0, err
		}
		if i := bytes.LastIndexByte(chunk, '\n'); i >= 0 {
			return start + int64(i) + 1, nil
		}
		end = start
	}
	return 0, nil
}

// maxReadBytes caps how much of the log one ReadNew call loads. The rest is
// picked up by later polls.
var maxReadBytes int64 = 8 << 20

// ReadNew returns the complete lines appended to the log since the cursor
// and the number of bytes they span. A partial trailing line is left for
// the next read. At most maxReadBytes are read per call; a line longer
// than that is returned in pieces. If the file shrank below the cursor it was rotated or
// truncated, and reading restarts from the beginning.
func (c *Cursor) ReadNew() (lines []string, consumed int64, rotated bool, err error) {
	f, err := os.Open(c.LogPath)
	if err != nil {
		return nil, 0, false, fmt.Errorf("open log: %w", err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return nil, 0, false, fmt.Errorf("stat log: %w", err)
	}
	if st.Size() < c.Offset {
		c.Offset = 0
		rotated = true
	}
	if st.Size() == c.Offset {
		return nil, 0, rotated, nil
	}

	if _, err := f.Seek(c.Offset, io.SeekStart); err != nil {
		return nil, 0, rotated, fmt.Errorf("seek log: %w", err)
	}
	limit := min(st.Size()-c.Offset, maxReadBytes)
	buf := make([]byte, limit)
	if _, err := io.ReadFull(f, buf); err != nil {
		return nil, 0, rotated, fmt.Errorf("read log: %w", err)
	}

	end := bytes.LastIndexByte(buf, '\n')
	if end < 0 {
		if limit < maxReadBytes {
			return nil, 0, rotated, nil
		}
		// no newline in a full read: emit it so the cursor keeps moving
		return []string{string(buf)}, limit, rotated, nil
	}
	for _, l := range bytes.Split(buf[:end], []byte{'\n'}) {
		lines = append(lines, string(bytes.TrimRight(l, "\r")))
	}
	return lines, int64(end + 1), rotated, nil
}
