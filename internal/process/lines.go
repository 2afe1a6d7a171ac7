package process

import (
	"bytes"
	"io"
	"sync"
)

// lineWriter forwards complete lines to dst, keeping trailing partial
// lines buffered until the next write or Flush.
type lineWriter struct {
	mu      sync.Mutex
	dst     io.Writer
	partial []byte
	written bool
}

func newLineWriter(dst io.Writer) *lineWriter {
	if dst == nil {
		dst = io.Discard
	}
	return &lineWriter{dst: dst}
}

func (l *lineWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(p) == 0 {
		return 0, nil
	}
	l.written = true

	data := p
	if len(l.partial) > 0 {
		data = append(l.partial, p...)
		l.partial = nil
	}

	for {
		i := bytes.IndexByte(data, '\n')
		if i < 0 {
			break
		}
		if _, err := l.dst.Write(data[:i+1]); err != nil {
			return len(p), err
		}
		data = data[i+1:]
	}

	if len(data) > 0 {
		l.partial = append([]byte(nil), data...)
	}

	return len(p), nil
}

// Flush writes the buffered partial line, terminated with a newline.
func (l *lineWriter) Flush() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.partial) == 0 {
		return nil
	}
	line := append(l.partial, '\n')
	l.partial = nil
	_, err := l.dst.Write(line)
	return err
}

// Written returns true if anything has been written.
func (l *lineWriter) Written() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.written
}

// pump copies r into w until r fails or reaches EOF.
func pump(r io.Reader, w io.Writer) {
	buf := make([]byte, 32*1024)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			_, _ = w.Write(buf[:n])
		}
		if err != nil {
			return
		}
	}
}
