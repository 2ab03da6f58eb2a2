package powermon

import (
	"bytes"
	"errors"
	"io"
	"sync/atomic"
	"time"
)

const (
	pollInterval  = 500 * time.Millisecond
	maxLineLength = 4096
)

var (
	ErrClosed      = errors.New("serial port closed")
	ErrReadTimeout = errors.New("no complete line before read timeout")
	ErrLineTooLong = errors.New("line too long")
)

// serialClient reads from a port whose reads return (0, io.EOF) when the
// poll interval expires without data.
type serialClient struct {
	port        io.ReadCloser
	readTimeout time.Duration
	pending     []byte
	chunk       []byte
	closing     atomic.Bool
}

func newSerialClient(port io.ReadCloser, readTimeout time.Duration) *serialClient {
	return &serialClient{
		port:        port,
		readTimeout: readTimeout,
		chunk:       make([]byte, 256),
	}
}

func (c *serialClient) Close() error {
	c.closing.Store(true)
	return c.port.Close()
}

// ReadLine waits for a newline, keeping partial data across poll intervals.
// It returns ErrReadTimeout when readTimeout is set and elapses without a
// complete line, and ErrClosed once Close has been called.
func (c *serialClient) ReadLine() (string, error) {
	lastData := time.Now()
	for {
		if i := bytes.IndexByte(c.pending, '\n'); i >= 0 {
			line := string(c.pending[:i+1])
			c.pending = append(c.pending[:0], c.pending[i+1:]...)
			return line, nil
		}
		if len(c.pending) > maxLineLength {
			c.pending = c.pending[:0]
			return "", ErrLineTooLong
		}
		if c.closing.Load() {
			return "", ErrClosed
		}
		n, err := c.port.Read(c.chunk)
		if n > 0 {
			c.pending = append(c.pending, c.chunk[:n]...)
			lastData = time.Now()
		}
		if err != nil && err != io.EOF {
			if c.closing.Load() {
				return "", ErrClosed
			}
			return "", err
		}
		if n == 0 && c.readTimeout > 0 && time.Since(lastData) >= c.readTimeout {
			return "", ErrReadTimeout
		}
	}
}
