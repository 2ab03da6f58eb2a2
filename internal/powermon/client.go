package powermon

import (
	"bufio"
	"io"
	"strings"

	"github.com/tarm/serial"

	"github.com/jgulick48/powermon433-mqtt/internal/models"
)

type Client interface {
	Close() error
	ReadLine() (string, error)
}

type client struct {
	port   io.ReadCloser
	reader *bufio.Reader
}

// NewClient opens the receiver's serial port. The port always reads with a
// short timeout so Close is noticed; config.ReadTimeout instead bounds how
// long ReadLine waits for a complete line.
func NewClient(config models.SerialConfiguration) (Client, error) {
	sconf := &serial.Config{
		Name:        config.Device,
		Baud:        config.Baud,
		ReadTimeout: pollInterval,
	}
	s, err := serial.OpenPort(sconf)
	if err != nil {
		return nil, err
	}
	return newSerialClient(s, config.ReadTimeout.Duration), nil
}

// NewLineReader reads lines from any stream, such as a captured log of the
// receiver's output.
func NewLineReader(port io.ReadCloser) Client {
	return &client{
		port:   port,
		reader: bufio.NewReader(port),
	}
}

func (c *client) Close() error {
	return c.port.Close()
}

// ReadLine blocks until a full line is available. A trailing line without a
// newline is returned before io.EOF.
func (c *client) ReadLine() (string, error) {
	line, err := c.reader.ReadString('\n')
	if err == io.EOF && strings.TrimSpace(line) != "" {
		return line, nil
	}
	if err != nil {
		return "", err
	}
	return line, nil
}
