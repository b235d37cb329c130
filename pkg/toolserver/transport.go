package toolserver

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"os/exec"
	"strings"

	"github.com/gorilla/websocket"
)

// frameConn carries one JSON document per frame, whatever the transport.
type frameConn interface {
	ReadFrame() ([]byte, error)
	WriteFrame(data []byte) error
	Close() error
}

const maxFrameSize = 4 << 20

// lineConn frames messages as newline-delimited JSON over a byte stream.
// Used for TCP connections and tool server subprocesses.
type lineConn struct {
	reader  *bufio.Scanner
	writer  io.Writer
	closers []io.Closer
}

func newLineConn(r io.Reader, w io.Writer, closers ...io.Closer) *lineConn {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxFrameSize)
	return &lineConn{reader: scanner, writer: w, closers: closers}
}

func (c *lineConn) ReadFrame() ([]byte, error) {
	if !c.reader.Scan() {
		if err := c.reader.Err(); err != nil {
			return nil, err
		}
		return nil, io.EOF
	}
	// Scanner reuses its buffer between calls.
	frame := make([]byte, len(c.reader.Bytes()))
	copy(frame, c.reader.Bytes())
	return frame, nil
}

func (c *lineConn) WriteFrame(data []byte) error {
	if _, err := c.writer.Write(append(data, '\n')); err != nil {
		return err
	}
	return nil
}

func (c *lineConn) Close() error {
	var firstErr error
	for _, closer := range c.closers {
		if err := closer.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// wsConn frames messages as websocket text messages.
type wsConn struct {
	conn *websocket.Conn
}

func (c *wsConn) ReadFrame() ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	return data, err
}

func (c *wsConn) WriteFrame(data []byte) error {
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *wsConn) Close() error {
	return c.conn.Close()
}

// stdioConn runs the tool server as a subprocess speaking NDJSON on its
// standard streams.
type stdioConn struct {
	*lineConn
	cmd *exec.Cmd
}

func (c *stdioConn) Close() error {
	err := c.lineConn.Close()
	if c.cmd.Process != nil {
		c.cmd.Process.Kill()
	}
	c.cmd.Wait()
	return err
}

// dial opens the transport for an address. Supported forms:
// "tcp://host:port", "ws://host/path" (and wss), and "stdio:command args".
func dial(ctx context.Context, address string) (frameConn, error) {
	switch {
	case strings.HasPrefix(address, "tcp://"):
		var d net.Dialer
		conn, err := d.DialContext(ctx, "tcp", strings.TrimPrefix(address, "tcp://"))
		if err != nil {
			return nil, err
		}
		return newLineConn(conn, conn, conn), nil

	case strings.HasPrefix(address, "ws://"), strings.HasPrefix(address, "wss://"):
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, address, nil)
		if err != nil {
			return nil, err
		}
		conn.SetReadLimit(maxFrameSize)
		return &wsConn{conn: conn}, nil

	case strings.HasPrefix(address, "stdio:"):
		fields := strings.Fields(strings.TrimPrefix(address, "stdio:"))
		if len(fields) == 0 {
			return nil, fmt.Errorf("stdio address has no command")
		}
		cmd := exec.Command(fields[0], fields[1:]...)
		stdin, err := cmd.StdinPipe()
		if err != nil {
			return nil, err
		}
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			return nil, err
		}
		if err := cmd.Start(); err != nil {
			return nil, err
		}
		return &stdioConn{
			lineConn: newLineConn(stdout, stdin, stdin),
			cmd:      cmd,
		}, nil

	default:
		return nil, fmt.Errorf("unsupported address %q (want tcp://, ws://, wss:// or stdio:)", address)
	}
}
