package scpi

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/rjboer/gofpc/internal/logging"
)

// DefaultTimeout bounds every socket read and write.
const DefaultTimeout = 5 * time.Second

// Options configures a Conn.
type Options struct {
	// Timeout applies to each write and each read. Zero means DefaultTimeout,
	// a negative value disables deadlines.
	Timeout time.Duration

	// ByteOrder of REAL,32 trace data. The FPC sends little-endian
	// unless FORMat:BORDer NORMal is set.
	ByteOrder binary.ByteOrder

	Logger logging.Logger
}

func (opts *Options) timeout() time.Duration {
	if opts == nil || opts.Timeout == 0 {
		return DefaultTimeout
	}
	return opts.Timeout
}

func (opts *Options) byteOrder() binary.ByteOrder {
	if opts == nil || opts.ByteOrder == nil {
		return binary.LittleEndian
	}
	return opts.ByteOrder
}

func (opts *Options) logger() logging.Logger {
	if opts == nil || opts.Logger == nil {
		return logging.Default()
	}
	return opts.Logger
}

// Conn is a Transport over a raw SCPI socket. Commands are terminated
// with LF and responses are LF-terminated lines or binary blocks.
type Conn struct {
	Address string
	Timeout time.Duration

	order  binary.ByteOrder
	logger logging.Logger
	conn   net.Conn
	r      *bufio.Reader
	closed bool
}

var _ Transport = (*Conn)(nil)

// Dial parses resource with ParseResource and connects to it.
func Dial(ctx context.Context, resource string, opts *Options) (*Conn, error) {
	res, err := ParseResource(resource)
	if err != nil {
		return nil, err
	}
	timeout := opts.timeout()
	d := net.Dialer{}
	if timeout > 0 {
		d.Timeout = timeout
	}
	conn, err := d.DialContext(ctx, "tcp", res.Addr())
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", res.Addr(), err)
	}
	c := NewConn(conn, opts)
	c.Address = res.Addr()
	c.logger.Debug("connected", logging.Field{Key: "resource", Value: resource}, logging.Field{Key: "addr", Value: c.Address})
	return c, nil
}

// NewConn wraps an established connection (tests, tunnels).
func NewConn(conn net.Conn, opts *Options) *Conn {
	addr := ""
	if ra := conn.RemoteAddr(); ra != nil {
		addr = ra.String()
	}
	return &Conn{
		Address: addr,
		Timeout: opts.timeout(),
		order:   opts.byteOrder(),
		logger:  opts.logger().With(logging.Field{Key: "subsystem", Value: "scpi"}),
		conn:    conn,
		r:       bufio.NewReader(conn),
	}
}

// Close releases the socket. Closing twice is a no-op.
func (c *Conn) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	return c.conn.Close()
}

// Write sends cmd followed by LF.
func (c *Conn) Write(cmd string) error {
	if c.closed {
		return ErrClosed
	}
	c.logger.Debug("write", logging.Field{Key: "cmd", Value: cmd})
	return c.writeLine(cmd)
}

// Query sends cmd and reads a single response line.
func (c *Conn) Query(cmd string) (string, error) {
	if c.closed {
		return "", ErrClosed
	}
	c.logger.Debug("query", logging.Field{Key: "cmd", Value: cmd})
	if err := c.writeLine(cmd); err != nil {
		return "", err
	}
	line, err := c.readLine()
	if err != nil {
		return "", err
	}
	c.logger.Debug("response", logging.Field{Key: "cmd", Value: cmd}, logging.Field{Key: "resp", Value: line})
	return line, nil
}

// QueryBinaryFloat32 sends cmd and decodes the REAL,32 block it returns.
func (c *Conn) QueryBinaryFloat32(cmd string) ([]float64, error) {
	if c.closed {
		return nil, ErrClosed
	}
	c.logger.Debug("query binary", logging.Field{Key: "cmd", Value: cmd})
	if err := c.writeLine(cmd); err != nil {
		return nil, err
	}
	c.applyReadDeadline()
	payload, err := readBlock(c.r)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("block", logging.Field{Key: "cmd", Value: cmd}, logging.Field{Key: "bytes", Value: len(payload)})
	return decodeFloat32(payload, c.order)
}

func (c *Conn) applyReadDeadline() {
	if c.Timeout > 0 {
		_ = c.conn.SetReadDeadline(time.Now().Add(c.Timeout))
	}
}

func (c *Conn) applyWriteDeadline() {
	if c.Timeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.Timeout))
	}
}

// writeLine writes cmd terminated with LF, handling short writes.
func (c *Conn) writeLine(cmd string) error {
	b := []byte(cmd)
	if !strings.HasSuffix(cmd, "\n") {
		b = append(b, '\n')
	}
	for len(b) > 0 {
		c.applyWriteDeadline()
		n, err := c.conn.Write(b)
		if err != nil {
			return err
		}
		b = b[n:]
	}
	return nil
}

// readLine reads one LF-terminated response and strips CR/LF.
func (c *Conn) readLine() (string, error) {
	c.applyReadDeadline()
	line, err := c.r.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
