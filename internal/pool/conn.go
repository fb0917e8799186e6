package pool

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/Iron-Ham/poolminer/internal/errors"
)

// Conn is a pool connection. Every read and write carries a deadline of
// ioTimeout from the start of the operation; a zero ioTimeout disables
// deadlines. Conn is not safe for concurrent use.
type Conn struct {
	nc        net.Conn
	r         *bufio.Reader
	ioTimeout time.Duration
	line      []byte
	out       []byte
}

// Dialer opens a transport connection to a pool endpoint ("host:port").
type Dialer func(ctx context.Context, endpoint string) (net.Conn, error)

// TCPDialer returns a Dialer that connects over TCP within timeout. Name
// resolution is left to the dialer.
func TCPDialer(timeout time.Duration) Dialer {
	d := &net.Dialer{Timeout: timeout}
	return func(ctx context.Context, endpoint string) (net.Conn, error) {
		return d.DialContext(ctx, "tcp", endpoint)
	}
}

// NewConn wraps an established connection. Lines longer than maxRecord
// bytes, terminator included, are rejected.
func NewConn(nc net.Conn, ioTimeout time.Duration, maxRecord int) *Conn {
	return &Conn{
		nc:        nc,
		r:         bufio.NewReader(nc),
		ioTimeout: ioTimeout,
		line:      make([]byte, 0, maxRecord),
		out:       make([]byte, 0, maxRecord),
	}
}

// RemoteAddr returns the pool's address.
func (c *Conn) RemoteAddr() string {
	return c.nc.RemoteAddr().String()
}

// Close closes the underlying connection.
func (c *Conn) Close() error {
	return c.nc.Close()
}

// ReadBanner reads the fixed-size version banner.
func (c *Conn) ReadBanner() (string, error) {
	c.armRead()
	var buf [BannerSize]byte
	if _, err := io.ReadFull(c.r, buf[:]); err != nil {
		return "", c.readError("banner", err)
	}
	return string(buf[:]), nil
}

// ReadLine reads one '\n'-terminated line and returns it without the
// terminator. The returned slice is only valid until the next ReadLine.
// An orderly close before the terminator is an error, even with no data.
func (c *Conn) ReadLine() ([]byte, error) {
	c.armRead()
	c.line = c.line[:0]
	for {
		b, err := c.r.ReadByte()
		if err != nil {
			return nil, c.readError("line", err)
		}
		if b == '\n' {
			return trimEOL(c.line), nil
		}
		if len(c.line)+1 >= cap(c.line) {
			return nil, fmt.Errorf("%w: exceeds %d bytes", errors.ErrRecordTooLong, cap(c.line))
		}
		c.line = append(c.line, b)
	}
}

// RequestJob sends a job request.
func (c *Conn) RequestJob(identity, deviceTag string) error {
	c.out = AppendJobRequest(c.out[:0], identity, deviceTag)
	return c.write(c.out)
}

// ReceiveJob reads and parses one job record.
func (c *Conn) ReceiveJob(difficulty int) (Job, error) {
	line, err := c.ReadLine()
	if err != nil {
		return Job{}, err
	}
	job, err := ParseJob(line)
	if err != nil {
		return Job{}, err
	}
	job.Difficulty = difficulty
	return job, nil
}

// SubmitShare sends a share and waits for the pool's verdict.
func (c *Conn) SubmitShare(identity, seed string, nonce uint64) (Ack, error) {
	c.out = AppendShare(c.out[:0], identity, seed, nonce)
	if err := c.write(c.out); err != nil {
		return Ack{}, err
	}
	line, err := c.ReadLine()
	if err != nil {
		return Ack{}, err
	}
	return ParseAck(line)
}

func (c *Conn) write(p []byte) error {
	if c.ioTimeout > 0 {
		_ = c.nc.SetWriteDeadline(time.Now().Add(c.ioTimeout))
	}
	n, err := c.nc.Write(p)
	if err != nil {
		return c.ioError("write", err)
	}
	if n < len(p) {
		return fmt.Errorf("%w: wrote %d of %d bytes", errors.ErrShortWrite, n, len(p))
	}
	return nil
}

func (c *Conn) armRead() {
	if c.ioTimeout > 0 {
		_ = c.nc.SetReadDeadline(time.Now().Add(c.ioTimeout))
	}
}

func (c *Conn) readError(what string, err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("read %s: %w", what, errors.ErrRemoteClosed)
	}
	return c.ioError("read "+what, err)
}

func (c *Conn) ioError(op string, err error) error {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return errors.NewTimeoutError(op, c.ioTimeout).WithCause(err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
