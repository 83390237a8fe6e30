// Package iiod is a client for the ASCII protocol spoken by the IIO daemon.
// It covers what a control-plane tool needs: device, channel and debug
// attributes plus the context XML.
package iiod

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/cenkalti/backoff"

	"github.com/rjboer/adrv9002/internal/logging"
)

// DefaultPort is the TCP port iiod listens on.
const DefaultPort = 30431

const defaultTimeout = 5 * time.Second

// StatusError is a negative status returned by the daemon.
type StatusError struct {
	Cmd  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("iiod %s: %v (errno %d)", e.Cmd, syscall.Errno(-e.Code), -e.Code)
}

var errClosed = errors.New("iiod: client closed")

// Client is one connection to iiod. Commands are serialized; the protocol
// has no request identifiers.
type Client struct {
	mu      sync.Mutex
	conn    net.Conn
	reader  *bufio.Reader
	timeout time.Duration
	log     logging.Logger
}

// NewClient wraps an established connection.
func NewClient(conn net.Conn) *Client {
	return &Client{
		conn:    conn,
		reader:  bufio.NewReader(conn),
		timeout: defaultTimeout,
		log:     logging.Default().With(logging.F("subsystem", "iiod")),
	}
}

// Dial connects to iiod at addr. A missing port defaults to 30431.
func Dial(ctx context.Context, addr string) (*Client, error) {
	if _, _, err := net.SplitHostPort(addr); err != nil {
		addr = net.JoinHostPort(addr, strconv.Itoa(DefaultPort))
	}
	d := net.Dialer{Timeout: 3 * time.Second}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("connect to IIOD at %s: %w", addr, err)
	}
	c := NewClient(conn)
	c.log.Debug("connected", logging.F("addr", addr))
	return c, nil
}

// DialRetry dials with exponential backoff until it succeeds, ctx ends or
// maxRetries further attempts failed.
func DialRetry(ctx context.Context, addr string, maxRetries uint64) (*Client, error) {
	var c *Client
	op := func() error {
		var err error
		c, err = Dial(ctx, addr)
		if err != nil {
			logging.Default().Warn("iiod dial failed", logging.F("addr", addr), logging.Err(err))
		}
		return err
	}
	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxRetries), ctx)
	if err := backoff.Retry(op, b); err != nil {
		return nil, err
	}
	return c, nil
}

// SetTimeout bounds every command that runs without a ctx deadline.
func (c *Client) SetTimeout(d time.Duration) {
	c.mu.Lock()
	c.timeout = d
	c.mu.Unlock()
}

// Close ends the session.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	_, _ = io.WriteString(c.conn, "EXIT\r\n")
	err := c.conn.Close()
	c.conn = nil
	return err
}

func (c *Client) applyDeadline(ctx context.Context) {
	deadline, ok := ctx.Deadline()
	if !ok && c.timeout > 0 {
		deadline = time.Now().Add(c.timeout)
	}
	_ = c.conn.SetDeadline(deadline)
}

func (c *Client) writeLine(cmd string) error {
	if _, err := io.WriteString(c.conn, cmd+"\r\n"); err != nil {
		return fmt.Errorf("send %q: %w", cmd, err)
	}
	return nil
}

// readInteger reads the status line every command answers with.
func (c *Client) readInteger() (int, error) {
	line, err := c.reader.ReadString('\n')
	if err != nil {
		return 0, fmt.Errorf("read status: %w", err)
	}
	v, err := strconv.Atoi(strings.TrimSpace(line))
	if err != nil {
		return 0, fmt.Errorf("parse status %q: %w", strings.TrimSpace(line), err)
	}
	return v, nil
}

// exec sends cmd (and an optional payload) and returns the status.
func (c *Client) exec(ctx context.Context, cmd string, payload []byte) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if c.conn == nil {
		return 0, errClosed
	}
	c.applyDeadline(ctx)
	if err := c.writeLine(cmd); err != nil {
		return 0, err
	}
	if payload != nil {
		if _, err := c.conn.Write(payload); err != nil {
			return 0, fmt.Errorf("send payload for %q: %w", cmd, err)
		}
	}
	status, err := c.readInteger()
	if err != nil {
		return 0, err
	}
	if status < 0 {
		return status, &StatusError{Cmd: strings.Fields(cmd)[0], Code: status}
	}
	return status, nil
}

// query runs a command whose positive status is the length of a payload
// terminated by a newline.
func (c *Client) query(ctx context.Context, cmd string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, err := c.exec(ctx, cmd, nil)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(c.reader, buf); err != nil {
		return nil, fmt.Errorf("read reply to %q: %w", cmd, err)
	}
	if n > 0 {
		if _, err := c.reader.ReadByte(); err != nil {
			return nil, fmt.Errorf("read reply terminator: %w", err)
		}
	}
	return buf, nil
}

func (c *Client) store(ctx context.Context, cmd string, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	payload := []byte(value)
	cmd = fmt.Sprintf("%s %d", cmd, len(payload))
	c.log.Debug("write", logging.F("cmd", cmd), logging.F("value", value))
	_, err := c.exec(ctx, cmd, payload)
	return err
}

func trimValue(b []byte) string {
	return strings.TrimRight(string(b), "\x00\r\n")
}

func direction(output bool) string {
	if output {
		return "OUTPUT"
	}
	return "INPUT"
}

// Version returns the daemon's version string.
func (c *Client) Version(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return "", errClosed
	}
	c.applyDeadline(ctx)
	if err := c.writeLine("VERSION"); err != nil {
		return "", err
	}
	line, err := c.reader.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("read version: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// ReadAttr reads a device attribute.
func (c *Client) ReadAttr(ctx context.Context, dev, attr string) (string, error) {
	b, err := c.query(ctx, fmt.Sprintf("READ %s %s", dev, attr))
	return trimValue(b), err
}

// WriteAttr writes a device attribute.
func (c *Client) WriteAttr(ctx context.Context, dev, attr, value string) error {
	return c.store(ctx, fmt.Sprintf("WRITE %s %s", dev, attr), value)
}

// ReadChannelAttr reads an attribute of an input or output channel.
func (c *Client) ReadChannelAttr(ctx context.Context, dev string, output bool, ch, attr string) (string, error) {
	b, err := c.query(ctx, fmt.Sprintf("READ %s %s %s %s", dev, direction(output), ch, attr))
	return trimValue(b), err
}

// WriteChannelAttr writes an attribute of an input or output channel.
func (c *Client) WriteChannelAttr(ctx context.Context, dev string, output bool, ch, attr, value string) error {
	return c.store(ctx, fmt.Sprintf("WRITE %s %s %s %s", dev, direction(output), ch, attr), value)
}

// ReadDebugAttr reads a debugfs attribute of a device.
func (c *Client) ReadDebugAttr(ctx context.Context, dev, attr string) (string, error) {
	b, err := c.query(ctx, fmt.Sprintf("READ %s DEBUG %s", dev, attr))
	return trimValue(b), err
}

// WriteDebugAttr writes a debugfs attribute of a device.
func (c *Client) WriteDebugAttr(ctx context.Context, dev, attr, value string) error {
	return c.store(ctx, fmt.Sprintf("WRITE %s DEBUG %s", dev, attr), value)
}

// ContextXML returns the XML description of the remote context.
func (c *Client) ContextXML(ctx context.Context) ([]byte, error) {
	return c.query(ctx, "PRINT")
}
