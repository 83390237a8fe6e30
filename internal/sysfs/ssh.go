// Package sysfs reaches IIO sysfs and debugfs attributes of a remote Linux
// target over SSH. It offers the same attribute surface as the iiod client
// and is the fallback when iiod is not running or lacks debug attributes.
package sysfs

import (
	"context"
	"fmt"
	"net"
	"os"
	"path"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
)

// Config describes the SSH target.
type Config struct {
	Host      string
	User      string
	Password  string
	KeyPath   string
	Port      int
	SysfsRoot string
	DebugRoot string
}

// Runner executes a shell command on the target and returns its stdout.
type Runner interface {
	Run(ctx context.Context, cmd string) ([]byte, error)
	Close() error
}

// Client maps IIO attribute accesses onto sysfs/debugfs files.
type Client struct {
	cfg    Config
	runner Runner

	mu  sync.Mutex
	ids map[string]string // device name -> iio:deviceN
}

func (cfg *Config) setDefaults() {
	if cfg.User == "" {
		cfg.User = "root"
	}
	if cfg.Port == 0 {
		cfg.Port = 22
	}
	if cfg.SysfsRoot == "" {
		cfg.SysfsRoot = "/sys/bus/iio/devices"
	}
	if cfg.DebugRoot == "" {
		cfg.DebugRoot = "/sys/kernel/debug/iio"
	}
}

// New validates the configuration and returns a client that dials lazily.
func New(cfg Config) (*Client, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("ssh host is required for sysfs access")
	}
	cfg.setDefaults()
	return &Client{cfg: cfg, runner: &sshRunner{cfg: cfg}, ids: make(map[string]string)}, nil
}

// NewWithRunner builds a client on a caller supplied runner.
func NewWithRunner(cfg Config, r Runner) *Client {
	cfg.setDefaults()
	return &Client{cfg: cfg, runner: r, ids: make(map[string]string)}
}

// Close tears down the SSH connection.
func (c *Client) Close() error { return c.runner.Close() }

// deviceID resolves a device name to its sysfs directory name. Names that
// already look like iio:deviceN are used as is.
func (c *Client) deviceID(ctx context.Context, dev string) (string, error) {
	if strings.HasPrefix(dev, "iio:device") {
		return dev, nil
	}
	c.mu.Lock()
	id, ok := c.ids[dev]
	c.mu.Unlock()
	if ok {
		return id, nil
	}

	cmd := fmt.Sprintf("grep -lx %s %s/iio:device*/name", shellQuote(dev), c.cfg.SysfsRoot)
	out, err := c.runner.Run(ctx, cmd)
	if err != nil {
		return "", fmt.Errorf("resolve iio device %q: %w", dev, err)
	}
	first := strings.TrimSpace(strings.SplitN(string(out), "\n", 2)[0])
	if first == "" {
		return "", fmt.Errorf("iio device %q not found", dev)
	}
	id = path.Base(path.Dir(first))

	c.mu.Lock()
	c.ids[dev] = id
	c.mu.Unlock()
	return id, nil
}

func channelFile(output bool, ch, attr string) string {
	prefix := "in"
	if output {
		prefix = "out"
	}
	return fmt.Sprintf("%s_%s_%s", prefix, ch, attr)
}

func (c *Client) read(ctx context.Context, file string) (string, error) {
	out, err := c.runner.Run(ctx, "cat "+shellQuote(file))
	if err != nil {
		return "", fmt.Errorf("read %s: %w", file, err)
	}
	return strings.TrimRight(string(out), "\r\n"), nil
}

func (c *Client) write(ctx context.Context, file, value string) error {
	// printf keeps the shell from interpreting the value.
	cmd := fmt.Sprintf("printf %%s %s > %s", shellQuote(value), shellQuote(file))
	if _, err := c.runner.Run(ctx, cmd); err != nil {
		return fmt.Errorf("write %s: %w", file, err)
	}
	return nil
}

func (c *Client) sysfsPath(ctx context.Context, dev, file string) (string, error) {
	id, err := c.deviceID(ctx, dev)
	if err != nil {
		return "", err
	}
	return path.Join(c.cfg.SysfsRoot, id, file), nil
}

func (c *Client) debugPath(ctx context.Context, dev, attr string) (string, error) {
	id, err := c.deviceID(ctx, dev)
	if err != nil {
		return "", err
	}
	return path.Join(c.cfg.DebugRoot, id, attr), nil
}

// ReadAttr reads a device attribute.
func (c *Client) ReadAttr(ctx context.Context, dev, attr string) (string, error) {
	p, err := c.sysfsPath(ctx, dev, attr)
	if err != nil {
		return "", err
	}
	return c.read(ctx, p)
}

// WriteAttr writes a device attribute.
func (c *Client) WriteAttr(ctx context.Context, dev, attr, value string) error {
	p, err := c.sysfsPath(ctx, dev, attr)
	if err != nil {
		return err
	}
	return c.write(ctx, p, value)
}

// ReadChannelAttr reads a channel attribute.
func (c *Client) ReadChannelAttr(ctx context.Context, dev string, output bool, ch, attr string) (string, error) {
	p, err := c.sysfsPath(ctx, dev, channelFile(output, ch, attr))
	if err != nil {
		return "", err
	}
	return c.read(ctx, p)
}

// WriteChannelAttr writes a channel attribute.
func (c *Client) WriteChannelAttr(ctx context.Context, dev string, output bool, ch, attr, value string) error {
	p, err := c.sysfsPath(ctx, dev, channelFile(output, ch, attr))
	if err != nil {
		return err
	}
	return c.write(ctx, p, value)
}

// ReadDebugAttr reads a debugfs attribute.
func (c *Client) ReadDebugAttr(ctx context.Context, dev, attr string) (string, error) {
	p, err := c.debugPath(ctx, dev, attr)
	if err != nil {
		return "", err
	}
	return c.read(ctx, p)
}

// WriteDebugAttr writes a debugfs attribute.
func (c *Client) WriteDebugAttr(ctx context.Context, dev, attr, value string) error {
	p, err := c.debugPath(ctx, dev, attr)
	if err != nil {
		return err
	}
	return c.write(ctx, p, value)
}

// shellQuote returns a value wrapped in single quotes with embedded quotes
// escaped for safe shell usage.
func shellQuote(value string) string {
	escaped := strings.ReplaceAll(value, "'", "'\\''")
	return fmt.Sprintf("'%s'", escaped)
}

type sshRunner struct {
	mu     sync.Mutex
	cfg    Config
	client *ssh.Client
}

func (r *sshRunner) Run(ctx context.Context, cmd string) ([]byte, error) {
	client, err := r.dial(ctx)
	if err != nil {
		return nil, err
	}
	session, err := client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("create ssh session: %w", err)
	}
	defer session.Close()

	out, err := session.Output(cmd)
	if err != nil {
		return nil, fmt.Errorf("run %q: %w", cmd, err)
	}
	return out, nil
}

func (r *sshRunner) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.client == nil {
		return nil
	}
	err := r.client.Close()
	r.client = nil
	return err
}

func (r *sshRunner) dial(ctx context.Context) (*ssh.Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.client != nil {
		return r.client, nil
	}

	auth := []ssh.AuthMethod{}
	if r.cfg.Password != "" {
		auth = append(auth, ssh.Password(r.cfg.Password))
	}
	if r.cfg.KeyPath != "" {
		key, err := os.ReadFile(r.cfg.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("read ssh key: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, fmt.Errorf("parse ssh key: %w", err)
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}
	if len(auth) == 0 {
		return nil, fmt.Errorf("no ssh password or key configured")
	}

	config := &ssh.ClientConfig{
		User:            r.cfg.User,
		Auth:            auth,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         5 * time.Second,
	}

	addr := net.JoinHostPort(r.cfg.Host, fmt.Sprint(r.cfg.Port))
	dialer := net.Dialer{}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial ssh: %w", err)
	}

	clientConn, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("create ssh client: %w", err)
	}

	r.client = ssh.NewClient(clientConn, chans, reqs)
	return r.client, nil
}
