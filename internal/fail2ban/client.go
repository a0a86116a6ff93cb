// Package fail2ban runs fail2ban-client subcommands and parses their
// output into structured results.
package fail2ban

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/user/banwatch/internal/model"
)

// UnbanResult distinguishes a real unban from a no-op.
type UnbanResult int

const (
	// Unbanned: the address was banned and has been removed.
	Unbanned UnbanResult = iota
	// AlreadyAbsent: the address was not banned in that jail. Not a
	// failure; callers may ignore it.
	AlreadyAbsent
)

// Client invokes fail2ban-client with a per-call timeout. It holds no
// state beyond the last observed availability of the daemon.
type Client struct {
	path    string
	timeout time.Duration

	mu        sync.Mutex
	available bool
}

// NewClient creates a client for the fail2ban-client binary at path.
func NewClient(path string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{path: path, timeout: timeout}
}

// Available reports the outcome of the most recent invocation.
func (c *Client) Available() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.available
}

func (c *Client) setAvailable(ok bool) {
	c.mu.Lock()
	c.available = ok
	c.mu.Unlock()
}

// run executes one fail2ban-client subcommand and returns its stdout.
func (c *Client) run(ctx context.Context, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, c.path, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if ctx.Err() == context.DeadlineExceeded {
		c.setAvailable(false)
		return "", &ExecError{Kind: ExecTimeout, Message: strings.Join(args, " "), Err: ctx.Err()}
	}
	if err != nil {
		return "", c.classify(err, stdout.String(), stderr.String())
	}

	c.setAvailable(true)
	return stdout.String(), nil
}

// classify maps a failed invocation onto the ExecError taxonomy. The
// raw daemon message is always preserved.
func (c *Client) classify(err error, stdout, stderr string) error {
	msg := strings.TrimSpace(stderr)
	if msg == "" {
		msg = strings.TrimSpace(stdout)
	}
	lower := strings.ToLower(msg)

	switch {
	case errors.Is(err, exec.ErrNotFound), errors.Is(err, os.ErrNotExist):
		c.setAvailable(false)
		return &ExecError{Kind: ExecNotAvailable, Message: msg, Err: err}
	case errors.Is(err, os.ErrPermission), strings.Contains(lower, "permission denied"):
		return &ExecError{Kind: ExecPermissionDenied, Message: msg, Err: err}
	case strings.Contains(lower, "is fail2ban running"),
		strings.Contains(lower, "failed to access socket"),
		strings.Contains(lower, "connection refused"):
		c.setAvailable(false)
		return &ExecError{Kind: ExecNotAvailable, Message: msg, Err: err}
	default:
		return &ExecError{Kind: ExecDaemonRejected, Message: msg, Err: err}
	}
}

// Ping checks that the fail2ban server answers.
func (c *Client) Ping(ctx context.Context) error {
	out, err := c.run(ctx, "ping")
	if err != nil {
		return err
	}
	if !strings.Contains(strings.ToLower(out), "pong") {
		return &ExecError{Kind: ExecDaemonRejected, Message: strings.TrimSpace(out)}
	}
	return nil
}

// Version returns the fail2ban server version string.
func (c *Client) Version(ctx context.Context) (string, error) {
	out, err := c.run(ctx, "version")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// Jails returns the names of all configured jails.
func (c *Client) Jails(ctx context.Context) ([]string, error) {
	out, err := c.run(ctx, "status")
	if err != nil {
		return nil, err
	}
	return parseJailList(out), nil
}

// JailStatus returns the detailed status of one jail.
func (c *Client) JailStatus(ctx context.Context, jail string) (model.JailStatus, error) {
	jail = sanitize(jail)
	out, err := c.run(ctx, "status", jail)
	if err != nil {
		return model.JailStatus{Name: jail, Error: err.Error()}, err
	}
	return parseJailStatus(jail, out), nil
}

// AllJailStatuses returns the status of every configured jail. A jail
// whose individual query fails is reported disabled with its error,
// not dropped; the error is returned only when the jail list itself
// cannot be fetched.
func (c *Client) AllJailStatuses(ctx context.Context) ([]model.JailStatus, error) {
	jails, err := c.Jails(ctx)
	if err != nil {
		return nil, err
	}

	statuses := make([]model.JailStatus, 0, len(jails))
	for _, jail := range jails {
		st, err := c.JailStatus(ctx, jail)
		if err != nil {
			st = model.JailStatus{Name: jail, Enabled: false, Error: err.Error()}
		}
		statuses = append(statuses, st)
	}
	return statuses, nil
}

// BanIP bans an address in the given jail.
func (c *Client) BanIP(ctx context.Context, jail, ip string) error {
	if net.ParseIP(ip) == nil {
		return &ExecError{Kind: ExecDaemonRejected, Message: fmt.Sprintf("invalid IP address %q", ip)}
	}
	_, err := c.run(ctx, "set", sanitize(jail), "banip", ip)
	return err
}

// BanIPFor bans an address with a custom ban time. A negative duration
// requests a permanent ban.
func (c *Client) BanIPFor(ctx context.Context, jail, ip string, banTime time.Duration) error {
	if net.ParseIP(ip) == nil {
		return &ExecError{Kind: ExecDaemonRejected, Message: fmt.Sprintf("invalid IP address %q", ip)}
	}
	jail = sanitize(jail)

	seconds := "-1"
	if banTime >= 0 {
		seconds = fmt.Sprintf("%d", int(banTime.Seconds()))
	}
	if _, err := c.run(ctx, "set", jail, "bantime", seconds); err != nil {
		return err
	}
	_, err := c.run(ctx, "set", jail, "banip", ip)
	return err
}

// UnbanIP removes a ban. Unbanning an address that is not banned yields
// AlreadyAbsent, not an error.
func (c *Client) UnbanIP(ctx context.Context, jail, ip string) (UnbanResult, error) {
	if net.ParseIP(ip) == nil {
		return AlreadyAbsent, &ExecError{Kind: ExecDaemonRejected, Message: fmt.Sprintf("invalid IP address %q", ip)}
	}

	out, err := c.run(ctx, "set", sanitize(jail), "unbanip", ip)
	if err != nil {
		var ee *ExecError
		if errors.As(err, &ee) && ee.Kind == ExecDaemonRejected &&
			strings.Contains(strings.ToLower(ee.Message), "not banned") {
			return AlreadyAbsent, nil
		}
		return AlreadyAbsent, err
	}

	// fail2ban >= 0.10 exits zero and prints the number of addresses
	// removed.
	if strings.TrimSpace(out) == "0" {
		return AlreadyAbsent, nil
	}
	return Unbanned, nil
}

// Reload reloads the whole server configuration.
func (c *Client) Reload(ctx context.Context) error {
	_, err := c.run(ctx, "reload")
	return err
}

// ReloadJail reloads one jail.
func (c *Client) ReloadJail(ctx context.Context, jail string) error {
	_, err := c.run(ctx, "reload", sanitize(jail))
	return err
}

// StartJail starts one jail.
func (c *Client) StartJail(ctx context.Context, jail string) error {
	_, err := c.run(ctx, "start", sanitize(jail))
	return err
}

// StopJail stops one jail.
func (c *Client) StopJail(ctx context.Context, jail string) error {
	_, err := c.run(ctx, "stop", sanitize(jail))
	return err
}

// JailConfig queries the common configuration parameters of a jail.
// Parameters that cannot be read are left empty.
func (c *Client) JailConfig(ctx context.Context, jail string) model.JailConfig {
	jail = sanitize(jail)

	get := func(param string) string {
		out, err := c.run(ctx, "get", jail, param)
		if err != nil {
			return ""
		}
		return strings.TrimSpace(out)
	}

	return model.JailConfig{
		BanTime:  get("bantime"),
		FindTime: get("findtime"),
		MaxRetry: get("maxretry"),
		LogPath:  get("logpath"),
		Backend:  get("backend"),
	}
}

// BanTime returns a jail's ban time. ok is false when the parameter is
// unreadable or the ban is permanent.
func (c *Client) BanTime(ctx context.Context, jail string) (time.Duration, bool) {
	out, err := c.run(ctx, "get", sanitize(jail), "bantime")
	if err != nil {
		return 0, false
	}
	var seconds int
	if _, err := fmt.Sscanf(strings.TrimSpace(out), "%d", &seconds); err != nil || seconds < 0 {
		return 0, false
	}
	return time.Duration(seconds) * time.Second, true
}

// ServerStatus summarises the fail2ban server.
func (c *Client) ServerStatus(ctx context.Context) model.ServerStatus {
	status := model.ServerStatus{}

	if err := c.Ping(ctx); err != nil {
		return status
	}
	status.Running = true

	if version, err := c.Version(ctx); err == nil {
		status.Version = version
	}

	statuses, err := c.AllJailStatuses(ctx)
	if err != nil {
		return status
	}
	status.TotalJails = len(statuses)
	for _, st := range statuses {
		if st.Enabled {
			status.ActiveJails++
		}
	}
	return status
}

// sanitize strips shell metacharacters from user-supplied arguments.
// Arguments never pass through a shell, but jail names come from the
// outside and end up in daemon commands.
func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ';', '&', '|', '`', '$', '(', ')', '<', '>', '"', '\'', '\\':
			return -1
		}
		return r
	}, strings.TrimSpace(s))
}
