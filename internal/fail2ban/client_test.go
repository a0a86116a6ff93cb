package fail2ban

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClient writes a shell script standing in for fail2ban-client.
func fakeClient(t *testing.T, script string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fail2ban-client")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+script+"\n"), 0755))
	return path
}

func TestPing(t *testing.T) {
	path := fakeClient(t, `echo "Server replied: pong"`)
	c := NewClient(path, time.Second)

	require.NoError(t, c.Ping(context.Background()))
	assert.True(t, c.Available())
}

func TestPingUnexpectedReply(t *testing.T) {
	path := fakeClient(t, `echo "something else"`)
	c := NewClient(path, time.Second)

	err := c.Ping(context.Background())
	kind, ok := ErrKind(err)
	require.True(t, ok)
	assert.Equal(t, ExecDaemonRejected, kind)
}

func TestJails(t *testing.T) {
	path := fakeClient(t, `cat <<'EOF'
Status
|- Number of jail:	2
`+"`"+`- Jail list:	sshd, nginx-http-auth
EOF`)
	c := NewClient(path, time.Second)

	jails, err := c.Jails(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"sshd", "nginx-http-auth"}, jails)
}

func TestJailStatus(t *testing.T) {
	path := fakeClient(t, `cat <<'EOF'
Status for the jail: sshd
|- Filter
|  |- Currently failed:	1
|  |- Total failed:	14
|  `+"`"+`- File list:	/var/log/auth.log
`+"`"+`- Actions
   |- Currently banned:	2
   |- Total banned:	6
   `+"`"+`- Banned IP list:	203.0.113.5 198.51.100.7
EOF`)
	c := NewClient(path, time.Second)

	st, err := c.JailStatus(context.Background(), "sshd")
	require.NoError(t, err)
	assert.True(t, st.Enabled)
	assert.Equal(t, 1, st.CurrentlyFailed)
	assert.Equal(t, 14, st.TotalFailed)
	assert.Equal(t, 2, st.CurrentlyBanned)
	assert.Equal(t, 6, st.TotalBanned)
	assert.Equal(t, []string{"203.0.113.5", "198.51.100.7"}, st.BannedIPs)
}

func TestUnbanAlreadyAbsentFromError(t *testing.T) {
	path := fakeClient(t, `echo "203.0.113.5 is not banned" >&2; exit 255`)
	c := NewClient(path, time.Second)

	result, err := c.UnbanIP(context.Background(), "sshd", "203.0.113.5")
	require.NoError(t, err)
	assert.Equal(t, AlreadyAbsent, result)
}

func TestUnbanAlreadyAbsentFromZeroCount(t *testing.T) {
	path := fakeClient(t, `echo "0"`)
	c := NewClient(path, time.Second)

	result, err := c.UnbanIP(context.Background(), "sshd", "203.0.113.5")
	require.NoError(t, err)
	assert.Equal(t, AlreadyAbsent, result)
}

func TestUnbanRemoved(t *testing.T) {
	path := fakeClient(t, `echo "1"`)
	c := NewClient(path, time.Second)

	result, err := c.UnbanIP(context.Background(), "sshd", "203.0.113.5")
	require.NoError(t, err)
	assert.Equal(t, Unbanned, result)
}

func TestBanInvalidAddress(t *testing.T) {
	path := fakeClient(t, `echo "1"`)
	c := NewClient(path, time.Second)

	err := c.BanIP(context.Background(), "sshd", "not-an-ip")
	kind, ok := ErrKind(err)
	require.True(t, ok)
	assert.Equal(t, ExecDaemonRejected, kind)
}

func TestTimeoutDoesNotPoisonNextCall(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fail2ban-client")
	marker := filepath.Join(dir, "fast")

	// Slow on the first call, instant afterwards.
	script := "#!/bin/sh\nif [ -e " + marker + " ]; then echo pong; else touch " + marker + "; sleep 5; fi\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0755))

	c := NewClient(path, 200*time.Millisecond)

	err := c.Ping(context.Background())
	assert.True(t, IsTimeout(err))

	// The next scheduled call proceeds independently.
	require.NoError(t, c.Ping(context.Background()))
}

func TestNotAvailable(t *testing.T) {
	c := NewClient(filepath.Join(t.TempDir(), "missing-binary"), time.Second)

	err := c.Ping(context.Background())
	assert.True(t, IsNotAvailable(err))
	assert.False(t, c.Available())
}

func TestDaemonRejectedKeepsMessage(t *testing.T) {
	path := fakeClient(t, `echo "Sorry but the jail 'nope' does not exist" >&2; exit 255`)
	c := NewClient(path, time.Second)

	_, err := c.JailStatus(context.Background(), "nope")
	kind, ok := ErrKind(err)
	require.True(t, ok)
	assert.Equal(t, ExecDaemonRejected, kind)
	assert.Contains(t, err.Error(), "does not exist")
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, "sshd", sanitize("  sshd  "))
	assert.Equal(t, "sshd rm -rf /", sanitize("sshd; rm -rf /"))
	assert.Equal(t, "jail", sanitize("jail`$(evil)`"))
}
