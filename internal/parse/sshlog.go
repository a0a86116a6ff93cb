package parse

import (
	"regexp"
	"strings"
	"time"

	"github.com/user/banwatch/internal/model"
)

// SSH auth log lines come in classic syslog form
//
//	Jan 20 10:15:30 host sshd[123]: Failed password for invalid user admin from 203.0.113.5 port 22 ssh2
//
// or ISO form on systemd systems. Year is absent in the syslog form
// and filled in from the ingestion clock.
var (
	sshTimestampRe = regexp.MustCompile(`^(\w{3}\s+\d{1,2}\s+\d{2}:\d{2}:\d{2}|\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2})`)

	sshAcceptedRe = regexp.MustCompile(`Accepted \w+ for (\S+) from (\d+\.\d+\.\d+\.\d+)`)
	sshFailedRe   = regexp.MustCompile(`Failed \w+ for (?:invalid user )?(\S+) from (\d+\.\d+\.\d+\.\d+)`)
	sshInvalidRe  = regexp.MustCompile(`Invalid user (\S+) from (\d+\.\d+\.\d+\.\d+)`)
	sshBreakInRe  = regexp.MustCompile(`POSSIBLE BREAK-IN ATTEMPT.*?(\d+\.\d+\.\d+\.\d+)`)
)

// ParseSSHLine extracts an authentication attempt from an sshd log
// line. ok is false for lines that are not sshd activity of interest.
func ParseSSHLine(raw string) (model.SSHAttempt, bool) {
	line := strings.TrimSpace(raw)
	if !strings.Contains(line, "sshd") {
		return model.SSHAttempt{}, false
	}

	at := model.SSHAttempt{
		Timestamp: parseSSHTimestamp(line),
		RawLine:   raw,
	}

	if m := sshFailedRe.FindStringSubmatch(line); m != nil {
		at.Kind = model.SSHFailed
		at.User = m[1]
		at.Address = m[2]
		return at, true
	}
	if m := sshInvalidRe.FindStringSubmatch(line); m != nil {
		at.Kind = model.SSHInvalidUser
		at.User = m[1]
		at.Address = m[2]
		return at, true
	}
	if m := sshBreakInRe.FindStringSubmatch(line); m != nil {
		at.Kind = model.SSHBreakIn
		at.User = "unknown"
		at.Address = m[1]
		return at, true
	}
	if m := sshAcceptedRe.FindStringSubmatch(line); m != nil {
		at.Kind = model.SSHAccepted
		at.User = m[1]
		at.Address = m[2]
		return at, true
	}

	return model.SSHAttempt{}, false
}

func parseSSHTimestamp(line string) time.Time {
	raw := sshTimestampRe.FindString(line)
	if raw == "" {
		return time.Now()
	}

	if ts, err := time.ParseInLocation("2006-01-02T15:04:05", raw, time.Local); err == nil {
		return ts
	}

	// Syslog form carries no year.
	if ts, err := time.ParseInLocation("Jan _2 15:04:05", raw, time.Local); err == nil {
		now := time.Now()
		ts = ts.AddDate(now.Year(), 0, 0)
		if ts.After(now.AddDate(0, 0, 1)) {
			// a December line read in January belongs to last year
			ts = ts.AddDate(-1, 0, 0)
		}
		return ts
	}

	return time.Now()
}
