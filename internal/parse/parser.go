// Package parse converts raw fail2ban and SSH auth log lines into
// typed security events.
package parse

import (
	"regexp"
	"strings"
	"time"

	"github.com/user/banwatch/internal/model"
)

// Typical fail2ban log line:
//
//	2023-01-20 10:15:30,123 fail2ban.actions [1234]: NOTICE [sshd] Ban 192.168.0.101
//
// The millisecond part and the pid field are absent in some versions,
// so the timestamp and the action are extracted independently.
var (
	timestampRe = regexp.MustCompile(`\d{4}-\d{2}-\d{2}[ T]\d{2}:\d{2}:\d{2}(?:[.,]\d{3})?`)

	banRe   = regexp.MustCompile(`\[([^\]\s]+)\]\s+(?:Restore )?Ban\s+(\S+)`)
	unbanRe = regexp.MustCompile(`\[([^\]\s]+)\]\s+Unban\s+(\S+)`)
	foundRe = regexp.MustCompile(`\[([^\]\s]+)\]\s+Found\s+(\S+)`)

	daemonStartRe = regexp.MustCompile(`Starting Fail2ban|Server ready`)
	daemonStopRe  = regexp.MustCompile(`Shutdown successful|Exiting Fail2ban|Stopping all jails`)
)

var timestampLayouts = []string{
	"2006-01-02 15:04:05,000",
	"2006-01-02 15:04:05.000",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// Parse converts one raw log line into a SecurityEvent. Lines matching
// no known action degrade to KindUnknown; parsing never fails. When a
// line matches several action keywords, the fixed priority order
// Ban > Unban > MatchFound > DaemonStart/Stop decides.
func Parse(raw string) model.SecurityEvent {
	line := strings.TrimSpace(raw)

	ev := model.SecurityEvent{
		Kind:    model.KindUnknown,
		RawLine: raw,
	}

	ts, ok := parseTimestamp(line)
	if ok {
		ev.Timestamp = ts
	} else {
		ev.Timestamp = time.Now()
		ev.TimeEstimated = true
	}

	if m := banRe.FindStringSubmatch(line); m != nil {
		ev.Kind = model.KindBan
		ev.Jail = m[1]
		ev.Address = m[2]
		return ev
	}
	if m := unbanRe.FindStringSubmatch(line); m != nil {
		ev.Kind = model.KindUnban
		ev.Jail = m[1]
		ev.Address = m[2]
		return ev
	}
	if m := foundRe.FindStringSubmatch(line); m != nil {
		ev.Kind = model.KindMatchFound
		ev.Jail = m[1]
		ev.Address = m[2]
		return ev
	}
	if daemonStartRe.MatchString(line) {
		ev.Kind = model.KindDaemonStart
		return ev
	}
	if daemonStopRe.MatchString(line) {
		ev.Kind = model.KindDaemonStop
		return ev
	}

	return ev
}

func parseTimestamp(line string) (time.Time, bool) {
	raw := timestampRe.FindString(line)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if ts, err := time.ParseInLocation(layout, raw, time.Local); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}
