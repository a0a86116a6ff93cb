// Package model defines core data structures for banwatch.
package model

import "time"

// EventKind classifies a parsed fail2ban log line.
type EventKind string

const (
	KindBan         EventKind = "ban"
	KindUnban       EventKind = "unban"
	KindMatchFound  EventKind = "found"
	KindDaemonStart EventKind = "daemon_start"
	KindDaemonStop  EventKind = "daemon_stop"
	KindUnknown     EventKind = "unknown"
)

// SecurityEvent is one parsed log line. Immutable once produced;
// events are ordered by their position in the source file.
type SecurityEvent struct {
	Kind      EventKind `json:"kind"`
	Jail      string    `json:"jail,omitempty"`
	Address   string    `json:"address,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	// TimeEstimated is set when the line carried no parseable timestamp
	// and the ingestion time was substituted.
	TimeEstimated bool   `json:"time_estimated,omitempty"`
	RawLine       string `json:"raw_line"`
}

// BanRecord is one currently banned address. Unique per (Address, Jail).
type BanRecord struct {
	Address  string    `json:"address"`
	Jail     string    `json:"jail"`
	BannedAt time.Time `json:"banned_at"`
	// ExpiresAt is zero when the ban time is unknown or permanent.
	ExpiresAt time.Time `json:"expires_at,omitempty"`
	// Approximate is set for bans discovered via reconciliation,
	// where BannedAt is the reconciliation time rather than the
	// time the daemon issued the ban.
	Approximate bool `json:"approximate,omitempty"`
}

// JailStatus mirrors one jail as reported by fail2ban-client.
// Refreshed wholesale on each status poll.
type JailStatus struct {
	Name            string   `json:"name"`
	Enabled         bool     `json:"enabled"`
	Filter          string   `json:"filter,omitempty"`
	Actions         []string `json:"actions,omitempty"`
	CurrentlyFailed int      `json:"currently_failed"`
	TotalFailed     int      `json:"total_failed"`
	CurrentlyBanned int      `json:"currently_banned"`
	TotalBanned     int      `json:"total_banned"`
	BannedIPs       []string `json:"banned_ips,omitempty"`
	Error           string   `json:"error,omitempty"`
}

// CountryTally is the number of ban events attributed to one country.
// Unresolvable addresses are tallied under the unresolved bucket,
// never dropped.
type CountryTally struct {
	Country string `json:"country"`
	Count   int    `json:"count"`
}

// Snapshot is a consistent view of the aggregated state.
type Snapshot struct {
	TakenAt   time.Time      `json:"taken_at"`
	Bans      []BanRecord    `json:"bans"`
	Jails     []JailStatus   `json:"jails"`
	Countries []CountryTally `json:"countries"`
	SSH       SSHStats       `json:"ssh"`
}

// ServerStatus summarises the fail2ban server itself.
type ServerStatus struct {
	Running     bool   `json:"running"`
	Version     string `json:"version,omitempty"`
	TotalJails  int    `json:"total_jails"`
	ActiveJails int    `json:"active_jails"`
}

// JailConfig holds the queryable configuration of one jail.
type JailConfig struct {
	BanTime  string `json:"bantime,omitempty"`
	FindTime string `json:"findtime,omitempty"`
	MaxRetry string `json:"maxretry,omitempty"`
	LogPath  string `json:"logpath,omitempty"`
	Backend  string `json:"backend,omitempty"`
}

// SSHAttemptKind classifies a parsed SSH auth log line.
type SSHAttemptKind string

const (
	SSHAccepted    SSHAttemptKind = "accepted"
	SSHFailed      SSHAttemptKind = "failed"
	SSHInvalidUser SSHAttemptKind = "invalid_user"
	SSHBreakIn     SSHAttemptKind = "break_in"
)

// SSHAttempt is one parsed SSH authentication attempt.
type SSHAttempt struct {
	Kind      SSHAttemptKind `json:"kind"`
	User      string         `json:"user,omitempty"`
	Address   string         `json:"address"`
	Timestamp time.Time      `json:"timestamp"`
	RawLine   string         `json:"raw_line"`
}

// AddressCount pairs a source address with an attempt count.
type AddressCount struct {
	Address string `json:"address"`
	Count   int    `json:"count"`
}

// UserCount pairs a username with an attempt count.
type UserCount struct {
	User  string `json:"user"`
	Count int    `json:"count"`
}

// SSHStats aggregates SSH authentication activity.
type SSHStats struct {
	TotalAccepted int            `json:"total_accepted"`
	TotalFailed   int            `json:"total_failed"`
	UniqueSources int            `json:"unique_sources"`
	TopSources    []AddressCount `json:"top_sources,omitempty"`
	TopUsers      []UserCount    `json:"top_users,omitempty"`
}
