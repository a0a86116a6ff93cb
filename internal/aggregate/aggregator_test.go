package aggregate

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/banwatch/internal/model"
	"github.com/user/banwatch/internal/parse"
)

// stubResolver resolves from a fixed table; everything else is
// unresolved.
type stubResolver struct {
	table map[string]string
}

func (r *stubResolver) Resolve(ip string) string {
	if c, ok := r.table[ip]; ok {
		return c
	}
	return "??"
}

func newAggregator() *Aggregator {
	return New(&stubResolver{table: map[string]string{
		"203.0.113.5":  "FR",
		"198.51.100.7": "DE",
	}}, 100)
}

func banEvent(jail, ip string, at time.Time) model.SecurityEvent {
	return model.SecurityEvent{
		Kind:      model.KindBan,
		Jail:      jail,
		Address:   ip,
		Timestamp: at,
	}
}

func TestApplyBanCreatesRecord(t *testing.T) {
	agg := newAggregator()
	at := time.Date(2024, 1, 1, 10, 0, 0, 0, time.Local)

	ev := parse.Parse("2024-01-01 10:00:00 fail2ban.actions [sshd]: NOTICE [sshd] Ban 203.0.113.5")
	agg.Apply(ev)

	snap := agg.Snapshot()
	require.Len(t, snap.Bans, 1)
	assert.Equal(t, "203.0.113.5", snap.Bans[0].Address)
	assert.Equal(t, "sshd", snap.Bans[0].Jail)
	assert.Equal(t, at, snap.Bans[0].BannedAt)
	assert.False(t, snap.Bans[0].Approximate)
}

func TestApplyUnbanRemovesRecord(t *testing.T) {
	agg := newAggregator()
	at := time.Date(2024, 1, 1, 10, 0, 0, 0, time.Local)

	agg.Apply(banEvent("sshd", "203.0.113.5", at))
	agg.Apply(model.SecurityEvent{
		Kind:      model.KindUnban,
		Jail:      "sshd",
		Address:   "203.0.113.5",
		Timestamp: at.Add(time.Hour),
	})

	assert.Zero(t, agg.BanCount())
}

func TestReplayIsIdempotent(t *testing.T) {
	agg := newAggregator()

	lines := []string{
		"2024-01-01 10:00:00 fail2ban.actions [sshd]: NOTICE [sshd] Ban 203.0.113.5",
		"2024-01-01 10:05:00 fail2ban.actions [sshd]: NOTICE [sshd] Ban 198.51.100.7",
		"2024-01-01 10:06:00 fail2ban.filter [sshd]: INFO [sshd] Found 198.51.100.7",
	}

	// Simulate restart without a persisted cursor: the same lines are
	// parsed and applied twice.
	for i := 0; i < 2; i++ {
		for _, line := range lines {
			agg.Apply(parse.Parse(line))
		}
	}

	snap := agg.Snapshot()
	assert.Len(t, snap.Bans, 2, "one BanRecord per (address, jail)")

	// Country tallies dedupe replayed ban events too.
	counts := map[string]int{}
	for _, tally := range snap.Countries {
		counts[tally.Country] = tally.Count
	}
	assert.Equal(t, map[string]int{"FR": 1, "DE": 1}, counts)
}

func TestReconcileThenLogEventTalliesOnce(t *testing.T) {
	agg := newAggregator()

	// Reconcile discovers the ban first, then the tail job delivers
	// the log line for the same ban.
	agg.Reconcile([]model.JailStatus{{
		Name:      "sshd",
		Enabled:   true,
		BannedIPs: []string{"203.0.113.5"},
	}})
	agg.Apply(parse.Parse("2024-01-01 10:00:00 fail2ban.actions [sshd]: NOTICE [sshd] Ban 203.0.113.5"))

	snap := agg.Snapshot()
	require.Len(t, snap.Bans, 1)

	counts := map[string]int{}
	for _, tally := range snap.Countries {
		counts[tally.Country] = tally.Count
	}
	assert.Equal(t, map[string]int{"FR": 1}, counts, "one ban episode, one tally")
}

func TestOperatorBanThenLogEventTalliesOnce(t *testing.T) {
	agg := newAggregator()

	// An operator ban is applied with the command time; the daemon's
	// own log line carries the slightly earlier ban time.
	now := time.Now()
	agg.Apply(banEvent("sshd", "203.0.113.5", now))
	agg.Apply(banEvent("sshd", "203.0.113.5", now.Add(-time.Second)))

	snap := agg.Snapshot()
	require.Len(t, snap.Bans, 1)

	counts := map[string]int{}
	for _, tally := range snap.Countries {
		counts[tally.Country] = tally.Count
	}
	assert.Equal(t, map[string]int{"FR": 1}, counts)
}

func TestLogEventRefinesDiscoveredBan(t *testing.T) {
	agg := newAggregator()
	at := time.Date(2024, 1, 1, 10, 0, 0, 0, time.Local)

	agg.Reconcile([]model.JailStatus{{
		Name:      "sshd",
		Enabled:   true,
		BannedIPs: []string{"203.0.113.5"},
	}})
	agg.Apply(banEvent("sshd", "203.0.113.5", at))

	snap := agg.Snapshot()
	require.Len(t, snap.Bans, 1)
	assert.False(t, snap.Bans[0].Approximate, "log line supplies the authoritative ban time")
	assert.Equal(t, at, snap.Bans[0].BannedAt)
}

func TestBanRecordUniquePerJail(t *testing.T) {
	agg := newAggregator()
	at := time.Date(2024, 1, 1, 10, 0, 0, 0, time.Local)

	agg.Apply(banEvent("sshd", "203.0.113.5", at))
	agg.Apply(banEvent("nginx-http-auth", "203.0.113.5", at))

	assert.Equal(t, 2, agg.BanCount(), "same address in two jails is two records")
}

func TestReconcileDaemonTruthWins(t *testing.T) {
	agg := newAggregator()
	at := time.Date(2024, 1, 1, 10, 0, 0, 0, time.Local)

	// Locally derived state: two bans.
	agg.Apply(banEvent("sshd", "203.0.113.5", at))
	agg.Apply(banEvent("sshd", "192.0.2.1", at))

	// Daemon reports a different list: one kept, one gone, one new.
	agg.Reconcile([]model.JailStatus{{
		Name:            "sshd",
		Enabled:         true,
		CurrentlyBanned: 2,
		BannedIPs:       []string{"203.0.113.5", "198.51.100.7"},
	}})

	snap := agg.Snapshot()
	require.Len(t, snap.Bans, 2)
	assert.Equal(t, "198.51.100.7", snap.Bans[0].Address)
	assert.True(t, snap.Bans[0].Approximate, "daemon-discovered bans carry an approximate timestamp")
	assert.Equal(t, "203.0.113.5", snap.Bans[1].Address)
	assert.False(t, snap.Bans[1].Approximate)

	require.Len(t, snap.Jails, 1)
	assert.Equal(t, 2, snap.Jails[0].CurrentlyBanned)
}

func TestReconcileConvergesRegardlessOfReplayCount(t *testing.T) {
	daemonView := []model.JailStatus{{
		Name:      "sshd",
		Enabled:   true,
		BannedIPs: []string{"203.0.113.5"},
	}}

	lines := []string{
		"2024-01-01 10:00:00 fail2ban.actions [sshd]: NOTICE [sshd] Ban 203.0.113.5",
		"2024-01-01 10:05:00 fail2ban.actions [sshd]: NOTICE [sshd] Ban 192.0.2.1",
	}

	var results [][]model.BanRecord
	for _, replays := range []int{1, 3} {
		agg := newAggregator()
		for i := 0; i < replays; i++ {
			for _, line := range lines {
				agg.Apply(parse.Parse(line))
			}
		}
		agg.Reconcile(daemonView)
		results = append(results, agg.Snapshot().Bans)
	}

	require.Len(t, results[0], 1)
	assert.Equal(t, results[0][0].Address, results[1][0].Address)
	assert.Equal(t, results[0][0].Jail, results[1][0].Jail)
}

func TestReconcileRemovesVanishedJail(t *testing.T) {
	agg := newAggregator()
	at := time.Date(2024, 1, 1, 10, 0, 0, 0, time.Local)

	agg.Apply(banEvent("postfix", "192.0.2.1", at))
	agg.Reconcile([]model.JailStatus{{Name: "sshd", Enabled: true}})

	assert.Zero(t, agg.BanCount())
}

func TestReconcileNoDataKeepsLocalState(t *testing.T) {
	agg := newAggregator()
	agg.Apply(banEvent("sshd", "203.0.113.5", time.Now()))

	agg.Reconcile(nil)

	assert.Equal(t, 1, agg.BanCount())
}

func TestReconcileZeroJailsClearsBans(t *testing.T) {
	agg := newAggregator()
	agg.Apply(banEvent("sshd", "203.0.113.5", time.Now()))

	// The daemon answering with an empty jail list is real truth, not
	// a failed poll.
	agg.Reconcile([]model.JailStatus{})

	assert.Zero(t, agg.BanCount())
}

func TestCountriesIncludeUnresolvedBucket(t *testing.T) {
	agg := newAggregator()
	at := time.Date(2024, 1, 1, 10, 0, 0, 0, time.Local)

	agg.Apply(banEvent("sshd", "203.0.113.5", at))       // FR
	agg.Apply(banEvent("sshd", "192.168.1.50", at))      // private → unresolved
	agg.Apply(banEvent("sshd", "192.0.2.77", at))        // not in table → unresolved

	counts := map[string]int{}
	total := 0
	for _, tally := range agg.Snapshot().Countries {
		counts[tally.Country] = tally.Count
		total += tally.Count
	}

	assert.Equal(t, 2, counts["??"], "unresolved addresses are tallied, not dropped")
	assert.Equal(t, 1, counts["FR"])
	assert.Equal(t, 3, total)
}

func TestExpiredBansArePruned(t *testing.T) {
	agg := newAggregator()
	agg.SetBanTime("sshd", 10*time.Minute)

	agg.Apply(banEvent("sshd", "203.0.113.5", time.Now().Add(-time.Hour)))
	agg.Apply(banEvent("sshd", "198.51.100.7", time.Now()))

	snap := agg.Snapshot()
	require.Len(t, snap.Bans, 1)
	assert.Equal(t, "198.51.100.7", snap.Bans[0].Address)
}

func TestRecentLinesRing(t *testing.T) {
	agg := New(&stubResolver{}, 3)

	for i := 1; i <= 5; i++ {
		agg.AddRaw(fmt.Sprintf("line-%d", i))
	}

	assert.Equal(t, []string{"line-3", "line-4", "line-5"}, agg.RecentLines(0))
	assert.Equal(t, []string{"line-4", "line-5"}, agg.RecentLines(2))
}

func TestSnapshotIsACopy(t *testing.T) {
	agg := newAggregator()
	agg.Apply(banEvent("sshd", "203.0.113.5", time.Now()))

	snap := agg.Snapshot()
	snap.Bans[0].Address = "mutated"

	assert.Equal(t, "203.0.113.5", agg.Snapshot().Bans[0].Address)
}

func TestApplySSHStats(t *testing.T) {
	agg := newAggregator()

	attempts := []model.SSHAttempt{
		{Kind: model.SSHFailed, User: "root", Address: "203.0.113.5"},
		{Kind: model.SSHFailed, User: "root", Address: "203.0.113.5"},
		{Kind: model.SSHInvalidUser, User: "oracle", Address: "192.0.2.9"},
		{Kind: model.SSHAccepted, User: "deploy", Address: "198.51.100.7"},
	}
	for _, at := range attempts {
		agg.ApplySSH(at)
	}

	stats := agg.Snapshot().SSH
	assert.Equal(t, 1, stats.TotalAccepted)
	assert.Equal(t, 3, stats.TotalFailed)
	assert.Equal(t, 3, stats.UniqueSources)
	require.NotEmpty(t, stats.TopSources)
	assert.Equal(t, "203.0.113.5", stats.TopSources[0].Address)
	assert.Equal(t, 2, stats.TopSources[0].Count)
	require.NotEmpty(t, stats.TopUsers)
	assert.Equal(t, "root", stats.TopUsers[0].User)
}
