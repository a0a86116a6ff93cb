// Package aggregate maintains the derived view of fail2ban state: the
// current ban set, per-jail counters, per-country tallies and SSH
// attack statistics. All mutation funnels through one Aggregator; the
// exported read paths return copies, never live internals.
package aggregate

import (
	"sort"
	"sync"
	"time"

	"github.com/user/banwatch/internal/model"
)

const topListSize = 10

// CountryResolver maps an address to a country code. Satisfied by
// *geo.Resolver.
type CountryResolver interface {
	Resolve(ip string) string
}

type banKey struct {
	jail    string
	address string
}

// historyKey dedupes historical ban events so that replaying the same
// log lines (restart without a persisted cursor) never double-counts.
type historyKey struct {
	jail    string
	address string
	at      time.Time
}

// Aggregator is the single owner of mutable ban/tally state.
type Aggregator struct {
	mu sync.RWMutex

	bans     map[banKey]model.BanRecord
	jails    []model.JailStatus
	banTimes map[string]time.Duration // per-jail ban duration, for expiry

	historySeen  map[historyKey]struct{}
	historyCount map[string]int // ban events per address, replay-deduped

	recent []string // ring of raw log lines
	next   int
	filled bool

	sshSources  map[string]int
	sshUsers    map[string]int
	sshAccepted int
	sshFailed   int

	resolver CountryResolver
}

// New creates an aggregator. recentLimit bounds the raw line buffer.
func New(resolver CountryResolver, recentLimit int) *Aggregator {
	if recentLimit <= 0 {
		recentLimit = 500
	}
	return &Aggregator{
		bans:         make(map[banKey]model.BanRecord),
		banTimes:     make(map[string]time.Duration),
		historySeen:  make(map[historyKey]struct{}),
		historyCount: make(map[string]int),
		recent:       make([]string, recentLimit),
		sshSources:   make(map[string]int),
		sshUsers:     make(map[string]int),
		resolver:     resolver,
	}
}

// AddRaw records a raw log line for the recent-lines view.
func (a *Aggregator) AddRaw(line string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.recent[a.next] = line
	a.next++
	if a.next == len(a.recent) {
		a.next = 0
		a.filled = true
	}
}

// Apply folds one parsed event into the ban set. Unknown and
// match-found events leave the set untouched; they are visible only
// through the raw line buffer.
func (a *Aggregator) Apply(ev model.SecurityEvent) {
	if ev.Jail == "" || ev.Address == "" {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	key := banKey{jail: ev.Jail, address: ev.Address}

	switch ev.Kind {
	case model.KindBan:
		hk := historyKey{jail: ev.Jail, address: ev.Address, at: ev.Timestamp}

		if existing, ok := a.bans[key]; ok && !ev.Timestamp.After(existing.BannedAt) {
			// the ban episode is already held: a replayed log line, or
			// the log line for a ban first seen via reconciliation or an
			// operator command. One episode, one tally.
			a.historySeen[hk] = struct{}{}
			if existing.Approximate {
				// the log line carries the authoritative ban time
				a.bans[key] = a.newRecord(ev.Jail, ev.Address, ev.Timestamp)
			}
			return
		}

		if _, seen := a.historySeen[hk]; !seen {
			a.historySeen[hk] = struct{}{}
			a.historyCount[ev.Address]++
		}
		a.bans[key] = a.newRecord(ev.Jail, ev.Address, ev.Timestamp)

	case model.KindUnban:
		delete(a.bans, key)
	}
}

// newRecord builds a ban record, deriving expiry from the jail's ban
// time when known. Caller holds the lock.
func (a *Aggregator) newRecord(jail, address string, at time.Time) model.BanRecord {
	record := model.BanRecord{
		Address:  address,
		Jail:     jail,
		BannedAt: at,
	}
	if d, ok := a.banTimes[jail]; ok && d > 0 {
		record.ExpiresAt = at.Add(d)
	}
	return record
}

// ApplySSH folds one SSH authentication attempt into the attack stats.
func (a *Aggregator) ApplySSH(at model.SSHAttempt) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if at.Address != "" {
		a.sshSources[at.Address]++
	}
	switch at.Kind {
	case model.SSHAccepted:
		a.sshAccepted++
	default:
		a.sshFailed++
		if at.User != "" {
			a.sshUsers[at.User]++
		}
	}
}

// SetBanTime records a jail's configured ban duration, used to derive
// ban expiry for log-sourced records.
func (a *Aggregator) SetBanTime(jail string, d time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.banTimes[jail] = d
}

// Reconcile corrects the local ban set against the daemon's own
// status. The daemon is authoritative in both directions: local
// records the daemon no longer reports are dropped, daemon-reported
// bans missing locally are added with an approximate timestamp. Jail
// counters are taken wholesale, never patched from events.
func (a *Aggregator) Reconcile(statuses []model.JailStatus) {
	// nil means the poll yielded no data and the local state stands;
	// an empty non-nil slice is the daemon reporting zero jails, which
	// is authoritative like any other answer.
	if statuses == nil {
		return
	}

	now := time.Now()

	a.mu.Lock()
	defer a.mu.Unlock()

	a.jails = make([]model.JailStatus, len(statuses))
	copy(a.jails, statuses)

	authoritative := make(map[banKey]struct{})

	for _, st := range statuses {
		for _, ip := range st.BannedIPs {
			key := banKey{jail: st.Name, address: ip}
			authoritative[key] = struct{}{}

			if _, ok := a.bans[key]; !ok {
				record := a.newRecord(st.Name, ip, now)
				record.Approximate = true
				a.bans[key] = record
				a.historyCount[ip]++
			}
		}
	}

	// daemon-reported absence wins, whether the jail dropped the ban
	// or the jail itself is gone
	for key := range a.bans {
		if _, ok := authoritative[key]; !ok {
			delete(a.bans, key)
		}
	}
}

// Snapshot returns a consistent copy of the aggregated state. Country
// resolution happens outside the lock; the resolver's cache keeps this
// cheap after the first pass.
func (a *Aggregator) Snapshot() model.Snapshot {
	a.pruneExpired(time.Now())

	a.mu.RLock()

	snap := model.Snapshot{
		TakenAt: time.Now(),
		Bans:    make([]model.BanRecord, 0, len(a.bans)),
		Jails:   make([]model.JailStatus, len(a.jails)),
	}
	copy(snap.Jails, a.jails)
	for _, record := range a.bans {
		snap.Bans = append(snap.Bans, record)
	}

	history := make(map[string]int, len(a.historyCount))
	for addr, n := range a.historyCount {
		history[addr] = n
	}

	snap.SSH = a.sshStatsLocked()

	a.mu.RUnlock()

	sort.Slice(snap.Bans, func(i, j int) bool {
		if snap.Bans[i].Jail != snap.Bans[j].Jail {
			return snap.Bans[i].Jail < snap.Bans[j].Jail
		}
		return snap.Bans[i].Address < snap.Bans[j].Address
	})

	snap.Countries = a.tallyCountries(history)
	return snap
}

// tallyCountries recomputes per-country counts from the replay-deduped
// ban event history. Runs without the aggregator lock because the
// resolver may hit the network on a cold cache.
func (a *Aggregator) tallyCountries(history map[string]int) []model.CountryTally {
	counts := make(map[string]int)
	for addr, n := range history {
		counts[a.resolver.Resolve(addr)] += n
	}

	tallies := make([]model.CountryTally, 0, len(counts))
	for country, n := range counts {
		tallies = append(tallies, model.CountryTally{Country: country, Count: n})
	}
	sort.Slice(tallies, func(i, j int) bool {
		if tallies[i].Count != tallies[j].Count {
			return tallies[i].Count > tallies[j].Count
		}
		return tallies[i].Country < tallies[j].Country
	})
	return tallies
}

func (a *Aggregator) sshStatsLocked() model.SSHStats {
	stats := model.SSHStats{
		TotalAccepted: a.sshAccepted,
		TotalFailed:   a.sshFailed,
		UniqueSources: len(a.sshSources),
	}

	for addr, n := range a.sshSources {
		stats.TopSources = append(stats.TopSources, model.AddressCount{Address: addr, Count: n})
	}
	sort.Slice(stats.TopSources, func(i, j int) bool {
		if stats.TopSources[i].Count != stats.TopSources[j].Count {
			return stats.TopSources[i].Count > stats.TopSources[j].Count
		}
		return stats.TopSources[i].Address < stats.TopSources[j].Address
	})
	if len(stats.TopSources) > topListSize {
		stats.TopSources = stats.TopSources[:topListSize]
	}

	for user, n := range a.sshUsers {
		stats.TopUsers = append(stats.TopUsers, model.UserCount{User: user, Count: n})
	}
	sort.Slice(stats.TopUsers, func(i, j int) bool {
		if stats.TopUsers[i].Count != stats.TopUsers[j].Count {
			return stats.TopUsers[i].Count > stats.TopUsers[j].Count
		}
		return stats.TopUsers[i].User < stats.TopUsers[j].User
	})
	if len(stats.TopUsers) > topListSize {
		stats.TopUsers = stats.TopUsers[:topListSize]
	}

	return stats
}

// pruneExpired drops records whose ban time has elapsed. The daemon
// unbans them on its side too; this keeps snapshots honest between
// reconcile polls.
func (a *Aggregator) pruneExpired(now time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for key, record := range a.bans {
		if !record.ExpiresAt.IsZero() && record.ExpiresAt.Before(now) {
			delete(a.bans, key)
		}
	}
}

// RecentLines returns up to limit of the most recent raw log lines,
// oldest first.
func (a *Aggregator) RecentLines(limit int) []string {
	a.mu.RLock()
	defer a.mu.RUnlock()

	var lines []string
	if a.filled {
		lines = append(lines, a.recent[a.next:]...)
	}
	lines = append(lines, a.recent[:a.next]...)

	if limit > 0 && len(lines) > limit {
		lines = lines[len(lines)-limit:]
	}
	out := make([]string, len(lines))
	copy(out, lines)
	return out
}

// Addresses returns every address in the current ban set, for batch
// geolocation warm-up.
func (a *Aggregator) Addresses() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()

	seen := make(map[string]struct{}, len(a.bans))
	var addrs []string
	for key := range a.bans {
		if _, ok := seen[key.address]; ok {
			continue
		}
		seen[key.address] = struct{}{}
		addrs = append(addrs, key.address)
	}
	sort.Strings(addrs)
	return addrs
}

// BanCount returns the current number of ban records.
func (a *Aggregator) BanCount() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.bans)
}
