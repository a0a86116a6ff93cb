package daemon

import (
	"context"
	"errors"
	"time"

	"github.com/user/banwatch/internal/parse"
	"github.com/user/banwatch/internal/tail"
	"github.com/user/banwatch/internal/util"
)

// registerJobs registers the pipeline jobs with the scheduler.
func (d *Daemon) registerJobs() {
	d.scheduler.AddJob(&Job{
		Name:     "log_tail",
		Interval: d.config.TailInterval,
		Run:      d.runLogTail,
	})

	d.scheduler.AddJob(&Job{
		Name:     "reconcile",
		Interval: d.config.ReconcileInterval,
		Run:      d.runReconcile,
	})

	if d.sshTailer != nil {
		d.scheduler.AddJob(&Job{
			Name:     "ssh_log",
			Interval: d.config.SSHLogInterval,
			Run:      d.runSSHLog,
		})
	}

	d.scheduler.AddJob(&Job{
		Name:     "geo_resolve",
		Interval: d.config.GeoResolveInterval,
		Run:      d.runGeoResolve,
	})
}

// runLogTail feeds new fail2ban log lines through the parser into the
// aggregator. Parse failures degrade to unknown events and never abort
// the pipeline.
func (d *Daemon) runLogTail(ctx context.Context) error {
	lines, err := d.tailer.Poll()
	if err != nil {
		if errors.Is(err, tail.ErrSourceUnavailable) {
			util.Debug("fail2ban log unavailable: %v", err)
		}
		return err
	}

	events := 0
	for _, line := range lines {
		if line.Rotated {
			util.Info("fail2ban log rotated, cursor reset")
			continue
		}
		d.agg.AddRaw(line.Text)
		d.agg.Apply(parse.Parse(line.Text))
		events++
	}

	if events > 0 {
		util.Debug("Processed %d fail2ban log lines", events)
		d.saveCursors()
	}

	return nil
}

// runReconcile polls the daemon's own status and corrects the
// aggregated state against it. Jail ban times are queried once per
// newly seen jail to derive record expiry.
func (d *Daemon) runReconcile(ctx context.Context) error {
	statuses, err := d.client.AllJailStatuses(ctx)
	if err != nil {
		return err
	}

	for _, st := range statuses {
		if _, ok := d.knownJails[st.Name]; ok {
			continue
		}
		d.knownJails[st.Name] = struct{}{}
		if banTime, ok := d.client.BanTime(ctx, st.Name); ok {
			d.agg.SetBanTime(st.Name, banTime)
		}
	}

	d.agg.Reconcile(statuses)

	if err := WriteStatusFile(d.config.DataDir, d.GetStatus(), d.agg.BanCount(), len(statuses)); err != nil {
		util.Warn("Failed to write status file: %v", err)
	}

	return nil
}

// runSSHLog feeds SSH auth log lines into the attack statistics.
func (d *Daemon) runSSHLog(ctx context.Context) error {
	lines, err := d.sshTailer.Poll()
	if err != nil {
		return err
	}

	attempts := 0
	for _, line := range lines {
		if line.Rotated {
			continue
		}
		if attempt, ok := parse.ParseSSHLine(line.Text); ok {
			d.agg.ApplySSH(attempt)
			attempts++
		}
	}

	if attempts > 0 {
		util.Debug("Processed %d SSH auth attempts", attempts)
	}

	return nil
}

// runGeoResolve resolves countries for banned addresses ahead of
// snapshot requests, a small batch per cycle to respect the free geo
// API's rate limit.
func (d *Daemon) runGeoResolve(ctx context.Context) error {
	batch := d.config.GeoBatch
	if batch <= 0 {
		batch = 5
	}

	resolved := 0
	for _, addr := range d.agg.Addresses() {
		if _, ok := d.resolver.Cached(addr); ok {
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		d.resolver.Resolve(addr)
		resolved++
		if resolved >= batch {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}

	if resolved > 0 {
		util.Debug("Resolved %d banned addresses", resolved)
	}

	return nil
}

// saveCursors persists the tail cursors so a restart resumes instead
// of replaying the whole log.
func (d *Daemon) saveCursors() {
	offset, inode := d.tailer.Cursor()
	if inode != 0 {
		if err := d.cursors.Save(d.config.Fail2banLog, offset, inode); err != nil {
			util.Warn("Failed to persist tail cursor: %v", err)
		}
	}
}
