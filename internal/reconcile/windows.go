// Package reconcile pulls job, appointment, staffing, and payroll data from
// ServiceTitan and reconciles it into canonical job records.
package reconcile

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"

	"github.com/christmasair/ops-sync/pkg/servicetitan"
)

// ApptWindow is the scheduled time span chosen for a job.
type ApptWindow struct {
	Start time.Time
	End   time.Time
}

// windows holds the joined fetch results a run reconciles over.
type windows struct {
	jobs         []servicetitan.Job
	appointments []servicetitan.Appointment
	window       map[int64]ApptWindow
}

// fetchWindows pulls the four job/appointment windows concurrently and merges
// them. Any fetch failure is run-fatal: without a coherent job set there is
// nothing safe to reconcile.
func fetchWindows(ctx context.Context, client servicetitan.Client, now time.Time, horizonDays, lookbackDays int) (*windows, error) {
	horizon := now.AddDate(0, 0, horizonDays)
	lookback := now.AddDate(0, 0, -lookbackDays)

	var (
		upcoming    []servicetitan.Job
		completed   []servicetitan.Job
		futureAppts []servicetitan.Appointment
		recentAppts []servicetitan.Appointment
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		upcoming, err = client.ListScheduledJobs(gctx, now, horizon)
		return eris.Wrap(err, "reconcile: fetch upcoming jobs")
	})
	g.Go(func() error {
		var err error
		completed, err = client.ListCompletedJobs(gctx, lookback, now)
		return eris.Wrap(err, "reconcile: fetch completed jobs")
	})
	g.Go(func() error {
		var err error
		futureAppts, err = client.ListAppointments(gctx, now, horizon)
		return eris.Wrap(err, "reconcile: fetch upcoming appointments")
	})
	g.Go(func() error {
		var err error
		recentAppts, err = client.ListAppointments(gctx, lookback, now)
		return eris.Wrap(err, "reconcile: fetch recent appointments")
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	w := &windows{
		jobs:         mergeJobs(upcoming, completed),
		appointments: append(recentAppts, futureAppts...),
		window:       mergeWindows(futureAppts, recentAppts),
	}
	return w, nil
}

// mergeJobs deduplicates two job sets by external id. The preferred set wins:
// fallback rows are inserted first, then overwritten by preferred rows, so a
// job in both windows carries the preferred window's fields.
func mergeJobs(preferred, fallback []servicetitan.Job) []servicetitan.Job {
	byID := make(map[int64]servicetitan.Job, len(preferred)+len(fallback))
	for _, j := range fallback {
		byID[j.ID] = j
	}
	for _, j := range preferred {
		byID[j.ID] = j
	}

	out := make([]servicetitan.Job, 0, len(byID))
	for _, j := range byID {
		out = append(out, j)
	}
	return out
}

// mergeWindows picks one appointment window per job. Within a set, the
// earliest-starting appointment defines the window. Across sets the preferred
// (upcoming) set wins outright: a fallback entry is never applied to a job
// that already has a preferred window.
func mergeWindows(preferred, fallback []servicetitan.Appointment) map[int64]ApptWindow {
	win := make(map[int64]ApptWindow)
	apply := func(appts []servicetitan.Appointment, skipExisting map[int64]bool) {
		for _, a := range appts {
			if skipExisting != nil && skipExisting[a.JobID] {
				continue
			}
			cur, ok := win[a.JobID]
			if !ok || a.Start.Before(cur.Start) {
				win[a.JobID] = ApptWindow{Start: a.Start, End: a.End}
			}
		}
	}

	apply(preferred, nil)

	fromPreferred := make(map[int64]bool, len(win))
	for id := range win {
		fromPreferred[id] = true
	}
	apply(fallback, fromPreferred)
	return win
}
