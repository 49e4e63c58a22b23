// Package scheduler implements C5, the daemon loop that drives items through
// submission and completion. The per-tick algorithm (refresh, reconcile,
// admit) is ported from original_source's
// priority_queue/models/daemon.py (PriorityQueueDaemon.run). The cron-driven
// trigger is kept from the teacher's own scheduling idiom
// (pkg/queue/client.go's StartScheduler/Schedule), generalized from "sweep
// the delayed ZSET" to "run one admission tick".
package scheduler

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/robfig/cron/v3"

	"github.com/macq/tomtom-priority-queue/internal/logger"
	"github.com/macq/tomtom-priority-queue/internal/payloadstore"
	"github.com/macq/tomtom-priority-queue/internal/queueitem"
	"github.com/macq/tomtom-priority-queue/internal/remote"
	"github.com/macq/tomtom-priority-queue/internal/store"
)

// MaxConcurrentRemoteJobs bounds how many jobs we believe the remote service
// will run for us at once. Ported from the original's
// N_CONCURRENT_JOB_IN_PROGRESS constant.
const MaxConcurrentRemoteJobs = 5

// Remote is the subset of internal/remote.Client the daemon needs beyond
// what queueitem.Remote already covers: listing jobs currently in progress
// on the far side, for the admission cap and reconciliation passes.
type Remote interface {
	queueitem.Remote
	SearchJobs(ctx context.Context, states []string, perPage int) (remote.SearchJobsResult, error)
}

// inProgressStates lists the remote states search_jobs is filtered to, ported
// verbatim from daemon.py's in_progress_states.
var inProgressStates = []string{"NEW", "MAPMATCHED", "MAPMATCHING", "READING_GEOBASE", "CALCULATIONS", "SCHEDULED"}

// Daemon runs one admission/reconciliation tick per cron fire.
type Daemon struct {
	Store    *store.Store
	Payloads *payloadstore.Store
	Remote   Remote
	cron     *cron.Cron
	pid      *pidFile
}

// New constructs a Daemon. The spacing between ticks is given later to
// Start, which drives ticks from an "@every <n>s" cron.Cron entry the same
// way pkg/queue/client.go drives its delayed-task sweep.
func New(s *store.Store, payloads *payloadstore.Store, r Remote, pidPath string) *Daemon {
	return &Daemon{
		Store:    s,
		Payloads: payloads,
		Remote:   r,
		cron:     cron.New(cron.WithSeconds()),
		pid:      newPIDFile(pidPath),
	}
}

// Start acquires the pid-file guard and registers the cron entry. Sleep
// happens implicitly at the start of each cron period rather than being
// coded explicitly, avoiding a busy first tick on startup per spec.md §4.5.
func (d *Daemon) Start(ctx context.Context, loopPeriodSeconds int) error {
	if err := d.pid.acquire(); err != nil {
		return err
	}

	spec := fmt.Sprintf("@every %ds", loopPeriodSeconds)
	_, err := d.cron.AddFunc(spec, func() {
		if err := d.Tick(ctx); err != nil {
			// The daemon must never exit because of an unmanaged error from
			// one tick -- matching the original's bare `except Exception`
			// around the whole loop body.
			logger.Log.Error().Err(err).Msg("scheduler tick failed")
		}
	})
	if err != nil {
		d.pid.release()
		return fmt.Errorf("registering cron schedule: %w", err)
	}

	d.cron.Start()
	return nil
}

// Stop halts the cron scheduler and releases the pid-file. SIGTERM handling
// lives in cmd/daemon, which calls Stop from its signal handler; the current
// tick, if any, is allowed to finish -- no in-flight submit is interrupted.
func (d *Daemon) Stop() {
	stopCtx := d.cron.Stop()
	<-stopCtx.Done()
	d.pid.release()
}

// Tick runs one refresh/reconcile/admit pass. It's exported so tests (and
// cmd/daemon's --once mode, if ever added) can drive it synchronously
// instead of waiting on the cron schedule.
func (d *Daemon) Tick(ctx context.Context) error {
	logger.Log.Debug().Msg("daemonic loop starting")

	if err := d.Store.Load(); err != nil {
		return fmt.Errorf("refreshing store: %w", err)
	}

	search, err := d.Remote.SearchJobs(ctx, inProgressStates, 0)
	if err != nil {
		return fmt.Errorf("checking active remote jobs: %w", err)
	}
	activeIDs := make(map[int64]bool, len(search.Content))
	for _, entry := range search.Content {
		activeIDs[entry.JobID] = true
	}

	if search.TotalElements < MaxConcurrentRemoteJobs {
		logger.Log.Info().Int("available", MaxConcurrentRemoteJobs-search.TotalElements).Msg("available spots on the remote side")
	}

	if err := d.reconcile(ctx, activeIDs); err != nil {
		return fmt.Errorf("reconciliation pass: %w", err)
	}

	available := MaxConcurrentRemoteJobs - search.TotalElements
	if available > 0 {
		if err := d.admit(ctx, available); err != nil {
			return fmt.Errorf("admission pass: %w", err)
		}
	}

	return nil
}

// reconcile completes every SUBMITTED item whose remote job is no longer
// active, persisting all of the pass's completions with one flush at the end.
func (d *Daemon) reconcile(ctx context.Context, activeIDs map[int64]bool) error {
	submitted := d.Store.Filter(store.Filter{Statuses: []queueitem.Status{queueitem.StatusSubmitted}})

	var toPersist []*queueitem.Item
	for _, item := range submitted {
		if item.RemoteJobID == nil || activeIDs[*item.RemoteJobID] {
			continue
		}

		if err := item.Complete(ctx, d.Remote, d.Payloads); err != nil {
			logger.Log.Error().Err(err).Str("uid", item.UID).Msg("completing item failed, marking as error")
			item.MarkError()
		} else {
			logger.Log.Info().Str("uid", item.UID).Msg("completed item")
		}
		toPersist = append(toPersist, item)
	}

	if len(toPersist) == 0 {
		return nil
	}
	return d.Store.Upsert(toPersist, true)
}

// admit submits up to n waiting items, flushing after each one so a crash
// between two submits never loses a remote_job_id (spec.md §4.5, "why flush
// per submit, not per tick"). A crash after the remote accepts a job but
// before that item's flush still loses its remote_job_id: the item is
// waiting again on disk, and the next tick submits it a second time.
func (d *Daemon) admit(ctx context.Context, n int) error {
	for _, item := range d.Store.Next(n) {
		if err := item.Submit(ctx, d.Remote, d.Payloads); err != nil {
			logger.Log.Error().Err(err).Str("uid", item.UID).Msg("submit failed, marking as error")
			item.MarkError()
		} else {
			logger.Log.Info().Str("uid", item.UID).Int64("remote_job_id", valueOr(item.RemoteJobID, -1)).Msg("submitted item")
		}

		if err := d.Store.Upsert([]*queueitem.Item{item}, true); err != nil {
			return fmt.Errorf("persisting submission of %s: %w", item.UID, err)
		}
	}
	return nil
}

func valueOr(v *int64, fallback int64) int64 {
	if v == nil {
		return fallback
	}
	return *v
}

// pidFile guards against two daemon instances running against the same home
// directory at once. Ported from utils/daemon.py's Daemon.start/stop pid
// handling, translated to Go's liveness check (kill -0) instead of Python's
// bare "does this file exist" test -- a stale pid-file whose process is gone
// is replaced rather than treated as "already running" (spec.md §4.5).
type pidFile struct {
	path string
}

func newPIDFile(path string) *pidFile {
	return &pidFile{path: path}
}

func (p *pidFile) acquire() error {
	if raw, err := os.ReadFile(p.path); err == nil {
		if pid, perr := strconv.Atoi(strings.TrimSpace(string(raw))); perr == nil {
			if processAlive(pid) {
				return fmt.Errorf("pid file %s already exists and process %d is alive: daemon already running?", p.path, pid)
			}
			logger.Log.Warn().Int("pid", pid).Msg("replacing stale pid file")
		}
	}

	if err := os.MkdirAll(filepath.Dir(p.path), 0o755); err != nil {
		return fmt.Errorf("creating pid file directory: %w", err)
	}
	return os.WriteFile(p.path, []byte(fmt.Sprintf("%d\n", os.Getpid())), 0o644)
}

func (p *pidFile) release() {
	os.Remove(p.path)
}

func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	return syscall.Kill(pid, 0) == nil
}
