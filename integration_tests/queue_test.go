// Package integration_tests walks the full scenarios from spec.md §8
// end to end: admin surface -> store -> scheduler -> remote, using
// remote.DummyClient in place of a live TomTom account (mirroring how the
// teacher's own integration test requires a reachable Redis; this one
// requires nothing external, since the dummy remote client is part of this
// module).
package integration_tests

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/macq/tomtom-priority-queue/internal/payloadstore"
	"github.com/macq/tomtom-priority-queue/internal/queueitem"
	"github.com/macq/tomtom-priority-queue/internal/remote"
	"github.com/macq/tomtom-priority-queue/internal/scheduler"
	"github.com/macq/tomtom-priority-queue/internal/store"
)

type testRig struct {
	store    *store.Store
	payloads *payloadstore.Store
	daemon   *scheduler.Daemon
}

func newTestRig(t *testing.T) *testRig {
	t.Helper()
	home := t.TempDir()

	payloads, err := payloadstore.New(filepath.Join(home, "payloads"))
	if err != nil {
		t.Fatalf("payloadstore.New failed: %v", err)
	}
	s, err := store.Open(filepath.Join(home, "db.parquet"))
	if err != nil {
		t.Fatalf("store.Open failed: %v", err)
	}
	dummy := remote.NewDummyClient()
	d := scheduler.New(s, payloads, dummy, filepath.Join(home, "daemon.pid"))

	return &testRig{store: s, payloads: payloads, daemon: d}
}

// TestSingleRouteJobHappyPath is scenario 1 from spec.md §8.
func TestSingleRouteJobHappyPath(t *testing.T) {
	rig := newTestRig(t)

	item, err := queueitem.New(rig.payloads, "R", queueitem.ReportRouteAnalysis, []byte(`{"route":"a-b"}`), 5)
	if err != nil {
		t.Fatalf("queueitem.New failed: %v", err)
	}
	rig.store.Insert(item)
	if err := rig.store.Flush(); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	next := rig.store.Next(1)
	if len(next) != 1 || next[0].Status() != queueitem.StatusWaiting {
		t.Fatalf("expected the new item to be listed as waiting, got %+v", next)
	}

	if err := rig.daemon.Tick(context.Background()); err != nil {
		t.Fatalf("Tick failed: %v", err)
	}
	got := rig.store.Get(item.UID)
	if got.Status() != queueitem.StatusSubmitted {
		t.Fatalf("expected SUBMITTED after one tick, got %s", got.Status())
	}
	if got.RemoteJobID == nil || *got.RemoteJobID != 1 {
		t.Fatalf("expected remote_job_id 1 from the dummy adapter, got %v", got.RemoteJobID)
	}

	if err := rig.daemon.Tick(context.Background()); err != nil {
		t.Fatalf("second Tick failed: %v", err)
	}
	got = rig.store.Get(item.UID)
	if got.Status() != queueitem.StatusCompleted {
		t.Fatalf("expected COMPLETED after reconciliation, got %s", got.Status())
	}
}

// TestPriorityOrdering is scenario 2 from spec.md §8.
func TestPriorityOrdering(t *testing.T) {
	rig := newTestRig(t)
	base := time.Now().UTC()

	priorities := []int64{1, 9, 5}
	for i, p := range priorities {
		item, err := queueitem.New(rig.payloads, fmt.Sprintf("job-%d", i), queueitem.ReportRouteAnalysis, []byte("{}"), p)
		if err != nil {
			t.Fatalf("queueitem.New failed: %v", err)
		}
		item.CreatedAt = base.Add(time.Duration(i) * time.Second)
		rig.store.Insert(item)
	}

	next := rig.store.Next(3)
	want := []int64{9, 5, 1}
	for i, w := range want {
		if next[i].Priority != w {
			t.Fatalf("expected priority order %v, got %v", want, []int64{next[0].Priority, next[1].Priority, next[2].Priority})
		}
	}
}

// TestTieBreakByAge is scenario 3 from spec.md §8.
func TestTieBreakByAge(t *testing.T) {
	rig := newTestRig(t)
	base := time.Now().UTC()

	first, err := queueitem.New(rig.payloads, "first", queueitem.ReportRouteAnalysis, []byte(`{"n":1}`), 7)
	if err != nil {
		t.Fatalf("queueitem.New failed: %v", err)
	}
	first.CreatedAt = base
	rig.store.Insert(first)

	second, err := queueitem.New(rig.payloads, "second", queueitem.ReportRouteAnalysis, []byte(`{"n":2}`), 7)
	if err != nil {
		t.Fatalf("queueitem.New failed: %v", err)
	}
	second.CreatedAt = base.Add(time.Second)
	rig.store.Insert(second)

	next := rig.store.Next(2)
	if next[0].UID != first.UID {
		t.Fatalf("expected the older same-priority item first, got %s", next[0].Name)
	}
}

// TestCancelBeforeSubmit is scenario 4 from spec.md §8.
func TestCancelBeforeSubmit(t *testing.T) {
	rig := newTestRig(t)

	item, err := queueitem.New(rig.payloads, "cancel me", queueitem.ReportRouteAnalysis, []byte("{}"), 1)
	if err != nil {
		t.Fatalf("queueitem.New failed: %v", err)
	}
	rig.store.Insert(item)

	cancel := true
	if err := item.Update(rig.payloads, nil, nil, &cancel, nil); err != nil {
		t.Fatalf("Update(cancel=true) failed: %v", err)
	}
	if item.Status() != queueitem.StatusCanceled {
		t.Fatalf("expected CANCELED, got %s", item.Status())
	}
	if next := rig.store.Next(5); len(next) != 0 {
		t.Fatalf("expected a canceled item to be excluded from next(), got %d", len(next))
	}

	uncancel := false
	if err := item.Update(rig.payloads, nil, nil, &uncancel, nil); err != nil {
		t.Fatalf("Update(cancel=false) failed: %v", err)
	}
	if item.Status() != queueitem.StatusWaiting {
		t.Fatalf("expected WAITING again after un-cancel, got %s", item.Status())
	}
}

// TestAdmissionCapBlocksNewSubmissions is scenario 5 from spec.md §8.
func TestAdmissionCapBlocksNewSubmissions(t *testing.T) {
	rig := newTestRig(t)
	dummy := rig.daemon.Remote.(*remote.DummyClient)
	dummy.ActiveTotal = 5
	dummy.ActiveJobs = []remote.SearchJobsEntry{
		{JobID: 101, State: "CALCULATIONS"},
		{JobID: 102, State: "NEW"},
		{JobID: 103, State: "SCHEDULED"},
		{JobID: 104, State: "MAPMATCHING"},
		{JobID: 105, State: "READING_GEOBASE"},
	}

	var uids []string
	for i := 0; i < 3; i++ {
		item, err := queueitem.New(rig.payloads, fmt.Sprintf("queued-%d", i), queueitem.ReportRouteAnalysis, []byte("{}"), 1)
		if err != nil {
			t.Fatalf("queueitem.New failed: %v", err)
		}
		rig.store.Insert(item)
		uids = append(uids, item.UID)
	}
	if err := rig.store.Flush(); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	if err := rig.daemon.Tick(context.Background()); err != nil {
		t.Fatalf("Tick failed: %v", err)
	}

	for _, uid := range uids {
		got := rig.store.Get(uid)
		if got.Status() != queueitem.StatusWaiting {
			t.Fatalf("expected %s to remain WAITING while the remote is at capacity, got %s", uid, got.Status())
		}
		if got.SubmittedAt != nil {
			t.Fatalf("expected no submitted_ts to be set under the admission cap, got %v", got.SubmittedAt)
		}
	}
}

// TestReconciliationClosesOutFinishedRemoteJob is scenario 7 from spec.md §8.
func TestReconciliationClosesOutFinishedRemoteJob(t *testing.T) {
	rig := newTestRig(t)
	dummy := rig.daemon.Remote.(*remote.DummyClient)

	item, err := queueitem.New(rig.payloads, "B", queueitem.ReportRouteAnalysis, []byte("{}"), 1)
	if err != nil {
		t.Fatalf("queueitem.New failed: %v", err)
	}
	submittedAt := time.Now().UTC()
	item.SubmittedAt = &submittedAt
	jobID := int64(42)
	item.RemoteJobID = &jobID
	rig.store.Insert(item)
	if err := rig.store.Flush(); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	// The remote's active-jobs list omits 42, so this tick should reconcile
	// it to COMPLETED (DummyClient's Status always reports DONE).
	dummy.ActiveTotal = 0
	dummy.ActiveJobs = []remote.SearchJobsEntry{}

	if err := rig.daemon.Tick(context.Background()); err != nil {
		t.Fatalf("Tick failed: %v", err)
	}

	got := rig.store.Get(item.UID)
	if got.Status() != queueitem.StatusCompleted {
		t.Fatalf("expected B to be reconciled to COMPLETED, got %s", got.Status())
	}

	// Same scenario, but the adapter now reports the job as errored instead
	// of DONE: the item should land on HAS_ERROR, not COMPLETED.
	dummy.State = remote.StateError
	other, err := queueitem.New(rig.payloads, "C", queueitem.ReportRouteAnalysis, []byte(`{"n":2}`), 1)
	if err != nil {
		t.Fatalf("queueitem.New failed: %v", err)
	}
	otherSubmittedAt := time.Now().UTC()
	other.SubmittedAt = &otherSubmittedAt
	otherJobID := int64(43)
	other.RemoteJobID = &otherJobID
	rig.store.Insert(other)
	if err := rig.store.Flush(); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	if err := rig.daemon.Tick(context.Background()); err != nil {
		t.Fatalf("second Tick failed: %v", err)
	}
	gotOther := rig.store.Get(other.UID)
	if gotOther.Status() != queueitem.StatusHasError {
		t.Fatalf("expected C to land on HAS_ERROR when the adapter reports a non-DONE state, got %s", gotOther.Status())
	}
}

// TestCrashSafeSubmit is scenario 6 from spec.md §8: the admission pass
// flushes per item, so a restart after a partial flush never double-submits.
func TestCrashSafeSubmit(t *testing.T) {
	home := t.TempDir()
	payloads, err := payloadstore.New(filepath.Join(home, "payloads"))
	if err != nil {
		t.Fatalf("payloadstore.New failed: %v", err)
	}
	dbPath := filepath.Join(home, "db.parquet")

	s, err := store.Open(dbPath)
	if err != nil {
		t.Fatalf("store.Open failed: %v", err)
	}
	item, err := queueitem.New(payloads, "crash test", queueitem.ReportRouteAnalysis, []byte("{}"), 1)
	if err != nil {
		t.Fatalf("queueitem.New failed: %v", err)
	}
	s.Insert(item)
	if err := s.Flush(); err != nil {
		t.Fatalf("initial Flush failed: %v", err)
	}

	d := scheduler.New(s, payloads, remote.NewDummyClient(), filepath.Join(home, "daemon.pid"))
	if err := d.Tick(context.Background()); err != nil {
		t.Fatalf("Tick failed: %v", err)
	}

	// Simulate a crash: discard all in-memory state and reopen against the
	// same on-disk table.
	restarted, err := store.Open(dbPath)
	if err != nil {
		t.Fatalf("restart Open failed: %v", err)
	}

	got := restarted.Get(item.UID)
	if got == nil {
		t.Fatal("expected the item to survive the simulated crash")
	}
	if got.Status() != queueitem.StatusSubmitted {
		t.Fatalf("expected SUBMITTED to have been durably flushed before any crash, got %s", got.Status())
	}

	restartedDaemon := scheduler.New(restarted, payloads, remote.NewDummyClient(), filepath.Join(home, "daemon2.pid"))
	if err := restartedDaemon.Tick(context.Background()); err != nil {
		t.Fatalf("post-restart Tick failed: %v", err)
	}

	finalWaiting := restarted.Filter(store.Filter{Statuses: []queueitem.Status{queueitem.StatusWaiting}})
	for _, w := range finalWaiting {
		if w.UID == got.UID {
			t.Fatal("expected the already-submitted item to never be re-admitted as waiting")
		}
	}
}
