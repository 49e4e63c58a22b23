package remote

import (
	"context"

	"github.com/macq/tomtom-priority-queue/internal/queueitem"
)

// DummyClient is a Remote that never calls out over the network. It mirrors
// the original implementation's DummyTomtomClient: every submission
// "succeeds" with a fixed job id, and status reports State (DONE by
// default, see NewDummyClient). It's
// useful for exercising the scheduler and admin layers without a live
// TomTom account.
type DummyClient struct {
	// JobID is returned as the RemoteJobID for every submission.
	JobID int64
	// State is returned as the RemoteState from Status.
	State RemoteState
	// ActiveJobs is returned verbatim as SearchJobs' response content. A test
	// pre-seeds this (plus ActiveTotal) to simulate a specific remote-side
	// "in progress" picture for the admission cap and reconciliation passes
	// (spec.md §8 scenarios 5 and 7). The original's DummyTomtomClient always
	// reports a single already-DONE job here regardless of the requested state
	// filter; that quirk makes reconciliation never fire when reused verbatim,
	// so this port defaults to reporting nothing in progress instead.
	ActiveJobs []SearchJobsEntry
	// ActiveTotal is returned verbatim as SearchJobs' TotalElements.
	ActiveTotal int
}

// NewDummyClient returns a DummyClient configured to report DONE on every
// submitted job and nothing in progress on the remote side.
func NewDummyClient() *DummyClient {
	return &DummyClient{JobID: 1, State: StateDone}
}

func (d *DummyClient) dummySubmit() (queueitem.SubmitResult, error) {
	jobID := d.JobID
	return queueitem.SubmitResult{
		ResponseStatus: "OK",
		Messages:       []string{"this is a dummy response"},
		RemoteJobID:    &jobID,
	}, nil
}

func (d *DummyClient) SubmitRoute(ctx context.Context, payload []byte) (queueitem.SubmitResult, error) {
	return d.dummySubmit()
}

func (d *DummyClient) SubmitArea(ctx context.Context, payload []byte) (queueitem.SubmitResult, error) {
	return d.dummySubmit()
}

func (d *DummyClient) SubmitDensity(ctx context.Context, payload []byte) (queueitem.SubmitResult, error) {
	return d.dummySubmit()
}

func (d *DummyClient) Status(ctx context.Context, remoteJobID int64) (queueitem.StatusResult, error) {
	return queueitem.StatusResult{
		RemoteJobID:    remoteJobID,
		RemoteState:    string(d.State),
		ResponseStatus: "OK",
		URLs:           []string{"https://example.invalid/download"},
	}, nil
}

// SearchJobs returns whatever ActiveJobs/ActiveTotal are currently set to,
// ignoring the requested state filter -- a test fixture, not a filtering
// server.
func (d *DummyClient) SearchJobs(ctx context.Context, states []string, perPage int) (SearchJobsResult, error) {
	return SearchJobsResult{Content: d.ActiveJobs, TotalElements: d.ActiveTotal}, nil
}
