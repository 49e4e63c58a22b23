// Package queueitem implements the in-memory queue item entity (C3):
// lifecycle transitions and the derived status projection. An Item never
// persists its own status; Status() recomputes it from timestamps on every
// call, per spec.md §3.1 and §9 ("Derived status").
package queueitem

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/macq/tomtom-priority-queue/internal/errs"
	"github.com/macq/tomtom-priority-queue/internal/payloadstore"
)

// uidNamespace is a fixed namespace UUID used to derive an item's uid as a
// name-based (MD5, RFC 4122 v3) UUID of its payload bytes and name. This is
// the Go equivalent of the original Python implementation's
// `payload.md5(name)`: a deterministic 128-bit digest of (payload, name).
var uidNamespace = uuid.MustParse("6f5c3d7e-1f0a-4f1b-9a4c-9b6c1d1f0a11")

// SubmitResult is what a successful (or remote-rejected) submission call
// returns. ResponseStatus is the remote's raw status tag ("OK" or "error");
// a lowercase "error" tag is treated as a failed submission even though the
// HTTP call itself succeeded (spec.md §4.4: "The core never treats 2xx with
// response_status == 'error' as success").
type SubmitResult struct {
	ResponseStatus string
	Messages       []string
	RemoteJobID    *int64
}

// StatusResult is what the remote status endpoint returns for a submitted job.
type StatusResult struct {
	RemoteJobID    int64
	RemoteState    string
	ResponseStatus string
	URLs           []string
}

// RemoteDoneState is the remote job state that means "finished successfully".
const RemoteDoneState = "DONE"

// Remote is the subset of the C4 adapter that a queue item needs to submit
// itself and learn its outcome. internal/remote.Client implements this.
type Remote interface {
	SubmitRoute(ctx context.Context, payload []byte) (SubmitResult, error)
	SubmitArea(ctx context.Context, payload []byte) (SubmitResult, error)
	SubmitDensity(ctx context.Context, payload []byte) (SubmitResult, error)
	Status(ctx context.Context, remoteJobID int64) (StatusResult, error)
}

// Item is one user request for a remote traffic-stats job, tracked locally
// until it reaches a terminal status.
type Item struct {
	UID         string
	Name        string
	ReportType  ReportType
	Priority    int64
	CreatedAt   time.Time
	UpdatedAt   *time.Time
	SubmittedAt *time.Time
	CompletedAt *time.Time
	CancelledAt *time.Time
	ErrorAt     *time.Time
	RemoteJobID *int64

	// PayloadRef is the C1 blob path. It is stable for the item's lifetime.
	PayloadRef string
}

// New creates a queue item for (name, payload, priority) and writes the
// payload blob through store. uid is derived deterministically from payload
// and name, so adding the same (name, payload) pair twice always yields the
// same uid (spec.md I5 idempotence).
func New(store *payloadstore.Store, name string, reportType ReportType, payload []byte, priority int64) (*Item, error) {
	uid := deriveUID(payload, name)
	now := time.Now()

	item := &Item{
		UID:        uid,
		Name:       name,
		ReportType: reportType,
		Priority:   priority,
		CreatedAt:  now,
		PayloadRef: store.RefFor(uid),
	}

	if err := store.Put(uid, payload); err != nil {
		return nil, fmt.Errorf("storing payload for %s: %w", uid, err)
	}
	return item, nil
}

func deriveUID(payload []byte, name string) string {
	data := make([]byte, 0, len(payload)+1+len(name))
	data = append(data, payload...)
	data = append(data, 0)
	data = append(data, []byte(name)...)
	return uuid.NewMD5(uidNamespace, data).String()
}

// Status computes the single-valued projection described in spec.md §3.1.
func (i *Item) Status() Status {
	switch {
	case i.ErrorAt != nil:
		return StatusHasError
	case i.CompletedAt != nil:
		return StatusCompleted
	case i.SubmittedAt != nil:
		return StatusSubmitted
	case i.CancelledAt != nil:
		return StatusCanceled
	default:
		return StatusWaiting
	}
}

// Update mutates name/priority/cancel/payload. It is only legal while the
// item is IS_WAITING or CANCELED (spec.md §4.3); any other status returns
// errs.ErrIllegalTransition. At least one argument must be non-nil or it
// returns errs.ErrEmptyUpdate.
func (i *Item) Update(store *payloadstore.Store, name *string, priority *int64, cancel *bool, payload []byte) error {
	switch i.Status() {
	case StatusWaiting, StatusCanceled:
	default:
		return fmt.Errorf("%w: cannot update item %s with status %s", errs.ErrIllegalTransition, i.UID, i.Status())
	}

	if name == nil && priority == nil && cancel == nil && payload == nil {
		return fmt.Errorf("%w: update requires at least one field for item %s", errs.ErrEmptyUpdate, i.UID)
	}

	now := time.Now()
	i.UpdatedAt = &now

	if name != nil {
		i.Name = *name
	}
	if priority != nil {
		i.Priority = *priority
	}
	if payload != nil {
		if err := store.Put(i.UID, payload); err != nil {
			return fmt.Errorf("rewriting payload for %s: %w", i.UID, err)
		}
	}
	if cancel != nil {
		if *cancel {
			i.CancelledAt = &now
		} else {
			i.CancelledAt = nil
		}
	}

	return nil
}

// MarkError sets the terminal error status. It takes no message; the caller
// is responsible for logging the reason.
func (i *Item) MarkError() {
	now := time.Now()
	i.ErrorAt = &now
}

// Submit transitions IS_WAITING -> SUBMITTED. Per spec.md §4.3, submitted_ts
// is set *before* the remote call, so it is set even when the call fails or
// the remote rejects the job. Nothing is persisted here; the caller flushes.
// payloads is consulted fresh rather than cached on the item, since an Item
// loaded back from the store (store.Load) never went through New and so
// carries no in-memory reference to the payload store that wrote its blob.
func (i *Item) Submit(ctx context.Context, remote Remote, payloads *payloadstore.Store) error {
	if i.Status() != StatusWaiting {
		return fmt.Errorf("%w: item %s must be waiting to submit, has status %s", errs.ErrIllegalTransition, i.UID, i.Status())
	}

	payload, err := payloads.Get(i.UID)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", errs.ErrPayloadMissing, i.UID, err)
	}

	now := time.Now()
	i.SubmittedAt = &now

	var result SubmitResult
	switch i.ReportType {
	case ReportRouteAnalysis:
		result, err = remote.SubmitRoute(ctx, payload)
	case ReportAreaAnalysis:
		result, err = remote.SubmitArea(ctx, payload)
	case ReportTrafficDensity:
		result, err = remote.SubmitDensity(ctx, payload)
	default:
		return fmt.Errorf("%w: unknown report type %q for item %s", errs.ErrIllegalTransition, i.ReportType, i.UID)
	}
	if err != nil {
		return err
	}

	i.RemoteJobID = result.RemoteJobID
	if strings.EqualFold(result.ResponseStatus, "error") {
		i.MarkError()
		return fmt.Errorf("remote rejected submission of %s: %s", i.UID, strings.Join(result.Messages, "; "))
	}
	return nil
}

// Cancel transitions IS_WAITING -> CANCELED.
func (i *Item) Cancel() error {
	if i.Status() != StatusWaiting {
		return fmt.Errorf("%w: item %s must be waiting to cancel, has status %s", errs.ErrIllegalTransition, i.UID, i.Status())
	}
	now := time.Now()
	i.CancelledAt = &now
	return nil
}

// Complete transitions SUBMITTED -> COMPLETED, consulting the remote for the
// final job state. If the remote reports anything other than DONE, the item
// is also marked with an error (still completed: completed_ts is set before
// the poll, so it stays set even when the poll itself fails). The payload
// blob is erased last, after both timestamps have landed.
func (i *Item) Complete(ctx context.Context, remote Remote, payloads *payloadstore.Store) error {
	if i.Status() != StatusSubmitted {
		return fmt.Errorf("%w: item %s must be submitted to complete, has status %s", errs.ErrIllegalTransition, i.UID, i.Status())
	}
	if i.RemoteJobID == nil {
		return fmt.Errorf("%w: item %s has no remote_job_id", errs.ErrIllegalTransition, i.UID)
	}

	now := time.Now()
	i.CompletedAt = &now

	info, err := remote.Status(ctx, *i.RemoteJobID)
	if err != nil {
		return err
	}
	if !strings.EqualFold(info.RemoteState, RemoteDoneState) {
		i.MarkError()
	}

	if payloads != nil {
		payloads.Erase(i.PayloadRef)
	}
	return nil
}
