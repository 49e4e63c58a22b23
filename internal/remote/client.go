// Package remote implements C4, the typed adapter around the TomTom Traffic
// Stats HTTP API. It mirrors the original Python client method for method
// (route_analysis/area_analysis/traffic_density/status/search_jobs/...),
// but returns plain Go structs and sentinel errors instead of raising
// exceptions.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/macq/tomtom-priority-queue/internal/config"
	"github.com/macq/tomtom-priority-queue/internal/errs"
	"github.com/macq/tomtom-priority-queue/internal/logger"
	"github.com/macq/tomtom-priority-queue/internal/queueitem"
)

// RemoteState is the job lifecycle state reported by the status endpoint.
type RemoteState string

const (
	StateNew       RemoteState = "NEW"
	StateRunning   RemoteState = "RUNNING"
	StateDone      RemoteState = "DONE"
	StateError     RemoteState = "ERROR"
	StateCancelled RemoteState = "CANCELLED"
	StateExpired   RemoteState = "EXPIRED"
)

// Client is a thin, typed wrapper over an *http.Client that knows the
// TomTom Traffic Stats URL scheme and the service's error conventions.
type Client struct {
	httpClient *http.Client
	baseURL    string
	version    int
	key        string
}

// New constructs a Client from a validated config.Config. Config.Load already
// enforces that base url/key/version are non-empty and the proxy is
// all-or-nothing, so New only needs to wire the transport.
func New(cfg *config.Config) (*Client, error) {
	if cfg.BaseURL == "" || cfg.Key == "" || cfg.Version == 0 {
		return nil, fmt.Errorf("%w: remote client requires base url, key and version", errs.ErrMisconfigured)
	}

	transport := http.DefaultTransport
	if cfg.Proxy != nil {
		proxyURL, err := url.Parse(fmt.Sprintf("http://%s:%s@%s:%d",
			cfg.Proxy.Username, cfg.Proxy.Password, cfg.Proxy.IP, cfg.Proxy.Port))
		if err != nil {
			return nil, fmt.Errorf("%w: invalid proxy settings: %v", errs.ErrMisconfigured, err)
		}
		transport = &http.Transport{Proxy: http.ProxyURL(proxyURL)}
	}

	return &Client{
		httpClient: &http.Client{Transport: transport},
		baseURL:    cfg.BaseURL,
		version:    cfg.Version,
		key:        cfg.Key,
	}, nil
}

// errorMessage is the "400 with a field-level validation error" shape.
type errorMessage struct {
	Error         string `json:"error"`
	Field         string `json:"field"`
	RejectedValue any    `json:"rejectedValue"`
}

type errorResponse struct {
	Messages []errorMessage `json:"messages"`
}

// jobResponse is the shape returned by the three submission endpoints, and
// is also what a 400 decodes into when the remote accepted the job but
// flagged it with an application-level error (response_status == "error").
type jobResponse struct {
	JobID          *int64   `json:"jobId"`
	ResponseStatus string   `json:"responseStatus"`
	Messages       []string `json:"messages"`
}

type statusResponse struct {
	JobID          int64    `json:"jobId"`
	State          string   `json:"jobState"`
	ResponseStatus string   `json:"responseStatus"`
	URLs           []string `json:"urls"`
}

// do performs an HTTP call against the Traffic Stats API and applies the
// same error-classification cascade as the original Python client's
// request() wrapper: 403 is always Forbidden, 400 is first tried as a field
// validation error and, failing that, as a job response carrying an
// application-level error tag.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any) ([]byte, int, error) {
	if query == nil {
		query = url.Values{}
	}
	query.Set("key", c.key)

	u := fmt.Sprintf("https://%s%s?%s", c.baseURL, path, query.Encode())

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, 0, fmt.Errorf("encoding request body: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, 0, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", errs.ErrRemote, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("%w: reading response: %v", errs.ErrRemote, err)
	}

	logger.Log.Debug().Int("status", resp.StatusCode).Str("url", path).Msg("remote request")

	if resp.StatusCode == http.StatusForbidden {
		logger.Log.Error().Str("body", string(raw)).Msg("remote forbidden")
		return raw, resp.StatusCode, fmt.Errorf("%w: check the configured API key", errs.ErrForbidden)
	}

	if resp.StatusCode == http.StatusBadRequest {
		var validation errorResponse
		if err := json.Unmarshal(raw, &validation); err == nil && len(validation.Messages) > 0 {
			for _, m := range validation.Messages {
				logger.Log.Error().Str("field", m.Field).Str("error", m.Error).Msg("remote rejected request")
			}
			return raw, resp.StatusCode, fmt.Errorf("%w: request was rejected, see logs", errs.ErrRemote)
		}

		// Not a validation error: the job may still have been accepted with
		// an application-level error tag, matching the original client's
		// fall-through to TomtomResponseAnalysis.from_dict.
		var job jobResponse
		if err := json.Unmarshal(raw, &job); err == nil && job.ResponseStatus != "" {
			return raw, resp.StatusCode, nil
		}

		return raw, resp.StatusCode, fmt.Errorf("%w: unrecognized 400 response", errs.ErrRemote)
	}

	return raw, resp.StatusCode, nil
}

func (c *Client) submitJob(ctx context.Context, endpoint string, payload []byte) (queueitem.SubmitResult, error) {
	path := fmt.Sprintf("/traffic/trafficstats/%s/%d", endpoint, c.version)
	raw, _, err := c.do(ctx, http.MethodPost, path, nil, json.RawMessage(payload))
	if err != nil {
		return queueitem.SubmitResult{}, err
	}

	var job jobResponse
	if err := json.Unmarshal(raw, &job); err != nil {
		return queueitem.SubmitResult{}, fmt.Errorf("%w: decoding submit response: %v", errs.ErrRemote, err)
	}

	return queueitem.SubmitResult{
		ResponseStatus: job.ResponseStatus,
		Messages:       job.Messages,
		RemoteJobID:    job.JobID,
	}, nil
}

// SubmitRoute posts a route analysis job.
func (c *Client) SubmitRoute(ctx context.Context, payload []byte) (queueitem.SubmitResult, error) {
	return c.submitJob(ctx, "routeanalysis", payload)
}

// SubmitArea posts an area analysis job.
func (c *Client) SubmitArea(ctx context.Context, payload []byte) (queueitem.SubmitResult, error) {
	return c.submitJob(ctx, "areaanalysis", payload)
}

// SubmitDensity posts a traffic density job.
func (c *Client) SubmitDensity(ctx context.Context, payload []byte) (queueitem.SubmitResult, error) {
	return c.submitJob(ctx, "trafficdensity", payload)
}

// Status polls the state of a previously submitted job.
func (c *Client) Status(ctx context.Context, remoteJobID int64) (queueitem.StatusResult, error) {
	path := fmt.Sprintf("/traffic/trafficstats/status/%d/%d", c.version, remoteJobID)
	raw, _, err := c.do(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return queueitem.StatusResult{}, err
	}

	var status statusResponse
	if err := json.Unmarshal(raw, &status); err != nil {
		return queueitem.StatusResult{}, fmt.Errorf("%w: decoding status response: %v", errs.ErrRemote, err)
	}

	return queueitem.StatusResult{
		RemoteJobID:    status.JobID,
		RemoteState:    status.State,
		ResponseStatus: status.ResponseStatus,
		URLs:           status.URLs,
	}, nil
}

// Cancel requests cancellation of a submitted-but-not-yet-done job.
func (c *Client) Cancel(ctx context.Context, remoteJobID int64) error {
	path := fmt.Sprintf("/traffic/trafficstats/status/%d/%d/cancel", c.version, remoteJobID)
	_, _, err := c.do(ctx, http.MethodPost, path, nil, nil)
	return err
}

// Delete removes a finished job's report from the remote side entirely,
// distinct from Cancel (which only stops a still-running job).
func (c *Client) Delete(ctx context.Context, remoteJobID int64) error {
	path := fmt.Sprintf("/traffic/trafficstats/reports/%d/", remoteJobID)
	_, _, err := c.do(ctx, http.MethodDelete, path, nil, nil)
	return err
}

// SearchJobsEntry is one row of a search_jobs response: enough to tell the
// scheduler which remote job a locally-submitted item maps to and whether
// that job is still in progress.
type SearchJobsEntry struct {
	JobID int64  `json:"id"`
	State string `json:"state"`
}

// SearchJobsResult mirrors TomtomResponseSearchJobs: a page of jobs plus the
// total count matching the filter, independent of page size.
type SearchJobsResult struct {
	Content       []SearchJobsEntry `json:"content"`
	TotalElements int               `json:"totalElements"`
}

// SearchJobs queries the remote for jobs in the given states, the same call
// the original daemon loop makes with `state=in_progress_states` to learn how
// many of our jobs currently count against the concurrency cap (spec.md §4.5
// step 1). perPage<=0 requests the service default page size.
func (c *Client) SearchJobs(ctx context.Context, states []string, perPage int) (SearchJobsResult, error) {
	q := url.Values{}
	for _, s := range states {
		q.Add("state", s)
	}
	if perPage > 0 {
		q.Set("perPage", fmt.Sprintf("%d", perPage))
	}
	raw, _, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/traffic/trafficstats/job/search/%d", c.version), q, nil)
	if err != nil {
		return SearchJobsResult{}, err
	}

	var result SearchJobsResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return SearchJobsResult{}, fmt.Errorf("%w: decoding search_jobs response: %v", errs.ErrRemote, err)
	}
	return result, nil
}
