package remote

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/macq/tomtom-priority-queue/internal/config"
	"github.com/macq/tomtom-priority-queue/internal/errs"
)

// rewriteTransport redirects every request to target's scheme/host, so a
// Client built around a hardcoded "https://" URL (matching the original
// client's own hardcoded scheme) can be pointed at an httptest.Server.
type rewriteTransport struct {
	target *url.URL
}

func (t *rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.URL.Scheme = t.target.Scheme
	req.URL.Host = t.target.Host
	return http.DefaultTransport.RoundTrip(req)
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	target, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatalf("parsing test server URL: %v", err)
	}

	return &Client{
		httpClient: &http.Client{Transport: &rewriteTransport{target: target}},
		baseURL:    "unit.test",
		version:    1,
		key:        "test-key",
	}
}

func TestSubmitRouteReturnsJobID(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("key") != "test-key" {
			t.Errorf("expected the api key to be passed as a query parameter, got %q", r.URL.RawQuery)
		}
		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Fatalf("reading request body: %v", err)
		}
		if string(body) != `{"route":"a-b"}` {
			t.Errorf("expected the item payload to be forwarded as the request body, got %q", body)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"jobId":          7,
			"responseStatus": "OK",
			"messages":       []string{"accepted"},
		})
	})

	result, err := c.SubmitRoute(context.Background(), []byte(`{"route":"a-b"}`))
	if err != nil {
		t.Fatalf("SubmitRoute failed: %v", err)
	}
	if result.RemoteJobID == nil || *result.RemoteJobID != 7 {
		t.Fatalf("expected job id 7, got %v", result.RemoteJobID)
	}
	if result.ResponseStatus != "OK" {
		t.Fatalf("expected responseStatus OK, got %q", result.ResponseStatus)
	}
}

func TestForbiddenResponseMapsToErrForbidden(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error":"invalid key"}`))
	})

	_, err := c.Status(context.Background(), 1)
	if !errors.Is(err, errs.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestValidationErrorResponseMapsToErrRemote(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{
			"messages": []map[string]any{
				{"error": "must not be null", "field": "name", "rejectedValue": nil},
			},
		})
	})

	_, err := c.SubmitArea(context.Background(), []byte("{}"))
	if !errors.Is(err, errs.ErrRemote) {
		t.Fatalf("expected ErrRemote for a field validation error, got %v", err)
	}
}

// TestBadRequestWithJobResponseIsNotAnError mirrors the original client's
// fall-through: a 400 that still decodes as a job response (application-level
// error tag, not a field validation error) is treated as a successful call.
func TestBadRequestWithJobResponseIsNotAnError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{
			"responseStatus": "error",
			"messages":       []string{"road length exceeds maximum"},
		})
	})

	result, err := c.SubmitDensity(context.Background(), []byte("{}"))
	if err != nil {
		t.Fatalf("expected no error for an application-level job response, got %v", err)
	}
	if result.ResponseStatus != "error" {
		t.Fatalf("expected responseStatus to be propagated, got %q", result.ResponseStatus)
	}
}

func TestSearchJobsDecodesContentAndTotal(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		states := r.URL.Query()["state"]
		if len(states) != 2 {
			t.Errorf("expected 2 state filters, got %v", states)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"content": []map[string]any{
				{"id": 101, "state": "NEW"},
				{"id": 102, "state": "CALCULATIONS"},
			},
			"totalElements": 2,
		})
	})

	result, err := c.SearchJobs(context.Background(), []string{"NEW", "CALCULATIONS"}, 0)
	if err != nil {
		t.Fatalf("SearchJobs failed: %v", err)
	}
	if result.TotalElements != 2 || len(result.Content) != 2 {
		t.Fatalf("unexpected search result: %+v", result)
	}
	if result.Content[0].JobID != 101 {
		t.Fatalf("expected first job id 101, got %d", result.Content[0].JobID)
	}
}

func TestNewRejectsIncompleteConfig(t *testing.T) {
	if _, err := New(&config.Config{}); err == nil {
		t.Fatal("expected New with an empty config to fail")
	}
}
