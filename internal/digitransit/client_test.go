package digitransit

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hsltracker-data/internal/common/config"
	"github.com/hsltracker-data/internal/common/logger"
)

func newTestClient(url string) *Client {
	return NewClient(config.DigitransitConfig{
		URL:          url,
		APIKey:       "test-key",
		FetchTimeout: 5 * time.Second,
	}, logger.Nop())
}

func TestExecuteSuccess(t *testing.T) {
	var gotKey, gotAgent string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("digitransit-subscription-key")
		gotAgent = r.Header.Get("User-Agent")
		w.Write([]byte(`{"data":{"vehicles":[{"id":"veh:1"}]}}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	var payload vehiclesPayload
	if err := client.Execute(context.Background(), vehiclesQuery, nil, &payload); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}

	if len(payload.Vehicles) != 1 || payload.Vehicles[0].ID != "veh:1" {
		t.Errorf("unexpected payload: %+v", payload)
	}
	if gotKey != "test-key" {
		t.Errorf("subscription key header = %q, want test-key", gotKey)
	}
	if gotAgent != userAgent {
		t.Errorf("user agent = %q, want %q", gotAgent, userAgent)
	}
}

func TestExecuteGraphQLError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"errors":[{"message":"field does not exist"}]}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	var payload vehiclesPayload
	err := client.Execute(context.Background(), vehiclesQuery, nil, &payload)
	if !errors.Is(err, ErrFetchFailed) {
		t.Errorf("Execute() error = %v, want ErrFetchFailed", err)
	}
}

func TestExecuteMalformedResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data": not json`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	var payload vehiclesPayload
	err := client.Execute(context.Background(), vehiclesQuery, nil, &payload)
	if !errors.Is(err, ErrFetchFailed) {
		t.Errorf("Execute() error = %v, want ErrFetchFailed", err)
	}
}

func TestExecuteRetriesServerErrors(t *testing.T) {
	var attempts int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"data":{"vehicles":[]}}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	var payload vehiclesPayload
	if err := client.Execute(context.Background(), vehiclesQuery, nil, &payload); err != nil {
		t.Fatalf("Execute() error after retries: %v", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestExecuteClientErrorNotRetried(t *testing.T) {
	var attempts int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	var payload vehiclesPayload
	err := client.Execute(context.Background(), vehiclesQuery, nil, &payload)
	if !errors.Is(err, ErrFetchFailed) {
		t.Errorf("Execute() error = %v, want ErrFetchFailed", err)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1 for a 4xx response", attempts)
	}
}
