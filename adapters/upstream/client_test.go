package upstream_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"github.com/execgate/execgate/adapters/memory"
	"github.com/execgate/execgate/adapters/upstream"
	"github.com/execgate/execgate/domain/cachekey"
	"github.com/execgate/execgate/domain/gateway"
	"github.com/execgate/execgate/ports"
)

func newClient(t *testing.T, handler http.HandlerFunc) *upstream.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	dir := memory.NewInstanceDirectory(ports.Instance{
		ID:      "inst-1",
		BaseURL: srv.URL,
		APIKey:  "secret-key",
	})
	return upstream.New(dir, upstream.Config{}, zerolog.Nop())
}

func TestFetch_Success(t *testing.T) {
	var gotPath, gotKey, gotQuery string
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("X-N8N-API-KEY")
		gotQuery = r.URL.RawQuery
		w.Write([]byte(`{"data":[],"nextCursor":null}`))
	})

	body, err := client.Fetch(context.Background(), "inst-1", cachekey.Params{
		"workflowId": "wf-1",
		"limit":      "50",
		"cursor":     "",
	})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if string(body) != `{"data":[],"nextCursor":null}` {
		t.Errorf("body = %q", body)
	}
	if gotPath != "/api/v1/executions" {
		t.Errorf("path = %q", gotPath)
	}
	if gotKey != "secret-key" {
		t.Errorf("api key header = %q", gotKey)
	}
	if gotQuery != "limit=50&workflowId=wf-1" {
		t.Errorf("query = %q, empty params must be omitted", gotQuery)
	}
}

func TestFetch_ServerErrorIsTransient(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	})

	_, err := client.Fetch(context.Background(), "inst-1", nil)
	var ue *gateway.UpstreamError
	if !errors.As(err, &ue) {
		t.Fatalf("err = %v, want UpstreamError", err)
	}
	if ue.Kind != gateway.UpstreamTransient {
		t.Error("5xx should classify transient")
	}
	if ue.Status != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", ue.Status)
	}
}

func TestFetch_ThrottlingIsTransient(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "slow down", http.StatusTooManyRequests)
	})

	_, err := client.Fetch(context.Background(), "inst-1", nil)
	if !gateway.Transient(err) {
		t.Errorf("429 should classify transient, got %v", err)
	}
}

func TestFetch_ClientErrorIsPermanent(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad request", http.StatusBadRequest)
	})

	_, err := client.Fetch(context.Background(), "inst-1", nil)
	var ue *gateway.UpstreamError
	if !errors.As(err, &ue) {
		t.Fatalf("err = %v, want UpstreamError", err)
	}
	if ue.Kind != gateway.UpstreamPermanent {
		t.Error("4xx should classify permanent")
	}
}

func TestFetch_ConnectionRefusedIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // nothing listening anymore

	dir := memory.NewInstanceDirectory(ports.Instance{ID: "inst-1", BaseURL: srv.URL, APIKey: "k"})
	client := upstream.New(dir, upstream.Config{}, zerolog.Nop())

	_, err := client.Fetch(context.Background(), "inst-1", nil)
	if !gateway.Transient(err) {
		t.Errorf("network failure should classify transient, got %v", err)
	}
}

func TestFetch_UnknownInstanceIsPermanent(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {})

	_, err := client.Fetch(context.Background(), "unknown", nil)
	var ue *gateway.UpstreamError
	if !errors.As(err, &ue) {
		t.Fatalf("err = %v, want UpstreamError", err)
	}
	if ue.Kind != gateway.UpstreamPermanent {
		t.Error("unknown instance should classify permanent")
	}
	if !errors.Is(err, ports.ErrInstanceNotFound) {
		t.Error("error should wrap ErrInstanceNotFound")
	}
}

func TestFetch_CanceledContextPassedThrough(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Fetch(ctx, "inst-1", nil)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if gateway.Transient(err) {
		t.Error("cancellation must not classify as transient upstream failure")
	}
}
