package agentclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClient_AskJSONResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/agents/agent-1/ask" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req askRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Prompt != "What is 2+2?" {
			t.Errorf("unexpected prompt %q", req.Prompt)
		}
		json.NewEncoder(w).Encode(askResponse{Response: "4"})
	}))
	defer srv.Close()

	client, err := New(srv.URL, nil)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	got, err := client.Ask(context.Background(), "agent-1", "What is 2+2?")
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if got != "4" {
		t.Fatalf("expected 4, got %q", got)
	}
}

func TestClient_AskPlainTextResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("the answer is 85\n"))
	}))
	defer srv.Close()

	client, err := New(srv.URL, nil)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	got, err := client.Ask(context.Background(), "agent-1", "probe")
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if got != "the answer is 85" {
		t.Fatalf("unexpected response %q", got)
	}
}

func TestClient_AskErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client, err := New(srv.URL, nil)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if _, err := client.Ask(context.Background(), "agent-1", "probe"); err == nil {
		t.Fatal("expected error on 502")
	}
}

func TestClient_RequiresBaseURL(t *testing.T) {
	if _, err := New("   ", nil); err == nil {
		t.Fatal("expected error for empty base URL")
	}
}
