package engine

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newAPITestServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *APIClient) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client, err := NewAPIClient(srv.URL, 42)
	if err != nil {
		t.Fatalf("NewAPIClient: %v", err)
	}
	return srv, client
}

func TestAPIClientSaveState(t *testing.T) {
	var gotPath string
	var gotBody SessionState
	_, client := newAPITestServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode body: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]any{"success": true})
	})

	state := SessionState{Whiteboard: `{"a":1}`, IdeCode: "x", IdeLanguage: "go"}
	if err := client.SaveState(context.Background(), state); err != nil {
		t.Fatalf("SaveState: %v", err)
	}
	if gotPath != "/session/42/save-state/" {
		t.Errorf("path = %q", gotPath)
	}
	if gotBody != state {
		t.Errorf("body = %+v, want %+v", gotBody, state)
	}
}

func TestAPIClientSaveStateRejected(t *testing.T) {
	_, client := newAPITestServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"success": false, "error": "session has ended"})
	})

	err := client.SaveState(context.Background(), SessionState{})
	if err == nil {
		t.Fatal("SaveState succeeded against a rejecting server")
	}
}

func TestAPIClientCSRFTokenForwarded(t *testing.T) {
	var gotToken string
	calls := 0
	_, client := newAPITestServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			// First response plants the csrf cookie.
			http.SetCookie(w, &http.Cookie{Name: "csrftoken", Value: "tok-123", Path: "/"})
		} else {
			gotToken = r.Header.Get("X-CSRFToken")
		}
		json.NewEncoder(w).Encode(map[string]any{"success": true})
	})

	if err := client.StartTimer(context.Background()); err != nil {
		t.Fatalf("StartTimer: %v", err)
	}
	if err := client.StartTimer(context.Background()); err != nil {
		t.Fatalf("second StartTimer: %v", err)
	}
	if gotToken != "tok-123" {
		t.Errorf("X-CSRFToken = %q, want tok-123", gotToken)
	}
}

func TestAPIClientTimerEndpoints(t *testing.T) {
	var paths []string
	_, client := newAPITestServer(t, func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		switch r.URL.Path {
		case "/session/42/start-timer/":
			json.NewEncoder(w).Encode(map[string]any{"success": true, "timer_id": 9, "teacher": "Ana"})
		case "/session/42/stop-timer/":
			json.NewEncoder(w).Encode(map[string]any{"success": true, "duration": 125})
		default:
			t.Errorf("unexpected path %q", r.URL.Path)
		}
	})

	if err := client.StartTimer(context.Background()); err != nil {
		t.Fatalf("StartTimer: %v", err)
	}
	duration, err := client.StopTimer(context.Background())
	if err != nil {
		t.Fatalf("StopTimer: %v", err)
	}
	if duration != 125 {
		t.Errorf("duration = %d, want 125", duration)
	}
	if len(paths) != 2 {
		t.Errorf("paths = %v", paths)
	}
}

func TestAPIClientStopTimerRejected(t *testing.T) {
	_, client := newAPITestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{"error": "no timer is running"})
	})

	if _, err := client.StopTimer(context.Background()); err == nil {
		t.Fatal("StopTimer succeeded with no running timer")
	}
}

func TestAPIClientEndSession(t *testing.T) {
	_, client := newAPITestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/session/42/end/" {
			t.Errorf("path = %q", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]any{"success": true, "redirect": "/session/42/review/"})
	})

	redirect, err := client.EndSession(context.Background())
	if err != nil {
		t.Fatalf("EndSession: %v", err)
	}
	if redirect != "/session/42/review/" {
		t.Errorf("redirect = %q", redirect)
	}
}

func TestAPIClientChatBacklog(t *testing.T) {
	_, client := newAPITestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/session/42/" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if r.Method != http.MethodGet {
			t.Errorf("method = %q", r.Method)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"messages": []map[string]any{
				{"id": 1, "sender": "Ana", "sender_id": 3, "content": "hi", "timestamp": "2026-03-01T12:00:00Z"},
				{"id": 2, "sender": "Ben", "sender_id": 4, "content": "hello", "timestamp": "2026-03-01T12:00:05Z"},
			},
		})
	})

	messages, err := client.ChatBacklog(context.Background())
	if err != nil {
		t.Fatalf("ChatBacklog: %v", err)
	}
	if len(messages) != 2 {
		t.Fatalf("got %d messages, want 2", len(messages))
	}
	if messages[0].Sender != "Ana" || messages[1].Content != "hello" {
		t.Errorf("messages = %+v", messages)
	}
}
