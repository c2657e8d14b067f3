package device

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func newTestTransport(handler http.HandlerFunc) (*UIA2, *httptest.Server) {
	server := httptest.NewServer(handler)
	transport := &UIA2{
		http:    server.Client(),
		baseURL: server.URL,
		log:     zerolog.Nop(),
	}
	return transport, server
}

func TestUIA2Ready(t *testing.T) {
	transport, server := newTestTransport(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/status" {
			t.Errorf("expected /status, got %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"value": map[string]interface{}{"ready": true},
		})
	})
	defer server.Close()

	ready, err := transport.Ready()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ready {
		t.Error("expected ready")
	}
}

func TestUIA2CreateSession(t *testing.T) {
	tests := []struct {
		name     string
		response map[string]interface{}
		want     string
		wantErr  bool
	}{
		{
			name:     "top level session id",
			response: map[string]interface{}{"sessionId": "abc-123"},
			want:     "abc-123",
		},
		{
			name: "session id under value",
			response: map[string]interface{}{
				"value": map[string]interface{}{"sessionId": "def-456"},
			},
			want: "def-456",
		},
		{
			name:     "missing session id",
			response: map[string]interface{}{"value": map[string]interface{}{}},
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			transport, server := newTestTransport(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost || r.URL.Path != "/session" {
					t.Errorf("expected POST /session, got %s %s", r.Method, r.URL.Path)
				}
				json.NewEncoder(w).Encode(tt.response)
			})
			defer server.Close()

			id, err := transport.CreateSession(context.Background())
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if id != tt.want {
				t.Errorf("expected session %q, got %q", tt.want, id)
			}
		})
	}
}

func TestUIA2FetchUITree(t *testing.T) {
	const dump = `<hierarchy><node bounds="[0,0][100,100]"/></hierarchy>`

	transport, server := newTestTransport(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/source") {
			t.Errorf("expected /source suffix, got %s", r.URL.Path)
		}
		if !strings.Contains(r.URL.Path, "sess-1") {
			t.Errorf("expected session in path, got %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"value": dump})
	})
	defer server.Close()

	xml, err := transport.FetchUITree(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if xml != dump {
		t.Errorf("unexpected source: %q", xml)
	}
}

func TestUIA2Tap(t *testing.T) {
	transport, server := newTestTransport(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "/appium/gestures/click") {
			t.Errorf("expected gestures/click path, got %s", r.URL.Path)
		}
		var req clickRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Offset == nil || req.Offset.X != 150 || req.Offset.Y != 300 {
			t.Errorf("unexpected offset: %+v", req.Offset)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{})
	})
	defer server.Close()

	if err := transport.Tap(context.Background(), "sess-1", 150, 300); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestUIA2ServerError(t *testing.T) {
	transport, server := newTestTransport(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"value": map[string]interface{}{
				"error":   "unknown error",
				"message": "uiautomator died",
			},
		})
	})
	defer server.Close()

	_, err := transport.FetchUITree(context.Background(), "sess-1")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "uiautomator died") {
		t.Errorf("expected server message in error, got %v", err)
	}
}
