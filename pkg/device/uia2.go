package device

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// UIA2 talks to a UIAutomator2 server over a forwarded endpoint. It
// implements Transport.
type UIA2 struct {
	http    *http.Client
	baseURL string
	log     zerolog.Logger
}

var _ Transport = (*UIA2)(nil)

// NewUIA2 creates a transport over a Unix socket (Linux/Mac).
func NewUIA2(socketPath string) *UIA2 {
	return &UIA2{
		http: &http.Client{
			Transport: &http.Transport{
				DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
					var d net.Dialer
					return d.DialContext(ctx, "unix", socketPath)
				},
			},
			Timeout: 30 * time.Second,
		},
		baseURL: "http://localhost",
		log:     zerolog.Nop(),
	}
}

// NewUIA2TCP creates a transport over a forwarded TCP port (Windows).
func NewUIA2TCP(port int) *UIA2 {
	return &UIA2{
		http:    &http.Client{Timeout: 30 * time.Second},
		baseURL: fmt.Sprintf("http://127.0.0.1:%d", port),
		log:     zerolog.Nop(),
	}
}

// SetLogger attaches a logger for request timing.
func (t *UIA2) SetLogger(log zerolog.Logger) { t.log = log }

type serverError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type clickRequest struct {
	Offset *point `json:"offset,omitempty"`
}

type point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Ready checks if the server accepts requests.
func (t *UIA2) Ready() (bool, error) {
	data, err := t.request(context.Background(), http.MethodGet, "/status", nil)
	if err != nil {
		return false, err
	}
	var resp struct {
		Value struct {
			Ready bool `json:"ready"`
		} `json:"value"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return false, err
	}
	return resp.Value.Ready, nil
}

// CreateSession starts an automation session and returns its ID.
func (t *UIA2) CreateSession(ctx context.Context) (string, error) {
	body := map[string]interface{}{
		"capabilities": map[string]string{"platformName": "Android"},
	}
	data, err := t.request(ctx, http.MethodPost, "/session", body)
	if err != nil {
		return "", err
	}

	var resp struct {
		SessionID string `json:"sessionId"`
		Value     struct {
			SessionID string `json:"sessionId"`
		} `json:"value"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", fmt.Errorf("parse session response: %w", err)
	}
	id := resp.SessionID
	if id == "" {
		id = resp.Value.SessionID
	}
	if id == "" {
		return "", fmt.Errorf("no session ID in response")
	}
	return id, nil
}

// DeleteSession ends the session.
func (t *UIA2) DeleteSession(ctx context.Context, sessionID string) error {
	_, err := t.request(ctx, http.MethodDelete, "/session/"+sessionID, nil)
	return err
}

// FetchUITree returns the current hierarchy as XML.
func (t *UIA2) FetchUITree(ctx context.Context, sessionID string) (string, error) {
	data, err := t.request(ctx, http.MethodGet, fmt.Sprintf("/session/%s/source", sessionID), nil)
	if err != nil {
		return "", err
	}
	var resp struct {
		Value string `json:"value"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", fmt.Errorf("parse source response: %w", err)
	}
	return resp.Value, nil
}

// Tap clicks at screen coordinates.
func (t *UIA2) Tap(ctx context.Context, sessionID string, x, y int) error {
	path := fmt.Sprintf("/session/%s/appium/gestures/click", sessionID)
	_, err := t.request(ctx, http.MethodPost, path, clickRequest{Offset: &point{X: x, Y: y}})
	return err
}

func (t *UIA2) request(ctx context.Context, method, path string, body interface{}) ([]byte, error) {
	start := time.Now()

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, t.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.http.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		t.log.Debug().Str("method", method).Str("path", path).Dur("elapsed", elapsed).Err(err).Msg("request failed")
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	t.log.Debug().Str("method", method).Str("path", path).Dur("elapsed", elapsed).Int("status", resp.StatusCode).Msg("request")

	if resp.StatusCode >= 400 {
		var errResp struct {
			Value serverError `json:"value"`
		}
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Value.Error != "" {
			return nil, fmt.Errorf("%s: %s", errResp.Value.Error, errResp.Value.Message)
		}
		return nil, fmt.Errorf("server error %d: %s", resp.StatusCode, string(respBody))
	}
	return respBody, nil
}
