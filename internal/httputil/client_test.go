package httputil

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type status struct {
	State  string `json:"state"`
	Frames int    `json:"frames"`
}

func TestGetJSON(t *testing.T) {
	mock := NewMockHTTPClient()
	mock.AddResponse(http.StatusOK, `{"state": "streaming", "frames": 12}`)

	var got status
	if err := GetJSON(mock, "http://localhost:8082/debug/depthcam/status", &got); err != nil {
		t.Fatalf("GetJSON: %v", err)
	}
	if got.State != "streaming" || got.Frames != 12 {
		t.Errorf("got %+v", got)
	}
	if mock.RequestCount() != 1 {
		t.Fatalf("got %d requests, want 1", mock.RequestCount())
	}
	if accept := mock.Requests[0].Header.Get("Accept"); accept != "application/json" {
		t.Errorf("Accept = %q", accept)
	}
}

func TestGetJSON_Errors(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(*MockHTTPClient)
		wantErr string
	}{
		{"transport", func(m *MockHTTPClient) { m.AddErrorResponse(errors.New("connection refused")) }, "connection refused"},
		{"server message", func(m *MockHTTPClient) { m.AddResponse(http.StatusServiceUnavailable, `{"error": "pipeline idle"}`) }, "pipeline idle"},
		{"bare status", func(m *MockHTTPClient) { m.AddResponse(http.StatusNotFound, "nope") }, "404 Not Found"},
		{"bad body", func(m *MockHTTPClient) { m.AddResponse(http.StatusOK, "{") }, "decode"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := NewMockHTTPClient()
			tt.setup(mock)
			var got status
			err := GetJSON(mock, "http://localhost/status", &got)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestGetJSON_RealServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		WriteJSONOK(w, status{State: "idle"})
	}))
	defer srv.Close()

	var got status
	if err := GetJSON(srv.Client(), srv.URL, &got); err != nil {
		t.Fatalf("GetJSON: %v", err)
	}
	if got.State != "idle" {
		t.Errorf("State = %q, want idle", got.State)
	}
}

func TestMockHTTPClient_DefaultResponse(t *testing.T) {
	mock := NewMockHTTPClient()
	req, _ := http.NewRequest(http.MethodGet, "http://localhost/", nil)
	resp, err := mock.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}
