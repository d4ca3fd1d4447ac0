package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/flowpbx/voiceswitch/internal/call"
	"github.com/flowpbx/voiceswitch/internal/console"
)

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()
	writeJSON(w, http.StatusOK, map[string]string{"name": "test"})

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected content-type application/json, got %q", ct)
	}

	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if env.Error != "" {
		t.Errorf("expected empty error, got %q", env.Error)
	}

	data, ok := env.Data.(map[string]any)
	if !ok {
		t.Fatalf("expected data to be map, got %T", env.Data)
	}
	if data["name"] != "test" {
		t.Errorf("expected name=test, got %v", data["name"])
	}
}

func TestWriteJSON_NilData(t *testing.T) {
	w := httptest.NewRecorder()
	writeJSON(w, http.StatusOK, nil)

	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if env.Data != nil {
		t.Errorf("expected nil data, got %v", env.Data)
	}
}

func TestWriteError(t *testing.T) {
	w := httptest.NewRecorder()
	writeError(w, http.StatusBadRequest, "invalid input")

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", w.Code)
	}

	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if env.Error != "invalid input" {
		t.Errorf("expected error 'invalid input', got %q", env.Error)
	}
	if env.Data != nil {
		t.Errorf("expected nil data, got %v", env.Data)
	}
}

func TestStatusForError(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{console.ErrNotFound, http.StatusNotFound},
		{fmt.Errorf("%w: %q", console.ErrInvalidMode, "x"), http.StatusBadRequest},
		{call.ErrUnknownTrunkType, http.StatusBadRequest},
		{call.ErrInvalidDigit, http.StatusBadRequest},
		{call.ErrCodeNotFound, http.StatusUnprocessableEntity},
		{console.ErrSessionActive, http.StatusConflict},
		{console.ErrNoSession, http.StatusConflict},
		{console.ErrWrongMode, http.StatusConflict},
		{fmt.Errorf("wrapped: %w", call.ErrInvalidTransition), http.StatusConflict},
		{call.ErrNoTrunk, http.StatusConflict},
		{call.ErrNoDigits, http.StatusConflict},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		if got := statusForError(tt.err); got != tt.want {
			t.Errorf("statusForError(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestWriteDomainError_HidesInternalErrors(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError + 1}))

	w := httptest.NewRecorder()
	writeDomainError(w, logger, "test", errors.New("secret detail"))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	if strings.Contains(w.Body.String(), "secret detail") {
		t.Errorf("body leaks internal error: %s", w.Body.String())
	}

	w = httptest.NewRecorder()
	writeDomainError(w, logger, "test", console.ErrNoSession)
	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", w.Code)
	}
	if !strings.Contains(w.Body.String(), console.ErrNoSession.Error()) {
		t.Errorf("body = %s, want the domain error text", w.Body.String())
	}
}

func TestReadJSON(t *testing.T) {
	type payload struct {
		Name string `json:"name"`
		Age  int    `json:"age"`
	}

	tests := []struct {
		name    string
		body    string
		wantMsg string
	}{
		{"valid", `{"name":"a","age":3}`, ""},
		{"empty", ``, "request body must not be empty"},
		{"malformed", `{"name":`, "malformed json"},
		{"syntax error", `{name}`, "malformed json"},
		{"unknown field", `{"nope":1}`, `unknown field "nope"`},
		{"trailing object", `{"name":"a"}{"name":"b"}`, "request body must contain a single json object"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			var dst payload
			if got := readJSON(r, &dst); got != tt.wantMsg {
				t.Errorf("readJSON() = %q, want %q", got, tt.wantMsg)
			}
		})
	}
}

func TestReadJSON_WrongType(t *testing.T) {
	var dst struct {
		Age int `json:"age"`
	}
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"age":"old"}`))
	got := readJSON(r, &dst)
	if got == "" {
		t.Fatal("readJSON() = \"\", want an error message")
	}
	if !strings.Contains(got, "age") {
		t.Errorf("readJSON() = %q, want it to name the field", got)
	}
}

func TestParsePagination(t *testing.T) {
	tests := []struct {
		query      string
		wantLimit  int
		wantOffset int
		wantMsg    string
	}{
		{"", defaultLimit, 0, ""},
		{"limit=10&offset=20", 10, 20, ""},
		{"limit=1000", maxLimit, 0, ""},
		{"limit=0", defaultLimit, 0, "limit must be a positive integer"},
		{"limit=abc", defaultLimit, 0, "limit must be a positive integer"},
		{"offset=-1", defaultLimit, 0, "offset must be a non-negative integer"},
	}

	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/?"+tt.query, nil)
		p, msg := parsePagination(r)
		if msg != tt.wantMsg {
			t.Errorf("parsePagination(%q) msg = %q, want %q", tt.query, msg, tt.wantMsg)
			continue
		}
		if msg != "" {
			continue
		}
		if p.Limit != tt.wantLimit || p.Offset != tt.wantOffset {
			t.Errorf("parsePagination(%q) = %+v, want limit %d offset %d", tt.query, p, tt.wantLimit, tt.wantOffset)
		}
	}
}

func TestPaginationPage(t *testing.T) {
	tests := []struct {
		p         pagination
		total     int
		wantStart int
		wantEnd   int
	}{
		{pagination{Limit: 10}, 5, 0, 5},
		{pagination{Limit: 2, Offset: 1}, 5, 1, 3},
		{pagination{Limit: 10, Offset: 7}, 5, 5, 5},
		{pagination{Limit: 3, Offset: 3}, 6, 3, 6},
	}

	for _, tt := range tests {
		start, end := tt.p.page(tt.total)
		if start != tt.wantStart || end != tt.wantEnd {
			t.Errorf("%+v.page(%d) = (%d, %d), want (%d, %d)", tt.p, tt.total, start, end, tt.wantStart, tt.wantEnd)
		}
	}
}

func TestFormatUptime(t *testing.T) {
	tests := []struct {
		secs int
		want string
	}{
		{5, "5s"},
		{65, "1m 5s"},
		{3600 + 61, "1h 1m 1s"},
		{2*86400 + 5*3600 + 30*60 + 12, "2d 5h 30m 12s"},
	}

	for _, tt := range tests {
		d := time.Duration(tt.secs) * time.Second
		if got := formatUptime(d); got != tt.want {
			t.Errorf("formatUptime(%ds) = %q, want %q", tt.secs, got, tt.want)
		}
	}
}
