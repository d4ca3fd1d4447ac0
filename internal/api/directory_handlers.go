package api

import (
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/flowpbx/voiceswitch/internal/database"
	"github.com/flowpbx/voiceswitch/internal/directory"
)

// dialCodeResponse is the result of a dial-code lookup.
type dialCodeResponse struct {
	Callsign string `json:"callsign"`
	Trunk    string `json:"trunk"`
	Code     string `json:"code"`
	Target   string `json:"target"`
}

// directorySummary is returned after a directory import.
type directorySummary struct {
	Positions int    `json:"positions"`
	Source    string `json:"source"`
	UpdatedAt string `json:"updated_at"`
}

// handleGetDirectory returns the directory consoles are configured from.
func (s *Server) handleGetDirectory(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.consoles.Directory())
}

// handlePutDirectory replaces the directory. The body is either a facility
// tree or a flat array of positions. The new tree is persisted before it
// is published to consoles; sessions already open keep their dial codes.
func (s *Server) handlePutDirectory(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "directory exceeds maximum size")
		return
	}
	if len(body) == 0 {
		writeError(w, http.StatusBadRequest, "request body must not be empty")
		return
	}

	root, err := directory.Parse(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := root.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx := r.Context()
	if err := s.directory.Replace(ctx, root); err != nil {
		s.logger.Error("replace directory: store failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	updatedAt := time.Now().UTC().Format(time.RFC3339)
	if err := s.settings.Set(ctx, database.SettingDirectorySource, "api"); err != nil {
		s.logger.Warn("replace directory: recording source", "error", err)
	}
	if err := s.settings.Set(ctx, database.SettingDirectoryUpdatedAt, updatedAt); err != nil {
		s.logger.Warn("replace directory: recording update time", "error", err)
	}

	s.consoles.SetDirectory(root)

	writeJSON(w, http.StatusOK, directorySummary{
		Positions: root.Count(),
		Source:    "api",
		UpdatedAt: updatedAt,
	})
}

// handleGetPosition returns one position by exact callsign.
func (s *Server) handleGetPosition(w http.ResponseWriter, r *http.Request) {
	callsign := chi.URLParam(r, "callsign")
	p := s.consoles.Directory().FindPosition(callsign)
	if p == nil {
		writeError(w, http.StatusNotFound, "position not found")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// handleResolveDialCode looks up one dial code in a position's table.
// Codes that are not exactly two digits are never dialable and answer 400.
func (s *Server) handleResolveDialCode(w http.ResponseWriter, r *http.Request) {
	callsign := chi.URLParam(r, "callsign")
	trunk := chi.URLParam(r, "trunk")
	code := chi.URLParam(r, "code")
	if !directory.ValidCode(code) {
		writeError(w, http.StatusBadRequest, "dial code must be two digits")
		return
	}

	dir := s.consoles.Directory()
	if dir.FindPosition(callsign) == nil {
		writeError(w, http.StatusNotFound, "position not found")
		return
	}

	target, ok := directory.ResolveDialCode(dir.FindDialCodeTable(callsign), trunk, code)
	if !ok {
		writeError(w, http.StatusNotFound, "dial code not found")
		return
	}

	writeJSON(w, http.StatusOK, dialCodeResponse{
		Callsign: callsign,
		Trunk:    trunk,
		Code:     code,
		Target:   target,
	})
}
