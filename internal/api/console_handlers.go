package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/flowpbx/voiceswitch/internal/call"
	"github.com/flowpbx/voiceswitch/internal/command"
	"github.com/flowpbx/voiceswitch/internal/console"
	"github.com/flowpbx/voiceswitch/internal/matcher"
)

type createConsoleRequest struct {
	Callsign string `json:"callsign"`
}

type sessionRequest struct {
	Mode string `json:"mode"`
}

type trunkRequest struct {
	Trunk string `json:"trunk"`
	Type  string `json:"type"`
}

type digitRequest struct {
	Digit string `json:"digit"`
}

type statusRequest struct {
	Call   string `json:"call"`
	Status string `json:"status"`
}

type identityRequest struct {
	Callsign  string `json:"callsign"`
	AccountID int64  `json:"account_id"`
}

// statusResponse reports whether a status event changed the call.
type statusResponse struct {
	Applied bool         `json:"applied"`
	Console console.View `json:"console"`
}

// consoleFromRequest resolves the {id} URL parameter. It writes a 404 and
// returns nil when the console does not exist.
func (s *Server) consoleFromRequest(w http.ResponseWriter, r *http.Request) *console.Console {
	c, err := s.consoles.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, s.logger, "get console", err)
		return nil
	}
	return c
}

// handleListConsoles returns a page of consoles ordered by creation time.
func (s *Server) handleListConsoles(w http.ResponseWriter, r *http.Request) {
	p, errMsg := parsePagination(r)
	if errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}

	views := s.consoles.List()
	start, end := p.page(len(views))
	writeJSON(w, http.StatusOK, PaginatedResponse{
		Items:  views[start:end],
		Total:  len(views),
		Limit:  p.Limit,
		Offset: p.Offset,
	})
}

// handleCreateConsole adds a console. The body is optional; its callsign
// is the position bound when auto-detection finds nothing.
func (s *Server) handleCreateConsole(w http.ResponseWriter, r *http.Request) {
	var req createConsoleRequest
	if r.ContentLength != 0 {
		if errMsg := readJSON(r, &req); errMsg != "" {
			writeError(w, http.StatusBadRequest, errMsg)
			return
		}
	}
	if errMsg := validateCallsign("callsign", req.Callsign); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}

	c := s.consoles.Create(req.Callsign)
	writeJSON(w, http.StatusCreated, c.View())
}

func (s *Server) handleGetConsole(w http.ResponseWriter, r *http.Request) {
	c := s.consoleFromRequest(w, r)
	if c == nil {
		return
	}
	writeJSON(w, http.StatusOK, c.View())
}

func (s *Server) handleDeleteConsole(w http.ResponseWriter, r *http.Request) {
	if err := s.consoles.Delete(chi.URLParam(r, "id")); err != nil {
		writeDomainError(w, s.logger, "delete console", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleOpenSession starts a trunk-call, dial-line or IA session.
func (s *Server) handleOpenSession(w http.ResponseWriter, r *http.Request) {
	c := s.consoleFromRequest(w, r)
	if c == nil {
		return
	}

	var req sessionRequest
	if errMsg := readJSON(r, &req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	if err := c.Open(call.Mode(req.Mode)); err != nil {
		writeDomainError(w, s.logger, "open session", err)
		return
	}
	writeJSON(w, http.StatusCreated, c.View())
}

func (s *Server) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	c := s.consoleFromRequest(w, r)
	if c == nil {
		return
	}
	if err := c.Close(); err != nil {
		writeDomainError(w, s.logger, "close session", err)
		return
	}
	writeJSON(w, http.StatusOK, c.View())
}

// handleIdentify runs position auto-detection and waits for its result.
// A detection superseded by a newer identity answers 409.
func (s *Server) handleIdentify(w http.ResponseWriter, r *http.Request) {
	c := s.consoleFromRequest(w, r)
	if c == nil {
		return
	}

	var req identityRequest
	if errMsg := readJSON(r, &req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	if errMsg := validateCallsign("callsign", req.Callsign); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	if req.Callsign == "" && req.AccountID == 0 {
		writeError(w, http.StatusBadRequest, "callsign or account_id is required")
		return
	}
	if req.AccountID < 0 {
		writeError(w, http.StatusBadRequest, "account_id must not be negative")
		return
	}

	done := c.Identify(matcher.Identity{Callsign: req.Callsign, AccountID: req.AccountID})
	select {
	case _, ok := <-done:
		if !ok {
			writeError(w, http.StatusConflict, "detection superseded by a newer identity")
			return
		}
		writeJSON(w, http.StatusOK, c.View())
	case <-r.Context().Done():
		// Client went away; the detection still completes in the background.
	}
}

func (s *Server) handleSelectTrunk(w http.ResponseWriter, r *http.Request) {
	c := s.consoleFromRequest(w, r)
	if c == nil {
		return
	}

	var req trunkRequest
	if errMsg := readJSON(r, &req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	if errMsg := validateTrunk(req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}

	s.applyEvent(w, c, "select trunk", func() error {
		return c.SelectTrunk(req.Trunk, call.TrunkType(req.Type))
	})
}

// handleDigit applies one keypad press. In IA mode every digit is accepted;
// in dial sessions out-of-state or non-numeric digits are rejected.
func (s *Server) handleDigit(w http.ResponseWriter, r *http.Request) {
	c := s.consoleFromRequest(w, r)
	if c == nil {
		return
	}

	var req digitRequest
	if errMsg := readJSON(r, &req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	if len(req.Digit) != 1 {
		writeError(w, http.StatusBadRequest, "digit must be a single character")
		return
	}

	view, err := c.Digit(req.Digit[0])
	if err != nil {
		writeDomainError(w, s.logger, "digit", err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleBackspace(w http.ResponseWriter, r *http.Request) {
	c := s.consoleFromRequest(w, r)
	if c == nil {
		return
	}
	s.applyEvent(w, c, "backspace", c.Backspace)
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	c := s.consoleFromRequest(w, r)
	if c == nil {
		return
	}
	s.applyEvent(w, c, "clear", c.Clear)
}

func (s *Server) handleCall(w http.ResponseWriter, r *http.Request) {
	c := s.consoleFromRequest(w, r)
	if c == nil {
		return
	}
	s.applyEvent(w, c, "call", c.Call)
}

func (s *Server) handleHangup(w http.ResponseWriter, r *http.Request) {
	c := s.consoleFromRequest(w, r)
	if c == nil {
		return
	}
	s.applyEvent(w, c, "hangup", c.Hangup)
}

func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	c := s.consoleFromRequest(w, r)
	if c == nil {
		return
	}
	s.applyEvent(w, c, "retry", c.Retry)
}

// handleStatus accepts a transport status event over HTTP, for transports
// that do not hold a WebSocket open. Uncorrelated events answer 200 with
// applied false.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	c := s.consoleFromRequest(w, r)
	if c == nil {
		return
	}

	var req statusRequest
	if errMsg := readJSON(r, &req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	if errMsg := validateRequiredStringLen("call", req.Call, maxShortStringLen*2); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	if errMsg := validateRequiredStringLen("status", req.Status, maxShortStringLen); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}

	applied := c.HandleStatus(command.StatusEvent{Call: req.Call, Status: req.Status})
	writeJSON(w, http.StatusOK, statusResponse{Applied: applied, Console: c.View()})
}

// handleConsoleWS attaches a transport connection to a console. Commands
// for the console are pushed on it and status frames are read from it.
func (s *Server) handleConsoleWS(w http.ResponseWriter, r *http.Request) {
	c := s.consoleFromRequest(w, r)
	if c == nil {
		return
	}
	s.hub.ServeWS(w, r, c.ID(), c)
}

// applyEvent runs a console event and writes the resulting view.
func (s *Server) applyEvent(w http.ResponseWriter, c *console.Console, op string, fn func() error) {
	if err := fn(); err != nil {
		writeDomainError(w, s.logger, op, err)
		return
	}
	writeJSON(w, http.StatusOK, c.View())
}
