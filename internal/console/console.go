// Package console hosts the signalling core for one operator position: it
// owns the single active dial or IA session, feeds it user and transport
// events, and keeps the auto-detected position binding current.
package console

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/flowpbx/voiceswitch/internal/call"
	"github.com/flowpbx/voiceswitch/internal/command"
	"github.com/flowpbx/voiceswitch/internal/directory"
	"github.com/flowpbx/voiceswitch/internal/ia"
	"github.com/flowpbx/voiceswitch/internal/matcher"
)

var (
	ErrSessionActive = errors.New("a session is already active on this console")
	ErrNoSession     = errors.New("no active session")
	ErrWrongMode     = errors.New("operation not valid in this session mode")
	ErrInvalidMode   = errors.New("invalid session mode")
)

// enrichTimeout bounds the best-effort feed lookup after a direct match.
const enrichTimeout = 15 * time.Second

// Console is one operator position. All methods are safe for concurrent
// use; events are applied one at a time in arrival order.
type Console struct {
	id        string
	callsign  string
	createdAt time.Time

	ctx       context.Context
	directory func() *directory.Facility
	table     *ia.Table
	matcher   *matcher.Matcher
	sender    command.Sender
	onMatch   func(*matcher.Match)
	logger    *slog.Logger

	mu       sync.Mutex
	mode     call.Mode
	session  *call.Session
	ia       *ia.Interpreter
	identity matcher.Identity
	match    *matcher.Match

	detectGen    uint64
	detectCancel context.CancelFunc
}

// ID returns the console identifier.
func (c *Console) ID() string { return c.id }

// Open starts a session in mode. Only one session may be active; a second
// start is rejected with ErrSessionActive and leaves the first untouched.
func (c *Console) Open(mode call.Mode) error {
	if !mode.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.mode != "" {
		c.logger.Debug("ignoring session start, one is active", "active", string(c.mode), "requested", string(mode))
		return ErrSessionActive
	}

	c.mode = mode
	if mode == call.ModeIA {
		c.ia = ia.NewInterpreter(c.table, c.sender, c.logger)
	} else {
		codes := c.directory().FindDialCodeTable(c.positionLocked())
		c.session = call.NewSession(mode, codes, c.sender, c.logger)
	}
	c.logger.Info("session opened", "mode", string(mode))
	return nil
}

// Close ends the active session. A call still in progress is hung up first.
func (c *Console) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.mode == "" {
		return ErrNoSession
	}
	if c.session != nil && c.session.State() != call.StateTrunkSelect {
		if err := c.session.Hangup(); err != nil {
			c.logger.Warn("hangup on close failed", "error", err)
		}
	}
	c.logger.Info("session closed", "mode", string(c.mode))
	c.mode = ""
	c.session = nil
	c.ia = nil
	return nil
}

// SelectTrunk chooses the trunk for a dial session.
func (c *Console) SelectTrunk(trunk string, typ call.TrunkType) error {
	return c.withSession(func(s *call.Session) error { return s.SelectTrunk(trunk, typ) })
}

// Digit handles a keypad press. In IA mode '*' clears the interpreter.
func (c *Console) Digit(d byte) (View, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case c.ia != nil:
		c.ia.Digit(d)
	case c.session != nil:
		if err := c.session.AppendDigit(d); err != nil {
			return c.viewLocked(), err
		}
	default:
		return c.viewLocked(), ErrNoSession
	}
	return c.viewLocked(), nil
}

// Backspace removes the last dialed digit. IA entry is append-only.
func (c *Console) Backspace() error {
	return c.withSession(func(s *call.Session) error { return s.Backspace() })
}

// Clear empties the digit entry of either session kind.
func (c *Console) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case c.ia != nil:
		c.ia.Clear()
		return nil
	case c.session != nil:
		return c.session.ClearDigits()
	}
	return ErrNoSession
}

// Call places the dialed call.
func (c *Console) Call() error {
	return c.withSession(func(s *call.Session) error { return s.Call() })
}

// Hangup ends the current call.
func (c *Console) Hangup() error {
	return c.withSession(func(s *call.Session) error { return s.Hangup() })
}

// Retry redials a busy or unanswered call on the same trunk.
func (c *Console) Retry() error {
	return c.withSession(func(s *call.Session) error { return s.Retry() })
}

// HandleStatus applies a transport status event. Events that do not belong
// to the current call are dropped.
func (c *Console) HandleStatus(evt command.StatusEvent) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session == nil {
		c.logger.Debug("dropping status event, no dial session", "call", evt.Call, "status", evt.Status)
		return false
	}
	return c.session.HandleStatus(evt)
}

func (c *Console) withSession(fn func(s *call.Session) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session == nil {
		if c.ia != nil {
			return ErrWrongMode
		}
		return ErrNoSession
	}
	return fn(c.session)
}

// Identify starts position auto-detection for id. At most one detection is
// in flight per console: a newer identity cancels the pending one and the
// superseded result is discarded. The returned channel yields the applied
// match (possibly nil) and is closed without a value when superseded.
func (c *Console) Identify(id matcher.Identity) <-chan *matcher.Match {
	c.mu.Lock()
	if c.detectCancel != nil {
		c.detectCancel()
	}
	c.detectGen++
	gen := c.detectGen
	ctx, cancel := context.WithCancel(c.ctx)
	c.detectCancel = cancel
	dir := c.directory()
	c.mu.Unlock()

	out := make(chan *matcher.Match, 1)
	go func() {
		defer close(out)
		defer cancel()

		m := c.matcher.AutoDetect(ctx, id, dir)
		if m == nil {
			m = c.fallback(dir)
		}

		c.mu.Lock()
		if gen != c.detectGen {
			c.mu.Unlock()
			c.logger.Debug("discarding superseded detection", "callsign", id.Callsign)
			return
		}
		c.identity = id
		c.match = m
		c.detectCancel = nil
		c.mu.Unlock()

		if m != nil {
			if c.onMatch != nil {
				c.onMatch(m)
			}
			if m.Method == matcher.MethodAFVDirect {
				go c.enrich(gen, id)
			}
		}
		out <- m
	}()
	return out
}

// fallback binds the console's configured callsign when detection fails.
func (c *Console) fallback(dir *directory.Facility) *matcher.Match {
	if c.callsign == "" {
		return nil
	}
	p := dir.FindPosition(c.callsign)
	if p == nil {
		return nil
	}
	return &matcher.Match{Position: p, UI: p.UIOrDefault(), Method: matcher.MethodFallback}
}

// enrich attaches feed information to a direct match without changing it.
func (c *Console) enrich(gen uint64, id matcher.Identity) {
	ctx, cancel := context.WithTimeout(c.ctx, enrichTimeout)
	defer cancel()

	ctrl := c.matcher.Enrich(ctx, id)
	if ctrl == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.detectGen || c.match == nil || c.match.Method != matcher.MethodAFVDirect {
		return
	}
	enriched := *c.match
	enriched.Controller = ctrl
	c.match = &enriched
}

// Match returns the current position binding, or nil.
func (c *Console) Match() *matcher.Match {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.match
}

// cancelDetection stops any pending detection.
func (c *Console) cancelDetection() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.detectCancel != nil {
		c.detectCancel()
		c.detectCancel = nil
	}
	c.detectGen++
}

// positionLocked returns the callsign whose dial codes the console uses.
func (c *Console) positionLocked() string {
	if c.match != nil && c.match.Position != nil {
		return c.match.Position.Callsign
	}
	return c.callsign
}
