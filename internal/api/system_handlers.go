package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/flowpbx/voiceswitch/internal/database"
)

// healthResponse is the shape returned by GET /health.
type healthResponse struct {
	Status    string          `json:"status"`
	Database  databaseStatus  `json:"database"`
	Directory directoryStatus `json:"directory"`
	Consoles  int             `json:"consoles"`
	Transport transportStatus `json:"transport"`
	Uptime    uptimeResponse  `json:"uptime"`
}

type databaseStatus struct {
	Driver string `json:"driver"`
	OK     bool   `json:"ok"`
	Error  string `json:"error,omitempty"`
}

type directoryStatus struct {
	Positions int    `json:"positions"`
	Source    string `json:"source,omitempty"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

type transportStatus struct {
	Connections int    `json:"connections"`
	Undelivered uint64 `json:"undelivered"`
}

type uptimeResponse struct {
	StartedAt  string `json:"started_at"`
	UptimeSec  int64  `json:"uptime_sec"`
	UptimeText string `json:"uptime_text"`
}

// handleHealth reports store reachability and switch counters. It answers
// 503 when the directory store does not respond.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := healthResponse{
		Status:   "ok",
		Database: databaseStatus{Driver: s.db.Driver(), OK: true},
		Directory: directoryStatus{
			Positions: s.consoles.Directory().Count(),
		},
		Consoles: s.consoles.Count(),
		Transport: transportStatus{
			Connections: s.hub.Connections(),
			Undelivered: s.hub.Undelivered(),
		},
	}

	if err := s.db.PingContext(ctx); err != nil {
		s.logger.Error("health: directory store ping failed", "error", err)
		resp.Status = "degraded"
		resp.Database.OK = false
		resp.Database.Error = err.Error()
	}

	if settings, err := s.settings.GetAll(ctx); err == nil {
		resp.Directory.Source = settings[database.SettingDirectorySource]
		resp.Directory.UpdatedAt = settings[database.SettingDirectoryUpdatedAt]
	}

	uptime := time.Since(s.startTime)
	resp.Uptime = uptimeResponse{
		StartedAt:  s.startTime.Format(time.RFC3339),
		UptimeSec:  int64(uptime.Seconds()),
		UptimeText: formatUptime(uptime),
	}

	status := http.StatusOK
	if !resp.Database.OK {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

// formatUptime returns a human-readable uptime string like "2d 5h 30m 12s".
func formatUptime(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm %ds", days, hours, minutes, seconds)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	}
	if minutes > 0 {
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
	return fmt.Sprintf("%ds", seconds)
}
