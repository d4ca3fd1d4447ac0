package metrics

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/flowpbx/voiceswitch/internal/call"
	"github.com/flowpbx/voiceswitch/internal/directory"
	"github.com/flowpbx/voiceswitch/internal/matcher"
)

// ConsoleProvider exposes console and dial-session counts.
type ConsoleProvider interface {
	Count() int
	SessionStates() map[string]int
	MatchCounts() map[string]uint64
	Directory() *directory.Facility
}

// TransportProvider exposes command transport statistics.
type TransportProvider interface {
	Connections() int
	CommandCounts() map[string]uint64
	Undelivered() uint64
}

// DatabasePinger checks the directory store.
type DatabasePinger interface {
	PingContext(ctx context.Context) error
}

// sessionStates is the fixed label set for the sessions gauge so that every
// state reports, including zero.
var sessionStates = []call.State{
	call.StateTrunkSelect,
	call.StateDialing,
	call.StateCalling,
	call.StateConnected,
	call.StateBusy,
	call.StateNoAnswer,
}

var matchMethods = []matcher.Method{
	matcher.MethodAFVDirect,
	matcher.MethodVatsimMatch,
	matcher.MethodVatsimInfer,
	matcher.MethodFallback,
}

// Collector is a prometheus.Collector that gathers voice-switch metrics at
// scrape time.
type Collector struct {
	consoles  ConsoleProvider
	transport TransportProvider
	db        DatabasePinger
	startTime time.Time

	consolesDesc    *prometheus.Desc
	sessionsDesc    *prometheus.Desc
	commandsDesc    *prometheus.Desc
	undeliveredDesc *prometheus.Desc
	connectionsDesc *prometheus.Desc
	matchesDesc     *prometheus.Desc
	positionsDesc   *prometheus.Desc
	databaseUpDesc  *prometheus.Desc
	uptimeDesc      *prometheus.Desc
}

// NewCollector creates a new metrics collector. Any provider may be nil if
// unavailable.
func NewCollector(consoles ConsoleProvider, transport TransportProvider, db DatabasePinger, startTime time.Time) *Collector {
	return &Collector{
		consoles:  consoles,
		transport: transport,
		db:        db,
		startTime: startTime,

		consolesDesc: prometheus.NewDesc(
			"voiceswitch_consoles_active",
			"Number of consoles currently registered",
			nil, nil,
		),
		sessionsDesc: prometheus.NewDesc(
			"voiceswitch_sessions",
			"Open dial sessions by call state",
			[]string{"state"}, nil,
		),
		commandsDesc: prometheus.NewDesc(
			"voiceswitch_commands_sent_total",
			"Commands published to the transport by type",
			[]string{"type"}, nil,
		),
		undeliveredDesc: prometheus.NewDesc(
			"voiceswitch_commands_undelivered_total",
			"Commands published while no transport connection was subscribed",
			nil, nil,
		),
		connectionsDesc: prometheus.NewDesc(
			"voiceswitch_transport_connections",
			"Open transport WebSocket connections",
			nil, nil,
		),
		matchesDesc: prometheus.NewDesc(
			"voiceswitch_matches_total",
			"Position auto-detections by resolution method",
			[]string{"method"}, nil,
		),
		positionsDesc: prometheus.NewDesc(
			"voiceswitch_directory_positions",
			"Positions in the loaded directory",
			nil, nil,
		),
		databaseUpDesc: prometheus.NewDesc(
			"voiceswitch_database_up",
			"Whether the directory store answered a ping (1=up, 0=down)",
			nil, nil,
		),
		uptimeDesc: prometheus.NewDesc(
			"voiceswitch_uptime_seconds",
			"Seconds since the voice switch process started",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.consolesDesc
	ch <- c.sessionsDesc
	ch <- c.commandsDesc
	ch <- c.undeliveredDesc
	ch <- c.connectionsDesc
	ch <- c.matchesDesc
	ch <- c.positionsDesc
	ch <- c.databaseUpDesc
	ch <- c.uptimeDesc
}

// Collect implements prometheus.Collector. It queries all providers at scrape time.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	if c.consoles != nil {
		ch <- prometheus.MustNewConstMetric(
			c.consolesDesc, prometheus.GaugeValue,
			float64(c.consoles.Count()),
		)

		states := c.consoles.SessionStates()
		for _, s := range sessionStates {
			name := s.String()
			ch <- prometheus.MustNewConstMetric(
				c.sessionsDesc, prometheus.GaugeValue,
				float64(states[name]), name,
			)
		}

		matches := c.consoles.MatchCounts()
		for _, m := range matchMethods {
			ch <- prometheus.MustNewConstMetric(
				c.matchesDesc, prometheus.CounterValue,
				float64(matches[string(m)]), string(m),
			)
		}

		ch <- prometheus.MustNewConstMetric(
			c.positionsDesc, prometheus.GaugeValue,
			float64(c.consoles.Directory().Count()),
		)
	}

	if c.transport != nil {
		for typ, n := range c.transport.CommandCounts() {
			ch <- prometheus.MustNewConstMetric(
				c.commandsDesc, prometheus.CounterValue,
				float64(n), typ,
			)
		}
		ch <- prometheus.MustNewConstMetric(
			c.undeliveredDesc, prometheus.CounterValue,
			float64(c.transport.Undelivered()),
		)
		ch <- prometheus.MustNewConstMetric(
			c.connectionsDesc, prometheus.GaugeValue,
			float64(c.transport.Connections()),
		)
	}

	if c.db != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		up := 1.0
		if err := c.db.PingContext(ctx); err != nil {
			slog.Error("metrics: directory store ping failed", "error", err)
			up = 0
		}
		cancel()
		ch <- prometheus.MustNewConstMetric(c.databaseUpDesc, prometheus.GaugeValue, up)
	}

	ch <- prometheus.MustNewConstMetric(
		c.uptimeDesc, prometheus.GaugeValue,
		time.Since(c.startTime).Seconds(),
	)
}
