package server

import (
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus metric descriptors for the game server.
type Metrics struct {
	game      *Game
	startTime time.Time

	playersConnected *prometheus.GaugeVec
	objectsTotal     prometheus.Gauge
	charactersBound  prometheus.Gauge
	connectionsTotal *prometheus.CounterVec
	commandsTotal    prometheus.Counter
	puppetAttempts   *prometheus.CounterVec
	uptimeSeconds    prometheus.Gauge
	memoryHeapBytes  prometheus.Gauge
	goroutines       prometheus.Gauge
}

// NewMetrics creates and registers Prometheus metrics for the game.
func NewMetrics(game *Game, startTime time.Time) *Metrics {
	m := &Metrics{
		game:      game,
		startTime: startTime,
		playersConnected: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "traumwelt_players_connected",
			Help: "Number of currently connected players by transport.",
		}, []string{"transport"}),
		objectsTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "traumwelt_objects_total",
			Help: "Total number of objects in the database.",
		}),
		charactersBound: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "traumwelt_characters_bound",
			Help: "Characters currently bound to a live connection.",
		}),
		connectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "traumwelt_connections_total",
			Help: "Total connections since server start.",
		}, []string{"transport"}),
		commandsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "traumwelt_commands_processed_total",
			Help: "Total commands processed since server start.",
		}),
		puppetAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "traumwelt_puppet_attempts_total",
			Help: "Puppet acquisition attempts by outcome.",
		}, []string{"outcome"}),
		uptimeSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "traumwelt_uptime_seconds",
			Help: "Server uptime in seconds.",
		}),
		memoryHeapBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "traumwelt_memory_heap_bytes",
			Help: "Go heap memory allocated in bytes.",
		}),
		goroutines: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "traumwelt_goroutines",
			Help: "Number of active goroutines.",
		}),
	}

	prometheus.MustRegister(
		m.playersConnected,
		m.objectsTotal,
		m.charactersBound,
		m.connectionsTotal,
		m.commandsTotal,
		m.puppetAttempts,
		m.uptimeSeconds,
		m.memoryHeapBytes,
		m.goroutines,
	)

	return m
}

// PuppetAttempt counts one acquisition attempt by outcome.
func (m *Metrics) PuppetAttempt(outcome string) {
	m.puppetAttempts.WithLabelValues(outcome).Inc()
}

// Connection counts one new connection by transport label.
func (m *Metrics) Connection(transport string) {
	m.connectionsTotal.WithLabelValues(transport).Inc()
}

// Command counts one processed command.
func (m *Metrics) Command() {
	m.commandsTotal.Inc()
}

// Update refreshes all gauge metrics from current game state.
func (m *Metrics) Update() {
	tcp, ws := m.game.Conns.CountByTransport()
	m.playersConnected.WithLabelValues("tcp").Set(float64(tcp))
	m.playersConnected.WithLabelValues("websocket").Set(float64(ws))

	m.objectsTotal.Set(float64(len(m.game.DB.Objects)))
	m.charactersBound.Set(float64(m.game.Binder.BoundCount()))

	m.uptimeSeconds.Set(time.Since(m.startTime).Seconds())

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	m.memoryHeapBytes.Set(float64(mem.HeapAlloc))
	m.goroutines.Set(float64(runtime.NumGoroutine()))
}

// Handler returns an http.Handler that updates metrics before serving them.
func (m *Metrics) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.Update()
		promhttp.Handler().ServeHTTP(w, r)
	})
}
