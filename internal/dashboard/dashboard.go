// Package dashboard backs the interactive risk simulator. It serves what-if
// evaluations, a rolling summary of live decisions and a websocket feed of
// every decision the scoring API makes.
//
// The dashboard never renders UI; it exposes JSON for the frontend.
package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"bnpl-risk/internal/common"
	"bnpl-risk/internal/engine"
	"bnpl-risk/internal/features"
	"bnpl-risk/internal/policy"
	"bnpl-risk/internal/storage"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultWindow is how many recent decisions the summary covers.
	DefaultWindow = 1000

	writeWait = 5 * time.Second
)

// Simulator evaluates applicants without side effects.
type Simulator interface {
	Evaluate(ctx context.Context, a features.Applicant, s policy.Settings) (engine.Evaluation, error)
}

// MetricsInterface defines metrics methods needed by the dashboard
type MetricsInterface interface {
	WSClientsSet(n int)
}

type Options struct {
	Simulator      Simulator
	Settings       *policy.Store
	Metrics        MetricsInterface
	AllowedOrigins []string
	// Window caps the rolling summary; DefaultWindow when zero.
	Window int
}

// Message is one websocket frame.
type Message struct {
	Type string      `json:"type"` // "summary" or "decision"
	Data interface{} `json:"data"`
}

// Summary is the rolling view over recent live decisions.
type Summary struct {
	storage.PortfolioStats
	Window   int             `json:"window"`
	Settings policy.Settings `json:"settings"`
}

// Dashboard implements engine.Publisher.
type Dashboard struct {
	opts             Options
	router           *mux.Router
	server           *http.Server
	upgrader         websocket.Upgrader
	clients          map[*websocket.Conn]bool
	clientsMu        sync.Mutex
	broadcastChannel chan engine.Evaluation
	stopChannel      chan struct{}
	isRunning        bool
	mu               sync.Mutex

	recent   []storage.DecisionRecord
	next     int
	recentMu sync.RWMutex
}

func New(opts Options) *Dashboard {
	if opts.Window <= 0 {
		opts.Window = DefaultWindow
	}

	d := &Dashboard{
		opts:             opts,
		clients:          make(map[*websocket.Conn]bool),
		broadcastChannel: make(chan engine.Evaluation, 256),
		stopChannel:      make(chan struct{}),
		recent:           make([]storage.DecisionRecord, 0, opts.Window),
	}
	d.upgrader = websocket.Upgrader{CheckOrigin: d.checkOrigin}

	r := mux.NewRouter()
	r.HandleFunc("/", d.handleIndex).Methods(http.MethodGet)
	r.HandleFunc("/api/simulate", d.handleSimulate).Methods(http.MethodPost)
	r.HandleFunc("/api/summary", d.handleSummary).Methods(http.MethodGet)
	r.HandleFunc("/api/settings", d.handleSettings).Methods(http.MethodGet)
	r.HandleFunc("/ws", d.handleWebSocket).Methods(http.MethodGet)
	d.router = r

	return d
}

func (d *Dashboard) Handler() http.Handler { return d.router }

// Start starts the broadcaster and the dashboard server on port.
func (d *Dashboard) Start(port int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.isRunning {
		return fmt.Errorf("dashboard is already running")
	}

	d.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           d.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       10 * time.Second,
	}

	go d.clientBroadcaster()
	go func() {
		log.Info().Str("address", d.server.Addr).Msg("Starting dashboard server")
		if err := d.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("Dashboard server failed")
		}
	}()

	d.isRunning = true
	return nil
}

// Stop closes every websocket client and shuts the server down.
func (d *Dashboard) Stop(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.isRunning {
		return nil
	}
	close(d.stopChannel)

	d.clientsMu.Lock()
	for client := range d.clients {
		client.Close()
	}
	d.clients = make(map[*websocket.Conn]bool)
	d.clientsMu.Unlock()
	d.reportClients(0)

	d.isRunning = false
	if err := d.server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Failed to shutdown dashboard server")
		return err
	}
	log.Info().Msg("Dashboard stopped")
	return nil
}

// SetSimulator installs the evaluator behind /api/simulate. The engine
// publishes to the dashboard, so it is wired after both exist and before
// Start.
func (d *Dashboard) SetSimulator(sim Simulator) {
	d.opts.Simulator = sim
}

// Publish adds a live decision to the rolling window and queues it for
// websocket clients. It never blocks the scoring path.
func (d *Dashboard) Publish(ev engine.Evaluation) {
	d.remember(engine.ToRecord(ev))

	select {
	case d.broadcastChannel <- ev:
	default:
		log.Debug().Str("id", ev.ID).Msg("Dashboard feed full, dropping decision")
	}
}

func (d *Dashboard) remember(rec storage.DecisionRecord) {
	d.recentMu.Lock()
	defer d.recentMu.Unlock()

	if len(d.recent) < d.opts.Window {
		d.recent = append(d.recent, rec)
		return
	}
	d.recent[d.next] = rec
	d.next = (d.next + 1) % d.opts.Window
}

// Summary aggregates the decisions currently in the window.
func (d *Dashboard) Summary() Summary {
	d.recentMu.RLock()
	recs := make([]storage.DecisionRecord, len(d.recent))
	copy(recs, d.recent)
	d.recentMu.RUnlock()

	sum := Summary{PortfolioStats: storage.Summarize(recs), Window: d.opts.Window}
	if d.opts.Settings != nil {
		sum.Settings = d.opts.Settings.Get()
	}
	return sum
}

func (d *Dashboard) clientBroadcaster() {
	for {
		select {
		case ev := <-d.broadcastChannel:
			d.broadcastToClients(Message{Type: "decision", Data: ev})
		case <-d.stopChannel:
			return
		}
	}
}

func (d *Dashboard) broadcastToClients(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal dashboard message")
		return
	}

	d.clientsMu.Lock()
	defer d.clientsMu.Unlock()

	dropped := false
	for client := range d.clients {
		client.SetWriteDeadline(time.Now().Add(writeWait))
		if err := client.WriteMessage(websocket.TextMessage, data); err != nil {
			log.Warn().Err(err).Msg("Dropping websocket client")
			client.Close()
			delete(d.clients, client)
			dropped = true
		}
	}
	if dropped {
		d.reportClients(len(d.clients))
	}
}

func (d *Dashboard) reportClients(n int) {
	if d.opts.Metrics != nil {
		d.opts.Metrics.WSClientsSet(n)
	}
}

func (d *Dashboard) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, o := range d.opts.AllowedOrigins {
		if o == "*" || o == origin {
			return true
		}
	}
	return false
}

func (d *Dashboard) handleIndex(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"service": "bnpl-risk-dashboard",
		"endpoints": []string{
			"POST /api/simulate",
			"GET /api/summary",
			"GET /api/settings",
			"GET /ws",
		},
	})
}

// SimulateRequest evaluates Applicant under the live settings with
// Overrides merged on top. Neither the live settings nor the ledger change.
type SimulateRequest struct {
	Applicant features.Applicant   `json:"applicant"`
	Overrides policy.SettingsPatch `json:"overrides"`
}

func (d *Dashboard) handleSimulate(w http.ResponseWriter, r *http.Request) {
	var req SimulateRequest
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, common.SchemaError("body", "invalid JSON: %v", err))
		return
	}

	base := policy.DefaultSettings()
	if d.opts.Settings != nil {
		base = d.opts.Settings.Get()
	}
	settings := req.Overrides.Apply(base)

	if d.opts.Simulator == nil {
		writeError(w, fmt.Errorf("%w: simulator not configured", common.ErrModelUnavailable))
		return
	}
	ev, err := d.opts.Simulator.Evaluate(r.Context(), req.Applicant, settings)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

func (d *Dashboard) handleSummary(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, d.Summary())
}

func (d *Dashboard) handleSettings(w http.ResponseWriter, r *http.Request) {
	if d.opts.Settings == nil {
		writeJSON(w, http.StatusOK, policy.DefaultSettings())
		return
	}
	writeJSON(w, http.StatusOK, d.opts.Settings.Get())
}

func (d *Dashboard) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := d.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}
	defer conn.Close()

	// The summary goes out before the client joins the broadcast set, so
	// this is the only writer on conn until then.
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(Message{Type: "summary", Data: d.Summary()}); err != nil {
		return
	}

	d.clientsMu.Lock()
	d.clients[conn] = true
	n := len(d.clients)
	d.clientsMu.Unlock()
	d.reportClients(n)

	// Keep connection alive
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	d.clientsMu.Lock()
	delete(d.clients, conn)
	n = len(d.clients)
	d.clientsMu.Unlock()
	d.reportClients(n)
}

func writeError(w http.ResponseWriter, err error) {
	code := common.Code(err)
	writeJSON(w, common.HTTPStatus(code), map[string]string{
		"code":  string(code),
		"field": common.Field(err),
		"error": err.Error(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("Failed to write response")
	}
}
