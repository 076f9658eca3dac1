package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"poolsort/internal/bench"
	"poolsort/internal/events"
	"poolsort/internal/logger"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/net/websocket"
)

// Server はベンチマークの起動と観測を行うAPIサーバー
type Server struct {
	addr     string
	bus      *events.Bus
	registry *prometheus.Registry
	logger   *logger.Logger

	mu        sync.RWMutex
	engine    *bench.Engine
	config    bench.Config
	running   bool
	cancel    context.CancelFunc
	last      *bench.Result
	lastErr   string
	wsClients map[*websocket.Conn]bool

	server *http.Server
}

// NewServer は新しいAPIサーバーを作成する
func NewServer(addr string) *Server {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &Server{
		addr:      addr,
		bus:       events.NewBus(),
		registry:  reg,
		logger:    logger.Default,
		wsClients: make(map[*websocket.Conn]bool),
	}
}

// SetLogger はロガーを設定する
func (s *Server) SetLogger(l *logger.Logger) {
	s.logger = l
}

// Handler はルーティング済みのハンドラを返す
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/presets", s.handlePresets)
	mux.HandleFunc("/api/bench/start", s.handleBenchStart)
	mux.HandleFunc("/api/bench/stop", s.handleBenchStop)
	mux.HandleFunc("/api/result", s.handleResult)
	mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	// WebSocket
	mux.Handle("/ws", websocket.Handler(s.handleWebSocket))

	return mux
}

// Start はサーバーを開始する。ctxがキャンセルされるまでブロックする
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	// イベントをWebSocketクライアントへ配信
	go s.broadcastLoop(ctx)

	s.logger.Info("", "API Server starting on http://%s", s.addr)

	go func() {
		<-ctx.Done()
		s.stopBenchmark()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
		s.bus.Close()
	}()

	if err := s.server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// StatusResponse はステータスレスポンス
type StatusResponse struct {
	Running      bool   `json:"running"`
	Benchmark    string `json:"benchmark,omitempty"`
	Size         int    `json:"size,omitempty"`
	ThreadCounts []int  `json:"thread_counts,omitempty"`
	Completed    uint64 `json:"completed_runs"`
	Failed       uint64 `json:"failed_runs"`
	Subscribers  int    `json:"subscribers"`
	LastError    string `json:"last_error,omitempty"`
}

func (s *Server) status() StatusResponse {
	s.mu.RLock()
	defer s.mu.RUnlock()

	resp := StatusResponse{
		Running:     s.running,
		Subscribers: len(s.wsClients),
		LastError:   s.lastErr,
	}
	if s.config.Name != "" {
		resp.Benchmark = s.config.Name
		resp.Size = s.config.Size
		resp.ThreadCounts = s.config.ThreadCounts
	}
	if s.engine != nil {
		snap := s.engine.Metrics()
		resp.Completed = snap.SuccessRuns
		resp.Failed = snap.FailedRuns
	}
	return resp
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, s.status())
}

func (s *Server) handlePresets(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, bench.Presets())
}

// BenchRequest はベンチマーク開始リクエスト
type BenchRequest struct {
	Preset          string `json:"preset"`
	Size            *int   `json:"size,omitempty"`
	ThreadCounts    []int  `json:"thread_counts,omitempty"`
	ChunksPerThread int    `json:"chunks_per_thread,omitempty"`
	Repeat          int    `json:"repeat,omitempty"`
	Seed            uint64 `json:"seed,omitempty"`
}

func (req BenchRequest) config() bench.Config {
	config, ok := bench.GetPreset(req.Preset)
	if !ok {
		config = bench.QuickConfig()
	}

	// オーバーライド
	if req.Size != nil {
		config.Size = *req.Size
	}
	if len(req.ThreadCounts) > 0 {
		config.ThreadCounts = req.ThreadCounts
	}
	if req.ChunksPerThread > 0 {
		config.ChunksPerThread = req.ChunksPerThread
	}
	if req.Repeat > 0 {
		config.Repeat = req.Repeat
	}
	if req.Seed != 0 {
		config.Seed = req.Seed
	}
	return config
}

func (s *Server) handleBenchStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req BenchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	config := req.config()
	if err := config.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		http.Error(w, "Benchmark already running", http.StatusConflict)
		return
	}

	engine := bench.New(config)
	engine.SetEventBus(s.bus)
	engine.SetRegisterer(s.registry)
	engine.SetLogger(s.logger)

	ctx, cancel := context.WithCancel(context.Background())
	s.config = config
	s.engine = engine
	s.cancel = cancel
	s.running = true
	s.lastErr = ""
	s.mu.Unlock()

	// バックグラウンドで実行
	go func() {
		defer cancel()
		result, err := engine.Run(ctx)

		s.mu.Lock()
		s.running = false
		s.cancel = nil
		if result != nil {
			s.last = result
		}
		if err != nil {
			s.lastErr = err.Error()
		}
		s.mu.Unlock()

		if err != nil {
			s.logger.Error("", "Benchmark stopped: %v", err)
		} else {
			s.logger.Info("", "Benchmark completed: %d runs", len(result.Runs))
		}

		s.broadcast(map[string]any{
			"type":   "bench_result",
			"result": result,
		})
	}()

	s.writeJSONStatus(w, http.StatusAccepted, map[string]string{"status": "started", "benchmark": config.Name})
}

func (s *Server) handleBenchStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if !s.stopBenchmark() {
		http.Error(w, "No benchmark running", http.StatusBadRequest)
		return
	}
	s.writeJSON(w, map[string]string{"status": "stop requested"})
}

// stopBenchmark は実行中のベンチマークをキャンセルする
func (s *Server) stopBenchmark() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running || s.cancel == nil {
		return false
	}
	s.cancel()
	return true
}

func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.mu.RLock()
	last := s.last
	s.mu.RUnlock()

	if last == nil {
		http.Error(w, "No result yet", http.StatusNotFound)
		return
	}

	s.writeJSON(w, struct {
		*bench.Result
		Summary []bench.ThreadSummary `json:"summary"`
	}{last, last.Summary()})
}

// WebSocket handling
func (s *Server) handleWebSocket(ws *websocket.Conn) {
	s.mu.Lock()
	s.wsClients[ws] = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.wsClients, ws)
		s.mu.Unlock()
		_ = ws.Close()
	}()

	// クライアントが切断するまで接続を維持する
	for {
		var msg string
		if err := websocket.Message.Receive(ws, &msg); err != nil {
			break
		}
	}
}

func (s *Server) broadcast(data any) {
	s.mu.RLock()
	clients := make([]*websocket.Conn, 0, len(s.wsClients))
	for ws := range s.wsClients {
		clients = append(clients, ws)
	}
	s.mu.RUnlock()

	jsonData, err := json.Marshal(data)
	if err != nil {
		return
	}

	for _, ws := range clients {
		_ = websocket.Message.Send(ws, string(jsonData))
	}
}

// broadcastLoop はイベントバスの内容をWebSocketクライアントへ転送する
func (s *Server) broadcastLoop(ctx context.Context) {
	ch := s.bus.Subscribe()
	defer s.bus.Unsubscribe(ch)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			s.broadcast(map[string]any{
				"type":  "event",
				"event": ev,
			})
		}
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, data any) {
	s.writeJSONStatus(w, http.StatusOK, data)
}

func (s *Server) writeJSONStatus(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("", "Failed to encode JSON: %v", err)
	}
}
