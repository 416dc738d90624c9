// Package web provides the ingestion server that keeps the reconciled
// timeline up to date.
//
// Household-budget exports are uploaded, announced by the Drive folder webhook
// or dropped into the data directory; the workspace is rebuilt, and the result
// is published to the database that Grafana reads. The server also exposes the current timeline, the account
// registry and the skipped-record diagnostics as JSON, streams a "reload"
// event after every rebuild and serves Prometheus metrics.
//
// SECURITY WARNING: This server has no authentication and should only be
// bound to localhost (127.0.0.1) or a trusted network. Uploads are restricted
// to CSV files written into the data directory.
package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tokuotsu/kakei2grafana/ledger"
	"github.com/tokuotsu/kakei2grafana/loader"
	"github.com/tokuotsu/kakei2grafana/logger"
	"github.com/tokuotsu/kakei2grafana/metrics"
	"github.com/tokuotsu/kakei2grafana/telemetry"
)

// Publisher receives every successful rebuild, e.g. the Postgres store.
type Publisher interface {
	Publish(ctx context.Context, result *ledger.Result) error
}

// ErrPublish wraps Publisher failures. The rebuilt state is served anyway.
var ErrPublish = errors.New("failed to publish")

type Server struct {
	Port         int
	Host         string
	Version      string
	ReadOnly     bool
	WatchEnabled bool

	// Loader reads the data directory; nil means loader.New().
	Loader *loader.Loader

	// LedgerOptions are passed to every reconciliation run.
	LedgerOptions []ledger.Option

	// Publisher is optional.
	Publisher Publisher

	// Metrics is optional; without it /metrics is not served.
	Metrics *metrics.Collector

	// DriveDownloadURL is where webhook files are fetched from; empty means
	// DefaultDriveDownloadURL.
	DriveDownloadURL string

	// HTTPClient downloads webhook files; nil uses a client with a one
	// minute timeout.
	HTTPClient *http.Client

	dataDir string

	// rebuildMu serializes rebuilds so uploads and file events never race.
	rebuildMu sync.Mutex

	mu    sync.RWMutex
	state *state

	// SSE clients for broadcasting reload events
	sseClients map[chan string]struct{}
	sseMu      sync.Mutex
}

// state is the outcome of the last successful rebuild.
type state struct {
	run       uuid.UUID
	builtAt   time.Time
	workspace *loader.Workspace
	result    *ledger.Result
}

// diagnostics returns parser and ledger diagnostics in that order.
func (st *state) diagnostics() []error {
	errs := make([]error, 0, len(st.workspace.Diagnostics)+len(st.result.Diagnostics))
	errs = append(errs, st.workspace.Diagnostics...)
	return append(errs, st.result.Diagnostics...)
}

func New(port int, dataDir string) *Server {
	return NewWithVersion(port, dataDir, "")
}

func NewWithVersion(port int, dataDir, version string) *Server {
	return &Server{
		Port:       port,
		Host:       "127.0.0.1",
		Version:    version,
		dataDir:    dataDir,
		sseClients: make(map[chan string]struct{}),
	}
}

// Start performs the initial rebuild and serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	collector := telemetry.FromContext(ctx)
	timer := collector.Start(fmt.Sprintf("web.start %s:%d", s.Host, s.Port))

	if s.dataDir == "" {
		timer.End()
		return fmt.Errorf("data directory is required")
	}

	loadTimer := timer.Child(fmt.Sprintf("web.rebuild %s", filepath.Base(s.dataDir)))
	// A publish failure still leaves a state to serve.
	if err := s.Rebuild(ctx); err != nil && !errors.Is(err, ErrPublish) {
		loadTimer.End()
		timer.End()
		return fmt.Errorf("failed to load workspace: %w", err)
	}
	loadTimer.End()

	if s.WatchEnabled {
		if err := s.startWatcher(ctx); err != nil {
			timer.End()
			return fmt.Errorf("failed to start file watcher: %w", err)
		}
	}

	setupTimer := timer.Child("web.setup_router")
	mux := s.setupRouter()
	setupTimer.End()
	timer.End()

	addr := fmt.Sprintf("%s:%d", s.Host, s.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	shutdownErr := make(chan error, 1)
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		shutdownErr <- srv.Shutdown(shutdownCtx)
	}()

	logger.FromContext(ctx).Info().Str("addr", addr).Str("data_dir", s.dataDir).Bool("read_only", s.ReadOnly).Msg("serving")

	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return <-shutdownErr
}

func (s *Server) setupRouter() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/upload", s.requireWritable(s.handleUpload))
	mux.HandleFunc("POST /api/rebuild", s.handleRebuild)
	mux.HandleFunc("GET /drive-webhook", s.handleDrivePing)
	mux.HandleFunc("POST /drive-webhook", s.requireWritable(s.handleDriveWebhook))
	mux.HandleFunc("GET /api/status", s.handleGetStatus)
	mux.HandleFunc("GET /api/timeline", s.handleGetTimeline)
	mux.HandleFunc("GET /api/accounts", s.handleGetAccounts)
	mux.HandleFunc("GET /api/diagnostics", s.handleGetDiagnostics)
	mux.HandleFunc("GET /api/events", s.handleSSE)

	if s.Metrics != nil {
		mux.Handle("GET /metrics", s.Metrics.Handler())
	}

	return mux
}

// requireWritable is middleware that rejects write requests in read-only mode.
func (s *Server) requireWritable(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.ReadOnly {
			http.Error(w, "Server is in read-only mode", http.StatusForbidden)
			return
		}
		next(w, r)
	}
}

func (s *Server) loader() *loader.Loader {
	if s.Loader == nil {
		return loader.New()
	}
	return s.Loader
}

// current returns the last successful rebuild, or nil before the first one.
func (s *Server) current() *state {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Rebuild reloads the workspace, reconciles it and publishes the result. The
// previous state stays in place when loading or reconciling fails. A publish
// failure is returned wrapping ErrPublish after the new state is in place.
func (s *Server) Rebuild(ctx context.Context) error {
	s.rebuildMu.Lock()
	defer s.rebuildMu.Unlock()

	run := uuid.New()
	log := logger.FromContext(ctx).With().Str("run", run.String()).Logger()
	start := time.Now()

	st, err := s.rebuild(ctx, run, log)
	if s.Metrics != nil {
		var result *ledger.Result
		if st != nil {
			result = st.result
			s.Metrics.ObserveDiagnostics(st.workspace.Diagnostics)
		}
		s.Metrics.ObserveRebuild(time.Since(start), result, err)
	}
	if err != nil {
		log.Error().Err(err).Dur("took", time.Since(start)).Msg("rebuild failed")
		if st != nil {
			s.broadcast("reload")
		}
		return err
	}

	log.Info().
		Int("days", st.result.Timeline.Len()).
		Int("transactions", len(st.result.Transactions)).
		Int("diagnostics", len(st.diagnostics())).
		Dur("took", time.Since(start)).
		Msg("rebuild finished")

	s.broadcast("reload")
	return nil
}

func (s *Server) rebuild(ctx context.Context, run uuid.UUID, log zerolog.Logger) (*state, error) {
	ws, err := s.loader().Load(ctx, s.dataDir)
	if err != nil {
		return nil, err
	}

	result, err := ledger.New(ws.Config, s.LedgerOptions...).Reconcile(ctx, ws.Batch)
	if err != nil {
		return nil, err
	}

	for _, account := range result.UnregisteredAccounts() {
		log.Warn().Str("account", string(account)).Msg("account has records but no registry entry")
	}

	st := &state{run: run, builtAt: time.Now(), workspace: ws, result: result}
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()

	if s.Publisher != nil {
		if err := s.Publisher.Publish(ctx, result); err != nil {
			return st, fmt.Errorf("%w: %w", ErrPublish, err)
		}
	}
	return st, nil
}

// startWatcher watches the data directory and the meta file, rebuilding and
// broadcasting when any of the inputs change.
func (s *Server) startWatcher(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}

	meta, csvs := s.loader().Paths(s.dataDir)
	inputs := make(map[string]bool, len(csvs)+1)
	for _, path := range append(csvs, meta) {
		inputs[filepath.Clean(path)] = true
	}

	// Watch directories rather than files so atomic renames and files that
	// do not exist yet are still seen.
	dirs := map[string]bool{filepath.Clean(s.dataDir): true, filepath.Dir(meta): true}
	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			_ = watcher.Close()
			return fmt.Errorf("failed to watch %s: %w", dir, err)
		}
	}

	go s.runWatcher(ctx, watcher, inputs)

	return nil
}

// runWatcher processes file system events with debouncing.
func (s *Server) runWatcher(ctx context.Context, watcher *fsnotify.Watcher, inputs map[string]bool) {
	log := logger.FromContext(ctx)

	var debounceTimer *time.Timer
	defer func() {
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
		_ = watcher.Close()
	}()

	// Exports are often written in several steps.
	const debounceDelay = 250 * time.Millisecond

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !inputs[filepath.Clean(event.Name)] {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}

			log.Debug().Str("file", event.Name).Str("op", event.Op.String()).Msg("input changed")

			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(debounceDelay, func() {
				_ = s.Rebuild(ctx)
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Msg("file watcher error")
		}
	}
}

// handleSSE handles Server-Sent Events connections for real-time updates.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	clientChan := make(chan string, 10)

	s.sseMu.Lock()
	s.sseClients[clientChan] = struct{}{}
	s.sseMu.Unlock()

	defer func() {
		s.sseMu.Lock()
		delete(s.sseClients, clientChan)
		s.sseMu.Unlock()
	}()

	_, _ = fmt.Fprintf(w, "data: connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case event := <-clientChan:
			_, _ = fmt.Fprintf(w, "data: %s\n\n", event)
			flusher.Flush()
		}
	}
}

// broadcast sends an event to all connected SSE clients.
func (s *Server) broadcast(event string) {
	s.sseMu.Lock()
	defer s.sseMu.Unlock()

	for clientChan := range s.sseClients {
		select {
		case clientChan <- event:
		default:
			// Client buffer full, skip
		}
	}
}
