package orchestrate

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"github.com/leonardbinet/railfeed/foundation/logger"
)

// CycleStatus snapshots the last completed RunOnce call for /cycles/last.
type CycleStatus struct {
	CompletedAt time.Time `json:"completed_at"`
	Stations    int       `json:"stations"`
	Passages    int       `json:"passages"`
	Err         string    `json:"err,omitempty"`
}

// DiagnosticsServer exposes /healthz, /datasets, and /cycles/last, grounded
// on the teacher's createServer/runWebService pattern (one mux.Router, one
// http.Server with Slowloris timeouts, shutdown via a signal channel).
type DiagnosticsServer struct {
	mu        sync.Mutex
	lastCycle *CycleStatus
	deps      *Deps
}

// NewDiagnosticsServer builds a DiagnosticsServer over deps.
func NewDiagnosticsServer(deps *Deps) *DiagnosticsServer {
	return &DiagnosticsServer{deps: deps}
}

// recordCycle updates the last-cycle snapshot; RunOnce calls it at the end
// of every cycle when Deps.Diagnostics is set.
func (s *DiagnosticsServer) recordCycle(status CycleStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastCycle = &status
}

func (s *DiagnosticsServer) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Application-Status", "OK")
	w.WriteHeader(http.StatusOK)
}

func (s *DiagnosticsServer) handleDatasets(w http.ResponseWriter, _ *http.Request) {
	if s.deps.GTFSStore == nil {
		http.Error(w, "no gtfs store configured", http.StatusServiceUnavailable)
		return
	}
	routes, err := s.deps.GTFSStore.ListRoutes(false)
	if err != nil {
		http.Error(w, "error serving request", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]int{"route_count": len(routes)})
}

func (s *DiagnosticsServer) handleLastCycle(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	last := s.lastCycle
	s.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	if last == nil {
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "no cycle yet"})
		return
	}
	_ = json.NewEncoder(w).Encode(last)
}

// createServer builds a configured *http.Server for the diagnostics
// surface, with the same Slowloris-defensive timeouts the teacher's
// tripupdate web service uses.
func createServer(s *DiagnosticsServer, httpPort int) *http.Server {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealthz)
	r.HandleFunc("/datasets", s.handleDatasets)
	r.HandleFunc("/cycles/last", s.handleLastCycle)

	return &http.Server{
		Addr:         "0.0.0.0:" + strconv.Itoa(httpPort),
		WriteTimeout: 15 * time.Second,
		ReadTimeout:  15 * time.Second,
		IdleTimeout:  60 * time.Second,
		Handler:      r,
	}
}

// RunWebService starts the diagnostics server and terminates it when
// shutdownSignal fires (teacher's runWebService shape, generalized to this
// package's own DiagnosticsServer instead of a tripUpdate collection).
func RunWebService(log *logger.Logger, wg *sync.WaitGroup, s *DiagnosticsServer, httpPort int, shutdownSignal <-chan bool) {
	wg.Add(1)
	defer wg.Done()

	srv := createServer(s, httpPort)
	if log != nil {
		log.Infof("orchestrate: starting diagnostics server on port %d", httpPort)
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && log != nil {
			log.Infof("orchestrate: diagnostics server ListenAndServe ended: %v", err)
		}
	}()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	<-shutdownSignal
	if log != nil {
		log.Infof("orchestrate: ending diagnostics server on shutdown signal")
	}
	if err := srv.Shutdown(shutdownCtx); err != nil && log != nil {
		log.Warnf("orchestrate: error shutting down diagnostics server: %v", err)
	}
}
