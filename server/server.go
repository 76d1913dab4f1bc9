package server

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	spinwheel "github.com/sweepvault/spinwheel-server"
	"github.com/sweepvault/spinwheel-server/catalog"
	"github.com/sweepvault/spinwheel-server/config"
	"github.com/sweepvault/spinwheel-server/eligibility"
	"github.com/sweepvault/spinwheel-server/ledger"
	"github.com/sweepvault/spinwheel-server/platform"
	"github.com/sweepvault/spinwheel-server/spin"
	"github.com/sweepvault/spinwheel-server/wallet"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
)

type Server struct {
	cfg      *config.Config
	catalogs *catalog.Store
	tracker  eligibility.Tracker
	wallet   wallet.Store
	engine   *spin.Engine
	limiter  *ipLimiter
	cron     *cron.Cron
}

func New(cfg *config.Config) *Server {
	catalogs := catalog.NewStore(cfg.DataDir)

	var led ledger.Store
	var wal wallet.Store
	var trk eligibility.Tracker
	db, err := spinwheel.GetDB()
	if err != nil {
		log.Printf("spin: postgres unavailable, falling back to file stores: %v", err)
	}
	if db != nil {
		led = ledger.NewPGStore(db)
		wal = wallet.NewPGStore(db)
		trk = eligibility.NewPGStore(db)
		log.Printf("spin: using postgres stores")
	} else {
		led = ledger.NewFileStore(cfg.DataDir)
		wal = wallet.NewFileStore(cfg.DataDir)
		trk = eligibility.NewFileStore(cfg.DataDir)
	}

	var notifier spin.Notifier
	if cfg.PlatformURL != "" {
		notifier = platform.NewClient(cfg.PlatformURL, cfg.PlatformSecret)
	}

	srv := &Server{
		cfg:      cfg,
		catalogs: catalogs,
		tracker:  trk,
		wallet:   wal,
		engine:   spin.NewEngine(catalogs, led, wal, notifier),
		limiter:  newIPLimiter(cfg.SpinRatePerMin),
	}
	srv.loadWheelBundles()
	return srv
}

// loadWheelBundles registers every wheels/<name>/wheel.json bundle.
// Validation issues are logged for operators but do not block registration:
// a drifted weight sum still spins, it just shows up on the validate surface.
func (s *Server) loadWheelBundles() {
	paths, err := filepath.Glob(filepath.Join(s.cfg.WheelsDir, "*", "wheel.json"))
	if err != nil || len(paths) == 0 {
		return
	}
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			continue
		}
		cat, err := catalog.ParseWheelFile(data)
		if err != nil {
			log.Printf("wheel bundle %s: %v", p, err)
			continue
		}
		if v := cat.Validate(); !v.Valid {
			for _, issue := range v.Issues {
				log.Printf("wheel %s: config issue: %s", cat.WheelID, issue)
			}
		}
		if err := s.catalogs.Register(cat); err != nil {
			log.Printf("wheel %s: failed to register: %v", cat.WheelID, err)
			continue
		}
		log.Printf("wheel %s: registered %d rewards from %s", cat.WheelID, len(cat.Rewards), p)
	}
}

// handler builds the route table. Separate from Run so tests can exercise
// the full stack through httptest.
func (s *Server) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.health)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /wheel/{wheelID}/catalog", s.handleCatalog)
	mux.HandleFunc("POST /wheel/{wheelID}/spin", s.handleSpin)
	mux.HandleFunc("POST /wheel/claim", s.handleClaim)
	mux.HandleFunc("GET /wheel/history", s.handleHistory)
	mux.HandleFunc("GET /wallet/balance", s.handleBalance)
	mux.HandleFunc("POST /eligibility/grant", s.handleGrant)
	mux.HandleFunc("GET /eligibility", s.handleEligibility)
	mux.HandleFunc("GET /admin/wheel/{wheelID}/validate", s.handleValidate)
	mux.HandleFunc("GET /admin/wheel/stats", s.handleStats)
	mux.HandleFunc("POST /admin/wheel/{wheelID}/catalog", s.handleCatalogImport)
	return cors(requestLogger(mux))
}

func (s *Server) Run() error {
	s.cron = cron.New()
	if _, err := s.cron.AddFunc("@every 1m", s.repairSweep); err != nil {
		return err
	}
	s.cron.Start()

	port := s.cfg.Port
	if port <= 0 {
		port = 8082
	}
	addr := ":" + strconv.Itoa(port)
	log.Printf("spinwheel server listening on %s (platform: %s)", addr, s.cfg.PlatformURL)
	return http.ListenAndServe(addr, s.handler())
}

// repairSweep finishes claims whose wallet credit did not land, so a crash
// between the claim flip and the credit never strands a reward.
func (s *Server) repairSweep() {
	n, err := s.engine.RepairUncredited(context.Background(), 100)
	if err != nil {
		log.Printf("spin: repair sweep: %v", err)
		return
	}
	if n > 0 {
		log.Printf("spin: repair sweep credited %d claims", n)
	}
}

func cors(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		h.ServeHTTP(w, r)
	})
}

func requestLogger(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.Printf("spin %s %s", r.Method, r.URL.Path)
		h.ServeHTTP(w, r)
	})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "spinwheel"})
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
