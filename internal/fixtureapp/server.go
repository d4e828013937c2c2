// Package fixtureapp serves a small stand-in vaults site whose DOM matches the
// built-in selector catalog. The suite runs against it to check itself when no
// real deployment is configured.
package fixtureapp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/kuitang/vaults-e2e/internal/obs"
	"github.com/kuitang/vaults-e2e/internal/ratelimit"
)

const maxBodyBytes = 64 << 10

// Options configure a Server.
type Options struct {
	// WriteRPS and WriteBurst throttle POST /api/vaults per client IP.
	WriteRPS   float64
	WriteBurst int
}

// DefaultOptions allow a handful of creates per second per client.
var DefaultOptions = Options{WriteRPS: 5, WriteBurst: 10}

// Server is the fixture site.
type Server struct {
	store    *Store
	renderer *renderer
	writes   *ratelimit.Limiter
	handler  http.Handler
	log      *slog.Logger
}

// New builds a Server with a freshly seeded store.
func New(opts Options) (*Server, error) {
	rend, err := newRenderer()
	if err != nil {
		return nil, err
	}
	s := &Server{
		store:    NewStore(),
		renderer: rend,
		writes:   ratelimit.New(ratelimit.Config{RPS: opts.WriteRPS, Burst: opts.WriteBurst}),
		log:      obs.Pkg("fixtureapp"),
	}
	s.handler = obs.AccessLogMiddleware("fixtureapp", s.routes())
	return s, nil
}

// Store exposes the backing store for assertions.
func (s *Server) Store() *Store { return s.store }

// Handler returns the site's root handler.
func (s *Server) Handler() http.Handler { return s.handler }

// Close stops background work.
func (s *Server) Close() { s.writes.Stop() }

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	throttle := ratelimit.Middleware(s.writes, ratelimit.ClientIP)

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/vaults", http.StatusFound)
	})
	mux.HandleFunc("GET /vaults", s.handleVaults)
	mux.HandleFunc("GET /vaults/new", s.handleNewVault)
	mux.HandleFunc("GET /vaults/{id}", s.handleVault)
	mux.HandleFunc("GET /positions", s.handlePositionsPage)

	mux.HandleFunc("GET /api/vaults", s.handleListVaults)
	mux.Handle("POST /api/vaults", throttle(http.HandlerFunc(s.handleCreateVault)))
	mux.HandleFunc("GET /api/positions", s.handleListPositions)
	mux.HandleFunc("POST /api/positions", s.handleApplyPosition)
	return mux
}

func (s *Server) page(w http.ResponseWriter, status int, name string, data any) {
	if err := s.renderer.render(w, status, name, data); err != nil {
		s.log.Error("render_failed", "page", name, "error", err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "vaults": len(s.store.Vaults())})
}

func (s *Server) handleVaults(w http.ResponseWriter, r *http.Request) {
	s.page(w, http.StatusOK, "vaults", map[string]any{"Vaults": s.store.Vaults()})
}

func (s *Server) handleNewVault(w http.ResponseWriter, r *http.Request) {
	s.page(w, http.StatusOK, "new", map[string]any{"Assets": Assets, "Strategies": Strategies})
}

func (s *Server) handleVault(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	v, ok := s.store.Vault(id)
	if !ok {
		s.page(w, http.StatusNotFound, "notfound", map[string]any{"Message": fmt.Sprintf("No vault %q.", id)})
		return
	}
	s.page(w, http.StatusOK, "detail", map[string]any{"Vault": v})
}

func (s *Server) handlePositionsPage(w http.ResponseWriter, r *http.Request) {
	s.page(w, http.StatusOK, "positions", nil)
}

// vaultJSON is the API shape of a vault.
type vaultJSON struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Asset    string `json:"asset"`
	Strategy string `json:"strategy"`
	Address  string `json:"address"`
	APR      string `json:"apr,omitempty"`
	TVL      string `json:"tvl"`
}

func toJSON(v Vault) vaultJSON {
	return vaultJSON{
		ID:       v.ID,
		Name:     v.Name,
		Symbol:   v.Symbol,
		Asset:    v.Asset,
		Strategy: v.Strategy,
		Address:  v.Address.Hex(),
		APR:      v.APRValue(),
		TVL:      v.TVL.String(),
	}
}

func (s *Server) handleListVaults(w http.ResponseWriter, r *http.Request) {
	vaults := s.store.Vaults()
	out := make([]vaultJSON, len(vaults))
	for i, v := range vaults {
		out[i] = toJSON(v)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateVault(w http.ResponseWriter, r *http.Request) {
	var in VaultInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	v, fe := s.store.Create(in)
	if len(fe) > 0 {
		writeJSON(w, http.StatusBadRequest, map[string]any{"errors": fe})
		return
	}
	s.log.Info("vault_created", "id", v.ID, "creator", v.Creator)
	writeJSON(w, http.StatusCreated, toJSON(v))
}

func (s *Server) handleListPositions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.store.Positions(r.URL.Query().Get("address")))
}

func (s *Server) handleApplyPosition(w http.ResponseWriter, r *http.Request) {
	var c PositionChange
	if err := decodeJSON(w, r, &c); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if err := s.store.Apply(c); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	s.log.Info("position_changed", "vault", c.VaultID, "kind", c.Kind, "amount", c.Amount, "tx", c.TxHash)
	writeJSON(w, http.StatusOK, s.store.Positions(c.Address))
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	if ct := r.Header.Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		return fmt.Errorf("expected application/json, got %q", ct)
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Running is a Server listening on a local port.
type Running struct {
	URL    string
	server *Server
	http   *http.Server
	done   chan error
}

// Start serves a new fixture site on addr ("127.0.0.1:0" picks a free port).
func Start(addr string, opts Options) (*Running, error) {
	srv, err := New(opts)
	if err != nil {
		return nil, err
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		srv.Close()
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	hs := &http.Server{
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	run := &Running{
		URL:    "http://" + ln.Addr().String(),
		server: srv,
		http:   hs,
		done:   make(chan error, 1),
	}
	go func() {
		err := hs.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		run.done <- err
	}()
	srv.log.Info("fixture_listening", "url", run.URL)
	return run, nil
}

// Server returns the running site.
func (r *Running) Server() *Server { return r.server }

// Shutdown stops accepting requests and waits for in-flight ones.
func (r *Running) Shutdown(ctx context.Context) error {
	err := r.http.Shutdown(ctx)
	r.server.Close()
	if serveErr := <-r.done; err == nil {
		err = serveErr
	}
	return err
}
