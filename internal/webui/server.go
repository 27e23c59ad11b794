// Package webui exposes a loaded ROME store over HTTP: JSON endpoints over
// the query layer and a minimal HTML index of the referentials.
//
// Routes:
//
//	GET /                               → HTML index of referentials
//	GET /api/ogr/{code}                 → row owning an Ogr code
//	GET /api/rome/{ogr}                 → full Rome profile
//	GET /api/referentiels               → referential roots
//	GET /api/referentiels/{ogr}/tree    → assembled referential tree
//
// Lookups answer 404 for unknown codes and 409 for data that breaks a model
// invariant.
package webui

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"html/template"
	"log"
	"net/http"
	"strconv"
	"time"

	"romeetl/internal/errs"
	"romeetl/internal/query"
	"romeetl/pkg/records"
)

// Config controls server startup.
type Config struct {
	Addr string
}

// Querier is the subset of query.Service the handlers use.
type Querier interface {
	GetByCode(ctx context.Context, code int64) (records.Record, error)
	GetProfile(ctx context.Context, romeOgr int64) (records.Record, error)
	GetReferentielTree(ctx context.Context, root int64) (records.Record, error)
	ListReferentiels(ctx context.Context) ([]records.Record, error)
}

var _ Querier = (*query.Service)(nil)

// Server wraps http.Server for convenience.
type Server struct {
	cfg  Config
	q    Querier
	mux  *http.ServeMux
	tmpl *template.Template
	srv  *http.Server
}

// NewServer constructs a Server with routes and embedded template.
func NewServer(cfg Config, q Querier) *Server {
	s := &Server{
		cfg:  cfg,
		q:    q,
		mux:  http.NewServeMux(),
		tmpl: template.Must(template.New("index").Parse(indexHTML)),
	}
	s.routes()
	s.srv = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the route multiplexer.
func (s *Server) Handler() http.Handler { return s.mux }

// ListenAndServe starts the HTTP server. It returns nil after Shutdown.
func (s *Server) ListenAndServe() error {
	log.Printf("webui: listening addr=%s", s.cfg.Addr)
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /{$}", s.handleIndex)
	s.mux.HandleFunc("GET /api/ogr/{code}", s.handleByCode)
	s.mux.HandleFunc("GET /api/rome/{ogr}", s.handleProfile)
	s.mux.HandleFunc("GET /api/referentiels", s.handleReferentiels)
	s.mux.HandleFunc("GET /api/referentiels/{ogr}/tree", s.handleTree)
}

// handleIndex renders the referential list.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	refs, err := s.q.ListReferentiels(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.tmpl.Execute(w, refs); err != nil {
		log.Println("webui: template error:", err)
	}
}

func (s *Server) handleByCode(w http.ResponseWriter, r *http.Request) {
	code, ok := pathInt(w, r, "code")
	if !ok {
		return
	}
	rec, err := s.q.GetByCode(r.Context(), code)
	respond(w, rec, err)
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	ogr, ok := pathInt(w, r, "ogr")
	if !ok {
		return
	}
	rec, err := s.q.GetProfile(r.Context(), ogr)
	respond(w, rec, err)
}

func (s *Server) handleReferentiels(w http.ResponseWriter, r *http.Request) {
	refs, err := s.q.ListReferentiels(r.Context())
	respond(w, refs, err)
}

func (s *Server) handleTree(w http.ResponseWriter, r *http.Request) {
	ogr, ok := pathInt(w, r, "ogr")
	if !ok {
		return
	}
	tree, err := s.q.GetReferentielTree(r.Context(), ogr)
	respond(w, tree, err)
}

func pathInt(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	v, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil {
		http.Error(w, "bad "+name+": "+r.PathValue(name), http.StatusBadRequest)
		return 0, false
	}
	return v, true
}

func respond(w http.ResponseWriter, v any, err error) {
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Println("webui: encode:", err)
	}
}

// writeError maps query errors to status codes. ErrNotFound wins over
// ErrIntegrity for codes whose typed row is missing.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, errs.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, errs.ErrIntegrity):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		log.Printf("webui: error: %v", err)
	}
	http.Error(w, err.Error(), status)
}

// indexHTML is an embedded, minimal page listing the referentials.
//
//go:embed index.tmpl.html
var indexHTML string
