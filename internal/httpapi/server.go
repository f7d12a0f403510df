// Package httpapi exposes the approval lifecycle over HTTP: agents post
// requested/resolved events here and operators scrape health and metrics.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/ido2103/openclaw/internal/forward"
	"github.com/ido2103/openclaw/pkg/logx"
)

// ApprovalService is the slice of the forwarder the API needs.
type ApprovalService interface {
	HandleRequested(ctx context.Context, req forward.Request)
	HandleResolved(ctx context.Context, res forward.Resolution)
	Pending() int
}

type Config struct {
	Addr string
}

// DefaultTTL is applied to requests posted without an expiry.
const DefaultTTL = 60 * time.Second

type Server struct {
	cfg      Config
	approval ApprovalService
	metrics  http.Handler
	ready    func() bool
	log      logx.Logger
	now      func() time.Time

	srv *http.Server
}

// New builds the server. metricsHandler and ready may be nil.
func New(cfg Config, approval ApprovalService, metricsHandler http.Handler, ready func() bool, log logx.Logger) *Server {
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:8780"
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Server{
		cfg:      cfg,
		approval: approval,
		metrics:  metricsHandler,
		ready:    ready,
		log:      log,
		now:      time.Now,
	}
	s.srv = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) Handler() http.Handler { return s.srv.Handler }

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.accessLog)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		if s.ready != nil && !s.ready() {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "starting"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	})
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}

	r.Route("/v1/approvals", func(r chi.Router) {
		r.Post("/", s.postApproval)
		r.Post("/{id}/resolution", s.postResolution)
		r.Get("/pending", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string]int{"pending": s.approval.Pending()})
		})
	})

	return r
}

func (s *Server) postApproval(w http.ResponseWriter, r *http.Request) {
	var req forward.Request
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if strings.TrimSpace(req.Command) == "" {
		writeError(w, http.StatusBadRequest, errors.New("command is required"))
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	now := s.now()
	if req.CreatedAtMs == 0 {
		req.CreatedAtMs = now.UnixMilli()
	}
	if req.ExpiresAtMs == 0 {
		req.ExpiresAtMs = now.Add(DefaultTTL).UnixMilli()
	}

	// Fan-out can block on rate limits; answer immediately and deliver in
	// the background.
	go s.approval.HandleRequested(context.Background(), req)

	writeJSON(w, http.StatusAccepted, map[string]string{"id": req.ID})
}

func (s *Server) postResolution(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, errors.New("id is required"))
		return
	}

	var res forward.Resolution
	if err := decodeJSON(r, &res); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	res.ID = id
	if res.Decision == "" {
		writeError(w, http.StatusBadRequest, errors.New("decision is required"))
		return
	}
	if res.TsMs == 0 {
		res.TsMs = s.now().UnixMilli()
	}

	go s.approval.HandleResolved(context.Background(), res)

	writeJSON(w, http.StatusAccepted, map[string]string{"id": id})
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Debug("http request",
			logx.String("method", r.Method),
			logx.String("path", r.URL.Path),
			logx.Int("status", ww.Status()),
			logx.Duration("took", time.Since(start)))
	})
}

// Start begins serving and returns once the listener exits.
// http.ErrServerClosed is reported as a clean stop.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.srv.ListenAndServe()
	}()
	s.log.Info("http api listening", logx.String("addr", s.cfg.Addr))

	select {
	case <-ctx.Done():
		sctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = s.srv.Shutdown(sctx)
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
