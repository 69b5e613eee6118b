// Package httpapi is the trigger surface for broadcasts: start, resend and
// status over HTTP, plus a liveness endpoint.
package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"funnelbot/internal/model"
	rtsup "funnelbot/internal/runtime/supervisor"
	"funnelbot/internal/services/broadcast"
	logx "funnelbot/pkg/logx"
)

// Config controls the HTTP listener.
//
// Security: prefer binding to localhost. A non-loopback Addr requires Token.
type Config struct {
	Addr         string
	Token        string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// Pprof mounts net/http/pprof under /debug.
	Pprof bool
}

type Broadcasts interface {
	Start(ctx context.Context, id int64) (broadcast.RunStatus, error)
	Resend(ctx context.Context, id int64) (broadcast.RunStatus, error)
	Status(id int64) (broadcast.RunStatus, bool)
}

type BroadcastStore interface {
	Broadcast(ctx context.Context, id int64) (model.Broadcast, error)
}

// Tenants lists the tenants with a live session.
type Tenants interface {
	IDs() []int64
}

type Server struct {
	cfg     Config
	log     logx.Logger
	handler http.Handler

	mu  sync.Mutex
	srv *http.Server
	sup *rtsup.Supervisor
}

func New(cfg Config, bc Broadcasts, store BroadcastStore, tenants Tenants, log logx.Logger) *Server {
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.String("comp", "httpapi"))
	h := &handlers{bc: bc, store: store, tenants: tenants, log: log, started: time.Now()}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLog(log))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.health)
	r.Group(func(r chi.Router) {
		r.Use(bearerAuth(cfg.Token))
		r.Route("/api/broadcasts/{id}", func(r chi.Router) {
			r.Get("/", h.getBroadcast)
			r.Post("/start", h.startBroadcast)
			r.Post("/resend", h.resendBroadcast)
		})
		if cfg.Pprof {
			r.Mount("/debug", middleware.Profiler())
		}
	})

	return &Server{cfg: cfg, log: log, handler: r}
}

func (s *Server) Handler() http.Handler { return s.handler }

// Start binds the listener and serves in the background. Bind errors are
// returned to the caller.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sup != nil {
		return nil
	}

	addr := strings.TrimSpace(s.cfg.Addr)
	if addr == "" {
		return errors.New("httpapi: empty listen address")
	}
	if strings.TrimSpace(s.cfg.Token) == "" && !isLoopbackAddr(addr) {
		return errors.New("httpapi: non-loopback address requires a token")
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Handler:           s.handler,
		ReadTimeout:       s.cfg.ReadTimeout,
		ReadHeaderTimeout: s.cfg.ReadTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
	}
	sup := rtsup.New(ctx, rtsup.WithLogger(s.log))
	sup.Go("http.serve", func(c context.Context) error {
		err := srv.Serve(ln)
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	sup.Go0("http.shutdown_on_cancel", func(c context.Context) {
		<-c.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(sctx)
	})

	s.srv, s.sup = srv, sup
	s.log.Info("http api started",
		logx.String("addr", ln.Addr().String()),
		logx.Bool("token_set", s.cfg.Token != ""),
		logx.Bool("pprof", s.cfg.Pprof),
	)
	return nil
}

// Stop shuts the server down gracefully within ctx.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv, sup := s.srv, s.sup
	s.srv, s.sup = nil, nil
	s.mu.Unlock()
	if srv == nil {
		return nil
	}

	err := srv.Shutdown(ctx)
	if err != nil {
		_ = srv.Close()
	}
	sup.Cancel()
	if werr := sup.Wait(ctx); werr != nil && err == nil {
		err = werr
	}
	s.log.Info("http api stopped")
	return err
}

func isLoopbackAddr(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// bearerAuth accepts "Authorization: Bearer <token>". An empty token
// disables the check.
func bearerAuth(token string) func(http.Handler) http.Handler {
	tok := strings.TrimSpace(token)
	return func(next http.Handler) http.Handler {
		if tok == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const p = "Bearer "
			ah := r.Header.Get("Authorization")
			if strings.HasPrefix(ah, p) && strings.TrimSpace(strings.TrimPrefix(ah, p)) == tok {
				next.ServeHTTP(w, r)
				return
			}
			w.Header().Set("WWW-Authenticate", "Bearer")
			writeError(w, http.StatusUnauthorized, "unauthorized")
		})
	}
}

func requestLog(log logx.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			fields := []logx.Field{
				logx.String("method", r.Method),
				logx.String("path", r.URL.Path),
				logx.Int("status", ww.Status()),
				logx.String("req_id", middleware.GetReqID(r.Context())),
				logx.Duration("dur", time.Since(start)),
			}
			if ww.Status() >= 500 {
				log.Warn("request failed", fields...)
			} else {
				log.Debug("request ok", fields...)
			}
		})
	}
}
