package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/b0bbywan/go-hfpd/backend"
	"github.com/b0bbywan/go-hfpd/config"
	"github.com/b0bbywan/go-hfpd/logger"
)

type Server struct {
	mux         *http.ServeMux
	config      *config.ApiConfig
	broadcaster *backend.Broadcaster
}

func NewServer(cfg *config.ApiConfig, b *backend.Backend) *Server {
	if cfg == nil || !cfg.Enabled {
		return nil
	}

	var broadcaster *backend.Broadcaster
	if b != nil {
		broadcaster = b.Events
	}

	server := &Server{
		mux:         http.NewServeMux(),
		config:      cfg,
		broadcaster: broadcaster,
	}
	server.register(b)
	return server
}

func (s *Server) Handler() http.Handler {
	var handler http.Handler = s.mux
	if s.config.CORS != nil {
		handler = corsMiddleware(s.config.CORS)(handler)
	}
	return handler
}

func (s *Server) Run(ctx context.Context) error {
	handler := s.Handler()

	servers := make([]*http.Server, len(s.config.Listens))
	for i, addr := range s.config.Listens {
		servers[i] = &http.Server{
			Addr:    addr,
			Handler: handler,
			// SSE streams end with the application context
			BaseContext: func(_ net.Listener) context.Context { return ctx },
		}
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		for _, srv := range servers {
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Info("[api] server %s shutdown error: %v", srv.Addr, err)
			}
		}
	}()

	errCh := make(chan error, len(servers))
	var wg sync.WaitGroup
	for _, srv := range servers {
		wg.Add(1)
		go func(srv *http.Server) {
			defer wg.Done()
			logger.Info("[api] http server running on %s", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errCh <- fmt.Errorf("server %s: %w", srv.Addr, err)
			}
		}(srv)
	}

	wg.Wait()
	close(errCh)
	return <-errCh
}

func (s *Server) register(b *backend.Backend) {
	if b == nil {
		return
	}

	// 404 on root and unmatched paths
	s.mux.HandleFunc("/", http.NotFound)

	s.registerServerRoutes(b)

	if b.HandsFree != nil {
		s.registerSessionRoutes(b.HandsFree)
		s.registerHandsFreeRoutes(b.HandsFree)
		s.registerGatewayRoutes(b.HandsFree)
	}

	if b.SoundIo != nil {
		s.registerSoundIoRoutes(b.SoundIo, b.HandsFree)
	}

	if b.Pulse != nil {
		s.registerPulseRoutes(b.Pulse)
	}
}

func corsMiddleware(cfg *config.CORSConfig) func(http.Handler) http.Handler {
	wildcard := slices.Contains(cfg.Origins, "*")
	logger.Info("[api] CORS enabled, origins: %v", cfg.Origins)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" {
				if wildcard {
					w.Header().Set("Access-Control-Allow-Origin", "*")
				} else if slices.Contains(cfg.Origins, origin) {
					w.Header().Set("Access-Control-Allow-Origin", origin)
					w.Header().Add("Vary", "Origin")
				}
			}

			if r.Method == http.MethodOptions {
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+sessionHeader)
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
