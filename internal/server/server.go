// Package server exposes the offers codec over HTTP for inspection and
// integration testing.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/danmuck/onionoffers/internal/auth"
	"github.com/danmuck/onionoffers/internal/config"
	logs "github.com/danmuck/onionoffers/internal/logging"
	"github.com/danmuck/onionoffers/internal/observability"
	"github.com/danmuck/onionoffers/internal/onionmsg"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

const shutdownGrace = 5 * time.Second

type Server struct {
	Addr     string
	Appeared time.Time

	codec      onionmsg.Codec
	dispatcher *onionmsg.Dispatcher
	validator  auth.Validator
	router     *gin.Engine
}

// New builds the router. An empty cfg.Token leaves POST routes open.
func New(cfg config.ServerConfig, codec onionmsg.Codec, dispatcher *onionmsg.Dispatcher) *Server {
	observability.RegisterMetrics()
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(logs.Logger()))
	r.Use(observability.RequestMetricsMiddleware())
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(cfg.CorsOrigins),
		AllowMethods: []string{"GET", "POST"},
		AllowHeaders: []string{"Origin", "Content-Type", "Authorization"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	s := &Server{
		Addr:       cfg.Addr,
		Appeared:   time.Now(),
		codec:      codec,
		dispatcher: dispatcher,
		router:     r,
	}
	if cfg.Token != "" {
		s.validator = auth.StaticToken{Token: cfg.Token}
	}
	s.RegisterRoutes()
	return s
}

func (s *Server) Router() *gin.Engine {
	return s.router
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		logs.Infof("server listening addr=%s", s.Addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	logs.Infof("server shutting down addr=%s", s.Addr)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) requireToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.validator == nil {
			c.Next()
			return
		}
		token, err := auth.BearerToken(c.GetHeader("Authorization"))
		if err == nil {
			err = s.validator.Validate(token)
		}
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		c.Next()
	}
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}
