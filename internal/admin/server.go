// Package admin serves the read-only process status surface.
package admin

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/danmuck/presencectl/internal/auth"
	"github.com/danmuck/presencectl/internal/credential"
	"github.com/danmuck/presencectl/internal/observability"
	"github.com/danmuck/presencectl/internal/protocol/session"
	"github.com/danmuck/presencectl/internal/protocol/xmpp"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

const Version = "0.1.0"

type CredentialReporter interface {
	Status() credential.Status
}

type SessionReporter interface {
	Status() session.Status
}

type Config struct {
	Addr        string
	CorsOrigins []string
	// Token guards /status when set.
	Token           string
	ShutdownTimeout time.Duration
}

type Server struct {
	cfg         Config
	router      *gin.Engine
	credentials CredentialReporter
	session     SessionReporter
	started     time.Time
}

func New(cfg Config, credentials CredentialReporter, sess SessionReporter) *Server {
	observability.RegisterMetrics()
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 5 * time.Second
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.AccessLog(observability.Component("admin"), "/health", "/ready", "/metrics"))
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(cfg.CorsOrigins),
		AllowMethods: []string{"GET"},
		AllowHeaders: []string{"Origin", "Content-Type", "Authorization"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	s := &Server{
		cfg:         cfg,
		router:      r,
		credentials: credentials,
		session:     sess,
		started:     time.Now(),
	}
	s.registerRoutes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) registerRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(s.started).String(),
			"version": Version,
		})
	})

	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.router.GET("/ready", func(c *gin.Context) {
		stage := xmpp.Disconnected
		if s.session != nil {
			stage = s.session.Status().Stage
		}
		status := http.StatusOK
		if stage != xmpp.Ready {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{
			"ready": stage == xmpp.Ready,
			"stage": stage.String(),
		})
	})

	var validator auth.Validator
	if strings.TrimSpace(s.cfg.Token) != "" {
		validator = auth.StaticToken{Token: s.cfg.Token}
	}
	s.router.GET("/status", auth.RequireBearer(validator), func(c *gin.Context) {
		body := gin.H{
			"uptime":  time.Since(s.started).String(),
			"version": Version,
		}
		if s.credentials != nil {
			body["credential"] = s.credentials.Status()
		}
		if s.session != nil {
			body["session"] = s.session.Status()
		}
		c.JSON(http.StatusOK, body)
	})
}

// Serve listens on cfg.Addr until ctx is canceled.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	return s.serveListener(ctx, ln)
}

func (s *Server) serveListener(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	log.Info().Str("addr", ln.Addr().String()).Msg("admin.Server.Serve listening")

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("admin.Server.Serve shutdown")
		return err
	}
	return nil
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}
