// Package api exposes the inbound HTTP surface: chat-vendor and repository
// webhooks plus a health endpoint.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/flowbotio/flowbot/pkg/models"
	"github.com/flowbotio/flowbot/pkg/tasks"
)

// eventQueue carries webhook-originated events into the engine.
const eventQueue = "events"

// EventProcessor is the scenario engine surface the server dispatches to.
type EventProcessor interface {
	ProcessEvent(ctx context.Context, ev models.Event) models.Envelope
}

// ScenarioReloader invalidates a tenant's scenario index.
type ScenarioReloader interface {
	ReloadTenantScenarios(tenantID string)
}

// Config holds the HTTP server settings.
type Config struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// GithubSecret signs repository webhooks.
	GithubSecret string `yaml:"github_secret"`

	// GithubRepos maps "owner/repo" to the tenant whose scenarios the
	// repository holds.
	GithubRepos map[string]string `yaml:"github_repos"`
}

// Server is the webhook HTTP server. Webhook processing is dispatched
// fire-and-forget so the vendor gets its 200 immediately after auth.
type Server struct {
	log       *slog.Logger
	cfg       Config
	engine    EventProcessor
	tasks     *tasks.Manager
	secrets   *SecretRegistry
	scenarios ScenarioReloader

	httpSrv *http.Server
}

func NewServer(cfg Config, engine EventProcessor, taskMgr *tasks.Manager, secrets *SecretRegistry, scenarios ScenarioReloader, log *slog.Logger) *Server {
	return &Server{
		log:       log.With("component", "api"),
		cfg:       cfg,
		engine:    engine,
		tasks:     taskMgr,
		secrets:   secrets,
		scenarios: scenarios,
	}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", s.health)
	r.POST("/webhooks/telegram", s.telegramWebhook)
	r.POST("/webhooks/github", s.githubWebhook)
	return r
}

// Start runs the HTTP server until Shutdown.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.log.Info("http server listening", "addr", addr)
	if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests within the context budget.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// dispatch hands the event to the engine off the request goroutine. The
// webhook response must not wait for scenario execution.
func (s *Server) dispatch(ev models.Event) {
	_, err := s.tasks.Submit(tasks.Submission{
		Queue:         eventQueue,
		FireAndForget: true,
		Work: func(ctx context.Context) (any, error) {
			env := s.engine.ProcessEvent(ctx, ev)
			if env.IsError() {
				return nil, fmt.Errorf("process event: %s", env.Error.Message)
			}
			return env, nil
		},
	})
	if err != nil {
		s.log.Error("event dispatch failed", "error", err)
	}
}
