package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog/log"

	"github.com/yanbot/internal/delivery"
	"github.com/yanbot/internal/jobqueue"
	"github.com/yanbot/internal/ledger"
	"github.com/yanbot/internal/message"
	"github.com/yanbot/internal/metrics"
	"github.com/yanbot/internal/store"
	"github.com/yanbot/internal/tasks"
)

// Routes served by the bot.
const (
	CallbackPath        = "/openserv_webhook"
	TelegramWebhookPath = "/telegram/webhook"

	telegramSecretHeader  = "X-Telegram-Bot-Api-Secret-Token"
	defaultCallbackHeader = "X-Yan-Secret"
)

// JobCompleter is the ledger surface used by the callback gateway.
type JobCompleter interface {
	CompleteJob(ctx context.Context, jobID string, result ledger.Result) (*store.Job, error)
}

// UserLookup resolves the profile used as rendering context.
type UserLookup interface {
	GetOrCreateUser(ctx context.Context, id int64) (*store.User, error)
}

// Renderer turns a raw agent result into a chat message.
type Renderer interface {
	Render(ctx context.Context, kind tasks.Kind, raw string, user *store.User) (message.Content, error)
}

// Deps are the collaborators behind the HTTP surface.
type Deps struct {
	Ledger   JobCompleter
	Users    UserLookup
	Renderer Renderer
	Delivery *delivery.Dispatcher
	Queue    jobqueue.UpdateQueue

	CallbackSecret  string
	CallbackHeader  string
	TransportSecret string
}

// Server represents the API server
type Server struct {
	echo     *echo.Echo
	port     int
	deps     Deps
	contract *openapi3.T
	schema   *openapi3.Schema
}

// NewServer creates a new API server
func NewServer(port int, deps Deps) (*Server, error) {
	if deps.CallbackHeader == "" {
		deps.CallbackHeader = defaultCallbackHeader
	}

	contract, err := loadContract(context.Background())
	if err != nil {
		return nil, err
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogRemoteIP: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			log.Info().
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("remote_ip", v.RemoteIP).
				Msg("request")
			return nil
		},
	}))
	e.Use(middleware.Recover())

	server := &Server{
		echo:     e,
		port:     port,
		deps:     deps,
		contract: contract,
		schema:   contract.Components.Schemas[callbackSchemaName].Value,
	}

	// Setup routes
	server.setupRoutes()

	return server, nil
}

// setupRoutes configures all API endpoints
func (s *Server) setupRoutes() {
	// Health check endpoint
	s.echo.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status": "healthy",
		})
	})
	s.echo.GET("/metrics", echo.WrapHandler(metrics.Handler()))
	s.echo.GET("/openapi.json", func(c echo.Context) error {
		return c.JSON(http.StatusOK, s.contract)
	})

	s.echo.POST(CallbackPath, s.handleCallback)
	s.echo.POST(TelegramWebhookPath, s.handleTelegramUpdate)
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info().Int("port", s.port).Msg("HTTP server listening")
		if err := s.echo.Start(fmt.Sprintf(":%d", s.port)); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return s.echo.Shutdown(shutdownCtx)
}

func errorBody(msg string) map[string]string {
	return map[string]string{"status": "error", "message": msg}
}

// secretMatches compares in constant time. An unset secret matches nothing.
func secretMatches(got, want string) bool {
	if want == "" || got == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}
