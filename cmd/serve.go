package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/yanbot/internal/api"
	"github.com/yanbot/internal/bot"
	"github.com/yanbot/internal/capture"
	"github.com/yanbot/internal/config"
	"github.com/yanbot/internal/database"
	"github.com/yanbot/internal/delivery"
	"github.com/yanbot/internal/dispatch"
	"github.com/yanbot/internal/guard"
	"github.com/yanbot/internal/jobqueue"
	"github.com/yanbot/internal/ledger"
	"github.com/yanbot/internal/logging"
	"github.com/yanbot/internal/onboarding"
	"github.com/yanbot/internal/render"
	"github.com/yanbot/internal/rewrite"
	"github.com/yanbot/internal/store"
	"github.com/yanbot/internal/telegram"
)

// ServeCommand returns the CLI command for running the bot
func ServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the bot: Telegram webhook, agent callback gateway and update workers",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Override server.port",
			},
			&cli.BoolFlag{
				Name:  "register-webhook",
				Usage: "Register the Telegram webhook on startup",
			},
		},
		Action: runServe,
	}
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	if envFile := c.String("env-file"); envFile != "" {
		if err := LoadEnvFile(envFile); err != nil {
			return nil, fmt.Errorf("failed to load env file: %w", err)
		}
	}
	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	logging.Setup(cfg.Log.Level, cfg.Log.Pretty)
	return cfg, nil
}

func runServe(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if port := c.Int("port"); port > 0 {
		cfg.Server.Port = port
	}
	if c.Bool("register-webhook") {
		cfg.Telegram.RegisterWebhook = true
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if cfg.Debug.CaptureDir != "" {
		capture.Enable(cfg.Debug.CaptureDir)
		log.Warn().Str("dir", cfg.Debug.CaptureDir).Msg("Payload capture enabled; callback bodies are written to disk")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	sessions, closeSessions, err := openSessions(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeSessions()

	tg := telegram.NewClient(cfg.Telegram.APIBaseURL, cfg.Telegram.Token, cfg.Telegram.RatePerSecond)

	dispatcher, err := dispatch.NewClient(dispatch.Config{
		Endpoints:   cfg.Dispatch.Endpoints,
		CallbackURL: cfg.CallbackURL(),
		Timeout:     cfg.Dispatch.Timeout,
	})
	if err != nil {
		return fmt.Errorf("failed to configure dispatch: %w", err)
	}

	rw, err := rewrite.New(ctx, rewrite.Options{
		Provider: cfg.LLM.Provider,
		APIKey:   cfg.LLM.APIKey,
		Model:    cfg.LLM.Model,
		BaseURL:  cfg.LLM.BaseURL,
	})
	if err != nil {
		return fmt.Errorf("failed to create rewrite model: %w", err)
	}

	l := ledger.New(st)
	machine := onboarding.NewMachine(sessions, st, l, dispatcher, tg).WithGuard(guard.New())
	router := bot.NewRouter(st, l, dispatcher, machine, tg)

	queue, err := jobqueue.New(ctx, &jobqueue.QueueConfig{
		Backend:     cfg.Queue.Backend,
		DatabaseURL: cfg.Database.URL,
		MaxWorkers:  cfg.Queue.Workers,
	}, router)
	if err != nil {
		return fmt.Errorf("failed to create update queue: %w", err)
	}
	if err := queue.Start(ctx); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := queue.Stop(stopCtx); err != nil {
			log.Error().Err(err).Msg("Update queue did not stop cleanly")
		}
	}()

	server, err := api.NewServer(cfg.Server.Port, api.Deps{
		Ledger:          l,
		Users:           st,
		Renderer:        render.New(rw, cfg.Render.ComposeURL),
		Delivery:        delivery.NewDispatcher(tg),
		Queue:           queue,
		CallbackSecret:  cfg.Secrets.Callback,
		CallbackHeader:  cfg.Secrets.CallbackHeader,
		TransportSecret: cfg.Secrets.Transport,
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	if cfg.Telegram.RegisterWebhook {
		if err := tg.SetWebhook(ctx, cfg.TelegramWebhookURL(), cfg.Secrets.Transport); err != nil {
			return fmt.Errorf("failed to register Telegram webhook: %w", err)
		}
		log.Info().Str("url", cfg.TelegramWebhookURL()).Msg("Telegram webhook registered")
	}

	log.Info().
		Str("callback_url", cfg.CallbackURL()).
		Str("queue", cfg.Queue.Backend).
		Int("dispatch_endpoints", len(cfg.Dispatch.Endpoints)).
		Msg("Starting yanbot")

	return server.Start(ctx)
}

// openStore uses Postgres when database.url is set, otherwise process memory.
func openStore(ctx context.Context, cfg *config.Config) (store.Store, func(), error) {
	if cfg.Database.URL == "" {
		log.Warn().Msg("database.url not set; users and jobs are kept in memory and lost on restart")
		return store.NewMemoryStore(), func() {}, nil
	}

	db, err := database.Open(ctx, cfg.Database.URL)
	if err != nil {
		return nil, nil, err
	}
	if err := database.Migrate(ctx, db); err != nil {
		db.Close()
		return nil, nil, err
	}
	return store.NewPostgresStore(db), func() { db.Close() }, nil
}

// openSessions uses Redis when redis.addr is set so replicas share
// onboarding state.
func openSessions(ctx context.Context, cfg *config.Config) (onboarding.SessionStore, func(), error) {
	if cfg.Redis.Addr == "" {
		return onboarding.NewMemorySessions(), func() {}, nil
	}

	rs, err := onboarding.NewRedisSessions(ctx, cfg.Redis.Addr, cfg.Redis.SessionTTL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return rs, func() { rs.Close() }, nil
}
