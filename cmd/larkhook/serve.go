package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/labstack/echo/v4"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/memohai/larkhook/internal/agent"
	"github.com/memohai/larkhook/internal/channel/adapters/feishu"
	"github.com/memohai/larkhook/internal/config"
	"github.com/memohai/larkhook/internal/logger"
	"github.com/memohai/larkhook/internal/media"
	"github.com/memohai/larkhook/internal/server"
	"github.com/memohai/larkhook/internal/version"
)

func runServe(configPath string) error {
	app := fx.New(
		fx.Provide(
			func() (config.Config, error) { return provideConfig(configPath) },
			provideLogger,
			provideAccount,
			provideMediaCache,
			providePruner,
			provideLarkClient,
			provideMediaTransfer,
			provideAgentClient,
			provideBridge,
			provideWebhookHandler,
			provideEcho,
			provideSupervisor,
		),
		fx.Invoke(
			startPruner,
			startSupervisor,
		),
		fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: logger.With(slog.String("component", "fx"))}
		}),
	)
	if err := app.Err(); err != nil {
		return err
	}
	app.Run()
	return nil
}

func provideConfig(path string) (config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func provideLogger(cfg config.Config) (*slog.Logger, error) {
	log, err := logger.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(log)
	return log, nil
}

func provideAccount(cfg config.Config) (feishu.Account, error) {
	return feishu.NewAccount(cfg.Account)
}

func provideMediaCache(cfg config.Config) *media.Cache {
	dir := cfg.Media.CacheDir
	if dir == "" {
		dir = config.DefaultMediaCacheDir
	}
	return media.NewCache(dir)
}

func providePruner(log *slog.Logger, cfg config.Config, cache *media.Cache) *media.Pruner {
	return media.NewPruner(log, cache, cfg.Media.PruneSchedule, cfg.Media.MaxAge.Duration)
}

func provideLarkClient(log *slog.Logger, account feishu.Account) *feishu.Client {
	return feishu.NewClient(log, account)
}

func provideMediaTransfer(log *slog.Logger, client *feishu.Client, cache *media.Cache) *feishu.MediaTransfer {
	return feishu.NewMediaTransfer(log, client, cache)
}

func provideAgentClient(log *slog.Logger, cfg config.Config) *agent.Client {
	gw := cfg.AgentGateway
	return agent.NewClient(log, gw.BaseURL, gw.Token, gw.Timeout.Duration)
}

func provideBridge(log *slog.Logger, account feishu.Account, client *feishu.Client, transfer *feishu.MediaTransfer, gateway *agent.Client) *feishu.Bridge {
	return feishu.NewBridge(log, account, client, transfer, gateway, gateway)
}

func provideWebhookHandler(log *slog.Logger, account feishu.Account, bridge *feishu.Bridge) *feishu.WebhookHandler {
	return feishu.NewWebhookHandler(log, account, bridge)
}

func provideEcho(log *slog.Logger, webhook *feishu.WebhookHandler) *echo.Echo {
	return server.NewEcho(log, webhook)
}

func provideSupervisor(log *slog.Logger, cfg config.Config, e *echo.Echo) *server.Supervisor {
	return server.NewSupervisor(log, cfg.Server.Addr, e,
		server.WithRestartDelay(cfg.Server.RestartDelay.Duration),
		server.WithMaxRestartAttempts(cfg.Server.MaxRestartAttempts),
	)
}

func startPruner(lc fx.Lifecycle, pruner *media.Pruner) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error { return pruner.Start() },
		OnStop:  func(ctx context.Context) error { return pruner.Stop(ctx) },
	})
}

func startSupervisor(lc fx.Lifecycle, log *slog.Logger, cfg config.Config, srv *server.Supervisor, webhook *feishu.WebhookHandler) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			log.Info("starting larkhook",
				slog.String("version", version.GetInfo()),
				slog.String("addr", cfg.Server.Addr),
				slog.String("account_id", cfg.Account.AccountID),
			)
			return srv.Start()
		},
		OnStop: func(ctx context.Context) error {
			if err := srv.Stop(ctx); err != nil {
				return fmt.Errorf("server stop: %w", err)
			}
			// Let in-flight message handling finish within the stop deadline.
			done := make(chan struct{})
			go func() {
				webhook.Wait()
				close(done)
			}()
			select {
			case <-done:
			case <-ctx.Done():
				log.Warn("shutdown deadline reached with messages in flight")
			}
			return nil
		},
	})
}
