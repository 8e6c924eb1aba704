package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/Spok95/stockdesk/internal/app/inventory"
	"github.com/Spok95/stockdesk/internal/app/ledger"
	"github.com/Spok95/stockdesk/internal/app/stocktaking"
	"github.com/Spok95/stockdesk/internal/config"
	"github.com/Spok95/stockdesk/internal/domain/users"
	"github.com/Spok95/stockdesk/internal/infra/db"
	httpx "github.com/Spok95/stockdesk/internal/infra/http"
	"github.com/Spok95/stockdesk/internal/infra/logger"
	"github.com/Spok95/stockdesk/internal/infra/metrics"
	"github.com/Spok95/stockdesk/internal/infra/notify"
	"github.com/Spok95/stockdesk/internal/store"
	"github.com/Spok95/stockdesk/internal/store/memory"
	"github.com/Spok95/stockdesk/internal/store/postgres"
)

func openStore(ctx context.Context, cfg config.Config, log *slog.Logger) (store.Store, func(), error) {
	if cfg.Storage.Driver == config.DriverMemory {
		log.Warn("using in-memory storage, data is lost on exit")
		return memory.New(), func() {}, nil
	}

	if err := db.Migrate(ctx, cfg.Postgres.DSN); err != nil {
		return nil, nil, err
	}
	log.Info("migrations applied")

	pool, err := db.Connect(ctx, cfg.Postgres.DSN, cfg.Postgres.MaxConns)
	if err != nil {
		return nil, nil, err
	}
	log.Info("db connected")
	return postgres.New(pool), pool.Close, nil
}

func bootstrapAdmin(ctx context.Context, st store.Store, cfg config.Config) (*users.User, error) {
	n := users.New{
		Username: cfg.Admin.Username,
		RealName: cfg.Admin.RealName,
		Role:     users.RoleSystemAdmin,
	}
	if cfg.Admin.TelegramID != 0 {
		id := cfg.Admin.TelegramID
		n.TelegramID = &id
	}
	return st.Users().Create(ctx, n)
}

func main() {
	cfg, err := config.Load("config/example.yaml")
	if err != nil {
		panic(err)
	}

	log := logger.New(cfg.App.Env, cfg.Log.Level)

	loc, err := time.LoadLocation(cfg.App.Timezone)
	if err != nil {
		log.Warn("unknown timezone, falling back to UTC", "tz", cfg.App.Timezone, "err", err)
		loc = time.UTC
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		log.Error("storage init failed", "driver", cfg.Storage.Driver, "err", err)
		return
	}
	defer closeStore()

	admin, err := bootstrapAdmin(ctx, st, cfg)
	if err != nil {
		log.Error("admin bootstrap failed", "err", err)
		return
	}
	log.Info("admin ready", "user_id", admin.ID, "username", admin.Username)

	var reg prometheus.Registerer
	if cfg.Metrics.Enabled {
		reg = prometheus.DefaultRegisterer
	}
	m := metrics.New(reg)

	sinks := []notify.Sink{notify.LogSink{Log: log}}
	if cfg.Telegram.Enabled {
		bot, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
		if err != nil {
			log.Error("telegram init failed", "err", err)
			return
		}
		log.Info("telegram notifications enabled", "bot", bot.Self.UserName)
		sinks = append(sinks, notify.NewTelegramSink(bot, cfg.Telegram.AdminChatID))
	}
	dispatcher := notify.NewDispatcher(st.Users(), log, m, cfg.Notify.QueueSize, sinks...)

	led := ledger.New(st, log, m)
	inv := inventory.NewEngine(st, led, dispatcher, log, m)
	stk := stocktaking.NewEngine(st, dispatcher, log, m)

	api := httpx.NewAPI(httpx.Deps{
		Ledger:      led,
		Inventory:   inv,
		Stocktaking: stk,
		Users:       st.Users(),
		Log:         log,
		Metrics:     m,
		Location:    loc,
	})
	srv := httpx.New(cfg.HTTP.Addr, api, cfg.Metrics.Enabled)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return dispatcher.Run(gctx) })
	g.Go(func() error {
		log.Info("HTTP server started", "addr", cfg.HTTP.Addr)
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		stk.Wait()
		return err
	})

	if err := g.Wait(); err != nil {
		log.Error("stopped with error", "err", err)
		return
	}
	log.Info("graceful shutdown complete")
}
