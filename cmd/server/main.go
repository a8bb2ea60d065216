package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"crossarb/internal/api"
	"crossarb/internal/api/handlers"
	"crossarb/internal/bot"
	"crossarb/internal/config"
	"crossarb/internal/exchange"
	"crossarb/internal/market"
	"crossarb/internal/models"
	"crossarb/internal/repository"
	"crossarb/internal/websocket"
	"crossarb/pkg/utils"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "crossarb: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "load config")
	}

	log := utils.InitGlobalLogger(utils.LogConfig{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Output:      cfg.Logging.Output,
		Development: cfg.Logging.Development,
	})
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	// cancel также вызывается, когда движок завершился сам (stop after success)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	log.Info("starting crossarb",
		utils.Symbol(cfg.Bot.Symbol),
		zap.String("mode", cfg.Bot.Mode),
		zap.Bool("dry_run", cfg.Bot.DryRun))

	// ============ Рынок ============

	agg := market.NewAggregator(cfg.Bot.Symbol, log)

	clients, err := buildClients(cfg, agg, log)
	if err != nil {
		return err
	}

	// ============ Решение и исполнение ============

	profit := bot.NewProfitModel(bot.FeeScheduleFromConfig(cfg.Fees), cfg.Bot.SlippageBps, cfg.Bot.IncludeWithdrawalFees)
	detector := bot.NewDetector(bot.DetectorConfigFromBot(cfg.Bot), profit, log)
	executor := bot.NewExecutor(bot.ExecutorConfigFromBot(cfg.Bot), agg, clients, profit, log)
	guard := bot.NewRiskGuard(cfg.Bot.Symbol, clients, log)
	executor.SetRiskGuard(guard)
	engine := bot.NewEngine(bot.EngineConfigFromBot(cfg.Bot), agg, detector, executor, guard, log)

	hub := websocket.NewHub(websocket.HubConfig{
		BookInterval:    250 * time.Millisecond,
		BookDepth:       cfg.Bot.BookDepth,
		BroadcastBuffer: 256,
		AllowedOrigins:  cfg.Server.AllowedOrigins,
	}, log)
	engine.SetBroadcaster(hub)
	agg.Subscribe(hub.BroadcastBook)

	// ============ Журнал исполнений ============

	var (
		archive handlers.ArchiveReader
		repo    *repository.ExecutionRepository
	)
	if cfg.Database.Enabled {
		db, err := repository.Open(ctx, cfg.Database)
		if err != nil {
			return err
		}
		defer db.Close()

		repo = repository.NewExecutionRepository(db)
		if err := repo.EnsureSchema(ctx); err != nil {
			return err
		}
		engine.SetExecutionStore(repo)
		archive = repo
		log.Info("execution archive enabled", zap.String("dsn", cfg.Database.DSNWithoutPassword()))
	}

	g, gctx := errgroup.WithContext(ctx)

	// ============ Фиды ============

	feedCfgs := map[models.Venue]exchange.FeedConfig{
		models.VenueMEXC:  feedConfig(cfg.Feeds, cfg.Feeds.MEXCPingInterval),
		models.VenueBingX: feedConfig(cfg.Feeds, cfg.Feeds.BingXPingInterval),
	}
	for _, venue := range exchange.SupportedVenues {
		feed, err := exchange.NewOrderBookFeed(venue, feedCfgs[venue], log)
		if err != nil {
			return err
		}
		g.Go(func() error {
			return ignoreCanceled(market.PumpOrderBooks(gctx, feed, agg, cfg.Bot.BookDepth, log))
		})

		if tf, ok := feed.(exchange.TradeFeed); ok && cfg.Feeds.TradesEnabled {
			g.Go(func() error {
				return ignoreCanceled(market.PumpTrades(gctx, tf, agg, cfg.Feeds.TradesIntervalMs, log))
			})
		}
	}

	// ============ Зеркало снимков в Redis ============

	if cfg.Redis.Addr != "" {
		rdb := market.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		defer rdb.Close()

		mirror := market.NewMirror(rdb, cfg.Redis.TTL, log)
		agg.Subscribe(mirror.Listener())
		g.Go(func() error { return ignoreCanceled(mirror.Run(gctx)) })
		log.Info("snapshot mirror enabled", zap.String("addr", cfg.Redis.Addr))
	}

	if repo != nil && cfg.Database.Retention > 0 {
		g.Go(func() error {
			return ignoreCanceled(repo.RunRetention(gctx, cfg.Database.Retention, time.Hour, log))
		})
	}

	// ============ Поток UI ============

	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})

	// ============ Движок ============

	g.Go(func() error {
		err := engine.Run(gctx)
		if err == nil {
			// stop after success: гасим остальных
			cancel()
		}
		return ignoreCanceled(err)
	})

	// ============ HTTP ============

	if cfg.Server.Enabled {
		router := api.SetupRoutes(&api.Dependencies{
			Engine:         engine,
			Books:          agg,
			Archive:        archive,
			Stream:         hub.ServeWS,
			TokenHash:      cfg.Security.APITokenHash,
			AllowedOrigins: cfg.Server.AllowedOrigins,
			Log:            log,
		})

		server := &http.Server{
			Addr:        fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
			Handler:     router,
			ReadTimeout: 15 * time.Second,
			// WriteTimeout не ставим: /ws/stream держит соединение
			IdleTimeout: 60 * time.Second,
		}

		g.Go(func() error {
			log.Info("status server listening", zap.String("addr", server.Addr))
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return errors.Wrap(err, "status server")
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.GracePeriod)
			defer shutdownCancel()
			return server.Shutdown(shutdownCtx)
		})
	}

	err = g.Wait()
	exchange.CloseGlobalClient()

	stats := engine.Stats()
	log.Info("crossarb stopped",
		zap.Int64("cycles", stats.Cycles),
		zap.Int64("successful", stats.Successful),
		zap.Int64("partial", stats.Partial),
		zap.Stringer("actual_profit", stats.ActualProfit))
	return err
}

// buildClients paper клиенты поверх агрегатора или боевые REST клиенты
func buildClients(cfg *config.Config, agg *market.Aggregator, log *utils.Logger) (map[models.Venue]exchange.TradingClient, error) {
	clients := make(map[models.Venue]exchange.TradingClient, len(exchange.SupportedVenues))

	if !cfg.IsLive() {
		balances := map[string]decimal.Decimal{
			utils.ExtractBaseCurrency(cfg.Bot.Symbol):  cfg.Bot.PaperBaseBalance,
			utils.ExtractQuoteCurrency(cfg.Bot.Symbol): cfg.Bot.PaperQuoteBalance,
		}
		for _, venue := range exchange.SupportedVenues {
			clients[venue] = market.NewPaperClient(venue, agg, balances, log)
		}
		return clients, nil
	}

	creds := map[models.Venue]config.VenueCredentials{
		models.VenueMEXC:  cfg.Credentials.MEXC,
		models.VenueBingX: cfg.Credentials.BingX,
	}
	for _, venue := range exchange.SupportedVenues {
		c, err := exchange.NewLiveTradingClient(venue, exchange.RESTConfig{
			Credentials: exchange.Credentials{
				APIKey:    creds[venue].APIKey,
				SecretKey: creds[venue].SecretKey,
			},
		}, log)
		if err != nil {
			return nil, err
		}
		clients[venue] = c
	}
	return clients, nil
}

func feedConfig(f config.FeedsConfig, ping time.Duration) exchange.FeedConfig {
	fc := exchange.DefaultFeedConfig()
	if f.ReconnectDelay > 0 {
		fc.ReconnectDelay = f.ReconnectDelay
	}
	if f.MaxReconnectDelay > 0 {
		fc.MaxDelay = f.MaxReconnectDelay
	}
	if f.ReadTimeout > 0 {
		fc.ReadTimeout = f.ReadTimeout
	}
	if ping > 0 {
		fc.PingInterval = ping
	}
	return fc
}

// ignoreCanceled нормальное завершение по отмене контекста не ошибка
func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
