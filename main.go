package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"forex-trading-bot/config"
	"forex-trading-bot/internal/analysis"
	"forex-trading-bot/internal/api"
	"forex-trading-bot/internal/broker"
	"forex-trading-bot/internal/database"
	"forex-trading-bot/internal/engine"
	"forex-trading-bot/internal/events"
	"forex-trading-bot/internal/logging"
	"forex-trading-bot/internal/market"
	"forex-trading-bot/internal/monitoring"
	"forex-trading-bot/internal/news"
	"forex-trading-bot/internal/notification"
	"forex-trading-bot/internal/risk"
	"forex-trading-bot/internal/statestore"
	"forex-trading-bot/internal/strategy"
)

const (
	exitOK          = 0
	exitConfigError = 1
	exitBrokerError = 2
	exitInternal    = 3
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return exitConfigError
	}

	log := logging.New(logging.Config{Level: cfg.Logging.Level, Pretty: cfg.Logging.Pretty})
	log.Info().Str("config", *configPath).Strs("symbols", cfg.Trading.Symbols).Msg("starting forex trading bot")

	bus := events.NewBus()

	var client broker.Client
	if cfg.Broker.Mock {
		log.Warn().Msg("running against the mock broker, no real orders will be placed")
		client = broker.NewMockClient()
	} else {
		client = broker.NewTerminalClient(broker.TerminalConfig{
			BaseURL: cfg.Broker.Endpoint,
			Timeout: cfg.Broker.RequestTimeout,
		}, log)
	}
	client = engine.NewSerialClient(client)

	analyzer := analysis.NewAnalyzer(client, analysis.DefaultConfig(), log)
	marketEngine := market.NewEngine(analyzer, market.Config{
		TTL: cfg.MarketContext.CacheTTL,
		Thresholds: market.Thresholds{
			ADXStrong: cfg.MarketContext.ADXStrong,
			ADXTrend:  cfg.MarketContext.ADXTrend,
			ATRHigh:   cfg.MarketContext.ATRHigh,
			ATRLow:    cfg.MarketContext.ATRLow,
		},
	}, log)

	riskManager := risk.NewManager(risk.Config{
		MaxRiskPerTrade:      cfg.Risk.MaxRiskPerTrade,
		MaxDrawdown:          cfg.Risk.MaxDrawdown,
		MaxDailyLoss:         cfg.Risk.MaxDailyLoss,
		StopLossPips:         cfg.Risk.StopLossPips,
		TakeProfitMultiplier: cfg.Risk.TakeProfitMultiplier,
		ATRMultiplier:        cfg.Risk.ATRMultiplier,
		TrailingStopPips:     cfg.Risk.TrailingStopDistance,
		BreakEvenEnabled:     cfg.Risk.BreakEvenEnabled,
		BreakEvenTrigger:     cfg.Risk.BreakEvenTrigger,
		MaxOpenPositions:     cfg.Trading.MaxOpenPositions,
		MaxLotSize:           cfg.Trading.MaxLotSize,
		DefaultLotSize:       cfg.Trading.DefaultLotSize,
		SpreadThreshold:      cfg.Trading.SpreadThreshold,
	}, log)

	newsView := buildNewsView(cfg, log)

	managers := make(map[string]*strategy.Manager, len(cfg.Trading.Symbols))
	for _, symbol := range cfg.Trading.Symbols {
		managers[symbol] = strategy.NewManager(
			strategy.DefaultManagerConfig(),
			buildStrategies(cfg, symbol, riskManager),
			log,
		)
	}

	store := statestore.NewStore(statestore.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}, log)
	defer store.Close()

	if cfg.Database.Enabled {
		db, err := database.NewDB(database.Config{
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			Database: cfg.Database.Database,
			SSLMode:  cfg.Database.SSLMode,
		}, log)
		if err != nil {
			log.Error().Err(err).Msg("trade database unavailable, history will not be recorded")
		} else {
			defer db.Close()
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			if err := db.RunMigrations(ctx); err != nil {
				cancel()
				log.Error().Err(err).Msg("database migrations failed")
			} else {
				cancel()
				database.NewTradeRepository(db).Attach(bus)
			}
		}
	}

	notifier := notification.NewManager(log,
		notification.NewTelegramNotifier(notification.TelegramConfig{
			BotToken: cfg.Notification.Telegram.BotToken,
			ChatID:   cfg.Notification.Telegram.ChatID,
			Enabled:  cfg.Notification.Telegram.Enabled,
		}),
		notification.NewDiscordNotifier(notification.DiscordConfig{
			WebhookURL: cfg.Notification.Discord.WebhookURL,
			Enabled:    cfg.Notification.Discord.Enabled,
		}),
	)
	notifier.Attach(bus)
	monitoring.Attach(bus)

	tickIntervals := make(map[string]time.Duration)
	for symbol, ov := range cfg.Symbols {
		if ov.TickInterval > 0 {
			tickIntervals[symbol] = ov.TickInterval
		}
	}

	supervisor := engine.NewSupervisor(engine.Config{
		Symbols:              cfg.Trading.Symbols,
		TickInterval:         cfg.Trading.TickInterval,
		TickIntervals:        tickIntervals,
		ReconnectAttempts:    cfg.Engine.ReconnectAttempts,
		ReconnectBackoff:     cfg.Engine.ReconnectBackoff,
		PauseCooldown:        cfg.Engine.PauseCooldown,
		BaseRisk:             cfg.Risk.MaxRiskPerTrade,
		Magic:                cfg.Trading.Magic,
		Slippage:             cfg.Trading.Slippage,
		BlockAllOnHighImpact: cfg.News.BlockAllOnHighImpact,
		CloseAllOnStop:       cfg.Trading.CloseAllOnStop,
	}, engine.Deps{
		Client:   client,
		Analyzer: analyzer,
		Market:   marketEngine,
		News:     newsView,
		Managers: managers,
		Risk:     riskManager,
		Bus:      bus,
		Store:    store,
	}, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := supervisor.Start(ctx); err != nil {
		log.Error().Err(err).Msg("supervisor failed to start")
		return exitBrokerError
	}

	scheduler := startScheduler(cfg, client, newsView, supervisor, riskManager, bus, log)
	defer scheduler.Stop()

	var server *api.Server
	if cfg.API.Enabled {
		server = api.NewServer(api.Config{Addr: cfg.API.Addr}, supervisor,
			statusProvider{client: client, sup: supervisor, risk: riskManager, symbols: cfg.Trading.Symbols},
			bus, log)
		go func() {
			if err := server.Start(); err != nil {
				log.Error().Err(err).Msg("api server failed")
			}
		}()
	}

	<-ctx.Done()
	log.Info().Msg("shutdown signal received")
	supervisor.Stop()
	supervisor.Wait()

	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("api shutdown incomplete")
		}
	}
	disconnectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Disconnect(disconnectCtx); err != nil {
		log.Warn().Err(err).Msg("broker disconnect failed")
	}

	log.Info().Msg("shutdown complete")
	return exitOK
}

// buildNewsView wires the feed and calendar clients; without configured
// sources the bot runs news-blind and the news strategy holds
func buildNewsView(cfg *config.Config, log zerolog.Logger) *news.View {
	if cfg.News.FeedURL == "" && cfg.News.CalendarURL == "" {
		log.Info().Msg("no news sources configured")
		return nil
	}
	var feed news.FeedSource
	var calendar news.CalendarSource
	if cfg.News.FeedURL != "" {
		feed = news.NewFeedClient(cfg.News.FeedURL, 0)
	}
	if cfg.News.CalendarURL != "" {
		calendar = news.NewCalendarClient(cfg.News.CalendarURL, 0)
	}
	viewCfg := news.DefaultViewConfig()
	// zero minutes means blocking is off, which the view honors as-is
	viewCfg.BlockBuffer = time.Duration(cfg.News.BufferMinutes) * time.Minute
	viewCfg.Keywords = cfg.News.Keywords
	if cfg.News.RefreshInterval > 0 {
		viewCfg.StaleAfter = cfg.News.RefreshInterval
	}
	return news.NewView(feed, calendar, viewCfg, log)
}

// buildStrategies assembles the per-symbol strategy set with the config
// overrides applied
func buildStrategies(cfg *config.Config, symbol string, stops strategy.StopCalculator) []strategy.Strategy {
	tf := strategy.DefaultTrendFollowingConfig(symbol)
	tf.Enabled = cfg.StrategyEnabled("trend_following")
	tf.MinConfidence = cfg.StrategyMinConfidence("trend_following", tf.MinConfidence)
	tf.ADXThreshold = cfg.StrategyParam("trend_following", "adxThreshold", tf.ADXThreshold)

	mr := strategy.DefaultMeanReversionConfig(symbol)
	mr.Enabled = cfg.StrategyEnabled("mean_reversion")
	mr.MinConfidence = cfg.StrategyMinConfidence("mean_reversion", mr.MinConfidence)
	mr.RSIOversold = cfg.StrategyParam("mean_reversion", "rsiOversold", mr.RSIOversold)
	mr.RSIOverbought = cfg.StrategyParam("mean_reversion", "rsiOverbought", mr.RSIOverbought)

	bo := strategy.DefaultBreakoutConfig(symbol)
	bo.Enabled = cfg.StrategyEnabled("breakout")
	bo.MinConfidence = cfg.StrategyMinConfidence("breakout", bo.MinConfidence)
	bo.VolumeMultiplier = cfg.StrategyParam("breakout", "volumeMultiplier", bo.VolumeMultiplier)

	rt := strategy.DefaultRangeTradingConfig(symbol)
	rt.Enabled = cfg.StrategyEnabled("range_trading")
	rt.MinConfidence = cfg.StrategyMinConfidence("range_trading", rt.MinConfidence)

	sc := strategy.DefaultScalpingConfig(symbol)
	sc.Enabled = cfg.StrategyEnabled("scalping")
	sc.MinConfidence = cfg.StrategyMinConfidence("scalping", sc.MinConfidence)
	sc.MaxSpreadPips = cfg.StrategyParam("scalping", "maxSpreadPips", sc.MaxSpreadPips)
	if ov, ok := cfg.Symbols[symbol]; ok && ov.SpreadThreshold > 0 {
		sc.MaxSpreadPips = ov.SpreadThreshold
	}

	nt := strategy.DefaultNewsTradingConfig(symbol)
	nt.Enabled = cfg.StrategyEnabled("news_trading")
	nt.MinConfidence = cfg.StrategyMinConfidence("news_trading", nt.MinConfidence)

	cm := strategy.DefaultCatamilhoConfig(symbol)
	cm.Enabled = cfg.StrategyEnabled("catamilho")
	cm.MinConfidence = cfg.StrategyMinConfidence("catamilho", cm.MinConfidence)
	cm.MaxTradesPerDay = int(cfg.StrategyParam("catamilho", "maxTradesPerDay", float64(cm.MaxTradesPerDay)))

	all := []strategy.Strategy{
		strategy.NewTrendFollowingStrategy(tf, stops),
		strategy.NewMeanReversionStrategy(mr, stops),
		strategy.NewBreakoutStrategy(bo, stops),
		strategy.NewRangeTradingStrategy(rt, stops),
		strategy.NewScalpingStrategy(sc),
		strategy.NewNewsTradingStrategy(nt, stops),
		strategy.NewCatamilhoStrategy(cm),
	}

	ov, ok := cfg.Symbols[symbol]
	if !ok || len(ov.Strategies) == 0 {
		return all
	}
	allowed := make(map[string]bool, len(ov.Strategies))
	for _, name := range ov.Strategies {
		allowed[name] = true
	}
	var out []strategy.Strategy
	for _, st := range all {
		if allowed[st.Name()] {
			out = append(out, st)
		}
	}
	return out
}

// startScheduler runs the periodic jobs: news refresh, hourly health
// summary and the UTC midnight daily summary
func startScheduler(cfg *config.Config, client broker.Client, newsView *news.View, sup *engine.Supervisor, riskManager *risk.Manager, bus *events.Bus, log zerolog.Logger) *cron.Cron {
	scheduler := cron.New(cron.WithLocation(time.UTC))

	if newsView != nil && cfg.News.RefreshInterval > 0 {
		spec := fmt.Sprintf("@every %s", cfg.News.RefreshInterval)
		scheduler.AddFunc(spec, func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := newsView.Refresh(ctx); err != nil {
				log.Warn().Err(err).Msg("scheduled news refresh failed")
			}
			for _, symbol := range cfg.Trading.Symbols {
				for _, event := range newsView.UpcomingHighImpact(symbol, time.Hour) {
					bus.PublishNewsAlert(symbol, event.Title, event.Currency, event.Time)
				}
			}
		})
	}

	scheduler.AddFunc("@hourly", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		open := sup.OpenPositions()
		monitoring.UpdateOpenPositions(len(open))
		if account, err := client.Account(ctx); err == nil {
			monitoring.UpdateAccount(account.Balance, account.Equity)
			bus.PublishSystemMessage(fmt.Sprintf(
				"health: balance %.2f equity %.2f, %d open, daily pnl %.2f",
				account.Balance, account.Equity, len(open), riskManager.DailyPnL(),
			))
		}
	})

	// just before the UTC rollover wipes the daily ledger
	scheduler.AddFunc("59 23 * * *", func() {
		bus.PublishSystemMessage(fmt.Sprintf("daily summary: realized pnl %.2f", riskManager.DailyPnL()))
	})

	scheduler.Start()
	return scheduler
}

// statusProvider assembles the /status snapshot
type statusProvider struct {
	client  broker.Client
	sup     *engine.Supervisor
	risk    *risk.Manager
	symbols []string
}

func (p statusProvider) Status() api.Status {
	return api.Status{
		Connected:     p.client.IsConnected(),
		Paused:        p.sup.Paused(),
		Symbols:       p.symbols,
		OpenPositions: p.sup.OpenPositions(),
		DailyPnL:      p.risk.DailyPnL(),
		UpdatedAt:     time.Now().UTC(),
	}
}
