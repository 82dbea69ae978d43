package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"apartments-bot/api"
	"apartments-bot/bot"
	"apartments-bot/config"
	"apartments-bot/db"
	"apartments-bot/fetcher"
	"apartments-bot/models"
	"apartments-bot/scheduler"
	"apartments-bot/scraper"
	"apartments-bot/sheets"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/gorilla/mux"
	"github.com/lmittmann/tint"
)

type flags struct {
	configPath string
	once       bool
	replay     string
	verbose    bool
}

func main() {
	var f flags
	flag.StringVar(&f.configPath, "config", "config.yaml", "Path to configuration file")
	flag.BoolVar(&f.once, "once", false, "Run a single sync, print the listings and exit")
	flag.StringVar(&f.replay, "replay", "", "Scrape a saved catalog page instead of the live site (no browser needed)")
	flag.BoolVar(&f.verbose, "v", false, "Enable debug logging")
	flag.Parse()

	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to load .env: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.LoadConfig(f.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	logger := initSlog(cfg.Log.Level, f.verbose)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, f, logger); err != nil {
		logger.Error("exiting", "err", err)
		os.Exit(1)
	}
}

func initSlog(level string, verbose bool) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	if verbose {
		lvl = slog.LevelDebug
	}
	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      lvl,
		TimeFormat: time.Kitchen,
	}))
}

func run(ctx context.Context, cfg *config.Config, f flags, logger *slog.Logger) error {
	database, err := db.Open(ctx, cfg.Store.Driver, cfg.Store.DSN, logger)
	if err != nil {
		return err
	}
	defer database.Close()
	logger.Info("database initialized", "driver", cfg.Store.Driver)

	catalogURL := cfg.Catalog.URL
	var launcher fetcher.Launcher
	if f.replay != "" {
		path, err := filepath.Abs(f.replay)
		if err != nil {
			return fmt.Errorf("invalid replay path: %w", err)
		}
		catalogURL = "file://" + path
		launcher = fetcher.NewStaticLauncher(logger)
		logger.Info("replaying saved catalog", "path", path)
	} else {
		launcher = fetcher.NewRodLauncher(fetcher.RodOptions{
			Bin:      cfg.Browser.Bin,
			DataDir:  cfg.Browser.DataDir,
			Headless: cfg.Browser.Headless,
		}, logger)
	}

	scr := scraper.New(launcher, scraper.Options{
		URL:       catalogURL,
		Selectors: cfg.Catalog.Selectors,
		Timing:    cfg.Catalog.Timing,
		DumpDir:   filepath.Join(cfg.Browser.DataDir, "dumps"),
	}, logger)

	syncOpts := scheduler.Options{
		ReplaceOnEmpty: cfg.Schedule.ReplaceOnEmpty,
		Timeout:        cfg.Schedule.Timeout,
		RunLog:         database,
	}
	if cfg.Sheets.Spreadsheet != "" {
		writer, err := sheets.NewWriter(ctx, cfg.Sheets.Spreadsheet, cfg.Sheets.CredentialsFile, logger)
		if err != nil {
			logger.Warn("google sheets export disabled", "err", err)
		} else {
			syncOpts.Exporter = writer.WithSheetName(cfg.Sheets.SheetName)
			logger.Info("google sheets export enabled", "spreadsheet", cfg.Sheets.Spreadsheet)
		}
	}

	syncer := scheduler.NewSyncer(scr, database, syncOpts, logger)
	defer syncer.Stop()

	if f.once {
		return runOnce(ctx, syncer)
	}

	if err := syncer.Start(cfg.Schedule.Cron); err != nil {
		return err
	}

	router := api.NewHandler(database, database, syncer, logger).Router()

	var telegramBot *bot.Bot
	if cfg.Telegram.Token != "" {
		tg, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
		if err != nil {
			return fmt.Errorf("failed to initialize bot: %w", err)
		}
		logger.Info("authorized on account", "account", tg.Self.UserName)

		telegramBot = bot.New(tg, database, syncer, bot.Options{
			AllowedUserIDs: cfg.Telegram.AllowedUserIDs,
			AdminChatID:    cfg.Telegram.AdminChatID,
			MaxResults:     cfg.Telegram.MaxResults,
		}, logger)
		syncer.OnResult(telegramBot.ReportResult)

		if err := startUpdates(ctx, tg, telegramBot, router, cfg.Telegram.WebhookURL, logger); err != nil {
			return err
		}
		telegramBot.Notify("🚀 Service started successfully!")
	} else {
		logger.Warn("TELEGRAM_BOT_TOKEN is not set, running without the bot")
	}

	if cfg.Schedule.SyncOnStart {
		go func() {
			if _, err := syncer.Sync(ctx, scheduler.SourceStartup); err != nil {
				logger.Warn("startup sync failed", "err", err)
			}
		}()
	}

	server := &http.Server{
		Addr:              ":" + cfg.HTTP.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server shutdown", "err", err)
	}
	syncer.Stop()
	if telegramBot != nil {
		telegramBot.Wait()
	}
	return nil
}

// startUpdates registers the webhook when a public URL is configured and
// falls back to long polling otherwise
func startUpdates(ctx context.Context, tg *tgbotapi.BotAPI, b *bot.Bot, router *mux.Router, webhookURL string, logger *slog.Logger) error {
	if webhookURL == "" {
		// A leftover webhook blocks getUpdates
		if _, err := tg.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
			logger.Warn("failed to delete webhook", "err", err)
		}
		go b.Poll(ctx, tg)
		return nil
	}

	path := "/bot" + tg.Token
	router.Handle(path, b.WebhookHandler(ctx, tg)).Methods(http.MethodPost)

	wh, err := tgbotapi.NewWebhook(strings.TrimRight(webhookURL, "/") + path)
	if err != nil {
		return fmt.Errorf("invalid webhook URL: %w", err)
	}
	if _, err := tg.Request(wh); err != nil {
		return fmt.Errorf("failed to set webhook: %w", err)
	}
	logger.Info("webhook registered", "url", webhookURL)
	return nil
}

func runOnce(ctx context.Context, syncer *scheduler.Syncer) error {
	res, err := syncer.Sync(ctx, scheduler.SourceCLI)
	if err != nil {
		return err
	}

	fmt.Printf("Status: %s, found %d apartments in %s\n", res.Status, len(res.Listings), res.Duration.Round(time.Second))
	if !res.Replaced {
		fmt.Println("Stored snapshot was left unchanged.")
	}
	fmt.Println("---")
	formatListingsConsole(res.Listings)
	return nil
}

func formatListingsConsole(listings []models.Listing) {
	for i, listing := range listings {
		fmt.Printf("\n%d. %s (%s)\n", i+1, listing.Plan, listing.ProjectName)

		if listing.Link != "" {
			fmt.Printf("   Link: %s\n", listing.Link)
		}

		if listing.Price > 0 {
			fmt.Printf("   Price: €%.0f\n", listing.Price)
		} else {
			fmt.Printf("   Price: Not available\n")
		}

		fmt.Printf("   Area: %g m², rooms: %d, floor: %d\n", listing.SqMeters, listing.RoomsCount, listing.Floor)
		if listing.Status != "" {
			fmt.Printf("   Status: %s\n", listing.Status)
		}
	}
}
