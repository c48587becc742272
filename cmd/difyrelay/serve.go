package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"difyrelay/internal/agent"
	"difyrelay/internal/audio"
	"difyrelay/internal/bus"
	"difyrelay/internal/channel"
	"difyrelay/internal/config"
	"difyrelay/internal/domain"
	"difyrelay/internal/logger"
	"difyrelay/internal/media"
	"difyrelay/internal/metrics"
	"difyrelay/internal/provider"
	"difyrelay/internal/service"
	"difyrelay/internal/store"
)

const dedupPurgeInterval = time.Hour

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the relay (enabled transports + dispatcher)",
		Long:  "Starts every enabled transport, the webhook/metrics server and the dispatch loop. Press Ctrl+C to stop.",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	creds, err := config.LoadCredentials()
	if err != nil {
		return err
	}
	if err := creds.ValidateFor(cfg); err != nil {
		return err
	}

	log, closer, err := logger.New(logger.Options{
		Level:  cfg.General.LogLevel,
		Format: cfg.General.LogFormat,
		File:   cfg.General.LogFile,
	})
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer closer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	group, cleanup, err := buildRelay(cfg, creds, log)
	if err != nil {
		return err
	}
	defer cleanup()

	log.Info("relay started", "version", version, "config", cfgPath)
	err = group.Run(ctx)
	log.Info("relay stopped")
	return err
}

// buildRelay wires every component and returns the services to run.
func buildRelay(cfg *config.Config, creds config.Credentials, log *slog.Logger) (service.Group, func(), error) {
	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	events := bus.NewEventBus(log)
	client := provider.SharedHTTPClient(time.Duration(cfg.General.HTTPTimeoutSeconds) * time.Second)

	backend := provider.NewDify(provider.DifyConfig{
		APIBase:      creds.DifyAPIURL,
		APIKey:       creds.DifyAPIKey,
		ResponseMode: cfg.Backend.ResponseMode,
		Retry:        provider.RetryPolicy{MaxRetries: cfg.Backend.MaxRetries, BaseDelay: time.Second},
		Client:       client,
		Logger:       log,
	})
	speech := provider.NewLovo(provider.LovoConfig{
		APIBase: creds.LovoAPIURL,
		APIKey:  creds.LovoAPIKey,
		Speaker: cfg.Speech.SpeakerID,
		Speed:   cfg.Speech.Speed,
		Client:  client,
		Logger:  log,
	})
	fetcher := provider.NewFetcher(client, log)

	ffmpegBin, err := audio.LookupBinary(cfg.General.FFmpegPath)
	if err != nil {
		return nil, cleanup, fmt.Errorf("ffmpeg: %w", err)
	}
	transcoder := audio.NewFFmpeg(audio.FFmpegConfig{
		Runner:  audio.ExecRunner{Binary: ffmpegBin},
		TempDir: cfg.General.TempDir,
		Logger:  log,
	})

	messageBus := bus.New(cfg.General.BusBuffer, log)
	cleanups = append(cleanups, messageBus.Close)

	dispatcher := agent.NewDispatcher(agent.DispatcherConfig{
		Bus:                 messageBus,
		Backend:             backend,
		Speech:              speech,
		Fetcher:             fetcher,
		Transcoder:          transcoder,
		Formats:             media.NewFormatTable(formatOverrides(cfg.Formats), log),
		Events:              events,
		Messages:            dispatcherMessages(cfg.Messages),
		Prompts:             dispatcherPrompts(cfg.Prompts),
		AudioRequestPhrases: cfg.AudioRequestPhrases,
		MaxBlockLength:      cfg.General.MaxBlockLength,
		Logger:              log,
	})

	var group service.Group

	loopCfg := agent.LoopConfig{Bus: messageBus, Handler: dispatcher, Logger: log}
	if cfg.Dedup.Enabled {
		seen, err := store.NewSQLiteStore(cfg.Dedup.DBPath, time.Duration(cfg.Dedup.TTLHours)*time.Hour, log)
		if err != nil {
			return nil, cleanup, fmt.Errorf("dedup store: %w", err)
		}
		cleanups = append(cleanups, func() { _ = seen.Close() })
		loopCfg.Seen = seen
		group = append(group, service.Func{ServiceName: "dedup purge", Fn: func(ctx context.Context) error {
			seen.RunPurge(ctx, dedupPurgeInterval)
			return nil
		}})
	}
	loop := agent.NewLoop(loopCfg)
	group = append(group, service.Func{ServiceName: "dispatch loop", Fn: func(ctx context.Context) error {
		loop.Run(ctx)
		return nil
	}})

	mux := http.NewServeMux()
	var transports []domain.Transport

	if cfg.Channels.WhatsApp.Enabled {
		wa := channel.NewWhatsApp(channel.WhatsAppConfig{
			PhoneNumberID: creds.PhoneNumberID(cfg),
			AccessToken:   creds.WhatsAppAccessToken,
			VerifyToken:   creds.WhatsAppVerifyToken,
			AppSecret:     creds.WhatsAppAppSecret,
			WebhookPath:   cfg.Channels.WhatsApp.WebhookPath,
			GraphBase:     cfg.Channels.WhatsApp.GraphBase,
			Client:        client,
			Logger:        log,
		})
		mux.Handle(wa.WebhookPath(), wa.Handler())
		transports = append(transports, wa)
		if creds.WhatsAppAppSecret == "" {
			log.Warn("WHATSAPP_APP_SECRET not set, webhook signatures are not verified")
		}
	}
	if cfg.Channels.Telegram.Enabled {
		transports = append(transports, channel.NewTelegram(channel.TelegramConfig{
			Token:              creds.TelegramBotToken,
			PollTimeoutSeconds: cfg.Channels.Telegram.PollTimeoutSeconds,
			Fetcher:            fetcher,
			Logger:             log,
		}))
	}
	for _, t := range transports {
		messageBus.Register(t)
		group = append(group, service.Transport{T: t, Bus: messageBus, Logger: log})
		log.Info("transport enabled", "channel", t.Name())
	}

	if cfg.Metrics.Enabled {
		m := metrics.New()
		m.Subscribe(events)
		mux.Handle(cfg.Metrics.Path, m.Handler())
	}

	if cfg.Channels.WhatsApp.Enabled || cfg.Metrics.Enabled {
		group = append(group, service.HTTPServer{
			Server: &http.Server{
				Addr:              cfg.Server.Listen,
				Handler:           mux,
				ReadHeaderTimeout: 10 * time.Second,
			},
			Logger: log,
		})
	}

	return group, cleanup, nil
}
