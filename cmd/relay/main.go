package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/DevRickLin/chat-relay/internal/api"
	"github.com/DevRickLin/chat-relay/internal/biz"
	"github.com/DevRickLin/chat-relay/internal/conf"
	"github.com/DevRickLin/chat-relay/internal/data"
	"github.com/DevRickLin/chat-relay/internal/infra/feishu"
	"github.com/DevRickLin/chat-relay/internal/infra/telegram"
	"github.com/DevRickLin/chat-relay/internal/logging"
	"github.com/DevRickLin/chat-relay/internal/server"
	"github.com/DevRickLin/chat-relay/internal/service"
)

func main() {
	// Load .env file
	envErr := godotenv.Load()

	// Load configuration
	cfg := conf.LoadFromEnv()
	logger := logging.New(os.Stdout, cfg.Debug)
	log := logging.Component(logger, "relay")

	if envErr != nil {
		log.Debug().Msg("no .env file found, using environment variables")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}
	if cfg.PromptsSource != "" {
		log.Info().Str("path", cfg.PromptsSource).Msg("prompts loaded")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize repository layer
	store, err := data.NewStore(ctx, cfg.ToStoreConfig(), logging.Component(logger, "store"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open store")
	}
	defer store.Close()

	reasoner := data.NewOpenAIReasoner(cfg.ToOpenAIConfig(), logging.Component(logger, "reasoning"))

	var (
		feishuClient   *feishu.Client
		telegramClient *telegram.Client
		feishuSink     data.FeishuReplier
		telegramSink   data.TelegramReplier
	)
	if cfg.FeishuEnabled() {
		feishuClient = feishu.NewClient(cfg.ToFeishuConfig(), logging.Component(logger, "feishu"))
		feishuSink = feishuClient
	}
	if cfg.TelegramEnabled() {
		telegramClient, err = telegram.NewClient(cfg.ToTelegramConfig(), logging.Component(logger, "telegram"))
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create telegram client")
		}
		telegramSink = telegramClient
	}
	sink := data.NewReplyRouter(feishuSink, telegramSink, logging.Component(logger, "reply"))

	// Initialize usecase layer
	ucs, err := biz.NewUsecases(store, reasoner, sink, biz.Options{
		Trigger: cfg.ToTriggerConfig(),
		Prompt:  cfg.ToPromptConfig(),
		Reply:   cfg.ToReplyConfig(),
	}, logging.Component(logger, "cycle"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build usecases")
	}

	// Initialize service layer
	ingress := service.NewIngressService(ucs.Cycle, logging.Component(logger, "ingress"))
	health := service.NewHealthMonitor(store, cfg.HealthInterval, logging.Component(logger, "health"))
	health.Start()
	defer health.Stop()

	routes := server.Routes{
		API:       api.NewHandler(store, ucs.Buffer, ucs.Context, cfg.APIToken, logging.Component(logger, "api")).Routes(),
		Readiness: health,
	}

	var wg sync.WaitGroup
	if feishuClient != nil {
		feishuClient.OnMessage(ingress.HandleFeishu)
		if cfg.Feishu.EventMode == conf.FeishuModeWebSocket {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := feishuClient.StartWebSocket(ctx); err != nil && ctx.Err() == nil {
					log.Error().Err(err).Msg("feishu websocket stopped")
					stop()
				}
			}()
		} else {
			routes.FeishuWebhook = feishuClient.EventHandler()
		}
	}
	if telegramClient != nil {
		telegramClient.OnMessage(ingress.HandleTelegram)
		routes.TelegramWebhook = telegramClient.WebhookHandler()
		if cfg.Telegram.WebhookURL != "" {
			if err := telegramClient.RegisterWebhook(cfg.Telegram.WebhookURL); err != nil {
				log.Fatal().Err(err).Msg("failed to register telegram webhook")
			}
		}
	}

	srv := server.NewServer(cfg.ListenAddr, routes, logging.Component(logger, "http"))
	go func() {
		if err := srv.Start(); err != nil {
			log.Error().Err(err).Msg("http server error")
			stop()
		}
	}()

	log.Info().
		Str("store", cfg.Store.Driver).
		Str("policy", ucs.Policy.Name()).
		Bool("feishu", feishuClient != nil).
		Bool("telegram", telegramClient != nil).
		Msg("chat relay started")

	<-ctx.Done()
	log.Info().Msg("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server forced to shutdown")
	}
	wg.Wait()
	// Background replies still use the store, which closes after main returns
	if err := ingress.Close(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("in-flight replies cancelled")
	}
	log.Info().Msg("relay stopped")
}
