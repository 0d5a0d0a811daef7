package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/DevRickLin/chat-relay/internal/conf"
	"github.com/DevRickLin/chat-relay/internal/infra/feishu"
	"github.com/DevRickLin/chat-relay/internal/infra/telegram"
	"github.com/DevRickLin/chat-relay/internal/logging"
)

func main() {
	_ = godotenv.Load()

	if len(os.Args) < 4 {
		fmt.Println("Usage: send-message <feishu|telegram> <chat_id> <message>")
		os.Exit(1)
	}

	platform := os.Args[1]
	chatID := os.Args[2]
	message := os.Args[3]

	cfg := conf.LoadFromEnv()
	log := logging.Component(logging.New(os.Stderr, cfg.Debug), "send-message")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var err error
	switch platform {
	case "feishu":
		if !cfg.FeishuEnabled() {
			fmt.Println("Error: FEISHU_APP_ID and FEISHU_APP_SECRET must be set")
			os.Exit(1)
		}
		err = feishu.NewClient(cfg.ToFeishuConfig(), log).SendText(ctx, chatID, message)
	case "telegram":
		if !cfg.TelegramEnabled() {
			fmt.Println("Error: TELEGRAM_BOT_TOKEN must be set")
			os.Exit(1)
		}
		err = sendTelegram(ctx, cfg.ToTelegramConfig(), chatID, message, log)
	default:
		fmt.Printf("Error: unknown platform %q\n", platform)
		os.Exit(1)
	}

	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Message sent successfully!")
}

func sendTelegram(ctx context.Context, cfg telegram.Config, chatID, message string, log zerolog.Logger) error {
	id, err := telegram.ParseChatID(chatID)
	if err != nil {
		return err
	}
	client, err := telegram.NewClient(cfg, log)
	if err != nil {
		return err
	}
	return client.SendText(ctx, id, message)
}
