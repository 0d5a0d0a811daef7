package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/DevRickLin/chat-relay/internal/logging"
	"github.com/DevRickLin/chat-relay/internal/mcp"
)

// This MCP server exposes read-only relay inspection tools over stdio.
// It talks to a running relay through the admin API.

const version = "v1.0.0"

func main() {
	_ = godotenv.Load()

	// stdout carries the MCP protocol, so logs go to stderr
	log := logging.Component(logging.New(os.Stderr, os.Getenv("DEBUG") == "true"), "relay-mcp")

	apiURL := os.Getenv("RELAY_API_URL")
	if apiURL == "" {
		apiURL = "http://localhost:8080"
	}

	client := mcp.NewClient(apiURL, os.Getenv("RELAY_API_TOKEN"))
	server := mcp.NewServer(mcp.NewHandler(client), version)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info().Str("api", apiURL).Msg("mcp server starting")
	if err := server.Run(ctx, &mcpsdk.StdioTransport{}); err != nil && ctx.Err() == nil {
		log.Fatal().Err(err).Msg("mcp server stopped")
	}
}
