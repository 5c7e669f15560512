package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/fabler/fabler/internal/chat"
	"github.com/fabler/fabler/internal/chat/discord"
	"github.com/fabler/fabler/internal/chat/slack"
	"github.com/fabler/fabler/internal/config"
	"github.com/fabler/fabler/internal/dashboard"
	"github.com/fabler/fabler/internal/db"
	"github.com/fabler/fabler/internal/narrator"
	"github.com/fabler/fabler/internal/narrator/gemini"
	"github.com/fabler/fabler/internal/session"
	"github.com/fabler/fabler/internal/store"
)

func newServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the game daemon",
		Long:  "Connects to the configured chat platform, opens the room database, and runs the narrative engine until interrupted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "fabler.yaml", "path to Fabler config file")
	return cmd
}

func runServe(cmd *cobra.Command, configPath string) error {
	out := cmd.OutOrStdout()

	// .env is optional; real env vars win either way.
	if err := godotenv.Load(); err == nil {
		fmt.Fprintln(out, "Loaded environment from .env")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	roomID := roomIDFor(cfg)
	dbPath := db.RoomPath(cfg.DataDir, roomID)
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	gdb, err := db.Open(dbPath)
	if err != nil {
		return err
	}
	if err := db.Setup(gdb); err != nil {
		return err
	}
	fmt.Fprintf(out, "Room database: %s\n", dbPath)

	st, err := store.New(gdb)
	if err != nil {
		return err
	}

	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		return fmt.Errorf("GEMINI_API_KEY is not set")
	}
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	provider, err := gemini.New(ctx, gemini.Opts{
		APIKey:          apiKey,
		Model:           cfg.Narrator.Model,
		ClassifierModel: cfg.Narrator.ClassifierModel,
	})
	if err != nil {
		return err
	}
	defer provider.Close()

	interp, err := narrator.New(narrator.Opts{
		Provider: provider,
		Game:     cfg.Game,
	})
	if err != nil {
		return err
	}

	adapter, err := newAdapter(cfg)
	if err != nil {
		return err
	}

	engine, err := session.New(session.Opts{
		Store:       st,
		Interpreter: interp,
		Bidding:     cfg.Bidding,
		Send: func(text string) {
			if _, err := adapter.Send(context.Background(), chat.OutboundMessage{Text: text}); err != nil {
				log.Printf("announce: %v", err)
			}
		},
	})
	if err != nil {
		return err
	}
	defer engine.Close()

	daemon, err := chat.NewDaemon(chat.DaemonOpts{
		Config:  cfg,
		Engine:  engine,
		Adapter: adapter,
		Out:     out,
	})
	if err != nil {
		return err
	}

	if cfg.Dashboard.Enabled {
		go func() {
			err := dashboard.Start(ctx, dashboard.StartOpts{
				Game:  engine,
				Store: st,
				Addr:  cfg.Dashboard.Addr,
				Out:   out,
			})
			if err != nil {
				log.Printf("dashboard: %v", err)
			}
		}()
	}

	return daemon.Run(ctx)
}

// roomIDFor derives the room identity from the configured game channel.
func roomIDFor(cfg *config.Config) string {
	if cfg.Frontend == "slack" {
		return cfg.Slack.ChannelID
	}
	return cfg.Discord.ChannelID
}

// newAdapter builds the platform adapter named by the config. Tokens come
// from the environment, never the config file.
func newAdapter(cfg *config.Config) (chat.Adapter, error) {
	switch cfg.Frontend {
	case "discord":
		token := os.Getenv("DISCORD_BOT_TOKEN")
		if token == "" {
			return nil, fmt.Errorf("DISCORD_BOT_TOKEN is not set")
		}
		return discord.New(discord.AdapterOpts{
			BotToken:  token,
			ChannelID: cfg.Discord.ChannelID,
		})
	case "slack":
		botToken := os.Getenv("SLACK_BOT_TOKEN")
		appToken := os.Getenv("SLACK_APP_TOKEN")
		if botToken == "" || appToken == "" {
			return nil, fmt.Errorf("SLACK_BOT_TOKEN and SLACK_APP_TOKEN must be set")
		}
		return slack.New(slack.AdapterOpts{
			BotToken:  botToken,
			AppToken:  appToken,
			ChannelID: cfg.Slack.ChannelID,
		})
	default:
		return nil, fmt.Errorf("unsupported frontend %q", cfg.Frontend)
	}
}
