package main

import (
	"strings"
	"testing"

	"github.com/fabler/fabler/internal/config"
)

func TestRoomIDFor(t *testing.T) {
	discordCfg := &config.Config{Frontend: "discord"}
	discordCfg.Discord.ChannelID = "C_D"
	if got := roomIDFor(discordCfg); got != "C_D" {
		t.Errorf("discord room = %q, want C_D", got)
	}

	slackCfg := &config.Config{Frontend: "slack"}
	slackCfg.Slack.ChannelID = "C_S"
	if got := roomIDFor(slackCfg); got != "C_S" {
		t.Errorf("slack room = %q, want C_S", got)
	}
}

func TestNewAdapter_MissingDiscordToken(t *testing.T) {
	t.Setenv("DISCORD_BOT_TOKEN", "")

	cfg := &config.Config{Frontend: "discord"}
	cfg.Discord.ChannelID = "C1"
	_, err := newAdapter(cfg)
	if err == nil {
		t.Fatal("expected error for missing bot token")
	}
	if !strings.Contains(err.Error(), "DISCORD_BOT_TOKEN") {
		t.Errorf("error = %q", err.Error())
	}
}

func TestNewAdapter_MissingSlackTokens(t *testing.T) {
	t.Setenv("SLACK_BOT_TOKEN", "xoxb-test")
	t.Setenv("SLACK_APP_TOKEN", "")

	cfg := &config.Config{Frontend: "slack"}
	cfg.Slack.ChannelID = "C1"
	_, err := newAdapter(cfg)
	if err == nil {
		t.Fatal("expected error for missing app token")
	}
}

func TestNewAdapter_Discord(t *testing.T) {
	t.Setenv("DISCORD_BOT_TOKEN", "test-token")

	cfg := &config.Config{Frontend: "discord"}
	cfg.Discord.ChannelID = "C1"
	adapter, err := newAdapter(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if adapter == nil {
		t.Fatal("expected non-nil adapter")
	}
}

func TestNewAdapter_UnsupportedFrontend(t *testing.T) {
	cfg := &config.Config{Frontend: "irc"}
	if _, err := newAdapter(cfg); err == nil {
		t.Fatal("expected error for unsupported frontend")
	}
}

func TestServe_BadConfig(t *testing.T) {
	_, err := runCommand(t, "serve", "--config", "/nonexistent/fabler.yaml")
	if err == nil {
		t.Fatal("expected error for missing config")
	}
}
