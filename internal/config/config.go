// Package config provides YAML-based configuration loading for fabler.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the top-level fabler configuration, loaded from fabler.yaml.
// Secrets (bot tokens, model API keys) come from the environment, never
// from this file.
type Config struct {
	Frontend  string          `yaml:"frontend"` // "discord" or "slack"
	DataDir   string          `yaml:"data_dir"`
	Discord   DiscordConfig   `yaml:"discord"`
	Slack     SlackConfig     `yaml:"slack"`
	Game      GameConfig      `yaml:"game"`
	Bidding   BiddingConfig   `yaml:"bidding"`
	Dashboard DashboardConfig `yaml:"dashboard"`
	Digest    DigestConfig    `yaml:"digest"`
	Narrator  NarratorConfig  `yaml:"narrator"`
}

// DiscordConfig holds Discord connection settings. The bot token is read
// from DISCORD_BOT_TOKEN.
type DiscordConfig struct {
	ChannelID string `yaml:"channel_id"` // game channel the bot plays in
}

// SlackConfig holds Slack connection settings. Tokens are read from
// SLACK_BOT_TOKEN and SLACK_APP_TOKEN.
type SlackConfig struct {
	ChannelID string `yaml:"channel_id"`
}

// GameConfig carries the prompt material and classifier policy for the
// narrative engine.
type GameConfig struct {
	Filter FilterConfig `yaml:"filter"`
	Engine EngineConfig `yaml:"engine"`
}

// FilterConfig configures the relevance classifier.
type FilterConfig struct {
	// DefaultBehavior decides low-confidence verdicts: "accept" or "reject".
	DefaultBehavior string         `yaml:"default_behavior"`
	Examples        FilterExamples `yaml:"examples"`
}

// FilterExamples are shown to the classifier as positive/negative samples.
type FilterExamples struct {
	Accept []string `yaml:"accept"`
	Reject []string `yaml:"reject"`
}

// EngineConfig is the static prompt material for the narrative engine.
type EngineConfig struct {
	WorldProperties    []string               `yaml:"world_properties"`
	CoreMechanics      []string               `yaml:"core_mechanics"`
	InteractionRules   InteractionRulesConfig `yaml:"interaction_rules"`
	ResponseGuidelines []string               `yaml:"response_guidelines"`
}

// InteractionRulesConfig lists do/don't rules for the narrator.
type InteractionRulesConfig struct {
	Do   []string `yaml:"do"`
	Dont []string `yaml:"dont"`
}

// BiddingConfig tunes the turn auction.
type BiddingConfig struct {
	StartingPoints       int     `yaml:"starting_points"`
	PointCap             int     `yaml:"point_cap"`
	AuctionTimeoutSec    int     `yaml:"auction_timeout_sec"`
	LastCallSec          int     `yaml:"last_call_sec"`
	TurnTimeoutSec       int     `yaml:"turn_timeout_sec"`
	TurnMessageThreshold int     `yaml:"turn_message_threshold"`
	TurnRampWidth        float64 `yaml:"turn_ramp_width"` // messages past threshold until auction is certain
	StartGraceSec        int     `yaml:"start_grace_sec"`
}

// DashboardConfig configures the read-only HTTP dashboard.
type DashboardConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// DigestConfig schedules the leaderboard digest post.
type DigestConfig struct {
	Enabled bool   `yaml:"enabled"`
	Cron    string `yaml:"cron"` // 5-field cron expression
}

// NarratorConfig names the models used by the narrative engine. The API key
// is read from GEMINI_API_KEY.
type NarratorConfig struct {
	Model           string `yaml:"model"`            // main generation model
	ClassifierModel string `yaml:"classifier_model"` // cheap relevance model
}

// Load reads a YAML config file from path and returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.DataDir == "" {
		c.DataDir = "data"
	}
	if c.Game.Filter.DefaultBehavior == "" {
		c.Game.Filter.DefaultBehavior = "reject"
	}
	if len(c.Game.Filter.Examples.Accept) == 0 {
		c.Game.Filter.Examples.Accept = defaultFilterAccept
	}
	if len(c.Game.Filter.Examples.Reject) == 0 {
		c.Game.Filter.Examples.Reject = defaultFilterReject
	}
	if len(c.Game.Engine.WorldProperties) == 0 {
		c.Game.Engine.WorldProperties = defaultWorldProperties
	}
	if len(c.Game.Engine.CoreMechanics) == 0 {
		c.Game.Engine.CoreMechanics = defaultCoreMechanics
	}
	if len(c.Game.Engine.InteractionRules.Do) == 0 {
		c.Game.Engine.InteractionRules.Do = defaultInteractionDo
	}
	if len(c.Game.Engine.InteractionRules.Dont) == 0 {
		c.Game.Engine.InteractionRules.Dont = defaultInteractionDont
	}
	if len(c.Game.Engine.ResponseGuidelines) == 0 {
		c.Game.Engine.ResponseGuidelines = defaultResponseGuidelines
	}
	if c.Bidding.StartingPoints == 0 {
		c.Bidding.StartingPoints = 10
	}
	if c.Bidding.PointCap == 0 {
		c.Bidding.PointCap = 10
	}
	if c.Bidding.AuctionTimeoutSec == 0 {
		c.Bidding.AuctionTimeoutSec = 70
	}
	if c.Bidding.LastCallSec == 0 {
		c.Bidding.LastCallSec = 10
	}
	if c.Bidding.TurnTimeoutSec == 0 {
		c.Bidding.TurnTimeoutSec = 150
	}
	if c.Bidding.TurnMessageThreshold == 0 {
		c.Bidding.TurnMessageThreshold = 4
	}
	if c.Bidding.TurnRampWidth == 0 {
		c.Bidding.TurnRampWidth = 4
	}
	if c.Bidding.StartGraceSec == 0 {
		c.Bidding.StartGraceSec = 20
	}
	if c.Dashboard.Addr == "" {
		c.Dashboard.Addr = "127.0.0.1:8640"
	}
	if c.Digest.Cron == "" {
		c.Digest.Cron = "0 9 * * *"
	}
	if c.Narrator.Model == "" {
		c.Narrator.Model = "gemini-2.5-pro"
	}
	if c.Narrator.ClassifierModel == "" {
		c.Narrator.ClassifierModel = "gemini-2.5-flash"
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	switch c.Frontend {
	case "discord", "slack":
	case "":
		errs = append(errs, "frontend is required")
	default:
		errs = append(errs, fmt.Sprintf("frontend %q is not supported (discord, slack)", c.Frontend))
	}
	switch c.Game.Filter.DefaultBehavior {
	case "accept", "reject":
	default:
		errs = append(errs, fmt.Sprintf("game.filter.default_behavior %q must be accept or reject", c.Game.Filter.DefaultBehavior))
	}
	if c.Frontend == "discord" && c.Discord.ChannelID == "" {
		errs = append(errs, "discord.channel_id is required")
	}
	if c.Frontend == "slack" && c.Slack.ChannelID == "" {
		errs = append(errs, "slack.channel_id is required")
	}
	if c.Bidding.StartingPoints < 0 {
		errs = append(errs, "bidding.starting_points must not be negative")
	}
	if c.Bidding.PointCap < c.Bidding.StartingPoints {
		errs = append(errs, "bidding.point_cap must be at least bidding.starting_points")
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
