package narrator

import (
	"context"
	"fmt"

	"github.com/fabler/fabler/internal/config"
)

// Interpreter assembles prompts from configuration and live game material
// and runs them through a Provider.
type Interpreter struct {
	provider        Provider
	filterPrompt    string
	engineCfg       config.EngineConfig
	acceptByDefault bool
}

// Opts holds parameters for creating an Interpreter.
type Opts struct {
	Provider Provider
	Game     config.GameConfig
}

// New creates an Interpreter.
func New(opts Opts) (*Interpreter, error) {
	if opts.Provider == nil {
		return nil, fmt.Errorf("narrator: provider is required")
	}
	return &Interpreter{
		provider:        opts.Provider,
		filterPrompt:    FilterPrompt(opts.Game.Filter),
		engineCfg:       opts.Game.Engine,
		acceptByDefault: opts.Game.Filter.DefaultBehavior == "accept",
	}, nil
}

// confidenceThreshold is the minimum classifier confidence required before
// its verdict overrides the configured default behavior.
const confidenceThreshold = 0.5

// IsGameAction reports whether a message is aimed at the game. A verdict at
// or below the confidence threshold falls back to the configured default
// instead of trusting a coin-flip answer.
func (i *Interpreter) IsGameAction(ctx context.Context, text string) (bool, error) {
	verdict, err := i.provider.Classify(ctx, i.filterPrompt, text)
	if err != nil {
		return false, fmt.Errorf("narrator: classify: %w", err)
	}
	if verdict.Confidence <= confidenceThreshold {
		return i.acceptByDefault, nil
	}
	return verdict.Forward, nil
}

// ProcessAction runs one player message through the generation model and
// returns the validated structured reply. Tools may be nil.
func (i *Interpreter) ProcessAction(ctx context.Context, text string, m PromptMaterial, tools ToolExecutor) (*ModelResponse, error) {
	resp, err := i.provider.Generate(ctx, GenerateRequest{
		System: GamePrompt(i.engineCfg, m),
		User:   text,
		Tools:  tools,
	})
	if err != nil {
		return nil, fmt.Errorf("narrator: generate: %w", err)
	}
	if resp == nil || resp.Response == "" {
		return nil, fmt.Errorf("narrator: model returned an empty response")
	}
	return resp, nil
}
