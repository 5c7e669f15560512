// Package narrator turns player messages into narrative replies. It builds
// prompts for an external language model, validates the model's structured
// reply, and exposes the relevance classifier that decides whether a chat
// message is aimed at the game at all.
package narrator

import "context"

// MaxToolRounds caps the model's tool-call loop. A model that keeps asking
// for tools past this is cut off and the round's output is used as-is.
const MaxToolRounds = 4

// ClassifierVerdict is the relevance classifier's reply.
type ClassifierVerdict struct {
	Forward    bool    `json:"forward"`
	Confidence float64 `json:"confidence"`
}

// ModelResponse is the structured reply from the generation model. The
// update maps are patches: a key with value true means ensure the fact or
// item exists, false means ensure it is removed, and absent keys are left
// untouched.
type ModelResponse struct {
	Response               string          `json:"response"`
	WorldStateUpdates      map[string]bool `json:"world_state_updates"`
	PlayerInventoryUpdates map[string]bool `json:"player_inventory_updates"`
}

// ToolDefinition describes one callable tool offered to the model.
type ToolDefinition struct {
	Name        string
	Description string
}

// ToolExecutor serves tool calls made by the model during generation.
type ToolExecutor interface {
	// Tools lists the definitions to advertise to the model.
	Tools() []ToolDefinition
	// Execute runs one tool call and returns its result payload.
	Execute(name string, args map[string]any) (map[string]any, error)
}

// GenerateRequest is one generation call. Tools may be nil when the model
// should not be offered any.
type GenerateRequest struct {
	System string
	User   string
	Tools  ToolExecutor
}

// Provider abstracts the language-model backend. Implementations run the
// bounded tool loop themselves so the transport-specific function-calling
// protocol stays out of the callers.
type Provider interface {
	// Classify runs the cheap relevance model.
	Classify(ctx context.Context, system, user string) (ClassifierVerdict, error)
	// Generate runs the main narrative model and parses its reply.
	Generate(ctx context.Context, req GenerateRequest) (*ModelResponse, error)
}
