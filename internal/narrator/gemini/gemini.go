// Package gemini implements narrator.Provider on the Gemini API. The
// classifier runs with a strict JSON response schema; the generation model
// runs a chat session so function calls and their results stay in one
// conversation.
package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/fabler/fabler/internal/narrator"
)

// Client talks to Gemini with two models: a cheap one for relevance
// classification and the main one for narrative generation.
type Client struct {
	genai           *genai.Client
	model           string
	classifierModel string
}

// Opts holds parameters for creating a Client.
type Opts struct {
	APIKey          string
	Model           string // main generation model
	ClassifierModel string // cheap relevance model
}

// New creates a Client.
func New(ctx context.Context, opts Opts) (*Client, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("gemini: api key is required")
	}
	if opts.Model == "" || opts.ClassifierModel == "" {
		return nil, fmt.Errorf("gemini: model names are required")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(opts.APIKey))
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	return &Client{
		genai:           client,
		model:           opts.Model,
		classifierModel: opts.ClassifierModel,
	}, nil
}

// Close releases the underlying API client.
func (c *Client) Close() error {
	return c.genai.Close()
}

// Classify implements narrator.Provider.
func (c *Client) Classify(ctx context.Context, system, user string) (narrator.ClassifierVerdict, error) {
	model := c.genai.GenerativeModel(c.classifierModel)
	model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	model.SetTemperature(0)
	model.ResponseMIMEType = "application/json"
	model.ResponseSchema = &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"forward":    {Type: genai.TypeBoolean},
			"confidence": {Type: genai.TypeNumber},
		},
		Required: []string{"forward", "confidence"},
	}

	resp, err := model.GenerateContent(ctx, genai.Text(user))
	if err != nil {
		return narrator.ClassifierVerdict{}, fmt.Errorf("gemini: classify: %w", err)
	}

	var verdict narrator.ClassifierVerdict
	if err := json.Unmarshal([]byte(responseText(resp)), &verdict); err != nil {
		return narrator.ClassifierVerdict{}, fmt.Errorf("gemini: parse classifier reply: %w", err)
	}
	return verdict, nil
}

// Generate implements narrator.Provider. Tool calls are served locally and
// fed back into the chat until the model answers with text or the round cap
// is hit.
func (c *Client) Generate(ctx context.Context, req narrator.GenerateRequest) (*narrator.ModelResponse, error) {
	model := c.genai.GenerativeModel(c.model)
	model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(req.System)}}
	if req.Tools != nil {
		model.Tools = toolDeclarations(req.Tools)
	}

	session := model.StartChat()
	resp, err := session.SendMessage(ctx, genai.Text(req.User))
	if err != nil {
		return nil, fmt.Errorf("gemini: generate: %w", err)
	}

	for round := 0; round < narrator.MaxToolRounds; round++ {
		calls := functionCalls(resp)
		if len(calls) == 0 {
			break
		}
		replies := make([]genai.Part, 0, len(calls))
		for _, call := range calls {
			result, err := req.Tools.Execute(call.Name, call.Args)
			if err != nil {
				return nil, fmt.Errorf("gemini: tool %s: %w", call.Name, err)
			}
			replies = append(replies, genai.FunctionResponse{Name: call.Name, Response: result})
		}
		resp, err = session.SendMessage(ctx, replies...)
		if err != nil {
			return nil, fmt.Errorf("gemini: tool follow-up: %w", err)
		}
	}

	return parseModelResponse(responseText(resp))
}

func toolDeclarations(tools narrator.ToolExecutor) []*genai.Tool {
	defs := tools.Tools()
	decls := make([]*genai.FunctionDeclaration, 0, len(defs))
	for _, def := range defs {
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        def.Name,
			Description: def.Description,
		})
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

func functionCalls(resp *genai.GenerateContentResponse) []genai.FunctionCall {
	var calls []genai.FunctionCall
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil
	}
	for _, part := range resp.Candidates[0].Content.Parts {
		if call, ok := part.(genai.FunctionCall); ok {
			calls = append(calls, call)
		}
	}
	return calls
}

func responseText(resp *genai.GenerateContentResponse) string {
	var text strings.Builder
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			text.WriteString(string(txt))
		}
	}
	return text.String()
}

// parseModelResponse decodes the structured narrative reply, tolerating a
// markdown code fence the model sometimes wraps JSON in.
func parseModelResponse(text string) (*narrator.ModelResponse, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	var out narrator.ModelResponse
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		return nil, fmt.Errorf("gemini: parse model reply: %w", err)
	}
	if out.Response == "" {
		return nil, fmt.Errorf("gemini: model reply has no response text")
	}
	return &out, nil
}
