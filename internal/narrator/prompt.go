package narrator

import (
	"fmt"
	"sort"
	"strings"

	"github.com/fabler/fabler/internal/config"
	"github.com/fabler/fabler/internal/models"
	"github.com/fabler/fabler/internal/store"
)

const filterPreamble = `The user message is from a general discussion channel. The channel contains messages meant for either:

a) a world building simulation game that responds to natural language, or
b) other users in the channel who may be talking with each other about the simulator and its responses.

Your task is to determine whether to forward the message to the (somewhat expensive) simulator or not forward the message and do nothing. Messages in category (a) must be forwarded while messages in category (b) should not be forwarded.

Respond with ONLY valid JSON in the following format WITHOUT code fence or anything else:

{
    // Whether the message is in category (a) and should be forwarded
    "forward": boolean,

    // A float from 0-1 describing how confident you are in your decision. 1 is perfectly certain, 0 is perfectly uncertain.
    "confidence": number
}`

const responseFormat = `RESPONSE FORMAT:
Respond with ONLY valid JSON according to the following schema, WITHOUT code fence or anything else:

// A patch set.
// The key is the contents of an item to add or remove.
// The value is whether to add (true) or remove (false) the item.
// The changes must be very detailed because the context in which they were created is not saved.
type Changes = Record<string, boolean>;

type ModelResponse = {
    // The response to the player.
    response: string;

    // Changes to apply to the world state, if any.
    world_state_updates: Changes | null;

    // Changes to apply to the player's inventory, if any.
    player_inventory_updates: Changes | null;
};`

// FilterPrompt renders the relevance classifier's system prompt from the
// configured accept/reject examples.
func FilterPrompt(cfg config.FilterConfig) string {
	var b strings.Builder
	b.WriteString(filterPreamble)
	b.WriteString("\n\nEXAMPLES:\n\nForward things like these:\n")
	for _, ex := range cfg.Examples.Accept {
		fmt.Fprintf(&b, "- %q\n", ex)
	}
	b.WriteString("\nDo not forward things like these:\n")
	for _, ex := range cfg.Examples.Reject {
		fmt.Fprintf(&b, "- %q\n", ex)
	}
	return b.String()
}

// PromptMaterial carries everything the game prompt is assembled from.
type PromptMaterial struct {
	PlayerName  string
	Sudo        bool
	WorldState  map[string]struct{}
	Inventory   map[string]struct{}
	CustomRules []models.CustomRule
	Objectives  []models.Objective
	Context     []store.SimpleMessage
}

// GamePrompt renders the main system prompt. Inventory and objectives are
// omitted under sudo because the game designer is editing the world, not
// playing in it.
func GamePrompt(cfg config.EngineConfig, m PromptMaterial) string {
	sections := []string{gameBasePrompt(cfg)}

	if len(m.CustomRules) > 0 {
		var b strings.Builder
		b.WriteString("ADDITIONAL RULES, which take precedence over everything above:\n")
		for _, rule := range m.CustomRules {
			fmt.Fprintf(&b, "- %s\n", rule.Rule)
		}
		sections = append(sections, b.String())
	}

	if !m.Sudo && len(m.Objectives) > 0 {
		var b strings.Builder
		b.WriteString("The player is pursuing these objectives:\n")
		for _, obj := range m.Objectives {
			fmt.Fprintf(&b, "- %s\n", obj.Text)
		}
		sections = append(sections, b.String())
	}

	if len(m.Context) > 0 {
		var b strings.Builder
		b.WriteString("Here is a selection of messages sent by yourself and players, which you may find helpful:\n\n")
		for _, msg := range m.Context {
			fmt.Fprintf(&b, "%s: %s\n\n", speaker(msg), msg.Content)
		}
		sections = append(sections, b.String())
	}

	if len(m.WorldState) > 0 {
		var b strings.Builder
		b.WriteString("The world has the following state:\n")
		for _, item := range sortedSet(m.WorldState) {
			fmt.Fprintf(&b, "- %s\n", item)
		}
		sections = append(sections, b.String())
	} else {
		sections = append(sections, "The world is empty.")
	}

	if !m.Sudo {
		if len(m.Inventory) > 0 {
			var b strings.Builder
			b.WriteString("The player's inventory contains the following and nothing else:\n")
			for _, item := range sortedSet(m.Inventory) {
				fmt.Fprintf(&b, "- %s\n", item)
			}
			sections = append(sections, b.String())
		} else {
			sections = append(sections, "The player's inventory is empty.")
		}
	}

	if m.Sudo {
		sections = append(sections,
			"You are currently processing messages from the game designer.\n"+
				"The game designer is allowed to request arbitrary changes to the world.\n"+
				"Accommodate the requests in the most seamless way possible given the existing world state.")
	} else {
		sections = append(sections,
			fmt.Sprintf("You are currently processing messages from the player named %s.", m.PlayerName))
	}

	return strings.Join(sections, "\n\n---\n\n")
}

func gameBasePrompt(cfg config.EngineConfig) string {
	var b strings.Builder
	b.WriteString("You are a multiplayer RPG simulation engine that processes player attempts to complete tasks. Core principles:\n")

	writeList(&b, "WORLD PROPERTIES:", cfg.WorldProperties)
	writeList(&b, "CORE MECHANICS:", cfg.CoreMechanics)

	b.WriteString("\nINTERACTION RULES:\n1. DO:\n")
	for _, item := range cfg.InteractionRules.Do {
		fmt.Fprintf(&b, "- %s\n", item)
	}
	b.WriteString("\n2. DO NOT:\n")
	for _, item := range cfg.InteractionRules.Dont {
		fmt.Fprintf(&b, "- Do NOT %s\n", item)
	}

	writeList(&b, "PLAYER RESPONSES:", cfg.ResponseGuidelines)

	b.WriteString("\n")
	b.WriteString(responseFormat)
	return b.String()
}

func writeList(b *strings.Builder, heading string, items []string) {
	if len(items) == 0 {
		return
	}
	b.WriteString("\n" + heading + "\n")
	for _, item := range items {
		fmt.Fprintf(b, "- %s\n", item)
	}
}

func speaker(msg store.SimpleMessage) string {
	if msg.SenderID == models.NarratorUserID {
		return "You"
	}
	return "Player " + msg.Sender
}

func sortedSet(set map[string]struct{}) []string {
	items := make([]string, 0, len(set))
	for item := range set {
		items = append(items, item)
	}
	// Deterministic prompt text keeps identical states producing identical
	// prompts across runs.
	sort.Strings(items)
	return items
}
