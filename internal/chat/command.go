package chat

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/fabler/fabler/internal/session"
)

// handleCommand executes one slash command and answers through the event's
// Respond callback.
func (d *Daemon) handleCommand(ctx context.Context, ev InboundEvent) {
	if ev.Respond == nil {
		log.Printf("chat: command %q without respond callback", ev.Command)
		return
	}

	respond := func(text string, private bool) {
		if err := ev.Respond(text, private); err != nil {
			log.Printf("chat: respond to %s: %v", ev.Command, err)
		}
	}

	switch ev.Command {
	case "register":
		objective := strings.TrimSpace(ev.Args["objective"])
		if objective == "" {
			respond("You need to specify an objective.", true)
			return
		}
		if err := d.engine.AddObjective(ev.UserID, ev.UserName, objective); err != nil {
			log.Printf("chat: register: %v", err)
			respond("Could not record your objective, try again.", true)
			return
		}
		respond("Objective noted!", true)

	case "start":
		ok, msg := d.engine.StartGame()
		if !ok {
			respond(msg, true)
			return
		}
		respond("Waking up the narrator...", false)

	case "bid":
		value, err := strconv.Atoi(ev.Args["value"])
		if err != nil {
			respond("Invalid bid. Please enter a whole number.", true)
			return
		}
		_, msg := d.engine.Bid(value, ev.UserID)
		respond(msg, true)

	case "points":
		respond(fmt.Sprintf("You have %d points.", d.engine.PlayerPoints(ev.UserID)), true)

	case "leaderboard":
		board := d.engine.Leaderboard()
		if board == "" {
			respond("Leaderboard is empty.", false)
			return
		}
		respond(board, false)

	case "toggle-bidding":
		if d.engine.ToggleBidding() {
			respond("Bidding disabled. Free-for-all!", false)
		} else {
			respond("Bidding enabled.", false)
		}

	case "state":
		respond(d.engine.DescribeBidding(), true)

	case "show":
		d.handleShow(ev, respond)

	case "rule":
		d.handleRule(ev, respond)

	case "sudo":
		d.handleSudo(ctx, ev, respond)

	case "clear":
		if err := d.engine.ClearGame(); err != nil {
			log.Printf("chat: clear: %v", err)
			respond("Could not clear the game.", true)
			return
		}
		respond("The world fades to black. A new game begins.", false)

	default:
		respond(fmt.Sprintf("Unknown command %q.", ev.Command), true)
	}
}

// handleShow serves the read-only show subcommands.
func (d *Daemon) handleShow(ev InboundEvent, respond func(string, bool)) {
	switch ev.Args["what"] {
	case "world":
		world := d.engine.WorldState()
		if len(world) == 0 {
			respond("The world is empty.", true)
			return
		}
		respond(bulleted(world), true)

	case "inventory":
		inv, err := d.engine.PlayerInventory(ev.UserID)
		if err != nil {
			log.Printf("chat: show inventory: %v", err)
			respond("Could not load your inventory.", true)
			return
		}
		if len(inv) == 0 {
			respond("Your inventory is empty.", true)
			return
		}
		respond(bulleted(inv), true)

	case "rules":
		rules := d.engine.CustomRules(false)
		if len(rules) == 0 {
			respond("No custom rules.", true)
			return
		}
		var b strings.Builder
		for _, rule := range rules {
			fmt.Fprintf(&b, "%d. %s\n", rule.ID, rule.Rule)
		}
		respond(b.String(), true)

	default:
		respond("Usage: /show world|inventory|rules", true)
	}
}

// handleRule serves rule add/remove.
func (d *Daemon) handleRule(ev InboundEvent, respond func(string, bool)) {
	switch ev.Args["action"] {
	case "add":
		text := strings.TrimSpace(ev.Args["rule"])
		if text == "" {
			respond("You need to specify a rule.", true)
			return
		}
		secret := ev.Args["secret"] == "true"
		if err := d.engine.AddCustomRule(text, ev.UserID, ev.UserName, secret); err != nil {
			log.Printf("chat: rule add: %v", err)
			respond("Could not add the rule.", true)
			return
		}
		respond("Rule added.", true)

	case "remove":
		var ids []uint
		for _, field := range strings.Fields(ev.Args["ids"]) {
			id, err := strconv.ParseUint(field, 10, 32)
			if err != nil {
				respond(fmt.Sprintf("Invalid rule id %q.", field), true)
				return
			}
			ids = append(ids, uint(id))
		}
		if len(ids) == 0 {
			respond("You need to specify rule ids.", true)
			return
		}
		if err := d.engine.RemoveCustomRules(ids); err != nil {
			log.Printf("chat: rule remove: %v", err)
			respond("Could not remove the rules.", true)
			return
		}
		respond("Rules removed.", true)

	default:
		respond("Usage: /rule add|remove", true)
	}
}

// handleSudo feeds a game-designer edit through the engine and posts the
// narrator's reply publicly.
func (d *Daemon) handleSudo(ctx context.Context, ev InboundEvent, respond func(string, bool)) {
	text := strings.TrimSpace(ev.Args["text"])
	if text == "" {
		respond("You need to specify a change.", true)
		return
	}
	respond("Reshaping the world...", true)

	resp, err := d.engine.ProcessMessage(ctx, session.Inbound{
		UserID:   ev.UserID,
		UserName: ev.UserName,
		Text:     text,
		Sudo:     true,
	})
	if err != nil {
		log.Printf("chat: sudo: %v", err)
		return
	}
	if resp == nil {
		return
	}
	sentID, err := d.adapter.Send(ctx, OutboundMessage{Text: resp.Text})
	if err != nil {
		log.Printf("chat: send sudo reply: %v", err)
		return
	}
	if err := resp.MarkResponded(sentID); err != nil {
		log.Printf("chat: mark sudo responded: %v", err)
	}
}

func bulleted(items []string) string {
	var b strings.Builder
	for _, item := range items {
		fmt.Fprintf(&b, "- %s\n", item)
	}
	return b.String()
}
