package discord

import "github.com/bwmarrin/discordgo"

// commandDefs is the full slash command surface registered on connect.
var commandDefs = []*discordgo.ApplicationCommand{
	{
		Name:        "register",
		Description: "Register your character's objective",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "objective",
				Description: "What your character is trying to achieve",
				Required:    true,
			},
		},
	},
	{
		Name:        "start",
		Description: "Start the game once everyone has registered",
	},
	{
		Name:        "bid",
		Description: "Place a sealed bid for the next turn",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionInteger,
				Name:        "value",
				Description: "How many points to bid",
				Required:    true,
			},
		},
	},
	{
		Name:        "points",
		Description: "Check your bidding point balance",
	},
	{
		Name:        "leaderboard",
		Description: "Show objective progress for every player",
	},
	{
		Name:        "toggle-bidding",
		Description: "Enable or disable turn bidding",
	},
	{
		Name:        "state",
		Description: "Show the current bidding state",
	},
	{
		Name:        "show",
		Description: "Inspect the world, your inventory, or the custom rules",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "what",
				Description: "Which part of the game to show",
				Required:    true,
				Choices: []*discordgo.ApplicationCommandOptionChoice{
					{Name: "world", Value: "world"},
					{Name: "inventory", Value: "inventory"},
					{Name: "rules", Value: "rules"},
				},
			},
		},
	},
	{
		Name:        "rule",
		Description: "Add or remove custom rules",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "action",
				Description: "add or remove",
				Required:    true,
				Choices: []*discordgo.ApplicationCommandOptionChoice{
					{Name: "add", Value: "add"},
					{Name: "remove", Value: "remove"},
				},
			},
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "rule",
				Description: "The rule text (for add)",
			},
			{
				Type:        discordgo.ApplicationCommandOptionBoolean,
				Name:        "secret",
				Description: "Hide the rule from /show rules (for add)",
			},
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "ids",
				Description: "Space-separated rule ids (for remove)",
			},
		},
	},
	{
		Name:        "sudo",
		Description: "Reshape the world as the game designer",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "text",
				Description: "The change to make",
				Required:    true,
			},
		},
	},
	{
		Name:        "clear",
		Description: "Wipe the game and start over",
	},
}
