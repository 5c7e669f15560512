package narrator

import (
	"fmt"
	"math/rand"
)

// DiceRoller is the skill-check tool offered to the generation model. A
// failed roll invokes OnFailure so the session can punish the stumble, for
// example by forcing an early auction.
type DiceRoller struct {
	// Coin returns the roll outcome; defaults to a fair coin.
	Coin func() bool
	// OnFailure runs after a failed roll. May be nil.
	OnFailure func()
}

// Tools implements ToolExecutor.
func (d *DiceRoller) Tools() []ToolDefinition {
	return []ToolDefinition{
		{
			Name: "roll_dice",
			Description: "Call this whenever the player is attempting an action requiring any amount of skill, strength, or luck, as per the core mechanics. " +
				"Returns true or false, indicating whether the player succeeds or fails the action.",
		},
	}
}

// Execute implements ToolExecutor.
func (d *DiceRoller) Execute(name string, _ map[string]any) (map[string]any, error) {
	if name != "roll_dice" {
		return nil, fmt.Errorf("narrator: unknown tool %q", name)
	}
	coin := d.Coin
	if coin == nil {
		coin = func() bool { return rand.Intn(2) == 0 }
	}
	success := coin()
	if !success && d.OnFailure != nil {
		d.OnFailure()
	}
	return map[string]any{"success": success}, nil
}
