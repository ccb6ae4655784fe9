// Package input maps front-end key presses to spawn commands. The front
// ends differ only cosmetically, so a Variant is the only knob.
package input

import (
	"fmt"
	"strings"

	"crossway/internal/domain"
)

type Variant int

const (
	// VariantStandard spawns toward the arrow's heading.
	VariantStandard Variant = iota
	// VariantMirrored swaps the left and right arrows.
	VariantMirrored
)

func (v Variant) String() string {
	switch v {
	case VariantStandard:
		return "standard"
	case VariantMirrored:
		return "mirrored"
	default:
		return "unknown"
	}
}

func ParseVariant(s string) (Variant, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "standard", "":
		return VariantStandard, nil
	case "mirrored":
		return VariantMirrored, nil
	default:
		return 0, fmt.Errorf("unknown keymap variant %q", s)
	}
}

// Command is one spawn request produced by a key press.
type Command struct {
	Direction domain.Direction
	// Random ignores Direction and picks one.
	Random bool
}

type KeyMap struct {
	variant Variant
	keys    map[string]Command
}

func NewKeyMap(v Variant) *KeyMap {
	left, right := domain.West, domain.East
	if v == VariantMirrored {
		left, right = right, left
	}
	return &KeyMap{
		variant: v,
		keys: map[string]Command{
			"arrowup":    {Direction: domain.North},
			"arrowdown":  {Direction: domain.South},
			"arrowleft":  {Direction: left},
			"arrowright": {Direction: right},
			"r":          {Random: true},
		},
	}
}

func (k *KeyMap) Variant() Variant {
	return k.variant
}

// Lookup resolves a key name as sent by a browser (KeyboardEvent.key).
func (k *KeyMap) Lookup(key string) (Command, bool) {
	key = strings.ToLower(strings.TrimSpace(key))
	switch key {
	case "up", "down", "left", "right":
		key = "arrow" + key
	}
	cmd, ok := k.keys[key]
	return cmd, ok
}
