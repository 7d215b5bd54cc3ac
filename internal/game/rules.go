package game

import (
	"errors"
	"strings"
)

var ErrWrongPhase = errors.New("action not allowed in current phase")
var ErrNotReady = errors.New("player is not ready")
var ErrNotInRoom = errors.New("player is not in the room")
var ErrEliminated = errors.New("player is eliminated")
var ErrAway = errors.New("player is away")
var ErrSpectator = errors.New("spectators cannot act")
var ErrInvalidChoice = errors.New("choice not in the active option set")
var ErrChoiceOnCooldown = errors.New("choice is on cooldown")
var ErrAlreadyActed = errors.New("already acted this round")
var ErrNotCreator = errors.New("only the room creator can change settings")

// Phase is the game room state machine's current stage.
type Phase string

const (
	PhaseReady      Phase = "READY"
	PhaseChoosing   Phase = "CHOOSING"
	PhaseInProgress Phase = "IN_PROGRESS"
)

// Single-letter choice codes, matching the wire format.
const (
	Rock     = "r"
	Paper    = "p"
	Scissors = "s"
	Lizard   = "l"
	Spock    = "k"
)

// choice aliases accepted from clients
var aliases = map[string]string{
	"rock":     Rock,
	"paper":    Paper,
	"scissors": Scissors,
	"lizard":   Lizard,
	"spock":    Spock,
}

// OptionSet returns the choice codes active for the given option count.
// 3 is classic rock/paper/scissors, 4 adds lizard, 5 adds spock.
func OptionSet(optionCount int) []string {
	switch {
	case optionCount <= 3:
		return []string{Rock, Paper, Scissors}
	case optionCount == 4:
		return []string{Rock, Paper, Scissors, Lizard}
	default:
		return []string{Rock, Paper, Scissors, Lizard, Spock}
	}
}

// ClampOptionCount bounds a requested option count to the supported 3..5.
func ClampOptionCount(n int) int {
	if n < 3 {
		return 3
	}
	if n > 5 {
		return 5
	}
	return n
}

// Normalize maps full-word choices to their single-letter codes and lowers
// case. Unknown input is returned lowered and unmapped for the set check.
func Normalize(choice string) string {
	c := strings.ToLower(choice)
	if mapped, ok := aliases[c]; ok {
		return mapped
	}
	return c
}


// ValidateChoice normalizes the raw choice and checks it against the active
// option set, and the cooldown rule when enabled.
func ValidateChoice(raw string, optionCount int, cooldownEnabled bool, lastChoice string) (string, error) {
	c := Normalize(raw)
	valid := false
	for _, opt := range OptionSet(optionCount) {
		if c == opt {
			valid = true
			break
		}
	}
	if !valid {
		return "", ErrInvalidChoice
	}
	if cooldownEnabled && lastChoice != "" && c == lastChoice {
		return "", ErrChoiceOnCooldown
	}
	return c, nil
}

// beatsThree is the classic cycle: rock > scissors > paper > rock.
var beatsThree = map[string][]string{
	Rock:     {Scissors},
	Paper:    {Rock},
	Scissors: {Paper},
}

// beatsFive is the standard rock-paper-scissors-lizard-spock relation; each
// symbol beats exactly two others.
var beatsFive = map[string][]string{
	Rock:     {Scissors, Lizard},
	Paper:    {Rock, Spock},
	Scissors: {Paper, Lizard},
	Lizard:   {Paper, Spock},
	Spock:    {Rock, Scissors},
}

// Beats reports whether a defeats b under the relation for the given option
// count. Unknown or empty choices never win.
func Beats(a, b string, optionCount int) bool {
	table := beatsFive
	if optionCount <= 3 {
		table = beatsThree
	}
	for _, losing := range table[a] {
		if losing == b {
			return true
		}
	}
	return false
}
