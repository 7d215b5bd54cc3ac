package game

import "fmt"

// Contender is one round participant as seen by the resolver. Choice may be
// empty when the player failed to pick before the round closed.
type Contender struct {
	ID     int64
	Name   string
	Choice string
}

// Battle is a single resolved matchup, reported for the game-event feed.
type Battle struct {
	AttackerID int64
	DefenderID int64
	WinnerID   int64 // DefaultClientID on a tie or an incomplete matchup
	Summary    string
}

// ResolveRound runs the round-robin: contender i attacks contender
// (i+1) mod n. A win awards the winner one point; ties award nothing.
// Matchups where either side has no choice are skipped. Points are returned
// as deltas keyed by contender id.
func ResolveRound(contenders []Contender, optionCount int) (map[int64]int, []Battle) {
	awards := make(map[int64]int)
	var battles []Battle

	n := len(contenders)
	if n <= 1 {
		return awards, battles
	}

	for i := 0; i < n; i++ {
		attacker := contenders[i]
		defender := contenders[(i+1)%n]
		if attacker.Choice == "" || defender.Choice == "" {
			continue
		}

		b := Battle{AttackerID: attacker.ID, DefenderID: defender.ID}
		switch {
		case Beats(attacker.Choice, defender.Choice, optionCount):
			awards[attacker.ID]++
			b.WinnerID = attacker.ID
			b.Summary = fmt.Sprintf("%s (%s) vs %s (%s) -> %s wins",
				attacker.Name, attacker.Choice, defender.Name, defender.Choice, attacker.Name)
		case Beats(defender.Choice, attacker.Choice, optionCount):
			awards[defender.ID]++
			b.WinnerID = defender.ID
			b.Summary = fmt.Sprintf("%s (%s) vs %s (%s) -> %s wins",
				attacker.Name, attacker.Choice, defender.Name, defender.Choice, defender.Name)
		default:
			b.Summary = fmt.Sprintf("%s (%s) vs %s (%s) -> tie",
				attacker.Name, attacker.Choice, defender.Name, defender.Choice)
		}
		battles = append(battles, b)
	}
	return awards, battles
}

// Standing is a scoreboard row.
type Standing struct {
	ID     int64
	Name   string
	Points int
}

// Winners returns every standing tied for the maximum point total. An empty
// input yields no winners.
func Winners(standings []Standing) []Standing {
	if len(standings) == 0 {
		return nil
	}
	max := standings[0].Points
	for _, s := range standings[1:] {
		if s.Points > max {
			max = s.Points
		}
	}
	var out []Standing
	for _, s := range standings {
		if s.Points == max {
			out = append(out, s)
		}
	}
	return out
}
