package room

import (
	"fmt"

	"rpsarena/internal/game"
	"rpsarena/internal/timer"
	"rpsarena/pkg/protocol"
)

// PointsVariant is the authoritative mode: every eligible member submits one
// pick per round, rounds resolve round-robin, points accumulate over a fixed
// number of rounds, and missed picks simply contribute nothing. Nobody is
// eliminated mid-session.
type PointsVariant struct{}

func (PointsVariant) Name() string { return "points" }

func (PointsVariant) StartPhase() game.Phase { return game.PhaseChoosing }

func (PointsVariant) Actions() map[ActionKey]Action {
	return map[ActionKey]Action{
		{Phase: game.PhaseChoosing, Type: protocol.TypePick}: (*Room).actPick,
	}
}

func (PointsVariant) RoundStart(r *Room) {
	gs := r.game
	gen := gs.armGen(protocol.TimerRound)
	gs.roundTimer = timer.New(roundSeconds,
		func(remaining int) { r.Post(timerTick{kind: protocol.TimerRound, gen: gen, remaining: remaining}) },
		func() { r.Post(timerFired{kind: protocol.TimerRound, gen: gen}) },
	)
}

func (PointsVariant) RoundEnd(r *Room) bool {
	gs := r.game
	var contenders []game.Contender
	for _, m := range r.orderedEligible() {
		contenders = append(contenders, game.Contender{
			ID:     m.client.ID(),
			Name:   m.client.DisplayName(),
			Choice: m.choice,
		})
	}
	awards, battles := game.ResolveRound(contenders, gs.optionCount)
	for _, b := range battles {
		r.gameEvent("Battle: " + b.Summary)
	}
	for id, pts := range awards {
		m, ok := r.members[id]
		if !ok {
			continue
		}
		m.points += pts
		r.broadcast(protocol.Payload{Type: protocol.TypePoints, ClientID: id, Points: m.points})
	}
	return gs.round >= pointsRounds
}

func (PointsVariant) Winners(r *Room) []game.Standing {
	return game.Winners(r.standings())
}

// TurnVariant is the legacy mode: members act one at a time in turn order
// during IN_PROGRESS; a member who never acts by round end is eliminated,
// and the session ends once at most one active member remains.
type TurnVariant struct{}

func (TurnVariant) Name() string { return "turns" }

func (TurnVariant) StartPhase() game.Phase { return game.PhaseInProgress }

func (TurnVariant) Actions() map[ActionKey]Action {
	return map[ActionKey]Action{
		{Phase: game.PhaseInProgress, Type: protocol.TypeTurn}: (*Room).actTurn,
	}
}

func (TurnVariant) RoundStart(r *Room) {
	r.turnStart()
}

func (TurnVariant) RoundEnd(r *Room) bool {
	active := 0
	for _, m := range r.members {
		if m.spectator || m.away || m.eliminated {
			continue
		}
		if !m.tookTurn {
			m.eliminated = true
			r.gameEvent(fmt.Sprintf("%s did not act and is eliminated", m.client.DisplayName()))
			r.broadcastPlayerState(m)
			continue
		}
		active++
	}
	return active <= 1
}

func (TurnVariant) Winners(r *Room) []game.Standing {
	var out []game.Standing
	for id, m := range r.members {
		if m.spectator || m.eliminated {
			continue
		}
		out = append(out, game.Standing{ID: id, Name: m.client.DisplayName(), Points: m.points})
	}
	return out
}
