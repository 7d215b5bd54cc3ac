package room

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"rpsarena/internal/game"
	"rpsarena/pkg/protocol"
)

func newGameTestRoom(t *testing.T, v Variant) (*Room, *recordRegistry) {
	t.Helper()
	return newConfiguredRoom(t, GameConfig{Variant: v})
}

func newConfiguredRoom(t *testing.T, cfg GameConfig) (*Room, *recordRegistry) {
	t.Helper()
	reg := &recordRegistry{}
	r := NewGame(context.Background(), "arena", reg, zap.NewNop(), cfg)
	t.Cleanup(func() { r.Post(CloseRoom{}) })
	return r, reg
}

func ready(t *testing.T, r *Room, c *fakeClient) {
	t.Helper()
	r.Post(FromClient{C: c, P: protocol.Payload{Type: protocol.TypeReady}})
	waitFor(t, "ready flag", func() bool { return r.Snapshot().Ready[c.id] })
}

// fireTimer short-circuits the live countdown of the given kind. Reading
// the generation through a snapshot orders the fire after everything
// already posted.
func fireTimer(r *Room, kind protocol.TimerKind) {
	r.Post(timerFired{kind: kind, gen: r.Snapshot().TimerGens[kind]})
}

func startSession(t *testing.T, r *Room, clients ...*fakeClient) {
	t.Helper()
	for _, c := range clients {
		ready(t, r, c)
	}
	fireTimer(r, protocol.TimerReady)
	waitFor(t, "session to start", func() bool {
		return r.Snapshot().Phase != string(game.PhaseReady)
	})
}

func pick(r *Room, c *fakeClient, choice string) {
	r.Post(FromClient{C: c, P: protocol.Payload{Type: protocol.TypePick, Choice: choice}})
}

func TestGameRoom_ReadyCheckStartsWithTwo(t *testing.T) {
	r, _ := newGameTestRoom(t, PointsVariant{})
	a := newFakeClient(1, "ada")
	b := newFakeClient(2, "ben")
	join(t, r, a)
	join(t, r, b)

	startSession(t, r, a, b)

	view := r.Snapshot()
	assert.Equal(t, string(game.PhaseChoosing), view.Phase)
	assert.Equal(t, 1, view.Round)
}

func TestGameRoom_ReadyCheckAbortsBelowMinimum(t *testing.T) {
	r, _ := newGameTestRoom(t, PointsVariant{})
	a := newFakeClient(1, "ada")
	b := newFakeClient(2, "ben")
	join(t, r, a)
	join(t, r, b)

	ready(t, r, a)
	fireTimer(r, protocol.TimerReady)

	waitMessage(t, a, "Not enough players ready")
	view := r.Snapshot()
	assert.Equal(t, string(game.PhaseReady), view.Phase)
	assert.False(t, view.Ready[a.id], "abort clears ready flags")
}

func TestGameRoom_ReadyUpTogglesWhenEnabled(t *testing.T) {
	r, _ := newConfiguredRoom(t, GameConfig{Variant: PointsVariant{}, AllowToggleReady: true})
	a := newFakeClient(1, "ada")
	join(t, r, a)

	ready(t, r, a)
	r.Post(FromClient{C: a, P: protocol.Payload{Type: protocol.TypeReady}})
	waitFor(t, "ready flag to clear", func() bool { return !r.Snapshot().Ready[a.id] })

	// with the toggle off, a repeated ready-up stays set
	r2, _ := newGameTestRoom(t, PointsVariant{})
	b := newFakeClient(1, "ben")
	join(t, r2, b)
	ready(t, r2, b)
	r2.Post(FromClient{C: b, P: protocol.Payload{Type: protocol.TypeReady}})
	assert.True(t, r2.Snapshot().Ready[b.id])
}

func TestGameRoom_PickOutsideChoosingRejected(t *testing.T) {
	r, _ := newGameTestRoom(t, PointsVariant{})
	a := newFakeClient(1, "ada")
	join(t, r, a)

	pick(r, a, "r")
	waitMessage(t, a, "not allowed now")
}

func TestGameRoom_RoundResolvesWhenAllPicked(t *testing.T) {
	r, _ := newGameTestRoom(t, PointsVariant{})
	a := newFakeClient(1, "ada")
	b := newFakeClient(2, "ben")
	join(t, r, a)
	join(t, r, b)
	startSession(t, r, a, b)

	pick(r, a, "rock")
	pick(r, b, "scissors")

	waitFor(t, "round to resolve", func() bool { return r.Snapshot().Round == 2 })
	view := r.Snapshot()
	// rock beats scissors both as attacker and defender in a 2-player robin
	assert.Equal(t, 2, view.Points[a.id])
	assert.Zero(t, view.Points[b.id])
}

func TestGameRoom_StaleRoundTimerFireIgnored(t *testing.T) {
	r, _ := newGameTestRoom(t, PointsVariant{})
	a := newFakeClient(1, "ada")
	b := newFakeClient(2, "ben")
	join(t, r, a)
	join(t, r, b)
	startSession(t, r, a, b)

	// capture the round-one generation, standing in for a countdown that
	// expired in flight while the final pick resolved the round
	stale := r.Snapshot().TimerGens[protocol.TimerRound]
	pick(r, a, "rock")
	pick(r, b, "scissors")
	waitFor(t, "round two", func() bool { return r.Snapshot().Round == 2 })

	r.Post(timerFired{kind: protocol.TimerRound, gen: stale})

	// the stale expiry must not end round two
	view := r.Snapshot()
	assert.Equal(t, 2, view.Round)
	assert.Equal(t, 1, a.count(func(p protocol.Payload) bool { return p.Type == protocol.TypeRoundEnd }))
}

func TestGameRoom_StaleTimerFireAfterSessionEndIgnored(t *testing.T) {
	r, _ := newGameTestRoom(t, PointsVariant{})
	a := newFakeClient(1, "ada")
	b := newFakeClient(2, "ben")
	join(t, r, a)
	join(t, r, b)
	startSession(t, r, a, b)

	stale := r.Snapshot().TimerGens[protocol.TimerRound]
	for round := 1; round <= pointsRounds; round++ {
		pick(r, a, "rock")
		pick(r, b, "scissors")
		if round < pointsRounds {
			waitFor(t, "next round", func() bool { return r.Snapshot().Round == round+1 })
		}
	}
	waitFor(t, "session to end", func() bool {
		return r.Snapshot().Phase == string(game.PhaseReady)
	})

	r.Post(timerFired{kind: protocol.TimerRound, gen: stale})

	// a dead session's countdown must not restart the round machinery
	view := r.Snapshot()
	assert.Equal(t, string(game.PhaseReady), view.Phase)
	assert.Zero(t, view.Round)
}

func TestGameRoom_ThreeWayCycleAwardsEveryoneOnce(t *testing.T) {
	r, _ := newGameTestRoom(t, PointsVariant{})
	a := newFakeClient(1, "ada")
	b := newFakeClient(2, "ben")
	c := newFakeClient(3, "cyd")
	join(t, r, a)
	join(t, r, b)
	join(t, r, c)
	startSession(t, r, a, b, c)

	// a cycle: every matchup has a winner and every player lands one win
	pick(r, a, "rock")
	pick(r, b, "scissors")
	pick(r, c, "paper")

	waitFor(t, "round to resolve", func() bool { return r.Snapshot().Round == 2 })
	view := r.Snapshot()
	total := view.Points[a.id] + view.Points[b.id] + view.Points[c.id]
	assert.Equal(t, 3, total)
	for _, id := range []int64{a.id, b.id, c.id} {
		assert.Equal(t, 1, view.Points[id])
	}
}

func TestGameRoom_SessionEndsAfterFixedRoundsAndResets(t *testing.T) {
	r, _ := newGameTestRoom(t, PointsVariant{})
	a := newFakeClient(1, "ada")
	b := newFakeClient(2, "ben")
	join(t, r, a)
	join(t, r, b)
	startSession(t, r, a, b)

	for round := 1; round <= pointsRounds; round++ {
		pick(r, a, "rock")
		pick(r, b, "scissors")
		if round < pointsRounds {
			waitFor(t, "next round", func() bool { return r.Snapshot().Round == round+1 })
		}
	}

	waitFor(t, "session to end", func() bool {
		return r.Snapshot().Phase == string(game.PhaseReady)
	})
	waitMessage(t, a, "is the winner")

	view := r.Snapshot()
	assert.Zero(t, view.Round)
	assert.Zero(t, view.Points[a.id], "points reset between sessions")
	assert.False(t, view.Ready[a.id])
	assert.False(t, view.Ready[b.id])
	// nobody was disconnected by the session ending
	assert.Equal(t, 2, view.NumMembers)
}

func TestGameRoom_InvalidChoiceRejected(t *testing.T) {
	r, _ := newGameTestRoom(t, PointsVariant{})
	a := newFakeClient(1, "ada")
	b := newFakeClient(2, "ben")
	join(t, r, a)
	join(t, r, b)
	startSession(t, r, a, b)

	pick(r, a, "lizard")
	waitMessage(t, a, "Choice must be r, p, or s")

	view := r.Snapshot()
	assert.Equal(t, 1, view.Round, "round must not resolve on a rejected pick")
}

func TestGameRoom_CooldownBlocksRepeatPick(t *testing.T) {
	r, _ := newGameTestRoom(t, PointsVariant{})
	a := newFakeClient(1, "ada")
	b := newFakeClient(2, "ben")
	join(t, r, a)
	join(t, r, b)

	// creator enables the cooldown rule before the session
	r.Post(FromClient{C: a, P: protocol.Payload{Type: protocol.TypeSettings, OptionCount: 3, CooldownEnabled: true}})
	waitMessage(t, a, "settings updated")

	startSession(t, r, a, b)

	pick(r, a, "rock")
	pick(r, b, "scissors")
	waitFor(t, "round two", func() bool { return r.Snapshot().Round == 2 })

	pick(r, a, "rock")
	waitMessage(t, a, "cooldown")
	assert.Equal(t, 2, r.Snapshot().Round)
}

func TestGameRoom_SettingsCreatorOnly(t *testing.T) {
	r, _ := newGameTestRoom(t, PointsVariant{})
	a := newFakeClient(1, "ada")
	b := newFakeClient(2, "ben")
	join(t, r, a)
	join(t, r, b)

	require.Equal(t, a.id, r.Snapshot().CreatorID, "first member becomes creator")

	r.Post(FromClient{C: b, P: protocol.Payload{Type: protocol.TypeSettings, OptionCount: 5}})
	waitMessage(t, b, "Only the room creator")

	r.Post(FromClient{C: a, P: protocol.Payload{Type: protocol.TypeSettings, OptionCount: 9}})
	waitFor(t, "clamped settings broadcast", func() bool {
		p, ok := a.find(func(p protocol.Payload) bool { return p.Type == protocol.TypeSettings })
		return ok && p.OptionCount == 5
	})
}

func TestGameRoom_ExtendedOptionsAcceptLizardSpock(t *testing.T) {
	r, _ := newGameTestRoom(t, PointsVariant{})
	a := newFakeClient(1, "ada")
	b := newFakeClient(2, "ben")
	join(t, r, a)
	join(t, r, b)

	r.Post(FromClient{C: a, P: protocol.Payload{Type: protocol.TypeSettings, OptionCount: 5}})
	waitMessage(t, a, "settings updated")
	startSession(t, r, a, b)

	// spock smashes scissors
	pick(r, a, "spock")
	pick(r, b, "scissors")
	waitFor(t, "round to resolve", func() bool { return r.Snapshot().Round == 2 })
	assert.Equal(t, 2, r.Snapshot().Points[a.id])
}

func TestGameRoom_MidGameJoinerSpectates(t *testing.T) {
	r, _ := newGameTestRoom(t, PointsVariant{})
	a := newFakeClient(1, "ada")
	b := newFakeClient(2, "ben")
	join(t, r, a)
	join(t, r, b)
	startSession(t, r, a, b)

	late := newFakeClient(3, "lea")
	join(t, r, late)

	view := r.Snapshot()
	assert.True(t, view.Spectators[late.id])

	// the spectator cannot pick and cannot chat mid-game
	pick(r, late, "rock")
	waitMessage(t, late, "must be marked 'ready'")
	r.Post(FromClient{C: late, P: protocol.Payload{Type: protocol.TypeMessage, Message: "go ada"}})
	waitMessage(t, late, "Spectators cannot send messages")
}

func TestGameRoom_SpectatorReadyRejoinsAsPlayer(t *testing.T) {
	r, _ := newGameTestRoom(t, PointsVariant{})
	a := newFakeClient(1, "ada")
	b := newFakeClient(2, "ben")
	join(t, r, a)
	join(t, r, b)

	r.Post(FromClient{C: b, P: protocol.Payload{Type: protocol.TypePlayerState, Spectator: true}})
	waitFor(t, "spectator flag", func() bool { return r.Snapshot().Spectators[b.id] })

	ready(t, r, b)
	assert.False(t, r.Snapshot().Spectators[b.id])
}

func TestGameRoom_ChatPickInterceptedDuringChoosing(t *testing.T) {
	r, _ := newGameTestRoom(t, PointsVariant{})
	a := newFakeClient(1, "ada")
	b := newFakeClient(2, "ben")
	join(t, r, a)
	join(t, r, b)
	startSession(t, r, a, b)

	r.Post(FromClient{C: a, P: protocol.Payload{Type: protocol.TypeMessage, Message: "pick rock"}})
	r.Post(FromClient{C: b, P: protocol.Payload{Type: protocol.TypeMessage, Message: "s"}})

	waitFor(t, "intercepted picks to resolve the round", func() bool {
		return r.Snapshot().Round == 2
	})
	// neither shorthand leaked into chat
	_, leaked := b.find(func(p protocol.Payload) bool {
		return p.Type == protocol.TypeMessage && p.ClientID == a.id && p.Message == "pick rock"
	})
	assert.False(t, leaked)
}

func TestGameRoom_AwayMemberLeftOutOfRound(t *testing.T) {
	r, _ := newGameTestRoom(t, PointsVariant{})
	a := newFakeClient(1, "ada")
	b := newFakeClient(2, "ben")
	c := newFakeClient(3, "cyd")
	join(t, r, a)
	join(t, r, b)
	join(t, r, c)
	startSession(t, r, a, b, c)

	r.Post(FromClient{C: c, P: protocol.Payload{Type: protocol.TypePlayerState, Away: true}})
	waitMessage(t, a, "is away")

	// only the two present members need to pick
	pick(r, a, "rock")
	pick(r, b, "scissors")
	waitFor(t, "round to resolve without the away member", func() bool {
		return r.Snapshot().Round == 2
	})

	pick(r, c, "paper")
	waitMessage(t, c, "marked away and cannot pick")
}

func TestGameRoom_LeaverMidRoundLetsRoundResolve(t *testing.T) {
	r, _ := newGameTestRoom(t, PointsVariant{})
	a := newFakeClient(1, "ada")
	b := newFakeClient(2, "ben")
	c := newFakeClient(3, "cyd")
	join(t, r, a)
	join(t, r, b)
	join(t, r, c)
	startSession(t, r, a, b, c)

	pick(r, a, "rock")
	pick(r, b, "scissors")
	// the only member without a pick drops; the round must close
	r.Post(ClientGone{C: c})

	waitFor(t, "round to resolve after the leaver", func() bool {
		return r.Snapshot().Round == 2
	})
	assert.Equal(t, 2, r.Snapshot().NumMembers)
}

func TestGameRoom_LastLeaverEndsSession(t *testing.T) {
	r, reg := newGameTestRoom(t, PointsVariant{})
	a := newFakeClient(1, "ada")
	b := newFakeClient(2, "ben")
	join(t, r, a)
	join(t, r, b)
	startSession(t, r, a, b)

	r.Post(ClientGone{C: a})
	r.Post(ClientGone{C: b})

	waitFor(t, "empty room to deregister", func() bool {
		removed := reg.removedRooms()
		return len(removed) == 1 && removed[0] == "arena"
	})
}

func TestGameRoom_ScoreboardOnDemand(t *testing.T) {
	r, _ := newGameTestRoom(t, PointsVariant{})
	a := newFakeClient(1, "ada")
	b := newFakeClient(2, "ben")
	join(t, r, a)
	join(t, r, b)
	startSession(t, r, a, b)

	pick(r, a, "rock")
	pick(r, b, "scissors")
	waitFor(t, "round two", func() bool { return r.Snapshot().Round == 2 })

	r.Post(FromClient{C: b, P: protocol.Payload{Type: protocol.TypeScoreboard}})
	waitFor(t, "scoreboard broadcast", func() bool {
		p, ok := b.find(func(p protocol.Payload) bool { return p.Type == protocol.TypeScoreboard })
		return ok && strings.Contains(p.Message, "ada#1 : 2")
	})
}

func TestTurnVariant_OutOfTurnRejected(t *testing.T) {
	r, _ := newGameTestRoom(t, TurnVariant{})
	a := newFakeClient(1, "ada")
	b := newFakeClient(2, "ben")
	join(t, r, a)
	join(t, r, b)
	startSession(t, r, a, b)

	view := r.Snapshot()
	require.Equal(t, string(game.PhaseInProgress), view.Phase)

	// whoever is not on turn gets told to wait
	waitFor(t, "a turn announcement", func() bool {
		_, ok := a.find(func(p protocol.Payload) bool {
			return p.Type == protocol.TypeGameEvent && strings.Contains(p.Message, "turn")
		})
		return ok
	})
	p, _ := a.find(func(p protocol.Payload) bool {
		return p.Type == protocol.TypeGameEvent && strings.Contains(p.Message, "turn")
	})
	offTurn := a
	if strings.Contains(p.Message, a.DisplayName()) {
		offTurn = b
	}
	r.Post(FromClient{C: offTurn, P: protocol.Payload{Type: protocol.TypeTurn}})
	waitMessage(t, offTurn, "isn't your turn")
}

func TestTurnVariant_ActingTwiceInARoundRejected(t *testing.T) {
	r, _ := newGameTestRoom(t, TurnVariant{})
	a := newFakeClient(1, "ada")
	b := newFakeClient(2, "ben")
	join(t, r, a)
	join(t, r, b)
	startSession(t, r, a, b)

	var announce protocol.Payload
	waitFor(t, "a turn announcement", func() bool {
		p, ok := a.find(func(p protocol.Payload) bool {
			return p.Type == protocol.TypeGameEvent && strings.Contains(p.Message, "turn")
		})
		announce = p
		return ok
	})
	onTurn := b
	if strings.Contains(announce.Message, a.DisplayName()) {
		onTurn = a
	}

	r.Post(FromClient{C: onTurn, P: protocol.Payload{Type: protocol.TypeTurn}})
	r.Post(FromClient{C: onTurn, P: protocol.Payload{Type: protocol.TypeTurn}})
	waitMessage(t, onTurn, "already taken your turn")
}

func TestTurnVariant_MissedTurnsEliminate(t *testing.T) {
	r, _ := newGameTestRoom(t, TurnVariant{})
	a := newFakeClient(1, "ada")
	b := newFakeClient(2, "ben")
	join(t, r, a)
	join(t, r, b)
	startSession(t, r, a, b)

	// neither member acts; expire both turn timers to close the round
	fireTimer(r, protocol.TimerTurn)
	fireTimer(r, protocol.TimerTurn)

	waitFor(t, "session to wind down", func() bool {
		return r.Snapshot().Phase == string(game.PhaseReady)
	})
	waitMessage(t, a, "No players remaining")
	view := r.Snapshot()
	assert.False(t, view.Eliminated[a.id], "elimination resets with the session")
	assert.False(t, view.Eliminated[b.id])
}
