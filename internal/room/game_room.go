package room

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"strings"

	"go.uber.org/zap"

	"rpsarena/internal/game"
	"rpsarena/internal/timer"
	"rpsarena/pkg/protocol"
)

const (
	// minimum ready players for a session to start
	minimumToStart = 2

	readyCheckSeconds = 30
	roundSeconds      = 30
	turnSeconds       = 30

	// the points variant plays a fixed number of rounds
	pointsRounds = 3
)

// ActionKey gates a gameplay payload on the phase it is valid in.
type ActionKey struct {
	Phase game.Phase
	Type  protocol.Type
}

// Action processes a phase-gated gameplay payload for a room member.
type Action func(r *Room, m *member, p protocol.Payload)

// Variant is one game mode's lifecycle. The room invokes it from its own
// goroutine only, so implementations hold no locks and no state of their own
// beyond configuration.
type Variant interface {
	Name() string
	// StartPhase is the phase entered when the ready check passes.
	StartPhase() game.Phase
	// Actions contributes this variant's phase-gated payload handlers.
	Actions() map[ActionKey]Action
	// RoundStart arms whatever drives the round (round timer or first turn).
	RoundStart(r *Room)
	// RoundEnd resolves the finished round and reports whether the session
	// is over.
	RoundEnd(r *Room) bool
	// Winners picks the session winners once it is over.
	Winners(r *Room) []game.Standing
}

// GameConfig is the game-room tuning chosen at process start; the hub hands
// the same config to every room it creates.
type GameConfig struct {
	Variant Variant
	// AllowToggleReady makes a ready-up during READY toggle instead of set.
	AllowToggleReady bool
	// ReshuffleEachSession reshuffles the turn order at every session start
	// instead of keeping the first shuffle.
	ReshuffleEachSession bool
}

// gameState is the per-room state machine. Only the room goroutine touches
// it.
type gameState struct {
	v     Variant
	phase game.Phase
	round int

	turnOrder   []int64
	currentTurn int64

	creatorID       int64
	optionCount     int
	cooldownEnabled bool

	allowToggleReady     bool
	reshuffleEachSession bool

	readyTimer *timer.Countdown
	roundTimer *timer.Countdown
	turnTimer  *timer.Countdown

	// timerGen is bumped whenever a countdown of that kind is armed or
	// cancelled; a fire or tick stamped with an older generation is stale
	// and is dropped instead of acting on state it no longer owns.
	timerGen map[protocol.TimerKind]uint64

	actions map[ActionKey]Action
}

func newGameState(cfg GameConfig) *gameState {
	gs := &gameState{
		v:                    cfg.Variant,
		phase:                game.PhaseReady,
		currentTurn:          protocol.DefaultClientID,
		creatorID:            protocol.DefaultClientID,
		optionCount:          3,
		allowToggleReady:     cfg.AllowToggleReady,
		reshuffleEachSession: cfg.ReshuffleEachSession,
		timerGen:             make(map[protocol.TimerKind]uint64),
		actions:              make(map[ActionKey]Action),
	}
	gs.actions[ActionKey{game.PhaseReady, protocol.TypeReady}] = (*Room).actReady
	for k, fn := range cfg.Variant.Actions() {
		gs.actions[k] = fn
	}
	return gs
}

// armGen invalidates any outstanding fire of this kind and returns the
// generation the new countdown stamps its messages with.
func (gs *gameState) armGen(kind protocol.TimerKind) uint64 {
	gs.timerGen[kind]++
	return gs.timerGen[kind]
}

func (gs *gameState) stopTimers() {
	if gs.readyTimer != nil {
		gs.readyTimer.Cancel()
		gs.readyTimer = nil
		gs.timerGen[protocol.TimerReady]++
	}
	if gs.roundTimer != nil {
		gs.roundTimer.Cancel()
		gs.roundTimer = nil
		gs.timerGen[protocol.TimerRound]++
	}
	if gs.turnTimer != nil {
		gs.turnTimer.Cancel()
		gs.turnTimer = nil
		gs.timerGen[protocol.TimerTurn]++
	}
}

// handleGamePayload routes game payloads. Guard violations are typed
// conditions: they send a clarifying message to the offender only, and the
// room and connection are never affected.
func (r *Room) handleGamePayload(c Client, p protocol.Payload) {
	if r.game == nil {
		r.sendTo(c, serverMessage("You must be in a game room to do that"))
		return
	}
	m, ok := r.members[c.ID()]
	if !ok {
		r.reportGuard(c, game.ErrNotInRoom)
		return
	}
	switch p.Type {
	case protocol.TypeSettings:
		r.handleSettings(m, p)
	case protocol.TypePlayerState:
		r.handlePlayerState(m, p)
	case protocol.TypeScoreboard:
		r.handleScoreboard()
	default:
		act, ok := r.game.actions[ActionKey{r.game.phase, p.Type}]
		if !ok {
			r.reportGuard(c, game.ErrWrongPhase)
			return
		}
		act(r, m, p)
	}
}

// actGuard reports why a member may not take a gameplay action right now.
func actGuard(m *member) error {
	switch {
	case !m.ready:
		return game.ErrNotReady
	case m.eliminated:
		return game.ErrEliminated
	case m.away:
		return game.ErrAway
	case m.spectator:
		return game.ErrSpectator
	}
	return nil
}

// reportGuard maps a guard condition to the clarifying message sent to the
// offending client. Nothing here is broadcast.
func (r *Room) reportGuard(c Client, err error) {
	var text string
	switch {
	case errors.Is(err, game.ErrWrongPhase):
		text = fmt.Sprintf("Current phase is %s, that action is not allowed now", r.game.phase)
	case errors.Is(err, game.ErrNotInRoom):
		text = "You aren't in this room"
	case errors.Is(err, game.ErrNotReady):
		text = "You must be marked 'ready' to do this action"
	case errors.Is(err, game.ErrEliminated):
		text = "You are eliminated and cannot pick"
	case errors.Is(err, game.ErrAway):
		text = "You are marked away and cannot pick"
	case errors.Is(err, game.ErrSpectator):
		text = "Spectators cannot pick"
	case errors.Is(err, game.ErrAlreadyActed):
		text = "You have already taken your turn this round"
	case errors.Is(err, game.ErrNotCreator):
		text = "Only the room creator can change game settings"
	default:
		text = "That action is not allowed"
	}
	r.sendTo(c, serverMessage(text))
}

// interceptGameMessage treats raw picks typed into chat during CHOOSING
// ("r", "pick p", "/pick rock") as picks instead of broadcasting them.
// Spectators cannot chat outside the READY phase at all.
func (r *Room) interceptGameMessage(c Client, text string) bool {
	gs := r.game
	m, ok := r.members[c.ID()]
	if !ok {
		return false
	}
	if m.spectator && gs.phase != game.PhaseReady {
		r.sendTo(c, serverMessage("Spectators cannot send messages during the game"))
		return true
	}
	if gs.phase != game.PhaseChoosing {
		return false
	}
	t := strings.ToLower(strings.TrimSpace(text))
	t = strings.TrimPrefix(t, "/")
	if rest, found := strings.CutPrefix(t, "pick"); found {
		t = strings.TrimSpace(rest)
	}
	if t == "" {
		return false
	}
	for _, opt := range game.OptionSet(gs.optionCount) {
		if t == opt || game.Normalize(t) == opt {
			r.actPick(m, protocol.Payload{Type: protocol.TypePick, Choice: t})
			return true
		}
	}
	return false
}

// ready check

func (r *Room) actReady(m *member, _ protocol.Payload) {
	gs := r.game
	// a spectator readying up during READY becomes a player again
	if m.spectator {
		m.spectator = false
		r.broadcastPlayerState(m)
		r.gameEvent(fmt.Sprintf("%s is now a player", m.client.DisplayName()))
	}
	if gs.allowToggleReady {
		m.ready = !m.ready
	} else {
		m.ready = true
	}
	r.startReadyTimer(false)
	r.broadcastReadyStatus(m.client.ID(), m.ready)
}

func (r *Room) startReadyTimer(restart bool) {
	gs := r.game
	if restart && gs.readyTimer != nil {
		gs.readyTimer.Cancel()
		gs.readyTimer = nil
	}
	if gs.readyTimer != nil {
		return
	}
	gen := gs.armGen(protocol.TimerReady)
	gs.readyTimer = timer.New(readyCheckSeconds,
		func(remaining int) { r.Post(timerTick{kind: protocol.TimerReady, gen: gen, remaining: remaining}) },
		func() { r.Post(timerFired{kind: protocol.TimerReady, gen: gen}) },
	)
}

func (r *Room) onTimerFired(kind protocol.TimerKind, gen uint64) {
	if r.game == nil || !r.running {
		return
	}
	if gen != r.game.timerGen[kind] {
		r.log.Info("dropping stale timer fire", zap.String("kind", string(kind)))
		return
	}
	switch kind {
	case protocol.TimerReady:
		r.game.readyTimer = nil
		r.checkReadyStatus()
	case protocol.TimerRound:
		r.game.roundTimer = nil
		r.roundEnd()
	case protocol.TimerTurn:
		r.game.turnTimer = nil
		r.turnEnd()
	}
}

// checkReadyStatus starts the session when enough members are ready,
// otherwise aborts back toward READY.
func (r *Room) checkReadyStatus() {
	numReady := 0
	for _, m := range r.members {
		if m.ready {
			numReady++
		}
	}
	if numReady >= minimumToStart {
		r.sessionStart()
	} else {
		r.relay(nil, "Not enough players ready, session aborted")
		r.sessionEnd()
	}
}

// session lifecycle

func (r *Room) sessionStart() {
	gs := r.game
	r.log.Info("session starting", zap.String("variant", gs.v.Name()))
	r.stopTimer(&gs.readyTimer, protocol.TimerReady)
	gs.currentTurn = protocol.DefaultClientID
	gs.round = 0
	r.setTurnOrder()
	r.changePhase(gs.v.StartPhase())
	r.roundStart()
}

func (r *Room) roundStart() {
	gs := r.game
	gs.round++
	for _, m := range r.members {
		m.choice = ""
		m.tookTurn = false
	}
	r.broadcast(protocol.Payload{Type: protocol.TypeResetTurn})
	r.broadcast(protocol.Payload{Type: protocol.TypeRoundStart, Message: fmt.Sprintf("%d", gs.round)})
	r.gameEvent(fmt.Sprintf("Round %d has started", gs.round))
	gs.v.RoundStart(r)
}

func (r *Room) roundEnd() {
	gs := r.game
	r.stopTimer(&gs.roundTimer, protocol.TimerRound)
	r.stopTimer(&gs.turnTimer, protocol.TimerTurn)
	over := gs.v.RoundEnd(r)
	r.broadcast(protocol.Payload{Type: protocol.TypeRoundEnd, Message: fmt.Sprintf("%d", gs.round)})
	if over {
		r.sessionEnd()
	} else {
		r.roundStart()
	}
}

// sessionEnd announces winners, broadcasts the scoreboard, resets all
// per-session state, and returns to READY. Members are not disconnected.
func (r *Room) sessionEnd() {
	gs := r.game
	gs.stopTimers()
	started := gs.round > 0
	gs.turnOrder = nil
	gs.currentTurn = protocol.DefaultClientID

	if started {
		winners := gs.v.Winners(r)
		switch {
		case len(winners) == 1:
			r.relay(nil, fmt.Sprintf("%s is the winner with %d points!", winners[0].Name, winners[0].Points))
		case len(winners) > 1:
			names := make([]string, len(winners))
			for i, w := range winners {
				names[i] = w.Name
			}
			r.relay(nil, fmt.Sprintf("Tie! Winners: %s with %d points each",
				strings.Join(names, ", "), winners[0].Points))
		default:
			r.relay(nil, "No players remaining")
		}
		r.handleScoreboard()
	}

	for _, m := range r.members {
		m.points = 0
		m.eliminated = false
		m.choice = ""
		m.lastChoice = ""
		m.tookTurn = false
		m.ready = false
	}
	r.broadcast(protocol.Payload{Type: protocol.TypeResetReady})
	r.broadcast(protocol.Payload{Type: protocol.TypeResetTurn})
	for id := range r.members {
		r.broadcast(protocol.Payload{Type: protocol.TypePoints, ClientID: id, Points: 0})
	}
	gs.round = 0
	r.changePhase(game.PhaseReady)
}

// changePhase is the only phase transition point; a real change is always
// broadcast.
func (r *Room) changePhase(p game.Phase) {
	gs := r.game
	if gs.phase == p {
		return
	}
	gs.phase = p
	r.broadcast(protocol.Payload{Type: protocol.TypePhase, Message: string(p)})
}

// stopTimer cancels a countdown, invalidates any fire of it already in the
// inbox, and tells clients the countdown is cleared.
func (r *Room) stopTimer(t **timer.Countdown, kind protocol.TimerKind) {
	if *t == nil {
		return
	}
	(*t).Cancel()
	*t = nil
	r.game.timerGen[kind]++
	r.broadcast(protocol.Payload{Type: protocol.TypeTimer, TimerKind: kind, Remaining: -1})
}

// turn order

func (r *Room) setTurnOrder() {
	gs := r.game
	if len(gs.turnOrder) > 0 && !gs.reshuffleEachSession {
		return
	}
	gs.turnOrder = gs.turnOrder[:0]
	for id, m := range r.members {
		if m.eligible() {
			gs.turnOrder = append(gs.turnOrder, id)
		}
	}
	// map iteration is already unordered, but shuffle explicitly so the
	// reshuffle setting has a defined meaning
	sort.Slice(gs.turnOrder, func(i, j int) bool { return gs.turnOrder[i] < gs.turnOrder[j] })
	rand.Shuffle(len(gs.turnOrder), func(i, j int) {
		gs.turnOrder[i], gs.turnOrder[j] = gs.turnOrder[j], gs.turnOrder[i]
	})
}

// orderedEligible returns the eligible members in turn order.
func (r *Room) orderedEligible() []*member {
	var out []*member
	for _, id := range r.game.turnOrder {
		if m, ok := r.members[id]; ok && m.eligible() {
			out = append(out, m)
		}
	}
	return out
}

// allEligibleChose reports whether every eligible member has a choice in.
// Vacuously false when nobody is eligible, so an all-spectator room cannot
// resolve rounds.
func (r *Room) allEligibleChose() bool {
	count := 0
	for _, m := range r.members {
		if !m.eligible() {
			continue
		}
		count++
		if m.choice == "" {
			return false
		}
	}
	return count > 0
}

// picks

func (r *Room) actPick(m *member, p protocol.Payload) {
	gs := r.game
	if err := actGuard(m); err != nil {
		r.reportGuard(m.client, err)
		return
	}
	choice, err := game.ValidateChoice(p.Choice, gs.optionCount, gs.cooldownEnabled, m.lastChoice)
	if err != nil {
		switch {
		case gs.cooldownEnabled && errors.Is(err, game.ErrChoiceOnCooldown):
			r.sendTo(m.client, serverMessage("That choice is on cooldown for you"))
		case gs.optionCount == 3:
			r.sendTo(m.client, serverMessage("Choice must be r, p, or s"))
		default:
			r.sendTo(m.client, serverMessage("Invalid choice for current game options"))
		}
		return
	}
	m.choice = choice
	m.lastChoice = choice
	m.tookTurn = true
	r.broadcastTurnStatus(m.client.ID(), true, false)
	r.gameEvent(fmt.Sprintf("%s locked in a pick", m.client.DisplayName()))
	if r.allEligibleChose() {
		r.roundEnd()
	}
}

// legacy turn-based action

func (r *Room) actTurn(m *member, _ protocol.Payload) {
	if err := actGuard(m); err != nil {
		r.reportGuard(m.client, err)
		return
	}
	if m.tookTurn {
		r.reportGuard(m.client, game.ErrAlreadyActed)
		return
	}
	if m.client.ID() != r.game.currentTurn {
		r.sendTo(m.client, serverMessage("It isn't your turn"))
		return
	}
	points := 0
	if rand.Intn(4) == 3 {
		points = 1
	}
	if points > 0 {
		m.points += points
		r.gameEvent(fmt.Sprintf("%s gained a point", m.client.DisplayName()))
		r.broadcast(protocol.Payload{Type: protocol.TypePoints, ClientID: m.client.ID(), Points: m.points})
	} else {
		r.gameEvent(fmt.Sprintf("%s didn't gain a point", m.client.DisplayName()))
	}
	m.tookTurn = true
	r.broadcastTurnStatus(m.client.ID(), true, false)
	r.turnEnd()
}

func (r *Room) turnStart() {
	gs := r.game
	r.stopTimer(&gs.turnTimer, protocol.TimerTurn)
	next, ok := r.nextInTurnOrder()
	if !ok {
		r.log.Warn("no players left in turn order")
		return
	}
	gs.currentTurn = next.client.ID()
	r.gameEvent(fmt.Sprintf("It's %s's turn", next.client.DisplayName()))
	gen := gs.armGen(protocol.TimerTurn)
	gs.turnTimer = timer.New(turnSeconds,
		func(remaining int) { r.Post(timerTick{kind: protocol.TimerTurn, gen: gen, remaining: remaining}) },
		func() { r.Post(timerFired{kind: protocol.TimerTurn, gen: gen}) },
	)
}

func (r *Room) turnEnd() {
	gs := r.game
	r.stopTimer(&gs.turnTimer, protocol.TimerTurn)
	if r.isLastInTurnOrder(gs.currentTurn) {
		r.roundEnd()
	} else {
		r.turnStart()
	}
}

func (r *Room) nextInTurnOrder() (*member, bool) {
	gs := r.game
	order := gs.turnOrder
	if len(order) == 0 {
		return nil, false
	}
	start := 0
	if gs.currentTurn != protocol.DefaultClientID {
		for i, id := range order {
			if id == gs.currentTurn {
				start = i + 1
				break
			}
		}
	}
	for i := 0; i < len(order); i++ {
		id := order[(start+i)%len(order)]
		if m, ok := r.members[id]; ok && !m.eliminated {
			return m, true
		}
	}
	return nil, false
}

func (r *Room) isLastInTurnOrder(id int64) bool {
	order := r.game.turnOrder
	for i := len(order) - 1; i >= 0; i-- {
		if m, ok := r.members[order[i]]; ok && !m.eliminated {
			return order[i] == id
		}
	}
	return true
}

// settings, player state, scoreboard

func (r *Room) handleSettings(m *member, p protocol.Payload) {
	gs := r.game
	if m.client.ID() != gs.creatorID {
		r.reportGuard(m.client, game.ErrNotCreator)
		return
	}
	gs.optionCount = game.ClampOptionCount(p.OptionCount)
	gs.cooldownEnabled = p.CooldownEnabled
	r.broadcastSettings()
	r.relay(nil, fmt.Sprintf("Game settings updated: options=%d cooldown=%t",
		gs.optionCount, gs.cooldownEnabled))
}

func (r *Room) broadcastSettings() {
	gs := r.game
	r.broadcast(protocol.Payload{
		Type:            protocol.TypeSettings,
		OptionCount:     gs.optionCount,
		CooldownEnabled: gs.cooldownEnabled,
		CreatorID:       gs.creatorID,
	})
}

func (r *Room) handlePlayerState(m *member, p protocol.Payload) {
	prevAway, prevSpectator := m.away, m.spectator
	m.away = p.Away
	m.spectator = p.Spectator
	if prevAway == m.away && prevSpectator == m.spectator {
		return
	}
	r.broadcastPlayerState(m)
	if prevAway != m.away {
		if m.away {
			r.relay(nil, fmt.Sprintf("%s is away", m.client.DisplayName()))
		} else {
			r.relay(nil, fmt.Sprintf("%s is no longer away", m.client.DisplayName()))
		}
	}
	if prevSpectator != m.spectator {
		if m.spectator {
			r.relay(nil, fmt.Sprintf("%s is now a spectator", m.client.DisplayName()))
		} else {
			r.relay(nil, fmt.Sprintf("%s is no longer a spectator", m.client.DisplayName()))
		}
	}
	// stepping out may leave everyone remaining with a pick in
	if r.game.phase == game.PhaseChoosing && r.allEligibleChose() {
		r.roundEnd()
	}
}

func (r *Room) handleScoreboard() {
	standings := r.standings()
	sort.Slice(standings, func(i, j int) bool { return standings[i].Points > standings[j].Points })
	var sb strings.Builder
	sb.WriteString("Scoreboard:\n")
	for _, s := range standings {
		fmt.Fprintf(&sb, "%s : %d\n", s.Name, s.Points)
	}
	r.broadcast(protocol.Payload{Type: protocol.TypeScoreboard, Message: sb.String()})
}

func (r *Room) standings() []game.Standing {
	var out []game.Standing
	for id, m := range r.members {
		if m.spectator {
			continue
		}
		out = append(out, game.Standing{ID: id, Name: m.client.DisplayName(), Points: m.points})
	}
	return out
}

// membership hooks

func (r *Room) onClientAdded(m *member) {
	gs := r.game
	if gs.creatorID == protocol.DefaultClientID {
		gs.creatorID = m.client.ID()
	}
	if gs.phase != game.PhaseReady {
		// joining mid-game makes you a spectator until the next READY phase
		m.spectator = true
		r.gameEvent(fmt.Sprintf("%s is spectating", m.client.DisplayName()))
		r.relay(nil, fmt.Sprintf("%s is spectating", m.client.DisplayName()))
		r.broadcastPlayerState(m)
	}
	r.syncGameState(m)
	if gs.phase == game.PhaseChoosing && r.allEligibleChose() {
		r.roundEnd()
	}
}

// syncGameState pushes the full game snapshot to one (re)joining client.
// Every payload here is idempotent on the client side.
func (r *Room) syncGameState(m *member) {
	gs := r.game
	c := m.client
	if !c.Send(protocol.Payload{
		Type:            protocol.TypeSettings,
		OptionCount:     gs.optionCount,
		CooldownEnabled: gs.cooldownEnabled,
		CreatorID:       gs.creatorID,
	}) {
		r.disconnect(c)
		return
	}
	if !c.Send(protocol.Payload{Type: protocol.TypePhase, Message: string(gs.phase)}) {
		r.disconnect(c)
		return
	}
	for id, other := range r.members {
		if id == c.ID() {
			continue
		}
		if !c.Send(protocol.Payload{Type: protocol.TypeSyncReady, ClientID: id, Flag: other.ready}) {
			r.disconnect(c)
			return
		}
		if gs.phase != game.PhaseReady {
			if !c.Send(protocol.Payload{Type: protocol.TypeSyncTurn, ClientID: id, Flag: other.tookTurn}) {
				r.disconnect(c)
				return
			}
			if !c.Send(protocol.Payload{Type: protocol.TypePoints, ClientID: id, Points: other.points}) {
				r.disconnect(c)
				return
			}
		}
	}
}

func (r *Room) onClientRemoved(c Client) {
	gs := r.game
	for i, id := range gs.turnOrder {
		if id == c.ID() {
			gs.turnOrder = append(gs.turnOrder[:i], gs.turnOrder[i+1:]...)
			break
		}
	}
	if len(r.members) == 0 {
		gs.stopTimers()
		if gs.phase != game.PhaseReady {
			r.sessionEnd()
		}
		return
	}
	if gs.phase == game.PhaseInProgress && c.ID() == gs.currentTurn {
		r.turnStart()
	}
	if gs.phase == game.PhaseChoosing && r.allEligibleChose() {
		r.roundEnd()
	}
}

// broadcast helpers

func (r *Room) broadcastReadyStatus(id int64, ready bool) {
	r.broadcast(protocol.Payload{Type: protocol.TypeReady, ClientID: id, Flag: ready})
}

func (r *Room) broadcastTurnStatus(id int64, took, quiet bool) {
	typ := protocol.TypeTurn
	if quiet {
		typ = protocol.TypeSyncTurn
	}
	r.broadcast(protocol.Payload{Type: typ, ClientID: id, Flag: took})
}

func (r *Room) broadcastPlayerState(m *member) {
	r.broadcast(protocol.Payload{
		Type:       protocol.TypePlayerState,
		ClientID:   m.client.ID(),
		Points:     m.points,
		Eliminated: m.eliminated,
		Away:       m.away,
		Spectator:  m.spectator,
	})
}
