// internal/match/orchestrator.go
//
// Orchestrator drives the current Match.
//
// Concurrency model:
//   - Run owns the match. Every state change is a closure sent on the inbox
//     and executed by Run, one at a time.
//   - HTTP calls run on worker goroutines; their results come back through
//     the inbox tagged with the generation of the match that started them.
//     Installing a new match bumps the generation, so late results for a
//     replaced match are dropped.
//   - A failed call leaves the boards as they were.
//
// The computer opponent moves exactly once per transition into its turn; an
// outstanding move blocks any other until it resolves.

package match

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/hyacinthwings/mastermind/internal/game"
	"github.com/hyacinthwings/mastermind/internal/lobby"
)

// NoticeNoSuggestion is set when the computer could not find a move.
const NoticeNoSuggestion = "the computer has no move to suggest; retry its turn"

// GameAPI is the part of the game service the orchestrator calls.
type GameAPI interface {
	CreateGame(ctx context.Context, slotCount int, secret game.Code) (game.State, error)
	Game(ctx context.Context, id string) (game.State, error)
	Guess(ctx context.Context, id string, guess game.Code) (game.State, error)
	Solution(ctx context.Context, id string) (game.Code, error)
	Suggest(ctx context.Context, id string) (game.Code, error)
}

type Orchestrator struct {
	api       GameAPI
	slotCount int

	inbox   chan func()
	updates chan Snapshot
	done    chan struct{}

	snapMu sync.RWMutex
	last   Snapshot

	// owned by Run
	ctx    context.Context
	match  *Match
	gen    uint64
	notice string
}

func NewOrchestrator(api GameAPI, slotCount int) *Orchestrator {
	if slotCount == 0 {
		slotCount = game.DefaultSlotCount
	}
	return &Orchestrator{
		api:       api,
		slotCount: slotCount,
		inbox:     make(chan func(), 64),
		updates:   make(chan Snapshot, 16),
		done:      make(chan struct{}),
		ctx:       context.Background(),
	}
}

// Run processes events until ctx is done.
func (o *Orchestrator) Run(ctx context.Context) {
	o.ctx = ctx
	defer close(o.done)
	for {
		select {
		case <-ctx.Done():
			return
		case fn := <-o.inbox:
			fn()
		}
	}
}

// Updates delivers a snapshot after every change. Slow readers miss
// intermediate snapshots, never the latest one.
func (o *Orchestrator) Updates() <-chan Snapshot { return o.updates }

// Snapshot returns the latest published state.
func (o *Orchestrator) Snapshot() Snapshot {
	o.snapMu.RLock()
	defer o.snapMu.RUnlock()
	return o.last
}

// post queues fn for Run.
func (o *Orchestrator) post(ctx context.Context, fn func()) error {
	select {
	case o.inbox <- fn:
		return nil
	case <-o.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// exec runs fn on Run and waits for its result.
func (o *Orchestrator) exec(ctx context.Context, fn func() error) error {
	reply := make(chan error, 1)
	if err := o.post(ctx, func() { reply <- fn() }); err != nil {
		return err
	}
	select {
	case err := <-reply:
		return err
	case <-o.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// deliver hands a worker result back to Run. Results are dropped once Run
// has stopped.
func (o *Orchestrator) deliver(fn func()) {
	select {
	case o.inbox <- fn:
	case <-o.done:
	}
}

func (o *Orchestrator) publish() {
	s := o.match.snapshot(o.gen, o.notice)
	o.snapMu.Lock()
	o.last = s
	o.snapMu.Unlock()

	select {
	case o.updates <- s:
	default:
		select {
		case <-o.updates:
		default:
		}
		select {
		case o.updates <- s:
		default:
		}
	}
}

func (o *Orchestrator) install(m *Match) {
	o.gen++
	o.match = m
	o.notice = ""
	o.publish()
}

// ------------------------------ mode selection ------------------------------

// StartSolo replaces the current match with a solo game.
func (o *Orchestrator) StartSolo(ctx context.Context) error {
	st, err := o.api.CreateGame(ctx, o.slotCount, nil)
	if err != nil {
		return err
	}
	return o.exec(ctx, func() error {
		o.install(newSolo(st))
		return nil
	})
}

// SetupVsComputer replaces the current match with a vs-computer match that
// waits for the user's secret.
func (o *Orchestrator) SetupVsComputer(ctx context.Context) error {
	return o.exec(ctx, func() error {
		o.install(&Match{Mode: ModeVsComputer, Phase: PhaseSetup})
		return nil
	})
}

// StartVsComputer creates both boards of a vs-computer match: a random
// secret for the user to crack and opponentSecret for the computer.
func (o *Orchestrator) StartVsComputer(ctx context.Context, opponentSecret game.Code) error {
	if !opponentSecret.Complete(o.slotCount) {
		return fmt.Errorf("%w: secret needs %d colors", ErrInvalidGuess, o.slotCount)
	}
	self, err := o.api.CreateGame(ctx, o.slotCount, nil)
	if err != nil {
		return err
	}
	opp, err := o.api.CreateGame(ctx, o.slotCount, opponentSecret)
	if err != nil {
		return err
	}
	return o.exec(ctx, func() error {
		o.install(newVsComputer(self, opp))
		return nil
	})
}

// AwaitOpponent replaces the current match with a vs-human match in Setup,
// waiting for a pairing with opponent.
func (o *Orchestrator) AwaitOpponent(ctx context.Context, opponent string) error {
	return o.exec(ctx, func() error {
		o.install(newVsHumanSetup(opponent))
		return nil
	})
}

// Pair starts the waiting vs-human match from a confirmed lobby match.
func (o *Orchestrator) Pair(ctx context.Context, lm lobby.Match, me string) error {
	guessing, own := lm.GameIDs(me)
	self, err := o.api.Game(ctx, guessing)
	if err != nil {
		return err
	}
	opp, err := o.api.Game(ctx, own)
	if err != nil {
		return err
	}
	opponent := lm.Opponent(me)
	return o.exec(ctx, func() error {
		m := o.match
		if m == nil || m.Mode != ModeVsHuman || m.Phase != PhaseSetup {
			return ErrNotAwaiting
		}
		if m.OpponentName != "" && !strings.EqualFold(m.OpponentName, opponent) {
			return fmt.Errorf("%w: waiting for %s, paired with %s", ErrNotAwaiting, m.OpponentName, opponent)
		}
		m.OpponentName = opponent
		m.pair(self, opp, lm.MovesFirst(me))
		o.notice = ""
		o.publish()
		return nil
	})
}

// Reset replaces the match with a fresh one of the same mode. A vs-human
// match is discarded.
func (o *Orchestrator) Reset(ctx context.Context) error {
	var mode Mode
	err := o.exec(ctx, func() error {
		if o.match == nil {
			return ErrNoMatch
		}
		mode = o.match.Mode
		if mode == ModeSolo {
			return nil
		}
		if mode == ModeVsComputer {
			o.install(&Match{Mode: ModeVsComputer, Phase: PhaseSetup})
		} else {
			o.install(nil)
		}
		return nil
	})
	if err != nil || mode != ModeSolo {
		return err
	}
	return o.StartSolo(ctx)
}

// -------------------------------- moves -------------------------------------

type submitResult struct {
	attempt game.Attempt
	err     error
}

// Submit sends the user's guess for the self board and waits for the
// scored attempt. Validation failures never reach the network.
func (o *Orchestrator) Submit(ctx context.Context, guess game.Code) (game.Attempt, error) {
	reply := make(chan submitResult, 1)
	if err := o.post(ctx, func() { o.beginSubmit(guess, reply) }); err != nil {
		return game.Attempt{}, err
	}
	select {
	case r := <-reply:
		return r.attempt, r.err
	case <-o.done:
		return game.Attempt{}, ErrStopped
	case <-ctx.Done():
		return game.Attempt{}, ctx.Err()
	}
}

func (o *Orchestrator) beginSubmit(guess game.Code, reply chan<- submitResult) {
	m := o.match
	var err error
	switch {
	case m == nil:
		err = ErrNoMatch
	case m.Phase != PhasePlaying:
		err = ErrNotPlaying
	case m.Mode != ModeSolo && m.Turn != SideUser:
		err = ErrNotYourTurn
	default:
		if err = m.Self.Validate(guess); err == nil {
			err = m.Self.begin()
		}
	}
	if err != nil {
		reply <- submitResult{err: err}
		return
	}
	o.publish()

	gen, id, ctx := o.gen, m.Self.ID(), o.ctx
	guess = guess.Clone()
	go func() {
		st, err := o.api.Guess(ctx, id, guess)
		o.deliver(func() { o.finishSubmit(gen, st, err, reply) })
	}()
}

func (o *Orchestrator) finishSubmit(gen uint64, st game.State, err error, reply chan<- submitResult) {
	if gen != o.gen {
		reply <- submitResult{err: ErrMatchReplaced}
		return
	}
	m := o.match
	if err != nil {
		m.Self.abort()
		o.publish()
		reply <- submitResult{err: err}
		return
	}
	a, err := m.Self.apply(st)
	if err != nil {
		o.publish()
		reply <- submitResult{err: err}
		return
	}
	if !m.Finished() {
		m.rules.userMoved(m)
	}
	o.publish()
	o.triggerOpponent()
	reply <- submitResult{attempt: a}
}

// triggerOpponent starts the computer's move when it is its turn and no
// move is outstanding.
func (o *Orchestrator) triggerOpponent() {
	m := o.match
	if m == nil || m.Mode != ModeVsComputer || m.Phase != PhasePlaying || m.Turn != SideOpponent {
		return
	}
	if err := m.Opponent.begin(); err != nil {
		return
	}
	o.publish()

	gen, id, ctx := o.gen, m.Opponent.ID(), o.ctx
	go func() {
		next, err := o.api.Suggest(ctx, id)
		var st game.State
		if err == nil && next != nil {
			st, err = o.api.Guess(ctx, id, next)
		}
		o.deliver(func() { o.finishOpponent(gen, next, st, err) })
	}()
}

func (o *Orchestrator) finishOpponent(gen uint64, next game.Code, st game.State, err error) {
	if gen != o.gen {
		return
	}
	m := o.match
	switch {
	case err != nil:
		m.Opponent.abort()
		o.notice = "computer move failed: " + err.Error()
		log.Warn().Err(err).Str("gameId", m.Opponent.ID()).Msg("match: computer move")
	case next == nil:
		m.Opponent.abort()
		o.notice = NoticeNoSuggestion
	default:
		if _, err := m.Opponent.apply(st); err != nil {
			o.notice = "computer move failed: " + err.Error()
			break
		}
		o.notice = ""
		m.rules.opponentMoved(m)
	}
	o.publish()
}

// RetryOpponent re-triggers a computer move that failed or found no
// suggestion. It is a no-op while a move is outstanding.
func (o *Orchestrator) RetryOpponent(ctx context.Context) error {
	return o.exec(ctx, func() error {
		m := o.match
		switch {
		case m == nil:
			return ErrNoMatch
		case m.Mode != ModeVsComputer || m.Phase != PhasePlaying:
			return ErrNotPlaying
		case m.Turn != SideOpponent:
			return ErrNotYourTurn
		}
		o.triggerOpponent()
		return nil
	})
}

// RemoteMove applies the remote player's latest state of the game holding
// the user's secret. A state the board already holds is a no-op; an older
// one is rejected with ErrStaleState.
func (o *Orchestrator) RemoteMove(ctx context.Context, st game.State) error {
	return o.exec(ctx, func() error {
		m := o.match
		switch {
		case m == nil:
			return ErrNoMatch
		case m.Mode != ModeVsHuman || m.Phase != PhasePlaying:
			return ErrNotPlaying
		case st.ID != m.Opponent.ID():
			return fmt.Errorf("%w: game %s is not part of this match", ErrNotPlaying, st.ID)
		}
		if len(st.History) == m.Opponent.Attempts() {
			return nil
		}
		if m.Turn != SideOpponent {
			log.Warn().Str("gameId", st.ID).Msg("match: remote move out of turn")
		}
		if _, err := m.Opponent.apply(st); err != nil {
			return err
		}
		m.rules.opponentMoved(m)
		o.publish()
		return nil
	})
}

// Abandon ends the vs-human match against opponent after they left the
// lobby. A match being played is won by the user; one still waiting for the
// pairing ends without a winner. A finished match is left as it is.
func (o *Orchestrator) Abandon(ctx context.Context, opponent, reason string) error {
	return o.exec(ctx, func() error {
		m := o.match
		switch {
		case m == nil:
			return ErrNoMatch
		case m.Mode != ModeVsHuman || !strings.EqualFold(m.OpponentName, opponent):
			return fmt.Errorf("%w: no match against %s", ErrNotPlaying, opponent)
		case m.Finished():
			return nil
		}
		w := WinnerNone
		if m.Phase == PhasePlaying {
			w = WinnerUser
		}
		m.finish(w)
		o.notice = reason
		o.publish()
		return nil
	})
}

// ---------------------------- hint and reveal -------------------------------

func (o *Orchestrator) selfBoard(ctx context.Context) (id string, gen uint64, err error) {
	err = o.exec(ctx, func() error {
		if o.match == nil || o.match.Self == nil {
			return ErrNoMatch
		}
		id, gen = o.match.Self.ID(), o.gen
		return nil
	})
	return id, gen, err
}

// Hint asks the service for a guess consistent with the self board's
// history. It returns (nil, nil) when none is available.
func (o *Orchestrator) Hint(ctx context.Context) (game.Code, error) {
	id, _, err := o.selfBoard(ctx)
	if err != nil {
		return nil, err
	}
	return o.api.Suggest(ctx, id)
}

// Reveal fetches the self board's secret. Boards and histories are left
// untouched; the secret is kept on the snapshot for display.
func (o *Orchestrator) Reveal(ctx context.Context) (game.Code, error) {
	id, gen, err := o.selfBoard(ctx)
	if err != nil {
		return nil, err
	}
	code, err := o.api.Solution(ctx, id)
	if err != nil {
		return nil, err
	}
	err = o.exec(ctx, func() error {
		if gen == o.gen && o.match != nil {
			o.match.Revealed = code.Clone()
			o.publish()
		}
		return nil
	})
	return code, err
}
