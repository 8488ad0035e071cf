package app

import (
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"trivia-live-service/internal/domain"
)

// Settings holds the server-owned timing and scoring knobs for a room.
// The question window is server-defined and never trusts client timers.
type Settings struct {
	QuestionWindow time.Duration
	GraceWindow    time.Duration
	MaxPoints      int
	PinAttempts    int
	PinCooldown    time.Duration
}

// DefaultSettings mirrors the config defaults.
func DefaultSettings() Settings {
	return Settings{
		QuestionWindow: 15 * time.Second,
		GraceWindow:    30 * time.Second,
		MaxPoints:      1000,
		PinAttempts:    100,
		PinCooldown:    time.Minute,
	}
}

// Room owns the state of one live session. All mutation flows through a
// single actor goroutine draining the commands channel, so roster, scores
// and the question index see a total order of joins, submits, host commands
// and timer fires without shared locks. Rooms are fully independent of one
// another.
type Room struct {
	pin       string
	quizID    string
	hostID    string
	quiz      domain.Quiz
	createdAt time.Time
	clock     clockwork.Clock
	settings  Settings

	commands chan func()
	stopped  chan struct{}

	// Actor-owned state below; never touched outside the run loop.
	phase           domain.Phase
	currentIndex    int
	deadline        time.Time
	questionStarted time.Time
	roster          *roster
	answers         *answerBook
	questionTimer   clockwork.Timer
	graceTimer      clockwork.Timer
	closed          bool

	subscribers map[chan domain.Event]struct{}

	// onClose releases the PIN back to the registry.
	onClose func(pin string)
	// onFinalize archives the final leaderboard, best effort.
	onFinalize func(lb domain.Leaderboard)
}

func newRoom(pin, quizID, hostID string, quiz domain.Quiz, clock clockwork.Clock, settings Settings, onClose func(string), onFinalize func(domain.Leaderboard)) *Room {
	r := &Room{
		pin:          pin,
		quizID:       quizID,
		hostID:       hostID,
		quiz:         quiz,
		createdAt:    clock.Now(),
		clock:        clock,
		settings:     settings,
		commands:     make(chan func(), 64),
		stopped:      make(chan struct{}),
		phase:        domain.PhaseLobby,
		currentIndex: -1,
		roster:       newRoster(),
		answers:      newAnswerBook(),
		subscribers:  make(map[chan domain.Event]struct{}),
		onClose:      onClose,
		onFinalize:   onFinalize,
	}
	go r.run()
	return r
}

func (r *Room) run() {
	for {
		select {
		case fn := <-r.commands:
			fn()
		case <-r.stopped:
			return
		}
	}
}

// enqueue submits a mutation to the actor without waiting for it.
func (r *Room) enqueue(fn func()) {
	select {
	case r.commands <- fn:
	case <-r.stopped:
	}
}

// do runs fn on the actor goroutine and waits for completion. Commands that
// race with room teardown resolve to ErrRoomNotFound.
func (r *Room) do(fn func() error) error {
	reply := make(chan error, 1)
	select {
	case r.commands <- func() { reply <- fn() }:
	case <-r.stopped:
		return domain.ErrRoomNotFound
	}
	select {
	case err := <-reply:
		return err
	case <-r.stopped:
		return domain.ErrRoomNotFound
	}
}

// PIN returns the room's immutable PIN.
func (r *Room) PIN() string { return r.pin }

// QuizID returns the room's immutable quiz id.
func (r *Room) QuizID() string { return r.quizID }

// HostID returns the stable id of the hosting identity.
func (r *Room) HostID() string { return r.hostID }

// Subscribe registers a listener for the room's broadcast events. The
// cancel func must be called to avoid leaks. Returns false if the room is
// already torn down.
func (r *Room) Subscribe() (<-chan domain.Event, func(), bool) {
	ch := make(chan domain.Event, 32)
	err := r.do(func() error {
		r.subscribers[ch] = struct{}{}
		return nil
	})
	if err != nil {
		return nil, nil, false
	}
	cancel := func() {
		r.enqueue(func() {
			if _, ok := r.subscribers[ch]; ok {
				delete(r.subscribers, ch)
				close(ch)
			}
		})
	}
	return ch, cancel, true
}

func (r *Room) broadcast(ev domain.Event) {
	ev.PIN = r.pin
	for ch := range r.subscribers {
		select {
		case ch <- ev:
		default:
			// Slow subscriber: drop the oldest pending event so the newest
			// always lands. Clients repair via roster reconciliation.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- ev:
			default:
			}
		}
	}
}

// Join adds or refreshes a player. Allowed in every phase before teardown
// so reconnects keep working mid-game; rejoin never resets the score. A
// join carrying the host id re-binds the host and cancels any pending
// grace-window teardown.
func (r *Room) Join(req JoinRequest) (snapshot []domain.RosterEntry, err error) {
	err = r.do(func() error {
		if r.phase == domain.PhaseFinalized {
			// Late clients may still fetch the final standings.
			snapshot = r.roster.snapshot()
			return nil
		}
		if req.PlayerID == r.hostID {
			r.cancelGraceTimer()
			snapshot = r.roster.snapshot()
			return nil
		}
		r.roster.upsert(req, r.clock.Now())
		snapshot = r.roster.snapshot()
		r.broadcast(domain.Event{Type: domain.EventRosterChanged, Roster: snapshot})
		return nil
	})
	return snapshot, err
}

// Leave removes a player. If a question is open the player's pending answer
// slot is cancelled; earlier scored questions stay untouched.
func (r *Room) Leave(playerID string) error {
	return r.do(func() error {
		if !r.roster.remove(playerID) {
			return nil
		}
		if r.phase == domain.PhaseShowingQuestion {
			r.answers.cancelPending(r.currentQuestion().ID, playerID)
		}
		r.broadcast(domain.Event{Type: domain.EventRosterChanged, Roster: r.roster.snapshot()})
		return nil
	})
}

// Reconcile applies an authoritative roster pushed by the host or the
// server. Redelivery and reordering are safe: the operation is idempotent
// and never regresses score or answer history of surviving players.
func (r *Room) Reconcile(authoritative []JoinRequest) error {
	return r.do(func() error {
		if r.phase == domain.PhaseFinalized {
			return domain.ErrPhaseClosed
		}
		// The host drives the game, it is not a roster member.
		kept := make([]JoinRequest, 0, len(authoritative))
		for _, req := range authoritative {
			if req.PlayerID != r.hostID {
				kept = append(kept, req)
			}
		}
		if r.roster.reconcile(kept, r.clock.Now()) {
			r.broadcast(domain.Event{Type: domain.EventRosterChanged, Roster: r.roster.snapshot()})
		}
		return nil
	})
}

// Start begins the first question. Host only; requires a non-empty roster.
func (r *Room) Start(senderID string) error {
	return r.do(func() error {
		if senderID != r.hostID {
			return domain.ErrUnauthorized
		}
		if r.phase != domain.PhaseLobby {
			return domain.ErrPhaseClosed
		}
		if r.roster.size() == 0 {
			return domain.ErrRosterEmpty
		}
		r.startQuestion(0)
		return nil
	})
}

// Submit records a player's answer for the current question. Latency is
// measured on the room clock, never trusted from the client.
func (r *Room) Submit(playerID, questionID string, chosen []int) (awarded, total int, err error) {
	err = r.do(func() error {
		if r.phase != domain.PhaseShowingQuestion {
			return domain.ErrNotAcceptingAnswers
		}
		player, ok := r.roster.get(playerID)
		if !ok {
			return domain.ErrPlayerNotFound
		}
		q := r.currentQuestion()
		if questionID != q.ID {
			return domain.ErrQuestionMismatch
		}
		if r.answers.has(q.ID, playerID) {
			return domain.ErrAlreadyAnswered
		}

		latency := r.clock.Now().Sub(r.questionStarted)
		delta := scoreAnswer(q, chosen, latency, r.settings.QuestionWindow, r.settings.MaxPoints)
		r.answers.record(&domain.AnswerRecord{
			PlayerID:   playerID,
			QuestionID: q.ID,
			Chosen:     append([]int(nil), chosen...),
			Latency:    latency,
			Awarded:    delta,
		})
		player.Score += delta
		awarded = delta
		total = player.Score
		return nil
	})
	return awarded, total, err
}

// ForceEnd closes the current question early, e.g. when every player has
// answered. Host only. The resulting transition is identical to a deadline
// fire.
func (r *Room) ForceEnd(senderID string) error {
	return r.do(func() error {
		if senderID != r.hostID {
			return domain.ErrUnauthorized
		}
		if r.phase != domain.PhaseShowingQuestion {
			return domain.ErrPhaseClosed
		}
		r.endQuestion(r.currentIndex)
		return nil
	})
}

// Next advances past the current results: to the next question, or to the
// final leaderboard when the last question's results are showing.
func (r *Room) Next(senderID string) error {
	return r.do(func() error {
		if senderID != r.hostID {
			return domain.ErrUnauthorized
		}
		if r.phase != domain.PhaseShowingResults {
			return domain.ErrPhaseClosed
		}
		if r.currentIndex+1 < len(r.quiz.Questions) {
			r.startQuestion(r.currentIndex + 1)
			return nil
		}
		r.finalize()
		return nil
	})
}

// HostDisconnected starts the grace-window teardown timer. The room stays
// fully intact until it fires; a host rejoin cancels it.
func (r *Room) HostDisconnected() {
	r.enqueue(func() {
		if r.closed || r.graceTimer != nil {
			return
		}
		log.Info().Str("pin", r.pin).Dur("grace", r.settings.GraceWindow).Msg("host disconnected, starting grace window")
		timer := r.clock.NewTimer(r.settings.GraceWindow)
		r.graceTimer = timer
		go func() {
			select {
			case <-timer.Chan():
				r.enqueue(func() {
					if r.graceTimer != timer {
						return
					}
					r.graceTimer = nil
					log.Info().Str("pin", r.pin).Msg("grace window expired, closing room")
					r.close()
				})
			case <-r.stopped:
			}
		}()
	})
}

// HostReconnected cancels a pending grace-window teardown.
func (r *Room) HostReconnected() {
	r.enqueue(r.cancelGraceTimer)
}

// Close tears the room down immediately, broadcasting RoomClosed.
func (r *Room) Close() {
	r.enqueue(r.close)
}

// Phase reports the current phase. Intended for tests and diagnostics.
func (r *Room) Phase() domain.Phase {
	var phase domain.Phase
	_ = r.do(func() error {
		phase = r.phase
		return nil
	})
	return phase
}

// CurrentIndex reports the current question index (-1 in the lobby).
func (r *Room) CurrentIndex() int {
	idx := -1
	_ = r.do(func() error {
		idx = r.currentIndex
		return nil
	})
	return idx
}

// Roster returns the current roster snapshot.
func (r *Room) Roster() []domain.RosterEntry {
	var snapshot []domain.RosterEntry
	_ = r.do(func() error {
		snapshot = r.roster.snapshot()
		return nil
	})
	return snapshot
}

// Leaderboard returns the current standings.
func (r *Room) Leaderboard() domain.Leaderboard {
	var lb domain.Leaderboard
	_ = r.do(func() error {
		lb = buildLeaderboard(r.pin, r.quizID, r.roster, r.clock.Now())
		return nil
	})
	return lb
}

func (r *Room) currentQuestion() domain.Question {
	return r.quiz.Questions[r.currentIndex]
}

// startQuestion enters SHOWING_QUESTION for index and arms the
// authoritative deadline timer. The timer fire is enqueued into the same
// command queue as player submits, so "timer just fired" and "last-second
// answer" resolve in one total order.
func (r *Room) startQuestion(index int) {
	r.currentIndex = index
	r.phase = domain.PhaseShowingQuestion
	r.questionStarted = r.clock.Now()
	r.deadline = r.questionStarted.Add(r.settings.QuestionWindow)

	q := r.currentQuestion()
	timer := r.clock.NewTimer(r.settings.QuestionWindow)
	r.questionTimer = timer
	go func() {
		select {
		case <-timer.Chan():
			r.enqueue(func() {
				// Stale fire: the host may have force-ended this question
				// already, or the room moved on.
				if r.phase == domain.PhaseShowingQuestion && r.currentIndex == index {
					r.endQuestion(index)
				}
			})
		case <-r.stopped:
		}
	}()

	r.broadcast(domain.Event{
		Type: domain.EventQuestionStarted,
		QuestionStarted: &domain.QuestionStarted{
			QuestionID: q.ID,
			Index:      index,
			Total:      len(r.quiz.Questions),
			Prompt:     q.Prompt,
			Options:    stripCorrectness(q.Options),
			Deadline:   r.deadline,
		},
	})
	log.Debug().Str("pin", r.pin).Int("index", index).Time("deadline", r.deadline).Msg("question started")
}

// endQuestion transitions SHOWING_QUESTION -> SHOWING_RESULTS and pushes
// the tally. Any submission arriving after this point is rejected.
func (r *Room) endQuestion(index int) {
	if r.questionTimer != nil {
		stopAndDrainTimer(r.questionTimer)
		r.questionTimer = nil
	}
	r.phase = domain.PhaseShowingResults
	tally := r.answers.tally(r.quiz.Questions[index])
	r.broadcast(domain.Event{Type: domain.EventResultsReady, Tally: &tally})
	log.Debug().Str("pin", r.pin).Int("index", index).Int("answers", len(tally.Answers)).Msg("question closed")
}

// finalize snapshots the leaderboard, broadcasts GameOver once, and leaves
// the room lingering for one grace window so slow clients can still read
// the result.
func (r *Room) finalize() {
	r.phase = domain.PhaseFinalized
	lb := buildLeaderboard(r.pin, r.quizID, r.roster, r.clock.Now())
	r.broadcast(domain.Event{Type: domain.EventGameOver, Leaderboard: &lb})
	if r.onFinalize != nil {
		go r.onFinalize(lb)
	}
	log.Info().Str("pin", r.pin).Int("players", len(lb.Entries)).Msg("game over")

	timer := r.clock.NewTimer(r.settings.GraceWindow)
	go func() {
		select {
		case <-timer.Chan():
			r.enqueue(r.close)
		case <-r.stopped:
		}
	}()
}

// close broadcasts RoomClosed, closes every subscriber channel, stops the
// actor and releases the PIN. Idempotent.
func (r *Room) close() {
	if r.closed {
		return
	}
	r.closed = true
	if r.questionTimer != nil {
		stopAndDrainTimer(r.questionTimer)
		r.questionTimer = nil
	}
	r.cancelGraceTimer()

	r.broadcast(domain.Event{Type: domain.EventRoomClosed})
	for ch := range r.subscribers {
		delete(r.subscribers, ch)
		close(ch)
	}
	close(r.stopped)
	if r.onClose != nil {
		r.onClose(r.pin)
	}
	log.Info().Str("pin", r.pin).Msg("room closed")
}

func (r *Room) cancelGraceTimer() {
	if r.graceTimer != nil {
		stopAndDrainTimer(r.graceTimer)
		r.graceTimer = nil
	}
}

func stopAndDrainTimer(t clockwork.Timer) {
	if !t.Stop() {
		select {
		case <-t.Chan():
		default:
		}
	}
}

func stripCorrectness(options []domain.Option) []domain.Option {
	out := make([]domain.Option, len(options))
	for i, opt := range options {
		out[i] = domain.Option{ID: opt.ID, Text: opt.Text}
	}
	return out
}
