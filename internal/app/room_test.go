package app

import (
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"trivia-live-service/internal/domain"
)

func testQuiz() domain.Quiz {
	return domain.Quiz{
		ID: "quiz-1",
		Questions: []domain.Question{
			{
				ID:     "q1",
				Prompt: "What is 2 + 2?",
				Options: []domain.Option{
					{ID: "o1", Text: "3", Correct: false},
					{ID: "o2", Text: "4", Correct: true},
					{ID: "o3", Text: "5", Correct: false},
				},
			},
			{
				ID:     "q2",
				Prompt: "Which are prime?",
				Options: []domain.Option{
					{ID: "o1", Text: "2", Correct: true},
					{ID: "o2", Text: "4", Correct: false},
					{ID: "o3", Text: "7", Correct: true},
				},
			},
			{
				ID:     "q3",
				Prompt: "What color is the sky?",
				Options: []domain.Option{
					{ID: "o1", Text: "Blue", Correct: true},
					{ID: "o2", Text: "Green", Correct: false},
				},
			},
		},
	}
}

func newTestRoom(t *testing.T, clock clockwork.Clock) *Room {
	t.Helper()
	room := newRoom("123456", "quiz-1", "host-1", testQuiz(), clock, DefaultSettings(), nil, nil)
	t.Cleanup(room.Close)
	return room
}

func waitForPhase(t *testing.T, room *Room, want domain.Phase) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if room.Phase() == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("room never reached phase %s, stuck in %s", want, room.Phase())
}

func mustJoin(t *testing.T, room *Room, id, name string) {
	t.Helper()
	if _, err := room.Join(JoinRequest{PlayerID: id, DisplayName: name}); err != nil {
		t.Fatalf("join %s: %v", id, err)
	}
}

func TestStartRequiresHostAndNonEmptyRoster(t *testing.T) {
	room := newTestRoom(t, clockwork.NewFakeClock())

	if err := room.Start("host-1"); !errors.Is(err, domain.ErrRosterEmpty) {
		t.Fatalf("expected ErrRosterEmpty, got %v", err)
	}

	mustJoin(t, room, "p1", "Alice")
	if err := room.Start("p1"); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for player start, got %v", err)
	}

	if err := room.Start("host-1"); err != nil {
		t.Fatalf("host start: %v", err)
	}
	if got := room.Phase(); got != domain.PhaseShowingQuestion {
		t.Fatalf("expected SHOWING_QUESTION, got %s", got)
	}
	if got := room.CurrentIndex(); got != 0 {
		t.Fatalf("expected index 0, got %d", got)
	}

	// A second start must not rewind the game.
	if err := room.Start("host-1"); !errors.Is(err, domain.ErrPhaseClosed) {
		t.Fatalf("expected ErrPhaseClosed for duplicate start, got %v", err)
	}
}

func TestMonotonicProgressThroughAllQuestions(t *testing.T) {
	room := newTestRoom(t, clockwork.NewFakeClock())
	mustJoin(t, room, "p1", "Alice")
	if err := room.Start("host-1"); err != nil {
		t.Fatalf("start: %v", err)
	}

	lastIndex := room.CurrentIndex()
	for i := 0; i < 3; i++ {
		if err := room.ForceEnd("host-1"); err != nil {
			t.Fatalf("force end q%d: %v", i+1, err)
		}
		if err := room.Next("host-1"); err != nil {
			t.Fatalf("next after q%d: %v", i+1, err)
		}
		idx := room.CurrentIndex()
		if idx < lastIndex {
			t.Fatalf("index regressed from %d to %d", lastIndex, idx)
		}
		lastIndex = idx
	}

	if got := room.Phase(); got != domain.PhaseFinalized {
		t.Fatalf("expected FINALIZED after last question, got %s", got)
	}
	if lastIndex != 2 {
		t.Fatalf("index exceeded question count: %d", lastIndex)
	}

	// No transition escapes the terminal phase.
	if err := room.Next("host-1"); !errors.Is(err, domain.ErrPhaseClosed) {
		t.Fatalf("expected ErrPhaseClosed after finalize, got %v", err)
	}
}

func TestSubmitIdempotence(t *testing.T) {
	room := newTestRoom(t, clockwork.NewFakeClock())
	mustJoin(t, room, "p1", "Alice")
	if err := room.Start("host-1"); err != nil {
		t.Fatalf("start: %v", err)
	}

	awarded, total, err := room.Submit("p1", "q1", []int{1})
	if err != nil {
		t.Fatalf("first submit: %v", err)
	}
	if awarded <= 0 || total != awarded {
		t.Fatalf("expected positive score, got awarded=%d total=%d", awarded, total)
	}

	if _, _, err := room.Submit("p1", "q1", []int{0}); !errors.Is(err, domain.ErrAlreadyAnswered) {
		t.Fatalf("expected ErrAlreadyAnswered, got %v", err)
	}

	// Exactly one record and one score delta.
	lb := room.Leaderboard()
	if len(lb.Entries) != 1 || lb.Entries[0].Score != total {
		t.Fatalf("expected unchanged total %d, got %+v", total, lb.Entries)
	}
}

func TestSubmitRejectedOutsideShowingQuestion(t *testing.T) {
	room := newTestRoom(t, clockwork.NewFakeClock())
	mustJoin(t, room, "p1", "Alice")

	if _, _, err := room.Submit("p1", "q1", []int{1}); !errors.Is(err, domain.ErrNotAcceptingAnswers) {
		t.Fatalf("expected ErrNotAcceptingAnswers in lobby, got %v", err)
	}

	if err := room.Start("host-1"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := room.ForceEnd("host-1"); err != nil {
		t.Fatalf("force end: %v", err)
	}

	if _, _, err := room.Submit("p1", "q1", []int{1}); !errors.Is(err, domain.ErrNotAcceptingAnswers) {
		t.Fatalf("expected ErrNotAcceptingAnswers after results, got %v", err)
	}
	lb := room.Leaderboard()
	if lb.Entries[0].Score != 0 {
		t.Fatalf("late answer must not score, got %d", lb.Entries[0].Score)
	}
}

func TestDeadlineFiresAndRejectsLateAnswers(t *testing.T) {
	clock := clockwork.NewFakeClock()
	room := newTestRoom(t, clock)
	mustJoin(t, room, "p1", "Alice")
	if err := room.Start("host-1"); err != nil {
		t.Fatalf("start: %v", err)
	}

	clock.Advance(DefaultSettings().QuestionWindow)
	waitForPhase(t, room, domain.PhaseShowingResults)

	if _, _, err := room.Submit("p1", "q1", []int{1}); !errors.Is(err, domain.ErrNotAcceptingAnswers) {
		t.Fatalf("expected ErrNotAcceptingAnswers after deadline, got %v", err)
	}
}

func TestScoringBounds(t *testing.T) {
	settings := DefaultSettings()

	t.Run("instant correct answer scores maximum", func(t *testing.T) {
		clock := clockwork.NewFakeClock()
		room := newTestRoom(t, clock)
		mustJoin(t, room, "p1", "Alice")
		if err := room.Start("host-1"); err != nil {
			t.Fatalf("start: %v", err)
		}
		awarded, _, err := room.Submit("p1", "q1", []int{1})
		if err != nil {
			t.Fatalf("submit: %v", err)
		}
		if awarded != settings.MaxPoints {
			t.Fatalf("expected max %d at latency 0, got %d", settings.MaxPoints, awarded)
		}
	})

	t.Run("correct answer at deadline scores the floor", func(t *testing.T) {
		clock := clockwork.NewFakeClock()
		room := newTestRoom(t, clock)
		mustJoin(t, room, "p1", "Alice")
		if err := room.Start("host-1"); err != nil {
			t.Fatalf("start: %v", err)
		}
		clock.Advance(settings.QuestionWindow - time.Nanosecond)
		awarded, _, err := room.Submit("p1", "q1", []int{1})
		if err != nil {
			t.Fatalf("submit: %v", err)
		}
		if awarded <= 0 || awarded >= settings.MaxPoints/10 {
			t.Fatalf("expected small positive floor, got %d", awarded)
		}
	})

	t.Run("incorrect answer scores zero", func(t *testing.T) {
		clock := clockwork.NewFakeClock()
		room := newTestRoom(t, clock)
		mustJoin(t, room, "p1", "Alice")
		if err := room.Start("host-1"); err != nil {
			t.Fatalf("start: %v", err)
		}
		awarded, total, err := room.Submit("p1", "q1", []int{0})
		if err != nil {
			t.Fatalf("submit: %v", err)
		}
		if awarded != 0 || total != 0 {
			t.Fatalf("expected zero for wrong answer, got awarded=%d total=%d", awarded, total)
		}
	})
}

func TestHostDisconnectWithinGraceKeepsState(t *testing.T) {
	clock := clockwork.NewFakeClock()
	// A long question window keeps the deadline out of the picture while
	// the grace window is exercised.
	settings := DefaultSettings()
	settings.QuestionWindow = time.Hour
	room := newRoom("123456", "quiz-1", "host-1", testQuiz(), clock, settings, nil, nil)
	t.Cleanup(room.Close)
	mustJoin(t, room, "p1", "Alice")
	mustJoin(t, room, "p2", "Bob")
	if err := room.Start("host-1"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, _, err := room.Submit("p1", "q1", []int{1}); err != nil {
		t.Fatalf("submit: %v", err)
	}

	room.HostDisconnected()
	clock.BlockUntil(2) // question timer + grace timer armed
	clock.Advance(settings.GraceWindow / 2)
	room.HostReconnected()
	_ = room.Phase() // barrier: the cancel is applied before time advances further
	clock.Advance(settings.GraceWindow)

	// Room must be alive with index, roster and scores intact.
	if got := room.Phase(); got != domain.PhaseShowingQuestion {
		t.Fatalf("expected room still in SHOWING_QUESTION, got %s", got)
	}
	if got := room.CurrentIndex(); got != 0 {
		t.Fatalf("expected same question, got index %d", got)
	}
	roster := room.Roster()
	if len(roster) != 2 {
		t.Fatalf("expected 2 players, got %d", len(roster))
	}
	lb := room.Leaderboard()
	if lb.Entries[0].PlayerID != "p1" || lb.Entries[0].Score <= 0 {
		t.Fatalf("expected p1's score preserved, got %+v", lb.Entries)
	}

	// Play continues from the same question for the remaining player.
	if _, _, err := room.Submit("p2", "q1", []int{1}); err != nil {
		t.Fatalf("submit after reconnect: %v", err)
	}
}

func TestHostDisconnectPastGraceClosesRoom(t *testing.T) {
	clock := clockwork.NewFakeClock()
	room := newTestRoom(t, clock)
	mustJoin(t, room, "p1", "Alice")

	events, cancel, ok := room.Subscribe()
	if !ok {
		t.Fatalf("subscribe failed")
	}
	defer cancel()

	room.HostDisconnected()
	// Wait for the grace timer to be armed before advancing.
	clock.BlockUntil(1)
	clock.Advance(DefaultSettings().GraceWindow)

	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev, open := <-events:
			if !open {
				t.Fatalf("subscription closed without RoomClosed")
			}
			if ev.Type == domain.EventRoomClosed {
				return
			}
		case <-deadline:
			t.Fatalf("never received RoomClosed")
		}
	}
}

func TestScenarioTwoPlayersThreeQuestions(t *testing.T) {
	clock := clockwork.NewFakeClock()
	settings := DefaultSettings()
	room := newRoom("654321", "quiz-1", "host-1", testQuiz(), clock, settings, nil, nil)
	t.Cleanup(room.Close)

	mustJoin(t, room, "a", "Ann")
	mustJoin(t, room, "b", "Ben")

	events, cancel, ok := room.Subscribe()
	if !ok {
		t.Fatalf("subscribe failed")
	}
	defer cancel()

	if err := room.Start("host-1"); err != nil {
		t.Fatalf("start: %v", err)
	}

	// Ann answers Q1 correctly after 1s; Ben never answers.
	clock.Advance(time.Second)
	if _, _, err := room.Submit("a", "q1", []int{1}); err != nil {
		t.Fatalf("submit: %v", err)
	}

	clock.Advance(settings.QuestionWindow)
	waitForPhase(t, room, domain.PhaseShowingResults)

	tally := drainUntilTally(t, events)
	if tally.OptionCounts[1] != 1 || tally.OptionCounts[0] != 0 || tally.OptionCounts[2] != 0 {
		t.Fatalf("expected one vote on option 1 only, got %v", tally.OptionCounts)
	}
	if len(tally.Answers) != 1 || tally.Answers[0].PlayerID != "a" {
		t.Fatalf("expected only Ann's answer, got %+v", tally.Answers)
	}

	// Remaining questions run to the deadline unanswered.
	for i := 0; i < 2; i++ {
		if err := room.Next("host-1"); err != nil {
			t.Fatalf("next: %v", err)
		}
		clock.Advance(settings.QuestionWindow)
		waitForPhase(t, room, domain.PhaseShowingResults)
	}
	if err := room.Next("host-1"); err != nil {
		t.Fatalf("final next: %v", err)
	}

	lb := drainUntilGameOver(t, events)
	if len(lb.Entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(lb.Entries))
	}
	if lb.Entries[0].PlayerID != "a" || lb.Entries[0].Score <= 0 {
		t.Fatalf("expected Ann leading with positive score, got %+v", lb.Entries[0])
	}
	if lb.Entries[1].PlayerID != "b" || lb.Entries[1].Score != 0 {
		t.Fatalf("expected Ben at zero, got %+v", lb.Entries[1])
	}
}

func TestLeaderboardTieBreaksByJoinOrder(t *testing.T) {
	room := newTestRoom(t, clockwork.NewFakeClock())
	mustJoin(t, room, "p1", "Alice")
	mustJoin(t, room, "p2", "Bob")

	lb := room.Leaderboard()
	if lb.Entries[0].PlayerID != "p1" || lb.Entries[1].PlayerID != "p2" {
		t.Fatalf("expected join order on tie, got %+v", lb.Entries)
	}
	if lb.Entries[0].Rank != 1 || lb.Entries[1].Rank != 2 {
		t.Fatalf("expected ranks 1,2, got %+v", lb.Entries)
	}
}

func drainUntilTally(t *testing.T, events <-chan domain.Event) domain.Tally {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-events:
			if ev.Type == domain.EventResultsReady {
				return *ev.Tally
			}
		case <-deadline:
			t.Fatalf("never received ResultsReady")
		}
	}
}

func drainUntilGameOver(t *testing.T, events <-chan domain.Event) domain.Leaderboard {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-events:
			if ev.Type == domain.EventGameOver {
				return *ev.Leaderboard
			}
		case <-deadline:
			t.Fatalf("never received GameOver")
		}
	}
}
