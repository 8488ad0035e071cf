package app

import (
	"time"

	"trivia-live-service/internal/domain"
)

// answerBook collects accepted submissions per question. Only the room
// actor touches it, so no locking is needed here.
type answerBook struct {
	// questionID -> playerID -> record
	records map[string]map[string]*domain.AnswerRecord
}

func newAnswerBook() *answerBook {
	return &answerBook{records: make(map[string]map[string]*domain.AnswerRecord)}
}

func (b *answerBook) has(questionID, playerID string) bool {
	byPlayer, ok := b.records[questionID]
	if !ok {
		return false
	}
	_, ok = byPlayer[playerID]
	return ok
}

// record stores a submission. The caller has already checked for a
// duplicate; a second record for the same (player, question) is a bug.
func (b *answerBook) record(rec *domain.AnswerRecord) {
	byPlayer, ok := b.records[rec.QuestionID]
	if !ok {
		byPlayer = make(map[string]*domain.AnswerRecord)
		b.records[rec.QuestionID] = byPlayer
	}
	byPlayer[rec.PlayerID] = rec
}

// cancelPending drops the player's record for the given question, used when
// a player leaves mid-question. Records for earlier questions are untouched.
func (b *answerBook) cancelPending(questionID, playerID string) {
	if byPlayer, ok := b.records[questionID]; ok {
		delete(byPlayer, playerID)
	}
}

// tally aggregates per-option counts and the per-player answer list for the
// results view of one question.
func (b *answerBook) tally(q domain.Question) domain.Tally {
	t := domain.Tally{
		QuestionID:   q.ID,
		OptionCounts: make([]int, len(q.Options)),
		Answers:      []domain.AnswerRecord{},
		CorrectSet:   correctIndices(q),
	}
	for _, rec := range b.records[q.ID] {
		for _, idx := range rec.Chosen {
			if idx >= 0 && idx < len(t.OptionCounts) {
				t.OptionCounts[idx]++
			}
		}
		t.Answers = append(t.Answers, *rec)
	}
	return t
}

func correctIndices(q domain.Question) []int {
	out := []int{}
	for i, opt := range q.Options {
		if opt.Correct {
			out = append(out, i)
		}
	}
	return out
}

// scoreAnswer computes the per-question delta. Correctness is the fraction
// of correct options chosen minus the fraction of incorrect options chosen,
// clamped to [0,1], so multi-correct questions earn partial credit and
// wrong picks cost. The result decays linearly with submission latency over
// the question window and is scaled to maxPoints. A correct-leaning answer
// never decays to zero: the floor is 1 point.
func scoreAnswer(q domain.Question, chosen []int, latency, window time.Duration, maxPoints int) int {
	correct := correctIndices(q)
	incorrect := len(q.Options) - len(correct)

	chosenCorrect, chosenIncorrect := 0, 0
	seen := make(map[int]struct{}, len(chosen))
	for _, idx := range chosen {
		if idx < 0 || idx >= len(q.Options) {
			continue
		}
		if _, dup := seen[idx]; dup {
			continue
		}
		seen[idx] = struct{}{}
		if q.Options[idx].Correct {
			chosenCorrect++
		} else {
			chosenIncorrect++
		}
	}

	correctness := 0.0
	if len(correct) > 0 {
		correctness = float64(chosenCorrect) / float64(len(correct))
	}
	if incorrect > 0 {
		correctness -= float64(chosenIncorrect) / float64(incorrect)
	}
	if correctness <= 0 {
		return 0
	}
	if correctness > 1 {
		correctness = 1
	}

	decay := 1.0
	if window > 0 {
		decay = 1 - float64(latency)/float64(window)
	}
	if decay < 0 {
		decay = 0
	}

	delta := int(correctness * decay * float64(maxPoints))
	if delta < 1 {
		delta = 1
	}
	return delta
}
