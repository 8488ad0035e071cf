package domain

import "time"

// Phase is the current state of a room's session state machine.
type Phase string

const (
	PhaseLobby           Phase = "LOBBY"
	PhaseShowingQuestion Phase = "SHOWING_QUESTION"
	PhaseShowingResults  Phase = "SHOWING_RESULTS"
	PhaseFinalized       Phase = "FINALIZED"
)

// Option represents a possible answer for a question.
type Option struct {
	ID      string `json:"id"`
	Text    string `json:"text"`
	Correct bool   `json:"correct"`
}

// Question models a question with one or more correct options.
type Question struct {
	ID      string   `json:"id"`
	Prompt  string   `json:"prompt"`
	Options []Option `json:"options"`
}

// Quiz is an ordered collection of questions, immutable once a room snapshots it.
type Quiz struct {
	ID        string     `json:"id"`
	Questions []Question `json:"questions"`
}

// Player is a roster entry. PlayerID is stable across reconnects;
// JoinOrder is the room-local join sequence used for leaderboard tie-breaks.
type Player struct {
	PlayerID    string
	DisplayName string
	Avatar      int
	Score       int
	JoinOrder   int
	JoinedAt    time.Time
}

// RosterEntry is the wire-facing view of a player.
type RosterEntry struct {
	PlayerID    string `json:"playerId"`
	DisplayName string `json:"displayName"`
	Avatar      int    `json:"avatar"`
	Score       int    `json:"score"`
}

// AnswerRecord captures a single accepted submission. At most one record
// exists per (player, question); later submissions are rejected, never
// overwritten.
type AnswerRecord struct {
	PlayerID   string        `json:"playerId"`
	QuestionID string        `json:"questionId"`
	Chosen     []int         `json:"chosen"`
	Latency    time.Duration `json:"latencyMs"`
	Awarded    int           `json:"awarded"`
}

// Tally aggregates a finished question for the results view.
type Tally struct {
	QuestionID   string         `json:"questionId"`
	OptionCounts []int          `json:"optionCounts"`
	Answers      []AnswerRecord `json:"answers"`
	CorrectSet   []int          `json:"correctSet"`
}

// LeaderboardEntry is one ranked row of the final or interim standings.
type LeaderboardEntry struct {
	PlayerID    string `json:"playerId"`
	DisplayName string `json:"displayName"`
	Score       int    `json:"score"`
	Rank        int    `json:"rank"`
}

// Leaderboard is the ordered scoreboard for one room.
type Leaderboard struct {
	PIN       string             `json:"pin"`
	QuizID    string             `json:"quizId"`
	Entries   []LeaderboardEntry `json:"entries"`
	UpdatedAt time.Time          `json:"updatedAt"`
}
