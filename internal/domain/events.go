package domain

import "time"

// EventType enumerates the closed set of broadcast event kinds.
type EventType string

const (
	EventRosterChanged   EventType = "rosterChanged"
	EventQuestionStarted EventType = "questionStarted"
	EventResultsReady    EventType = "resultsReady"
	EventGameOver        EventType = "gameOver"
	EventRoomClosed      EventType = "roomClosed"
)

// Event is one state delta broadcast to every connection in a room.
// Exactly one payload field is set, matching Type.
type Event struct {
	Type            EventType        `json:"type"`
	PIN             string           `json:"pin"`
	Roster          []RosterEntry    `json:"roster,omitempty"`
	QuestionStarted *QuestionStarted `json:"question,omitempty"`
	Tally           *Tally           `json:"tally,omitempty"`
	Leaderboard     *Leaderboard     `json:"leaderboard,omitempty"`
}

// QuestionStarted announces the current question to the room. Options are
// stripped of their correctness flags before broadcast.
type QuestionStarted struct {
	QuestionID string    `json:"questionId"`
	Index      int       `json:"index"`
	Total      int       `json:"total"`
	Prompt     string    `json:"prompt"`
	Options    []Option  `json:"options"`
	Deadline   time.Time `json:"deadline"`
}
