package domain

import "errors"

var (
	// ErrRoomNotFound is returned when no open room matches the PIN.
	ErrRoomNotFound = errors.New("room not found")
	// ErrRegistryExhausted is returned when no free PIN could be drawn.
	ErrRegistryExhausted = errors.New("pin space exhausted")
	// ErrUnauthorized is returned when a player issues a host-only command.
	ErrUnauthorized = errors.New("sender role not authorized for command")
	// ErrPhaseClosed is returned for commands that arrive in the wrong phase.
	ErrPhaseClosed = errors.New("command not valid in current phase")
	// ErrNotAcceptingAnswers is returned for submissions outside SHOWING_QUESTION.
	ErrNotAcceptingAnswers = errors.New("room is not accepting answers")
	// ErrAlreadyAnswered is returned for a duplicate submit on the same question.
	ErrAlreadyAnswered = errors.New("answer already recorded for question")
	// ErrRosterEmpty is returned when the host starts a game with no players.
	ErrRosterEmpty = errors.New("cannot start with an empty roster")
	// ErrPlayerNotFound is returned when a player acts before joining.
	ErrPlayerNotFound = errors.New("player not in roster")
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrQuestionMismatch is returned when a submission targets a question
	// other than the one currently showing.
	ErrQuestionMismatch = errors.New("submission does not match current question")
)

// RejectReason maps a protocol error to the wire-level reason code.
func RejectReason(err error) string {
	switch {
	case errors.Is(err, ErrRoomNotFound):
		return "NotFound"
	case errors.Is(err, ErrRegistryExhausted):
		return "RegistryExhausted"
	case errors.Is(err, ErrUnauthorized):
		return "Unauthorized"
	case errors.Is(err, ErrPhaseClosed):
		return "PhaseClosed"
	case errors.Is(err, ErrNotAcceptingAnswers):
		return "NotAcceptingAnswers"
	case errors.Is(err, ErrAlreadyAnswered):
		return "AlreadyAnswered"
	case errors.Is(err, ErrRosterEmpty):
		return "RosterEmpty"
	case errors.Is(err, ErrPlayerNotFound):
		return "PlayerNotFound"
	case errors.Is(err, ErrQuestionMismatch):
		return "QuestionMismatch"
	case errors.Is(err, ErrQuizNotFound):
		return "QuizNotFound"
	default:
		return "Internal"
	}
}
