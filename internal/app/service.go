package app

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"trivia-live-service/internal/domain"
)

// QuizRepository loads quiz content (from cache/backing store). The
// content is treated as immutable for the duration of one session.
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// LeaderboardArchive persists final leaderboards at finalization.
type LeaderboardArchive interface {
	Store(ctx context.Context, lb domain.Leaderboard) error
}

// GameService exposes the live-session use cases: one method per protocol
// command. It resolves PINs through the registry and delegates every
// mutation to the target room's actor.
type GameService struct {
	registry *Registry
	quizzes  QuizRepository
	archive  LeaderboardArchive
}

func NewGameService(registry *Registry, quizzes QuizRepository, archive LeaderboardArchive) *GameService {
	return &GameService{registry: registry, quizzes: quizzes, archive: archive}
}

// CreateRoom snapshots the quiz content and opens a room for it. No
// partial room survives a failed create.
func (s *GameService) CreateRoom(ctx context.Context, hostID, quizID string) (string, error) {
	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return "", err
	}
	room, err := s.registry.CreateRoom(hostID, quizID, quiz, s.archiveLeaderboard)
	if err != nil {
		return "", err
	}
	return room.PIN(), nil
}

// Join registers or refreshes a player in the room.
func (s *GameService) Join(_ context.Context, pin string, req JoinRequest) ([]domain.RosterEntry, error) {
	room, err := s.registry.Lookup(pin)
	if err != nil {
		return nil, err
	}
	return room.Join(req)
}

// Leave removes a player from the roster.
func (s *GameService) Leave(_ context.Context, pin, playerID string) error {
	room, err := s.registry.Lookup(pin)
	if err != nil {
		return err
	}
	return room.Leave(playerID)
}

// Reconcile pushes an authoritative roster into the room.
func (s *GameService) Reconcile(_ context.Context, pin string, authoritative []JoinRequest) error {
	room, err := s.registry.Lookup(pin)
	if err != nil {
		return err
	}
	return room.Reconcile(authoritative)
}

// Start begins the game. Host only.
func (s *GameService) Start(_ context.Context, pin, senderID string) error {
	room, err := s.registry.Lookup(pin)
	if err != nil {
		return err
	}
	return room.Start(senderID)
}

// Submit records a player's answer for the current question.
func (s *GameService) Submit(_ context.Context, pin, playerID, questionID string, chosen []int) (awarded, total int, err error) {
	room, err := s.registry.Lookup(pin)
	if err != nil {
		return 0, 0, err
	}
	return room.Submit(playerID, questionID, chosen)
}

// ForceEnd closes the current question before its deadline. Host only.
func (s *GameService) ForceEnd(_ context.Context, pin, senderID string) error {
	room, err := s.registry.Lookup(pin)
	if err != nil {
		return err
	}
	return room.ForceEnd(senderID)
}

// Next advances the game past the current results. Host only.
func (s *GameService) Next(_ context.Context, pin, senderID string) error {
	room, err := s.registry.Lookup(pin)
	if err != nil {
		return err
	}
	return room.Next(senderID)
}

// Subscribe returns the room's broadcast channel for one connection.
func (s *GameService) Subscribe(_ context.Context, pin string) (<-chan domain.Event, func(), error) {
	room, err := s.registry.Lookup(pin)
	if err != nil {
		return nil, nil, err
	}
	ch, cancel, ok := room.Subscribe()
	if !ok {
		return nil, nil, domain.ErrRoomNotFound
	}
	return ch, cancel, nil
}

// HostDisconnected starts the room's grace-window teardown.
func (s *GameService) HostDisconnected(pin string) {
	if room, err := s.registry.Lookup(pin); err == nil {
		room.HostDisconnected()
	}
}

// HostReconnected cancels a pending grace-window teardown.
func (s *GameService) HostReconnected(pin string) {
	if room, err := s.registry.Lookup(pin); err == nil {
		room.HostReconnected()
	}
}

// Room exposes registry lookup for transport-level role checks and tests.
func (s *GameService) Room(pin string) (*Room, error) {
	return s.registry.Lookup(pin)
}

func (s *GameService) archiveLeaderboard(lb domain.Leaderboard) {
	if s.archive == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.archive.Store(ctx, lb); err != nil {
		log.Warn().Err(err).Str("pin", lb.PIN).Msg("failed to archive final leaderboard")
	}
}
