package app

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"trivia-live-service/internal/domain"
)

const pinSpace = 900000 // six digits, 100000..999999

// Registry allocates PINs and owns room lifecycle. A freed PIN is parked
// in a cool-down set before reuse so straggler messages addressed to a
// just-closed room cannot land in a fresh one.
type Registry struct {
	clock    clockwork.Clock
	settings Settings
	rnd      *rand.Rand

	mu       sync.RWMutex
	rooms    map[string]*Room
	cooldown map[string]time.Time
}

func NewRegistry(clock clockwork.Clock, settings Settings) *Registry {
	return &Registry{
		clock:    clock,
		settings: settings,
		rnd:      rand.New(rand.NewSource(clock.Now().UnixNano())),
		rooms:    make(map[string]*Room),
		cooldown: make(map[string]time.Time),
	}
}

// CreateRoom allocates a free PIN and starts a room actor for the quiz
// snapshot. The draw is retried a bounded number of times; with a six
// digit space versus realistic concurrent room counts exhaustion is all
// but unreachable, but it is still reported, not assumed away.
func (reg *Registry) CreateRoom(hostID, quizID string, quiz domain.Quiz, onFinalize func(domain.Leaderboard)) (*Room, error) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	reg.purgeCooldownLocked()

	attempts := reg.settings.PinAttempts
	if attempts <= 0 {
		attempts = 100
	}
	for i := 0; i < attempts; i++ {
		pin := fmt.Sprintf("%06d", 100000+reg.rnd.Intn(pinSpace))
		if _, taken := reg.rooms[pin]; taken {
			continue
		}
		if _, cooling := reg.cooldown[pin]; cooling {
			continue
		}
		room := newRoom(pin, quizID, hostID, quiz, reg.clock, reg.settings, reg.release, onFinalize)
		reg.rooms[pin] = room
		log.Info().Str("pin", pin).Str("quiz_id", quizID).Msg("room created")
		return room, nil
	}
	return nil, domain.ErrRegistryExhausted
}

// Lookup resolves a PIN to its open room.
func (reg *Registry) Lookup(pin string) (*Room, error) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	room, ok := reg.rooms[pin]
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	return room, nil
}

// Close tears the room down. The RoomClosed broadcast reaches any
// still-connected clients through their subscriptions.
func (reg *Registry) Close(pin string) error {
	room, err := reg.Lookup(pin)
	if err != nil {
		return err
	}
	room.Close()
	return nil
}

// Len reports the number of open rooms.
func (reg *Registry) Len() int {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return len(reg.rooms)
}

// release is invoked by a room on teardown.
func (reg *Registry) release(pin string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	delete(reg.rooms, pin)
	reg.cooldown[pin] = reg.clock.Now().Add(reg.settings.PinCooldown)
}

func (reg *Registry) purgeCooldownLocked() {
	now := reg.clock.Now()
	for pin, until := range reg.cooldown {
		if !until.After(now) {
			delete(reg.cooldown, pin)
		}
	}
}
