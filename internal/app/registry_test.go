package app

import (
	"errors"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"trivia-live-service/internal/domain"
)

func TestRegistryCreateAndLookup(t *testing.T) {
	reg := NewRegistry(clockwork.NewFakeClock(), DefaultSettings())

	room, err := reg.CreateRoom("host-1", "quiz-1", testQuiz(), nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	t.Cleanup(room.Close)
	if len(room.PIN()) != 6 {
		t.Fatalf("expected 6-digit pin, got %q", room.PIN())
	}

	found, err := reg.Lookup(room.PIN())
	if err != nil || found != room {
		t.Fatalf("lookup failed: %v", err)
	}
	if _, err := reg.Lookup("000000"); !errors.Is(err, domain.ErrRoomNotFound) {
		t.Fatalf("expected ErrRoomNotFound, got %v", err)
	}
	if reg.Len() != 1 {
		t.Fatalf("expected 1 open room, got %d", reg.Len())
	}
}

func TestRegistryCloseReleasesPinAfterCooldown(t *testing.T) {
	clock := clockwork.NewFakeClock()
	settings := DefaultSettings()
	reg := NewRegistry(clock, settings)

	room, err := reg.CreateRoom("host-1", "quiz-1", testQuiz(), nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	pin := room.PIN()
	if err := reg.Close(pin); err != nil {
		t.Fatalf("close: %v", err)
	}

	// Teardown is asynchronous; the pin leaves the open set first.
	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, err := reg.Lookup(pin); errors.Is(err, domain.ErrRoomNotFound) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("room never left the registry")
		}
		time.Sleep(time.Millisecond)
	}

	// The pin is parked, not immediately reusable.
	reg.mu.RLock()
	_, cooling := reg.cooldown[pin]
	reg.mu.RUnlock()
	if !cooling {
		t.Fatalf("expected pin %s in cooldown", pin)
	}

	// Past the cooldown, a fresh create purges the stale entry.
	clock.Advance(settings.PinCooldown + time.Second)
	next, err := reg.CreateRoom("host-2", "quiz-1", testQuiz(), nil)
	if err != nil {
		t.Fatalf("create after cooldown: %v", err)
	}
	t.Cleanup(next.Close)

	reg.mu.RLock()
	_, cooling = reg.cooldown[pin]
	reg.mu.RUnlock()
	if cooling {
		t.Fatalf("expected cooldown for %s to be purged", pin)
	}
}

func TestRegistryExhaustion(t *testing.T) {
	clock := clockwork.NewFakeClock()
	settings := DefaultSettings()
	settings.PinAttempts = 1
	reg := NewRegistry(clock, settings)

	// A fixed seed makes the single draw predictable: occupy it up front
	// so the only attempt collides.
	seed := int64(42)
	reg.rnd = rand.New(rand.NewSource(seed))
	predicted := fmt.Sprintf("%06d", 100000+rand.New(rand.NewSource(seed)).Intn(pinSpace))
	reg.cooldown[predicted] = clock.Now().Add(time.Hour)

	if _, err := reg.CreateRoom("host-1", "quiz-1", testQuiz(), nil); !errors.Is(err, domain.ErrRegistryExhausted) {
		t.Fatalf("expected ErrRegistryExhausted, got %v", err)
	}
}
