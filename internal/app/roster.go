package app

import (
	"sort"
	"time"

	"trivia-live-service/internal/domain"
)

// JoinRequest carries the identity-provider fields for one player. It is
// also the element type of a reconciliation's authoritative set, so a
// dropped join can be repaired with full display fields.
type JoinRequest struct {
	PlayerID    string `json:"playerId"`
	DisplayName string `json:"displayName"`
	Avatar      int    `json:"avatar"`
}

// roster is the set of players in one room, keyed by stable player id.
// It is only ever touched from inside the owning room's actor loop.
type roster struct {
	players   map[string]*domain.Player
	joinOrder int
}

func newRoster() *roster {
	return &roster{players: make(map[string]*domain.Player)}
}

// upsert adds the player or refreshes display fields in place. Rejoin with
// a known id never duplicates the entry or resets the score.
func (r *roster) upsert(req JoinRequest, now time.Time) *domain.Player {
	if p, ok := r.players[req.PlayerID]; ok {
		p.DisplayName = req.DisplayName
		p.Avatar = req.Avatar
		return p
	}
	p := &domain.Player{
		PlayerID:    req.PlayerID,
		DisplayName: req.DisplayName,
		Avatar:      req.Avatar,
		JoinOrder:   r.joinOrder,
		JoinedAt:    now,
	}
	r.joinOrder++
	r.players[req.PlayerID] = p
	return p
}

func (r *roster) remove(playerID string) bool {
	if _, ok := r.players[playerID]; !ok {
		return false
	}
	delete(r.players, playerID)
	return true
}

func (r *roster) get(playerID string) (*domain.Player, bool) {
	p, ok := r.players[playerID]
	return p, ok
}

func (r *roster) size() int {
	return len(r.players)
}

// reconcile applies the set-symmetric-difference between the current roster
// and the authoritative set: unknown players are added, absent players are
// removed. Players present on both sides keep score and join order, so a
// redelivered or reordered reconcile is a no-op. Reports whether anything
// changed.
func (r *roster) reconcile(authoritative []JoinRequest, now time.Time) bool {
	want := make(map[string]JoinRequest, len(authoritative))
	for _, req := range authoritative {
		want[req.PlayerID] = req
	}

	changed := false
	for id := range r.players {
		if _, ok := want[id]; !ok {
			delete(r.players, id)
			changed = true
		}
	}
	for id, req := range want {
		if _, ok := r.players[id]; !ok {
			r.upsert(req, now)
			changed = true
		}
	}
	return changed
}

// snapshot returns the roster ordered by join sequence.
func (r *roster) snapshot() []domain.RosterEntry {
	players := make([]*domain.Player, 0, len(r.players))
	for _, p := range r.players {
		players = append(players, p)
	}
	sort.Slice(players, func(i, j int) bool {
		return players[i].JoinOrder < players[j].JoinOrder
	})

	entries := make([]domain.RosterEntry, 0, len(players))
	for _, p := range players {
		entries = append(entries, domain.RosterEntry{
			PlayerID:    p.PlayerID,
			DisplayName: p.DisplayName,
			Avatar:      p.Avatar,
			Score:       p.Score,
		})
	}
	return entries
}
