package http

import (
	"encoding/json"
	"net/http"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"trivia-live-service/internal/app"
	"trivia-live-service/internal/domain"
)

type role string

const (
	roleHost   role = "host"
	rolePlayer role = "player"
)

// binding ties a live connection to the room and identity it acts for.
type binding struct {
	PIN      string
	PlayerID string
	Role     role
}

// GatewayHandler is the event gateway: it decodes inbound envelopes into
// typed commands, tags the sender's role from the connection mapping,
// authorizes by role and routes to the game service. It holds no game
// logic of its own.
type GatewayHandler struct {
	service  *app.GameService
	upgrader websocket.Upgrader

	mu          sync.RWMutex
	connections map[string]binding
}

func NewGatewayHandler(service *app.GameService) *GatewayHandler {
	return &GatewayHandler{
		service: service,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		connections: make(map[string]binding),
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type createRoomPayload struct {
	QuizID string `json:"quizId"`
}

type joinRoomPayload struct {
	PIN string `json:"pin"`
}

type submitAnswerPayload struct {
	QuestionID    string `json:"questionId"`
	ChosenIndices []int  `json:"chosenIndices"`
}

type reconcilePayload struct {
	Roster []app.JoinRequest `json:"roster"`
}

type pinAssignedPayload struct {
	PIN string `json:"pin"`
}

type joinedPayload struct {
	PIN    string               `json:"pin"`
	Roster []domain.RosterEntry `json:"roster"`
}

type acceptedPayload struct {
	QuestionID string `json:"questionId"`
	Awarded    int    `json:"awarded"`
	TotalScore int    `json:"totalScore"`
}

type rejectedPayload struct {
	Reason string `json:"reason"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// ServeWS upgrades the connection and runs its read loop. Identity is
// supplied by the identity provider via query parameters and trusted as-is.
func (h *GatewayHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	playerID := r.URL.Query().Get("playerId")
	displayName := r.URL.Query().Get("name")
	avatar, _ := strconv.Atoi(r.URL.Query().Get("avatar"))
	if playerID == "" || displayName == "" {
		http.Error(w, "missing playerId or name", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("ws upgrade failed")
		return
	}
	defer conn.Close()

	connID := uuid.NewString()
	logger := log.With().Str("conn_id", connID).Str("player_id", playerID).Logger()
	logger.Debug().Msg("connection established")

	send := make(chan outboundMessage[any], 16)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				logger.Debug().Err(err).Msg("ws write error")
				return
			}
		}
	}()

	closeSignals := make(chan struct{})
	var pumpDone chan struct{}
	var cancelSub func()

	// attach subscribes the connection to its room's broadcast stream and
	// records the connection mapping.
	attach := func(pin string, rl role) error {
		events, cancel, err := h.service.Subscribe(r.Context(), pin)
		if err != nil {
			return err
		}
		cancelSub = cancel
		h.mu.Lock()
		h.connections[connID] = binding{PIN: pin, PlayerID: playerID, Role: rl}
		h.mu.Unlock()

		pumpDone = make(chan struct{})
		go func() {
			defer close(pumpDone)
			for {
				select {
				case ev, ok := <-events:
					if !ok {
						return
					}
					select {
					case send <- outboundMessage[any]{Type: string(ev.Type), Payload: ev}:
					case <-closeSignals:
						return
					}
				case <-closeSignals:
					return
				}
			}
		}()
		return nil
	}

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}

		h.mu.RLock()
		bound, isBound := h.connections[connID]
		h.mu.RUnlock()

		switch inbound.Type {
		case "createRoom":
			var payload createRoomPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil || isBound {
				send <- errorMsg("invalid createRoom")
				continue
			}
			pin, err := h.service.CreateRoom(r.Context(), playerID, payload.QuizID)
			if err != nil {
				send <- rejectMsg(err)
				continue
			}
			if err := attach(pin, roleHost); err != nil {
				send <- rejectMsg(err)
				continue
			}
			send <- outboundMessage[any]{Type: "pinAssigned", Payload: pinAssignedPayload{PIN: pin}}

		case "joinRoom":
			var payload joinRoomPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil || isBound {
				send <- errorMsg("invalid joinRoom")
				continue
			}
			room, err := h.service.Room(payload.PIN)
			if err != nil {
				send <- rejectMsg(err)
				continue
			}
			rl := rolePlayer
			if room.HostID() == playerID {
				rl = roleHost
			}
			roster, err := h.service.Join(r.Context(), payload.PIN, app.JoinRequest{
				PlayerID:    playerID,
				DisplayName: displayName,
				Avatar:      avatar,
			})
			if err != nil {
				send <- rejectMsg(err)
				continue
			}
			if err := attach(payload.PIN, rl); err != nil {
				send <- rejectMsg(err)
				continue
			}
			if rl == roleHost {
				h.service.HostReconnected(payload.PIN)
			}
			send <- outboundMessage[any]{Type: "joined", Payload: joinedPayload{PIN: payload.PIN, Roster: roster}}

		case "startGame":
			if !h.requireRole(send, bound, isBound, roleHost) {
				continue
			}
			if err := h.service.Start(r.Context(), bound.PIN, playerID); err != nil {
				send <- rejectMsg(err)
			}

		case "submitAnswer":
			if !h.requireRole(send, bound, isBound, rolePlayer) {
				continue
			}
			var payload submitAnswerPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				send <- errorMsg("invalid submitAnswer")
				continue
			}
			awarded, total, err := h.service.Submit(r.Context(), bound.PIN, playerID, payload.QuestionID, payload.ChosenIndices)
			if err != nil {
				send <- rejectMsg(err)
				continue
			}
			send <- outboundMessage[any]{Type: "accepted", Payload: acceptedPayload{
				QuestionID: payload.QuestionID,
				Awarded:    awarded,
				TotalScore: total,
			}}

		case "forceEndQuestion":
			if !h.requireRole(send, bound, isBound, roleHost) {
				continue
			}
			if err := h.service.ForceEnd(r.Context(), bound.PIN, playerID); err != nil {
				send <- rejectMsg(err)
			}

		case "nextQuestion":
			if !h.requireRole(send, bound, isBound, roleHost) {
				continue
			}
			if err := h.service.Next(r.Context(), bound.PIN, playerID); err != nil {
				send <- rejectMsg(err)
			}

		case "reconcileRoster":
			if !h.requireRole(send, bound, isBound, roleHost) {
				continue
			}
			var payload reconcilePayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				send <- errorMsg("invalid reconcileRoster")
				continue
			}
			if err := h.service.Reconcile(r.Context(), bound.PIN, payload.Roster); err != nil {
				send <- rejectMsg(err)
			}

		case "leaveRoom":
			if !isBound || bound.Role != rolePlayer {
				send <- rejectMsg(domain.ErrUnauthorized)
				continue
			}
			if err := h.service.Leave(r.Context(), bound.PIN, playerID); err != nil {
				send <- rejectMsg(err)
			}

		default:
			send <- errorMsg("unsupported message type")
		}
	}

	// Transport-level disconnect. A host disconnect starts the room's grace
	// window; a player disconnect only drops the mapping, the roster is
	// repaired by reconciliation so a reconnect keeps the score.
	h.mu.Lock()
	bound, wasBound := h.connections[connID]
	delete(h.connections, connID)
	h.mu.Unlock()
	if wasBound && bound.Role == roleHost {
		h.service.HostDisconnected(bound.PIN)
	}
	logger.Debug().Msg("connection closed")

	close(closeSignals)
	if pumpDone != nil {
		<-pumpDone
	}
	if cancelSub != nil {
		cancelSub()
	}
	close(send)
	<-writerDone
}

func (h *GatewayHandler) requireRole(send chan<- outboundMessage[any], bound binding, isBound bool, want role) bool {
	if !isBound || bound.Role != want {
		send <- rejectMsg(domain.ErrUnauthorized)
		return false
	}
	return true
}

func rejectMsg(err error) outboundMessage[any] {
	return outboundMessage[any]{Type: "rejected", Payload: rejectedPayload{Reason: domain.RejectReason(err)}}
}

func errorMsg(message string) outboundMessage[any] {
	return outboundMessage[any]{Type: "error", Payload: errorPayload{Message: message}}
}
