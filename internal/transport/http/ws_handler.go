package http

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"audience-response-service/internal/app"
	"audience-response-service/internal/domain"
	"github.com/gorilla/websocket"
)

// SessionResolver looks up the session a client wants to follow.
type SessionResolver interface {
	GetSessionByKey(ctx context.Context, key string) (domain.Session, error)
}

// WSHandler is the websocket endpoint for a session: it streams round
// lifecycle and progress notifications to every follower and accepts answer
// and progress commands from participants. It subscribes to the event bus and
// fans matching events out to the connections registered for that session.
type WSHandler struct {
	resolver SessionResolver
	contents *app.ContentService
	progress *app.ProgressService
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns map[string]map[chan domain.Event]struct{}
}

func NewWSHandler(resolver SessionResolver, contents *app.ContentService, progress *app.ProgressService) *WSHandler {
	return &WSHandler{
		resolver: resolver,
		contents: contents,
		progress: progress,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		conns: make(map[string]map[chan domain.Event]struct{}),
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type answerPayload struct {
	ContentID  string `json:"contentId"`
	Value      int    `json:"value"`
	Abstention bool   `json:"abstention"`
}

type progressPayload struct {
	Type    string         `json:"type"`
	Variant domain.Variant `json:"variant"`
	Mine    bool           `json:"mine"`
}

type progressResult struct {
	Type     string         `json:"type"`
	Variant  domain.Variant `json:"variant,omitempty"`
	Achieved int            `json:"achieved"`
	Total    int            `json:"total"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// roundPayload mirrors the round information pushed to clients when a round is
// scheduled, ended, cancelled, or reset.
type roundPayload struct {
	ContentID string         `json:"id"`
	Round     int            `json:"round"`
	Variant   domain.Variant `json:"variant,omitempty"`
	StartTime int64          `json:"startTime,omitempty"`
	EndTime   int64          `json:"endTime,omitempty"`
}

type sessionPayload struct {
	SessionID string `json:"sessionId"`
}

// HandleEvent implements events.Subscriber. Slow clients get stale updates
// dropped rather than blocking the publisher.
func (h *WSHandler) HandleEvent(_ context.Context, event domain.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.conns[event.SessionID] {
		select {
		case ch <- event:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- event
		}
	}
}

// ServeWS upgrades the request and serves the session's event stream until
// the client disconnects. A userId is only needed to submit answers or ask
// for personal progress; projector-style followers can omit it.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	sessionKey := r.URL.Query().Get("sessionKey")
	if sessionKey == "" {
		http.Error(w, "missing sessionKey", http.StatusBadRequest)
		return
	}
	userID := r.URL.Query().Get("userId")

	session, err := h.resolver.GetSessionByKey(r.Context(), sessionKey)
	if err != nil {
		http.Error(w, "unknown session", http.StatusNotFound)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	ch := h.register(session.ID)
	defer h.unregister(session.ID, ch)

	// Single writer: command replies and bus events are merged below, so the
	// read loop never writes to the connection itself.
	send := make(chan outboundMessage[any], 16)
	done := make(chan struct{})
	quit := make(chan struct{})
	defer close(quit)
	go func() {
		defer close(done)
		for {
			var inbound inboundMessage
			if err := conn.ReadJSON(&inbound); err != nil {
				return
			}
			reply := h.handleCommand(r.Context(), session, userID, inbound)
			select {
			case send <- reply:
			case <-quit:
				return
			}
		}
	}()

	if err := conn.WriteJSON(outboundMessage[sessionPayload]{
		Type:    "joined",
		Payload: sessionPayload{SessionID: session.ID},
	}); err != nil {
		return
	}

	for {
		select {
		case <-done:
			return
		case msg := <-send:
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
		case event := <-ch:
			if err := writeEvent(conn, event); err != nil {
				return
			}
		}
	}
}

func (h *WSHandler) handleCommand(ctx context.Context, session domain.Session, userID string, inbound inboundMessage) outboundMessage[any] {
	switch inbound.Type {
	case "answer":
		if userID == "" {
			return errorMessage("answers require a userId")
		}
		var payload answerPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			return errorMessage("invalid answer payload")
		}
		answer, err := h.contents.SubmitAnswer(ctx, payload.ContentID, domain.User{ID: userID}, domain.Answer{
			Value:      payload.Value,
			Abstention: payload.Abstention,
		})
		if err != nil {
			return errorMessage(err.Error())
		}
		return outboundMessage[any]{Type: "answerAccepted", Payload: answer}
	case "progress":
		var payload progressPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			return errorMessage("invalid progress payload")
		}
		options := domain.ScoreOptions{Type: payload.Type, Variant: payload.Variant}
		var values domain.ProgressValues
		var err error
		if payload.Mine {
			if userID == "" {
				return errorMessage("personal progress requires a userId")
			}
			values, err = h.progress.MyProgress(ctx, session.Key, options, domain.User{ID: userID})
		} else {
			values, err = h.progress.CourseProgress(ctx, session.Key, options)
		}
		if err != nil {
			return errorMessage(err.Error())
		}
		return outboundMessage[any]{Type: "progress", Payload: progressResult{
			Type:     options.Type,
			Variant:  options.Variant,
			Achieved: values.Achieved,
			Total:    values.Total,
		}}
	default:
		return errorMessage("unsupported message type")
	}
}

func errorMessage(message string) outboundMessage[any] {
	return outboundMessage[any]{Type: "error", Payload: errorPayload{Message: message}}
}

func writeEvent(conn *websocket.Conn, event domain.Event) error {
	switch event.Kind {
	case domain.EventProgressChanged:
		return conn.WriteJSON(outboundMessage[sessionPayload]{
			Type:    string(event.Kind),
			Payload: sessionPayload{SessionID: event.SessionID},
		})
	default:
		return conn.WriteJSON(outboundMessage[roundPayload]{
			Type: string(event.Kind),
			Payload: roundPayload{
				ContentID: event.ContentID,
				Round:     event.Round,
				Variant:   event.Variant,
				StartTime: event.StartTime,
				EndTime:   event.EndTime,
			},
		})
	}
}

func (h *WSHandler) register(sessionID string) chan domain.Event {
	ch := make(chan domain.Event, 8)
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.conns[sessionID] == nil {
		h.conns[sessionID] = make(map[chan domain.Event]struct{})
	}
	h.conns[sessionID][ch] = struct{}{}
	return ch
}

func (h *WSHandler) unregister(sessionID string, ch chan domain.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns[sessionID], ch)
	if len(h.conns[sessionID]) == 0 {
		delete(h.conns, sessionID)
	}
}
