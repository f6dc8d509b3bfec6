package http

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"quiz-session-service/internal/app"
	"quiz-session-service/internal/store"
)

type WSHandler struct {
	engine      *app.Engine
	leaderboard *app.Leaderboard
	sessions    app.SessionRepository
	log         *zap.Logger
	upgrader    websocket.Upgrader
}

func NewWSHandler(engine *app.Engine, leaderboard *app.Leaderboard, sessions app.SessionRepository, log *zap.Logger) *WSHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &WSHandler{
		engine:      engine,
		leaderboard: leaderboard,
		sessions:    sessions,
		log:         log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type answerPayload struct {
	Option string `json:"option"`
}

type sessionPayload struct {
	ID string `json:"id"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload,omitempty"`
}

// errorPayload never carries error detail, only a coarse code for the client UI.
type errorPayload struct {
	State string `json:"state"`
	Code  string `json:"code"`
}

func errorMessage(err error) outboundMessage[any] {
	_, code := classify(err)
	return outboundMessage[any]{Type: "error", Payload: errorPayload{State: "error", Code: code}}
}

// connWriter serializes writes to a websocket; gorilla connections allow one writer.
type connWriter struct {
	send chan outboundMessage[any]
	done chan struct{}
}

func startWriter(conn *websocket.Conn, log *zap.Logger) *connWriter {
	w := &connWriter{send: make(chan outboundMessage[any], 16), done: make(chan struct{})}
	go func() {
		defer close(w.done)
		for msg := range w.send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Debug("ws write failed", zap.Error(err))
				// keep draining so producers never block
				for range w.send {
				}
				return
			}
		}
	}()
	return w
}

func (w *connWriter) close() {
	close(w.send)
	<-w.done
}

// startReader decodes client messages until the connection fails or ctx ends,
// then closes the returned channel and calls gone.
func startReader(ctx context.Context, conn *websocket.Conn, gone context.CancelFunc) <-chan inboundMessage {
	ch := make(chan inboundMessage, 16)
	go func() {
		defer close(ch)
		defer gone()
		for {
			var msg inboundMessage
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			select {
			case ch <- msg:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch
}

// ServeSession runs one quiz playthrough over a websocket. Closing the socket tears
// the session down.
func (h *WSHandler) ServeSession(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	category := r.URL.Query().Get("category")
	if userID == "" {
		writeError(w, h.log, errAuth)
		return
	}
	if category == "" {
		http.Error(w, "missing category", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	out := startWriter(conn, h.log)
	defer out.close()

	// The hijacked connection no longer cancels r.Context, so the reader does:
	// a client leaving during the start fetch abandons it.
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	inbound := startReader(ctx, conn, cancel)
	out.send <- outboundMessage[any]{Type: "loading"}

	session, err := h.engine.Start(ctx, userID, category)
	if err != nil {
		out.send <- errorMessage(err)
		return
	}
	defer session.Close()

	id, err := store.NewPushID()
	if err != nil {
		out.send <- errorMessage(err)
		return
	}
	h.sessions.Put(id, session)
	defer h.sessions.Delete(id)
	out.send <- outboundMessage[any]{Type: "session", Payload: sessionPayload{ID: id}}

	updates, unsubscribe := session.Updates()
	defer unsubscribe()
	closeSignals := make(chan struct{})
	updatesDone := make(chan struct{})
	go func() {
		defer close(updatesDone)
		for {
			select {
			case snap, ok := <-updates:
				if !ok {
					return
				}
				select {
				case out.send <- outboundMessage[any]{Type: "state", Payload: snap}:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	for msg := range inbound {
		var actionErr error
		switch msg.Type {
		case "start":
			_, actionErr = session.Begin()
		case "answer":
			var payload answerPayload
			if err := json.Unmarshal(msg.Payload, &payload); err != nil {
				out.send <- outboundMessage[any]{Type: "error", Payload: errorPayload{State: "error", Code: "invalid"}}
				continue
			}
			_, actionErr = session.Answer(payload.Option)
		case "next":
			_, actionErr = session.Next()
		case "exit":
			session.Exit()
		default:
			out.send <- outboundMessage[any]{Type: "error", Payload: errorPayload{State: "error", Code: "unsupported"}}
			continue
		}
		if actionErr != nil {
			out.send <- errorMessage(actionErr)
		}
	}

	close(closeSignals)
	<-updatesDone
}

// ServeLeaderboard streams standing updates for one user until the socket closes.
func (h *WSHandler) ServeLeaderboard(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		writeError(w, h.log, errAuth)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	out := startWriter(conn, h.log)
	defer out.close()

	standings, cancel := h.leaderboard.Watch(userID)
	defer cancel()

	closeSignals := make(chan struct{})
	updatesDone := make(chan struct{})
	go func() {
		defer close(updatesDone)
		for {
			select {
			case standing, ok := <-standings:
				if !ok {
					return
				}
				select {
				case out.send <- outboundMessage[any]{Type: "standing", Payload: standing}:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	// Clients send nothing; reading detects the close.
	for {
		if _, _, err := conn.NextReader(); err != nil {
			break
		}
	}
	close(closeSignals)
	<-updatesDone
}
