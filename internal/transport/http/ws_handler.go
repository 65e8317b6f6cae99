package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"trivia-solo-service/internal/app"
	"trivia-solo-service/internal/domain"
)

type WSHandler struct {
	service  *app.GameService
	gate     *IdentityGate
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.GameService, gate *IdentityGate, logger *zap.Logger) *WSHandler {
	return &WSHandler{
		service: service,
		gate:    gate,
		logger:  logger,
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
	QuestionIndex int `json:"questionIndex"`
	AnswerIndex   int `json:"answerIndex"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// ServeWS upgrades HTTP requests to websockets and wires them into the player's game.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.gate.Identify(r)
	if !ok {
		http.Error(w, domain.ErrUnauthenticated.Error(), http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	log := h.logger.With(zap.String("user_id", identity.UserID))
	h.service.Open(identity, r.Header.Get("Cookie"))
	defer h.service.Leave(identity.UserID)

	updates, cancel, err := h.service.Subscribe(identity.UserID)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}})
		return
	}
	defer cancel()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	// single writer; gorilla connections allow one concurrent writer
	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Debug("ws write error", zap.Error(err))
				return
			}
		}
	}()

	go func() {
		defer close(updatesDone)
		for {
			select {
			case view, ok := <-updates:
				if !ok {
					return
				}
				select {
				case send <- outboundMessage[any]{Type: "state", Payload: view}:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	sendErr := func(msg string) {
		select {
		case send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: msg}}:
		case <-writerDone:
		}
	}

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "generate":
			details := domain.DefaultGameDetails()
			if len(inbound.Payload) > 0 {
				if err := json.Unmarshal(inbound.Payload, &details); err != nil {
					sendErr("invalid generate payload")
					continue
				}
			}
			if err := h.service.Start(identity.UserID, details); err != nil {
				sendErr(playerMessage(err))
			}
		case "cancel":
			if err := h.service.Cancel(identity.UserID); err != nil {
				sendErr(playerMessage(err))
			}
		case "answer":
			var payload answerPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				sendErr("invalid answer payload")
				continue
			}
			if _, err := h.service.Answer(identity.UserID, payload.QuestionIndex, payload.AnswerIndex); err != nil {
				sendErr(playerMessage(err))
			}
		case "newGame":
			if err := h.service.NewGame(identity.UserID); err != nil {
				sendErr(playerMessage(err))
			}
		default:
			sendErr("unsupported message type")
		}
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}

func playerMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrGameNotFound),
		errors.Is(err, domain.ErrNoCurrentQuestion),
		errors.Is(err, domain.ErrAnswerNotFound),
		errors.Is(err, domain.ErrNewGameUnavailable):
		return err.Error()
	default:
		return domain.UserMessage(err)
	}
}
