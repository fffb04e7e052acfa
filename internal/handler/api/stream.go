package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"FinChart/internal/domain/models"
	"FinChart/internal/usecase"
	xhttp "FinChart/pkg/http"
	xlogger "FinChart/pkg/logger"
)

// StreamConfig tunes the view-state websocket.
type StreamConfig struct {
	PingInterval time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// CheckOrigin defaults to accepting every origin.
	CheckOrigin func(r *http.Request) bool
}

func (s StreamConfig) withDefaults() StreamConfig {
	if s.PingInterval <= 0 {
		s.PingInterval = 30 * time.Second
	}
	if s.ReadTimeout <= 0 {
		s.ReadTimeout = 2 * s.PingInterval
	}
	if s.WriteTimeout <= 0 {
		s.WriteTimeout = 5 * time.Second
	}
	if s.CheckOrigin == nil {
		s.CheckOrigin = func(*http.Request) bool { return true }
	}
	return s
}

// streamMessage is a server to client frame.
type streamMessage struct {
	Type  string            `json:"type"`
	Data  *usecase.Snapshot `json:"data,omitempty"`
	Error string            `json:"error,omitempty"`
}

// streamCommand is a client to server frame. High-frequency input (pointer
// moves, crosshair) goes over the socket instead of one POST per event.
type streamCommand struct {
	Type  string  `json:"type"`
	Phase string  `json:"phase,omitempty"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Clear bool    `json:"clear,omitempty"`
}

// Stream upgrades to a websocket and pushes a snapshot after every change to
// the session. The socket closes when the session does.
func (h *ChartsHandler) Stream(c echo.Context) error {
	req := &models.ChartIDRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	updates, cancel, err := h.sessions.Subscribe(req.ID)
	if err != nil {
		return h.fail(c, "subscribe chart", err)
	}
	defer cancel()

	upgrader := websocket.Upgrader{CheckOrigin: h.stream.CheckOrigin}
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		h.logger.Debug("websocket upgrade failed", xlogger.String("session", req.ID), xlogger.Error(err))
		return nil
	}
	defer conn.Close()

	log := h.logger.With(xlogger.String("session", req.ID))
	log.Debug("stream opened")

	// Reader: keeps the deadline fresh and applies commands. Replies to
	// commands travel back as the snapshots they cause.
	readErr := make(chan error, 1)
	cmdErrs := make(chan string, 8)
	go func() {
		_ = conn.SetReadDeadline(time.Now().Add(h.stream.ReadTimeout))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(h.stream.ReadTimeout))
		})
		for {
			mt, data, err := conn.ReadMessage()
			if err != nil {
				readErr <- err
				return
			}
			if mt != websocket.TextMessage {
				continue
			}
			if err := h.applyCommand(req.ID, data); err != nil {
				select {
				case cmdErrs <- err.Error():
				default:
				}
			}
		}
	}()

	ping := time.NewTicker(h.stream.PingInterval)
	defer ping.Stop()

	write := func(v interface{}) error {
		_ = conn.SetWriteDeadline(time.Now().Add(h.stream.WriteTimeout))
		return conn.WriteJSON(v)
	}

	for {
		select {
		case snap, ok := <-updates:
			if !ok {
				_ = write(streamMessage{Type: "closed"})
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "chart closed"),
					time.Now().Add(h.stream.WriteTimeout))
				log.Debug("stream closed by session")
				return nil
			}
			if err := write(streamMessage{Type: "snapshot", Data: &snap}); err != nil {
				log.Debug("stream write failed", xlogger.Error(err))
				return nil
			}
		case msg := <-cmdErrs:
			if err := write(streamMessage{Type: "error", Error: msg}); err != nil {
				return nil
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.stream.WriteTimeout)); err != nil {
				return nil
			}
		case err := <-readErr:
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug("stream read ended", xlogger.Error(err))
			}
			return nil
		}
	}
}

func (h *ChartsHandler) applyCommand(id string, data []byte) error {
	var cmd streamCommand
	if err := json.Unmarshal(data, &cmd); err != nil {
		return err
	}
	var err error
	switch cmd.Type {
	case "pointer":
		_, err = h.sessions.Pointer(id, usecase.PointerPhase(cmd.Phase), cmd.X, cmd.Y)
	case "crosshair":
		_, err = h.sessions.Crosshair(id, cmd.X, cmd.Y, cmd.Clear)
	default:
		err = xhttp.BadRequestError("unknown command " + cmd.Type)
	}
	return err
}
