package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/FocuswithJustin/JuniperBot/core/errors"
	"github.com/FocuswithJustin/JuniperBot/core/passage"
	"github.com/FocuswithJustin/JuniperBot/core/session"
	"github.com/FocuswithJustin/JuniperBot/internal/logging"
)

// Client frame types.
const (
	FrameLookup   = "lookup"
	FrameNext     = "next"
	FramePrevious = "previous"
	FramePing     = "ping"
	FrameCommands = "commands"
)

// Server frame types.
const (
	FramePassage = "passage"
	FramePage    = "page"
	FramePong    = "pong"
	FrameHelp    = "help"
	FrameError   = "error"
)

const (
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 54 * time.Second
	wsWriteWait  = 10 * time.Second
	wsSendBuffer = 16
)

// ClientFrame is a request sent over the websocket. ID is echoed in the
// reply so clients can correlate.
type ClientFrame struct {
	Type        string `json:"type"`
	ID          string `json:"id,omitempty"`
	Reference   string `json:"reference,omitempty"`
	Translation string `json:"translation,omitempty"`
	Mode        string `json:"mode,omitempty"`
	Delivery    string `json:"delivery,omitempty"`
	SessionID   string `json:"session_id,omitempty"`
}

// ServerFrame is a reply sent to the one client that asked.
type ServerFrame struct {
	Type      string           `json:"type"`
	ID        string           `json:"id,omitempty"`
	Passage   *PassageResponse `json:"passage,omitempty"`
	Page      *session.Page    `json:"page,omitempty"`
	Message   string           `json:"message,omitempty"`
	Error     *APIError        `json:"error,omitempty"`
	Timestamp string           `json:"timestamp"`
}

// wsClient is one connection. Its actor identity is fixed at upgrade time
// and used for every lookup and navigation it sends. sessions lists the
// pagination sessions it opened; only readPump touches it.
type wsClient struct {
	conn     *websocket.Conn
	actor    string
	send     chan []byte
	limiter  *tokenBucket
	sessions []string
}

// hub tracks open connections so they can be counted and closed on
// shutdown. Replies never fan out.
type hub struct {
	mu      sync.Mutex
	clients map[*wsClient]struct{}
}

func newHub() *hub {
	return &hub{clients: make(map[*wsClient]struct{})}
}

func (h *hub) add(c *wsClient) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
	return len(h.clients)
}

func (h *hub) remove(c *wsClient) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, c)
	return len(h.clients)
}

func (h *hub) len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		c.conn.Close()
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	actor := strings.TrimSpace(r.URL.Query().Get("actor"))
	if actor == "" {
		actor = strings.TrimSpace(r.Header.Get(logging.ActorHeader))
	}
	if actor == "" {
		respondError(w, http.StatusBadRequest, "INVALID_REQUEST", "Missing actor")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warn("websocket upgrade failed", "error", err, "origin", r.Header.Get("Origin"))
		return
	}
	conn.SetReadLimit(s.cfg.WebSocket.MaxMessageSize)

	rate := float64(s.cfg.WebSocket.MaxMessageRate)
	c := &wsClient{
		conn:    conn,
		actor:   actor,
		send:    make(chan []byte, wsSendBuffer),
		limiter: newTokenBucket(2*rate, rate, time.Now()),
	}
	logging.WebSocketEvent("client_connected", s.hub.add(c), "actor", actor, "client_ip", getClientIP(r))

	go c.writePump()
	s.readPump(r.Context(), c)
}

// readPump serves frames until the connection fails or misbehaves.
func (s *Server) readPump(ctx context.Context, c *wsClient) {
	defer func() {
		released := s.svc.Release(context.WithoutCancel(ctx), c.actor, c.sessions)
		logging.WebSocketEvent("client_disconnected", s.hub.remove(c), "actor", c.actor,
			"sessions_released", released)
		close(c.send)
	}()

	c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logging.Warn("websocket unexpected close", "error", err, "actor", c.actor)
			}
			return
		}
		if !c.limiter.allow(time.Now()) {
			logging.SecurityEvent("websocket_rate_limited", "websocket", "actor", c.actor)
			c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "Rate limit exceeded"),
				time.Now().Add(wsWriteWait))
			return
		}

		reply := s.serveFrame(ctx, c.actor, message)
		if reply.Passage != nil && reply.Passage.Page != nil {
			c.sessions = append(c.sessions, reply.Passage.Page.SessionID)
		}
		data, err := json.Marshal(reply)
		if err != nil {
			logging.Error("failed to marshal websocket frame", "error", err)
			continue
		}
		select {
		case c.send <- data:
		default:
			logging.Warn("websocket send buffer full, closing", "actor", c.actor)
			return
		}
	}
}

// serveFrame answers one client frame.
func (s *Server) serveFrame(ctx context.Context, actor string, message []byte) ServerFrame {
	var in ClientFrame
	if err := json.Unmarshal(message, &in); err != nil {
		return errorFrame("", "INVALID_REQUEST", "Invalid JSON frame")
	}
	ctx = logging.WithRequestID(ctx, uuid.NewString())

	switch in.Type {
	case FrameLookup:
		req, err := buildRequest(PassageRequest{
			Reference:   in.Reference,
			Translation: in.Translation,
			Mode:        in.Mode,
			Delivery:    in.Delivery,
		}, actor)
		if err != nil {
			return errorFrame(in.ID, "INVALID_REQUEST", err.Error())
		}
		res, err := s.svc.Resolve(ctx, req)
		if err != nil {
			return kindErrorFrame(in.ID, err)
		}
		resp := newPassageResponse(res)
		return newFrame(FramePassage, in.ID, func(f *ServerFrame) { f.Passage = &resp })

	case FrameNext, FramePrevious:
		action, _ := session.ParseAction(in.Type)
		page, err := s.svc.Navigate(ctx, in.SessionID, actor, action)
		if err != nil {
			return kindErrorFrame(in.ID, err)
		}
		return newFrame(FramePage, in.ID, func(f *ServerFrame) { f.Page = &page })

	case FramePing:
		return newFrame(FramePong, in.ID, func(f *ServerFrame) { f.Message = passage.Pong })

	case FrameCommands:
		help := passage.HelpText("/", passage.Commands(s.svc.Config().Book))
		return newFrame(FrameHelp, in.ID, func(f *ServerFrame) { f.Message = help })
	}
	return errorFrame(in.ID, "INVALID_REQUEST", "Unknown frame type")
}

func newFrame(typ, id string, fill func(*ServerFrame)) ServerFrame {
	f := ServerFrame{Type: typ, ID: id, Timestamp: time.Now().UTC().Format(time.RFC3339)}
	fill(&f)
	return f
}

func errorFrame(id, code, message string) ServerFrame {
	return newFrame(FrameError, id, func(f *ServerFrame) {
		f.Error = &APIError{Code: code, Message: message}
	})
}

func kindErrorFrame(id string, err error) ServerFrame {
	kind := errors.KindOf(err)
	if kind == errors.KindInternal {
		logging.Error("websocket request failed", "error", err)
	}
	return errorFrame(id, kind.Code(), kind.UserMessage())
}

// writePump is the only writer of data frames on the connection.
func (c *wsClient) writePump() {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
