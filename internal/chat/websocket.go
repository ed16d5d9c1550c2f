// Package chat carries assistant conversations over WebSocket connections.
package chat

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"golang.org/x/time/rate"

	"github.com/p-n-ai/pai-academy/internal/assistant"
	"github.com/p-n-ai/pai-academy/internal/platform/metrics"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 8192

	defaultRate  = rate.Limit(1) // messages per second
	defaultBurst = 5
)

// Frame types exchanged with the chat widget.
const (
	FrameMessage = "message"
	FrameTyping  = "typing"
	FrameReply   = "reply"
	FrameError   = "error"
)

// Frame is one JSON message on the socket.
type Frame struct {
	Type           string `json:"type"`
	Text           string `json:"text,omitempty"`
	ConversationID string `json:"conversationId,omitempty"`
	Degraded       bool   `json:"degraded,omitempty"`
}

// Responder answers a learner's message.
type Responder interface {
	Send(ctx context.Context, msg assistant.Inbound) (assistant.Reply, error)
}

// Identity is the learner behind a connection.
type Identity struct {
	UserID string
	Name   string
}

// IdentifyFunc resolves the learner for an upgrade request.
type IdentifyFunc func(r *http.Request) (Identity, bool)

// Option configures a Handler.
type Option func(*Handler)

// WithRateLimit sets the per-connection message rate.
func WithRateLimit(limit rate.Limit, burst int) Option {
	return func(h *Handler) {
		h.limit = limit
		h.burst = burst
	}
}

// WithOriginPatterns allows cross-origin upgrades from the given hosts.
func WithOriginPatterns(patterns ...string) Option {
	return func(h *Handler) { h.originPatterns = patterns }
}

// WithMetrics records connection and frame counts.
func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Handler) { h.metrics = m }
}

// Handler upgrades requests to WebSocket and relays frames to a Responder.
type Handler struct {
	responder      Responder
	identify       IdentifyFunc
	limit          rate.Limit
	burst          int
	originPatterns []string
	metrics        *metrics.Metrics
}

// NewHandler creates a chat WebSocket handler.
func NewHandler(responder Responder, identify IdentifyFunc, opts ...Option) *Handler {
	h := &Handler{
		responder: responder,
		identify:  identify,
		limit:     defaultRate,
		burst:     defaultBurst,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identify(r)
	if !ok {
		http.Error(w, "unknown user", http.StatusUnauthorized)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.originPatterns})
	if err != nil {
		slog.Warn("websocket accept failed", "user_id", id.UserID, "error", err)
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(maxMessageSize)

	h.metrics.ChatConnected()
	defer h.metrics.ChatDisconnected()
	slog.Info("chat connection opened", "user_id", id.UserID)

	err = h.serve(r.Context(), conn, id)
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		conn.Close(websocket.StatusNormalClosure, "")
	default:
		if err != nil && !errors.Is(err, context.Canceled) {
			slog.Warn("chat connection closed", "user_id", id.UserID, "error", err)
		}
		conn.Close(websocket.StatusInternalError, "")
	}
}

func (h *Handler) serve(ctx context.Context, conn *websocket.Conn, id Identity) error {
	limiter := rate.NewLimiter(h.limit, h.burst)
	for {
		var in Frame
		if err := wsjson.Read(ctx, conn, &in); err != nil {
			return err
		}
		h.metrics.ChatMessage("in")

		if in.Type != FrameMessage {
			if err := h.write(ctx, conn, Frame{Type: FrameError, Text: "unsupported frame type: " + in.Type}); err != nil {
				return err
			}
			continue
		}
		if !limiter.Allow() {
			if err := h.write(ctx, conn, Frame{Type: FrameError, Text: "You're sending messages too quickly. Please wait a moment."}); err != nil {
				return err
			}
			continue
		}

		if err := h.write(ctx, conn, Frame{Type: FrameTyping}); err != nil {
			return err
		}
		reply, err := h.responder.Send(ctx, assistant.Inbound{UserID: id.UserID, UserName: id.Name, Text: in.Text})
		out := Frame{Type: FrameReply, Text: reply.Text, ConversationID: reply.ConversationID, Degraded: reply.Degraded}
		if err != nil {
			out = Frame{Type: FrameError, Text: err.Error()}
		}
		if err := h.write(ctx, conn, out); err != nil {
			return err
		}
	}
}

func (h *Handler) write(ctx context.Context, conn *websocket.Conn, f Frame) error {
	ctx, cancel := context.WithTimeout(ctx, writeWait)
	defer cancel()
	if err := wsjson.Write(ctx, conn, f); err != nil {
		return err
	}
	h.metrics.ChatMessage("out")
	return nil
}
