// Package channel serves the desk over HTTP and WebSocket.
package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"helpdesk-ai/internal/domain"
	"helpdesk-ai/internal/infra/config"
	"helpdesk-ai/internal/infra/middleware"
	"helpdesk-ai/internal/usecase"
)

const maxBodyBytes = 1 << 20

// Desk is the subset of usecase.Desk the API needs.
type Desk interface {
	Ask(ctx context.Context, sessionID, userID, message string) (usecase.Reply, error)
	ResolveApproval(ctx context.Context, sessionID, approverID string, approve bool) (usecase.Reply, error)
	Feedback(ctx context.Context, sessionID, turnID string, positive bool) error
	Metrics() usecase.MetricsSnapshot
}

type chatRequest struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
	Message   string `json:"message"`
}

type approveRequest struct {
	SessionID  string `json:"session_id"`
	ApproverID string `json:"approver_id"`
	Approve    bool   `json:"approve"`
}

type feedbackRequest struct {
	SessionID string `json:"session_id"`
	TurnID    string `json:"turn_id"`
	Positive  bool   `json:"positive"`
}

// Frame is one WebSocket message in either direction. Clients send
// "chat", "approve" or "feedback"; the server answers with "reply",
// "ack" or "error" and forwards desk events for the connection's
// session as "event".
type Frame struct {
	Type      string         `json:"type"`
	SessionID string         `json:"session_id,omitempty"`
	UserID    string         `json:"user_id,omitempty"`
	Message   string         `json:"message,omitempty"`
	TurnID    string         `json:"turn_id,omitempty"`
	Approve   bool           `json:"approve,omitempty"`
	Positive  bool           `json:"positive,omitempty"`
	Reply     *usecase.Reply `json:"reply,omitempty"`
	Event     *domain.Event  `json:"event,omitempty"`
	Error     string         `json:"error,omitempty"`
	Code      string         `json:"code,omitempty"`
}

// HTTPServer exposes the desk API.
type HTTPServer struct {
	desk   Desk
	bus    domain.EventBus
	cfg    config.HTTPConfig
	logger *slog.Logger

	server    *http.Server
	boundAddr string
	conns     sync.WaitGroup

	// Lifecycle of the rate limiter sweep.
	ctx    context.Context
	cancel context.CancelFunc
}

// NewHTTPServer creates the API server. bus may be nil, in which case
// WebSocket clients only receive replies.
func NewHTTPServer(desk Desk, bus domain.EventBus, cfg config.HTTPConfig, logger *slog.Logger) *HTTPServer {
	return &HTTPServer{desk: desk, bus: bus, cfg: cfg, logger: logger}
}

// Handler builds the routed, middleware-wrapped handler.
func (h *HTTPServer) Handler(ctx context.Context) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/chat", h.handleChat)
	mux.HandleFunc("/api/v1/approve", h.handleApprove)
	mux.HandleFunc("/api/v1/feedback", h.handleFeedback)
	mux.HandleFunc("/api/v1/metrics", h.handleMetrics)
	mux.HandleFunc("/api/v1/health", h.handleHealth)
	mux.HandleFunc("/api/v1/ws", h.handleWS)

	var next http.Handler = mux
	if h.cfg.RateLimit > 0 {
		burst := h.cfg.RateBurst
		if burst <= 0 {
			burst = h.cfg.RateLimit / 5
		}
		next = middleware.RateLimitWithConfig(ctx, middleware.RateLimitConfig{
			RequestsPerMin: h.cfg.RateLimit,
			BurstSize:      burst,
			TrustedProxies: h.cfg.TrustedProxies,
		})(next)
	}
	return middleware.AccessLog(h.logger)(
		middleware.Recover(h.logger)(
			middleware.SecurityHeaders(next),
		),
	)
}

// Start listens on the configured address and serves in the background.
func (h *HTTPServer) Start(ctx context.Context) error {
	h.ctx, h.cancel = context.WithCancel(ctx)

	h.server = &http.Server{
		Addr:              h.cfg.Addr,
		Handler:           h.Handler(h.ctx),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      120 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return h.ctx
		},
	}

	ln, err := net.Listen("tcp", h.cfg.Addr)
	if err != nil {
		h.cancel()
		return fmt.Errorf("listen %s: %w", h.cfg.Addr, err)
	}
	h.boundAddr = ln.Addr().String()

	go func() {
		h.logger.Info("http api started", "addr", h.boundAddr)
		if err := h.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			h.logger.Error("http server error", "error", err)
		}
	}()
	return nil
}

// Stop shuts the server down and waits for WebSocket clients to drop.
func (h *HTTPServer) Stop(ctx context.Context) error {
	if h.cancel != nil {
		h.cancel()
	}
	if h.server == nil {
		return nil
	}
	err := h.server.Shutdown(ctx)
	h.conns.Wait()
	return err
}

// BoundAddr is the listening address. Only valid after Start.
func (h *HTTPServer) BoundAddr() string { return h.boundAddr }

func (h *HTTPServer) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, domain.NewDomainError("HTTP.chat", domain.ErrInvalidInput, "message is required"))
		return
	}
	if req.UserID == "" {
		req.UserID = "anonymous"
	}
	reply, err := h.desk.Ask(r.Context(), req.SessionID, req.UserID, req.Message)
	if err != nil {
		h.logger.Warn("chat failed", "session_id", req.SessionID, "error", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

func (h *HTTPServer) handleApprove(w http.ResponseWriter, r *http.Request) {
	var req approveRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.SessionID == "" {
		writeError(w, domain.NewDomainError("HTTP.approve", domain.ErrInvalidInput, "session_id is required"))
		return
	}
	if req.ApproverID == "" {
		writeError(w, domain.NewDomainError("HTTP.approve", domain.ErrInvalidInput, "approver_id is required"))
		return
	}
	reply, err := h.desk.ResolveApproval(r.Context(), req.SessionID, req.ApproverID, req.Approve)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

func (h *HTTPServer) handleFeedback(w http.ResponseWriter, r *http.Request) {
	var req feedbackRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.SessionID == "" {
		writeError(w, domain.NewDomainError("HTTP.feedback", domain.ErrInvalidInput, "session_id is required"))
		return
	}
	if err := h.desk.Feedback(r.Context(), req.SessionID, req.TurnID, req.Positive); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "recorded"})
}

func (h *HTTPServer) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	writeJSON(w, http.StatusOK, h.desk.Metrics())
}

func (h *HTTPServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HTTPServer) handleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{
			"localhost",
			"localhost:*",
			"127.0.0.1",
			"127.0.0.1:*",
			"[::1]",
			"[::1]:*",
		},
	})
	if err != nil {
		h.logger.Warn("websocket accept failed", "error", err)
		return
	}
	ws.SetReadLimit(maxBodyBytes)

	h.conns.Add(1)
	defer h.conns.Done()

	c := &wsConn{
		ws:      ws,
		session: r.URL.Query().Get("session_id"),
		userID:  r.URL.Query().Get("user_id"),
		out:     make(chan Frame, 32),
		done:    make(chan struct{}),
	}
	if h.bus != nil {
		unsub := h.bus.SubscribeAll(c.forward)
		defer unsub()
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go func() {
		// Stop unblocks the read loop through the server context.
		select {
		case <-h.serverDone():
			ws.Close(websocket.StatusGoingAway, "server shutting down")
		case <-ctx.Done():
		}
	}()
	go c.writeLoop()

	h.logger.Info("websocket client connected", "session_id", c.session)
	h.readLoop(ctx, c)
	c.stop()
	ws.Close(websocket.StatusNormalClosure, "")
	h.logger.Info("websocket client disconnected", "session_id", c.currentSession())
}

func (h *HTTPServer) serverDone() <-chan struct{} {
	if h.ctx == nil {
		return nil
	}
	return h.ctx.Done()
}

// readLoop handles frames one at a time so a connection never has two
// turns in flight.
func (h *HTTPServer) readLoop(ctx context.Context, c *wsConn) {
	for {
		var in Frame
		if err := wsjson.Read(ctx, c.ws, &in); err != nil {
			return
		}
		c.send(h.dispatch(ctx, c, in))
	}
}

func (h *HTTPServer) dispatch(ctx context.Context, c *wsConn, in Frame) Frame {
	if in.SessionID == "" {
		in.SessionID = c.currentSession()
	}
	switch in.Type {
	case "chat":
		if in.UserID == "" {
			in.UserID = c.userID
		}
		if in.UserID == "" {
			in.UserID = "anonymous"
		}
		reply, err := h.desk.Ask(ctx, in.SessionID, in.UserID, in.Message)
		if err != nil {
			return errorFrame(err)
		}
		c.setSession(reply.SessionID)
		return Frame{Type: "reply", SessionID: reply.SessionID, Reply: &reply}
	case "approve":
		// The approver is the frame's user_id, else the connection's.
		if in.UserID == "" {
			in.UserID = c.userID
		}
		reply, err := h.desk.ResolveApproval(ctx, in.SessionID, in.UserID, in.Approve)
		if err != nil {
			return errorFrame(err)
		}
		return Frame{Type: "reply", SessionID: reply.SessionID, Reply: &reply}
	case "feedback":
		if err := h.desk.Feedback(ctx, in.SessionID, in.TurnID, in.Positive); err != nil {
			return errorFrame(err)
		}
		return Frame{Type: "ack", SessionID: in.SessionID}
	default:
		return Frame{Type: "error", Error: fmt.Sprintf("unknown frame type %q", in.Type), Code: string(domain.CodeInvalidInput)}
	}
}

type wsConn struct {
	ws     *websocket.Conn
	userID string
	out    chan Frame

	mu      sync.Mutex
	session string

	once sync.Once
	done chan struct{}
}

func (c *wsConn) currentSession() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

func (c *wsConn) setSession(id string) {
	c.mu.Lock()
	c.session = id
	c.mu.Unlock()
}

func (c *wsConn) stop() { c.once.Do(func() { close(c.done) }) }

func (c *wsConn) send(f Frame) {
	select {
	case c.out <- f:
	case <-c.done:
	}
}

// forward is the bus subscriber. Events for other sessions are ignored
// and a slow client drops events rather than blocking the bus.
func (c *wsConn) forward(_ context.Context, ev domain.Event) {
	if ev.SessionID == "" || ev.SessionID != c.currentSession() {
		return
	}
	select {
	case c.out <- Frame{Type: "event", SessionID: ev.SessionID, Event: &ev}:
	case <-c.done:
	default:
	}
}

func (c *wsConn) writeLoop() {
	for {
		select {
		case <-c.done:
			return
		case f := <-c.out:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			err := wsjson.Write(ctx, c.ws, f)
			cancel()
			if err != nil {
				c.stop()
				return
			}
		}
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "request body too large (max 1MB)"})
			return false
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON", "code": string(domain.CodeInvalidInput)})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	code := domain.ErrorCodeOf(err)
	writeJSON(w, statusFor(code), map[string]string{"error": err.Error(), "code": string(code)})
}

func errorFrame(err error) Frame {
	return Frame{Type: "error", Error: err.Error(), Code: string(domain.ErrorCodeOf(err))}
}

func statusFor(code domain.ErrorCode) int {
	switch code {
	case domain.CodeInvalidInput, domain.CodeInvalidArguments, domain.CodeUnknownOperation:
		return http.StatusBadRequest
	case domain.CodeSessionNotFound, domain.CodeNotFound, domain.CodeTicketNotFound:
		return http.StatusNotFound
	case domain.CodeNoPendingApproval:
		return http.StatusConflict
	case domain.CodeApproverInvalid:
		return http.StatusForbidden
	case domain.CodeRateLimit:
		return http.StatusTooManyRequests
	case domain.CodeAuthInvalid:
		return http.StatusUnauthorized
	case domain.CodeTimeout:
		return http.StatusGatewayTimeout
	case domain.CodeOperationFailed, domain.CodeUpstream, domain.CodeProviderError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
