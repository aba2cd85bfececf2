package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"grouporder-services/internal/auth"
	"grouporder-services/internal/config"
	"grouporder-services/internal/docstore"
	"grouporder-services/internal/grouporder"
	"grouporder-services/internal/metrics"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	commandLimit = rate.Limit(20)
	commandBurst = 40
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Server hosts one group order session per websocket connection.
type Server struct {
	Store     docstore.Store
	Catalog   grouporder.Catalog
	Submitter grouporder.OrderSubmitter
	Metrics   *metrics.Registry
	Logger    *zap.Logger
	Config    config.Config
}

func New(store docstore.Store, catalog grouporder.Catalog, submitter grouporder.OrderSubmitter, reg *metrics.Registry, logger *zap.Logger, cfg config.Config) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{Store: store, Catalog: catalog, Submitter: submitter, Metrics: reg, Logger: logger, Config: cfg}
}

type wsClient struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (c *wsClient) writeJSON(value any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(value)
}

func (c *wsClient) ping(timeout time.Duration) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(timeout))
}

// viewPump keeps only the newest view. Views are produced on several goroutines, so a
// revision older than one already queued or sent is dropped.
type viewPump struct {
	mu     sync.Mutex
	latest *grouporder.View
	sent   uint64
	wake   chan struct{}
}

func newViewPump() *viewPump {
	return &viewPump{wake: make(chan struct{}, 1)}
}

func (p *viewPump) offer(v grouporder.View) {
	p.mu.Lock()
	if v.Revision <= p.sent || (p.latest != nil && v.Revision <= p.latest.Revision) {
		p.mu.Unlock()
		return
	}
	p.latest = &v
	p.mu.Unlock()

	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *viewPump) take() (grouporder.View, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.latest == nil {
		return grouporder.View{}, false
	}
	v := *p.latest
	p.latest = nil
	p.sent = v.Revision
	return v, true
}

func (s *Server) failurePolicy() grouporder.FailurePolicy {
	if strings.EqualFold(s.Config.GroupOrderFailurePolicy, "revert") {
		return grouporder.RevertOnFailure
	}
	return grouporder.KeepOptimistic
}

func (s *Server) resolveSessionID(ctx context.Context, id, code string) (string, error) {
	if id = strings.TrimSpace(id); id != "" {
		return id, nil
	}
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return "", errors.New("missing session")
	}
	snap, err := s.Store.FindOne(ctx, grouporder.Collection, "code", code)
	if err != nil {
		return "", err
	}
	return snap.Key.ID, nil
}

// GroupOrderWS serves ?code=... or ?id=..., with an optional ?token=... or bearer header.
func (s *Server) GroupOrderWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	client := &wsClient{conn: conn}
	query := r.URL.Query()

	sessionID, err := s.resolveSessionID(ctx, query.Get("id"), query.Get("code"))
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			_ = client.writeJSON(closedFrame{Type: frameClosed, Reason: "not_found"})
			return
		}
		_ = client.writeJSON(errorFrame{Type: frameError, Code: "BAD_REQUEST", Message: "invalid request"})
		return
	}

	identity := auth.NewIdentity("")
	token := strings.TrimSpace(query.Get("token"))
	if token == "" {
		token = auth.ParseBearerToken(r.Header.Get("Authorization"))
	}
	if token != "" {
		if _, err := identity.Authenticate(token, s.Config.JWTSecret); err != nil {
			_ = client.writeJSON(errorFrame{Type: frameError, Op: "auth", Code: "UNAUTHORIZED", Message: "invalid token"})
		}
	}

	logger := s.Logger.With(zap.String("sessionId", sessionID))
	pump := newViewPump()
	sess := grouporder.NewSession(s.Store, grouporder.Options{
		Catalog:         s.Catalog,
		Identity:        identity,
		Logger:          logger,
		Metrics:         s.Metrics,
		Submitter:       s.Submitter,
		FailurePolicy:   s.failurePolicy(),
		MaxParticipants: s.Config.GroupOrderMaxParticipants,
		WriteRetries:    s.Config.GroupOrderWriteRetries,
		RetryDelay:      s.Config.GroupOrderWriteRetryDelay,
		OnChange:        pump.offer,
	})
	defer sess.Close()

	if err := sess.Subscribe(ctx, sessionID); err != nil {
		_ = client.writeJSON(closedFrame{Type: frameClosed, Reason: "vanished"})
		return
	}
	logger.Debug("group order client connected", zap.Bool("anonymous", identity.CurrentUserID() == nil))

	heartbeat := s.Config.WSHeartbeatInterval
	if heartbeat > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(2 * heartbeat))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(2 * heartbeat))
		})
	}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		s.pumpViews(ctx, client, pump, sess.Done(), heartbeat)
	}()

	s.readCommands(client, sess, identity, logger)
	cancel()
	<-writerDone
	logger.Debug("group order client disconnected")
}

func (s *Server) pumpViews(ctx context.Context, client *wsClient, pump *viewPump, vanished <-chan struct{}, heartbeat time.Duration) {
	var ping <-chan time.Time
	if heartbeat > 0 {
		ticker := time.NewTicker(heartbeat)
		defer ticker.Stop()
		ping = ticker.C
	}

	sendLatest := func() bool {
		v, ok := pump.take()
		if !ok {
			return true
		}
		return client.writeJSON(viewFrame{Type: frameView, Data: v}) == nil
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-pump.wake:
			if !sendLatest() {
				_ = client.conn.Close()
				return
			}
		case <-vanished:
			sendLatest()
			_ = client.writeJSON(closedFrame{Type: frameClosed, Reason: "vanished"})
			_ = client.conn.Close()
			return
		case <-ping:
			if err := client.ping(heartbeat); err != nil {
				_ = client.conn.Close()
				return
			}
		}
	}
}

func (s *Server) readCommands(client *wsClient, sess *grouporder.Session, identity *auth.Identity, logger *zap.Logger) {
	limiter := rate.NewLimiter(commandLimit, commandBurst)
	for {
		_, data, err := client.conn.ReadMessage()
		if err != nil {
			return
		}
		if !limiter.Allow() {
			_ = client.writeJSON(errorFrame{Type: frameError, Code: "RATE_LIMITED", Message: "too many commands"})
			continue
		}
		var cmd command
		if err := json.Unmarshal(data, &cmd); err != nil {
			_ = client.writeJSON(errorFrame{Type: frameError, Code: "BAD_REQUEST", Message: "invalid command"})
			continue
		}
		if err := s.dispatch(sess, identity, cmd); err != nil {
			logger.Debug("group order command rejected", zap.String("op", cmd.Type), zap.Error(err))
			_ = client.writeJSON(errorFrame{
				Type:      frameError,
				Op:        cmd.Type,
				RequestID: cmd.RequestID,
				Code:      errorCode(err),
				Message:   err.Error(),
			})
			continue
		}
		_ = client.writeJSON(ackFrame{Type: frameAck, Op: cmd.Type, RequestID: cmd.RequestID})
	}
}
