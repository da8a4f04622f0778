package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/wfunc/trailparty/config"
	"github.com/wfunc/trailparty/logger"
	"github.com/wfunc/trailparty/monitor"
	"github.com/wfunc/trailparty/network"
	"github.com/wfunc/trailparty/room"
	"github.com/wfunc/trailparty/rpc"
	"github.com/wfunc/trailparty/session"
)

const shutdownTimeout = 5 * time.Second

// Deps are the collaborators a GameServer routes events to.
type Deps struct {
	Rooms    *room.Service
	Sessions *session.Manager
	Monitor  *monitor.Monitor
	// RPC is optional.
	RPC *rpc.Server
}

type GameServer struct {
	cfg            config.ServerConfig
	limits         config.RateLimitConfig
	upgrader       websocket.Upgrader
	rooms          *room.Service
	sessionManager *session.Manager
	monitor        *monitor.Monitor
	rpcServer      *rpc.Server
	router         *gin.Engine
}

func NewGameServer(cfg config.ServerConfig, limits config.RateLimitConfig, deps Deps) *GameServer {
	s := &GameServer{
		cfg:            cfg,
		limits:         limits,
		rooms:          deps.Rooms,
		sessionManager: deps.Sessions,
		monitor:        deps.Monitor,
		rpcServer:      deps.RPC,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // 允许所有跨域请求
			},
		},
	}
	s.router = s.setupRouter()
	return s
}

// Handler is the HTTP entry point, exposed for tests.
func (s *GameServer) Handler() http.Handler {
	return s.router
}

func (s *GameServer) setupRouter() *gin.Engine {
	if s.cfg.Mode != "" {
		gin.SetMode(s.cfg.Mode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	if gin.Mode() == gin.DebugMode {
		r.Use(requestLogger())
	}

	r.Static("/static", s.cfg.StaticPath)
	r.GET("/", func(c *gin.Context) {
		c.File(s.cfg.StaticPath + "/index.html")
	})
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":      "ok",
			"rooms":       s.rooms.Rooms().Count(),
			"connections": s.sessionManager.Count(),
		})
	})
	r.GET("/metrics", gin.WrapH(s.monitor.Handler()))
	r.GET("/debug/vars", gin.WrapH(s.monitor.VarsHandler()))
	r.GET("/ws", func(c *gin.Context) {
		s.handleWebSocket(c.Writer, c.Request)
	})

	logger.Log.Infow("router setup", "static", s.cfg.StaticPath, "mode", gin.Mode())
	return r
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Log.Debugw("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency", time.Since(start),
		)
	}
}

// Run serves HTTP and, when configured, RPC until ctx is cancelled.
func (s *GameServer) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.cfg.HTTPAddress,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		logger.Log.Infof("Game server listening on %s", s.cfg.HTTPAddress)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	if s.rpcServer != nil {
		eg.Go(func() error {
			s.rpcServer.Start()
			return nil
		})
	}
	eg.Go(func() error {
		<-ctx.Done()
		logger.Log.Info("Shutting down game server.")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := httpServer.Shutdown(shutdownCtx)
		if s.rpcServer != nil {
			s.rpcServer.Stop()
		}
		// hijacked websocket connections are not closed by Shutdown
		s.sessionManager.CloseAll()
		return err
	})
	return eg.Wait()
}

func (s *GameServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Log.Infof("Failed to upgrade connection: %v", err)
		return
	}
	s.handleConnection(conn)
}

func (s *GameServer) handleConnection(conn *websocket.Conn) {
	wsConn := network.NewWSConnection(conn)
	if s.cfg.ReadLimit > 0 {
		wsConn.SetReadLimit(s.cfg.ReadLimit)
	}
	if s.cfg.PingPeriod > 0 {
		wsConn.SetHeartbeat(s.cfg.PingPeriod)
	}
	sess := session.NewSession(uuid.New().String(), wsConn)
	s.sessionManager.Add(sess)
	s.monitor.IncOnlineConnections()
	limiter := s.newLimiter()

	logger.Log.Infof("New connection from %s, session ID: %s", wsConn.RemoteAddr(), sess.GetID())

	defer func() {
		logger.Log.Infof("Connection closed from %s, session ID: %s", wsConn.RemoteAddr(), sess.GetID())
		s.rooms.Leave(sess.GetID())
		s.sessionManager.Remove(sess.GetID())
		s.monitor.DecOnlineConnections()
		wsConn.Close()
	}()

	for {
		env, err := wsConn.ReadEnvelope()
		if err != nil {
			if errors.Is(err, network.ErrMalformedFrame) {
				logger.Log.Warnf("session %s: %v", sess.GetID(), err)
				continue
			}
			return
		}
		sess.Touch()
		if !limiter.Allow() {
			logger.Log.Warnf("session %s: rate limited, dropping %s", sess.GetID(), env.Event)
			continue
		}
		s.handleEnvelope(sess, env)
	}
}

func (s *GameServer) newLimiter() *rate.Limiter {
	if s.limits.EventsPerSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	burst := s.limits.Burst
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(s.limits.EventsPerSecond), burst)
}

func decode[T any](env *network.Envelope) (T, error) {
	var req T
	if len(env.Data) == 0 {
		return req, fmt.Errorf("%s: missing data", env.Event)
	}
	if err := json.Unmarshal(env.Data, &req); err != nil {
		return req, fmt.Errorf("%s: %w", env.Event, err)
	}
	return req, nil
}

// userOf prefers the id in the payload and falls back to the id the
// connection joined with.
func userOf(sess *session.Session, userID string) string {
	if userID != "" {
		return userID
	}
	return sess.UserID()
}

func (s *GameServer) handleEnvelope(sess *session.Session, env *network.Envelope) {
	start := time.Now()
	s.monitor.IncMessagesReceived(env.Event)
	defer func() { s.monitor.ObserveMessageLatency(time.Since(start)) }()

	var err error
	switch env.Event {
	case network.EventHeartbeat:
		return
	case network.EventJoinRoom:
		err = s.handleJoinRoom(sess, env)
	case network.EventUpdateCharacterInfo:
		var req network.UpdateCharacterInfoRequest
		if req, err = decode[network.UpdateCharacterInfoRequest](env); err == nil {
			err = s.rooms.UpdateProfile(req.RoomID, userOf(sess, req.UserID), req.Info)
		}
	case network.EventStartDecisionPhase:
		var req network.RoomRequest
		if req, err = decode[network.RoomRequest](env); err == nil {
			err = s.rooms.StartPhase(req.RoomID, sess.GetID())
		}
	case network.EventStartGame:
		var req network.RoomRequest
		if req, err = decode[network.RoomRequest](env); err == nil {
			err = s.rooms.StartGame(req.RoomID, sess.GetID())
		}
	case network.EventRoomResponse:
		var req network.RoomResponseRequest
		if req, err = decode[network.RoomResponseRequest](env); err == nil {
			err = s.rooms.SubmitResponse(req.RoomID, userOf(sess, req.UserID), req.Message)
		}
	case network.EventPauseTimer:
		var req network.RoomRequest
		if req, err = decode[network.RoomRequest](env); err == nil {
			err = s.rooms.Pause(req.RoomID, sess.GetID())
		}
	case network.EventResumeTimer:
		var req network.RoomRequest
		if req, err = decode[network.RoomRequest](env); err == nil {
			err = s.rooms.Resume(req.RoomID, sess.GetID())
		}
	case network.EventUserChatMessage:
		var req network.ChatMessageRequest
		if req, err = decode[network.ChatMessageRequest](env); err == nil {
			err = s.rooms.Chat(req.RoomID, userOf(sess, req.UserID), req.Message)
		}
	default:
		logger.Log.Infof("Unknown event %q from session %s", env.Event, sess.GetID())
		return
	}
	if err != nil {
		logger.Log.Infof("session %s %s: %v", sess.GetID(), env.Event, err)
	}
}

// handleJoinRoom moves the connection out of its previous room before
// joining a different one.
func (s *GameServer) handleJoinRoom(sess *session.Session, env *network.Envelope) error {
	req, err := decode[network.JoinRoomRequest](env)
	if err != nil {
		return err
	}
	if prev := sess.RoomID(); prev != "" && prev != req.RoomID {
		s.rooms.Leave(sess.GetID())
		sess.Unbind()
	}
	if err := s.rooms.Join(req.RoomID, sess.GetID(), req.UserID, req.ChosenName, req.Info); err != nil {
		return err
	}
	sess.Bind(req.RoomID, req.UserID)
	return nil
}
