package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/Srivijai-S/server-chat/internal/cryptox"
	"github.com/Srivijai-S/server-chat/internal/router"
	"github.com/Srivijai-S/server-chat/internal/server/middleware"
	"github.com/Srivijai-S/server-chat/pkg/config"
	"github.com/Srivijai-S/server-chat/pkg/state"
	"github.com/Srivijai-S/server-chat/pkg/state/memstore"
	"github.com/Srivijai-S/server-chat/pkg/transport"
	"github.com/coder/websocket"
	"github.com/google/uuid"
)

type App struct {
	logger      *slog.Logger
	manager     state.Manager
	eventRouter *router.EventRouter
	cipher      *cryptox.Cipher
	wg          sync.WaitGroup
	http        *http.Server
	config      *config.Config

	ctx context.Context
}

func NewApp(logger *slog.Logger, rootCtx context.Context, cfg *config.Config) (*App, error) {
	cipher, err := newCipher(cfg.Encryption)
	if err != nil {
		return nil, fmt.Errorf("building message cipher: %w", err)
	}

	manager := memstore.NewInMemoryManager(logger, cfg.Relay.RingTimeout)
	eventRouter := router.NewEventRouter(logger, manager, cipher, cfg.Relay)

	app := &App{
		logger:      logger,
		manager:     manager,
		eventRouter: eventRouter,
		cipher:      cipher,
		config:      cfg,
		ctx:         rootCtx,
	}

	withMeta := func(h http.HandlerFunc, extra ...middleware.Middleware) http.Handler {
		mws := append([]middleware.Middleware{
			middleware.RequestMetadataMiddleware(),
			middleware.NewRequestLogger(logger),
		}, extra...)
		return middleware.Chain(h, mws...)
	}

	mux := http.NewServeMux()
	mux.Handle("GET /ws", withMeta(app.upgradeHandler,
		middleware.NewConnectionLimiter(logger, cfg.Server.ConnectionLimit),
	))
	mux.Handle("GET /api/health", withMeta(app.healthHandler))
	mux.Handle("GET /api/users", withMeta(app.usersHandler))
	mux.Handle("GET /api/messages/{user1}/{user2}", withMeta(app.messagesHandler))
	mux.Handle("POST /api/messages", withMeta(app.postMessageHandler))

	app.http = &http.Server{Addr: cfg.Server.Address, Handler: mux, BaseContext: func(l net.Listener) context.Context {
		return app.ctx
	}}

	return app, nil
}

func newCipher(cfg config.EncryptionConfig) (*cryptox.Cipher, error) {
	if cfg.Passphrase != "" {
		return cryptox.NewFromPassphrase(cfg.Passphrase)
	}
	return cryptox.NewRandom()
}

func (a *App) Run() error {
	go func() {
		a.logger.Info("Server starting", slog.String("addr", a.http.Addr))
		if err := a.http.ListenAndServe(); err != http.ErrServerClosed {
			a.logger.Error("HTTP server failed", slog.Any("error", err))
		}
	}()

	<-a.ctx.Done()
	return a.Shutdown()
}

func (a *App) upgradeHandler(w http.ResponseWriter, r *http.Request) {
	reqMeta, _ := middleware.ReqMetadataFrom(r.Context())
	connLogger := a.logger.With(slog.String("remoteAddr", reqMeta.IP))

	wsConn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		a.logger.Error("Failed to accept websocket connection", slog.Any("error", err))
		return
	}

	conn := transport.NewConnection(
		r.Context(),
		&a.wg,
		wsConn,
		transport.ConnectionConfig(a.config.Transport),
		a.logger,
	)
	conn.SetOnMessageHandler(func(ctx context.Context, c *transport.Connection, msg []byte) {
		a.eventRouter.HandleMessage(ctx, c, msg)
	})
	conn.SetOnCloseHandler(func(id uuid.UUID, err error) {
		a.eventRouter.HandleDisconnect(id, err)
	})

	connLogger.Info("Connection upgraded, awaiting login", slog.String("connID", conn.ID().String()))
	conn.Run()
	<-conn.Done()
}

// Shutdown runs the graceful shutdown sequence.
func (a *App) Shutdown() error {
	a.logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.http.Shutdown(shutdownCtx); err != nil {
		return err
	}

	// close all active WebSocket connections.
	a.logger.Info("Closing all active connections...")
	for _, user := range a.manager.Snapshot() {
		user.Conn.Close(errors.New("graceful shutdown"))
	}

	// wait for all connection goroutines to finish their cleanup.
	a.wg.Wait()
	a.logger.Info("Server shut down gracefully.")
	return nil
}
