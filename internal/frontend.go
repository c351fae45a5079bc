package internal

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"runtime/debug"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/halma/sternd/internal/client"
	"github.com/halma/sternd/internal/core"
	"github.com/halma/sternd/internal/hub"
	"github.com/halma/sternd/internal/transport"
)

// frontend implements the concurrent connection handling for both
// listeners. Accepted connections are wrapped in their transport's framing
// and handed to a client actor; the lower level connection details stay out
// of the hub entirely.
type frontend struct {
	Config *core.Config
	Hub    *hub.Hub
	Logger *logrus.Logger
}

func (f *frontend) actorConfig() client.Config {
	return client.Config{
		HandshakeTimeout: f.Config.HandshakeTimeout(),
		IdleTimeout:      f.Config.IdleTimeout(),
		LogMessages:      f.Config.Debugging.MessageLoggingEnabled,
	}
}

// StartTCP binds the length-prefixed TCP listener and spins the accept loop
// off into the WaitGroup. Returns an error only when the socket cannot be
// bound.
func (f *frontend) StartTCP(ctx context.Context, wg *sync.WaitGroup) error {
	hostAddr, err := net.ResolveTCPAddr("tcp", f.Config.TCPAddr)
	if err != nil {
		return fmt.Errorf("error resolving address %s: %w", f.Config.TCPAddr, err)
	}
	socket, err := net.ListenTCP("tcp", hostAddr)
	if err != nil {
		return fmt.Errorf("error listening on socket: %w", err)
	}

	f.Logger.Infof("[TCP] waiting for connections on %v", f.Config.TCPAddr)

	wg.Add(1)
	go f.acceptLoop(ctx, socket, wg)
	return nil
}

// acceptLoop accepts TCP clients until the context is cancelled or the hub
// finishes the game, then drains the per-client goroutines.
func (f *frontend) acceptLoop(ctx context.Context, socket *net.TCPListener, wg *sync.WaitGroup) {
	defer wg.Done()

	go func() {
		select {
		case <-ctx.Done():
		case <-f.Hub.Done():
		}
		_ = socket.Close()
	}()

	clientWg := &sync.WaitGroup{}
	for {
		connection, err := socket.AcceptTCP()
		if err != nil {
			select {
			case <-ctx.Done():
			case <-f.Hub.Done():
			default:
				f.Logger.Warnf("failed to accept connection: %v", err)
				continue
			}
			break
		}

		clientWg.Add(1)
		go func() {
			defer clientWg.Done()
			defer f.recoverClient(connection.RemoteAddr())

			conn := transport.NewStreamConn(connection, f.Config.Protocol.MaxFrameBytes)
			f.Logger.Infof("[TCP] accepted connection from %s", conn.RemoteAddr())
			client.New(conn, f.Hub, f.actorConfig(), f.Logger).Run(ctx)
			f.Logger.Infof("[TCP] disconnected client %s", conn.RemoteAddr())
		}()
	}

	f.Logger.Info("[TCP] shutting down (waiting for connections to close)")
	clientWg.Wait()
	f.Logger.Info("[TCP] exited")
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The server has no browser origin of its own; web clients are served
	// elsewhere.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// StartWS binds the WebSocket listener. The upgrade endpoint lives on a
// fixed /ws path; everything else is plumbing around it.
func (f *frontend) StartWS(ctx context.Context, wg *sync.WaitGroup) error {
	listener, err := net.Listen("tcp", f.Config.WSAddr)
	if err != nil {
		return fmt.Errorf("error listening on socket: %w", err)
	}

	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Get("/ws", func(w http.ResponseWriter, r *http.Request) {
		socket, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			f.Logger.Warnf("[WS] upgrade failed for %s: %v", r.RemoteAddr, err)
			return
		}

		conn := transport.NewWebSocketConn(socket, f.Config.Protocol.MaxFrameBytes)
		f.Logger.Infof("[WS] accepted connection from %s", conn.RemoteAddr())
		client.New(conn, f.Hub, f.actorConfig(), f.Logger).Run(r.Context())
		f.Logger.Infof("[WS] disconnected client %s", conn.RemoteAddr())
	})
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	server := &http.Server{
		Handler:     router,
		ReadTimeout: f.Config.IdleTimeout(),
	}

	f.Logger.Infof("[WS] waiting for connections on %v", f.Config.WSAddr)

	wg.Add(1)
	go func() {
		defer wg.Done()

		go func() {
			select {
			case <-ctx.Done():
			case <-f.Hub.Done():
			}
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = server.Shutdown(shutdownCtx)
		}()

		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			f.Logger.Errorf("[WS] server error: %v", err)
		}
		f.Logger.Info("[WS] exited")
	}()
	return nil
}

// recoverClient is the failsafe that catches panics in a client goroutine
// so one misbehaving connection cannot take the server down.
func (f *frontend) recoverClient(addr net.Addr) {
	if err := recover(); err != nil {
		f.Logger.Errorf("error in client communication with %s: error=%s, trace: %s",
			addr, err, debug.Stack())
	}
}
