// Package tcp is the line-framed TCP endpoint players connect to.
package tcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rocketscienceinc/caro-backend/internal/apperror"
	"github.com/rocketscienceinc/caro-backend/internal/entity"
	"github.com/rocketscienceinc/caro-backend/internal/protocol"
	"github.com/rocketscienceinc/caro-backend/internal/usecase"
)

type matchManager interface {
	AssignSlot(ctx context.Context, peer usecase.Peer) (entity.Slot, error)
	ApplyMove(ctx context.Context, connID string, row, col int) error
	RejectMalformed(connID string)
	Release(ctx context.Context, connID string)
}

type connectionMetrics interface {
	ConnectionAccepted()
	ConnectionRefused()
	ConnectionClosed()
}

type Options struct {
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	MaxFrameSize int
}

// Server accepts player connections and seats them in the match.
type Server struct {
	logger  *slog.Logger
	manager matchManager
	metrics connectionMetrics
	options Options
}

func New(logger *slog.Logger, manager matchManager, metrics connectionMetrics, options Options) *Server {
	return &Server{
		logger:  logger.With("component", "tcp"),
		manager: manager,
		metrics: metrics,
		options: options,
	}
}

// Start - listens on addr and serves until ctx is cancelled.
func (that *Server) Start(ctx context.Context, addr string) error {
	var listenConfig net.ListenConfig

	listener, err := listenConfig.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	return that.Serve(ctx, listener)
}

// Serve accepts connections from listener until ctx is cancelled, then waits for every handler to finish.
func (that *Server) Serve(ctx context.Context, listener net.Listener) error {
	log := that.logger.With("method", "Serve", "addr", listener.Addr().String())

	stop := context.AfterFunc(ctx, func() {
		_ = listener.Close()
	})
	defer stop()

	var handlers sync.WaitGroup

	log.Info("accepting connections")

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				handlers.Wait()
				log.Info("server stopped")
				return nil
			}

			_ = listener.Close()
			return fmt.Errorf("failed to accept connection: %w", err)
		}

		that.admit(ctx, conn, &handlers)
	}
}

// admit runs on the accept loop so slots follow accept order.
func (that *Server) admit(ctx context.Context, conn net.Conn, handlers *sync.WaitGroup) {
	peer := newConnPeer(uuid.NewString(), conn, that.options.WriteTimeout)
	log := that.logger.With("method", "admit", "connID", peer.ID(), "remote", conn.RemoteAddr().String())

	slot, err := that.manager.AssignSlot(ctx, peer)
	switch {
	case errors.Is(err, apperror.ErrMatchFull), errors.Is(err, apperror.ErrMatchFinished):
		that.metrics.ConnectionRefused()

		if err = peer.Send(protocol.MatchFull); err != nil {
			log.Warn("failed to send refusal", "error", err)
		}
		_ = peer.Close()

		log.Info("connection refused, match is full")
		return
	case err != nil:
		_ = peer.Close()

		log.Warn("failed to seat connection", "error", err)
		return
	}

	that.metrics.ConnectionAccepted()
	log.Info("connection accepted", "slot", slot)

	handler := newConnectionHandler(that.logger, that.manager, that.metrics, conn, peer, slot, that.options)

	handlers.Add(1)
	go func() {
		defer handlers.Done()
		handler.Run(ctx)
	}()
}
