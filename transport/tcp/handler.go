package tcp

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/rocketscienceinc/caro-backend/internal/apperror"
	"github.com/rocketscienceinc/caro-backend/internal/entity"
	"github.com/rocketscienceinc/caro-backend/internal/protocol"
)

// connectionHandler reads move requests from one seated connection until it closes.
type connectionHandler struct {
	logger  *slog.Logger
	manager matchManager
	metrics connectionMetrics

	conn        net.Conn
	peer        *connPeer
	reader      *protocol.FrameReader
	readTimeout time.Duration
}

func newConnectionHandler(logger *slog.Logger, manager matchManager, metrics connectionMetrics, conn net.Conn, peer *connPeer, slot entity.Slot, options Options) *connectionHandler {
	return &connectionHandler{
		logger:  logger.With("connID", peer.ID(), "slot", slot),
		manager: manager,
		metrics: metrics,

		conn:        conn,
		peer:        peer,
		reader:      protocol.NewFrameReader(conn, options.MaxFrameSize),
		readTimeout: options.ReadTimeout,
	}
}

func (that *connectionHandler) Run(ctx context.Context) {
	log := that.logger.With("method", "Run")

	stop := context.AfterFunc(ctx, func() {
		_ = that.peer.Close()
	})
	defer stop()

	defer that.finish(ctx)

	for {
		frame, err := that.readFrame()
		if err != nil {
			that.logReadError(log, err)
			return
		}

		that.handleFrame(ctx, frame)
	}
}

func (that *connectionHandler) readFrame() (string, error) {
	if that.readTimeout > 0 {
		if err := that.conn.SetReadDeadline(time.Now().Add(that.readTimeout)); err != nil {
			return "", err
		}
	}

	return that.reader.ReadFrame()
}

func (that *connectionHandler) handleFrame(ctx context.Context, frame string) {
	log := that.logger.With("method", "handleFrame")

	row, col, err := protocol.DecodeMove(frame)
	if err != nil {
		log.Debug("malformed move", "frame", frame, "error", err)
		that.manager.RejectMalformed(that.peer.ID())
		return
	}

	err = that.manager.ApplyMove(ctx, that.peer.ID(), row, col)
	switch {
	case err == nil:
		log.Debug("move accepted", "row", row, "col", col)
	case apperror.IsInvalidMove(err):
		log.Debug("move rejected", "row", row, "col", col, "error", err)
	default:
		log.Warn("failed to apply move", "error", err)
	}
}

// finish releases the slot even when the server is shutting down.
func (that *connectionHandler) finish(ctx context.Context) {
	that.manager.Release(context.WithoutCancel(ctx), that.peer.ID())

	if err := that.peer.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		that.logger.Warn("failed to close connection", "method", "finish", "error", err)
	}

	that.metrics.ConnectionClosed()
}

func (that *connectionHandler) logReadError(log *slog.Logger, err error) {
	var netErr net.Error

	switch {
	case errors.Is(err, io.EOF):
		log.Info("connection closed by peer")
	case errors.Is(err, net.ErrClosed):
		log.Info("connection closed")
	case errors.Is(err, protocol.ErrFrameTooLarge):
		log.Warn("frame too large, dropping connection")
	case errors.As(err, &netErr) && netErr.Timeout():
		log.Info("read timeout, dropping connection")
	default:
		log.Warn("failed to read frame", "error", err)
	}
}
