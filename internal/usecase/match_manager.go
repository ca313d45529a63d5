package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/rocketscienceinc/caro-backend/internal/apperror"
	"github.com/rocketscienceinc/caro-backend/internal/entity"
	"github.com/rocketscienceinc/caro-backend/internal/protocol"
)

// Peer is the sending side of one player connection.
type Peer interface {
	ID() string
	Send(frame string) error
	Close() error
}

type matchRepo interface {
	CreateOrUpdate(ctx context.Context, match *entity.Match) error
	DeleteByID(ctx context.Context, id string) error
}

type matchMetrics interface {
	MoveAccepted()
	MoveInvalid()
	MoveMalformed()
	MatchStarted()
	MatchWon()
	MatchAbandoned()
}

// MatchManager owns the single active match. Every operation runs under one mutex, including the frames it
// sends, so both players always observe the same sequence of states.
type MatchManager struct {
	logger    *slog.Logger
	matchRepo matchRepo
	metrics   matchMetrics

	slotOneNickname string
	slotTwoNickname string

	mu    sync.Mutex
	match *entity.Match
	peers map[string]Peer
}

func NewMatchManager(logger *slog.Logger, matchRepo matchRepo, metrics matchMetrics, slotOneNickname, slotTwoNickname string) *MatchManager {
	return &MatchManager{
		logger:    logger.With("component", "MatchManager"),
		matchRepo: matchRepo,
		metrics:   metrics,

		slotOneNickname: slotOneNickname,
		slotTwoNickname: slotTwoNickname,

		peers: make(map[string]Peer),
	}
}

// AssignSlot seats the peer in the active match, creating one if none exists, and sends it its slot number.
// It returns apperror.ErrMatchFull or apperror.ErrMatchFinished when the peer cannot be seated.
func (that *MatchManager) AssignSlot(ctx context.Context, peer Peer) (entity.Slot, error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	log := that.logger.With("method", "AssignSlot", "connID", peer.ID())

	if that.match == nil {
		that.match = entity.NewMatch(uuid.NewString(), that.slotOneNickname, that.slotTwoNickname)
		log.Info("match created", "matchID", that.match.ID)
	}

	slot, err := that.match.AssignSlot(peer.ID())
	if err != nil {
		return entity.NoSlot, fmt.Errorf("failed to assign slot: %w", err)
	}

	that.peers[peer.ID()] = peer

	if err = peer.Send(protocol.EncodeSlot(slot)); err != nil {
		that.release(ctx, peer.ID())
		return entity.NoSlot, fmt.Errorf("failed to send slot: %w", err)
	}

	if that.match.IsInProgress() {
		that.metrics.MatchStarted()
		log.Info("match started", "matchID", that.match.ID)
	}

	that.save(ctx)

	log.Info("slot assigned", "slot", slot)

	return slot, nil
}

// ApplyMove plays a move on behalf of the connection. A rejected move is answered with INVALID_MOVE to the
// mover only and the rejection is returned. An accepted move is broadcast to slot one, then slot two, followed
// by WIN and LOSE when it ends the match.
func (that *MatchManager) ApplyMove(ctx context.Context, connID string, row, col int) error {
	that.mu.Lock()
	defer that.mu.Unlock()

	log := that.logger.With("method", "ApplyMove", "connID", connID)

	if that.match == nil {
		return apperror.ErrUnknownConnection
	}

	slot, ok := that.match.SlotOf(connID)
	if !ok {
		return apperror.ErrUnknownConnection
	}

	won, err := that.match.ApplyMove(slot, row, col)
	if err != nil {
		that.metrics.MoveInvalid()
		that.send(connID, protocol.InvalidMove)

		return fmt.Errorf("move rejected: %w", err)
	}

	that.metrics.MoveAccepted()
	that.save(ctx)

	that.broadcastState()

	if won {
		that.metrics.MatchWon()
		that.send(that.match.Connection(slot), protocol.Win)
		that.send(that.match.Connection(slot.Other()), protocol.Lose)

		log.Info("match won", "matchID", that.match.ID, "slot", slot)
	}

	return nil
}

// RejectMalformed answers a frame that could not be decoded as a move.
func (that *MatchManager) RejectMalformed(connID string) {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.metrics.MoveMalformed()
	that.send(connID, protocol.InvalidMove)
}

// Release removes the connection from the match. Leaving a match in progress abandons it: the opponent gets
// OPPONENT_LEFT and is disconnected. A match nobody is connected to any more is discarded.
func (that *MatchManager) Release(ctx context.Context, connID string) {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.release(ctx, connID)
}

// Snapshot returns a copy of the active match.
func (that *MatchManager) Snapshot() (entity.Match, bool) {
	that.mu.Lock()
	defer that.mu.Unlock()

	if that.match == nil {
		return entity.Match{}, false
	}

	return *that.match, true
}

func (that *MatchManager) release(ctx context.Context, connID string) {
	log := that.logger.With("method", "release", "connID", connID)

	delete(that.peers, connID)

	if that.match == nil {
		log.Debug("no active match")
		return
	}

	wasInProgress := that.match.IsInProgress()

	slot, err := that.match.Release(connID)
	if errors.Is(err, apperror.ErrUnknownConnection) {
		log.Debug("stale release ignored")
		return
	}

	log.Info("slot released", "matchID", that.match.ID, "slot", slot)

	if wasInProgress && that.match.Abandoned {
		that.metrics.MatchAbandoned()

		opponentID := that.match.Connection(slot.Other())
		that.send(opponentID, protocol.OpponentLeft)

		if opponent, ok := that.peers[opponentID]; ok {
			if err = opponent.Close(); err != nil {
				log.Warn("failed to close opponent", "error", err)
			}
		}

		log.Info("match abandoned", "matchID", that.match.ID)
	}

	if that.match.IsVacant() {
		that.discard(ctx)
		return
	}

	that.save(ctx)
}

func (that *MatchManager) discard(ctx context.Context) {
	log := that.logger.With("method", "discard", "matchID", that.match.ID)

	if err := that.matchRepo.DeleteByID(ctx, that.match.ID); err != nil {
		log.Error("failed to delete match", "error", err)
	}

	that.match = nil

	log.Info("match discarded")
}

func (that *MatchManager) broadcastState() {
	frame := protocol.EncodeState(protocol.StateOf(that.match))

	for _, slot := range []entity.Slot{entity.SlotOne, entity.SlotTwo} {
		that.send(that.match.Connection(slot), frame)
	}
}

// send never fails the caller: a broken peer is noticed and released by its own connection handler.
func (that *MatchManager) send(connID, frame string) {
	log := that.logger.With("method", "send", "connID", connID)

	peer, ok := that.peers[connID]
	if !ok {
		log.Debug("peer not connected")
		return
	}

	if err := peer.Send(frame); err != nil {
		log.Warn("failed to send frame", "error", err)
	}
}

func (that *MatchManager) save(ctx context.Context) {
	if err := that.matchRepo.CreateOrUpdate(ctx, that.match); err != nil {
		that.logger.Error("failed to save match", "method", "save", "matchID", that.match.ID, "error", err)
	}
}
