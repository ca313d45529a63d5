package apperror

import "errors"

// Move rejections. Every one of them is reported to the mover as INVALID_MOVE.
var (
	ErrNotYourTurn     = errors.New("it's not your turn")
	ErrOutOfBounds     = errors.New("cell is out of bounds")
	ErrCellOccupied    = errors.New("cell is already occupied")
	ErrMatchNotStarted = errors.New("match is not started")
	ErrMatchFinished   = errors.New("match is already finished")
)

var (
	ErrMatchFull         = errors.New("match already has two players")
	ErrUnknownConnection = errors.New("connection is not part of the match")
)

// IsInvalidMove reports whether err is a rejection of a well-formed move.
func IsInvalidMove(err error) bool {
	return errors.Is(err, ErrNotYourTurn) ||
		errors.Is(err, ErrOutOfBounds) ||
		errors.Is(err, ErrCellOccupied) ||
		errors.Is(err, ErrMatchNotStarted) ||
		errors.Is(err, ErrMatchFinished)
}
