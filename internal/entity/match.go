package entity

import (
	"fmt"
	"strconv"

	"github.com/rocketscienceinc/caro-backend/internal/apperror"
)

type Slot int

const (
	NoSlot Slot = iota
	SlotOne
	SlotTwo
)

func (that Slot) IsValid() bool {
	return that == SlotOne || that == SlotTwo
}

func (that Slot) Other() Slot {
	if that == SlotOne {
		return SlotTwo
	}
	return SlotOne
}

// Cell returns the mark the slot leaves on the board.
func (that Slot) Cell() Cell {
	switch that {
	case SlotOne:
		return PlayerOneCell
	case SlotTwo:
		return PlayerTwoCell
	default:
		return EmptyCell
	}
}

func (that Slot) String() string {
	return strconv.Itoa(int(that))
}

type MatchStatus string

const (
	StatusWaiting    MatchStatus = "waiting"
	StatusInProgress MatchStatus = "in_progress"
	StatusFinished   MatchStatus = "finished"
)

// Match is the single authoritative game session. It is not safe for concurrent use;
// usecase.MatchManager serializes every access.
type Match struct {
	ID          string      `json:"id"`
	Board       Board       `json:"board"`
	Status      MatchStatus `json:"status"`
	Turn        Slot        `json:"turn"`
	Winner      Slot        `json:"winner,omitempty"`
	Abandoned   bool        `json:"abandoned,omitempty"`
	Nicknames   [2]string   `json:"nicknames"`
	Connections [2]string   `json:"connections"`
}

func NewMatch(id, slotOneNickname, slotTwoNickname string) *Match {
	return &Match{
		ID:        id,
		Status:    StatusWaiting,
		Turn:      SlotOne,
		Nicknames: [2]string{slotOneNickname, slotTwoNickname},
	}
}

func (that *Match) IsWaiting() bool {
	return that.Status == StatusWaiting
}

func (that *Match) IsInProgress() bool {
	return that.Status == StatusInProgress
}

func (that *Match) IsFinished() bool {
	return that.Status == StatusFinished
}

// AssignSlot gives the connection the first free slot. The second assignment starts the match.
func (that *Match) AssignSlot(connID string) (Slot, error) {
	if that.IsFinished() {
		return NoSlot, apperror.ErrMatchFinished
	}

	for _, slot := range []Slot{SlotOne, SlotTwo} {
		if that.Connection(slot) != "" {
			continue
		}

		that.Connections[slot-1] = connID
		if slot == SlotTwo {
			that.Status = StatusInProgress
		}

		return slot, nil
	}

	return NoSlot, apperror.ErrMatchFull
}

// ApplyMove validates and places the slot's mark. It returns true when the move wins the match.
func (that *Match) ApplyMove(slot Slot, row, col int) (bool, error) {
	if err := that.confirmInProgress(); err != nil {
		return false, err
	}

	if slot != that.Turn {
		return false, apperror.ErrNotYourTurn
	}

	if !that.Board.IsInBounds(row, col) {
		return false, fmt.Errorf("%w: (%d,%d)", apperror.ErrOutOfBounds, row, col)
	}

	if !that.Board.IsEmpty(row, col) {
		return false, fmt.Errorf("%w: (%d,%d)", apperror.ErrCellOccupied, row, col)
	}

	that.Board.Place(row, col, slot)

	if that.Board.HasFiveInLine(row, col, slot) {
		that.Status = StatusFinished
		that.Winner = slot
		return true, nil
	}

	that.Turn = slot.Other()

	return false, nil
}

// Release frees the slot held by the connection. A match that was still in progress is abandoned.
func (that *Match) Release(connID string) (Slot, error) {
	slot, ok := that.SlotOf(connID)
	if !ok {
		return NoSlot, apperror.ErrUnknownConnection
	}

	that.Connections[slot-1] = ""

	if that.IsInProgress() {
		that.Status = StatusFinished
		that.Abandoned = true
	}

	return slot, nil
}

func (that *Match) SlotOf(connID string) (Slot, bool) {
	if connID == "" {
		return NoSlot, false
	}

	for _, slot := range []Slot{SlotOne, SlotTwo} {
		if that.Connection(slot) == connID {
			return slot, true
		}
	}

	return NoSlot, false
}

func (that *Match) Connection(slot Slot) string {
	if !slot.IsValid() {
		return ""
	}
	return that.Connections[slot-1]
}

func (that *Match) Nickname(slot Slot) string {
	if !slot.IsValid() {
		return ""
	}
	return that.Nicknames[slot-1]
}

// IsVacant reports whether no connection holds a slot.
func (that *Match) IsVacant() bool {
	return that.Connections[0] == "" && that.Connections[1] == ""
}

func (that *Match) confirmInProgress() error {
	switch that.Status {
	case StatusWaiting:
		return apperror.ErrMatchNotStarted
	case StatusFinished:
		return apperror.ErrMatchFinished
	default:
		return nil
	}
}
