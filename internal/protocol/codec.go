// Package protocol implements the text wire format spoken between the match authority and its players.
package protocol

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/rocketscienceinc/caro-backend/internal/entity"
)

const (
	Separator     = "|"
	MoveSeparator = ","
)

// Control frames. None of them contains Separator, which is how clients tell them from state frames.
const (
	InvalidMove  = "INVALID_MOVE"
	Win          = "WIN"
	Lose         = "LOSE"
	MatchFull    = "MATCH_FULL"
	OpponentLeft = "OPPONENT_LEFT"
)

// nicknames, turn, then one field per cell.
const stateFieldCount = 3 + entity.BoardSize*entity.BoardSize

var (
	ErrMalformedMove  = errors.New("malformed move request")
	ErrMalformedState = errors.New("malformed state frame")
)

// State is the externally visible part of a match.
type State struct {
	SlotOneNickname string
	SlotTwoNickname string
	Turn            entity.Slot
	Board           entity.Board
}

func StateOf(match *entity.Match) State {
	return State{
		SlotOneNickname: match.Nickname(entity.SlotOne),
		SlotTwoNickname: match.Nickname(entity.SlotTwo),
		Turn:            match.Turn,
		Board:           match.Board,
	}
}

// EncodeState renders nick1|nick2|turn|cell(0,0)|...|cell(14,14).
func EncodeState(state State) string {
	var sb strings.Builder
	sb.Grow(len(state.SlotOneNickname) + len(state.SlotTwoNickname) + 2*stateFieldCount)

	sb.WriteString(state.SlotOneNickname)
	sb.WriteString(Separator)
	sb.WriteString(state.SlotTwoNickname)
	sb.WriteString(Separator)
	sb.WriteString(strconv.Itoa(int(state.Turn)))

	for row := range state.Board {
		for col := range state.Board[row] {
			sb.WriteString(Separator)
			sb.WriteString(strconv.Itoa(int(state.Board[row][col])))
		}
	}

	return sb.String()
}

func DecodeState(frame string) (State, error) {
	tokens := strings.Split(frame, Separator)
	if len(tokens) != stateFieldCount {
		return State{}, fmt.Errorf("%w: %d fields, want %d", ErrMalformedState, len(tokens), stateFieldCount)
	}

	turn, err := strconv.Atoi(tokens[2])
	if err != nil || !entity.Slot(turn).IsValid() {
		return State{}, fmt.Errorf("%w: turn %q", ErrMalformedState, tokens[2])
	}

	state := State{
		SlotOneNickname: tokens[0],
		SlotTwoNickname: tokens[1],
		Turn:            entity.Slot(turn),
	}

	for i, token := range tokens[3:] {
		value, err := strconv.Atoi(token)
		if err != nil || !entity.Cell(value).IsValid() {
			return State{}, fmt.Errorf("%w: cell %d is %q", ErrMalformedState, i, token)
		}

		state.Board[i/entity.BoardSize][i%entity.BoardSize] = entity.Cell(value)
	}

	return state, nil
}

func EncodeMove(row, col int) string {
	return strconv.Itoa(row) + MoveSeparator + strconv.Itoa(col)
}

// DecodeMove parses "<row>,<col>". Range checks are left to the match.
func DecodeMove(frame string) (int, int, error) {
	parts := strings.Split(strings.TrimSpace(frame), MoveSeparator)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("%w: %q", ErrMalformedMove, frame)
	}

	row, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, fmt.Errorf("%w: row: %w", ErrMalformedMove, err)
	}

	col, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, 0, fmt.Errorf("%w: col: %w", ErrMalformedMove, err)
	}

	return row, col, nil
}

func EncodeSlot(slot entity.Slot) string {
	return slot.String()
}

func DecodeSlot(frame string) (entity.Slot, error) {
	value, err := strconv.Atoi(strings.TrimSpace(frame))
	if err != nil || !entity.Slot(value).IsValid() {
		return entity.NoSlot, fmt.Errorf("%w: slot %q", ErrMalformedState, frame)
	}

	return entity.Slot(value), nil
}

// IsControl reports whether the frame is a control word rather than a state frame.
func IsControl(frame string) bool {
	return !strings.Contains(frame, Separator)
}

// ValidNickname reports whether a nickname can travel inside a state frame.
func ValidNickname(nickname string) bool {
	return nickname != "" && !strings.ContainsAny(nickname, Separator+"\r\n")
}
