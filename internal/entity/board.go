package entity

const (
	BoardSize = 15
	WinLength = 5
)

// Cell is the content of a single board square. Its integer value is what goes on the wire.
type Cell int

const (
	EmptyCell Cell = iota
	PlayerOneCell
	PlayerTwoCell
)

func (that Cell) IsValid() bool {
	return that >= EmptyCell && that <= PlayerTwoCell
}

// Board is a fixed 15x15 grid in row-major order.
type Board [BoardSize][BoardSize]Cell

func (that *Board) IsInBounds(row, col int) bool {
	return row >= 0 && row < BoardSize && col >= 0 && col < BoardSize
}

// IsEmpty requires in-bounds coordinates.
func (that *Board) IsEmpty(row, col int) bool {
	return that[row][col] == EmptyCell
}

// Place sets the cell to the slot's mark. Callers check IsInBounds and IsEmpty first.
func (that *Board) Place(row, col int, slot Slot) {
	that[row][col] = slot.Cell()
}

func (that *Board) At(row, col int) Cell {
	return that[row][col]
}

// HasFiveInLine scans the row, the column and both diagonals through (row, col) end to end
// and reports whether any of them holds a run of WinLength marks of the slot.
func (that *Board) HasFiveInLine(row, col int, slot Slot) bool {
	mark := slot.Cell()

	// row
	if that.hasRun(row, 0, 0, 1, mark) {
		return true
	}

	// column
	if that.hasRun(0, col, 1, 0, mark) {
		return true
	}

	// top-left to bottom-right
	startRow, startCol := row-col, 0
	if startRow < 0 {
		startRow, startCol = 0, col-row
	}
	if that.hasRun(startRow, startCol, 1, 1, mark) {
		return true
	}

	// top-right to bottom-left
	startRow, startCol = row+col, 0
	if startRow >= BoardSize {
		startRow, startCol = BoardSize-1, row+col-BoardSize+1
	}

	return that.hasRun(startRow, startCol, -1, 1, mark)
}

// hasRun walks from (row, col) in direction (dRow, dCol) until it leaves the board.
func (that *Board) hasRun(row, col, dRow, dCol int, mark Cell) bool {
	count := 0
	for ; that.IsInBounds(row, col); row, col = row+dRow, col+dCol {
		if that[row][col] != mark {
			count = 0
			continue
		}

		count++
		if count == WinLength {
			return true
		}
	}

	return false
}

// Reset clears every cell.
func (that *Board) Reset() {
	*that = Board{}
}
