package usecase

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/rocketscienceinc/caro-backend/internal/apperror"
	"github.com/rocketscienceinc/caro-backend/internal/entity"
	"github.com/rocketscienceinc/caro-backend/internal/metrics"
	"github.com/rocketscienceinc/caro-backend/internal/protocol"
	"github.com/rocketscienceinc/caro-backend/internal/repository"
)

var errRedisDown = errors.New("redis down")

type fakePeer struct {
	id      string
	sendErr error

	mu     sync.Mutex
	frames []string
	closed bool
}

func newFakePeer(id string) *fakePeer {
	return &fakePeer{id: id}
}

func (that *fakePeer) ID() string {
	return that.id
}

func (that *fakePeer) Send(frame string) error {
	if that.sendErr != nil {
		return that.sendErr
	}

	that.mu.Lock()
	defer that.mu.Unlock()

	that.frames = append(that.frames, frame)

	return nil
}

func (that *fakePeer) Close() error {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.closed = true

	return nil
}

func (that *fakePeer) Frames() []string {
	that.mu.Lock()
	defer that.mu.Unlock()

	return append([]string(nil), that.frames...)
}

func (that *fakePeer) Last() string {
	frames := that.Frames()
	if len(frames) == 0 {
		return ""
	}
	return frames[len(frames)-1]
}

func (that *fakePeer) IsClosed() bool {
	that.mu.Lock()
	defer that.mu.Unlock()

	return that.closed
}

type mockMatchRepo struct {
	mock.Mock
}

func (that *mockMatchRepo) CreateOrUpdate(ctx context.Context, match *entity.Match) error {
	args := that.Called(ctx, match)
	return args.Error(0)
}

func (that *mockMatchRepo) DeleteByID(ctx context.Context, id string) error {
	args := that.Called(ctx, id)
	return args.Error(0)
}

func newTestManager(repo matchRepo) *MatchManager {
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))

	return NewMatchManager(logger, repo, metrics.New(prometheus.NewRegistry()), "Player 1", "Player 2")
}

func seatTwo(t *testing.T, manager *MatchManager) (*fakePeer, *fakePeer) {
	t.Helper()

	ctx := context.Background()
	one, two := newFakePeer("c1"), newFakePeer("c2")

	_, err := manager.AssignSlot(ctx, one)
	require.NoError(t, err)
	_, err = manager.AssignSlot(ctx, two)
	require.NoError(t, err)

	return one, two
}

func decodeState(t *testing.T, frame string) protocol.State {
	t.Helper()

	state, err := protocol.DecodeState(frame)
	require.NoError(t, err)

	return state
}

func TestMatchManager_AssignSlot(t *testing.T) {
	ctx := context.Background()

	t.Run("Connections receive slot one then slot two", func(t *testing.T) {
		// Given: a manager without a match
		manager := newTestManager(repository.NewMemoryMatchRepository())
		one, two := newFakePeer("c1"), newFakePeer("c2")

		// When: the first connection is seated
		slot, err := manager.AssignSlot(ctx, one)

		// Then: it gets slot one and the match waits for a second player
		require.NoError(t, err)
		assert.Equal(t, entity.SlotOne, slot)
		assert.Equal(t, []string{"1"}, one.Frames())

		match, ok := manager.Snapshot()
		require.True(t, ok)
		assert.True(t, match.IsWaiting())

		// When: the second connection is seated
		slot, err = manager.AssignSlot(ctx, two)

		// Then: it gets slot two and the match starts
		require.NoError(t, err)
		assert.Equal(t, entity.SlotTwo, slot)
		assert.Equal(t, []string{"2"}, two.Frames())

		match, _ = manager.Snapshot()
		assert.True(t, match.IsInProgress())
	})

	t.Run("Third connection is refused without any frame", func(t *testing.T) {
		manager := newTestManager(repository.NewMemoryMatchRepository())
		seatTwo(t, manager)
		third := newFakePeer("c3")

		slot, err := manager.AssignSlot(ctx, third)

		require.ErrorIs(t, err, apperror.ErrMatchFull)
		assert.Equal(t, entity.NoSlot, slot)
		assert.Empty(t, third.Frames())
	})

	t.Run("Failed slot send releases the slot", func(t *testing.T) {
		manager := newTestManager(repository.NewMemoryMatchRepository())
		broken := newFakePeer("c1")
		broken.sendErr = io.ErrClosedPipe

		_, err := manager.AssignSlot(ctx, broken)

		require.ErrorIs(t, err, io.ErrClosedPipe)
		_, ok := manager.Snapshot()
		assert.False(t, ok)
	})

	t.Run("Match is saved to the repository", func(t *testing.T) {
		repo := repository.NewMemoryMatchRepository()
		manager := newTestManager(repo)
		seatTwo(t, manager)

		match, _ := manager.Snapshot()
		stored, err := repo.GetByID(ctx, match.ID)

		require.NoError(t, err)
		assert.Equal(t, entity.StatusInProgress, stored.Status)
	})
}

func TestMatchManager_ApplyMove(t *testing.T) {
	ctx := context.Background()

	t.Run("Accepted move is broadcast to both players", func(t *testing.T) {
		// Given: a started match
		manager := newTestManager(repository.NewMemoryMatchRepository())
		one, two := seatTwo(t, manager)

		// When: slot one plays the centre
		err := manager.ApplyMove(ctx, "c1", 7, 7)

		// Then: both players receive the same state with (7,7)=1 and turn 2
		require.NoError(t, err)
		require.Equal(t, one.Last(), two.Last())

		state := decodeState(t, one.Last())
		assert.Equal(t, entity.PlayerOneCell, state.Board.At(7, 7))
		assert.Equal(t, entity.SlotTwo, state.Turn)
		assert.Equal(t, "Player 1", state.SlotOneNickname)
		assert.Equal(t, "Player 2", state.SlotTwoNickname)
	})

	t.Run("Wrong turn is answered to the mover only", func(t *testing.T) {
		manager := newTestManager(repository.NewMemoryMatchRepository())
		one, two := seatTwo(t, manager)

		err := manager.ApplyMove(ctx, "c2", 7, 7)

		require.ErrorIs(t, err, apperror.ErrNotYourTurn)
		assert.Equal(t, []string{"2", protocol.InvalidMove}, two.Frames())
		assert.Equal(t, []string{"1"}, one.Frames())
	})

	t.Run("Out of bounds and occupied cells are rejected like a wrong turn", func(t *testing.T) {
		manager := newTestManager(repository.NewMemoryMatchRepository())
		one, _ := seatTwo(t, manager)
		require.NoError(t, manager.ApplyMove(ctx, "c1", 0, 0))
		require.NoError(t, manager.ApplyMove(ctx, "c2", 14, 14))

		for _, cell := range [][2]int{{-1, 0}, {15, 0}, {0, 0}, {14, 14}} {
			err := manager.ApplyMove(ctx, "c1", cell[0], cell[1])

			require.Error(t, err)
			assert.True(t, apperror.IsInvalidMove(err))
			assert.Equal(t, protocol.InvalidMove, one.Last())
		}

		match, _ := manager.Snapshot()
		assert.Equal(t, entity.SlotOne, match.Turn)
	})

	t.Run("Move before the match starts is rejected", func(t *testing.T) {
		manager := newTestManager(repository.NewMemoryMatchRepository())
		one := newFakePeer("c1")
		_, err := manager.AssignSlot(ctx, one)
		require.NoError(t, err)

		err = manager.ApplyMove(ctx, "c1", 7, 7)

		require.ErrorIs(t, err, apperror.ErrMatchNotStarted)
		assert.Equal(t, protocol.InvalidMove, one.Last())
	})

	t.Run("Winning move sends the final state then WIN and LOSE", func(t *testing.T) {
		// Given: slot one has four in row 7
		manager := newTestManager(repository.NewMemoryMatchRepository())
		one, two := seatTwo(t, manager)
		for col := 3; col < 7; col++ {
			require.NoError(t, manager.ApplyMove(ctx, "c1", 7, col))
			require.NoError(t, manager.ApplyMove(ctx, "c2", 0, col))
		}

		// When: slot one completes row 7 from column 3 to 7
		err := manager.ApplyMove(ctx, "c1", 7, 7)

		// Then: both get the final state, then the verdicts
		require.NoError(t, err)

		oneFrames, twoFrames := one.Frames(), two.Frames()
		assert.Equal(t, protocol.Win, oneFrames[len(oneFrames)-1])
		assert.Equal(t, protocol.Lose, twoFrames[len(twoFrames)-1])
		assert.Equal(t, oneFrames[len(oneFrames)-2], twoFrames[len(twoFrames)-2])

		state := decodeState(t, oneFrames[len(oneFrames)-2])
		for col := 3; col <= 7; col++ {
			assert.Equal(t, entity.PlayerOneCell, state.Board.At(7, col))
		}

		match, _ := manager.Snapshot()
		assert.True(t, match.IsFinished())

		// And: any further move is rejected
		err = manager.ApplyMove(ctx, "c2", 8, 8)
		require.ErrorIs(t, err, apperror.ErrMatchFinished)
		assert.Equal(t, protocol.InvalidMove, two.Last())
	})

	t.Run("Unknown connection is reported without frames", func(t *testing.T) {
		manager := newTestManager(repository.NewMemoryMatchRepository())
		one, two := seatTwo(t, manager)

		err := manager.ApplyMove(ctx, "ghost", 7, 7)

		require.ErrorIs(t, err, apperror.ErrUnknownConnection)
		assert.Len(t, one.Frames(), 1)
		assert.Len(t, two.Frames(), 1)
	})

	t.Run("Repository failure does not change the protocol", func(t *testing.T) {
		repo := &mockMatchRepo{}
		repo.On("CreateOrUpdate", mock.Anything, mock.AnythingOfType("*entity.Match")).Return(errRedisDown)
		manager := newTestManager(repo)
		one, two := seatTwo(t, manager)

		err := manager.ApplyMove(ctx, "c1", 7, 7)

		require.NoError(t, err)
		assert.Equal(t, one.Last(), two.Last())
		repo.AssertExpectations(t)
	})

	t.Run("Concurrent movers observe identical state sequences", func(t *testing.T) {
		// Given: both players hammer the manager at the same time
		manager := newTestManager(repository.NewMemoryMatchRepository())
		one, two := seatTwo(t, manager)

		var wg sync.WaitGroup
		for i, connID := range []string{"c1", "c2"} {
			wg.Add(1)
			go func(connID string, offset int) {
				defer wg.Done()
				for i := 0; i < 40; i++ {
					_ = manager.ApplyMove(ctx, connID, (i+offset)%entity.BoardSize, (i*2+offset)%entity.BoardSize)
				}
			}(connID, i*7)
		}
		wg.Wait()

		// Then: the state frames each player saw are the same, in the same order
		states := func(frames []string) []string {
			var result []string
			for _, frame := range frames {
				if !protocol.IsControl(frame) {
					result = append(result, frame)
				}
			}
			return result
		}
		assert.Equal(t, states(one.Frames()), states(two.Frames()))
	})
}

func TestMatchManager_RejectMalformed(t *testing.T) {
	manager := newTestManager(repository.NewMemoryMatchRepository())
	one, two := seatTwo(t, manager)

	manager.RejectMalformed("c1")

	assert.Equal(t, protocol.InvalidMove, one.Last())
	assert.Equal(t, []string{"2"}, two.Frames())

	match, _ := manager.Snapshot()
	assert.Equal(t, entity.Board{}, match.Board)
}

func TestMatchManager_Release(t *testing.T) {
	ctx := context.Background()

	t.Run("Opponent of a leaving player is notified and disconnected", func(t *testing.T) {
		// Given: a started match
		manager := newTestManager(repository.NewMemoryMatchRepository())
		_, two := seatTwo(t, manager)

		// When: slot one leaves
		manager.Release(ctx, "c1")

		// Then: slot two is told and closed, the match is finished
		assert.Equal(t, protocol.OpponentLeft, two.Last())
		assert.True(t, two.IsClosed())

		match, ok := manager.Snapshot()
		require.True(t, ok)
		assert.True(t, match.IsFinished())
		assert.True(t, match.Abandoned)
	})

	t.Run("Finished match is discarded once everyone left", func(t *testing.T) {
		manager := newTestManager(repository.NewMemoryMatchRepository())
		seatTwo(t, manager)
		first, _ := manager.Snapshot()

		manager.Release(ctx, "c1")
		manager.Release(ctx, "c2")

		_, ok := manager.Snapshot()
		require.False(t, ok)

		// And: the next connection starts a fresh match
		slot, err := manager.AssignSlot(ctx, newFakePeer("c3"))
		require.NoError(t, err)
		assert.Equal(t, entity.SlotOne, slot)

		fresh, _ := manager.Snapshot()
		assert.NotEqual(t, first.ID, fresh.ID)
		assert.Equal(t, entity.Board{}, fresh.Board)
		assert.Equal(t, entity.SlotOne, fresh.Turn)
	})

	t.Run("Leaving while waiting deletes the stored match", func(t *testing.T) {
		repo := &mockMatchRepo{}
		repo.On("CreateOrUpdate", mock.Anything, mock.AnythingOfType("*entity.Match")).Return(nil).Once()
		repo.On("DeleteByID", mock.Anything, mock.AnythingOfType("string")).Return(nil).Once()
		manager := newTestManager(repo)
		_, err := manager.AssignSlot(ctx, newFakePeer("c1"))
		require.NoError(t, err)

		manager.Release(ctx, "c1")

		_, ok := manager.Snapshot()
		assert.False(t, ok)
		repo.AssertExpectations(t)
	})

	t.Run("Stale release is ignored", func(t *testing.T) {
		manager := newTestManager(repository.NewMemoryMatchRepository())
		one, two := seatTwo(t, manager)

		manager.Release(ctx, "ghost")

		match, _ := manager.Snapshot()
		assert.True(t, match.IsInProgress())
		assert.False(t, one.IsClosed())
		assert.False(t, two.IsClosed())
	})

	t.Run("Winner and loser leaving after a win does not notify anyone", func(t *testing.T) {
		manager := newTestManager(repository.NewMemoryMatchRepository())
		_, two := seatTwo(t, manager)
		for col := 0; col < 4; col++ {
			require.NoError(t, manager.ApplyMove(ctx, "c1", 0, col))
			require.NoError(t, manager.ApplyMove(ctx, "c2", 1, col))
		}
		require.NoError(t, manager.ApplyMove(ctx, "c1", 0, 4))

		manager.Release(ctx, "c1")

		assert.Equal(t, protocol.Lose, two.Last())
		assert.False(t, two.IsClosed())
		assert.False(t, strings.Contains(strings.Join(two.Frames(), "\n"), protocol.OpponentLeft))
	})
}
