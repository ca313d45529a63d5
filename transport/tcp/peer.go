package tcp

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rocketscienceinc/caro-backend/internal/protocol"
)

// connPeer serializes writes to one connection so frames never interleave.
type connPeer struct {
	id           string
	conn         net.Conn
	writeTimeout time.Duration

	mu sync.Mutex

	closeOnce sync.Once
	closeErr  error
}

func newConnPeer(id string, conn net.Conn, writeTimeout time.Duration) *connPeer {
	return &connPeer{
		id:           id,
		conn:         conn,
		writeTimeout: writeTimeout,
	}
}

func (that *connPeer) ID() string {
	return that.id
}

func (that *connPeer) Send(frame string) error {
	that.mu.Lock()
	defer that.mu.Unlock()

	if that.writeTimeout > 0 {
		if err := that.conn.SetWriteDeadline(time.Now().Add(that.writeTimeout)); err != nil {
			return fmt.Errorf("failed to set write deadline: %w", err)
		}
	}

	return protocol.WriteFrame(that.conn, frame)
}

// Close is safe to call more than once.
func (that *connPeer) Close() error {
	that.closeOnce.Do(func() {
		that.closeErr = that.conn.Close()
	})

	return that.closeErr
}
