package hub

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
)

const (
	writeDeadline     = 5 * time.Second
	pingInterval      = 30 * time.Second
	pongDeadline      = 60 * time.Second
	messageBufferSize = 16
)

// clientWriter owns all writes to one websocket connection. A buffered send
// channel decouples broadcasts from slow clients; the hub evicts a client
// whose buffer fills.
type clientWriter struct {
	connection  *websocket.Conn
	clock       clockwork.Clock
	sendChannel chan []byte
	doneChannel chan struct{}
	closeReason string // written before doneChannel closes, read only by run
	stopOnce    sync.Once
	wg          sync.WaitGroup
}

func newClientWriter(connection *websocket.Conn, clock clockwork.Clock) *clientWriter {
	cw := &clientWriter{
		connection:  connection,
		clock:       clock,
		sendChannel: make(chan []byte, messageBufferSize),
		doneChannel: make(chan struct{}),
	}
	cw.configurePongHandler()
	cw.wg.Add(1)
	go cw.run()
	return cw
}

func (cw *clientWriter) run() {
	ticker := cw.clock.NewTicker(pingInterval)
	defer ticker.Stop()
	defer cw.wg.Done()
	defer cw.connection.Close()

	for {
		select {
		case msg, ok := <-cw.sendChannel:
			if !ok {
				return
			}
			cw.updateWriteDeadline()
			if err := cw.connection.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.Chan():
			cw.updateWriteDeadline()
			if err := cw.connection.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-cw.doneChannel:
			cw.writeCloseFrame()
			return
		}
	}
}

// writeCloseFrame best-effort announces the close reason before the
// connection drops.
func (cw *clientWriter) writeCloseFrame() {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, cw.closeReason)
	cw.updateWriteDeadline()
	_ = cw.connection.WriteMessage(websocket.CloseMessage, msg)
}

// trySend queues a message without blocking. Returns false when the client
// is too slow to keep up.
func (cw *clientWriter) trySend(msg []byte) bool {
	select {
	case cw.sendChannel <- msg:
		return true
	default:
		return false
	}
}

// stop tears the connection down immediately, unblocking a writer stuck in a
// send, and waits for the writer goroutine to exit.
func (cw *clientWriter) stop() {
	cw.stopOnce.Do(func() {
		close(cw.doneChannel)
		_ = cw.connection.Close()
	})
	cw.wg.Wait()
}

// stopGraceful signals the writer goroutine to send a close frame with the
// given reason and exit. It never blocks: a writer stalled mid-write on a
// dead connection finishes on its own write deadline, so evicting one slow
// client cannot hold up the hub actor.
func (cw *clientWriter) stopGraceful(reason string) {
	cw.stopOnce.Do(func() {
		cw.closeReason = reason
		close(cw.doneChannel)
	})
}

func (cw *clientWriter) configurePongHandler() {
	cw.updateReadDeadline()
	cw.connection.SetPongHandler(func(string) error {
		cw.updateReadDeadline()
		return nil
	})
}

func (cw *clientWriter) updateWriteDeadline() {
	_ = cw.connection.SetWriteDeadline(cw.clock.Now().Add(writeDeadline))
}

func (cw *clientWriter) updateReadDeadline() {
	_ = cw.connection.SetReadDeadline(cw.clock.Now().Add(pongDeadline))
}
