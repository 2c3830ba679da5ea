package collab

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20
	sendBuffer     = 256
)

// sideMessage is the JSON text channel: liveness checks and metadata-only
// updates ride here, away from the binary op stream.
type sideMessage struct {
	Type string         `json:"type"`
	Meta map[string]any `json:"meta,omitempty"`
}

// Peer is one websocket connection to a room. Binary frames carry ops and
// state, text frames carry the side channel.
type Peer struct {
	id     string
	room   *Room
	conn   *websocket.Conn
	logger *slog.Logger

	send      chan outFrame
	done      chan struct{}
	closeOnce sync.Once
}

// outFrame pairs a payload with its websocket message type so the write
// pump never has to sniff.
type outFrame struct {
	kind int
	data []byte
}

// NewPeer wraps an upgraded connection and starts its pumps. The peer
// registers with the room before any frame is read, so the state frame the
// room queues on connect is the first thing the client sees.
func NewPeer(room *Room, conn *websocket.Conn, logger *slog.Logger) *Peer {
	p := &Peer{
		id:   uuid.NewString(),
		room: room,
		conn: conn,
		send: make(chan outFrame, sendBuffer),
		done: make(chan struct{}),
	}
	p.logger = logger.With("peer_id", p.id)
	return p
}

// Run services the connection until either side goes away.
func (p *Peer) Run() {
	go p.writePump()
	p.readPump()
}

// enqueue hands a binary frame to the write pump. Returns false when the
// buffer is full, which the room treats as a dead peer.
func (p *Peer) enqueue(frame []byte) bool {
	select {
	case <-p.done:
		return false
	case p.send <- outFrame{kind: websocket.BinaryMessage, data: frame}:
		return true
	default:
		return false
	}
}

func (p *Peer) enqueueText(msg sideMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	select {
	case <-p.done:
	case p.send <- outFrame{kind: websocket.TextMessage, data: data}:
	default:
	}
}

func (p *Peer) close() {
	p.closeOnce.Do(func() {
		close(p.done)
	})
}

func (p *Peer) readPump() {
	defer func() {
		p.room.disconnect(p)
		p.close()
		p.conn.Close()
	}()

	p.conn.SetReadLimit(maxMessageSize)
	p.conn.SetReadDeadline(time.Now().Add(pongWait))
	p.conn.SetPongHandler(func(string) error {
		p.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		kind, raw, err := p.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				p.logger.Warn("peer read error", "error", err)
			}
			return
		}

		switch kind {
		case websocket.BinaryMessage:
			frame, err := decodeFrame(raw)
			if err != nil {
				p.logger.Warn("undecodable frame", "error", err)
				continue
			}
			if frame.Kind != FrameOp || frame.Op == nil {
				continue
			}
			op := *frame.Op
			if op.Origin == "" {
				op.Origin = p.id
			}
			p.room.submitOp(p, op, raw)

		case websocket.TextMessage:
			p.handleSideMessage(raw)
		}
	}
}

func (p *Peer) handleSideMessage(raw []byte) {
	var msg sideMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		p.logger.Warn("undecodable side message", "error", err)
		return
	}

	switch msg.Type {
	case "ping":
		p.enqueueText(sideMessage{Type: "pong"})
	case "updateMeta":
		if len(msg.Meta) > 0 {
			p.room.updateMeta(p, msg.Meta)
		}
	default:
		p.logger.Debug("ignoring side message", "type", msg.Type)
	}
}

func (p *Peer) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		p.conn.Close()
	}()

	for {
		select {
		case frame := <-p.send:
			p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteMessage(frame.kind, frame.data); err != nil {
				return
			}
		case <-ticker.C:
			p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-p.done:
			p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			p.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}
