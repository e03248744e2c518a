package server

import (
	"encoding/json"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	daemonerrors "github.com/zaucy/mcpd/pkg/errors"
	"github.com/zaucy/mcpd/pkg/framing"
	"github.com/zaucy/mcpd/pkg/logging"
	"github.com/zaucy/mcpd/pkg/protocol"
)

// Session is one accepted client connection. It owns the connection's
// framing decoder, so whichever framing the client's first bytes select
// is also the framing used for every reply and broadcast to this client.
type Session struct {
	id       string
	conn     net.Conn
	decoder  *framing.Decoder
	instance *ServerInstance
	logger   logging.Logger

	writeMu   sync.Mutex
	closing   atomic.Bool
	closeOnce sync.Once

	// mode caches the decoder's framing mode so writer goroutines never
	// touch decoder state owned by the read loop.
	mode atomic.Int32
}

func newSession(conn net.Conn, instance *ServerInstance) *Session {
	s := &Session{
		id:       uuid.New().String(),
		conn:     conn,
		decoder:  framing.NewDecoder(),
		instance: instance,
	}
	s.logger = instance.logger.WithFields(
		logging.String("session_id", s.id),
		logging.String("remote_addr", conn.RemoteAddr().String()),
	)
	s.decoder.OnDrop = func(reason framing.DropReason, size int) {
		instance.metrics.FrameDropped(string(reason))
		s.logger.Debug("dropped inbound frame",
			logging.String("reason", string(reason)),
			logging.Int("size", size))
	}
	return s
}

// ID returns the session's unique identifier.
func (s *Session) ID() string { return s.id }

// Mode reports the framing currently in effect for this session.
func (s *Session) Mode() framing.Mode { return framing.Mode(s.mode.Load()) }

// Write marshals v and sends it framed to match the session's inbound
// framing. Writes to a closing session are silently discarded: the peer
// is gone and there is nobody left to tell.
func (s *Session) Write(v interface{}) error {
	body, err := json.Marshal(v)
	if err != nil {
		return daemonerrors.WrapError(err, daemonerrors.CodeInternalError,
			"marshal outbound message", daemonerrors.CategoryInternal, daemonerrors.SeverityError)
	}
	return s.writeRaw(body)
}

func (s *Session) writeRaw(body []byte) error {
	if s.closing.Load() {
		return nil
	}
	frame := framing.Encode(s.Mode(), body)

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if _, err := s.conn.Write(frame); err != nil {
		if s.closing.Load() {
			return nil
		}
		return daemonerrors.WriteFailed(s.id, err)
	}
	return nil
}

// readLoop pumps the connection into the framing decoder and dispatches
// each complete message. It returns when the peer disconnects, a read
// fails, or the decoder reports an unrecoverable framing error.
func (s *Session) readLoop() {
	defer s.close()

	buf := make([]byte, 32*1024)
	for {
		n, err := s.conn.Read(buf)
		if n > 0 {
			frames, ferr := s.decoder.Feed(buf[:n])
			s.mode.Store(int32(s.decoder.Mode()))
			for _, frame := range frames {
				s.instance.metrics.FrameDecoded(s.Mode().String())
				s.handleFrame(frame)
			}
			if ferr != nil {
				// Malformed header framing leaves the byte stream
				// unsynchronizable, so the connection is closed rather
				// than guessed at.
				s.logger.Warn("closing connection on framing error",
					logging.ErrorField(ferr))
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) && !s.closing.Load() {
				s.logger.Debug("connection read failed", logging.ErrorField(err))
			}
			return
		}
	}
}

func (s *Session) handleFrame(frame []byte) {
	msg, err := protocol.ParseMessage(frame)
	if err != nil {
		// Valid JSON that is not a usable JSON-RPC message is dropped,
		// same policy as undecodable frames.
		s.instance.metrics.FrameDropped("invalid_message")
		s.logger.Debug("dropped unparseable message", logging.ErrorField(err))
		return
	}
	s.instance.dispatcher.Dispatch(s, msg)
}

// close tears the session down exactly once and unregisters it from
// the owning instance.
func (s *Session) close() {
	s.closeOnce.Do(func() {
		s.closing.Store(true)
		_ = s.conn.Close()
		s.instance.dropSession(s)
		s.logger.Debug("session closed")
	})
}
