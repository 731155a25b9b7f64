package server

import (
	"context"
	"io"
	"net"

	"github.com/juju/errors"

	"mini-jsonrpc/protocol"
)

// Serve accepts framed TCP connections on l until Shutdown.
//
// Frames carry no sequence number, so each connection is served strictly in
// order: read a frame, handle it, write the reply frame, repeat. Concurrency
// comes from the client holding several pooled connections.
func (s *Server) Serve(l net.Listener) error {
	s.connsMu.Lock()
	s.listener = l
	s.connsMu.Unlock()
	for {
		conn, err := l.Accept()
		if err != nil {
			// listener.Close() during Shutdown also ends up here.
			if s.shutdown.Load() {
				return nil
			}
			return err
		}
		s.connsMu.Lock()
		s.conns[conn] = struct{}{}
		s.connsMu.Unlock()
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer func() {
		s.connsMu.Lock()
		delete(s.conns, conn)
		s.connsMu.Unlock()
		conn.Close()
	}()

	limit := uint32(min(s.maxBodySize, int64(^uint32(0))))
	for {
		header, body, err := protocol.Decode(conn, limit)
		if err != nil {
			if !errors.Is(err, io.EOF) && !s.shutdown.Load() {
				s.log.Debug().Err(err).Str("remote", conn.RemoteAddr().String()).Msg("closing tcp connection")
			}
			return
		}
		if header.MsgType == protocol.MsgTypeResponse {
			s.log.Debug().Str("remote", conn.RemoteAddr().String()).Msg("unexpected response frame from client")
			return
		}

		s.wg.Add(1)
		reply := s.Handle(context.Background(), body)
		s.wg.Done()

		if header.MsgType == protocol.MsgTypeNotify {
			continue
		}
		if reply == nil {
			// A request frame always gets a reply frame, even an empty one.
			reply = []byte{}
		}
		replyHeader := &protocol.Header{CodecType: header.CodecType, MsgType: protocol.MsgTypeResponse}
		if err := protocol.Encode(conn, replyHeader, reply); err != nil {
			s.log.Debug().Err(err).Msg("failed to write reply frame")
			return
		}
	}
}
