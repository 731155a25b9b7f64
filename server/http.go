package server

import (
	"io"
	"mime"
	"net/http"

	"github.com/coder/websocket"
	"github.com/juju/errors"
)

// ServeHTTP answers JSON-RPC over HTTP POST. A request that produces no reply
// (a notification, or a batch of them) is answered with 204 No Content.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if ct := r.Header.Get("Content-Type"); ct != "" {
		if mt, _, err := mime.ParseMediaType(ct); err != nil || mt != "application/json" {
			http.Error(w, "unsupported content type", http.StatusUnsupportedMediaType)
			return
		}
	}

	s.wg.Add(1)
	defer s.wg.Done()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxBodySize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "reading request body", http.StatusBadRequest)
		return
	}

	reply := s.Handle(r.Context(), body)
	if reply == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(reply)
}

// ServeWebSocket upgrades the connection and answers one reply message per
// request message, in order. Notifications produce no message.
func (s *Server) ServeWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.log.Debug().Err(err).Msg("websocket accept failed")
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(s.maxBodySize)

	ctx := r.Context()
	for {
		typ, body, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != websocket.StatusNormalClosure {
				s.log.Debug().Err(err).Msg("websocket read ended")
			}
			return
		}
		if typ != websocket.MessageText {
			conn.Close(websocket.StatusUnsupportedData, "text messages only")
			return
		}
		if s.shutdown.Load() {
			conn.Close(websocket.StatusGoingAway, "server shutting down")
			return
		}

		s.wg.Add(1)
		reply := s.Handle(ctx, body)
		s.wg.Done()
		if reply == nil {
			continue
		}
		if err := conn.Write(ctx, websocket.MessageText, reply); err != nil {
			s.log.Debug().Err(err).Msg("websocket write failed")
			return
		}
	}
}
