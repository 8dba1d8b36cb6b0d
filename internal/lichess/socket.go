package lichess

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// dialSocket opens the stream at path over a websocket. Each text frame
// carries one line; an empty frame is a heartbeat, matching the empty lines
// of the ndjson transport.
func (c *Client) dialSocket(ctx context.Context, path string) (LineStream, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+c.token)
	header.Set("User-Agent", c.userAgent)

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, c.wsBase+path, header)
	if err != nil {
		if resp != nil {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			resp.Body.Close()
			return nil, &RequestError{Status: resp.StatusCode, Path: path, Body: string(body)}
		}
		return nil, err
	}

	s := &socketStream{
		conn:  conn,
		lines: make(chan []byte, 32),
		done:  make(chan struct{}),
	}
	go s.run()
	return s, nil
}

// socketStream adapts a websocket connection to a LineStream. done unblocks
// a producer stuck on a channel send when the consumer closes the stream
// without draining it.
type socketStream struct {
	conn  *websocket.Conn
	lines chan []byte
	done  chan struct{}
	err   error

	mu     sync.Mutex
	closed bool
}

func (s *socketStream) run() {
	defer close(s.lines)
	for {
		_, msg, err := s.conn.ReadMessage()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if !closed {
				s.err = err
			}
			return
		}
		select {
		case s.lines <- bytes.TrimRight(msg, "\n"):
		case <-s.done:
			return
		}
	}
}

func (s *socketStream) Lines() <-chan []byte { return s.lines }

func (s *socketStream) Err() error { return s.err }

func (s *socketStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.done)
	s.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return s.conn.Close()
}
