package feed

import (
	"context"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hedgeworks/crossarb/internal/domain"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// pingPeriod sends pings to the peer at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// reconnectDelay is the base delay before attempting to reconnect.
	reconnectDelay = 2 * time.Second

	// maxReconnectDelay caps the exponential backoff for reconnection.
	maxReconnectDelay = 60 * time.Second

	handshakeTimeout = 15 * time.Second
)

// WSSource consumes the matcher's WebSocket stream. The matcher pushes every
// pair it builds as one JSON message; there is no subscription handshake. On
// disconnect the source reconnects with exponential backoff and keeps
// running until the context ends.
type WSSource struct {
	url    string
	logger *slog.Logger

	baseDelay time.Duration
	maxDelay  time.Duration
}

// NewWSSource creates a source reading from the given ws:// or wss:// URL.
func NewWSSource(url string, logger *slog.Logger) *WSSource {
	return &WSSource{
		url:       url,
		logger:    logger.With(slog.String("component", "ws_feed")),
		baseDelay: reconnectDelay,
		maxDelay:  maxReconnectDelay,
	}
}

// SetReconnectDelay overrides the backoff bounds. Must be called before Run.
func (s *WSSource) SetReconnectDelay(base, max time.Duration) {
	s.baseDelay = base
	s.maxDelay = max
}

// Run implements Source.
func (s *WSSource) Run(ctx context.Context, out chan<- domain.OutcomePair) error {
	delay := s.baseDelay

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		conn, err := s.dial(ctx)
		if err != nil {
			s.logger.WarnContext(ctx, "feed connect failed",
				slog.String("url", s.url),
				slog.String("error", err.Error()),
				slog.Duration("retry_in", delay),
			)
			if err := sleep(ctx, delay); err != nil {
				return err
			}
			delay = min(delay*2, s.maxDelay)
			continue
		}

		s.logger.InfoContext(ctx, "feed connected", slog.String("url", s.url))
		delay = s.baseDelay

		err = s.consume(ctx, conn, out)
		conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.logger.WarnContext(ctx, "feed disconnected, reconnecting",
			slog.String("error", err.Error()),
		)
	}
}

// dial opens one connection and arms the pong-based keep-alive.
func (s *WSSource) dial(ctx context.Context) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}

	conn, _, err := dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return nil, err
	}

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	return conn, nil
}

// consume reads messages until the connection breaks or the context ends.
// A keeper goroutine pings the peer and closes the connection on
// cancellation, which unblocks the read.
func (s *WSSource) consume(ctx context.Context, conn *websocket.Conn, out chan<- domain.OutcomePair) error {
	done := make(chan struct{})
	defer close(done)

	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				conn.Close()
				return
			case <-done:
				return
			case <-ticker.C:
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		pair, err := DecodePair(message)
		if err != nil {
			// Unparseable or invalid pairs never reach the engine.
			s.logger.WarnContext(ctx, "dropping bad feed message",
				slog.String("error", err.Error()),
				slog.Int("payload_len", len(message)),
			)
			continue
		}

		select {
		case out <- pair:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// sleep waits for d or until the context ends.
func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
