package ws

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Source computes the current analytics payload of a ticker and topic.
type Source interface {
	Snapshot(ctx context.Context, ticker string, topic Topic) (any, error)
}

// Pauser reports whether broadcasts should be skipped, e.g. while the data
// behind Source is being swapped.
type Pauser interface {
	IsReloading() bool
}

// Streamer recomputes every active group each interval and broadcasts the
// result to its subscribers.
type Streamer struct {
	hub      *Hub
	source   Source
	pauser   Pauser
	encoder  *Encoder
	interval time.Duration
	logger   *zap.Logger
}

// NewStreamer creates a new Streamer. pauser may be nil.
func NewStreamer(hub *Hub, source Source, pauser Pauser, interval time.Duration, logger *zap.Logger) (*Streamer, error) {
	enc, err := NewEncoder()
	if err != nil {
		return nil, err
	}

	return &Streamer{
		hub:      hub,
		source:   source,
		pauser:   pauser,
		encoder:  enc,
		interval: interval,
		logger:   logger,
	}, nil
}

// Run starts the streaming loop. Call in a goroutine.
// Returns when context is cancelled.
func (s *Streamer) Run(ctx context.Context) {
	defer s.encoder.Close()

	// Align first tick to top of second for predictable timing
	nextSecond := time.Now().Truncate(time.Second).Add(time.Second)
	select {
	case <-ctx.Done():
		s.logger.Info("streamer cancelled during alignment")
		return
	case <-time.After(time.Until(nextSecond)):
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("streamer started",
		zap.Duration("interval", s.interval),
	)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("streamer stopping")
			return

		case <-ticker.C:
			s.broadcastAll(ctx)
		}
	}
}

// broadcastAll sends a fresh reading to every active group.
func (s *Streamer) broadcastAll(ctx context.Context) int {
	if s.pauser != nil && s.pauser.IsReloading() {
		s.logger.Debug("reload in progress, skipping broadcast")
		return 0
	}

	sent := 0
	for _, group := range s.hub.ActiveGroups() {
		if ctx.Err() != nil {
			return sent
		}
		ticker, topic, ok := ParseGroup(group)
		if !ok {
			continue
		}

		payload, err := s.source.Snapshot(ctx, ticker, topic)
		if err != nil {
			s.logger.Debug("failed to compute analytics",
				zap.String("group", group),
				zap.Error(err),
			)
			continue
		}

		frame, err := s.encoder.Encode(group, topic, payload)
		if err != nil {
			s.logger.Warn("failed to encode analytics",
				zap.String("group", group),
				zap.Error(err),
			)
			continue
		}

		s.hub.BroadcastFrame(group, frame)
		sent++

		s.logger.Debug("broadcast analytics",
			zap.String("group", group),
			zap.Int("encodedSize", len(frame.Protobuf)),
		)
	}
	return sent
}
