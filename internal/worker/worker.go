package worker

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/murphylan/scansign-sub001/internal/dto"
	"github.com/murphylan/scansign-sub001/internal/engine"
	"github.com/murphylan/scansign-sub001/internal/rabbit"
	"github.com/murphylan/scansign-sub001/internal/session"

	"github.com/wb-go/wbf/zlog"
)

// Reader consumes delayed messages: activity_end closes an activity
// once its configured duration elapses, session_sweep reaps a login
// session well past its TTL.
type Reader struct {
	RMQ      rabbit.Broker
	engine   *engine.Engine
	sessions *session.Store
	done     chan struct{}
	cancel   context.CancelFunc
}

func NewReader(rmq rabbit.Broker, eng *engine.Engine, sessions *session.Store) *Reader {
	return &Reader{
		RMQ:      rmq,
		engine:   eng,
		sessions: sessions,
		done:     make(chan struct{}),
	}
}

func (r *Reader) Start(ctx context.Context) {
	cctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	zlog.Logger.Info().Msg("🐇 RabbitMQ Reader started")

	go func() {
		defer close(r.done)

		handler := func(body []byte) error {
			var msg dto.QueueMessage
			if err := json.Unmarshal(body, &msg); err != nil {
				zlog.Logger.Error().
					Err(err).
					Msgf("Failed to unmarshal message: %s", string(body))
				return err
			}

			switch msg.Kind {
			case dto.QueueKindActivityEnd:
				return r.handleActivityEnd(cctx, msg.End)
			case dto.QueueKindSessionSweep:
				return r.handleSessionSweep(msg.Sweep)
			default:
				zlog.Logger.Warn().
					Str("kind", msg.Kind).
					Msg("Unknown queue message kind — dropping")
				return nil
			}
		}

		if err := r.RMQ.Consume(handler); err != nil {
			zlog.Logger.Error().Err(err).Msg("Failed to start consuming")
			return
		}

		<-cctx.Done()
		zlog.Logger.Info().Msg("🛑 RabbitMQ Reader stopped by context")
	}()
}

func (r *Reader) handleActivityEnd(ctx context.Context, msg *dto.ActivityEndMessage) error {
	if msg == nil {
		zlog.Logger.Warn().Msg("activity_end message without payload — dropping")
		return nil
	}

	zlog.Logger.Info().
		Str("activity_id", msg.ActivityID).
		Msg("📩 Received activity_end from RabbitMQ")

	ended, err := r.engine.End(ctx, msg.ActivityID)
	if errors.Is(err, engine.ErrActivityNotFound) {
		zlog.Logger.Info().
			Str("activity_id", msg.ActivityID).
			Msg("⏳ Activity deleted before its end timer fired — skipping")
		return nil
	}
	if err != nil {
		zlog.Logger.Error().
			Err(err).
			Str("activity_id", msg.ActivityID).
			Msg("Failed to end activity")
		return err
	}

	if !ended {
		zlog.Logger.Info().
			Str("activity_id", msg.ActivityID).
			Msg("⏳ Activity already ended — skipping")
	}
	return nil
}

func (r *Reader) handleSessionSweep(msg *dto.SessionSweepMessage) error {
	if msg == nil {
		zlog.Logger.Warn().Msg("session_sweep message without payload — dropping")
		return nil
	}

	// The sweep fires at twice the session TTL, so whatever state the
	// session reached it is dead by now.
	r.sessions.Delete(msg.Token)
	removed := r.sessions.CleanupExpired()

	zlog.Logger.Info().
		Str("token", msg.Token).
		Int("removed", removed).
		Msg("🧹 Swept expired login sessions")
	return nil
}

func (r *Reader) Stop() {
	if r.cancel != nil {
		r.cancel()
		<-r.done
	}
}
