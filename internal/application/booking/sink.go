package booking

import (
	"context"
	"time"

	"github.com/example/teetime-scheduler/internal/domain/booking"
	"go.uber.org/zap"
)

// ResultSink receives every finished run: persistence, notifications, metrics push.
type ResultSink interface {
	Name() string
	Record(ctx context.Context, r booking.RunResult) error
}

const publishTimeout = 30 * time.Second

// publish hands r to every sink. Sink failures never change the run outcome.
// A canceled run is still recorded.
func publish(ctx context.Context, log *zap.Logger, sinks []ResultSink, r booking.RunResult) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	for _, s := range sinks {
		if err := s.Record(ctx, r); err != nil {
			log.Error("result sink failed", zap.String("sink", s.Name()), zap.String("run_id", r.RunID), zap.Error(err))
		}
	}
}
