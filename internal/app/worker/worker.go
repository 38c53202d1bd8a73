package worker

import (
	"context"
	"log/slog"

	"chatsync/internal/core/contracts"
	"chatsync/internal/core/domain"
	"chatsync/pkg/logging"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("dispatch-worker")

// DispatchWorker drains inbound frames on a single goroutine. Each frame runs
// to completion before the next one is read, so events reach subscribers in
// arrival order.
type DispatchWorker struct {
	log    *slog.Logger
	router contracts.Router
}

func NewDispatchWorker(log *slog.Logger, router contracts.Router) contracts.FrameWorker {
	return &DispatchWorker{
		log:    log,
		router: router,
	}
}

func (w *DispatchWorker) Run(ctx context.Context, frames <-chan domain.InboundFrame) {
	w.log.InfoContext(ctx, "worker - run - dispatch loop started")
	for {
		select {
		case <-ctx.Done():
			w.log.InfoContext(ctx, "worker - run - dispatch loop stopped")
			return
		case frame, ok := <-frames:
			if !ok {
				w.log.InfoContext(ctx, "worker - run - frame source closed")
				return
			}
			// a malformed frame is dropped, the loop keeps going
			_ = w.ProcessFrame(frame)
		}
	}
}

func (w *DispatchWorker) ProcessFrame(frame domain.InboundFrame) error {
	ctx := frame.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	if ctx.Err() != nil {
		// connection was closed after the frame was queued
		return nil
	}
	log := logging.FromContextOr(ctx, w.log)

	ctx, span := tracer.Start(ctx, "DispatchWorker.ProcessFrame")
	defer span.End()
	span.SetAttributes(
		attribute.String("ws.conn_id", frame.ConnID),
		attribute.Int("ws.frame_bytes", len(frame.Data)),
	)
	if sc := span.SpanContext(); sc.HasTraceID() {
		log = log.With(logging.TraceID(sc.TraceID().String()))
	}
	// subscribers log with the frame's trace id
	ctx = logging.WithContext(ctx, log)

	events, err := domain.DecodeFrame(frame.Data)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "malformed frame")
		log.Warn("worker - process frame - dropping malformed frame", logging.Err(err))
		return err
	}
	span.SetAttributes(attribute.Int("ws.events", len(events)))

	for i, ev := range events {
		if ctx.Err() != nil {
			log.Debug("worker - process frame - connection closed mid-frame", "skipped", len(events)-i)
			return nil
		}
		w.router.Dispatch(ctx, ev)
	}
	return nil
}
