package contracts

import (
	"context"

	"chatsync/internal/core/domain"
)

type FrameWorker interface {
	// Run consumes frames until ctx is done or the source closes.
	Run(ctx context.Context, frames <-chan domain.InboundFrame)
	// ProcessFrame decodes one frame and routes its events in order.
	ProcessFrame(frame domain.InboundFrame) error
}
