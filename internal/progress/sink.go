package progress

import (
	"context"

	"github.com/JakeFAU/career-crawler/internal/crawler"
)

// Sink consumes batches of run events. Implementations must be safe for
// repeated calls, honor ctx deadlines, and may be invoked concurrently.
type Sink interface {
	Consume(ctx context.Context, batch []crawler.Event) error
	Close(ctx context.Context) error
}
