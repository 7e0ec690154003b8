package headless

import (
	"context"
	"fmt"

	"github.com/JakeFAU/career-crawler/internal/crawler"
)

// Disabled is the launcher used when browser.mode=disabled. Every launch
// fails, so runs fall back to mock listings per target.
type Disabled struct{}

// NewDisabled creates a Disabled launcher.
func NewDisabled() Disabled {
	return Disabled{}
}

// Launch always fails with crawler.ErrBrowserUnavailable.
func (Disabled) Launch(context.Context) (crawler.BrowserSession, error) {
	return nil, fmt.Errorf("%w: browser disabled by configuration", crawler.ErrBrowserUnavailable)
}
