// Package browser drives a headless page for content that only materializes
// after client-side rendering.
package browser

import (
	"context"
	"time"
)

// Page is one rendered tab. Methods block until the action completes or the
// page context ends; only WaitVisible accepts its own bound.
type Page interface {
	Navigate(url string) error
	// WaitVisible waits for selector; timeout 0 waits until the page context ends.
	WaitVisible(selector string, timeout time.Duration) error
	Click(selector string) error
	Reload() error
	// Evaluate runs script in the document and decodes its result into res.
	Evaluate(script string, res interface{}) error
	Close() error
}

type Launcher interface {
	NewPage(ctx context.Context) (Page, error)
}

// DocumentHTMLScript returns the serialized rendered document.
const DocumentHTMLScript = `document.documentElement.outerHTML`
