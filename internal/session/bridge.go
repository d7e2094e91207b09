// internal/session/bridge.go
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"github.com/axpilot/axpilot/internal/executor"
)

// The session provides the executor's CDP bridge: thin adapters from the
// bridge surface onto chromedp actions, all funneled through Run.
var _ executor.Bridge = (*Session)(nil)

// ResolveHandle maps a backend node id onto a frontend node id. A node that
// left the document resolves to nothing.
func (s *Session) ResolveHandle(ctx context.Context, handle int64) (cdp.NodeID, error) {
	var ids []cdp.NodeID
	err := s.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		ids, err = dom.PushNodesByBackendIDsToFrontend([]cdp.BackendNodeID{cdp.BackendNodeID(handle)}).Do(ctx)
		return err
	}))
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 || ids[0] == 0 {
		return 0, fmt.Errorf("backend node %d is not in the document", handle)
	}
	return ids[0], nil
}

func (s *Session) ScrollIntoView(ctx context.Context, nodeID cdp.NodeID) error {
	return s.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		return dom.ScrollIntoViewIfNeeded().WithNodeID(nodeID).Do(ctx)
	}))
}

func (s *Session) BoxModel(ctx context.Context, nodeID cdp.NodeID) (*dom.BoxModel, error) {
	var box *dom.BoxModel
	err := s.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		box, err = dom.GetBoxModel().WithNodeID(nodeID).Do(ctx)
		return err
	}))
	return box, err
}

func (s *Session) Focus(ctx context.Context, nodeID cdp.NodeID) error {
	return s.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		return dom.Focus().WithNodeID(nodeID).Do(ctx)
	}))
}

func (s *Session) DispatchMouse(ctx context.Context, p *input.DispatchMouseEventParams) error {
	return s.Run(ctx, p)
}

func (s *Session) DispatchKey(ctx context.Context, p *input.DispatchKeyEventParams) error {
	return s.Run(ctx, p)
}

func (s *Session) InsertText(ctx context.Context, text string) error {
	return s.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		return input.InsertText(text).Do(ctx)
	}))
}

// Viewport returns the CSS visual viewport dimensions.
func (s *Session) Viewport(ctx context.Context) (float64, float64, error) {
	var width, height float64
	err := s.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		_, _, _, _, cssVisualViewport, _, err := page.GetLayoutMetrics().Do(ctx)
		if err != nil {
			return err
		}
		if cssVisualViewport == nil {
			return fmt.Errorf("layout metrics returned no visual viewport")
		}
		width = cssVisualViewport.ClientWidth
		height = cssVisualViewport.ClientHeight
		return nil
	}))
	return width, height, err
}

func (s *Session) Navigate(ctx context.Context, url string) error {
	return s.Run(ctx, chromedp.Navigate(url))
}

func (s *Session) NavigateBack(ctx context.Context) error {
	return s.Run(ctx, chromedp.NavigateBack())
}

func (s *Session) NavigateForward(ctx context.Context) error {
	return s.Run(ctx, chromedp.NavigateForward())
}

func (s *Session) Reload(ctx context.Context) error {
	return s.Run(ctx, chromedp.Reload())
}

func (s *Session) Sleep(ctx context.Context, d time.Duration) error {
	return s.Run(ctx, chromedp.Sleep(d))
}
