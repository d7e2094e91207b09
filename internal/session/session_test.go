// internal/session/session_test.go
package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/page"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// newDetachedSession builds a Session without a browser attachment for
// event-handling tests.
func newDetachedSession(t *testing.T) *Session {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:     "sess-test",
		ctx:    ctx,
		cancel: cancel,
		logger: zaptest.NewLogger(t),
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func mainFrameNavigated(url string) *page.EventFrameNavigated {
	return &page.EventFrameNavigated{Frame: &cdp.Frame{ID: "frame-main", URL: url}}
}

func childFrameNavigated(url string) *page.EventFrameNavigated {
	return &page.EventFrameNavigated{Frame: &cdp.Frame{ID: "frame-child", ParentID: "frame-main", URL: url}}
}

func TestMainFrameNavigationBumpsEpoch(t *testing.T) {
	s := newDetachedSession(t)
	require.Zero(t, s.Epoch())

	s.handleEvent(mainFrameNavigated("https://example.com"))
	assert.Equal(t, uint64(1), s.Epoch())
	assert.Equal(t, "https://example.com", s.CurrentURL())

	s.handleEvent(mainFrameNavigated("https://example.com/results"))
	assert.Equal(t, uint64(2), s.Epoch())
	assert.Equal(t, "https://example.com/results", s.CurrentURL())
}

func TestChildFrameNavigationIgnored(t *testing.T) {
	s := newDetachedSession(t)

	s.handleEvent(childFrameNavigated("https://ads.example.com"))

	assert.Zero(t, s.Epoch())
	assert.Empty(t, s.CurrentURL())
}

func TestOnNavigateHookRunsAfterEpochBump(t *testing.T) {
	s := newDetachedSession(t)

	var seenEpoch uint64
	s.OnNavigate(func() { seenEpoch = s.Epoch() })

	s.handleEvent(mainFrameNavigated("https://example.com"))

	assert.Equal(t, uint64(1), seenEpoch,
		"the hook must observe the new epoch, never the old one")
}

func TestOnLoadHookReceivesSessionContext(t *testing.T) {
	s := newDetachedSession(t)

	var wg sync.WaitGroup
	wg.Add(1)
	var gotCtx context.Context
	s.OnLoad(func(ctx context.Context) {
		gotCtx = ctx
		wg.Done()
	})

	s.handleEvent(&page.EventLoadEventFired{})
	wg.Wait()

	require.NotNil(t, gotCtx)
	assert.NoError(t, gotCtx.Err())
}

func TestCloseIsIdempotentAndCancelsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{id: "sess-test", ctx: ctx, cancel: cancel, logger: zaptest.NewLogger(t)}

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.Error(t, s.ctx.Err())
}

func TestCombineContextSecondaryCancel(t *testing.T) {
	parent := context.Background()
	secondary, cancelSecondary := context.WithCancel(context.Background())

	combined, cancel := CombineContext(parent, secondary)
	defer cancel()

	require.NoError(t, combined.Err())
	cancelSecondary()

	select {
	case <-combined.Done():
	case <-time.After(time.Second):
		t.Fatal("combined context not cancelled by secondary")
	}
}

func TestCombineContextParentCancel(t *testing.T) {
	parent, cancelParent := context.WithCancel(context.Background())
	combined, cancel := CombineContext(parent, context.Background())
	defer cancel()

	cancelParent()

	select {
	case <-combined.Done():
	case <-time.After(time.Second):
		t.Fatal("combined context not cancelled by parent")
	}
}
