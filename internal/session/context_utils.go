// internal/session/context_utils.go
package session

import "context"

// CombineContext derives a context cancelled when either parent is done. The
// returned context inherits values and deadline from parentCtx only; use it
// when an operation must respect both the session lifecycle and a caller's
// timeout.
func CombineContext(parentCtx, secondaryCtx context.Context) (context.Context, context.CancelFunc) {
	combinedCtx, cancel := context.WithCancel(parentCtx)

	go func() {
		select {
		case <-secondaryCtx.Done():
			cancel()
		case <-combinedCtx.Done():
			// Already cancelled from the parent or a direct call; exit.
		}
	}()

	return combinedCtx, cancel
}
