package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/report-lifecycle-service/pkg/errors"
)

// WithTimeout runs fn on the calling goroutine with a context that expires
// after timeout. fn must honour ctx: nothing is left running in the
// background once WithTimeout returns. A panic in fn is returned as an error
// wrapping ErrInternal. Expiry wraps ErrTimeout and context.DeadlineExceeded;
// cancellation of the parent wraps its cause.
func WithTimeout(ctx context.Context, timeout time.Duration, name string, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %s panicked: %v", apperrors.ErrInternal, name, r)
		}
	}()
	if timeout <= 0 {
		return fn(ctx)
	}
	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err = fn(timeoutCtx); err == nil {
		return nil
	}
	switch {
	case ctx.Err() != nil:
		return fmt.Errorf("%s: parent context cancelled: %w", name, ctx.Err())
	case errors.Is(timeoutCtx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("%w: %s exceeded %v: %w", apperrors.ErrTimeout, name, timeout, context.DeadlineExceeded)
	}
	return err
}
