package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// DefaultTimeout bounds a single store call when the caller set no deadline.
const DefaultTimeout = 10 * time.Second

// Response is the successful outcome of a Query. Data holds a JSON array of
// rows for selects and for writes (which return the affected rows). Count is
// set for count queries.
type Response struct {
	Data  json.RawMessage
	Count int64
}

// Client executes queries against a remote store. Implementations are safe
// for concurrent use and hold no per-call state.
type Client interface {
	Execute(ctx context.Context, q *Query) (*Response, error)
}

// TokenScoper is implemented by clients that can act on behalf of a
// signed-in user instead of the anonymous key.
type TokenScoper interface {
	WithToken(token string) Client
}

// RemoteError is an error reported by the store itself.
type RemoteError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
	Hint    string `json:"hint"`
}

func (e *RemoteError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (code %s)", e.Message, e.Code)
	}
	return e.Message
}

// WithTimeout applies d to ctx unless ctx already has a deadline.
func WithTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return ctx, func() {}
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d)
}

// EmptyRows is the payload returned when nothing matched.
var EmptyRows = json.RawMessage("[]")
