package recovery

import (
	"context"
	"fmt"
	"io"

	"github.com/sheraliortiqboyev4-del/spy-bot/events"
)

// Download is an open media body. Name, when set, is the transport's file
// name and only its extension is used.
type Download struct {
	Body io.ReadCloser
	Name string
	Size int64
}

type Fetcher interface {
	Fetch(ctx context.Context, handle events.MediaHandle) (*Download, error)
}

type FetcherFunc func(ctx context.Context, handle events.MediaHandle) (*Download, error)

func (f FetcherFunc) Fetch(ctx context.Context, handle events.MediaHandle) (*Download, error) {
	return f(ctx, handle)
}

// Router dispatches a handle to the fetcher registered for its origin.
type Router map[events.Origin]Fetcher

func (r Router) Fetch(ctx context.Context, handle events.MediaHandle) (*Download, error) {
	f, ok := r[handle.Origin]
	if !ok || f == nil {
		return nil, fmt.Errorf("%w: no fetcher for origin %q", ErrUnavailable, handle.Origin)
	}
	return f.Fetch(ctx, handle)
}
