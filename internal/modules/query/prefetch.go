package query

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Prefetch warms several descriptors in parallel and returns the first error.
// Disabled descriptors are skipped.
func Prefetch(ctx context.Context, client *Client, descs ...Warmer) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, desc := range descs {
		desc := desc
		g.Go(func() error {
			return desc.Warm(gctx, client)
		})
	}
	return g.Wait()
}
