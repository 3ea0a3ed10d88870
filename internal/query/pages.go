package query

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/tsdemo/tsdemo/internal/render"
	"github.com/tsdemo/tsdemo/pkg/types"
)

// RenderPage renders every row of page with up to workers goroutines. Output
// order matches row order. When rows fail to decode, the error of the
// lowest-numbered failing row is returned along with its index; the index is
// -1 otherwise.
func RenderPage(ctx context.Context, dec *render.Decoder, page types.Page, workers int) ([]string, int, error) {
	n := len(page.Rows)
	lines := make([]string, n)
	errs := make([]error, n)

	if workers < 1 {
		workers = 1
	}
	if workers > n {
		workers = n
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(workers, 1))
	for i := range page.Rows {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			line, err := dec.Render(page.Rows[i], page.Columns)
			// Decode failures are collected rather than returned so every
			// row is attempted.
			lines[i], errs[i] = line, err
			return nil
		})
	}
	waitErr := g.Wait()

	for i, err := range errs {
		if err != nil {
			return nil, i, err
		}
	}
	if waitErr != nil {
		return nil, -1, waitErr
	}
	if err := ctx.Err(); err != nil {
		return nil, -1, err
	}
	return lines, -1, nil
}
