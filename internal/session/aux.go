package session

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/recordmap/internal/layers"
	"github.com/sells-group/recordmap/internal/metrics"
	"github.com/sells-group/recordmap/internal/record"
	"github.com/sells-group/recordmap/internal/resilience"
)

const auxFetchLimit = 4

// loadAux fetches every configured table concurrently. A failed table is
// reported by name and never cancels the others.
func (s *Session) loadAux(cfgs []layers.AuxConfig) ([]*layers.Group, []string) {
	results := make([]*layers.Group, len(cfgs))

	var g errgroup.Group
	g.SetLimit(auxFetchLimit)
	for i, c := range cfgs {
		g.Go(func() error {
			cols, err := resilience.DoVal(s.ctx, s.deps.Retry, func(ctx context.Context) (record.Columns, error) {
				return s.deps.Tables.FetchTable(ctx, c.Table)
			})
			if err != nil {
				metrics.AuxFetchFailuresTotal.WithLabelValues(c.Table).Inc()
				s.logger().Warn("session: auxiliary table fetch failed", zap.String("table", c.Table), zap.Error(err))
				return nil
			}
			results[i] = layers.BuildAux(c, cols, s.deps.Sanitizer)
			return nil
		})
	}
	_ = g.Wait()

	groups := make([]*layers.Group, 0, len(results))
	var failed []string
	for i, g := range results {
		if g == nil {
			failed = append(failed, cfgs[i].Name())
			continue
		}
		groups = append(groups, g)
	}
	return groups, failed
}
