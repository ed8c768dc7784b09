package scheduler

import (
	"context"
	"fmt"
	"strings"

	"github.com/me/ringflow/internal/stats"
	"github.com/me/ringflow/internal/topology"
	"github.com/me/ringflow/pkg/model"
)

// RecordCompletion learns from a finished instruction. The elapsed time since
// its start marker feeds the statistic of the anchor pair its route used.
// When the container's previous task ended where this one began, the gap in
// between feeds the container's continuity statistic if it lies within the
// configured range. The container's last record is always refreshed.
func (e *Engine) RecordCompletion(ctx context.Context, c model.Completion) error {
	if errs := validateCompletion(c); len(errs) > 0 {
		return model.NewValidationError("invalid completion", errs...)
	}
	code := strings.TrimSpace(c.Code)
	finished := c.FinishedAt
	if finished <= 0 {
		finished = e.nowMs()
	}
	logger := e.logger.With("instruction_code", code)

	started, ok, err := e.store.GetStartMarker(ctx, code)
	if err != nil {
		return fmt.Errorf("read start marker of %s: %w", code, err)
	}
	if ok {
		elapsed := max(0, finished-started)
		if err := e.store.SetDuration(ctx, code, elapsed); err != nil {
			return fmt.Errorf("record duration of %s: %w", code, err)
		}
		if _, err := e.estimator.Observe(ctx, e.odKey(c.From, c.To), float64(elapsed)); err != nil {
			return err
		}
	} else {
		logger.Warn("no start marker, travel time not learned")
	}

	container := topology.Normalize(c.Container)
	if container == "" {
		return nil
	}
	last, found, err := e.store.GetContainerLast(ctx, container)
	if err != nil {
		return fmt.Errorf("read container %s: %w", container, err)
	}
	if found && last.LastTo == topology.Normalize(c.From) {
		gap := max(0, finished-last.LastFinish)
		if gap >= e.config.ContinuityMinMs && gap <= e.config.ContinuityMaxMs {
			if _, err := e.estimator.Observe(ctx, stats.ContainerKey(container), float64(gap)); err != nil {
				return err
			}
		} else {
			logger.Debug("continuity gap out of range", "container_code", container, "gap_ms", gap)
		}
	}

	next := model.ContainerLast{LastFinish: finished, LastTo: topology.Normalize(c.To)}
	if err := e.store.PutContainerLast(ctx, container, next); err != nil {
		return fmt.Errorf("update container %s: %w", container, err)
	}
	return nil
}

// odKey keys the sample by the anchors of the route the resolver picks, so
// it lands on the same statistic cost queries read. Names that do not map
// onto the ring are used as given.
func (e *Engine) odKey(from, to string) string {
	r := e.ring.Route(from, to, e.config.Policy)
	if r.Resolved() {
		return stats.ODKey(r.FromAnchor, r.ToAnchor)
	}
	return stats.ODKey(from, to)
}

func validateCompletion(c model.Completion) []model.FieldError {
	var errs []model.FieldError
	required := []struct{ field, value string }{
		{model.FieldCode, c.Code},
		{model.FieldFrom, c.From},
		{model.FieldTo, c.To},
	}
	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			errs = append(errs, model.FieldError{Field: f.field, Message: f.field + " is required"})
		}
	}
	return errs
}
