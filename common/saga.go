package common

import (
	"context"
	log "log/slog"

	"github.com/packdb/packdb"
)

// action is one unit of work of an operation, or one compensation of it.
type action struct {
	name string
	run  func(ctx context.Context) error
}

// step is an action plus the compensations undoing what earlier steps made durable.
// Compensations run in order and only for the step that failed.
type step struct {
	action
	onFail []action
}

func do(name string, run func(ctx context.Context) error) action {
	return action{name: name, run: run}
}

// undo wraps a compensation that can't fail.
func undo(name string, run func(ctx context.Context)) action {
	return action{name: name, run: func(ctx context.Context) error {
		run(ctx)
		return nil
	}}
}

// runSteps executes steps in order. On the first failure it runs that step's compensations
// and returns false; a failing compensation is logged and the rest still run.
func runSteps(ctx context.Context, operation string, id int, steps []step) bool {
	opID := packdb.OperationID(ctx).String()
	for _, s := range steps {
		err := s.run(ctx)
		if err == nil {
			log.Debug("step done", "operation", operation, "step", s.name, "id", id, "op_id", opID)
			continue
		}
		log.Warn("step failed", "operation", operation, "step", s.name, "id", id, "op_id", opID, "error", err)
		for _, c := range s.onFail {
			if cerr := c.run(ctx); cerr != nil {
				log.Error("compensation failed", "operation", operation, "compensation", c.name,
					"id", id, "op_id", opID, "error", cerr)
				continue
			}
			log.Info("compensation done", "operation", operation, "compensation", c.name, "id", id, "op_id", opID)
		}
		return false
	}
	return true
}
