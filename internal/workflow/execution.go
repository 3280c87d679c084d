package workflow

import (
	"context"

	"github.com/nimbusdesk/console/internal/audit"
	"github.com/nimbusdesk/console/internal/models"
	"github.com/nimbusdesk/console/internal/wferr"
)

// startExecution moves an approved request to EXECUTING and hands it to the
// executor out-of-band. The APPROVED→EXECUTING hop is a compare-and-swap, so
// even two racing callers produce at most one execution attempt; the loser
// simply observes that the work is already underway.
func (w *Workflow) startExecution(req *models.ActionRequest) {
	upd := *req
	upd.Status = models.StatusExecuting

	executing, err := w.backend.Transition(&upd, req.Version, models.StatusApproved,
		audit.NewEntry("system", audit.EventExecuting, req.ID, models.OutcomeSuccess, "execution started"))
	if err != nil {
		if wferr.IsConcurrency(err) {
			return
		}
		w.recordAuditFailure(err)
		w.logger.Error().Err(err).Str("request_id", req.ID).Msg("failed to start execution")
		return
	}

	go w.runExecutor(executing)
}

// runExecutor invokes the external executor once and records its terminal
// outcome. Failures are terminal: a retry is a brand-new request, so a risky
// operation is never re-run without fresh human awareness.
func (w *Workflow) runExecutor(req *models.ActionRequest) {
	ctx, cancel := context.WithTimeout(context.Background(), w.execLimit)
	defer cancel()

	output, execErr := w.executor.Execute(ctx, req.ActionID, req.Parameters)

	upd := *req
	var entry models.AuditEntry
	if execErr != nil {
		upd.Status = models.StatusFailed
		upd.ExecutionResult = execErr.Error()
		entry = audit.NewEntry("system", audit.EventFailed, req.ID, models.OutcomeFailed, execErr.Error())
	} else {
		upd.Status = models.StatusCompleted
		upd.ExecutionResult = output
		entry = audit.NewEntry("system", audit.EventCompleted, req.ID, models.OutcomeSuccess, summarize(output))
	}

	done, err := w.backend.Transition(&upd, req.Version, models.StatusExecuting, entry)
	if err != nil {
		w.recordAuditFailure(err)
		w.logger.Error().Err(err).Str("request_id", req.ID).Msg("failed to record execution outcome")
		return
	}

	w.logger.Info().
		Str("request_id", req.ID).
		Str("status", string(done.Status)).
		Msg("execution finished")

	if w.metrics != nil {
		w.metrics.RecordExecution(string(done.Status))
	}
	w.notifier.RequestFinished(done)
}

// summarize truncates executor output for the audit trail.
func summarize(output string) string {
	const max = 500
	if len(output) > max {
		return output[:max] + "…"
	}
	return output
}
