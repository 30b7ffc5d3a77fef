package checkout

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// Step: шаг оформления. Compensate может быть nil, если откатывать нечего.
type Step struct {
	Name       domain.CheckoutStep
	Execute    func(ctx context.Context) error
	Compensate func(ctx context.Context) error
}

// runSteps выполняет шаги по порядку. При ошибке шага компенсирует уже
// выполненные шаги в обратном порядке и возвращает исходную ошибку.
func (w *Workflow) runSteps(ctx context.Context, run *runContext, steps []Step) error {
	completed := make([]Step, 0, len(steps))

	for _, step := range steps {
		w.journal(ctx, run, step.Name, domain.JournalStarted, "")

		start := w.now()
		err := step.Execute(ctx)
		if w.metrics != nil {
			w.metrics.RecordStepDuration(string(step.Name), w.now().Sub(start))
		}

		if err != nil {
			run.logger.WithError(err).WithField("step", step.Name).Warn("checkout step failed")
			w.journal(ctx, run, step.Name, domain.JournalFailed, err.Error())
			if w.metrics != nil {
				w.metrics.RecordFailed(string(step.Name))
			}
			w.rollback(ctx, run, completed)
			return err
		}

		w.journal(ctx, run, step.Name, domain.JournalSucceeded, "")
		completed = append(completed, step)
	}

	return nil
}

func (w *Workflow) rollback(ctx context.Context, run *runContext, completed []Step) {
	for i := len(completed) - 1; i >= 0; i-- {
		step := completed[i]
		if step.Compensate == nil {
			continue
		}
		if err := step.Compensate(ctx); err != nil {
			run.logger.WithError(err).WithField("step", step.Name).Error("checkout compensation failed")
		}
	}
}

func (w *Workflow) journal(ctx context.Context, run *runContext, step domain.CheckoutStep, outcome domain.JournalOutcome, detail string) {
	if w.entries == nil {
		return
	}
	entry := domain.JournalEntry{
		RunID:    run.id,
		ClientID: run.clientID,
		Step:     step,
		Outcome:  outcome,
		Detail:   detail,
		Occurred: w.now().UTC(),
	}
	// Запись в журнал не должна теряться из-за отменённого запроса.
	if err := w.entries.Append(context.WithoutCancel(ctx), entry); err != nil {
		run.logger.WithError(err).WithFields(log.Fields{
			"step":    step,
			"outcome": outcome,
		}).Warn("failed to append checkout journal entry")
	}
}
