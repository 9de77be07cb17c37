package workflow

// AggregateStatus folds per-step outcomes into the overall workflow
// status. Skipped steps carry no signal: among the non-skipped steps,
// all failed means failed, all completed means completed, and any mix
// means partial. A run where every step was skipped is partial: no
// successful work was performed, but nothing aborted either.
func AggregateStatus(steps []StepResult) Status {
	var completed, failed int
	for _, s := range steps {
		switch s.Status {
		case StepCompleted:
			completed++
		case StepFailed:
			failed++
		}
	}

	switch {
	case completed == 0 && failed == 0:
		return StatusPartial
	case failed == 0:
		return StatusCompleted
	case completed == 0:
		return StatusFailed
	default:
		return StatusPartial
	}
}
