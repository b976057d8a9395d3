package wizard

import "errors"

var (
	// ErrStepIncomplete is returned when advancing past a step whose
	// completion predicate does not hold.
	ErrStepIncomplete = errors.New("wizard: current step is incomplete")

	// ErrAtLastStep is returned by NextStep on the confirmation step.
	ErrAtLastStep = errors.New("wizard: already at last step")

	// ErrSubmissionRequired is returned when trying to leave the review step
	// without a successful submission.
	ErrSubmissionRequired = errors.New("wizard: review step exits only through submission")

	// ErrInvalidStep is returned for step indexes outside the sequence.
	ErrInvalidStep = errors.New("wizard: invalid step")

	// ErrStepLocked is returned when jumping forward past an incomplete step
	// or away from the confirmation step.
	ErrStepLocked = errors.New("wizard: step not reachable")
)

var (
	// ErrBusy is returned by navigation while a submission is in flight.
	ErrBusy = errors.New("wizard: submission in progress")

	// ErrNotOnReview is returned by BeginSubmission away from the review step.
	ErrNotOnReview = errors.New("wizard: submission starts from the review step")
)
