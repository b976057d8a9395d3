package wizard

// Step enumerates each screen of the booking wizard in display order.
type Step int

const (
	StepZipCheck     Step = iota // 0
	StepCategory                 // 1
	StepAddress                  // 2
	StepDateTime                 // 3
	StepContact                  // 4
	StepDetails                  // 5
	StepReview                   // 6
	StepConfirmation             // 7
)

// StepCount is the number of steps in the fixed sequence.
const StepCount = 8

var stepNames = [StepCount]string{
	"zip_check",
	"category",
	"address",
	"date_time",
	"contact",
	"details",
	"review",
	"confirmation",
}

var stepLabels = [StepCount]string{
	"Location",
	"Service",
	"Address",
	"Date & Time",
	"Contact",
	"Details",
	"Review",
	"Confirmed",
}

// Steps returns every step in order.
func Steps() []Step {
	out := make([]Step, StepCount)
	for i := range out {
		out[i] = Step(i)
	}
	return out
}

// Valid reports whether s is inside the step sequence.
func (s Step) Valid() bool {
	return s >= StepZipCheck && s <= StepConfirmation
}

// String returns the analytics name of the step.
func (s Step) String() string {
	if !s.Valid() {
		return "unknown"
	}
	return stepNames[s]
}

// Label returns the short title shown in the step indicator.
func (s Step) Label() string {
	if !s.Valid() {
		return ""
	}
	return stepLabels[s]
}

// IsTerminal reports whether s is the confirmation step.
func (s Step) IsTerminal() bool {
	return s == StepConfirmation
}

// ParseStep resolves a step from its analytics name.
func ParseStep(name string) (Step, bool) {
	for i, n := range stepNames {
		if n == name {
			return Step(i), true
		}
	}
	return 0, false
}

// Next returns the following step, clamped at the last step.
func (s Step) Next() Step {
	if s >= StepConfirmation {
		return StepConfirmation
	}
	return s + 1
}

// Prev returns the preceding step, clamped at the first step.
func (s Step) Prev() Step {
	if s <= StepZipCheck {
		return StepZipCheck
	}
	return s - 1
}
