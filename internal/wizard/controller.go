// Package wizard holds the booking wizard state machine: the step-indexed
// state aggregate, navigation with completion gating, per-slice updates and
// subscriber notification.
package wizard

import (
	"sync"
)

// NavAction is the kind of step transition reported to listeners.
type NavAction string

const (
	ActionView NavAction = "view"
	ActionNext NavAction = "next"
	ActionBack NavAction = "back"
)

// NavEvent is emitted for every step view and navigation.
type NavEvent struct {
	Step   Step
	Action NavAction
}

// Slice names a piece of state that is filled by an asynchronous request.
type Slice string

const (
	SliceZip          Slice = "zip"
	SliceCatalog      Slice = "catalog"
	SliceAvailability Slice = "availability"
	SliceSubmission   Slice = "submission"
)

// Ticket tags an in-flight request so its response can be discarded when
// the wizard was reset or a newer request for the same slice was started.
type Ticket struct {
	Slice      Slice
	generation uint64
	seq        uint64
}

// Options configures a Controller.
type Options struct {
	// OnError is invoked whenever a non-empty error is recorded.
	OnError func(msg string)
	// OnNav receives step view and navigation events.
	OnNav func(NavEvent)
}

// Controller owns a single wizard State. All methods are safe for
// concurrent use; mutations are serialized.
type Controller struct {
	mu         sync.Mutex
	state      State
	generation uint64
	seq        map[Slice]uint64
	version    uint64
	// submitting is set while a submission ticket is outstanding; navigation
	// is refused until it resolves.
	submitting bool

	subMu     sync.Mutex
	subs      map[int]func(State)
	nextSubID int

	pubMu     sync.Mutex
	published uint64

	onError func(string)
	onNav   func(NavEvent)
}

// NewController creates a controller at the initial state.
func NewController(opts Options) *Controller {
	return &Controller{
		state:   Initial(),
		seq:     make(map[Slice]uint64),
		subs:    make(map[int]func(State)),
		onError: opts.OnError,
		onNav:   opts.OnNav,
	}
}

// State returns a snapshot of the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Clone()
}

// CurrentStep returns the current step.
func (c *Controller) CurrentStep() Step {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Step
}

// CanProceed reports whether the current step's completion predicate holds.
func (c *Controller) CanProceed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CanProceed(c.state)
}

// Subscribe registers fn to receive a snapshot after every change. Snapshots
// arrive in mutation order and one superseded by a newer delivery is
// skipped. fn must not mutate the controller. The returned func removes the
// subscription.
func (c *Controller) Subscribe(fn func(State)) func() {
	c.subMu.Lock()
	id := c.nextSubID
	c.nextSubID++
	c.subs[id] = fn
	c.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.subMu.Lock()
			delete(c.subs, id)
			c.subMu.Unlock()
		})
	}
}

// Start announces the initial step view.
func (c *Controller) Start() {
	c.emit(nil, "", []NavEvent{{Step: c.CurrentStep(), Action: ActionView}})
}

// NextStep advances one step. The current step must be complete, the
// review step is left only through Complete, and the last step is final.
func (c *Controller) NextStep() error {
	c.mu.Lock()
	from := c.state.Step
	switch {
	case c.submitting:
		c.mu.Unlock()
		return ErrBusy
	case from.IsTerminal():
		c.mu.Unlock()
		return ErrAtLastStep
	case from == StepReview:
		c.mu.Unlock()
		return ErrSubmissionRequired
	case !CanProceed(c.state):
		c.mu.Unlock()
		return ErrStepIncomplete
	}
	c.state.Step = from.Next()
	c.state.Error = ""
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.emit(snap, "", []NavEvent{{Step: from, Action: ActionNext}, {Step: snap.state.Step, Action: ActionView}})
	return nil
}

// PrevStep moves back one step. It is a no-op on the first step and on the
// confirmation step.
func (c *Controller) PrevStep() error {
	c.mu.Lock()
	from := c.state.Step
	switch {
	case c.submitting:
		c.mu.Unlock()
		return ErrBusy
	case from == StepZipCheck || from.IsTerminal():
		c.mu.Unlock()
		return nil
	}
	c.state.Step = from.Prev()
	c.state.Error = ""
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.emit(snap, "", []NavEvent{{Step: from, Action: ActionBack}, {Step: snap.state.Step, Action: ActionView}})
	return nil
}

// GoToStep jumps to target. Backward jumps are always allowed; forward jumps
// require every step before target to be complete. The confirmation step
// can neither be entered nor left this way.
func (c *Controller) GoToStep(target Step) error {
	if !target.Valid() {
		return ErrInvalidStep
	}
	c.mu.Lock()
	from := c.state.Step
	switch {
	case c.submitting:
		c.mu.Unlock()
		return ErrBusy
	case target == from:
		c.mu.Unlock()
		return nil
	case from.IsTerminal() || target.IsTerminal():
		c.mu.Unlock()
		return ErrStepLocked
	case target > from && !Reachable(c.state, target):
		c.mu.Unlock()
		return ErrStepLocked
	}
	c.state.Step = target
	c.state.Error = ""
	snap := c.snapshotLocked()
	c.mu.Unlock()

	action := ActionBack
	if target > from {
		action = ActionNext
	}
	c.emit(snap, "", []NavEvent{{Step: from, Action: action}, {Step: target, Action: ActionView}})
	return nil
}

// UpdateZipInfo replaces the service-area lookup result.
func (c *Controller) UpdateZipInfo(info *ZipInfo) {
	c.update(func(s *State) { s.ZipInfo = clonePtr(info) })
}

// UpdateService records the selected category and service.
func (c *Controller) UpdateService(categoryID, serviceID string) {
	c.update(func(s *State) {
		s.Service = &ServiceSelection{CategoryID: categoryID, ServiceID: serviceID}
	})
}

// UpdateAddress replaces the service address.
func (c *Controller) UpdateAddress(addr Address) {
	c.update(func(s *State) {
		addr.Geo = clonePtr(addr.Geo)
		s.Address = &addr
	})
}

// UpdateSlot replaces the chosen time window.
func (c *Controller) UpdateSlot(slot Slot) {
	c.update(func(s *State) { s.Slot = &slot })
}

// UpdateContact replaces the contact record.
func (c *Controller) UpdateContact(contact Contact) {
	c.update(func(s *State) {
		contact.MarketingConsent = clonePtr(contact.MarketingConsent)
		s.Contact = &contact
	})
}

// UpdateDetails replaces the job details. An empty urgency means normal.
func (c *Controller) UpdateDetails(details Details) {
	c.update(func(s *State) {
		if details.Urgency == "" {
			details.Urgency = UrgencyNormal
		}
		details.Attachments = append([]Attachment(nil), details.Attachments...)
		s.Details = &details
	})
}

// AddAttachment appends an uploaded file to the job details, creating the
// details slice when needed.
func (c *Controller) AddAttachment(a Attachment) {
	c.update(func(s *State) {
		if s.Details == nil {
			s.Details = &Details{Urgency: UrgencyNormal}
		}
		s.Details.Attachments = append(s.Details.Attachments, a)
	})
}

// RemoveAttachment drops the attachment with id and reports whether it
// was present.
func (c *Controller) RemoveAttachment(id string) (Attachment, bool) {
	var removed Attachment
	var found bool
	c.update(func(s *State) {
		if s.Details == nil {
			return
		}
		kept := s.Details.Attachments[:0:0]
		for _, a := range s.Details.Attachments {
			if a.ID == id && !found {
				removed, found = a, true
				continue
			}
			kept = append(kept, a)
		}
		s.Details.Attachments = kept
	})
	return removed, found
}

// UpdateFlags replaces both consent flags.
func (c *Controller) UpdateFlags(flags Flags) {
	c.update(func(s *State) {
		s.DispatchFeeAccepted = flags.DispatchFeeAccepted
		s.TermsAccepted = flags.TermsAccepted
	})
}

// SetLoading toggles the in-flight indicator.
func (c *Controller) SetLoading(loading bool) {
	c.mu.Lock()
	c.state.IsLoading = loading
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.emit(snap, "", nil)
}

// SetError records a user-facing message; an empty message clears it.
func (c *Controller) SetError(msg string) {
	c.mu.Lock()
	c.state.Error = msg
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.emit(snap, msg, nil)
}

// Reset restores the initial state and invalidates every outstanding ticket.
func (c *Controller) Reset() {
	c.mu.Lock()
	c.generation++
	c.submitting = false
	c.state = Initial()
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.emit(snap, "", []NavEvent{{Step: snap.state.Step, Action: ActionView}})
}

// Restore replaces the state wholesale without gating. It is meant for
// trusted callers resuming a saved draft; transient fields are dropped.
func (c *Controller) Restore(s State) error {
	if !s.Step.Valid() {
		return ErrInvalidStep
	}
	c.mu.Lock()
	c.generation++
	c.submitting = false
	c.state = s.Persistable()
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.emit(snap, "", []NavEvent{{Step: snap.state.Step, Action: ActionView}})
	return nil
}

// Begin issues a ticket for a new request against slice. Any earlier ticket
// for the same slice becomes stale.
func (c *Controller) Begin(slice Slice) Ticket {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq[slice]++
	return Ticket{Slice: slice, generation: c.generation, seq: c.seq[slice]}
}

// BeginLoading issues a ticket like Begin and, in the same step, raises the
// loading flag and clears any previous error.
func (c *Controller) BeginLoading(slice Slice) Ticket {
	c.mu.Lock()
	t := c.beginLoadingLocked(slice)
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.emit(snap, "", nil)
	return t
}

// BeginSubmission starts a submission from the review step. It returns the
// ticket together with the state it was issued against; until the ticket
// resolves through Complete, Fail or Commit, or the wizard is reset, every
// navigation call returns ErrBusy.
func (c *Controller) BeginSubmission() (Ticket, State, error) {
	c.mu.Lock()
	switch {
	case c.submitting:
		c.mu.Unlock()
		return Ticket{}, State{}, ErrBusy
	case c.state.Step != StepReview:
		c.mu.Unlock()
		return Ticket{}, State{}, ErrNotOnReview
	}
	t := c.beginLoadingLocked(SliceSubmission)
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.emit(snap, "", nil)
	return t, snap.state.Clone(), nil
}

func (c *Controller) beginLoadingLocked(slice Slice) Ticket {
	c.seq[slice]++
	if slice == SliceSubmission {
		c.submitting = true
	}
	c.state.IsLoading = true
	c.state.Error = ""
	return Ticket{Slice: slice, generation: c.generation, seq: c.seq[slice]}
}

// Current reports whether t is still the authoritative request for its slice.
func (c *Controller) Current(t Ticket) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentLocked(t)
}

func (c *Controller) currentLocked(t Ticket) bool {
	return t.generation == c.generation && t.seq == c.seq[t.Slice]
}

// Commit applies fn when t is still current, clearing the loading flag and
// any error. It reports whether fn ran.
func (c *Controller) Commit(t Ticket, fn func(s *State)) bool {
	c.mu.Lock()
	if !c.currentLocked(t) {
		c.mu.Unlock()
		return false
	}
	if fn != nil {
		fn(&c.state)
	}
	c.resolveLocked(t)
	c.state.IsLoading = false
	c.state.Error = ""
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.emit(snap, "", nil)
	return true
}

// Fail records msg and clears the loading flag when t is still current.
func (c *Controller) Fail(t Ticket, msg string) bool {
	c.mu.Lock()
	if !c.currentLocked(t) {
		c.mu.Unlock()
		return false
	}
	c.resolveLocked(t)
	c.state.IsLoading = false
	c.state.Error = msg
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.emit(snap, msg, nil)
	return true
}

// Complete stores the booking record and moves from review to confirmation
// when t is still current. Input slices are left untouched.
func (c *Controller) Complete(t Ticket, booking Booking) bool {
	c.mu.Lock()
	if !c.currentLocked(t) || c.state.Step != StepReview {
		c.mu.Unlock()
		return false
	}
	c.resolveLocked(t)
	booking.QuotedPriceCents = clonePtr(booking.QuotedPriceCents)
	c.state.Booking = &booking
	c.state.Step = StepConfirmation
	c.state.IsLoading = false
	c.state.Error = ""
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.emit(snap, "", []NavEvent{{Step: StepReview, Action: ActionNext}, {Step: StepConfirmation, Action: ActionView}})
	return true
}

func (c *Controller) resolveLocked(t Ticket) {
	if t.Slice == SliceSubmission {
		c.submitting = false
	}
}

func (c *Controller) update(fn func(s *State)) {
	c.mu.Lock()
	fn(&c.state)
	c.state.Error = ""
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.emit(snap, "", nil)
}

// snapshot is a state copy stamped with the mutation that produced it.
type snapshot struct {
	state   State
	version uint64
}

func (c *Controller) snapshotLocked() *snapshot {
	c.version++
	return &snapshot{state: c.state.Clone(), version: c.version}
}

// emit runs hooks outside the state lock so listeners may call back in.
// Subscriber delivery is serialized and drops snapshots older than the last
// one delivered.
func (c *Controller) emit(snap *snapshot, errMsg string, events []NavEvent) {
	if c.onNav != nil {
		for _, ev := range events {
			c.onNav(ev)
		}
	}
	if errMsg != "" && c.onError != nil {
		c.onError(errMsg)
	}
	if snap == nil {
		return
	}
	c.pubMu.Lock()
	defer c.pubMu.Unlock()
	if snap.version <= c.published {
		return
	}
	c.published = snap.version

	c.subMu.Lock()
	subs := make([]func(State), 0, len(c.subs))
	for _, fn := range c.subs {
		subs = append(subs, fn)
	}
	c.subMu.Unlock()
	for _, fn := range subs {
		fn(snap.state.Clone())
	}
}
