// Package steps maps the wizard's current step to a view model. Views only
// read the slice of state relevant to them; navigation affordances live in
// the surrounding frame (Actions and Indicator).
package steps

import (
	"sort"
	"strings"

	"github.com/asaskevich/govalidator"

	"github.com/wolfman30/contractor-booking/internal/bookingapi"
	"github.com/wolfman30/contractor-booking/internal/wizard"
)

// Action is a control the frame should offer on the current step.
type Action string

const (
	ActionBack    Action = "back"
	ActionNext    Action = "next"
	ActionConfirm Action = "confirm"
	ActionCall    Action = "call"
	ActionReset   Action = "reset"
)

// Context carries the externally loaded data views need.
type Context struct {
	Branding     wizard.Branding
	Catalog      *bookingapi.Catalog
	Availability bookingapi.Availability
}

// Dot is one entry of the step indicator.
type Dot struct {
	Step      string `json:"step"`
	Label     string `json:"label"`
	Index     int    `json:"index"`
	Current   bool   `json:"current"`
	Complete  bool   `json:"complete"`
	Reachable bool   `json:"reachable"`
}

// View is the rendered frame for one step. Exactly one of the step
// payloads is set.
type View struct {
	Step       string   `json:"step"`
	Index      int      `json:"index"`
	Title      string   `json:"title"`
	CanProceed bool     `json:"canProceed"`
	IsLoading  bool     `json:"isLoading"`
	Error      string   `json:"error,omitempty"`
	Actions    []Action `json:"actions"`
	Indicator  []Dot    `json:"indicator"`

	ZipCheck     *ZipCheckView     `json:"zipCheck,omitempty"`
	Category     *CategoryView     `json:"category,omitempty"`
	Address      *AddressView      `json:"address,omitempty"`
	DateTime     *DateTimeView     `json:"dateTime,omitempty"`
	Contact      *ContactView      `json:"contact,omitempty"`
	Details      *DetailsView      `json:"details,omitempty"`
	Review       *ReviewView       `json:"review,omitempty"`
	Confirmation *ConfirmationView `json:"confirmation,omitempty"`
}

type ZipCheckView struct {
	PostalCode  string          `json:"postalCode,omitempty"`
	Result      *wizard.ZipInfo `json:"result,omitempty"`
	Unsupported bool            `json:"unsupported"`
	CallPhone   string          `json:"callPhone,omitempty"`
	Message     string          `json:"message,omitempty"`
}

type CategoryView struct {
	Categories []bookingapi.Category `json:"categories"`
	Services   []bookingapi.Service  `json:"services"`
	CategoryID string                `json:"categoryId,omitempty"`
	ServiceID  string                `json:"serviceId,omitempty"`
	Loaded     bool                  `json:"loaded"`
}

type AddressView struct {
	Address wizard.Address    `json:"address"`
	Hints   map[string]string `json:"hints,omitempty"`
}

type DateTimeView struct {
	Dates    []DateSlots  `json:"dates"`
	Selected *wizard.Slot `json:"selected,omitempty"`
	Timezone string       `json:"timezone,omitempty"`
}

type DateSlots struct {
	Date  string                `json:"date"`
	Slots []bookingapi.TimeSlot `json:"slots"`
}

type ContactView struct {
	Contact wizard.Contact    `json:"contact"`
	Hints   map[string]string `json:"hints,omitempty"`
}

type DetailsView struct {
	Details   wizard.Details   `json:"details"`
	Urgencies []wizard.Urgency `json:"urgencies"`
}

type ReviewView struct {
	ServiceName         string                   `json:"serviceName,omitempty"`
	Service             *wizard.ServiceSelection `json:"service,omitempty"`
	Address             *wizard.Address          `json:"address,omitempty"`
	Slot                *wizard.Slot             `json:"slot,omitempty"`
	Contact             *wizard.Contact          `json:"contact,omitempty"`
	Details             *wizard.Details          `json:"details,omitempty"`
	DispatchFeeCents    int64                    `json:"dispatchFeeCents"`
	DispatchFeeRequired bool                     `json:"dispatchFeeRequired"`
	DispatchFeeAccepted bool                     `json:"dispatchFeeAccepted"`
	TermsAccepted       bool                     `json:"termsAccepted"`
}

type ConfirmationView struct {
	Booking       wizard.Booking  `json:"booking"`
	Contact       *wizard.Contact `json:"contact,omitempty"`
	Address       *wizard.Address `json:"address,omitempty"`
	Slot          *wizard.Slot    `json:"slot,omitempty"`
	BusinessName  string          `json:"businessName,omitempty"`
	BusinessPhone string          `json:"businessPhone,omitempty"`
}

// Render builds the view for s.Step.
func Render(s wizard.State, ctx Context) View {
	v := View{
		Step:       s.Step.String(),
		Index:      int(s.Step),
		Title:      s.Step.Label(),
		CanProceed: wizard.CanProceed(s),
		IsLoading:  s.IsLoading,
		Error:      s.Error,
		Indicator:  Indicator(s),
	}

	switch s.Step {
	case wizard.StepZipCheck:
		v.ZipCheck = renderZip(s, ctx)
	case wizard.StepCategory:
		v.Category = renderCategory(s, ctx)
	case wizard.StepAddress:
		v.Address = renderAddress(s)
	case wizard.StepDateTime:
		v.DateTime = renderDateTime(s, ctx)
	case wizard.StepContact:
		v.Contact = renderContact(s)
	case wizard.StepDetails:
		v.Details = renderDetails(s)
	case wizard.StepReview:
		v.Review = renderReview(s, ctx)
	case wizard.StepConfirmation:
		v.Confirmation = renderConfirmation(s, ctx)
	}
	v.Actions = actions(s, v)
	return v
}

// Indicator lists every step with its completion and reachability, for
// step dots that allow jumping back.
func Indicator(s wizard.State) []Dot {
	dots := make([]Dot, 0, wizard.StepCount)
	for _, step := range wizard.Steps() {
		dots = append(dots, Dot{
			Step:      step.String(),
			Label:     step.Label(),
			Index:     int(step),
			Current:   step == s.Step,
			Complete:  step < s.Step && wizard.StepComplete(s, step),
			Reachable: !s.Step.IsTerminal() && !step.IsTerminal() && (step <= s.Step || wizard.Reachable(s, step)),
		})
	}
	return dots
}

func actions(s wizard.State, v View) []Action {
	if s.Step.IsTerminal() {
		return []Action{ActionReset}
	}
	var out []Action
	if s.Step > wizard.StepZipCheck {
		out = append(out, ActionBack)
	}
	switch {
	case v.ZipCheck != nil && v.ZipCheck.Unsupported:
		if v.ZipCheck.CallPhone != "" {
			out = append(out, ActionCall)
		}
	case s.Step == wizard.StepReview:
		if v.CanProceed && !s.IsLoading {
			out = append(out, ActionConfirm)
		}
	default:
		if v.CanProceed && !s.IsLoading {
			out = append(out, ActionNext)
		}
	}
	return out
}

func renderZip(s wizard.State, ctx Context) *ZipCheckView {
	out := &ZipCheckView{}
	if s.ZipInfo == nil {
		return out
	}
	out.PostalCode = s.ZipInfo.PostalCode
	out.Result = s.ZipInfo
	if !s.ZipInfo.Supported {
		out.Unsupported = true
		out.CallPhone = ctx.Branding.Phone
		name := strings.TrimSpace(ctx.Branding.Name)
		if name == "" {
			name = "us"
		}
		out.Message = "We don't book online in " + s.ZipInfo.PostalCode + " yet. Please call " + name + " directly."
	}
	return out
}

func renderCategory(s wizard.State, ctx Context) *CategoryView {
	out := &CategoryView{Categories: []bookingapi.Category{}, Services: []bookingapi.Service{}}
	if ctx.Catalog != nil {
		out.Loaded = true
		out.Categories = ctx.Catalog.Categories
	}
	if s.Service != nil {
		out.CategoryID = s.Service.CategoryID
		out.ServiceID = s.Service.ServiceID
		if svcs := ctx.Catalog.ServicesIn(s.Service.CategoryID); svcs != nil {
			out.Services = svcs
		}
	}
	return out
}

func renderAddress(s wizard.State) *AddressView {
	out := &AddressView{}
	if s.Address != nil {
		out.Address = *s.Address
	} else if s.ZipInfo != nil {
		out.Address = wizard.Address{
			City:        s.ZipInfo.City,
			Region:      s.ZipInfo.Region,
			PostalCode:  s.ZipInfo.PostalCode,
			CountryCode: s.ZipInfo.CountryCode,
		}
		return out
	} else {
		return out
	}
	hints := map[string]string{}
	if cc := out.Address.CountryCode; cc != "" && !govalidator.IsISO3166Alpha2(strings.ToUpper(cc)) {
		hints["countryCode"] = "Use a two-letter country code"
	}
	if s.ZipInfo != nil && out.Address.PostalCode != "" && out.Address.PostalCode != s.ZipInfo.PostalCode {
		hints["postalCode"] = "This ZIP differs from the one checked for service"
	}
	if len(hints) > 0 {
		out.Hints = hints
	}
	return out
}

func renderDateTime(s wizard.State, ctx Context) *DateTimeView {
	out := &DateTimeView{Dates: []DateSlots{}, Selected: s.Slot}
	if s.ZipInfo != nil {
		out.Timezone = s.ZipInfo.Timezone
	}
	dates := make([]string, 0, len(ctx.Availability))
	for d := range ctx.Availability {
		dates = append(dates, d)
	}
	sort.Strings(dates)
	for _, d := range dates {
		open := make([]bookingapi.TimeSlot, 0, len(ctx.Availability[d]))
		for _, slot := range ctx.Availability[d] {
			if slot.Available() {
				open = append(open, slot)
			}
		}
		if len(open) > 0 {
			out.Dates = append(out.Dates, DateSlots{Date: d, Slots: open})
		}
	}
	return out
}

func renderContact(s wizard.State) *ContactView {
	out := &ContactView{}
	if s.Contact == nil {
		return out
	}
	out.Contact = *s.Contact
	hints := ContactHints(*s.Contact)
	if len(hints) > 0 {
		out.Hints = hints
	}
	return out
}

// ContactHints flags malformed contact fields. They are advisory and do
// not affect step completion.
func ContactHints(c wizard.Contact) map[string]string {
	hints := map[string]string{}
	if email := strings.TrimSpace(c.Email); email != "" && !govalidator.IsEmail(email) {
		hints["email"] = "Enter a valid email address"
	}
	if phone := strings.TrimSpace(c.PhoneE164); phone != "" && (!strings.HasPrefix(phone, "+") || !govalidator.IsE164(phone)) {
		hints["phoneE164"] = "Enter the phone number with country code, e.g. +15125551234"
	}
	return hints
}

func renderDetails(s wizard.State) *DetailsView {
	out := &DetailsView{
		Details:   wizard.Details{Urgency: wizard.UrgencyNormal},
		Urgencies: []wizard.Urgency{wizard.UrgencyEmergency, wizard.UrgencyUrgent, wizard.UrgencyNormal, wizard.UrgencyFlexible},
	}
	if s.Details != nil {
		out.Details = *s.Details
	}
	if s.ZipInfo != nil && !s.ZipInfo.EmergencyAvailable && s.ZipInfo.RegularAvailable {
		out.Urgencies = out.Urgencies[1:]
	}
	return out
}

func renderReview(s wizard.State, ctx Context) *ReviewView {
	out := &ReviewView{
		Service:             s.Service,
		Address:             s.Address,
		Slot:                s.Slot,
		Contact:             s.Contact,
		Details:             s.Details,
		DispatchFeeCents:    s.ZipInfo.DispatchFee(),
		DispatchFeeAccepted: s.DispatchFeeAccepted,
		TermsAccepted:       s.TermsAccepted,
	}
	out.DispatchFeeRequired = out.DispatchFeeCents > 0
	if s.Service != nil {
		if svc, ok := ctx.Catalog.Service(s.Service.ServiceID); ok {
			out.ServiceName = svc.Name
		}
	}
	return out
}

func renderConfirmation(s wizard.State, ctx Context) *ConfirmationView {
	out := &ConfirmationView{
		Contact:       s.Contact,
		Address:       s.Address,
		Slot:          s.Slot,
		BusinessName:  ctx.Branding.Name,
		BusinessPhone: ctx.Branding.Phone,
	}
	if s.Booking != nil {
		out.Booking = *s.Booking
	}
	return out
}
