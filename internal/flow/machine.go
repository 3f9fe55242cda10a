package flow

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"drivetestWatcher/pkg/config"
	"drivetestWatcher/pkg/slot"
)

// Automation is the page-automation capability the machine drives. Every
// operation blocks up to its timeout and may fail with a timeout-kind
// error. Implemented by internal/browser; faked in tests.
type Automation interface {
	Navigate(url string, timeout time.Duration) error
	WaitURL(fragment string, timeout time.Duration) error
	WaitVisible(sel string, timeout time.Duration) error
	WaitEnabled(sel string, timeout time.Duration) error
	Click(sel string, timeout time.Duration) error
	Fill(sel, value string, timeout time.Duration) error
	Checked(sel string, timeout time.Duration) (bool, error)
	ReadAll(sel string, timeout time.Duration) ([]string, error)
	URL() (string, error)
}

// Short bound for optional elements: absence within this window means
// "nothing to do here", not failure.
const probeTimeout = 5 * time.Second

// The terms accept button must exist and become enabled within this bound;
// unlike the checkbox it is not optional.
const termsAcceptTimeout = 10 * time.Second

// After a dropdown choice the form's continue button re-renders; it must
// settle before it can be clicked.
const settleTimeout = 10 * time.Second

// Diagnostic is the failure payload of a run: what went wrong plus the last
// page the browser was observed on. It is built once per failed run.
type Diagnostic struct {
	Message string
	LastURL string
	cause   error
}

func (d *Diagnostic) Error() string {
	if d.LastURL != "" {
		return fmt.Sprintf("%s (last page: %s)", d.Message, d.LastURL)
	}
	return d.Message
}

func (d *Diagnostic) Unwrap() error { return d.cause }

// LocationSlots pairs a checked location with the suitable slots found
// there, possibly none.
type LocationSlots struct {
	Location config.Location
	Slots    []slot.Slot
}

// Result is the successful outcome of a run: one entry per configured
// location, in configuration order.
type Result struct {
	Locations []LocationSlots
}

// state identifies one page of the booking flow.
type state int

const (
	stateWelcome state = iota
	stateTerms
	stateDetails
	stateConfirmation
	stateLocation
	stateSlots
	stateDone
)

// step is one row of the transition table: the signature gating entry to
// the state, its wait budget, and the action performed once the signature
// has been observed. Actions return the next state.
type step struct {
	name      string
	signature string // URL fragment; empty when the previous action already gated entry
	timeout   time.Duration
	action    func(*Machine, *Result) (state, error)
}

// transitions is the flow's transition table. The Welcome action resolves
// its own successor because the site may skip the terms page entirely;
// LocationSelection and SlotSelection cycle until every location has been
// checked.
var transitions = map[state]step{
	stateWelcome:      {name: "welcome", action: (*Machine).runWelcome},
	stateTerms:        {name: "terms", action: (*Machine).runTerms},
	stateDetails:      {name: "details entry", signature: DetailsFragment, timeout: config.TransitionTimeout, action: (*Machine).runDetails},
	stateConfirmation: {name: "confirmation", signature: ConfirmationFragment, timeout: config.TransitionTimeout, action: (*Machine).runConfirmation},
	stateLocation:     {name: "location selection", signature: LocationFragment, timeout: config.TransitionTimeout, action: (*Machine).runLocation},
	stateSlots:        {name: "slot selection", signature: SlotsFragment, timeout: config.SlotPageTimeout, action: (*Machine).runSlots},
}

// Machine sequences the booking flow's page transitions for one run. It is
// single-threaded and borrows the automation session from its caller.
type Machine struct {
	page     Automation
	cfg      *config.Config
	logger   zerolog.Logger
	now      func() time.Time
	locIndex int
}

// New creates a machine for one run over cfg.Locations.
func New(page Automation, cfg *config.Config, logger zerolog.Logger) *Machine {
	return &Machine{
		page:   page,
		cfg:    cfg,
		logger: logger.With().Str("component", "flow").Logger(),
		now:    time.Now,
	}
}

// Run walks the transition table from Welcome until every location has been
// checked. Exactly two outcomes are possible: a Result with one entry per
// location, or a *Diagnostic error.
func (m *Machine) Run() (result *Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = m.fail("run", fmt.Errorf("panic: %v", r))
		}
	}()

	result = &Result{}
	current := stateWelcome
	for current != stateDone {
		st, ok := transitions[current]
		if !ok {
			return nil, m.fail("run", fmt.Errorf("no transition for state %d", current))
		}

		if st.signature != "" {
			if waitErr := m.page.WaitURL(st.signature, st.timeout); waitErr != nil {
				return nil, m.fail(st.name, fmt.Errorf("wait for %s: %w", st.signature, waitErr))
			}
		}

		next, actErr := st.action(m, result)
		if actErr != nil {
			return nil, m.fail(st.name, actErr)
		}
		current = next
	}
	return result, nil
}

// fail builds the run's Diagnostic, attaching the last observed URL when
// the page can still report one.
func (m *Machine) fail(stepName string, cause error) error {
	d := &Diagnostic{
		Message: fmt.Sprintf("%s: %v", stepName, cause),
		cause:   cause,
	}
	if url, err := m.page.URL(); err == nil {
		d.LastURL = url
	}
	m.logger.Error().Str("step", stepName).Str("last_url", d.LastURL).Err(cause).Msg("run failed")
	return d
}

func (m *Machine) runWelcome(*Result) (state, error) {
	m.logger.Info().Str("url", m.cfg.StartURL).Msg("loading welcome page")
	if err := m.page.Navigate(m.cfg.StartURL, config.InitialLoadTimeout); err != nil {
		return 0, fmt.Errorf("load welcome page: %w", err)
	}
	if err := m.page.Click(cssID(welcomeContinueID), config.TransitionTimeout); err != nil {
		return 0, fmt.Errorf("click continue: %w", err)
	}

	// The site sometimes drops the terms page and lands straight on details
	// entry; accept either destination.
	if err := m.page.WaitURL(TermsFragment, config.TransitionTimeout); err != nil {
		if probeErr := m.page.WaitURL(DetailsFragment, probeTimeout); probeErr == nil {
			m.logger.Info().Msg("terms page skipped by site")
			return stateDetails, nil
		}
		return 0, fmt.Errorf("wait for terms or details page: %w", err)
	}
	return stateTerms, nil
}

func (m *Machine) runTerms(*Result) (state, error) {
	if m.cfg.TermsCheckbox != "" {
		m.acknowledgeTerms(cssID(m.cfg.TermsCheckbox))
	} else {
		m.logger.Debug().Msg("no terms checkbox configured, skipping acknowledgement")
	}

	accept := cssID(termsAcceptID)
	if err := m.page.WaitEnabled(accept, termsAcceptTimeout); err != nil {
		return 0, fmt.Errorf("terms accept button not ready: %w", err)
	}
	if err := m.page.Click(accept, config.TransitionTimeout); err != nil {
		return 0, fmt.Errorf("click terms accept: %w", err)
	}
	return stateDetails, nil
}

// acknowledgeTerms ticks the optional agreement checkbox. Every problem
// here is tolerated: a missing or unreadable checkbox is logged and
// skipped, never fatal.
func (m *Machine) acknowledgeTerms(sel string) {
	if err := m.page.WaitVisible(sel, probeTimeout); err != nil {
		m.logger.Warn().Str("selector", sel).Msg("terms checkbox not visible, skipping")
		return
	}
	checked, err := m.page.Checked(sel, probeTimeout)
	if err != nil {
		m.logger.Warn().Str("selector", sel).Err(err).Msg("could not read terms checkbox, skipping")
		return
	}
	if checked {
		m.logger.Debug().Msg("terms checkbox already checked")
		return
	}
	if err := m.page.Click(sel, probeTimeout); err != nil {
		m.logger.Warn().Str("selector", sel).Err(err).Msg("could not tick terms checkbox, skipping")
	}
}

func (m *Machine) runDetails(*Result) (state, error) {
	fields := []struct {
		id    string
		value string
	}{
		{licenceInputID, m.cfg.LicenceNumber},
		{contactNameInputID, m.cfg.ContactName},
		{contactPhoneInputID, m.cfg.ContactPhone},
	}
	for _, f := range fields {
		if err := m.page.Fill(cssID(f.id), f.value, config.TransitionTimeout); err != nil {
			return 0, fmt.Errorf("fill %s: %w", f.id, err)
		}
	}

	if err := m.chooseOption(testTypeDropdownID, testTypeCarOptionID); err != nil {
		return 0, fmt.Errorf("choose test type: %w", err)
	}

	if err := m.clickContinue(detailsContinueID); err != nil {
		return 0, err
	}
	return stateConfirmation, nil
}

func (m *Machine) runConfirmation(*Result) (state, error) {
	if err := m.clickContinue(confirmationContinueID); err != nil {
		return 0, err
	}
	return stateLocation, nil
}

func (m *Machine) runLocation(*Result) (state, error) {
	loc := m.cfg.Locations[m.locIndex]
	m.logger.Info().Str("location", loc.Name).Msg("selecting location")

	if err := m.chooseOption(regionDropdownID, loc.Selector); err != nil {
		return 0, fmt.Errorf("choose region %s: %w", loc.Name, err)
	}
	if err := m.clickContinue(locationContinueID); err != nil {
		return 0, err
	}
	return stateSlots, nil
}

func (m *Machine) runSlots(result *Result) (state, error) {
	loc := m.cfg.Locations[m.locIndex]

	suitable, err := m.collectSlots(loc)
	if err != nil {
		return 0, err
	}
	result.Locations = append(result.Locations, LocationSlots{Location: loc, Slots: suitable})

	m.locIndex++
	if m.locIndex < len(m.cfg.Locations) {
		if err := m.page.Click(cssID(changeLocationID), config.TransitionTimeout); err != nil {
			return 0, fmt.Errorf("click change location: %w", err)
		}
		return stateLocation, nil
	}
	return stateDone, nil
}

// collectSlots reads every slot label for the current location and keeps
// those parsing cleanly into the lookahead window. An absent table means
// zero slots; malformed labels are dropped without comment.
func (m *Machine) collectSlots(loc config.Location) ([]slot.Slot, error) {
	if err := m.page.WaitVisible(cssID(slotTableID), config.SlotTableTimeout); err != nil {
		m.logger.Info().Str("location", loc.Name).Msg("slot table not shown, zero slots")
		return nil, nil
	}

	labels, err := m.page.ReadAll(slotLabelSelector, config.LabelReadTimeout)
	if err != nil {
		return nil, fmt.Errorf("read slot labels for %s: %w", loc.Name, err)
	}

	ref := m.now()
	var suitable []slot.Slot
	for _, label := range labels {
		s, ok := slot.Parse(label)
		if ok && s.WithinWindow(ref) {
			suitable = append(suitable, s)
		}
	}
	m.logger.Info().
		Str("location", loc.Name).
		Int("labels", len(labels)).
		Int("suitable", len(suitable)).
		Msg("slots checked")
	return suitable, nil
}

// chooseOption opens a PrimeFaces single select and clicks one of its
// options, then lets the form settle.
func (m *Machine) chooseOption(dropdownID, optionID string) error {
	if err := m.page.Click(cssID(dropdownID)+dropdownTrigger, config.TransitionTimeout); err != nil {
		return fmt.Errorf("open dropdown %s: %w", dropdownID, err)
	}
	if err := m.page.Click(cssID(optionID), config.TransitionTimeout); err != nil {
		return fmt.Errorf("click option %s: %w", optionID, err)
	}
	return nil
}

func (m *Machine) clickContinue(buttonID string) error {
	sel := cssID(buttonID)
	if err := m.page.WaitEnabled(sel, settleTimeout); err != nil {
		return fmt.Errorf("continue button %s not ready: %w", buttonID, err)
	}
	if err := m.page.Click(sel, config.TransitionTimeout); err != nil {
		return fmt.Errorf("click continue %s: %w", buttonID, err)
	}
	return nil
}
