package runner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"drivetestWatcher/internal/flow"
	"drivetestWatcher/pkg/config"
)

// fakeSession is an Automation whose every operation succeeds, except those
// listed in failOn. ReadAll serves one label batch per call.
type fakeSession struct {
	failOn     map[string]error
	labelLists [][]string
	closed     int
	url        string
}

func (f *fakeSession) op(key string) error { return f.failOn[key] }

func (f *fakeSession) Navigate(url string, _ time.Duration) error    { return f.op("Navigate") }
func (f *fakeSession) WaitURL(frag string, _ time.Duration) error    { return f.op("WaitURL " + frag) }
func (f *fakeSession) WaitVisible(sel string, _ time.Duration) error { return f.op("WaitVisible") }
func (f *fakeSession) WaitEnabled(sel string, _ time.Duration) error { return f.op("WaitEnabled") }
func (f *fakeSession) Click(sel string, _ time.Duration) error       { return f.op("Click") }
func (f *fakeSession) Fill(sel, v string, _ time.Duration) error     { return f.op("Fill") }
func (f *fakeSession) Checked(sel string, _ time.Duration) (bool, error) {
	return false, f.op("Checked")
}

func (f *fakeSession) ReadAll(sel string, _ time.Duration) ([]string, error) {
	if err := f.op("ReadAll"); err != nil {
		return nil, err
	}
	if len(f.labelLists) == 0 {
		return nil, nil
	}
	labels := f.labelLists[0]
	f.labelLists = f.labelLists[1:]
	return labels, nil
}

func (f *fakeSession) URL() (string, error) { return f.url, nil }
func (f *fakeSession) Close()               { f.closed++ }

type fakeNotifier struct {
	messages []string
	err      error
}

func (n *fakeNotifier) Send(_ context.Context, text string) error {
	n.messages = append(n.messages, text)
	return n.err
}

// nearLabel renders a slot label a few days out, so it parses and lands
// inside the lookahead window regardless of when the test runs.
func nearLabel(days int) string {
	return time.Now().AddDate(0, 0, days).Format("Monday, 02 January 2006 03:04 PM")
}

func validConfig() *config.Config {
	return &config.Config{
		TelegramToken:  "token",
		TelegramChatID: "chat",
		LicenceNumber:  "12345678",
		ContactName:    "Test Person",
		ContactPhone:   "0400000000",
		StartURL:       config.DefaultStartURL,
		Locations: []config.Location{
			{Name: "NORTH", Selector: "BookingSearchForm:region_12"},
			{Name: "SOUTH", Selector: "BookingSearchForm:region_13"},
		},
	}
}

func newTestRunner(cfg *config.Config, s *fakeSession, n *fakeNotifier) *Runner {
	r := New(cfg, n, zerolog.Nop())
	r.newSession = func() session { return s }
	return r
}

func TestRunOnceSilentWhenNoSuitableSlots(t *testing.T) {
	s := &fakeSession{failOn: map[string]error{}, labelLists: [][]string{{}, {}}}
	n := &fakeNotifier{}
	r := newTestRunner(validConfig(), s, n)

	require.NoError(t, r.RunOnce(context.Background()))
	assert.Empty(t, n.messages)
	assert.Equal(t, 1, s.closed)
}

func TestRunOnceNotifiesOnlySlottedLocationsInOrder(t *testing.T) {
	s := &fakeSession{
		failOn:     map[string]error{},
		labelLists: [][]string{{nearLabel(3)}, {}},
	}
	n := &fakeNotifier{}
	r := newTestRunner(validConfig(), s, n)

	require.NoError(t, r.RunOnce(context.Background()))
	require.Len(t, n.messages, 1)
	assert.Contains(t, n.messages[0], "NORTH")
	assert.NotContains(t, n.messages[0], "SOUTH")
}

func TestRunOnceOneMessagePerLocationInOrder(t *testing.T) {
	s := &fakeSession{
		failOn:     map[string]error{},
		labelLists: [][]string{{nearLabel(2)}, {nearLabel(4), nearLabel(5)}},
	}
	n := &fakeNotifier{}
	r := newTestRunner(validConfig(), s, n)

	require.NoError(t, r.RunOnce(context.Background()))
	require.Len(t, n.messages, 2)
	assert.Contains(t, n.messages[0], "NORTH")
	assert.Contains(t, n.messages[1], "SOUTH")
}

func TestRunOnceDispatchFailureDoesNotBlockOtherLocations(t *testing.T) {
	s := &fakeSession{
		failOn:     map[string]error{},
		labelLists: [][]string{{nearLabel(2)}, {nearLabel(4)}},
	}
	n := &fakeNotifier{err: errors.New("telegram down")}
	r := newTestRunner(validConfig(), s, n)

	// The run itself still succeeds; both dispatches were attempted.
	require.NoError(t, r.RunOnce(context.Background()))
	assert.Len(t, n.messages, 2)
}

func TestRunOnceFailureSendsOneDiagnosticAndClosesSession(t *testing.T) {
	s := &fakeSession{
		failOn: map[string]error{"Navigate": errors.New("net unreachable")},
		url:    "https://example.com/WelcomeDrivingTest.xhtml",
	}
	n := &fakeNotifier{}
	r := newTestRunner(validConfig(), s, n)

	err := r.RunOnce(context.Background())
	require.Error(t, err)

	var d *flow.Diagnostic
	assert.ErrorAs(t, err, &d)
	require.Len(t, n.messages, 1)
	assert.Contains(t, n.messages[0], "failed")
	assert.Contains(t, n.messages[0], `WelcomeDrivingTest\.xhtml`)
	assert.Equal(t, 1, s.closed)
}

func TestRunOnceFailureWithFailingNotifierStillTearsDown(t *testing.T) {
	s := &fakeSession{failOn: map[string]error{"Navigate": errors.New("boom")}}
	n := &fakeNotifier{err: errors.New("telegram down")}
	r := newTestRunner(validConfig(), s, n)

	require.Error(t, r.RunOnce(context.Background()))
	assert.Len(t, n.messages, 1)
	assert.Equal(t, 1, s.closed)
}

func TestRunOnceConfigErrorAbortsBeforeNavigation(t *testing.T) {
	cfg := validConfig()
	cfg.LicenceNumber = ""

	sessions := 0
	n := &fakeNotifier{}
	r := New(cfg, n, zerolog.Nop())
	r.newSession = func() session {
		sessions++
		return &fakeSession{}
	}

	err := r.RunOnce(context.Background())
	require.ErrorIs(t, err, ErrInvalidConfig)
	assert.Zero(t, sessions, "no automation session may be opened")
	// Telegram credentials are present, so a best-effort diagnostic goes out.
	require.Len(t, n.messages, 1)
	assert.Contains(t, n.messages[0], "licence number")
}

func TestRunOnceConfigErrorWithoutChannelStaysSilent(t *testing.T) {
	cfg := validConfig()
	cfg.TelegramToken = ""
	cfg.LicenceNumber = ""

	n := &fakeNotifier{}
	r := newTestRunner(cfg, &fakeSession{}, n)

	require.ErrorIs(t, r.RunOnce(context.Background()), ErrInvalidConfig)
	assert.Empty(t, n.messages)
}

func TestWatchZeroIntervalRunsOnce(t *testing.T) {
	s := &fakeSession{failOn: map[string]error{}, labelLists: [][]string{{}, {}}}
	n := &fakeNotifier{}
	r := newTestRunner(validConfig(), s, n)

	require.NoError(t, r.Watch(context.Background(), 0))
	assert.Equal(t, 1, s.closed)
}

func TestWatchStopsOnConfigError(t *testing.T) {
	cfg := validConfig()
	cfg.ContactPhone = ""
	r := newTestRunner(cfg, &fakeSession{}, &fakeNotifier{})

	err := r.Watch(context.Background(), time.Millisecond)
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestWatchStopsWhenContextCancelled(t *testing.T) {
	runs := 0
	n := &fakeNotifier{}
	r := New(validConfig(), n, zerolog.Nop())
	r.newSession = func() session {
		runs++
		return &fakeSession{failOn: map[string]error{}, labelLists: [][]string{{}, {}}}
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	err := r.Watch(ctx, time.Hour)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, runs)
}

func TestDiagnosticMessageUsesLastURL(t *testing.T) {
	s := &fakeSession{
		failOn: map[string]error{"WaitURL " + flow.SlotsFragment: fmt.Errorf("timed out")},
		url:    "https://example.com/LocationSelection.xhtml",
	}
	n := &fakeNotifier{}
	r := newTestRunner(validConfig(), s, n)

	require.Error(t, r.RunOnce(context.Background()))
	require.Len(t, n.messages, 1)
	assert.True(t, strings.Contains(n.messages[0], `LocationSelection\.xhtml`), "diagnostic should carry the last page")
}
