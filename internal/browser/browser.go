package browser

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog"
)

// The booking site serves a reduced page to unknown agents, so runs present
// a desktop Chrome identity.
const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/98.0.4758.102 Safari/537.36"

// Umbrella budget for one whole run; individual operations carry their own
// tighter timeouts.
const runBudget = 10 * time.Minute

const pollInterval = 250 * time.Millisecond

// Session owns one headless Chrome and one tab for the duration of a run.
type Session struct {
	tabCtx      context.Context
	cancelRun   context.CancelFunc
	cancelTab   context.CancelFunc
	cancelAlloc context.CancelFunc
	logger      zerolog.Logger
}

// New launches the browser allocator and opens the run's tab.
func New(headless bool, logger zerolog.Logger) *Session {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.WindowSize(1920, 1080),
		chromedp.NoSandbox,
		chromedp.UserAgent(userAgent),
		chromedp.Flag("disable-web-security", true),
		chromedp.Flag("disable-site-isolation-trials", true),
		chromedp.Flag("disable-features", "SameSiteByDefaultCookies,CookiesWithoutSameSiteMustBeSecure"),
		chromedp.Flag("headless", headless),
	)

	componentLogger := logger.With().Str("component", "browser").Logger()

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), opts...)
	tabCtx, cancelTab := chromedp.NewContext(
		allocCtx,
		chromedp.WithLogf(func(format string, args ...interface{}) {
			msg := fmt.Sprintf(format, args...)
			if (strings.Contains(msg, "error") || strings.Contains(msg, "failed")) &&
				!strings.Contains(msg, "cookiePart") &&
				!strings.Contains(msg, "unmarshal event") {
				componentLogger.Debug().Msg(msg)
			}
		}),
	)
	tabCtx, cancelRun := context.WithTimeout(tabCtx, runBudget)

	return &Session{
		tabCtx:      tabCtx,
		cancelRun:   cancelRun,
		cancelTab:   cancelTab,
		cancelAlloc: cancelAlloc,
		logger:      componentLogger,
	}
}

// Close tears the session down. Best effort; safe to call on every exit
// path.
func (s *Session) Close() {
	s.cancelRun()
	s.cancelTab()
	s.cancelAlloc()
}

func (s *Session) run(timeout time.Duration, actions ...chromedp.Action) error {
	ctx, cancel := context.WithTimeout(s.tabCtx, timeout)
	defer cancel()
	return chromedp.Run(ctx, actions...)
}

// Navigate loads a URL and returns once the document is ready.
func (s *Session) Navigate(url string, timeout time.Duration) error {
	return s.run(timeout, chromedp.Navigate(url))
}

// WaitURL blocks until the page URL contains fragment.
func (s *Session) WaitURL(fragment string, timeout time.Duration) error {
	expr := fmt.Sprintf(`location.href.indexOf(%q) !== -1`, fragment)
	var reached bool
	return s.run(timeout, chromedp.Poll(expr, &reached, chromedp.WithPollingInterval(pollInterval)))
}

// WaitVisible blocks until an element matching sel is visible.
func (s *Session) WaitVisible(sel string, timeout time.Duration) error {
	return s.run(timeout, chromedp.WaitVisible(sel, chromedp.ByQuery))
}

// WaitEnabled blocks until an element matching sel exists and is not
// disabled.
func (s *Session) WaitEnabled(sel string, timeout time.Duration) error {
	expr := fmt.Sprintf(`(function() { var el = document.querySelector(%q); return !!el && !el.disabled; })()`, sel)
	var enabled bool
	return s.run(timeout, chromedp.Poll(expr, &enabled, chromedp.WithPollingInterval(pollInterval)))
}

// Click clicks the first element matching sel.
func (s *Session) Click(sel string, timeout time.Duration) error {
	return s.run(timeout, chromedp.Click(sel, chromedp.ByQuery))
}

// Fill replaces the value of the input matching sel.
func (s *Session) Fill(sel, value string, timeout time.Duration) error {
	return s.run(timeout,
		chromedp.WaitVisible(sel, chromedp.ByQuery),
		chromedp.SetValue(sel, value, chromedp.ByQuery),
	)
}

// Checked reports whether the element matching sel exists and is checked.
func (s *Session) Checked(sel string, timeout time.Duration) (bool, error) {
	expr := fmt.Sprintf(`(function() { var el = document.querySelector(%q); return !!el && !!el.checked; })()`, sel)
	var checked bool
	if err := s.run(timeout, chromedp.Evaluate(expr, &checked)); err != nil {
		return false, err
	}
	return checked, nil
}

// ReadAll returns the trimmed text content of every element matching sel,
// in document order. No matches is an empty list, not an error.
func (s *Session) ReadAll(sel string, timeout time.Duration) ([]string, error) {
	expr := fmt.Sprintf(
		`Array.from(document.querySelectorAll(%q)).map(function(el) { return (el.textContent || "").trim(); })`,
		sel,
	)
	var texts []string
	if err := s.run(timeout, chromedp.Evaluate(expr, &texts)); err != nil {
		return nil, err
	}
	return texts, nil
}

// URL returns the tab's current location, for diagnostics.
func (s *Session) URL() (string, error) {
	var url string
	if err := s.run(5*time.Second, chromedp.Location(&url)); err != nil {
		return "", err
	}
	return url, nil
}
