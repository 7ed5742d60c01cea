package clubhouse

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"github.com/example/teetime-scheduler/internal/domain/booking"
	"go.uber.org/zap"
)

const pollEvery = 250 * time.Millisecond

// Session is one logged-in browser tab.
type Session struct {
	cfg   Config
	log   *zap.Logger
	tab   context.Context
	close func()
	once  sync.Once
}

// run executes actions in the tab, bounded by ctx and by limit.
func (s *Session) run(ctx context.Context, limit time.Duration, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithTimeout(s.tab, limit)
	defer cancel()
	if dl, ok := ctx.Deadline(); ok {
		var cancelDL context.CancelFunc
		runCtx, cancelDL = context.WithDeadline(runCtx, dl)
		defer cancelDL()
	}
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return chromedp.Run(runCtx, actions...)
}

// poll evaluates js until it yields true.
func (s *Session) poll(ctx context.Context, limit time.Duration, js string) error {
	deadline := time.Now().Add(limit)
	for {
		var ok bool
		if err := s.run(ctx, s.cfg.ElementTimeout, chromedp.Evaluate(js, &ok)); err != nil {
			return err
		}
		if ok {
			return nil
		}
		if time.Now().After(deadline) {
			return context.DeadlineExceeded
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pollEvery):
		}
	}
}

func (s *Session) Login(ctx context.Context) error {
	s.log.Info("logging in", zap.String("url", s.cfg.BaseURL))
	err := s.run(ctx, s.cfg.PageTimeout,
		chromedp.Navigate(s.cfg.BaseURL),
		chromedp.WaitVisible(selUsername, chromedp.ByQuery),
		chromedp.SetValue(selUsername, "", chromedp.ByQuery),
		chromedp.SendKeys(selUsername, s.cfg.Username, chromedp.ByQuery),
		chromedp.SetValue(selPassword, "", chromedp.ByQuery),
		chromedp.SendKeys(selPassword, s.cfg.Password, chromedp.ByQuery),
		chromedp.Click(selLoginButton, chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("login form: %w", err)
	}
	if err := s.poll(ctx, s.cfg.PageTimeout, jsLoggedIn); err != nil {
		return fmt.Errorf("login not accepted: %w", err)
	}

	err = s.run(ctx, s.cfg.PageTimeout,
		chromedp.WaitVisible(selTeeTimesNav, chromedp.ByQuery),
		chromedp.Click(selTeeTimesNav, chromedp.ByQuery),
		chromedp.WaitVisible(selModules, chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("open tee times: %w", err)
	}
	s.log.Info("logged in and on tee sheet")
	return nil
}

func (s *Session) FetchAvailability(ctx context.Context, date time.Time) (booking.SlotSnapshot, error) {
	sel := dateSelector(date)
	err := s.run(ctx, s.cfg.PageTimeout,
		chromedp.WaitVisible(sel, chromedp.ByQuery),
		chromedp.Click(sel, chromedp.ByQuery),
	)
	if err != nil {
		return booking.SlotSnapshot{}, fmt.Errorf("select date %s: %w", date.Format("2006-01-02"), err)
	}
	if err := s.poll(ctx, s.cfg.PageTimeout, jsTeeSheetReady); err != nil {
		return booking.SlotSnapshot{}, fmt.Errorf("tee sheet did not load: %w", err)
	}

	var cards []card
	if err := s.run(ctx, s.cfg.ElementTimeout, chromedp.Evaluate(jsCards, &cards)); err != nil {
		return booking.SlotSnapshot{}, fmt.Errorf("read tee sheet: %w", err)
	}
	slots, dropped := slotsFromCards(cards)
	if dropped > 0 {
		s.log.Warn("unreadable tee time cards skipped", zap.Int("count", dropped))
	}
	s.log.Debug("tee sheet read", zap.Int("cards", len(cards)), zap.Int("slots", len(slots)))
	return booking.NewSnapshot(date, time.Now(), slots), nil
}

func (s *Session) SelectSlot(ctx context.Context, handle string) booking.StepOutcome {
	timeOf, tee, err := parseHandle(handle)
	if err != nil {
		return booking.Reject(err.Error())
	}
	var state string
	if err := s.run(ctx, s.cfg.ElementTimeout, chromedp.Evaluate(jsOpenCard(cardSelector(timeOf, tee)), &state)); err != nil {
		return booking.TransportError(err)
	}
	switch state {
	case "clicked":
		return booking.Accept()
	case "full":
		return booking.Reject(fmt.Sprintf("%s on hole %d is full", timeOf, tee))
	default:
		s.logVisibleTimes(ctx)
		return booking.Reject(fmt.Sprintf("%s on hole %d is not on the sheet", timeOf, tee))
	}
}

func (s *Session) SetOptions(ctx context.Context, opts booking.Options) booking.StepOutcome {
	// Guests tab, then search for the placeholder guest.
	if out := s.clickText(ctx, "", "button", "Guests", 0); out.Kind != booking.Accepted {
		return out
	}
	err := s.run(ctx, s.cfg.ElementTimeout,
		chromedp.WaitVisible(selGuestSearch, chromedp.ByQuery),
		chromedp.SetValue(selGuestSearch, "", chromedp.ByQuery),
		chromedp.SendKeys(selGuestSearch, s.cfg.GuestSearch+kb.Enter, chromedp.ByQuery),
	)
	if err != nil {
		return booking.TransportError(fmt.Errorf("guest search: %w", err))
	}

	if opts.Guests > 0 {
		const addLabel = "Add Player to your Group"
		if err := s.poll(ctx, s.cfg.ElementTimeout, jsCountText("button", addLabel)+" > 0"); err != nil {
			return booking.TransportError(fmt.Errorf("guest results: %w", err))
		}
		// The list shrinks as guests are added, so always take the first button.
		for i := 0; i < opts.Guests; i++ {
			if out := s.clickText(ctx, "", "button", addLabel, 0); out.Kind != booking.Accepted {
				if out.Kind == booking.Rejected {
					return booking.Reject(fmt.Sprintf("only %d of %d guests could be added", i, opts.Guests))
				}
				return out
			}
		}
	}

	if out := s.clickText(ctx, "", "button", "Holes", 0); out.Kind != booking.Accepted {
		return out
	}
	if out := s.clickText(ctx, "", "a", strconv.Itoa(int(opts.Holes)), 0); out.Kind != booking.Accepted {
		if out.Kind == booking.Rejected {
			return booking.Reject(fmt.Sprintf("%d holes not offered", opts.Holes))
		}
		return out
	}

	if out := s.clickText(ctx, "", "button", "MOT", 0); out.Kind != booking.Accepted {
		return out
	}
	if out := s.clickText(ctx, "", "button", transportLabel(opts.Transport), 0); out.Kind != booking.Accepted {
		if out.Kind == booking.Rejected {
			return booking.Reject(fmt.Sprintf("transport %s not offered", opts.Transport))
		}
		return out
	}
	return booking.Accept()
}

func (s *Session) Submit(ctx context.Context) booking.Confirmation {
	var before string
	if err := s.run(ctx, s.cfg.ElementTimeout, chromedp.Evaluate(jsBodyText, &before)); err != nil {
		s.log.Debug("read page before submit", zap.Error(err))
	}
	if out := s.clickText(ctx, "nav", "*", "Submit", 0); out.Kind != booking.Accepted {
		return booking.Confirmation{Kind: booking.Ambiguous, Detail: "submit control: " + out.Reason}
	}

	// Wait for the page to say something new either way.
	var last booking.Confirmation
	for {
		var text string
		if err := s.run(ctx, s.cfg.ElementTimeout, chromedp.Evaluate(jsResultText, &text)); err != nil {
			if ctx.Err() != nil {
				return booking.Confirmation{Kind: booking.Ambiguous, Detail: "timed out waiting for confirmation"}
			}
			last = booking.Confirmation{Kind: booking.Ambiguous, Detail: err.Error()}
		} else {
			last = classifyAfterSubmit(before, text)
			if last.Kind != booking.Ambiguous {
				s.log.Info("submit answered", zap.String("result", last.Kind.String()), zap.String("detail", last.Detail))
				return last
			}
		}
		select {
		case <-ctx.Done():
			return last
		case <-time.After(pollEvery):
		}
	}
}

func (s *Session) Close() error {
	s.once.Do(s.close)
	return nil
}

// clickText clicks the nth element with the given text. Missing elements
// are a rejection once the element timeout has passed.
func (s *Session) clickText(ctx context.Context, within, tag, text string, nth int) booking.StepOutcome {
	deadline := time.Now().Add(s.cfg.ElementTimeout)
	for {
		var found int
		err := s.run(ctx, s.cfg.ElementTimeout, chromedp.Evaluate(jsClickText(within, tag, text, nth), &found))
		if err != nil {
			return booking.TransportError(fmt.Errorf("click %q: %w", text, err))
		}
		if found > nth {
			return booking.Accept()
		}
		if time.Now().After(deadline) {
			return booking.Reject(fmt.Sprintf("%q not found", text))
		}
		select {
		case <-ctx.Done():
			return booking.TransportError(ctx.Err())
		case <-time.After(pollEvery):
		}
	}
}

func (s *Session) logVisibleTimes(ctx context.Context) {
	var text string
	if err := s.run(ctx, s.cfg.ElementTimeout, chromedp.Evaluate(jsBodyText, &text)); err != nil {
		if !errors.Is(err, context.Canceled) {
			s.log.Debug("could not read page for diagnostics", zap.Error(err))
		}
		return
	}
	s.log.Info("slot missing; times visible on page", zap.Strings("times", visibleTimes(text, 20)))
}
