// Package clubhouse drives the Clubhouse Online member site with a headless
// Chrome through chromedp.
package clubhouse

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/example/teetime-scheduler/internal/domain/booking"
	"go.uber.org/zap"
)

type Config struct {
	BaseURL        string
	Username       string
	Password       string
	Headless       bool
	PageTimeout    time.Duration
	ElementTimeout time.Duration
	GuestSearch    string
}

// Portal opens one browser per session, so sessions never share form state.
type Portal struct {
	cfg Config
	log *zap.Logger
}

func New(cfg Config, log *zap.Logger) (*Portal, error) {
	if cfg.Username == "" || cfg.Password == "" {
		return nil, errors.New("clubhouse: portal_username and portal_password must be set")
	}
	if cfg.BaseURL == "" {
		return nil, errors.New("clubhouse: portal_url must be set")
	}
	if cfg.PageTimeout <= 0 {
		cfg.PageTimeout = 30 * time.Second
	}
	if cfg.ElementTimeout <= 0 {
		cfg.ElementTimeout = 10 * time.Second
	}
	if cfg.GuestSearch == "" {
		cfg.GuestSearch = "Guest, TBD"
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Portal{cfg: cfg, log: log.Named("clubhouse")}, nil
}

func (p *Portal) Name() string { return "clubhouse" }

func (p *Portal) allocatorOptions() []chromedp.ExecAllocatorOption {
	return append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", p.cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.WindowSize(1366, 900),
	)
}

// Open starts a browser. The browser outlives cancellation of ctx and is
// released by Session.Close.
func (p *Portal) Open(ctx context.Context) (booking.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	base := context.WithoutCancel(ctx)
	allocCtx, allocCancel := chromedp.NewExecAllocator(base, p.allocatorOptions()...)
	tab, tabCancel := chromedp.NewContext(allocCtx, chromedp.WithLogf(p.log.Sugar().Debugf))

	s := &Session{
		cfg: p.cfg,
		log: p.log,
		tab: tab,
		close: func() {
			tabCancel()
			allocCancel()
		},
	}
	// The first Run allocates the browser and binds it to the context it is
	// given, so it must be the tab itself and not a timeout child.
	if err := chromedp.Run(tab); err != nil {
		s.close()
		return nil, fmt.Errorf("clubhouse: start browser: %w", err)
	}
	return s, nil
}
