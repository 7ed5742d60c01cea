package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	bookingapp "github.com/example/teetime-scheduler/internal/application/booking"
	"github.com/example/teetime-scheduler/internal/clubhouse"
	"github.com/example/teetime-scheduler/internal/config"
	"github.com/example/teetime-scheduler/internal/db"
	"github.com/example/teetime-scheduler/internal/domain/booking"
	"github.com/example/teetime-scheduler/internal/logging"
	"github.com/example/teetime-scheduler/internal/metrics"
	"github.com/example/teetime-scheduler/internal/migrate"
	"github.com/example/teetime-scheduler/internal/notify"
	"github.com/example/teetime-scheduler/internal/preffile"
	"github.com/example/teetime-scheduler/internal/runs"
	"github.com/example/teetime-scheduler/internal/sheets"
	"go.uber.org/zap"
)

// app carries what every subcommand shares once config is loaded.
type app struct {
	configPath string

	cfg *config.Config
	log *zap.Logger
}

func (a *app) load() error {
	var (
		cfg *config.Config
		err error
	)
	if a.configPath != "" {
		cfg, err = config.LoadFile(a.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return err
	}
	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	a.cfg, a.log = cfg, log
	return nil
}

func (a *app) sync() {
	if a.log != nil {
		_ = a.log.Sync()
	}
}

// openDB connects and applies migrations.
func (a *app) openDB(ctx context.Context) (*db.DB, error) {
	if a.cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("%w: database_url is required", config.ErrInvalidConfig)
	}
	d, err := db.Open(ctx, a.cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := d.Ping(ctx); err != nil {
		d.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	applied, err := migrate.Up(ctx, d)
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	if len(applied) > 0 {
		a.log.Info("applied migrations", zap.Strings("versions", applied))
	}
	return d, nil
}

// preferenceSource tries the spreadsheet, then the YAML file, then the
// built-in default.
func (a *app) preferenceSource(ctx context.Context) booking.PreferenceSource {
	var sources []bookingapp.NamedSource
	if a.cfg.SheetsSpreadsheetID != "" {
		creds, err := readSecret(a.cfg.SheetsCredentialsJSON)
		if err == nil {
			var src *sheets.Source
			src, err = sheets.New(ctx, a.cfg.SheetsSpreadsheetID, creds, a.log.Named("sheets"))
			if err == nil {
				sources = append(sources, bookingapp.NamedSource{Name: "sheets", Source: src})
			}
		}
		if err != nil {
			a.log.Warn("google sheets source disabled", zap.Error(err))
		}
	}
	if a.cfg.PreferencesFile != "" {
		sources = append(sources, bookingapp.NamedSource{
			Name:   "file",
			Source: preffile.Source{Path: a.cfg.PreferencesFile},
		})
	}
	def := booking.DefaultPreferences()
	return &bookingapp.FallbackSource{Sources: sources, Default: &def, Log: a.log.Named("preferences")}
}

func (a *app) portal() (*clubhouse.Portal, error) {
	return clubhouse.New(clubhouse.Config{
		BaseURL:        a.cfg.PortalURL,
		Username:       a.cfg.PortalUsername,
		Password:       a.cfg.PortalPassword,
		Headless:       a.cfg.PortalHeadless,
		PageTimeout:    a.cfg.PageTimeout,
		ElementTimeout: a.cfg.ElementTimeout,
		GuestSearch:    a.cfg.GuestSearch,
	}, a.log)
}

func (a *app) policy() bookingapp.Policy {
	p := bookingapp.DefaultPolicy()
	p.FetchTimeout = a.cfg.PageTimeout
	p.StepTimeout = a.cfg.ElementTimeout
	p.SubmitTimeout = a.cfg.SubmitTimeout
	return p
}

// sinks builds the result sinks the config enables. Close releases them.
type sinks struct {
	list  []bookingapp.ResultSink
	kafka *notify.KafkaPublisher
}

func (a *app) sinks(d *db.DB, rec *metrics.Recorder, withPush bool) *sinks {
	s := &sinks{}
	if d != nil {
		s.list = append(s.list, runs.NewRepo(d))
	}
	if brokers := a.cfg.Brokers(); len(brokers) > 0 {
		s.kafka = notify.NewKafkaPublisher(brokers, a.cfg.KafkaTopic)
		s.list = append(s.list, s.kafka)
	}
	if withPush && a.cfg.PushgatewayURL != "" {
		s.list = append(s.list, metrics.NewPusher(a.cfg.PushgatewayURL, "teetimebot", rec))
	}
	return s
}

func (s *sinks) Close() error {
	if s.kafka == nil {
		return nil
	}
	return s.kafka.Close()
}

func (a *app) job(ctx context.Context, portal booking.Portal, rec *metrics.Recorder, out []bookingapp.ResultSink) *bookingapp.Job {
	return &bookingapp.Job{
		Portal:         portal,
		Source:         a.preferenceSource(ctx),
		Sinks:          out,
		Policy:         a.policy(),
		Recorder:       rec,
		Log:            a.log.Named("job"),
		Location:       a.cfg.Location(),
		Weekday:        a.cfg.Weekday(),
		IncludeToday:   a.cfg.IncludeToday,
		OpensAt:        a.cfg.OpensAtClock(),
		TargetOverride: a.cfg.TargetCountOverride,
	}
}

// readSecret accepts inline text or a path to a file holding it.
func readSecret(s string) ([]byte, error) {
	if s == "" {
		return nil, errors.New("sheets_credentials_json is empty")
	}
	if b, err := os.ReadFile(s); err == nil {
		return b, nil
	}
	return []byte(s), nil
}
