// Package sheets loads booking preferences from a Google Spreadsheet with a
// "Settings" tab and a "Preferences" tab.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/example/teetime-scheduler/internal/domain/booking"
	"go.uber.org/zap"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

const (
	settingsRange    = "Settings!A2:B10"
	preferencesRange = "Preferences!A2:F20"
)

// Source reads the spreadsheet through the Sheets v4 values API.
type Source struct {
	SpreadsheetID string
	Log           *zap.Logger

	svc *sheets.Service
}

// New authenticates with a service account key (JSON text). Extra options are
// applied after the credentials.
func New(ctx context.Context, spreadsheetID string, credentialsJSON []byte, log *zap.Logger, opts ...option.ClientOption) (*Source, error) {
	if spreadsheetID == "" {
		return nil, errors.New("sheets: spreadsheet id is empty")
	}
	jwt, err := google.JWTConfigFromJSON(credentialsJSON, sheets.SpreadsheetsReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("sheets: credentials: %w", err)
	}
	opts = append([]option.ClientOption{option.WithHTTPClient(jwt.Client(context.WithoutCancel(ctx)))}, opts...)
	return NewWithOptions(ctx, spreadsheetID, log, opts...)
}

// NewWithOptions builds a Source from raw client options, for callers that
// bring their own transport.
func NewWithOptions(ctx context.Context, spreadsheetID string, log *zap.Logger, opts ...option.ClientOption) (*Source, error) {
	if spreadsheetID == "" {
		return nil, errors.New("sheets: spreadsheet id is empty")
	}
	svc, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("sheets: client: %w", err)
	}
	return &Source{SpreadsheetID: spreadsheetID, Log: log, svc: svc}, nil
}

func (s *Source) values(ctx context.Context, rng string) ([][]string, error) {
	if s.svc == nil {
		return nil, errors.New("sheets: source is not initialised")
	}
	vr, err := s.svc.Spreadsheets.Values.Get(s.SpreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("sheets: get %s: %w", rng, err)
	}
	rows := make([][]string, 0, len(vr.Values))
	for _, r := range vr.Values {
		row := make([]string, len(r))
		for i, v := range r {
			row[i] = strings.TrimSpace(fmt.Sprint(v))
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (s *Source) LoadPreferences(ctx context.Context) (booking.PreferenceSet, error) {
	settings, err := s.values(ctx, settingsRange)
	if err != nil {
		return booking.PreferenceSet{}, err
	}
	prefs, err := s.values(ctx, preferencesRange)
	if err != nil {
		return booking.PreferenceSet{}, err
	}
	set, skipped := Parse(settings, prefs)
	log := s.Log
	if log == nil {
		log = zap.NewNop()
	}
	for _, sk := range skipped {
		log.Warn("skipping invalid preference row", zap.Int("row", sk.Row), zap.Strings("values", sk.Values), zap.String("reason", sk.Reason))
	}
	return set, nil
}

// SkippedRow is a preference row that could not be used. Row is the sheet row number.
type SkippedRow struct {
	Row    int
	Values []string
	Reason string
}

// Parse turns the two ranges into a preference set. Bad rows are skipped and
// reported; unknown transport values become CART; the result is sorted by priority.
func Parse(settings, prefs [][]string) (booking.PreferenceSet, []SkippedRow) {
	set := booking.PreferenceSet{Target: 1}
	for _, row := range settings {
		if len(row) >= 2 && strings.Contains(strings.ToLower(row[0]), "tee times to book") {
			if n, err := strconv.Atoi(row[1]); err == nil && n > 0 {
				set.Target = n
			}
			break
		}
	}

	var skipped []SkippedRow
	seen := map[int]bool{}
	for i, row := range prefs {
		sheetRow := i + 2
		p, err := parseRow(row)
		if err == nil && seen[p.Priority] {
			err = fmt.Errorf("duplicate priority %d", p.Priority)
		}
		if err != nil {
			skipped = append(skipped, SkippedRow{Row: sheetRow, Values: row, Reason: err.Error()})
			continue
		}
		seen[p.Priority] = true
		set.Preferences = append(set.Preferences, p)
	}
	sort.SliceStable(set.Preferences, func(i, j int) bool {
		return set.Preferences[i].Priority < set.Preferences[j].Priority
	})
	return set, skipped
}

// Columns: Priority | Time | Hole | Holes to Play | Transport | Guests
func parseRow(row []string) (booking.Preference, error) {
	if len(row) < 4 {
		return booking.Preference{}, fmt.Errorf("want at least 4 columns, got %d", len(row))
	}
	priority, err := strconv.Atoi(row[0])
	if err != nil {
		return booking.Preference{}, fmt.Errorf("priority: %w", err)
	}
	window, err := booking.ParseTimeWindow(row[1])
	if err != nil {
		return booking.Preference{}, fmt.Errorf("time: %w", err)
	}
	tee, err := strconv.Atoi(row[2])
	if err != nil {
		return booking.Preference{}, fmt.Errorf("hole: %w", err)
	}
	holes, err := strconv.Atoi(row[3])
	if err != nil {
		return booking.Preference{}, fmt.Errorf("holes to play: %w", err)
	}
	p := booking.Preference{
		Priority:  priority,
		Window:    window,
		Tee:       tee,
		Holes:     booking.HoleCount(holes),
		Transport: booking.TransportCart,
		Guests:    booking.MaxGuests,
	}
	if len(row) >= 5 && row[4] != "" {
		p.Transport = booking.ParseTransport(row[4])
	}
	if len(row) >= 6 && row[5] != "" {
		g, err := strconv.Atoi(row[5])
		if err != nil {
			return booking.Preference{}, fmt.Errorf("guests: %w", err)
		}
		p.Guests = g
	}
	if err := p.Validate(); err != nil {
		return booking.Preference{}, err
	}
	return p, nil
}
