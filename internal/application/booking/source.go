package booking

import (
	"context"
	"fmt"

	"github.com/example/teetime-scheduler/internal/domain/booking"
	"go.uber.org/zap"
)

// NamedSource labels a preference source for logs.
type NamedSource struct {
	Name   string
	Source booking.PreferenceSource
}

// FallbackSource tries each source in order and returns the first valid set.
// When every source fails it returns Default, if set.
type FallbackSource struct {
	Sources []NamedSource
	Default *booking.PreferenceSet
	Log     *zap.Logger
}

func (f *FallbackSource) LoadPreferences(ctx context.Context) (booking.PreferenceSet, error) {
	log := f.Log
	if log == nil {
		log = zap.NewNop()
	}
	for _, s := range f.Sources {
		set, err := s.Source.LoadPreferences(ctx)
		if err == nil {
			err = set.Validate()
		}
		if err == nil {
			log.Info("preferences loaded", zap.String("source", s.Name), zap.Int("count", len(set.Preferences)), zap.Int("target", set.Target))
			return set, nil
		}
		if ctx.Err() != nil {
			return booking.PreferenceSet{}, ctx.Err()
		}
		log.Warn("preference source unusable", zap.String("source", s.Name), zap.Error(err))
	}
	if f.Default != nil {
		log.Info("using built-in default preferences")
		return *f.Default, nil
	}
	return booking.PreferenceSet{}, fmt.Errorf("%w: tried %d source(s)", booking.ErrNoPreferenceSource, len(f.Sources))
}

// StaticSource always returns the same set.
type StaticSource booking.PreferenceSet

func (s StaticSource) LoadPreferences(context.Context) (booking.PreferenceSet, error) {
	return booking.PreferenceSet(s), nil
}
