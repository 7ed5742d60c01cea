package booking

import "errors"

var (
	ErrInvalidPreferences  = errors.New("invalid preferences")
	ErrSessionUnavailable  = errors.New("portal session unavailable")
	ErrSnapshotUnavailable = errors.New("availability snapshot unavailable")
	ErrNoPreferenceSource  = errors.New("no preference source")
)
