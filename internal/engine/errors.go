package engine

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrConfiguration = errors.New("invalid configuration")
	ErrDataGap       = errors.New("missing price data")
)

// ConfigurationError is fatal and raised before any simulation starts.
type ConfigurationError struct {
	Field  string
	Value  any
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s: %s=%v %s", ErrConfiguration, e.Field, e.Value, e.Reason)
}

func (e *ConfigurationError) Unwrap() error {
	return ErrConfiguration
}

// DataGapError marks a ticker action skipped for a date because its price was missing.
type DataGapError struct {
	Ticker string
	Date   time.Time
	Op     string
}

func (e *DataGapError) Error() string {
	return fmt.Sprintf("%s: %s on %s (%s)", ErrDataGap, e.Ticker, e.Date.Format(time.DateOnly), e.Op)
}

func (e *DataGapError) Unwrap() error {
	return ErrDataGap
}
