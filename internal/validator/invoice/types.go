package invoice

import "time"

// ValidationResult is a single rule outcome for one field path.
type ValidationResult struct {
	Passed        bool
	FieldPath     string
	ExpectedValue string
	ActualValue   string
	Message       string
}

// Options holds the configurable thresholds the rules read.
type Options struct {
	// TotalTolerance is the largest line-item sum difference treated as rounding.
	TotalTolerance  float64
	MaxAge          time.Duration
	MaxFuture       time.Duration
	ExtraCurrencies []string
	// Now is the clock for date plausibility. Nil means time.Now.
	Now func() time.Time
}

func (o Options) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

