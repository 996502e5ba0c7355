package config

import (
	"fmt"
	"time"
)

// ValidationError represents a validation error for a specific field.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationResult holds the result of config validation.
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

// Err collapses the result into a single error, or nil when valid.
func (r ValidationResult) Err() error {
	if r.Valid {
		return nil
	}
	msg := "invalid config:"
	for _, e := range r.Errors {
		msg += fmt.Sprintf(" %s (%s);", e.Field, e.Message)
	}
	return fmt.Errorf("%s", msg)
}

// Validate checks the config for invalid values. The process should refuse
// to start on any error here rather than run with nonsense thresholds.
func (c *Config) Validate() ValidationResult {
	var errors []ValidationError

	errors = append(errors, validateEngine(&c.Engine)...)
	errors = append(errors, validateTiers(&c.Tiers)...)
	errors = append(errors, validateFetch(&c.Fetch)...)
	errors = append(errors, validateDedup(&c.Dedup)...)
	errors = append(errors, validateState(&c.State)...)
	errors = append(errors, validateHealthServer(&c.HealthServer)...)

	return ValidationResult{
		Valid:  len(errors) == 0,
		Errors: errors,
	}
}

func validateEngine(e *EngineConfig) []ValidationError {
	var errors []ValidationError

	if e.WindowDuration < 1*time.Minute {
		errors = append(errors, ValidationError{
			Field:   "engine.window_duration",
			Message: "must be at least 1 minute",
		})
	}

	if e.RefreshInterval < 1*time.Second {
		errors = append(errors, ValidationError{
			Field:   "engine.refresh_interval",
			Message: "must be at least 1 second",
		})
	}

	if e.RefreshInterval > e.WindowDuration {
		errors = append(errors, ValidationError{
			Field:   "engine.refresh_interval",
			Message: "must not exceed engine.window_duration",
		})
	}

	if e.CandidateWindow < 1*time.Second {
		errors = append(errors, ValidationError{
			Field:   "engine.candidate_window",
			Message: "must be at least 1 second",
		})
	}

	if e.CopyFactor <= 0 || e.CopyFactor > 1 {
		errors = append(errors, ValidationError{
			Field:   "engine.copy_factor",
			Message: "must be between 0 (exclusive) and 1",
		})
	}

	if e.TopK < 1 {
		errors = append(errors, ValidationError{
			Field:   "engine.top_k",
			Message: "must be at least 1",
		})
	}

	if e.SampleCap < 1 {
		errors = append(errors, ValidationError{
			Field:   "engine.sample_cap",
			Message: "must be at least 1",
		})
	}

	return errors
}

func validateTiers(t *TiersConfig) []ValidationError {
	var errors []ValidationError

	if t.QualifiedMinVolume < 0 {
		errors = append(errors, ValidationError{
			Field:   "tiers.qualified_min_volume",
			Message: "must be non-negative",
		})
	}

	if t.QualifiedMinTrades < 1 {
		errors = append(errors, ValidationError{
			Field:   "tiers.qualified_min_trades",
			Message: "must be at least 1",
		})
	}

	if t.QualifiedMinMarkets < 1 {
		errors = append(errors, ValidationError{
			Field:   "tiers.qualified_min_markets",
			Message: "must be at least 1",
		})
	}

	// The cascade only makes sense when whale thresholds dominate: a wallet
	// clearing the whale bar must also clear the qualified bar.
	if t.WhaleMinVolume < t.QualifiedMinVolume {
		errors = append(errors, ValidationError{
			Field:   "tiers.whale_min_volume",
			Message: "must be at least tiers.qualified_min_volume",
		})
	}

	if t.WhaleMinTrades < t.QualifiedMinTrades {
		errors = append(errors, ValidationError{
			Field:   "tiers.whale_min_trades",
			Message: "must be at least tiers.qualified_min_trades",
		})
	}

	if t.WhaleMinMarkets < t.QualifiedMinMarkets {
		errors = append(errors, ValidationError{
			Field:   "tiers.whale_min_markets",
			Message: "must be at least tiers.qualified_min_markets",
		})
	}

	return errors
}

func validateFetch(f *FetchConfig) []ValidationError {
	var errors []ValidationError

	if f.PageSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "fetch.page_size",
			Message: "must be at least 1",
		})
	}

	if f.MaxPages < 1 {
		errors = append(errors, ValidationError{
			Field:   "fetch.max_pages",
			Message: "must be at least 1",
		})
	}

	if f.PageTimeout < 1*time.Second {
		errors = append(errors, ValidationError{
			Field:   "fetch.page_timeout",
			Message: "must be at least 1 second",
		})
	}

	if f.MaxRetries < 0 {
		errors = append(errors, ValidationError{
			Field:   "fetch.max_retries",
			Message: "must be non-negative",
		})
	}

	if f.RetryBackoff < 0 {
		errors = append(errors, ValidationError{
			Field:   "fetch.retry_backoff",
			Message: "must be non-negative",
		})
	}

	if f.MarketRefreshInterval < 10*time.Second {
		errors = append(errors, ValidationError{
			Field:   "fetch.market_refresh_interval",
			Message: "must be at least 10 seconds",
		})
	}

	return errors
}

func validateDedup(d *DedupConfig) []ValidationError {
	var errors []ValidationError

	if d.Capacity < 1 {
		errors = append(errors, ValidationError{
			Field:   "dedup.capacity",
			Message: "must be at least 1",
		})
	}

	return errors
}

func validateState(s *StateConfig) []ValidationError {
	var errors []ValidationError

	if s.Dir == "" {
		errors = append(errors, ValidationError{
			Field:   "state.dir",
			Message: "must not be empty",
		})
	}

	names := map[string]string{
		"state.window_file_name":     s.WindowFileName,
		"state.report_file_name":     s.ReportFileName,
		"state.watermark_file_name":  s.WatermarkFileName,
		"state.candidates_file_name": s.CandidatesFileName,
	}
	seen := make(map[string]string, len(names))
	for field, name := range names {
		if name == "" {
			errors = append(errors, ValidationError{
				Field:   field,
				Message: "must not be empty",
			})
			continue
		}
		if other, dup := seen[name]; dup {
			errors = append(errors, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("collides with %s (%q)", other, name),
			})
		}
		seen[name] = field
	}

	if s.SaveInterval < 1*time.Second {
		errors = append(errors, ValidationError{
			Field:   "state.save_interval",
			Message: "must be at least 1 second",
		})
	}

	return errors
}

func validateHealthServer(hs *HealthServerConfig) []ValidationError {
	var errors []ValidationError

	if hs.Port < 1 || hs.Port > 65535 {
		errors = append(errors, ValidationError{
			Field:   "health_server.port",
			Message: fmt.Sprintf("must be between 1 and 65535, got %d", hs.Port),
		})
	}

	return errors
}
