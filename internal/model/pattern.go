package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Pattern type constants.
const (
	PatternPeakHours          = "peak_hours"
	PatternCategoryPreference = "category_preference"
	PatternCompletionRate     = "completion_rate"
	PatternEstimationAccuracy = "estimation_accuracy"
)

// PatternData is an arbitrary JSON document describing one detected pattern.
type PatternData map[string]interface{}

// Value implements driver.Valuer.
func (d PatternData) Value() (driver.Value, error) {
	if d == nil {
		d = PatternData{}
	}
	b, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("marshal pattern data: %w", err)
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (d *PatternData) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*d = PatternData{}
		return nil
	case []byte:
		return json.Unmarshal(v, d)
	case string:
		return json.Unmarshal([]byte(v), d)
	default:
		return fmt.Errorf("unsupported pattern data source type %T", src)
	}
}

// UserPattern is one confidence-scored behavioral observation. The nightly
// recompute replaces all of a user's rows wholesale, so computed_at is uniform
// within a cycle and stale values never linger.
type UserPattern struct {
	ID          string      `gorm:"primaryKey;size:36"`
	UserID      string      `gorm:"index;size:36"`
	PatternType string      `gorm:"size:50"`
	PatternData PatternData `gorm:"type:text"`
	Confidence  float64
	ComputedAt  time.Time
}
