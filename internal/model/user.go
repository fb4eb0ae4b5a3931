package model

import "time"

// User stores planner account metadata. Authentication lives outside this
// service; users arrive here already identified.
type User struct {
	ID          string `gorm:"primaryKey;size:36"`
	Email       string `gorm:"uniqueIndex;size:255"`
	DisplayName string `gorm:"size:100"`
	// Timezone is an IANA identifier such as "Europe/Berlin". A value that
	// fails time.LoadLocation makes the user invisible to the scheduler.
	Timezone  string `gorm:"size:50;default:UTC"`
	IsActive  bool   `gorm:"default:true"`
	CreatedAt time.Time
	UpdatedAt time.Time
}
