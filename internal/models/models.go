package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Team struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	Name      string    `gorm:"unique;not null" json:"name"`
	Score     int       `gorm:"default:0" json:"score"`
	CreatedAt time.Time `json:"created_at"`
}

func (t *Team) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}

type Competitor struct {
	ID        uuid.UUID  `gorm:"type:uuid;primary_key" json:"id"`
	Handle    string     `gorm:"unique;not null" json:"handle"`
	TeamID    *uuid.UUID `gorm:"type:uuid" json:"team_id"`
	Team      *Team      `gorm:"foreignKey:TeamID" json:"-"`
	CreatedAt time.Time  `json:"created_at"`
}

func (c *Competitor) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

type Problem struct {
	ID          uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	Name        string    `gorm:"not null" json:"name"`
	Points      int       `gorm:"not null" json:"points"`
	Description string    `gorm:"type:text" json:"description"`
	Hint        string    `gorm:"type:text" json:"hint"`
	// Grader references registered grading logic, e.g. "static" or "lua:crypto100.lua".
	Grader    string    `gorm:"not null" json:"grader"`
	Flag      string    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (p *Problem) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// Submission records a single flag submission attempt. ProblemUID keeps the
// problem id as a plain value so history survives problem deletion; ProblemID
// is the live relation and may no longer resolve. TeamID is the competitor's
// team at submission time and is never re-pointed afterwards.
type Submission struct {
	ID           uint64     `gorm:"primarykey" json:"id"`
	ProblemUID   uuid.UUID  `gorm:"type:uuid;not null;index:idx_submissions_team_problem" json:"problem_uid"`
	ProblemID    *uuid.UUID `gorm:"type:uuid" json:"-"`
	Problem      *Problem   `gorm:"foreignKey:ProblemID" json:"-"`
	CompetitorID *uuid.UUID `gorm:"type:uuid" json:"competitor_id"`
	TeamID       *uuid.UUID `gorm:"type:uuid;index:idx_submissions_team_problem" json:"team_id"`
	Flag         string     `gorm:"size:80;not null" json:"flag"`
	SubmittedAt  time.Time  `json:"submitted_at"`
	// Correct is nil until the attempt has been graded.
	Correct *bool `json:"correct"`
}

// Window is the interval during which a team may submit flags. One per team,
// created lazily the first time the team starts it.
type Window struct {
	TeamID   uuid.UUID `gorm:"type:uuid;primary_key" json:"team_id"`
	StartsAt time.Time `gorm:"not null" json:"starts_at"`
	EndsAt   time.Time `gorm:"not null" json:"ends_at"`
}

func (w *Window) Active(now time.Time) bool {
	return !now.Before(w.StartsAt) && !now.After(w.EndsAt)
}

func (w *Window) Started(now time.Time) bool {
	return w.StartsAt.Before(now)
}
