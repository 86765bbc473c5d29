package engine

import (
	"errors"
	"fmt"
	"time"

	"plinkage/internal/domain"
)

// EngagementDraft carries the proposed fields of a not-yet-created engagement.
type EngagementDraft struct {
	Kind       domain.EngagementKind
	SenderID   string
	ReceiverID string
	ProjectID  string
	Rate       float64
	TimeFrame  int
}

// ValidateEngagement checks a draft against its loaded project. Checks run in
// order and fail fast; no side effects.
func ValidateEngagement(d EngagementDraft, p domain.Project) error {
	if d.Rate < 0 {
		return errors.New("rate must not be negative")
	}
	if d.TimeFrame < 1 {
		return errors.New("time frame must be a positive number of hours")
	}
	if d.SenderID == "" || d.ReceiverID == "" {
		return errors.New("sender and receiver required")
	}
	hours, err := projectDurationHours(p)
	if err != nil {
		return err
	}
	if float64(d.TimeFrame) > hours {
		return ErrTimeframeExceedsDuration
	}
	if d.Kind == domain.KindOffer {
		if p.Status != domain.ProjectActive {
			return ErrProjectNotActive
		}
		if p.ResourcesAvailable <= 0 {
			return ErrProjectFull
		}
		if _, ok := p.Member(d.ReceiverID); ok {
			return ErrAlreadyEmployed
		}
	}
	return nil
}

func projectDurationHours(p domain.Project) (float64, error) {
	start, err := time.Parse(time.RFC3339, p.StartDate)
	if err != nil {
		return 0, fmt.Errorf("project start date: %w", err)
	}
	end, err := time.Parse(time.RFC3339, p.EndDate)
	if err != nil {
		return 0, fmt.Errorf("project end date: %w", err)
	}
	return end.Sub(start).Hours(), nil
}

// endAfterStartByDay compares calendar days, ignoring the time of day.
func endAfterStartByDay(startDate, endDate string) (bool, error) {
	start, err := time.Parse(time.RFC3339, startDate)
	if err != nil {
		return false, fmt.Errorf("start date: %w", err)
	}
	end, err := time.Parse(time.RFC3339, endDate)
	if err != nil {
		return false, fmt.Errorf("end date: %w", err)
	}
	sy, sm, sd := start.UTC().Date()
	ey, em, ed := end.UTC().Date()
	startDay := time.Date(sy, sm, sd, 0, 0, 0, 0, time.UTC)
	endDay := time.Date(ey, em, ed, 0, 0, 0, 0, time.UTC)
	return endDay.After(startDay), nil
}
