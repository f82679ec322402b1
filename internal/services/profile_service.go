package services

import (
	"fmt"
	"time"

	"github.com/Digital-Minimalist-Lab/30-day-cohorts-webapp/internal/timeutil"
)

// DefaultTimezone is assumed for users who never set one.
const DefaultTimezone = "UTC"

// ProfileStore is the storage surface for per-user preferences.
// GetProfile returns (nil, nil) when no profile exists yet.
type ProfileStore interface {
	GetProfile(userID string) (*Profile, error)
	SaveProfile(p *Profile) error
}

// ProfileService materializes and updates user profiles, and resolves the
// user-local calendar date every scheduling decision hangs off.
type ProfileService struct {
	store ProfileStore
	now   func() time.Time
}

func NewProfileService(store ProfileStore) *ProfileService {
	return &ProfileService{store: store, now: time.Now}
}

// ProfileUpdate carries partial profile changes; nil fields keep the
// current value.
type ProfileUpdate struct {
	Timezone       *string `json:"timezone"`
	DailyReminder  *bool   `json:"daily_reminder"`
	WeeklyReminder *bool   `json:"weekly_reminder"`
}

// Resolve returns the user's profile, creating one with defaults on first
// access. SaveProfile is an upsert in every store, so concurrent first
// accesses settle on the same row.
func (svc *ProfileService) Resolve(userID string) (*Profile, error) {
	p, err := svc.store.GetProfile(userID)
	if err != nil {
		return nil, err
	}
	if p != nil {
		return p, nil
	}
	p = &Profile{
		UserID:         userID,
		Timezone:       DefaultTimezone,
		DailyReminder:  true,
		WeeklyReminder: true,
	}
	if err := svc.store.SaveProfile(p); err != nil {
		return nil, err
	}
	return p, nil
}

// Update applies the non-nil fields of in to the user's profile.
func (svc *ProfileService) Update(userID string, in ProfileUpdate) (*Profile, error) {
	p, err := svc.Resolve(userID)
	if err != nil {
		return nil, err
	}
	if in.Timezone != nil {
		tz := *in.Timezone
		if tz == "" {
			return nil, NewInvalidError("timezone must not be empty")
		}
		if _, err := time.LoadLocation(tz); err != nil {
			return nil, NewInvalidError(fmt.Sprintf("unknown timezone %q", tz))
		}
		p.Timezone = tz
	}
	if in.DailyReminder != nil {
		p.DailyReminder = *in.DailyReminder
	}
	if in.WeeklyReminder != nil {
		p.WeeklyReminder = *in.WeeklyReminder
	}
	if err := svc.store.SaveProfile(p); err != nil {
		return nil, err
	}
	return p, nil
}

// Today resolves the current calendar date in the user's timezone. A stored
// timezone that no longer loads falls back to UTC rather than failing the
// request.
func (svc *ProfileService) Today(userID string) (timeutil.Date, error) {
	p, err := svc.Resolve(userID)
	if err != nil {
		return timeutil.Date{}, err
	}
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		loc = time.UTC
	}
	return timeutil.DateIn(svc.now(), loc), nil
}
