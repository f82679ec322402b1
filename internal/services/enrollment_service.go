package services

import (
	"errors"
	"time"

	"github.com/Digital-Minimalist-Lab/30-day-cohorts-webapp/internal/timeutil"
)

// EnrollmentStore is the storage surface for cohort membership.
// GetEnrollment and GetEnrollmentByID return (nil, nil) when absent.
type EnrollmentStore interface {
	GetCohort(id string) (*Cohort, error)
	ListCohorts() ([]*Cohort, error)
	GetEnrollment(userID, cohortID string) (*Enrollment, error)
	GetEnrollmentByID(id string) (*Enrollment, error)
	ListUserEnrollments(userID string) ([]*Enrollment, error)
	CountActiveEnrollments(cohortID string) (int, error)
	CreateEnrollment(e *Enrollment) error
	UpdateEnrollment(e *Enrollment) error
}

// EnrollmentService handles joining cohorts and activating paid seats.
type EnrollmentService struct {
	store EnrollmentStore
	now   func() time.Time
}

func NewEnrollmentService(store EnrollmentStore) *EnrollmentService {
	return &EnrollmentService{store: store, now: time.Now}
}

// Enroll joins the user to a cohort. Free cohorts grant access immediately;
// paid cohorts leave the enrollment pending until Activate. Seats are held
// by active enrollments only, so an abandoned pending signup never blocks
// the cohort.
func (svc *EnrollmentService) Enroll(userID, cohortID string, today timeutil.Date) (*Enrollment, error) {
	cohort, err := svc.store.GetCohort(cohortID)
	if err != nil {
		return nil, err
	}
	if cohort == nil {
		return nil, NewNotFoundError("cohort not found")
	}
	if !cohort.JoinableOn(today) {
		return nil, NewForbiddenError("enrollment for this cohort is closed")
	}
	existing, err := svc.store.GetEnrollment(userID, cohortID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, NewConflictError("already enrolled in this cohort")
	}
	if cohort.MaxSeats > 0 {
		n, err := svc.store.CountActiveEnrollments(cohortID)
		if err != nil {
			return nil, err
		}
		if n >= cohort.MaxSeats {
			return nil, NewForbiddenError("cohort is full")
		}
	}

	status := EnrollmentFree
	if cohort.Paid {
		status = EnrollmentPending
	}
	e := &Enrollment{
		ID:         "enr_" + shortID(12),
		UserID:     userID,
		CohortID:   cohortID,
		Status:     status,
		EnrolledAt: svc.now(),
	}
	if err := svc.store.CreateEnrollment(e); err != nil {
		if errors.Is(err, ErrDuplicateEnrollment) {
			return nil, NewConflictError("already enrolled in this cohort")
		}
		return nil, err
	}
	return e, nil
}

// Activate flips a pending enrollment to paid, recording the amount. Admins
// call this in place of a payment provider callback.
func (svc *EnrollmentService) Activate(enrollmentID string, amountCents int) (*Enrollment, error) {
	e, err := svc.store.GetEnrollmentByID(enrollmentID)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, NewNotFoundError("enrollment not found")
	}
	if e.Status != EnrollmentPending {
		return nil, NewConflictError("enrollment is not pending activation")
	}
	cohort, err := svc.store.GetCohort(e.CohortID)
	if err != nil {
		return nil, err
	}
	if cohort != nil && amountCents < cohort.MinimumPriceCents {
		return nil, NewInvalidError("amount is below the cohort minimum price")
	}
	e.Status = EnrollmentPaid
	e.AmountPaidCents = amountCents
	e.PaidAt = svc.now()
	if err := svc.store.UpdateEnrollment(e); err != nil {
		return nil, err
	}
	return e, nil
}

// Get returns the user's enrollment in a cohort, or a not-found error.
func (svc *EnrollmentService) Get(userID, cohortID string) (*Enrollment, error) {
	e, err := svc.store.GetEnrollment(userID, cohortID)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, NewNotFoundError("not enrolled in this cohort")
	}
	return e, nil
}

// RequireActive returns the enrollment only when it grants program access.
func (svc *EnrollmentService) RequireActive(userID, cohortID string) (*Enrollment, error) {
	e, err := svc.Get(userID, cohortID)
	if err != nil {
		return nil, err
	}
	if !e.Status.Active() {
		return nil, NewForbiddenError("enrollment is not active")
	}
	return e, nil
}

// ListForUser returns all of the user's enrollments.
func (svc *EnrollmentService) ListForUser(userID string) ([]*Enrollment, error) {
	return svc.store.ListUserEnrollments(userID)
}

// JoinableCohorts lists cohorts the user could enroll in today, skipping
// full ones.
func (svc *EnrollmentService) JoinableCohorts(today timeutil.Date) ([]*Cohort, error) {
	cohorts, err := svc.store.ListCohorts()
	if err != nil {
		return nil, err
	}
	out := make([]*Cohort, 0, len(cohorts))
	for _, c := range cohorts {
		if !c.JoinableOn(today) {
			continue
		}
		if c.MaxSeats > 0 {
			n, err := svc.store.CountActiveEnrollments(c.ID)
			if err != nil {
				return nil, err
			}
			if n >= c.MaxSeats {
				continue
			}
		}
		out = append(out, c)
	}
	return out, nil
}
