package service

import (
	"context"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-rental-payments/app/entity"
	"github.com/vibast-solutions/ms-go-rental-payments/app/money"
)

// PayoutDueDate is the owner's due date in the month of now. A due day past
// the end of a short month falls on its last day.
func PayoutDueDate(dueDay int, now time.Time) time.Time {
	return dueDateInMonth(dueDay, now.Year(), now.Month(), now.Location())
}

// IsPayoutDue reports whether this month's due date has been reached and no
// payout was recorded on or after it.
func IsPayoutDue(owner *entity.Owner, now time.Time) bool {
	if owner == nil || owner.PayoutDueDay <= 0 {
		return false
	}
	due := PayoutDueDate(owner.PayoutDueDay, now)
	if now.Before(due) {
		return false
	}
	return owner.LastPayoutAt == nil || owner.LastPayoutAt.Before(due)
}

func (s *FinanceService) IsPayoutDue(owner *entity.Owner, now time.Time) bool {
	return IsPayoutDue(owner, now)
}

// PayoutPeriod runs from the previous due date up to the current one.
func PayoutPeriod(dueDay int, now time.Time) Period {
	due := PayoutDueDate(dueDay, now)
	prev := due.AddDate(0, 0, -due.Day()+1).AddDate(0, -1, 0)
	return Period{
		From: dueDateInMonth(dueDay, prev.Year(), prev.Month(), now.Location()),
		To:   due,
	}
}

// PayoutDedupeKey identifies one owner's payout for one period.
func PayoutDedupeKey(ownerID string, period Period) string {
	return ownerID + ":" + period.To.Format("2006-01-02")
}

// RunPayoutsDue publishes an owner.payout_due event with the computed amount
// for every owner whose payout is due. Paying out is left to the consumer.
// An owner stays due until the payout is recorded, so the event is published
// once per owner and period by this process and carries a dedupe_key that
// consumers must treat as idempotent across restarts and replicas.
func (s *FinanceService) RunPayoutsDue(ctx context.Context, publisher EventPublisher, logger logrus.FieldLogger) error {
	owners, err := s.registry.ListOwners(ctx)
	if err != nil {
		return err
	}

	now := s.now()
	var firstErr error
	for _, owner := range owners {
		if !IsPayoutDue(owner, now) {
			continue
		}

		period := PayoutPeriod(owner.PayoutDueDay, now)
		dedupeKey := PayoutDedupeKey(owner.ID, period)
		if s.payoutPublished(dedupeKey) {
			continue
		}
		snapshot, err := s.ownerPayout(ctx, owner, period)
		if err != nil {
			firstErr = keepFirstErr(firstErr, err)
			continue
		}

		event := &entity.DomainEvent{
			Type:        entity.EventOwnerPayoutDue,
			AmountMinor: snapshot.ComputedPayoutMinor,
			Attributes: map[string]string{
				"owner_id":      owner.ID,
				"msisdn":        owner.Msisdn,
				"period_from":   period.From.Format(time.RFC3339),
				"period_to":     period.To.Format(time.RFC3339),
				"gross_revenue": money.Format(snapshot.GrossVehicleRevenueMinor),
				"rate_type":     snapshot.PayoutRateType,
				"rate_value":    snapshot.PayoutRateValue.String(),
				"due_day":       strconv.Itoa(owner.PayoutDueDay),
				"dedupe_key":    dedupeKey,
			},
			OccurredAt: now,
		}
		if err := publisher.Publish(ctx, event); err != nil {
			firstErr = keepFirstErr(firstErr, err)
			continue
		}
		s.markPayoutPublished(dedupeKey)

		logger.WithFields(logrus.Fields{
			"owner_id":     owner.ID,
			"payout_minor": snapshot.ComputedPayoutMinor,
		}).Info("owner payout due")
	}

	return firstErr
}

func (s *FinanceService) payoutPublished(key string) bool {
	s.publishedMu.Lock()
	defer s.publishedMu.Unlock()
	_, ok := s.published[key]
	return ok
}

func (s *FinanceService) markPayoutPublished(key string) {
	s.publishedMu.Lock()
	defer s.publishedMu.Unlock()
	s.published[key] = struct{}{}
}

func dueDateInMonth(dueDay, year int, month time.Month, loc *time.Location) time.Time {
	lastDay := time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
	if dueDay > lastDay {
		dueDay = lastDay
	}
	return time.Date(year, month, dueDay, 0, 0, 0, 0, loc)
}

func keepFirstErr(current error, candidate error) error {
	if current != nil {
		return current
	}
	return candidate
}
