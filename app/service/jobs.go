package service

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// RunStaleSubmittedScan logs every request still waiting on a provider
// callback past the configured horizon so an operator can follow up.
func (s *PaymentService) RunStaleSubmittedScan(ctx context.Context) (int, error) {
	items, err := s.ListStaleSubmitted(ctx, s.paymentsCfg.StaleSubmittedAfter)
	if err != nil {
		return 0, err
	}

	now := s.now()
	for _, request := range items {
		fields := logrus.Fields{
			"payment_request_id": request.ID,
			"correlation_id":     request.CorrelationID,
			"direction":          request.Direction,
			"amount_minor":       request.AmountMinor,
		}
		if request.ProviderRequestID != nil {
			fields["provider_request_id"] = *request.ProviderRequestID
		}
		if request.SubmittedAt != nil {
			fields["waiting"] = now.Sub(*request.SubmittedAt).Truncate(time.Second).String()
		}
		s.logger.WithFields(fields).Warn("payment request awaiting provider callback")
	}

	return len(items), nil
}
