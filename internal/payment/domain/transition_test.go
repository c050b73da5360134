package domain_test

import (
	"fmt"
	"testing"

	"github.com/UrrutyLabs/encuentraya-payments/internal/payment/domain"
)

var allStatuses = []domain.PaymentStatus{
	domain.StatusCreated,
	domain.StatusRequiresAction,
	domain.StatusAuthorized,
	domain.StatusCaptured,
	domain.StatusFailed,
	domain.StatusCancelled,
	domain.StatusRefunded,
}

// validTransitions enumerates every (current, next) pair that must be
// accepted; all remaining pairs of the full 7x7 grid must be rejected.
var validTransitions = map[domain.PaymentStatus][]domain.PaymentStatus{
	domain.StatusCreated: {
		domain.StatusCreated,
		domain.StatusAuthorized,
		domain.StatusFailed,
		domain.StatusCancelled,
	},
	domain.StatusRequiresAction: {
		domain.StatusRequiresAction,
		domain.StatusAuthorized,
		domain.StatusFailed,
		domain.StatusCancelled,
	},
	domain.StatusAuthorized: {
		domain.StatusAuthorized,
		domain.StatusCaptured,
		domain.StatusFailed,
		domain.StatusCancelled,
	},
	domain.StatusCaptured: {
		domain.StatusCaptured,
		domain.StatusRefunded,
		domain.StatusFailed,
		domain.StatusCancelled,
	},
	domain.StatusFailed:    {domain.StatusFailed},
	domain.StatusCancelled: {domain.StatusCancelled},
	domain.StatusRefunded:  {domain.StatusRefunded},
}

func TestIsValidStatusTransitionExhaustive(t *testing.T) {
	for _, current := range allStatuses {
		allowed := map[domain.PaymentStatus]bool{}
		for _, next := range validTransitions[current] {
			allowed[next] = true
		}

		for _, next := range allStatuses {
			t.Run(fmt.Sprintf("%s_to_%s", current, next), func(t *testing.T) {
				got := domain.IsValidStatusTransition(current, next)
				if got != allowed[next] {
					t.Fatalf("transition %s -> %s: got %v, want %v", current, next, got, allowed[next])
				}
			})
		}
	}
}
