package card

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/fault"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/payment"
)

const defaultSandboxSuccessRate = 0.9

// Sandbox simulates a card provider in memory. Confirmations succeed with SuccessRate probability.
type Sandbox struct {
	mu          sync.Mutex
	random      *rand.Rand
	successRate float64
	intents     map[string]payment.Intent
}

func NewSandbox(successRate float64) *Sandbox {
	if successRate <= 0 || successRate > 1 {
		successRate = defaultSandboxSuccessRate
	}
	return &Sandbox{
		random:      rand.New(rand.NewSource(time.Now().UnixNano())),
		successRate: successRate,
		intents:     make(map[string]payment.Intent),
	}
}

func (s *Sandbox) SuccessRate() float64 { return s.successRate }

func (s *Sandbox) CreateIntent(_ context.Context, req payment.IntentRequest) (payment.Intent, error) {
	if req.AmountMinor <= 0 {
		return payment.Intent{}, fault.Rejected(peer, "amount must be positive")
	}
	id := "pi_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:24]
	in := payment.Intent{
		ID:           id,
		ClientSecret: id + "_secret_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:16],
		Status:       payment.IntentRequiresPaymentMethod,
	}
	s.mu.Lock()
	s.intents[id] = in
	s.mu.Unlock()
	return in, nil
}

func (s *Sandbox) ConfirmIntent(_ context.Context, intentID string) (payment.Intent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	in, ok := s.intents[intentID]
	if !ok {
		return payment.Intent{}, fault.Rejected(peer, fmt.Sprintf("no such intent %s", intentID))
	}
	if in.Status == payment.IntentSucceeded || in.Status == payment.IntentCanceled {
		return in, nil
	}
	if s.random.Float64() <= s.successRate {
		in.Status = payment.IntentSucceeded
	} else {
		in.Status = payment.IntentCanceled
	}
	s.intents[intentID] = in
	return in, nil
}

func (s *Sandbox) Refund(_ context.Context, intentID string, amount decimal.Decimal) (payment.CardRefund, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	in, ok := s.intents[intentID]
	if !ok || in.Status != payment.IntentSucceeded {
		return payment.CardRefund{}, fault.Rejected(peer, fmt.Sprintf("intent %s cannot be refunded", intentID))
	}
	if !amount.IsPositive() {
		return payment.CardRefund{}, fault.Rejected(peer, "refund amount must be positive")
	}
	return payment.CardRefund{ID: "re_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:24], Status: "succeeded"}, nil
}
