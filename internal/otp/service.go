package otp

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"notification-engine/internal/gateway"
	"notification-engine/internal/logging"
)

// Verify failure reasons.
const (
	ReasonNotFound        = "not_found"
	ReasonExpired         = "expired"
	ReasonTooManyAttempts = "too_many_attempts"
	ReasonMismatch        = "mismatch"
)

// VerifyResult tells the login flow exactly why verification failed, so the
// user sees "expired" or "attempts left: N" instead of a generic error.
type VerifyResult struct {
	OK           bool   `json:"ok"`
	Reason       string `json:"reason,omitempty"`
	AttemptsLeft int    `json:"attempts_left,omitempty"`
}

// Auditor appends OTP lifecycle events to the audit trail. Failures are
// logged, never fatal.
type Auditor interface {
	CreateOTPAudit(ctx context.Context, subjectKey, action string) error
}

// Service issues and verifies one-time codes.
type Service struct {
	store       *TieredStore
	auditor     Auditor
	logger      *logging.Logger
	ttl         time.Duration
	codeLength  int
	maxAttempts int
}

func NewService(store *TieredStore, auditor Auditor, logger *logging.Logger, ttl time.Duration, codeLength, maxAttempts int) *Service {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if codeLength <= 0 {
		codeLength = 6
	}
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &Service{
		store:       store,
		auditor:     auditor,
		logger:      logger,
		ttl:         ttl,
		codeLength:  codeLength,
		maxAttempts: maxAttempts,
	}
}

// Issue generates a fresh code for the subject, replacing any prior one.
func (s *Service) Issue(ctx context.Context, subjectKey string) (string, error) {
	key := gateway.NormalizeTarget(subjectKey)
	code, err := generateCode(s.codeLength)
	if err != nil {
		return "", fmt.Errorf("otp issue: %w", err)
	}

	now := time.Now()
	entry := Entry{
		Code:      code,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.ttl),
		Attempts:  0,
	}
	if err := s.store.Put(ctx, key, entry, s.ttl); err != nil {
		return "", fmt.Errorf("otp issue: %w", err)
	}

	s.audit(ctx, key, "issued")
	s.logger.Infof("Issued OTP for subject %s (expires %s)", key, entry.ExpiresAt.Format(time.RFC3339))
	return code, nil
}

// Verify checks a candidate code. A code verifies successfully at most once:
// success, expiry, and attempt exhaustion all destroy the entry.
func (s *Service) Verify(ctx context.Context, subjectKey, candidate string) (VerifyResult, error) {
	key := gateway.NormalizeTarget(subjectKey)

	entry, tier, err := s.store.Get(ctx, key)
	if err == ErrNoEntry {
		return VerifyResult{Reason: ReasonNotFound}, nil
	}
	if err != nil {
		return VerifyResult{}, fmt.Errorf("otp verify: %w", err)
	}

	if time.Now().After(entry.ExpiresAt) {
		_ = s.store.Delete(ctx, key)
		s.audit(ctx, key, "expired")
		return VerifyResult{Reason: ReasonExpired}, nil
	}

	if entry.Attempts >= s.maxAttempts {
		_ = s.store.Delete(ctx, key)
		s.audit(ctx, key, "exhausted")
		return VerifyResult{Reason: ReasonTooManyAttempts}, nil
	}

	if entry.Code != candidate {
		entry.Attempts++
		ttl := time.Until(entry.ExpiresAt)
		// Write the counter back to the tier the entry came from, so
		// repeated guesses are tracked even while degraded.
		if perr := tier.Put(ctx, key, entry, ttl); perr != nil {
			s.logger.Errorf("Failed to persist OTP attempt counter for %s: %v", key, perr)
		}
		s.audit(ctx, key, "mismatch")
		return VerifyResult{
			Reason:       ReasonMismatch,
			AttemptsLeft: s.maxAttempts - entry.Attempts,
		}, nil
	}

	if err := s.store.Delete(ctx, key); err != nil {
		s.logger.Errorf("Failed to delete consumed OTP for %s: %v", key, err)
	}
	s.audit(ctx, key, "verified")
	s.logger.Infof("OTP verified for subject %s", key)
	return VerifyResult{OK: true}, nil
}

func (s *Service) audit(ctx context.Context, subjectKey, action string) {
	if s.auditor == nil {
		return
	}
	if err := s.auditor.CreateOTPAudit(ctx, subjectKey, action); err != nil {
		s.logger.Errorf("OTP audit write failed (%s %s): %v", subjectKey, action, err)
	}
}

func generateCode(length int) (string, error) {
	digits := make([]byte, length)
	for i := range digits {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", err
		}
		digits[i] = byte('0' + n.Int64())
	}
	return string(digits), nil
}
