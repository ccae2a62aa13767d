package subscription

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/braingame/waitlist-core/internal/models"
	"go.uber.org/zap"
)

// Service owns the subscription state machine: pending → confirmed →
// unsubscribed, with unsubscribed always revivable back to pending.
type Service struct {
	subs   SubscriberStore
	tokens TokenStore
	mailer Mailer
	logger *zap.Logger
	locks  *keyMutex

	now      func() time.Time
	genToken func() string
}

// NewService wires the service over its stores. mailer may be nil, in which
// case tokens are still issued but nothing is delivered.
func NewService(subs SubscriberStore, tokens TokenStore, mailer Mailer, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		subs:     subs,
		tokens:   tokens,
		mailer:   mailer,
		logger:   logger,
		locks:    newKeyMutex(),
		now:      time.Now,
		genToken: generateToken,
	}
}

// NormalizeEmail is the canonical key form: trimmed and lower-cased.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// generateToken returns an opaque token: creation time in unix millis plus
// random hex, unique for all practical purposes.
func generateToken() string {
	b := make([]byte, 9)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand failing means the process is in serious trouble;
		// surfacing it as a panic matches how unrecoverable this is.
		panic(fmt.Sprintf("subscription: token entropy unavailable: %v", err))
	}
	return fmt.Sprintf("%d-%s", time.Now().UnixMilli(), hex.EncodeToString(b))
}

// Subscribe drives one subscribe attempt for email. source and metadata are
// captured only when a new record is created.
func (s *Service) Subscribe(ctx context.Context, email, source string, metadata map[string]interface{}) (SubscribeResult, error) {
	addr := NormalizeEmail(email)

	unlock := s.locks.Lock("email:" + addr)
	defer unlock()

	existing, err := s.subs.GetByEmail(ctx, addr)
	if err != nil {
		return SubscribeResult{}, fmt.Errorf("look up subscriber: %w", err)
	}

	if existing != nil {
		switch existing.Status {
		case models.StatusConfirmed:
			return SubscribeResult{Success: false, RequiresConfirmation: false, Message: MsgAlreadySubscribed}, nil

		case models.StatusPending:
			// Resend: a fresh token joins the outstanding ones, the record
			// itself is untouched.
			token := s.genToken()
			if err := s.tokens.Put(ctx, token, addr); err != nil {
				return SubscribeResult{}, fmt.Errorf("issue token: %w", err)
			}
			s.deliverConfirmation(addr, token)
			return SubscribeResult{Success: true, RequiresConfirmation: true, Message: MsgConfirmationResent}, nil

		case models.StatusUnsubscribed:
			existing.Status = models.StatusPending
			existing.UnsubscribedAt = nil
			if err := s.subs.Save(ctx, existing); err != nil {
				return SubscribeResult{}, fmt.Errorf("revive subscriber: %w", err)
			}
		}
	} else {
		sub := &models.SubscriberModel{
			Email:    addr,
			Status:   models.StatusPending,
			Source:   source,
			Metadata: metadata,
		}
		if err := s.subs.Save(ctx, sub); err != nil {
			return SubscribeResult{}, fmt.Errorf("create subscriber: %w", err)
		}
	}

	token := s.genToken()
	if err := s.tokens.Put(ctx, token, addr); err != nil {
		return SubscribeResult{}, fmt.Errorf("issue token: %w", err)
	}
	s.deliverConfirmation(addr, token)

	return SubscribeResult{Success: true, RequiresConfirmation: true, Message: MsgCheckEmail}, nil
}

// Confirm consumes a confirmation token. The token is deleted only on the
// success path; re-using a token for an already-confirmed subscriber is
// rejected without deleting it.
func (s *Service) Confirm(ctx context.Context, token string) (ActionResult, error) {
	token = strings.TrimSpace(token)

	// Lock order is always token then email; Subscribe/Unsubscribe take only
	// email locks, so the ordering cannot cycle.
	unlockToken := s.locks.Lock("token:" + token)
	defer unlockToken()

	email, err := s.tokens.Resolve(ctx, token)
	if err != nil {
		return ActionResult{}, fmt.Errorf("resolve token: %w", err)
	}
	if email == "" {
		return ActionResult{Success: false, Message: MsgInvalidToken}, nil
	}

	unlockEmail := s.locks.Lock("email:" + email)
	defer unlockEmail()

	sub, err := s.subs.GetByEmail(ctx, email)
	if err != nil {
		return ActionResult{}, fmt.Errorf("look up subscriber: %w", err)
	}
	if sub == nil {
		return ActionResult{Success: false, Message: MsgSubscriberNotFound}, nil
	}
	if sub.Status == models.StatusConfirmed {
		return ActionResult{Success: false, Message: MsgAlreadyConfirmed}, nil
	}

	now := s.now()
	sub.Status = models.StatusConfirmed
	sub.ConfirmedAt = &now
	if err := s.subs.Save(ctx, sub); err != nil {
		return ActionResult{}, fmt.Errorf("confirm subscriber: %w", err)
	}
	if err := s.tokens.Delete(ctx, token); err != nil {
		return ActionResult{}, fmt.Errorf("consume token: %w", err)
	}

	s.deliverWelcome(email)
	return ActionResult{Success: true, Message: MsgConfirmed}, nil
}

// Unsubscribe marks the subscriber unsubscribed. ConfirmedAt is preserved as
// history; outstanding confirmation tokens stay live.
func (s *Service) Unsubscribe(ctx context.Context, email string) (ActionResult, error) {
	addr := NormalizeEmail(email)

	unlock := s.locks.Lock("email:" + addr)
	defer unlock()

	sub, err := s.subs.GetByEmail(ctx, addr)
	if err != nil {
		return ActionResult{}, fmt.Errorf("look up subscriber: %w", err)
	}
	if sub == nil {
		return ActionResult{Success: false, Message: MsgEmailNotFound}, nil
	}
	if sub.Status == models.StatusUnsubscribed {
		return ActionResult{Success: false, Message: MsgAlreadyUnsubscribed}, nil
	}

	now := s.now()
	sub.Status = models.StatusUnsubscribed
	sub.UnsubscribedAt = &now
	if err := s.subs.Save(ctx, sub); err != nil {
		return ActionResult{}, fmt.Errorf("unsubscribe: %w", err)
	}
	return ActionResult{Success: true, Message: MsgUnsubscribed}, nil
}

// ExportSubscribers returns a read-only snapshot, optionally filtered by
// status. No side effects.
func (s *Service) ExportSubscribers(ctx context.Context, status string) ([]models.SubscriberModel, error) {
	return s.subs.List(ctx, status)
}

// CountConfirmed returns the number of confirmed subscribers.
func (s *Service) CountConfirmed(ctx context.Context) (int64, error) {
	return s.subs.CountByStatus(ctx, models.StatusConfirmed)
}

// ErrMailDisabled is returned by Broadcast when no mailer is configured.
var ErrMailDisabled = errors.New("mail delivery is not configured")

// Broadcast sends an update email to every confirmed subscriber. Individual
// delivery failures are logged and skipped; the returned count is the number
// of successful sends.
func (s *Service) Broadcast(ctx context.Context, title string, content template.HTML, textContent string) (int, error) {
	if s.mailer == nil {
		return 0, ErrMailDisabled
	}

	subs, err := s.subs.List(ctx, models.StatusConfirmed)
	if err != nil {
		return 0, fmt.Errorf("list subscribers: %w", err)
	}

	sent := 0
	for _, sub := range subs {
		if err := s.mailer.SendUpdate(sub.Email, title, content, textContent); err != nil {
			s.logger.Warn("update mail delivery failed",
				zap.String("email", sub.Email), zap.Error(err))
			continue
		}
		sent++
	}
	return sent, nil
}

func (s *Service) deliverConfirmation(email, token string) {
	if s.mailer == nil {
		return
	}
	if err := s.mailer.SendConfirmation(email, token); err != nil {
		s.logger.Warn("confirmation mail delivery failed",
			zap.String("email", email), zap.Error(err))
	}
}

func (s *Service) deliverWelcome(email string) {
	if s.mailer == nil {
		return
	}
	if err := s.mailer.SendWelcome(email); err != nil {
		s.logger.Warn("welcome mail delivery failed",
			zap.String("email", email), zap.Error(err))
	}
}
