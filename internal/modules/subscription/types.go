package subscription

import (
	"context"
	"html/template"

	"github.com/braingame/waitlist-core/internal/models"
)

// Client-facing outcome messages. Business rejections reuse these verbatim
// so the API never leaks internals.
const (
	MsgCheckEmail          = "Please check your email to confirm your subscription."
	MsgConfirmationResent  = "A new confirmation email has been sent."
	MsgAlreadySubscribed   = "This email is already subscribed."
	MsgInvalidToken        = "Invalid or expired confirmation token."
	MsgSubscriberNotFound  = "Subscriber not found."
	MsgAlreadyConfirmed    = "This email is already confirmed."
	MsgConfirmed           = "Your email has been confirmed successfully!"
	MsgEmailNotFound       = "Email not found in our records."
	MsgAlreadyUnsubscribed = "This email is already unsubscribed."
	MsgUnsubscribed        = "You have been unsubscribed successfully."
)

// SubscribeResult is the outcome of a subscribe attempt. Success=false is an
// expected business rejection, not a fault.
type SubscribeResult struct {
	Success              bool   `json:"success"`
	RequiresConfirmation bool   `json:"requiresConfirmation"`
	Message              string `json:"message"`
}

// ActionResult is the outcome of a confirm or unsubscribe.
type ActionResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// SubscriberStore is the durable mapping of normalized email to subscriber
// record. Implementations must make Save an upsert keyed by email.
//
// architecture: Database
type SubscriberStore interface {
	// GetByEmail returns the record for a normalized email, or (nil, nil)
	// when no record exists.
	GetByEmail(ctx context.Context, email string) (*models.SubscriberModel, error)
	// Save creates or updates the record identified by its Email.
	Save(ctx context.Context, sub *models.SubscriberModel) error
	// List returns a snapshot of all subscribers, filtered by status when
	// status is non-empty.
	List(ctx context.Context, status string) ([]models.SubscriberModel, error)
	// CountByStatus returns the number of subscribers with the given status.
	CountByStatus(ctx context.Context, status string) (int64, error)
}

// TokenStore is the durable mapping of confirmation token to normalized
// email. Tokens never expire and are never revoked when a newer token is
// issued for the same email or when the subscriber unsubscribes; the only
// removal is consumption by a successful confirm. Callers that need tighter
// token hygiene must layer it on top.
//
// architecture: Database
type TokenStore interface {
	// Resolve returns the email bound to token, or ("", nil) when unknown.
	Resolve(ctx context.Context, token string) (string, error)
	Put(ctx context.Context, token, email string) error
	Delete(ctx context.Context, token string) error
}

// Mailer delivers the confirmation workflow emails out of band. Delivery
// failures never fail the triggering operation.
type Mailer interface {
	SendConfirmation(email, token string) error
	SendWelcome(email string) error
	SendUpdate(email, title string, content template.HTML, textContent string) error
}
