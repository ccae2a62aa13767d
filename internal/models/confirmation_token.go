package models

// ConfirmationTokenModel binds an opaque token to a normalized email.
// A token is deleted exactly once it is consumed by a successful confirm.
// Several live tokens may exist for the same email: a repeat subscribe
// issues a new token without revoking the old ones.
type ConfirmationTokenModel struct {
	Base
	Token string `json:"token" gorm:"uniqueIndex;not null"`
	Email string `json:"email" gorm:"index;not null"`
}

func (ConfirmationTokenModel) TableName() string { return "confirmation_tokens" }
