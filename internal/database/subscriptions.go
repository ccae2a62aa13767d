package database

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/braingame/waitlist-core/internal/models"
)

// SubscriberStore is the MySQL-backed subscriber store.
type SubscriberStore struct {
	db *gorm.DB
}

func NewSubscriberStore(db *gorm.DB) *SubscriberStore {
	return &SubscriberStore{db: db}
}

func (s *SubscriberStore) GetByEmail(ctx context.Context, email string) (*models.SubscriberModel, error) {
	var sub models.SubscriberModel
	err := s.db.WithContext(ctx).Where("email = ?", email).First(&sub).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &sub, nil
}

func (s *SubscriberStore) Save(ctx context.Context, sub *models.SubscriberModel) error {
	if sub.ID == "" {
		// The unique email index backstops two instances racing on the same
		// address; the loser's insert folds into an update.
		return s.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "email"}},
			DoUpdates: clause.AssignmentColumns([]string{"status", "unsubscribed_at", "updated_at"}),
		}).Create(sub).Error
	}
	return s.db.WithContext(ctx).Save(sub).Error
}

func (s *SubscriberStore) List(ctx context.Context, status string) ([]models.SubscriberModel, error) {
	q := s.db.WithContext(ctx).Model(&models.SubscriberModel{})
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var subs []models.SubscriberModel
	if err := q.Order("created_at ASC").Find(&subs).Error; err != nil {
		return nil, err
	}
	return subs, nil
}

func (s *SubscriberStore) CountByStatus(ctx context.Context, status string) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.SubscriberModel{}).
		Where("status = ?", status).Count(&n).Error
	return n, err
}

// TokenStore is the MySQL-backed confirmation token store.
type TokenStore struct {
	db *gorm.DB
}

func NewTokenStore(db *gorm.DB) *TokenStore {
	return &TokenStore{db: db}
}

func (s *TokenStore) Resolve(ctx context.Context, token string) (string, error) {
	var rec models.ConfirmationTokenModel
	err := s.db.WithContext(ctx).Where("token = ?", token).First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil
		}
		return "", err
	}
	return rec.Email, nil
}

func (s *TokenStore) Put(ctx context.Context, token, email string) error {
	rec := models.ConfirmationTokenModel{Token: token, Email: email}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return fmt.Errorf("store token: %w", err)
	}
	return nil
}

func (s *TokenStore) Delete(ctx context.Context, token string) error {
	return s.db.WithContext(ctx).
		Where("token = ?", token).
		Delete(&models.ConfirmationTokenModel{}).Error
}
