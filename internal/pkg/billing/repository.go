package billing

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/supuni9622/ModelSnap/app/models"
	"github.com/supuni9622/ModelSnap/internal/pkg/credits"
)

// Repository provides DB operations used by the reconciliation service.
// Transaction opens a scope in which plan mutation, credit grant and the
// processed marker commit or roll back together.
type Repository interface {
	Transaction(fn func(Repository) error) error

	FindActivePlanMapping(provider, providerPlanRef, interval string) (*models.BillingPlanMapping, error)
	UpsertBillingAccount(account *models.BillingAccount) error
	GetBillingAccountByCustomerID(provider, providerCustomerID string) (*models.BillingAccount, error)
	UpsertSubscription(sub *models.BillingSubscription) error
	ListSubscriptionsByUser(userID uint) ([]models.BillingSubscription, error)
	GetOrCreateUserSettings(userID uint) (*models.UserSettings, error)
	SaveUserSettings(us *models.UserSettings) error
	CreateWebhookEventIfNotExists(event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error)
	MarkWebhookProcessed(id uint, processingError string) error
	GrantCredits(userID uint, amount int64, correlationID, reason string) (bool, error)
	ListUnattributedEvents(limit int) ([]models.BillingWebhookEvent, error)
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a billing repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) Transaction(fn func(Repository) error) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		return fn(&gormRepository{db: tx})
	})
}

func (r *gormRepository) FindActivePlanMapping(provider, providerPlanRef, interval string) (*models.BillingPlanMapping, error) {
	var m models.BillingPlanMapping
	err := r.db.
		Where("provider = ? AND provider_plan_ref = ? AND billing_interval = ? AND is_active = ?", provider, providerPlanRef, interval, true).
		First(&m).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *gormRepository) UpsertBillingAccount(account *models.BillingAccount) error {
	if err := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider"},
			{Name: "provider_customer_id"},
		},
		DoUpdates: clause.AssignmentColumns([]string{
			"user_id",
			"email",
			"updated_at",
		}),
	}).Create(account).Error; err != nil {
		return err
	}

	return r.db.Where("provider = ? AND provider_customer_id = ?", account.Provider, account.ProviderCustomerID).
		First(account).Error
}

func (r *gormRepository) GetBillingAccountByCustomerID(provider, providerCustomerID string) (*models.BillingAccount, error) {
	var account models.BillingAccount
	err := r.db.Where("provider = ? AND provider_customer_id = ?", provider, providerCustomerID).First(&account).Error
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *gormRepository) UpsertSubscription(sub *models.BillingSubscription) error {
	if err := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider"},
			{Name: "provider_subscription_id"},
		},
		DoUpdates: clause.AssignmentColumns([]string{
			"user_id",
			"provider_plan_ref",
			"internal_plan",
			"billing_interval",
			"status",
			"price_cents",
			"current_period_end",
			"cancel_at_period_end",
			"updated_at",
		}),
	}).Create(sub).Error; err != nil {
		return err
	}

	// Ensure ID is populated after upsert.
	return r.db.Where("provider = ? AND provider_subscription_id = ?", sub.Provider, sub.ProviderSubscriptionID).
		First(sub).Error
}

func (r *gormRepository) ListSubscriptionsByUser(userID uint) ([]models.BillingSubscription, error) {
	var subs []models.BillingSubscription
	err := r.db.Where("user_id = ?", userID).Find(&subs).Error
	return subs, err
}

func (r *gormRepository) GetOrCreateUserSettings(userID uint) (*models.UserSettings, error) {
	return models.GetOrCreateUserSettings(r.db, userID)
}

func (r *gormRepository) SaveUserSettings(us *models.UserSettings) error {
	return r.db.Save(us).Error
}

// CreateWebhookEventIfNotExists claims an event id with an atomic
// insert-if-absent, so concurrent receivers of the same delivery cannot both
// win the claim.
func (r *gormRepository) CreateWebhookEventIfNotExists(event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error) {
	tx := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider"},
			{Name: "provider_event_id"},
		},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.BillingWebhookEvent
	if err := r.db.Where("provider = ? AND provider_event_id = ?", event.Provider, event.ProviderEventID).
		First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

func (r *gormRepository) MarkWebhookProcessed(id uint, processingError string) error {
	now := time.Now()
	updates := map[string]interface{}{
		"processed_at":     &now,
		"processing_error": processingError,
	}
	return r.db.Model(&models.BillingWebhookEvent{}).Where("id = ?", id).Updates(updates).Error
}

func (r *gormRepository) GrantCredits(userID uint, amount int64, correlationID, reason string) (bool, error) {
	return credits.ApplyCredit(credits.NewRepository(r.db), userID, amount, correlationID, reason)
}

// ListUnattributedEvents returns dead-lettered events kept for manual review
// (processed with a recorded anomaly instead of silently dropped).
func (r *gormRepository) ListUnattributedEvents(limit int) ([]models.BillingWebhookEvent, error) {
	var events []models.BillingWebhookEvent
	q := r.db.Where("processing_error <> ''").Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&events).Error
	return events, err
}
