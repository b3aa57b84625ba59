package billing

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/supuni9622/ModelSnap/app/models"
	"github.com/supuni9622/ModelSnap/internal/pkg/entitlements"
)

// IdentityMirror pushes the user's plan snapshot to the external identity
// store after a billing mutation commits. Failures are logged and never roll
// back local state.
type IdentityMirror interface {
	PushPlan(userID uint, snapshot PlanSnapshot) error
}

// Notifier emits user-facing notifications for billing outcomes.
type Notifier interface {
	PlanChanged(userID uint, plan string)
	CreditsGranted(userID uint, amount int64, referenceID string)
}

// Service applies verified, normalized webhook events to local billing state.
type Service struct {
	repo     Repository
	mirror   IdentityMirror
	notifier Notifier
}

func NewService(repo Repository, mirror IdentityMirror, notifier Notifier) *Service {
	return &Service{repo: repo, mirror: mirror, notifier: notifier}
}

func NewServiceFromDB(db *gorm.DB, mirror IdentityMirror, notifier Notifier) *Service {
	return NewService(NewRepository(db), mirror, notifier)
}

// RecordWebhookEvent persists the raw delivery and claims its event id.
// The returned bool is true when this call won the claim; false means the
// delivery was seen before and the stored row reflects the first receipt.
func (s *Service) RecordWebhookEvent(input WebhookEventInput) (*models.BillingWebhookEvent, bool, error) {
	event := &models.BillingWebhookEvent{
		Provider:        input.Provider,
		ProviderEventID: input.ProviderEventID,
		EventType:       input.EventType,
		PayloadJSON:     input.PayloadJSON,
		SignatureValid:  input.SignatureValid,
	}
	created, stored, err := s.repo.CreateWebhookEventIfNotExists(event)
	if err != nil {
		return nil, false, fmt.Errorf("record webhook event: %w", err)
	}
	return stored, created, nil
}

// ProcessEvent applies one normalized event. Already-applied events are a
// no-op; events that cannot be attributed to a user are marked processed with
// a recorded anomaly so the provider stops redelivering and an operator can
// review them later.
func (s *Service) ProcessEvent(stored *models.BillingWebhookEvent, ev *NormalizedEvent) error {
	if stored.IsProcessed() && stored.ProcessingError == "" {
		log.Debugf("[Billing] skipping already processed event %s/%s", ev.Provider, ev.EventID)
		return nil
	}

	if ev.Kind == EventKindIgnored {
		return s.repo.MarkWebhookProcessed(stored.ID, "")
	}

	userID, err := s.resolveUser(ev)
	if err != nil {
		return err
	}
	if userID == 0 {
		note := fmt.Sprintf("unattributed event: no user for customer %q", ev.ProviderCustomerID)
		log.Warnf("[Billing] %s (%s %s)", note, ev.Provider, ev.EventType)
		return s.repo.MarkWebhookProcessed(stored.ID, note)
	}

	var snapshot *PlanSnapshot
	var grantedCredits int64
	err = s.repo.Transaction(func(tx Repository) error {
		note := ""
		var applyErr error
		switch ev.Kind {
		case EventKindOrder:
			grantedCredits, note, applyErr = s.applyOrder(tx, userID, ev)
		case EventKindSubscriptionActive, EventKindSubscriptionCancelled:
			grantedCredits, note, applyErr = s.applySubscription(tx, userID, ev)
		default:
			applyErr = fmt.Errorf("unhandled event kind %q", ev.Kind)
		}
		if applyErr != nil {
			return applyErr
		}

		settings, err := tx.GetOrCreateUserSettings(userID)
		if err != nil {
			return err
		}
		snapshot = &PlanSnapshot{
			Plan:       settings.Plan,
			IsPremium:  settings.IsPremium(),
			PriceCents: settings.PlanPriceCents,
			Provider:   settings.PlanProvider,
		}

		return tx.MarkWebhookProcessed(stored.ID, note)
	})
	if err != nil {
		return fmt.Errorf("apply %s event %s: %w", ev.Provider, ev.EventID, err)
	}

	s.afterCommit(userID, ev, snapshot, grantedCredits)
	return nil
}

// OrphanedEvents lists dead-lettered deliveries for operator review.
func (s *Service) OrphanedEvents(limit int) ([]models.BillingWebhookEvent, error) {
	return s.repo.ListUnattributedEvents(limit)
}

// resolveUser finds the local user for an event: the embedded metadata user id
// wins, then the billing account linked to the provider customer id.
func (s *Service) resolveUser(ev *NormalizedEvent) (uint, error) {
	if ev.AppUserID != 0 {
		return ev.AppUserID, nil
	}
	if ev.ProviderCustomerID == "" {
		return 0, nil
	}
	account, err := s.repo.GetBillingAccountByCustomerID(ev.Provider, ev.ProviderCustomerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return account.UserID, nil
}

func (s *Service) applyOrder(tx Repository, userID uint, ev *NormalizedEvent) (int64, string, error) {
	if err := s.linkAccount(tx, userID, ev); err != nil {
		return 0, "", err
	}

	mapping, err := lookupPlanMapping(tx, ev.Provider, ev.PlanRef, ev.BillingInterval)
	if err != nil {
		return 0, "", err
	}
	if mapping == nil {
		return 0, fmt.Sprintf("no plan mapping for %s ref %q", ev.Provider, ev.PlanRef), nil
	}

	switch mapping.MappingKind {
	case models.MappingKindCreditPackage:
		correlation := ev.Provider + ":" + ev.EventID
		granted, err := tx.GrantCredits(userID, mapping.Credits, correlation, models.LedgerReasonPurchaseCredit)
		if err != nil {
			return 0, "", err
		}
		if !granted {
			return 0, "", nil
		}
		return mapping.Credits, "", nil

	case models.MappingKindPlan:
		// One-time plan purchase (lifetime style): set the plan directly.
		if err := setUserPlan(tx, userID, mapping.InternalPlan, ev.Provider, mapping.PriceCents); err != nil {
			return 0, "", err
		}
		return 0, "", nil

	default:
		return 0, fmt.Sprintf("unknown mapping kind %q", mapping.MappingKind), nil
	}
}

func (s *Service) applySubscription(tx Repository, userID uint, ev *NormalizedEvent) (int64, string, error) {
	if err := s.linkAccount(tx, userID, ev); err != nil {
		return 0, "", err
	}

	note := ""
	internalPlan := string(entitlements.PlanFree)
	var mapping *models.BillingPlanMapping
	if ev.PlanRef != "" {
		var err error
		mapping, err = lookupPlanMapping(tx, ev.Provider, ev.PlanRef, ev.BillingInterval)
		if err != nil {
			return 0, "", err
		}
	}
	if mapping != nil {
		internalPlan = mapping.InternalPlan
	} else {
		note = fmt.Sprintf("no plan mapping for %s ref %q", ev.Provider, ev.PlanRef)
	}

	sub := &models.BillingSubscription{
		UserID:                 userID,
		Provider:               ev.Provider,
		ProviderSubscriptionID: ev.ProviderSubscriptionID,
		ProviderPlanRef:        ev.PlanRef,
		InternalPlan:           internalPlan,
		BillingInterval:        normalizeInterval(ev.BillingInterval),
		Status:                 ev.SubscriptionStatus,
		PriceCents:             ev.PriceCents,
		CurrentPeriodEnd:       ev.CurrentPeriodEnd,
		CancelAtPeriodEnd:      ev.CancelAtPeriodEnd,
	}
	if err := tx.UpsertSubscription(sub); err != nil {
		return 0, "", err
	}

	if err := reconcileUserPlan(tx, userID); err != nil {
		return 0, "", err
	}

	// Plan-included credits are granted once per billing event, so renewal
	// events re-grant while redeliveries of the same event do not.
	var grantedCredits int64
	if ev.Kind == EventKindSubscriptionActive {
		included := entitlements.IncludedMonthlyCredits(entitlements.Normalize(internalPlan))
		if mapping != nil && mapping.Credits > 0 {
			included = mapping.Credits
		}
		if included > 0 {
			correlation := ev.Provider + ":" + ev.EventID
			granted, err := tx.GrantCredits(userID, included, correlation, models.LedgerReasonPlanGrant)
			if err != nil {
				return 0, "", err
			}
			if granted {
				grantedCredits = included
			}
		}
	}

	return grantedCredits, note, nil
}

func (s *Service) linkAccount(tx Repository, userID uint, ev *NormalizedEvent) error {
	if ev.ProviderCustomerID == "" {
		return nil
	}
	return tx.UpsertBillingAccount(&models.BillingAccount{
		UserID:             userID,
		Provider:           ev.Provider,
		ProviderCustomerID: ev.ProviderCustomerID,
		Email:              ev.CustomerEmail,
	})
}

func (s *Service) afterCommit(userID uint, ev *NormalizedEvent, snapshot *PlanSnapshot, grantedCredits int64) {
	if snapshot != nil && s.mirror != nil {
		if err := s.mirror.PushPlan(userID, *snapshot); err != nil {
			log.Warnf("[Billing] identity mirror push failed for user %d: %v", userID, err)
		}
	}
	if s.notifier == nil {
		return
	}
	if snapshot != nil && ev.Kind != EventKindOrder {
		s.notifier.PlanChanged(userID, snapshot.Plan)
	}
	if grantedCredits > 0 {
		s.notifier.CreditsGranted(userID, grantedCredits, ev.Provider+":"+ev.EventID)
	}
}

// lookupPlanMapping tries the exact billing interval first and falls back to
// the catch-all row, since one-time orders and some providers carry no
// interval. A missing mapping is not an error here.
func lookupPlanMapping(tx Repository, provider, planRef, interval string) (*models.BillingPlanMapping, error) {
	if planRef == "" {
		return nil, nil
	}
	intervals := []string{normalizeInterval(interval)}
	if intervals[0] != models.BillingIntervalUnknown {
		intervals = append(intervals, models.BillingIntervalUnknown)
	}
	for _, i := range intervals {
		mapping, err := tx.FindActivePlanMapping(provider, planRef, i)
		if err == nil {
			return mapping, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}
	return nil, nil
}

// reconcileUserPlan recomputes the effective plan from all subscription rows
// instead of trusting event order: the highest-ranked plan among entitling
// subscriptions wins, and free applies when none remain.
func reconcileUserPlan(tx Repository, userID uint) error {
	subs, err := tx.ListSubscriptionsByUser(userID)
	if err != nil {
		return err
	}

	plan := string(entitlements.PlanFree)
	provider := ""
	var priceCents int64
	bestRank := -1
	for i := range subs {
		sub := &subs[i]
		if !isEntitlingStatus(sub.Status) {
			continue
		}
		if rank := planRank(sub.InternalPlan); rank > bestRank {
			bestRank = rank
			plan = normalizePlan(sub.InternalPlan)
			provider = sub.Provider
			priceCents = sub.PriceCents
		}
	}

	return setUserPlan(tx, userID, plan, provider, priceCents)
}

func setUserPlan(tx Repository, userID uint, plan, provider string, priceCents int64) error {
	settings, err := tx.GetOrCreateUserSettings(userID)
	if err != nil {
		return err
	}
	plan = normalizePlan(plan)
	if plan == string(entitlements.PlanFree) {
		provider = ""
		priceCents = 0
	}
	if settings.Plan == plan && settings.PlanProvider == provider && settings.PlanPriceCents == priceCents {
		return nil
	}
	settings.Plan = plan
	settings.PlanProvider = provider
	settings.PlanPriceCents = priceCents
	return tx.SaveUserSettings(settings)
}
