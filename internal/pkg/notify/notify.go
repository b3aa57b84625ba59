package notify

import (
	"fmt"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/supuni9622/ModelSnap/app/models"
	"github.com/supuni9622/ModelSnap/internal/pkg/env"
	"github.com/supuni9622/ModelSnap/internal/pkg/mail"
)

// Dispatcher writes in-app notification rows and optionally mirrors them to
// email. Every method is fire-and-forget: errors are logged and swallowed so
// a broken mailer can never fail a generation or a billing event.
type Dispatcher struct {
	db        *gorm.DB
	sendEmail bool
}

func NewDispatcher(db *gorm.DB) *Dispatcher {
	return &Dispatcher{
		db:        db,
		sendEmail: env.GetEnv("NOTIFY_EMAIL_ENABLED", "false") == "true",
	}
}

func (d *Dispatcher) GenerationCompleted(userID uint, requestUUID, outputURL string) {
	content := fmt.Sprintf("Your try-on render is ready: %s", outputURL)
	d.dispatch(userID, models.NotificationTypeGenerationDone, content, requestUUID, "Your render is ready")
}

func (d *Dispatcher) GenerationFailed(userID uint, requestUUID, failureCode string) {
	content := fmt.Sprintf("Your try-on render could not be completed (%s). Any reserved credits were refunded.", failureCode)
	d.dispatch(userID, models.NotificationTypeGenerationFailed, content, requestUUID, "Your render failed")
}

func (d *Dispatcher) PlanChanged(userID uint, plan string) {
	content := fmt.Sprintf("Your plan is now %s.", plan)
	d.dispatch(userID, models.NotificationTypePlanChanged, content, "", "Your plan changed")
}

func (d *Dispatcher) CreditsGranted(userID uint, amount int64, referenceID string) {
	content := fmt.Sprintf("%d credits were added to your account.", amount)
	d.dispatch(userID, models.NotificationTypeCreditsGranted, content, referenceID, "Credits added")
}

func (d *Dispatcher) dispatch(userID uint, notificationType, content, referenceID, subject string) {
	if err := models.CreateNotification(d.db, userID, notificationType, content, referenceID); err != nil {
		log.Errorf("[Notify] failed to create %s notification for user %d: %v", notificationType, userID, err)
	}

	if !d.sendEmail {
		return
	}
	var user models.User
	if err := d.db.Select("id", "email").First(&user, userID).Error; err != nil {
		log.Errorf("[Notify] failed to load user %d for email: %v", userID, err)
		return
	}
	if user.Email == "" {
		return
	}
	if err := mail.SendMail(user.Email, subject, content); err != nil {
		log.Errorf("[Notify] failed to send email to user %d: %v", userID, err)
	}
}
