// internal/services/notification_service.go
package services

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net/smtp"

	"github.com/sirupsen/logrus"

	"github.com/javajoker/healthfirst-backend/internal/config"
	"github.com/javajoker/healthfirst-backend/internal/i18n"
	"github.com/javajoker/healthfirst-backend/internal/logger"
	"github.com/javajoker/healthfirst-backend/internal/models"
	"github.com/javajoker/healthfirst-backend/internal/repository"
	"github.com/javajoker/healthfirst-backend/internal/utils"
)

// MailSender delivers one HTML email.
type MailSender func(to, subject, body string) error

type NotificationService struct {
	store      repository.Store
	translator Translator
	config     *config.Config
	lang       string
	send       MailSender
}

var _ LicenseNotifier = (*NotificationService)(nil)

func NewNotificationService(store repository.Store, translator Translator, cfg *config.Config) *NotificationService {
	s := &NotificationService{
		store:      store,
		translator: translator,
		config:     cfg,
		lang:       cfg.I18n.DefaultLocale,
	}
	s.send = s.sendEmail
	return s
}

// NotifyEvaluation stores an in-app notification for the requester and
// emails them when email delivery is enabled.
func (s *NotificationService) NotifyEvaluation(ctx context.Context, license *models.License) error {
	if license.Status == nil {
		return fmt.Errorf("license %s has no status", license.ID)
	}

	var titleKey, messageKey string
	args := []interface{}{
		license.Type.Name,
		license.StartDate.Format(utils.DateLayout),
		license.EndDate.Format(utils.DateLayout),
	}
	switch license.Status.Name {
	case models.StatusApproved:
		titleKey, messageKey = i18n.KeyNotificationApprovedTitle, i18n.KeyNotificationApprovedMessage
	case models.StatusRejected:
		titleKey, messageKey = i18n.KeyNotificationRejectedTitle, i18n.KeyNotificationRejectedMessage
		args = append(args, license.Status.EvaluationComment)
	default:
		return nil
	}

	notification := &models.Notification{
		UserID:              license.UserID,
		Type:                "license_" + string(license.Status.Name),
		Title:               s.translator.T(s.lang, titleKey),
		Message:             s.translator.T(s.lang, messageKey, args...),
		Status:              "unread",
		RelatedResourceType: "license",
		RelatedResourceID:   &license.ID,
	}
	if err := s.store.CreateNotification(ctx, notification); err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}

	if !s.config.Email.Enabled || license.User.Email == "" {
		return nil
	}

	body, err := s.renderTemplate(evaluationEmailTemplate, map[string]interface{}{
		"Name":       license.User.FullName(),
		"Title":      notification.Title,
		"Message":    notification.Message,
		"LicenseURL": fmt.Sprintf("%s/licenses/%s", s.config.Frontend.BaseURL, license.ID),
	})
	if err != nil {
		return fmt.Errorf("failed to render email template: %w", err)
	}

	if err := s.send(license.User.Email, notification.Title, body); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	logger.FromContext(ctx).WithFields(logrus.Fields{
		"license_id": license.ID,
		"status":     license.Status.Name,
	}).Info("Evaluation email sent")
	return nil
}

func (s *NotificationService) sendEmail(to, subject, body string) error {
	if s.config.Email.SMTPHost == "" {
		logrus.WithFields(logrus.Fields{"to": to, "subject": subject}).Info("SMTP not configured, email skipped")
		return nil
	}

	auth := smtp.PlainAuth("", s.config.Email.SMTPUsername, s.config.Email.SMTPPassword, s.config.Email.SMTPHost)

	from := s.config.Email.FromEmail
	if s.config.Email.FromName != "" {
		from = fmt.Sprintf("%s <%s>", s.config.Email.FromName, s.config.Email.FromEmail)
	}
	msg := []byte(fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/html; charset=\"UTF-8\"\r\n\r\n%s",
		from, to, subject, body))

	addr := fmt.Sprintf("%s:%s", s.config.Email.SMTPHost, s.config.Email.SMTPPort)
	return smtp.SendMail(addr, auth, s.config.Email.FromEmail, []string{to}, msg)
}

func (s *NotificationService) renderTemplate(templateStr string, data interface{}) (string, error) {
	tmpl, err := template.New("email").Parse(templateStr)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}

	return buf.String(), nil
}

const evaluationEmailTemplate = `
<!DOCTYPE html>
<html>
<body>
	<h2>{{.Title}}</h2>
	<p>{{.Name}},</p>
	<p>{{.Message}}</p>
	<a href="{{.LicenseURL}}">{{.LicenseURL}}</a>
	<p>HealthFirst</p>
</body>
</html>`
