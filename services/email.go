package services

import (
	"bytes"
	"fmt"
	"html/template"
	"net/smtp"
	"os"
	"strings"

	"github.com/alphabatem/common/context"
	log "github.com/sirupsen/logrus"
)

type EmailService struct {
	context.DefaultService

	smtpHost     string
	smtpPort     string
	smtpUsername string
	smtpPassword string
	fromEmail    string
	fromName     string

	templates map[string]*template.Template
}

const EMAIL_SVC = "email_svc"

func (svc EmailService) Id() string {
	return EMAIL_SVC
}

func (svc *EmailService) Configure(ctx *context.Context) error {
	svc.smtpHost = os.Getenv("SMTP_HOST")
	svc.smtpPort = os.Getenv("SMTP_PORT")
	svc.smtpUsername = os.Getenv("SMTP_USERNAME")
	svc.smtpPassword = os.Getenv("SMTP_PASSWORD")
	svc.fromEmail = os.Getenv("FROM_EMAIL")
	svc.fromName = os.Getenv("FROM_NAME")

	if svc.smtpPort == "" {
		svc.smtpPort = "587"
	}
	if svc.fromName == "" {
		svc.fromName = "Gatewall"
	}

	svc.templates = make(map[string]*template.Template)

	return svc.DefaultService.Configure(ctx)
}

func (svc *EmailService) Start() error {
	err := svc.loadTemplates()
	if err != nil {
		log.WithError(err).Error("Failed to load email templates")
		// Don't fail startup, just log the error
	}

	return nil
}

const rateLimitAlertHTML = `
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Rate Limit Alert - {{.AppName}}</title>
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
        .container { max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { background-color: #DC2626; color: white; padding: 20px; text-align: center; }
        .content { padding: 20px; background-color: #f9f9f9; }
        .details { background-color: white; padding: 15px; border-radius: 5px; margin: 15px 0; }
        .footer { padding: 20px; text-align: center; color: #666; font-size: 12px; }
    </style>
</head>
<body>
    <div class="container">
        <div class="header">
            <h1>Rate Limit Exceeded</h1>
        </div>
        <div class="content">
            <p>A source has exceeded the request limit and has been temporarily blocked.</p>
            <div class="details">
                <strong>IP Address:</strong> {{.IP}}<br>
                <strong>Requests in window:</strong> {{.Count}}<br>
                <strong>Time:</strong> {{.Timestamp}}<br>
                <strong>User Agent:</strong> {{.UserAgent}}<br>
                <strong>Location:</strong> {{.Location}}
            </div>
            <p>Further alerts are suppressed until the notification cooldown elapses.</p>
        </div>
        <div class="footer">
            <p>{{.AppName}} abuse protection</p>
        </div>
    </div>
</body>
</html>
`

type RateLimitAlertData struct {
	AppName   string
	IP        string
	Count     int64
	Timestamp string
	UserAgent string
	Location  string
}

func (svc *EmailService) loadTemplates() error {
	tmpl, err := template.New("rate_limit_alert").Parse(rateLimitAlertHTML)
	if err != nil {
		return fmt.Errorf("failed to parse rate limit alert template: %v", err)
	}
	svc.templates["rate_limit_alert"] = tmpl

	return nil
}

// SendRateLimitAlert renders the alert template and sends it to every
// recipient in one SMTP transaction.
func (svc *EmailService) SendRateLimitAlert(recipients []string, data RateLimitAlertData) error {
	tmpl, exists := svc.templates["rate_limit_alert"]
	if !exists {
		return fmt.Errorf("template rate_limit_alert not found")
	}

	if data.AppName == "" {
		data.AppName = svc.fromName
	}

	var body bytes.Buffer
	if err := tmpl.Execute(&body, data); err != nil {
		return fmt.Errorf("failed to execute template: %v", err)
	}

	subject := fmt.Sprintf("Rate limit exceeded for %s", data.IP)
	return svc.sendEmail(recipients, subject, body.String())
}

// Send email using SMTP
func (svc *EmailService) sendEmail(to []string, subject, body string) error {
	if svc.smtpHost == "" {
		return fmt.Errorf("SMTP not configured")
	}

	auth := smtp.PlainAuth("", svc.smtpUsername, svc.smtpPassword, svc.smtpHost)

	msg := []byte(fmt.Sprintf(
		"From: %s <%s>\r\n"+
			"To: %s\r\n"+
			"Subject: %s\r\n"+
			"MIME-Version: 1.0\r\n"+
			"Content-Type: text/html; charset=UTF-8\r\n"+
			"\r\n"+
			"%s",
		svc.fromName, svc.fromEmail, strings.Join(to, ", "), subject, body))

	err := smtp.SendMail(
		svc.smtpHost+":"+svc.smtpPort,
		auth,
		svc.fromEmail,
		to,
		msg,
	)

	if err != nil {
		log.WithError(err).WithFields(log.Fields{"to": to, "subject": subject}).Error("Failed to send email")
		return fmt.Errorf("failed to send email: %v", err)
	}

	log.WithFields(log.Fields{"to": to, "subject": subject}).Info("Email sent successfully")
	return nil
}

// Test email configuration
func (svc *EmailService) TestEmailConfig() error {
	if svc.smtpHost == "" {
		return fmt.Errorf("SMTP host not configured")
	}

	if svc.fromEmail == "" {
		return fmt.Errorf("from email not configured")
	}

	subject := "Test Email Configuration - Gatewall"
	body := "This is a test email to verify SMTP configuration."

	return svc.sendEmail([]string{svc.fromEmail}, subject, body)
}
