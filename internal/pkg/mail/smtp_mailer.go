package mail

import (
	"fmt"
	"log"
	"net/smtp"
	"time"

	"github.com/FlorianWeber/ListFox/internal/pkg/env"
)

// SMTPMailer sends emails via SMTP
func SendMail(to string, subject string, body string) error {
	host := env.GetEnv("SMTP_HOST", "")
	port := env.GetEnv("SMTP_PORT", "")
	username := env.GetEnv("SMTP_USERNAME", "")
	password := env.GetEnv("SMTP_PASSWORD", "")
	sender := env.GetEnv("SMTP_SENDER", "")

	if sender == "" {
		sender = fmt.Sprintf("no-reply@%s", "localhost")
		log.Printf("SMTP_SENDER not set, using default sender: %s", sender)
	}

	var auth smtp.Auth
	if username != "" && password != "" {
		auth = smtp.PlainAuth("", username, password, host)
	}

	addr := fmt.Sprintf("%s:%s", host, port)

	msg := []byte(
		fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n", sender, to, subject) +
			"MIME-Version: 1.0\r\n" +
			"Content-Type: text/html; charset=UTF-8\r\n\r\n" +
			body,
	)

	err := smtp.SendMail(addr, auth, sender, []string{to}, msg)
	if err != nil {
		log.Printf("SMTP send error: %v", err)
	} else {
		log.Printf("Email sent to %s via %s", to, addr)
	}
	return err
}

// SendTrialConfirmation mails the registrant their trial window and the
// self-service delete link. Best effort: callers log failures and move on.
func SendTrialConfirmation(to, businessName string, trialEndsAt time.Time, deleteURL string) error {
	subject := fmt.Sprintf("Your listing for %s is live", businessName)
	body := fmt.Sprintf(
		"<p>Your business listing <strong>%s</strong> is now visible.</p>"+
			"<p>The free trial runs until <strong>%s</strong>. After that the listing "+
			"stays visible only with an active subscription.</p>"+
			"<p>If you want to remove the listing yourself, use this link: "+
			"<a href=\"%s\">%s</a></p>",
		businessName, trialEndsAt.UTC().Format("2 January 2006"), deleteURL, deleteURL,
	)
	return SendMail(to, subject, body)
}

// SendCheckoutStarted mails the registrant the checkout link for a
// returning registration.
func SendCheckoutStarted(to, businessName, checkoutURL string) error {
	subject := fmt.Sprintf("Complete your subscription for %s", businessName)
	body := fmt.Sprintf(
		"<p>Your listing <strong>%s</strong> is waiting for payment.</p>"+
			"<p>Complete the checkout here: <a href=\"%s\">%s</a></p>",
		businessName, checkoutURL, checkoutURL,
	)
	return SendMail(to, subject, body)
}
