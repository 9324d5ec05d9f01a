package mail

import (
	"fmt"
	"log"
	"net/smtp"

	"github.com/JonasWeigert/VowPix/internal/pkg/env"
)

// SendMail sends an HTML email via SMTP
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

// SendActivationMail sends the account activation link for a fresh signup.
func SendActivationMail(to string, token string) error {
	baseURL := env.GetEnv("PUBLIC_BASE_URL", "http://localhost:4000")
	link := fmt.Sprintf("%s/auth/activate?token=%s", baseURL, token)
	body := fmt.Sprintf(
		"<p>Welcome to VowPix!</p><p>Activate your account: <a href=\"%s\">%s</a></p>",
		link, link,
	)
	return SendMail(to, "Activate your VowPix account", body)
}

// SendPasswordResetMail sends the password reset link.
func SendPasswordResetMail(to string, token string) error {
	baseURL := env.GetEnv("PUBLIC_BASE_URL", "http://localhost:4000")
	link := fmt.Sprintf("%s/reset-password?token=%s", baseURL, token)
	body := fmt.Sprintf(
		"<p>A password reset was requested for your VowPix account.</p>"+
			"<p>Set a new password: <a href=\"%s\">%s</a></p>"+
			"<p>If you did not request this, you can ignore this email.</p>",
		link, link,
	)
	return SendMail(to, "Reset your VowPix password", body)
}
