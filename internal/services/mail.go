package services

import (
	"fmt"
	"net/url"
)

// PasswordResetEmail builds the reset notification. The raw token travels
// only in this out-of-band link, never in an API response.
func PasswordResetEmail(baseURL, token string) (subject, body string) {
	link := fmt.Sprintf("%s/reset-password?token=%s", baseURL, url.QueryEscape(token))
	subject = "Reset your password"
	body = fmt.Sprintf(`We received a request to reset your password.

Open the link below to choose a new one:
%s

This link expires in 1 hour. If you didn't request a reset, you can ignore this email.
`, link)
	return subject, body
}

// InvitationEmail builds the signup invitation notification.
func InvitationEmail(baseURL, email, token, inviterName string) (subject, body string) {
	link := fmt.Sprintf("%s/auth?mode=signup&email=%s&token=%s",
		baseURL, url.QueryEscape(email), url.QueryEscape(token))
	subject = "You've been invited to Pulse"
	body = fmt.Sprintf(`%s invited you to join Pulse.

Open the link below to create your account:
%s

This invitation expires in 7 days.
`, inviterName, link)
	return subject, body
}
