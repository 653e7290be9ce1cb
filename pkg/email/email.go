package email

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const defaultResendURL = "https://api.resend.com/emails"

type EmailService struct {
	apiKey    string
	from      string
	endpoint  string
	client    *http.Client
	templates *template.Template
	log       *slog.Logger
}

type EmailData struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	Html    string `json:"html"`
}

// Template data structures
type WelcomeEmailData struct {
	Name string
}

type SubscriptionActivatedData struct {
	Name      string
	PlanName  string
	IsTrial   bool
	ExpiresAt *time.Time
}

type SubscriptionExpiryWarningData struct {
	Name       string
	PlanName   string
	DaysLeft   int
	ExpiryDate time.Time
}

type Option func(*EmailService)

// WithEndpoint overrides the Resend API URL.
func WithEndpoint(url string) Option {
	return func(s *EmailService) { s.endpoint = url }
}

func WithLogger(log *slog.Logger) Option {
	return func(s *EmailService) { s.log = log }
}

func NewEmailService(apiKey, from string, opts ...Option) (*EmailService, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("resend API key is required")
	}

	templates, err := loadTemplates()
	if err != nil {
		return nil, fmt.Errorf("error loading email templates: %w", err)
	}

	s := &EmailService{
		apiKey:    apiKey,
		from:      from,
		endpoint:  defaultResendURL,
		client:    &http.Client{Timeout: 10 * time.Second},
		templates: templates,
		log:       slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *EmailService) sendTemplateEmail(ctx context.Context, to, subject, templateName string, data interface{}) error {
	var body bytes.Buffer
	if err := s.templates.ExecuteTemplate(&body, templateName, data); err != nil {
		return fmt.Errorf("template execution error: %w", err)
	}

	emailData := EmailData{
		From:    s.from,
		To:      to,
		Subject: subject,
		Html:    body.String(),
	}

	jsonData, err := json.Marshal(emailData)
	if err != nil {
		return fmt.Errorf("error marshaling email data: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("error sending email: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return fmt.Errorf("error reading response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("resend API error: status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	s.log.Debug("email sent", slog.String("template", templateName), slog.Int("status", resp.StatusCode))
	return nil
}

// Email sending methods
func (s *EmailService) SendWelcomeEmail(ctx context.Context, email, name string) error {
	data := WelcomeEmailData{
		Name: name,
	}
	return s.sendTemplateEmail(ctx, email, "Welcome to WalletWise!", "welcome.html", data)
}

func (s *EmailService) SendSubscriptionActivatedEmail(ctx context.Context, email, name, planName string, isTrial bool, expiresAt *time.Time) error {
	data := SubscriptionActivatedData{
		Name:      name,
		PlanName:  planName,
		IsTrial:   isTrial,
		ExpiresAt: expiresAt,
	}

	subject := fmt.Sprintf("Your WalletWise %s plan is active", planName)
	if isTrial {
		subject = "Your WalletWise Pro trial has started"
	}
	return s.sendTemplateEmail(ctx, email, subject, "subscription_activated.html", data)
}

func (s *EmailService) SendSubscriptionExpiryWarning(
	ctx context.Context,
	email, name, planName string,
	expiryDate time.Time,
	daysLeft int,
) error {
	data := SubscriptionExpiryWarningData{
		Name:       name,
		PlanName:   planName,
		DaysLeft:   daysLeft,
		ExpiryDate: expiryDate,
	}
	return s.sendTemplateEmail(
		ctx,
		email,
		fmt.Sprintf("Your %s plan expires in %d days", planName, daysLeft),
		"subscription_expiry_warning.html",
		data,
	)
}
