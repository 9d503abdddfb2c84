package email

import (
	"fmt"
	"net/smtp"
	"time"

	"github.com/jordan-wright/email"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/rlagos/cobranzas-service/internal/config"
)

// Sender handles sending emails via SMTP
type Sender struct {
	cfg    *config.Config
	logger *logrus.Logger
}

// NewSender creates a new email sender
func NewSender(cfg *config.Config, logger *logrus.Logger) *Sender {
	return &Sender{
		cfg:    cfg,
		logger: logger,
	}
}

// SendOverdueSummary sends an analyst the top-line numbers of their
// overdue portfolio after a batch run
func (s *Sender) SendOverdueSummary(to, analyst string, clientCount, installmentCount int, totalAmount decimal.Decimal, asOf time.Time) error {
	e := email.NewEmail()
	e.From = s.cfg.SenderEmail
	e.To = []string{to}
	e.Subject = fmt.Sprintf("Overdue portfolio summary - %s", asOf.Format("2006-01-02"))

	body := fmt.Sprintf(
		"Dear %s,\n\n"+
			"As of %s your portfolio has %d clients with %d overdue installments,\n"+
			"for a total outstanding amount of %s.\n"+
			"Please review the collections dashboard for the detailed breakdown.\n"+
			"\nBest regards,\nCobranzas",
		analyst, asOf.Format("2006-01-02"), clientCount, installmentCount, totalAmount.StringFixed(2),
	)
	e.Text = []byte(body)

	addr := fmt.Sprintf("%s:%s", s.cfg.SMTPHost, s.cfg.SMTPPort)
	auth := smtp.PlainAuth("", s.cfg.SMTPUsername, s.cfg.SMTPPassword, s.cfg.SMTPHost)
	err := e.Send(addr, auth)
	if err != nil {
		s.logger.Errorf("Failed to send email to %s: %v", to, err)
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.logger.Infof("Email sent to %s: %s", to, e.Subject)
	return nil
}
