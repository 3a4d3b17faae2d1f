package gateway

import (
	"fmt"
	"net/smtp"

	"github.com/jordan-wright/email"
	"github.com/sirupsen/logrus"

	"github.com/lendpeer/escrow-engine/internal/config"
)

// Notification event names
const (
	EventDepositCompleted      = "deposit.completed"
	EventWithdrawalCompleted   = "withdrawal.completed"
	EventTransferCompleted     = "transfer.completed"
	EventRefundIssued          = "refund.issued"
	EventPayoutApproved        = "payout.approved"
	EventPayoutRejected        = "payout.rejected"
	EventPayoutCompleted       = "payout.completed"
	EventPayoutFailed          = "payout.failed"
	EventDisbursementProcessed = "disbursement.processed"
)

// Notifier delivers fire-and-forget notifications after significant state
// transitions. Delivery failures are logged and never surfaced to callers,
// so a broken notification channel cannot roll back a financial transaction.
type Notifier interface {
	Notify(event string, subject string)
}

// EmailNotifier sends notifications to an operations mailbox via SMTP.
type EmailNotifier struct {
	cfg *config.Config
	log *logrus.Logger
}

func NewEmailNotifier(cfg *config.Config, log *logrus.Logger) *EmailNotifier {
	return &EmailNotifier{cfg: cfg, log: log}
}

// Notify dispatches the email on its own goroutine so a slow SMTP server
// never stalls the financial operation that triggered it.
func (n *EmailNotifier) Notify(event string, subject string) {
	go n.send(event, subject)
}

func (n *EmailNotifier) send(event string, subject string) {
	e := email.NewEmail()
	e.From = n.cfg.Notification.From
	e.To = []string{n.cfg.Notification.OpsEmail}
	e.Subject = fmt.Sprintf("[escrow-engine] %s", event)
	e.Text = []byte(subject)

	addr := fmt.Sprintf("%s:%s", n.cfg.Notification.SMTPHost, n.cfg.Notification.SMTPPort)
	auth := smtp.PlainAuth("", n.cfg.Notification.From, "", n.cfg.Notification.SMTPHost)
	if err := e.Send(addr, auth); err != nil {
		n.log.WithError(err).WithField("event", event).Error("failed to send notification")
		return
	}

	n.log.WithField("event", event).Debug("notification sent")
}

// LogNotifier records notifications in the application log. Used when SMTP
// delivery is disabled.
type LogNotifier struct {
	log *logrus.Logger
}

func NewLogNotifier(log *logrus.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) Notify(event string, subject string) {
	n.log.WithFields(logrus.Fields{
		"event":   event,
		"subject": subject,
	}).Info("notification")
}
