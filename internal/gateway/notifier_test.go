package gateway

import (
	"io"
	"net"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/lendpeer/escrow-engine/internal/config"
)

// The listener accepts connections but never sends an SMTP greeting, so a
// synchronous sender would hang on it.
func TestEmailNotifier_NotifyDoesNotBlock(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go io.Copy(io.Discard, conn)
		}
	}()

	host, port, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)

	cfg := &config.Config{}
	cfg.Notification.SMTPHost = host
	cfg.Notification.SMTPPort = port
	cfg.Notification.From = "noreply@lendpeer.example"
	cfg.Notification.OpsEmail = "ops@lendpeer.example"

	log := logrus.New()
	log.SetOutput(io.Discard)
	notifier := NewEmailNotifier(cfg, log)

	done := make(chan struct{})
	go func() {
		notifier.Notify(EventDepositCompleted, "deposit of 100 USD to account test")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Notify blocked on a stalled SMTP server")
	}
}
