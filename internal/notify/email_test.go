package notify

import (
	"context"
	"errors"
	"log/slog"
	"net/smtp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"licensegate/internal/config"
	"licensegate/pkg/contracts/domain"
)

func testNotifier(t *testing.T) *SMTPNotifier {
	t.Helper()

	n := NewSMTPNotifier(config.SMTPConfig{
		Host: "smtp.example.com",
		Port: 587,
		User: "mailer@example.com",
		From: "licenses@example.com",
	}, slog.Default())
	require.NotNil(t, n)
	return n
}

func TestNewSMTPNotifier_NilWithoutHost(t *testing.T) {
	n := NewSMTPNotifier(config.SMTPConfig{}, slog.Default())
	assert.Nil(t, n)
}

func TestLicenseCreated_SendsFullToken(t *testing.T) {
	n := testNotifier(t)

	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg []byte
	n.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, msg
		return nil
	}

	rec := &domain.LicenseRecord{
		ID:        "lic-1",
		Licensee:  "Acme Corp",
		Domain:    "acme.example.com",
		Tier:      domain.TierPro,
		Token:     "LIC-full-secret-token-value",
		ExpiresAt: time.Date(2027, time.June, 1, 0, 0, 0, 0, time.UTC),
	}

	require.NoError(t, n.LicenseCreated(context.Background(), "owner@acme.example.com", rec))

	assert.Equal(t, "smtp.example.com:587", gotAddr)
	assert.Equal(t, "licenses@example.com", gotFrom)
	assert.Equal(t, []string{"owner@acme.example.com"}, gotTo)

	msg := string(gotMsg)
	assert.Contains(t, msg, "LIC-full-secret-token-value")
	assert.Contains(t, msg, "acme.example.com")
	assert.Contains(t, msg, "2027-06-01")
	assert.Contains(t, msg, "Subject: Your license for acme.example.com")
}

func TestLicenseCreated_FallsBackToUserAsFrom(t *testing.T) {
	n := NewSMTPNotifier(config.SMTPConfig{
		Host: "smtp.example.com",
		Port: 587,
		User: "mailer@example.com",
	}, slog.Default())
	require.NotNil(t, n)

	var gotFrom string
	n.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotFrom = from
		return nil
	}

	require.NoError(t, n.LicenseCreated(context.Background(), "x@example.com", &domain.LicenseRecord{}))
	assert.Equal(t, "mailer@example.com", gotFrom)
}

func TestLicenseCreated_ReturnsSendError(t *testing.T) {
	n := testNotifier(t)
	boom := errors.New("relay refused")
	n.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		return boom
	}

	err := n.LicenseCreated(context.Background(), "x@example.com", &domain.LicenseRecord{ID: "lic-1"})
	assert.ErrorIs(t, err, boom)
}
