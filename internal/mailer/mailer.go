// internal/mailer/mailer.go
package mailer

import (
	"log"
	"math/rand"
	"strings"

	appErrors "github.com/dripflow/dripflow-backend/internal/errors"
)

// Mailer is the external message-delivery collaborator. Transport (SMTP,
// provider API) lives behind this interface; the engine only cares whether a
// failure is retryable.
type Mailer interface {
	Send(toEmail, subject, body string) error
}

// MockMailer simulates delivery for local development: 90% success, the
// rest transient failures. An empty or malformed address is reported as
// permanent, matching how a real provider rejects bad recipients.
type MockMailer struct {
	FailureRate float64
}

func NewMockMailer() *MockMailer {
	return &MockMailer{FailureRate: 0.1}
}

func (m *MockMailer) Send(toEmail, subject, body string) error {
	if toEmail == "" || !strings.Contains(toEmail, "@") {
		return appErrors.NewPermanentDelivery("invalid recipient address: " + toEmail)
	}
	if rand.Float64() < m.FailureRate {
		return appErrors.NewTransientDelivery("mock send failed")
	}
	log.Printf("📧 mock mailer: sent to %s subject=%q bytes=%d\n", toEmail, subject, len(body))
	return nil
}
