// internal/errors/errors.go
package appErrors

import (
	"errors"
	"fmt"
)

// ValidationError rejects bad input before any state is created.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + e.Reason
}

func NewValidation(format string, args ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// NotFoundError is a sentinel error for unknown campaigns, blueprints and
// contacts. Surfaced to the caller, never retried.
type NotFoundError struct {
	Resource string
	ID       int
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s with ID %d not found", e.Resource, e.ID)
}

func NewNotFound(resource string, id int) error {
	return &NotFoundError{Resource: resource, ID: id}
}

// Helper constructors
func NewCampaignNotFound(id int) error  { return NewNotFound("campaign", id) }
func NewBlueprintNotFound(id int) error { return NewNotFound("blueprint", id) }
func NewContactNotFound(id int) error   { return NewNotFound("contact", id) }

// TransientDeliveryError is a mailer failure eligible for backoff retry,
// bounded by the coordinator's max attempts.
type TransientDeliveryError struct {
	Reason string
}

func (e *TransientDeliveryError) Error() string {
	return "transient delivery failure: " + e.Reason
}

func NewTransientDelivery(reason string) error {
	return &TransientDeliveryError{Reason: reason}
}

// PermanentDeliveryError exhausts attempts immediately (e.g. invalid
// address); the step is marked failed without further retries.
type PermanentDeliveryError struct {
	Reason string
}

func (e *PermanentDeliveryError) Error() string {
	return "permanent delivery failure: " + e.Reason
}

func NewPermanentDelivery(reason string) error {
	return &PermanentDeliveryError{Reason: reason}
}

// StaleClaimError means the conditional claim update lost the race to
// another coordinator instance. Always silently skipped, never surfaced.
type StaleClaimError struct {
	StepExecutionID int
}

func (e *StaleClaimError) Error() string {
	return fmt.Sprintf("step execution %d is no longer claimable", e.StepExecutionID)
}

func NewStaleClaim(stepExecutionID int) error {
	return &StaleClaimError{StepExecutionID: stepExecutionID}
}

func IsValidation(err error) bool {
	var t *ValidationError
	return errors.As(err, &t)
}

func IsNotFound(err error) bool {
	var t *NotFoundError
	return errors.As(err, &t)
}

func IsTransientDelivery(err error) bool {
	var t *TransientDeliveryError
	return errors.As(err, &t)
}

func IsPermanentDelivery(err error) bool {
	var t *PermanentDeliveryError
	return errors.As(err, &t)
}

func IsStaleClaim(err error) bool {
	var t *StaleClaimError
	return errors.As(err, &t)
}
