// internal/model/contact.go
package model

// Contact is the read-only view of the external CRM's contact record. The
// engine never owns or mutates contacts; campaigns hold a weak reference by
// ID only.
type Contact struct {
	ID           int    `db:"id" json:"id"`
	FirstName    string `db:"first_name" json:"first_name"`
	LastName     string `db:"last_name" json:"last_name"`
	Email        string `db:"email" json:"email"`
	Company      string `db:"company" json:"company"`
	Unsubscribed bool   `db:"unsubscribed" json:"unsubscribed"`
}
