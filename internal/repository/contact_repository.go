package repository

import (
	"database/sql"
	"time"

	"github.com/dripflow/dripflow-backend/internal/model"
)

// ContactRepositoryInterface is the engine's read-only view of the external
// CRM. GetByID returns (nil, nil) when the contact has been deleted; the
// coordinator treats that as a permanent skip, never a retry.
type ContactRepositoryInterface interface {
	GetByID(id int) (*model.Contact, error)
	HasRepliedSince(contactID int, since time.Time) (bool, error)
}

type ContactRepository struct {
	DB *sql.DB
}

func (r *ContactRepository) GetByID(id int) (*model.Contact, error) {
	query := `
        SELECT id, first_name, last_name, email, COALESCE(company, ''), unsubscribed
        FROM contacts
        WHERE id = $1
    `
	row := r.DB.QueryRow(query, id)

	var c model.Contact
	if err := row.Scan(&c.ID, &c.FirstName, &c.LastName, &c.Email, &c.Company, &c.Unsubscribed); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // deleted upstream
		}
		return nil, err
	}
	return &c, nil
}

// HasRepliedSince backs the "contact-replied" skip condition. Replies are
// recorded by the CRM's inbound mail hook into contact_replies.
func (r *ContactRepository) HasRepliedSince(contactID int, since time.Time) (bool, error) {
	var count int
	err := r.DB.QueryRow(`
        SELECT COUNT(*)
        FROM contact_replies
        WHERE contact_id = $1 AND replied_at >= $2`,
		contactID, since).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

var _ ContactRepositoryInterface = (*ContactRepository)(nil)
