// internal/service/template_service.go
package service

import (
	"strings"

	"github.com/dripflow/dripflow-backend/internal/model"
)

// RenderTemplate substitutes the closed set of recognized merge placeholders
// against the contact record. Missing values resolve to the empty string;
// unknown placeholders pass through unresolved.
func RenderTemplate(template string, contact *model.Contact) string {
	placeholders := map[string]string{
		"first_name": contact.FirstName,
		"last_name":  contact.LastName,
		"company":    contact.Company,
		"email":      contact.Email,
	}

	result := template
	for k, v := range placeholders {
		result = strings.ReplaceAll(result, "{"+k+"}", v)
	}
	return result
}
