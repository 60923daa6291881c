// Package medication defines the medication catalogue owned by caregiving accounts.
package medication

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidInput = errors.New("invalid medication")
	ErrNotFound     = errors.New("medication not found")
)

// Medication is a named substance with its dosage strength
type Medication struct {
	ID        string    `json:"id"`
	AccountID string    `json:"account_id"`
	Name      string    `json:"name"`
	Dosage    string    `json:"dosage"`
	Unit      string    `json:"unit"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Label is the display form used in reminders and alerts, e.g. "Losartana 50 mg"
func (m *Medication) Label() string {
	if m == nil {
		return ""
	}
	label := m.Name
	if m.Dosage != "" {
		label += " " + m.Dosage
		if m.Unit != "" {
			label += " " + m.Unit
		}
	}
	return label
}

// Validate checks the fields a caller must supply
func (m *Medication) Validate() error {
	m.Name = strings.TrimSpace(m.Name)
	if m.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if m.AccountID == "" {
		return fmt.Errorf("%w: account_id is required", ErrInvalidInput)
	}
	return nil
}

// Repository is the durable store for medications
type Repository interface {
	Create(ctx context.Context, m *Medication) error
	Update(ctx context.Context, m *Medication) error
	Get(ctx context.Context, id string) (*Medication, error)
	GetMany(ctx context.Context, ids []string) (map[string]*Medication, error)
	ListByAccount(ctx context.Context, accountID string) ([]*Medication, error)
}
