package memory

import (
	"github.com/caretrack/doseguard/internal/domain/consumption"
	"github.com/caretrack/doseguard/internal/domain/medication"
	"github.com/caretrack/doseguard/internal/domain/patient"
	"github.com/caretrack/doseguard/internal/domain/prescription"
)

// Store bundles one repository per record type
type Store struct {
	Prescriptions prescription.Repository
	Patients      patient.Repository
	Medications   medication.Repository
	Consumption   consumption.Repository
	Alerts        *AlertRepo
}

// NewStore returns an empty in-memory store
func NewStore() *Store {
	return &Store{
		Prescriptions: NewPrescriptionRepo(),
		Patients:      NewPatientRepo(),
		Medications:   NewMedicationRepo(),
		Consumption:   NewConsumptionRepo(),
		Alerts:        NewAlertRepo(),
	}
}
