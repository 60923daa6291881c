package postgres

import "github.com/jackc/pgx/v5/pgxpool"

// Store bundles one repository per record type over a shared pool
type Store struct {
	Pool          *pgxpool.Pool
	Prescriptions *PrescriptionRepo
	Patients      *PatientRepo
	Medications   *MedicationRepo
	Consumption   *ConsumptionRepo
	Alerts        *AlertRepo
}

// NewStore wires every repository to pool
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{
		Pool:          pool,
		Prescriptions: NewPrescriptionRepo(pool),
		Patients:      NewPatientRepo(pool),
		Medications:   NewMedicationRepo(pool),
		Consumption:   NewConsumptionRepo(pool),
		Alerts:        NewAlertRepo(pool),
	}
}
