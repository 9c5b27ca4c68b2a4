package patient

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("patient not found")

// Patient maps to the patients table. A user can manage several patients
// (themselves, family members) and every record hangs off one of them.
type Patient struct {
	ID          uuid.UUID  `db:"id" json:"patientId"`
	UserID      uuid.UUID  `db:"user_id" json:"userId"`
	PatientName string     `db:"patient_name" json:"patientName"`
	IDNumber    *string    `db:"id_number" json:"idNumber,omitempty"`
	BirthDate   *time.Time `db:"birth_date" json:"birthDate,omitempty"`
	Gender      *string    `db:"gender" json:"gender,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updatedAt"`
}
