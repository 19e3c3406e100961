/*
Package directory manages the people and companies behind the punch clock.

KEY CONCEPTS:
  - Employee: The person whose attendance is tracked. Employee.ID is the
    attendance.EmployeeID of every record.
  - Company:  The employer, identified by a CNPJ.
  - User:     A login. Admin users run the back office; employee users are
    linked to exactly one Employee and can only punch for themselves.

SEE ALSO:
  - service.go: Validation, password hashing and authentication
  - store/sqlite, store/postgres: Persistence
*/
package directory

import (
	"time"
)

type Gender string

const (
	GenderMale   Gender = "Masculino"
	GenderFemale Gender = "Feminino"
)

type UserType string

const (
	UserAdmin    UserType = "admin"
	UserEmployee UserType = "employee"
)

// DefaultCompanyName is the company seeded on a fresh installation.
const DefaultCompanyName = "TEM PREÇO"

type Employee struct {
	ID         string    `json:"id"`
	Name       string    `json:"name" validate:"required,max=120"`
	Email      string    `json:"email" validate:"omitempty,email"`
	Role       string    `json:"role" validate:"max=80"`
	Department string    `json:"department" validate:"max=80"`
	Age        int       `json:"age" validate:"omitempty,gte=14,lte=120"`
	Gender     Gender    `json:"gender" validate:"omitempty,oneof=Masculino Feminino"`
	IsAdmin    bool      `json:"is_admin"`
	CompanyID  string    `json:"company_id"`
	CreatedAt  time.Time `json:"created_at"`
}

type Company struct {
	ID        string    `json:"id"`
	Name      string    `json:"name" validate:"required,max=120"`
	CNPJ      string    `json:"cnpj" validate:"required,cnpj"`
	Address   string    `json:"address" validate:"max=200"`
	Phone     string    `json:"phone" validate:"max=30"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name" validate:"required,max=120"`
	Email        string    `json:"email" validate:"required,email"`
	PasswordHash string    `json:"-"`
	Type         UserType  `json:"type" validate:"required,oneof=admin employee"`
	EmployeeID   string    `json:"employee_id,omitempty" validate:"required_if=Type employee"`
	CreatedBy    string    `json:"created_by,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

func (u User) IsAdmin() bool { return u.Type == UserAdmin }

// NewUser is the input of RegisterUser.
type NewUser struct {
	Name       string   `validate:"required,max=120"`
	Email      string   `validate:"required,email"`
	Password   string   `validate:"required,min=6,max=72"`
	Type       UserType `validate:"required,oneof=admin employee"`
	EmployeeID string   `validate:"required_if=Type employee"`
	CreatedBy  string
}
