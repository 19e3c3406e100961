package directory

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// Service validates directory input before it reaches the Store.
type Service struct {
	store    Store
	validate *validator.Validate
	now      func() time.Time
}

func NewService(store Store) *Service {
	v := validator.New()
	_ = v.RegisterValidation("cnpj", validCNPJ)
	return &Service{store: store, validate: v, now: time.Now}
}

var nonDigits = regexp.MustCompile(`\D`)

// validCNPJ accepts 14 digits with or without the usual punctuation.
func validCNPJ(fl validator.FieldLevel) bool {
	raw := fl.Field().String()
	if strings.Trim(raw, "0123456789./- ") != "" {
		return false
	}
	return len(nonDigits.ReplaceAllString(raw, "")) == 14
}

func (s *Service) check(v any) error {
	if err := s.validate.Struct(v); err != nil {
		return fromValidator(err)
	}
	return nil
}

// =============================================================================
// EMPLOYEES
// =============================================================================

func (s *Service) CreateEmployee(ctx context.Context, e Employee) (Employee, error) {
	e.ID = uuid.NewString()
	e.CreatedAt = s.now().UTC().Truncate(time.Second)
	if err := s.check(e); err != nil {
		return Employee{}, err
	}
	if err := s.requireCompany(ctx, e.CompanyID); err != nil {
		return Employee{}, err
	}
	if err := s.store.SaveEmployee(ctx, e); err != nil {
		return Employee{}, fmt.Errorf("save employee: %w", err)
	}
	return e, nil
}

func (s *Service) UpdateEmployee(ctx context.Context, e Employee) (Employee, error) {
	current, err := s.Employee(ctx, e.ID)
	if err != nil {
		return Employee{}, err
	}
	e.CreatedAt = current.CreatedAt
	if err := s.check(e); err != nil {
		return Employee{}, err
	}
	if err := s.requireCompany(ctx, e.CompanyID); err != nil {
		return Employee{}, err
	}
	if err := s.store.SaveEmployee(ctx, e); err != nil {
		return Employee{}, fmt.Errorf("save employee: %w", err)
	}
	return e, nil
}

func (s *Service) Employee(ctx context.Context, id string) (Employee, error) {
	e, err := s.store.GetEmployee(ctx, id)
	if err != nil {
		return Employee{}, fmt.Errorf("get employee: %w", err)
	}
	if e == nil {
		return Employee{}, fmt.Errorf("%w: %s", ErrEmployeeNotFound, id)
	}
	return *e, nil
}

func (s *Service) Employees(ctx context.Context) ([]Employee, error) {
	return s.store.ListEmployees(ctx)
}

// EmployeeNames maps employee IDs to names, for reports.
func (s *Service) EmployeeNames(ctx context.Context) (map[string]string, error) {
	list, err := s.store.ListEmployees(ctx)
	if err != nil {
		return nil, err
	}
	names := make(map[string]string, len(list))
	for _, e := range list {
		names[e.ID] = e.Name
	}
	return names, nil
}

func (s *Service) DeleteEmployee(ctx context.Context, id string) error {
	if _, err := s.Employee(ctx, id); err != nil {
		return err
	}
	return s.store.DeleteEmployee(ctx, id)
}

func (s *Service) requireCompany(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	_, err := s.Company(ctx, id)
	return err
}

// =============================================================================
// COMPANIES
// =============================================================================

func (s *Service) CreateCompany(ctx context.Context, c Company) (Company, error) {
	c.ID = uuid.NewString()
	c.CreatedAt = s.now().UTC().Truncate(time.Second)
	if err := s.check(c); err != nil {
		return Company{}, err
	}
	if err := s.store.SaveCompany(ctx, c); err != nil {
		return Company{}, fmt.Errorf("save company: %w", err)
	}
	return c, nil
}

func (s *Service) UpdateCompany(ctx context.Context, c Company) (Company, error) {
	current, err := s.Company(ctx, c.ID)
	if err != nil {
		return Company{}, err
	}
	c.CreatedAt, c.CreatedBy = current.CreatedAt, current.CreatedBy
	if err := s.check(c); err != nil {
		return Company{}, err
	}
	if err := s.store.SaveCompany(ctx, c); err != nil {
		return Company{}, fmt.Errorf("save company: %w", err)
	}
	return c, nil
}

func (s *Service) Company(ctx context.Context, id string) (Company, error) {
	c, err := s.store.GetCompany(ctx, id)
	if err != nil {
		return Company{}, fmt.Errorf("get company: %w", err)
	}
	if c == nil {
		return Company{}, fmt.Errorf("%w: %s", ErrCompanyNotFound, id)
	}
	return *c, nil
}

func (s *Service) Companies(ctx context.Context) ([]Company, error) {
	return s.store.ListCompanies(ctx)
}

func (s *Service) DeleteCompany(ctx context.Context, id string) error {
	if _, err := s.Company(ctx, id); err != nil {
		return err
	}
	return s.store.DeleteCompany(ctx, id)
}

// =============================================================================
// USERS AND AUTHENTICATION
// =============================================================================

func (s *Service) RegisterUser(ctx context.Context, in NewUser) (User, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if err := s.check(in); err != nil {
		return User{}, err
	}
	if in.Type == UserEmployee {
		if _, err := s.Employee(ctx, in.EmployeeID); err != nil {
			return User{}, err
		}
	}
	existing, err := s.store.GetUserByEmail(ctx, in.Email)
	if err != nil {
		return User{}, fmt.Errorf("get user: %w", err)
	}
	if existing != nil {
		return User{}, ErrEmailTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}
	u := User{
		ID:           uuid.NewString(),
		Name:         in.Name,
		Email:        in.Email,
		PasswordHash: string(hash),
		Type:         in.Type,
		EmployeeID:   in.EmployeeID,
		CreatedBy:    in.CreatedBy,
		CreatedAt:    s.now().UTC().Truncate(time.Second),
	}
	if err := s.store.SaveUser(ctx, u); err != nil {
		return User{}, err
	}
	return u, nil
}

// RegisterFirstAdmin creates an admin only while none exists.
func (s *Service) RegisterFirstAdmin(ctx context.Context, name, email, password string) (User, error) {
	has, err := s.HasAdmin(ctx)
	if err != nil {
		return User{}, err
	}
	if has {
		return User{}, ErrAdminExists
	}
	return s.RegisterUser(ctx, NewUser{Name: name, Email: email, Password: password, Type: UserAdmin})
}

// Authenticate returns the user matching email and password.
// Unknown email and wrong password are the same error.
func (s *Service) Authenticate(ctx context.Context, email, password string) (User, error) {
	u, err := s.store.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return User{}, fmt.Errorf("get user: %w", err)
	}
	if u == nil {
		return User{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return User{}, ErrInvalidCredentials
	}
	return *u, nil
}

func (s *Service) HasAdmin(ctx context.Context) (bool, error) {
	n, err := s.store.CountAdmins(ctx)
	if err != nil {
		return false, fmt.Errorf("count admins: %w", err)
	}
	return n > 0, nil
}

func (s *Service) User(ctx context.Context, id string) (User, error) {
	u, err := s.store.GetUser(ctx, id)
	if err != nil {
		return User{}, fmt.Errorf("get user: %w", err)
	}
	if u == nil {
		return User{}, fmt.Errorf("%w: %s", ErrUserNotFound, id)
	}
	return *u, nil
}

func (s *Service) Users(ctx context.Context) ([]User, error) {
	return s.store.ListUsers(ctx)
}

func (s *Service) DeleteUser(ctx context.Context, id string) error {
	if _, err := s.User(ctx, id); err != nil {
		return err
	}
	return s.store.DeleteUser(ctx, id)
}
