package testutil

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// UserFixture represents test user data
type UserFixture struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
	FullName     string
	Role         string
	Status       string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// MedicationFixture represents one test medication lot
type MedicationFixture struct {
	ID           string
	Name         string
	Manufacturer string
	Presentation string
	LotCode      string
	ExpiryDate   time.Time
	Stock        int
	MinStock     int
	UnitPrice    string
	SearchKey    string
	Status       string
	CreatedAt    time.Time
}

// SupplierFixture represents test supplier data
type SupplierFixture struct {
	ID        string
	Name      string
	NIT       string
	Status    string
	CreatedAt time.Time
}

// FixtureFactory creates test fixtures with sensible defaults
type FixtureFactory struct {
	sequence int
}

// NewFixtureFactory creates a new fixture factory
func NewFixtureFactory() *FixtureFactory {
	return &FixtureFactory{sequence: 0}
}

// nextSeq returns the next sequence number for unique values
func (f *FixtureFactory) nextSeq() int {
	f.sequence++
	return f.sequence
}

// User creates a user fixture with defaults
func (f *FixtureFactory) User(opts ...func(*UserFixture)) UserFixture {
	seq := f.nextSeq()
	hash, _ := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)

	user := UserFixture{
		ID:           uuid.New().String(),
		Username:     fmt.Sprintf("user%d", seq),
		Email:        fmt.Sprintf("user%d@farmatrack.test", seq),
		PasswordHash: string(hash),
		FullName:     fmt.Sprintf("Usuario de Prueba %d", seq),
		Role:         "farmaceutico",
		Status:       "ACTIVO",
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}

	for _, opt := range opts {
		opt(&user)
	}

	return user
}

// WithUsername sets the username
func WithUsername(username string) func(*UserFixture) {
	return func(u *UserFixture) {
		u.Username = username
	}
}

// WithEmail sets the user email
func WithEmail(email string) func(*UserFixture) {
	return func(u *UserFixture) {
		u.Email = email
	}
}

// WithRole sets the user role
func WithRole(role string) func(*UserFixture) {
	return func(u *UserFixture) {
		u.Role = role
	}
}

// WithStatus sets the user status
func WithStatus(status string) func(*UserFixture) {
	return func(u *UserFixture) {
		u.Status = status
	}
}

// WithPassword sets the user password (hashed)
func WithPassword(password string) func(*UserFixture) {
	return func(u *UserFixture) {
		hash, _ := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
		u.PasswordHash = string(hash)
	}
}

// Admin creates an admin user fixture
func (f *FixtureFactory) Admin() UserFixture {
	return f.User(WithUsername("admin"), WithRole("admin"), WithEmail("admin@farmatrack.test"))
}

// Medication creates a medication lot fixture with defaults. ExpiryDate is a
// year out so stock and duplicate tests are not disturbed by expiry alerts.
func (f *FixtureFactory) Medication(opts ...func(*MedicationFixture)) MedicationFixture {
	seq := f.nextSeq()

	med := MedicationFixture{
		ID:           uuid.New().String(),
		Name:         fmt.Sprintf("Medicamento %d", seq),
		Manufacturer: "Laboratorios Test",
		Presentation: "500mg",
		LotCode:      fmt.Sprintf("L-%04d", seq),
		ExpiryDate:   time.Now().AddDate(1, 0, 0),
		Stock:        100,
		MinStock:     10,
		UnitPrice:    "1500.00",
		Status:       "ACTIVO",
		CreatedAt:    time.Now(),
	}

	for _, opt := range opts {
		opt(&med)
	}

	return med
}

// WithMedName sets the medication name
func WithMedName(name string) func(*MedicationFixture) {
	return func(m *MedicationFixture) {
		m.Name = name
	}
}

// WithLot sets the lot code
func WithLot(lotCode string) func(*MedicationFixture) {
	return func(m *MedicationFixture) {
		m.LotCode = lotCode
	}
}

// WithExpiry sets the expiry date
func WithExpiry(expiry time.Time) func(*MedicationFixture) {
	return func(m *MedicationFixture) {
		m.ExpiryDate = expiry
	}
}

// WithStock sets stock and minimum stock
func WithStock(stock, minStock int) func(*MedicationFixture) {
	return func(m *MedicationFixture) {
		m.Stock = stock
		m.MinStock = minStock
	}
}

// Supplier creates a supplier fixture with defaults
func (f *FixtureFactory) Supplier(opts ...func(*SupplierFixture)) SupplierFixture {
	seq := f.nextSeq()

	supplier := SupplierFixture{
		ID:        uuid.New().String(),
		Name:      fmt.Sprintf("Proveedor %d", seq),
		NIT:       fmt.Sprintf("900%06d-1", seq),
		Status:    "ACTIVO",
		CreatedAt: time.Now(),
	}

	for _, opt := range opts {
		opt(&supplier)
	}

	return supplier
}

// WithNIT sets the supplier NIT
func WithNIT(nit string) func(*SupplierFixture) {
	return func(s *SupplierFixture) {
		s.NIT = nit
	}
}
