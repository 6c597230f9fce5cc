// Package seed fills a development database with staff, and with appointments
// for existing patients that respect the double-booking rules.
package seed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"regexp"
	"strings"
	"time"

	"github.com/frahmantamala/clinic-management/internal"
	"github.com/frahmantamala/clinic-management/internal/activity"
	activityPostgres "github.com/frahmantamala/clinic-management/internal/activity/postgres"
	"github.com/frahmantamala/clinic-management/internal/appointment"
	"github.com/frahmantamala/clinic-management/internal/audit"
	"github.com/frahmantamala/clinic-management/internal/auth"
	"github.com/frahmantamala/clinic-management/internal/core/common/validation"
	patientDatamodel "github.com/frahmantamala/clinic-management/internal/core/datamodel/patient"
	userDatamodel "github.com/frahmantamala/clinic-management/internal/core/datamodel/user"
	"github.com/frahmantamala/clinic-management/internal/core/person"
	"github.com/spf13/afero"
	"gorm.io/gorm"
)

const (
	AdminEmail      = "admin@example.com"
	DefaultPassword = "password"

	minPerPatient = 3
	maxPerPatient = 8
	// attempts per wanted appointment before a candidate slot is given up
	placementAttempts = 5
)

var ErrNoAdmin = errors.New("no admin user found, seed users first")

var emailUnsafe = regexp.MustCompile(`[^a-z0-9.]`)

var defaultTitles = []string{
	"Annual Physical",
	"Blood Work Review",
	"Consultation",
	"Follow-up Visit",
	"Medication Review",
	"Post-op Check",
	"Vaccination",
	"Wellness Check",
}

var roleAccounts = []struct {
	Role  auth.Role
	First string
	Last  string
	Email string
}{
	{auth.RoleAdmin, "Clinic", "Admin", AdminEmail},
	{auth.RoleDoctor, "Default", "Doctor", "doctor@example.com"},
	{auth.RoleNurse, "Default", "Nurse", "nurse@example.com"},
	{auth.RoleFrontDesk, "Front", "Desk", "frontdesk@example.com"},
}

// UserSeed is one entry of the optional users JSON file.
type UserSeed struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Role      string `json:"role"`
}

type Seeder struct {
	db         *gorm.DB
	recorder   *activity.Recorder
	rnd        *rand.Rand
	now        func() time.Time
	bcryptCost int
	titles     []string
	logger     *slog.Logger
}

type Option func(*Seeder)

func WithRand(rnd *rand.Rand) Option {
	return func(s *Seeder) { s.rnd = rnd }
}

func WithClock(now func() time.Time) Option {
	return func(s *Seeder) { s.now = now }
}

func WithBCryptCost(cost int) Option {
	return func(s *Seeder) { s.bcryptCost = cost }
}

func WithTitles(titles []string) Option {
	return func(s *Seeder) {
		if len(titles) > 0 {
			s.titles = titles
		}
	}
}

func New(db *gorm.DB, recorder *activity.Recorder, logger *slog.Logger, opts ...Option) *Seeder {
	s := &Seeder{
		db:       db,
		recorder: recorder,
		rnd:      rand.New(rand.NewSource(time.Now().UnixNano())),
		now:      time.Now,
		titles:   defaultTitles,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Clear removes appointments, staff assignments, the activity log and media rows.
func (s *Seeder) Clear(ctx context.Context) error {
	tables := []string{"appointment_user", "appointments", "activity_log", "media"}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, table := range tables {
			if err := tx.Exec("DELETE FROM " + table).Error; err != nil {
				return fmt.Errorf("clear %s: %w", table, err)
			}
		}
		return nil
	})
}

// LoadUsers reads the optional users JSON file; a missing file yields no users.
func LoadUsers(fs afero.Fs, path string) ([]UserSeed, error) {
	raw, err := afero.ReadFile(fs, path)
	if err != nil {
		if exists, _ := afero.Exists(fs, path); !exists {
			return nil, nil
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var users []UserSeed
	if err := json.Unmarshal(raw, &users); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return users, nil
}

// Users makes sure one account per role exists, then adds extra. It returns
// the admin and the number of accounts created.
func (s *Seeder) Users(ctx context.Context, extra []UserSeed) (*userDatamodel.User, int, error) {
	hash, err := auth.HashPassword(DefaultPassword, s.bcryptCost)
	if err != nil {
		return nil, 0, err
	}

	db := s.db.WithContext(ctx)
	created := 0

	var admin *userDatamodel.User
	for _, acc := range roleAccounts {
		u, isNew, err := s.ensureUser(db, acc.Email, string(acc.Role), acc.First, acc.Last, hash, admin)
		if err != nil {
			return nil, created, err
		}
		if isNew {
			created++
		}
		if acc.Role == auth.RoleAdmin {
			admin = u
		}
	}

	for _, seed := range extra {
		role := auth.Role(strings.TrimSpace(seed.Role))
		first := strings.TrimSpace(seed.FirstName)
		last := strings.TrimSpace(seed.LastName)
		if !role.Valid() || first == "" || last == "" {
			s.logger.Warn("skipping invalid user seed", "first_name", seed.FirstName, "last_name", seed.LastName, "role", seed.Role)
			continue
		}
		email := emailUnsafe.ReplaceAllString(strings.ToLower(first+"."+last), "") + "@example.com"
		_, isNew, err := s.ensureUser(db, email, string(role), first, last, hash, admin)
		if err != nil {
			return nil, created, err
		}
		if isNew {
			created++
		}
	}
	return admin, created, nil
}

func (s *Seeder) ensureUser(db *gorm.DB, email, role, first, last, hash string, creator *userDatamodel.User) (*userDatamodel.User, bool, error) {
	var existing userDatamodel.User
	err := db.Unscoped().Where("LOWER(email) = ?", email).First(&existing).Error
	if err == nil {
		return &existing, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, fmt.Errorf("lookup %s: %w", email, err)
	}

	u := &userDatamodel.User{
		Role:      role,
		FirstName: first,
		LastName:  last,
		Email:     email,
		Password:  hash,
	}
	var actor *audit.Actor
	if creator != nil {
		actor = &audit.Actor{ID: creator.ID, FullName: person.FullName(creator.FirstName, creator.LastName)}
	}
	audit.StampCreate(&u.Stamps, actor)

	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(u).Error; err != nil {
			return fmt.Errorf("create %s: %w", email, err)
		}
		return s.recorder.Record(tx.Statement.Context, activityPostgres.NewActivityRepository(tx), actor,
			activity.Subject{Kind: activity.KindUser, ID: u.ID}, activity.Created, nil)
	})
	if err != nil {
		return nil, false, err
	}
	return u, true, nil
}

// AppointmentCreator books one appointment, enforcing the double-booking rules.
type AppointmentCreator interface {
	Create(ctx context.Context, actor *audit.Actor, dto appointment.AppointmentDTO) (*appointment.Appointment, error)
}

// Appointments books 3 to 8 weekday appointments per live patient. Candidates
// that overlap a slot placed earlier in the run are redrawn before they reach
// the service; ones the service rejects as double-booked are redrawn too.
func (s *Seeder) Appointments(ctx context.Context, creator AppointmentCreator, admin *userDatamodel.User) (int, error) {
	if admin == nil {
		return 0, ErrNoAdmin
	}
	actor := &audit.Actor{ID: admin.ID, FullName: person.FullName(admin.FirstName, admin.LastName)}

	var patients []patientDatamodel.Patient
	if err := s.db.WithContext(ctx).Order("id").Find(&patients).Error; err != nil {
		return 0, fmt.Errorf("load patients: %w", err)
	}
	var staff []int64
	if err := s.db.WithContext(ctx).Model(&userDatamodel.User{}).Order("id").Pluck("id", &staff).Error; err != nil {
		return 0, fmt.Errorf("load users: %w", err)
	}

	booked := newCalendar()
	total := 0
	for _, p := range patients {
		wanted := minPerPatient + s.rnd.Intn(maxPerPatient-minPerPatient+1)
		for i := 0; i < wanted; i++ {
			for attempt := 0; attempt < placementAttempts; attempt++ {
				dto := s.candidate(p, staff)
				ok, err := s.place(ctx, creator, actor, dto, booked)
				if err != nil {
					return total, err
				}
				if ok {
					total++
					break
				}
			}
		}
	}
	s.logger.Info("appointments seeded", "count", total, "patients", len(patients))
	return total, nil
}

func (s *Seeder) candidate(p patientDatamodel.Patient, staff []int64) appointment.AppointmentDTO {
	now := s.now()
	day := s.weekdayBetween(p.CreatedAt, now.AddDate(1, 0, 0))

	startMin := (8+s.rnd.Intn(8))*60 + s.rnd.Intn(4)*15
	endMin := startMin + (2+s.rnd.Intn(7))*15
	if endMin > 16*60 {
		endMin = 16 * 60
	}

	apptType := string(appointment.AllTypes[s.rnd.Intn(len(appointment.AllTypes))])
	dto := appointment.AppointmentDTO{
		PatientID:       p.ID,
		Title:           s.titles[s.rnd.Intn(len(s.titles))],
		Type:            &apptType,
		AppointmentDate: day.Format(validation.DateLayout),
		StartTime:       clock(startMin),
		EndTime:         clock(endMin),
		Status:          string(s.status(day, now)),
		UserIDs:         s.assign(staff),
	}
	if s.rnd.Intn(2) == 0 {
		note := "Seeded " + strings.ToLower(apptType) + " visit."
		dto.Description = &note
	}
	if len(dto.UserIDs) > 0 {
		provider := dto.UserIDs[0]
		dto.ProviderID = &provider
	}
	return dto
}

// place books dto; false means the slot conflicted.
func (s *Seeder) place(ctx context.Context, creator AppointmentCreator, actor *audit.Actor, dto appointment.AppointmentDTO, booked *calendar) (bool, error) {
	day, err := validation.ParseDate(dto.AppointmentDate)
	if err != nil {
		return false, err
	}
	window := appointment.Window{Date: day, Start: dto.StartTime, End: dto.EndTime}
	if booked.conflicts(dto.PatientID, dto.UserIDs, window) {
		return false, nil
	}

	if _, err := creator.Create(ctx, actor, dto); err != nil {
		if appErr, ok := internal.IsAppError(err); ok && appErr.Type == internal.ErrorTypeValidation {
			s.logger.Debug("skipping conflicting appointment", "patient_id", dto.PatientID, "date", dto.AppointmentDate, "errors", appErr.FieldMessages())
			return false, nil
		}
		return false, fmt.Errorf("book appointment for patient %d: %w", dto.PatientID, err)
	}
	if appointment.Status(dto.Status) != appointment.StatusCancelled {
		booked.add(dto.PatientID, dto.UserIDs, window)
	}
	return true, nil
}

func (s *Seeder) assign(staff []int64) []int64 {
	n := 1 + s.rnd.Intn(3)
	if n > len(staff) {
		n = len(staff)
	}
	out := make([]int64, 0, n)
	for _, idx := range s.rnd.Perm(len(staff))[:n] {
		out = append(out, staff[idx])
	}
	return out
}

// status keeps future days Scheduled; past days are mostly Completed.
func (s *Seeder) status(day, now time.Time) appointment.Status {
	if day.After(validation.DateOnly(now)) {
		return appointment.StatusScheduled
	}
	switch roll := 1 + s.rnd.Intn(100); {
	case roll <= 70:
		return appointment.StatusCompleted
	case roll <= 85:
		return appointment.StatusCancelled
	case roll <= 95:
		return appointment.StatusNoShow
	default:
		return appointment.StatusScheduled
	}
}

func (s *Seeder) weekdayBetween(from, to time.Time) time.Time {
	start := validation.DateOnly(from)
	end := validation.DateOnly(to)
	days := int(end.Sub(start).Hours() / 24)
	day := start
	if days > 0 {
		day = start.AddDate(0, 0, s.rnd.Intn(days+1))
	}
	for day.Weekday() == time.Saturday || day.Weekday() == time.Sunday {
		day = day.AddDate(0, 0, 1)
	}
	return day
}

func clock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// calendar remembers the windows placed during this run.
type calendar struct {
	patients map[int64][]appointment.Window
	users    map[int64][]appointment.Window
}

func newCalendar() *calendar {
	return &calendar{
		patients: map[int64][]appointment.Window{},
		users:    map[int64][]appointment.Window{},
	}
}

func (c *calendar) conflicts(patientID int64, userIDs []int64, w appointment.Window) bool {
	for _, o := range c.patients[patientID] {
		if o.Overlaps(w) {
			return true
		}
	}
	for _, id := range userIDs {
		for _, o := range c.users[id] {
			if o.Overlaps(w) {
				return true
			}
		}
	}
	return false
}

func (c *calendar) add(patientID int64, userIDs []int64, w appointment.Window) {
	c.patients[patientID] = append(c.patients[patientID], w)
	for _, id := range userIDs {
		c.users[id] = append(c.users[id], w)
	}
}
