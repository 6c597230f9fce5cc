package patient

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/frahmantamala/clinic-management/internal/activity"
	"github.com/frahmantamala/clinic-management/internal/auth"
	"github.com/frahmantamala/clinic-management/internal/core/common/validation"
	patientDatamodel "github.com/frahmantamala/clinic-management/internal/core/datamodel/patient"
	"github.com/spf13/afero"
)

const (
	importPassword    = "password"
	importEmailDomain = "@example.com"
)

var ErrNoCreators = errors.New("No users found. Please seed users first.")

var emailUnsafe = regexp.MustCompile(`[^a-z0-9.]`)

// Creator is a user an imported patient can be attributed to.
type Creator struct {
	ID        int64
	CreatedAt time.Time
}

type ImportStore interface {
	Creators(ctx context.Context) ([]Creator, error)
	// EmailInUse checks patients (trashed included) and users.
	EmailInUse(ctx context.Context, email string) (bool, error)
	Insert(ctx context.Context, p *patientDatamodel.Patient) error
}

type AvatarAttacher interface {
	AttachFromFile(ctx context.Context, kind activity.Kind, ownerID int64, fs afero.Fs, path string) error
}

type ImportResult struct {
	Imported int
	Skipped  int
}

type Importer struct {
	store      ImportStore
	avatars    AvatarAttacher
	fs         afero.Fs
	rnd        *rand.Rand
	now        func() time.Time
	bcryptCost int
	logger     *slog.Logger
}

type ImporterOption func(*Importer)

func WithImportRand(rnd *rand.Rand) ImporterOption {
	return func(i *Importer) { i.rnd = rnd }
}

func WithImportClock(now func() time.Time) ImporterOption {
	return func(i *Importer) { i.now = now }
}

func WithImportBCryptCost(cost int) ImporterOption {
	return func(i *Importer) { i.bcryptCost = cost }
}

func NewImporter(store ImportStore, avatars AvatarAttacher, fs afero.Fs, logger *slog.Logger, opts ...ImporterOption) *Importer {
	i := &Importer{
		store:   store,
		avatars: avatars,
		fs:      fs,
		rnd:     rand.New(rand.NewSource(time.Now().UnixNano())),
		now:     time.Now,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Import reads "id,full name,avatar file" records from file and creates one
// patient per usable record. Avatars are looked up under avatarDir.
func (i *Importer) Import(ctx context.Context, file, avatarDir string) (ImportResult, error) {
	var result ImportResult

	f, err := i.fs.Open(file)
	if err != nil {
		return result, fmt.Errorf("File not found: %s", file)
	}
	defer f.Close()

	creators, err := i.store.Creators(ctx)
	if err != nil {
		return result, fmt.Errorf("load users: %w", err)
	}
	if len(creators) == 0 {
		return result, ErrNoCreators
	}

	hash, err := auth.HashPassword(importPassword, i.bcryptCost)
	if err != nil {
		return result, fmt.Errorf("hash password: %w", err)
	}

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			i.logger.Warn("skipping unreadable csv record", "error", err)
			result.Skipped++
			continue
		}
		if len(record) < 3 {
			result.Skipped++
			continue
		}

		first, middle, last := splitName(record[1])
		if first == "" {
			result.Skipped++
			continue
		}

		email, err := i.uniqueEmail(ctx, first, last)
		if err != nil {
			return result, err
		}

		creator := creators[i.rnd.Intn(len(creators))]
		createdAt := i.randomCreatedAt(creator.CreatedAt)
		row := &patientDatamodel.Patient{
			FirstName:   first,
			MiddleName:  middle,
			LastName:    last,
			Email:       email,
			DateOfBirth: i.randomBirthday(),
			Password:    hash,
			CreatedAt:   createdAt,
			UpdatedAt:   createdAt,
		}
		row.CreatedByID = &creator.ID
		row.UpdatedByID = &creator.ID

		if err := i.store.Insert(ctx, row); err != nil {
			return result, fmt.Errorf("import %q: %w", record[1], err)
		}
		result.Imported++

		i.attachAvatar(ctx, row.ID, avatarDir, strings.TrimSpace(record[2]))
	}

	i.logger.Info("patients imported", "imported", result.Imported, "skipped", result.Skipped)
	return result, nil
}

func (i *Importer) attachAvatar(ctx context.Context, patientID int64, dir, name string) {
	if i.avatars == nil || name == "" {
		return
	}
	path := filepath.Join(dir, filepath.Base(name))
	if ok, _ := afero.Exists(i.fs, path); !ok {
		return
	}
	if err := i.avatars.AttachFromFile(ctx, activity.KindPatient, patientID, i.fs, path); err != nil {
		i.logger.Warn("failed to attach imported avatar", "patient_id", patientID, "path", path, "error", err)
	}
}

// splitName takes the first and last words as first and last name; any words
// in between form the middle name.
func splitName(full string) (first string, middle *string, last string) {
	parts := strings.Fields(full)
	if len(parts) == 0 {
		return "", nil, ""
	}
	first = parts[0]
	last = parts[len(parts)-1]
	if len(parts) > 2 {
		m := strings.Join(parts[1:len(parts)-1], " ")
		middle = &m
	}
	return first, middle, last
}

func (i *Importer) uniqueEmail(ctx context.Context, first, last string) (string, error) {
	base := emailUnsafe.ReplaceAllString(strings.ToLower(first+"."+last), "")
	email := base + importEmailDomain
	for counter := 1; ; counter++ {
		taken, err := i.store.EmailInUse(ctx, email)
		if err != nil {
			return "", fmt.Errorf("check email %s: %w", email, err)
		}
		if !taken {
			return email, nil
		}
		email = base + strconv.Itoa(counter) + importEmailDomain
	}
}

func (i *Importer) randomBirthday() time.Time {
	start := time.Date(1980, time.January, 1, 0, 0, 0, 0, time.UTC)
	end := i.now().AddDate(0, -1, 0)
	return validation.DateOnly(randomBetween(i.rnd, start, end))
}

func (i *Importer) randomCreatedAt(userCreatedAt time.Time) time.Time {
	now := i.now()
	end := time.Date(now.Year(), now.Month(), now.Day()-1, 0, 0, 0, 0, now.Location())
	if userCreatedAt.After(end) {
		return end
	}
	return randomBetween(i.rnd, userCreatedAt, end)
}

func randomBetween(rnd *rand.Rand, start, end time.Time) time.Time {
	span := end.Unix() - start.Unix()
	if span <= 0 {
		return start
	}
	return time.Unix(start.Unix()+rnd.Int63n(span+1), 0).UTC()
}
