package patient_test

import (
	"context"
	"math/rand"
	"time"

	"github.com/frahmantamala/clinic-management/internal/activity"
	"github.com/frahmantamala/clinic-management/internal/auth"
	patientDatamodel "github.com/frahmantamala/clinic-management/internal/core/datamodel/patient"
	userDatamodel "github.com/frahmantamala/clinic-management/internal/core/datamodel/user"
	"github.com/frahmantamala/clinic-management/internal/patient"
	patientPostgres "github.com/frahmantamala/clinic-management/internal/patient/postgres"
	"github.com/frahmantamala/clinic-management/internal/testutil"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/afero"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type recordingAttacher struct {
	paths map[int64]string
}

func (r *recordingAttacher) AttachFromFile(_ context.Context, _ activity.Kind, ownerID int64, _ afero.Fs, path string) error {
	r.paths[ownerID] = path
	return nil
}

var _ = Describe("Importer", func() {
	var (
		ctx      context.Context
		db       *gorm.DB
		fs       afero.Fs
		attacher *recordingAttacher
		importer *patient.Importer
		now      = time.Date(2030, time.June, 15, 12, 0, 0, 0, time.UTC)
	)

	BeforeEach(func() {
		var err error
		ctx = context.Background()
		db, err = testutil.NewDB()
		Expect(err).NotTo(HaveOccurred())

		fs = afero.NewMemMapFs()
		attacher = &recordingAttacher{paths: map[int64]string{}}
		importer = patient.NewImporter(patientPostgres.NewImportRepository(db), attacher, fs, testutil.Logger(),
			patient.WithImportRand(rand.New(rand.NewSource(7))),
			patient.WithImportClock(func() time.Time { return now }),
			patient.WithImportBCryptCost(bcrypt.MinCost))

		Expect(afero.WriteFile(fs, "db/avatars/hank.png", []byte("png"), 0o644)).To(Succeed())
	})

	writeCSV := func(content string) {
		Expect(afero.WriteFile(fs, "db/src/patients.csv", []byte(content), 0o644)).To(Succeed())
	}

	patients := func() []patientDatamodel.Patient {
		var rows []patientDatamodel.Patient
		Expect(db.Order("id").Find(&rows).Error).To(Succeed())
		return rows
	}

	It("fails when there are no users", func() {
		writeCSV("1,Hank Venture,hank.png\n")
		_, err := importer.Import(ctx, "db/src/patients.csv", "db/avatars")
		Expect(err).To(MatchError(patient.ErrNoCreators))
		Expect(patients()).To(BeEmpty())
	})

	Context("with users", func() {
		var creator *userDatamodel.User

		BeforeEach(func() {
			creator = testutil.SeedUser(db, string(auth.RoleAdmin), "Ada", "Admin")
		})

		It("skips records with fewer than three columns", func() {
			writeCSV("1,Hank Venture,hank.png\n2,Dean Venture\n")

			result, err := importer.Import(ctx, "db/src/patients.csv", "db/avatars")
			Expect(err).NotTo(HaveOccurred())
			Expect(result).To(Equal(patient.ImportResult{Imported: 1, Skipped: 1}))
		})

		It("splits the name and attributes the patient to a user", func() {
			writeCSV("1,Thaddeus S. Venture,rusty.png\n")

			_, err := importer.Import(ctx, "db/src/patients.csv", "db/avatars")
			Expect(err).NotTo(HaveOccurred())

			rows := patients()
			Expect(rows).To(HaveLen(1))
			Expect(rows[0].FirstName).To(Equal("Thaddeus"))
			Expect(*rows[0].MiddleName).To(Equal("S."))
			Expect(rows[0].LastName).To(Equal("Venture"))
			Expect(rows[0].Email).To(Equal("thaddeus.venture@example.com"))
			Expect(*rows[0].CreatedByID).To(Equal(creator.ID))
			Expect(*rows[0].UpdatedByID).To(Equal(creator.ID))
			Expect(bcrypt.CompareHashAndPassword([]byte(rows[0].Password), []byte("password"))).To(Succeed())
		})

		It("keeps generated values within their ranges", func() {
			writeCSV("1,Hank Venture,hank.png\n2,Dean Venture,dean.png\n3,Brock Samson,brock.png\n")

			_, err := importer.Import(ctx, "db/src/patients.csv", "db/avatars")
			Expect(err).NotTo(HaveOccurred())

			yesterday := time.Date(2030, time.June, 14, 0, 0, 0, 0, time.UTC)
			for _, row := range patients() {
				Expect(row.DateOfBirth).To(BeTemporally(">=", time.Date(1980, time.January, 1, 0, 0, 0, 0, time.UTC)))
				Expect(row.DateOfBirth).To(BeTemporally("<=", now.AddDate(0, -1, 0)))
				Expect(row.CreatedAt).To(BeTemporally("<=", yesterday))
				Expect(row.CreatedAt).To(BeTemporally(">=", creator.CreatedAt.Truncate(time.Second)))
			}
		})

		It("numbers e-mails already taken by users or patients", func() {
			Expect(db.Create(&userDatamodel.User{
				Role: string(auth.RoleNurse), FirstName: "Hank", LastName: "Venture",
				Email: "hank.venture@example.com", Password: "x",
			}).Error).To(Succeed())
			writeCSV("1,Hank Venture,hank.png\n2,Hank Venture,hank.png\n")

			_, err := importer.Import(ctx, "db/src/patients.csv", "db/avatars")
			Expect(err).NotTo(HaveOccurred())

			rows := patients()
			Expect(rows).To(HaveLen(2))
			Expect(rows[0].Email).To(Equal("hank.venture1@example.com"))
			Expect(rows[1].Email).To(Equal("hank.venture2@example.com"))
		})

		It("attaches avatars that exist on disk", func() {
			writeCSV("1,Hank Venture,hank.png\n2,Dean Venture,dean.png\n")

			_, err := importer.Import(ctx, "db/src/patients.csv", "db/avatars")
			Expect(err).NotTo(HaveOccurred())

			rows := patients()
			Expect(attacher.paths).To(HaveLen(1))
			Expect(attacher.paths).To(HaveKeyWithValue(rows[0].ID, "db/avatars/hank.png"))
		})
	})
})
