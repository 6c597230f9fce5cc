package patient_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"time"

	"github.com/frahmantamala/clinic-management/internal"
	"github.com/frahmantamala/clinic-management/internal/activity"
	activityPostgres "github.com/frahmantamala/clinic-management/internal/activity/postgres"
	"github.com/frahmantamala/clinic-management/internal/audit"
	"github.com/frahmantamala/clinic-management/internal/auth"
	activityDatamodel "github.com/frahmantamala/clinic-management/internal/core/datamodel/activity"
	appointmentDatamodel "github.com/frahmantamala/clinic-management/internal/core/datamodel/appointment"
	mediaDatamodel "github.com/frahmantamala/clinic-management/internal/core/datamodel/media"
	patientDatamodel "github.com/frahmantamala/clinic-management/internal/core/datamodel/patient"
	userDatamodel "github.com/frahmantamala/clinic-management/internal/core/datamodel/user"
	"github.com/frahmantamala/clinic-management/internal/listing"
	"github.com/frahmantamala/clinic-management/internal/patient"
	patientPostgres "github.com/frahmantamala/clinic-management/internal/patient/postgres"
	"github.com/frahmantamala/clinic-management/internal/testutil"
	"github.com/frahmantamala/clinic-management/internal/transport"
	"github.com/go-chi/chi"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type fakeAvatars struct {
	urls   map[int64]string
	purged []int64
}

func (f *fakeAvatars) AvatarURLs(_ context.Context, _ activity.Kind, ids []int64) (map[int64]string, error) {
	out := map[int64]string{}
	for _, id := range ids {
		if u, ok := f.urls[id]; ok {
			out[id] = u
		}
	}
	return out, nil
}

func (f *fakeAvatars) PurgeOwner(_ context.Context, _ activity.Kind, id int64) error {
	f.purged = append(f.purged, id)
	return nil
}

type countingInvalidator struct {
	calls int
}

func (c *countingInvalidator) InvalidateStats(context.Context) { c.calls++ }

var _ = Describe("Patient Service", func() {
	var (
		ctx     context.Context
		db      *gorm.DB
		service *patient.Service
		avatars *fakeAvatars
		stats   *countingInvalidator
		admin   *userDatamodel.User
		actor   *audit.Actor
		today   = time.Date(2030, time.June, 15, 10, 0, 0, 0, time.UTC)
	)

	activitiesFor := func(id int64) []activityDatamodel.Activity {
		var rows []activityDatamodel.Activity
		Expect(db.Where("subject_type = ? AND subject_id = ?", "patient", id).Order("id").Find(&rows).Error).To(Succeed())
		return rows
	}

	BeforeEach(func() {
		var err error
		ctx = context.Background()
		db, err = testutil.NewDB()
		Expect(err).NotTo(HaveOccurred())

		agg := activity.NewAggregator(activityPostgres.NewActivityRepository(db))
		activityPostgres.RegisterSchemas(agg, db)

		avatars = &fakeAvatars{urls: map[int64]string{}}
		stats = &countingInvalidator{}
		service = patient.NewService(patientPostgres.NewPatientRepository(db), activity.NewRecorder(), agg, testutil.Logger(),
			patient.WithAvatars(avatars),
			patient.WithStatsInvalidator(stats),
			patient.WithBCryptCost(bcrypt.MinCost),
			patient.WithClock(func() time.Time { return today }))

		admin = testutil.SeedUser(db, string(auth.RoleAdmin), "Ada", "Admin")
		actor = &audit.Actor{ID: admin.ID, FullName: "Ada Admin"}
	})

	validDTO := func() patient.PatientDTO {
		middle := "Quincy"
		return patient.PatientDTO{
			FirstName:            "Jane",
			MiddleName:           &middle,
			LastName:             "Doe",
			Email:                "Jane.Doe@Example.com",
			DateOfBirth:          "1985-04-12",
			Password:             "password",
			PasswordConfirmation: "password",
		}
	}

	Describe("Create", func() {
		It("stores the patient and logs Created", func() {
			p, err := service.Create(ctx, actor, validDTO())
			Expect(err).NotTo(HaveOccurred())
			Expect(p.Email).To(Equal("jane.doe@example.com"))
			Expect(p.FullNameWithMiddle()).To(Equal("Jane Quincy Doe"))
			Expect(p.DateOfBirth).To(Equal(testutil.Date(1985, time.April, 12)))

			rows := activitiesFor(p.ID)
			Expect(rows).To(HaveLen(1))
			Expect(rows[0].Description).To(Equal("Created"))
		})

		It("rejects a date of birth that is not before today", func() {
			dto := validDTO()
			dto.DateOfBirth = "2030-06-15"

			_, err := service.Create(ctx, actor, dto)
			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.FieldMessages()).To(HaveKeyWithValue("date_of_birth", "The date of birth field must be a date before today."))
		})

		It("requires a password on create only", func() {
			dto := validDTO()
			dto.Password = ""
			dto.PasswordConfirmation = ""
			_, err := service.Create(ctx, actor, dto)
			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.FieldMessages()).To(HaveKey("password"))

			p, err := service.Create(ctx, actor, validDTO())
			Expect(err).NotTo(HaveOccurred())
			_, err = service.Update(ctx, actor, p.ID, dto)
			Expect(err).NotTo(HaveOccurred())
		})

		It("rejects an e-mail already used by a trashed patient", func() {
			p, err := service.Create(ctx, actor, validDTO())
			Expect(err).NotTo(HaveOccurred())
			Expect(service.Delete(ctx, actor, p.ID)).To(Succeed())

			_, err = service.Create(ctx, actor, validDTO())
			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.FieldMessages()).To(HaveKeyWithValue("email", "The email has already been taken."))
		})
	})

	Describe("Update", func() {
		It("logs a cleared middle name as a change to null", func() {
			p, err := service.Create(ctx, actor, validDTO())
			Expect(err).NotTo(HaveOccurred())

			dto := validDTO()
			dto.MiddleName = nil
			_, err = service.Update(ctx, actor, p.ID, dto)
			Expect(err).NotTo(HaveOccurred())

			rows := activitiesFor(p.ID)
			Expect(rows).To(HaveLen(2))
			Expect(rows[1].Properties["attributes"]).To(Equal(map[string]interface{}{"middle_name": nil}))
			Expect(rows[1].Properties["old"]).To(Equal(map[string]interface{}{"middle_name": "Quincy"}))
		})

		It("invalidates the dashboard stats after a rename", func() {
			p, err := service.Create(ctx, actor, validDTO())
			Expect(err).NotTo(HaveOccurred())
			before := stats.calls

			dto := validDTO()
			dto.FirstName = "Janet"
			dto.Password = ""
			dto.PasswordConfirmation = ""
			_, err = service.Update(ctx, actor, p.ID, dto)
			Expect(err).NotTo(HaveOccurred())
			Expect(stats.calls).To(Equal(before + 1))
		})
	})

	Describe("Search", func() {
		var jane *patient.Patient

		BeforeEach(func() {
			var err error
			jane, err = service.Create(ctx, actor, validDTO())
			Expect(err).NotTo(HaveOccurred())
			testutil.SeedPatient(db, "John", "Smith")
		})

		It("returns nothing for an empty query", func() {
			results, err := service.Search(ctx, "")
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(BeEmpty())
		})

		DescribeTable("matches Jane Doe",
			func(q string) {
				results, err := service.Search(ctx, q)
				Expect(err).NotTo(HaveOccurred())
				Expect(results).To(HaveLen(1))
				Expect(results[0].FullName).To(Equal("Jane Doe"))
			},
			Entry("by first name", "jan"),
			Entry("by middle name", "quin"),
			Entry("by first and last name", "jane doe"),
			Entry("by full name with middle", "Jane Quincy Doe"),
			Entry("by date of birth", "1985-04-12"),
		)

		It("matches by id", func() {
			results, err := service.Search(ctx, itoa(jane.ID))
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(1))
			Expect(results[0].ID).To(Equal(jane.ID))
		})

		It("orders by last name", func() {
			testutil.SeedPatient(db, "Jake", "Adams")
			results, err := service.Search(ctx, "ja")
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(2))
			Expect(results[0].FullName).To(Equal("Jake Adams"))
		})
	})

	Describe("Get and LoadMoreAppointments", func() {
		var p *patientDatamodel.Patient

		BeforeEach(func() {
			p = testutil.SeedPatient(db, "Jane", "Doe")
			doctor := testutil.SeedUser(db, string(auth.RoleDoctor), "Gregory", "House")
			for day := 1; day <= 7; day++ {
				testutil.SeedAppointment(db, p.ID, testutil.Date(2030, time.March, day), "09:00", "09:30", "Scheduled", doctor.ID)
			}
		})

		It("shows the five latest appointments and the total", func() {
			show, err := service.Get(ctx, p.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(show.TotalAppointments).To(Equal(int64(7)))
			Expect(show.Appointments).To(HaveLen(5))
			Expect(show.Appointments[0].AppointmentDate).To(Equal("2030-03-07"))
			Expect(show.Appointments[0].Users).To(HaveLen(1))
			Expect(show.Appointments[0].Users[0].FullName).To(Equal("Gregory House"))
		})

		It("loads the remaining appointments", func() {
			more, err := service.LoadMoreAppointments(ctx, p.ID, "5")
			Expect(err).NotTo(HaveOccurred())
			Expect(more.Appointments).To(HaveLen(2))
			Expect(more.HasMore).To(BeFalse())
			Expect(more.Appointments[1].AppointmentDate).To(Equal("2030-03-01"))

			more, err = service.LoadMoreAppointments(ctx, p.ID, "1")
			Expect(err).NotTo(HaveOccurred())
			Expect(more.HasMore).To(BeTrue())
		})

		It("rejects a negative offset", func() {
			_, err := service.LoadMoreAppointments(ctx, p.ID, "-1")
			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.FieldMessages()).To(HaveKey("offset"))
		})

		It("attaches avatar urls", func() {
			avatars.urls[p.ID] = "/storage/media/1/jane.png"
			show, err := service.Get(ctx, p.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(*show.Patient.AvatarURL).To(Equal("/storage/media/1/jane.png"))
		})
	})

	Describe("Delete, Restore and ForceDelete", func() {
		It("soft deletes and restores", func() {
			p, err := service.Create(ctx, actor, validDTO())
			Expect(err).NotTo(HaveOccurred())

			Expect(service.Delete(ctx, actor, p.ID)).To(Succeed())
			_, err = service.Get(ctx, p.ID)
			Expect(err).To(Equal(internal.ErrPatientNotFound))

			page, err := service.List(ctx, listing.ParseParams(url.Values{"search": {"jane"}}))
			Expect(err).NotTo(HaveOccurred())
			Expect(page.Total).To(BeZero())

			restored, err := service.Restore(ctx, actor, p.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(restored.DeletedAt).To(BeNil())

			descriptions := []string{}
			for _, a := range activitiesFor(p.ID) {
				descriptions = append(descriptions, a.Description)
			}
			Expect(descriptions).To(Equal([]string{"Created", "Deleted", "Restored"}))
		})

		It("removes appointments with the patient and purges its media", func() {
			p := testutil.SeedPatient(db, "Jane", "Doe")
			nurse := testutil.SeedUser(db, string(auth.RoleNurse), "Nina", "Nurse")
			testutil.SeedAppointment(db, p.ID, testutil.Date(2030, time.March, 1), "09:00", "09:30", "Scheduled", nurse.ID)

			Expect(service.ForceDelete(ctx, actor, p.ID)).To(Succeed())

			var count int64
			Expect(db.Unscoped().Model(&appointmentDatamodel.Appointment{}).Where("patient_id = ?", p.ID).Count(&count).Error).To(Succeed())
			Expect(count).To(BeZero())
			Expect(db.Model(&appointmentDatamodel.AppointmentUser{}).Count(&count).Error).To(Succeed())
			Expect(count).To(BeZero())
			Expect(avatars.purged).To(ConsistOf(p.ID))
		})
	})

	Describe("Activity", func() {
		It("groups the patient's history by relation and keeps trashed relations", func() {
			p, err := service.Create(ctx, actor, validDTO())
			Expect(err).NotTo(HaveOccurred())

			tick := today
			recorder := activity.NewRecorderWithClock(func() time.Time {
				tick = tick.Add(time.Minute)
				return tick
			})
			log := activityPostgres.NewActivityRepository(db)
			record := func(kind activity.Kind, id int64, action activity.Action) {
				Expect(recorder.Record(ctx, log, actor, activity.Subject{Kind: kind, ID: id}, action, nil)).To(Succeed())
			}

			visit := testutil.SeedAppointment(db, p.ID, testutil.Date(2030, time.June, 20), "09:00", "09:30", "Scheduled", admin.ID)
			record(activity.KindAppointment, visit.ID, activity.Created)
			Expect(db.Delete(&appointmentDatamodel.Appointment{}, visit.ID).Error).To(Succeed())
			record(activity.KindAppointment, visit.ID, activity.Deleted)

			oldAvatar := &mediaDatamodel.Media{ModelType: string(activity.KindPatient), ModelID: p.ID, CollectionName: "avatar", FileName: "old-face.png", DiskName: "a.png"}
			Expect(db.Create(oldAvatar).Error).To(Succeed())
			record(activity.KindMedia, oldAvatar.ID, activity.Created)
			Expect(db.Delete(oldAvatar).Error).To(Succeed())
			record(activity.KindMedia, oldAvatar.ID, activity.Deleted)

			newAvatar := &mediaDatamodel.Media{ModelType: string(activity.KindPatient), ModelID: p.ID, CollectionName: "avatar", FileName: "new-face.png", DiskName: "b.png"}
			Expect(db.Create(newAvatar).Error).To(Succeed())
			record(activity.KindMedia, newAvatar.ID, activity.Created)

			groups, err := service.Activity(ctx, p.ID)
			Expect(err).NotTo(HaveOccurred())

			labels := make([]string, 0, len(groups))
			for _, g := range groups {
				labels = append(labels, g.Label)
			}
			Expect(labels).To(Equal([]string{"Patient", "Appointments", "Media"}))

			visits := groups[1].Activities
			Expect(visits).To(HaveLen(2))
			Expect(visits[0].Description).To(Equal("Created"))
			Expect(visits[1].Description).To(Equal("Deleted"))
			Expect(*visits[1].SubjectIdentifier).To(Equal("Checkup"))

			files := groups[2].Activities
			Expect(files).To(HaveLen(3))
			Expect(*files[0].SubjectIdentifier).To(Equal("old-face.png"))
			Expect(*files[1].SubjectIdentifier).To(Equal("old-face.png"))
			Expect(*files[2].SubjectIdentifier).To(Equal("new-face.png"))
		})
	})

	Describe("Handler", func() {
		var router chi.Router

		BeforeEach(func() {
			h := patient.NewHandler(transport.NewBaseHandler(testutil.Logger()), service)
			router = chi.NewRouter()
			router.Use(func(next http.Handler) http.Handler {
				return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					u := &auth.User{ID: admin.ID, Role: auth.RoleAdmin, FirstName: "Ada", LastName: "Admin"}
					next.ServeHTTP(w, r.WithContext(auth.WithUser(r.Context(), u)))
				})
			})
			router.Post("/patients", h.CreatePatient)
			router.Get("/patients/search", h.SearchPatients)
			router.Get("/patients/{id}", h.GetPatient)
			router.Get("/patients/{id}/appointments", h.LoadMoreAppointments)
			router.Delete("/patients/{id}", h.DeletePatient)
		})

		It("creates a patient with a redirect to its page", func() {
			body := `{"first_name":"Jane","last_name":"Doe","email":"jane@example.com","date_of_birth":"1985-04-12","password":"password","password_confirmation":"password"}`
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/patients", strings.NewReader(body)))

			Expect(rec.Code).To(Equal(http.StatusCreated))
			var flash transport.Flash
			Expect(json.Unmarshal(rec.Body.Bytes(), &flash)).To(Succeed())
			Expect(flash.Message).To(Equal("Patient created successfully."))
			Expect(flash.Redirect).To(HavePrefix("/patients/"))
		})

		It("requires an offset when loading more appointments", func() {
			p := testutil.SeedPatient(db, "Jane", "Doe")
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/patients/"+itoa(p.ID)+"/appointments", nil))

			Expect(rec.Code).To(Equal(http.StatusUnprocessableEntity))
			Expect(rec.Body.String()).To(ContainSubstring(`"field":"offset"`))
		})

		It("answers search with a JSON array", func() {
			testutil.SeedPatient(db, "Jane", "Doe")
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/patients/search?q=doe", nil))

			Expect(rec.Code).To(Equal(http.StatusOK))
			var results []patient.SearchResult
			Expect(json.Unmarshal(rec.Body.Bytes(), &results)).To(Succeed())
			Expect(results).To(HaveLen(1))
		})

		It("redirects to the index after a delete", func() {
			p := testutil.SeedPatient(db, "Jane", "Doe")
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/patients/"+itoa(p.ID), nil))

			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Body.String()).To(ContainSubstring(`"redirect":"/patients"`))
		})
	})
})
