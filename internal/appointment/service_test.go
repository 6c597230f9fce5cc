package appointment_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"time"

	"github.com/frahmantamala/clinic-management/internal"
	"github.com/frahmantamala/clinic-management/internal/activity"
	activityPostgres "github.com/frahmantamala/clinic-management/internal/activity/postgres"
	"github.com/frahmantamala/clinic-management/internal/appointment"
	appointmentPostgres "github.com/frahmantamala/clinic-management/internal/appointment/postgres"
	"github.com/frahmantamala/clinic-management/internal/audit"
	"github.com/frahmantamala/clinic-management/internal/auth"
	appointmentDatamodel "github.com/frahmantamala/clinic-management/internal/core/datamodel/appointment"
	patientDatamodel "github.com/frahmantamala/clinic-management/internal/core/datamodel/patient"
	userDatamodel "github.com/frahmantamala/clinic-management/internal/core/datamodel/user"
	"github.com/frahmantamala/clinic-management/internal/listing"
	"github.com/frahmantamala/clinic-management/internal/testutil"
	"github.com/frahmantamala/clinic-management/internal/transport"
	"github.com/go-chi/chi"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"
)

var _ = Describe("Appointment Service", func() {
	var (
		ctx     context.Context
		db      *gorm.DB
		service *appointment.Service
		actor   *audit.Actor
		jane    *patientDatamodel.Patient
		john    *patientDatamodel.Patient
		house   *userDatamodel.User
		wilson  *userDatamodel.User
		nurse   *userDatamodel.User
	)

	BeforeEach(func() {
		var err error
		ctx = context.Background()
		db, err = testutil.NewDB()
		Expect(err).NotTo(HaveOccurred())

		agg := activity.NewAggregator(activityPostgres.NewActivityRepository(db))
		activityPostgres.RegisterSchemas(agg, db)
		service = appointment.NewService(appointmentPostgres.NewAppointmentRepository(db), activity.NewRecorder(), agg, testutil.Logger())

		admin := testutil.SeedUser(db, string(auth.RoleAdmin), "Ada", "Admin")
		actor = &audit.Actor{ID: admin.ID, FullName: "Ada Admin"}
		house = testutil.SeedUser(db, string(auth.RoleDoctor), "Gregory", "House")
		wilson = testutil.SeedUser(db, string(auth.RoleDoctor), "James", "Wilson")
		nurse = testutil.SeedUser(db, string(auth.RoleNurse), "Nina", "Nurse")
		jane = testutil.SeedPatient(db, "Jane", "Doe")
		john = testutil.SeedPatient(db, "John", "Smith")
	})

	booking := func(patientID int64, start, end string, userIDs ...int64) appointment.AppointmentDTO {
		return appointment.AppointmentDTO{
			PatientID:       patientID,
			Title:           "Consultation",
			AppointmentDate: "2030-03-04",
			StartTime:       start,
			EndTime:         end,
			Status:          string(appointment.StatusScheduled),
			UserIDs:         userIDs,
		}
	}

	fieldErrors := func(err error) map[string]string {
		appErr, ok := internal.IsAppError(err)
		Expect(ok).To(BeTrue(), "expected an AppError, got %v", err)
		Expect(appErr.StatusCode).To(Equal(http.StatusUnprocessableEntity))
		return appErr.FieldMessages()
	}

	Describe("double booking", func() {
		var existing *appointment.Appointment

		BeforeEach(func() {
			var err error
			existing, err = service.Create(ctx, actor, booking(jane.ID, "09:00", "09:30", house.ID))
			Expect(err).NotTo(HaveOccurred())
		})

		It("rejects an overlapping appointment for the same patient", func() {
			_, err := service.Create(ctx, actor, booking(jane.ID, "09:15", "09:45", nurse.ID))
			errs := fieldErrors(err)
			Expect(errs).To(HaveKeyWithValue("appointment_date", "This patient already has an appointment during this time."))
			Expect(errs).NotTo(HaveKey("user_ids"))
		})

		It("treats touching boundaries as a conflict", func() {
			_, err := service.Create(ctx, actor, booking(jane.ID, "09:30", "10:00", nurse.ID))
			Expect(fieldErrors(err)).To(HaveKeyWithValue("appointment_date", "This patient already has an appointment during this time."))
		})

		It("accepts the next free slot", func() {
			_, err := service.Create(ctx, actor, booking(jane.ID, "09:31", "10:00", house.ID))
			Expect(err).NotTo(HaveOccurred())
		})

		It("accepts the same time on another day", func() {
			dto := booking(jane.ID, "09:00", "09:30", house.ID)
			dto.AppointmentDate = "2030-03-05"
			_, err := service.Create(ctx, actor, dto)
			Expect(err).NotTo(HaveOccurred())
		})

		It("ignores cancelled appointments", func() {
			dto := booking(jane.ID, "09:00", "09:30", house.ID)
			dto.Status = string(appointment.StatusCancelled)
			_, err := service.Update(ctx, actor, existing.ID, dto)
			Expect(err).NotTo(HaveOccurred())

			_, err = service.Create(ctx, actor, booking(jane.ID, "09:00", "09:30", house.ID))
			Expect(err).NotTo(HaveOccurred())
		})

		It("ignores soft-deleted appointments", func() {
			Expect(service.Delete(ctx, actor, existing.ID)).To(Succeed())
			_, err := service.Create(ctx, actor, booking(jane.ID, "09:00", "09:30", house.ID))
			Expect(err).NotTo(HaveOccurred())
		})

		It("never conflicts with itself on edit", func() {
			dto := booking(jane.ID, "09:00", "09:45", house.ID)
			dto.Title = "Extended consultation"
			updated, err := service.Update(ctx, actor, existing.ID, dto)
			Expect(err).NotTo(HaveOccurred())
			Expect(updated.EndTime).To(Equal("09:45"))
		})

		It("rejects staff booked with another patient and names them", func() {
			_, err := service.Create(ctx, actor, booking(john.ID, "09:15", "09:45", house.ID, nurse.ID))
			errs := fieldErrors(err)
			Expect(errs).To(HaveKeyWithValue("user_ids", "The following users are already booked during this time: Gregory House"))
			Expect(errs).NotTo(HaveKey("appointment_date"))
		})

		It("reports both conflicts and every booked staff member once", func() {
			_, err := service.Create(ctx, actor, booking(john.ID, "10:00", "10:30", wilson.ID, house.ID))
			Expect(err).NotTo(HaveOccurred())

			_, err = service.Create(ctx, actor, booking(jane.ID, "09:00", "10:15", house.ID, wilson.ID))
			errs := fieldErrors(err)
			Expect(errs).To(HaveKeyWithValue("appointment_date", "This patient already has an appointment during this time."))
			Expect(errs).To(HaveKeyWithValue("user_ids", "The following users are already booked during this time: Gregory House, James Wilson"))
		})

		It("rejects restoring into an occupied slot", func() {
			Expect(service.Delete(ctx, actor, existing.ID)).To(Succeed())
			_, err := service.Create(ctx, actor, booking(jane.ID, "09:00", "09:30", nurse.ID))
			Expect(err).NotTo(HaveOccurred())

			_, err = service.Restore(ctx, actor, existing.ID)
			Expect(fieldErrors(err)).To(HaveKey("appointment_date"))
		})
	})

	Describe("validation", func() {
		It("requires at least one staff member", func() {
			_, err := service.Create(ctx, actor, booking(jane.ID, "09:00", "09:30"))
			Expect(fieldErrors(err)).To(HaveKeyWithValue("user_ids", "At least one staff member must be assigned to the appointment."))
		})

		It("rejects unknown staff members", func() {
			_, err := service.Create(ctx, actor, booking(jane.ID, "09:00", "09:30", house.ID, 9999))
			Expect(fieldErrors(err)).To(HaveKeyWithValue("user_ids", "One or more selected staff members do not exist."))
		})

		It("rejects an unknown patient", func() {
			_, err := service.Create(ctx, actor, booking(9999, "09:00", "09:30", house.ID))
			Expect(fieldErrors(err)).To(HaveKeyWithValue("patient_id", "The selected patient id is invalid."))
		})

		It("requires the end time after the start time", func() {
			_, err := service.Create(ctx, actor, booking(jane.ID, "10:00", "09:30", house.ID))
			Expect(fieldErrors(err)).To(HaveKeyWithValue("end_time", "The end time field must be a time after start time."))
		})

		It("rejects malformed fields before touching the store", func() {
			dto := booking(jane.ID, "9am", "09:30", house.ID)
			dto.Status = "Pending"
			dto.AppointmentDate = "04/03/2030"
			_, err := service.Create(ctx, actor, dto)
			errs := fieldErrors(err)
			Expect(errs).To(HaveKey("start_time"))
			Expect(errs).To(HaveKeyWithValue("status", "The selected status is invalid."))
			Expect(errs).To(HaveKeyWithValue("appointment_date", "The appointment date field must be a valid date."))
		})

		It("requires the provider to be assigned", func() {
			dto := booking(jane.ID, "09:00", "09:30", house.ID)
			dto.ProviderID = &wilson.ID
			_, err := service.Create(ctx, actor, dto)
			Expect(fieldErrors(err)).To(HaveKey("provider_id"))
		})

		It("normalises single-digit hours", func() {
			a, err := service.Create(ctx, actor, booking(jane.ID, "9:05", "9:35", house.ID))
			Expect(err).NotTo(HaveOccurred())
			Expect(a.StartTime).To(Equal("09:05"))
			Expect(a.FormattedTime()).To(Equal("9:05 AM - 9:35 AM"))
		})
	})

	Describe("staff sync", func() {
		It("replaces assignments and marks the provider", func() {
			dto := booking(jane.ID, "09:00", "09:30", house.ID, nurse.ID)
			dto.ProviderID = &house.ID
			a, err := service.Create(ctx, actor, dto)
			Expect(err).NotTo(HaveOccurred())
			Expect(a.Users).To(HaveLen(2))
			Expect(a.Users[0].IsProvider).To(BeTrue())

			dto = booking(jane.ID, "09:00", "09:30", wilson.ID)
			a, err = service.Update(ctx, actor, a.ID, dto)
			Expect(err).NotTo(HaveOccurred())
			Expect(a.Users).To(HaveLen(1))
			Expect(a.Users[0].FullName).To(Equal("James Wilson"))

			var count int64
			Expect(db.Unscoped().Model(&appointmentDatamodel.AppointmentUser{}).Where("appointment_id = ?", a.ID).Count(&count).Error).To(Succeed())
			Expect(count).To(Equal(int64(1)))
		})
	})

	Describe("activity", func() {
		It("logs status changes and groups them under Appointment", func() {
			a, err := service.Create(ctx, actor, booking(jane.ID, "09:00", "09:30", house.ID))
			Expect(err).NotTo(HaveOccurred())

			dto := booking(jane.ID, "09:00", "09:30", house.ID)
			dto.Status = string(appointment.StatusCompleted)
			_, err = service.Update(ctx, actor, a.ID, dto)
			Expect(err).NotTo(HaveOccurred())

			groups, err := service.Activity(ctx, a.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(groups).To(HaveLen(1))
			Expect(groups[0].Label).To(Equal("Appointment"))
			Expect(groups[0].Activities).To(HaveLen(2))
			Expect(groups[0].Activities[1].Description).To(Equal("Updated"))
			Expect(groups[0].Activities[1].Properties["attributes"]).To(Equal(map[string]interface{}{"status": "Completed"}))
			Expect(*groups[0].Activities[0].SubjectIdentifier).To(Equal("Consultation"))
		})
	})

	Describe("List", func() {
		It("searches through the patient relation", func() {
			_, err := service.Create(ctx, actor, booking(jane.ID, "09:00", "09:30", house.ID))
			Expect(err).NotTo(HaveOccurred())
			_, err = service.Create(ctx, actor, booking(john.ID, "10:00", "10:30", house.ID))
			Expect(err).NotTo(HaveOccurred())

			page, err := service.List(ctx, listing.ParseParams(url.Values{"search": {"smith"}}))
			Expect(err).NotTo(HaveOccurred())
			Expect(page.Total).To(Equal(int64(1)))
			Expect(page.Data[0].Patient.FullName).To(Equal("John Smith"))
		})

		It("sorts by patient last name", func() {
			_, err := service.Create(ctx, actor, booking(john.ID, "10:00", "10:30", house.ID))
			Expect(err).NotTo(HaveOccurred())
			_, err = service.Create(ctx, actor, booking(jane.ID, "09:00", "09:30", wilson.ID))
			Expect(err).NotTo(HaveOccurred())

			page, err := service.List(ctx, listing.ParseParams(url.Values{"sort_by": {"patient.last_name"}, "sort_direction": {"asc"}}))
			Expect(err).NotTo(HaveOccurred())
			Expect(page.Data).To(HaveLen(2))
			Expect(page.Data[0].Patient.LastName).To(Equal("Doe"))
			Expect(page.Data[0].Users).To(HaveLen(1))
			Expect(page.Sort).To(Equal(listing.Indicator{SortBy: "patient.last_name", SortDirection: listing.Desc}))
		})
	})

	Describe("Handler", func() {
		var router chi.Router

		BeforeEach(func() {
			h := appointment.NewHandler(transport.NewBaseHandler(testutil.Logger()), service)
			router = chi.NewRouter()
			router.Get("/appointments/calendar", h.Calendar)
			router.Get("/appointments/options", h.AppointmentOptions)
			router.Get("/appointments/{id}", h.GetAppointment)
			router.Delete("/appointments/{id}", h.DeleteAppointment)
		})

		It("returns calendar events in the requested range", func() {
			_, err := service.Create(ctx, actor, booking(jane.ID, "09:00", "09:30", house.ID))
			Expect(err).NotTo(HaveOccurred())
			dto := booking(john.ID, "11:00", "11:30", house.ID)
			dto.AppointmentDate = "2030-04-01"
			_, err = service.Create(ctx, actor, dto)
			Expect(err).NotTo(HaveOccurred())

			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/appointments/calendar?start=2030-03-01&end=2030-03-31", nil))
			Expect(rec.Code).To(Equal(http.StatusOK))

			var events []appointment.CalendarEvent
			Expect(json.Unmarshal(rec.Body.Bytes(), &events)).To(Succeed())
			Expect(events).To(HaveLen(1))
			Expect(events[0].Title).To(Equal("Consultation - Jane Doe"))
			Expect(events[0].Start).To(Equal("2030-03-04T09:00:00"))
			Expect(events[0].BackgroundColor).To(Equal("#3b82f6"))
			Expect(events[0].ExtendedProps.PatientName).To(Equal("Jane Doe"))
		})

		It("requires end after start", func() {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/appointments/calendar?start=2030-03-31&end=2030-03-01", nil))
			Expect(rec.Code).To(Equal(http.StatusUnprocessableEntity))
			Expect(rec.Body.String()).To(ContainSubstring(`"field":"end"`))
		})

		It("lists statuses, types, patients and staff", func() {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/appointments/options", nil))
			Expect(rec.Code).To(Equal(http.StatusOK))

			var opts struct {
				Statuses []appointment.Option      `json:"statuses"`
				Types    []appointment.Option      `json:"types"`
				Patients []appointment.Option      `json:"patients"`
				Users    []appointment.StaffOption `json:"users"`
			}
			Expect(json.Unmarshal(rec.Body.Bytes(), &opts)).To(Succeed())
			Expect(opts.Statuses).To(HaveLen(len(appointment.AllStatuses)))
			Expect(opts.Types).To(HaveLen(len(appointment.AllTypes)))
			Expect(opts.Patients).To(HaveLen(2))
			Expect(opts.Patients[0].Label).To(Equal("Jane Doe"))
			Expect(opts.Users).To(HaveLen(4))
			Expect(opts.Users[0].Label).To(Equal("Ada Admin"))
		})

		It("hides a deleted appointment", func() {
			a, err := service.Create(ctx, actor, booking(jane.ID, "09:00", "09:30", house.ID))
			Expect(err).NotTo(HaveOccurred())

			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/appointments/"+itoa(a.ID), nil))
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Body.String()).To(ContainSubstring("Appointment deleted successfully."))

			rec = httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/appointments/"+itoa(a.ID), nil))
			Expect(rec.Code).To(Equal(http.StatusNotFound))
		})
	})
})

var _ = It("formats the calendar day", func() {
	a := &appointment.Appointment{AppointmentDate: testutil.Date(2030, time.March, 4), StartTime: "13:00", EndTime: "13:30"}
	Expect(a.FormattedDateTime()).To(Equal("Mar 04, 2030 at 1:00 PM - 1:30 PM"))
})
