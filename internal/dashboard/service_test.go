package dashboard_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/frahmantamala/clinic-management/internal/cache"
	patientDatamodel "github.com/frahmantamala/clinic-management/internal/core/datamodel/patient"
	"github.com/frahmantamala/clinic-management/internal/dashboard"
	dashboardPostgres "github.com/frahmantamala/clinic-management/internal/dashboard/postgres"
	"github.com/frahmantamala/clinic-management/internal/testutil"
	"github.com/frahmantamala/clinic-management/internal/transport"
	"github.com/jmoiron/sqlx"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"
)

type memoryStore struct {
	values map[string]string
	ttls   map[string]time.Duration
}

func newMemoryStore() *memoryStore {
	return &memoryStore{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *memoryStore) Get(_ context.Context, key string) (string, bool, error) {
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *memoryStore) Set(_ context.Context, key, value string, ttl time.Duration) error {
	m.values[key] = value
	m.ttls[key] = ttl
	return nil
}

func (m *memoryStore) Delete(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(m.values, k)
	}
	return nil
}

var _ = Describe("Dashboard Service", func() {
	var (
		ctx   context.Context
		db    *gorm.DB
		repo  dashboard.RepositoryAPI
		store *memoryStore
		now   = time.Date(2030, time.March, 20, 9, 0, 0, 0, time.UTC)
	)

	seedPatientAt := func(first, last string, createdAt time.Time, createdByID *int64) *patientDatamodel.Patient {
		p := testutil.SeedPatient(db, first, last)
		Expect(db.Model(p).UpdateColumns(map[string]interface{}{
			"created_at":    createdAt,
			"created_by_id": createdByID,
		}).Error).To(Succeed())
		return p
	}

	newService := func(s cache.Store) *dashboard.Service {
		return dashboard.NewService(repo, s, testutil.Logger(),
			dashboard.WithTTL(90*time.Second),
			dashboard.WithClock(func() time.Time { return now }))
	}

	BeforeEach(func() {
		var err error
		ctx = context.Background()
		db, err = testutil.NewDB()
		Expect(err).NotTo(HaveOccurred())
		sqlDB, err := db.DB()
		Expect(err).NotTo(HaveOccurred())
		repo = dashboardPostgres.NewDashboardRepository(sqlx.NewDb(sqlDB, "sqlite3"))
		store = newMemoryStore()

		admin := testutil.SeedUser(db, "admin", "Ada", "Admin")
		testutil.SeedUser(db, "doctor", "Gregory", "House")
		gone := testutil.SeedUser(db, "nurse", "Gone", "Nurse")
		Expect(db.Delete(gone).Error).To(Succeed())

		seedPatientAt("Old", "Timer", time.Date(2030, time.February, 28, 23, 0, 0, 0, time.UTC), nil)
		seedPatientAt("Mar", "First", time.Date(2030, time.March, 1, 0, 0, 0, 0, time.UTC), &admin.ID)
		for i, name := range []string{"Ann", "Bob", "Cid", "Dee", "Eve"} {
			seedPatientAt(name, "Recent", time.Date(2030, time.March, 10+i, 12, 0, 0, 0, time.UTC), &admin.ID)
		}
		trashed := seedPatientAt("Trashed", "Patient", time.Date(2030, time.March, 19, 12, 0, 0, 0, time.UTC), nil)
		Expect(db.Delete(trashed).Error).To(Succeed())
	})

	It("counts live rows and the current month", func() {
		stats, err := newService(store).Stats(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(stats.TotalPatients).To(Equal(int64(7)))
		Expect(stats.TotalUsers).To(Equal(int64(2)))
		Expect(stats.NewPatientsThisMonth).To(Equal(int64(6)))
	})

	It("lists the five newest patients with their creator", func() {
		stats, err := newService(store).Stats(ctx)
		Expect(err).NotTo(HaveOccurred())

		names := []string{}
		for _, p := range stats.RecentPatients {
			names = append(names, p.FirstName)
		}
		Expect(names).To(Equal([]string{"Eve", "Dee", "Cid", "Bob", "Ann"}))
		Expect(stats.RecentPatients[0].FullName).To(Equal("Eve Recent"))
		Expect(stats.RecentPatients[0].CreatedBy).NotTo(BeNil())
		Expect(stats.RecentPatients[0].CreatedBy.FullName).To(Equal("Ada Admin"))
	})

	It("serves cached stats until invalidated", func() {
		service := newService(store)
		_, err := service.Stats(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(store.values).To(HaveKey(dashboard.StatsKey))
		Expect(store.ttls[dashboard.StatsKey]).To(Equal(90 * time.Second))

		seedPatientAt("New", "Comer", now, nil)
		cached, err := service.Stats(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(cached.TotalPatients).To(Equal(int64(7)))

		service.InvalidateStats(ctx)
		Expect(store.values).NotTo(HaveKey(dashboard.StatsKey))

		fresh, err := service.Stats(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(fresh.TotalPatients).To(Equal(int64(8)))
	})

	It("recomputes every time without a cache", func() {
		service := newService(cache.Nop{})
		_, err := service.Stats(ctx)
		Expect(err).NotTo(HaveOccurred())

		seedPatientAt("New", "Comer", now, nil)
		stats, err := service.Stats(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(stats.TotalPatients).To(Equal(int64(8)))
	})

	It("renders the stats over HTTP", func() {
		h := dashboard.NewHandler(transport.NewBaseHandler(testutil.Logger()), newService(store))
		rec := httptest.NewRecorder()
		h.Dashboard(rec, httptest.NewRequest(http.MethodGet, "/dashboard", nil))

		Expect(rec.Code).To(Equal(http.StatusOK))
		var body map[string]interface{}
		Expect(json.Unmarshal(rec.Body.Bytes(), &body)).To(Succeed())
		Expect(body).To(HaveKeyWithValue("total_patients", BeNumerically("==", 7)))
		Expect(body["recent_patients"]).To(HaveLen(5))
	})
})

var _ = Describe("MonthRange", func() {
	It("spans the calendar month", func() {
		from, to := dashboard.MonthRange(time.Date(2030, time.December, 31, 23, 59, 0, 0, time.UTC))
		Expect(from).To(Equal(time.Date(2030, time.December, 1, 0, 0, 0, 0, time.UTC)))
		Expect(to).To(Equal(time.Date(2031, time.January, 1, 0, 0, 0, 0, time.UTC)))
	})
})
