package listing_test

import (
	"net/url"
	"time"

	appointmentDatamodel "github.com/frahmantamala/clinic-management/internal/core/datamodel/appointment"
	"github.com/frahmantamala/clinic-management/internal/listing"
	"github.com/frahmantamala/clinic-management/internal/testutil"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"
)

var appointments = listing.Definition{
	Table:        "appointments",
	SearchFields: []string{"title", "description", "patient.first_name", "patient.last_name", "ghost.name"},
	SortFields:   []string{"id", "title", "created_at", "patient.last_name"},
	Relations: map[string]listing.Relation{
		"patient": {Table: "patients", ForeignKey: "patient_id", OwnerKey: "id"},
	},
}

var _ = Describe("ParseParams", func() {
	It("defaults to the newest first on page one", func() {
		p := listing.ParseParams(url.Values{})
		Expect(p).To(Equal(listing.Params{
			SortBy:        listing.DefaultSortBy,
			SortDirection: listing.Desc,
			Page:          1,
			PerPage:       listing.DefaultPerPage,
		}))
	})

	It("reads and clamps the query", func() {
		p := listing.ParseParams(url.Values{
			"search":         {"  jane "},
			"sort_by":        {"title"},
			"sort_direction": {"ASC"},
			"page":           {"3"},
			"per_page":       {"500"},
		})
		Expect(p.Search).To(Equal("jane"))
		Expect(p.SortBy).To(Equal("title"))
		Expect(p.SortDirection).To(Equal(listing.Asc))
		Expect(p.Page).To(Equal(3))
		Expect(p.PerPage).To(Equal(listing.MaxPerPage))
	})

	It("ignores nonsense directions and pages", func() {
		p := listing.ParseParams(url.Values{"sort_direction": {"sideways"}, "page": {"-2"}})
		Expect(p.SortDirection).To(Equal(listing.Desc))
		Expect(p.Page).To(Equal(1))
	})

	It("caps huge pages so the offset cannot wrap", func() {
		p := listing.ParseParams(url.Values{"page": {"9223372036854775807"}, "per_page": {"100"}})
		Expect(p.Page).To(Equal(listing.MaxPage))
		Expect((p.Page - 1) * p.PerPage).To(BeNumerically(">", 0))
	})
})

var _ = Describe("Indicator", func() {
	It("flips the direction for the next request", func() {
		ind := appointments.Indicator(listing.Params{SortBy: "title", SortDirection: listing.Asc})
		Expect(ind).To(Equal(listing.Indicator{SortBy: "title", SortDirection: listing.Desc}))
	})

	It("reports the fallback field for unknown sorts", func() {
		ind := appointments.Indicator(listing.Params{SortBy: "password", SortDirection: listing.Desc})
		Expect(ind.SortBy).To(Equal(listing.DefaultSortBy))
		Expect(ind.SortDirection).To(Equal(listing.Asc))
	})
})

var _ = Describe("NewPage", func() {
	It("computes the last page and never returns a nil slice", func() {
		page := listing.NewPage[int](appointments, listing.Params{Page: 2, PerPage: 15, SortBy: "id", SortDirection: listing.Asc}, nil, 31)
		Expect(page.LastPage).To(Equal(3))
		Expect(page.CurrentPage).To(Equal(2))
		Expect(page.Data).NotTo(BeNil())
		Expect(page.Data).To(BeEmpty())
	})

	It("keeps one page for an empty result", func() {
		page := listing.NewPage(appointments, listing.Params{Page: 1, PerPage: 15}, []string{}, 0)
		Expect(page.LastPage).To(Equal(1))
	})
})

var _ = Describe("Scopes", func() {
	var db *gorm.DB

	day := testutil.Date(2030, time.March, 4)

	titles := func(q *gorm.DB) []string {
		var rows []appointmentDatamodel.Appointment
		Expect(q.Find(&rows).Error).To(Succeed())
		out := make([]string, 0, len(rows))
		for _, r := range rows {
			out = append(out, r.Title)
		}
		return out
	}

	BeforeEach(func() {
		var err error
		db, err = testutil.NewDB()
		Expect(err).NotTo(HaveOccurred())

		jane := testutil.SeedPatient(db, "Jane", "Doe")
		zed := testutil.SeedPatient(db, "Zed", "Adams")
		a := testutil.SeedAppointment(db, jane.ID, day, "09:00", "09:30", "Scheduled")
		b := testutil.SeedAppointment(db, zed.ID, day, "10:00", "10:30", "Scheduled")
		Expect(db.Model(a).Update("title", "Blood work").Error).To(Succeed())
		Expect(db.Model(b).Update("title", "Annual physical").Error).To(Succeed())
	})

	It("returns everything for an empty search", func() {
		q := db.Model(&appointmentDatamodel.Appointment{}).Scopes(listing.Search(appointments, "  "))
		Expect(titles(q)).To(HaveLen(2))
	})

	It("matches plain columns case-insensitively", func() {
		q := db.Model(&appointmentDatamodel.Appointment{}).Scopes(listing.Search(appointments, "BLOOD"))
		Expect(titles(q)).To(ConsistOf("Blood work"))
	})

	It("matches through a declared relation only", func() {
		q := db.Model(&appointmentDatamodel.Appointment{}).Scopes(listing.Search(appointments, "adams"))
		Expect(titles(q)).To(ConsistOf("Annual physical"))
	})

	It("sorts by a related column in the requested direction", func() {
		asc := db.Model(&appointmentDatamodel.Appointment{}).
			Scopes(listing.Sort(appointments, listing.Params{SortBy: "patient.last_name", SortDirection: listing.Asc}))
		Expect(titles(asc)).To(Equal([]string{"Annual physical", "Blood work"}))

		desc := db.Model(&appointmentDatamodel.Appointment{}).
			Scopes(listing.Sort(appointments, listing.Params{SortBy: "patient.last_name", SortDirection: listing.Desc}))
		Expect(titles(desc)).To(Equal([]string{"Blood work", "Annual physical"}))
	})

	It("paginates", func() {
		q := db.Model(&appointmentDatamodel.Appointment{}).
			Scopes(listing.Sort(appointments, listing.Params{SortBy: "title", SortDirection: listing.Asc}),
				listing.Paginate(listing.Params{Page: 2, PerPage: 1}))
		Expect(titles(q)).To(Equal([]string{"Blood work"}))
	})

	It("returns nothing past the last page", func() {
		q := db.Model(&appointmentDatamodel.Appointment{}).
			Scopes(listing.Paginate(listing.ParseParams(url.Values{"page": {"9223372036854775807"}})))
		Expect(titles(q)).To(BeEmpty())
	})
})
