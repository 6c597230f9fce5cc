package activity_test

import (
	"context"
	"errors"
	"time"

	"github.com/frahmantamala/clinic-management/internal/activity"
	"github.com/frahmantamala/clinic-management/internal/audit"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type memoryRepository struct {
	rows       []activity.Activity
	shouldFail bool
}

func (m *memoryRepository) FindBySubjects(_ context.Context, kind activity.Kind, ids []int64) ([]activity.Activity, error) {
	if m.shouldFail {
		return nil, errors.New("db down")
	}
	want := map[int64]bool{}
	for _, id := range ids {
		want[id] = true
	}
	var out []activity.Activity
	for _, a := range m.rows {
		if a.Subject.Kind == kind && want[a.Subject.ID] {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *memoryRepository) Write(_ context.Context, e *activity.Entry) error {
	m.rows = append(m.rows, activity.Activity{
		ID:          int64(len(m.rows) + 1),
		Description: string(e.Description),
		Subject:     e.Subject,
		Properties:  e.Properties,
		CreatedAt:   e.CreatedAt,
	})
	return nil
}

var _ = Describe("Aggregator", func() {
	var (
		repo *memoryRepository
		agg  *activity.Aggregator
		base time.Time
	)

	at := func(id int64, kind activity.Kind, subjectID int64, minutes int, description string) activity.Activity {
		return activity.Activity{
			ID:          id,
			Description: description,
			Subject:     activity.Subject{Kind: kind, ID: subjectID},
			CreatedAt:   base.Add(time.Duration(minutes) * time.Minute),
		}
	}

	BeforeEach(func() {
		base = time.Date(2030, time.March, 4, 9, 0, 0, 0, time.UTC)
		repo = &memoryRepository{}
		agg = activity.NewAggregator(repo)
		agg.Register(activity.KindPatient, []string{activity.SelfRelation, "appointments", "media"}, map[string]activity.Resolver{
			"appointments": func(context.Context, int64) (activity.Kind, []int64, error) {
				return activity.KindAppointment, []int64{10, 11}, nil
			},
			"media": func(context.Context, int64) (activity.Kind, []int64, error) {
				return activity.KindMedia, nil, nil
			},
		})
	})

	It("groups by schema order and sorts each group by time", func() {
		repo.rows = []activity.Activity{
			at(4, activity.KindAppointment, 11, 30, "Created"),
			at(1, activity.KindPatient, 1, 0, "Created"),
			at(3, activity.KindAppointment, 10, 10, "Updated"),
			at(2, activity.KindAppointment, 10, 5, "Created"),
			at(5, activity.KindPatient, 1, 40, "Updated"),
			at(6, activity.KindAppointment, 99, 1, "Created"),
		}

		groups, err := agg.Aggregate(context.Background(), activity.Subject{Kind: activity.KindPatient, ID: 1})
		Expect(err).NotTo(HaveOccurred())
		Expect(groups).To(HaveLen(2))

		Expect(groups[0].Label).To(Equal("Patient"))
		Expect(groups[0].Relation).To(Equal(activity.SelfRelation))
		Expect(ids(groups[0].Activities)).To(Equal([]int64{1, 5}))

		Expect(groups[1].Label).To(Equal("Appointments"))
		Expect(ids(groups[1].Activities)).To(Equal([]int64{2, 3, 4}))
	})

	It("breaks timestamp ties by id", func() {
		repo.rows = []activity.Activity{
			at(8, activity.KindPatient, 1, 0, "Updated"),
			at(7, activity.KindPatient, 1, 0, "Created"),
		}

		groups, err := agg.Aggregate(context.Background(), activity.Subject{Kind: activity.KindPatient, ID: 1})
		Expect(err).NotTo(HaveOccurred())
		Expect(ids(groups[0].Activities)).To(Equal([]int64{7, 8}))
	})

	It("omits every empty group", func() {
		groups, err := agg.Aggregate(context.Background(), activity.Subject{Kind: activity.KindPatient, ID: 1})
		Expect(err).NotTo(HaveOccurred())
		Expect(groups).To(BeEmpty())
	})

	It("fails for a kind without a schema", func() {
		_, err := agg.Aggregate(context.Background(), activity.Subject{Kind: activity.KindUser, ID: 1})
		Expect(err).To(MatchError(ContainSubstring(`no activity schema registered for "user"`)))
	})

	It("wraps store failures with the relation", func() {
		repo.shouldFail = true
		_, err := agg.Aggregate(context.Background(), activity.Subject{Kind: activity.KindPatient, ID: 1})
		Expect(err).To(MatchError(ContainSubstring("patient.self")))
	})
})

var _ = Describe("Headline", func() {
	DescribeTable("title-cases relation names",
		func(in, want string) {
			Expect(activity.Headline(in)).To(Equal(want))
		},
		Entry("plain", "appointments", "Appointments"),
		Entry("snake case", "assigned_users", "Assigned Users"),
		Entry("camel case", "assignedUsers", "Assigned Users"),
	)
})

var _ = Describe("SubjectIdentifier", func() {
	It("prefers the full name, then title, name and file name", func() {
		Expect(*activity.SubjectIdentifier(activity.Label{FullName: "Jane Doe", Title: "Checkup"})).To(Equal("Jane Doe"))
		Expect(*activity.SubjectIdentifier(activity.Label{FullName: " ", Title: "Checkup"})).To(Equal("Checkup"))
		Expect(*activity.SubjectIdentifier(activity.Label{FileName: "a.png"})).To(Equal("a.png"))
		Expect(activity.SubjectIdentifier(activity.Label{})).To(BeNil())
	})
})

var _ = Describe("Diff", func() {
	fields := []string{"first_name", "middle_name", "email"}

	It("keeps only the logged fields that changed", func() {
		changes := activity.Diff(fields,
			map[string]any{"first_name": "Jane", "middle_name": "Ann", "email": "j@example.com", "password": "a"},
			map[string]any{"first_name": "Janet", "middle_name": nil, "email": "j@example.com", "password": "b"})

		Expect(changes).NotTo(BeNil())
		Expect(changes.Attributes).To(Equal(map[string]any{"first_name": "Janet", "middle_name": nil}))
		Expect(changes.Old).To(Equal(map[string]any{"first_name": "Jane", "middle_name": "Ann"}))
	})

	It("returns nil when nothing logged changed", func() {
		same := map[string]any{"first_name": "Jane", "email": "j@example.com"}
		Expect(activity.Diff(fields, same, same)).To(BeNil())
	})
})

var _ = Describe("Recorder", func() {
	var (
		repo     *memoryRepository
		recorder *activity.Recorder
		now      time.Time
		subject  activity.Subject
	)

	BeforeEach(func() {
		repo = &memoryRepository{}
		now = time.Date(2030, time.March, 4, 9, 0, 0, 0, time.UTC)
		recorder = activity.NewRecorderWithClock(func() time.Time { return now })
		subject = activity.Subject{Kind: activity.KindPatient, ID: 1}
	})

	It("writes nothing without an actor", func() {
		Expect(recorder.Record(context.Background(), repo, nil, subject, activity.Created, nil)).To(Succeed())
		Expect(repo.rows).To(BeEmpty())
	})

	It("skips updates without changes", func() {
		actor := &audit.Actor{ID: 7, FullName: "Ada Admin"}
		Expect(recorder.Record(context.Background(), repo, actor, subject, activity.Updated, nil)).To(Succeed())
		Expect(repo.rows).To(BeEmpty())
	})

	It("stamps the entry with the clock and the changes", func() {
		actor := &audit.Actor{ID: 7, FullName: "Ada Admin"}
		changes := &activity.Changes{Attributes: map[string]any{"title": "B"}, Old: map[string]any{"title": "A"}}

		Expect(recorder.Record(context.Background(), repo, actor, subject, activity.Updated, changes)).To(Succeed())
		Expect(repo.rows).To(HaveLen(1))
		Expect(repo.rows[0].Description).To(Equal("Updated"))
		Expect(repo.rows[0].CreatedAt).To(Equal(now))
		Expect(repo.rows[0].Properties).To(HaveKeyWithValue("old", map[string]any{"title": "A"}))
	})
})

func ids(activities []activity.Activity) []int64 {
	out := make([]int64, 0, len(activities))
	for _, a := range activities {
		out = append(out, a.ID)
	}
	return out
}
