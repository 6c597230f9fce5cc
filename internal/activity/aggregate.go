package activity

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode"
)

// SelfRelation refers to the entity's own history inside a schema.
const SelfRelation = "self"

// Activity is a stored activity with its causer and subject label resolved.
type Activity struct {
	ID                int64          `json:"id"`
	LogName           string         `json:"log_name"`
	Description       string         `json:"description"`
	Subject           Subject        `json:"subject"`
	SubjectIdentifier *string        `json:"subject_identifier"`
	Causer            *Causer        `json:"causer"`
	Properties        map[string]any `json:"properties,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
}

type Causer struct {
	ID       int64  `json:"id"`
	FullName string `json:"full_name"`
	Deleted  bool   `json:"deleted"`
}

// Label carries the candidate fields for a subject's display name.
type Label struct {
	FullName string
	Title    string
	Name     string
	FileName string
}

// SubjectIdentifier picks the first non-empty of full name, title, name and file name.
func SubjectIdentifier(l Label) *string {
	for _, candidate := range []string{l.FullName, l.Title, l.Name, l.FileName} {
		if strings.TrimSpace(candidate) != "" {
			c := candidate
			return &c
		}
	}
	return nil
}

type Group struct {
	Label      string     `json:"label"`
	Relation   string     `json:"relation"`
	Activities []Activity `json:"activities"`
}

// Resolver lists the related rows (soft-deleted included) for one owner.
type Resolver func(ctx context.Context, ownerID int64) (Kind, []int64, error)

type Repository interface {
	FindBySubjects(ctx context.Context, kind Kind, ids []int64) ([]Activity, error)
}

type Aggregator struct {
	repo      Repository
	schemas   map[Kind][]string
	resolvers map[Kind]map[string]Resolver
}

func NewAggregator(repo Repository) *Aggregator {
	return &Aggregator{
		repo:      repo,
		schemas:   make(map[Kind][]string),
		resolvers: make(map[Kind]map[string]Resolver),
	}
}

// Register declares the ordered schema of kind and the resolvers for its
// non-self relations.
func (a *Aggregator) Register(kind Kind, schema []string, resolvers map[string]Resolver) {
	a.schemas[kind] = schema
	a.resolvers[kind] = resolvers
}

func (a *Aggregator) Schema(kind Kind) []string {
	return a.schemas[kind]
}

// Aggregate folds the histories named by the subject's schema into ordered
// groups. Groups without activities are left out.
func (a *Aggregator) Aggregate(ctx context.Context, subject Subject) ([]Group, error) {
	schema, ok := a.schemas[subject.Kind]
	if !ok {
		return nil, fmt.Errorf("no activity schema registered for %q", subject.Kind)
	}

	groups := make([]Group, 0, len(schema))
	for _, relation := range schema {
		kind, ids, err := a.resolve(ctx, subject, relation)
		if err != nil {
			return nil, fmt.Errorf("resolve %s.%s: %w", subject.Kind, relation, err)
		}
		if len(ids) == 0 {
			continue
		}

		activities, err := a.repo.FindBySubjects(ctx, kind, ids)
		if err != nil {
			return nil, fmt.Errorf("load activities for %s.%s: %w", subject.Kind, relation, err)
		}
		if len(activities) == 0 {
			continue
		}

		sort.SliceStable(activities, func(i, j int) bool {
			if activities[i].CreatedAt.Equal(activities[j].CreatedAt) {
				return activities[i].ID < activities[j].ID
			}
			return activities[i].CreatedAt.Before(activities[j].CreatedAt)
		})

		groups = append(groups, Group{
			Label:      a.relationLabel(subject.Kind, relation),
			Relation:   relation,
			Activities: activities,
		})
	}
	return groups, nil
}

func (a *Aggregator) resolve(ctx context.Context, subject Subject, relation string) (Kind, []int64, error) {
	if relation == SelfRelation {
		return subject.Kind, []int64{subject.ID}, nil
	}
	resolver, ok := a.resolvers[subject.Kind][relation]
	if !ok {
		return "", nil, fmt.Errorf("unknown relation %q", relation)
	}
	return resolver(ctx, subject.ID)
}

func (a *Aggregator) relationLabel(kind Kind, relation string) string {
	if relation == SelfRelation {
		return kind.TypeName()
	}
	return Headline(relation)
}

// Headline turns "appointments", "assigned_users" or "assignedUsers" into a
// title-cased heading.
func Headline(s string) string {
	var words []string
	var current []rune
	flush := func() {
		if len(current) > 0 {
			words = append(words, string(current))
			current = current[:0]
		}
	}
	for i, r := range s {
		switch {
		case r == '_' || r == '-' || unicode.IsSpace(r):
			flush()
		case unicode.IsUpper(r) && i > 0:
			flush()
			current = append(current, r)
		default:
			current = append(current, r)
		}
	}
	flush()

	for i, w := range words {
		runes := []rune(strings.ToLower(w))
		runes[0] = unicode.ToUpper(runes[0])
		words[i] = string(runes)
	}
	return strings.Join(words, " ")
}
