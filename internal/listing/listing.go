// Package listing provides the search, sort and pagination scopes shared by
// every index endpoint.
package listing

import (
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

func (d Direction) Opposite() Direction {
	if d == Asc {
		return Desc
	}
	return Asc
}

const (
	DefaultSortBy  = "created_at"
	DefaultPerPage = 15
	MaxPerPage     = 100
	// MaxPage keeps the computed offset well inside int64.
	MaxPage = math.MaxInt32
)

// Relation describes a belongs-to relation reachable through a dotted field,
// e.g. "patient.last_name" on appointments.
type Relation struct {
	Table      string
	ForeignKey string
	OwnerKey   string
}

// Definition is the per-entity listing contract.
type Definition struct {
	Table        string
	SearchFields []string
	SortFields   []string
	Relations    map[string]Relation
}

type Params struct {
	Search        string
	SortBy        string
	SortDirection Direction
	Page          int
	PerPage       int
}

func ParseParams(q url.Values) Params {
	p := Params{
		Search:        strings.TrimSpace(q.Get("search")),
		SortBy:        q.Get("sort_by"),
		SortDirection: Direction(strings.ToLower(q.Get("sort_direction"))),
		Page:          1,
		PerPage:       DefaultPerPage,
	}
	if p.SortBy == "" {
		p.SortBy = DefaultSortBy
	}
	if p.SortDirection != Asc && p.SortDirection != Desc {
		p.SortDirection = Desc
	}
	if v, err := strconv.Atoi(q.Get("page")); err == nil && v > 0 {
		p.Page = min(v, MaxPage)
	}
	if v, err := strconv.Atoi(q.Get("per_page")); err == nil && v > 0 {
		p.PerPage = v
	}
	if p.PerPage > MaxPerPage {
		p.PerPage = MaxPerPage
	}
	return p
}

// Indicator is the sort state a client should echo back on its next click:
// the field stays, the direction is flipped.
type Indicator struct {
	SortBy        string    `json:"sort_by"`
	SortDirection Direction `json:"sort_direction"`
}

func (d Definition) Indicator(p Params) Indicator {
	return Indicator{SortBy: d.sortField(p.SortBy), SortDirection: p.SortDirection.Opposite()}
}

func (d Definition) sortField(field string) string {
	for _, f := range d.SortFields {
		if f == field {
			return field
		}
	}
	return DefaultSortBy
}

func (d Definition) relationFor(field string) (Relation, string, bool) {
	name, column, ok := strings.Cut(field, ".")
	if !ok {
		return Relation{}, "", false
	}
	rel, ok := d.Relations[name]
	return rel, column, ok
}

// Search matches q case-insensitively against every search field. Dotted
// fields are matched through an EXISTS sub-query on the related table.
func Search(d Definition, q string) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		q = strings.TrimSpace(q)
		if q == "" {
			return db
		}
		pattern := "%" + strings.ToLower(q) + "%"

		var conds []string
		var args []interface{}
		for _, field := range d.SearchFields {
			if strings.Contains(field, ".") {
				rel, column, ok := d.relationFor(field)
				if !ok {
					continue
				}
				conds = append(conds, fmt.Sprintf(
					"EXISTS (SELECT 1 FROM %[1]s WHERE %[1]s.%[2]s = %[3]s.%[4]s AND %[1]s.deleted_at IS NULL AND LOWER(%[1]s.%[5]s) LIKE ?)",
					rel.Table, rel.OwnerKey, d.Table, rel.ForeignKey, column))
				args = append(args, pattern)
				continue
			}
			conds = append(conds, fmt.Sprintf("LOWER(%s.%s) LIKE ?", d.Table, field))
			args = append(args, pattern)
		}
		if len(conds) == 0 {
			return db
		}
		return db.Where("("+strings.Join(conds, " OR ")+")", args...)
	}
}

// Sort orders by the requested field and direction. Unknown fields fall back
// to created_at; dotted fields join the related table.
func Sort(d Definition, p Params) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		field := d.sortField(p.SortBy)
		desc := p.SortDirection != Asc

		if rel, column, ok := d.relationFor(field); ok {
			return db.
				Select(d.Table + ".*").
				Joins(fmt.Sprintf("LEFT JOIN %[1]s ON %[1]s.%[2]s = %[3]s.%[4]s", rel.Table, rel.OwnerKey, d.Table, rel.ForeignKey)).
				Order(clause.OrderByColumn{Column: clause.Column{Table: rel.Table, Name: column}, Desc: desc}).
				Order(clause.OrderByColumn{Column: clause.Column{Table: d.Table, Name: "id"}, Desc: desc})
		}
		return db.
			Order(clause.OrderByColumn{Column: clause.Column{Table: d.Table, Name: field}, Desc: desc}).
			Order(clause.OrderByColumn{Column: clause.Column{Table: d.Table, Name: "id"}, Desc: desc})
	}
}

func Paginate(p Params) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Offset((p.Page - 1) * p.PerPage).Limit(p.PerPage)
	}
}

type Page[T any] struct {
	Data        []T       `json:"data"`
	Total       int64     `json:"total"`
	CurrentPage int       `json:"current_page"`
	PerPage     int       `json:"per_page"`
	LastPage    int       `json:"last_page"`
	Search      string    `json:"search"`
	Sort        Indicator `json:"sort"`
}

func NewPage[T any](d Definition, p Params, data []T, total int64) Page[T] {
	lastPage := 1
	if total > 0 {
		lastPage = int((total + int64(p.PerPage) - 1) / int64(p.PerPage))
	}
	if data == nil {
		data = []T{}
	}
	return Page[T]{
		Data:        data,
		Total:       total,
		CurrentPage: p.Page,
		PerPage:     p.PerPage,
		LastPage:    lastPage,
		Search:      p.Search,
		Sort:        d.Indicator(p),
	}
}

// MapPage converts page items while keeping pagination metadata.
func MapPage[T, U any](in Page[T], fn func(T) U) Page[U] {
	out := make([]U, 0, len(in.Data))
	for _, item := range in.Data {
		out = append(out, fn(item))
	}
	return Page[U]{
		Data:        out,
		Total:       in.Total,
		CurrentPage: in.CurrentPage,
		PerPage:     in.PerPage,
		LastPage:    in.LastPage,
		Search:      in.Search,
		Sort:        in.Sort,
	}
}
