// Package audit stamps rows with the acting user. Every mutating service call
// receives the actor explicitly; a nil actor means no authenticated user, in
// which case stamping is skipped.
package audit

// Actor is the authenticated user performing a mutation.
type Actor struct {
	ID       int64
	FullName string
}

func (a *Actor) idPtr() *int64 {
	if a == nil {
		return nil
	}
	id := a.ID
	return &id
}

// Stamps is embedded in every audited row.
type Stamps struct {
	CreatedByID *int64 `gorm:"column:created_by_id" json:"created_by_id"`
	UpdatedByID *int64 `gorm:"column:updated_by_id" json:"updated_by_id"`
	DeletedByID *int64 `gorm:"column:deleted_by_id" json:"deleted_by_id,omitempty"`
}

func StampCreate(s *Stamps, actor *Actor) {
	if actor == nil {
		return
	}
	s.CreatedByID = actor.idPtr()
	s.UpdatedByID = actor.idPtr()
}

func StampUpdate(s *Stamps, actor *Actor) {
	if actor == nil {
		return
	}
	s.UpdatedByID = actor.idPtr()
}

func StampDelete(s *Stamps, actor *Actor) {
	if actor == nil {
		return
	}
	s.DeletedByID = actor.idPtr()
}

// StampRestore clears the delete marker owner.
func StampRestore(s *Stamps, actor *Actor) {
	s.DeletedByID = nil
	StampUpdate(s, actor)
}
