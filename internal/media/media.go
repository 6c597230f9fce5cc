// Package media stores entity avatars on an afero filesystem and tracks them
// in the media table.
package media

import (
	"strconv"
	"time"

	"github.com/frahmantamala/clinic-management/internal/activity"
	mediaDatamodel "github.com/frahmantamala/clinic-management/internal/core/datamodel/media"
)

const (
	CollectionAvatar = "avatar"
	FormField        = "avatar"

	DefaultMaxAvatarSize int64 = 2 * 1024 * 1024
)

// LoggedAttributes are the media fields whose changes land in the activity log.
var LoggedAttributes = []string{"file_name", "collection_name"}

var allowedImageTypes = []string{
	"image/jpeg",
	"image/png",
	"image/gif",
	"image/webp",
	"image/bmp",
	"image/svg+xml",
}

// entityKinds maps the URL entity segment to the owning kind.
var entityKinds = map[string]activity.Kind{
	"users":    activity.KindUser,
	"patients": activity.KindPatient,
}

func KindForEntity(entity string) (activity.Kind, bool) {
	kind, ok := entityKinds[entity]
	return kind, ok
}

type Media struct {
	ID             int64     `json:"id"`
	OwnerKind      string    `json:"model_type"`
	OwnerID        int64     `json:"model_id"`
	CollectionName string    `json:"collection_name"`
	FileName       string    `json:"file_name"`
	MimeType       string    `json:"mime_type"`
	Size           int64     `json:"size"`
	URL            string    `json:"url"`
	CreatedAt      time.Time `json:"created_at"`
}

func snapshot(m *mediaDatamodel.Media) map[string]any {
	return map[string]any{
		"file_name":       m.FileName,
		"collection_name": m.CollectionName,
	}
}

func kilobytes(bytes int64) string {
	return strconv.FormatInt(bytes/1024, 10)
}
