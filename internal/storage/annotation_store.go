package storage

import "context"

// Annotation is the viewer's mark on an event.
type Annotation struct {
	Key       string `json:"key"`
	Favorite  bool   `json:"favorite"`
	Note      string `json:"note,omitempty"`
	UpdatedAt int64  `json:"updated_at"` // epoch ms
}

// Empty reports whether the annotation carries nothing.
func (a Annotation) Empty() bool {
	return !a.Favorite && a.Note == ""
}

// AnnotationStore keeps favorites and notes keyed by event key.
type AnnotationStore interface {
	// SetFavorite marks or unmarks an event.
	SetFavorite(ctx context.Context, key string, favorite bool) error

	// SetNote replaces the note of an event. An empty note removes it.
	SetNote(ctx context.Context, key, note string) error

	// Get returns the annotation of an event. Returns ErrNotFound if none.
	Get(ctx context.Context, key string) (Annotation, error)

	// Snapshot returns every non-empty annotation keyed by event key.
	Snapshot(ctx context.Context) (map[string]Annotation, error)
}
