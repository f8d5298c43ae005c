package models

import (
	"strconv"
	"strings"
	"time"
)

// Book availability statuses. The persisted value is a cache of the derived
// status; see the circulation service.
const (
	BookStatusAvailable = "available"
	BookStatusBorrowed  = "borrowed"
)

// ItemRefKind tags which identifier space an ItemRef belongs to.
type ItemRefKind int

const (
	ItemRefLocal ItemRefKind = iota
	ItemRefExternal
)

// ItemRef is a reference to a catalog item: either a local numeric id or an
// opaque external catalog id (Google Books volume id or an OL_-prefixed
// Open Library work id). It is parsed exactly once at the API boundary and
// resolved to a local id before any circulation logic runs.
type ItemRef struct {
	Kind       ItemRefKind
	LocalID    int32
	ExternalID string
}

// ParseItemRef classifies a raw item identifier from a request.
func ParseItemRef(raw string) (ItemRef, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ItemRef{}, ErrInvalidItemRef
	}
	if id, err := strconv.ParseInt(raw, 10, 32); err == nil {
		if id <= 0 {
			return ItemRef{}, ErrInvalidItemRef
		}
		return ItemRef{Kind: ItemRefLocal, LocalID: int32(id)}, nil
	}
	return ItemRef{Kind: ItemRefExternal, ExternalID: raw}, nil
}

func (r ItemRef) String() string {
	if r.Kind == ItemRefLocal {
		return strconv.FormatInt(int64(r.LocalID), 10)
	}
	return r.ExternalID
}

// BookResponse is the catalog item shape returned to clients.
type BookResponse struct {
	ID            int32     `json:"id"`
	ExternalID    *string   `json:"external_id,omitempty"`
	Title         string    `json:"title"`
	Author        string    `json:"author"`
	ISBN          *string   `json:"isbn,omitempty"`
	PublishedYear *int32    `json:"published_year,omitempty"`
	CoverImageURL *string   `json:"cover_image_url,omitempty"`
	Description   *string   `json:"description,omitempty"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
