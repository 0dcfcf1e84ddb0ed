package models

import (
	"time"

	"github.com/google/uuid"
)

// ItemRef is the ephemeral reference produced by parsing one search page:
// a binary URL, the canonical photo page it was found on, and a caption
// hint. It is consumed exactly once by the pipeline and never persisted.
type ItemRef struct {
	ImageURL string
	PageURL  string
	Caption  string
}

// Item carries one ItemRef through the pipeline and accumulates the
// products of each stage.
type Item struct {
	ID     string
	Ref    ItemRef
	Status ItemState

	// Stable identifier extracted from the image URL, set by the dedup
	// pre-stage before the item enters any pool.
	ImageID string

	// Set by the metadata stage.
	Metadata    *Metadata
	DownloadURL string

	// Set by the download stage.
	LocalPath string
	Digest    string
	Bytes     int64

	Error error
}

func NewItem(ref ItemRef) *Item {
	return &Item{
		ID:     uuid.New().String(),
		Ref:    ref,
		Status: ItemDiscovered,
	}
}

func (i *Item) GetShortID() string {
	return i.ID[:5]
}

func (i *Item) SetStatus(status ItemState) {
	i.Status = status
}

func (i *Item) GetStatus() ItemState {
	return i.Status
}

// Metadata is the structured record extracted from a photo page by the
// parser collaborator.
type Metadata struct {
	Title        string
	Description  string
	Author       string
	License      string
	CameraMake   string
	CameraModel  string
	FocalLength  string
	Aperture     string
	ShutterSpeed string
	TakenDate    string
	UploadDate   string
	HighResURL   string
	Tags         []string
	Albums       []Association
	Collections  []Association
}

// Association is a named link to an album or collection page.
type Association struct {
	Name string
	URL  string
}

// Record is the durable form of a successfully validated item, written to
// the state store in a single transaction together with its associations.
type Record struct {
	URL       string
	ImageID   string
	PageURL   string
	LocalPath string
	Digest    string
	Bytes     int64
	Metadata  *Metadata
	SavedAt   time.Time
}
