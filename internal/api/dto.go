package api

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/notechain/internal/models"
	"github.com/starford/notechain/internal/noteservice"
)

// NoteRequest is the request body for creating or replacing a note.
type NoteRequest struct {
	Kind   models.Kind   `json:"kind" example:"NOTE"`
	Folder models.Folder `json:"folder" example:"NOTES"`
	Title  string        `json:"title" example:"Groceries" validate:"required"`
	Body   string        `json:"body" example:"milk, eggs"`
	Spans  []models.Span `json:"spans"`
	Items  []models.Item `json:"items"`
	Labels []string      `json:"labels"`
	Pinned bool          `json:"pinned"`
}

// Validate validates the request shape. Span ranges are checked by the service.
func (r NoteRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Title, validation.Length(0, 1000)),
		validation.Field(&r.Kind, validation.In(models.KindText, models.KindChecklist)),
		validation.Field(&r.Folder, validation.In(models.FolderNotes, models.FolderArchived, models.FolderDeleted)),
		validation.Field(&r.Labels, validation.Each(validation.Required, validation.Length(1, 200))),
	)
}

// Note converts the request into an unsaved note.
func (r NoteRequest) Note() *models.Note {
	return &models.Note{
		Kind:   r.Kind,
		Folder: r.Folder,
		Title:  r.Title,
		Body:   r.Body,
		Spans:  r.Spans,
		Items:  r.Items,
		Labels: r.Labels,
		Pinned: r.Pinned,
	}
}

// MoveRequest is the request body for moving a note between folders.
type MoveRequest struct {
	Folder models.Folder `json:"folder" example:"ARCHIVED" validate:"required"`
}

// Validate validates the request.
func (r MoveRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Folder, validation.Required, validation.In(models.FolderNotes, models.FolderArchived, models.FolderDeleted)),
	)
}

// LabelRequest is the request body for creating or renaming a label.
type LabelRequest struct {
	Name string `json:"name" example:"work" validate:"required"`
}

// Validate validates the request.
func (r LabelRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Required, validation.Length(1, 200)),
	)
}

// NoteDetail is the full note response type (aliased from the domain layer).
type NoteDetail = noteservice.NoteDetail

// NoteListResponse wraps paginated note listings.
type NoteListResponse struct {
	Notes []models.NoteSummary `json:"notes" validate:"required"`
	Total int                  `json:"total" example:"42" validate:"required"`
}

// ChainResponse lists the parts of a split note, head first.
type ChainResponse struct {
	Parts []*NoteDetail `json:"parts" validate:"required"`
}

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []models.SearchResult `json:"results" validate:"required"`
}

// LabelsResponse wraps the label catalogue.
type LabelsResponse struct {
	Labels []string `json:"labels" validate:"required"`
}

// RelabelResponse reports how many notes a label mutation touched.
type RelabelResponse struct {
	Notes int `json:"notes" example:"3" validate:"required"`
}
