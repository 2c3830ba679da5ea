package sync

import (
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"

	"driftnote/internal/domain"
	"driftnote/internal/domain/models"
)

const (
	maxTitleLength = 512
	maxNameLength  = 256
	maxTagLength   = 128
	maxTagCount    = 64
)

func validateDocument(doc *models.Document) error {
	err := validation.ValidateStruct(doc,
		validation.Field(&doc.ID, validation.Required, validation.By(notNilUUID)),
		validation.Field(&doc.Title, validation.Length(0, maxTitleLength)),
		validation.Field(&doc.Version, validation.Min(0)),
		validation.Field(&doc.Tags, validation.Length(0, maxTagCount), validation.Each(validation.Length(1, maxTagLength))),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	return nil
}

func validateWorkspace(ws *models.Workspace) error {
	err := validation.ValidateStruct(ws,
		validation.Field(&ws.ID, validation.Required, validation.By(notNilUUID)),
		validation.Field(&ws.Name, validation.Required, validation.Length(1, maxNameLength)),
		validation.Field(&ws.Version, validation.Min(0)),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	return nil
}

func notNilUUID(value interface{}) error {
	id, ok := value.(uuid.UUID)
	if !ok || id == uuid.Nil {
		return fmt.Errorf("must be a non-nil uuid")
	}
	return nil
}
