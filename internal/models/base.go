package models

import (
	"github.com/google/uuid"
)

type IBase interface {
	GenIDIfEmpty()
	GenID()
	SetID(id uuid.UUID)
}

type Base struct {
	ID uuid.UUID `bson:"_id,omitempty" json:"id,omitempty"`
}

func (m *Base) GenIDIfEmpty() {
	if m.ID == uuid.Nil {
		m.GenID()
	}
}

func (m *Base) GenID() {
	m.ID = uuid.New()
}

func (m *Base) SetID(id uuid.UUID) {
	m.ID = id
}

func NewBase() Base {
	return Base{
		ID: uuid.New(),
	}
}
