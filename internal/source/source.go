// Package source is the authoritative data access used by read model
// builders. Entity access goes through go-repository-bun repositories;
// aggregates are plain bun queries.
package source

import (
	"context"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Source bundles the entity repositories and the database they share.
type Source struct {
	db            *bun.DB
	Organizations repository.Repository[*Organization]
	Campaigns     repository.Repository[*Campaign]
	Donations     repository.Repository[*Donation]
	Pages         repository.Repository[*Page]
}

// New creates the repositories over db.
func New(db *bun.DB) *Source {
	return &Source{
		db:            db,
		Organizations: NewOrganizationRepository(db),
		Campaigns:     NewCampaignRepository(db),
		Donations:     NewDonationRepository(db),
		Pages:         NewPageRepository(db),
	}
}

// DB returns the underlying database.
func (s *Source) DB() *bun.DB {
	return s.db
}

// CreateSchema creates every table when missing.
func (s *Source) CreateSchema(ctx context.Context) error {
	models := []any{
		(*Organization)(nil),
		(*Campaign)(nil),
		(*Donation)(nil),
		(*Page)(nil),
	}
	for _, model := range models {
		if _, err := s.db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return err
		}
	}
	return nil
}

func NewOrganizationRepository(db *bun.DB) repository.Repository[*Organization] {
	handlers := repository.ModelHandlers[*Organization]{
		NewRecord: func() *Organization {
			return &Organization{}
		},
		GetID: func(record *Organization) uuid.UUID {
			return record.ID
		},
		SetID: func(record *Organization, id uuid.UUID) {
			record.ID = id
		},
		GetIdentifier: func() string {
			return "slug"
		},
	}
	return repository.NewRepository[*Organization](db, handlers)
}

func NewCampaignRepository(db *bun.DB) repository.Repository[*Campaign] {
	handlers := repository.ModelHandlers[*Campaign]{
		NewRecord: func() *Campaign {
			return &Campaign{}
		},
		GetID: func(record *Campaign) uuid.UUID {
			return record.ID
		},
		SetID: func(record *Campaign, id uuid.UUID) {
			record.ID = id
		},
		GetIdentifier: func() string {
			return "slug"
		},
	}
	return repository.NewRepository[*Campaign](db, handlers)
}

func NewDonationRepository(db *bun.DB) repository.Repository[*Donation] {
	handlers := repository.ModelHandlers[*Donation]{
		NewRecord: func() *Donation {
			return &Donation{}
		},
		GetID: func(record *Donation) uuid.UUID {
			return record.ID
		},
		SetID: func(record *Donation, id uuid.UUID) {
			record.ID = id
		},
		GetIdentifier: func() string {
			return "id"
		},
	}
	return repository.NewRepository[*Donation](db, handlers)
}

func NewPageRepository(db *bun.DB) repository.Repository[*Page] {
	handlers := repository.ModelHandlers[*Page]{
		NewRecord: func() *Page {
			return &Page{}
		},
		GetID: func(record *Page) uuid.UUID {
			return record.ID
		},
		SetID: func(record *Page, id uuid.UUID) {
			record.ID = id
		},
		GetIdentifier: func() string {
			return "slug"
		},
	}
	return repository.NewRepository[*Page](db, handlers)
}
