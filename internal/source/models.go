package source

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Campaign statuses.
const (
	CampaignDraft     = "draft"
	CampaignActive    = "active"
	CampaignCompleted = "completed"
)

// Donation statuses.
const (
	DonationPending   = "pending"
	DonationCompleted = "completed"
	DonationRefunded  = "refunded"
)

// Organization statuses.
const (
	OrganizationPending  = "pending"
	OrganizationVerified = "verified"
	OrganizationActive   = "active"
)

type Organization struct {
	bun.BaseModel `bun:"table:organizations,alias:o"`

	ID        uuid.UUID `bun:"id,pk,type:uuid" json:"id"`
	Name      string    `bun:"name,notnull" json:"name"`
	Slug      string    `bun:"slug,notnull,unique" json:"slug"`
	Status    string    `bun:"status,notnull" json:"status"`
	Country   string    `bun:"country" json:"country"`
	CreatedAt time.Time `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt time.Time `bun:"updated_at,notnull" json:"updated_at"`
}

type Campaign struct {
	bun.BaseModel `bun:"table:campaigns,alias:c"`

	ID             uuid.UUID `bun:"id,pk,type:uuid" json:"id"`
	OrganizationID uuid.UUID `bun:"organization_id,type:uuid,notnull" json:"organization_id"`
	Title          string    `bun:"title,notnull" json:"title"`
	Slug           string    `bun:"slug,notnull,unique" json:"slug"`
	Status         string    `bun:"status,notnull" json:"status"`
	Currency       string    `bun:"currency,notnull" json:"currency"`
	GoalAmount     float64   `bun:"goal_amount,notnull" json:"goal_amount"`
	Featured       bool      `bun:"featured,notnull" json:"featured"`
	CreatedAt      time.Time `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt      time.Time `bun:"updated_at,notnull" json:"updated_at"`
}

type Donation struct {
	bun.BaseModel `bun:"table:donations,alias:d"`

	ID             uuid.UUID `bun:"id,pk,type:uuid" json:"id"`
	CampaignID     uuid.UUID `bun:"campaign_id,type:uuid,notnull" json:"campaign_id"`
	OrganizationID uuid.UUID `bun:"organization_id,type:uuid,notnull" json:"organization_id"`
	DonorID        string    `bun:"donor_id,notnull" json:"donor_id"`
	Amount         float64   `bun:"amount,notnull" json:"amount"`
	Currency       string    `bun:"currency,notnull" json:"currency"`
	Status         string    `bun:"status,notnull" json:"status"`
	CreatedAt      time.Time `bun:"created_at,notnull" json:"created_at"`
}

// Page is a static content page. Footer pages are published pages flagged
// for the footer, sorted by position.
type Page struct {
	bun.BaseModel `bun:"table:pages,alias:p"`

	ID        uuid.UUID `bun:"id,pk,type:uuid" json:"id"`
	Slug      string    `bun:"slug,notnull,unique" json:"slug"`
	Title     string    `bun:"title,notnull" json:"title"`
	Published bool      `bun:"published,notnull" json:"published"`
	InFooter  bool      `bun:"in_footer,notnull" json:"in_footer"`
	Position  int       `bun:"position,notnull" json:"position"`
}
