package readmodels

import (
	"time"

	"github.com/goliatone/go-readmodel-cache/readmodel"
)

// CampaignTTL is the lifetime of a cached campaign.
const CampaignTTL = 30 * time.Minute

// Campaign field names.
const (
	FieldTitle            = "title"
	FieldSlug             = "slug"
	FieldStatus           = "status"
	FieldCurrency         = "currency"
	FieldGoal             = "goal_amount"
	FieldRaised           = "raised"
	FieldProgress         = "progress"
	FieldDonationCount    = "donation_count"
	FieldDonorCount       = "donor_count"
	FieldFeatured         = "featured"
	FieldOrganizationID   = "organization_id"
	FieldOrganizationName = "organization_name"
	FieldCreatedAt        = "created_at"
)

// Campaign is a campaign with its fundraising totals.
type Campaign struct {
	readmodel.Base
}

// NewCampaign builds a Campaign. It is tagged with its organization when
// data carries organization_id.
func NewCampaign(id string, data readmodel.Data, opts ...readmodel.Option) Campaign {
	tags := []string{TagCampaigns, TagCampaignAnalytics}
	if orgID, ok := data[FieldOrganizationID].(string); ok && orgID != "" {
		tags = append(tags, OrganizationTag(orgID))
	}
	all := append([]readmodel.Option{readmodel.WithTTL(CampaignTTL), readmodel.WithTags(tags...)}, opts...)
	return Campaign{readmodel.NewBase(KindCampaign, id, data, all...)}
}

func decodeCampaign(id, version string, data readmodel.Data) (readmodel.ReadModel, error) {
	return NewCampaign(id, data, readmodel.WithVersion(version)), nil
}

func (c Campaign) Title() string          { return c.String(FieldTitle) }
func (c Campaign) Slug() string           { return c.String(FieldSlug) }
func (c Campaign) Status() string         { return c.String(FieldStatus) }
func (c Campaign) Currency() string       { return c.String(FieldCurrency) }
func (c Campaign) OrganizationID() string { return c.String(FieldOrganizationID) }
func (c Campaign) Goal() float64          { return c.Float(FieldGoal) }
func (c Campaign) Raised() float64        { return c.Float(FieldRaised) }
func (c Campaign) DonationCount() int     { return int(c.Int(FieldDonationCount)) }
func (c Campaign) DonorCount() int        { return int(c.Int(FieldDonorCount)) }
func (c Campaign) Featured() bool         { return c.Bool(FieldFeatured) }

// Progress is the raised share of the goal in percent, capped at 100.
func (c Campaign) Progress() float64 {
	return c.Float(FieldProgress)
}

// CreatedAt returns the creation time stored as unix seconds.
func (c Campaign) CreatedAt() time.Time {
	return time.Unix(c.Int(FieldCreatedAt), 0)
}

// Percent is raised as a share of goal in percent, capped at 100 and
// truncated to two decimals. A zero goal yields zero.
func Percent(raised, goal float64) float64 {
	if goal <= 0 {
		return 0
	}
	p := raised / goal * 100
	if p > 100 {
		p = 100
	}
	return float64(int(p*100)) / 100
}
