package readmodels

import (
	"time"

	"github.com/goliatone/go-readmodel-cache/readmodel"
)

const OrganizationTTL = time.Hour

const (
	FieldName            = "name"
	FieldCountry         = "country"
	FieldVerified        = "verified"
	FieldCampaignCount   = "campaign_count"
	FieldActiveCampaigns = "active_campaigns"
)

// Organization is an organization with its dashboard totals.
type Organization struct {
	readmodel.Base
}

func NewOrganization(id string, data readmodel.Data, opts ...readmodel.Option) Organization {
	all := append([]readmodel.Option{
		readmodel.WithTTL(OrganizationTTL),
		readmodel.WithTags(TagOrganizations, TagOrganizationDashboard),
	}, opts...)
	return Organization{readmodel.NewBase(KindOrganization, id, data, all...)}
}

func decodeOrganization(id, version string, data readmodel.Data) (readmodel.ReadModel, error) {
	return NewOrganization(id, data, readmodel.WithVersion(version)), nil
}

func (o Organization) Name() string         { return o.String(FieldName) }
func (o Organization) Slug() string         { return o.String(FieldSlug) }
func (o Organization) Status() string       { return o.String(FieldStatus) }
func (o Organization) Country() string      { return o.String(FieldCountry) }
func (o Organization) Verified() bool       { return o.Bool(FieldVerified) }
func (o Organization) CampaignCount() int   { return int(o.Int(FieldCampaignCount)) }
func (o Organization) ActiveCampaigns() int { return int(o.Int(FieldActiveCampaigns)) }
func (o Organization) Raised() float64      { return o.Float(FieldRaised) }
func (o Organization) DonationCount() int   { return int(o.Int(FieldDonationCount)) }
