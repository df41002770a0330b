package stats

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	goerrors "github.com/goliatone/go-errors"
)

// TTLPolicy sets how long each snapshot stays cached. Tiers follow how
// often the underlying data changes.
type TTLPolicy struct {
	Currencies        time.Duration `mapstructure:"currencies"`
	FooterPages       time.Duration `mapstructure:"footer_pages"`
	FeaturedCampaigns time.Duration `mapstructure:"featured_campaigns"`
	HomepageImpact    time.Duration `mapstructure:"homepage_impact"`
	CampaignListing   time.Duration `mapstructure:"campaign_listing"`
	Widgets           time.Duration `mapstructure:"widgets"`
}

func DefaultTTLPolicy() TTLPolicy {
	return TTLPolicy{
		Currencies:        6 * time.Hour,
		FooterPages:       12 * time.Hour,
		FeaturedCampaigns: 30 * time.Minute,
		HomepageImpact:    time.Hour,
		CampaignListing:   5 * time.Minute,
		Widgets:           15 * time.Minute,
	}
}

// For returns the TTL of the named calculator.
func (p TTLPolicy) For(name string) time.Duration {
	switch name {
	case NameActiveCurrencies:
		return p.Currencies
	case NameFooterPages:
		return p.FooterPages
	case NameFeaturedCampaigns:
		return p.FeaturedCampaigns
	case NameHomepageImpact:
		return p.HomepageImpact
	case NameCampaignListing:
		return p.CampaignListing
	case NameCampaignPerformance, NameOrganizationSummary:
		return p.Widgets
	}
	return p.HomepageImpact
}

func (p TTLPolicy) Validate() error {
	minTTL := validation.Min(time.Second)
	err := validation.ValidateStruct(&p,
		validation.Field(&p.Currencies, validation.Required, minTTL),
		validation.Field(&p.FooterPages, validation.Required, minTTL),
		validation.Field(&p.FeaturedCampaigns, validation.Required, minTTL),
		validation.Field(&p.HomepageImpact, validation.Required, minTTL),
		validation.Field(&p.CampaignListing, validation.Required, minTTL),
		validation.Field(&p.Widgets, validation.Required, minTTL),
	)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid stats ttl policy")
	}
	return nil
}
