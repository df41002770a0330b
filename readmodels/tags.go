// Package readmodels holds the concrete read models of the donation platform
// and the builders that project them from the authoritative store.
package readmodels

import (
	"github.com/goliatone/go-readmodel-cache/readmodel"
)

// Read model kinds.
const (
	KindCampaign      readmodel.Kind = "campaign"
	KindOrganization  readmodel.Kind = "organization"
	KindStatsSnapshot readmodel.Kind = "stats_snapshot"
)

// Cache tags shared by read models and invalidation. A read model must carry
// every tag whose flush should evict it.
const (
	TagCampaigns             = "campaigns"
	TagCampaignAnalytics     = "campaign_analytics"
	TagOrganizations         = "organizations"
	TagOrganizationDashboard = "organization_dashboard"
	TagDonations             = "donations"
	TagDonationReports       = "donation_reports"
	TagPageStats             = "page_stats"
	TagCurrencies            = "currencies"
	TagPages                 = "pages"
)

// CampaignTag scopes a tag to one campaign.
func CampaignTag(id string) string {
	return string(KindCampaign) + ":" + id
}

// OrganizationTag scopes a tag to one organization.
func OrganizationTag(id string) string {
	return string(KindOrganization) + ":" + id
}

// GlobalTags is every unscoped tag, flushed by a global invalidation.
func GlobalTags() []string {
	return []string{
		TagCampaigns,
		TagCampaignAnalytics,
		TagOrganizations,
		TagOrganizationDashboard,
		TagDonations,
		TagDonationReports,
		TagPageStats,
		TagCurrencies,
		TagPages,
		string(KindCampaign),
		string(KindOrganization),
		string(KindStatsSnapshot),
	}
}
