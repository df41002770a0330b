// Package invalidation maps domain events to cache tags. The Invalidator
// flushes them inline; the Dispatcher defers them to a queue with delay
// tiers so bursts of events on the same entity coalesce.
package invalidation

import (
	"strings"
	"time"
)

// Entity names the kind of record an event is about.
type Entity string

const (
	EntityCampaign     Entity = "campaign"
	EntityDonation     Entity = "donation"
	EntityOrganization Entity = "organization"
)

// Class is an event class in "<entity>.<action>" form.
type Class string

const (
	CampaignCreated   Class = "campaign.created"
	CampaignUpdated   Class = "campaign.updated"
	CampaignActivated Class = "campaign.activated"
	CampaignCompleted Class = "campaign.completed"
	CampaignDeleted   Class = "campaign.deleted"

	DonationCreated   Class = "donation.created"
	DonationUpdated   Class = "donation.updated"
	DonationCompleted Class = "donation.completed"
	DonationRefunded  Class = "donation.refunded"
	DonationDeleted   Class = "donation.deleted"

	OrganizationCreated   Class = "organization.created"
	OrganizationUpdated   Class = "organization.updated"
	OrganizationVerified  Class = "organization.verified"
	OrganizationActivated Class = "organization.activated"
	OrganizationDeleted   Class = "organization.deleted"
)

// Event actions.
const (
	ActionCreated   = "created"
	ActionUpdated   = "updated"
	ActionActivated = "activated"
	ActionCompleted = "completed"
	ActionVerified  = "verified"
	ActionRefunded  = "refunded"
	ActionDeleted   = "deleted"
)

// Entity returns the part of the class before the first dot.
func (c Class) Entity() Entity {
	entity, _, _ := strings.Cut(string(c), ".")
	return Entity(entity)
}

// Action returns the part of the class after the first dot.
func (c Class) Action() string {
	_, action, _ := strings.Cut(string(c), ".")
	return action
}

// Event is a domain mutation. Only the identifiers known to the emitter are
// set.
type Event struct {
	Class          Class     `msgpack:"class" json:"class"`
	CampaignID     string    `msgpack:"campaign_id,omitempty" json:"campaign_id,omitempty"`
	OrganizationID string    `msgpack:"organization_id,omitempty" json:"organization_id,omitempty"`
	DonationID     string    `msgpack:"donation_id,omitempty" json:"donation_id,omitempty"`
	EmittedAt      time.Time `msgpack:"emitted_at" json:"emitted_at"`
}

// EntityID returns the identifier of the record the event is about.
func (e Event) EntityID() string {
	switch e.Class.Entity() {
	case EntityCampaign:
		return e.CampaignID
	case EntityDonation:
		return e.DonationID
	case EntityOrganization:
		return e.OrganizationID
	}
	return ""
}

// LogAttrs returns the event as slog key value pairs.
func (e Event) LogAttrs() []any {
	return []any{
		"event_class", string(e.Class),
		"campaign_id", e.CampaignID,
		"organization_id", e.OrganizationID,
		"donation_id", e.DonationID,
		"emitted_at", e.EmittedAt,
	}
}
