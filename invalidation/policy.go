package invalidation

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	goerrors "github.com/goliatone/go-errors"
)

// Policy sets the delay tiers and the retry options of queued invalidation.
type Policy struct {
	// CriticalDelay applies to donation.completed, campaign.completed and
	// organization.verified.
	CriticalDelay time.Duration `mapstructure:"critical_delay"`

	// HighDelay applies to created and activated events.
	HighDelay time.Duration `mapstructure:"high_delay"`

	// UpdatedDelay applies to updated events.
	UpdatedDelay time.Duration `mapstructure:"updated_delay"`

	// DefaultDelay applies to every other event.
	DefaultDelay time.Duration `mapstructure:"default_delay"`

	// CascadeOffset is added to the event delay for cascaded jobs.
	CascadeOffset time.Duration `mapstructure:"cascade_offset"`

	// BatchStagger separates the entity groups of a batch.
	BatchStagger time.Duration `mapstructure:"batch_stagger"`

	Tries   int             `mapstructure:"tries"`
	Backoff []time.Duration `mapstructure:"backoff"`
	Timeout time.Duration   `mapstructure:"timeout"`
}

// DefaultPolicy returns the production delay tiers.
func DefaultPolicy() Policy {
	return Policy{
		CriticalDelay: 0,
		HighDelay:     5 * time.Second,
		UpdatedDelay:  15 * time.Second,
		DefaultDelay:  30 * time.Second,
		CascadeOffset: 5 * time.Second,
		BatchStagger:  5 * time.Second,
		Tries:         3,
		Backoff:       []time.Duration{5 * time.Second, 15 * time.Second, 30 * time.Second},
		Timeout:       60 * time.Second,
	}
}

var criticalClasses = map[Class]bool{
	DonationCompleted:    true,
	CampaignCompleted:    true,
	OrganizationVerified: true,
}

// DelayFor returns the delay tier of class.
func (p Policy) DelayFor(class Class) time.Duration {
	if criticalClasses[class] {
		return p.CriticalDelay
	}
	switch class.Action() {
	case ActionCreated, ActionActivated:
		return p.HighDelay
	case ActionUpdated:
		return p.UpdatedDelay
	}
	return p.DefaultDelay
}

// Validate checks the policy values.
func (p Policy) Validate() error {
	nonNegative := validation.Min(time.Duration(0))
	err := validation.ValidateStruct(&p,
		validation.Field(&p.CriticalDelay, nonNegative),
		validation.Field(&p.HighDelay, nonNegative),
		validation.Field(&p.UpdatedDelay, nonNegative),
		validation.Field(&p.DefaultDelay, nonNegative),
		validation.Field(&p.CascadeOffset, nonNegative),
		validation.Field(&p.BatchStagger, nonNegative),
		validation.Field(&p.Tries, validation.Required, validation.Min(1)),
		validation.Field(&p.Backoff, validation.Each(nonNegative)),
		validation.Field(&p.Timeout, validation.Required, validation.Min(time.Second)),
	)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid invalidation policy")
	}
	return nil
}
