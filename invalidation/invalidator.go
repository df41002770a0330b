package invalidation

import (
	"context"
	"errors"
	"log/slog"
	"sort"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/goliatone/go-readmodel-cache/internal/logctx"
	"github.com/goliatone/go-readmodel-cache/readmodels"
)

// TagFlusher evicts cache entries by tag. *cache.Strategy implements it.
type TagFlusher interface {
	FlushTags(ctx context.Context, tags ...string) error
}

// TagSupport reports whether a flusher can evict by tag. *cache.Strategy
// implements it. A flusher without tag support falls back to a full flush
// per call, so the invalidator sends it every tag at once.
type TagSupport interface {
	SupportsTags() bool
}

// PrefixFlusher evicts cache entries by key prefix. *cache.Strategy
// implements it.
type PrefixFlusher interface {
	FlushPrefix(ctx context.Context, prefix string) (int, error)
}

// CampaignKeyPrefix is the key prefix of cached campaign repository
// entries, used by pattern based invalidation.
const CampaignKeyPrefix = "campaign:"

// Invalidator flushes the tags mapped to each event. Failures are logged per
// tag and never returned by the Invalidate methods.
type Invalidator struct {
	flusher TagFlusher
	logger  *slog.Logger
}

// Option configures an Invalidator.
type Option func(*Invalidator)

// WithLogger sets the invalidator logger.
func WithLogger(logger *slog.Logger) Option {
	return func(i *Invalidator) {
		if logger != nil {
			i.logger = logger
		}
	}
}

func NewInvalidator(flusher TagFlusher, opts ...Option) *Invalidator {
	i := &Invalidator{flusher: flusher, logger: slog.Default()}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// CampaignTags is the tag set of a campaign mutation. The organization tag is
// added when orgID is known.
func CampaignTags(campaignID, orgID string) []string {
	tags := mapset.NewThreadUnsafeSet(
		readmodels.TagCampaignAnalytics,
		readmodels.TagOrganizationDashboard,
		readmodels.TagCampaigns,
	)
	if campaignID != "" {
		tags.Add(readmodels.CampaignTag(campaignID))
	}
	if orgID != "" {
		tags.Add(readmodels.OrganizationTag(orgID))
	}
	return sorted(tags)
}

// DonationTags is the tag set of a donation mutation, widened with the
// campaign and organization scopes when those ids are known.
func DonationTags(campaignID, orgID string) []string {
	tags := mapset.NewThreadUnsafeSet(
		readmodels.TagDonationReports,
		readmodels.TagDonations,
	)
	if campaignID != "" {
		tags.Append(readmodels.CampaignTag(campaignID), readmodels.TagCampaignAnalytics)
	}
	if orgID != "" {
		tags.Append(readmodels.OrganizationTag(orgID), readmodels.TagOrganizationDashboard)
	}
	return sorted(tags)
}

// OrganizationTags is the tag set of an organization mutation.
func OrganizationTags(orgID string) []string {
	tags := mapset.NewThreadUnsafeSet(
		readmodels.TagOrganizationDashboard,
		readmodels.TagCampaigns,
		readmodels.TagDonations,
	)
	if orgID != "" {
		tags.Add(readmodels.OrganizationTag(orgID))
	}
	return sorted(tags)
}

// Tags returns the tag set for ev. Unknown entities map to nothing.
func Tags(ev Event) []string {
	switch ev.Class.Entity() {
	case EntityCampaign:
		return CampaignTags(ev.CampaignID, ev.OrganizationID)
	case EntityDonation:
		return DonationTags(ev.CampaignID, ev.OrganizationID)
	case EntityOrganization:
		return OrganizationTags(ev.OrganizationID)
	}
	return nil
}

func (i *Invalidator) InvalidateCampaign(ctx context.Context, campaignID, orgID string) {
	_ = i.flush(ctx, CampaignTags(campaignID, orgID))
}

func (i *Invalidator) InvalidateDonation(ctx context.Context, campaignID, orgID string) {
	_ = i.flush(ctx, DonationTags(campaignID, orgID))
}

func (i *Invalidator) InvalidateOrganization(ctx context.Context, orgID string) {
	_ = i.flush(ctx, OrganizationTags(orgID))
}

// InvalidateAll flushes every global tag. It evicts most of the cache and is
// meant for operator use.
func (i *Invalidator) InvalidateAll(ctx context.Context) {
	i.log(ctx).WarnContext(ctx, "flushing all read model tags")
	_ = i.flush(ctx, readmodels.GlobalTags())
}

// Handle flushes the tags of ev, logging failures.
func (i *Invalidator) Handle(ctx context.Context, ev Event) {
	_ = i.Apply(ctx, ev)
}

// Apply flushes the tags of ev and returns the joined flush errors. Every
// tag is attempted even when an earlier one fails.
func (i *Invalidator) Apply(ctx context.Context, ev Event) error {
	tags := Tags(ev)
	if len(tags) == 0 {
		i.log(ctx).WarnContext(ctx, "no invalidation mapping for event", ev.LogAttrs()...)
		return nil
	}
	return i.flush(logctx.WithLogger(ctx, i.log(ctx).With("event_class", string(ev.Class))), tags)
}

// InvalidatePattern evicts every entry whose key starts with prefix. It
// needs a flusher that also implements PrefixFlusher.
func (i *Invalidator) InvalidatePattern(ctx context.Context, prefix string) error {
	pf, ok := i.flusher.(PrefixFlusher)
	if !ok {
		i.log(ctx).WarnContext(ctx, "prefix eviction unsupported, flushing campaign tags", "prefix", prefix)
		return i.flush(ctx, []string{readmodels.TagCampaigns, string(readmodels.KindCampaign)})
	}
	n, err := pf.FlushPrefix(ctx, prefix)
	if err != nil {
		i.log(ctx).ErrorContext(ctx, "prefix eviction failed", "prefix", prefix, "error", err)
		return err
	}
	i.log(ctx).DebugContext(ctx, "prefix evicted", "prefix", prefix, "keys", n)
	return nil
}

func (i *Invalidator) flush(ctx context.Context, tags []string) error {
	if ts, ok := i.flusher.(TagSupport); ok && !ts.SupportsTags() {
		if err := i.flusher.FlushTags(ctx, tags...); err != nil {
			i.log(ctx).WarnContext(ctx, "cache flush failed", "tags", tags, "error", err)
			return err
		}
		return nil
	}

	var errs []error
	for _, tag := range tags {
		if err := i.flusher.FlushTags(ctx, tag); err != nil {
			i.log(ctx).WarnContext(ctx, "cache tag flush failed", "tag", tag, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (i *Invalidator) log(ctx context.Context) *slog.Logger {
	return logctx.FromContextOr(ctx, i.logger)
}

func sorted(s mapset.Set[string]) []string {
	out := s.ToSlice()
	sort.Strings(out)
	return out
}
