package invalidation

import (
	"context"

	"github.com/goliatone/go-readmodel-cache/internal/source"
	"github.com/google/uuid"
)

// SourceResolver checks events against the authoritative store.
type SourceResolver struct {
	src *source.Source
}

var _ ModelResolver = (*SourceResolver)(nil)

func NewSourceResolver(src *source.Source) *SourceResolver {
	return &SourceResolver{src: src}
}

// Exists reports whether the record exists. Ids that are not UUIDs never
// exist. Unknown entities are assumed to exist.
func (r *SourceResolver) Exists(ctx context.Context, entity Entity, id string) (bool, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return false, nil
	}
	byID := source.WhereIDIn([]uuid.UUID{parsed})

	var n int
	switch entity {
	case EntityCampaign:
		n, err = r.src.Campaigns.Count(ctx, byID)
	case EntityDonation:
		n, err = r.src.Donations.Count(ctx, byID)
	case EntityOrganization:
		n, err = r.src.Organizations.Count(ctx, byID)
	default:
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
