package readmodels

import (
	"sort"
	"time"

	"github.com/goliatone/go-readmodel-cache/readmodel"
)

// Reserved snapshot fields. Stats snapshots get their TTL and tags from the
// calculator that built them, so both travel with the cached data.
const (
	fieldSnapshotTTL  = "_ttl_ms"
	fieldSnapshotTags = "_tags"
)

// StatsSnapshot caches the output of a stats calculator. Its id is the
// calculator name plus any scope, for example "campaign_performance:7".
type StatsSnapshot struct {
	readmodel.Base
}

// NewStatsSnapshot wraps data. The caller supplies TTL and tags, which vary
// per calculator.
func NewStatsSnapshot(id string, data map[string]any, opts ...readmodel.Option) StatsSnapshot {
	b := readmodel.NewBase(KindStatsSnapshot, id, readmodel.Data(data), opts...)

	fields := b.ToMap()
	tags := b.CacheTags().ToSlice()
	sort.Strings(tags)
	fields[fieldSnapshotTTL] = b.CacheTTL().Milliseconds()
	fields[fieldSnapshotTags] = tags

	all := make([]readmodel.Option, 0, len(opts)+1)
	all = append(all, opts...)
	all = append(all, readmodel.WithVersion(b.Version()))
	return StatsSnapshot{readmodel.NewBase(KindStatsSnapshot, id, fields, all...)}
}

func decodeStatsSnapshot(id, version string, data readmodel.Data) (readmodel.ReadModel, error) {
	opts := []readmodel.Option{readmodel.WithVersion(version)}
	if ms, ok := readmodel.ToInt64(data[fieldSnapshotTTL]); ok && ms > 0 {
		opts = append(opts, readmodel.WithTTL(time.Duration(ms)*time.Millisecond))
	}
	if tags := stringList(data[fieldSnapshotTags]); len(tags) > 0 {
		opts = append(opts, readmodel.WithTags(tags...))
	}
	return NewStatsSnapshot(id, data, opts...), nil
}

func stringList(v any) []string {
	switch list := v.(type) {
	case []string:
		return list
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// Map returns the snapshot fields.
func (s StatsSnapshot) Map() map[string]any {
	out := s.ToMap()
	delete(out, readmodel.FieldID)
	delete(out, readmodel.FieldVersion)
	delete(out, fieldSnapshotTTL)
	delete(out, fieldSnapshotTags)
	return out
}

// NewRegistry returns a registry able to decode every read model kind in
// this package.
func NewRegistry() *readmodel.Registry {
	r := readmodel.NewRegistry()
	r.Register(KindCampaign, decodeCampaign)
	r.Register(KindOrganization, decodeOrganization)
	r.Register(KindStatsSnapshot, decodeStatsSnapshot)
	return r
}
