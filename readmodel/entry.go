package readmodel

import (
	"fmt"
	"time"
)

// Entry is the persisted cache representation of a read model.
type Entry struct {
	Class    Kind   `json:"class" msgpack:"class"`
	Data     Data   `json:"data" msgpack:"data"`
	Version  string `json:"version" msgpack:"version"`
	CachedAt int64  `json:"cached_at" msgpack:"cached_at"`
}

// Serialize converts rm into its cache entry.
func Serialize(rm ReadModel, now time.Time) Entry {
	return Entry{
		Class:    rm.Kind(),
		Data:     rm.ToMap(),
		Version:  rm.Version(),
		CachedAt: now.Unix(),
	}
}

// split pulls id and version back out of the data map.
func (e Entry) split() (id string, version string, fields Data, err error) {
	if e.Class == "" || e.Data == nil {
		return "", "", nil, ErrMalformedEntry
	}

	fields = e.Data.Clone()

	rawID, ok := fields[FieldID]
	if !ok || rawID == nil {
		return "", "", nil, fmt.Errorf("%w: missing %q", ErrMalformedEntry, FieldID)
	}
	switch v := rawID.(type) {
	case string:
		id = v
	default:
		n, ok := ToInt64(v)
		if !ok {
			return "", "", nil, fmt.Errorf("%w: invalid %q", ErrMalformedEntry, FieldID)
		}
		id = fmt.Sprintf("%d", n)
	}
	delete(fields, FieldID)

	version = e.Version
	if v, ok := fields[FieldVersion].(string); ok && v != "" {
		version = v
	}
	delete(fields, FieldVersion)

	if version == "" {
		return "", "", nil, fmt.Errorf("%w: missing %q", ErrMalformedEntry, FieldVersion)
	}

	return id, version, fields, nil
}
