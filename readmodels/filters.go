package readmodels

import (
	"fmt"
	"sort"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-readmodel-cache/internal/source"
	"github.com/goliatone/go-readmodel-cache/repositorycache"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

// ErrUnknownFilter is returned for a filter a builder does not support.
var ErrUnknownFilter = goerrors.New("unknown read model filter", goerrors.CategoryBadInput).
	WithTextCode("READMODEL_UNKNOWN_FILTER")

type filterKind int

const (
	filterString filterKind = iota
	filterBool
	filterUUID
)

// filterSpec maps filter names to columns of the queried table.
type filterSpec map[string]filterKind

var campaignFilters = filterSpec{
	FieldStatus:         filterString,
	FieldCurrency:       filterString,
	FieldFeatured:       filterBool,
	FieldOrganizationID: filterUUID,
}

var organizationFilters = filterSpec{
	FieldStatus:  filterString,
	FieldCountry: filterString,
}

// criteria turns filters into select criteria in sorted key order.
func (s filterSpec) criteria(filters repositorycache.Filters) ([]repository.SelectCriteria, error) {
	keys := make([]string, 0, len(filters))
	for k := range filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]repository.SelectCriteria, 0, len(keys))
	for _, key := range keys {
		kind, ok := s[key]
		if !ok {
			return nil, goerrors.Wrap(ErrUnknownFilter, goerrors.CategoryBadInput, fmt.Sprintf("filter %q", key))
		}
		value, err := coerceFilter(kind, filters[key])
		if err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryBadInput, fmt.Sprintf("filter %q", key))
		}
		out = append(out, source.WhereEq(key, value))
	}
	return out, nil
}

func coerceFilter(kind filterKind, v any) (any, error) {
	switch kind {
	case filterBool:
		switch b := v.(type) {
		case bool:
			return b, nil
		case string:
			return b == "true" || b == "1", nil
		}
	case filterUUID:
		switch id := v.(type) {
		case uuid.UUID:
			return id, nil
		case string:
			return uuid.Parse(id)
		}
	default:
		if s, ok := v.(string); ok {
			return s, nil
		}
		return fmt.Sprint(v), nil
	}
	return nil, fmt.Errorf("unsupported value %v", v)
}
