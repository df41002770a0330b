package repositorycache

import (
	"context"
	"strings"
	"unicode"
)

type cacheTagsKey struct{}

// WithCacheTags attaches tags that a Repository adds to every entry it
// writes during calls made with the returned context. Tags accumulate across
// nested calls.
func WithCacheTags(ctx context.Context, tags ...string) context.Context {
	merged := dedupeStrings(append(cacheTagsFromContext(ctx), tags...))
	if len(merged) == 0 {
		return ctx
	}
	return context.WithValue(ctx, cacheTagsKey{}, merged)
}

func cacheTagsFromContext(ctx context.Context) []string {
	tags, _ := ctx.Value(cacheTagsKey{}).([]string)
	if len(tags) == 0 {
		return nil
	}
	return append([]string(nil), tags...)
}

// kindPrefix turns a read model kind into a snake_case key prefix.
// "StatsSnapshot" and "stats-snapshot" both give "stats_snapshot".
func kindPrefix(kind string) string {
	var words []string
	fields := strings.FieldsFunc(kind, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, field := range fields {
		words = append(words, splitWords(field)...)
	}
	return strings.ToLower(strings.Join(words, "_"))
}

// splitWords splits camel case and digit runs: "HTTPServer2" gives HTTP,
// Server and 2.
func splitWords(s string) []string {
	runes := []rune(s)
	var words []string
	start := 0
	for i := 1; i < len(runes); i++ {
		prev, cur := runes[i-1], runes[i]
		nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
		boundary := unicode.IsDigit(cur) != unicode.IsDigit(prev) ||
			unicode.IsUpper(cur) && (unicode.IsLower(prev) || unicode.IsUpper(prev) && nextLower)
		if boundary {
			words = append(words, string(runes[start:i]))
			start = i
		}
	}
	return append(words, string(runes[start:]))
}
