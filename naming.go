package loom

import (
	"sort"
	"strings"

	"github.com/go-openapi/inflect"
)

// TableName derives the conventional table name for an entity type:
// the snake_cased, pluralized form of the name. "BookAuthor" maps to
// "book_authors".
func TableName(entity string) string {
	return inflect.Pluralize(inflect.Underscore(entity))
}

// ForeignKeyName derives the conventional foreign-key column for an
// entity type: the snake_cased singular name suffixed with "_id".
// "Category" maps to "category_id".
func ForeignKeyName(entity string) string {
	return inflect.Underscore(entity) + "_id"
}

// pivotTable derives the conventional joining table for two entity
// types: the singular snake_cased names in alphabetical order, joined
// with an underscore. ("Book", "Author") maps to "author_book".
func pivotTable(a, b string) string {
	names := []string{inflect.Underscore(a), inflect.Underscore(b)}
	sort.Strings(names)
	return strings.Join(names, "_")
}
