// Package loom is a descriptor-driven data-access layer over SQL
// backends (MySQL, Postgres, SQLite).
//
// Entity types are declared as runtime descriptors rather than
// generated structs:
//
//	registry := loom.NewRegistry()
//	registry.MustRegister(&loom.Descriptor{
//		Name:        "Book",
//		Fillable:    []string{"title", "category_id"},
//		Timestamps:  true,
//		SoftDeletes: true,
//		Relations: map[string]loom.Relation{
//			"category": {Kind: loom.BelongsTo, Entity: "Category"},
//			"tags":     {Kind: loom.BelongsToMany, Entity: "Tag"},
//		},
//	})
//
// A Client pairs a driver with the registry and serves fluent queries:
//
//	books, err := client.Model("Book").
//		Where("views", ">", 100).
//		With("category", "tags").
//		OrderByDesc("created_at").
//		Get(ctx)
//
// Eager loading issues one extra query per relation regardless of row
// count. Soft-deletable types hide trashed rows from every query until
// WithTrashed or OnlyTrashed says otherwise. Schema DDL and migrations
// live in the schema and migrate packages.
package loom
