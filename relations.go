package loom

import (
	"context"
	"fmt"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/go-openapi/inflect"
	"github.com/weavedb/loom/dialect/sql"
)

// RelationKind enumerates the supported relationship shapes.
type RelationKind int

const (
	// HasOne is a to-one relation keyed by a foreign key on the related
	// table, e.g. User has one Profile via profiles.user_id.
	HasOne RelationKind = iota
	// HasMany is a to-many relation keyed by a foreign key on the
	// related table, e.g. Author has many Books via books.author_id.
	HasMany
	// BelongsTo is the inverse of HasOne/HasMany: the foreign key lives
	// on the owning side, e.g. Book belongs to Author via books.author_id.
	BelongsTo
	// BelongsToMany is a many-to-many relation through a pivot table.
	BelongsToMany
	// MorphOne is a polymorphic to-one relation, keyed by a
	// (type, id) column pair on the related table.
	MorphOne
	// MorphMany is a polymorphic to-many relation.
	MorphMany
	// MorphToMany is a polymorphic many-to-many relation through a
	// pivot table carrying a (type, id) pair for the owner.
	MorphToMany
)

// String returns the kind name.
func (k RelationKind) String() string {
	switch k {
	case HasOne:
		return "has_one"
	case HasMany:
		return "has_many"
	case BelongsTo:
		return "belongs_to"
	case BelongsToMany:
		return "belongs_to_many"
	case MorphOne:
		return "morph_one"
	case MorphMany:
		return "morph_many"
	case MorphToMany:
		return "morph_to_many"
	default:
		return "unknown"
	}
}

// Relation declares one relationship of an entity type. Zero-valued
// fields fall back to the naming conventions: foreign keys derive from
// the owning type's name, pivot tables from the two singular names in
// alphabetical order.
type Relation struct {
	Kind   RelationKind
	Entity string // related entity type name.

	// ForeignKey overrides the conventional foreign-key column: on the
	// related table for HasOne/HasMany, on the owner for BelongsTo.
	ForeignKey string

	// OwnerKey overrides the key column the foreign key references.
	OwnerKey string

	// Pivot overrides the conventional pivot table (before prefixing)
	// for many-to-many kinds.
	Pivot string

	// PivotForeignKey and PivotRelatedKey override the pivot columns
	// referencing the owner and related sides.
	PivotForeignKey string
	PivotRelatedKey string

	// PivotColumns lists extra pivot columns to carry onto related
	// entities, exposed as "pivot_<column>" attributes.
	PivotColumns []string

	// Morph names the polymorphic column pair for Morph* kinds, e.g.
	// "commentable" for commentable_type/commentable_id.
	Morph string
}

func (r Relation) validate() error {
	if r.Entity == "" {
		return fmt.Errorf("relation has no related entity")
	}
	switch r.Kind {
	case MorphOne, MorphMany, MorphToMany:
		if r.Morph == "" {
			return fmt.Errorf("polymorphic relation has no morph name")
		}
	}
	return nil
}

// toMany reports whether the relation resolves to a collection.
func (r Relation) toMany() bool {
	switch r.Kind {
	case HasMany, BelongsToMany, MorphMany, MorphToMany:
		return true
	}
	return false
}

// foreignKey resolves the foreign-key column given the owner type.
func (r Relation) foreignKey(owner *Descriptor) string {
	if r.ForeignKey != "" {
		return r.ForeignKey
	}
	switch r.Kind {
	case BelongsTo:
		return ForeignKeyName(r.Entity)
	default:
		return ForeignKeyName(owner.Name)
	}
}

// pivot resolves the pivot table name given the owner type.
func (r Relation) pivot(owner *Descriptor) string {
	if r.Pivot != "" {
		return r.Pivot
	}
	if r.Kind == MorphToMany {
		return inflect.Pluralize(r.Morph)
	}
	return pivotTable(owner.Name, r.Entity)
}

// pivotForeignKey resolves the pivot column referencing the owner.
func (r Relation) pivotForeignKey(owner *Descriptor) string {
	if r.PivotForeignKey != "" {
		return r.PivotForeignKey
	}
	if r.Kind == MorphToMany {
		return r.Morph + "_id"
	}
	return ForeignKeyName(owner.Name)
}

// pivotRelatedKey resolves the pivot column referencing the related side.
func (r Relation) pivotRelatedKey() string {
	if r.PivotRelatedKey != "" {
		return r.PivotRelatedKey
	}
	return ForeignKeyName(r.Entity)
}

// pivotKeyAlias is the attribute name carrying the owner key alongside
// eagerly loaded many-to-many rows.
func (r Relation) pivotKeyAlias(owner *Descriptor) string {
	return "pivot_" + r.pivotForeignKey(owner)
}

// loadRelations eagerly loads the named relations onto the owners,
// issuing one batched query per relation. Distinct relations query
// concurrently; each sees the full owner set. The goroutines only
// fetch and partition, assignment to the shared owners happens here
// after all of them are done.
func (c *Client) loadRelations(ctx context.Context, desc *Descriptor, owners []*Entity, names []string, constraints map[string]func(*Query)) error {
	if len(owners) == 0 || len(names) == 0 {
		return nil
	}
	assigns := make([]func(), len(names))
	g, gctx := errgroup.WithContext(ctx)
	for i, name := range names {
		rel, ok := desc.Relations[name]
		if !ok {
			return fmt.Errorf("loom: %s has no relation %q", desc.Name, name)
		}
		i, name := i, name
		g.Go(func() error {
			assign, err := c.loadRelation(gctx, desc, owners, name, rel, constraints[name])
			if err != nil {
				return err
			}
			assigns[i] = assign
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	for _, assign := range assigns {
		assign()
	}
	return nil
}

func (c *Client) loadRelation(ctx context.Context, desc *Descriptor, owners []*Entity, name string, rel Relation, constrain func(*Query)) (func(), error) {
	switch rel.Kind {
	case HasOne, HasMany, MorphOne, MorphMany:
		return c.loadHasMany(ctx, desc, owners, name, rel, constrain)
	case BelongsTo:
		return c.loadBelongsTo(ctx, desc, owners, name, rel, constrain)
	case BelongsToMany, MorphToMany:
		return c.loadBelongsToMany(ctx, desc, owners, name, rel, constrain)
	default:
		return nil, fmt.Errorf("loom: %s.%s: unsupported relation kind %s", desc.Name, name, rel.Kind)
	}
}

// loadHasMany resolves HasOne/HasMany/MorphOne/MorphMany with a single
// WHERE IN query over the owners' keys.
func (c *Client) loadHasMany(ctx context.Context, desc *Descriptor, owners []*Entity, name string, rel Relation, constrain func(*Query)) (func(), error) {
	ownerKey := rel.OwnerKey
	if ownerKey == "" {
		ownerKey = desc.Key()
	}
	fk := rel.foreignKey(desc)
	if rel.Kind == MorphOne || rel.Kind == MorphMany {
		fk = rel.Morph + "_id"
	}
	keys := collectKeys(owners, ownerKey)
	if len(keys) == 0 {
		return func() { clearRelation(owners, name, rel) }, nil
	}
	q := c.Model(rel.Entity)
	if constrain != nil {
		constrain(q)
	}
	q.WhereIn(fk, keys...)
	if rel.Kind == MorphOne || rel.Kind == MorphMany {
		q.Where(rel.Morph+"_type", desc.Name)
	}
	related, err := q.Get(ctx)
	if err != nil {
		return nil, err
	}
	return func() {
		clearRelation(owners, name, rel)
		assignByKey(owners, ownerKey, related, fk, name, rel)
	}, nil
}

// loadBelongsTo resolves the inverse side: related rows are fetched by
// their primary key over the owners' foreign-key values.
func (c *Client) loadBelongsTo(ctx context.Context, desc *Descriptor, owners []*Entity, name string, rel Relation, constrain func(*Query)) (func(), error) {
	related, err := c.registry.Lookup(rel.Entity)
	if err != nil {
		return nil, err
	}
	ownerKey := rel.OwnerKey
	if ownerKey == "" {
		ownerKey = related.Key()
	}
	fk := rel.foreignKey(desc)
	keys := collectKeys(owners, fk)
	if len(keys) == 0 {
		return func() { clearRelation(owners, name, rel) }, nil
	}
	q := c.Model(rel.Entity)
	if constrain != nil {
		constrain(q)
	}
	q.WhereIn(ownerKey, keys...)
	rows, err := q.Get(ctx)
	if err != nil {
		return nil, err
	}
	index := make(map[string]*Entity, len(rows))
	for _, row := range rows {
		index[keyString(row.Raw(ownerKey))] = row
	}
	return func() {
		clearRelation(owners, name, rel)
		for _, owner := range owners {
			if v := owner.Raw(fk); v != nil {
				if match, ok := index[keyString(v)]; ok {
					owner.setRelated(name, match)
				}
			}
		}
	}, nil
}

// loadBelongsToMany resolves many-to-many relations with a single query
// joining through the pivot table. The pivot's owner key rides along as
// an aliased column so rows re-partition back to their owners.
func (c *Client) loadBelongsToMany(ctx context.Context, desc *Descriptor, owners []*Entity, name string, rel Relation, constrain func(*Query)) (func(), error) {
	related, err := c.registry.Lookup(rel.Entity)
	if err != nil {
		return nil, err
	}
	var (
		pivot    = c.prefix + rel.pivot(desc)
		pivotFK  = rel.pivotForeignKey(desc)
		pivotRK  = rel.pivotRelatedKey()
		keyAlias = rel.pivotKeyAlias(desc)
		relTable = c.prefix + related.TableName()
	)
	keys := collectKeys(owners, desc.Key())
	if len(keys) == 0 {
		return func() { clearRelation(owners, name, rel) }, nil
	}
	q := c.Model(rel.Entity)
	if constrain != nil {
		constrain(q)
	}
	q.Modify(func(s *sql.Selector) {
		p := sql.Table(pivot)
		p.SetDialect(s.Dialect())
		s.Join(p).On(s.C(related.Key()), p.C(pivotRK))
		s.Select(relTable + ".*")
		s.AppendSelectAs(p.C(pivotFK), keyAlias)
		for _, col := range rel.PivotColumns {
			s.AppendSelectAs(p.C(col), "pivot_"+col)
		}
		s.Where(sql.In(p.C(pivotFK), keys...))
		if rel.Kind == MorphToMany {
			s.Where(sql.EQ(p.C(rel.Morph+"_type"), desc.Name))
		}
	})
	rows, err := q.Get(ctx)
	if err != nil {
		return nil, err
	}
	return func() {
		clearRelation(owners, name, rel)
		assignByKey(owners, desc.Key(), rows, keyAlias, name, rel)
	}, nil
}

// collectKeys gathers the distinct non-nil values of a column across
// the owners, in first-seen order.
func collectKeys(owners []*Entity, column string) []any {
	seen := make(map[string]struct{}, len(owners))
	keys := make([]any, 0, len(owners))
	for _, o := range owners {
		v := o.Raw(column)
		if v == nil {
			continue
		}
		s := keyString(v)
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		keys = append(keys, v)
	}
	return keys
}

// clearRelation marks the relation loaded on every owner so an owner
// with no matches still reports RelationLoaded.
func clearRelation(owners []*Entity, name string, rel Relation) {
	for _, o := range owners {
		if rel.toMany() {
			o.setRelated(name, []*Entity{})
		} else {
			o.setRelated(name, (*Entity)(nil))
		}
	}
}

// assignByKey partitions related rows by a key column and attaches each
// partition to its owner.
func assignByKey(owners []*Entity, ownerKey string, related []*Entity, relatedKey, name string, rel Relation) {
	index := make(map[string][]*Entity, len(owners))
	for _, row := range related {
		k := keyString(row.Raw(relatedKey))
		index[k] = append(index[k], row)
	}
	for _, owner := range owners {
		matches := index[keyString(owner.Raw(ownerKey))]
		if rel.toMany() {
			if matches == nil {
				matches = []*Entity{}
			}
			owner.setRelated(name, matches)
		} else if len(matches) > 0 {
			owner.setRelated(name, matches[0])
		}
	}
}

// keyString normalizes a key value for map lookups, so an int64 owner
// key matches the same key scanned back as []byte or string.
func keyString(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case int:
		return strconv.Itoa(v)
	case int32:
		return strconv.FormatInt(int64(v), 10)
	case uint64:
		return strconv.FormatUint(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

// SyncResult reports the pivot rows changed by Sync or Toggle.
type SyncResult struct {
	Attached []any
	Detached []any
}

// PivotQuery manipulates the pivot rows of one owner's many-to-many
// relation. Obtain one with Client.Pivot.
type PivotQuery struct {
	client *Client
	owner  *Entity
	rel    Relation
	name   string
}

// Pivot returns a pivot query for the owner's named many-to-many
// relation. The owner must be persisted.
func (c *Client) Pivot(owner *Entity, relation string) (*PivotQuery, error) {
	rel, ok := owner.desc.Relations[relation]
	if !ok {
		return nil, fmt.Errorf("loom: %s has no relation %q", owner.desc.Name, relation)
	}
	if rel.Kind != BelongsToMany && rel.Kind != MorphToMany {
		return nil, fmt.Errorf("loom: %s.%s is not a many-to-many relation", owner.desc.Name, relation)
	}
	if !owner.Exists() {
		return nil, fmt.Errorf("loom: cannot modify pivot rows of unsaved %s", owner.desc.Name)
	}
	return &PivotQuery{client: c, owner: owner, rel: rel, name: relation}, nil
}

func (p *PivotQuery) table() string {
	return p.client.prefix + p.rel.pivot(p.owner.desc)
}

// IDs returns the related keys currently attached to the owner.
func (p *PivotQuery) IDs(ctx context.Context) ([]any, error) {
	sel := sql.Dialect(p.client.dialect()).
		Select(p.rel.pivotRelatedKey()).
		From(sql.Table(p.table())).
		Where(sql.EQ(p.rel.pivotForeignKey(p.owner.desc), p.owner.ID()))
	if p.rel.Kind == MorphToMany {
		sel.Where(sql.EQ(p.rel.Morph+"_type", p.owner.desc.Name))
	}
	query, args := sel.Query()
	rows := &sql.Rows{}
	if err := p.client.conn.Query(ctx, query, args, rows); err != nil {
		return nil, err
	}
	defer rows.Close()
	return sql.ScanValues(rows)
}

// Attach inserts pivot rows linking the owner to the given related
// keys. Already attached keys are left in place.
func (p *PivotQuery) Attach(ctx context.Context, ids ...any) error {
	if len(ids) == 0 {
		return nil
	}
	columns := []string{p.rel.pivotForeignKey(p.owner.desc), p.rel.pivotRelatedKey()}
	if p.rel.Kind == MorphToMany {
		columns = append(columns, p.rel.Morph+"_type")
	}
	ins := sql.Dialect(p.client.dialect()).
		Insert(p.table()).
		Columns(columns...).
		OnConflictDoNothing()
	for _, id := range ids {
		row := []any{p.owner.ID(), id}
		if p.rel.Kind == MorphToMany {
			row = append(row, p.owner.desc.Name)
		}
		ins.Values(row...)
	}
	query, args := ins.Query()
	if err := p.client.conn.Exec(ctx, query, args, nil); err != nil {
		return wrapConstraint(err)
	}
	return nil
}

// Detach removes pivot rows for the given related keys; with no keys it
// detaches everything.
func (p *PivotQuery) Detach(ctx context.Context, ids ...any) error {
	pred := sql.EQ(p.rel.pivotForeignKey(p.owner.desc), p.owner.ID())
	if len(ids) > 0 {
		pred = sql.And(pred, sql.In(p.rel.pivotRelatedKey(), ids...))
	}
	if p.rel.Kind == MorphToMany {
		pred = sql.And(pred, sql.EQ(p.rel.Morph+"_type", p.owner.desc.Name))
	}
	query, args := sql.Dialect(p.client.dialect()).
		Delete(p.table()).
		Where(pred).
		Query()
	return p.client.conn.Exec(ctx, query, args, nil)
}

// Sync reconciles the pivot rows to exactly the given keys: missing
// ones are attached, surplus ones detached, shared ones untouched.
// Syncing an unchanged set performs no writes.
func (p *PivotQuery) Sync(ctx context.Context, ids []any) (*SyncResult, error) {
	current, err := p.IDs(ctx)
	if err != nil {
		return nil, err
	}
	currentSet := make(map[string]struct{}, len(current))
	for _, id := range current {
		currentSet[keyString(id)] = struct{}{}
	}
	desiredSet := make(map[string]struct{}, len(ids))
	res := &SyncResult{}
	for _, id := range ids {
		s := keyString(id)
		desiredSet[s] = struct{}{}
		if _, ok := currentSet[s]; !ok {
			res.Attached = append(res.Attached, id)
		}
	}
	for _, id := range current {
		if _, ok := desiredSet[keyString(id)]; !ok {
			res.Detached = append(res.Detached, id)
		}
	}
	if len(res.Attached) == 0 && len(res.Detached) == 0 {
		return res, nil
	}
	err = p.client.Transaction(ctx, func(ctx context.Context, tx *Client) error {
		txp := *p
		txp.client = tx
		if len(res.Detached) > 0 {
			if err := txp.Detach(ctx, res.Detached...); err != nil {
				return err
			}
		}
		return txp.Attach(ctx, res.Attached...)
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Toggle attaches the keys not currently present and detaches the ones
// that are.
func (p *PivotQuery) Toggle(ctx context.Context, ids ...any) (*SyncResult, error) {
	current, err := p.IDs(ctx)
	if err != nil {
		return nil, err
	}
	currentSet := make(map[string]struct{}, len(current))
	for _, id := range current {
		currentSet[keyString(id)] = struct{}{}
	}
	res := &SyncResult{}
	for _, id := range ids {
		if _, ok := currentSet[keyString(id)]; ok {
			res.Detached = append(res.Detached, id)
		} else {
			res.Attached = append(res.Attached, id)
		}
	}
	if len(res.Attached) == 0 && len(res.Detached) == 0 {
		return res, nil
	}
	err = p.client.Transaction(ctx, func(ctx context.Context, tx *Client) error {
		txp := *p
		txp.client = tx
		if len(res.Detached) > 0 {
			if err := txp.Detach(ctx, res.Detached...); err != nil {
				return err
			}
		}
		return txp.Attach(ctx, res.Attached...)
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}
