package loom

import (
	"fmt"
	"sort"
	"strconv"
	"time"
)

// KeyType is the primary-key generation strategy of an entity type.
type KeyType int

const (
	// KeyInt relies on the backend's auto-increment counter.
	KeyInt KeyType = iota
	// KeyString generates a UUID client-side before insert.
	KeyString
)

// Conventional column names for managed timestamps.
const (
	CreatedAtColumn = "created_at"
	UpdatedAtColumn = "updated_at"
	DeletedAtColumn = "deleted_at"
)

// Descriptor declares an entity type: its table, key, mass-assignment
// policy, relationships, lifecycle hooks and scopes. Descriptors are
// registered once at startup and shared by every query.
type Descriptor struct {
	// Name identifies the entity type, e.g. "Book". It drives the
	// conventional table and foreign-key names.
	Name string

	// Table overrides the conventional table name (before prefixing).
	Table string

	// PrimaryKey overrides the conventional "id" key column.
	PrimaryKey string

	// KeyType selects auto-increment or client-generated UUID keys.
	KeyType KeyType

	// Fillable whitelists columns for mass assignment. Mutually
	// exclusive with Guarded; with neither set, every mass-assigned
	// attribute is dropped.
	Fillable []string

	// Guarded blacklists columns from mass assignment.
	Guarded []string

	// Timestamps maintains created_at/updated_at automatically.
	Timestamps bool

	// SoftDeletes marks rows deleted via deleted_at instead of removing
	// them. Every query on the type then excludes trashed rows unless
	// asked otherwise.
	SoftDeletes bool

	// Relations maps relation names to their definitions.
	Relations map[string]Relation

	// Scopes are named, reusable query constraints.
	Scopes map[string]func(*Query)

	// Hooks are the lifecycle callbacks for mutations of this type.
	Hooks Hooks

	// Accessors transform attribute values on read, Mutators on write.
	Accessors map[string]func(any) any
	Mutators  map[string]func(any) any

	fillableSet map[string]struct{}
	guardedSet  map[string]struct{}
}

// TableName returns the (unprefixed) table backing the entity type.
func (d *Descriptor) TableName() string {
	if d.Table != "" {
		return d.Table
	}
	return TableName(d.Name)
}

// Key returns the primary-key column.
func (d *Descriptor) Key() string {
	if d.PrimaryKey != "" {
		return d.PrimaryKey
	}
	return "id"
}

// fillable reports whether a column may be mass-assigned under the
// descriptor's policy.
func (d *Descriptor) fillable(column string) bool {
	if len(d.fillableSet) > 0 {
		_, ok := d.fillableSet[column]
		return ok
	}
	if len(d.guardedSet) > 0 {
		_, ok := d.guardedSet[column]
		return !ok
	}
	// Neither list set: nothing is mass-assignable.
	return false
}

func (d *Descriptor) validate() error {
	if d.Name == "" {
		return fmt.Errorf("loom: descriptor with empty name")
	}
	if len(d.Fillable) > 0 && len(d.Guarded) > 0 {
		return fmt.Errorf("loom: %s: fillable and guarded are mutually exclusive", d.Name)
	}
	d.fillableSet = make(map[string]struct{}, len(d.Fillable))
	for _, c := range d.Fillable {
		d.fillableSet[c] = struct{}{}
	}
	d.guardedSet = make(map[string]struct{}, len(d.Guarded))
	for _, c := range d.Guarded {
		d.guardedSet[c] = struct{}{}
	}
	for name, rel := range d.Relations {
		if err := rel.validate(); err != nil {
			return fmt.Errorf("loom: %s.%s: %w", d.Name, name, err)
		}
	}
	return nil
}

// Registry holds the descriptors known to a client. It is populated at
// startup and read-only afterwards; concurrent reads need no locking.
type Registry struct {
	types map[string]*Descriptor
}

// NewRegistry returns an empty descriptor registry.
func NewRegistry() *Registry {
	return &Registry{types: make(map[string]*Descriptor)}
}

// Register validates and adds descriptors. Re-registering a name is an
// error; descriptors are immutable once registered.
func (r *Registry) Register(descriptors ...*Descriptor) error {
	for _, d := range descriptors {
		if err := d.validate(); err != nil {
			return err
		}
		if _, ok := r.types[d.Name]; ok {
			return fmt.Errorf("loom: entity %q already registered", d.Name)
		}
		r.types[d.Name] = d
	}
	return nil
}

// MustRegister is like Register but panics on error. Intended for
// package-level wiring where a bad descriptor is a programming error.
func (r *Registry) MustRegister(descriptors ...*Descriptor) {
	if err := r.Register(descriptors...); err != nil {
		panic(err)
	}
}

// Lookup returns the descriptor for an entity name.
func (r *Registry) Lookup(name string) (*Descriptor, error) {
	d, ok := r.types[name]
	if !ok {
		return nil, fmt.Errorf("loom: unknown entity %q", name)
	}
	return d, nil
}

// Names returns the registered entity names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.types))
	for name := range r.types {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Entity is a single row of an entity type: an attribute map with dirty
// tracking, persistence state and loaded relations. Entities are not
// safe for concurrent mutation.
type Entity struct {
	desc      *Descriptor
	attrs     map[string]any
	dirty     map[string]struct{}
	exists    bool
	relations map[string]any
}

// NewEntity returns an unsaved entity of the given type.
func NewEntity(desc *Descriptor) *Entity {
	return &Entity{
		desc:  desc,
		attrs: make(map[string]any),
		dirty: make(map[string]struct{}),
	}
}

// hydrate builds an entity from a scanned row. The result is marked
// persisted and clean.
func hydrate(desc *Descriptor, row map[string]any) *Entity {
	e := NewEntity(desc)
	for k, v := range row {
		e.attrs[k] = v
	}
	e.exists = true
	return e
}

// Descriptor returns the entity's type descriptor.
func (e *Entity) Descriptor() *Descriptor { return e.desc }

// Type returns the entity type name.
func (e *Entity) Type() string { return e.desc.Name }

// Exists reports whether the entity is backed by a database row.
func (e *Entity) Exists() bool { return e.exists }

// ID returns the primary-key value, or nil for unsaved entities.
func (e *Entity) ID() any {
	return e.attrs[e.desc.Key()]
}

// Get returns an attribute value, applying the type's accessor if one
// is defined for the column.
func (e *Entity) Get(column string) any {
	v := e.attrs[column]
	if fn, ok := e.desc.Accessors[column]; ok {
		return fn(v)
	}
	return v
}

// Raw returns the stored attribute value, bypassing accessors.
func (e *Entity) Raw(column string) any {
	return e.attrs[column]
}

// Has reports whether the attribute is present on the entity.
func (e *Entity) Has(column string) bool {
	_, ok := e.attrs[column]
	return ok
}

// Set assigns an attribute, applying the type's mutator if one is
// defined, and marks the column dirty. Set bypasses the
// fillable/guarded policy; use Fill for untrusted input.
func (e *Entity) Set(column string, v any) *Entity {
	if fn, ok := e.desc.Mutators[column]; ok {
		v = fn(v)
	}
	e.attrs[column] = v
	e.dirty[column] = struct{}{}
	return e
}

// Fill mass-assigns attributes under the descriptor's fillable/guarded
// policy. Disallowed keys are dropped silently, matching the behavior
// expected for untrusted request input. It returns the dropped keys.
func (e *Entity) Fill(attrs map[string]any) []string {
	var dropped []string
	for k, v := range attrs {
		if !e.desc.fillable(k) {
			dropped = append(dropped, k)
			continue
		}
		e.Set(k, v)
	}
	sort.Strings(dropped)
	return dropped
}

// IsDirty reports whether any of the given columns changed since the
// last sync; with no arguments it reports whether anything changed.
func (e *Entity) IsDirty(columns ...string) bool {
	if len(columns) == 0 {
		return len(e.dirty) > 0
	}
	for _, c := range columns {
		if _, ok := e.dirty[c]; ok {
			return true
		}
	}
	return false
}

// Dirty returns the changed attributes.
func (e *Entity) Dirty() map[string]any {
	out := make(map[string]any, len(e.dirty))
	for c := range e.dirty {
		out[c] = e.attrs[c]
	}
	return out
}

// Attributes returns a copy of all attributes, accessors applied.
func (e *Entity) Attributes() map[string]any {
	out := make(map[string]any, len(e.attrs))
	for k := range e.attrs {
		out[k] = e.Get(k)
	}
	return out
}

// markClean resets dirty tracking after a successful write.
func (e *Entity) markClean() {
	e.dirty = make(map[string]struct{})
}

// Trashed reports whether a soft-deletable entity is currently trashed.
func (e *Entity) Trashed() bool {
	if !e.desc.SoftDeletes {
		return false
	}
	return e.attrs[DeletedAtColumn] != nil
}

// setRelated stores a loaded relation result on the entity.
func (e *Entity) setRelated(name string, v any) {
	if e.relations == nil {
		e.relations = make(map[string]any)
	}
	e.relations[name] = v
}

// RelationLoaded reports whether the named relation has been loaded.
func (e *Entity) RelationLoaded(name string) bool {
	_, ok := e.relations[name]
	return ok
}

// Related returns the loaded to-one relation, or nil when absent or
// not loaded.
func (e *Entity) Related(name string) *Entity {
	v, ok := e.relations[name]
	if !ok {
		return nil
	}
	rel, _ := v.(*Entity)
	return rel
}

// RelatedMany returns the loaded to-many relation. The result is nil
// when the relation is not loaded, and empty when loaded with no rows.
func (e *Entity) RelatedMany(name string) []*Entity {
	v, ok := e.relations[name]
	if !ok {
		return nil
	}
	rels, _ := v.([]*Entity)
	if rels == nil {
		rels = []*Entity{}
	}
	return rels
}

// GetString returns the attribute as a string, converting scanned
// []byte values.
func (e *Entity) GetString(column string) string {
	switch v := e.Get(column).(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return fmt.Sprint(v)
	}
}

// GetInt returns the attribute as an int64.
func (e *Entity) GetInt(column string) int64 {
	switch v := e.Get(column).(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case int32:
		return int64(v)
	case float64:
		return int64(v)
	case []byte:
		n, _ := strconv.ParseInt(string(v), 10, 64)
		return n
	case string:
		n, _ := strconv.ParseInt(v, 10, 64)
		return n
	default:
		return 0
	}
}

// GetFloat returns the attribute as a float64.
func (e *Entity) GetFloat(column string) float64 {
	switch v := e.Get(column).(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int64:
		return float64(v)
	case int:
		return float64(v)
	case []byte:
		f, _ := strconv.ParseFloat(string(v), 64)
		return f
	case string:
		f, _ := strconv.ParseFloat(v, 64)
		return f
	default:
		return 0
	}
}

// GetBool returns the attribute as a bool. Integer values are truthy
// when non-zero, matching how sqlite and mysql report booleans.
func (e *Entity) GetBool(column string) bool {
	switch v := e.Get(column).(type) {
	case bool:
		return v
	case int64:
		return v != 0
	case int:
		return v != 0
	case []byte:
		return string(v) == "1" || string(v) == "true" || string(v) == "t"
	case string:
		return v == "1" || v == "true" || v == "t"
	default:
		return false
	}
}

// GetTime returns the attribute as a time.Time, parsing string and
// []byte representations with the common SQL layouts.
func (e *Entity) GetTime(column string) time.Time {
	switch v := e.Get(column).(type) {
	case time.Time:
		return v
	case *time.Time:
		if v != nil {
			return *v
		}
	case []byte:
		return parseTime(string(v))
	case string:
		return parseTime(v)
	}
	return time.Time{}
}

func parseTime(s string) time.Time {
	for _, layout := range []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05.999999999-07:00",
		"2006-01-02 15:04:05",
		"2006-01-02",
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
