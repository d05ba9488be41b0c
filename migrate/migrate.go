// Package migrate applies and reverts ordered schema migrations.
//
// Each Migration is a named pair of Up and Down steps against the schema
// builder. Applied migrations are recorded in a ledger table (by default
// `{prefix}migrations`) holding (id, migration, batch). Migrations run in
// ascending name order; a rollback applies Down steps in strict reverse
// order of application. The ledger is updated after every unit, so a
// mid-batch failure leaves a consistent, resumable ledger rather than an
// all-or-nothing batch.
package migrate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/weavedb/loom/dialect"
	"github.com/weavedb/loom/dialect/sql"
	"github.com/weavedb/loom/schema"
)

// DefaultTable is the conventional ledger table name (before prefixing).
const DefaultTable = "migrations"

// ErrUnknownMigration is returned when the ledger references a migration
// that is not registered with the runner.
var ErrUnknownMigration = errors.New("migrate: unknown migration in ledger")

// Migration is a uniquely named, ordered pair of schema operations.
// Names carry a sortable timestamp prefix by convention, e.g.
// "2024_06_01_120000_create_books_table".
type Migration struct {
	Name string
	Up   func(ctx context.Context, b *schema.Builder) error
	Down func(ctx context.Context, b *schema.Builder) error
}

// Status reports a migration's ledger state.
type Status struct {
	Name    string
	Applied bool
	Batch   int // zero when pending.
}

// Runner tracks and applies registered migrations.
type Runner struct {
	drv        dialect.Driver
	builder    *schema.Builder
	ledger     string // ledger table, before prefixing.
	table      string // ledger table, already prefixed.
	prefix     string
	logger     *slog.Logger
	migrations []*Migration
}

// Option configures a Runner.
type Option func(*Runner)

// WithPrefix sets the table prefix used for both the ledger table and the
// schema builder handed to migrations.
func WithPrefix(prefix string) Option {
	return func(r *Runner) { r.prefix = prefix }
}

// WithLedgerTable overrides the ledger table name (before prefixing).
func WithLedgerTable(name string) Option {
	return func(r *Runner) { r.ledger = name }
}

// WithLogger sets the logger for migration progress.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// NewRunner returns a migration runner for the given driver.
func NewRunner(drv dialect.Driver, opts ...Option) *Runner {
	r := &Runner{
		drv:    drv,
		ledger: DefaultTable,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.table = r.prefix + r.ledger
	r.builder = schema.NewBuilder(drv, schema.WithPrefix(r.prefix))
	return r
}

// Register adds migrations to the runner. Registration order is
// irrelevant; application order is ascending by name.
func (r *Runner) Register(migrations ...*Migration) {
	r.migrations = append(r.migrations, migrations...)
}

// Builder returns the schema builder the runner passes to migrations.
func (r *Runner) Builder() *schema.Builder { return r.builder }

// Run applies all pending migrations in ascending name order, recording
// each in the ledger immediately after it succeeds. A failing Up aborts
// the batch; units already applied in the batch stay applied. Running
// twice with no new migrations applies nothing the second time.
func (r *Runner) Run(ctx context.Context) ([]string, error) {
	if err := r.ensureLedger(ctx); err != nil {
		return nil, err
	}
	applied, err := r.appliedSet(ctx)
	if err != nil {
		return nil, err
	}
	batch, err := r.nextBatch(ctx)
	if err != nil {
		return nil, err
	}
	var ran []string
	for _, m := range r.sorted() {
		if _, ok := applied[m.Name]; ok {
			continue
		}
		// Cancellation is honored between units, never mid-statement.
		if err := ctx.Err(); err != nil {
			return ran, err
		}
		r.logger.Info("migrating", "migration", m.Name, "batch", batch)
		if err := m.Up(ctx, r.builder); err != nil {
			return ran, fmt.Errorf("migrate: %s: %w", m.Name, err)
		}
		if err := r.recordApplied(ctx, m.Name, batch); err != nil {
			return ran, err
		}
		ran = append(ran, m.Name)
	}
	return ran, nil
}

// Rollback reverts the last N applied migrations, most recently applied
// first, removing each ledger entry after its Down succeeds.
func (r *Runner) Rollback(ctx context.Context, steps int) ([]string, error) {
	if steps < 1 {
		steps = 1
	}
	if err := r.ensureLedger(ctx); err != nil {
		return nil, err
	}
	names, err := r.lastApplied(ctx, steps)
	if err != nil {
		return nil, err
	}
	byName := make(map[string]*Migration, len(r.migrations))
	for _, m := range r.migrations {
		byName[m.Name] = m
	}
	var reverted []string
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return reverted, err
		}
		m, ok := byName[name]
		if !ok {
			return reverted, fmt.Errorf("%w: %s", ErrUnknownMigration, name)
		}
		r.logger.Info("rolling back", "migration", name)
		if err := m.Down(ctx, r.builder); err != nil {
			return reverted, fmt.Errorf("migrate: %s: %w", name, err)
		}
		if err := r.removeApplied(ctx, name); err != nil {
			return reverted, err
		}
		reverted = append(reverted, name)
	}
	return reverted, nil
}

// Reset reverts every applied migration in reverse application order.
func (r *Runner) Reset(ctx context.Context) ([]string, error) {
	if err := r.ensureLedger(ctx); err != nil {
		return nil, err
	}
	applied, err := r.appliedSet(ctx)
	if err != nil {
		return nil, err
	}
	if len(applied) == 0 {
		return nil, nil
	}
	return r.Rollback(ctx, len(applied))
}

// Refresh resets all migrations and re-runs them.
func (r *Runner) Refresh(ctx context.Context) error {
	if _, err := r.Reset(ctx); err != nil {
		return err
	}
	_, err := r.Run(ctx)
	return err
}

// Fresh drops all tables in the database and re-runs every migration from
// an empty schema.
func (r *Runner) Fresh(ctx context.Context) error {
	if err := r.builder.DropAll(ctx); err != nil {
		return err
	}
	_, err := r.Run(ctx)
	return err
}

// Status returns every registered migration with its ledger state, in
// application (name) order.
func (r *Runner) Status(ctx context.Context) ([]Status, error) {
	if err := r.ensureLedger(ctx); err != nil {
		return nil, err
	}
	rows := &sql.Rows{}
	query, args := r.dialect().
		Select("migration", "batch").
		From(sql.Table(r.table)).
		OrderBy("id").
		Query()
	if err := r.drv.Query(ctx, query, args, rows); err != nil {
		return nil, err
	}
	defer rows.Close()
	maps, err := sql.ScanMaps(rows)
	if err != nil {
		return nil, err
	}
	batches := make(map[string]int, len(maps))
	for _, m := range maps {
		batches[fmt.Sprint(m["migration"])] = asInt(m["batch"])
	}
	out := make([]Status, 0, len(r.migrations))
	for _, m := range r.sorted() {
		batch, ok := batches[m.Name]
		out = append(out, Status{Name: m.Name, Applied: ok, Batch: batch})
	}
	return out, nil
}

func (r *Runner) dialect() *sql.DialectBuilder {
	return sql.Dialect(r.drv.Dialect())
}

func (r *Runner) sorted() []*Migration {
	sorted := make([]*Migration, len(r.migrations))
	copy(sorted, r.migrations)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })
	return sorted
}

// ensureLedger creates the ledger table if it does not exist. The
// builder prefixes, so it gets the un-prefixed name.
func (r *Runner) ensureLedger(ctx context.Context) error {
	ok, err := r.builder.HasTable(ctx, r.ledger)
	if err != nil || ok {
		return err
	}
	return r.builder.Create(ctx, r.ledger, func(t *schema.Blueprint) {
		t.ID()
		t.String("migration").Unique()
		t.Integer("batch")
	})
}

func (r *Runner) appliedSet(ctx context.Context) (map[string]struct{}, error) {
	rows := &sql.Rows{}
	query, args := r.dialect().
		Select("migration").
		From(sql.Table(r.table)).
		Query()
	if err := r.drv.Query(ctx, query, args, rows); err != nil {
		return nil, err
	}
	defer rows.Close()
	values, err := sql.ScanValues(rows)
	if err != nil {
		return nil, err
	}
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[fmt.Sprint(v)] = struct{}{}
	}
	return set, nil
}

func (r *Runner) nextBatch(ctx context.Context) (int, error) {
	rows := &sql.Rows{}
	query, args := r.dialect().
		Select(sql.Max("batch")).
		From(sql.Table(r.table)).
		Query()
	if err := r.drv.Query(ctx, query, args, rows); err != nil {
		return 0, err
	}
	defer rows.Close()
	last, err := sql.ScanInt64(rows)
	if err != nil {
		return 0, err
	}
	return int(last) + 1, nil
}

func (r *Runner) lastApplied(ctx context.Context, n int) ([]string, error) {
	rows := &sql.Rows{}
	query, args := r.dialect().
		Select("migration").
		From(sql.Table(r.table)).
		OrderBy(sql.Desc("id")).
		Limit(n).
		Query()
	if err := r.drv.Query(ctx, query, args, rows); err != nil {
		return nil, err
	}
	defer rows.Close()
	values, err := sql.ScanValues(rows)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(values))
	for _, v := range values {
		names = append(names, fmt.Sprint(v))
	}
	return names, nil
}

func (r *Runner) recordApplied(ctx context.Context, name string, batch int) error {
	query, args := r.dialect().
		Insert(r.table).
		Columns("migration", "batch").
		Values(name, batch).
		Query()
	return r.drv.Exec(ctx, query, args, nil)
}

func (r *Runner) removeApplied(ctx context.Context, name string) error {
	query, args := r.dialect().
		Delete(r.table).
		Where(sql.EQ("migration", name)).
		Query()
	return r.drv.Exec(ctx, query, args, nil)
}

func asInt(v any) int {
	switch v := v.(type) {
	case int64:
		return int(v)
	case int:
		return v
	default:
		n := 0
		fmt.Sscanf(fmt.Sprint(v), "%d", &n) //nolint:errcheck
		return n
	}
}
