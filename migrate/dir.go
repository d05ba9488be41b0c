package migrate

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"

	"github.com/weavedb/loom/schema"
)

// LoadDir builds migrations from a directory of SQL files. Each
// migration is a pair named "<name>.up.sql" and "<name>.down.sql"; a
// missing down file yields a migration that refuses to roll back.
// Statements within a file are separated by ";" at line ends.
func LoadDir(dir string) ([]*Migration, error) {
	return LoadFS(os.DirFS(dir))
}

// LoadFS is LoadDir over an fs.FS, usable with embedded migrations.
func LoadFS(fsys fs.FS) ([]*Migration, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("migrate: reading migration dir: %w", err)
	}
	ups := make(map[string]string)
	downs := make(map[string]string)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		var (
			key  string
			dest map[string]string
		)
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			key, dest = strings.TrimSuffix(name, ".up.sql"), ups
		case strings.HasSuffix(name, ".down.sql"):
			key, dest = strings.TrimSuffix(name, ".down.sql"), downs
		default:
			continue
		}
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("migrate: reading %s: %w", name, err)
		}
		dest[key] = string(data)
	}
	for key := range downs {
		if _, ok := ups[key]; !ok {
			return nil, fmt.Errorf("migrate: %s has a down file but no up file", key)
		}
	}
	names := make([]string, 0, len(ups))
	for key := range ups {
		names = append(names, key)
	}
	sort.Strings(names)
	migrations := make([]*Migration, 0, len(names))
	for _, name := range names {
		up, down := ups[name], downs[name]
		m := &Migration{
			Name: name,
			Up:   execStatements(up),
		}
		if down != "" {
			m.Down = execStatements(down)
		} else {
			m.Down = func(context.Context, *schema.Builder) error {
				return fmt.Errorf("migrate: %s has no down file", name)
			}
		}
		migrations = append(migrations, m)
	}
	return migrations, nil
}

func execStatements(script string) func(context.Context, *schema.Builder) error {
	return func(ctx context.Context, b *schema.Builder) error {
		for _, stmt := range splitStatements(script) {
			if err := b.Raw(ctx, stmt); err != nil {
				return err
			}
		}
		return nil
	}
}

// splitStatements cuts a script on semicolons at line ends, dropping
// blank statements and full-line comments. Semicolons inside string
// literals spanning lines are not handled; keep one statement per
// terminator.
func splitStatements(script string) []string {
	var (
		stmts   []string
		current []string
	)
	flush := func() {
		stmt := strings.TrimSpace(strings.Join(current, "\n"))
		stmt = strings.TrimSuffix(stmt, ";")
		if stmt != "" {
			stmts = append(stmts, stmt)
		}
		current = current[:0]
	}
	for _, line := range strings.Split(script, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		current = append(current, line)
		if strings.HasSuffix(trimmed, ";") {
			flush()
		}
	}
	flush()
	return stmts
}
