package store

import (
	"embed"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/qustavo/dotsql"
)

//go:embed queries/*.sql
var queriesFS embed.FS

// queries holds every named statement from queries/*.sql. The files are
// compiled in, so a parse failure is a build defect and panics at init.
var queries = mustLoadQueries()

func loadQueries(fsys fs.FS) (*dotsql.DotSql, error) {
	var paths []string
	err := fs.WalkDir(fsys, "queries", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && filepath.Ext(path) == ".sql" {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk query files: %w", err)
	}
	sort.Strings(paths)

	var combined strings.Builder
	for _, path := range paths {
		content, err := fs.ReadFile(fsys, path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		combined.Write(content)
		combined.WriteString("\n")
	}

	dot, err := dotsql.LoadFromString(combined.String())
	if err != nil {
		return nil, fmt.Errorf("parse queries: %w", err)
	}
	return dot, nil
}

func mustLoadQueries() *dotsql.DotSql {
	dot, err := loadQueries(queriesFS)
	if err != nil {
		panic(err)
	}
	return dot
}

// SQL returns the named statement. Unknown names panic: they can only come
// from a typo in this package.
func SQL(name string) string {
	query, err := queries.Raw(name)
	if err != nil {
		panic(fmt.Sprintf("store: unknown query %q", name))
	}
	return query
}
