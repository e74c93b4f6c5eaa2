package namemap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// QueryType selects which ecosystem's naming a query uses.
type QueryType int

const (
	QueryPyPI QueryType = iota
	QueryConda
	QueryImport
)

// ParseQueryType converts a CLI flag value to a QueryType.
func ParseQueryType(s string) (QueryType, error) {
	switch s {
	case "pypi":
		return QueryPyPI, nil
	case "conda":
		return QueryConda, nil
	case "import":
		return QueryImport, nil
	default:
		return 0, fmt.Errorf("unknown query type %q (want pypi, conda, or import)", s)
	}
}

func (t QueryType) String() string {
	switch t {
	case QueryPyPI:
		return "pypi"
	case QueryConda:
		return "conda"
	case QueryImport:
		return "import"
	default:
		return fmt.Sprintf("QueryType(%d)", int(t))
	}
}

// CanonicalNames holds the per-ecosystem names of one package.
type CanonicalNames struct {
	CondaName string
	PyPIName  string
}

// Pretty renders the names for console output.
func (n CanonicalNames) Pretty() string {
	return fmt.Sprintf("Conda name: %s · PyPI name: %s", n.CondaName, n.PyPIName)
}

// Canonical resolves a queried name to its per-ecosystem canonical names.
// The mapping mostly records only packages whose names differ, so a name
// absent from the table maps to itself.
func (d *DB) Canonical(ctx context.Context, queryType QueryType, name string) (CanonicalNames, error) {
	switch queryType {
	case QueryConda:
		var pypiName string
		err := d.db.QueryRowContext(ctx,
			"SELECT pypi_name FROM name_mapping WHERE conda_name LIKE ?", name).Scan(&pypiName)
		if errors.Is(err, sql.ErrNoRows) {
			return CanonicalNames{CondaName: name, PyPIName: name}, nil
		}
		if err != nil {
			return CanonicalNames{}, err
		}
		return CanonicalNames{CondaName: name, PyPIName: pypiName}, nil

	case QueryImport:
		var condaName, pypiName string
		err := d.db.QueryRowContext(ctx,
			"SELECT conda_name, pypi_name FROM name_mapping WHERE import_name LIKE ?", name).Scan(&condaName, &pypiName)
		if errors.Is(err, sql.ErrNoRows) {
			return CanonicalNames{CondaName: name, PyPIName: name}, nil
		}
		if err != nil {
			return CanonicalNames{}, err
		}
		return CanonicalNames{CondaName: condaName, PyPIName: pypiName}, nil

	case QueryPyPI:
		var condaName string
		err := d.db.QueryRowContext(ctx,
			"SELECT conda_name FROM name_mapping WHERE pypi_name LIKE ?", name).Scan(&condaName)
		if errors.Is(err, sql.ErrNoRows) {
			return CanonicalNames{CondaName: name, PyPIName: name}, nil
		}
		if err != nil {
			return CanonicalNames{}, err
		}
		return CanonicalNames{CondaName: condaName, PyPIName: name}, nil

	default:
		return CanonicalNames{}, fmt.Errorf("unknown query type %v", queryType)
	}
}
