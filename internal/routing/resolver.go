package routing

import (
	"github.com/nopaper/gateway/internal/observability"
	"github.com/nopaper/gateway/internal/store"
)

// compiledRoute pairs a definition with its compiled predicates.
type compiledRoute struct {
	def    *Definition
	path   *pathMatcher
	method *methodMatcher
}

// Table is an immutable compiled route table. A new table is built on each
// route-table refresh and swapped in atomically by the cache.
type Table struct {
	routes []compiledRoute
}

// Match returns the first route whose predicates match the request, or nil
// when no route matches. Routes are evaluated in the stored order.
func (t *Table) Match(method, path string) *Definition {
	for i := range t.routes {
		r := &t.routes[i]
		if r.method.match(method) && r.path.match(path) {
			return r.def
		}
	}
	return nil
}

// Len returns the number of routes in the table.
func (t *Table) Len() int {
	return len(t.routes)
}

// Definitions returns the definitions backing the table.
func (t *Table) Definitions() []*Definition {
	defs := make([]*Definition, len(t.routes))
	for i := range t.routes {
		defs[i] = t.routes[i].def
	}
	return defs
}

// Resolver converts stored route rows into compiled tables.
type Resolver struct {
	logger observability.Logger
}

// NewResolver creates a resolver.
func NewResolver(logger observability.Logger) *Resolver {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Resolver{logger: logger}
}

// ResolveRows maps stored rows to definitions. Rows that fail validation
// are skipped and logged so one bad row cannot take down the whole table.
func (r *Resolver) ResolveRows(rows []store.RouteRow) []*Definition {
	defs := make([]*Definition, 0, len(rows))
	for i := range rows {
		def, err := FromRow(&rows[i])
		if err != nil {
			r.logger.Warn("skipping invalid route row",
				observability.String("route_id", rows[i].RouteID),
				observability.Error(err),
			)
			continue
		}
		defs = append(defs, def)
	}
	return defs
}

// Compile builds a matchable table from definitions. Definitions whose
// pattern fails to compile are skipped and logged.
func (r *Resolver) Compile(defs []*Definition) *Table {
	table := &Table{routes: make([]compiledRoute, 0, len(defs))}
	for _, def := range defs {
		pm, err := newPathMatcher(def.PathPattern)
		if err != nil {
			r.logger.Warn("skipping route with invalid path pattern",
				observability.String("route_id", def.RouteID),
				observability.String("pattern", def.PathPattern),
				observability.Error(err),
			)
			continue
		}
		table.routes = append(table.routes, compiledRoute{
			def:    def,
			path:   pm,
			method: newMethodMatcher(def.Method),
		})
	}
	return table
}
