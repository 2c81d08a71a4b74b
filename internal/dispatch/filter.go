package dispatch

import "github.com/pdl/orcastream/internal/domain"

// Filter reports whether q names a stream. Queries failing it are never dispatched.
func Filter(q domain.Query) bool {
	return q.Stream != ""
}

// FilterQueries returns the queries passing Filter, in their original order.
func FilterQueries(queries []domain.Query) []domain.Query {
	out := make([]domain.Query, 0, len(queries))
	for _, q := range queries {
		if Filter(q) {
			out = append(out, q)
		}
	}
	return out
}

// AddressFor returns the live channel address of q for the data source namespace.
func AddressFor(namespace string, q domain.Query) domain.Address {
	return domain.Address{Scope: domain.ScopeDataSource, Namespace: namespace, Path: q.Stream}
}
