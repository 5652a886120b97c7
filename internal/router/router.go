// Package router groups dataset records by partition and publishes
// in-process notifications when partition files are written.
package router

import (
	"fmt"

	kerrors "github.com/dpblh/kite/internal/errors"
	"github.com/dpblh/kite/internal/layout"
	"github.com/dpblh/kite/pkg/partition"
)

// Group holds the records routed to one partition, in input order.
type Group struct {
	Key     partition.Key
	Path    string
	Records []interface{}
}

// Router computes the partition of each record using a strategy.
type Router struct {
	strategy *partition.Strategy
	accessor partition.FieldAccessor
}

// New creates a router. A nil strategy routes every record to the root
// partition; a nil accessor uses partition.DefaultAccessor.
func New(strategy *partition.Strategy, accessor partition.FieldAccessor) *Router {
	if accessor == nil {
		accessor = partition.DefaultAccessor
	}
	return &Router{strategy: strategy, accessor: accessor}
}

// Strategy returns the strategy records are routed with.
func (r *Router) Strategy() *partition.Strategy {
	return r.strategy
}

// Route computes the partition key and path for a single record.
func (r *Router) Route(record interface{}) (partition.Key, string, error) {
	if r.strategy == nil {
		return partition.Key{}, "", nil
	}

	key, err := r.strategy.Key(record, r.accessor)
	if err != nil {
		return partition.Key{}, "", err
	}
	path, err := layout.Path(r.strategy, key)
	if err != nil {
		return partition.Key{}, "", err
	}
	return key, path, nil
}

// ErrPathCollision matches errors from Group when two distinct keys render
// to the same partition path.
var ErrPathCollision = kerrors.New(kerrors.ErrCategoryPartition, kerrors.CodePathCollision, "partition path collision")

// Group routes records and groups them by partition path. The returned
// order lists paths in first-seen order. Records whose keys share a path
// without being equivalent, such as "1" and 1, fail with ErrPathCollision.
func (r *Router) Group(records []interface{}) (map[string]*Group, []string, error) {
	groups := make(map[string]*Group)
	var order []string
	for i, record := range records {
		key, path, err := r.Route(record)
		if err != nil {
			return nil, nil, fmt.Errorf("routing: record %d: %w", i, err)
		}
		g, ok := groups[path]
		if !ok {
			g = &Group{Key: key, Path: path}
			groups[path] = g
			order = append(order, path)
		} else if !g.Key.Equivalent(key) {
			return nil, nil, kerrors.Newf(kerrors.ErrCategoryPartition, kerrors.CodePathCollision,
				"routing: record %d: partition path %q is shared by keys %v and %v", i, path, g.Key, key)
		}
		g.Records = append(g.Records, record)
	}
	return groups, order, nil
}
