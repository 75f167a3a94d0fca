// Package index manages secondary indexes on attribute paths: partial
// indexes over the value rows of one path, recorded in the index metadata
// relation, and a policy that creates or drops them from usage statistics.
package index

import "context"

// Catalog creates, drops and lists attribute indexes. *engine.Engine
// implements it.
type Catalog interface {
	// CreateAttributeIndex creates the index name over attribute and records it.
	CreateAttributeIndex(ctx context.Context, name, attribute string) error

	// DropAttributeIndex drops the index of attribute and forgets it.
	DropAttributeIndex(ctx context.Context, attribute string) error

	// AttributeIndexes returns the recorded index names keyed by attribute.
	AttributeIndexes(ctx context.Context) (map[string]string, error)
}

// Info describes one attribute index.
type Info struct {
	Attribute string
	Name      string
}
