// Package types provides the document model shared by the store and its callers.
package types

import "strings"

// Datatype is the storage class of a value in the Values relation.
type Datatype int

const (
	// DatatypeUnknown is used when a stored datatype name is not recognized.
	DatatypeUnknown Datatype = iota - 1
	// DatatypeRowUID is the INTEGER row id column type.
	DatatypeRowUID
	// DatatypeData holds raw bytes. Never used for text matching.
	DatatypeData
	// DatatypeString holds text.
	DatatypeString
	// DatatypeDate holds a time normalized with DateFormat.
	DatatypeDate
	// DatatypeNumber holds integers, floats and booleans.
	DatatypeNumber
	// DatatypeNull marks an explicit null leaf.
	DatatypeNull
	// DatatypeURL holds a locator in its string form.
	DatatypeURL
	// DatatypeMap is a nested map. Containers never become triples.
	DatatypeMap
	// DatatypeList is an ordered list. Containers never become triples.
	DatatypeList
)

var datatypeNames = map[Datatype]string{
	DatatypeUnknown: "UNKNOWN",
	DatatypeRowUID:  "INTEGER",
	DatatypeData:    "BLOB",
	DatatypeString:  "TEXT",
	DatatypeDate:    "DATE",
	DatatypeNumber:  "REAL",
	DatatypeNull:    "NULL",
	DatatypeURL:     "URL",
	DatatypeMap:     "MAP",
	DatatypeList:    "LIST",
}

// String returns the name stored in the NSFDatatype column.
func (d Datatype) String() string {
	if name, ok := datatypeNames[d]; ok {
		return name
	}
	return datatypeNames[DatatypeUnknown]
}

// IsContainer reports whether d is a map or a list.
func (d Datatype) IsContainer() bool {
	return d == DatatypeMap || d == DatatypeList
}

// ParseDatatype is the inverse of Datatype.String. Unknown names map to
// DatatypeUnknown.
func ParseDatatype(name string) Datatype {
	upper := strings.ToUpper(strings.TrimSpace(name))
	for dt, n := range datatypeNames {
		if n == upper {
			return dt
		}
	}
	return DatatypeUnknown
}
