package listsync

import (
	"strings"
)

// real-time synchronization of a shared purchase list over a tree-structured
// remote store.
//
// the remote tree is laid out as:
//
//	<root>/<sectionId>/info/{nombre, fechaCreacion}
//	<root>/<sectionId>/<itemId>/{producto, cantidad, precio}
//
// `info` is a reserved child key inside each section. every other child of a
// section is an item. ids are generated by the store's child key generator and
// never invented locally for persisted entities.

// default collection root path
const DefaultRootPath = "compras"

// reserved metadata child key inside each section
const InfoKey = "info"

// wire field names, shared with the deployed mobile clients
const (
	fieldNombre        = "nombre"
	fieldFechaCreacion = "fechaCreacion"
	fieldProducto      = "producto"
	fieldCantidad      = "cantidad"
	fieldPrecio        = "precio"
)

// a named grouping of purchase items
type Section struct {
	Name      string
	CreatedAt string
	// store-assigned key. empty until persisted.
	Id string
}

// a single purchase line inside one section.
// quantity and price are free-form strings, not guaranteed numeric.
type Item struct {
	Name     string
	Quantity string
	Price    string
	// store-assigned key. empty until persisted.
	Id string
}

// one decoded child of a subtree, keyed by its store id
type Entry[T any] struct {
	Id    string
	Value T
}

// the values of entries, in entry order
func Values[T any](entries []Entry[T]) []T {
	values := make([]T, len(entries))
	for i, entry := range entries {
		values[i] = entry.Value
	}
	return values
}

func joinPath(parts ...string) string {
	return strings.Join(parts, "/")
}

func splitPath(path string) []string {
	if path == "" {
		return []string{}
	}
	return strings.Split(path, "/")
}
