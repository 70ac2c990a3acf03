package listsync

// conversion between the wire representation (untyped nested maps) and the
// typed entities. decoding is total and defensive: missing fields default to
// empty strings, and a node that cannot be interpreted as the target shape
// yields ok=false so the caller skips it instead of aborting the batch.

// decodes one child of the collection root. the node must carry an `info`
// child with the section metadata; a section without it is treated as absent.
func DecodeSection(sectionId string, node any) (Section, bool) {
	children, ok := node.(map[string]any)
	if !ok {
		return Section{}, false
	}
	info, ok := children[InfoKey]
	if !ok {
		return Section{}, false
	}
	return DecodeSectionInfo(sectionId, info)
}

// decodes a section `info` node directly
func DecodeSectionInfo(sectionId string, node any) (Section, bool) {
	info, ok := node.(map[string]any)
	if !ok {
		return Section{}, false
	}
	return Section{
		Name:      stringField(info, fieldNombre),
		CreatedAt: stringField(info, fieldFechaCreacion),
		Id:        sectionId,
	}, true
}

// decodes one child of a section node. the reserved metadata key is never an
// item.
func DecodeItem(itemId string, node any) (Item, bool) {
	if itemId == InfoKey {
		return Item{}, false
	}
	fields, ok := node.(map[string]any)
	if !ok {
		return Item{}, false
	}
	return Item{
		Name:     stringField(fields, fieldProducto),
		Quantity: stringField(fields, fieldCantidad),
		Price:    stringField(fields, fieldPrecio),
		Id:       itemId,
	}, true
}

// structural inverse of `DecodeSectionInfo`
func EncodeSectionInfo(section Section) map[string]any {
	return map[string]any{
		fieldNombre:        section.Name,
		fieldFechaCreacion: section.CreatedAt,
	}
}

// structural inverse of `DecodeItem`
func EncodeItem(item Item) map[string]any {
	return map[string]any{
		fieldProducto: item.Name,
		fieldCantidad: item.Quantity,
		fieldPrecio:   item.Price,
	}
}

func stringField(fields map[string]any, field string) string {
	if value, ok := fields[field].(string); ok {
		return value
	}
	return ""
}
