package listsync

import (
	"flag"
	"testing"

	"github.com/go-playground/assert/v2"
)

func init() {
	initGlog()
}

func initGlog() {
	flag.Set("logtostderr", "true")
	flag.Set("stderrthreshold", "INFO")
	flag.Set("v", "0")
}

func TestSectionInfoCodecRoundTrip(t *testing.T) {
	section := Section{
		Name:      "Groceries",
		CreatedAt: "01/09/2026 10:30",
		Id:        "SEC1",
	}

	decoded, ok := DecodeSectionInfo("SEC1", EncodeSectionInfo(section))
	assert.Equal(t, ok, true)
	assert.Equal(t, decoded, section)
}

func TestItemCodecRoundTrip(t *testing.T) {
	item := Item{
		Name:     "Leche",
		Quantity: "2",
		Price:    "1.25",
		Id:       "ITEM1",
	}

	decoded, ok := DecodeItem("ITEM1", EncodeItem(item))
	assert.Equal(t, ok, true)
	assert.Equal(t, decoded, item)
}

func TestDecodeSectionRequiresInfo(t *testing.T) {
	// a section node with items but no metadata is treated as absent
	_, ok := DecodeSection("SEC1", map[string]any{
		"ITEM1": map[string]any{
			"producto": "Pan",
		},
	})
	assert.Equal(t, ok, false)

	_, ok = DecodeSection("SEC1", "not a node")
	assert.Equal(t, ok, false)

	_, ok = DecodeSection("SEC1", map[string]any{
		"info": "not a node",
	})
	assert.Equal(t, ok, false)
}

func TestDecodeDefaultsMissingFields(t *testing.T) {
	section, ok := DecodeSectionInfo("SEC1", map[string]any{
		"nombre": "Groceries",
	})
	assert.Equal(t, ok, true)
	assert.Equal(t, section.Name, "Groceries")
	assert.Equal(t, section.CreatedAt, "")

	item, ok := DecodeItem("ITEM1", map[string]any{
		"producto": "Pan",
		// a non-string field decodes as empty, not as a failure
		"precio": 12,
	})
	assert.Equal(t, ok, true)
	assert.Equal(t, item.Name, "Pan")
	assert.Equal(t, item.Quantity, "")
	assert.Equal(t, item.Price, "")
}

func TestDecodeItemReservedKey(t *testing.T) {
	// the metadata child can never decode as an item, whatever its shape
	_, ok := DecodeItem(InfoKey, map[string]any{
		"producto": "Pan",
		"cantidad": "1",
		"precio":   "2",
	})
	assert.Equal(t, ok, false)
}

func TestDecodeSectionFullNode(t *testing.T) {
	section, ok := DecodeSection("SEC1", map[string]any{
		"info": map[string]any{
			"nombre":        "Casa",
			"fechaCreacion": "02/09/2026 08:00",
		},
		"ITEM1": map[string]any{
			"producto": "Pan",
		},
	})
	assert.Equal(t, ok, true)
	assert.Equal(t, section, Section{
		Name:      "Casa",
		CreatedAt: "02/09/2026 08:00",
		Id:        "SEC1",
	})
}
