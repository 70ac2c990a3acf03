package listsync

import (
	"testing"

	"github.com/go-playground/assert/v2"
)

func TestTotalSpent(t *testing.T) {
	total := TotalSpent([]Item{
		{Name: "Pan", Price: "10"},
		{Name: "Leche", Price: "abc"},
		{Name: "Huevos", Price: "5.5"},
	})
	// unparsable prices contribute zero
	assert.Equal(t, total, 15.5)
}

func TestTotalSpentIgnoresQuantity(t *testing.T) {
	// the total sums price literally, it does not multiply by quantity
	total := TotalSpent([]Item{
		{Name: "Pan", Quantity: "3", Price: "2"},
	})
	assert.Equal(t, total, 2.0)
}

func TestTotalSpentEmpty(t *testing.T) {
	assert.Equal(t, TotalSpent([]Item{}), 0.0)
	assert.Equal(t, TotalSpent(nil), 0.0)
}

func TestTotalSpentOfEntries(t *testing.T) {
	total := TotalSpentOfEntries([]Entry[Item]{
		{Id: "A", Value: Item{Price: "1.25"}},
		{Id: "B", Value: Item{Price: "0.75"}},
	})
	assert.Equal(t, total, 2.0)
}
