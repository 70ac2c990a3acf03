package listsync

import (
	"strconv"
)

// TotalSpent sums the parsed price of each item. quantity is deliberately not
// multiplied in, matching the behavior every deployed client renders as
// "total de gastos". unparsable prices contribute zero.
func TotalSpent(items []Item) float64 {
	total := float64(0)
	for _, item := range items {
		if price, err := strconv.ParseFloat(item.Price, 64); err == nil {
			total += price
		}
	}
	return total
}

// TotalSpentOfEntries is `TotalSpent` over a projection snapshot
func TotalSpentOfEntries(entries []Entry[Item]) float64 {
	return TotalSpent(Values(entries))
}
