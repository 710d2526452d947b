package collection

import "github.com/myglasscase/glasscase/internal/app/model"

// Stats aggregates a public collection.
type Stats struct {
	TotalItems    int
	TotalValue    float64
	Categories    []string
	Manufacturers []string
	// OldestYear and NewestYear are nil when no item carries a year.
	OldestYear *int
	NewestYear *int
}

// Summarize counts quantities rather than rows; a missing or non-positive quantity counts as one.
func Summarize(items []model.PublicItem) Stats {
	st := Stats{
		Categories:    []string{},
		Manufacturers: []string{},
	}
	seenCategory := make(map[string]struct{})
	seenManufacturer := make(map[string]struct{})

	for _, it := range items {
		qty := quantity(it.Quantity)
		st.TotalItems += qty
		if it.CurrentValue != nil {
			st.TotalValue += *it.CurrentValue * float64(qty)
		}

		st.Categories = appendDistinct(st.Categories, seenCategory, it.Category)
		st.Manufacturers = appendDistinct(st.Manufacturers, seenManufacturer, it.Manufacturer)

		if it.YearManufactured == nil || *it.YearManufactured == 0 {
			continue
		}
		year := *it.YearManufactured
		if st.OldestYear == nil || year < *st.OldestYear {
			y := year
			st.OldestYear = &y
		}
		if st.NewestYear == nil || year > *st.NewestYear {
			y := year
			st.NewestYear = &y
		}
	}
	return st
}

func quantity(q *int) int {
	if q == nil || *q < 1 {
		return 1
	}
	return *q
}

func appendDistinct(dst []string, seen map[string]struct{}, v *string) []string {
	if v == nil || *v == "" {
		return dst
	}
	if _, ok := seen[*v]; ok {
		return dst
	}
	seen[*v] = struct{}{}
	return append(dst, *v)
}
