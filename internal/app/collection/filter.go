// Package collection turns an owner's inventory into the redacted view shown
// on a public share page.
package collection

import "github.com/myglasscase/glasscase/internal/app/model"

// Filter projects live items into public items, dropping every field hidden by s.
// Input order is preserved and items are never mutated.
func Filter(items []model.InventoryItem, s model.VisibilitySettings) []model.PublicItem {
	v := s.Effective()
	out := make([]model.PublicItem, 0, len(items))
	for i := range items {
		if !items[i].Live() {
			continue
		}
		p := items[i].Public()
		redact(&p, v)
		out = append(out, p)
	}
	return out
}

// Redact applies s to items that are already public. Applying it twice yields the same result.
func Redact(items []model.PublicItem, s model.VisibilitySettings) []model.PublicItem {
	v := s.Effective()
	out := make([]model.PublicItem, len(items))
	for i, p := range items {
		redact(&p, v)
		out[i] = p
	}
	return out
}

func redact(p *model.PublicItem, v model.Visibility) {
	if v.HidePurchasePrice {
		p.PurchasePrice = nil
	}
	if v.HidePurchaseDate {
		p.PurchaseDate = nil
	}
	if v.HideLocation {
		p.Location = nil
	}
	if v.HideDescription {
		p.Description = nil
	}
}
