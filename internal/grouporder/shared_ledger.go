package grouporder

// AddToShared returns the shared cart with one more unit of itemID.
func AddToShared(o GroupOrder, catalog Catalog, itemID string) ([]SharedCartLine, error) {
	if o.OrderPlaced {
		return nil, ErrOrderPlaced
	}
	if item, ok := catalog.Lookup(itemID); !ok || !item.Available() {
		return nil, ErrItemUnavailable
	}

	lines := cloneSharedItems(o.SharedItems)
	for i := range lines {
		if lines[i].ItemID == itemID {
			lines[i].Quantity++
			return lines, nil
		}
	}
	return append(lines, SharedCartLine{ItemID: itemID, Quantity: 1, PersonIDs: []string{}}), nil
}

// SetSharedQuantity replaces the quantity of an existing line. Zero keeps the line.
func SetSharedQuantity(o GroupOrder, itemID string, quantity int) ([]SharedCartLine, error) {
	if o.OrderPlaced {
		return nil, ErrOrderPlaced
	}
	if quantity < 0 {
		return nil, ErrInvalidQuantity
	}

	lines := cloneSharedItems(o.SharedItems)
	for i := range lines {
		if lines[i].ItemID == itemID {
			lines[i].Quantity = quantity
			return lines, nil
		}
	}
	return nil, ErrUnknownLine
}

// AdjustSharedQuantity moves a line's quantity by delta, refusing to go below zero.
func AdjustSharedQuantity(o GroupOrder, itemID string, delta int) ([]SharedCartLine, error) {
	for _, line := range o.SharedItems {
		if line.ItemID == itemID {
			return SetSharedQuantity(o, itemID, line.Quantity+delta)
		}
	}
	if o.OrderPlaced {
		return nil, ErrOrderPlaced
	}
	return nil, ErrUnknownLine
}

func RemoveSharedLine(o GroupOrder, itemID string) ([]SharedCartLine, error) {
	if o.OrderPlaced {
		return nil, ErrOrderPlaced
	}

	lines := make([]SharedCartLine, 0, len(o.SharedItems))
	found := false
	for _, line := range cloneSharedItems(o.SharedItems) {
		if line.ItemID == itemID {
			found = true
			continue
		}
		lines = append(lines, line)
	}
	if !found {
		return nil, ErrUnknownLine
	}
	return lines, nil
}

// SharedSubtotal skips lines whose item no longer resolves in the catalog.
func SharedSubtotal(lines []SharedCartLine, catalog Catalog) int64 {
	var total int64
	for _, line := range lines {
		item, ok := catalog.Lookup(line.ItemID)
		if !ok {
			continue
		}
		total += item.Price * int64(line.Quantity)
	}
	return total
}
