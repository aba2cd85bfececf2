package grouporder

// guardParticipantCart rejects cart mutations on a frozen order, a missing slot, an
// anonymous requester, or a slot claimed by someone else.
func guardParticipantCart(o GroupOrder, personIndex int, requester *string) error {
	if o.OrderPlaced {
		return ErrOrderPlaced
	}
	if personIndex < 0 || personIndex >= len(o.Participants) {
		return ErrUnknownParticipant
	}
	if requester == nil {
		return ErrAnonymous
	}
	p := o.Participants[personIndex]
	if (p.Locked || p.UserID != nil) && !p.claimedBy(*requester) {
		return ErrSlotLocked
	}
	return nil
}

// AddItem is the per-participant add; adding to a slot claims it.
func AddItem(o GroupOrder, catalog Catalog, personIndex int, itemID string, requester *string) ([]Participant, error) {
	return ClaimAndAddItem(o, catalog, personIndex, itemID, requester)
}

// SetQuantity replaces the quantity of an existing line. Zero keeps the line.
func SetQuantity(o GroupOrder, personIndex int, itemID string, quantity int, requester *string) ([]Participant, error) {
	if err := guardParticipantCart(o, personIndex, requester); err != nil {
		return nil, err
	}
	if quantity < 0 {
		return nil, ErrInvalidQuantity
	}

	ps := cloneParticipants(o.Participants)
	items := ps[personIndex].Items
	for i := range items {
		if items[i].ID == itemID {
			items[i].Quantity = quantity
			return ps, nil
		}
	}
	return nil, ErrUnknownLine
}

// AdjustQuantity moves a line's quantity by delta, refusing to go below zero.
func AdjustQuantity(o GroupOrder, personIndex int, itemID string, delta int, requester *string) ([]Participant, error) {
	if err := guardParticipantCart(o, personIndex, requester); err != nil {
		return nil, err
	}
	for _, line := range o.Participants[personIndex].Items {
		if line.ID == itemID {
			return SetQuantity(o, personIndex, itemID, line.Quantity+delta, requester)
		}
	}
	return nil, ErrUnknownLine
}

func RemoveLine(o GroupOrder, personIndex int, itemID string, requester *string) ([]Participant, error) {
	if err := guardParticipantCart(o, personIndex, requester); err != nil {
		return nil, err
	}

	ps := cloneParticipants(o.Participants)
	items := make([]CartLine, 0, len(ps[personIndex].Items))
	found := false
	for _, line := range ps[personIndex].Items {
		if line.ID == itemID {
			found = true
			continue
		}
		items = append(items, line)
	}
	if !found {
		return nil, ErrUnknownLine
	}
	ps[personIndex].Items = items
	return ps, nil
}

// ParticipantSubtotal skips lines whose item no longer resolves in the catalog.
func ParticipantSubtotal(p Participant, catalog Catalog) int64 {
	var total int64
	for _, line := range p.Items {
		item, ok := catalog.Lookup(line.ID)
		if !ok {
			continue
		}
		total += item.Price * int64(line.Quantity)
	}
	return total
}
