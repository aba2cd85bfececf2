package grouporder

import "strings"

// ClaimAndAddItem adds one unit of itemID to a participant's cart. An unclaimed slot
// is claimed by requester and locked in the same participants value, so both land
// in a single store write.
func ClaimAndAddItem(o GroupOrder, catalog Catalog, personIndex int, itemID string, requester *string) ([]Participant, error) {
	if o.OrderPlaced {
		return nil, ErrOrderPlaced
	}
	if personIndex < 0 || personIndex >= len(o.Participants) {
		return nil, ErrUnknownParticipant
	}
	if item, ok := catalog.Lookup(itemID); !ok || !item.Available() {
		return nil, ErrItemUnavailable
	}
	if err := guardParticipantCart(o, personIndex, requester); err != nil {
		return nil, err
	}

	ps := cloneParticipants(o.Participants)
	p := &ps[personIndex]
	if p.UserID == nil {
		id := *requester
		p.UserID = &id
		p.Locked = true
	}

	for i := range p.Items {
		if p.Items[i].ID == itemID {
			p.Items[i].Quantity++
			return ps, nil
		}
	}
	p.Items = append(p.Items, CartLine{ID: itemID, Quantity: 1})
	return ps, nil
}

// RenameParticipant sets a display name. Blank input keeps the previous name.
func RenameParticipant(o GroupOrder, personIndex int, name string, requester *string) ([]Participant, error) {
	if o.OrderPlaced {
		return nil, ErrOrderPlaced
	}
	if personIndex < 0 || personIndex >= len(o.Participants) {
		return nil, ErrUnknownParticipant
	}
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return nil, ErrEmptyName
	}
	p := o.Participants[personIndex]
	if p.Locked || p.UserID != nil {
		if requester == nil || !p.claimedBy(*requester) {
			return nil, ErrSlotLocked
		}
	}

	ps := cloneParticipants(o.Participants)
	ps[personIndex].Name = trimmed
	return ps, nil
}

// FinishParticipant marks a slot finished. Only the slot's own diner or the owner may
// do it, and there is no way back to unfinished.
func FinishParticipant(o GroupOrder, personIndex int, requester *string, isOwner bool) ([]Participant, error) {
	if o.OrderPlaced {
		return nil, ErrOrderPlaced
	}
	if personIndex < 0 || personIndex >= len(o.Participants) {
		return nil, ErrUnknownParticipant
	}
	p := o.Participants[personIndex]
	if !isOwner && (requester == nil || !p.claimedBy(*requester)) {
		return nil, ErrNotYourSlot
	}

	ps := cloneParticipants(o.Participants)
	ps[personIndex].Finished = true
	return ps, nil
}

// ResizeParticipants grows with unclaimed placeholder slots or truncates from the tail.
// Truncation drops whatever the removed slots held, claims included.
func ResizeParticipants(ps []Participant, n int) []Participant {
	if n < 0 {
		n = 0
	}
	out := cloneParticipants(ps)
	if n <= len(out) {
		return out[:n]
	}
	for i := len(out); i < n; i++ {
		out = append(out, Participant{
			PersonIndex: i,
			Name:        PlaceholderName(i),
			Items:       []CartLine{},
		})
	}
	return out
}

func allNamed(ps []Participant) bool {
	for _, p := range ps {
		if strings.TrimSpace(p.Name) == "" {
			return false
		}
	}
	return true
}
