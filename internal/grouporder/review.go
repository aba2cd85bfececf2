package grouporder

import (
	"context"
	"time"
)

type LineTotal struct {
	ItemID    string `json:"itemId"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unitPrice,omitempty"`
	Subtotal  int64  `json:"subtotal,omitempty"`
	Resolved  bool   `json:"resolved"`
}

type ParticipantTotal struct {
	PersonIndex int         `json:"personIndex"`
	Name        string      `json:"name"`
	Finished    bool        `json:"finished"`
	Lines       []LineTotal `json:"lines"`
	Subtotal    int64       `json:"subtotal,omitempty"`
}

// Totals is the review summary of a group order.
type Totals struct {
	Shared         []LineTotal        `json:"shared"`
	SharedSubtotal int64              `json:"sharedSubtotal,omitempty"`
	Participants   []ParticipantTotal `json:"participants"`
	GrandTotal     int64              `json:"grandTotal,omitempty"`
	PricesHidden   bool               `json:"pricesHidden"`
}

func lineTotal(catalog Catalog, itemID string, quantity int) LineTotal {
	lt := LineTotal{ItemID: itemID, Name: itemID, Quantity: quantity}
	if item, ok := catalog.Lookup(itemID); ok {
		lt.Name = item.Name
		lt.UnitPrice = item.Price
		lt.Subtotal = item.Price * int64(quantity)
		lt.Resolved = true
	}
	return lt
}

// ComputeTotals prices the current cache. It performs no store I/O.
func ComputeTotals(o GroupOrder, catalog Catalog) Totals {
	t := Totals{
		Shared:       make([]LineTotal, 0, len(o.SharedItems)),
		Participants: make([]ParticipantTotal, 0, len(o.Participants)),
	}
	for _, line := range o.SharedItems {
		t.Shared = append(t.Shared, lineTotal(catalog, line.ItemID, line.Quantity))
	}
	t.SharedSubtotal = SharedSubtotal(o.SharedItems, catalog)
	t.GrandTotal = t.SharedSubtotal

	for _, p := range o.Participants {
		pt := ParticipantTotal{
			PersonIndex: p.PersonIndex,
			Name:        p.Name,
			Finished:    p.Finished,
			Lines:       make([]LineTotal, 0, len(p.Items)),
			Subtotal:    ParticipantSubtotal(p, catalog),
		}
		for _, line := range p.Items {
			pt.Lines = append(pt.Lines, lineTotal(catalog, line.ID, line.Quantity))
		}
		t.Participants = append(t.Participants, pt)
		t.GrandTotal += pt.Subtotal
	}
	return t
}

// Redact strips every monetary figure, keeping the line items.
func (t Totals) Redact() Totals {
	out := Totals{
		Shared:       make([]LineTotal, len(t.Shared)),
		Participants: make([]ParticipantTotal, len(t.Participants)),
		PricesHidden: true,
	}
	for i, lt := range t.Shared {
		lt.UnitPrice, lt.Subtotal = 0, 0
		out.Shared[i] = lt
	}
	for i, pt := range t.Participants {
		lines := make([]LineTotal, len(pt.Lines))
		for j, lt := range pt.Lines {
			lt.UnitPrice, lt.Subtotal = 0, 0
			lines[j] = lt
		}
		pt.Lines = lines
		pt.Subtotal = 0
		out.Participants[i] = pt
	}
	return out
}

// PricesVisible is the review visibility rule.
func PricesVisible(viewerIsOwner bool, o GroupOrder) bool {
	return viewerIsOwner || o.ShowPricesToAll
}

// Submission is what the order-creation collaborator receives once an order is placed.
type Submission struct {
	SessionID    string           `json:"sessionId"`
	Code         string           `json:"code"`
	OwnerID      string           `json:"ownerId"`
	Participants []Participant    `json:"participants"`
	SharedItems  []SharedCartLine `json:"sharedItems"`
	Total        int64            `json:"total"`
	PlacedAt     time.Time        `json:"placedAt"`
}

// OrderSubmitter creates the standalone order record. It may be invoked more than
// once for the same session and must tolerate that.
type OrderSubmitter interface {
	Submit(ctx context.Context, sub Submission) error
}

func newSubmission(o GroupOrder, catalog Catalog, now time.Time) Submission {
	return Submission{
		SessionID:    o.ID,
		Code:         o.Code,
		OwnerID:      o.OwnerID,
		Participants: cloneParticipants(o.Participants),
		SharedItems:  cloneSharedItems(o.SharedItems),
		Total:        ComputeTotals(o, catalog).GrandTotal,
		PlacedAt:     now,
	}
}
