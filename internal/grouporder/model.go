package grouporder

import (
	"fmt"
	"regexp"
	"time"
)

// Collection is the document store collection holding group orders.
const Collection = "group_orders"

const (
	StatusSelecting = "selecting"
	StatusOrdering  = "ordering"
	StatusReviewing = "reviewing"
	StatusPlaced    = "placed"
)

// CartLine is one catalog item in a participant's cart.
type CartLine struct {
	ID       string `json:"id"`
	Quantity int    `json:"quantity"`
}

// SharedCartLine is one catalog item in the pool split among all diners.
// PersonIDs is informational and never mutated by the ledgers.
type SharedCartLine struct {
	ItemID    string   `json:"itemId"`
	Quantity  int      `json:"quantity"`
	PersonIDs []string `json:"personIds"`
}

type Participant struct {
	PersonIndex int        `json:"personIndex"`
	UserID      *string    `json:"userId"`
	Name        string     `json:"name"`
	Items       []CartLine `json:"items"`
	Locked      bool       `json:"locked"`
	Finished    bool       `json:"finished"`
}

// GroupOrder is the shared document every client of a session subscribes to.
type GroupOrder struct {
	ID              string           `json:"-"`
	Code            string           `json:"code"`
	OwnerID         string           `json:"ownerId"`
	Status          string           `json:"status"`
	Participants    []Participant    `json:"participants"`
	SharedItems     []SharedCartLine `json:"sharedItems"`
	OrderPlaced     bool             `json:"orderPlaced"`
	AllFinished     bool             `json:"allFinished"`
	ShowPricesToAll bool             `json:"showPricesToAll"`
	CreatedAt       time.Time        `json:"createdAt"`
}

var placeholderName = regexp.MustCompile(`^Persona \d+$`)

// PlaceholderName is the templated display name of an unnamed slot.
func PlaceholderName(personIndex int) string {
	return fmt.Sprintf("Persona %d", personIndex+1)
}

// IsPlaceholderName reports whether name was never edited by a diner.
func IsPlaceholderName(name string) bool {
	return placeholderName.MatchString(name)
}

func (p Participant) claimedBy(userID string) bool {
	return p.UserID != nil && *p.UserID == userID
}

func (p Participant) clone() Participant {
	out := p
	if p.UserID != nil {
		id := *p.UserID
		out.UserID = &id
	}
	if p.Items != nil {
		out.Items = make([]CartLine, len(p.Items))
		copy(out.Items, p.Items)
	}
	return out
}

func cloneParticipants(ps []Participant) []Participant {
	if ps == nil {
		return nil
	}
	out := make([]Participant, len(ps))
	for i, p := range ps {
		out[i] = p.clone()
	}
	return out
}

func cloneSharedItems(lines []SharedCartLine) []SharedCartLine {
	if lines == nil {
		return nil
	}
	out := make([]SharedCartLine, len(lines))
	for i, l := range lines {
		out[i] = l
		if l.PersonIDs != nil {
			out[i].PersonIDs = make([]string, len(l.PersonIDs))
			copy(out[i].PersonIDs, l.PersonIDs)
		}
	}
	return out
}

// Clone returns a deep copy so callers can hand the value out without sharing slices.
func (o GroupOrder) Clone() GroupOrder {
	out := o
	out.Participants = cloneParticipants(o.Participants)
	out.SharedItems = cloneSharedItems(o.SharedItems)
	return out
}

// ComputeAllFinished is the AND over every participant's finished flag.
// An empty participant list is vacuously finished.
func ComputeAllFinished(ps []Participant) bool {
	for _, p := range ps {
		if !p.Finished {
			return false
		}
	}
	return true
}

// SlotOf returns the index of the first participant claimed by userID, or -1.
func (o GroupOrder) SlotOf(userID *string) int {
	if userID == nil {
		return -1
	}
	for i, p := range o.Participants {
		if p.claimedBy(*userID) {
			return i
		}
	}
	return -1
}

// IsOwner reports whether userID owns the session.
func (o GroupOrder) IsOwner(userID *string) bool {
	return userID != nil && o.OwnerID != "" && *userID == o.OwnerID
}

// NewDocumentFields is the initial stored body of a freshly created session.
func NewDocumentFields(code, ownerID string, now time.Time) map[string]any {
	return map[string]any{
		"code":            code,
		"ownerId":         ownerID,
		"status":          StatusSelecting,
		"participants":    []Participant{},
		"sharedItems":     []SharedCartLine{},
		"orderPlaced":     false,
		"allFinished":     true,
		"showPricesToAll": false,
		"createdAt":       now.UTC(),
	}
}
