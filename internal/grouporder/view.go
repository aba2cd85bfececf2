package grouporder

import "fmt"

// State is the client-side phase of a group order session.
type State int

const (
	StateSelectingPeopleCount State = iota
	StateCollectingNames
	StateOrdering
	StateReviewing
	StatePlaced
)

func (s State) String() string {
	switch s {
	case StateSelectingPeopleCount:
		return "SELECTING_PEOPLE_COUNT"
	case StateCollectingNames:
		return "COLLECTING_NAMES"
	case StateOrdering:
		return "ORDERING"
	case StateReviewing:
		return "REVIEWING"
	case StatePlaced:
		return "PLACED"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

const (
	SubViewShared      = "shared"
	SubViewParticipant = "participant"
)

// SubView is the cart currently shown while ordering.
type SubView struct {
	Kind        string `json:"kind"`
	PersonIndex int    `json:"personIndex"`
}

// View is the read-only render model pushed to the UI after every change.
// Revision increases monotonically per session so late deliveries can be dropped.
type View struct {
	Revision        uint64           `json:"revision"`
	SessionID       string           `json:"sessionId"`
	Code            string           `json:"code"`
	State           State            `json:"state"`
	SubView         SubView          `json:"subView"`
	Status          string           `json:"status"`
	NumPeople       int              `json:"numPeople"`
	Participants    []Participant    `json:"participants"`
	SharedItems     []SharedCartLine `json:"sharedItems"`
	OrderPlaced     bool             `json:"orderPlaced"`
	AllFinished     bool             `json:"allFinished"`
	ShowPricesToAll bool             `json:"showPricesToAll"`
	ViewerID        *string          `json:"viewerId"`
	IsOwner         bool             `json:"isOwner"`
	MySlot          int              `json:"mySlot"`
	NeedsName       bool             `json:"needsName"`
	PricesVisible   bool             `json:"pricesVisible"`
	Totals          Totals           `json:"totals"`
	PendingWrites   int              `json:"pendingWrites"`
}
