package grouporder

import "errors"

var (
	ErrOrderPlaced        = errors.New("order already placed")
	ErrItemUnavailable    = errors.New("item not available")
	ErrSlotLocked         = errors.New("participant slot is locked by another diner")
	ErrNotYourSlot        = errors.New("participant slot belongs to another diner")
	ErrNotOwner           = errors.New("only the session owner can do this")
	ErrInvalidQuantity    = errors.New("quantity must not be negative")
	ErrEmptyName          = errors.New("name must not be empty")
	ErrNamesMissing       = errors.New("every participant needs a name")
	ErrNotAllFinished     = errors.New("not every participant has finished")
	ErrInvalidState       = errors.New("operation not allowed in the current state")
	ErrUnknownParticipant = errors.New("participant not found")
	ErrUnknownLine        = errors.New("cart line not found")
	ErrAnonymous          = errors.New("sign in to claim a participant slot")
	ErrInvalidCount       = errors.New("invalid participant count")
	ErrSessionVanished    = errors.New("group order session vanished")
	ErrClosed             = errors.New("session closed")
)

// rejectReason maps a rejection to a short metric label.
func rejectReason(err error) string {
	switch {
	case errors.Is(err, ErrOrderPlaced):
		return "order_placed"
	case errors.Is(err, ErrItemUnavailable):
		return "item_unavailable"
	case errors.Is(err, ErrSlotLocked):
		return "slot_locked"
	case errors.Is(err, ErrNotYourSlot):
		return "not_your_slot"
	case errors.Is(err, ErrNotOwner):
		return "not_owner"
	case errors.Is(err, ErrInvalidQuantity):
		return "invalid_quantity"
	case errors.Is(err, ErrEmptyName), errors.Is(err, ErrNamesMissing):
		return "name"
	case errors.Is(err, ErrNotAllFinished):
		return "not_finished"
	case errors.Is(err, ErrInvalidState):
		return "state"
	case errors.Is(err, ErrAnonymous):
		return "anonymous"
	default:
		return "other"
	}
}
