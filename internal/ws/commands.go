package ws

import (
	"errors"
	"fmt"

	"grouporder-services/internal/auth"
	"grouporder-services/internal/grouporder"
)

const (
	frameView   = "group-order.view"
	frameClosed = "group-order.closed"
	frameError  = "error"
	frameAck    = "ack"
)

type viewFrame struct {
	Type string          `json:"type"`
	Data grouporder.View `json:"data"`
}

type closedFrame struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

type errorFrame struct {
	Type      string `json:"type"`
	Op        string `json:"op,omitempty"`
	RequestID string `json:"requestId,omitempty"`
	Code      string `json:"code"`
	Message   string `json:"message"`
}

type ackFrame struct {
	Type      string `json:"type"`
	Op        string `json:"op"`
	RequestID string `json:"requestId,omitempty"`
}

// command is one client request. Fields not used by a command are ignored.
type command struct {
	Type        string `json:"type"`
	RequestID   string `json:"requestId"`
	Count       int    `json:"count"`
	PersonIndex int    `json:"personIndex"`
	Name        string `json:"name"`
	ItemID      string `json:"itemId"`
	Quantity    int    `json:"quantity"`
	Delta       int    `json:"delta"`
	Token       string `json:"token"`
}

var (
	errUnknownCommand = errors.New("unknown command")
	errInvalidToken   = errors.New("invalid token")
)

func (s *Server) dispatch(sess *grouporder.Session, identity *auth.Identity, cmd command) error {
	switch cmd.Type {
	case "auth":
		if cmd.Token == "" {
			identity.Set("")
		} else if _, err := identity.Authenticate(cmd.Token, s.Config.JWTSecret); err != nil {
			return fmt.Errorf("%w: %v", errInvalidToken, err)
		}
		// The identity feeds every render, so re-render for the new viewer.
		sess.Refresh()
		return nil
	case "set_count":
		return sess.SetParticipantCount(cmd.Count)
	case "confirm_count":
		return sess.ConfirmParticipantCount()
	case "rename":
		return sess.RenameParticipant(cmd.PersonIndex, cmd.Name)
	case "start":
		return sess.StartOrdering()
	case "view_shared":
		return sess.SelectShared()
	case "view_participant":
		return sess.SelectParticipant(cmd.PersonIndex)
	case "claim_add":
		return sess.ClaimAndAddItem(cmd.PersonIndex, cmd.ItemID)
	case "add_item":
		return sess.AddItem(cmd.PersonIndex, cmd.ItemID)
	case "set_quantity":
		return sess.SetQuantity(cmd.PersonIndex, cmd.ItemID, cmd.Quantity)
	case "adjust":
		return sess.AdjustQuantity(cmd.PersonIndex, cmd.ItemID, cmd.Delta)
	case "remove_line":
		return sess.RemoveLine(cmd.PersonIndex, cmd.ItemID)
	case "finish":
		return sess.FinishParticipant(cmd.PersonIndex)
	case "add_shared":
		return sess.AddToShared(cmd.ItemID)
	case "set_shared_quantity":
		return sess.SetSharedQuantity(cmd.ItemID, cmd.Quantity)
	case "adjust_shared":
		return sess.AdjustSharedQuantity(cmd.ItemID, cmd.Delta)
	case "remove_shared":
		return sess.RemoveSharedLine(cmd.ItemID)
	case "toggle_prices":
		return sess.ToggleShowPrices()
	case "review":
		return sess.BeginReview()
	case "back_to_ordering":
		return sess.ReturnToOrdering()
	case "place":
		return sess.PlaceOrder()
	default:
		return errUnknownCommand
	}
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, errUnknownCommand):
		return "UNKNOWN_COMMAND"
	case errors.Is(err, errInvalidToken):
		return "UNAUTHORIZED"
	case errors.Is(err, grouporder.ErrOrderPlaced):
		return "ORDER_PLACED"
	case errors.Is(err, grouporder.ErrItemUnavailable):
		return "ITEM_UNAVAILABLE"
	case errors.Is(err, grouporder.ErrSlotLocked):
		return "SLOT_LOCKED"
	case errors.Is(err, grouporder.ErrNotYourSlot):
		return "NOT_YOUR_SLOT"
	case errors.Is(err, grouporder.ErrNotOwner):
		return "NOT_OWNER"
	case errors.Is(err, grouporder.ErrInvalidQuantity):
		return "INVALID_QUANTITY"
	case errors.Is(err, grouporder.ErrEmptyName):
		return "EMPTY_NAME"
	case errors.Is(err, grouporder.ErrNamesMissing):
		return "NAMES_MISSING"
	case errors.Is(err, grouporder.ErrNotAllFinished):
		return "NOT_ALL_FINISHED"
	case errors.Is(err, grouporder.ErrInvalidState):
		return "INVALID_STATE"
	case errors.Is(err, grouporder.ErrUnknownParticipant):
		return "UNKNOWN_PARTICIPANT"
	case errors.Is(err, grouporder.ErrUnknownLine):
		return "UNKNOWN_LINE"
	case errors.Is(err, grouporder.ErrAnonymous):
		return "ANONYMOUS"
	case errors.Is(err, grouporder.ErrInvalidCount):
		return "INVALID_COUNT"
	case errors.Is(err, grouporder.ErrSessionVanished):
		return "SESSION_VANISHED"
	case errors.Is(err, grouporder.ErrClosed):
		return "SESSION_CLOSED"
	default:
		return "INTERNAL_ERROR"
	}
}
