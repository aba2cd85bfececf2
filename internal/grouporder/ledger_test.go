package grouporder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func testCatalog() *StaticCatalog {
	return NewStaticCatalog([]CatalogItem{
		{ID: "X", Name: "Tacos", Price: 1000, Availability: AvailabilityAvailable},
		{ID: "Y", Name: "Horchata", Price: 350, Availability: AvailabilityAvailable},
		{ID: "Z", Name: "Pozole", Price: 1500, Availability: AvailabilitySoldOut},
	})
}

func orderWith(n int) GroupOrder {
	return GroupOrder{
		ID:           "s1",
		OwnerID:      "owner",
		Status:       StatusOrdering,
		Participants: ResizeParticipants(nil, n),
	}
}

func TestClaimAndAddItemClaimsUnclaimedSlot(t *testing.T) {
	o := orderWith(2)

	ps, err := ClaimAndAddItem(o, testCatalog(), 0, "X", strPtr("u1"))
	require.NoError(t, err)

	require.NotNil(t, ps[0].UserID)
	assert.Equal(t, "u1", *ps[0].UserID)
	assert.True(t, ps[0].Locked)
	assert.Equal(t, []CartLine{{ID: "X", Quantity: 1}}, ps[0].Items)
	assert.Nil(t, o.Participants[0].UserID, "input must not be mutated")

	o.Participants = ps
	ps, err = ClaimAndAddItem(o, testCatalog(), 0, "X", strPtr("u1"))
	require.NoError(t, err)
	assert.Equal(t, 2, ps[0].Items[0].Quantity)
}

func TestClaimAndAddItemRejections(t *testing.T) {
	locked := orderWith(2)
	locked.Participants[1].UserID = strPtr("u1")
	locked.Participants[1].Locked = true

	placed := orderWith(1)
	placed.OrderPlaced = true

	tests := []struct {
		name      string
		order     GroupOrder
		index     int
		itemID    string
		requester *string
		want      error
	}{
		{name: "sold out item", order: orderWith(1), index: 0, itemID: "Z", requester: strPtr("u1"), want: ErrItemUnavailable},
		{name: "unknown item", order: orderWith(1), index: 0, itemID: "nope", requester: strPtr("u1"), want: ErrItemUnavailable},
		{name: "locked by other", order: locked, index: 1, itemID: "X", requester: strPtr("u2"), want: ErrSlotLocked},
		{name: "owner cannot write into a claimed slot", order: locked, index: 1, itemID: "X", requester: strPtr("owner"), want: ErrSlotLocked},
		{name: "anonymous", order: orderWith(1), index: 0, itemID: "X", requester: nil, want: ErrAnonymous},
		{name: "out of range", order: orderWith(1), index: 3, itemID: "X", requester: strPtr("u1"), want: ErrUnknownParticipant},
		{name: "placed", order: placed, index: 0, itemID: "X", requester: strPtr("u1"), want: ErrOrderPlaced},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := tt.order.Clone()
			_, err := ClaimAndAddItem(tt.order, testCatalog(), tt.index, tt.itemID, tt.requester)
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, before, tt.order)
		})
	}
}

func TestQuantityNeverGoesNegative(t *testing.T) {
	o := orderWith(1)
	ps, err := ClaimAndAddItem(o, testCatalog(), 0, "X", strPtr("u1"))
	require.NoError(t, err)
	o.Participants = ps

	for i := 0; i < 3; i++ {
		next, err := AdjustQuantity(o, 0, "X", -1, strPtr("u1"))
		if err != nil {
			assert.ErrorIs(t, err, ErrInvalidQuantity)
			continue
		}
		o.Participants = next
	}
	assert.Equal(t, 0, o.Participants[0].Items[0].Quantity)

	_, err = SetQuantity(o, 0, "X", -4, strPtr("u1"))
	assert.ErrorIs(t, err, ErrInvalidQuantity)

	shared, err := AddToShared(o, testCatalog(), "Y")
	require.NoError(t, err)
	o.SharedItems = shared
	for i := 0; i < 3; i++ {
		next, err := AdjustSharedQuantity(o, "Y", -1)
		if err == nil {
			o.SharedItems = next
		}
	}
	assert.Equal(t, 0, o.SharedItems[0].Quantity)
}

func TestZeroQuantityIsNotRemoval(t *testing.T) {
	o := orderWith(1)
	shared, err := AddToShared(o, testCatalog(), "X")
	require.NoError(t, err)
	o.SharedItems = shared

	zeroed, err := SetSharedQuantity(o, "X", 0)
	require.NoError(t, err)
	require.Len(t, zeroed, 1)
	assert.Equal(t, 0, zeroed[0].Quantity)

	removed, err := RemoveSharedLine(o, "X")
	require.NoError(t, err)
	assert.Empty(t, removed)

	_, err = RemoveSharedLine(GroupOrder{SharedItems: removed}, "X")
	assert.ErrorIs(t, err, ErrUnknownLine)
}

func TestAddToSharedAppendsWithEmptyPersonIDs(t *testing.T) {
	o := orderWith(1)
	lines, err := AddToShared(o, testCatalog(), "Y")
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.NotNil(t, lines[0].PersonIDs)
	assert.Empty(t, lines[0].PersonIDs)

	o.SharedItems = lines
	lines, err = AddToShared(o, testCatalog(), "Y")
	require.NoError(t, err)
	assert.Equal(t, 2, lines[0].Quantity)

	_, err = AddToShared(o, testCatalog(), "Z")
	assert.ErrorIs(t, err, ErrItemUnavailable)
}

func TestFrozenAfterPlacement(t *testing.T) {
	o := orderWith(1)
	o.Participants[0].UserID = strPtr("u1")
	o.Participants[0].Locked = true
	o.Participants[0].Items = []CartLine{{ID: "X", Quantity: 1}}
	o.SharedItems = []SharedCartLine{{ItemID: "Y", Quantity: 1, PersonIDs: []string{}}}
	o.OrderPlaced = true
	u1 := strPtr("u1")

	_, err := AddToShared(o, testCatalog(), "X")
	assert.ErrorIs(t, err, ErrOrderPlaced)
	_, err = SetSharedQuantity(o, "Y", 3)
	assert.ErrorIs(t, err, ErrOrderPlaced)
	_, err = AdjustSharedQuantity(o, "Y", 1)
	assert.ErrorIs(t, err, ErrOrderPlaced)
	_, err = RemoveSharedLine(o, "Y")
	assert.ErrorIs(t, err, ErrOrderPlaced)
	_, err = AddItem(o, testCatalog(), 0, "X", u1)
	assert.ErrorIs(t, err, ErrOrderPlaced)
	_, err = SetQuantity(o, 0, "X", 2, u1)
	assert.ErrorIs(t, err, ErrOrderPlaced)
	_, err = RemoveLine(o, 0, "X", u1)
	assert.ErrorIs(t, err, ErrOrderPlaced)
	_, err = FinishParticipant(o, 0, u1, false)
	assert.ErrorIs(t, err, ErrOrderPlaced)
}

func TestRenameParticipant(t *testing.T) {
	o := orderWith(2)
	o.Participants[1].UserID = strPtr("u1")
	o.Participants[1].Locked = true

	ps, err := RenameParticipant(o, 0, "  Ana  ", nil)
	require.NoError(t, err)
	assert.Equal(t, "Ana", ps[0].Name)

	_, err = RenameParticipant(o, 0, "   ", strPtr("u1"))
	assert.ErrorIs(t, err, ErrEmptyName)

	_, err = RenameParticipant(o, 1, "Beto", strPtr("u2"))
	assert.ErrorIs(t, err, ErrSlotLocked)

	ps, err = RenameParticipant(o, 1, "Beto", strPtr("u1"))
	require.NoError(t, err)
	assert.Equal(t, "Beto", ps[1].Name)
}

func TestFinishParticipant(t *testing.T) {
	o := orderWith(2)
	o.Participants[0].UserID = strPtr("u1")

	_, err := FinishParticipant(o, 0, strPtr("u2"), false)
	assert.ErrorIs(t, err, ErrNotYourSlot)

	ps, err := FinishParticipant(o, 0, strPtr("u1"), false)
	require.NoError(t, err)
	assert.True(t, ps[0].Finished)
	assert.False(t, ComputeAllFinished(ps))

	o.Participants = ps
	ps, err = FinishParticipant(o, 1, strPtr("owner"), true)
	require.NoError(t, err)
	assert.True(t, ComputeAllFinished(ps))
}

func TestComputeAllFinished(t *testing.T) {
	assert.True(t, ComputeAllFinished(nil))
	assert.True(t, ComputeAllFinished([]Participant{}))
	assert.False(t, ComputeAllFinished([]Participant{{Finished: true}, {}}))
	assert.True(t, ComputeAllFinished([]Participant{{Finished: true}, {Finished: true}}))

	p := participantsPatch([]Participant{{Finished: false}})
	require.NotNil(t, p.AllFinished)
	assert.False(t, *p.AllFinished)
}

func TestResizeParticipantsTruncatesFromTail(t *testing.T) {
	ps := ResizeParticipants(nil, 3)
	require.Len(t, ps, 3)
	assert.Equal(t, "Persona 3", ps[2].Name)
	assert.Equal(t, 2, ps[2].PersonIndex)
	assert.True(t, IsPlaceholderName(ps[0].Name))

	ps[1].UserID = strPtr("u1")
	ps[1].Locked = true
	ps[1].Items = []CartLine{{ID: "X", Quantity: 2}}

	shrunk := ResizeParticipants(ps, 1)
	require.Len(t, shrunk, 1)
	assert.Nil(t, shrunk[0].UserID)

	grown := ResizeParticipants(shrunk, 2)
	require.Len(t, grown, 2)
	assert.Nil(t, grown[1].UserID, "claimed data is dropped, not restored")
	assert.Empty(t, grown[1].Items)
}

func TestComputeTotals(t *testing.T) {
	o := orderWith(2)
	o.Participants[0].Items = []CartLine{{ID: "X", Quantity: 1}}
	o.Participants[1].Items = []CartLine{{ID: "Y", Quantity: 2}, {ID: "gone", Quantity: 5}}
	o.SharedItems = []SharedCartLine{{ItemID: "Y", Quantity: 1}}

	totals := ComputeTotals(o, testCatalog())
	assert.Equal(t, int64(350), totals.SharedSubtotal)
	assert.Equal(t, int64(1000), totals.Participants[0].Subtotal)
	assert.Equal(t, int64(700), totals.Participants[1].Subtotal)
	assert.Equal(t, int64(2050), totals.GrandTotal)
	assert.False(t, totals.Participants[1].Lines[1].Resolved)

	hidden := totals.Redact()
	assert.True(t, hidden.PricesHidden)
	assert.Zero(t, hidden.GrandTotal)
	assert.Zero(t, hidden.Participants[1].Lines[0].UnitPrice)
	assert.Equal(t, 2, hidden.Participants[1].Lines[0].Quantity)
	assert.Equal(t, int64(2050), totals.GrandTotal, "redaction must not touch the source")
}

func TestScenarioATotals(t *testing.T) {
	o := orderWith(2)
	ps, err := ClaimAndAddItem(o, testCatalog(), 0, "X", strPtr("p0"))
	require.NoError(t, err)
	o.Participants = ps

	totals := ComputeTotals(o, testCatalog())
	assert.Empty(t, totals.Shared)
	assert.Equal(t, int64(1000), totals.Participants[0].Subtotal)
	assert.Equal(t, int64(1000), totals.GrandTotal)
}

func TestPricesVisible(t *testing.T) {
	o := orderWith(1)
	assert.True(t, PricesVisible(true, o))
	assert.False(t, PricesVisible(false, o))
	o.ShowPricesToAll = true
	assert.True(t, PricesVisible(false, o))
}

func TestPatchFieldsReplaceWholeArrays(t *testing.T) {
	var empty []SharedCartLine
	fields := sharedItemsPatch(empty).Fields()
	assert.Equal(t, []SharedCartLine{}, fields["sharedItems"])
	assert.NotContains(t, fields, "participants")

	fields = participantsPatch(ResizeParticipants(nil, 1)).Fields()
	assert.Contains(t, fields, "participants")
	assert.Equal(t, false, fields["allFinished"])
	assert.True(t, Patch{}.empty())
}
