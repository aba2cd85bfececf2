package orders

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"
	_ "time/tzdata"

	"grouporder-services/internal/grouporder"
	"grouporder-services/internal/queue"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// --- Mocks ---

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) Insert(ctx context.Context, sub grouporder.Submission) (bool, error) {
	args := m.Called(ctx, sub)
	return args.Bool(0), args.Error(1)
}

func (m *MockRepository) ReceiptURL(ctx context.Context, sessionID string) (*string, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*string), args.Error(1)
}

func (m *MockRepository) SetReceiptURL(ctx context.Context, sessionID, url string) error {
	args := m.Called(ctx, sessionID, url)
	return args.Error(0)
}

type MockUploader struct {
	mock.Mock
}

func (m *MockUploader) PutObject(ctx context.Context, key string, body []byte, contentType string, cacheControl string) (string, error) {
	args := m.Called(ctx, key, body, contentType, cacheControl)
	return args.String(0), args.Error(1)
}

// --- Fixtures ---

func testCatalog() *grouporder.StaticCatalog {
	return grouporder.NewStaticCatalog([]grouporder.CatalogItem{
		{ID: "X", Name: "Tacos al pastor", Price: 1000, Availability: grouporder.AvailabilityAvailable},
		{ID: "Y", Name: "Agua de jamaica", Price: 350, Availability: grouporder.AvailabilityAvailable},
	})
}

func strPtr(s string) *string { return &s }

func testSubmission() grouporder.Submission {
	return grouporder.Submission{
		SessionID: "sess-1",
		Code:      "K7PQ2M",
		OwnerID:   "owner",
		Participants: []grouporder.Participant{
			{PersonIndex: 0, UserID: strPtr("owner"), Name: "Ana Peña", Items: []grouporder.CartLine{{ID: "X", Quantity: 1}}, Locked: true, Finished: true},
			{PersonIndex: 1, Name: "Persona 2", Items: []grouporder.CartLine{}, Finished: true},
		},
		SharedItems: []grouporder.SharedCartLine{{ItemID: "Y", Quantity: 1, PersonIDs: []string{}}},
		Total:       1350,
		PlacedAt:    time.Date(2026, 3, 14, 19, 30, 0, 0, time.UTC),
	}
}

// --- Tests ---

func TestRecorder_Record(t *testing.T) {
	ctx := context.Background()
	sub := testSubmission()

	t.Run("NewOrderUploadsReceipt", func(t *testing.T) {
		repo := new(MockRepository)
		up := new(MockUploader)
		rec := &Recorder{Repo: repo, Uploader: up, Catalog: testCatalog()}

		repo.On("Insert", ctx, sub).Return(true, nil)
		repo.On("ReceiptURL", ctx, "sess-1").Return(nil, nil)
		up.On("PutObject", ctx, "receipts/sess-1.pdf", mock.MatchedBy(func(b []byte) bool {
			return bytes.HasPrefix(b, []byte("%PDF"))
		}), "application/pdf", "").Return("https://cdn.example/receipts/sess-1.pdf", nil)
		repo.On("SetReceiptURL", ctx, "sess-1", "https://cdn.example/receipts/sess-1.pdf").Return(nil)

		require.NoError(t, rec.Record(ctx, sub))
		repo.AssertExpectations(t)
		up.AssertExpectations(t)
	})

	t.Run("DuplicateWithReceiptIsNoop", func(t *testing.T) {
		repo := new(MockRepository)
		up := new(MockUploader)
		rec := &Recorder{Repo: repo, Uploader: up, Catalog: testCatalog()}

		repo.On("Insert", ctx, sub).Return(false, nil)
		repo.On("ReceiptURL", ctx, "sess-1").Return(strPtr("https://cdn.example/r.pdf"), nil)

		require.NoError(t, rec.Record(ctx, sub))
		repo.AssertExpectations(t)
		up.AssertNotCalled(t, "PutObject", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("DuplicateRetriesMissingReceipt", func(t *testing.T) {
		repo := new(MockRepository)
		up := new(MockUploader)
		rec := &Recorder{Repo: repo, Uploader: up, Catalog: testCatalog()}

		repo.On("Insert", ctx, sub).Return(false, nil)
		repo.On("ReceiptURL", ctx, "sess-1").Return(nil, nil)
		up.On("PutObject", ctx, "receipts/sess-1.pdf", mock.Anything, "application/pdf", "").Return("u", nil)
		repo.On("SetReceiptURL", ctx, "sess-1", "u").Return(nil)

		require.NoError(t, rec.Record(ctx, sub))
		up.AssertExpectations(t)
	})

	t.Run("UploadErrorIsReturned", func(t *testing.T) {
		repo := new(MockRepository)
		up := new(MockUploader)
		rec := &Recorder{Repo: repo, Uploader: up, Catalog: testCatalog()}

		repo.On("Insert", ctx, sub).Return(true, nil)
		repo.On("ReceiptURL", ctx, "sess-1").Return(nil, nil)
		up.On("PutObject", ctx, "receipts/sess-1.pdf", mock.Anything, "application/pdf", "").Return("", errors.New("r2 down"))

		err := rec.Record(ctx, sub)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "r2 down")
		repo.AssertNotCalled(t, "SetReceiptURL", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("InsertError", func(t *testing.T) {
		repo := new(MockRepository)
		rec := &Recorder{Repo: repo}
		repo.On("Insert", ctx, sub).Return(false, errors.New("db error"))

		assert.Error(t, rec.Record(ctx, sub))
	})

	t.Run("WithoutUploader", func(t *testing.T) {
		repo := new(MockRepository)
		rec := &Recorder{Repo: repo}
		repo.On("Insert", ctx, sub).Return(true, nil)

		require.NoError(t, rec.Submit(ctx, sub))
		repo.AssertExpectations(t)
	})

	t.Run("MissingSessionID", func(t *testing.T) {
		rec := &Recorder{Repo: new(MockRepository)}
		assert.Error(t, rec.Record(ctx, grouporder.Submission{}))
	})
}

func TestRecorder_HandleMessage(t *testing.T) {
	ctx := context.Background()
	sub := testSubmission()

	repo := new(MockRepository)
	rec := &Recorder{Repo: repo}
	repo.On("Insert", ctx, mock.MatchedBy(func(s grouporder.Submission) bool {
		return s.SessionID == "sess-1" && s.Total == 1350
	})).Return(true, nil)

	body, err := json.Marshal(queue.PlacedEvent{Type: queue.GroupOrderEventType, Submission: sub})
	require.NoError(t, err)
	require.NoError(t, rec.HandleMessage(ctx, body))
	repo.AssertExpectations(t)

	// Malformed bodies are dropped, never retried.
	assert.NoError(t, rec.HandleMessage(ctx, []byte(`{"type":"other"}`)))
	repo.AssertNumberOfCalls(t, "Insert", 1)
}

func TestBuildReceiptData(t *testing.T) {
	data := buildReceiptData(testSubmission(), testCatalog(), "America/Mexico_City")

	assert.Equal(t, "K7PQ2M", data.Code)
	assert.Equal(t, "2026-03-14 13:30", data.PlacedAt)
	require.Len(t, data.People, 2)
	assert.Equal(t, "Ana Peña", data.People[0].Name)
	assert.Equal(t, []receiptLine{{Quantity: 1, Name: "Tacos al pastor", Subtotal: "10.00"}}, data.People[0].Lines)
	assert.Empty(t, data.People[1].Lines)
	assert.Equal(t, "0.00", data.People[1].Subtotal)
	assert.Equal(t, []receiptLine{{Quantity: 1, Name: "Agua de jamaica", Subtotal: "3.50"}}, data.Shared)
	assert.Equal(t, "13.50", data.Total)
}

func TestRenderReceipt(t *testing.T) {
	sub := testSubmission()
	sub.SharedItems = append(sub.SharedItems, grouporder.SharedCartLine{ItemID: "gone", Quantity: 2})

	out, err := RenderReceipt(sub, testCatalog(), "")
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}
