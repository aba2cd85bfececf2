package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"grouporder-services/internal/grouporder"
	"grouporder-services/internal/metrics"
	"grouporder-services/internal/queue"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Repository persists standalone order records keyed by group session id.
type Repository interface {
	// Insert stores the order and reports false when it already existed.
	Insert(ctx context.Context, sub grouporder.Submission) (bool, error)
	ReceiptURL(ctx context.Context, sessionID string) (*string, error)
	SetReceiptURL(ctx context.Context, sessionID, url string) error
}

// Uploader stores rendered receipts.
type Uploader interface {
	PutObject(ctx context.Context, key string, body []byte, contentType string, cacheControl string) (string, error)
}

type PGRepository struct {
	DB *pgxpool.Pool
}

func (r PGRepository) Insert(ctx context.Context, sub grouporder.Submission) (bool, error) {
	payload, err := json.Marshal(sub)
	if err != nil {
		return false, err
	}
	var id int64
	err = r.DB.QueryRow(ctx, `
		insert into orders (group_session_id, group_code, owner_id, total_amount, payload, placed_at)
		values ($1, $2, $3, $4, $5::jsonb, $6)
		on conflict (group_session_id) do nothing
		returning id
	`, sub.SessionID, sub.Code, sub.OwnerID, sub.Total, string(payload), sub.PlacedAt).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r PGRepository) ReceiptURL(ctx context.Context, sessionID string) (*string, error) {
	var url *string
	err := r.DB.QueryRow(ctx, `select receipt_url from orders where group_session_id = $1`, sessionID).Scan(&url)
	return url, err
}

func (r PGRepository) SetReceiptURL(ctx context.Context, sessionID, url string) error {
	_, err := r.DB.Exec(ctx, `update orders set receipt_url = $2 where group_session_id = $1`, sessionID, url)
	return err
}

// Recorder is the order-creation collaborator. Recording the same session twice is
// harmless: the second insert is skipped and only a missing receipt is retried.
type Recorder struct {
	Repo     Repository
	Uploader Uploader
	Catalog  grouporder.Catalog
	Timezone string
	Logger   *zap.Logger
	Metrics  *metrics.Registry
}

func (r *Recorder) logger() *zap.Logger {
	if r.Logger == nil {
		return zap.NewNop()
	}
	return r.Logger
}

// Submit records the order directly. It lets Recorder stand in for the queue
// publisher when RabbitMQ is not configured.
func (r *Recorder) Submit(ctx context.Context, sub grouporder.Submission) error {
	return r.Record(ctx, sub)
}

func (r *Recorder) Record(ctx context.Context, sub grouporder.Submission) error {
	if sub.SessionID == "" {
		return fmt.Errorf("submission without session id")
	}
	created, err := r.Repo.Insert(ctx, sub)
	if err != nil {
		r.Metrics.HandedOff("record_error")
		return fmt.Errorf("insert order %s: %w", sub.SessionID, err)
	}
	if created {
		r.Metrics.HandedOff("recorded")
		r.logger().Info("group order recorded", zap.String("sessionId", sub.SessionID), zap.Int64("total", sub.Total))
	} else {
		r.Metrics.HandedOff("duplicate")
		r.logger().Info("group order already recorded", zap.String("sessionId", sub.SessionID))
	}

	if r.Uploader == nil {
		return nil
	}
	existing, err := r.Repo.ReceiptURL(ctx, sub.SessionID)
	if err != nil {
		return fmt.Errorf("load receipt url %s: %w", sub.SessionID, err)
	}
	if existing != nil && *existing != "" {
		return nil
	}

	pdf, err := RenderReceipt(sub, r.Catalog, r.Timezone)
	if err != nil {
		return fmt.Errorf("render receipt %s: %w", sub.SessionID, err)
	}
	url, err := r.Uploader.PutObject(ctx, receiptKey(sub.SessionID), pdf, "application/pdf", "")
	if err != nil {
		return fmt.Errorf("upload receipt %s: %w", sub.SessionID, err)
	}
	if err := r.Repo.SetReceiptURL(ctx, sub.SessionID, url); err != nil {
		return fmt.Errorf("save receipt url %s: %w", sub.SessionID, err)
	}
	r.logger().Info("group order receipt stored", zap.String("sessionId", sub.SessionID), zap.String("url", url))
	return nil
}

// HandleMessage is the queue consumer for grouporder.placed events.
func (r *Recorder) HandleMessage(ctx context.Context, body []byte) error {
	event, err := queue.DecodePlacedEvent(body)
	if err != nil {
		// A malformed message will never succeed; drop it instead of retrying.
		r.logger().Error("group order event rejected", zap.Error(err))
		return nil
	}
	return r.Record(ctx, event.Submission)
}
