// Package syncx keeps an append-only log of bank changes so another site
// can replay them in order.
package syncx

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

const (
	TypeQuestionsImported = "QuestionsImported"
	TypeQuestionCreated   = "QuestionCreated"
	TypeTagsUpdated       = "TagsUpdated"
	TypeQuestionDeleted   = "QuestionDeleted"
	TypeQuestionsExported = "QuestionsExported"
)

type Event struct {
	Seq       int64  `db:"seq" json:"seq"`
	SiteID    string `db:"site_id" json:"site_id"`
	Type      string `db:"typ" json:"type"`
	Key       string `db:"key" json:"key"`
	DataJSON  string `db:"data" json:"data"`
	CreatedAt int64  `db:"created_at" json:"created_at"`
}

// Recorder is what handlers append through.
type Recorder interface {
	Append(ctx context.Context, typ, key string, payload any) error
}

type EventRepo struct {
	db     *sqlx.DB
	siteID string
	now    func() time.Time
}

func NewEventRepo(db *sqlx.DB, siteID string) *EventRepo {
	if siteID == "" {
		siteID = "local"
	}
	return &EventRepo{db: db, siteID: siteID, now: time.Now}
}

func (r *EventRepo) Append(ctx context.Context, typ, key string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("event %s: %w", typ, err)
	}
	_, err = r.db.ExecContext(ctx, r.db.Rebind(
		`INSERT INTO event_log (site_id, typ, key, data, created_at) VALUES (?,?,?,?,?)`),
		r.siteID, typ, key, string(data), r.now().Unix())
	return err
}

// Since returns up to limit events with seq greater than after, oldest first.
func (r *EventRepo) Since(ctx context.Context, after int64, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 100
	}
	var out []Event
	err := r.db.SelectContext(ctx, &out, r.db.Rebind(
		`SELECT seq, site_id, typ, key, data, created_at FROM event_log WHERE seq > ? ORDER BY seq LIMIT ?`),
		after, limit)
	return out, err
}

// Discard drops every event; used when no database is configured.
type Discard struct{}

func (Discard) Append(context.Context, string, string, any) error { return nil }
