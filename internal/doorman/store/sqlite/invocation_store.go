package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	dbpkg "github.com/n1ghtBl00d/801DoorBot/internal/db"
	"github.com/n1ghtBl00d/801DoorBot/internal/doorman/store"
)

type InvocationStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewInvocationStore(db *sql.DB, writer *dbpkg.Worker) *InvocationStore {
	return &InvocationStore{db: db, writer: writer}
}

func (s *InvocationStore) RecordInvocation(ctx context.Context, rec store.InvocationRecord) error {
	if rec.InvokedAt.IsZero() {
		rec.InvokedAt = time.Now().UTC()
	}
	invokedMs := rec.InvokedAt.UTC().UnixMilli()

	var detail any
	if rec.Detail != "" {
		detail = rec.Detail
	}
	var guildID any
	if rec.GuildID != "" {
		guildID = rec.GuildID
	}

	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO invocations(
  invocation_id, command, user_id, user_name, channel_id, guild_id,
  invoked_at_ms, outcome, detail
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?);
`,
			rec.ID, rec.Command, rec.UserID, rec.UserName, rec.ChannelID, guildID,
			invokedMs, rec.Outcome, detail,
		); err != nil {
			return fmt.Errorf("RecordInvocation insert: %w", err)
		}
		return nil
	})
}

func (s *InvocationStore) Recent(ctx context.Context, limit int) ([]store.InvocationRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT invocation_id, command, user_id, user_name, channel_id, guild_id,
       invoked_at_ms, outcome, detail
FROM invocations
ORDER BY invoked_at_ms DESC, seq DESC
LIMIT ?;
`, limit)
	if err != nil {
		return nil, fmt.Errorf("Recent query: %w", err)
	}
	defer rows.Close()

	var out []store.InvocationRecord
	for rows.Next() {
		var (
			rec       store.InvocationRecord
			guildID   sql.NullString
			invokedMs int64
			detail    sql.NullString
		)
		if err := rows.Scan(
			&rec.ID, &rec.Command, &rec.UserID, &rec.UserName, &rec.ChannelID, &guildID,
			&invokedMs, &rec.Outcome, &detail,
		); err != nil {
			return nil, fmt.Errorf("Recent scan: %w", err)
		}
		rec.GuildID = guildID.String
		rec.Detail = detail.String
		rec.InvokedAt = time.UnixMilli(invokedMs).UTC()
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("Recent rows: %w", err)
	}
	return out, nil
}
