package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"fieldline/internal/domain"
)

const notificationColumns = `seq,id,title,message,role,user_id,payload_json,is_read,created_at`

func scanNotification(row rowScanner) (domain.Notification, error) {
	var n domain.Notification
	var role, payload string
	var userID sql.NullString
	if err := row.Scan(&n.Seq, &n.ID, &n.Title, &n.Message, &role, &userID, &payload, &n.Read, &n.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return n, ErrNotFound
		}
		return n, err
	}
	n.Role = domain.Role(role)
	n.UserID = stringPtr(userID)
	if payload != "" {
		if err := json.Unmarshal([]byte(payload), &n.Payload); err != nil {
			return n, fmt.Errorf("notification %s payload: %w", n.ID, err)
		}
	}
	return n, nil
}

// InsertNotification stores n and returns its surrogate sequence number.
func (r Repo) InsertNotification(ctx context.Context, tx *sql.Tx, n domain.Notification) (int64, error) {
	payload, err := json.Marshal(n.Payload)
	if err != nil {
		return 0, fmt.Errorf("marshal notification payload: %w", err)
	}
	res, err := tx.ExecContext(ctx, `INSERT INTO notifications(id,title,message,role,user_id,payload_json,is_read,created_at) VALUES (?,?,?,?,?,?,0,?)`,
		n.ID, n.Title, n.Message, string(n.Role), nullableStringPtr(n.UserID), string(payload), n.CreatedAt)
	if err != nil {
		return 0, classify(err)
	}
	return res.LastInsertId()
}

func (r Repo) GetNotification(ctx context.Context, id string) (domain.Notification, error) {
	return scanNotification(r.DB.QueryRowContext(ctx, `SELECT `+notificationColumns+` FROM notifications WHERE id=?`, id))
}

// ListNotificationsForRole returns the newest notifications for role
// regardless of read state.
func (r Repo) ListNotificationsForRole(ctx context.Context, role domain.Role, limit int) ([]domain.Notification, error) {
	return r.queryNotifications(ctx, `SELECT `+notificationColumns+` FROM notifications WHERE role=? ORDER BY seq DESC LIMIT ?`, string(role), limit)
}

// ListNotificationsSince returns notifications for role with seq greater than
// cursor, oldest first.
func (r Repo) ListNotificationsSince(ctx context.Context, role domain.Role, cursor int64, limit int) ([]domain.Notification, error) {
	return r.queryNotifications(ctx, `SELECT `+notificationColumns+` FROM notifications WHERE role=? AND seq>? ORDER BY seq ASC LIMIT ?`, string(role), cursor, limit)
}

func (r Repo) queryNotifications(ctx context.Context, query string, args ...any) ([]domain.Notification, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()
	var res []domain.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, n)
	}
	return res, rows.Err()
}

// MarkNotificationRead sets the read flag. Marking an already read
// notification still reports true.
func (r Repo) MarkNotificationRead(ctx context.Context, id string) (bool, error) {
	res, err := r.DB.ExecContext(ctx, `UPDATE notifications SET is_read=1 WHERE id=?`, id)
	if err != nil {
		return false, classify(err)
	}
	return affected(res)
}

func (r Repo) MarkAllNotificationsRead(ctx context.Context, role domain.Role) (int, error) {
	res, err := r.DB.ExecContext(ctx, `UPDATE notifications SET is_read=1 WHERE role=? AND is_read=0`, string(role))
	if err != nil {
		return 0, classify(err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// LatestNotificationSeq returns the highest seq for role, 0 when there is none.
func (r Repo) LatestNotificationSeq(ctx context.Context, role domain.Role) (int64, error) {
	var seq int64
	err := r.DB.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq),0) FROM notifications WHERE role=?`, string(role)).Scan(&seq)
	return seq, classify(err)
}
