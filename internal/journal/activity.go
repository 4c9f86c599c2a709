package journal

import (
	"context"
	"time"

	"example.com/postfeed/internal/models"
	"github.com/gocql/gocql"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// NormalizeLimit clamps a requested page size into 1..MaxLimit.
func NormalizeLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	}
	return limit
}

// Recipients lists the users whose journal records ev: the actor, plus the
// other party for follows and comments on someone else's post.
func Recipients(ev models.Event) []int64 {
	ids := []int64{ev.ActorID}
	switch ev.Kind {
	case models.EventFollowed, models.EventUnfollowed, models.EventCommentAdded:
		if ev.TargetUserID != 0 && ev.TargetUserID != ev.ActorID {
			ids = append(ids, ev.TargetUserID)
		}
	}
	return ids
}

func (j *CassandraJournal) Append(ctx context.Context, userID int64, ev models.Event) error {
	occurred := ev.OccurredAt
	if occurred.IsZero() {
		occurred = time.Now().UTC()
	}
	if err := j.Session.Query(`
		INSERT INTO activity_by_user (user_id, occurred_at, event_id, kind, actor_id, actor, target_user_id, post_id, summary)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		userID, occurred, gocql.UUIDFromTime(occurred), string(ev.Kind),
		ev.ActorID, ev.Actor, ev.TargetUserID, ev.PostID, ev.Summary,
	).WithContext(ctx).Exec(); err != nil {
		logg.Error("journal", "Failed to append activity", err, "user_id", userID)
		return err
	}
	return nil
}

// Recent returns the newest entries of userID's journal first.
func (j *CassandraJournal) Recent(ctx context.Context, userID int64, limit int) ([]models.Event, error) {
	iter := j.Session.Query(`
		SELECT occurred_at, kind, actor_id, actor, target_user_id, post_id, summary
		FROM activity_by_user WHERE user_id = ? LIMIT ?`,
		userID, NormalizeLimit(limit),
	).WithContext(ctx).Iter()

	var res []models.Event
	var (
		occurred time.Time
		kind     string
		actorID  int64
		actor    string
		targetID int64
		postID   int64
		summary  string
	)
	for iter.Scan(&occurred, &kind, &actorID, &actor, &targetID, &postID, &summary) {
		res = append(res, models.Event{
			Kind:         models.EventKind(kind),
			ActorID:      actorID,
			Actor:        actor,
			TargetUserID: targetID,
			PostID:       postID,
			Summary:      summary,
			OccurredAt:   occurred,
		})
	}

	if err := iter.Close(); err != nil {
		logg.Error("journal", "Failed to read activity", err, "user_id", userID)
		return nil, err
	}
	return res, nil
}
