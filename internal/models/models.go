package models

import "time"

type User struct {
	ID           int64     `json:"id" gorm:"primaryKey"`
	Username     string    `json:"username" gorm:"size:150;uniqueIndex;not null"`
	PasswordHash string    `json:"-" gorm:"size:255;not null"`
	DateJoined   time.Time `json:"date_joined" gorm:"not null"`
}

// Group is a named community posts can be tagged with.
type Group struct {
	ID          int64  `json:"id" gorm:"primaryKey"`
	Title       string `json:"title" gorm:"size:200;not null"`
	Slug        string `json:"slug" gorm:"size:30;uniqueIndex;not null"`
	Description string `json:"description" gorm:"type:text;not null"`
}

func (Group) TableName() string { return "groups" }

// Post is a single authored entry. PubDate is set once at creation.
type Post struct {
	ID       int64     `json:"id" gorm:"primaryKey"`
	Text     string    `json:"text" gorm:"type:text;not null"`
	PubDate  time.Time `json:"pub_date" gorm:"not null;index"`
	AuthorID int64     `json:"author_id" gorm:"not null;index"`
	Author   User      `json:"author" gorm:"foreignKey:AuthorID;constraint:OnDelete:CASCADE"`
	GroupID  *int64    `json:"group_id,omitempty" gorm:"index"`
	Group    *Group    `json:"group,omitempty" gorm:"foreignKey:GroupID;constraint:OnDelete:SET NULL"`
	Image    string    `json:"image,omitempty" gorm:"size:255"`
}

type Comment struct {
	ID       int64     `json:"id" gorm:"primaryKey"`
	Text     string    `json:"text" gorm:"size:1000;not null"`
	Created  time.Time `json:"created" gorm:"not null"`
	AuthorID int64     `json:"author_id" gorm:"not null;index"`
	Author   User      `json:"author" gorm:"foreignKey:AuthorID;constraint:OnDelete:CASCADE"`
	PostID   int64     `json:"post_id" gorm:"not null;index"`
}

// Follow is a directed edge: UserID follows AuthorID.
type Follow struct {
	ID       int64 `json:"id" gorm:"primaryKey"`
	UserID   int64 `json:"user_id" gorm:"not null;uniqueIndex:idx_follows_pair"`
	User     User  `json:"user" gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
	AuthorID int64 `json:"author_id" gorm:"not null;uniqueIndex:idx_follows_pair;index"`
	Author   User  `json:"author" gorm:"foreignKey:AuthorID;constraint:OnDelete:CASCADE"`
}

// PostFilter narrows ListPosts. Zero value lists every post.
type PostFilter struct {
	AuthorID   int64
	GroupID    int64
	FollowerID int64
}

// Principal is the authenticated identity making a request.
// The zero value is an anonymous visitor.
type Principal struct {
	UserID   int64
	Username string
}

func (p Principal) Authenticated() bool { return p.UserID != 0 }

type EventKind string

const (
	EventPostCreated  EventKind = "post_created"
	EventPostEdited   EventKind = "post_edited"
	EventCommentAdded EventKind = "comment_added"
	EventFollowed     EventKind = "followed"
	EventUnfollowed   EventKind = "unfollowed"
)

// Event is a domain event published after a successful write.
// TargetUserID is the other party (followee, or post author for comments).
type Event struct {
	Kind         EventKind `json:"kind"`
	ActorID      int64     `json:"actor_id"`
	Actor        string    `json:"actor"`
	TargetUserID int64     `json:"target_user_id,omitempty"`
	PostID       int64     `json:"post_id,omitempty"`
	Summary      string    `json:"summary,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
}
