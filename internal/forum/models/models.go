// Package models holds the forum domain entities: posts of three kinds,
// comments, reactions, and images.
package models

import "time"

// PostType discriminates the three post kinds sharing one table. Each kind
// uses a different subset of the optional columns.
type PostType string

const (
	// PostAmusement is a "looking for players" post: a game, a place, a
	// target headcount.
	PostAmusement PostType = "AMUSEMENT"
	// PostFood is a dining review with a canteen and a score.
	PostFood PostType = "FOOD"
	// PostSell is a second-hand listing with a price and a sold flag.
	PostSell PostType = "SELL"
)

// Valid reports whether t is a known post type.
func (t PostType) Valid() bool {
	return t == PostAmusement || t == PostFood || t == PostSell
}

// ReactionKind is a per-user mark on a post. A user holds at most one
// reaction of each kind per post.
type ReactionKind string

const (
	ReactionLike        ReactionKind = "like"
	ReactionFavorite    ReactionKind = "favorite"
	ReactionParticipant ReactionKind = "participant"
)

// Valid reports whether k is a known reaction kind.
func (k ReactionKind) Valid() bool {
	return k == ReactionLike || k == ReactionFavorite || k == ReactionParticipant
}

// Post is a forum post. Likes, Favorites, and Participants are counts
// derived from the reactions table at read time, never stored on the row.
type Post struct {
	ID        int64     `json:"id"`
	Type      PostType  `json:"post_type"`
	AuthorID  int64     `json:"author_id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	ImageIDs  []int64   `json:"image_ids,omitempty"`
	CreatedAt time.Time `json:"created_at"`

	Likes        int64 `json:"likes"`
	Favorites    int64 `json:"favorites"`
	Participants int64 `json:"participants"`

	// Amusement fields.
	GameType   *string    `json:"game_type,omitempty"`
	PeopleAll  *int32     `json:"people_all,omitempty"`
	AmusePlace *string    `json:"amuse_place,omitempty"`
	StartsAt   *time.Time `json:"starts_at,omitempty"`

	// Food fields.
	FoodPlace *string `json:"food_place,omitempty"`
	Score     *int32  `json:"score,omitempty"`

	// Sell fields.
	Price     *int32  `json:"price,omitempty"`
	GoodsType *string `json:"goods_type,omitempty"`
	Sold      *bool   `json:"sold,omitempty"`
}

// NewPost is the insert shape for the post store. AuthorID comes from the
// session, never the request body.
type NewPost struct {
	Type     PostType `json:"post_type"`
	AuthorID int64    `json:"-"`
	Title    string   `json:"title"`
	Content  string   `json:"content"`
	ImageIDs []int64  `json:"image_ids,omitempty"`

	GameType   *string    `json:"game_type,omitempty"`
	PeopleAll  *int32     `json:"people_all,omitempty"`
	AmusePlace *string    `json:"amuse_place,omitempty"`
	StartsAt   *time.Time `json:"starts_at,omitempty"`

	FoodPlace *string `json:"food_place,omitempty"`
	Score     *int32  `json:"score,omitempty"`

	Price     *int32  `json:"price,omitempty"`
	GoodsType *string `json:"goods_type,omitempty"`
}

// PostFilter narrows a post listing. Zero-valued fields don't filter.
// Every list is capped at Limit rows, newest first.
type PostFilter struct {
	Type PostType

	// Amusement filters.
	GameType     string
	PeopleAllMin *int32
	PeopleAllMax *int32
	// PeopleGapMax caps people_all minus current participants: "needs at
	// most N more players".
	PeopleGapMax *int32
	StartsAfter  *time.Time

	// Food filters.
	FoodPlace string
	ScoreMin  *int32

	// Sell filters. Sold listings are always excluded from sell listings.
	GoodsType string
	PriceMax  *int32

	Limit int32
}

// Relation selects which of a user's posts a personal listing returns.
type Relation string

const (
	RelationOwn         Relation = "own"
	RelationLiked       Relation = "liked"
	RelationFavorited   Relation = "favorited"
	RelationParticipant Relation = "participant"
)

// Valid reports whether r is a known relation.
func (r Relation) Valid() bool {
	switch r {
	case RelationOwn, RelationLiked, RelationFavorited, RelationParticipant:
		return true
	}
	return false
}

// Comment is a flat comment on a post.
type Comment struct {
	ID        int64     `json:"id"`
	PostID    int64     `json:"post_id"`
	AuthorID  int64     `json:"author_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// NewComment is the insert shape for the comment store.
type NewComment struct {
	PostID   int64
	AuthorID int64
	Content  string
}

// Image is a stored image blob. IDs are generated by the database sequence
// so concurrent uploads can never collide.
type Image struct {
	ID   int64
	Data []byte
}
