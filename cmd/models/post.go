package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// GroupPost is the Mongo document for a study-group post. Likes and LikedBy
// are kept consistent by the repository: every like mutation recomputes Likes
// from the LikedBy set, so likes == len(liked_by) after each write.
type GroupPost struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"_id"`
	GroupID     string             `bson:"group_id" json:"group_id"`
	UserID      string             `bson:"user_id" json:"user_id"`
	Content     string             `bson:"content" json:"content"`
	Attachments []Attachment       `bson:"attachments" json:"attachments"`
	Likes       int                `bson:"likes" json:"likes"`
	LikedBy     []string           `bson:"liked_by" json:"liked_by"`
	Comments    int                `bson:"comments" json:"comments"`
	CommentList []GroupComment     `bson:"comment_list" json:"comment_list"`
	CreatedAt   time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt   time.Time          `bson:"updated_at" json:"updated_at"`
}

// Attachment is a stored file reference tagged with its inferred MIME category
// (image, video, audio, document or other).
type Attachment struct {
	URL      string `bson:"url" json:"url"`
	Category string `bson:"category" json:"category"`
}

type GroupComment struct {
	UserID    string    `bson:"user_id" json:"user_id"`
	Content   string    `bson:"content" json:"content"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}

// HasLiked reports whether userID is in the post's liked_by set.
func (p *GroupPost) HasLiked(userID string) bool {
	for _, id := range p.LikedBy {
		if id == userID {
			return true
		}
	}
	return false
}
