package posts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/studysphere/studysphere-server/cmd/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var ErrPostNotFound = errors.New("post not found")

// LikeResult reports the authoritative state after a like mutation.
type LikeResult struct {
	GroupID string
	Likes   int
	Changed bool
}

// CommentResult reports the stored comment and the new total.
type CommentResult struct {
	GroupID  string
	Comments int
	Comment  models.GroupComment
}

// PostRepository defines the storage operations for group posts.
type PostRepository interface {
	CreatePost(ctx context.Context, post *models.GroupPost) error
	GetPostByID(ctx context.Context, id string) (*models.GroupPost, error)
	GetPostsByGroup(ctx context.Context, groupID string) ([]models.GroupPost, error)
	UpdateContent(ctx context.Context, id, content string) (*models.GroupPost, error)
	AddAttachment(ctx context.Context, id string, attachment models.Attachment) error
	DeletePost(ctx context.Context, id string) error
	SetLike(ctx context.Context, postID, userID string, liking bool) (*LikeResult, error)
	AddComment(ctx context.Context, postID, userID, content string) (*CommentResult, error)
}

// MongoPostRepository implements PostRepository on a MongoDB collection.
type MongoPostRepository struct {
	collection *mongo.Collection
}

func NewMongoPostRepository(db *mongo.Database) *MongoPostRepository {
	return &MongoPostRepository{collection: db.Collection("group_posts")}
}

func (r *MongoPostRepository) CreatePost(ctx context.Context, post *models.GroupPost) error {
	post.ID = primitive.NewObjectID()
	post.CreatedAt = time.Now().UTC()
	post.UpdatedAt = post.CreatedAt
	if post.Attachments == nil {
		post.Attachments = []models.Attachment{}
	}
	if post.LikedBy == nil {
		post.LikedBy = []string{}
	}
	if post.CommentList == nil {
		post.CommentList = []models.GroupComment{}
	}
	_, err := r.collection.InsertOne(ctx, post)
	return err
}

func (r *MongoPostRepository) GetPostByID(ctx context.Context, id string) (*models.GroupPost, error) {
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("invalid post ID format: %w", err)
	}

	var post models.GroupPost
	err = r.collection.FindOne(ctx, bson.M{"_id": objID}).Decode(&post)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrPostNotFound
		}
		return nil, err
	}
	return &post, nil
}

func (r *MongoPostRepository) GetPostsByGroup(ctx context.Context, groupID string) ([]models.GroupPost, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cursor, err := r.collection.Find(ctx, bson.M{"group_id": groupID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var result []models.GroupPost
	if err := cursor.All(ctx, &result); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *MongoPostRepository) UpdateContent(ctx context.Context, id, content string) (*models.GroupPost, error) {
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("invalid post ID format: %w", err)
	}

	update := bson.M{"$set": bson.M{"content": content, "updated_at": time.Now().UTC()}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var post models.GroupPost
	err = r.collection.FindOneAndUpdate(ctx, bson.M{"_id": objID}, update, opts).Decode(&post)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrPostNotFound
		}
		return nil, err
	}
	return &post, nil
}

func (r *MongoPostRepository) AddAttachment(ctx context.Context, id string, attachment models.Attachment) error {
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("invalid post ID format: %w", err)
	}

	update := bson.M{
		"$push": bson.M{"attachments": attachment},
		"$set":  bson.M{"updated_at": time.Now().UTC()},
	}
	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": objID}, update)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return ErrPostNotFound
	}
	return nil
}

func (r *MongoPostRepository) DeletePost(ctx context.Context, id string) error {
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("invalid post ID format: %w", err)
	}

	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": objID})
	if err != nil {
		return err
	}
	if result.DeletedCount == 0 {
		return ErrPostNotFound
	}
	return nil
}

// SetLike adds or removes userID from the liked_by set and recomputes the
// likes counter from the set, so a replayed toggle cannot double-count.
func (r *MongoPostRepository) SetLike(ctx context.Context, postID, userID string, liking bool) (*LikeResult, error) {
	objID, err := primitive.ObjectIDFromHex(postID)
	if err != nil {
		return nil, fmt.Errorf("invalid post ID format: %w", err)
	}

	var update bson.M
	if liking {
		update = bson.M{"$addToSet": bson.M{"liked_by": userID}}
	} else {
		update = bson.M{"$pull": bson.M{"liked_by": userID}}
	}

	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": objID}, update)
	if err != nil {
		return nil, err
	}
	if result.MatchedCount == 0 {
		return nil, ErrPostNotFound
	}

	var post models.GroupPost
	if err := r.collection.FindOne(ctx, bson.M{"_id": objID}).Decode(&post); err != nil {
		return nil, err
	}

	likes := len(post.LikedBy)
	if likes != post.Likes {
		if _, err := r.collection.UpdateOne(ctx, bson.M{"_id": objID},
			bson.M{"$set": bson.M{"likes": likes}}); err != nil {
			return nil, err
		}
	}

	return &LikeResult{
		GroupID: post.GroupID,
		Likes:   likes,
		Changed: result.ModifiedCount > 0,
	}, nil
}

func (r *MongoPostRepository) AddComment(ctx context.Context, postID, userID, content string) (*CommentResult, error) {
	objID, err := primitive.ObjectIDFromHex(postID)
	if err != nil {
		return nil, fmt.Errorf("invalid post ID format: %w", err)
	}

	comment := models.GroupComment{
		UserID:    userID,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}

	update := bson.M{
		"$push": bson.M{"comment_list": comment},
		"$inc":  bson.M{"comments": 1},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var post models.GroupPost
	err = r.collection.FindOneAndUpdate(ctx, bson.M{"_id": objID}, update, opts).Decode(&post)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrPostNotFound
		}
		return nil, err
	}

	return &CommentResult{
		GroupID:  post.GroupID,
		Comments: post.Comments,
		Comment:  comment,
	}, nil
}
