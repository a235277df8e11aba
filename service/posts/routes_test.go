package posts

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/studysphere/studysphere-server/cmd/models"
	"github.com/studysphere/studysphere-server/cmd/utils"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// fakeRepo is an in-memory PostRepository for handler tests.
type fakeRepo struct {
	posts map[string]*models.GroupPost
}

func newFakeRepo(postList ...models.GroupPost) *fakeRepo {
	repo := &fakeRepo{posts: make(map[string]*models.GroupPost)}
	for i := range postList {
		post := postList[i]
		repo.posts[post.ID.Hex()] = &post
	}
	return repo
}

func (f *fakeRepo) CreatePost(ctx context.Context, post *models.GroupPost) error {
	post.ID = primitive.NewObjectID()
	post.CreatedAt = time.Now()
	f.posts[post.ID.Hex()] = post
	return nil
}

func (f *fakeRepo) GetPostByID(ctx context.Context, id string) (*models.GroupPost, error) {
	post, ok := f.posts[id]
	if !ok {
		return nil, ErrPostNotFound
	}
	copied := *post
	return &copied, nil
}

func (f *fakeRepo) GetPostsByGroup(ctx context.Context, groupID string) ([]models.GroupPost, error) {
	var out []models.GroupPost
	for _, post := range f.posts {
		if post.GroupID == groupID {
			out = append(out, *post)
		}
	}
	return out, nil
}

func (f *fakeRepo) UpdateContent(ctx context.Context, id, content string) (*models.GroupPost, error) {
	post, ok := f.posts[id]
	if !ok {
		return nil, ErrPostNotFound
	}
	post.Content = content
	copied := *post
	return &copied, nil
}

func (f *fakeRepo) AddAttachment(ctx context.Context, id string, attachment models.Attachment) error {
	post, ok := f.posts[id]
	if !ok {
		return ErrPostNotFound
	}
	post.Attachments = append(post.Attachments, attachment)
	return nil
}

func (f *fakeRepo) DeletePost(ctx context.Context, id string) error {
	if _, ok := f.posts[id]; !ok {
		return ErrPostNotFound
	}
	delete(f.posts, id)
	return nil
}

func (f *fakeRepo) SetLike(ctx context.Context, postID, userID string, liking bool) (*LikeResult, error) {
	post, ok := f.posts[postID]
	if !ok {
		return nil, ErrPostNotFound
	}
	changed := false
	if liking {
		if !post.HasLiked(userID) {
			post.LikedBy = append(post.LikedBy, userID)
			changed = true
		}
	} else {
		for i, id := range post.LikedBy {
			if id == userID {
				post.LikedBy = append(post.LikedBy[:i], post.LikedBy[i+1:]...)
				changed = true
				break
			}
		}
	}
	post.Likes = len(post.LikedBy)
	return &LikeResult{GroupID: post.GroupID, Likes: post.Likes, Changed: changed}, nil
}

func (f *fakeRepo) AddComment(ctx context.Context, postID, userID, content string) (*CommentResult, error) {
	post, ok := f.posts[postID]
	if !ok {
		return nil, ErrPostNotFound
	}
	post.CommentList = append(post.CommentList, models.GroupComment{
		UserID:    userID,
		Content:   content,
		CreatedAt: time.Now(),
	})
	post.Comments = len(post.CommentList)
	return &CommentResult{GroupID: post.GroupID, Comments: post.Comments}, nil
}

func authedRequest(method, target string, body []byte, userID uint) *http.Request {
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	ctx := context.WithValue(req.Context(), utils.UserIDKey, userID)
	return req.WithContext(ctx)
}

// testRouter registers handlers without the auth middleware; the user identity
// is injected on the request context instead.
func testRouter(h *PostHandler) *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/group_posts/{groupId}", h.GetGroupPosts).Methods("GET")
	router.HandleFunc("/group_posts/post/{id}", h.GetPost).Methods("GET")
	router.HandleFunc("/group_posts/post/{id}", h.UpdatePost).Methods("PUT")
	router.HandleFunc("/group_posts/post/{id}", h.DeletePost).Methods("DELETE")
	return router
}

func seedPost(author string) models.GroupPost {
	return models.GroupPost{
		ID:        primitive.NewObjectID(),
		GroupID:   "1",
		UserID:    author,
		Content:   "original",
		LikedBy:   []string{},
		CreatedAt: time.Now(),
	}
}

func TestGetGroupPostsEnvelope(t *testing.T) {
	post := seedPost("5")
	h := NewPostHandler(newFakeRepo(post), nil, nil)

	rec := httptest.NewRecorder()
	testRouter(h).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/group_posts/1", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp struct {
		Message string             `json:"message"`
		Data    []models.GroupPost `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Data) != 1 || resp.Data[0].ID != post.ID {
		t.Fatalf("data = %v", resp.Data)
	}
}

func TestGetGroupPostsEmptyGroupReturnsEmptyList(t *testing.T) {
	h := NewPostHandler(newFakeRepo(), nil, nil)

	rec := httptest.NewRecorder()
	testRouter(h).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/group_posts/99", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp struct {
		Data []models.GroupPost `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Data == nil || len(resp.Data) != 0 {
		t.Fatalf("data = %v, want empty list", resp.Data)
	}
}

func TestGetPostNotFound(t *testing.T) {
	h := NewPostHandler(newFakeRepo(), nil, nil)

	rec := httptest.NewRecorder()
	target := "/group_posts/post/" + primitive.NewObjectID().Hex()
	testRouter(h).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestUpdatePostAuthorOnly(t *testing.T) {
	post := seedPost("5")
	repo := newFakeRepo(post)
	h := NewPostHandler(repo, nil, nil)
	router := testRouter(h)
	target := "/group_posts/post/" + post.ID.Hex()
	body := []byte(`{"content":"edited"}`)

	// someone else
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(http.MethodPut, target, body, 6))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("non-author edit: status = %d, want 403", rec.Code)
	}

	// the author
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(http.MethodPut, target, body, 5))
	if rec.Code != http.StatusOK {
		t.Fatalf("author edit: status = %d, body = %s", rec.Code, rec.Body.String())
	}
	updated, err := repo.GetPostByID(context.Background(), post.ID.Hex())
	if err != nil {
		t.Fatalf("get updated: %v", err)
	}
	if updated.Content != "edited" {
		t.Fatalf("content = %q", updated.Content)
	}
}

func TestUpdatePostRejectsEmptyContent(t *testing.T) {
	post := seedPost("5")
	h := NewPostHandler(newFakeRepo(post), nil, nil)

	rec := httptest.NewRecorder()
	target := "/group_posts/post/" + post.ID.Hex()
	testRouter(h).ServeHTTP(rec, authedRequest(http.MethodPut, target, []byte(`{"content":""}`), 5))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestDeletePostAuthorOnly(t *testing.T) {
	post := seedPost("5")
	repo := newFakeRepo(post)
	h := NewPostHandler(repo, nil, nil)
	router := testRouter(h)
	target := "/group_posts/post/" + post.ID.Hex()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(http.MethodDelete, target, nil, 6))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("non-author delete: status = %d, want 403", rec.Code)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(http.MethodDelete, target, nil, 5))
	if rec.Code != http.StatusOK {
		t.Fatalf("author delete: status = %d", rec.Code)
	}
	if _, err := repo.GetPostByID(context.Background(), post.ID.Hex()); err == nil {
		t.Fatal("post still present after delete")
	}
}
