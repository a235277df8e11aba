// Package client implements the session-side view of a study group's posts:
// optimistic like toggling with idempotent reconciliation against server
// broadcasts, pessimistic comment insertion, and local-only view state
// (expanded threads, hidden posts).
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/studysphere/studysphere-server/cmd/models"
	"github.com/studysphere/studysphere-server/pkg/session"
	"github.com/studysphere/studysphere-server/pkg/translate"
	"github.com/studysphere/studysphere-server/service/protocol"
)

const (
	displayCommentLimit = 3
	errorClearDelay     = 3 * time.Second
)

// Synchronizer keeps one group's post list consistent with concurrent edits
// from other users. Local like updates are applied before the server
// confirms them; the server's broadcast echo is merged idempotently, so the
// count converges to server truth even when the echo replays an update the
// client already applied.
//
// There is no retry on the realtime path: if the channel drops an intent the
// local state can diverge until Refresh refetches the list.
type Synchronizer struct {
	baseURL    string
	httpClient *http.Client
	store      *session.Store
	translator *translate.Cache
	emitter    Emitter

	mu            sync.Mutex
	userID        string
	groupID       string
	posts         []models.GroupPost
	expanded      map[string]bool
	errMsg        string
	errTimer      *time.Timer
	errClearDelay time.Duration
	closed        bool
}

// NewSynchronizer wires the synchronizer to its collaborators. The user id is
// read from the session store. translator may be nil when the session runs in
// the source language.
func NewSynchronizer(baseURL string, emitter Emitter, store *session.Store, translator *translate.Cache) (*Synchronizer, error) {
	userID, err := store.UserID()
	if err != nil {
		return nil, fmt.Errorf("read user id: %w", err)
	}

	return &Synchronizer{
		baseURL:       baseURL,
		httpClient:    &http.Client{Timeout: 15 * time.Second},
		store:         store,
		translator:    translator,
		emitter:       emitter,
		userID:        userID,
		expanded:      make(map[string]bool),
		errClearDelay: errorClearDelay,
	}, nil
}

// FetchGroupPosts loads the group's posts over REST, drops hidden ones, and
// primes the translation cache with the new content.
func (s *Synchronizer) FetchGroupPosts(ctx context.Context, groupID string) error {
	url := fmt.Sprintf("%s/api/v1/group_posts/%s", s.baseURL, groupID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("fetch group posts: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch group posts: status %d", resp.StatusCode)
	}

	var decoded struct {
		Data []models.GroupPost `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return fmt.Errorf("decode group posts: %w", err)
	}

	hidden, err := s.store.HiddenPosts()
	if err != nil {
		return fmt.Errorf("read hidden posts: %w", err)
	}

	visible := make([]models.GroupPost, 0, len(decoded.Data))
	for _, post := range decoded.Data {
		if hidden[post.ID.Hex()] {
			continue
		}
		visible = append(visible, post)
	}

	s.mu.Lock()
	s.groupID = groupID
	s.posts = visible
	s.mu.Unlock()

	s.translateDelta(ctx, collectTexts(visible))
	return nil
}

// Refresh refetches the current group's posts. It is the only resync path
// after a dropped broadcast.
func (s *Synchronizer) Refresh(ctx context.Context) error {
	s.mu.Lock()
	groupID := s.groupID
	s.mu.Unlock()
	if groupID == "" {
		return fmt.Errorf("no group loaded")
	}
	return s.FetchGroupPosts(ctx, groupID)
}

// JoinRoom announces this session to the group's broadcast room. There is no
// matching leave; room cleanup is the server's concern.
func (s *Synchronizer) JoinRoom(groupID string) {
	s.mu.Lock()
	s.groupID = groupID
	userID := s.userID
	s.mu.Unlock()

	if err := s.emitter.Emit(protocol.EventJoinGroupRoom, protocol.JoinRoom{
		GroupID: groupID,
		UserID:  userID,
	}); err != nil {
		log.Printf("join room: %v", err)
	}
}

// ToggleLike flips the session user's like on a post. The local view is
// updated first and the intent is emitted without waiting for the server.
func (s *Synchronizer) ToggleLike(postID string) error {
	s.mu.Lock()
	post := s.findPost(postID)
	if post == nil {
		s.mu.Unlock()
		return fmt.Errorf("unknown post %s", postID)
	}

	liking := !post.HasLiked(s.userID)
	if liking {
		post.LikedBy = append(post.LikedBy, s.userID)
		post.Likes++
	} else {
		post.LikedBy = removeString(post.LikedBy, s.userID)
		if post.Likes > 0 {
			post.Likes--
		}
	}
	userID := s.userID
	s.mu.Unlock()

	return s.emitter.Emit(protocol.EventToggleLikePost, protocol.ToggleLike{
		PostID:   postID,
		UserID:   userID,
		IsLiking: liking,
	})
}

// SubmitComment emits the comment intent. Unlike likes, the comment is not
// inserted locally: unconfirmed free text is never rendered, so the object
// appears only when the post_commented broadcast returns.
func (s *Synchronizer) SubmitComment(postID, text string) error {
	if text == "" {
		return fmt.Errorf("comment text is empty")
	}

	s.mu.Lock()
	userID := s.userID
	s.mu.Unlock()

	return s.emitter.Emit(protocol.EventCommentPost, protocol.CommentPost{
		PostID:  postID,
		Comment: text,
		UserID:  userID,
	})
}

// HandleEvent reconciles one inbound broadcast. Bind it to Conn.Listen.
func (s *Synchronizer) HandleEvent(env protocol.Envelope) {
	switch env.Event {
	case protocol.EventPostLiked:
		var payload protocol.LikeChanged
		if err := env.Decode(&payload); err != nil {
			log.Printf("decode post_liked: %v", err)
			return
		}
		s.ApplyLiked(payload)
	case protocol.EventPostUnliked:
		var payload protocol.LikeChanged
		if err := env.Decode(&payload); err != nil {
			log.Printf("decode post_unliked: %v", err)
			return
		}
		s.ApplyUnliked(payload)
	case protocol.EventPostCommented:
		var payload protocol.Commented
		if err := env.Decode(&payload); err != nil {
			log.Printf("decode post_commented: %v", err)
			return
		}
		s.ApplyComment(payload)
	case protocol.EventNewGroupPost:
		var post models.GroupPost
		if err := env.Decode(&post); err != nil {
			log.Printf("decode new_group_post: %v", err)
			return
		}
		s.ApplyNewPost(post)
	case protocol.EventError:
		var payload protocol.ErrorMessage
		if err := env.Decode(&payload); err != nil {
			log.Printf("decode error event: %v", err)
			return
		}
		s.applyError(payload.Message)
	}
}

// ApplyLiked merges a post_liked broadcast. The membership update is
// idempotent: when the event is the server's echo of this session's own
// optimistic update, re-adding the user is a no-op. A server-supplied total
// overwrites the local count; without one the count moves by one only if the
// membership actually changed.
func (s *Synchronizer) ApplyLiked(event protocol.LikeChanged) {
	s.mu.Lock()
	defer s.mu.Unlock()

	post := s.findPost(event.PostID)
	if post == nil {
		return
	}

	if event.UserID != "" && !post.HasLiked(event.UserID) {
		post.LikedBy = append(post.LikedBy, event.UserID)
		if event.Likes == nil {
			post.Likes++
		}
	}
	if event.Likes != nil {
		post.Likes = *event.Likes
	}
}

// ApplyUnliked merges a post_unliked broadcast, symmetric to ApplyLiked.
func (s *Synchronizer) ApplyUnliked(event protocol.LikeChanged) {
	s.mu.Lock()
	defer s.mu.Unlock()

	post := s.findPost(event.PostID)
	if post == nil {
		return
	}

	if event.UserID != "" && post.HasLiked(event.UserID) {
		post.LikedBy = removeString(post.LikedBy, event.UserID)
		if event.Likes == nil && post.Likes > 0 {
			post.Likes--
		}
	}
	if event.Likes != nil {
		post.Likes = *event.Likes
	}
}

// ApplyComment inserts the authoritative comment from a post_commented
// broadcast. The broadcast carries no timestamp; arrival time preserves
// newest-first ordering because the channel delivers in server-send order.
func (s *Synchronizer) ApplyComment(event protocol.Commented) {
	s.mu.Lock()
	post := s.findPost(event.PostID)
	if post == nil {
		s.mu.Unlock()
		return
	}

	author := event.UserID
	if author == "" {
		author = "Anonymous"
	}
	post.CommentList = append(post.CommentList, models.GroupComment{
		UserID:    author,
		Content:   event.Comment,
		CreatedAt: time.Now(),
	})
	if event.Comments != nil {
		post.Comments = *event.Comments
	} else {
		post.Comments++
	}
	s.mu.Unlock()

	s.translateDelta(context.Background(), []string{event.Comment})
}

// ApplyNewPost prepends a broadcast post unless it is hidden or already
// known.
func (s *Synchronizer) ApplyNewPost(post models.GroupPost) {
	hidden, err := s.store.IsHidden(post.ID.Hex())
	if err != nil {
		log.Printf("check hidden post: %v", err)
	}
	if hidden {
		return
	}

	s.mu.Lock()
	if s.findPost(post.ID.Hex()) != nil {
		s.mu.Unlock()
		return
	}
	s.posts = append([]models.GroupPost{post}, s.posts...)
	s.mu.Unlock()

	s.translateDelta(context.Background(), collectTexts([]models.GroupPost{post}))
}

// HidePost removes a post from the rendered list and persists the id so it
// stays excluded across reloads.
func (s *Synchronizer) HidePost(postID string) error {
	if err := s.store.HidePost(postID); err != nil {
		return fmt.Errorf("persist hidden post: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.posts {
		if s.posts[i].ID.Hex() == postID {
			s.posts = append(s.posts[:i], s.posts[i+1:]...)
			break
		}
	}
	delete(s.expanded, postID)
	return nil
}

// ExpandComments shows the full thread for a post. Expansion is local UI
// state only.
func (s *Synchronizer) ExpandComments(postID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expanded[postID] = true
}

func (s *Synchronizer) CollapseComments(postID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.expanded, postID)
}

// DisplayComments returns a post's comments newest-first, truncated to the
// three most recent unless the thread is expanded. Content is passed through
// the translation cache when one is configured.
func (s *Synchronizer) DisplayComments(postID string) []models.GroupComment {
	s.mu.Lock()
	post := s.findPost(postID)
	if post == nil {
		s.mu.Unlock()
		return nil
	}

	comments := make([]models.GroupComment, len(post.CommentList))
	copy(comments, post.CommentList)
	expanded := s.expanded[postID]
	s.mu.Unlock()

	sort.SliceStable(comments, func(i, j int) bool {
		return comments[i].CreatedAt.After(comments[j].CreatedAt)
	})

	if !expanded && len(comments) > displayCommentLimit {
		comments = comments[:displayCommentLimit]
	}

	if s.translator != nil {
		for i := range comments {
			comments[i].Content = s.translator.Lookup(comments[i].Content)
		}
	}
	return comments
}

// Posts returns a snapshot of the visible post list. Slice fields are copied
// too, so later broadcasts cannot mutate a snapshot the caller holds.
func (s *Synchronizer) Posts() []models.GroupPost {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := make([]models.GroupPost, len(s.posts))
	for i := range s.posts {
		snapshot[i] = clonePost(s.posts[i])
	}
	return snapshot
}

func clonePost(post models.GroupPost) models.GroupPost {
	post.LikedBy = append([]string(nil), post.LikedBy...)
	post.CommentList = append([]models.GroupComment(nil), post.CommentList...)
	post.Attachments = append([]models.Attachment(nil), post.Attachments...)
	return post
}

// PostContent returns a post's body, translated when a cache is configured.
func (s *Synchronizer) PostContent(postID string) string {
	s.mu.Lock()
	post := s.findPost(postID)
	if post == nil {
		s.mu.Unlock()
		return ""
	}
	content := post.Content
	s.mu.Unlock()

	if s.translator != nil {
		return s.translator.Lookup(content)
	}
	return content
}

// ErrorMessage returns the last realtime error, or "" once it has cleared.
func (s *Synchronizer) ErrorMessage() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errMsg
}

func (s *Synchronizer) applyError(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	s.errMsg = message
	if s.errTimer != nil {
		s.errTimer.Stop()
	}
	s.errTimer = time.AfterFunc(s.errClearDelay, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.errMsg = ""
	})
}

// Close releases the pending error timer. The caller owns the Conn and the
// session store and closes those separately.
func (s *Synchronizer) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.errTimer != nil {
		s.errTimer.Stop()
		s.errTimer = nil
	}
}

// translateDelta primes the cache with newly arrived strings. Failures are
// logged and the UI falls back to source-language text.
func (s *Synchronizer) translateDelta(ctx context.Context, texts []string) {
	if s.translator == nil || len(texts) == 0 {
		return
	}
	if err := s.translator.EnsureTranslated(ctx, texts); err != nil {
		log.Printf("translation failed, rendering original text: %v", err)
	}
}

// findPost returns a pointer into s.posts; callers must hold s.mu.
func (s *Synchronizer) findPost(postID string) *models.GroupPost {
	for i := range s.posts {
		if s.posts[i].ID.Hex() == postID {
			return &s.posts[i]
		}
	}
	return nil
}

func removeString(list []string, value string) []string {
	for i, v := range list {
		if v == value {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}

func collectTexts(postList []models.GroupPost) []string {
	var texts []string
	for _, post := range postList {
		texts = append(texts, post.Content)
		for _, comment := range post.CommentList {
			texts = append(texts, comment.Content)
		}
	}
	return texts
}
