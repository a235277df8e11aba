package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/studysphere/studysphere-server/cmd/models"
	"github.com/studysphere/studysphere-server/pkg/session"
	"github.com/studysphere/studysphere-server/service/protocol"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// fakeEmitter records emitted intents without a network.
type fakeEmitter struct {
	mu     sync.Mutex
	events []protocol.Envelope
}

func (f *fakeEmitter) Emit(event string, payload interface{}) error {
	frame, err := protocol.Marshal(event, payload)
	if err != nil {
		return err
	}
	env, err := protocol.Unmarshal(frame)
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.events = append(f.events, env)
	f.mu.Unlock()
	return nil
}

func (f *fakeEmitter) recorded() []protocol.Envelope {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]protocol.Envelope, len(f.events))
	copy(out, f.events)
	return out
}

func newTestStore(t *testing.T, userID string) *session.Store {
	t.Helper()
	store, err := session.Open(filepath.Join(t.TempDir(), "session.db"))
	if err != nil {
		t.Fatalf("open session store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	if err := store.SetUserID(userID); err != nil {
		t.Fatalf("set user id: %v", err)
	}
	return store
}

func newTestSync(t *testing.T, store *session.Store, emitter Emitter, postList ...models.GroupPost) *Synchronizer {
	t.Helper()
	s, err := NewSynchronizer("http://unused", emitter, store, nil)
	if err != nil {
		t.Fatalf("new synchronizer: %v", err)
	}
	t.Cleanup(s.Close)
	s.posts = postList
	return s
}

func makePost(content string) models.GroupPost {
	return models.GroupPost{
		ID:          primitive.NewObjectID(),
		GroupID:     "1",
		UserID:      "author",
		Content:     content,
		LikedBy:     []string{},
		CommentList: []models.GroupComment{},
		CreatedAt:   time.Now(),
	}
}

func intPtr(v int) *int { return &v }

func TestToggleLikeIsOptimistic(t *testing.T) {
	emitter := &fakeEmitter{}
	post := makePost("hello")
	s := newTestSync(t, newTestStore(t, "alice"), emitter, post)

	if err := s.ToggleLike(post.ID.Hex()); err != nil {
		t.Fatalf("ToggleLike: %v", err)
	}

	// local state updated before any broadcast
	got := s.Posts()[0]
	if got.Likes != 1 || !got.HasLiked("alice") {
		t.Fatalf("optimistic state: likes=%d liked_by=%v", got.Likes, got.LikedBy)
	}

	events := emitter.recorded()
	if len(events) != 1 || events[0].Event != protocol.EventToggleLikePost {
		t.Fatalf("expected one toggle_like_post intent, got %v", events)
	}
	var payload protocol.ToggleLike
	if err := events[0].Decode(&payload); err != nil {
		t.Fatalf("decode intent: %v", err)
	}
	if payload.PostID != post.ID.Hex() || payload.UserID != "alice" || !payload.IsLiking {
		t.Fatalf("intent payload: %+v", payload)
	}
}

func TestApplyLikedIsIdempotent(t *testing.T) {
	post := makePost("hello")
	s := newTestSync(t, newTestStore(t, "alice"), &fakeEmitter{}, post)

	event := protocol.LikeChanged{PostID: post.ID.Hex(), UserID: "bob", Likes: intPtr(1)}
	s.ApplyLiked(event)
	s.ApplyLiked(event)

	got := s.Posts()[0]
	if got.Likes != 1 {
		t.Fatalf("likes = %d after duplicate broadcast, want 1", got.Likes)
	}
	count := 0
	for _, id := range got.LikedBy {
		if id == "bob" {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("bob appears %d times in liked_by", count)
	}
}

func TestEchoOfOwnLikeDoesNotDoubleCount(t *testing.T) {
	post := makePost("hello")
	s := newTestSync(t, newTestStore(t, "alice"), &fakeEmitter{}, post)

	if err := s.ToggleLike(post.ID.Hex()); err != nil {
		t.Fatalf("ToggleLike: %v", err)
	}
	// server echoes the action with the authoritative total
	s.ApplyLiked(protocol.LikeChanged{PostID: post.ID.Hex(), UserID: "alice", Likes: intPtr(1)})

	got := s.Posts()[0]
	if got.Likes != 1 || len(got.LikedBy) != 1 {
		t.Fatalf("after echo: likes=%d liked_by=%v", got.Likes, got.LikedBy)
	}
}

func TestToggleSequenceConvergesToServerTruth(t *testing.T) {
	post := makePost("hello")
	s := newTestSync(t, newTestStore(t, "alice"), &fakeEmitter{}, post)

	// server-side liked_by set, used to derive authoritative totals
	serverLiked := false
	const toggles = 5

	for i := 0; i < toggles; i++ {
		if err := s.ToggleLike(post.ID.Hex()); err != nil {
			t.Fatalf("ToggleLike %d: %v", i, err)
		}
		serverLiked = !serverLiked
		likes := 0
		if serverLiked {
			likes = 1
		}
		event := protocol.LikeChanged{PostID: post.ID.Hex(), UserID: "alice", Likes: intPtr(likes)}
		if serverLiked {
			s.ApplyLiked(event)
		} else {
			s.ApplyUnliked(event)
		}
	}

	got := s.Posts()[0]
	wantLiked := toggles%2 == 1
	if got.HasLiked("alice") != wantLiked {
		t.Fatalf("liked_by membership = %v after %d toggles", got.HasLiked("alice"), toggles)
	}
	wantLikes := 0
	if wantLiked {
		wantLikes = 1
	}
	if got.Likes != wantLikes {
		t.Fatalf("likes = %d, want %d", got.Likes, wantLikes)
	}
}

func TestServerCountWinsOverLocalDrift(t *testing.T) {
	post := makePost("hello")
	post.Likes = 3 // drifted local count
	s := newTestSync(t, newTestStore(t, "alice"), &fakeEmitter{}, post)

	s.ApplyLiked(protocol.LikeChanged{PostID: post.ID.Hex(), UserID: "bob", Likes: intPtr(7)})

	if got := s.Posts()[0].Likes; got != 7 {
		t.Fatalf("likes = %d, server total should win", got)
	}
}

func TestRelativeFallbackWithoutServerCount(t *testing.T) {
	post := makePost("hello")
	s := newTestSync(t, newTestStore(t, "alice"), &fakeEmitter{}, post)

	liked := protocol.LikeChanged{PostID: post.ID.Hex(), UserID: "bob"}
	s.ApplyLiked(liked)
	s.ApplyLiked(liked) // replay must not double-increment

	if got := s.Posts()[0].Likes; got != 1 {
		t.Fatalf("likes = %d after fallback reconciliation, want 1", got)
	}

	s.ApplyUnliked(protocol.LikeChanged{PostID: post.ID.Hex(), UserID: "bob"})
	if got := s.Posts()[0].Likes; got != 0 {
		t.Fatalf("likes = %d after unlike fallback, want 0", got)
	}
}

func TestUnknownPostBroadcastIgnored(t *testing.T) {
	s := newTestSync(t, newTestStore(t, "alice"), &fakeEmitter{}, makePost("hello"))
	s.ApplyLiked(protocol.LikeChanged{PostID: primitive.NewObjectID().Hex(), UserID: "bob", Likes: intPtr(1)})
	if got := s.Posts()[0].Likes; got != 0 {
		t.Fatalf("unrelated broadcast changed likes to %d", got)
	}
}

func TestCommentsArePessimistic(t *testing.T) {
	emitter := &fakeEmitter{}
	post := makePost("hello")
	s := newTestSync(t, newTestStore(t, "alice"), emitter, post)

	if err := s.SubmitComment(post.ID.Hex(), "nice post"); err != nil {
		t.Fatalf("SubmitComment: %v", err)
	}

	// no local insertion before the broadcast returns
	if got := s.Posts()[0]; len(got.CommentList) != 0 {
		t.Fatalf("comment rendered before confirmation: %v", got.CommentList)
	}

	s.ApplyComment(protocol.Commented{
		PostID:   post.ID.Hex(),
		Comment:  "nice post",
		UserID:   "alice",
		Comments: intPtr(1),
	})

	got := s.Posts()[0]
	if len(got.CommentList) != 1 || got.Comments != 1 {
		t.Fatalf("after broadcast: comments=%d list=%v", got.Comments, got.CommentList)
	}
	if got.CommentList[0].UserID != "alice" || got.CommentList[0].Content != "nice post" {
		t.Fatalf("comment attribution: %+v", got.CommentList[0])
	}
}

func TestAnonymousCommentFallback(t *testing.T) {
	post := makePost("hello")
	s := newTestSync(t, newTestStore(t, "alice"), &fakeEmitter{}, post)

	s.ApplyComment(protocol.Commented{PostID: post.ID.Hex(), Comment: "drive-by"})

	got := s.Posts()[0]
	if len(got.CommentList) != 1 || got.CommentList[0].UserID != "Anonymous" {
		t.Fatalf("expected Anonymous attribution, got %v", got.CommentList)
	}
}

func TestDisplayCommentsOrderingAndTruncation(t *testing.T) {
	post := makePost("hello")
	base := time.Now().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		post.CommentList = append(post.CommentList, models.GroupComment{
			UserID:    "u",
			Content:   fmt.Sprintf("c%d", i),
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
	}
	s := newTestSync(t, newTestStore(t, "alice"), &fakeEmitter{}, post)

	display := s.DisplayComments(post.ID.Hex())
	if len(display) != 3 {
		t.Fatalf("collapsed thread shows %d comments, want 3", len(display))
	}
	for i, want := range []string{"c4", "c3", "c2"} {
		if display[i].Content != want {
			t.Fatalf("display[%d] = %q, want %q", i, display[i].Content, want)
		}
	}

	s.ExpandComments(post.ID.Hex())
	display = s.DisplayComments(post.ID.Hex())
	if len(display) != 5 {
		t.Fatalf("expanded thread shows %d comments, want 5", len(display))
	}
	for i, want := range []string{"c4", "c3", "c2", "c1", "c0"} {
		if display[i].Content != want {
			t.Fatalf("expanded display[%d] = %q, want %q", i, display[i].Content, want)
		}
	}

	s.CollapseComments(post.ID.Hex())
	if got := len(s.DisplayComments(post.ID.Hex())); got != 3 {
		t.Fatalf("re-collapsed thread shows %d comments", got)
	}
}

func TestHiddenPostExcludedAcrossReload(t *testing.T) {
	hiddenPost := makePost("hide me")
	visiblePost := makePost("keep me")

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"message": "Posts retrieved successfully",
			"data":    []models.GroupPost{hiddenPost, visiblePost},
		})
	}))
	defer server.Close()

	storePath := filepath.Join(t.TempDir(), "session.db")
	store, err := session.Open(storePath)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	store.SetUserID("alice")

	s, err := NewSynchronizer(server.URL, &fakeEmitter{}, store, nil)
	if err != nil {
		t.Fatalf("new synchronizer: %v", err)
	}
	if err := s.FetchGroupPosts(context.Background(), "1"); err != nil {
		t.Fatalf("FetchGroupPosts: %v", err)
	}
	if got := len(s.Posts()); got != 2 {
		t.Fatalf("initial fetch returned %d posts", got)
	}

	if err := s.HidePost(hiddenPost.ID.Hex()); err != nil {
		t.Fatalf("HidePost: %v", err)
	}
	if got := s.Posts(); len(got) != 1 || got[0].ID != visiblePost.ID {
		t.Fatalf("post still rendered after hide: %v", got)
	}
	s.Close()
	store.Close()

	// simulated reload: fresh synchronizer against the same storage
	store2, err := session.Open(storePath)
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	defer store2.Close()

	s2, err := NewSynchronizer(server.URL, &fakeEmitter{}, store2, nil)
	if err != nil {
		t.Fatalf("new synchronizer after reload: %v", err)
	}
	defer s2.Close()

	if err := s2.FetchGroupPosts(context.Background(), "1"); err != nil {
		t.Fatalf("FetchGroupPosts after reload: %v", err)
	}
	got := s2.Posts()
	if len(got) != 1 || got[0].ID != visiblePost.ID {
		t.Fatalf("hidden post resurfaced after reload: %v", got)
	}
}

func TestPostsSnapshotSurvivesLaterEvents(t *testing.T) {
	post := makePost("hello")
	post.LikedBy = []string{"A", "B"}
	post.Likes = 2
	post.CommentList = []models.GroupComment{{UserID: "A", Content: "first", CreatedAt: time.Now()}}
	s := newTestSync(t, newTestStore(t, "alice"), &fakeEmitter{}, post)

	snapshot := s.Posts()[0]

	s.ApplyUnliked(protocol.LikeChanged{PostID: post.ID.Hex(), UserID: "A", Likes: intPtr(1)})
	s.ApplyComment(protocol.Commented{PostID: post.ID.Hex(), Comment: "second", UserID: "B"})

	if len(snapshot.LikedBy) != 2 || snapshot.LikedBy[0] != "A" || snapshot.LikedBy[1] != "B" {
		t.Fatalf("snapshot liked_by mutated: %v", snapshot.LikedBy)
	}
	if len(snapshot.CommentList) != 1 || snapshot.CommentList[0].Content != "first" {
		t.Fatalf("snapshot comments mutated: %v", snapshot.CommentList)
	}

	current := s.Posts()[0]
	if len(current.LikedBy) != 1 || current.LikedBy[0] != "B" {
		t.Fatalf("live state wrong: %v", current.LikedBy)
	}
}

func TestNewPostBroadcastPrepends(t *testing.T) {
	existing := makePost("old")
	s := newTestSync(t, newTestStore(t, "alice"), &fakeEmitter{}, existing)

	incoming := makePost("new")
	s.ApplyNewPost(incoming)
	s.ApplyNewPost(incoming) // duplicate broadcast ignored

	got := s.Posts()
	if len(got) != 2 || got[0].ID != incoming.ID {
		t.Fatalf("post list after broadcast: %v", got)
	}
}

func TestErrorMessageAutoClears(t *testing.T) {
	s := newTestSync(t, newTestStore(t, "alice"), &fakeEmitter{})
	s.errClearDelay = 20 * time.Millisecond

	s.applyError("something broke")
	if got := s.ErrorMessage(); got != "something broke" {
		t.Fatalf("ErrorMessage = %q", got)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if s.ErrorMessage() == "" {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("error message did not clear")
}

// fakeHub simulates the server: it owns the authoritative liked_by set and
// broadcasts echoes to every registered synchronizer.
type fakeHub struct {
	mu      sync.Mutex
	likedBy map[string]map[string]bool
	members []*Synchronizer
}

func newFakeHub() *fakeHub {
	return &fakeHub{likedBy: make(map[string]map[string]bool)}
}

type hubEmitter struct {
	hub *fakeHub
}

func (e *hubEmitter) Emit(event string, payload interface{}) error {
	if event != protocol.EventToggleLikePost {
		return nil
	}
	frame, err := protocol.Marshal(event, payload)
	if err != nil {
		return err
	}
	env, err := protocol.Unmarshal(frame)
	if err != nil {
		return err
	}
	var intent protocol.ToggleLike
	if err := env.Decode(&intent); err != nil {
		return err
	}
	e.hub.handleToggle(intent)
	return nil
}

func (h *fakeHub) handleToggle(intent protocol.ToggleLike) {
	h.mu.Lock()
	set, ok := h.likedBy[intent.PostID]
	if !ok {
		set = make(map[string]bool)
		h.likedBy[intent.PostID] = set
	}
	if intent.IsLiking {
		set[intent.UserID] = true
	} else {
		delete(set, intent.UserID)
	}
	likes := len(set)
	members := make([]*Synchronizer, len(h.members))
	copy(members, h.members)
	h.mu.Unlock()

	event := protocol.EventPostLiked
	if !intent.IsLiking {
		event = protocol.EventPostUnliked
	}
	frame, _ := protocol.Marshal(event, protocol.LikeChanged{
		PostID: intent.PostID,
		UserID: intent.UserID,
		Likes:  &likes,
	})
	env, _ := protocol.Unmarshal(frame)
	for _, member := range members {
		member.HandleEvent(env)
	}
}

func TestTwoClientsConverge(t *testing.T) {
	hub := newFakeHub()
	post := makePost("shared")

	clientA := newTestSync(t, newTestStore(t, "A"), &hubEmitter{hub: hub}, post)
	clientB := newTestSync(t, newTestStore(t, "B"), &hubEmitter{hub: hub}, post)
	hub.members = []*Synchronizer{clientA, clientB}

	// A likes P: A's view shows 1 immediately
	if err := clientA.ToggleLike(post.ID.Hex()); err != nil {
		t.Fatalf("ToggleLike: %v", err)
	}

	viewA := clientA.Posts()[0]
	viewB := clientB.Posts()[0]
	if viewA.Likes != 1 {
		t.Fatalf("A sees %d likes, want 1", viewA.Likes)
	}
	// B received the broadcast: 0 -> 1
	if viewB.Likes != 1 || !viewB.HasLiked("A") {
		t.Fatalf("B sees likes=%d liked_by=%v", viewB.Likes, viewB.LikedBy)
	}
	// A re-applied its own echo without double counting
	if len(viewA.LikedBy) != 1 {
		t.Fatalf("A liked_by = %v after echo", viewA.LikedBy)
	}

	// B unlikes on behalf of nobody: B toggles like then unlike
	if err := clientB.ToggleLike(post.ID.Hex()); err != nil {
		t.Fatalf("B ToggleLike: %v", err)
	}
	if err := clientB.ToggleLike(post.ID.Hex()); err != nil {
		t.Fatalf("B ToggleLike (undo): %v", err)
	}

	viewA = clientA.Posts()[0]
	viewB = clientB.Posts()[0]
	if viewA.Likes != 1 || viewB.Likes != 1 {
		t.Fatalf("views diverged: A=%d B=%d, want 1", viewA.Likes, viewB.Likes)
	}
	if viewA.HasLiked("B") || viewB.HasLiked("B") {
		t.Fatal("B still present in liked_by after undo")
	}
}

func TestHandleEventDispatch(t *testing.T) {
	post := makePost("hello")
	s := newTestSync(t, newTestStore(t, "alice"), &fakeEmitter{}, post)

	frame, err := protocol.Marshal(protocol.EventPostLiked, protocol.LikeChanged{
		PostID: post.ID.Hex(),
		UserID: "bob",
		Likes:  intPtr(1),
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	env, err := protocol.Unmarshal(frame)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	s.HandleEvent(env)
	if got := s.Posts()[0].Likes; got != 1 {
		t.Fatalf("likes = %d after dispatched event", got)
	}

	frame, _ = protocol.Marshal(protocol.EventError, protocol.ErrorMessage{Message: "bad intent"})
	env, _ = protocol.Unmarshal(frame)
	s.HandleEvent(env)
	if got := s.ErrorMessage(); got != "bad intent" {
		t.Fatalf("ErrorMessage = %q", got)
	}
}
