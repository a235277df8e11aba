package protocol

import "testing"

func TestGroupRoom(t *testing.T) {
	if got := GroupRoom("42"); got != "group_42" {
		t.Fatalf("GroupRoom = %q", got)
	}
}

func TestEnvelopeRoundTrip(t *testing.T) {
	likes := 3
	frame, err := Marshal(EventPostLiked, LikeChanged{PostID: "abc", UserID: "7", Likes: &likes})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	env, err := Unmarshal(frame)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if env.Event != EventPostLiked {
		t.Fatalf("event = %q", env.Event)
	}

	var payload LikeChanged
	if err := env.Decode(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.PostID != "abc" || payload.UserID != "7" {
		t.Fatalf("payload = %+v", payload)
	}
	if payload.Likes == nil || *payload.Likes != 3 {
		t.Fatalf("likes = %v", payload.Likes)
	}
}

func TestAbsentLikesDecodesAsNil(t *testing.T) {
	frame, err := Marshal(EventPostUnliked, LikeChanged{PostID: "abc", UserID: "7"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	env, err := Unmarshal(frame)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	var payload LikeChanged
	if err := env.Decode(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Likes != nil {
		t.Fatalf("likes = %v, want nil for relative update", payload.Likes)
	}
}

func TestUnmarshalRejectsMissingEvent(t *testing.T) {
	if _, err := Unmarshal([]byte(`{"data":{}}`)); err == nil {
		t.Fatal("expected error for frame without event")
	}
}
