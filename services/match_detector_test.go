package services

import (
	"testing"

	"winkwink_server/models"
)

func TestApplySignalTransitions(t *testing.T) {
	cases := []struct {
		name     string
		actor    models.User
		target   models.User
		positive bool
		want     Transition
		check    func(t *testing.T, actor, target *models.User)
	}{
		{
			name:     "first like is recorded",
			actor:    models.User{ID: "a"},
			target:   models.User{ID: "b"},
			positive: true,
			want:     TransitionRecorded,
			check: func(t *testing.T, actor, target *models.User) {
				if !sameIDs(actor.Liked, "b") || len(target.Liked) != 0 {
					t.Errorf("unexpected ledgers %+v %+v", actor, target)
				}
			},
		},
		{
			name:     "reciprocal like matches",
			actor:    models.User{ID: "a"},
			target:   models.User{ID: "b", Liked: []string{"a", "c"}},
			positive: true,
			want:     TransitionMatchCreated,
			check: func(t *testing.T, actor, target *models.User) {
				if !sameIDs(actor.Matched, "b") || !sameIDs(target.Matched, "a") {
					t.Errorf("match not symmetric")
				}
				if len(actor.Liked) != 0 || !sameIDs(target.Liked, "c") {
					t.Errorf("likes between the pair should be superseded: %v %v", actor.Liked, target.Liked)
				}
			},
		},
		{
			name:     "like after pass moves the peer",
			actor:    models.User{ID: "a", Disliked: []string{"b"}},
			target:   models.User{ID: "b"},
			positive: true,
			want:     TransitionRecorded,
			check: func(t *testing.T, actor, _ *models.User) {
				if len(actor.Disliked) != 0 || !sameIDs(actor.Liked, "b") {
					t.Errorf("peer should move from disliked to liked: %+v", actor)
				}
			},
		},
		{
			name:     "like while matched is a no-op",
			actor:    models.User{ID: "a", Matched: []string{"b"}},
			target:   models.User{ID: "b", Matched: []string{"a"}},
			positive: true,
			want:     TransitionNoop,
		},
		{
			name:     "repeated pass is a no-op",
			actor:    models.User{ID: "a", Disliked: []string{"b"}},
			target:   models.User{ID: "b"},
			positive: false,
			want:     TransitionNoop,
		},
		{
			name:     "pass while matched dissolves",
			actor:    models.User{ID: "a", Matched: []string{"b"}},
			target:   models.User{ID: "b", Matched: []string{"a"}},
			positive: false,
			want:     TransitionMatchDissolved,
			check: func(t *testing.T, actor, target *models.User) {
				if len(actor.Matched) != 0 || len(target.Matched) != 0 {
					t.Errorf("match should be gone on both sides")
				}
				if !sameIDs(actor.Disliked, "b") || len(target.Liked) != 0 {
					t.Errorf("unexpected ledgers %+v %+v", actor, target)
				}
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			actor, target := tc.actor.Clone(), tc.target.Clone()
			d := ApplySignal(actor, target, tc.positive)
			if d.Transition != tc.want {
				t.Fatalf("expected transition %d, got %d", tc.want, d.Transition)
			}
			if d.Transition == TransitionNoop && (d.ActorChanged || d.TargetChanged) {
				t.Fatalf("no-op must not report changes")
			}
			if tc.check != nil {
				tc.check(t, actor, target)
			}
		})
	}
}

func TestUnpair(t *testing.T) {
	a := &models.User{ID: "a", Matched: []string{"b"}, Liked: []string{"b"}}
	b := &models.User{ID: "b", Matched: []string{"a"}}
	if !Unpair(a, b) {
		t.Fatalf("expected unpair to succeed")
	}
	if a.References("b") || b.References("a") {
		t.Fatalf("leftover references %+v %+v", a, b)
	}
	if Unpair(a, b) {
		t.Fatalf("second unpair should report no match")
	}
}
