package services

import "winkwink_server/models"

// Transition is what an interest signal did to the pair
type Transition int

const (
	// TransitionNoop: the signal was already in effect
	TransitionNoop Transition = iota
	// TransitionRecorded: the actor's ledger changed, the match state did not
	TransitionRecorded
	TransitionMatchCreated
	TransitionMatchDissolved
)

func (t Transition) Outcome() string {
	switch t {
	case TransitionRecorded:
		return models.SignalRecorded
	case TransitionMatchCreated:
		return models.SignalMatched
	case TransitionMatchDissolved:
		return models.SignalUnmatched
	default:
		return models.SignalUnchanged
	}
}

// Decision reports the transition and which of the two ledgers were modified
type Decision struct {
	Transition    Transition
	ActorChanged  bool
	TargetChanged bool
}

// ApplySignal applies actor's signal toward target to both ledgers in memory.
// It is the only code that writes a peer's ledger, and it keeps the invariants:
// a peer sits in at most one of liked/disliked, matched is symmetric, and a
// matched peer is not also kept in liked.
func ApplySignal(actor, target *models.User, positive bool) Decision {
	if positive {
		return applyPositive(actor, target)
	}
	return applyNegative(actor, target)
}

func applyPositive(actor, target *models.User) Decision {
	if actor.HasMatched(target.ID) || actor.HasLiked(target.ID) {
		return Decision{Transition: TransitionNoop}
	}

	actor.Disliked, _ = models.RemoveID(actor.Disliked, target.ID)
	if !target.HasLiked(actor.ID) {
		actor.Liked, _ = models.AddID(actor.Liked, target.ID)
		return Decision{Transition: TransitionRecorded, ActorChanged: true}
	}

	// second positive signal: the match supersedes both likes
	target.Liked, _ = models.RemoveID(target.Liked, actor.ID)
	actor.Matched, _ = models.AddID(actor.Matched, target.ID)
	target.Matched, _ = models.AddID(target.Matched, actor.ID)
	return Decision{Transition: TransitionMatchCreated, ActorChanged: true, TargetChanged: true}
}

func applyNegative(actor, target *models.User) Decision {
	if actor.HasDisliked(target.ID) {
		return Decision{Transition: TransitionNoop}
	}

	actor.Liked, _ = models.RemoveID(actor.Liked, target.ID)
	actor.Disliked, _ = models.AddID(actor.Disliked, target.ID)

	var dissolved bool
	actor.Matched, dissolved = models.RemoveID(actor.Matched, target.ID)
	if !dissolved {
		return Decision{Transition: TransitionRecorded, ActorChanged: true}
	}
	target.Matched, _ = models.RemoveID(target.Matched, actor.ID)
	return Decision{Transition: TransitionMatchDissolved, ActorChanged: true, TargetChanged: true}
}

// Unpair clears the match between a and b on both sides along with any leftover
// like bookkeeping. It reports false when the two were not matched.
func Unpair(a, b *models.User) bool {
	var matched bool
	a.Matched, matched = models.RemoveID(a.Matched, b.ID)
	if !matched {
		return false
	}
	b.Matched, _ = models.RemoveID(b.Matched, a.ID)
	a.Liked, _ = models.RemoveID(a.Liked, b.ID)
	b.Liked, _ = models.RemoveID(b.Liked, a.ID)
	return true
}
