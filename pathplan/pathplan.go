// Package pathplan chooses which of a server's offered challenges to
// respond to, given either a server-provided combinations hint or a
// client-side preference order to plan blind.
package pathplan

import (
	"github.com/acmecore/acmeclient/acme"
	"github.com/acmecore/acmeclient/errors"
)

// GenChallengePath picks the set of challenge indices (into challs) that
// the client will attempt, given its preference order and the server's
// combinations hint. A non-empty combinations uses the smart path; an
// empty one falls back to the dumb path.
func GenChallengePath(challs []acme.ChallengeBody, preferences []acme.ChallengeType, combinations [][]int) ([]int, error) {
	if len(combinations) > 0 {
		return findSmartPath(challs, preferences, combinations)
	}
	return findDumbPath(challs, preferences)
}

// findSmartPath ranks each offered combination by the sum of its
// members' preference ranks (lower is better) and returns the
// lowest-cost combination the client can actually perform. An unranked
// challenge type costs maxCost, and only a combination cheaper than
// maxCost is selected, so a combination containing an unsupported type
// is never chosen; if no combination qualifies, it returns an error.
func findSmartPath(challs []acme.ChallengeBody, preferences []acme.ChallengeType, combinations [][]int) ([]int, error) {
	rank := make(map[acme.ChallengeType]int, len(preferences))
	maxCost := 1
	for i, pref := range preferences {
		rank[pref] = i
		maxCost += i
	}

	var bestCombo []int
	bestCost := maxCost

	for _, combo := range combinations {
		total := 0
		for _, index := range combo {
			cost, ok := rank[challs[index].Chall.ChallengeType()]
			if !ok {
				cost = maxCost
			}
			total += cost
		}
		if total < bestCost {
			bestCombo = combo
			bestCost = total
		}
	}

	if bestCombo == nil {
		return nil, errors.AuthorizationError("client does not support any combination of challenges that will satisfy the CA")
	}
	return bestCombo, nil
}

// findDumbPath walks the client's preference order and greedily accepts
// every offered challenge of each preferred type that is not mutually
// exclusive with anything already accepted (so of a type that belongs to
// an exclusive group, only the first offered one is taken). preferences
// must not contain duplicates.
func findDumbPath(challs []acme.ChallengeBody, preferences []acme.ChallengeType) ([]int, error) {
	seen := make(map[acme.ChallengeType]bool, len(preferences))
	for _, pref := range preferences {
		if seen[pref] {
			return nil, errors.ClientUsageError("duplicate challenge type %q in preference list", pref)
		}
		seen[pref] = true
	}

	var path []int
	var satisfied []acme.ChallengeType
	for _, pref := range preferences {
		for i, offered := range challs {
			if offered.Chall.ChallengeType() != pref {
				continue
			}
			if !isPreferred(pref, satisfied) {
				continue
			}
			path = append(path, i)
			satisfied = append(satisfied, pref)
		}
	}
	return path, nil
}

// isPreferred reports whether candidate can be added alongside the
// already-satisfied set without creating a mutually exclusive pair.
func isPreferred(candidate acme.ChallengeType, satisfied []acme.ChallengeType) bool {
	for _, s := range satisfied {
		if acme.MutuallyExclusive(candidate, s, acme.ExclusiveChallengeGroups) {
			return false
		}
	}
	return true
}
