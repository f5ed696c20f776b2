package referral

import (
	"fmt"

	"github.com/kursadbilgin/newsletter-engine/internal/domain"
)

// TierCount is one row of the referral aggregate: how many referrers
// referred exactly Referrals users.
type TierCount struct {
	Referrals int `json:"referrals"`
	Referrers int `json:"referrers"`
}

// Rank is a user's standing in the referral race.
type Rank struct {
	// Percentile is the share of active users referring at least as many
	// users as this one, so lower is better.
	Percentile int
	// Position counts distinct referral tiers strictly above the user, plus one.
	Position int
}

// CalculateRank places a user with userReferrals referrals against tiers.
// Users with no referrals are placed last at the 100th percentile.
func CalculateRank(userReferrals int, tiers []TierCount, totalActive int) (Rank, error) {
	if totalActive <= 0 {
		return Rank{}, fmt.Errorf("%w: rank requires at least one active user", domain.ErrPrecondition)
	}
	if userReferrals < 0 {
		return Rank{}, fmt.Errorf("%w: negative referral count %d", domain.ErrValidation, userReferrals)
	}

	atOrAbove := totalActive
	position := totalActive
	if userReferrals > 0 {
		atOrAbove = 0
		position = 1
		for _, tier := range tiers {
			if tier.Referrals >= userReferrals {
				atOrAbove += tier.Referrers
			}
			if tier.Referrals > userReferrals {
				position++
			}
		}
	}

	percentile := min(max(roundHalfEven(atOrAbove*100, totalActive), 0), 100)

	return Rank{Percentile: percentile, Position: position}, nil
}

// roundHalfEven divides num by den (both non-negative, den > 0) rounding
// ties to the even neighbour, without going through floating point.
func roundHalfEven(num, den int) int {
	q, r := num/den, num%den
	switch {
	case 2*r > den:
		q++
	case 2*r == den && q%2 == 1:
		q++
	}
	return q
}
