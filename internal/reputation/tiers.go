package reputation

import "math"

// Tier is a labeled reputation bracket.
type Tier struct {
	Rank  int    `json:"rank"`
	Label string `json:"label"`
	Emoji string `json:"emoji"`
	Floor int    `json:"floor"`
}

// Tiers lists every bracket in ascending order of Floor.
var Tiers = []Tier{
	{Rank: 0, Label: "Rookie", Emoji: "🐣", Floor: 0},
	{Rank: 1, Label: "Active", Emoji: "🔥", Floor: 21},
	{Rank: 2, Label: "Trusted", Emoji: "⭐", Floor: 51},
	{Rank: 3, Label: "Elite", Emoji: "💎", Floor: 101},
	{Rank: 4, Label: "Legend", Emoji: "👑", Floor: 251},
}

// MaxTierLabel is reported as the next tier once Legend is reached.
const MaxTierLabel = "max tier"

// TierFor returns the bracket containing score. Negative scores are Rookie.
func TierFor(score int) Tier {
	current := Tiers[0]
	for _, tier := range Tiers[1:] {
		if score < tier.Floor {
			break
		}
		current = tier
	}
	return current
}

// TierProgress describes how far a score has advanced through its bracket.
type TierProgress struct {
	Tier      Tier    `json:"tier"`
	Percent   float64 `json:"percent"`
	NextLabel string  `json:"next_label"`
	NextFloor int     `json:"next_floor"`
}

// Progress computes (score - floor) / (nextFloor - floor) as a percentage in [0, 100].
func Progress(score int) TierProgress {
	tier := TierFor(score)
	if tier.Rank == len(Tiers)-1 {
		return TierProgress{Tier: tier, Percent: 100, NextLabel: MaxTierLabel, NextFloor: tier.Floor}
	}
	next := Tiers[tier.Rank+1]
	percent := float64(score-tier.Floor) / float64(next.Floor-tier.Floor) * 100
	percent = math.Max(0, math.Min(100, percent))
	return TierProgress{Tier: tier, Percent: percent, NextLabel: next.Label, NextFloor: next.Floor}
}
