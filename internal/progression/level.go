package progression

import (
	"errors"
	"fmt"
	"math"

	"github.com/MarcoPoloResearchLab/assistant/internal/store"
)

// xpPerLevelUnit scales the square-root level curve: level = floor(sqrt(xp/100)) + 1.
const xpPerLevelUnit = 100

// ErrInvalidRewardTable indicates reward thresholds are not strictly increasing with level.
var ErrInvalidRewardTable = errors.New("progression: invalid reward table")

// LevelForXP returns floor(sqrt(xp/100)) + 1, computed in integers. Negative XP is level 1.
func LevelForXP(xp int) int {
	if xp <= 0 {
		return 1
	}
	units := xp / xpPerLevelUnit
	root := int(math.Sqrt(float64(units)))
	for root*root > units {
		root--
	}
	for (root+1)*(root+1) <= units {
		root++
	}
	return root + 1
}

// XPForLevel returns level^2 * 100: the cumulative XP at which level+1 is reached.
func XPForLevel(level int) int {
	if level <= 0 {
		return 0
	}
	return level * level * xpPerLevelUnit
}

// DefaultRewards is the reward table seeded on first start.
func DefaultRewards() []store.LevelReward {
	return []store.LevelReward{
		{Level: 1, XPRequired: 0, RewardText: "Новичок", RewardXP: 0},
		{Level: 2, XPRequired: 100, RewardText: "Любитель", RewardXP: 50},
		{Level: 3, XPRequired: 300, RewardText: "Пользователь", RewardXP: 100},
		{Level: 4, XPRequired: 600, RewardText: "Активный", RewardXP: 150},
		{Level: 5, XPRequired: 1000, RewardText: "Опытный", RewardXP: 200},
		{Level: 6, XPRequired: 1500, RewardText: "Эксперт", RewardXP: 250},
		{Level: 7, XPRequired: 2100, RewardText: "Мастер", RewardXP: 300},
		{Level: 8, XPRequired: 2800, RewardText: "Профи", RewardXP: 400},
		{Level: 9, XPRequired: 3600, RewardText: "Ветеран", RewardXP: 500},
		{Level: 10, XPRequired: 4500, RewardText: "Легенда", RewardXP: 1000},
	}
}

// ValidateRewards checks that levels are positive and unique, bonuses are non-negative,
// and thresholds strictly increase with level. Rows may be given in any order.
func ValidateRewards(rewards []store.LevelReward) error {
	byLevel := make(map[int]store.LevelReward, len(rewards))
	maxLevel := 0
	for _, reward := range rewards {
		if reward.Level <= 0 {
			return fmt.Errorf("%w: level %d must be positive", ErrInvalidRewardTable, reward.Level)
		}
		if reward.RewardXP < 0 {
			return fmt.Errorf("%w: level %d has negative bonus", ErrInvalidRewardTable, reward.Level)
		}
		if _, duplicate := byLevel[reward.Level]; duplicate {
			return fmt.Errorf("%w: level %d listed twice", ErrInvalidRewardTable, reward.Level)
		}
		byLevel[reward.Level] = reward
		if reward.Level > maxLevel {
			maxLevel = reward.Level
		}
	}
	previous := -1
	for level := 1; level <= maxLevel; level++ {
		reward, ok := byLevel[level]
		if !ok {
			continue
		}
		if reward.XPRequired <= previous {
			return fmt.Errorf("%w: threshold of level %d does not exceed the previous level", ErrInvalidRewardTable, level)
		}
		previous = reward.XPRequired
	}
	return nil
}
