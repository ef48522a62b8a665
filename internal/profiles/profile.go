// Package profiles holds the named behavior profiles agents run with.
package profiles

import (
	"fmt"
	"math/rand"
	"time"
)

type ActionFrequency struct {
	MinPerMinute float64 `yaml:"min_per_minute" json:"minActionsPerMinute"`
	MaxPerMinute float64 `yaml:"max_per_minute" json:"maxActionsPerMinute"`
}

type DelayRange struct {
	MinMS int `yaml:"min_ms" json:"min"`
	MaxMS int `yaml:"max_ms" json:"max"`
}

type ResponsePatterns struct {
	IgnoreRate    float64    `yaml:"ignore_rate" json:"ignoreRate"`
	ResponseDelay DelayRange `yaml:"response_delay" json:"responseDelay"`
}

// Profile is immutable once loaded; many agents share one.
type Profile struct {
	Name             string           `yaml:"name" json:"name"`
	Description      string           `yaml:"description" json:"description"`
	BehaviorRules    []string         `yaml:"behavior_rules" json:"behaviorRules"`
	ActionFrequency  ActionFrequency  `yaml:"action_frequency" json:"actionFrequency"`
	ResponsePatterns ResponsePatterns `yaml:"response_patterns" json:"responsePatterns"`
	Behaviors        []string         `yaml:"behaviors" json:"minecraftBehaviors"`
	DiscordBehaviors []string         `yaml:"discord_behaviors" json:"discordBehaviors"`
}

// Interval is the behavior tick period: one minute divided by the mean
// action frequency.
func (p Profile) Interval() time.Duration {
	avg := (p.ActionFrequency.MinPerMinute + p.ActionFrequency.MaxPerMinute) / 2
	if avg <= 0 {
		return time.Minute
	}
	return time.Duration(float64(time.Minute) / avg)
}

func (p Profile) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("profile name is empty")
	}
	f := p.ActionFrequency
	if f.MinPerMinute <= 0 || f.MaxPerMinute <= 0 {
		return fmt.Errorf("profile %s: action frequency must be > 0", p.Name)
	}
	if f.MinPerMinute > f.MaxPerMinute {
		return fmt.Errorf("profile %s: min_per_minute %.2f > max_per_minute %.2f", p.Name, f.MinPerMinute, f.MaxPerMinute)
	}
	r := p.ResponsePatterns
	if r.IgnoreRate < 0 || r.IgnoreRate > 1 {
		return fmt.Errorf("profile %s: ignore_rate %.2f outside [0,1]", p.Name, r.IgnoreRate)
	}
	if r.ResponseDelay.MinMS < 0 || r.ResponseDelay.MinMS > r.ResponseDelay.MaxMS {
		return fmt.Errorf("profile %s: bad response_delay %d..%d", p.Name, r.ResponseDelay.MinMS, r.ResponseDelay.MaxMS)
	}
	if len(p.Behaviors) == 0 {
		return fmt.Errorf("profile %s: empty behavior catalogue", p.Name)
	}
	return nil
}

// Pick returns a behavior chosen uniformly at random.
func (p Profile) Pick(rng *rand.Rand) string {
	return p.Behaviors[rng.Intn(len(p.Behaviors))]
}

// ShouldRespond reports whether an incoming message gets a reply, given the
// profile's ignore rate.
func (p Profile) ShouldRespond(rng *rand.Rand) bool {
	return rng.Float64() >= p.ResponsePatterns.IgnoreRate
}

// ResponseDelay draws a reply delay uniformly from the profile's range.
func (p Profile) ResponseDelay(rng *rand.Rand) time.Duration {
	d := p.ResponsePatterns.ResponseDelay
	ms := d.MinMS
	if d.MaxMS > d.MinMS {
		ms += rng.Intn(d.MaxMS - d.MinMS + 1)
	}
	return time.Duration(ms) * time.Millisecond
}
