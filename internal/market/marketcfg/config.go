package marketcfg

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config carries every tunable of the buff marketplace. Skill-id lists
// mirror the live server rules: which classes may sell, which skills may
// never be offered, and the special-cased skill families.
type Config struct {
	MaxOfferings int `yaml:"max_offerings"`

	RestoreBatchSize      int `yaml:"restore_batch_size"`
	RestoreTickMs         int `yaml:"restore_tick_ms"`
	RestoreInitialDelayMs int `yaml:"restore_initial_delay_ms"`

	StandInLevel int `yaml:"stand_in_level"`
	StandInMana  int `yaml:"stand_in_mana"`

	SellerClasses   []int `yaml:"seller_classes,omitempty"`
	ForbiddenSkills []int `yaml:"forbidden_skills,omitempty"`

	// Buyer-funded skills: the buyer briefly receives the skill and casts
	// it on themselves instead of the stand-in casting it.
	SelfOnlySkills []int `yaml:"self_only_skills,omitempty"`

	// Summon-style skills: buyer-funded, restricted to configured buyer
	// classes, and refused when the buyer already knows the skill.
	SummonSkills       []int `yaml:"summon_skills,omitempty"`
	SummonBuyerClasses []int `yaml:"summon_buyer_classes,omitempty"`

	// Mutually exclusive effect family: holding one member blocks buying
	// another without an explicit replacement confirmation.
	ReplaceableFamily []int `yaml:"replaceable_family,omitempty"`

	NonRemovableEffects []int `yaml:"non_removable_effects,omitempty"`

	SkillShop SkillShop `yaml:"skill_shop"`

	sellerClassSet   map[int]struct{}
	forbiddenSet     map[int]struct{}
	selfOnlySet      map[int]struct{}
	summonSet        map[int]struct{}
	summonBuyerSet   map[int]struct{}
	replaceableSet   map[int]struct{}
	nonRemovableSet  map[int]struct{}
	skillShopClasses map[int]struct{}
	skillPaths       map[int]SkillPath
}

// SkillShop configures the permanent skill vendor: per-skill level paths
// with item costs per level.
type SkillShop struct {
	AllowedClasses []int       `yaml:"allowed_classes,omitempty"`
	Paths          []SkillPath `yaml:"paths,omitempty"`
}

type SkillPath struct {
	SkillID int         `yaml:"skill_id"`
	Costs   []LevelCost `yaml:"costs"`
}

type LevelCost struct {
	Level int        `yaml:"level"`
	Items []ItemCost `yaml:"items"`
}

type ItemCost struct {
	ItemID int `yaml:"item_id"`
	Count  int `yaml:"count"`
}

func Load(path string) (Config, error) {
	cfg := Defaults()
	if strings.TrimSpace(path) == "" {
		cfg.Normalize()
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("market.yaml: %w", err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("market.yaml: %w", err)
	}
	return cfg, nil
}

func Defaults() Config {
	return Config{
		MaxOfferings:          8,
		RestoreBatchSize:      2,
		RestoreTickMs:         2000,
		RestoreInitialDelayMs: 5000,
		StandInLevel:          80,
		StandInMana:           4000,
	}
}

func (c *Config) Normalize() {
	if c.MaxOfferings <= 0 {
		c.MaxOfferings = 8
	}
	if c.RestoreBatchSize <= 0 {
		c.RestoreBatchSize = 2
	}
	if c.RestoreTickMs <= 0 {
		c.RestoreTickMs = 2000
	}
	if c.RestoreInitialDelayMs < 0 {
		c.RestoreInitialDelayMs = 0
	}
	if c.StandInLevel <= 0 {
		c.StandInLevel = 80
	}
	if c.StandInMana <= 0 {
		c.StandInMana = 4000
	}

	c.sellerClassSet = toSet(c.SellerClasses)
	c.forbiddenSet = toSet(c.ForbiddenSkills)
	c.selfOnlySet = toSet(c.SelfOnlySkills)
	c.summonSet = toSet(c.SummonSkills)
	c.summonBuyerSet = toSet(c.SummonBuyerClasses)
	c.replaceableSet = toSet(c.ReplaceableFamily)
	c.nonRemovableSet = toSet(c.NonRemovableEffects)
	c.skillShopClasses = toSet(c.SkillShop.AllowedClasses)

	c.skillPaths = make(map[int]SkillPath, len(c.SkillShop.Paths))
	for _, p := range c.SkillShop.Paths {
		c.skillPaths[p.SkillID] = p
	}
}

func (c *Config) Validate() error {
	for _, p := range c.SkillShop.Paths {
		if p.SkillID <= 0 {
			return fmt.Errorf("skill_shop path: bad skill_id %d", p.SkillID)
		}
		for _, lc := range p.Costs {
			if lc.Level <= 0 {
				return fmt.Errorf("skill_shop path %d: bad level %d", p.SkillID, lc.Level)
			}
			for _, it := range lc.Items {
				if it.ItemID <= 0 || it.Count <= 0 {
					return fmt.Errorf("skill_shop path %d level %d: bad item cost", p.SkillID, lc.Level)
				}
			}
		}
	}
	return nil
}

// IsSellerClass reports whether classID may open a storefront. An empty
// list means every class may sell.
func (c *Config) IsSellerClass(classID int) bool {
	if len(c.sellerClassSet) == 0 {
		return true
	}
	_, ok := c.sellerClassSet[classID]
	return ok
}

func (c *Config) IsForbiddenSkill(skillID int) bool { return inSet(c.forbiddenSet, skillID) }
func (c *Config) IsSelfOnly(skillID int) bool       { return inSet(c.selfOnlySet, skillID) }
func (c *Config) IsSummonSkill(skillID int) bool    { return inSet(c.summonSet, skillID) }
func (c *Config) IsSummonBuyerClass(classID int) bool {
	return inSet(c.summonBuyerSet, classID)
}
func (c *Config) IsReplaceable(skillID int) bool  { return inSet(c.replaceableSet, skillID) }
func (c *Config) IsNonRemovable(skillID int) bool { return inSet(c.nonRemovableSet, skillID) }

// BuyerFunded reports whether the buyer, not the stand-in, pays the
// skill's cast costs.
func (c *Config) BuyerFunded(skillID int) bool {
	return c.IsSelfOnly(skillID) || c.IsSummonSkill(skillID)
}

func (c *Config) ReplaceableMembers() []int {
	out := make([]int, len(c.ReplaceableFamily))
	copy(out, c.ReplaceableFamily)
	return out
}

func (c *Config) SkillShopAllowed(classID int) bool {
	return inSet(c.skillShopClasses, classID)
}

func (c *Config) SkillPathFor(skillID int) (SkillPath, bool) {
	p, ok := c.skillPaths[skillID]
	return p, ok
}

// CostsForLevel returns the item costs configured for one level of a
// path, or false when that level is not purchasable.
func (p SkillPath) CostsForLevel(level int) ([]ItemCost, bool) {
	for _, lc := range p.Costs {
		if lc.Level == level {
			return lc.Items, true
		}
	}
	return nil, false
}

func (p SkillPath) MaxLevel() int {
	max := 0
	for _, lc := range p.Costs {
		if lc.Level > max {
			max = lc.Level
		}
	}
	return max
}

func toSet(ids []int) map[int]struct{} {
	m := make(map[int]struct{}, len(ids))
	for _, id := range ids {
		m[id] = struct{}{}
	}
	return m
}

func inSet(m map[int]struct{}, id int) bool {
	_, ok := m[id]
	return ok
}
