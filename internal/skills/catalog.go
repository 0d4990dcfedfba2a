package skills

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
)

// TargetKind constrains who a skill may land on. ANY skills follow the
// buyer's requested target.
type TargetKind string

const (
	TargetAny       TargetKind = "ANY"
	TargetSelf      TargetKind = "SELF"
	TargetCompanion TargetKind = "COMPANION"
)

type SkillDef struct {
	ID       int        `json:"id"`
	Name     string     `json:"name"`
	MaxLevel int        `json:"max_level"`
	ManaCost int        `json:"mana_cost"`
	Target   TargetKind `json:"target,omitempty"`

	// Optional reagent the buyer must supply regardless of who casts.
	ItemConsumeID    int `json:"item_consume_id,omitempty"`
	ItemConsumeCount int `json:"item_consume_count,omitempty"`
}

type Catalog struct {
	byID   map[int]SkillDef
	Digest string
}

func Load(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var defs []SkillDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return nil, fmt.Errorf("skills.json: %w", err)
	}

	c := &Catalog{byID: make(map[int]SkillDef, len(defs))}
	for _, d := range defs {
		if d.ID <= 0 {
			return nil, fmt.Errorf("skills.json: bad skill id %d", d.ID)
		}
		if d.MaxLevel <= 0 {
			d.MaxLevel = 1
		}
		if d.Target == "" {
			d.Target = TargetAny
		}
		if _, dup := c.byID[d.ID]; dup {
			return nil, fmt.Errorf("skills.json: duplicate skill id %d", d.ID)
		}
		c.byID[d.ID] = d
	}
	sum := sha256.Sum256(raw)
	c.Digest = hex.EncodeToString(sum[:])
	return c, nil
}

// Resolve returns the definition for a skill at the requested level, or
// false when the skill is unknown or the level is out of range.
func (c *Catalog) Resolve(skillID, level int) (SkillDef, bool) {
	d, ok := c.byID[skillID]
	if !ok || level < 1 || level > d.MaxLevel {
		return SkillDef{}, false
	}
	return d, true
}

func (c *Catalog) Len() int { return len(c.byID) }
