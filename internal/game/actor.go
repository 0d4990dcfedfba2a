package game

import (
	"sync"
	"sync/atomic"

	"buffmarket.gg/internal/market"
)

// Player is an in-world actor: a real player or a shop stand-in. Resource
// movement is safe under concurrent callers; mana uses an atomic pool so
// simultaneous purchases race correctly instead of double-spending.
type Player struct {
	id      int
	name    string
	classID int
	level   int
	standIn bool

	mana atomic.Int64

	mu         sync.Mutex
	pos        market.Position
	appearance market.Appearance
	equipment  []int
	currency   int64
	items      map[int]int
	skills     map[int]int // skillID -> level
	effects    map[int]struct{}
	messages   []string

	dead          bool
	inCompetition bool
	trading       bool
	companionID   int

	world *World
}

var _ market.Actor = (*Player)(nil)

func (p *Player) ID() int      { return p.id }
func (p *Player) Name() string { return p.name }
func (p *Player) ClassID() int { return p.classID }
func (p *Player) Level() int   { return p.level }

func (p *Player) Position() market.Position {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pos
}

func (p *Player) SetPosition(pos market.Position) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pos = pos
}

func (p *Player) Appearance() market.Appearance {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.appearance
}

func (p *Player) VisibleEquipment() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]int(nil), p.equipment...)
}

func (p *Player) CurrencyBalance() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.currency
}

func (p *Player) DebitCurrency(amount int64) bool {
	if amount < 0 {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.currency < amount {
		return false
	}
	p.currency -= amount
	return true
}

func (p *Player) CreditCurrency(amount int64) {
	if amount <= 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.currency += amount
}

func (p *Player) ItemCount(itemID int) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.items[itemID]
}

func (p *Player) AddItem(itemID, count int) {
	if count <= 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.items == nil {
		p.items = map[int]int{}
	}
	p.items[itemID] += count
}

func (p *Player) ConsumeItem(itemID, count int) bool {
	if count <= 0 {
		return true
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.items[itemID] < count {
		return false
	}
	p.items[itemID] -= count
	if p.items[itemID] == 0 {
		delete(p.items, itemID)
	}
	return true
}

// TryDebitMana is a CAS loop over the pool; it either takes the whole
// cost or nothing.
func (p *Player) TryDebitMana(cost int) bool {
	if cost <= 0 {
		return true
	}
	for {
		cur := p.mana.Load()
		if cur < int64(cost) {
			return false
		}
		if p.mana.CompareAndSwap(cur, cur-int64(cost)) {
			return true
		}
	}
}

func (p *Player) CreditMana(amount int) {
	if amount > 0 {
		p.mana.Add(int64(amount))
	}
}

func (p *Player) Mana() int { return int(p.mana.Load()) }

func (p *Player) Dead() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dead
}

func (p *Player) InCompetition() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inCompetition
}

func (p *Player) Trading() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.trading
}

// CanTrade is the store-opening predicate: alive, not mid-trade, not in
// a restricted competitive mode, not itself a stand-in.
func (p *Player) CanTrade() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.dead && !p.trading && !p.inCompetition && !p.standIn
}

func (p *Player) SetDead(v bool)          { p.setFlag(&p.dead, v) }
func (p *Player) SetInCompetition(v bool) { p.setFlag(&p.inCompetition, v) }
func (p *Player) SetTrading(v bool)       { p.setFlag(&p.trading, v) }

func (p *Player) setFlag(f *bool, v bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	*f = v
}

func (p *Player) SkillLevel(skillID int) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.skills[skillID]
}

func (p *Player) GrantSkill(skillID, level int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.skills == nil {
		p.skills = map[int]int{}
	}
	p.skills[skillID] = level
}

func (p *Player) RevokeSkill(skillID int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.skills, skillID)
}

func (p *Player) HasEffect(skillID int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.effects[skillID]
	return ok
}

func (p *Player) RemoveEffect(skillID int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.effects, skillID)
}

func (p *Player) addEffect(skillID int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.effects == nil {
		p.effects = map[int]struct{}{}
	}
	p.effects[skillID] = struct{}{}
}

func (p *Player) Notify(msg string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, msg)
}

// Messages drains the pending notification texts. Test and UI helper.
func (p *Player) Messages() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := p.messages
	p.messages = nil
	return out
}

func (p *Player) IsStandIn() bool { return p.standIn }

func (p *Player) SetCompanion(id int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.companionID = id
}
