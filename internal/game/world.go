package game

import (
	"fmt"
	"log"
	"sync"

	"buffmarket.gg/internal/market"
)

// Stand-in ids live in their own range so they can never collide with
// player object ids handed out by account creation.
const standInIDBase = 1 << 28

// World is the in-process actor registry the marketplace talks to. It
// keeps online actors, an id->name index that outlives logouts, and the
// class templates stand-ins are built from.
type World struct {
	log *log.Logger

	mu        sync.RWMutex
	actors    map[int]*Player
	names     map[int]string
	templates map[int]struct{}
	nextStand int
}

var _ market.World = (*World)(nil)

func NewWorld(logger *log.Logger) *World {
	return &World{
		log:       logger,
		actors:    map[int]*Player{},
		names:     map[int]string{},
		templates: map[int]struct{}{},
		nextStand: standInIDBase,
	}
}

// RegisterClassTemplate declares a playable class stand-ins may mirror.
func (w *World) RegisterClassTemplate(classID int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.templates[classID] = struct{}{}
}

func (w *World) HasClassTemplate(classID int) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	_, ok := w.templates[classID]
	return ok
}

// Join brings a player online.
func (w *World) Join(id int, name string, classID, level int) (*Player, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, exists := w.actors[id]; exists {
		return nil, fmt.Errorf("actor %d already online", id)
	}
	p := &Player{
		id:      id,
		name:    name,
		classID: classID,
		level:   level,
		world:   w,
	}
	w.actors[id] = p
	w.names[id] = name
	return p, nil
}

// Leave takes a player offline. The name index keeps the entry so
// restored shops can still display the owner's name.
func (w *World) Leave(id int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.actors, id)
}

func (w *World) ResolveOnlineActor(id int) market.Actor {
	w.mu.RLock()
	defer w.mu.RUnlock()
	p, ok := w.actors[id]
	if !ok {
		return nil
	}
	return p
}

// Actor is ResolveOnlineActor with the concrete type, for wiring code
// and tests that need the full Player surface.
func (w *World) Actor(id int) *Player {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.actors[id]
}

func (w *World) IsOnline(id int) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	p, ok := w.actors[id]
	return ok && !p.standIn
}

func (w *World) ActorName(id int) string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.names[id]
}

func (w *World) CompanionOf(a market.Actor) market.Actor {
	p, ok := a.(*Player)
	if !ok {
		return nil
	}
	p.mu.Lock()
	companionID := p.companionID
	p.mu.Unlock()
	if companionID == 0 {
		return nil
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	c, ok := w.actors[companionID]
	if !ok {
		return nil
	}
	return c
}

// SpawnStandIn materializes a shop's world presence. Cosmetic items are
// display equipment only; they never reach the item logic.
func (w *World) SpawnStandIn(spec market.StandInSpec) (market.Actor, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.templates[spec.ClassID]; !ok {
		return nil, fmt.Errorf("spawn stand-in: no template for class %d", spec.ClassID)
	}
	id := w.nextStand
	w.nextStand++

	p := &Player{
		id:         id,
		name:       spec.Name,
		classID:    spec.ClassID,
		level:      spec.Level,
		standIn:    true,
		pos:        spec.Pos,
		appearance: spec.Appearance,
		equipment:  append([]int(nil), spec.CosmeticItems...),
		world:      w,
	}
	p.mana.Store(int64(spec.Mana))
	w.actors[id] = p
	w.names[id] = spec.Name
	return p, nil
}

func (w *World) Despawn(id int) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	p, ok := w.actors[id]
	if !ok {
		return fmt.Errorf("despawn: actor %d not present", id)
	}
	if !p.standIn {
		return fmt.Errorf("despawn: actor %d is not a stand-in", id)
	}
	delete(w.actors, id)
	delete(w.names, id)
	return nil
}

// ApplyEffect is the opaque effect simulation: record the skill as an
// active effect on the target. Casting onto a gone actor fails.
func (w *World) ApplyEffect(caster, target market.Actor, skillID, level int) error {
	if caster == nil || target == nil {
		return fmt.Errorf("apply effect: missing caster or target")
	}
	t, ok := target.(*Player)
	if !ok {
		return fmt.Errorf("apply effect: foreign actor type")
	}
	w.mu.RLock()
	_, present := w.actors[t.id]
	w.mu.RUnlock()
	if !present {
		return fmt.Errorf("apply effect: target %d left the world", t.id)
	}
	t.addEffect(skillID)
	return nil
}

// OnlineCount reports online actors, stand-ins included.
func (w *World) OnlineCount() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.actors)
}
