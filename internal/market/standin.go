package market

import (
	"errors"
	"fmt"

	"buffmarket.gg/internal/market/marketcfg"
)

var errNoClassTemplate = errors.New("no class template for persisted shop")

const fallbackSellerName = "Buff Seller"

// StandInFactory builds the non-player world presence of a shop. It is
// stateless: every call derives the spec from the record (and, when
// present, the live owner) and hands it to the world for spawning.
type StandInFactory struct {
	cfg   *marketcfg.Config
	world World
}

func NewStandInFactory(cfg *marketcfg.Config, world World) *StandInFactory {
	return &StandInFactory{cfg: cfg, world: world}
}

// FromLiveOwner snapshots the owner's class, appearance and visual
// loadout into the record, then spawns a stand-in mirroring them at the
// owner's position.
func (f *StandInFactory) FromLiveOwner(owner Actor, rec *ShopRecord) (Actor, error) {
	rec.ClassID = owner.ClassID()
	rec.Appearance = owner.Appearance()
	rec.EquippedItems = append([]int(nil), owner.VisibleEquipment()...)
	rec.Pos = owner.Position()
	rec.SetStoreMessage(fmt.Sprintf("Buffs class %d Lv%d", owner.ClassID(), owner.Level()))

	return f.world.SpawnStandIn(StandInSpec{
		OwnerID:       rec.OwnerID,
		Name:          owner.Name(),
		Title:         rec.Title,
		StoreMessage:  rec.StoreMessage,
		ClassID:       rec.ClassID,
		Level:         f.cfg.StandInLevel,
		Mana:          f.cfg.StandInMana,
		Pos:           rec.Pos,
		Appearance:    rec.Appearance,
		CosmeticItems: append([]int(nil), rec.EquippedItems...),
	})
}

// FromPersistedRecord spawns a stand-in for a shop whose owner is not
// online. Fails when the persisted class has no template anymore (e.g.
// removed from the game data between restarts).
func (f *StandInFactory) FromPersistedRecord(rec *ShopRecord) (Actor, error) {
	if !f.world.HasClassTemplate(rec.ClassID) {
		return nil, fmt.Errorf("%w: class %d", errNoClassTemplate, rec.ClassID)
	}
	name := f.world.ActorName(rec.OwnerID)
	if name == "" {
		name = fallbackSellerName
	}
	return f.world.SpawnStandIn(StandInSpec{
		OwnerID:       rec.OwnerID,
		Name:          name,
		Title:         rec.Title,
		StoreMessage:  rec.StoreMessage,
		ClassID:       rec.ClassID,
		Level:         f.cfg.StandInLevel,
		Mana:          f.cfg.StandInMana,
		Pos:           rec.Pos,
		Appearance:    rec.Appearance,
		CosmeticItems: append([]int(nil), rec.EquippedItems...),
	})
}
