package market

import (
	"log"
	"sync"

	"buffmarket.gg/internal/market/marketcfg"
	"buffmarket.gg/internal/skills"
)

const ownerStripes = 64

// Registry is the single source of truth for which shops exist and
// where. All mutations for one owner id are serialized on a lock stripe;
// the shop/seller maps are guarded separately so their inverse-mapping
// invariant changes atomically.
//
// The registry never blocks on durable I/O: the Store contract runs
// saves, deletes and credits on a background worker.
type Registry struct {
	cfg     *marketcfg.Config
	world   World
	catalog *skills.Catalog
	store   Store
	factory *StandInFactory
	log     *log.Logger
	hooks   Hooks

	mu      sync.RWMutex
	shops   map[int]*ShopRecord // ownerID -> published record
	sellers map[int]int         // standInID -> ownerID
	drafts  map[int]*ShopRecord // ownerID -> profile being edited

	stripes [ownerStripes]sync.Mutex
}

func NewRegistry(cfg *marketcfg.Config, world World, catalog *skills.Catalog, store Store, logger *log.Logger, hooks Hooks) *Registry {
	return &Registry{
		cfg:     cfg,
		world:   world,
		catalog: catalog,
		store:   store,
		factory: NewStandInFactory(cfg, world),
		log:     logger,
		hooks:   hooks,
		shops:   map[int]*ShopRecord{},
		sellers: map[int]int{},
		drafts:  map[int]*ShopRecord{},
	}
}

func (r *Registry) ownerLock(ownerID int) *sync.Mutex {
	return &r.stripes[uint(ownerID)%ownerStripes]
}

// StartDraft returns the owner's draft profile, creating an empty one on
// first use. Idempotent.
func (r *Registry) StartDraft(ownerID int) (Snapshot, OpenResult) {
	owner := r.world.ResolveOnlineActor(ownerID)
	if owner == nil {
		return Snapshot{}, openFail(CodeOwnerIneligible, "You must be online to set up a shop.")
	}
	if !r.cfg.IsSellerClass(owner.ClassID()) {
		return Snapshot{}, openFail(CodeOwnerIneligible, "Your class may not open a buff shop.")
	}

	mu := r.ownerLock(ownerID)
	mu.Lock()
	defer mu.Unlock()

	r.mu.Lock()
	draft, ok := r.drafts[ownerID]
	if !ok {
		draft = NewShopRecord(ownerID)
		r.drafts[ownerID] = draft
	}
	snap := draft.Snapshot()
	r.mu.Unlock()
	return snap, openOK()
}

// AddOffering inserts or replaces one sell entry on the owner's draft.
func (r *Registry) AddOffering(ownerID, skillID, level int, price int64) OpenResult {
	if _, ok := r.catalog.Resolve(skillID, level); !ok {
		return openFail(CodeOfferingUnavailable, "That skill cannot be sold.")
	}
	if r.cfg.IsForbiddenSkill(skillID) {
		return openFail(CodeForbiddenSkill, "That skill cannot be sold.")
	}

	mu := r.ownerLock(ownerID)
	mu.Lock()
	defer mu.Unlock()

	draft := r.draftOf(ownerID)
	if _, replacing := draft.Offering(skillID); !replacing && draft.OfferingCount() >= r.cfg.MaxOfferings {
		return openFail(CodeCapacity, "Your shop cannot hold more buffs.")
	}
	draft.setOffering(Offering{SkillID: skillID, Level: level, Price: price})
	return openOK()
}

// RemoveOffering drops one sell entry. Removing an absent entry is fine.
func (r *Registry) RemoveOffering(ownerID, skillID int) {
	mu := r.ownerLock(ownerID)
	mu.Lock()
	defer mu.Unlock()
	r.draftOf(ownerID).removeOffering(skillID)
}

func (r *Registry) SetDraftTitle(ownerID int, title string) {
	mu := r.ownerLock(ownerID)
	mu.Lock()
	defer mu.Unlock()
	r.draftOf(ownerID).SetTitle(title)
}

func (r *Registry) SetDraftStoreMessage(ownerID int, msg string) {
	mu := r.ownerLock(ownerID)
	mu.Lock()
	defer mu.Unlock()
	r.draftOf(ownerID).SetStoreMessage(msg)
}

// draftOf must run under the owner stripe.
func (r *Registry) draftOf(ownerID int) *ShopRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	draft, ok := r.drafts[ownerID]
	if !ok {
		draft = NewShopRecord(ownerID)
		r.drafts[ownerID] = draft
	}
	return draft
}

// OpenShop publishes the owner's draft: spawns a stand-in, registers the
// shop under both maps and schedules a durable save. An already-open shop
// for the same owner is closed first, synchronously, so one owner can
// never have two stand-ins.
func (r *Registry) OpenShop(ownerID int) OpenResult {
	owner := r.world.ResolveOnlineActor(ownerID)
	if owner == nil || !owner.CanTrade() {
		return openFail(CodeOwnerIneligible, "You cannot open a shop right now.")
	}
	if !r.cfg.IsSellerClass(owner.ClassID()) {
		return openFail(CodeOwnerIneligible, "Your class may not open a buff shop.")
	}

	mu := r.ownerLock(ownerID)
	mu.Lock()
	defer mu.Unlock()

	r.mu.RLock()
	draft := r.drafts[ownerID]
	r.mu.RUnlock()
	if draft == nil || draft.OfferingCount() == 0 {
		return openFail(CodeNoOfferings, "Add at least one buff to sell.")
	}

	if r.hasShopLocked(ownerID) {
		r.closeOwnerLocked(ownerID)
	}

	// Publish a copy; the draft stays editable without touching the live shop.
	published := draft.clone()
	standIn, err := r.factory.FromLiveOwner(owner, published)
	if err != nil {
		r.log.Printf("market: stand-in creation failed for owner %d: %v", ownerID, err)
		return openFail(CodeStandInFailed, "Your shop could not be opened. Try again.")
	}
	published.StandInID = standIn.ID()

	r.mu.Lock()
	r.shops[ownerID] = published
	r.sellers[standIn.ID()] = ownerID
	r.mu.Unlock()

	r.store.Save(published.Snapshot())
	r.hooks.shopOpened(ownerID, standIn.ID(), published.OfferingCount(), false)
	owner.Notify("Your buff shop is open.")
	return openOK()
}

// CloseShop removes the shop from both maps, despawns the stand-in
// (best-effort) and schedules the durable delete. No-op when nothing is
// open for the owner.
func (r *Registry) CloseShop(ownerID int) {
	mu := r.ownerLock(ownerID)
	mu.Lock()
	defer mu.Unlock()
	r.closeOwnerLocked(ownerID)
}

// closeOwnerLocked must run under the owner stripe.
func (r *Registry) closeOwnerLocked(ownerID int) {
	r.mu.Lock()
	rec, ok := r.shops[ownerID]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.shops, ownerID)
	standInID := rec.StandInID
	if standInID > 0 {
		delete(r.sellers, standInID)
	}
	r.mu.Unlock()

	if standInID > 0 {
		if err := r.world.Despawn(standInID); err != nil {
			r.log.Printf("market: despawn stand-in %d (owner %d): %v", standInID, ownerID, err)
		}
	}
	r.store.Delete(ownerID)
	r.hooks.shopClosed(ownerID, standInID)
}

func (r *Registry) hasShopLocked(ownerID int) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.shops[ownerID]
	return ok
}

// PurgeOwner removes every trace of an owner: open shop, draft profile
// and the persisted row. Used when an account is deleted.
func (r *Registry) PurgeOwner(ownerID int) {
	mu := r.ownerLock(ownerID)
	mu.Lock()
	defer mu.Unlock()

	r.closeOwnerLocked(ownerID)

	r.mu.Lock()
	delete(r.drafts, ownerID)
	r.mu.Unlock()
	// closeOwnerLocked only deletes when a shop was open; a purge must
	// clear the row either way.
	r.store.Delete(ownerID)
}

// ResolveSeller maps a stand-in back to the shop owner. O(1).
func (r *Registry) ResolveSeller(standInID int) (int, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ownerID, ok := r.sellers[standInID]
	return ownerID, ok
}

// GetShop returns a copy of the published shop state.
func (r *Registry) GetShop(ownerID int) (Snapshot, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.shops[ownerID]
	if !ok {
		return Snapshot{}, false
	}
	return rec.Snapshot(), true
}

// ShopCount reports how many shops are currently registered.
func (r *Registry) ShopCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.shops)
}

// registerRestored installs a persisted shop exactly as OpenShop would,
// minus the save (the row is already durable) and minus any credit
// replay. Returns false when the owner came online meanwhile, already has
// a shop, or the stand-in could not be built.
func (r *Registry) registerRestored(rec *ShopRecord) bool {
	mu := r.ownerLock(rec.OwnerID)
	mu.Lock()
	defer mu.Unlock()

	if r.world.IsOnline(rec.OwnerID) {
		// Their shop, if any, re-opens through the normal path.
		return false
	}
	if r.hasShopLocked(rec.OwnerID) {
		return false
	}

	standIn, err := r.factory.FromPersistedRecord(rec)
	if err != nil {
		r.log.Printf("market: restore stand-in for owner %d: %v", rec.OwnerID, err)
		return false
	}
	rec.StandInID = standIn.ID()

	r.mu.Lock()
	r.shops[rec.OwnerID] = rec
	r.sellers[standIn.ID()] = rec.OwnerID
	r.mu.Unlock()

	r.hooks.shopOpened(rec.OwnerID, standIn.ID(), rec.OfferingCount(), true)
	return true
}
