package market_test

import (
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"buffmarket.gg/internal/game"
	"buffmarket.gg/internal/market"
	"buffmarket.gg/internal/market/marketcfg"
	"buffmarket.gg/internal/skills"
)

func testLogger() *log.Logger { return log.New(io.Discard, "", 0) }

// memStore records every durable call so tests can assert on what the
// registry scheduled without touching sqlite.
type memStore struct {
	mu      sync.Mutex
	saves   []market.Snapshot
	deletes []int
	credits map[int]int64
	rows    []market.Snapshot
}

func newMemStore() *memStore {
	return &memStore{credits: map[int]int64{}}
}

func (m *memStore) Save(s market.Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves = append(m.saves, s)
}

func (m *memStore) Delete(ownerID int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletes = append(m.deletes, ownerID)
}

func (m *memStore) CreditOffline(ownerID int, amount int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.credits[ownerID] += amount
}

func (m *memStore) LoadAll() ([]market.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]market.Snapshot(nil), m.rows...), nil
}

func (m *memStore) lastSave(ownerID int) (market.Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.saves) - 1; i >= 0; i-- {
		if m.saves[i].OwnerID == ownerID {
			return m.saves[i], true
		}
	}
	return market.Snapshot{}, false
}

func (m *memStore) deleteCount(ownerID int) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, id := range m.deletes {
		if id == ownerID {
			n++
		}
	}
	return n
}

func (m *memStore) credit(ownerID int) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.credits[ownerID]
}

// stepDeferrer queues callbacks and fires them only when a test says so,
// making the batched restore fully deterministic.
type stepDeferrer struct {
	mu  sync.Mutex
	fns []func()
}

func (d *stepDeferrer) RunOnce(_ time.Duration, fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fns = append(d.fns, fn)
}

func (d *stepDeferrer) step() bool {
	d.mu.Lock()
	if len(d.fns) == 0 {
		d.mu.Unlock()
		return false
	}
	fn := d.fns[0]
	d.fns = d.fns[1:]
	d.mu.Unlock()
	fn()
	return true
}

func (d *stepDeferrer) pendingCalls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.fns)
}

const catalogJSON = `[
  {"id": 1040, "name": "Shield", "max_level": 3, "mana_cost": 20},
  {"id": 1044, "name": "Regeneration", "max_level": 3, "mana_cost": 24},
  {"id": 1062, "name": "Berserker Spirit", "max_level": 2, "mana_cost": 28, "item_consume_id": 3031, "item_consume_count": 5},
  {"id": 1068, "name": "Might", "max_level": 3, "mana_cost": 20},
  {"id": 1077, "name": "Focus", "max_level": 3, "mana_cost": 24},
  {"id": 1085, "name": "Acumen", "max_level": 3, "mana_cost": 24},
  {"id": 1087, "name": "Agility", "max_level": 3, "mana_cost": 24},
  {"id": 1111, "name": "Summon Storm Cubic", "max_level": 8, "mana_cost": 60, "item_consume_id": 1459, "item_consume_count": 2},
  {"id": 1204, "name": "Wind Walk", "max_level": 2, "mana_cost": 20},
  {"id": 1323, "name": "Noblesse Blessing", "max_level": 1, "mana_cost": 30},
  {"id": 271, "name": "Dance of the Warrior", "max_level": 1, "mana_cost": 30},
  {"id": 272, "name": "Dance of Inspiration", "max_level": 1, "mana_cost": 30},
  {"id": 273, "name": "Dance of the Mystic", "max_level": 1, "mana_cost": 30},
  {"id": 274, "name": "Dance of Fire", "max_level": 1, "mana_cost": 30},
  {"id": 4554, "name": "Beast Shield", "max_level": 2, "mana_cost": 22, "target": "COMPANION"},
  {"id": 4515, "name": "Mystic Immunity", "max_level": 3, "mana_cost": 40, "target": "SELF"}
]`

func testCatalog(t *testing.T) *skills.Catalog {
	t.Helper()
	p := filepath.Join(t.TempDir(), "skills.json")
	if err := os.WriteFile(p, []byte(catalogJSON), 0o644); err != nil {
		t.Fatalf("write catalog: %v", err)
	}
	c, err := skills.Load(p)
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}
	return c
}

func testConfig() *marketcfg.Config {
	cfg := marketcfg.Defaults()
	cfg.SellerClasses = []int{16, 30}
	cfg.ForbiddenSkills = []int{1323}
	cfg.SelfOnlySkills = []int{1044}
	cfg.SummonSkills = []int{1111}
	cfg.SummonBuyerClasses = []int{14}
	cfg.ReplaceableFamily = []int{271, 272, 273, 274}
	cfg.NonRemovableEffects = []int{274}
	cfg.SkillShop = marketcfg.SkillShop{
		AllowedClasses: []int{16},
		Paths: []marketcfg.SkillPath{
			{SkillID: 1040, Costs: []marketcfg.LevelCost{
				{Level: 1, Items: []marketcfg.ItemCost{{ItemID: 6622, Count: 2}}},
				{Level: 2, Items: []marketcfg.ItemCost{{ItemID: 6622, Count: 5}, {ItemID: 8742, Count: 1}}},
			}},
		},
	}
	cfg.Normalize()
	return &cfg
}

// openedEvent mirrors the ShopOpened hook payload.
type openedEvent struct {
	ownerID   int
	standInID int
	offerings int
	restored  bool
}

type closedEvent struct {
	ownerID   int
	standInID int
}

type env struct {
	world   *game.World
	store   *memStore
	cfg     *marketcfg.Config
	catalog *skills.Catalog
	reg     *market.Registry

	mu     sync.Mutex
	opened []openedEvent
	closed []closedEvent
	sales  []market.SaleEvent
}

func newEnv(t *testing.T) *env {
	return newEnvWith(t, nil)
}

func newEnvWith(t *testing.T, tweak func(*marketcfg.Config)) *env {
	t.Helper()
	cfg := testConfig()
	if tweak != nil {
		tweak(cfg)
		cfg.Normalize()
	}
	e := &env{
		world:   game.NewWorld(testLogger()),
		store:   newMemStore(),
		cfg:     cfg,
		catalog: testCatalog(t),
	}
	for id := 0; id <= 120; id++ {
		e.world.RegisterClassTemplate(id)
	}
	hooks := market.Hooks{
		ShopOpened: func(ownerID, standInID, offerings int, restored bool) {
			e.mu.Lock()
			defer e.mu.Unlock()
			e.opened = append(e.opened, openedEvent{ownerID, standInID, offerings, restored})
		},
		ShopClosed: func(ownerID, standInID int) {
			e.mu.Lock()
			defer e.mu.Unlock()
			e.closed = append(e.closed, closedEvent{ownerID, standInID})
		},
		Sale: func(ev market.SaleEvent) {
			e.mu.Lock()
			defer e.mu.Unlock()
			e.sales = append(e.sales, ev)
		},
	}
	e.reg = market.NewRegistry(cfg, e.world, e.catalog, e.store, testLogger(), hooks)
	return e
}

func (e *env) lastOpened(t *testing.T) openedEvent {
	t.Helper()
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.opened) == 0 {
		t.Fatalf("no shop-opened event recorded")
	}
	return e.opened[len(e.opened)-1]
}

func (e *env) lastSale(t *testing.T) market.SaleEvent {
	t.Helper()
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.sales) == 0 {
		t.Fatalf("no sale event recorded")
	}
	return e.sales[len(e.sales)-1]
}

func (e *env) join(t *testing.T, id int, name string, classID, level int) *game.Player {
	t.Helper()
	p, err := e.world.Join(id, name, classID, level)
	if err != nil {
		t.Fatalf("join %d: %v", id, err)
	}
	return p
}

// openShop walks the normal seller path and returns the stand-in id.
func (e *env) openShop(t *testing.T, owner *game.Player, offerings ...market.Offering) int {
	t.Helper()
	if _, res := e.reg.StartDraft(owner.ID()); !res.OK {
		t.Fatalf("start draft: %+v", res)
	}
	for _, o := range offerings {
		if res := e.reg.AddOffering(owner.ID(), o.SkillID, o.Level, o.Price); !res.OK {
			t.Fatalf("add offering %d: %+v", o.SkillID, res)
		}
	}
	if res := e.reg.OpenShop(owner.ID()); !res.OK {
		t.Fatalf("open shop: %+v", res)
	}
	ev := e.lastOpened(t)
	if ev.ownerID != owner.ID() {
		t.Fatalf("opened event for owner %d, want %d", ev.ownerID, owner.ID())
	}
	return ev.standInID
}
