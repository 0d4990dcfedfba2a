package market_test

import (
	"fmt"
	"testing"

	"buffmarket.gg/internal/market"
)

func seedRows(e *env, n int) {
	for i := 0; i < n; i++ {
		e.store.rows = append(e.store.rows, market.Snapshot{
			OwnerID: 1000 + i,
			Offerings: []market.Offering{
				{SkillID: 1040, Level: 1, Price: 100},
				{SkillID: 1068, Level: 2, Price: 250},
			},
			Title:   fmt.Sprintf("shop %d", i),
			ClassID: 16,
			Pos:     market.Position{X: i, Y: -i, Z: 10},
		})
	}
}

func TestRestore_BatchesUntilDrained(t *testing.T) {
	e := newEnv(t)
	seedRows(e, 5)

	d := &stepDeferrer{}
	rs := market.NewRestoreScheduler(e.reg, d, testLogger())
	if err := rs.Run(); err != nil {
		t.Fatalf("run: %v", err)
	}
	if e.reg.ShopCount() != 0 {
		t.Fatalf("shops registered before the first batch fired")
	}
	if d.pendingCalls() != 1 {
		t.Fatalf("pending calls = %d after Run, want 1", d.pendingCalls())
	}

	// Batch size 2: expect 2, 4, then 5 shops across three ticks.
	wantCounts := []int{2, 4, 5}
	for i, want := range wantCounts {
		if !d.step() {
			t.Fatalf("tick %d: nothing scheduled", i)
		}
		if got := e.reg.ShopCount(); got != want {
			t.Fatalf("tick %d: shop count = %d, want %d", i, got, want)
		}
	}
	if d.step() {
		t.Fatalf("scheduler kept rescheduling after the queue drained")
	}
	if rs.Restored() != 5 || rs.PendingCount() != 0 {
		t.Fatalf("restored = %d pending = %d", rs.Restored(), rs.PendingCount())
	}
}

func TestRestore_FiftyShopsTakeTwentyFiveTicks(t *testing.T) {
	e := newEnv(t)
	seedRows(e, 50)

	d := &stepDeferrer{}
	rs := market.NewRestoreScheduler(e.reg, d, testLogger())
	if err := rs.Run(); err != nil {
		t.Fatalf("run: %v", err)
	}
	ticks := 0
	for d.step() {
		ticks++
	}
	if ticks != 25 {
		t.Fatalf("ticks = %d, want 25", ticks)
	}
	if e.reg.ShopCount() != 50 || rs.Restored() != 50 {
		t.Fatalf("shops = %d restored = %d, want 50", e.reg.ShopCount(), rs.Restored())
	}
}

func TestRestore_RegisteredShopsAreBuyable(t *testing.T) {
	e := newEnv(t)
	seedRows(e, 1)

	d := &stepDeferrer{}
	rs := market.NewRestoreScheduler(e.reg, d, testLogger())
	if err := rs.Run(); err != nil {
		t.Fatalf("run: %v", err)
	}
	d.step()

	ev := e.lastOpened(t)
	if !ev.restored {
		t.Fatalf("opened event not flagged restored")
	}
	// Restored shops must not be re-saved: the row is already durable.
	if _, saved := e.store.lastSave(ev.ownerID); saved {
		t.Fatalf("restore scheduled a redundant save")
	}

	standIn := e.world.Actor(ev.standInID)
	if standIn == nil || !standIn.IsStandIn() {
		t.Fatalf("restored shop has no stand-in")
	}
	if standIn.Name() != "Buff Seller" {
		t.Fatalf("stand-in name = %q, want fallback", standIn.Name())
	}

	buyer := e.join(t, 300, "Early", 2, 40)
	buyer.CreditCurrency(500)
	if res := e.reg.ExecutePurchase(buyer.ID(), ev.standInID, 1040, 1, market.BuySelf, false); !res.OK {
		t.Fatalf("purchase from restored shop: %+v", res)
	}
	// Owner is offline, so the sale lands in the credit wallet.
	if got := e.store.credit(ev.ownerID); got != 100 {
		t.Fatalf("offline credit = %d, want 100", got)
	}
}

func TestRestore_SkipsOnlineOwners(t *testing.T) {
	e := newEnv(t)
	seedRows(e, 3)
	e.join(t, 1001, "Backalready", 16, 76) // owner of the second row

	d := &stepDeferrer{}
	rs := market.NewRestoreScheduler(e.reg, d, testLogger())
	if err := rs.Run(); err != nil {
		t.Fatalf("run: %v", err)
	}
	for d.step() {
	}

	if e.reg.ShopCount() != 2 {
		t.Fatalf("shop count = %d, want 2 (online owner skipped)", e.reg.ShopCount())
	}
	if _, ok := e.reg.GetShop(1001); ok {
		t.Fatalf("online owner's shop was restored anyway")
	}
}

func TestRestore_SkipsMissingClassTemplate(t *testing.T) {
	e := newEnv(t)
	e.store.rows = append(e.store.rows, market.Snapshot{
		OwnerID:   2000,
		Offerings: []market.Offering{{SkillID: 1040, Level: 1, Price: 100}},
		ClassID:   999, // no template registered
	})

	d := &stepDeferrer{}
	rs := market.NewRestoreScheduler(e.reg, d, testLogger())
	if err := rs.Run(); err != nil {
		t.Fatalf("run: %v", err)
	}
	for d.step() {
	}

	if e.reg.ShopCount() != 0 {
		t.Fatalf("shop with dead class template was restored")
	}
	if rs.Restored() != 0 {
		t.Fatalf("restored = %d, want 0", rs.Restored())
	}
}

func TestRestore_EmptyStoreSchedulesNothing(t *testing.T) {
	e := newEnv(t)
	d := &stepDeferrer{}
	rs := market.NewRestoreScheduler(e.reg, d, testLogger())
	if err := rs.Run(); err != nil {
		t.Fatalf("run: %v", err)
	}
	if d.pendingCalls() != 0 {
		t.Fatalf("empty store still scheduled a batch")
	}
}
