package shopdb

import (
	"io"
	"log"
	"path/filepath"
	"reflect"
	"testing"

	"buffmarket.gg/internal/market"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "shops.db"), log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := openTestStore(t)

	snap := market.Snapshot{
		OwnerID: 42,
		Offerings: []market.Offering{
			{SkillID: 4554, Level: 1, Price: 500},
			{SkillID: 4515, Level: 3, Price: 1200},
		},
		Title:         "cheap buffs",
		StoreMessage:  "come in",
		Pos:           market.Position{X: 100, Y: -200, Z: 30, Heading: 4500},
		ClassID:       16,
		Appearance:    market.Appearance{Sex: 1, Face: 2, HairStyle: 1, HairColor: 3},
		EquippedItems: []int{6373, 512, 0, 2498},
	}
	s.Save(snap)
	s.Sync()

	got, err := s.LoadAll()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("rows = %d, want 1", len(got))
	}
	if !reflect.DeepEqual(got[0], snap) {
		t.Fatalf("roundtrip mismatch:\n got %+v\nwant %+v", got[0], snap)
	}
}

func TestSave_LastWriterWins(t *testing.T) {
	s := openTestStore(t)

	s.Save(market.Snapshot{OwnerID: 1, Title: "first", Offerings: []market.Offering{{SkillID: 1040, Level: 1, Price: 100}}})
	s.Save(market.Snapshot{OwnerID: 1, Title: "second", Offerings: []market.Offering{{SkillID: 1068, Level: 2, Price: 200}}})
	s.Sync()

	got, err := s.LoadAll()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) != 1 || got[0].Title != "second" || got[0].Offerings[0].SkillID != 1068 {
		t.Fatalf("rows = %+v", got)
	}
}

func TestDelete_Idempotent(t *testing.T) {
	s := openTestStore(t)

	s.Save(market.Snapshot{OwnerID: 7, Title: "x"})
	s.Delete(7)
	s.Delete(7) // row already gone, must not error
	s.Delete(8) // never existed
	s.Sync()

	got, err := s.LoadAll()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("rows = %d after delete", len(got))
	}
}

func TestCreditOffline_Accumulates(t *testing.T) {
	s := openTestStore(t)

	s.CreditOffline(9, 500)
	s.CreditOffline(9, 250)
	s.CreditOffline(9, 0)    // dropped
	s.CreditOffline(9, -100) // dropped
	s.Sync()

	got, err := s.CreditBalance(9)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if got != 750 {
		t.Fatalf("balance = %d, want 750", got)
	}

	// Unknown owner reads as zero, not as an error.
	if got, err := s.CreditBalance(999); err != nil || got != 0 {
		t.Fatalf("unknown owner = %d, %v", got, err)
	}
}

func TestLoadAll_SkipsMalformedOfferings(t *testing.T) {
	s := openTestStore(t)

	s.Save(market.Snapshot{OwnerID: 3, Title: "ok", Offerings: []market.Offering{{SkillID: 1040, Level: 1, Price: 100}}})
	s.Sync()

	// Corrupt one segment by hand; the loader must keep the good ones.
	if _, err := s.db.Exec(`UPDATE shops SET offerings='1040,1,100;garbage;1068,x,200;1077,2,300' WHERE owner_id=3`); err != nil {
		t.Fatalf("corrupt row: %v", err)
	}

	got, err := s.LoadAll()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("rows = %d", len(got))
	}
	want := []market.Offering{
		{SkillID: 1040, Level: 1, Price: 100},
		{SkillID: 1077, Level: 2, Price: 300},
	}
	if !reflect.DeepEqual(got[0].Offerings, want) {
		t.Fatalf("offerings = %+v, want %+v", got[0].Offerings, want)
	}
}

func TestStore_SurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "shops.db")
	logger := log.New(io.Discard, "", 0)

	s, err := Open(path, logger)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	s.Save(market.Snapshot{OwnerID: 11, Title: "persists", Offerings: []market.Offering{{SkillID: 1040, Level: 2, Price: 900}}})
	s.Sync()
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	s2, err := Open(path, logger)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()

	got, err := s2.LoadAll()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) != 1 || got[0].Title != "persists" {
		t.Fatalf("rows after reopen = %+v", got)
	}
}

func TestReqOwner(t *testing.T) {
	save := req{kind: reqSave, snap: market.Snapshot{OwnerID: 42}}
	if got := save.owner(); got != 42 {
		t.Fatalf("save owner = %d, want 42", got)
	}
	del := req{kind: reqDelete, ownerID: 7}
	if got := del.owner(); got != 7 {
		t.Fatalf("delete owner = %d, want 7", got)
	}
	credit := req{kind: reqCredit, ownerID: 9, amount: 100}
	if got := credit.owner(); got != 9 {
		t.Fatalf("credit owner = %d, want 9", got)
	}
}

func TestEncodeDecodeOfferings(t *testing.T) {
	in := []market.Offering{
		{SkillID: 4554, Level: 1, Price: 500},
		{SkillID: 4515, Level: 3, Price: 1200},
	}
	if got := encodeOfferings(in); got != "4554,1,500;4515,3,1200" {
		t.Fatalf("encoded = %q", got)
	}
	if got := encodeOfferings(nil); got != "" {
		t.Fatalf("empty encoded = %q", got)
	}
	if got := encodeIntList([]int{1, 2, 3}); got != "1,2,3" {
		t.Fatalf("int list = %q", got)
	}
	if got := decodeIntList("1, 2,,3"); !reflect.DeepEqual(got, []int{1, 2, 3}) {
		t.Fatalf("decoded = %v", got)
	}
}
