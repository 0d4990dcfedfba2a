package shopdb

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	_ "modernc.org/sqlite"

	"buffmarket.gg/internal/market"
)

// Store is the durable side of the marketplace: one row per shop owner
// plus an offline-credit balance table. All writes funnel through a
// single background goroutine so no live player action ever waits on
// sqlite; in-memory registry state stays the source of truth during a
// session and this store is best-effort durability behind it.
type Store struct {
	db  *sql.DB
	log *log.Logger

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool
}

type reqKind int

const (
	reqSave reqKind = iota + 1
	reqDelete
	reqCredit
	reqSync
)

type req struct {
	kind reqKind

	snap    market.Snapshot
	ownerID int
	amount  int64
	done    chan struct{}
}

// owner reports the shop owner a request concerns; saves carry it inside
// the snapshot.
func (r req) owner() int {
	if r.kind == reqSave {
		return r.snap.OwnerID
	}
	return r.ownerID
}

var _ market.Store = (*Store)(nil)

func Open(path string, logger *log.Logger) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &Store{
		db:  db,
		log: logger,
		// Roomy buffer: shop churn is bursty around sieges/restarts and
		// the enqueue path must stay non-blocking for player actions.
		ch: make(chan req, 4096),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	// WAL suits the replace-heavy write pattern; NORMAL is enough for a
	// store the in-memory registry can always repopulate.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS shops (
			owner_id INTEGER PRIMARY KEY,
			offerings TEXT NOT NULL,
			title TEXT NOT NULL,
			store_message TEXT NOT NULL,
			x INTEGER NOT NULL,
			y INTEGER NOT NULL,
			z INTEGER NOT NULL,
			heading INTEGER NOT NULL,
			class_id INTEGER NOT NULL,
			sex INTEGER NOT NULL,
			face INTEGER NOT NULL,
			hair_style INTEGER NOT NULL,
			hair_color INTEGER NOT NULL,
			equipped_items TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS wallet_credits (
			owner_id INTEGER PRIMARY KEY,
			balance INTEGER NOT NULL
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// Save upserts the whole row (replace-all-columns, last writer wins).
func (s *Store) Save(snap market.Snapshot) {
	s.enqueue(req{kind: reqSave, snap: snap})
}

// Delete is idempotent; a missing row is logged, not an error.
func (s *Store) Delete(ownerID int) {
	s.enqueue(req{kind: reqDelete, ownerID: ownerID})
}

// CreditOffline accumulates currency owed to an owner who was offline at
// sale time. Non-positive amounts are dropped.
func (s *Store) CreditOffline(ownerID int, amount int64) {
	if amount <= 0 {
		return
	}
	s.enqueue(req{kind: reqCredit, ownerID: ownerID, amount: amount})
}

// Sync blocks until every previously enqueued write hit the database.
func (s *Store) Sync() {
	if s.closed.Load() {
		return
	}
	done := make(chan struct{})
	s.ch <- req{kind: reqSync, done: done}
	<-done
}

func (s *Store) enqueue(r req) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- r:
	default:
		// The writer fell far behind; the registry is still consistent
		// and the next save for the same owner replaces the row anyway.
		s.log.Printf("shopdb: write queue full, dropping %v for owner %d", r.kind, r.owner())
	}
}

// LoadAll reads every persisted shop. Malformed offering segments are
// skipped with a log line; the rest of the row still loads.
func (s *Store) LoadAll() ([]market.Snapshot, error) {
	rows, err := s.db.Query(`SELECT owner_id, offerings, title, store_message, x, y, z, heading,
		class_id, sex, face, hair_style, hair_color, equipped_items FROM shops`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []market.Snapshot
	for rows.Next() {
		var (
			snap      market.Snapshot
			offerings string
			equipped  string
		)
		if err := rows.Scan(&snap.OwnerID, &offerings, &snap.Title, &snap.StoreMessage,
			&snap.Pos.X, &snap.Pos.Y, &snap.Pos.Z, &snap.Pos.Heading,
			&snap.ClassID, &snap.Appearance.Sex, &snap.Appearance.Face,
			&snap.Appearance.HairStyle, &snap.Appearance.HairColor, &equipped); err != nil {
			return nil, err
		}
		snap.Offerings = s.decodeOfferings(snap.OwnerID, offerings)
		snap.EquippedItems = decodeIntList(equipped)
		out = append(out, snap)
	}
	return out, rows.Err()
}

// CreditBalance reads the accumulated offline credit for an owner.
// Blocking; admin/claim path only.
func (s *Store) CreditBalance(ownerID int) (int64, error) {
	var balance int64
	err := s.db.QueryRow(`SELECT balance FROM wallet_credits WHERE owner_id=?`, ownerID).Scan(&balance)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return balance, err
}

func (s *Store) loop() {
	insertShop, _ := s.db.Prepare(`INSERT OR REPLACE INTO shops
		(owner_id, offerings, title, store_message, x, y, z, heading, class_id, sex, face, hair_style, hair_color, equipped_items)
		VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?)`)
	deleteShop, _ := s.db.Prepare(`DELETE FROM shops WHERE owner_id=?`)
	creditWallet, _ := s.db.Prepare(`INSERT INTO wallet_credits(owner_id, balance) VALUES(?,?)
		ON CONFLICT(owner_id) DO UPDATE SET balance = balance + excluded.balance`)
	defer func() {
		if insertShop != nil {
			_ = insertShop.Close()
		}
		if deleteShop != nil {
			_ = deleteShop.Close()
		}
		if creditWallet != nil {
			_ = creditWallet.Close()
		}
	}()

	for r := range s.ch {
		switch r.kind {
		case reqSave:
			if insertShop == nil {
				continue
			}
			snap := r.snap
			if _, err := insertShop.Exec(
				snap.OwnerID,
				encodeOfferings(snap.Offerings),
				snap.Title,
				snap.StoreMessage,
				snap.Pos.X, snap.Pos.Y, snap.Pos.Z, snap.Pos.Heading,
				snap.ClassID,
				snap.Appearance.Sex, snap.Appearance.Face,
				snap.Appearance.HairStyle, snap.Appearance.HairColor,
				encodeIntList(snap.EquippedItems),
			); err != nil {
				s.log.Printf("shopdb: save shop for owner %d: %v", snap.OwnerID, err)
			}

		case reqDelete:
			if deleteShop == nil {
				continue
			}
			res, err := deleteShop.Exec(r.ownerID)
			if err != nil {
				s.log.Printf("shopdb: delete shop for owner %d: %v", r.ownerID, err)
				continue
			}
			if n, _ := res.RowsAffected(); n == 0 {
				s.log.Printf("shopdb: delete for owner %d matched no row", r.ownerID)
			} else {
				s.log.Printf("shopdb: shop for owner %d removed", r.ownerID)
			}

		case reqCredit:
			if creditWallet == nil {
				continue
			}
			if _, err := creditWallet.Exec(r.ownerID, r.amount); err != nil {
				s.log.Printf("shopdb: credit %d to owner %d: %v", r.amount, r.ownerID, err)
			}

		case reqSync:
			close(r.done)
		}
	}
}

// Offerings persist as "skillId,level,price" triples joined by ';'.
func encodeOfferings(offerings []market.Offering) string {
	parts := make([]string, 0, len(offerings))
	for _, o := range offerings {
		parts = append(parts, fmt.Sprintf("%d,%d,%d", o.SkillID, o.Level, o.Price))
	}
	return strings.Join(parts, ";")
}

func (s *Store) decodeOfferings(ownerID int, encoded string) []market.Offering {
	if encoded == "" {
		return nil
	}
	var out []market.Offering
	for _, part := range strings.Split(encoded, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		fields := strings.Split(part, ",")
		if len(fields) != 3 {
			s.log.Printf("shopdb: owner %d: malformed offering %q skipped", ownerID, part)
			continue
		}
		skillID, err1 := strconv.Atoi(strings.TrimSpace(fields[0]))
		level, err2 := strconv.Atoi(strings.TrimSpace(fields[1]))
		price, err3 := strconv.ParseInt(strings.TrimSpace(fields[2]), 10, 64)
		if err1 != nil || err2 != nil || err3 != nil {
			s.log.Printf("shopdb: owner %d: malformed offering %q skipped", ownerID, part)
			continue
		}
		out = append(out, market.Offering{SkillID: skillID, Level: level, Price: price})
	}
	return out
}

func encodeIntList(ids []int) string {
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, strconv.Itoa(id))
	}
	return strings.Join(parts, ",")
}

func decodeIntList(encoded string) []int {
	if encoded == "" {
		return nil
	}
	var out []int
	for _, part := range strings.Split(encoded, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			continue
		}
		out = append(out, n)
	}
	return out
}
