package market

import "time"

// Actor is the slice of a live game actor the marketplace needs: resource
// movement, state predicates and the visual fields mirrored onto
// stand-ins. Implementations must make DebitCurrency, ConsumeItem and
// TryDebitMana safe under concurrent callers.
type Actor interface {
	ID() int
	Name() string
	ClassID() int
	Level() int
	Position() Position
	Appearance() Appearance
	VisibleEquipment() []int

	CurrencyBalance() int64
	DebitCurrency(amount int64) bool
	CreditCurrency(amount int64)
	ItemCount(itemID int) int
	ConsumeItem(itemID, count int) bool

	// TryDebitMana atomically reserves cost from the mana pool; it never
	// drives the pool negative.
	TryDebitMana(cost int) bool
	CreditMana(amount int)

	Dead() bool
	InCompetition() bool
	Trading() bool
	CanTrade() bool

	SkillLevel(skillID int) int
	GrantSkill(skillID, level int)
	RevokeSkill(skillID int)

	HasEffect(skillID int) bool
	RemoveEffect(skillID int)

	Notify(msg string)
}

// StandInSpec is everything the world needs to materialize a shop's
// presence. Cosmetic items are display-only equipment.
type StandInSpec struct {
	OwnerID       int
	Name          string
	Title         string
	StoreMessage  string
	ClassID       int
	Level         int
	Mana          int
	Pos           Position
	Appearance    Appearance
	CosmeticItems []int
}

// World is the actor-lookup collaborator. ResolveOnlineActor returns nil
// for offline or unknown ids.
type World interface {
	ResolveOnlineActor(id int) Actor
	IsOnline(id int) bool
	ActorName(id int) string
	CompanionOf(a Actor) Actor
	HasClassTemplate(classID int) bool

	SpawnStandIn(spec StandInSpec) (Actor, error)
	Despawn(id int) error

	// ApplyEffect runs the opaque effect simulation with the given caster
	// context. The marketplace treats failure as "nothing happened".
	ApplyEffect(caster, target Actor, skillID, level int) error
}

// Store is the durable side of the registry. Save, Delete and
// CreditOffline are fire-and-forget: implementations run the I/O on a
// background worker and must never block a live player action.
type Store interface {
	Save(s Snapshot)
	Delete(ownerID int)
	CreditOffline(ownerID int, amount int64)
	LoadAll() ([]Snapshot, error)
}

// Deferrer schedules a callback to run once after a delay. Satisfied by
// *scheduler.Scheduler.
type Deferrer interface {
	RunOnce(delay time.Duration, fn func())
}

// Hooks publish marketplace happenings to observers (feed, ledgers).
// All fields are optional.
type Hooks struct {
	ShopOpened func(ownerID, standInID int, offerings int, restored bool)
	ShopClosed func(ownerID, standInID int)
	Sale       func(e SaleEvent)
}

// SaleEvent describes one settled (or refused) purchase attempt.
type SaleEvent struct {
	BuyerID   int
	OwnerID   int
	StandInID int
	SkillID   int
	Level     int
	Price     int64
	Target    string
	OK        bool
	Code      string
	// Anomaly is set when payment failed after the effect was applied.
	Anomaly bool
}

func (h Hooks) shopOpened(ownerID, standInID, offerings int, restored bool) {
	if h.ShopOpened != nil {
		h.ShopOpened(ownerID, standInID, offerings, restored)
	}
}

func (h Hooks) shopClosed(ownerID, standInID int) {
	if h.ShopClosed != nil {
		h.ShopClosed(ownerID, standInID)
	}
}

func (h Hooks) sale(e SaleEvent) {
	if h.Sale != nil {
		h.Sale(e)
	}
}
