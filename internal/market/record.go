package market

const (
	defaultTitle        = "No Title"
	defaultStoreMessage = "Buffs for Sale!"
)

// Offering is one sellable (skill, level, price) tuple. Values are copied
// out of the record before a purchase moves any resources.
type Offering struct {
	SkillID int   `json:"skill_id"`
	Level   int   `json:"level"`
	Price   int64 `json:"price"`
}

type Position struct {
	X, Y, Z, Heading int
}

// Appearance mirrors the owner's visual identity onto the stand-in. The
// marketplace never interprets the fields, it only round-trips them.
type Appearance struct {
	Sex       int
	Face      int
	HairStyle int
	HairColor int
}

// ShopRecord is the full state of one storefront. It is owned by the
// registry (or by the restore path before registration); callers receive
// copies, never live references.
type ShopRecord struct {
	OwnerID int

	offerings map[int]Offering
	order     []int // skill ids in insertion order, drives display

	Title         string
	StoreMessage  string
	Pos           Position
	ClassID       int
	Appearance    Appearance
	EquippedItems []int

	// 0 means the shop has no world presence.
	StandInID int
}

func NewShopRecord(ownerID int) *ShopRecord {
	return &ShopRecord{
		OwnerID:      ownerID,
		offerings:    map[int]Offering{},
		Title:        defaultTitle,
		StoreMessage: defaultStoreMessage,
	}
}

// setOffering inserts or replaces; capacity is the registry's concern.
func (r *ShopRecord) setOffering(o Offering) {
	if _, exists := r.offerings[o.SkillID]; !exists {
		r.order = append(r.order, o.SkillID)
	}
	r.offerings[o.SkillID] = o
}

func (r *ShopRecord) removeOffering(skillID int) {
	if _, exists := r.offerings[skillID]; !exists {
		return
	}
	delete(r.offerings, skillID)
	for i, id := range r.order {
		if id == skillID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

func (r *ShopRecord) Offering(skillID int) (Offering, bool) {
	o, ok := r.offerings[skillID]
	return o, ok
}

// Offerings returns the sell list in display order. The slice is a copy.
func (r *ShopRecord) Offerings() []Offering {
	out := make([]Offering, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.offerings[id])
	}
	return out
}

func (r *ShopRecord) OfferingCount() int { return len(r.offerings) }

func (r *ShopRecord) SetTitle(title string) {
	if title == "" {
		title = defaultTitle
	}
	r.Title = title
}

func (r *ShopRecord) SetStoreMessage(msg string) {
	if msg == "" {
		msg = defaultStoreMessage
	}
	r.StoreMessage = msg
}

// clone deep-copies the record. Publishing copies draft state into the
// registered record so later draft edits cannot reach a live shop.
func (r *ShopRecord) clone() *ShopRecord {
	c := &ShopRecord{
		OwnerID:       r.OwnerID,
		offerings:     make(map[int]Offering, len(r.offerings)),
		order:         append([]int(nil), r.order...),
		Title:         r.Title,
		StoreMessage:  r.StoreMessage,
		Pos:           r.Pos,
		ClassID:       r.ClassID,
		Appearance:    r.Appearance,
		EquippedItems: append([]int(nil), r.EquippedItems...),
		StandInID:     r.StandInID,
	}
	for k, v := range r.offerings {
		c.offerings[k] = v
	}
	return c
}

// Snapshot is the persisted shape of a ShopRecord: a plain value the
// store can serialize without touching registry-owned state.
type Snapshot struct {
	OwnerID       int
	Offerings     []Offering
	Title         string
	StoreMessage  string
	Pos           Position
	ClassID       int
	Appearance    Appearance
	EquippedItems []int
}

func (r *ShopRecord) Snapshot() Snapshot {
	return Snapshot{
		OwnerID:       r.OwnerID,
		Offerings:     r.Offerings(),
		Title:         r.Title,
		StoreMessage:  r.StoreMessage,
		Pos:           r.Pos,
		ClassID:       r.ClassID,
		Appearance:    r.Appearance,
		EquippedItems: append([]int(nil), r.EquippedItems...),
	}
}

// RecordFromSnapshot rebuilds a registry record from persisted state.
// Loaded state is trusted: no capacity check here.
func RecordFromSnapshot(s Snapshot) *ShopRecord {
	r := NewShopRecord(s.OwnerID)
	for _, o := range s.Offerings {
		r.setOffering(o)
	}
	r.SetTitle(s.Title)
	r.SetStoreMessage(s.StoreMessage)
	r.Pos = s.Pos
	r.ClassID = s.ClassID
	r.Appearance = s.Appearance
	r.EquippedItems = append([]int(nil), s.EquippedItems...)
	return r
}
