package market

import (
	"buffmarket.gg/internal/skills"
)

// BuyTarget selects who receives the purchased effect.
type BuyTarget string

const (
	BuySelf      BuyTarget = "self"
	BuyCompanion BuyTarget = "companion"
)

// purchaseTx is one buy attempt: resolve, gate, move resources, apply,
// pay. Created per call, discarded after. It copies the offering and the
// seller references up front, so a concurrent shop close does not cancel
// a purchase already past its gates.
type purchaseTx struct {
	reg *Registry

	buyer      Actor
	standIn    Actor
	ownerID    int
	offering   Offering
	def        skills.SkillDef
	level      int
	target     Actor
	targetKind BuyTarget
	confirmed  bool
}

// ExecutePurchase runs a single purchase attempt with all-or-nothing
// resource movement: the buyer is never charged unless the effect landed.
func (r *Registry) ExecutePurchase(buyerID, sellerStandInID, skillID, level int, target BuyTarget, confirmed bool) PurchaseResult {
	tx, res := r.newPurchase(buyerID, sellerStandInID, skillID, level, target, confirmed)
	if !res.OK {
		return res
	}

	if res := tx.replacePrecheck(); res.NeedsConfirm {
		return res
	}
	if res := tx.gates(); !res.OK {
		tx.report(res, false)
		return res
	}

	var res2 PurchaseResult
	if r.cfg.BuyerFunded(skillID) {
		res2 = tx.buyerFundedCast()
	} else {
		res2 = tx.sellerFundedCast()
	}
	if !res2.OK {
		tx.report(res2, false)
		return res2
	}

	anomaly := tx.settle()
	tx.report(res2, anomaly)
	return res2
}

func (r *Registry) newPurchase(buyerID, sellerStandInID, skillID, level int, target BuyTarget, confirmed bool) (*purchaseTx, PurchaseResult) {
	ownerID, ok := r.ResolveSeller(sellerStandInID)
	if !ok {
		return nil, buyFail(CodeOfferingUnavailable, "This shop is no longer available.")
	}

	r.mu.RLock()
	rec := r.shops[ownerID]
	r.mu.RUnlock()
	if rec == nil {
		return nil, buyFail(CodeOfferingUnavailable, "This shop is no longer available.")
	}
	offering, ok := rec.Offering(skillID)
	if !ok || offering.Level != level {
		return nil, buyFail(CodeOfferingUnavailable, "This buff is no longer available.")
	}
	def, ok := r.catalog.Resolve(skillID, level)
	if !ok {
		return nil, buyFail(CodeOfferingUnavailable, "This buff is no longer available.")
	}

	standIn := r.world.ResolveOnlineActor(sellerStandInID)
	if standIn == nil {
		return nil, buyFail(CodeOfferingUnavailable, "This shop is no longer available.")
	}
	buyer := r.world.ResolveOnlineActor(buyerID)
	if buyer == nil {
		return nil, buyFail(CodeIneligibleState, "You cannot buy buffs right now.")
	}

	return &purchaseTx{
		reg:        r,
		buyer:      buyer,
		standIn:    standIn,
		ownerID:    ownerID,
		offering:   offering,
		def:        def,
		level:      level,
		targetKind: target,
		confirmed:  confirmed,
	}, buyOK()
}

// replacePrecheck surfaces a confirmation instead of executing when the
// buyer already carries an effect from the mutually exclusive family.
func (tx *purchaseTx) replacePrecheck() PurchaseResult {
	if tx.confirmed || !tx.reg.cfg.IsReplaceable(tx.def.ID) {
		return buyOK()
	}
	for _, member := range tx.reg.cfg.ReplaceableMembers() {
		if tx.buyer.HasEffect(member) {
			return PurchaseResult{
				NeedsConfirm: true,
				Message:      "You already have a buff from this group. Replace it?",
				Replace: &ReplaceDetails{
					OldSkillID: member,
					NewSkillID: tx.def.ID,
					NewLevel:   tx.level,
					Price:      tx.offering.Price,
				},
			}
		}
	}
	return buyOK()
}

// gates runs every eligibility predicate in a fixed order so the first
// failing reason is deterministic. No gate moves resources.
func (tx *purchaseTx) gates() PurchaseResult {
	cfg := tx.reg.cfg
	buyer := tx.buyer

	if buyer.Dead() || buyer.InCompetition() || buyer.Trading() {
		return buyFail(CodeIneligibleState, "You cannot buy buffs in your current state.")
	}
	if buyer.CurrencyBalance() < tx.offering.Price {
		return buyFail(CodeInsufficientFunds, "You do not have enough adena.")
	}

	switch tx.targetKind {
	case BuyCompanion:
		companion := tx.reg.world.CompanionOf(buyer)
		if companion == nil || companion.Dead() {
			return buyFail(CodeNoValidTarget, "You have no living companion to receive this buff.")
		}
		tx.target = companion
	default:
		tx.target = buyer
	}

	if (cfg.IsSelfOnly(tx.def.ID) || tx.def.Target == skills.TargetSelf) && tx.target.ID() != buyer.ID() {
		return buyFail(CodeNoValidTarget, "This skill can only be used on yourself.")
	}
	if tx.def.Target == skills.TargetCompanion && tx.target.ID() == buyer.ID() {
		return buyFail(CodeNoValidTarget, "This buff can only be used on a companion.")
	}
	if cfg.BuyerFunded(tx.def.ID) && buyer.SkillLevel(tx.def.ID) > 0 {
		return buyFail(CodeAlreadyKnown, "You already know this skill.")
	}
	if cfg.IsSummonSkill(tx.def.ID) && !cfg.IsSummonBuyerClass(buyer.ClassID()) {
		return buyFail(CodeClassRestricted, "Your class may not buy this summon.")
	}
	return buyOK()
}

// buyerFundedCast grants the skill to the buyer just long enough to cast
// it on themselves; the grant is revoked on every exit path. The buyer
// supplies any reagent the skill defines.
func (tx *purchaseTx) buyerFundedCast() PurchaseResult {
	buyer := tx.buyer
	buyer.GrantSkill(tx.def.ID, tx.level)
	defer buyer.RevokeSkill(tx.def.ID)

	// A concurrent revocation (class change, punishment) can strip the
	// grant before the cast. Abort before anything is consumed.
	if buyer.SkillLevel(tx.def.ID) == 0 {
		return buyFail(CodeCapabilityRevoked, "The skill could not be used.")
	}
	if tx.def.ItemConsumeID > 0 {
		if !buyer.ConsumeItem(tx.def.ItemConsumeID, tx.def.ItemConsumeCount) {
			return buyFail(CodeMissingItems, "You do not have the required items.")
		}
	}
	tx.stripReplacedEffects()
	if err := tx.reg.world.ApplyEffect(buyer, buyer, tx.def.ID, tx.level); err != nil {
		tx.reg.log.Printf("market: buyer-funded cast failed (buyer %d skill %d): %v", buyer.ID(), tx.def.ID, err)
		return buyFail(CodeInternal, "The purchase failed. Try again.")
	}
	return buyOK()
}

// sellerFundedCast debits the stand-in's mana pool atomically, so two
// concurrent buyers can never both succeed on mana that covers only one
// cast. It then consumes the buyer's reagent and applies the effect with
// the stand-in as caster.
func (tx *purchaseTx) sellerFundedCast() PurchaseResult {
	if !tx.standIn.TryDebitMana(tx.def.ManaCost) {
		return buyFail(CodeInsufficientMana, "The seller is out of mana right now.")
	}
	if tx.def.ItemConsumeID > 0 {
		if !tx.buyer.ConsumeItem(tx.def.ItemConsumeID, tx.def.ItemConsumeCount) {
			tx.standIn.CreditMana(tx.def.ManaCost)
			return buyFail(CodeMissingItems, "You do not have the required items.")
		}
	}
	tx.stripReplacedEffects()
	if err := tx.reg.world.ApplyEffect(tx.standIn, tx.target, tx.def.ID, tx.level); err != nil {
		tx.standIn.CreditMana(tx.def.ManaCost)
		tx.reg.log.Printf("market: cast failed (shop %d skill %d): %v", tx.ownerID, tx.def.ID, err)
		return buyFail(CodeInternal, "The purchase failed. Try again.")
	}
	return buyOK()
}

// stripReplacedEffects removes every family member before a confirmed
// replacement lands.
func (tx *purchaseTx) stripReplacedEffects() {
	if !tx.confirmed || !tx.reg.cfg.IsReplaceable(tx.def.ID) {
		return
	}
	for _, member := range tx.reg.cfg.ReplaceableMembers() {
		if tx.reg.cfg.IsNonRemovable(member) {
			continue
		}
		tx.buyer.RemoveEffect(member)
	}
}

// settle charges the buyer and rewards the owner. It runs strictly after
// the effect landed; a debit failure here leaves the effect in place and
// is reported as an anomaly, never rolled back.
func (tx *purchaseTx) settle() (anomaly bool) {
	price := tx.offering.Price
	if price > 0 && !tx.buyer.DebitCurrency(price) {
		tx.reg.log.Printf("market: payment anomaly: buyer %d balance changed mid-purchase (shop %d, price %d)", tx.buyer.ID(), tx.ownerID, price)
		return true
	}
	tx.buyer.Notify("Buff purchased.")

	if price <= 0 {
		return false
	}
	if owner := tx.reg.world.ResolveOnlineActor(tx.ownerID); owner != nil {
		owner.CreditCurrency(price)
		owner.Notify("Your buff sold.")
	} else {
		tx.reg.store.CreditOffline(tx.ownerID, price)
	}
	return false
}

func (tx *purchaseTx) report(res PurchaseResult, anomaly bool) {
	tx.reg.hooks.sale(SaleEvent{
		BuyerID:   tx.buyer.ID(),
		OwnerID:   tx.ownerID,
		StandInID: tx.standIn.ID(),
		SkillID:   tx.def.ID,
		Level:     tx.level,
		Price:     tx.offering.Price,
		Target:    string(tx.targetKind),
		OK:        res.OK,
		Code:      res.Code,
		Anomaly:   anomaly,
	})
}
