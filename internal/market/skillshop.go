package market

// BuySkill sells a permanent skill along a configured level path. Every
// per-level item cost is verified before anything is consumed; the grant
// happens only after all costs were taken.
func (r *Registry) BuySkill(buyerID, skillID, level int) OpenResult {
	buyer := r.world.ResolveOnlineActor(buyerID)
	if buyer == nil {
		return openFail(CodeIneligibleState, "You cannot use the skill shop right now.")
	}
	if !r.cfg.SkillShopAllowed(buyer.ClassID()) {
		return openFail(CodeClassRestricted, "Your class may not use this shop.")
	}

	path, ok := r.cfg.SkillPathFor(skillID)
	if !ok || level > path.MaxLevel() {
		return openFail(CodeSkillUnavailable, "This skill is not available at that level.")
	}
	if buyer.SkillLevel(skillID) >= level {
		return openFail(CodeAlreadyKnown, "You already learned this level.")
	}

	costs, ok := path.CostsForLevel(level)
	if !ok || len(costs) == 0 {
		return openFail(CodeNoCostDefined, "No cost is defined for this skill level.")
	}

	// Check everything before consuming anything.
	for _, c := range costs {
		if buyer.ItemCount(c.ItemID) < c.Count {
			return openFail(CodeMissingItems, "You do not have the required items.")
		}
	}
	for _, c := range costs {
		if !buyer.ConsumeItem(c.ItemID, c.Count) {
			// A concurrent consumption emptied the slot between check and
			// take. Nothing granted; already-taken costs stay taken, as on
			// the live server.
			r.log.Printf("market: skill shop consume raced for buyer %d item %d", buyerID, c.ItemID)
			return openFail(CodeMissingItems, "You do not have the required items.")
		}
	}

	buyer.GrantSkill(skillID, level)
	buyer.Notify("Skill learned.")
	return openOK()
}
