package market

// Result codes for expected outcomes. Empty code means success. Messages
// are safe to surface to the acting player; internal failures never leak
// detail beyond a generic retry hint.
const (
	// Shop lifecycle.
	CodeNoOfferings     = "E_NO_OFFERINGS"
	CodeOwnerIneligible = "E_OWNER_INELIGIBLE"
	CodeStandInFailed   = "E_STANDIN_FAILED"
	CodeCapacity        = "E_CAPACITY"
	CodeForbiddenSkill  = "E_FORBIDDEN_SKILL"

	// Purchase gates.
	CodeOfferingUnavailable = "E_OFFERING_UNAVAILABLE"
	CodeIneligibleState     = "E_INELIGIBLE_STATE"
	CodeInsufficientFunds   = "E_INSUFFICIENT_FUNDS"
	CodeInsufficientMana    = "E_INSUFFICIENT_MANA"
	CodeMissingItems        = "E_MISSING_ITEMS"
	CodeNoValidTarget       = "E_NO_VALID_TARGET"
	CodeClassRestricted     = "E_CLASS_RESTRICTED"
	CodeAlreadyKnown        = "E_ALREADY_KNOWN"
	CodeCapabilityRevoked   = "E_CAPABILITY_REVOKED"

	// Skill shop.
	CodeSkillUnavailable = "E_SKILL_UNAVAILABLE"
	CodeNoCostDefined    = "E_NO_COST_DEFINED"

	CodeInternal = "E_INTERNAL"
)

// OpenResult reports an openShop / closeShop / draft mutation outcome.
type OpenResult struct {
	OK      bool
	Code    string
	Message string
}

func openOK() OpenResult { return OpenResult{OK: true} }

func openFail(code, msg string) OpenResult {
	return OpenResult{Code: code, Message: msg}
}

// ReplaceDetails describes the old-vs-new effect swap the buyer must
// confirm before a mutually-exclusive purchase proceeds.
type ReplaceDetails struct {
	OldSkillID int
	NewSkillID int
	NewLevel   int
	Price      int64
}

// PurchaseResult reports one purchase attempt. NeedsConfirm is set when
// the buyer holds a same-family effect and has not confirmed replacement;
// no resources moved in that case.
type PurchaseResult struct {
	OK           bool
	Code         string
	Message      string
	NeedsConfirm bool
	Replace      *ReplaceDetails
}

func buyOK() PurchaseResult { return PurchaseResult{OK: true} }

func buyFail(code, msg string) PurchaseResult {
	return PurchaseResult{Code: code, Message: msg}
}
