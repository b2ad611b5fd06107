package errs

import "errors"

// Kind groups error codes by the class of condition that triggered them.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindValidation
	KindAuthorization
	KindState
	KindArithmetic
	KindFundSafety
	KindNotFound
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthorization:
		return "authorization"
	case KindState:
		return "state"
	case KindArithmetic:
		return "arithmetic"
	case KindFundSafety:
		return "fund_safety"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	default:
		return "unknown"
	}
}

// Error is a catalogued ledger error. Instances are sentinels: compare with
// errors.Is, never by message.
type Error struct {
	Kind    Kind
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func newError(kind Kind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Message: msg}
}

// Shape / validation
var (
	ErrOptionOddsMismatch    = newError(KindValidation, "OptionOddsMismatch", "options and odds arrays must be same length")
	ErrTooFewOptions         = newError(KindValidation, "TooFewOptions", "minimum of 2 options required")
	ErrTooManyOptions        = newError(KindValidation, "TooManyOptions", "maximum of 10 options allowed")
	ErrBetAmountBelowMinimum = newError(KindValidation, "BetAmountBelowMinimum", "bet amount below minimum")
	ErrInvalidOptionIndex    = newError(KindValidation, "InvalidOptionIndex", "invalid option index")
	ErrInvalidFeePercentage  = newError(KindValidation, "InvalidFeePercentage", "fee percentage must be 10000 or less (100%)")
	ErrInvalidIdentifier     = newError(KindValidation, "InvalidIdentifier", "identifier must be 1 to 32 bytes")
)

// Authorization
var (
	ErrUnauthorizedBetCreator = newError(KindAuthorization, "UnauthorizedBetCreator", "only group admin can create bets")
	ErrNotGroupMember         = newError(KindAuthorization, "NotGroupMember", "user is not a member of the group")
	ErrUnauthorizedResolver   = newError(KindAuthorization, "UnauthorizedResolver", "only bet creator can resolve bet")
	ErrUnauthorizedTransfer   = newError(KindAuthorization, "UnauthorizedTransfer", "authority does not control source account")
)

// State / lifecycle
var (
	ErrBetAlreadyResolved     = newError(KindState, "BetAlreadyResolved", "bet already resolved")
	ErrBetNotResolved         = newError(KindState, "BetNotResolved", "bet not resolved yet")
	ErrBetPeriodEnded         = newError(KindState, "BetPeriodEnded", "bet period ended")
	ErrNoWinningsToClaim      = newError(KindState, "NoWinningsToClaim", "no winnings to claim")
	ErrPlatformNotInitialized = newError(KindState, "PlatformNotInitialized", "platform is not initialized")
	ErrTreasuryMismatch       = newError(KindState, "TreasuryMismatch", "platform treasury is not the ledger treasury account")
)

// Arithmetic
var (
	ErrArithmeticOverflow = newError(KindArithmetic, "ArithmeticOverflow", "arithmetic overflow")
)

// Fund safety
var (
	ErrInsufficientFunds   = newError(KindFundSafety, "InsufficientFunds", "insufficient funds")
	ErrInsufficientCustody = newError(KindFundSafety, "InsufficientCustody", "custody account balance too low")
)

// Lookup / uniqueness
var (
	ErrRecordNotFound             = newError(KindNotFound, "RecordNotFound", "record not found")
	ErrGroupNotFound              = newError(KindNotFound, "GroupNotFound", "group not found")
	ErrBetNotFound                = newError(KindNotFound, "BetNotFound", "bet not found")
	ErrStakeNotFound              = newError(KindNotFound, "StakeNotFound", "no stake placed on this bet")
	ErrProfileNotFound            = newError(KindNotFound, "ProfileNotFound", "user profile not found")
	ErrRecordExists               = newError(KindConflict, "RecordExists", "record already exists")
	ErrPlatformAlreadyInitialized = newError(KindConflict, "PlatformAlreadyInitialized", "platform already initialized")
	ErrGroupAlreadyExists         = newError(KindConflict, "GroupAlreadyExists", "group already exists")
	ErrBetAlreadyExists           = newError(KindConflict, "BetAlreadyExists", "bet already exists")
	ErrStakeAlreadyPlaced         = newError(KindConflict, "StakeAlreadyPlaced", "user already staked on this bet")
	ErrAlreadyMember              = newError(KindConflict, "AlreadyMember", "user is already a member of this group")
	ErrUndeclaredRecord           = newError(KindConflict, "UndeclaredRecord", "record was not declared by the operation")
)

// KindOf returns the kind of the first catalogued error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// CodeOf returns the code of the first catalogued error in err's chain,
// or "Internal" for errors outside the catalog.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return "Internal"
}
