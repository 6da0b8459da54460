package interfaces

import (
	"fmt"
	"regexp"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

func init() {
	// Strike prices go over the wire as JSON numbers, not quoted strings.
	decimal.MarshalJSONWithoutQuotes = true
}

// ContractType is the right conveyed by an option: "call" or "put"
type ContractType string

const (
	ContractTypeCall ContractType = "call"
	ContractTypePut  ContractType = "put"
)

// ExerciseStyle describes when an option may be exercised
type ExerciseStyle string

const (
	ExerciseStyleAmerican ExerciseStyle = "american"
	ExerciseStyleEuropean ExerciseStyle = "european"
)

var (
	tickerPattern     = regexp.MustCompile(`^[A-Z0-9:._-]{1,40}$`)
	underlyingPattern = regexp.MustCompile(`^[A-Z][A-Z0-9.]{0,9}$`)
)

// ParseContractType accepts "call"/"put" in any case
func ParseContractType(s string) (ContractType, error) {
	switch ct := ContractType(strings.ToLower(strings.TrimSpace(s))); ct {
	case ContractTypeCall, ContractTypePut:
		return ct, nil
	}
	return "", &ValidationError{Field: "contract_type", Reason: fmt.Sprintf("must be one of call, put (got %q)", s)}
}

// ParseExerciseStyle accepts "american"/"european" in any case
func ParseExerciseStyle(s string) (ExerciseStyle, error) {
	switch es := ExerciseStyle(strings.ToLower(strings.TrimSpace(s))); es {
	case ExerciseStyleAmerican, ExerciseStyleEuropean:
		return es, nil
	}
	return "", &ValidationError{Field: "exercise_style", Reason: fmt.Sprintf("must be one of american, european (got %q)", s)}
}

// OptionContract is a user-defined option record
type OptionContract struct {
	ID             int64           `json:"id"`
	Ticker         string          `json:"ticker,omitempty"`     // Provider ticker, e.g. "O:AAPL250620C00100000"
	Underlying     string          `json:"underlying,omitempty"` // Underlying stock symbol
	ContractType   ContractType    `json:"contract_type"`
	ExerciseStyle  ExerciseStyle   `json:"exercise_style"`
	StrikePrice    decimal.Decimal `json:"strike_price"`
	ExpirationDate civil.Date      `json:"expiration_date"` // YYYY-MM-DD
}

// ReferenceTicker returns the ticker used to look up reference data for the
// contract. An explicit ticker wins; otherwise one is derived from the
// underlying in OCC format. Empty means the contract cannot be enriched.
func (c OptionContract) ReferenceTicker() string {
	if c.Ticker != "" {
		return c.Ticker
	}
	if c.Underlying == "" {
		return ""
	}
	return OCCTicker(c.Underlying, c.ExpirationDate, c.ContractType, c.StrikePrice)
}

// OCCTicker builds a provider options ticker in OCC format,
// e.g. AAPL 2025-06-20 call 100 -> "O:AAPL250620C00100000"
func OCCTicker(underlying string, expiration civil.Date, contractType ContractType, strike decimal.Decimal) string {
	side := "C"
	if contractType == ContractTypePut {
		side = "P"
	}
	strikeMilli := strike.Mul(decimal.NewFromInt(1000)).Round(0).IntPart()
	return fmt.Sprintf("O:%s%02d%02d%02d%s%08d",
		underlying,
		expiration.Year%100,
		int(expiration.Month),
		expiration.Day,
		side,
		strikeMilli,
	)
}

// OptionDraft carries every field of a new contract except its id
type OptionDraft struct {
	Ticker         string          `json:"ticker"`
	Underlying     string          `json:"underlying"`
	ContractType   ContractType    `json:"contract_type"`
	ExerciseStyle  ExerciseStyle   `json:"exercise_style"`
	StrikePrice    decimal.Decimal `json:"strike_price"`
	ExpirationDate civil.Date      `json:"expiration_date"`
}

// Normalize validates the draft and returns it in canonical form
func (d OptionDraft) Normalize() (OptionDraft, error) {
	var err error
	out := d

	if out.ContractType, err = ParseContractType(string(d.ContractType)); err != nil {
		return OptionDraft{}, err
	}
	if out.ExerciseStyle, err = ParseExerciseStyle(string(d.ExerciseStyle)); err != nil {
		return OptionDraft{}, err
	}
	if err := validateStrike(d.StrikePrice); err != nil {
		return OptionDraft{}, err
	}
	if err := validateExpiration(d.ExpirationDate); err != nil {
		return OptionDraft{}, err
	}
	if out.Ticker, err = normalizeTicker(d.Ticker); err != nil {
		return OptionDraft{}, err
	}
	if out.Underlying, err = normalizeUnderlying(d.Underlying); err != nil {
		return OptionDraft{}, err
	}

	return out, nil
}

// ToContract builds the stored record for an already-normalized draft
func (d OptionDraft) ToContract(id int64) OptionContract {
	return OptionContract{
		ID:             id,
		Ticker:         d.Ticker,
		Underlying:     d.Underlying,
		ContractType:   d.ContractType,
		ExerciseStyle:  d.ExerciseStyle,
		StrikePrice:    d.StrikePrice,
		ExpirationDate: d.ExpirationDate,
	}
}

// OptionPatch is a partial update; nil fields are left untouched.
// An empty string clears Ticker or Underlying.
type OptionPatch struct {
	Ticker         *string          `json:"ticker"`
	Underlying     *string          `json:"underlying"`
	ContractType   *ContractType    `json:"contract_type"`
	ExerciseStyle  *ExerciseStyle   `json:"exercise_style"`
	StrikePrice    *decimal.Decimal `json:"strike_price"`
	ExpirationDate *civil.Date      `json:"expiration_date"`
}

// IsEmpty reports whether the patch changes nothing
func (p OptionPatch) IsEmpty() bool {
	return p.Ticker == nil && p.Underlying == nil && p.ContractType == nil &&
		p.ExerciseStyle == nil && p.StrikePrice == nil && p.ExpirationDate == nil
}

// Normalize validates the supplied fields and returns the patch in canonical form
func (p OptionPatch) Normalize() (OptionPatch, error) {
	out := p

	if p.ContractType != nil {
		ct, err := ParseContractType(string(*p.ContractType))
		if err != nil {
			return OptionPatch{}, err
		}
		out.ContractType = &ct
	}
	if p.ExerciseStyle != nil {
		es, err := ParseExerciseStyle(string(*p.ExerciseStyle))
		if err != nil {
			return OptionPatch{}, err
		}
		out.ExerciseStyle = &es
	}
	if p.StrikePrice != nil {
		if err := validateStrike(*p.StrikePrice); err != nil {
			return OptionPatch{}, err
		}
	}
	if p.ExpirationDate != nil {
		if err := validateExpiration(*p.ExpirationDate); err != nil {
			return OptionPatch{}, err
		}
	}
	if p.Ticker != nil {
		ticker, err := normalizeTicker(*p.Ticker)
		if err != nil {
			return OptionPatch{}, err
		}
		out.Ticker = &ticker
	}
	if p.Underlying != nil {
		underlying, err := normalizeUnderlying(*p.Underlying)
		if err != nil {
			return OptionPatch{}, err
		}
		out.Underlying = &underlying
	}

	return out, nil
}

// Apply returns c with every supplied field of the patch overwritten.
// The patch must already be normalized.
func (p OptionPatch) Apply(c OptionContract) OptionContract {
	if p.Ticker != nil {
		c.Ticker = *p.Ticker
	}
	if p.Underlying != nil {
		c.Underlying = *p.Underlying
	}
	if p.ContractType != nil {
		c.ContractType = *p.ContractType
	}
	if p.ExerciseStyle != nil {
		c.ExerciseStyle = *p.ExerciseStyle
	}
	if p.StrikePrice != nil {
		c.StrikePrice = *p.StrikePrice
	}
	if p.ExpirationDate != nil {
		c.ExpirationDate = *p.ExpirationDate
	}
	return c
}

// CheckRange resolves a listing window [start, end) over count records.
// With a limit the window must fit entirely; without one it runs to the
// end and never fails on range.
func CheckRange(offset int, limit *int, count int) (int, int, error) {
	if offset < 0 {
		return 0, 0, &ValidationError{Field: "offset", Reason: "must be greater than or equal to 0"}
	}

	if limit == nil {
		if offset >= count {
			return count, count, nil
		}
		return offset, count, nil
	}

	if *limit < 1 {
		return 0, 0, &ValidationError{Field: "limit", Reason: "must be greater than or equal to 1"}
	}
	// Compared without adding so huge offsets cannot wrap around
	if *limit > count || offset > count-*limit {
		return 0, 0, &RangeError{Offset: offset, Limit: *limit, Count: count}
	}
	return offset, offset + *limit, nil
}

// Strikes fit the OCC symbol's eight digit field: at most 99999.999
var maxStrike = decimal.RequireFromString("99999.999")

const (
	maxStrikeExponent = 5
	minStrikeExponent = -20
	strikePlaces      = 3
)

func validateStrike(strike decimal.Decimal) error {
	if !strike.IsPositive() {
		return &ValidationError{Field: "strike_price", Reason: "must be greater than 0"}
	}
	// Exponents are bounded before any comparison, which rescales both operands
	exp := strike.Exponent()
	if exp < minStrikeExponent {
		return &ValidationError{Field: "strike_price", Reason: "must have at most 3 decimal places"}
	}
	if exp > maxStrikeExponent || strike.GreaterThan(maxStrike) {
		return &ValidationError{Field: "strike_price", Reason: "must not exceed " + maxStrike.String()}
	}
	if !strike.Equal(strike.Truncate(strikePlaces)) {
		return &ValidationError{Field: "strike_price", Reason: "must have at most 3 decimal places"}
	}
	return nil
}

func validateExpiration(date civil.Date) error {
	if !date.IsValid() {
		return &ValidationError{Field: "expiration_date", Reason: "must be a calendar date in YYYY-MM-DD format"}
	}
	return nil
}

func normalizeTicker(ticker string) (string, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	if ticker == "" {
		return "", nil
	}
	if !tickerPattern.MatchString(ticker) {
		return "", &ValidationError{Field: "ticker", Reason: fmt.Sprintf("malformed ticker %q", ticker)}
	}
	return ticker, nil
}

func normalizeUnderlying(symbol string) (string, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return "", nil
	}
	if !underlyingPattern.MatchString(symbol) {
		return "", &ValidationError{Field: "underlying", Reason: fmt.Sprintf("malformed symbol %q", symbol)}
	}
	return symbol, nil
}
