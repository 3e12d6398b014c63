package balance

import (
	"encoding/json"
	"io"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// NativeDecimals is the precision of gas balances on EVM chains
const NativeDecimals = 18

// Entry is the JSON form of one account's balances
type Entry struct {
	Gas   string `json:"gas"`
	Token string `json:"token"`
}

// Result maps lowercase 0x addresses to their balances
type Result map[string]Entry

// NewResult renders infos in base units, or in whole units when decimal is set
func NewResult(infos []*Info, tokenDecimals int, decimal bool) Result {
	r := make(Result, len(infos))
	for _, info := range infos {
		e := Entry{Gas: info.Gas.String(), Token: info.Token.String()}
		if decimal {
			e = Entry{
				Gas:   FormatUnits(info.Gas, NativeDecimals),
				Token: FormatUnits(info.Token, tokenDecimals),
			}
		}
		r[strings.ToLower(info.Address.Hex())] = e
	}
	return r
}

// FormatUnits renders v scaled down by 10^decimals without trailing zeros
func FormatUnits(v *big.Int, decimals int) string {
	return decimal.NewFromBigInt(v, -int32(decimals)).String()
}

// AllZero reports whether every balance in r is zero
func (r Result) AllZero() bool {
	for _, e := range r {
		if !isZero(e.Gas) || !isZero(e.Token) {
			return false
		}
	}
	return true
}

func isZero(s string) bool {
	d, err := decimal.NewFromString(s)
	return err == nil && d.IsZero()
}

// Write encodes r as indented JSON followed by a newline
func (r Result) Write(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}
