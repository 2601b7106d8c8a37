package wei

import (
	"fmt"
	"math/big"
	"strings"
)

// EthDecimals is the number of wei digits in one ETH.
const EthDecimals = 18

var weiPerEth = new(big.Int).Exp(big.NewInt(10), big.NewInt(EthDecimals), nil)

// FromEth converts a decimal ETH string into an exact wei amount.
// The conversion is pure string/bigint arithmetic: the decimal is split into
// whole and fractional parts and the fraction is right-padded to 18 digits,
// so values like "0.1" come out as exactly 100000000000000000.
func FromEth(amount string) (*big.Int, error) {
	s := strings.TrimSpace(amount)
	if s == "" {
		return nil, fmt.Errorf("empty amount")
	}
	if strings.HasPrefix(s, "-") {
		return nil, fmt.Errorf("negative amount %q", amount)
	}

	whole, frac := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		whole, frac = s[:i], s[i+1:]
	}
	if whole == "" {
		whole = "0"
	}
	if len(frac) > EthDecimals {
		return nil, fmt.Errorf("amount %q has more than %d fractional digits", amount, EthDecimals)
	}
	if !isDigits(whole) || (frac != "" && !isDigits(frac)) {
		return nil, fmt.Errorf("amount %q is not a decimal number", amount)
	}

	wholeInt, ok := new(big.Int).SetString(whole, 10)
	if !ok {
		return nil, fmt.Errorf("amount %q is not a decimal number", amount)
	}
	out := new(big.Int).Mul(wholeInt, weiPerEth)

	if frac != "" {
		padded := frac + strings.Repeat("0", EthDecimals-len(frac))
		fracInt, ok := new(big.Int).SetString(padded, 10)
		if !ok {
			return nil, fmt.Errorf("amount %q is not a decimal number", amount)
		}
		out.Add(out, fracInt)
	}
	return out, nil
}

// FromEthPositive is FromEth with a strict positivity requirement, used for
// configured lock and claim amounts.
func FromEthPositive(amount string) (*big.Int, error) {
	v, err := FromEth(amount)
	if err != nil {
		return nil, err
	}
	if v.Sign() <= 0 {
		return nil, fmt.Errorf("amount %q must be positive", amount)
	}
	return v, nil
}

// ToHex renders a wei amount as the 0x-prefixed quantity expected by
// eth_sendTransaction.
func ToHex(v *big.Int) string {
	return "0x" + v.Text(16)
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
