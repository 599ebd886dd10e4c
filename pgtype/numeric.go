package pgtype

import (
	"encoding/binary"
	"math/big"

	"github.com/jackc/pgio"
	"github.com/shopspring/decimal"
)

// Wire-level sign markers for numeric.
const (
	pgNumericPositive = 0x0000
	pgNumericNegative = 0x4000
	pgNumericNaN      = 0xC000
)

// Numeric maps PostgreSQL's arbitrary-precision decimal to a
// decimal.Decimal. NaN has no decimal.Decimal representation, so it is
// carried as a flag.
type Numeric struct {
	Decimal decimal.Decimal
	NaN     bool
	Status  Status
}

var big10k = big.NewInt(10000)

var pow10Table = [4]*big.Int{
	big.NewInt(1),
	big.NewInt(10),
	big.NewInt(100),
	big.NewInt(1000),
}

func (dst *Numeric) DecodeBinary(src []byte) error {
	if src == nil {
		*dst = Numeric{Status: Null}
		return nil
	}

	if len(src) < 8 {
		return &decodeError{typeName: "numeric", details: "too short"}
	}

	ndigits := int(int16(binary.BigEndian.Uint16(src)))
	weight := int(int16(binary.BigEndian.Uint16(src[2:])))
	sign := binary.BigEndian.Uint16(src[4:])
	rp := 8

	if sign == pgNumericNaN {
		*dst = Numeric{NaN: true, Status: Present}
		return nil
	}

	if ndigits < 0 || len(src[rp:]) != ndigits*2 {
		return &decodeError{typeName: "numeric", details: "digit count does not match body"}
	}

	accum := new(big.Int)
	for i := 0; i < ndigits; i++ {
		digit := int64(int16(binary.BigEndian.Uint16(src[rp:])))
		rp += 2
		if digit < 0 || digit > 9999 {
			return &decodeError{typeName: "numeric", details: "digit out of range"}
		}
		accum.Mul(accum, big10k)
		accum.Add(accum, big.NewInt(digit))
	}

	if sign == pgNumericNegative {
		accum.Neg(accum)
	}

	// The least significant decoded digit group has base-10000 exponent
	// weight-ndigits+1, i.e. decimal exponent (weight-ndigits+1)*4.
	exp := int32(weight-ndigits+1) * 4

	*dst = Numeric{Decimal: decimal.NewFromBigInt(accum, exp), Status: Present}
	return nil
}

func (dst *Numeric) DecodeText(src []byte) error {
	if src == nil {
		*dst = Numeric{Status: Null}
		return nil
	}

	if string(src) == "NaN" {
		*dst = Numeric{NaN: true, Status: Present}
		return nil
	}

	d, err := decimal.NewFromString(string(src))
	if err != nil {
		return &decodeError{typeName: "numeric", details: err.Error()}
	}

	*dst = Numeric{Decimal: d, Status: Present}
	return nil
}

func (src Numeric) EncodeBinary(buf []byte) ([]byte, error) {
	if src.Status == Null {
		return nil, nil
	}

	if src.NaN {
		buf = pgio.AppendInt16(buf, 0)
		buf = pgio.AppendInt16(buf, 0)
		buf = pgio.AppendUint16(buf, pgNumericNaN)
		buf = pgio.AppendInt16(buf, 0)
		return buf, nil
	}

	sign := uint16(pgNumericPositive)
	coef := new(big.Int).Set(src.Decimal.Coefficient())
	if coef.Sign() < 0 {
		sign = pgNumericNegative
		coef.Neg(coef)
	}

	exp := src.Decimal.Exponent()
	dscale := int16(0)
	if exp < 0 {
		dscale = int16(-exp)
	}

	// Align the coefficient so its exponent is a multiple of 4: base-10000
	// digit groups carry four decimal digits each.
	shift := ((exp % 4) + 4) % 4
	coef.Mul(coef, pow10Table[shift])
	groupExp := (exp - shift) / 4

	var digits []int16
	rem := new(big.Int)
	for coef.Sign() != 0 {
		coef.QuoRem(coef, big10k, rem)
		digits = append(digits, int16(rem.Int64()))
	}

	ndigits := len(digits)
	weight := int(groupExp) + ndigits - 1
	if ndigits == 0 {
		weight = 0
	}

	buf = pgio.AppendInt16(buf, int16(ndigits))
	buf = pgio.AppendInt16(buf, int16(weight))
	buf = pgio.AppendUint16(buf, sign)
	buf = pgio.AppendInt16(buf, dscale)
	for i := ndigits - 1; i >= 0; i-- {
		buf = pgio.AppendInt16(buf, digits[i])
	}

	return buf, nil
}
