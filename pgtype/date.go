package pgtype

import (
	"encoding/binary"
	"time"

	"github.com/jackc/pgio"
)

const (
	negativeInfinityDayOffset = -2147483648
	infinityDayOffset         = 2147483647
)

type Date struct {
	Time             time.Time
	Status           Status
	InfinityModifier InfinityModifier
}

func (dst *Date) DecodeBinary(src []byte) error {
	if src == nil {
		*dst = Date{Status: Null}
		return nil
	}

	if len(src) != 4 {
		return &decodeError{typeName: "date", details: "invalid length"}
	}

	dayOffset := int32(binary.BigEndian.Uint32(src))

	switch dayOffset {
	case infinityDayOffset:
		*dst = Date{Status: Present, InfinityModifier: Infinity}
	case negativeInfinityDayOffset:
		*dst = Date{Status: Present, InfinityModifier: NegativeInfinity}
	default:
		t := time.Date(2000, 1, int(1+dayOffset), 0, 0, 0, 0, time.UTC)
		*dst = Date{Time: t, Status: Present}
	}

	return nil
}

func (dst *Date) DecodeText(src []byte) error {
	if src == nil {
		*dst = Date{Status: Null}
		return nil
	}

	switch string(src) {
	case "infinity":
		*dst = Date{Status: Present, InfinityModifier: Infinity}
	case "-infinity":
		*dst = Date{Status: Present, InfinityModifier: NegativeInfinity}
	default:
		t, err := time.ParseInLocation("2006-01-02", string(src), time.UTC)
		if err != nil {
			return &decodeError{typeName: "date", details: err.Error()}
		}
		*dst = Date{Time: t, Status: Present}
	}

	return nil
}

func (src Date) EncodeBinary(buf []byte) ([]byte, error) {
	if src.Status == Null {
		return nil, nil
	}

	var dayOffset int32
	switch src.InfinityModifier {
	case Infinity:
		dayOffset = infinityDayOffset
	case NegativeInfinity:
		dayOffset = negativeInfinityDayOffset
	default:
		tUnix := time.Date(src.Time.Year(), src.Time.Month(), src.Time.Day(), 0, 0, 0, 0, time.UTC).Unix()
		dateEpoch := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC).Unix()
		secSinceDateEpoch := tUnix - dateEpoch
		dayOffset = int32(secSinceDateEpoch / 86400)
	}

	return pgio.AppendInt32(buf, dayOffset), nil
}
