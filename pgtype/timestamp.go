package pgtype

import (
	"encoding/binary"
	"math"
	"time"

	"github.com/jackc/pgio"
)

const microsecFromUnixEpochToY2K = 946684800 * 1000000

const (
	negativeInfinityMicrosecondOffset = math.MinInt64
	infinityMicrosecondOffset         = math.MaxInt64
)

// InfinityModifier marks the date and timestamp infinity sentinels.
type InfinityModifier int8

const (
	Infinity         InfinityModifier = 1
	None             InfinityModifier = 0
	NegativeInfinity InfinityModifier = -Infinity
)

// Timestamp is a timestamp without time zone. The Time field is always in
// UTC; the server stores no offset.
type Timestamp struct {
	Time             time.Time
	Status           Status
	InfinityModifier InfinityModifier
}

func (dst *Timestamp) DecodeBinary(src []byte) error {
	if src == nil {
		*dst = Timestamp{Status: Null}
		return nil
	}

	if len(src) != 8 {
		return &decodeError{typeName: "timestamp", details: "invalid length"}
	}

	micros := int64(binary.BigEndian.Uint64(src))

	switch micros {
	case infinityMicrosecondOffset:
		*dst = Timestamp{Status: Present, InfinityModifier: Infinity}
	case negativeInfinityMicrosecondOffset:
		*dst = Timestamp{Status: Present, InfinityModifier: NegativeInfinity}
	default:
		*dst = Timestamp{Time: microsToTime(micros), Status: Present}
	}

	return nil
}

func (dst *Timestamp) DecodeText(src []byte) error {
	if src == nil {
		*dst = Timestamp{Status: Null}
		return nil
	}

	switch string(src) {
	case "infinity":
		*dst = Timestamp{Status: Present, InfinityModifier: Infinity}
	case "-infinity":
		*dst = Timestamp{Status: Present, InfinityModifier: NegativeInfinity}
	default:
		t, err := time.Parse("2006-01-02 15:04:05.999999", string(src))
		if err != nil {
			return &decodeError{typeName: "timestamp", details: err.Error()}
		}
		*dst = Timestamp{Time: t, Status: Present}
	}

	return nil
}

func (src Timestamp) EncodeBinary(buf []byte) ([]byte, error) {
	if src.Status == Null {
		return nil, nil
	}

	var micros int64
	switch src.InfinityModifier {
	case Infinity:
		micros = infinityMicrosecondOffset
	case NegativeInfinity:
		micros = negativeInfinityMicrosecondOffset
	default:
		micros = timeToMicros(src.Time.UTC())
	}

	return pgio.AppendInt64(buf, micros), nil
}

// Timestamptz is a timestamp with time zone. The wire value is an instant;
// decoded values are in UTC.
type Timestamptz struct {
	Time             time.Time
	Status           Status
	InfinityModifier InfinityModifier
}

func (dst *Timestamptz) DecodeBinary(src []byte) error {
	var ts Timestamp
	if err := ts.DecodeBinary(src); err != nil {
		return err
	}
	*dst = Timestamptz(ts)
	return nil
}

func (dst *Timestamptz) DecodeText(src []byte) error {
	if src == nil {
		*dst = Timestamptz{Status: Null}
		return nil
	}

	switch string(src) {
	case "infinity":
		*dst = Timestamptz{Status: Present, InfinityModifier: Infinity}
	case "-infinity":
		*dst = Timestamptz{Status: Present, InfinityModifier: NegativeInfinity}
	default:
		t, err := time.Parse("2006-01-02 15:04:05.999999-07", string(src))
		if err != nil {
			return &decodeError{typeName: "timestamptz", details: err.Error()}
		}
		*dst = Timestamptz{Time: t.UTC(), Status: Present}
	}

	return nil
}

func (src Timestamptz) EncodeBinary(buf []byte) ([]byte, error) {
	return Timestamp(src).EncodeBinary(buf)
}

func microsToTime(micros int64) time.Time {
	return time.Unix(
		microsecFromUnixEpochToY2K/1000000+micros/1000000,
		(microsecFromUnixEpochToY2K%1000000*1000)+(micros%1000000*1000),
	).UTC()
}

func timeToMicros(t time.Time) int64 {
	return t.Unix()*1000000 + int64(t.Nanosecond())/1000 - microsecFromUnixEpochToY2K
}
