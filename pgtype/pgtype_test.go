package pgtype_test

import (
	"math"
	"testing"
	"time"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jackc/pgcore/pgtype"
)

func TestBoolRoundTrip(t *testing.T) {
	for _, v := range []bool{true, false} {
		src := pgtype.Bool{Bool: v, Status: pgtype.Present}
		buf, err := src.EncodeBinary(nil)
		require.NoError(t, err)

		var dst pgtype.Bool
		require.NoError(t, dst.DecodeBinary(buf))
		assert.Equal(t, src, dst)
	}
}

func TestBoolDecodeText(t *testing.T) {
	var v pgtype.Bool
	require.NoError(t, v.DecodeText([]byte("t")))
	assert.True(t, v.Bool)
	require.NoError(t, v.DecodeText([]byte("f")))
	assert.False(t, v.Bool)
	assert.Error(t, v.DecodeText([]byte("x")))
}

func TestIntRoundTrip(t *testing.T) {
	for _, v := range []int64{0, 1, -1, 42, math.MaxInt64, math.MinInt64} {
		src := pgtype.Int8{Int: v, Status: pgtype.Present}
		buf, err := src.EncodeBinary(nil)
		require.NoError(t, err)
		require.Len(t, buf, 8)

		var dst pgtype.Int8
		require.NoError(t, dst.DecodeBinary(buf))
		assert.Equal(t, src, dst)
	}

	for _, v := range []int16{0, -32768, 32767} {
		src := pgtype.Int2{Int: v, Status: pgtype.Present}
		buf, err := src.EncodeBinary(nil)
		require.NoError(t, err)

		var dst pgtype.Int2
		require.NoError(t, dst.DecodeBinary(buf))
		assert.Equal(t, src, dst)
	}

	for _, v := range []int32{0, -2147483648, 2147483647} {
		src := pgtype.Int4{Int: v, Status: pgtype.Present}
		buf, err := src.EncodeBinary(nil)
		require.NoError(t, err)

		var dst pgtype.Int4
		require.NoError(t, dst.DecodeBinary(buf))
		assert.Equal(t, src, dst)
	}
}

func TestIntDecodeText(t *testing.T) {
	var v pgtype.Int8
	require.NoError(t, v.DecodeText([]byte("-9001")))
	assert.Equal(t, int64(-9001), v.Int)
	assert.Error(t, v.DecodeText([]byte("zebra")))
}

func TestFloatRoundTripBitExact(t *testing.T) {
	for _, v := range []float64{0, 1.5, -1.5, math.Pi, math.Inf(1), math.Inf(-1), math.SmallestNonzeroFloat64} {
		src := pgtype.Float8{Float: v, Status: pgtype.Present}
		buf, err := src.EncodeBinary(nil)
		require.NoError(t, err)

		var dst pgtype.Float8
		require.NoError(t, dst.DecodeBinary(buf))
		assert.Equal(t, math.Float64bits(src.Float), math.Float64bits(dst.Float))
	}

	nan := pgtype.Float8{Float: math.NaN(), Status: pgtype.Present}
	buf, err := nan.EncodeBinary(nil)
	require.NoError(t, err)
	var dst pgtype.Float8
	require.NoError(t, dst.DecodeBinary(buf))
	assert.True(t, math.IsNaN(dst.Float))

	for _, v := range []float32{0, 2.5, -2.5, math.MaxFloat32} {
		src := pgtype.Float4{Float: v, Status: pgtype.Present}
		buf, err := src.EncodeBinary(nil)
		require.NoError(t, err)

		var dst pgtype.Float4
		require.NoError(t, dst.DecodeBinary(buf))
		assert.Equal(t, math.Float32bits(src.Float), math.Float32bits(dst.Float))
	}
}

func TestTextRoundTrip(t *testing.T) {
	for _, v := range []string{"", "hello", "héllo wörld", "null\x00byte is fine in Go, not sent"} {
		src := pgtype.Text{String: v, Status: pgtype.Present}
		buf, err := src.EncodeBinary(nil)
		require.NoError(t, err)

		var dst pgtype.Text
		require.NoError(t, dst.DecodeBinary(buf))
		assert.Equal(t, v, dst.String)
	}
}

func TestByteaTextDecode(t *testing.T) {
	var v pgtype.Bytea
	require.NoError(t, v.DecodeText([]byte(`\xdeadbeef`)))
	assert.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, v.Bytes)

	assert.Error(t, v.DecodeText([]byte("deadbeef")))
}

func TestUUIDRoundTrip(t *testing.T) {
	u := uuid.Must(uuid.FromString("6ba7b810-9dad-11d1-80b4-00c04fd430c8"))

	src := pgtype.UUID{UUID: u, Status: pgtype.Present}
	buf, err := src.EncodeBinary(nil)
	require.NoError(t, err)
	require.Len(t, buf, 16)

	var dst pgtype.UUID
	require.NoError(t, dst.DecodeBinary(buf))
	assert.Equal(t, u, dst.UUID)

	var fromText pgtype.UUID
	require.NoError(t, fromText.DecodeText([]byte("6ba7b810-9dad-11d1-80b4-00c04fd430c8")))
	assert.Equal(t, u, fromText.UUID)
}

func TestNumericRoundTrip(t *testing.T) {
	cases := []string{
		"0",
		"1",
		"-1",
		"12345.678",
		"-12345.678",
		"0.00001",
		"99999999999999999999999999.9999999999",
		"10000",
		"123400",
		"0.1",
		"1234.5678",
	}

	for _, s := range cases {
		d := decimal.RequireFromString(s)
		src := pgtype.Numeric{Decimal: d, Status: pgtype.Present}

		buf, err := src.EncodeBinary(nil)
		require.NoError(t, err)

		var dst pgtype.Numeric
		require.NoError(t, dst.DecodeBinary(buf))
		require.Equal(t, pgtype.Present, dst.Status)
		assert.Truef(t, d.Equal(dst.Decimal), "%s round-tripped to %s", s, dst.Decimal)
	}
}

func TestNumericNaN(t *testing.T) {
	src := pgtype.Numeric{NaN: true, Status: pgtype.Present}
	buf, err := src.EncodeBinary(nil)
	require.NoError(t, err)

	var dst pgtype.Numeric
	require.NoError(t, dst.DecodeBinary(buf))
	assert.True(t, dst.NaN)
}

func TestNumericDecodeText(t *testing.T) {
	var v pgtype.Numeric
	require.NoError(t, v.DecodeText([]byte("123.45")))
	assert.True(t, v.Decimal.Equal(decimal.RequireFromString("123.45")))

	require.NoError(t, v.DecodeText([]byte("NaN")))
	assert.True(t, v.NaN)
}

func TestTimestampRoundTrip(t *testing.T) {
	times := []time.Time{
		time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 7, 15, 13, 14, 15, 123456000, time.UTC),
		time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(1905, 12, 31, 23, 59, 59, 999999000, time.UTC),
	}

	for _, tm := range times {
		src := pgtype.Timestamptz{Time: tm, Status: pgtype.Present}
		buf, err := src.EncodeBinary(nil)
		require.NoError(t, err)
		require.Len(t, buf, 8)

		var dst pgtype.Timestamptz
		require.NoError(t, dst.DecodeBinary(buf))
		assert.True(t, tm.Equal(dst.Time), "%v round-tripped to %v", tm, dst.Time)
	}
}

func TestTimestampInfinity(t *testing.T) {
	src := pgtype.Timestamp{Status: pgtype.Present, InfinityModifier: pgtype.Infinity}
	buf, err := src.EncodeBinary(nil)
	require.NoError(t, err)

	var dst pgtype.Timestamp
	require.NoError(t, dst.DecodeBinary(buf))
	assert.Equal(t, pgtype.Infinity, dst.InfinityModifier)
}

func TestDateRoundTrip(t *testing.T) {
	dates := []time.Time{
		time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC),
		time.Date(1999, 12, 31, 0, 0, 0, 0, time.UTC),
		time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC),
	}

	for _, d := range dates {
		src := pgtype.Date{Time: d, Status: pgtype.Present}
		buf, err := src.EncodeBinary(nil)
		require.NoError(t, err)
		require.Len(t, buf, 4)

		var dst pgtype.Date
		require.NoError(t, dst.DecodeBinary(buf))
		assert.True(t, d.Equal(dst.Time), "%v round-tripped to %v", d, dst.Time)
	}

	var fromText pgtype.Date
	require.NoError(t, fromText.DecodeText([]byte("2024-02-29")))
	assert.True(t, fromText.Time.Equal(time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC)))
}

func TestJSONBVersionByte(t *testing.T) {
	src := pgtype.JSONB{Bytes: []byte(`{"a":1}`), Status: pgtype.Present}
	buf, err := src.EncodeBinary(nil)
	require.NoError(t, err)
	require.Equal(t, byte(1), buf[0])
	assert.Equal(t, `{"a":1}`, string(buf[1:]))

	var dst pgtype.JSONB
	require.NoError(t, dst.DecodeBinary(buf))
	assert.Equal(t, `{"a":1}`, string(dst.Bytes))

	assert.Error(t, dst.DecodeBinary([]byte{2, '{', '}'}))
}

func TestInt8ArrayWireFormat(t *testing.T) {
	src := pgtype.Int8Array{
		Elements: []pgtype.Int8{
			{Int: 1, Status: pgtype.Present},
			{Int: 2, Status: pgtype.Present},
			{Int: 3, Status: pgtype.Present},
		},
		Status: pgtype.Present,
	}

	buf, err := src.EncodeBinary(nil)
	require.NoError(t, err)

	expected := []byte{
		0, 0, 0, 1, // one dimension
		0, 0, 0, 0, // no nulls
		0, 0, 0, 20, // int8 element oid
		0, 0, 0, 3, // dimension length 3
		0, 0, 0, 1, // lower bound 1
		0, 0, 0, 8, 0, 0, 0, 0, 0, 0, 0, 1,
		0, 0, 0, 8, 0, 0, 0, 0, 0, 0, 0, 2,
		0, 0, 0, 8, 0, 0, 0, 0, 0, 0, 0, 3,
	}
	assert.Equal(t, expected, buf)

	var dst pgtype.Int8Array
	require.NoError(t, dst.DecodeBinary(buf))
	assert.Equal(t, src, dst)
}

func TestArrayWithNulls(t *testing.T) {
	src := pgtype.TextArray{
		Elements: []pgtype.Text{
			{String: "a", Status: pgtype.Present},
			{Status: pgtype.Null},
			{String: "c", Status: pgtype.Present},
		},
		Status: pgtype.Present,
	}

	buf, err := src.EncodeBinary(nil)
	require.NoError(t, err)

	var dst pgtype.TextArray
	require.NoError(t, dst.DecodeBinary(buf))
	assert.Equal(t, src, dst)
}

func TestArrayRejectsMultipleDimensions(t *testing.T) {
	buf := []byte{
		0, 0, 0, 2, // two dimensions
		0, 0, 0, 0,
		0, 0, 0, 20,
		0, 0, 0, 1, 0, 0, 0, 1,
		0, 0, 0, 1, 0, 0, 0, 1,
	}

	var dst pgtype.Int8Array
	assert.Error(t, dst.DecodeBinary(buf))
}

func TestArrayDecodeText(t *testing.T) {
	var ints pgtype.Int8Array
	require.NoError(t, ints.DecodeText([]byte("{1,2,NULL,3}")))
	require.Len(t, ints.Elements, 4)
	assert.Equal(t, int64(1), ints.Elements[0].Int)
	assert.Equal(t, pgtype.Null, ints.Elements[2].Status)

	var texts pgtype.TextArray
	require.NoError(t, texts.DecodeText([]byte(`{plain,"quoted value","with \"escape\"",NULL}`)))
	require.Len(t, texts.Elements, 4)
	assert.Equal(t, "plain", texts.Elements[0].String)
	assert.Equal(t, "quoted value", texts.Elements[1].String)
	assert.Equal(t, `with "escape"`, texts.Elements[2].String)
	assert.Equal(t, pgtype.Null, texts.Elements[3].Status)

	var empty pgtype.TextArray
	require.NoError(t, empty.DecodeText([]byte("{}")))
	assert.Len(t, empty.Elements, 0)
}

func TestEncodeParam(t *testing.T) {
	oid, format, data, err := pgtype.EncodeParam(int64(7))
	require.NoError(t, err)
	assert.Equal(t, uint32(pgtype.Int8OID), oid)
	assert.Equal(t, int16(pgtype.BinaryFormatCode), format)
	assert.Equal(t, []byte{0, 0, 0, 0, 0, 0, 0, 7}, data)

	oid, _, data, err = pgtype.EncodeParam(nil)
	require.NoError(t, err)
	assert.Equal(t, uint32(pgtype.UnknownOID), oid)
	assert.Nil(t, data)

	oid, _, data, err = pgtype.EncodeParam([]int64{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, uint32(pgtype.Int8ArrayOID), oid)
	require.NotNil(t, data)

	_, _, _, err = pgtype.EncodeParam(struct{}{})
	assert.Error(t, err)
}

func TestScanValue(t *testing.T) {
	var n int64
	require.NoError(t, pgtype.ScanValue(pgtype.Int4OID, pgtype.BinaryFormatCode, []byte{0, 0, 0, 9}, &n))
	assert.Equal(t, int64(9), n)

	var s string
	require.NoError(t, pgtype.ScanValue(pgtype.TextOID, pgtype.BinaryFormatCode, []byte("abc"), &s))
	assert.Equal(t, "abc", s)

	var f float64
	require.NoError(t, pgtype.ScanValue(pgtype.Float8OID, pgtype.TextFormatCode, []byte("1.25"), &f))
	assert.Equal(t, 1.25, f)

	var ints []int64
	buf, err := pgtype.Int8Array{
		Elements: []pgtype.Int8{{Int: 5, Status: pgtype.Present}},
		Status:   pgtype.Present,
	}.EncodeBinary(nil)
	require.NoError(t, err)
	require.NoError(t, pgtype.ScanValue(pgtype.Int8ArrayOID, pgtype.BinaryFormatCode, buf, &ints))
	assert.Equal(t, []int64{5}, ints)

	// NULL into a non-pointer destination fails.
	assert.Error(t, pgtype.ScanValue(pgtype.Int4OID, pgtype.BinaryFormatCode, nil, &n))

	// Malformed value fails without panicking.
	assert.Error(t, pgtype.ScanValue(pgtype.Int4OID, pgtype.BinaryFormatCode, []byte{1, 2}, &n))
}
