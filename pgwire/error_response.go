package pgwire

import (
	"strconv"

	"github.com/jackc/pgio"
)

// ErrorResponse reports an error from the server. See
// https://www.postgresql.org/docs/current/protocol-error-fields.html for
// field meanings.
type ErrorResponse struct {
	Severity            string
	SeverityUnlocalized string
	Code                string
	Message             string
	Detail              string
	Hint                string
	Position            int32
	InternalPosition    int32
	InternalQuery       string
	Where               string
	SchemaName          string
	TableName           string
	ColumnName          string
	DataTypeName        string
	ConstraintName      string
	File                string
	Line                int32
	Routine             string

	UnknownFields map[byte]string
}

func (*ErrorResponse) Backend() {}

func (dst *ErrorResponse) Decode(src []byte) error {
	*dst = ErrorResponse{}
	return dst.populateFromFields(src, "ErrorResponse")
}

func (dst *ErrorResponse) populateFromFields(src []byte, messageType string) error {
	rp := 0
	for {
		if rp >= len(src) {
			return &invalidMessageFormatErr{messageType: messageType, details: "missing list terminator"}
		}

		k := src[rp]
		rp += 1
		if k == 0 {
			break
		}

		idx := indexOfNull(src[rp:])
		if idx < 0 {
			return &invalidMessageFormatErr{messageType: messageType, details: "missing field terminator"}
		}
		v := string(src[rp : rp+idx])
		rp += idx + 1

		switch k {
		case 'S':
			dst.Severity = v
		case 'V':
			dst.SeverityUnlocalized = v
		case 'C':
			dst.Code = v
		case 'M':
			dst.Message = v
		case 'D':
			dst.Detail = v
		case 'H':
			dst.Hint = v
		case 'P':
			n, _ := strconv.ParseInt(v, 10, 32)
			dst.Position = int32(n)
		case 'p':
			n, _ := strconv.ParseInt(v, 10, 32)
			dst.InternalPosition = int32(n)
		case 'q':
			dst.InternalQuery = v
		case 'W':
			dst.Where = v
		case 's':
			dst.SchemaName = v
		case 't':
			dst.TableName = v
		case 'c':
			dst.ColumnName = v
		case 'd':
			dst.DataTypeName = v
		case 'n':
			dst.ConstraintName = v
		case 'F':
			dst.File = v
		case 'L':
			n, _ := strconv.ParseInt(v, 10, 32)
			dst.Line = int32(n)
		case 'R':
			dst.Routine = v
		default:
			if dst.UnknownFields == nil {
				dst.UnknownFields = make(map[byte]string)
			}
			dst.UnknownFields[k] = v
		}
	}

	return nil
}

func (src *ErrorResponse) Encode(dst []byte) []byte {
	return src.appendFields(dst, 'E')
}

func (src *ErrorResponse) appendFields(dst []byte, id byte) []byte {
	dst = append(dst, id)
	sp := len(dst)
	dst = pgio.AppendInt32(dst, -1)

	appendField := func(k byte, v string) {
		if v == "" {
			return
		}
		dst = append(dst, k)
		dst = append(dst, v...)
		dst = append(dst, 0)
	}

	appendField('S', src.Severity)
	appendField('V', src.SeverityUnlocalized)
	appendField('C', src.Code)
	appendField('M', src.Message)
	appendField('D', src.Detail)
	appendField('H', src.Hint)
	if src.Position != 0 {
		appendField('P', strconv.FormatInt(int64(src.Position), 10))
	}
	if src.InternalPosition != 0 {
		appendField('p', strconv.FormatInt(int64(src.InternalPosition), 10))
	}
	appendField('q', src.InternalQuery)
	appendField('W', src.Where)
	appendField('s', src.SchemaName)
	appendField('t', src.TableName)
	appendField('c', src.ColumnName)
	appendField('d', src.DataTypeName)
	appendField('n', src.ConstraintName)
	appendField('F', src.File)
	if src.Line != 0 {
		appendField('L', strconv.FormatInt(int64(src.Line), 10))
	}
	appendField('R', src.Routine)
	for k, v := range src.UnknownFields {
		appendField(k, v)
	}

	dst = append(dst, 0)
	pgio.SetInt32(dst[sp:], int32(len(dst[sp:])))
	return dst
}
