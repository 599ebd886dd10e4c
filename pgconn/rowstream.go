package pgconn

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/jackc/pgcore/pgtype"
	"github.com/jackc/pgcore/pgwire"
)

// Adaptive buffer bounds. The target starts at bufferTargetStart, doubles
// whenever the consumer drains the buffer completely and halves whenever a
// fill completes without a drain in between.
const (
	bufferTargetMinimum = 1
	bufferTargetStart   = 64
	bufferTargetMaximum = 16384
)

// CommandTag is the status tag reported by CommandComplete, e.g. "SELECT 1".
type CommandTag string

// RowsAffected parses the trailing row count of the tag. It returns 0 for
// tags without one (e.g. "CREATE TABLE").
func (ct CommandTag) RowsAffected() int64 {
	s := string(ct)
	idx := -1
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] >= '0' && s[i] <= '9' {
			idx = i
		} else {
			break
		}
	}
	if idx == -1 {
		return 0
	}

	var n int64
	for _, b := range s[idx:] {
		n = n*10 + int64(b-'0')
	}
	return n
}

// Row is one decoded-on-demand result row. Cell bytes are slices into a
// single buffer owned by the row.
type Row struct {
	fields  []pgwire.FieldDescription
	nameIdx map[string]int
	buf     []byte
	cells   [][]byte // slices into buf; nil is SQL NULL
}

func newRow(fields []pgwire.FieldDescription, nameIdx map[string]int, values [][]byte) *Row {
	size := 0
	for _, v := range values {
		size += len(v)
	}

	r := &Row{
		fields:  fields,
		nameIdx: nameIdx,
		buf:     make([]byte, 0, size),
		cells:   make([][]byte, len(values)),
	}

	for i, v := range values {
		if v == nil {
			continue
		}
		start := len(r.buf)
		r.buf = append(r.buf, v...)
		r.cells[i] = r.buf[start : start+len(v) : start+len(v)]
	}

	return r
}

// Len returns the number of columns.
func (r *Row) Len() int {
	return len(r.cells)
}

// RawValue returns the wire bytes of column i; nil is SQL NULL.
func (r *Row) RawValue(i int) []byte {
	return r.cells[i]
}

// Decode decodes column i into dst, which must be a pointer to a supported
// Go type (see pgtype.ScanValue). Failures are reported as *CastError and do
// not invalidate the row or the connection.
func (r *Row) Decode(i int, dst interface{}) error {
	if i < 0 || i >= len(r.cells) {
		return &CastError{
			ColumnIndex: i,
			TargetType:  typeName(dst),
			err:         errColumnOutOfRange,
		}
	}

	fd := r.fields[i]
	err := pgtype.ScanValue(fd.DataTypeOID, fd.Format, r.cells[i], dst)
	if err == nil {
		return nil
	}

	_, file, line, _ := runtime.Caller(1)
	return &CastError{
		ColumnName:  fd.Name,
		ColumnIndex: i,
		TargetType:  typeName(dst),
		SourceOID:   fd.DataTypeOID,
		SourceBytes: r.cells[i],
		File:        file,
		Line:        line,
		err:         err,
	}
}

// DecodeByName is Decode with a column-name lookup.
func (r *Row) DecodeByName(name string, dst interface{}) error {
	i, ok := r.nameIdx[name]
	if !ok {
		return &CastError{
			ColumnName: name,
			TargetType: typeName(dst),
			err:        errUnknownColumn,
		}
	}
	return r.Decode(i, dst)
}

// Scan decodes all columns in order into the given destinations.
func (r *Row) Scan(dst ...interface{}) error {
	if len(dst) != len(r.cells) {
		return errScanArity
	}
	for i, d := range dst {
		if err := r.Decode(i, d); err != nil {
			return err
		}
	}
	return nil
}

// RowStream is the single-consumer pull interface over one query's rows. The
// producing connection and the consumer communicate only through the
// stream's internal mailbox: a ring buffer, a demand signal and a cancel
// flag.
type RowStream struct {
	mu       sync.Mutex
	consumer *sync.Cond // rows available, completion, or failure
	producer *sync.Cond // demand: buffer below target, cancel, or teardown

	fields  []pgwire.FieldDescription
	nameIdx map[string]int

	buf  []*Row
	head int

	target       int
	drainedSince bool // drained to empty since the last completed fill

	commandTag CommandTag
	done       bool
	err        error
	cancelled  bool

	row *Row

	notices chan *Notice

	cancelFn func() // signals the owning connection once on cancel
}

func newRowStream(fields []pgwire.FieldDescription, cancelFn func()) *RowStream {
	nameIdx := make(map[string]int, len(fields))
	for i, fd := range fields {
		if _, dup := nameIdx[fd.Name]; !dup {
			nameIdx[fd.Name] = i
		}
	}

	rs := &RowStream{
		fields:       fields,
		nameIdx:      nameIdx,
		target:       bufferTargetStart,
		drainedSince: true,
		notices:      make(chan *Notice, 16),
		cancelFn:     cancelFn,
	}
	rs.consumer = sync.NewCond(&rs.mu)
	rs.producer = sync.NewCond(&rs.mu)
	return rs
}

// FieldDescriptions returns the result column descriptions.
func (rs *RowStream) FieldDescriptions() []pgwire.FieldDescription {
	return rs.fields
}

// Next advances to the next row. It returns false when the stream is
// exhausted, failed, or ctx is done; Err distinguishes.
func (rs *RowStream) Next(ctx context.Context) bool {
	rs.mu.Lock()

	for rs.count() == 0 && !rs.done && rs.err == nil && !rs.cancelled {
		if ctx.Err() != nil {
			rs.mu.Unlock()
			rs.Cancel()
			return false
		}
		if !rs.waitConsumer(ctx) {
			rs.mu.Unlock()
			rs.Cancel()
			return false
		}
	}

	if rs.count() == 0 || rs.cancelled {
		rs.row = nil
		rs.mu.Unlock()
		return false
	}

	row, signalDemand := rs.removeFirst()
	rs.row = row
	if signalDemand {
		rs.producer.Signal()
	}
	rs.mu.Unlock()
	return true
}

// Row returns the row Next advanced to.
func (rs *RowStream) Row() *Row {
	return rs.row
}

// Err returns the terminal error, if any. A cancelled stream reports a
// query-cancelled error only if it was cancelled before completion.
func (rs *RowStream) Err() error {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if rs.err != nil {
		return rs.err
	}
	if rs.cancelled && !rs.done {
		return newError(ErrCodeQueryCancelled, nil)
	}
	return nil
}

// CommandTag returns the completion tag. Only valid after Next has returned
// false and Err is nil.
func (rs *RowStream) CommandTag() CommandTag {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.commandTag
}

// Notices returns the channel carrying NoticeResponse messages received
// while this query was in flight. It is never closed; poll opportunistically.
func (rs *RowStream) Notices() <-chan *Notice {
	return rs.notices
}

// Cancel abandons the stream. Remaining and future rows are discarded; the
// connection silently drains to the next ReadyForQuery and stays usable.
// Cancel is idempotent and safe to call concurrently with Next.
func (rs *RowStream) Cancel() {
	rs.mu.Lock()
	if rs.cancelled {
		rs.mu.Unlock()
		return
	}
	rs.cancelled = true
	rs.buf = nil
	rs.head = 0
	fn := rs.cancelFn
	rs.cancelFn = nil
	rs.consumer.Broadcast()
	rs.producer.Broadcast()
	rs.mu.Unlock()

	if fn != nil {
		fn()
	}
}

// Close is Cancel under the name conventionally deferred by callers.
func (rs *RowStream) Close() {
	rs.Cancel()
}

// Collect reads every remaining row into a slice.
func (rs *RowStream) Collect(ctx context.Context) ([]*Row, error) {
	var rows []*Row
	for rs.Next(ctx) {
		rows = append(rows, rs.Row())
	}
	if err := rs.Err(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return rows, nil
}

func (rs *RowStream) count() int {
	return len(rs.buf) - rs.head
}

// removeFirst pops the oldest buffered row and reports whether the producer
// should be told to read more (count below target).
func (rs *RowStream) removeFirst() (*Row, bool) {
	row := rs.buf[rs.head]
	rs.buf[rs.head] = nil
	rs.head++

	if rs.head == len(rs.buf) {
		rs.buf = rs.buf[:0]
		rs.head = 0
		rs.drainedSince = true
		if rs.target < bufferTargetMaximum {
			rs.target *= 2
		}
	}

	return row, rs.count() < rs.target
}

// waitConsumer blocks until the consumer condition fires or ctx is done.
func (rs *RowStream) waitConsumer(ctx context.Context) bool {
	stop := context.AfterFunc(ctx, func() {
		rs.mu.Lock()
		rs.consumer.Broadcast()
		rs.mu.Unlock()
	})
	defer stop()

	rs.consumer.Wait()
	return ctx.Err() == nil
}

// Producer side. These are called by the connection's reader goroutine.

// push appends one row. Rows arriving after cancellation are discarded.
func (rs *RowStream) push(row *Row) {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.cancelled || rs.done || rs.err != nil {
		return
	}

	rs.buf = append(rs.buf, row)
	if rs.count() >= rs.target {
		// A fill just completed; adapt the target.
		if !rs.drainedSince && rs.target > bufferTargetMinimum {
			rs.target /= 2
		}
		rs.drainedSince = false
	}
	rs.consumer.Signal()
}

// waitDemand blocks the producer until the consumer signals demand. It
// returns immediately when the stream no longer wants rows.
func (rs *RowStream) waitDemand() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	for rs.count() >= rs.target && !rs.cancelled && !rs.done && rs.err == nil {
		rs.producer.Wait()
	}
}

func (rs *RowStream) finish(tag CommandTag) {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	rs.done = true
	rs.commandTag = tag
	rs.consumer.Broadcast()
	rs.producer.Broadcast()
}

func (rs *RowStream) fail(err error) {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.done || rs.err != nil {
		return
	}
	rs.err = err
	rs.buf = nil
	rs.head = 0
	rs.consumer.Broadcast()
	rs.producer.Broadcast()
}

func (rs *RowStream) notice(n *Notice) {
	select {
	case rs.notices <- n:
	default:
		// Notice buffer full; drop rather than stall the connection.
	}
}

func (rs *RowStream) isCancelled() bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.cancelled
}

var (
	errColumnOutOfRange = &decodeBoundsError{"column index out of range"}
	errUnknownColumn    = &decodeBoundsError{"no column with that name"}
	errScanArity        = &decodeBoundsError{"wrong number of scan destinations"}
)

type decodeBoundsError struct{ msg string }

func (e *decodeBoundsError) Error() string { return e.msg }

func typeName(v interface{}) string {
	if v == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%T", v)
}
