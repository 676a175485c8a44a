package ledger

import (
	"bufio"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/meridianlabs/ledgerd/foundation/blockchain/merkle"
	"github.com/meridianlabs/ledgerd/foundation/blockchain/transaction"
)

// Record is what gets written to the persisted chain log, one per line, in
// index order. It carries the same content as Block but in a form that
// round-trips through JSON without needing the merkle tree's internal
// pointers.
type Record struct {
	Hash   string               `json:"hash"`
	Header BlockHeader          `json:"header"`
	Trans  []transaction.Transaction `json:"transactions"`
}

// ToRecord converts a Block to its wire/persisted Record form, for peers
// exchanging CHAIN responses as well as for the log serializers.
func ToRecord(b Block) Record {
	return toRecord(b)
}

// FromRecord rebuilds a Block (including its merkle tree) from a Record
// received over the wire or replayed from the log.
func FromRecord(r Record) (Block, error) {
	return fromRecord(r)
}

func toRecord(b Block) Record {
	return Record{
		Hash:   b.Hash(),
		Header: b.Header,
		Trans:  b.Transactions(),
	}
}

func fromRecord(r Record) (Block, error) {
	if r.Header.Index == 0 {
		return Block{Header: r.Header}, nil
	}

	tree, err := merkle.NewTree(r.Trans)
	if err != nil {
		return Block{}, err
	}

	return Block{Header: r.Header, Trans: tree}, nil
}

// Serializer is the persistence boundary for the chain log. The mempool,
// validator registry, and peer registry are never routed through it; per
// the persisted-state layout, only the chain itself is durable, everything
// else is either recoverable from peers or rebuilt by replaying it.
type Serializer interface {
	Append(rec Record) error
	ForEach() (Iterator, error)
	Reset() error
	Close() error
}

// Iterator walks a persisted chain log in index order.
type Iterator interface {
	Next() (Record, error)
	Done() bool
}

// =============================================================================

// MemorySerializer keeps the log only in process memory. It exists for
// tests and for running a node with persistence disabled.
type MemorySerializer struct {
	mu      sync.Mutex
	records []Record
}

// NewMemorySerializer constructs an in-memory Serializer.
func NewMemorySerializer() *MemorySerializer {
	return &MemorySerializer{}
}

// Append adds rec to the in-memory log.
func (m *MemorySerializer) Append(rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.records = append(m.records, rec)
	return nil
}

// ForEach returns an iterator over a snapshot of the current log.
func (m *MemorySerializer) ForEach() (Iterator, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := make([]Record, len(m.records))
	copy(snapshot, m.records)

	return &sliceIterator{records: snapshot}, nil
}

// Reset clears the in-memory log.
func (m *MemorySerializer) Reset() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.records = nil
	return nil
}

// Close is a no-op for the in-memory serializer.
func (m *MemorySerializer) Close() error {
	return nil
}

type sliceIterator struct {
	records []Record
	pos     int
}

func (it *sliceIterator) Next() (Record, error) {
	if it.Done() {
		return Record{}, errors.New("end of chain")
	}
	rec := it.records[it.pos]
	it.pos++
	return rec, nil
}

func (it *sliceIterator) Done() bool {
	return it.pos >= len(it.records)
}

// =============================================================================

// DiskSerializer persists the chain as a single append-only file of
// newline-delimited JSON records, one per block, in index order.
type DiskSerializer struct {
	mu   sync.Mutex
	path string
	file *os.File
}

// NewDiskSerializer opens (creating if necessary) the log file at path.
func NewDiskSerializer(path string) (*DiskSerializer, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}

	return &DiskSerializer{path: path, file: f}, nil
}

// Append writes rec as one JSON line and flushes it before returning, so a
// crash after Append returns never loses the record.
func (d *DiskSerializer) Append(rec Record) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	if _, err := d.file.Write(data); err != nil {
		return err
	}

	return d.file.Sync()
}

// ForEach opens a fresh read handle over the log file and returns an
// iterator over it, independent of the writer's append position.
func (d *DiskSerializer) ForEach() (Iterator, error) {
	f, err := os.Open(d.path)
	if err != nil {
		if os.IsNotExist(err) {
			return &sliceIterator{}, nil
		}
		return nil, err
	}

	return &diskIterator{file: f, scanner: bufio.NewScanner(f)}, nil
}

// Reset truncates the log file back to empty.
func (d *DiskSerializer) Reset() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.file.Truncate(0); err != nil {
		return err
	}
	_, err := d.file.Seek(0, io.SeekStart)
	return err
}

// Close closes the underlying file handle.
func (d *DiskSerializer) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.file.Close()
}

type diskIterator struct {
	file    *os.File
	scanner *bufio.Scanner
	done    bool
}

func (it *diskIterator) Next() (Record, error) {
	if !it.scanner.Scan() {
		it.done = true
		it.file.Close()
		if err := it.scanner.Err(); err != nil {
			return Record{}, err
		}
		return Record{}, errors.New("end of chain")
	}

	var rec Record
	if err := json.Unmarshal(it.scanner.Bytes(), &rec); err != nil {
		return Record{}, err
	}

	return rec, nil
}

func (it *diskIterator) Done() bool {
	return it.done
}
