// Package oplog implements the per-tenant append-only operation log
// described in spec §4.1: dense monotonic sequence numbers, fsync-before-ack
// durability, range reads, and head truncation bounded by a caller-supplied
// floor.
//
// On disk, a tenant's oplog is a single append-only segment file of
// length-prefixed, CRC-checked JSON records (see §6.1). A torn write at the
// tail — the only kind of corruption a crash between writes can produce,
// since every acknowledged append is fsynced first — is treated as
// end-of-log by the reader rather than an error.
package oplog

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/flapjack/flapjack/internal/model"
)

const segmentFileName = "oplog.segment"

// Oplog is a single tenant's durable operation log.
type Oplog struct {
	mu       sync.Mutex
	path     string
	file     *os.File
	nextSeq  uint64
	entries  []model.OpLogEntry // in-memory index; small enough to keep resident
	nodeID   string
	tenantID string
}

// Open opens (creating if absent) the oplog segment file under dir for the
// given tenant, replaying any existing records to recover nextSeq and the
// in-memory index.
func Open(dir, tenantID, nodeID string) (*Oplog, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("oplog: mkdir %s: %w", dir, err)
	}
	path := filepath.Join(dir, segmentFileName)
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("oplog: open %s: %w", path, err)
	}
	ol := &Oplog{path: path, file: f, nodeID: nodeID, tenantID: tenantID}
	if err := ol.loadLocked(); err != nil {
		_ = f.Close()
		return nil, err
	}
	return ol, nil
}

// loadLocked replays the full segment file, truncating a torn tail record
// rather than failing. Caller must hold no lock (called only from Open).
func (o *Oplog) loadLocked() error {
	if _, err := o.file.Seek(0, io.SeekStart); err != nil {
		return err
	}
	r := bufio.NewReader(o.file)
	var offset int64
	for {
		entry, n, err := readRecord(r)
		if err == io.EOF {
			break
		}
		if err != nil {
			// Torn tail: truncate to the last good offset and stop.
			if truncErr := o.file.Truncate(offset); truncErr != nil {
				return fmt.Errorf("oplog: truncate torn tail: %w", truncErr)
			}
			break
		}
		o.entries = append(o.entries, entry)
		if entry.Seq+1 > o.nextSeq {
			o.nextSeq = entry.Seq + 1
		}
		offset += int64(n)
	}
	if _, err := o.file.Seek(0, io.SeekEnd); err != nil {
		return err
	}
	return nil
}

// record wire format: 4-byte big-endian length | JSON body | 4-byte CRC-32
// (IEEE) of the JSON body.
func readRecord(r *bufio.Reader) (model.OpLogEntry, int, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return model.OpLogEntry{}, 0, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return model.OpLogEntry{}, 0, io.ErrUnexpectedEOF
	}
	var crcBuf [4]byte
	if _, err := io.ReadFull(r, crcBuf[:]); err != nil {
		return model.OpLogEntry{}, 0, io.ErrUnexpectedEOF
	}
	wantCRC := binary.BigEndian.Uint32(crcBuf[:])
	if crc32.ChecksumIEEE(body) != wantCRC {
		return model.OpLogEntry{}, 0, fmt.Errorf("oplog: crc mismatch")
	}
	var entry model.OpLogEntry
	if err := json.Unmarshal(body, &entry); err != nil {
		return model.OpLogEntry{}, 0, fmt.Errorf("oplog: corrupt record: %w", err)
	}
	return entry, 4 + len(body) + 4, nil
}

func encodeRecord(e model.OpLogEntry) ([]byte, error) {
	body, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, 4+len(body)+4)
	binary.BigEndian.PutUint32(buf[0:4], uint32(len(body)))
	copy(buf[4:4+len(body)], body)
	binary.BigEndian.PutUint32(buf[4+len(body):], crc32.ChecksumIEEE(body))
	return buf, nil
}

// Append assigns the next seq, stamps the given tsMs and origin node ID,
// persists (fsync) and returns the assigned seq. Taking ts and node from the
// caller lets the replication apply path record a peer's original tuple
// instead of this node's own identity/clock.
func (o *Oplog) Append(opType model.OpType, payload map[string]interface{}, tsMs uint64, nodeID string) (uint64, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	entry := model.OpLogEntry{
		Seq:         o.nextSeq,
		TimestampMs: tsMs,
		NodeID:      nodeID,
		TenantID:    o.tenantID,
		OpType:      opType,
		Payload:     payload,
	}
	if err := o.appendLocked(entry); err != nil {
		return 0, err
	}
	return entry.Seq, nil
}

// AppendBatch atomically appends a list of (opType, payload, ts, node)
// entries; either all become visible or none do.
type PendingOp struct {
	OpType  model.OpType
	Payload map[string]interface{}
	TsMs    uint64
	NodeID  string
}

func (o *Oplog) AppendBatch(ops []PendingOp) ([]uint64, error) {
	if len(ops) == 0 {
		return nil, nil
	}
	o.mu.Lock()
	defer o.mu.Unlock()

	startSeq := o.nextSeq
	buf := make([]byte, 0, 256*len(ops))
	entries := make([]model.OpLogEntry, 0, len(ops))
	for i, op := range ops {
		entry := model.OpLogEntry{
			Seq:         startSeq + uint64(i),
			TimestampMs: op.TsMs,
			NodeID:      op.NodeID,
			TenantID:    o.tenantID,
			OpType:      op.OpType,
			Payload:     op.Payload,
		}
		rec, err := encodeRecord(entry)
		if err != nil {
			return nil, fmt.Errorf("oplog: encode batch entry %d: %w", i, err)
		}
		buf = append(buf, rec...)
		entries = append(entries, entry)
	}
	if _, err := o.file.Write(buf); err != nil {
		return nil, fmt.Errorf("oplog: write batch: %w", err)
	}
	if err := o.file.Sync(); err != nil {
		return nil, fmt.Errorf("oplog: fsync batch: %w", err)
	}
	o.entries = append(o.entries, entries...)
	o.nextSeq = startSeq + uint64(len(ops))

	seqs := make([]uint64, len(entries))
	for i, e := range entries {
		seqs[i] = e.Seq
	}
	return seqs, nil
}

func (o *Oplog) appendLocked(entry model.OpLogEntry) error {
	rec, err := encodeRecord(entry)
	if err != nil {
		return fmt.Errorf("oplog: encode: %w", err)
	}
	if _, err := o.file.Write(rec); err != nil {
		return fmt.Errorf("oplog: write: %w", err)
	}
	if err := o.file.Sync(); err != nil {
		return fmt.Errorf("oplog: fsync: %w", err)
	}
	o.entries = append(o.entries, entry)
	o.nextSeq = entry.Seq + 1
	return nil
}

// ReadSince returns entries with seq > since, in ascending order.
func (o *Oplog) ReadSince(since uint64) []model.OpLogEntry {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]model.OpLogEntry, 0)
	for _, e := range o.entries {
		if e.Seq > since {
			out = append(out, e)
		}
	}
	return out
}

// ReadAll returns every retained entry, in ascending order. Used by
// recovery's LWW rebuild pass, which must scan even already-committed
// entries (spec §4.4 step 2).
func (o *Oplog) ReadAll() []model.OpLogEntry {
	return o.ReadSince(0)
}

// CurrentSeq returns the seq of the most recently assigned entry, or 0 when
// nothing has been appended yet.
func (o *Oplog) CurrentSeq() uint64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.nextSeq == 0 {
		return 0
	}
	return o.nextSeq - 1
}

// TruncateBefore drops retained entries strictly older than floor. The
// caller enforces the retention floor never exceeds committed-seq or the
// slowest peer's catch-up watermark (spec §4.1); this method applies
// whatever floor it is given without re-deriving it.
//
// Truncation here only trims the in-memory index and does not currently
// compact the backing file; rewriting the segment is deferred to a future
// compaction pass since no caller yet exercises long-lived retention
// pressure in this single-node-plus-peers deployment shape.
func (o *Oplog) TruncateBefore(floor uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	kept := o.entries[:0:0]
	for _, e := range o.entries {
		if e.Seq >= floor {
			kept = append(kept, e)
		}
	}
	o.entries = kept
}

// Close releases the underlying file handle.
func (o *Oplog) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.file.Close()
}
