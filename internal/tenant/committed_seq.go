package tenant

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// readCommittedSeq reads the committed_seq sidecar (spec §6.1), returning
// 0 if the file does not yet exist (a never-committed tenant).
func readCommittedSeq(tenantRoot string) (uint64, error) {
	data, err := os.ReadFile(committedSeqPath(tenantRoot))
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("tenant: read committed_seq: %w", err)
	}
	seq, err := strconv.ParseUint(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("tenant: parse committed_seq: %w", err)
	}
	return seq, nil
}

// writeCommittedSeq persists the committed_seq sidecar atomically via a
// temp-file rename, written after every successful lexical commit.
func writeCommittedSeq(tenantRoot string, seq uint64) error {
	path := committedSeqPath(tenantRoot)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(strconv.FormatUint(seq, 10)), 0o644); err != nil {
		return fmt.Errorf("tenant: write committed_seq: %w", err)
	}
	return os.Rename(tmp, path)
}
