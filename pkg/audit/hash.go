package audit

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"github.com/zeebo/blake3"
)

// encMode uses Core Deterministic Encoding (RFC 8949 §4.2) so the same
// entry always produces the same bytes, whichever backend reloaded it.
var encMode cbor.EncMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("audit: CBOR encoder initialization failed: " + err.Error())
	}
}

// hashedFields is the canonical form covered by an entry's hash. Seq is
// assigned by the backend on insert and is not part of it.
type hashedFields struct {
	ID        string `cbor:"id"`
	TaskID    string `cbor:"task_id"`
	TaskTitle string `cbor:"task_title"`
	UserID    string `cbor:"user_id"`
	Action    string `cbor:"action"`
	Details   string `cbor:"details"`
	Timestamp int64  `cbor:"ts"` // unix micros
}

// prepare fills in the id and timestamp of a new entry.
func prepare(e *Entry, now time.Time) error {
	if !e.Action.Valid() {
		return fmt.Errorf("invalid audit action %q", e.Action)
	}
	if e.TaskID == "" {
		return fmt.Errorf("audit entry: task id is required")
	}
	e.ID = uuid.Must(uuid.NewV7()).String()
	e.Timestamp = now.UTC().Truncate(time.Microsecond)
	return nil
}

// seal links e to prevHash and computes its hash.
func seal(e *Entry, prevHash string) error {
	h, err := computeHash(prevHash, e)
	if err != nil {
		return err
	}
	e.PrevHash = prevHash
	e.Hash = h
	return nil
}

// computeHash returns hex(BLAKE3(prevHash || 0x00 || cbor(fields))).
func computeHash(prevHash string, e *Entry) (string, error) {
	data, err := encMode.Marshal(hashedFields{
		ID:        e.ID,
		TaskID:    e.TaskID,
		TaskTitle: e.TaskTitle,
		UserID:    e.UserID,
		Action:    string(e.Action),
		Details:   e.Details,
		Timestamp: e.Timestamp.UnixMicro(),
	})
	if err != nil {
		return "", fmt.Errorf("encode audit entry %s: %w", e.ID, err)
	}
	h := blake3.New()
	h.Write([]byte(prevHash))
	h.Write([]byte{0})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// verify walks entries in insertion order and checks every link.
func verify(entries []Entry) error {
	prevHash := ""
	for i := range entries {
		e := &entries[i]
		if e.PrevHash != prevHash {
			return fmt.Errorf("entry %d (%s): prev_hash mismatch: got %s, want %s", i, e.ID, e.PrevHash, prevHash)
		}
		want, err := computeHash(prevHash, e)
		if err != nil {
			return err
		}
		if e.Hash != want {
			return fmt.Errorf("entry %d (%s): hash mismatch: got %s, want %s", i, e.ID, e.Hash, want)
		}
		prevHash = e.Hash
	}
	return nil
}
