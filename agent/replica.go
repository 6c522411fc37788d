package main

import (
	"encoding/json"
	"fmt"
	"sync"

	bolt "go.etcd.io/bbolt"

	"github.com/bannushaxddd/SYNCOUT/server/ot"
	"github.com/bannushaxddd/SYNCOUT/server/wire"
)

var replicaBucket = []byte("replicas")

// checkpoint is the persisted replica state for one session.
type checkpoint struct {
	Code     string `json:"code"`
	Revision int    `json:"revision"`
}

// Replica mirrors one session's buffer locally. Every canonical operation
// received from the server is applied in revision order and checkpointed to
// bbolt, so a restarted agent can still show the last-known text.
type Replica struct {
	mu        sync.Mutex
	sessionID string
	code      string
	revision  int
	db        *bolt.DB
}

// OpenReplica opens (or creates) the checkpoint database at path and loads
// any previous state for sessionID.
func OpenReplica(path, sessionID string) (*Replica, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, err
	}
	r := &Replica{sessionID: sessionID, db: db}
	err = db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(replicaBucket)
		if err != nil {
			return err
		}
		raw := b.Get([]byte(sessionID))
		if raw == nil {
			return nil
		}
		var cp checkpoint
		if err := json.Unmarshal(raw, &cp); err != nil {
			// Unreadable checkpoint: start clean rather than fail.
			return nil
		}
		r.code, r.revision = cp.Code, cp.Revision
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return r, nil
}

// Close releases the database.
func (r *Replica) Close() error { return r.db.Close() }

// State returns the current buffer and revision.
func (r *Replica) State() (string, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.code, r.revision
}

// Reset replaces the replica from a fresh snapshot (the init frame).
func (r *Replica) Reset(code string, revision int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.code, r.revision = code, revision
	return r.persist()
}

// ApplyOperation applies one canonical operation. Frames must arrive in
// revision order; a gap means this replica missed traffic and needs a fresh
// snapshot, which the caller gets by reconnecting.
func (r *Replica) ApplyOperation(m wire.OperationOut) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m.Revision != r.revision+1 {
		return fmt.Errorf("revision gap: have %d, got %d", r.revision, m.Revision)
	}
	var op ot.Op
	switch m.OpType {
	case ot.KindInsert:
		op = ot.Insert{Pos: m.Position, Text: m.Content}
	case ot.KindDelete:
		op = ot.Delete{Pos: m.Position, Len: m.Length}
	case ot.KindReplace:
		op = ot.Replace{Text: m.Content}
	default:
		return fmt.Errorf("unknown op_type %q", m.OpType)
	}
	next, err := op.Apply(r.code)
	if err != nil {
		return err
	}
	r.code, r.revision = next, m.Revision
	return r.persist()
}

// persist writes the checkpoint. Caller holds mu.
func (r *Replica) persist() error {
	raw, err := json.Marshal(checkpoint{Code: r.code, Revision: r.revision})
	if err != nil {
		return err
	}
	return r.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(replicaBucket).Put([]byte(r.sessionID), raw)
	})
}
