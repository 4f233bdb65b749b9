package mvcc

import (
	"encoding/hex"

	"github.com/pingcap/log"
	"go.uber.org/zap"

	"github.com/optikv/optikv/kv/kvrpc"
)

// TransactionProperties carries the per-transaction inputs of the prewrite
// action. One value is built per command and shared across its mutations.
type TransactionProperties struct {
	StartTS        uint64
	Primary        []byte
	LockTtl        uint64
	MinCommitTs    uint64
	AssertionLevel kvrpc.AssertionLevel
	NeedOldValue   bool
	IsRetryRequest bool
	TxnSource      uint64
}

// PessimisticAction tells prewrite what to expect about pessimistic locks on
// the key. The optimistic flush path always skips the check.
type PessimisticAction int

const (
	SkipPessimisticCheck PessimisticAction = iota
	// DoPessimisticCheck requires a pessimistic lock owned by this transaction
	// to already be on the key.
	DoPessimisticCheck
)

// OldValue is the value visible at a key immediately before this transaction's
// write, captured for change-data-capture consumers.
type OldValue struct {
	Value  []byte
	Exists bool
}

// OldValues collects captured old values for a whole command, keyed by the
// encoded (key, start ts).
type OldValues map[string]OldValueEntry

type OldValueEntry struct {
	OldValue
	Op kvrpc.Op
}

// InsertOldValue records old for key at startTs. A nil old means the prewrite
// did not resolve one and nothing is recorded.
func (ov OldValues) InsertOldValue(key []byte, startTs uint64, old *OldValue, op kvrpc.Op) {
	if old == nil {
		return
	}
	ov[string(EncodeKey(key, startTs))] = OldValueEntry{OldValue: *old, Op: op}
}

// Prewrite attempts to install a lock record for mut's key at props.StartTS and
// stage the mutation's value. On success the lock (and value, for puts) has been
// appended to txn and the returned old value is non-nil iff props.NeedOldValue.
// On failure the returned error is one of the classified kinds in errors.go;
// callers decide policy by matching on the concrete type.
func Prewrite(txn *MvccTxn, props *TransactionProperties, mut *kvrpc.Mutation, action PessimisticAction) (*OldValue, error) {
	key := mut.Key

	log.Debug("prewrite mutation",
		zap.Uint64("startTS", props.StartTS),
		zap.Stringer("op", mut.Op),
		zap.String("key", hex.EncodeToString(key)))

	// Check for write conflicts: a version committed at or after our start
	// timestamp means we lost the race.
	write, commitTs, err := txn.MostRecentWrite(key)
	if err != nil {
		return nil, err
	}
	if write != nil && commitTs >= props.StartTS {
		return nil, &ErrWriteConflict{
			StartTS:          props.StartTS,
			ConflictTS:       write.StartTS,
			ConflictCommitTS: commitTs,
			Key:              key,
			Primary:          props.Primary,
		}
	}

	// Check if key is locked. Note the key could be locked by this transaction
	// already if the current request is a stale retry.
	lock, err := txn.GetLock(key)
	if err != nil {
		return nil, err
	}
	if lock != nil {
		if lock.Ts != props.StartTS {
			return nil, &ErrKeyLocked{Key: key, Lock: lock}
		}
		// Locked by us in a prior attempt. The lock record must not be created
		// twice, so there is nothing left to stage.
		return nil, nil
	}
	if txn.hasStagedLock(key) {
		// An earlier mutation of this same batch already locked the key.
		return nil, nil
	}
	if action == DoPessimisticCheck {
		return nil, &ErrPessimisticLockNotFound{StartTS: props.StartTS, Key: key}
	}

	// Load the visible value when something below needs it: existence
	// constraints, strict assertions, or old-value capture.
	var val []byte
	valLoaded := false
	needsValue := props.NeedOldValue ||
		mut.Op == kvrpc.OpInsert || mut.Op == kvrpc.OpCheckNotExists ||
		(props.AssertionLevel == kvrpc.AssertionLevelStrict && mut.Assertion != kvrpc.AssertionNone)
	if needsValue {
		val, err = txn.GetValue(key)
		if err != nil {
			return nil, err
		}
		valLoaded = true
	}

	if (mut.Op == kvrpc.OpInsert || mut.Op == kvrpc.OpCheckNotExists) && val != nil {
		return nil, &ErrKeyAlreadyExists{Key: key}
	}

	if err := checkAssertion(props, mut, write, commitTs, val, valLoaded); err != nil {
		return nil, err
	}

	if mut.Op == kvrpc.OpCheckNotExists {
		// Existence checks carry no payload and leave no lock.
		return nil, nil
	}

	minCommitTs := txn.MinCommitTsFloor()
	if props.MinCommitTs > minCommitTs {
		minCommitTs = props.MinCommitTs
	}
	txn.PutLock(key, &Lock{
		Primary:     props.Primary,
		Ts:          props.StartTS,
		Ttl:         props.LockTtl,
		Kind:        WriteKindOfOp(mut.Op),
		MinCommitTs: minCommitTs,
	})
	switch mut.Op {
	case kvrpc.OpPut, kvrpc.OpInsert:
		txn.PutValue(key, mut.Value)
	case kvrpc.OpDel:
		txn.DeleteValue(key)
	case kvrpc.OpLock:
	}

	if props.NeedOldValue {
		return &OldValue{Value: val, Exists: val != nil}, nil
	}
	return nil, nil
}

// checkAssertion verifies mut's declared existence precondition. Fast level
// only uses the most recent write record the conflict check already read; when
// that record cannot settle existence (a rollback or lock record on top), the
// check is skipped rather than issuing more reads.
func checkAssertion(props *TransactionProperties, mut *kvrpc.Mutation, write *Write, commitTs uint64, val []byte, valLoaded bool) error {
	if props.AssertionLevel == kvrpc.AssertionLevelOff || mut.Assertion == kvrpc.AssertionNone {
		return nil
	}

	var exists, known bool
	switch {
	case valLoaded:
		exists, known = val != nil, true
	case write == nil:
		exists, known = false, true
	case write.Kind == WriteKindPut:
		exists, known = true, true
	case write.Kind == WriteKindDelete:
		exists, known = false, true
	}
	if !known {
		return nil
	}

	failed := (mut.Assertion == kvrpc.AssertionExist && !exists) ||
		(mut.Assertion == kvrpc.AssertionNotExist && exists)
	if !failed {
		return nil
	}

	assertionErr := &ErrAssertionFailed{
		StartTS:   props.StartTS,
		Key:       mut.Key,
		Assertion: mut.Assertion,
	}
	if write != nil {
		assertionErr.ExistingStartTS = write.StartTS
		assertionErr.ExistingCommitTS = commitTs
	}
	return assertionErr
}
