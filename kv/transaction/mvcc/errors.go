package mvcc

import (
	"fmt"

	"github.com/optikv/optikv/kv/kvrpc"
)

// The errors in this file classify every way a prewrite can fail. Callers
// pattern-match on the concrete type to decide policy; none of these carry
// hidden causes, what you see is the whole error.

// ErrKeyLocked is returned when a key holds a lock from a different in-flight
// transaction. Per-key recoverable: the rest of the batch still gets a chance.
type ErrKeyLocked struct {
	Key  []byte
	Lock *Lock
}

func (err *ErrKeyLocked) Error() string {
	return fmt.Sprintf("key is locked, key: %q, primary: %q, startTS: %v", err.Key, err.Lock.Primary, err.Lock.Ts)
}

func (err *ErrKeyLocked) KeyError() *kvrpc.KeyError {
	return &kvrpc.KeyError{Locked: err.Lock.Info(err.Key)}
}

// ErrWriteConflict is returned when another transaction committed a newer
// version of the key. Recoverable by retrying with a new timestamp, unless the
// conflicting commit turns out to be this transaction's own prior attempt.
type ErrWriteConflict struct {
	StartTS          uint64
	ConflictTS       uint64
	ConflictCommitTS uint64
	Key              []byte
	Primary          []byte
}

func (err *ErrWriteConflict) Error() string {
	return fmt.Sprintf("write conflict at key %q, startTS: %v, conflictTS: %v, conflictCommitTS: %v",
		err.Key, err.StartTS, err.ConflictTS, err.ConflictCommitTS)
}

func (err *ErrWriteConflict) KeyError() *kvrpc.KeyError {
	return &kvrpc.KeyError{Conflict: &kvrpc.WriteConflict{
		StartTs:          err.StartTS,
		ConflictTs:       err.ConflictTS,
		ConflictCommitTs: err.ConflictCommitTS,
		Key:              err.Key,
		Primary:          err.Primary,
	}}
}

// ErrKeyAlreadyExists is returned for an insert or existence check against a key
// which already has a visible value.
type ErrKeyAlreadyExists struct {
	Key []byte
}

func (err *ErrKeyAlreadyExists) Error() string {
	return fmt.Sprintf("key already exists, key: %q", err.Key)
}

func (err *ErrKeyAlreadyExists) KeyError() *kvrpc.KeyError {
	return &kvrpc.KeyError{AlreadyExist: &kvrpc.AlreadyExist{Key: err.Key}}
}

// ErrAssertionFailed is returned when a mutation's declared existence
// precondition does not hold. It is deliberately low priority: a batch reports
// it only when nothing else went wrong.
type ErrAssertionFailed struct {
	StartTS          uint64
	Key              []byte
	Assertion        kvrpc.Assertion
	ExistingStartTS  uint64
	ExistingCommitTS uint64
}

func (err *ErrAssertionFailed) Error() string {
	return fmt.Sprintf("assertion failed, key: %q, assertion: %v, startTS: %v, existingStartTS: %v, existingCommitTS: %v",
		err.Key, err.Assertion, err.StartTS, err.ExistingStartTS, err.ExistingCommitTS)
}

func (err *ErrAssertionFailed) KeyError() *kvrpc.KeyError {
	return &kvrpc.KeyError{AssertionFailed: &kvrpc.AssertionFailed{
		StartTs:          err.StartTS,
		Key:              err.Key,
		Assertion:        err.Assertion,
		ExistingStartTs:  err.ExistingStartTS,
		ExistingCommitTs: err.ExistingCommitTS,
	}}
}

// ErrPessimisticLockNotFound and ErrCommitTsTooLarge exist so that every error a
// prewrite implementation can produce has a named kind. The optimistic flush
// path neither takes pessimistic locks nor defers commit timestamps, so seeing
// either of these there is an internal-consistency violation and the command
// must abort rather than produce incorrect state.

type ErrPessimisticLockNotFound struct {
	StartTS uint64
	Key     []byte
}

func (err *ErrPessimisticLockNotFound) Error() string {
	return fmt.Sprintf("pessimistic lock not found, key: %q, startTS: %v", err.Key, err.StartTS)
}

type ErrCommitTsTooLarge struct {
	StartTS  uint64
	CommitTS uint64
}

func (err *ErrCommitTsTooLarge) Error() string {
	return fmt.Sprintf("commit ts %v too large, startTS: %v", err.CommitTS, err.StartTS)
}
