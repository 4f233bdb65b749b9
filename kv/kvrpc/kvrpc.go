// Package kvrpc holds the request, response, and error detail types that cross the
// transport boundary. The transport itself (gRPC or otherwise) lives outside this
// module; a dispatcher deserializes a request into these types, invokes the server
// in-process, and serializes the per-key errors back to the client.
package kvrpc

import "fmt"

// Op is the kind of a mutation.
type Op int32

const (
	OpPut Op = iota
	OpDel
	OpLock
	// OpInsert is a put which asserts the key does not already exist.
	OpInsert
	// OpCheckNotExists carries no payload, it only asserts the key's absence.
	OpCheckNotExists
)

func (op Op) String() string {
	switch op {
	case OpPut:
		return "put"
	case OpDel:
		return "delete"
	case OpLock:
		return "lock"
	case OpInsert:
		return "insert"
	case OpCheckNotExists:
		return "check_not_exists"
	}
	return fmt.Sprintf("op(%d)", int32(op))
}

// Assertion is a caller-declared precondition on the existence of a key, checked
// during prewrite.
type Assertion int32

const (
	AssertionNone Assertion = iota
	AssertionExist
	AssertionNotExist
)

// AssertionLevel controls how eagerly assertions are checked.
type AssertionLevel int32

const (
	// AssertionLevelOff skips all assertion checks.
	AssertionLevelOff AssertionLevel = iota
	// AssertionLevelFast checks assertions only against data the prewrite has
	// already read, it never issues extra reads.
	AssertionLevelFast
	// AssertionLevelStrict always checks assertions, reading whatever it needs.
	AssertionLevelStrict
)

// Mutation is a single tagged operation on one key. Value is only meaningful for
// OpPut and OpInsert.
type Mutation struct {
	Op        Op
	Key       []byte
	Value     []byte
	Assertion Assertion
}

// Context carries per-request metadata shared by all commands.
type Context struct {
	// IsRetryRequest marks a request the client re-sent after an ambiguous
	// outcome such as a timeout.
	IsRetryRequest bool
	TxnSource      uint64
}

// ExtraOp asks a write command to do extra work on top of its own semantics.
type ExtraOp int32

const (
	ExtraOpNoop ExtraOp = iota
	// ExtraOpReadOldValue captures the value visible immediately before each
	// write, for change-data-capture consumers.
	ExtraOpReadOldValue
)

// LockInfo describes a lock for error reporting.
type LockInfo struct {
	PrimaryLock []byte
	LockVersion uint64
	Key         []byte
	LockTtl     uint64
}

// WriteConflict describes a conflict with an already-committed newer version.
type WriteConflict struct {
	StartTs    uint64
	ConflictTs uint64
	// ConflictCommitTs is the commit timestamp of the conflicting version.
	ConflictCommitTs uint64
	Key              []byte
	Primary          []byte
}

// AlreadyExist is returned for an insert or existence check on a present key.
type AlreadyExist struct {
	Key []byte
}

// AssertionFailed describes a mutation whose declared existence precondition did
// not hold.
type AssertionFailed struct {
	StartTs          uint64
	Key              []byte
	Assertion        Assertion
	ExistingStartTs  uint64
	ExistingCommitTs uint64
}

// KeyError is the per-key error detail sent back to clients. Exactly one field is
// set.
type KeyError struct {
	Locked          *LockInfo
	Conflict        *WriteConflict
	AlreadyExist    *AlreadyExist
	AssertionFailed *AssertionFailed
	// Retryable is set for errors the client can resolve by retrying the whole
	// transaction with a new timestamp.
	Retryable string
	// Abort is set for errors the client must not retry.
	Abort string
}

// FlushRequest stages a batch of mutations as locks under one start timestamp.
type FlushRequest struct {
	Context        Context
	StartVersion   uint64
	PrimaryKey     []byte
	Mutations      []*Mutation
	LockTtl        uint64
	AssertionLevel AssertionLevel
}

// FlushResponse carries one KeyError per failed key. Keys which staged
// successfully do not appear.
type FlushResponse struct {
	Errors []*KeyError
}

// GetRequest reads the value of a key as of a timestamp.
type GetRequest struct {
	Context Context
	Key     []byte
	Version uint64
}

type GetResponse struct {
	Error    *KeyError
	Value    []byte
	NotFound bool
}

// Raw API requests operate on the underlying storage directly, bypassing MVCC.

type RawGetRequest struct {
	Context Context
	Cf      string
	Key     []byte
}

type RawGetResponse struct {
	Error    string
	Value    []byte
	NotFound bool
}

type RawPutRequest struct {
	Context Context
	Cf      string
	Key     []byte
	Value   []byte
}

type RawPutResponse struct {
	Error string
}

type RawDeleteRequest struct {
	Context Context
	Cf      string
	Key     []byte
}

type RawDeleteResponse struct {
	Error string
}

type RawScanRequest struct {
	Context  Context
	Cf       string
	StartKey []byte
	Limit    uint32
}

type RawScanResponse struct {
	Error string
	Kvs   []*KvPair
}

type KvPair struct {
	Key   []byte
	Value []byte
}
