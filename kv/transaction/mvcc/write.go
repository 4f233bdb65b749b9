package mvcc

import (
	"encoding/binary"
	"fmt"

	"github.com/optikv/optikv/kv/kvrpc"
)

// Write is a representation of a committed write to backing storage.
// A serialized version is stored in the "write" CF of our engine when a write is committed. That allows readers to find
// the status of a key at a given timestamp.
type Write struct {
	StartTS uint64
	Kind    WriteKind
}

func (wr *Write) ToBytes() []byte {
	buf := append([]byte{byte(wr.Kind)}, 0, 0, 0, 0, 0, 0, 0, 0)
	binary.BigEndian.PutUint64(buf[1:], wr.StartTS)
	return buf
}

func ParseWrite(value []byte) (*Write, error) {
	if value == nil {
		return nil, nil
	}
	if len(value) != 9 {
		return nil, fmt.Errorf("mvcc: parsing write, value is incorrect length, expected 9, found %d", len(value))
	}
	kind := value[0]
	startTs := binary.BigEndian.Uint64(value[1:])

	return &Write{startTs, WriteKind(kind)}, nil
}

type WriteKind int

const (
	WriteKindPut      WriteKind = 1
	WriteKindDelete   WriteKind = 2
	WriteKindRollback WriteKind = 3
	// WriteKindLock records a lock-only mutation; it changes no value but still
	// leaves a commit record.
	WriteKindLock WriteKind = 4
)

// WriteKindOfOp returns the write kind a mutation of the given op will commit
// as. Ops which never write (existence checks) have no write kind.
func WriteKindOfOp(op kvrpc.Op) WriteKind {
	switch op {
	case kvrpc.OpPut, kvrpc.OpInsert:
		return WriteKindPut
	case kvrpc.OpDel:
		return WriteKindDelete
	case kvrpc.OpLock:
		return WriteKindLock
	case kvrpc.OpCheckNotExists:
		panic("check_not_exists mutations never write")
	default:
		panic(fmt.Sprintf("unsupported op %v", op))
	}
}
