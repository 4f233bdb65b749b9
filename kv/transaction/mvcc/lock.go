package mvcc

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/optikv/optikv/kv/kvrpc"
	"github.com/optikv/optikv/kv/storage"
)

const TsMax uint64 = ^uint64(0)

type Lock struct {
	Primary []byte
	Ts      uint64
	Ttl     uint64
	Kind    WriteKind
	// MinCommitTs is a floor for the commit timestamp of this lock's
	// transaction. Committing below it could hide the write from a read which
	// has already been served.
	MinCommitTs uint64
}

type KlPair struct {
	Key  []byte
	Lock *Lock
}

// Info creates a LockInfo object from a Lock object for key.
func (lock *Lock) Info(key []byte) *kvrpc.LockInfo {
	return &kvrpc.LockInfo{
		Key:         key,
		LockVersion: lock.Ts,
		PrimaryLock: lock.Primary,
		LockTtl:     lock.Ttl,
	}
}

func (lock *Lock) ToBytes() []byte {
	buf := append(lock.Primary, byte(lock.Kind))
	buf = append(buf, make([]byte, 24)...)
	binary.BigEndian.PutUint64(buf[len(lock.Primary)+1:], lock.Ts)
	binary.BigEndian.PutUint64(buf[len(lock.Primary)+9:], lock.Ttl)
	binary.BigEndian.PutUint64(buf[len(lock.Primary)+17:], lock.MinCommitTs)
	return buf
}

// ParseLock attempts to parse a byte string into a Lock object.
func ParseLock(input []byte) (*Lock, error) {
	if len(input) <= 24 {
		return nil, fmt.Errorf("mvcc: error parsing lock, not enough input, found %d bytes", len(input))
	}

	primaryLen := len(input) - 25
	primary := input[:primaryLen]
	kind := WriteKind(input[primaryLen])
	ts := binary.BigEndian.Uint64(input[primaryLen+1:])
	ttl := binary.BigEndian.Uint64(input[primaryLen+9:])
	minCommitTs := binary.BigEndian.Uint64(input[primaryLen+17:])

	return &Lock{Primary: primary, Ts: ts, Ttl: ttl, Kind: kind, MinCommitTs: minCommitTs}, nil
}

// IsLockedFor checks if lock locks key at txnStartTs.
func (lock *Lock) IsLockedFor(key []byte, txnStartTs uint64) bool {
	if lock == nil {
		return false
	}
	if txnStartTs == TsMax && !bytes.Equal(key, lock.Primary) {
		return false
	}
	return lock.Ts <= txnStartTs
}

// AllLocksForTxn returns all locks held by the reader's transaction.
func AllLocksForTxn(txn *RoTxn) ([]KlPair, error) {
	iter := txn.Reader.IterCF(storage.CfLock)
	defer iter.Close()
	var result []KlPair
	for ; iter.Valid(); iter.Next() {
		item := iter.Item()
		val, err := item.Value()
		if err != nil {
			return nil, err
		}
		lock, err := ParseLock(val)
		if err != nil {
			return nil, err
		}
		if lock.Ts == txn.StartTS {
			result = append(result, KlPair{item.Key(), lock})
		}
	}
	return result, nil
}
