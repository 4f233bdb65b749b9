package mvcc

import (
	"bytes"
	"encoding/binary"

	"github.com/optikv/optikv/kv/kvrpc"
	"github.com/optikv/optikv/kv/storage"
	"github.com/optikv/optikv/kv/transaction/concurrency"
	"github.com/optikv/optikv/kv/util/codec"
)

// RoTxn is a read-only view of committed and locked versions as of StartTS. It
// lowers the concepts of timestamps, writes, and locks into plain keys and
// values.
type RoTxn struct {
	Reader  storage.StorageReader
	StartTS uint64
}

// MvccTxn groups together the writes staged by a single command. It permits
// reading from a snapshot and accumulates modifications in a buffer for atomic
// hand-off to the apply layer.
type MvccTxn struct {
	RoTxn
	writes   []storage.Modify
	newLocks []kvrpc.LockInfo
	// guards are commit-time key guards. No command in this module creates
	// them; the scheduler asserts the slice is empty at hand-off.
	guards [][]byte
	cm     *concurrency.Manager
	// lockedKeys tracks which keys this transaction has already staged a lock
	// for, so one invocation never creates two lock records for a key.
	lockedKeys map[string]struct{}
}

func NewTxn(reader storage.StorageReader, startTs uint64, cm *concurrency.Manager) MvccTxn {
	if cm != nil {
		cm.UpdateMaxTs(startTs)
	}
	return MvccTxn{
		RoTxn: RoTxn{Reader: reader, StartTS: startTs},
		cm:    cm,
	}
}

// MinCommitTsFloor returns the lowest commit timestamp this transaction may
// later use without committing behind a timestamp some reader has already
// observed.
func (txn *MvccTxn) MinCommitTsFloor() uint64 {
	if txn.cm == nil {
		return txn.StartTS + 1
	}
	floor := txn.cm.MaxTs() + 1
	if floor <= txn.StartTS {
		floor = txn.StartTS + 1
	}
	return floor
}

// Writes returns all changes added to this transaction.
func (txn *MvccTxn) Writes() []storage.Modify {
	return txn.writes
}

// NewLocks returns the lock records created by this transaction, in creation
// order.
func (txn *MvccTxn) NewLocks() []kvrpc.LockInfo {
	return txn.newLocks
}

// TakeGuards hands over any commit-time guards and clears them from the
// transaction.
func (txn *MvccTxn) TakeGuards() [][]byte {
	guards := txn.guards
	txn.guards = nil
	return guards
}

// Clear discards everything accumulated so far. Used when a retry is confirmed
// to have already committed: the previously-established outcome stands and
// nothing from this attempt may reach storage.
func (txn *MvccTxn) Clear() {
	txn.writes = nil
	txn.newLocks = nil
	txn.lockedKeys = nil
}

func (txn *MvccTxn) hasStagedLock(key []byte) bool {
	_, ok := txn.lockedKeys[string(key)]
	return ok
}

// MostRecentWrite finds the most recent write with the given key. It returns a Write from the DB and that
// write's commit timestamp, or an error.
func (txn *RoTxn) MostRecentWrite(key []byte) (*Write, uint64, error) {
	return txn.mostRecentWriteBefore(key, TsMax)
}

// mostRecentWriteBefore finds the write with the given key and the most recent commit timestamp before or equal to ts.
// It returns a Write from the DB and that write's commit timestamp, or an error.
// Postcondition: the returned ts is <= the ts arg.
func (txn *RoTxn) mostRecentWriteBefore(key []byte, ts uint64) (*Write, uint64, error) {
	iter := txn.Reader.IterCF(storage.CfWrite)
	defer iter.Close()
	iter.Seek(EncodeKey(key, ts))
	if !iter.Valid() {
		return nil, 0, nil
	}
	item := iter.Item()
	if !bytes.Equal(DecodeUserKey(item.Key()), key) {
		return nil, 0, nil
	}
	commitTs := decodeTimestamp(item.Key())
	value, err := item.Value()
	if err != nil {
		return nil, 0, err
	}
	write, err := ParseWrite(value)
	if err != nil {
		return nil, 0, err
	}

	return write, commitTs, nil
}

// CurrentWrite searches for a write with this transaction's start timestamp. It returns a Write from the DB and that
// write's commit timestamp, or an error. This is the commit record lookup used to
// recognize a retried request whose earlier attempt already committed.
func (txn *RoTxn) CurrentWrite(key []byte) (*Write, uint64, error) {
	seekTs := TsMax
	for {
		write, commitTs, err := txn.mostRecentWriteBefore(key, seekTs)
		if err != nil {
			return nil, 0, err
		}
		if write == nil {
			return nil, 0, nil
		}
		if write.StartTS == txn.StartTS {
			return write, commitTs, nil
		}
		if commitTs <= txn.StartTS {
			return nil, 0, nil
		}
		seekTs = commitTs - 1
	}
}

// GetValue finds the value for key, valid at the start timestamp of this transaction.
// I.e., the most recent value committed before the start of this transaction.
func (txn *RoTxn) GetValue(key []byte) ([]byte, error) {
	iter := txn.Reader.IterCF(storage.CfWrite)
	defer iter.Close()
	for iter.Seek(EncodeKey(key, txn.StartTS)); iter.Valid(); iter.Next() {
		item := iter.Item()
		// If the user key part of the combined key has changed, then we've got to the next key without finding a put write.
		if !bytes.Equal(DecodeUserKey(item.Key()), key) {
			return nil, nil
		}
		value, err := item.Value()
		if err != nil {
			return nil, err
		}
		write, err := ParseWrite(value)
		if err != nil {
			return nil, err
		}
		switch write.Kind {
		case WriteKindPut:
			return txn.getValue(key, write.StartTS)
		case WriteKindDelete:
			return nil, nil
		case WriteKindRollback, WriteKindLock:
		}
	}

	// Iterated to the end of the DB.
	return nil, nil
}

// GetLock returns a lock if key is locked. It will return (nil, nil) if there is no lock on key, and (nil, err)
// if an error occurs during lookup.
func (txn *RoTxn) GetLock(key []byte) (*Lock, error) {
	bytes, err := txn.Reader.GetCF(storage.CfLock, key)
	if err != nil {
		return nil, err
	}
	if bytes == nil {
		return nil, nil
	}

	lock, err := ParseLock(bytes)
	if err != nil {
		return nil, err
	}

	return lock, nil
}

// getValue gets the value at precisely the given key and ts, without searching.
func (txn *RoTxn) getValue(key []byte, ts uint64) ([]byte, error) {
	return txn.Reader.GetCF(storage.CfDefault, EncodeKey(key, ts))
}

// PutWrite records write at key and ts.
func (txn *MvccTxn) PutWrite(key []byte, ts uint64, write *Write) {
	txn.writes = append(txn.writes, storage.Modify{
		Data: storage.Put{
			Key:   EncodeKey(key, ts),
			Value: write.ToBytes(),
			Cf:    storage.CfWrite,
		},
	})
}

// PutLock adds a key/lock to this transaction.
func (txn *MvccTxn) PutLock(key []byte, lock *Lock) {
	txn.writes = append(txn.writes, storage.Modify{
		Data: storage.Put{
			Key:   key,
			Value: lock.ToBytes(),
			Cf:    storage.CfLock,
		},
	})
	txn.newLocks = append(txn.newLocks, *lock.Info(key))
	if txn.lockedKeys == nil {
		txn.lockedKeys = make(map[string]struct{})
	}
	txn.lockedKeys[string(key)] = struct{}{}
}

// DeleteLock adds a delete lock to this transaction.
func (txn *MvccTxn) DeleteLock(key []byte) {
	txn.writes = append(txn.writes, storage.Modify{
		Data: storage.Delete{
			Key: key,
			Cf:  storage.CfLock,
		},
	})
}

// PutValue adds a key/value write to this transaction.
func (txn *MvccTxn) PutValue(key []byte, value []byte) {
	txn.writes = append(txn.writes, storage.Modify{
		Data: storage.Put{
			Key:   EncodeKey(key, txn.StartTS),
			Value: value,
			Cf:    storage.CfDefault,
		},
	})
}

// DeleteValue removes a key/value pair in this transaction.
func (txn *MvccTxn) DeleteValue(key []byte) {
	txn.writes = append(txn.writes, storage.Modify{
		Data: storage.Delete{
			Key: EncodeKey(key, txn.StartTS),
			Cf:  storage.CfDefault,
		},
	})
}

// EncodeKey encodes a user key and appends an encoded timestamp to a key. Keys and timestamps are encoded so that
// timestamped keys are sorted first by key (ascending), then by timestamp (descending). The encoding is based on
// https://github.com/facebook/mysql-5.6/wiki/MyRocks-record-format#memcomparable-format.
func EncodeKey(key []byte, ts uint64) []byte {
	return codec.AppendTs(codec.EncodeBytes(key), ts)
}

// DecodeUserKey takes a key + timestamp and returns the key part.
func DecodeUserKey(key []byte) []byte {
	_, userKey, err := codec.DecodeBytes(key)
	if err != nil {
		panic(err)
	}
	return userKey
}

// decodeTimestamp takes a key + timestamp and returns the timestamp part.
func decodeTimestamp(key []byte) uint64 {
	left, _, err := codec.DecodeBytes(key)
	if err != nil {
		panic(err)
	}
	return ^binary.BigEndian.Uint64(left)
}
