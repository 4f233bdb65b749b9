package transaction

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/optikv/optikv/kv/kvrpc"
	"github.com/optikv/optikv/kv/storage"
	"github.com/optikv/optikv/kv/transaction/mvcc"
)

// TestGetValue tests getting a value works in the simple case.
func TestGetValue(t *testing.T) {
	builder := newBuilder(t)
	builder.init([]kv{
		{cf: storage.CfDefault, key: []byte{99}, ts: 50, value: []byte{42}},
		{cf: storage.CfWrite, key: []byte{99}, ts: 54, value: []byte{1, 0, 0, 0, 0, 0, 0, 0, 50}},
	})

	resp := builder.runOneRequest(builder.getRequest(99, mvcc.TsMax)).(*kvrpc.GetResponse)
	assert.Nil(t, resp.Error)
	assert.Equal(t, []byte{42}, resp.Value)
}

// TestGetEmpty tests a get on an empty DB.
func TestGetEmpty(t *testing.T) {
	builder := newBuilder(t)

	resp := builder.runOneRequest(builder.getRequest(100, mvcc.TsMax)).(*kvrpc.GetResponse)
	assert.Nil(t, resp.Error)
	assert.True(t, resp.NotFound)
}

// TestGetVersions tests that a get sees only versions committed at or before
// its timestamp.
func TestGetVersions(t *testing.T) {
	builder := newBuilder(t)
	builder.init([]kv{
		{cf: storage.CfDefault, key: []byte{99}, ts: 50, value: []byte{42}},
		{cf: storage.CfWrite, key: []byte{99}, ts: 54, value: []byte{1, 0, 0, 0, 0, 0, 0, 0, 50}},
		{cf: storage.CfDefault, key: []byte{99}, ts: 60, value: []byte{43}},
		{cf: storage.CfWrite, key: []byte{99}, ts: 66, value: []byte{1, 0, 0, 0, 0, 0, 0, 0, 60}},
	})

	resp := builder.runOneRequest(builder.getRequest(99, 52)).(*kvrpc.GetResponse)
	assert.True(t, resp.NotFound)

	resp = builder.runOneRequest(builder.getRequest(99, 60)).(*kvrpc.GetResponse)
	assert.Equal(t, []byte{42}, resp.Value)

	resp = builder.runOneRequest(builder.getRequest(99, 100)).(*kvrpc.GetResponse)
	assert.Equal(t, []byte{43}, resp.Value)
}

// TestGetDeleted tests a get where the key's most recent version is a delete.
func TestGetDeleted(t *testing.T) {
	builder := newBuilder(t)
	builder.init([]kv{
		{cf: storage.CfDefault, key: []byte{99}, ts: 50, value: []byte{42}},
		{cf: storage.CfWrite, key: []byte{99}, ts: 54, value: []byte{1, 0, 0, 0, 0, 0, 0, 0, 50}},
		{cf: storage.CfWrite, key: []byte{99}, ts: 60, value: []byte{2, 0, 0, 0, 0, 0, 0, 0, 58}},
	})

	resp := builder.runOneRequest(builder.getRequest(99, 70)).(*kvrpc.GetResponse)
	assert.True(t, resp.NotFound)

	resp = builder.runOneRequest(builder.getRequest(99, 56)).(*kvrpc.GetResponse)
	assert.Equal(t, []byte{42}, resp.Value)
}

// TestGetLocked tests a get for a key locked by an in-flight transaction.
func TestGetLocked(t *testing.T) {
	builder := newBuilder(t)
	builder.init([]kv{
		{cf: storage.CfDefault, key: []byte{99}, ts: 50, value: []byte{42}},
		{cf: storage.CfWrite, key: []byte{99}, ts: 54, value: []byte{1, 0, 0, 0, 0, 0, 0, 0, 50}},
		{cf: storage.CfLock, key: []byte{99}, value: lockBytes([]byte{99}, 90, mvcc.WriteKindPut)},
	})

	// Below the lock's timestamp the read is unaffected.
	resp := builder.runOneRequest(builder.getRequest(99, 80)).(*kvrpc.GetResponse)
	assert.Nil(t, resp.Error)
	assert.Equal(t, []byte{42}, resp.Value)

	// Above it, the in-flight transaction's outcome would decide what we see,
	// so the lock is reported instead.
	resp = builder.runOneRequest(builder.getRequest(99, 110)).(*kvrpc.GetResponse)
	assert.NotNil(t, resp.Error)
	assert.NotNil(t, resp.Error.Locked)
	assert.Equal(t, uint64(90), resp.Error.Locked.LockVersion)
}
