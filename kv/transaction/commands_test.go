package transaction

// This file contains utility code for testing commands.

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/optikv/optikv/kv/kvrpc"
	"github.com/optikv/optikv/kv/server"
	"github.com/optikv/optikv/kv/storage"
	"github.com/optikv/optikv/kv/transaction/mvcc"
)

// testBuilder is a helper type for running command tests.
type testBuilder struct {
	t      *testing.T
	server *server.Server
	// mem will always be the backing store for server.
	mem *storage.MemStorage
	// Keep track of timestamps.
	prevTs uint64
}

// kv is a type which identifies a key/value pair to testBuilder.
type kv struct {
	cf string
	// The user key (unencoded, no time stamp).
	key []byte
	// Can be elided. The builder's prevTs will be used if the ts is needed.
	ts uint64
	// Can be elided in assertion functions. If elided then testBuilder checks that the value has not changed.
	value []byte
}

func newBuilder(t *testing.T) testBuilder {
	mem := storage.NewMemStorage()
	server := server.NewServer(mem)
	server.Latches.Validation = func(txn *mvcc.MvccTxn, keys [][]byte) {
		keyMap := make(map[string]struct{})
		for _, k := range keys {
			keyMap[string(k)] = struct{}{}
		}
		for _, wr := range txn.Writes() {
			key := wr.Key()
			// This is a bit of a hack and relies on all the tests using keys shorter than 9 bytes, which is the
			// minimum length for an encoded key.
			if len(key) > 8 {
				switch wr.Cf() {
				case storage.CfDefault:
					key = mvcc.DecodeUserKey(wr.Key())
				case storage.CfWrite:
					key = mvcc.DecodeUserKey(wr.Key())
				}
			}
			if _, ok := keyMap[string(key)]; !ok {
				t.Errorf("Failed latching validation: tried to write a key which was not latched in %v", wr.Data)
			}
		}
	}
	return testBuilder{t, server, mem, 99}
}

// init sets values in the test's DB.
func (builder *testBuilder) init(values []kv) {
	for _, kv := range values {
		ts := kv.ts
		if ts == 0 {
			ts = builder.prevTs
		}
		switch kv.cf {
		case storage.CfDefault:
			builder.mem.Set(kv.cf, mvcc.EncodeKey(kv.key, ts), kv.value)
		case storage.CfWrite:
			builder.mem.Set(kv.cf, mvcc.EncodeKey(kv.key, ts), kv.value)
		case storage.CfLock:
			builder.mem.Set(kv.cf, kv.key, kv.value)
		}
	}
}

func (builder *testBuilder) runRequests(reqs ...interface{}) []interface{} {
	var result []interface{}
	for _, req := range reqs {
		reqName := fmt.Sprintf("%v", reflect.TypeOf(req))
		reqName = strings.TrimPrefix(strings.TrimSuffix(reqName, "Request"), "*kvrpc.")
		fnName := "Kv" + reqName
		serverVal := reflect.ValueOf(builder.server)
		fn := serverVal.MethodByName(fnName)
		ctxtVal := reflect.ValueOf(context.Background())
		reqVal := reflect.ValueOf(req)

		results := fn.Call([]reflect.Value{ctxtVal, reqVal})

		assert.Nil(builder.t, results[1].Interface())
		result = append(result, results[0].Interface())
	}
	return result
}

// runOneRequest is like runRequests but only runs a single request.
func (builder *testBuilder) runOneRequest(req interface{}) interface{} {
	return builder.runRequests(req)[0]
}

func (builder *testBuilder) nextTs() uint64 {
	builder.prevTs++
	return builder.prevTs
}

// assert that a key/value pair exists and has the given value, or if there is no value that it is unchanged.
func (builder *testBuilder) assert(kvs []kv) {
	for _, kv := range kvs {
		var key []byte
		ts := kv.ts
		if ts == 0 {
			ts = builder.prevTs
		}
		switch kv.cf {
		case storage.CfDefault:
			key = mvcc.EncodeKey(kv.key, ts)
		case storage.CfWrite:
			key = mvcc.EncodeKey(kv.key, ts)
		case storage.CfLock:
			key = kv.key
		}
		if kv.value == nil {
			assert.False(builder.t, builder.mem.HasChanged(kv.cf, key))
		} else {
			assert.Equal(builder.t, kv.value, builder.mem.Get(kv.cf, key))
		}
	}
}

// assertLen asserts the size of one of the column families.
func (builder *testBuilder) assertLen(cf string, size int) {
	assert.Equal(builder.t, size, builder.mem.Len(cf))
}

// assertLens asserts the size of each column family.
func (builder *testBuilder) assertLens(def int, lock int, write int) {
	builder.assertLen(storage.CfDefault, def)
	builder.assertLen(storage.CfLock, lock)
	builder.assertLen(storage.CfWrite, write)
}

func (builder *testBuilder) flushRequest(muts ...*kvrpc.Mutation) *kvrpc.FlushRequest {
	var req kvrpc.FlushRequest
	req.PrimaryKey = []byte{1}
	req.StartVersion = builder.nextTs()
	req.LockTtl = 1000
	req.Mutations = muts
	return &req
}

func mutation(key byte, value []byte, op kvrpc.Op) *kvrpc.Mutation {
	var mut kvrpc.Mutation
	mut.Key = []byte{key}
	mut.Value = value
	mut.Op = op
	return &mut
}

func (builder *testBuilder) getRequest(key byte, version uint64) *kvrpc.GetRequest {
	var req kvrpc.GetRequest
	req.Key = []byte{key}
	req.Version = version
	return &req
}

// commit simulates the commit phase for a staged key: a commit record appears
// in the write CF and the lock is removed.
func (builder *testBuilder) commit(key []byte, startTs uint64, commitTs uint64) {
	write := mvcc.Write{StartTS: startTs, Kind: mvcc.WriteKindPut}
	builder.mem.Set(storage.CfWrite, mvcc.EncodeKey(key, commitTs), write.ToBytes())
	err := builder.mem.Write(nil, []storage.Modify{{Data: storage.Delete{Cf: storage.CfLock, Key: key}}})
	assert.Nil(builder.t, err)
}

// lockBytes builds the serialized form of a lock for seeding the lock CF.
func lockBytes(primary []byte, ts uint64, kind mvcc.WriteKind) []byte {
	lock := mvcc.Lock{Primary: primary, Ts: ts, Ttl: 1000, Kind: kind}
	return lock.ToBytes()
}
