package server

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/optikv/optikv/kv/kvrpc"
	"github.com/optikv/optikv/kv/storage"
)

func newTestServer() (*Server, *storage.MemStorage) {
	mem := storage.NewMemStorage()
	return NewServer(mem), mem
}

func TestRawGet(t *testing.T) {
	srv, mem := newTestServer()
	mem.Set(storage.CfDefault, []byte{99}, []byte{42})

	resp, err := srv.RawGet(context.Background(), &kvrpc.RawGetRequest{Cf: storage.CfDefault, Key: []byte{99}})
	assert.Nil(t, err)
	assert.Empty(t, resp.Error)
	assert.Equal(t, []byte{42}, resp.Value)

	resp, err = srv.RawGet(context.Background(), &kvrpc.RawGetRequest{Cf: storage.CfDefault, Key: []byte{100}})
	assert.Nil(t, err)
	assert.True(t, resp.NotFound)
}

func TestRawPutDelete(t *testing.T) {
	srv, mem := newTestServer()

	putResp, err := srv.RawPut(context.Background(), &kvrpc.RawPutRequest{Cf: storage.CfDefault, Key: []byte{99}, Value: []byte{42}})
	assert.Nil(t, err)
	assert.Empty(t, putResp.Error)
	assert.Equal(t, []byte{42}, mem.Get(storage.CfDefault, []byte{99}))

	delResp, err := srv.RawDelete(context.Background(), &kvrpc.RawDeleteRequest{Cf: storage.CfDefault, Key: []byte{99}})
	assert.Nil(t, err)
	assert.Empty(t, delResp.Error)
	assert.Nil(t, mem.Get(storage.CfDefault, []byte{99}))
}

func TestRawScan(t *testing.T) {
	srv, mem := newTestServer()
	for i := byte(1); i <= 5; i++ {
		mem.Set(storage.CfDefault, []byte{i}, []byte{i * 10})
	}

	resp, err := srv.RawScan(context.Background(), &kvrpc.RawScanRequest{Cf: storage.CfDefault, StartKey: []byte{2}, Limit: 3})
	assert.Nil(t, err)
	assert.Empty(t, resp.Error)
	assert.Equal(t, 3, len(resp.Kvs))
	assert.Equal(t, []byte{2}, resp.Kvs[0].Key)
	assert.Equal(t, []byte{20}, resp.Kvs[0].Value)
	assert.Equal(t, []byte{4}, resp.Kvs[2].Key)
}
