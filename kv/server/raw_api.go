package server

import (
	"context"

	"github.com/optikv/optikv/kv/kvrpc"
	"github.com/optikv/optikv/kv/storage"
)

// The raw API operates on the underlying storage directly, bypassing MVCC. It
// is used by storage-level tests and tooling.

func (server *Server) RawGet(_ context.Context, req *kvrpc.RawGetRequest) (*kvrpc.RawGetResponse, error) {
	response := new(kvrpc.RawGetResponse)
	reader, err := server.storage.Reader(&req.Context)
	if err != nil {
		response.Error = err.Error()
		return response, nil
	}
	defer reader.Close()

	value, err := reader.GetCF(req.Cf, req.Key)
	if err != nil {
		response.Error = err.Error()
		return response, nil
	}
	if value == nil {
		response.NotFound = true
	} else {
		response.Value = value
	}
	return response, nil
}

func (server *Server) RawPut(_ context.Context, req *kvrpc.RawPutRequest) (*kvrpc.RawPutResponse, error) {
	response := new(kvrpc.RawPutResponse)
	err := server.storage.Write(&req.Context, []storage.Modify{
		{
			Data: storage.Put{
				Key:   req.Key,
				Value: req.Value,
				Cf:    req.Cf,
			},
		},
	})
	if err != nil {
		response.Error = err.Error()
	}
	return response, nil
}

func (server *Server) RawDelete(_ context.Context, req *kvrpc.RawDeleteRequest) (*kvrpc.RawDeleteResponse, error) {
	response := new(kvrpc.RawDeleteResponse)
	err := server.storage.Write(&req.Context, []storage.Modify{
		{
			Data: storage.Delete{
				Key: req.Key,
				Cf:  req.Cf,
			},
		},
	})
	if err != nil {
		response.Error = err.Error()
	}
	return response, nil
}

func (server *Server) RawScan(_ context.Context, req *kvrpc.RawScanRequest) (*kvrpc.RawScanResponse, error) {
	response := new(kvrpc.RawScanResponse)
	reader, err := server.storage.Reader(&req.Context)
	if err != nil {
		response.Error = err.Error()
		return response, nil
	}
	defer reader.Close()

	iter := reader.IterCF(req.Cf)
	defer iter.Close()
	for iter.Seek(req.StartKey); iter.Valid() && uint32(len(response.Kvs)) < req.Limit; iter.Next() {
		item := iter.Item()
		value, err := item.Value()
		if err != nil {
			response.Error = err.Error()
			return response, nil
		}
		key := make([]byte, len(item.Key()))
		copy(key, item.Key())
		response.Kvs = append(response.Kvs, &kvrpc.KvPair{Key: key, Value: value})
	}
	return response, nil
}
