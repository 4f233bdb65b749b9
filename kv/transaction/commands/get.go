package commands

import (
	"github.com/optikv/optikv/kv/kvrpc"
	"github.com/optikv/optikv/kv/transaction/mvcc"
)

// Get reads the value of a single key as of the request's timestamp.
type Get struct {
	ReadOnly
	CommandBase
	request *kvrpc.GetRequest
}

func NewGet(request *kvrpc.GetRequest) Get {
	return Get{
		CommandBase: CommandBase{
			context: &request.Context,
			startTs: request.Version,
		},
		request: request,
	}
}

func (g *Get) Tag() string {
	return "get"
}

func (g *Get) Read(txn *mvcc.RoTxn) (interface{}, [][]byte, error) {
	key := g.request.Key
	response := new(kvrpc.GetResponse)

	// Check for locks.
	lock, err := txn.GetLock(key)
	if err != nil {
		return nil, nil, err
	}
	if lock.IsLockedFor(key, txn.StartTS) {
		// Key is locked by an in-flight transaction below our timestamp; its
		// outcome would decide what we see, so report the lock instead.
		response.Error = &kvrpc.KeyError{Locked: lock.Info(key)}
		return response, nil, nil
	}

	// Search writes for a committed value.
	value, err := txn.GetValue(key)
	if err != nil {
		return nil, nil, err
	}

	if value == nil {
		response.NotFound = true
	} else {
		response.Value = value
	}

	return response, nil, nil
}
