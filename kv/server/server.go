package server

import (
	"context"

	"github.com/pingcap/errors"

	"github.com/optikv/optikv/kv/config"
	"github.com/optikv/optikv/kv/kvrpc"
	"github.com/optikv/optikv/kv/storage"
	"github.com/optikv/optikv/kv/transaction/commands"
	"github.com/optikv/optikv/kv/transaction/concurrency"
	"github.com/optikv/optikv/kv/transaction/latches"
)

// Server is the in-process dispatcher: the transport layer deserializes a wire
// request into a kvrpc struct and calls the matching method here.
type Server struct {
	storage storage.Storage
	Latches *latches.Latches
	// Manager tracks the highest timestamp any command has observed.
	Manager *concurrency.Manager

	maxCommandWriteBytes int
	defaultLockTtl       uint64
	extraOp              kvrpc.ExtraOp
}

func NewServer(store storage.Storage) *Server {
	return NewServerWithConfig(store, config.NewDefaultConfig())
}

func NewServerWithConfig(store storage.Storage, conf *config.Config) *Server {
	extraOp := kvrpc.ExtraOpNoop
	if conf.EnableOldValueCapture {
		extraOp = kvrpc.ExtraOpReadOldValue
	}
	return &Server{
		storage:              store,
		Latches:              latches.NewLatches(),
		Manager:              concurrency.NewManager(),
		maxCommandWriteBytes: conf.MaxCommandWriteBytes,
		defaultLockTtl:       conf.DefaultLockTtl,
		extraOp:              extraOp,
	}
}

// run executes a command, applying the write-size backpressure bound first.
func (server *Server) run(cmd commands.Command) (interface{}, error) {
	if bytes := cmd.WriteBytes(); bytes > server.maxCommandWriteBytes {
		return nil, errors.Errorf("%s command write size %d exceeds limit %d",
			cmd.Tag(), bytes, server.maxCommandWriteBytes)
	}
	resp, _, err := commands.RunCommand(cmd, server.storage, server.Latches, server.Manager)
	return resp, err
}

// KvFlush stages the request's mutations as locks under its start timestamp.
// The response carries one error per failed key; a returned error means the
// whole batch was aborted and nothing was staged.
func (server *Server) KvFlush(_ context.Context, req *kvrpc.FlushRequest) (*kvrpc.FlushResponse, error) {
	if req.LockTtl == 0 {
		req.LockTtl = server.defaultLockTtl
	}
	cmd := commands.NewFlush(req, server.extraOp)
	resp, err := server.run(&cmd)
	if err != nil {
		return nil, err
	}
	return resp.(*kvrpc.FlushResponse), nil
}

// KvGet reads a value as of the request's timestamp.
func (server *Server) KvGet(_ context.Context, req *kvrpc.GetRequest) (*kvrpc.GetResponse, error) {
	cmd := commands.NewGet(req)
	resp, err := server.run(&cmd)
	if err != nil {
		return nil, err
	}
	return resp.(*kvrpc.GetResponse), nil
}
