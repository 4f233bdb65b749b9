package commands

import (
	"github.com/pingcap/log"
	"go.uber.org/zap"

	"github.com/optikv/optikv/kv/kvrpc"
	"github.com/optikv/optikv/kv/storage"
	"github.com/optikv/optikv/kv/transaction/concurrency"
	"github.com/optikv/optikv/kv/transaction/latches"
	"github.com/optikv/optikv/kv/transaction/mvcc"
)

// Command is an abstraction which covers the process from receiving a request
// from the dispatcher to returning a response.
type Command interface {
	Context() *kvrpc.Context
	StartTs() uint64
	// Tag names the command kind for logging and metrics.
	Tag() string
	// WillWrite returns a list of all keys that might be written by this command. Return nil if the command is readonly.
	WillWrite() [][]byte
	// WriteBytes is the byte cost of this command's batch, used for scheduling
	// and backpressure. Zero for readonly commands.
	WriteBytes() int
	// Read executes a readonly part of the command. Only called if WillWrite returns nil. If the command needs to write
	// to the DB it should return a non-nil set of keys that the command will write.
	Read(txn *mvcc.RoTxn) (interface{}, [][]byte, error)
	// PrepareWrites is for building writes in an mvcc transaction. Commands can also make non-transactional
	// reads and writes using txn. Returning without modifying txn means that no transaction will be executed.
	PrepareWrites(txn *mvcc.MvccTxn) (interface{}, error)
}

// ResponsePolicy says when a write command's response may be sent.
type ResponsePolicy int

const (
	// OnApplied waits until the write-set is durably applied.
	OnApplied ResponsePolicy = iota
	// OnProposed replies as soon as the write-set is handed to the apply layer.
	OnProposed
)

// WriteResult packages the outcome of a write command for hand-off to the apply
// layer. Ownership of Modifications transfers with it; the accumulator that
// produced them is consumed.
type WriteResult struct {
	Response       interface{}
	Modifications  []storage.Modify
	NewLocks       []kvrpc.LockInfo
	OldValues      mvcc.OldValues
	Rows           int
	ResponsePolicy ResponsePolicy
}

// oldValueHolder is implemented by commands which capture old values for CDC.
type oldValueHolder interface {
	OldValues() mvcc.OldValues
}

// RunCommand runs a transactional command: latch its declared keys, execute it
// against a snapshot, and hand the produced write-set to the apply layer. For
// write commands the returned WriteResult describes what was handed off (the
// write-set itself, new locks, captured old values); it is nil for readonly
// commands. A non-nil error is fatal for the whole command and nothing reaches
// storage.
func RunCommand(cmd Command, store storage.Storage, lat *latches.Latches, cm *concurrency.Manager) (interface{}, *WriteResult, error) {
	ctxt := cmd.Context()
	var resp interface{}
	var result *WriteResult

	keysToWrite := cmd.WillWrite()
	if keysToWrite == nil {
		// The command is readonly or requires access to the DB to determine the keys it will write.
		reader, err := store.Reader(ctxt)
		if err != nil {
			return nil, nil, err
		}
		cm.UpdateMaxTs(cmd.StartTs())
		txn := mvcc.RoTxn{Reader: reader, StartTS: cmd.StartTs()}
		resp, keysToWrite, err = cmd.Read(&txn)
		reader.Close()
		if err != nil {
			return nil, nil, err
		}
	}

	if keysToWrite != nil {
		// The command will write to the DB.
		latched := lat.WaitForLatches(keysToWrite)
		defer lat.ReleaseLatches(latched)

		reader, err := store.Reader(ctxt)
		if err != nil {
			return nil, nil, err
		}
		defer reader.Close()

		// Build an mvcc transaction.
		txn := mvcc.NewTxn(reader, cmd.StartTs(), cm)
		resp, err = cmd.PrepareWrites(&txn)
		if err != nil {
			// Fatal abort: the accumulated write-set is discarded, the latches
			// are released by the defer above.
			return nil, nil, err
		}

		lat.Validate(&txn, latched)

		// Flush-style commands use no commit-time guards; one left here at
		// hand-off means a command staged something it never finished.
		if guards := txn.TakeGuards(); len(guards) != 0 {
			panic("command left commit-time guards at hand-off")
		}

		result = &WriteResult{
			Response:       resp,
			Modifications:  txn.Writes(),
			NewLocks:       txn.NewLocks(),
			Rows:           len(latched),
			ResponsePolicy: OnApplied,
		}
		if holder, ok := cmd.(oldValueHolder); ok {
			result.OldValues = holder.OldValues()
		}
		log.Debug("handing write-set to apply layer",
			zap.String("tag", cmd.Tag()),
			zap.Uint64("startTS", cmd.StartTs()),
			zap.Int("modifications", len(result.Modifications)),
			zap.Int("writeBytes", cmd.WriteBytes()))

		// Building the transaction succeeded without fatal error, write all
		// its writes to backing storage.
		if err := store.Write(ctxt, result.Modifications); err != nil {
			return nil, nil, err
		}
	}

	return resp, result, nil
}

// CommandBase provides some default function implementations for the Command interface.
type CommandBase struct {
	context *kvrpc.Context
	startTs uint64
}

func (base CommandBase) Context() *kvrpc.Context {
	return base.context
}

func (base CommandBase) StartTs() uint64 {
	return base.startTs
}

func (base CommandBase) Read(txn *mvcc.RoTxn) (interface{}, [][]byte, error) {
	return nil, nil, nil
}

// ReadOnly is a helper type for commands which will never write anything to the database. It provides some default
// function implementations.
type ReadOnly struct{}

func (ro ReadOnly) WillWrite() [][]byte {
	return nil
}

func (ro ReadOnly) WriteBytes() int {
	return 0
}

func (ro ReadOnly) PrepareWrites(txn *mvcc.MvccTxn) (interface{}, error) {
	return nil, nil
}
