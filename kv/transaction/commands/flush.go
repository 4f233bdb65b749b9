package commands

import (
	"fmt"

	"github.com/optikv/optikv/kv/kvrpc"
	"github.com/optikv/optikv/kv/transaction/mvcc"
)

// Flush stages a batch of mutations as locks under a single start timestamp,
// without committing anything. It is the optimistic write path: conflicts are
// detected here, per key, rather than prevented up front. A poisoned key does
// not sink the batch; its error is reported per key and the remaining mutations
// still get a chance.
type Flush struct {
	CommandBase
	request   *kvrpc.FlushRequest
	extraOp   kvrpc.ExtraOp
	oldValues mvcc.OldValues
}

func NewFlush(request *kvrpc.FlushRequest, extraOp kvrpc.ExtraOp) Flush {
	return Flush{
		CommandBase: CommandBase{
			context: &request.Context,
			startTs: request.StartVersion,
		},
		request:   request,
		extraOp:   extraOp,
		oldValues: mvcc.OldValues{},
	}
}

func (f *Flush) Tag() string {
	return "flush"
}

// WriteBytes is the byte cost of the batch: key and value for puts and inserts,
// key only for deletes and locks, nothing for existence checks.
func (f *Flush) WriteBytes() int {
	bytes := 0
	for _, m := range f.request.Mutations {
		switch m.Op {
		case kvrpc.OpPut, kvrpc.OpInsert:
			bytes += len(m.Key) + len(m.Value)
		case kvrpc.OpDel, kvrpc.OpLock:
			bytes += len(m.Key)
		case kvrpc.OpCheckNotExists:
		default:
			panic(fmt.Sprintf("unsupported op %v", m.Op))
		}
	}
	return bytes
}

func (f *Flush) WillWrite() [][]byte {
	// Non-nil even for an empty batch, so an empty flush still runs through the
	// write path and gets a response rather than being treated as readonly.
	result := make([][]byte, 0, len(f.request.Mutations))
	for _, m := range f.request.Mutations {
		result = append(result, m.Key)
	}
	return result
}

func (f *Flush) OldValues() mvcc.OldValues {
	return f.oldValues
}

// PrepareWrites prewrites every mutation in the batch in order. The order of
// the error policy matters: conflict and lock errors are evidence of real
// concurrent activity and must never be masked by an assertion failure, so
// assertion failures are remembered and surfaced only if the whole batch saw
// nothing worse.
func (f *Flush) PrepareWrites(txn *mvcc.MvccTxn) (interface{}, error) {
	response := new(kvrpc.FlushResponse)
	props := &mvcc.TransactionProperties{
		StartTS:        f.request.StartVersion,
		Primary:        f.request.PrimaryKey,
		LockTtl:        f.request.LockTtl,
		AssertionLevel: f.request.AssertionLevel,
		NeedOldValue:   f.extraOp == kvrpc.ExtraOpReadOldValue,
		IsRetryRequest: f.request.Context.IsRetryRequest,
		TxnSource:      f.request.Context.TxnSource,
	}

	// If there are other errors, they take priority over AssertionFailed.
	var assertionFailure *mvcc.ErrAssertionFailed

	for _, m := range f.request.Mutations {
		key := m.Key
		oldValue, err := mvcc.Prewrite(txn, props, m, mvcc.SkipPessimisticCheck)
		if err == nil {
			f.oldValues.InsertOldValue(key, txn.StartTS, oldValue, m.Op)
			continue
		}

		switch e := err.(type) {
		case *mvcc.ErrWriteConflict:
			if e.ConflictCommitTS > e.StartTS {
				// The conflicting commit may be this transaction's own prior
				// attempt. If it is, the request is a harmless retry and the
				// recorded outcome stands.
				committed, cerr := checkCommittedRecordOnErr(txn, key)
				if cerr != nil {
					return nil, cerr
				}
				if committed {
					return response, nil
				}
			}
			// A genuine conflict with someone else cannot be told apart from a
			// lost retry here; abort the whole command.
			return nil, err
		case *mvcc.ErrPessimisticLockNotFound, *mvcc.ErrCommitTsTooLarge:
			// This path never takes pessimistic locks nor defers commit
			// timestamps, so these cannot occur. Abort loudly rather than
			// produce incorrect state.
			panic(fmt.Sprintf("flush: impossible prewrite error on optimistic path: %v", err))
		case *mvcc.ErrKeyLocked:
			committed, cerr := checkCommittedRecordOnErr(txn, key)
			if cerr != nil {
				return nil, cerr
			}
			if committed {
				return response, nil
			}
			// Locked by a foreign transaction: report this key and carry on
			// with the rest of the batch.
			response.Errors = append(response.Errors, e.KeyError())
		case *mvcc.ErrAssertionFailed:
			if assertionFailure == nil {
				assertionFailure = e
			}
		default:
			return nil, err
		}
	}

	// An assertion failure is a data-integrity diagnostic; it is only the
	// batch's outcome when nothing else went wrong.
	if assertionFailure != nil && len(response.Errors) == 0 {
		return nil, assertionFailure
	}
	return response, nil
}
