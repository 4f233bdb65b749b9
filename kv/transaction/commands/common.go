package commands

import (
	"encoding/hex"

	"github.com/pingcap/log"
	"go.uber.org/zap"

	"github.com/optikv/optikv/kv/transaction/mvcc"
)

// checkCommittedRecordOnErr resolves the ambiguity behind a conflict or lock
// error: was the prior writer this same transaction? It looks for a commit
// record at (key, txn.StartTS). A non-rollback record confirms the current
// request is a retry of an already-committed attempt; the in-progress
// accumulator is discarded and the previously-established outcome stands.
// Surfacing a conflict on such a retry would be a correctness bug, so callers
// must run this check before reporting the error anywhere.
func checkCommittedRecordOnErr(txn *mvcc.MvccTxn, key []byte) (bool, error) {
	write, commitTs, err := txn.CurrentWrite(key)
	if err != nil {
		return false, err
	}
	if write == nil || write.Kind == mvcc.WriteKindRollback {
		return false, nil
	}
	log.Info("prewritten transaction has been committed",
		zap.Uint64("startTS", txn.StartTS),
		zap.Uint64("commitTS", commitTs),
		zap.String("key", hex.EncodeToString(key)))
	txn.Clear()
	return true, nil
}
