package standalone_storage

import (
	"github.com/Connor1996/badger"
	"github.com/pingcap/errors"

	"github.com/optikv/optikv/kv/config"
	"github.com/optikv/optikv/kv/kvrpc"
	"github.com/optikv/optikv/kv/storage"
)

// StandAloneStorage is an implementation of Storage for a single-node instance.
// It does not communicate with other nodes and all data is stored locally in one
// badger database. Column families are mapped onto badger by prefixing keys.
type StandAloneStorage struct {
	conf config.Config
	db   *badger.DB
}

func NewStandAloneStorage(conf *config.Config) *StandAloneStorage {
	return &StandAloneStorage{conf: *conf}
}

func (s *StandAloneStorage) Start() error {
	opts := badger.DefaultOptions
	opts.Dir = s.conf.DBPath
	opts.ValueDir = s.conf.DBPath
	db, err := badger.Open(opts)
	if err != nil {
		return errors.Annotate(err, "open badger")
	}
	s.db = db
	return nil
}

func (s *StandAloneStorage) Stop() error {
	return s.db.Close()
}

func (s *StandAloneStorage) Reader(ctx *kvrpc.Context) (storage.StorageReader, error) {
	// A read-only badger txn sees a consistent snapshot of the DB.
	return &badgerReader{s.db.NewTransaction(false)}, nil
}

func (s *StandAloneStorage) Write(ctx *kvrpc.Context, batch []storage.Modify) error {
	return s.db.Update(func(txn *badger.Txn) error {
		for _, m := range batch {
			switch data := m.Data.(type) {
			case storage.Put:
				if err := txn.Set(keyWithCF(data.Cf, data.Key), data.Value); err != nil {
					return err
				}
			case storage.Delete:
				if err := txn.Delete(keyWithCF(data.Cf, data.Key)); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

func keyWithCF(cf string, key []byte) []byte {
	return append([]byte(cf+"_"), key...)
}

type badgerReader struct {
	txn *badger.Txn
}

func (r *badgerReader) GetCF(cf string, key []byte) ([]byte, error) {
	item, err := r.txn.Get(keyWithCF(cf, key))
	if err == badger.ErrKeyNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return item.ValueCopy(nil)
}

func (r *badgerReader) IterCF(cf string) storage.DBIterator {
	iter := r.txn.NewIterator(badger.DefaultIteratorOptions)
	iter.Rewind()
	return &badgerIter{iter: iter, prefix: cf + "_"}
}

func (r *badgerReader) Close() {
	r.txn.Discard()
}

// badgerIter iterates one CF by restricting a badger iterator to the CF's key
// prefix and stripping it from returned items.
type badgerIter struct {
	iter   *badger.Iterator
	prefix string
}

func (it *badgerIter) Item() storage.DBItem {
	return &badgerItem{it.iter.Item(), len(it.prefix)}
}

func (it *badgerIter) Valid() bool {
	return it.iter.ValidForPrefix([]byte(it.prefix))
}

func (it *badgerIter) Next() {
	it.iter.Next()
}

func (it *badgerIter) Seek(key []byte) {
	it.iter.Seek(append([]byte(it.prefix), key...))
}

func (it *badgerIter) Close() {
	it.iter.Close()
}

type badgerItem struct {
	item      *badger.Item
	prefixLen int
}

func (i *badgerItem) Key() []byte {
	return i.item.Key()[i.prefixLen:]
}

func (i *badgerItem) Value() ([]byte, error) {
	return i.item.Value()
}
