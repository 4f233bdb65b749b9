package storage

import (
	"bytes"
	"fmt"

	"github.com/petar/GoLLRB/llrb"

	"github.com/optikv/optikv/kv/kvrpc"
)

// MemStorage is a simple storage implementation backed by memory for testing.
// Data is not written to disk, nor sent to other nodes.
type MemStorage struct {
	CfDefault *llrb.LLRB
	CfLock    *llrb.LLRB
	CfWrite   *llrb.LLRB
}

func NewMemStorage() *MemStorage {
	return &MemStorage{
		CfDefault: llrb.New(),
		CfLock:    llrb.New(),
		CfWrite:   llrb.New(),
	}
}

func (is *MemStorage) Start() error {
	return nil
}

func (is *MemStorage) Stop() error {
	return nil
}

func (is *MemStorage) Reader(ctx *kvrpc.Context) (StorageReader, error) {
	return &memReader{is}, nil
}

func (is *MemStorage) Write(ctx *kvrpc.Context, batch []Modify) error {
	for _, m := range batch {
		switch data := m.Data.(type) {
		case Put:
			item := memItem{data.Key, data.Value, false}
			switch data.Cf {
			case CfDefault:
				is.CfDefault.ReplaceOrInsert(item)
			case CfLock:
				is.CfLock.ReplaceOrInsert(item)
			case CfWrite:
				is.CfWrite.ReplaceOrInsert(item)
			}
		case Delete:
			item := memItem{key: data.Key}
			switch data.Cf {
			case CfDefault:
				is.CfDefault.Delete(item)
			case CfLock:
				is.CfLock.Delete(item)
			case CfWrite:
				is.CfWrite.Delete(item)
			}
		}
	}

	return nil
}

func (is *MemStorage) Get(cf string, key []byte) []byte {
	item := memItem{key: key}
	var result llrb.Item
	switch cf {
	case CfDefault:
		result = is.CfDefault.Get(item)
	case CfLock:
		result = is.CfLock.Get(item)
	case CfWrite:
		result = is.CfWrite.Get(item)
	}

	if result == nil {
		return nil
	}

	return result.(memItem).value
}

func (is *MemStorage) Set(cf string, key []byte, value []byte) {
	item := memItem{key, value, true}
	switch cf {
	case CfDefault:
		is.CfDefault.ReplaceOrInsert(item)
	case CfLock:
		is.CfLock.ReplaceOrInsert(item)
	case CfWrite:
		is.CfWrite.ReplaceOrInsert(item)
	}
}

// HasChanged returns true if the value at cf/key was written by a command (rather
// than seeded by Set) or is absent.
func (is *MemStorage) HasChanged(cf string, key []byte) bool {
	item := memItem{key: key}
	var result llrb.Item
	switch cf {
	case CfDefault:
		result = is.CfDefault.Get(item)
	case CfLock:
		result = is.CfLock.Get(item)
	case CfWrite:
		result = is.CfWrite.Get(item)
	}
	if result == nil {
		return true
	}

	return !result.(memItem).fresh
}

func (is *MemStorage) Len(cf string) int {
	switch cf {
	case CfDefault:
		return is.CfDefault.Len()
	case CfLock:
		return is.CfLock.Len()
	case CfWrite:
		return is.CfWrite.Len()
	}

	return -1
}

// memReader is a StorageReader which reads from a MemStorage.
type memReader struct {
	inner *MemStorage
}

func (mr *memReader) GetCF(cf string, key []byte) ([]byte, error) {
	item := memItem{key: key}
	var result llrb.Item
	switch cf {
	case CfDefault:
		result = mr.inner.CfDefault.Get(item)
	case CfLock:
		result = mr.inner.CfLock.Get(item)
	case CfWrite:
		result = mr.inner.CfWrite.Get(item)
	default:
		return nil, fmt.Errorf("mem-storage: bad CF %s", cf)
	}

	if result == nil {
		return nil, nil
	}

	return result.(memItem).value, nil
}

func (mr *memReader) IterCF(cf string) DBIterator {
	var data *llrb.LLRB
	switch cf {
	case CfDefault:
		data = mr.inner.CfDefault
	case CfLock:
		data = mr.inner.CfLock
	case CfWrite:
		data = mr.inner.CfWrite
	default:
		return nil
	}

	min := data.Min()
	if min == nil {
		return &memIter{data, memItem{}}
	}
	return &memIter{data, min.(memItem)}
}

func (r *memReader) Close() {}

type memIter struct {
	data *llrb.LLRB
	item memItem
}

func (it *memIter) Item() DBItem {
	return it.item
}
func (it *memIter) Valid() bool {
	return it.item.key != nil
}
func (it *memIter) Next() {
	first := true
	oldItem := it.item
	it.item = memItem{}
	it.data.AscendGreaterOrEqual(oldItem, func(item llrb.Item) bool {
		// Skip the first item, which will be it.item
		if first {
			first = false
			return true
		}

		it.item = item.(memItem)
		return false
	})
}
func (it *memIter) Seek(key []byte) {
	it.item = memItem{}
	it.data.AscendGreaterOrEqual(memItem{key: key}, func(item llrb.Item) bool {
		it.item = item.(memItem)

		return false
	})
}
func (it *memIter) Close() {}

type memItem struct {
	key   []byte
	value []byte
	fresh bool
}

func (it memItem) Key() []byte {
	return it.key
}
func (it memItem) Value() ([]byte, error) {
	return it.value, nil
}
func (it memItem) Less(than llrb.Item) bool {
	other := than.(memItem)
	return bytes.Compare(it.key, other.key) < 0
}
