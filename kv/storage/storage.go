package storage

import "github.com/optikv/optikv/kv/kvrpc"

// Storage represents the layer between the transactional command code and the
// bytes on disk. A batch handed to Write is the whole write-set of one command;
// durably applying it (and fanning it out to any followers) is this layer's job.
type Storage interface {
	Start() error
	Stop() error
	Write(ctx *kvrpc.Context, batch []Modify) error
	Reader(ctx *kvrpc.Context) (StorageReader, error)
}

// StorageReader is a read-only view of the stored data. Readers returned by the
// same Storage may be shared within one command but are never written through.
type StorageReader interface {
	// GetCF returns (nil, nil) when the key does not exist.
	GetCF(cf string, key []byte) ([]byte, error)
	IterCF(cf string) DBIterator
	Close()
}

type DBIterator interface {
	// Item returns pointer to the current key-value pair.
	Item() DBItem
	// Valid returns false when iteration is done.
	Valid() bool
	// Next would advance the iterator by one. Always check it.Valid() after a Next()
	// to ensure you have access to a valid it.Item().
	Next()
	// Seek would seek to the provided key if present. If absent, it would seek to the
	// next smallest key greater than provided.
	Seek(key []byte)
	// Close the iterator.
	Close()
}

type DBItem interface {
	// Key returns the key.
	Key() []byte
	// Value retrieves the value of the item.
	Value() ([]byte, error)
}
