package storage

import (
	"bytes"
	"errors"
	"io"
)

// IterationOptions captures the various options that can
// be set to control iteration process.
type IterationOptions interface {
	KeyPrefix() ([]byte, bool)
	StartKey() ([]byte, bool)
	// StopKey is exclusive.
	StopKey() ([]byte, bool)
	// CacheSize is the number of rows an engine fetches per
	// round trip or prefetch.
	CacheSize() (int, bool)
}

type iterOpts struct {
	keyPrefix []byte
	startKey  []byte
	stopKey   []byte
	cacheSize int
}

func (io *iterOpts) KeyPrefix() ([]byte, bool) {
	return io.keyPrefix, io.keyPrefix != nil && len(io.keyPrefix) > 0
}

func (io *iterOpts) StartKey() ([]byte, bool) {
	return io.startKey, io.startKey != nil && len(io.startKey) > 0
}

func (io *iterOpts) StopKey() ([]byte, bool) {
	return io.stopKey, io.stopKey != nil && len(io.stopKey) > 0
}

func (io *iterOpts) CacheSize() (int, bool) {
	return io.cacheSize, io.cacheSize > 0
}

func (io *iterOpts) validate() error {
	if kp, kpPrsnt := io.KeyPrefix(); kpPrsnt {
		if sk, skPrsnt := io.StartKey(); skPrsnt {
			if !bytes.HasPrefix(sk, kp) {
				return errors.New("StartKey must have the same prefix as PrefixKey")
			}
		}
	}
	if sk, skPrsnt := io.StartKey(); skPrsnt {
		if ek, ekPrsnt := io.StopKey(); ekPrsnt && bytes.Compare(sk, ek) > 0 {
			return errors.New("StopKey must not sort before StartKey")
		}
	}
	if io.cacheSize < 0 {
		return errors.New("CacheSize must not be negative")
	}
	return nil
}

// IterationOption captures an iteration option.
type IterationOption func(*iterOpts)

// NewIteratorOptions allows for the creation of `IterationOptions` instance
// that is used for controlling the behavior of iterating through keyspace.
func NewIteratorOptions(opts ...IterationOption) (IterationOptions, error) {
	itOpts := new(iterOpts)
	for _, opt := range opts {
		opt(itOpts)
	}

	return itOpts, itOpts.validate()
}

// IterationPrefixKey is used to indicate the prefix of the keys
// that are to be iterated. In other words, only those keys that
// begin with this prefix are returned by the iterator.
func IterationPrefixKey(prefix []byte) IterationOption {
	return func(opts *iterOpts) {
		opts.keyPrefix = prefix
	}
}

// IterationStartKey sets the start key for iteration. All keys
// starting with this key are returned by the iterator.
func IterationStartKey(start []byte) IterationOption {
	return func(opts *iterOpts) {
		opts.startKey = start
	}
}

// IterationStopKey sets the exclusive upper bound of the iteration.
func IterationStopKey(stop []byte) IterationOption {
	return func(opts *iterOpts) {
		opts.stopKey = stop
	}
}

// IterationCacheSize sets how many rows are fetched at once.
func IterationCacheSize(size int) IterationOption {
	return func(opts *iterOpts) {
		opts.cacheSize = size
	}
}

// PastStopKey tells whether the given key lies at or beyond
// the stop key of the options.
func PastStopKey(itOpts IterationOptions, key []byte) bool {
	if ek, present := itOpts.StopKey(); present {
		return bytes.Compare(key, ek) >= 0
	}
	return false
}

// Iterator represents the behavior of a key space iterator
// that allows for iterating though keys using the `HasNext`
// and `Next` methods.
type Iterator interface {
	io.Closer
	HasNext() bool
	Next() ([]byte, []byte)
	Err() error
}

// Iteration is a convenience wrapper around `Iterator`
// that allows for a given handler to be invoked exactly
// once for every key value pair iterated.
type Iteration interface {
	ForEach(func(key, value []byte) error) error
}

type iteration struct {
	open func() (Iterator, error)
}

func (iter *iteration) ForEach(hndlr func(key, value []byte) error) error {
	itrtr, err := iter.open()
	if err != nil {
		return err
	}
	defer itrtr.Close()
	for itrtr.HasNext() {
		if err := hndlr(itrtr.Next()); err != nil {
			return err
		}
	}
	return itrtr.Err()
}
