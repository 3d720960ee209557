package iterators

import (
	"github.com/flipkart-incubator/kvbench/internal/storage"
)

type limitedIterator struct {
	storage.Iterator
	remaining int
}

func (li *limitedIterator) HasNext() bool {
	return li.remaining > 0 && li.Iterator.HasNext()
}

func (li *limitedIterator) Next() ([]byte, []byte) {
	li.remaining--
	return li.Iterator.Next()
}

// Limit stops the given iterator after at most n entries.
// Closing the result closes the wrapped iterator.
// d := iter.Limit(a, 100)
func Limit(iterator storage.Iterator, n int) storage.Iterator {
	if iterator == nil {
		return nil
	}
	if n < 0 {
		n = 0
	}
	return &limitedIterator{Iterator: iterator, remaining: n}
}

// Drain consumes every remaining entry, closes the iterator and
// returns the number of entries seen along with the iteration error.
func Drain(iterator storage.Iterator) (int, error) {
	defer iterator.Close()
	count := 0
	for iterator.HasNext() {
		iterator.Next()
		count++
	}
	return count, iterator.Err()
}
