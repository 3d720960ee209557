package iterators

import (
	"testing"

	"github.com/flipkart-incubator/kvbench/internal/storage"
)

type simpleIterator struct {
	data       []string
	currentPos int
	closed     bool
}

func (si *simpleIterator) HasNext() bool {
	//non prefix use-case
	return si.currentPos < len(si.data)
}

func (si *simpleIterator) Next() ([]byte, []byte) {
	d := si.data[si.currentPos]
	si.currentPos++
	return []byte(d), []byte(d)
}

func (si *simpleIterator) Err() error {
	return nil
}

func (si *simpleIterator) Close() error {
	si.closed = true
	return nil
}

var _ storage.Iterator = &simpleIterator{}

func TestIterationLimit(t *testing.T) {
	iter1 := &simpleIterator{
		data:       []string{"one", "two", "three", "four"},
		currentPos: 0,
	}

	all := []string{"one", "two", "three"}

	iter2 := Limit(iter1, 3)
	count := 0

	for iter2.HasNext() {
		key, _ := iter2.Next()
		kS := string(key)
		aI := all[count]

		if aI != kS {
			t.Errorf("Expected %s  But got : %s", aI, kS)
		}
		count++
	}

	if count != 3 {
		t.Errorf("Expected count of 3  But got : %d", count)
	}

	iter2.Close()
	if !iter1.closed {
		t.Errorf("Expected the wrapped iterator to be closed")
	}
}

func TestIterationLimitLargerThanData(t *testing.T) {
	iter1 := &simpleIterator{data: []string{"alpha", "beta"}}
	count, err := Drain(Limit(iter1, 10))
	if err != nil || count != 2 {
		t.Errorf("Expected count of 2 and no error. But got : %d, %v", count, err)
	}
	if !iter1.closed {
		t.Errorf("Expected Drain to close the iterator")
	}

	if count, _ := Drain(Limit(&simpleIterator{data: []string{"x"}}, -1)); count != 0 {
		t.Errorf("Expected count of 0 for a negative limit. But got : %d", count)
	}
}
