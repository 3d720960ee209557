package storage

import (
	"errors"
	"testing"
)

func TestIterationOptionsValidation(t *testing.T) {
	itOps := new(iterOpts)
	if _, present := itOps.KeyPrefix(); present {
		t.Errorf("Expected no key prefix to be set")
	}

	if _, present := itOps.StartKey(); present {
		t.Errorf("Expected no start key to be set")
	}

	expKeyPrefix := "pref"
	itOps.keyPrefix = []byte(expKeyPrefix)
	if kp, present := itOps.KeyPrefix(); !present || string(kp) != expKeyPrefix {
		t.Errorf("Expected key prefix to be set and equal to %s", expKeyPrefix)
	}

	if err := itOps.validate(); err != nil {
		t.Errorf("Expected no validation errors but got %v", err)
	}

	expStartKey := "start"
	itOps.startKey = []byte(expStartKey)
	if sk, present := itOps.StartKey(); !present || string(sk) != expStartKey {
		t.Errorf("Expected start key to be set and equal to %s", expStartKey)
	}

	if err := itOps.validate(); err == nil {
		t.Errorf("Expected validation errors but got none")
	} else {
		t.Log(err)
	}

	expStartKey = expKeyPrefix + expStartKey
	itOps.startKey = []byte(expStartKey)

	if err := itOps.validate(); err != nil {
		t.Errorf("Expected no validation error. But got error: %v", err)
	}
}

func TestIterationStopKeyAndCacheSize(t *testing.T) {
	itOpts, err := NewIteratorOptions(IterationStartKey([]byte("b")), IterationStopKey([]byte("d")), IterationCacheSize(10))
	if err != nil {
		t.Fatalf("Expected no validation error. But got error: %v", err)
	}
	if cs, present := itOpts.CacheSize(); !present || cs != 10 {
		t.Errorf("Expected cache size 10, got %d", cs)
	}
	for key, exp := range map[string]bool{"a": false, "c": false, "d": true, "e": true} {
		if act := PastStopKey(itOpts, []byte(key)); act != exp {
			t.Errorf("PastStopKey(%s): expected %v, got %v", key, exp, act)
		}
	}

	if _, err := NewIteratorOptions(IterationStartKey([]byte("x")), IterationStopKey([]byte("a"))); err == nil {
		t.Errorf("Expected validation error for a stop key sorting before the start key")
	}
	if _, err := NewIteratorOptions(IterationCacheSize(-1)); err == nil {
		t.Errorf("Expected validation error for a negative cache size")
	}
}

func TestIterationForEach(t *testing.T) {
	kvs := newMemStore()
	tbl := openTestTable(t, kvs)
	defer tbl.Close()
	for _, k := range []string{"k1", "k2", "k3", "z1"} {
		tbl.Put(&KVPair{Key: []byte(k), Value: []byte("v" + k)})
	}

	var keys []string
	err := tbl.Iteration(IterationPrefixKey([]byte("k")), IterationStartKey([]byte("k2"))).
		ForEach(func(key, _ []byte) error {
			keys = append(keys, string(key))
			return nil
		})
	if err != nil {
		t.Fatalf("Unable to iterate. Error: %v", err)
	}
	if len(keys) != 2 || keys[0] != "k2" || keys[1] != "k3" {
		t.Errorf("Expected [k2 k3], got %v", keys)
	}
	if kvs.openIters != 0 {
		t.Errorf("Expected every iterator to be closed, %d still open", kvs.openIters)
	}
}

func TestIterationForEachStopsOnHandlerError(t *testing.T) {
	kvs := newMemStore()
	tbl := openTestTable(t, kvs)
	defer tbl.Close()
	for _, k := range []string{"k1", "k2", "k3"} {
		tbl.Put(&KVPair{Key: []byte(k), Value: []byte("v")})
	}

	stop := errors.New("stop")
	seen := 0
	err := tbl.Iteration().ForEach(func(_, _ []byte) error {
		seen++
		return stop
	})
	if !errors.Is(err, stop) || seen != 1 {
		t.Errorf("Expected iteration to stop on the first handler error, got %v after %d rows", err, seen)
	}
	if kvs.openIters != 0 {
		t.Errorf("Expected the iterator to be closed on a handler error")
	}

	if err := tbl.Iteration(IterationCacheSize(-1)).ForEach(func(_, _ []byte) error { return nil }); err == nil {
		t.Errorf("Expected invalid options to fail the iteration")
	}
	if kvs.openIters != 0 {
		t.Errorf("Expected no iterator to be opened for invalid options")
	}
}
