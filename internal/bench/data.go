package bench

import (
	"encoding/binary"
	"math/rand"

	"github.com/OneOfOne/xxhash"
	"github.com/flipkart-incubator/kvbench/internal/opts"
	"github.com/google/uuid"
	"github.com/shamaton/msgpack"
)

const (
	rowKeyPrefix       = "r"
	honeycombDataKey   = "hd"
	honeycombIndexKey  = "hi"
	HoneycombIndexName = "idxName"
)

// RowUUID identifies every benchmark row.
var RowUUID = uuid.MustParse("e315c6bf-ef4e-4c08-bb95-09a70c98d278")

// Person is the structured row written by the honeycomb
// workloads. It is indexed on FirstName.
type Person struct {
	FirstName string `msgpack:"firstName"`
	LastName  string `msgpack:"lastName"`
	Address   string `msgpack:"address"`
	Zip       string `msgpack:"zip"`
	State     string `msgpack:"state"`
	Country   string `msgpack:"country"`
	Phone     string `msgpack:"phone"`
	Salary    int64  `msgpack:"salary"`
	Fk        int64  `msgpack:"fk"`
}

var samplePerson = Person{
	FirstName: "Penelope",
	LastName:  "Ortiz",
	Address:   "50100 Bechtelar Turnpike",
	Zip:       "02362",
	State:     "Mississippi",
	Country:   "Turks and Caicos Islands",
	Phone:     "(710)173-1052 x897",
	Salary:    9215,
	Fk:        1,
}

// DataSet generates the keys and values used by workloads.
// It is not safe for concurrent use.
type DataSet struct {
	rowUUID   uuid.UUID
	minLen    int
	maxLen    int
	queryKeys [][]byte
	rnd       *rand.Rand
}

// NewDataSet builds the data set for the given configuration. The
// pool of random query keys is drawn from the given seed.
func NewDataSet(cfg *opts.Config, seed int64) *DataSet {
	minLen, maxLen := cfg.RowLengthRange()
	ds := &DataSet{
		rowUUID: RowUUID,
		minLen:  minLen,
		maxLen:  maxLen,
		rnd:     rand.New(rand.NewSource(seed)),
	}
	rowCount := cfg.RowCount
	if rowCount <= 0 {
		rowCount = 1
	}
	numKeys := cfg.QueryKeys
	if numKeys <= 0 {
		numKeys = 1
	}
	ds.queryKeys = make([][]byte, numKeys)
	for i := range ds.queryKeys {
		ds.queryKeys[i] = ds.RowKey(ds.rnd.Int63n(rowCount))
	}
	return ds
}

// RowPrefix is the common prefix of every row key.
func (ds *DataSet) RowPrefix() []byte {
	return []byte(rowKeyPrefix)
}

// RowKey encodes the key of the given row. Keys sort in
// row order.
func (ds *DataSet) RowKey(row int64) []byte {
	key := make([]byte, 0, len(rowKeyPrefix)+8+len(ds.rowUUID))
	key = append(key, rowKeyPrefix...)
	key = binary.BigEndian.AppendUint64(key, uint64(row))
	return append(key, ds.rowUUID[:]...)
}

// RowValue returns the payload of the given row. The same row
// always gets the same payload.
func (ds *DataSet) RowValue(row int64) []byte {
	var idx [8]byte
	binary.BigEndian.PutUint64(idx[:], uint64(row))
	h := xxhash.Checksum64(idx[:])

	n := ds.minLen
	if ds.maxLen > ds.minLen {
		n += int(h % uint64(ds.maxLen-ds.minLen+1))
	}
	val := make([]byte, n)
	var blk [8]byte
	for off, seed := 0, h; off < n; off, seed = off+len(blk), seed+1 {
		binary.LittleEndian.PutUint64(blk[:], xxhash.Checksum64S(idx[:], seed))
		copy(val[off:], blk[:])
	}
	return val
}

// RandomQueryKey picks a start key from the query key pool.
func (ds *DataSet) RandomQueryKey() []byte {
	return ds.queryKeys[ds.rnd.Intn(len(ds.queryKeys))]
}

// HoneycombRow returns the structured row stored under the given id.
func (ds *DataSet) HoneycombRow(_ int64) Person {
	return samplePerson
}

// HoneycombDataKey encodes the key of a structured row.
func (ds *DataSet) HoneycombDataKey(row int64) []byte {
	key := make([]byte, 0, len(honeycombDataKey)+8+len(ds.rowUUID))
	key = append(key, honeycombDataKey...)
	key = binary.BigEndian.AppendUint64(key, uint64(row))
	return append(key, ds.rowUUID[:]...)
}

// HoneycombIndexKey encodes the index entry of a structured row.
func (ds *DataSet) HoneycombIndexKey(p Person, row int64) []byte {
	key := indexPrefix(p.FirstName)
	return binary.BigEndian.AppendUint64(key, uint64(row))
}

// IndexQueryKey is the exact key prefix of the index entries
// matching the sample first name.
func (ds *DataSet) IndexQueryKey() []byte {
	return indexPrefix(samplePerson.FirstName)
}

func indexPrefix(firstName string) []byte {
	key := make([]byte, 0, len(honeycombIndexKey)+len(HoneycombIndexName)+len(firstName)+2+8)
	key = append(key, honeycombIndexKey...)
	key = append(key, HoneycombIndexName...)
	key = append(key, 0)
	key = append(key, firstName...)
	return append(key, 0)
}

func encodeRow(p Person) ([]byte, error) {
	return msgpack.Marshal(p)
}

func decodeRow(b []byte) (Person, error) {
	var p Person
	err := msgpack.Unmarshal(b, &p)
	return p, err
}
