package bench

import (
	"github.com/flipkart-incubator/kvbench/internal/opts"
	"github.com/flipkart-incubator/kvbench/internal/stats"
	"github.com/flipkart-incubator/kvbench/internal/storage"
	"go.uber.org/zap"
)

// batchWrite prepares every row up front and writes them in
// one multi put.
type batchWrite struct {
	ds  *DataSet
	lgr *zap.Logger
}

func (bw *batchWrite) Run(tbl *storage.Table, cfg *opts.Config, samples *stats.SampleSet) error {
	rowCount := cfg.RowCount
	bw.lgr.Debug("Preparing rows", zap.Int64("rows", rowCount))
	rows := make([]*storage.KVPair, 0, rowCount)
	for i := int64(0); i < rowCount; i++ {
		rows = append(rows, &storage.KVPair{Key: bw.ds.RowKey(i), Value: bw.ds.RowValue(i)})
		progress(bw.lgr, "Prepared rows for writing", i+1, cfg)
	}

	bw.lgr.Debug("Writing all rows")
	before := tbl.Written()
	if err := tbl.Put(rows...); err != nil {
		if fatal(err) {
			return err
		}
		bw.lgr.Error("Unable to write rows", zap.Error(err))
		return nil
	}
	if err := flushBuffered(tbl); err != nil {
		if fatal(err) {
			return err
		}
		bw.lgr.Error("Unable to flush rows", zap.Error(err))
		return nil
	}

	samples.Add(float64(tbl.Written() - before))
	logStatistics(bw.lgr, samples, "Written Rows", "count")
	return nil
}

// sequentialWrite writes one row per put. Only rows the store
// acknowledged are recorded.
type sequentialWrite struct {
	ds  *DataSet
	lgr *zap.Logger
}

func (sw *sequentialWrite) Run(tbl *storage.Table, cfg *opts.Config, samples *stats.SampleSet) error {
	rowCount := cfg.RowCount
	sw.lgr.Debug("Writing rows", zap.Int64("rows", rowCount))
	before := tbl.Written()
	for i := int64(0); i < rowCount; i++ {
		if err := tbl.Put(&storage.KVPair{Key: sw.ds.RowKey(i), Value: sw.ds.RowValue(i)}); err != nil {
			if fatal(err) {
				return err
			}
			sw.lgr.Error("Unable to write row", zap.Int64("row", i), zap.Error(err))
			continue
		}
		progress(sw.lgr, "Wrote rows", i+1, cfg)
	}
	if err := flushBuffered(tbl); err != nil {
		if fatal(err) {
			return err
		}
		sw.lgr.Error("Unable to flush rows", zap.Error(err))
	}
	samples.Add(float64(tbl.Written() - before))
	return nil
}

// honeycombWrite inserts structured rows along with their
// secondary index entries.
type honeycombWrite struct {
	ds  *DataSet
	lgr *zap.Logger
}

func (hw *honeycombWrite) Run(tbl *storage.Table, cfg *opts.Config, samples *stats.SampleSet) error {
	rowCount := cfg.RowCount
	hw.lgr.Debug("Writing structured rows", zap.Int64("rows", rowCount))
	before := tbl.Written()
	for i := int64(0); i < rowCount; i++ {
		person := hw.ds.HoneycombRow(i)
		val, err := encodeRow(person)
		if err != nil {
			hw.lgr.Error("Unable to encode row", zap.Int64("row", i), zap.Error(err))
			continue
		}
		dataKey := hw.ds.HoneycombDataKey(i)
		err = tbl.Put(
			&storage.KVPair{Key: dataKey, Value: val},
			&storage.KVPair{Key: hw.ds.HoneycombIndexKey(person, i), Value: dataKey},
		)
		if err != nil {
			if fatal(err) {
				return err
			}
			hw.lgr.Error("Unable to insert row", zap.Int64("row", i), zap.Error(err))
			continue
		}
		progress(hw.lgr, "Wrote rows", i+1, cfg)
	}
	if err := tbl.Flush(); err != nil {
		if fatal(err) {
			return err
		}
		hw.lgr.Error("Unable to flush rows", zap.Error(err))
	}
	// every insert pushes a data row and its index entry together
	samples.Add(float64((tbl.Written() - before) / 2))
	return nil
}

func flushBuffered(tbl *storage.Table) error {
	if tbl.IsAutoFlush() {
		return nil
	}
	return tbl.Flush()
}
