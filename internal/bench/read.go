package bench

import (
	"encoding/hex"

	"github.com/flipkart-incubator/kvbench/internal/opts"
	"github.com/flipkart-incubator/kvbench/internal/stats"
	"github.com/flipkart-incubator/kvbench/internal/storage"
	"go.uber.org/zap"
)

// getRow looks up the last row of the table.
type getRow struct {
	ds  *DataSet
	lgr *zap.Logger
}

func (gr *getRow) Run(tbl *storage.Table, cfg *opts.Config, _ *stats.SampleSet) error {
	key := gr.ds.RowKey(cfg.RowCount - 1)
	gr.lgr.Debug("Looking for row", zap.String("key", hex.EncodeToString(key)))

	row, err := tbl.Get(key)
	switch {
	case err != nil:
		if fatal(err) {
			return err
		}
		gr.lgr.Error("Unable to get row", zap.Error(err))
	case row == nil:
		gr.lgr.Debug("Row could not be found")
	default:
		gr.lgr.Debug("Row found")
	}
	return nil
}

// sequentialRead gets every row one at a time.
type sequentialRead struct {
	ds  *DataSet
	lgr *zap.Logger
}

func (sr *sequentialRead) Run(tbl *storage.Table, cfg *opts.Config, samples *stats.SampleSet) error {
	rowCount := cfg.RowCount
	sr.lgr.Debug("Performing sequential read", zap.Int64("rows", rowCount))
	var found int64
	for i := int64(0); i < rowCount; i++ {
		row, err := tbl.Get(sr.ds.RowKey(i))
		if err != nil {
			if fatal(err) {
				return err
			}
			sr.lgr.Error("Unable to read row", zap.Int64("row", i), zap.Error(err))
			continue
		}
		if row != nil {
			found++
		}
		progress(sr.lgr, "Read rows", i+1, cfg)
	}
	samples.Add(float64(found))
	return nil
}
