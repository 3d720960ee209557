package bench

import (
	"github.com/flipkart-incubator/kvbench/internal/opts"
	"github.com/flipkart-incubator/kvbench/internal/stats"
	"github.com/flipkart-incubator/kvbench/internal/storage"
	"github.com/flipkart-incubator/kvbench/internal/storage/iterators"
	"go.uber.org/zap"
)

// scan iterates over every row of the table.
type scan struct {
	ds  *DataSet
	lgr *zap.Logger
}

func (s *scan) Run(tbl *storage.Table, cfg *opts.Config, samples *stats.SampleSet) error {
	s.lgr.Debug("Performing full table scan")
	var scanned int64
	err := tbl.Iteration(
		storage.IterationPrefixKey(s.ds.RowPrefix()),
		storage.IterationStartKey(s.ds.RowKey(0)),
		storage.IterationStopKey(s.ds.RowKey(cfg.RowCount)),
		storage.IterationCacheSize(cfg.ScanCache),
	).ForEach(func(_, _ []byte) error {
		scanned++
		progress(s.lgr, "Scanned rows", scanned, cfg)
		return nil
	})
	if err != nil {
		if fatal(err) {
			return err
		}
		s.lgr.Error("Error occurred while processing scanner results", zap.Error(err))
		return nil
	}

	samples.Add(float64(scanned))
	logStatistics(s.lgr, samples, "Scanned Rows", "count")
	return nil
}

// randomScan runs fixed range scans from random start keys.
type randomScan struct {
	ds  *DataSet
	lgr *zap.Logger
}

func (rs *randomScan) Run(tbl *storage.Table, cfg *opts.Config, samples *stats.SampleSet) error {
	scanCount, scanRange := cfg.ScanCountValue(), int(cfg.ScanRange)
	for i := 0; i < scanCount; i++ {
		it, err := tbl.Scan(
			storage.IterationPrefixKey(rs.ds.RowPrefix()),
			storage.IterationStartKey(rs.ds.RandomQueryKey()),
			storage.IterationCacheSize(cfg.ScanCache),
		)
		if err != nil {
			if fatal(err) {
				return err
			}
			rs.lgr.Error("Unable to open scanner", zap.Error(err))
			continue
		}
		count, err := iterators.Drain(iterators.Limit(it, scanRange))
		if err != nil {
			rs.lgr.Error("Error occurred while processing scanner results", zap.Error(err))
			continue
		}
		samples.Add(float64(count))
	}
	return nil
}

// honeycombRangeScan follows the index entries of the sample
// query key to their structured rows.
type honeycombRangeScan struct {
	ds  *DataSet
	lgr *zap.Logger
}

func (hs *honeycombRangeScan) Run(tbl *storage.Table, cfg *opts.Config, samples *stats.SampleSet) error {
	scanCount, scanRange := cfg.ScanCountValue(), int(cfg.ScanRange)
	hs.lgr.Debug("Performing index scans",
		zap.Int("scans", scanCount), zap.Int("range", scanRange))
	for i := 1; i <= scanCount; i++ {
		count, err := hs.indexScan(tbl, cfg, scanRange)
		if err != nil {
			if fatal(err) {
				return err
			}
			hs.lgr.Error("Error occurred during index scan", zap.Int("scan", i), zap.Error(err))
			continue
		}
		hs.lgr.Debug("Scan returned rows", zap.Int("scan", i), zap.Int("rows", count))
		samples.Add(float64(count))
	}
	logStatistics(hs.lgr, samples, "Scanned Rows", "count")
	return nil
}

func (hs *honeycombRangeScan) indexScan(tbl *storage.Table, cfg *opts.Config, scanRange int) (int, error) {
	it, err := tbl.Scan(
		storage.IterationPrefixKey(hs.ds.IndexQueryKey()),
		storage.IterationCacheSize(cfg.ScanCache),
	)
	if err != nil {
		return 0, err
	}
	it = iterators.Limit(it, scanRange)
	defer it.Close()

	count := 0
	for it.HasNext() {
		_, dataKey := it.Next()
		row, err := tbl.Get(dataKey)
		if err != nil {
			return count, err
		}
		if row == nil {
			continue
		}
		if _, err := decodeRow(row.Value); err != nil {
			hs.lgr.Warn("Unable to decode row", zap.Error(err))
			continue
		}
		count++
	}
	return count, it.Err()
}
