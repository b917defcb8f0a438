package main

import (
	"bufio"
	"context"
	"encoding/csv"
	"io"
	"math/bits"
	"os"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/google/uuid"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/parcel-checkout/internal/domain/coupon"
)

const (
	maxBatches    = bits.UintSize
	progressEvery = 1_000_000
	minCodeLen    = 4
	maxCodeLen    = 32
)

// couponInserter stores coupons, reporting false for codes that already exist.
type couponInserter interface {
	Insert(ctx context.Context, c *coupon.Coupon) (bool, error)
}

// errInvalidRow marks a batch row that cannot be turned into a coupon.
var errInvalidRow = errors.New("invalid row")

// parseRow maps a CSV record to a coupon. The expected columns are
// code,type,value[,uses,user,minimum,maximum]; missing limits are zero.
func parseRow(record []string) (*coupon.Coupon, error) {
	if len(record) < 3 {
		return nil, errors.Wrapf(errInvalidRow, "expected at least 3 columns, got %d", len(record))
	}
	code := normalizeCode(record[0])
	if !validCode(code) {
		return nil, errors.Wrapf(errInvalidRow, "bad code %q", record[0])
	}

	typ := coupon.Type(strings.ToLower(strings.TrimSpace(record[1])))
	if typ != coupon.TypeAmount && typ != coupon.TypePercentage {
		return nil, errors.Wrapf(errInvalidRow, "unknown type %q", record[1])
	}
	value, err := decimal.NewFromString(strings.TrimSpace(record[2]))
	if err != nil || value.IsNegative() {
		return nil, errors.Wrapf(errInvalidRow, "bad value %q", record[2])
	}
	if typ == coupon.TypePercentage && value.GreaterThan(decimal.NewFromInt(100)) {
		return nil, errors.Wrapf(errInvalidRow, "percentage %s above 100", value)
	}

	c := &coupon.Coupon{
		ID:      uuid.NewString(),
		Code:    code,
		Type:    typ,
		Value:   value,
		Enabled: true,
	}
	ints := []*int{&c.Limits.Uses, &c.Limits.User}
	for i, dst := range ints {
		col := 3 + i
		if col >= len(record) || strings.TrimSpace(record[col]) == "" {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(record[col]))
		if err != nil || n < 0 {
			return nil, errors.Wrapf(errInvalidRow, "bad limit %q", record[col])
		}
		*dst = n
	}
	amounts := []*decimal.Decimal{&c.Limits.MinimumAmount, &c.Limits.MaximumAmount}
	for i, dst := range amounts {
		col := 5 + i
		if col >= len(record) || strings.TrimSpace(record[col]) == "" {
			continue
		}
		d, err := decimal.NewFromString(strings.TrimSpace(record[col]))
		if err != nil || d.IsNegative() {
			return nil, errors.Wrapf(errInvalidRow, "bad amount %q", record[col])
		}
		*dst = d
	}
	return c, nil
}

func normalizeCode(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

func validCode(code string) bool {
	if len(code) < minCodeLen || len(code) > maxCodeLen {
		return false
	}
	for _, r := range code {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') && r != '-' && r != '_' {
			return false
		}
	}
	return true
}

// streamBatch opens a gzip-compressed CSV batch and calls fn for each record.
// A header line starting with "code" is skipped.
func streamBatch(ctx context.Context, path string, fn func(record []string) error) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	r := csv.NewReader(bufio.NewReader(gz))
	r.FieldsPerRecord = -1
	r.ReuseRecord = true
	for line := 0; ; line++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return errors.Wrapf(err, "read %s", path)
		}
		if line == 0 && len(record) > 0 && strings.EqualFold(strings.TrimSpace(record[0]), "code") {
			continue
		}
		if err := fn(record); err != nil {
			return err
		}
	}
}

// buildFilters creates one bloom filter of codes per batch, concurrently.
func buildFilters(ctx context.Context, lg *zap.Logger, files []string, capacity uint, fpRate float64) ([]*bloom.BloomFilter, error) {
	filters := make([]*bloom.BloomFilter, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			filter := bloom.NewWithEstimates(capacity, fpRate)
			var count uint64
			if err := streamBatch(ctx, path, func(record []string) error {
				if len(record) == 0 {
					return nil
				}
				code := normalizeCode(record[0])
				if !validCode(code) {
					return nil
				}
				filter.AddString(code)
				count++
				if count%progressEvery == 0 {
					lg.Info("Pass 1 progress", zap.String("batch", path), zap.Uint64("codes", count))
				}
				return nil
			}); err != nil {
				return errors.Wrapf(err, "filter batch %d", i+1)
			}
			lg.Info("Pass 1 complete", zap.String("batch", path), zap.Uint64("codes", count))
			filters[i] = filter
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return filters, nil
}

// findConflicts returns the codes present in two or more batches. Each batch
// records its own bit for codes that test positive in another batch's
// filter; a bloom false positive sets a single bit, so only codes with two
// or more bits are real conflicts.
func findConflicts(ctx context.Context, lg *zap.Logger, files []string, filters []*bloom.BloomFilter) (map[string]struct{}, error) {
	candidates := make([]map[string]uint, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			seen := make(map[string]uint)
			bit := uint(1) << uint(i)
			if err := streamBatch(ctx, path, func(record []string) error {
				if len(record) == 0 {
					return nil
				}
				code := normalizeCode(record[0])
				if !validCode(code) {
					return nil
				}
				for j, f := range filters {
					if j != i && f.TestString(code) {
						seen[code] |= bit
						break
					}
				}
				return nil
			}); err != nil {
				return errors.Wrapf(err, "scan batch %d", i+1)
			}
			lg.Info("Pass 2 complete", zap.String("batch", path), zap.Int("candidates", len(seen)))
			candidates[i] = seen
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := make(map[string]uint)
	for _, c := range candidates {
		for code, mask := range c {
			merged[code] |= mask
		}
	}
	conflicts := make(map[string]struct{})
	for code, mask := range merged {
		if bits.OnesCount(mask) >= 2 {
			conflicts[code] = struct{}{}
		}
	}
	return conflicts, nil
}

type ingestStats struct {
	inserted    uint64
	existing    uint64
	conflicting uint64
	invalid     uint64
}

// ingest streams every batch and inserts its coupons, skipping conflicting
// codes. Invalid rows are logged and counted.
func ingest(
	ctx context.Context,
	lg *zap.Logger,
	repo couponInserter,
	files []string,
	conflicts map[string]struct{},
	workers int,
) (ingestStats, error) {
	var inserted, existing, conflicting, invalid atomic.Uint64

	g, ctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}
	for _, path := range files {
		g.Go(func() error {
			line := 0
			return streamBatch(ctx, path, func(record []string) error {
				line++
				c, err := parseRow(record)
				if err != nil {
					invalid.Add(1)
					lg.Debug("Skipping row", zap.String("batch", path), zap.Int("line", line), zap.Error(err))
					return nil
				}
				if _, ok := conflicts[c.Code]; ok {
					conflicting.Add(1)
					return nil
				}
				ok, err := repo.Insert(ctx, c)
				if err != nil {
					return errors.Wrapf(err, "%s line %d", path, line)
				}
				if ok {
					inserted.Add(1)
				} else {
					existing.Add(1)
				}
				return nil
			})
		})
	}
	err := g.Wait()
	return ingestStats{
		inserted:    inserted.Load(),
		existing:    existing.Load(),
		conflicting: conflicting.Load(),
		invalid:     invalid.Load(),
	}, err
}
