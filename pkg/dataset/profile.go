package dataset

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Profile summarizes a dataset for prompts and reports.
type Profile struct {
	Summary Summary                   `json:"dataset_summary"`
	Columns []ColumnDetail            `json:"column_details"`
	Numeric map[string]NumericSummary `json:"numeric_summary"`
}

type Summary struct {
	Rows          int    `json:"rows"`
	Columns       int    `json:"columns"`
	DuplicateRows int    `json:"duplicate_rows"`
	MemoryUsage   string `json:"memory_usage"`
}

type ColumnDetail struct {
	Column  string     `json:"column"`
	NonNull int        `json:"non_null"`
	Null    int        `json:"null"`
	Type    ColumnType `json:"type"`
}

// NumericSummary mirrors a describe() row, rounded to two decimals.
type NumericSummary struct {
	Count int     `json:"count"`
	Mean  float64 `json:"mean"`
	Std   float64 `json:"std"`
	Min   float64 `json:"min"`
	P25   float64 `json:"25%"`
	P50   float64 `json:"50%"`
	P75   float64 `json:"75%"`
	Max   float64 `json:"max"`
}

// BuildProfile computes the profile of d. Numeric columns without any value
// are left out of the numeric summary.
func BuildProfile(d *Dataset) Profile {
	p := Profile{
		Summary: Summary{
			Rows:          d.NumRows(),
			Columns:       d.NumColumns(),
			DuplicateRows: duplicateRows(d),
			MemoryUsage:   fmt.Sprintf("%.2f MB", float64(approxBytes(d))/(1024*1024)),
		},
		Columns: make([]ColumnDetail, d.NumColumns()),
		Numeric: make(map[string]NumericSummary),
	}

	for c, col := range d.columns {
		values := d.Column(c)
		nulls := 0
		for _, v := range values {
			if v == nil {
				nulls++
			}
		}
		p.Columns[c] = ColumnDetail{
			Column:  col.Name,
			NonNull: len(values) - nulls,
			Null:    nulls,
			Type:    col.Type,
		}

		if col.Type.Numeric() {
			if s, ok := describe(values); ok {
				p.Numeric[col.Name] = s
			}
		}
	}

	return p
}

func describe(values []any) (NumericSummary, bool) {
	nums := make([]float64, 0, len(values))
	for _, v := range values {
		switch x := v.(type) {
		case int64:
			nums = append(nums, float64(x))
		case float64:
			if !math.IsNaN(x) {
				nums = append(nums, x)
			}
		}
	}
	if len(nums) == 0 {
		return NumericSummary{}, false
	}
	sort.Float64s(nums)

	var sum float64
	for _, n := range nums {
		sum += n
	}
	mean := sum / float64(len(nums))

	// sample standard deviation, zero when undefined
	var std float64
	if len(nums) > 1 {
		var sq float64
		for _, n := range nums {
			sq += (n - mean) * (n - mean)
		}
		std = math.Sqrt(sq / float64(len(nums)-1))
	}

	return NumericSummary{
		Count: len(nums),
		Mean:  round2(mean),
		Std:   round2(std),
		Min:   round2(nums[0]),
		P25:   round2(quantile(nums, 0.25)),
		P50:   round2(quantile(nums, 0.50)),
		P75:   round2(quantile(nums, 0.75)),
		Max:   round2(nums[len(nums)-1]),
	}, true
}

// quantile uses linear interpolation between closest ranks over sorted input.
func quantile(sorted []float64, q float64) float64 {
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	return sorted[lo] + (sorted[hi]-sorted[lo])*(pos-float64(lo))
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}

func duplicateRows(d *Dataset) int {
	seen := make(map[string]struct{}, len(d.rows))
	dups := 0
	var sb strings.Builder
	for _, row := range d.rows {
		sb.Reset()
		for _, v := range row {
			fmt.Fprintf(&sb, "%T:%v\x1f", v, v)
		}
		key := sb.String()
		if _, ok := seen[key]; ok {
			dups++
			continue
		}
		seen[key] = struct{}{}
	}
	return dups
}

func approxBytes(d *Dataset) int {
	total := 0
	for _, row := range d.rows {
		for _, v := range row {
			switch x := v.(type) {
			case string:
				total += 16 + len(x)
			case bool:
				total++
			default:
				total += 8
			}
		}
	}
	return total
}
