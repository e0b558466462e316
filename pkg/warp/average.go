package warp

import "fmt"

// Average returns the field-wise unweighted mean of count records.
//
// Each record contributes field/count to the running total rather than
// summing first and dividing once, so a long run of large run times does
// not grow a single accumulator before the division.
func Average(records []Record, count int) (Record, error) {
	if count <= 0 {
		return Record{}, fmt.Errorf("%w: count=%d", ErrEmptySampleSet, count)
	}
	if count != len(records) {
		return Record{}, fmt.Errorf("%w: count=%d, len(records)=%d",
			ErrSampleCountMismatch, count, len(records))
	}

	n := float64(count)
	var out Record
	for _, r := range records {
		out.AvgStep += r.AvgStep / n
		out.AvgMaxWarp += r.AvgMaxWarp / n
		out.RunTime += r.RunTime / n
	}
	return out, nil
}
