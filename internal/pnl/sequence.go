package pnl

import "sort"

// Sequence returns the records sorted ascending by timestamp. Records with
// equal timestamps keep their relative input order. The input is not modified.
func Sequence(records []OrderRecord) []OrderRecord {
	out := make([]OrderRecord, len(records))
	copy(out, records)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}

// partition splits an already sequenced batch by instrument, preserving order
// within each instrument. The returned names are in first-seen order.
func partition(records []OrderRecord) ([]string, map[string][]OrderRecord) {
	var names []string
	groups := make(map[string][]OrderRecord)
	for _, rec := range records {
		if _, ok := groups[rec.Instrument]; !ok {
			names = append(names, rec.Instrument)
		}
		groups[rec.Instrument] = append(groups[rec.Instrument], rec)
	}
	return names, groups
}
