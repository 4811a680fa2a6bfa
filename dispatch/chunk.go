package dispatch

// Chunk is a contiguous half-open range [Start, End) of item indices
// assigned to one worker.
type Chunk struct {
	Start, End int
}

// Len reports how many items the chunk covers.
func (c Chunk) Len() int { return c.End - c.Start }

// chunks splits total items into at most workers contiguous pieces of
// ⌈total/workers⌉ items each, the last possibly shorter (5 items over 4
// workers gives 3 chunks of 2, 2 and 1). Contiguous
// chunking (rather than round-robin striping) keeps a worker's items
// adjacent, which matters when the launcher passes a chunk to an
// external process as a single [start,end) task rather than one call
// per item.
func chunks(total, workers int) []Chunk {
	if workers <= 0 || total == 0 {
		return nil
	}
	if workers > total {
		workers = total
	}
	size := (total + workers - 1) / workers

	var out []Chunk
	for start := 0; start < total; start += size {
		end := start + size
		if end > total {
			end = total
		}
		out = append(out, Chunk{Start: start, End: end})
	}
	return out
}
