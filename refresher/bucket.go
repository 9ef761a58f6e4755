package refresher

import (
	"encoding/binary"
	"hash/fnv"
)

// Bucket places a credential in one of interval buckets.
func Bucket(keyID int64, interval int) int {
	if interval <= 1 {
		return 0
	}
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(keyID))
	h := fnv.New32a()
	_, _ = h.Write(b[:])
	return int(h.Sum32() % uint32(interval))
}

// Partition splits keys into interval buckets.
func Partition(keys []int64, interval int) [][]int64 {
	if interval < 1 {
		interval = 1
	}
	out := make([][]int64, interval)
	for _, k := range keys {
		b := Bucket(k, interval)
		out[b] = append(out[b], k)
	}
	return out
}

// WorkerBuckets lists the buckets worker index owns out of workers: index,
// index+workers, index+2*workers and so on.
func WorkerBuckets(index, workers, interval int) []int {
	if workers < 1 {
		workers = 1
	}
	var out []int
	for b := index; b < interval; b += workers {
		out = append(out, b)
	}
	return out
}
