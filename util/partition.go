package util

import "github.com/spaolacci/murmur3"

// Partition assigns a key to one of n partitions. Used to spread delay
// queue continuations over multiple sorted sets.
func Partition(key string, n int) int {
	if n <= 1 {
		return 0
	}
	return int(murmur3.Sum32([]byte(key)) % uint32(n))
}
