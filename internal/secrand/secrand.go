// Package secrand provides cryptographically unpredictable primitives used
// by the discrete noise samplers. It is adapted from the buffered
// crypto/rand source the differential-privacy library uses to avoid the
// syscall overhead of drawing single bytes at a time.
package secrand

import (
	"bufio"
	cryptorand "crypto/rand"
	"encoding/binary"
	"io"
	"math"
	"math/big"
	"sync"

	log "github.com/golang/glog"
)

var (
	bufLock sync.Mutex
	buf     io.Reader = bufio.NewReaderSize(cryptorand.Reader, 64*1024)

	bitLock sync.Mutex
	bitBuf  uint8
	bitPos  int8 = math.MaxInt8
)

func read(b []byte) {
	bufLock.Lock()
	defer bufLock.Unlock()
	if _, err := io.ReadFull(buf, b); err != nil {
		log.Fatalf("secrand: out of randomness, should never happen: %v", err)
	}
}

// Uint64 returns a uniformly random uint64.
func Uint64() uint64 {
	var r [8]byte
	read(r[:])
	return binary.LittleEndian.Uint64(r[:])
}

// Uint8 returns a uniformly random uint8.
func Uint8() uint8 {
	var r [1]byte
	read(r[:])
	return r[0]
}

// Bool returns true or false with equal probability.
func Bool() bool {
	bitLock.Lock()
	defer bitLock.Unlock()
	if bitPos > 7 {
		bitBuf = Uint8()
		bitPos = 0
	}
	res := bitBuf&(1<<bitPos) > 0
	bitPos++
	return res
}

// Int63n returns an integer drawn uniformly from {0, ..., n-1}. n must be positive.
func Int63n(n int64) int64 {
	if n <= 0 {
		log.Fatalf("secrand.Int63n: n must be positive, got %d", n)
	}
	largestMultiple := (math.MaxInt64 / n) * n
	for {
		v := int64(Uint64()) & 0x7fffffffffffffff
		if v < largestMultiple {
			return v % n
		}
	}
}

// BigIntN returns an integer drawn uniformly from {0, ..., n-1} for an
// arbitrarily large positive n, via rejection sampling over the smallest
// number of random bits covering n.
func BigIntN(n *big.Int) *big.Int {
	if n.Sign() <= 0 {
		log.Fatalf("secrand.BigIntN: n must be positive, got %v", n)
	}
	bitLen := n.BitLen()
	byteLen := (bitLen + 7) / 8
	mask := byte(0xff)
	if m := bitLen % 8; m != 0 {
		mask = byte(1<<m) - 1
	}
	buf := make([]byte, byteLen)
	for {
		read(buf)
		buf[0] &= mask
		v := new(big.Int).SetBytes(buf)
		if v.Cmp(n) < 0 {
			return v
		}
	}
}

// Geometric returns the number of Bernoulli(0.5) trials, including the
// success, drawn until the first success: 1 plus the count of leading zero
// bits in an infinite stream of random bits.
func Geometric() int64 {
	count := int64(1)
	for {
		b := Uint8()
		if b != 0 {
			for b&0x80 == 0 {
				count++
				b <<= 1
			}
			return count
		}
		count += 8
	}
}
