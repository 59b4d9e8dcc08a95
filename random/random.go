package random

import (
	crand "crypto/rand"
	"encoding/binary"
	"math/big"
	mrand "math/rand"
	"strings"
	"sync"
	"time"
)

const charset = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

var (
	mu  sync.Mutex
	rnd *mrand.Rand
)

func init() {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		rnd = mrand.New(mrand.NewSource(time.Now().UnixNano()))
		return
	}
	rnd = mrand.New(mrand.NewSource(int64(binary.LittleEndian.Uint64(b[:]))))
}

func String(length int) string {
	mu.Lock()
	defer mu.Unlock()

	b := make([]byte, length)
	for i := range b {
		b[i] = charset[rnd.Intn(len(charset))]
	}
	return string(b)
}

func StringSecure(length int) (string, error) {
	b := make([]byte, length)
	for i := range b {
		l := big.NewInt(int64(len(charset)))
		num, err := crand.Int(crand.Reader, l)
		if err != nil {
			return "", err
		}
		b[i] = charset[num.Int64()]
	}
	return string(b), nil
}

// ID returns a prefixed identifier such as cart_01Hx..., the shape the
// commerce backend uses for its own resources.
func ID(prefix string) string {
	return strings.TrimSuffix(prefix, "_") + "_" + String(20)
}
