package main

import (
	"math/rand"
	"strings"
	"testing"
)

func TestGenerateRoomKey(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 100; i++ {
		key := generateRoomKey(rng)
		if len(key) != keyLength {
			t.Errorf("wrong length expected: %d got %d", keyLength, len(key))
		}
		for _, letter := range strings.Split(key, "") {
			if !strings.Contains("123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz", letter) {
				t.Errorf("key %q contains letter outside the alphabet", key)
			}
		}
	}
}
