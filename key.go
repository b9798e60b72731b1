package main

import (
	"math/rand"
	"strings"
)

// Alphabet without 0, O, I and l, which read ambiguously when a key is
// shared by hand.
var keyLetters = strings.Split("123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz", "")

const keyLength = 5

func generateRoomKey(r *rand.Rand) string {
	key := ""
	for i := 0; i < keyLength; i++ {
		key += keyLetters[r.Intn(len(keyLetters))]
	}
	return key
}
