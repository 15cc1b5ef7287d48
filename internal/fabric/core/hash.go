// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package core

import (
	rendezvous "github.com/dgryski/go-rendezvous"
)

// murmur3Mix32 is a seeded, non-cryptographic 32-bit finalizer mix in the
// style of MurmurHash3's fmix32. It seeds both Flow-ECMP's rendezvous
// hasher and the CONWEAVE blacklist's direct-mapped slot index, per
// spec.md section 4.2 ("seeded non-cryptographic 32-bit mix, Murmur3-style").
func murmur3Mix32(seed uint32, data []byte) uint32 {
	h := seed
	for _, b := range data {
		h ^= uint32(b)
		h *= 0x85ebca6b
		h ^= h >> 13
	}
	h ^= h >> 16
	h *= 0x85ebca6b
	h ^= h >> 13
	h *= 0xc2b2ae35
	h ^= h >> 16
	return h
}

// rendezvousHash64 widens murmur3Mix32 into the 64-bit Hasher signature
// github.com/dgryski/go-rendezvous expects, by mixing twice with a salted
// seed for the upper half.
func rendezvousHash64(seed uint32) func(string) uint64 {
	return func(s string) uint64 {
		b := []byte(s)
		lo := murmur3Mix32(seed, b)
		hi := murmur3Mix32(seed^0x9e3779b9, b)
		return uint64(hi)<<32 | uint64(lo)
	}
}

// newRendezvous builds a rendezvous (highest-random-weight) hash ring over
// candidate labels. HRW hashing gives Flow-ECMP the same "same key, same
// node" determinism a naive hash%len selector has, while being the
// teacher's own declared dependency (previously only pulled in transitively
// through go-redis's ring client) rather than a hand-rolled modulo.
func newRendezvous(seed uint32, labels []string) *rendezvous.Rendezvous {
	return rendezvous.New(labels, rendezvousHash64(seed))
}
