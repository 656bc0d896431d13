package archive

import "strings"

// PathHasher fingerprints archive paths for AddEntry collision detection.
// RPF7 itself carries no path-hash index on disk; this is a pure
// in-memory convenience for callers building an archive from many files.
//
// The teacher's own bundle.go carries a commented-out import of
// "github.com/rryqszq4/go-murmurhash" and a dead murmurHash64A that falls
// back to hash/fnv after hitting an "undefined: murmurhash.MurmurHash2_x64_64"
// build error in its own history -- that symbol does not exist in the
// real library, so this engine only ever fingerprints with FNV-1a, the
// scheme the teacher's placeholder actually ships.
type PathHasher struct{}

// Hash returns path's FNV-1a64 fingerprint. A trailing slash is trimmed
// and the path is lowercased first, so that "/Data/" and "/data"
// fingerprint identically.
func (h PathHasher) Hash(path string) uint64 {
	normalized := strings.ToLower(strings.TrimSuffix(path, "/"))
	return fnv1a64(normalized)
}

// fnv1a64 hashes an already-lowercased name with a 64-bit FNV-1a variant
// that folds in two extra rounds on '+', matching the fingerprint scheme
// used elsewhere in this codebase's ancestry for path hashing.
func fnv1a64(name string) uint64 {
	const offsetBasis uint64 = 0xCBF29CE484222325
	const prime uint64 = 0x100000001B3

	hash := offsetBasis
	for i := 0; i < len(name); i++ {
		hash = (hash ^ uint64(name[i])) * prime
	}
	hash = (hash ^ uint64('+')) * prime
	hash = (hash ^ uint64('+')) * prime
	return hash
}
