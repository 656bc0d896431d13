package archive

import "testing"

func TestPathHasher_FNV1a_IsCaseInsensitive(t *testing.T) {
	h := PathHasher{}
	if h.Hash("/Data/Config.xml") != h.Hash("/data/config.xml") {
		t.Fatalf("hash should fold case before hashing, so differently-cased paths fingerprint identically")
	}
}

func TestPathHasher_FNV1a_Deterministic(t *testing.T) {
	h := PathHasher{}
	if h.Hash("/data/config.xml") != h.Hash("/data/config.xml") {
		t.Fatalf("hash must be deterministic for identical input")
	}
}

func TestPathHasher_TrailingSlashIgnored(t *testing.T) {
	h := PathHasher{}
	if h.Hash("/data/") != h.Hash("/data") {
		t.Fatalf("hash should ignore a single trailing slash")
	}
}

func TestPathHasher_DistinctPathsDiffer(t *testing.T) {
	h := PathHasher{}
	if h.Hash("/data/config.xml") == h.Hash("/data/other.xml") {
		t.Fatalf("distinct paths should not collide in this small sample")
	}
}
