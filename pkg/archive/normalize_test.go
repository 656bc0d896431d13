package archive

import "testing"

func TestNormalizeEntryPath(t *testing.T) {
	cases := map[string]string{
		"data/config.xml":   "/data/config.xml",
		"/data/config.xml":  "/data/config.xml",
		`data\config.xml`:   "/data/config.xml",
		`\data\config.xml`:  "/data/config.xml",
	}
	for in, want := range cases {
		if got := NormalizeEntryPath(in); got != want {
			t.Errorf("NormalizeEntryPath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestIsFileName(t *testing.T) {
	if !isFileName("config.xml") {
		t.Errorf("expected config.xml to be classified as a file")
	}
	if isFileName("README") {
		t.Errorf("expected a dotless name to be classified as a directory (documented misclassification rule)")
	}
}
