package hashtable

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestLoadCDTB(t *testing.T) {
	input := "0000001f2e3d4c5b assets/maps/info/map11.bin\r\n" +
		"\n" +
		"ab data/menu/en_us/main.stringtable\n" +
		"ffffffffffffffff name with spaces.txt\n"

	tbl := New()
	n, err := tbl.LoadCDTB(strings.NewReader(input))
	if err != nil {
		t.Fatalf("LoadCDTB: %v", err)
	}
	if n != 3 {
		t.Errorf("inserted %d, want 3", n)
	}

	tests := []struct {
		hash uint64
		want string
	}{
		{0x1f2e3d4c5b, "assets/maps/info/map11.bin"},
		{0xab, "data/menu/en_us/main.stringtable"},
		{0xffffffffffffffff, "name with spaces.txt"},
	}
	for _, tt := range tests {
		if got := tbl.NameOrHex(tt.hash); got != tt.want {
			t.Errorf("NameOrHex(%x) = %q, want %q", tt.hash, got, tt.want)
		}
	}
}

func TestLoadCDTBErrors(t *testing.T) {
	for _, input := range []string{"nospace\n", "zz name\n", " leading\n"} {
		tbl := New()
		if _, err := tbl.LoadCDTB(strings.NewReader(input)); !errors.Is(err, ErrInvalidFormat) {
			t.Errorf("LoadCDTB(%q) = %v, want ErrInvalidFormat", input, err)
		}
	}
}

func TestWriteCDTBRoundTrip(t *testing.T) {
	tbl := New()
	tbl.Insert(0x20, "b.bin")
	tbl.Insert(0x10, "a.bin")

	var out bytes.Buffer
	if err := tbl.WriteCDTB(&out); err != nil {
		t.Fatalf("WriteCDTB: %v", err)
	}
	want := "0000000000000010 a.bin\n0000000000000020 b.bin\n"
	if out.String() != want {
		t.Errorf("WriteCDTB = %q, want %q", out.String(), want)
	}

	back := New()
	if _, err := back.LoadCDTB(&out); err != nil {
		t.Fatalf("LoadCDTB: %v", err)
	}
	if back.Len() != 2 || back.NameOrHex(0x10) != "a.bin" {
		t.Error("round trip through text format lost entries")
	}
}
