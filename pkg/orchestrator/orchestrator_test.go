package orchestrator

import "testing"

func TestParseEVMChainID(t *testing.T) {
	cases := []struct {
		key     string
		want    uint32
		wantErr bool
	}{
		{"EVM(1)", 1, false},
		{"EVM(42161)", 42161, false},
		{"EVM(8453)", 8453, false},
		{"Substrate(68617a6c)", 0, true},
		{"EVM()", 0, true},
		{"garbage", 0, true},
	}

	for _, c := range cases {
		got, err := parseEVMChainID(c.key)
		if c.wantErr {
			if err == nil {
				t.Errorf("parseEVMChainID(%q): expected error, got %d", c.key, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseEVMChainID(%q): unexpected error: %v", c.key, err)
			continue
		}
		if got != c.want {
			t.Errorf("parseEVMChainID(%q) = %d, want %d", c.key, got, c.want)
		}
	}
}

func TestParseSubstrateTag(t *testing.T) {
	got, err := parseSubstrateTag("Substrate(68617a6c)")
	if err != nil {
		t.Fatalf("parseSubstrateTag: unexpected error: %v", err)
	}
	want := [4]byte{0x68, 0x61, 0x7a, 0x6c}
	if got != want {
		t.Errorf("parseSubstrateTag = %x, want %x", got, want)
	}
}

func TestParseSubstrateTagRejectsBadInput(t *testing.T) {
	cases := []string{
		"EVM(1)",
		"Substrate(zz)",
		"Substrate(aabb)",   // only 2 bytes, not 4
		"Substrate()",
		"not-a-key",
	}
	for _, key := range cases {
		if _, err := parseSubstrateTag(key); err == nil {
			t.Errorf("parseSubstrateTag(%q): expected error, got none", key)
		}
	}
}
