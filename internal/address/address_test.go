package address

import "testing"

func TestNormalize(t *testing.T) {
	got, err := Normalize("  0x742d35Cc6634C0532925a3b8D4C9db96c728b0B4 ")
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if got != "0x742d35cc6634c0532925a3b8d4c9db96c728b0b4" {
		t.Fatalf("unexpected normalized address %s", got)
	}

	for _, bad := range []string{"", "0x123", "not-an-address", "0xZZ2d35Cc6634C0532925a3b8D4C9db96c728b0B4"} {
		if _, err := Normalize(bad); err != ErrInvalid {
			t.Fatalf("expected ErrInvalid for %q, got %v", bad, err)
		}
	}
}

func TestChecksumAndEqual(t *testing.T) {
	sum, err := Checksum("0x742d35cc6634c0532925a3b8d4c9db96c728b0b4")
	if err != nil {
		t.Fatalf("checksum: %v", err)
	}
	again, err := Checksum(sum)
	if err != nil || again != sum {
		t.Fatalf("checksum not stable: %s vs %s (%v)", sum, again, err)
	}
	if !Equal(sum, "0x742D35CC6634C0532925A3B8D4C9DB96C728B0B4") {
		t.Fatal("expected addresses to compare equal regardless of case")
	}
	if Equal(sum, "garbage") {
		t.Fatal("expected invalid address to compare unequal")
	}
}
