package domain

import "testing"

func TestSplitJoinNonceRoundTrip(t *testing.T) {
	original, err := ParseBigInt("0x" + "1234567890abcdef1234567890abcdef12345678" + "000000000000000000000001")
	if err != nil {
		t.Fatalf("ParseBigInt: %v", err)
	}

	high, low := SplitNonce(original)
	rejoined := JoinNonce(high, low)

	if rejoined.Cmp(original) != 0 {
		t.Errorf("JoinNonce(SplitNonce(n)) = %s, want %s", rejoined.String(), original.String())
	}
}

func TestComposeNonceAndSponsor(t *testing.T) {
	const sponsorAddr = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa" // 40 hex digits

	sponsor, err := ParseBigInt(sponsorAddr)
	if err != nil {
		t.Fatalf("ParseBigInt(sponsor): %v", err)
	}

	nonce := ComposeNonce(sponsor, 42)
	if got := NonceSponsor(nonce); got != sponsorAddr {
		t.Errorf("NonceSponsor(ComposeNonce(sponsor, 42)) = %s, want %s", got, sponsorAddr)
	}
}

func TestComposeNonceFragmentIsLowBits(t *testing.T) {
	sponsor := BigIntFromInt64(0)
	nonce := ComposeNonce(sponsor, 7)
	if nonce.String() != "7" {
		t.Errorf("ComposeNonce(0, 7) = %s, want 7 (zero sponsor contributes no high bits)", nonce.String())
	}
}
