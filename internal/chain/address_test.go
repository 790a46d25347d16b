package chain

import (
	"testing"

	"github.com/rawblock/token-risk-guard/pkg/models"
)

func TestNormalizeAddress_EVMLowercases(t *testing.T) {
	lower := "0xd8da6bf26964af9d7eed9e03e53415d37aa96045"
	got, err := NormalizeAddress(models.ChainEthereum, lower)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != lower {
		t.Fatalf("expected lower-hex canonical form %s, got %s", lower, got)
	}
}

func TestNormalizeAddress_EVMAcceptsValidChecksumAndLowercases(t *testing.T) {
	checksummed := "0xd8dA6BF26964aF9D7eEd9e03E53415D37aA96045"
	got, err := NormalizeAddress(models.ChainEthereum, checksummed)
	if err != nil {
		t.Fatalf("unexpected error for a correctly checksummed address: %v", err)
	}
	want := "0xd8da6bf26964af9d7eed9e03e53415d37aa96045"
	if got != want {
		t.Fatalf("expected checksummed input to normalize to lower-hex %s, got %s", want, got)
	}
	again, err := NormalizeAddress(models.ChainEthereum, got)
	if err != nil || again != got {
		t.Fatalf("expected idempotent normalization, got %s (err %v)", again, err)
	}
}

func TestNormalizeAddress_EVMRejectsBadChecksum(t *testing.T) {
	// Same address as the valid-checksum case above with one letter's case
	// flipped, breaking the EIP-55 checksum while remaining valid hex.
	badChecksum := "0xD8dA6BF26964aF9D7eEd9e03E53415D37aA96045"
	if _, err := NormalizeAddress(models.ChainEthereum, badChecksum); err == nil {
		t.Fatal("expected error for mixed-case address with invalid EIP-55 checksum")
	}
}

func TestNormalizeAddress_EVMRejectsMalformed(t *testing.T) {
	if _, err := NormalizeAddress(models.ChainBase, "not-an-address"); err == nil {
		t.Fatal("expected error for malformed EVM address")
	}
}

func TestNormalizeAddress_SolanaRoundTrips(t *testing.T) {
	addr := "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	got, err := NormalizeAddress(models.ChainSolana, addr)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != addr {
		t.Fatalf("expected idempotent normalization, got %s", got)
	}
}

func TestNormalizeAddress_SolanaRejectsShort(t *testing.T) {
	if _, err := NormalizeAddress(models.ChainSolana, "tooshort"); err == nil {
		t.Fatal("expected error for undersized Solana address")
	}
}

func TestNormalizeAddress_UnsupportedChain(t *testing.T) {
	if _, err := NormalizeAddress(models.Chain("DOGECOIN"), "x"); err == nil {
		t.Fatal("expected error for unsupported chain")
	}
}
