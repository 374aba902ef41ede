package serum

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
)

const MarketSize = 388

// Market is the v3 market state account.
type Market struct {
	AccountFlags           uint64
	OwnAddress             solana.PublicKey
	VaultSignerNonce       uint64
	CoinMint               solana.PublicKey
	PCMint                 solana.PublicKey
	CoinVault              solana.PublicKey
	CoinDepositsTotal      uint64
	CoinFeesAccrued        uint64
	PCVault                solana.PublicKey
	PCDepositsTotal        uint64
	PCFeesAccrued          uint64
	PCDustThreshold        uint64
	RequestQueue           solana.PublicKey
	EventQueue             solana.PublicKey
	Bids                   solana.PublicKey
	Asks                   solana.PublicKey
	CoinLotSize            uint64
	PCLotSize              uint64
	FeeRateBps             uint64
	ReferrerRebatesAccrued uint64
}

func (m *Market) fields() []any {
	return []any{
		&m.AccountFlags, &m.OwnAddress, &m.VaultSignerNonce,
		&m.CoinMint, &m.PCMint,
		&m.CoinVault, &m.CoinDepositsTotal, &m.CoinFeesAccrued,
		&m.PCVault, &m.PCDepositsTotal, &m.PCFeesAccrued, &m.PCDustThreshold,
		&m.RequestQueue, &m.EventQueue, &m.Bids, &m.Asks,
		&m.CoinLotSize, &m.PCLotSize, &m.FeeRateBps, &m.ReferrerRebatesAccrued,
	}
}

func DecodeMarket(data []byte) (*Market, error) {
	if err := checkPadding(data, MarketSize); err != nil {
		return nil, err
	}
	m := &Market{}
	offset := len(headPadding)
	var err error
	for _, field := range m.fields() {
		switch v := field.(type) {
		case *uint64:
			*v, offset, err = readU64(data, offset)
		case *solana.PublicKey:
			*v, offset, err = readKey(data, offset)
		}
		if err != nil {
			return nil, err
		}
	}
	if m.AccountFlags&(FlagInitialized|FlagMarket) != FlagInitialized|FlagMarket {
		return nil, fmt.Errorf("%w: market flags %#x", errUnexpectedTag, m.AccountFlags)
	}
	return m, nil
}

func (m *Market) Encode(dst []byte) error {
	if len(dst) != MarketSize {
		return fmt.Errorf("%w: market is %d bytes, want %d", errTruncated, len(dst), MarketSize)
	}
	writePadding(dst)
	offset := len(headPadding)
	for _, field := range m.fields() {
		switch v := field.(type) {
		case *uint64:
			offset = putU64(dst, offset, *v)
		case *solana.PublicKey:
			offset = putKey(dst, offset, *v)
		}
	}
	return nil
}

// Lots converts a native amount of the leg being sold into order quantity lots.
// Asks sell coin: amount/coin_lot. Bids sell pc: amount/(price*pc_lot).
// MaxNativePC is the pc a bid may lock, lots*price*pc_lot; zero for asks.
func (m *Market) Lots(side Side, amount, limitPrice uint64) (lots, maxNativePC uint64, err error) {
	if m.CoinLotSize == 0 || m.PCLotSize == 0 {
		return 0, 0, fmt.Errorf("market %s has a zero lot size", m.OwnAddress)
	}
	if side == Ask {
		return amount / m.CoinLotSize, 0, nil
	}
	if limitPrice == 0 {
		return 0, 0, fmt.Errorf("zero limit price")
	}
	perLot, ok := mul64(limitPrice, m.PCLotSize)
	if !ok {
		return 0, 0, nil
	}
	lots = amount / perLot
	return lots, lots * perLot, nil
}

// VaultSigner is the market's vault authority, derived from its own address and nonce.
func (m *Market) VaultSigner(programID solana.PublicKey) (solana.PublicKey, error) {
	return solana.CreateProgramAddress(m.vaultSignerSeeds(), programID)
}

func (m *Market) vaultSignerSeeds() [][]byte {
	nonce := make([]byte, 8)
	putU64(nonce, 0, m.VaultSignerNonce)
	return [][]byte{m.OwnAddress[:], nonce}
}

// VaultSignerSeeds exposes the seeds an exchange program signs vault transfers with.
func (m *Market) VaultSignerSeeds() [][]byte { return m.vaultSignerSeeds() }

func mul64(a, b uint64) (uint64, bool) {
	if a == 0 || b == 0 {
		return 0, true
	}
	c := a * b
	return c, c/b == a
}
