package facts

import (
	"bytes"
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
)

// fakeReader is an in-memory ChainReader. balanceOf answers come from tokens,
// keyed by contract address.
type fakeReader struct {
	balance  *big.Int
	nonce    uint64
	code     []byte
	tokens   map[common.Address]*big.Int
	decimals map[common.Address]int
	err      error
}

func (f *fakeReader) BalanceAt(context.Context, common.Address, *big.Int) (*big.Int, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.balance == nil {
		return new(big.Int), nil
	}
	return f.balance, nil
}

func (f *fakeReader) NonceAt(context.Context, common.Address, *big.Int) (uint64, error) {
	return f.nonce, f.err
}

func (f *fakeReader) CodeAt(context.Context, common.Address, *big.Int) ([]byte, error) {
	return f.code, f.err
}

func (f *fakeReader) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	if msg.To == nil {
		return nil, errors.New("no target")
	}
	switch {
	case bytes.HasPrefix(msg.Data, decimalsSelector):
		d, ok := f.decimals[*msg.To]
		if !ok {
			return nil, errors.New("execution reverted")
		}
		return common.LeftPadBytes(big.NewInt(int64(d)).Bytes(), 32), nil
	case bytes.HasPrefix(msg.Data, []byte{0x70, 0xa0, 0x82, 0x31}):
		bal, ok := f.tokens[*msg.To]
		if !ok {
			bal = new(big.Int)
		}
		return common.LeftPadBytes(bal.Bytes(), 32), nil
	}
	return nil, errors.New("unexpected call")
}

func (f *fakeReader) BlockNumber(context.Context) (uint64, error) {
	return 1, f.err
}

func ether(v float64) *big.Int {
	wei, _ := new(big.Float).Mul(big.NewFloat(v), big.NewFloat(1e18)).Int(nil)
	return wei
}

func ptr(v float64) *float64 { return &v }
