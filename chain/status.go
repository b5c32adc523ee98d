package chain

import (
	"context"
	"errors"
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"gatekeeper-api/facts"
	"gatekeeper-api/models"
	"gatekeeper-api/utils"
)

const word = 32

var errShortDrop = errors.New("drops() returned fewer than 5 words")

// LogReader is the read side of a node used for drop status.
type LogReader interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
}

// StatusReader reports the lifecycle of a drop from the vault's drops(uint256)
// accessor and its DropClaimed events.
type StatusReader struct {
	reader    LogReader
	vault     common.Address
	fromBlock uint64
}

func NewStatusReader(reader LogReader, vault common.Address, fromBlock uint64) *StatusReader {
	return &StatusReader{reader: reader, vault: vault, fromBlock: fromBlock}
}

// DecodeDrop slices the head words of a drops() return value by offset. The two
// uint8[] public key halves follow their offset words and are read best effort.
func DecodeDrop(out []byte) (*models.DropRecord, error) {
	if len(out) < 5*word {
		return nil, errShortDrop
	}
	rec := &models.DropRecord{
		Sender:            common.BytesToAddress(out[12:word]).Hex(),
		Amount:            new(big.Int).SetBytes(out[word : 2*word]).String(),
		Active:            new(big.Int).SetBytes(out[2*word : 3*word]).Sign() != 0,
		ExpiresAt:         new(big.Int).SetBytes(out[3*word : 4*word]).Uint64(),
		GatekeeperAddress: common.BytesToAddress(out[4*word+12 : 5*word]).Hex(),
	}
	if len(out) >= 7*word {
		rec.SignerPubKeyX = readByteArray(out, new(big.Int).SetBytes(out[5*word : 6*word]))
		rec.SignerPubKeyY = readByteArray(out, new(big.Int).SetBytes(out[6*word : 7*word]))
	}
	return rec, nil
}

// readByteArray decodes a uint8[] at offset: a length word then one word per
// element. Out-of-range data yields nil.
func readByteArray(out []byte, offset *big.Int) []byte {
	if !offset.IsUint64() || offset.Uint64() > uint64(len(out)-word) {
		return nil
	}
	start := int(offset.Uint64())
	n := new(big.Int).SetBytes(out[start : start+word])
	if !n.IsUint64() || n.Uint64() > uint64((len(out)-start-word)/word) {
		return nil
	}
	vals := make([]byte, n.Uint64())
	for i := range vals {
		vals[i] = out[start+word*(i+2)-1]
	}
	return vals
}

func dropAbsent(rec *models.DropRecord) bool {
	return rec.Sender == (common.Address{}).Hex() && rec.Amount == "0" && !rec.Active && rec.ExpiresAt == 0
}

// ReadStatus answers /check-claim. An inactive drop is claimed when a DropClaimed
// event exists for it and reclaimed otherwise.
func (r *StatusReader) ReadStatus(ctx context.Context, dropID string) (*models.DropStatus, error) {
	id, err := ParseDropID(dropID)
	if err != nil {
		return nil, err
	}

	data := append(append([]byte{}, dropsSelector...), common.LeftPadBytes(id.Bytes(), word)...)
	out, err := r.reader.CallContract(ctx, ethereum.CallMsg{To: &r.vault, Data: data}, nil)
	if err != nil {
		return nil, chainErr("drops", err)
	}
	rec, err := DecodeDrop(out)
	if err != nil {
		return nil, &ChainError{Op: "drops", Err: err}
	}

	status := &models.DropStatus{
		Exists: !dropAbsent(rec),
		Active: rec.Active,
		Details: models.DropDetails{
			Sender:     rec.Sender,
			Amount:     formatWei(rec.Amount),
			ExpiresAt:  strconv.FormatUint(rec.ExpiresAt, 10),
			Gatekeeper: rec.GatekeeperAddress,
		},
	}
	if !status.Exists || status.Active {
		return status, nil
	}

	claimer, found, err := r.claimEvent(ctx, id)
	if err != nil {
		return nil, err
	}
	if found {
		status.Claimed = true
		status.ClaimedBy = claimer.Hex()
	} else {
		status.Reclaimed = true
	}
	return status, nil
}

func (r *StatusReader) claimEvent(ctx context.Context, id *big.Int) (common.Address, bool, error) {
	logs, err := r.reader.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(r.fromBlock),
		Addresses: []common.Address{r.vault},
		Topics:    [][]common.Hash{{dropClaimedTopic}, {common.BigToHash(id)}},
	})
	if err != nil {
		return common.Address{}, false, chainErr("DropClaimed logs", err)
	}
	for _, lg := range logs {
		if lg.Removed {
			continue
		}
		switch {
		case len(lg.Topics) >= 3:
			return common.BytesToAddress(lg.Topics[2].Bytes()), true, nil
		case len(lg.Data) >= word:
			return common.BytesToAddress(lg.Data[:word]), true, nil
		default:
			utils.Log.Warnf("⚠️ [STATUS] DropClaimed log for %s has no receiver", id)
			return common.Address{}, true, nil
		}
	}
	return common.Address{}, false, nil
}

func formatWei(amount string) string {
	v, ok := new(big.Int).SetString(amount, 10)
	if !ok {
		return amount
	}
	return facts.FormatUnits(v, 18)
}
