package model

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// TransferEvent is a decoded LP token Transfer log.
type TransferEvent struct {
	BlockNumber uint64
	LogIndex    uint
	From        common.Address
	To          common.Address
	Amount      *big.Int
}
