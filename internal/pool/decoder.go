package pool

import (
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"poolmonitor/internal/model"
)

// TransferTopic returns the topic0 of the ERC20 Transfer event.
func TransferTopic() (common.Hash, error) {
	parsed, err := PairABI()
	if err != nil {
		return common.Hash{}, fmt.Errorf("parse pair abi: %w", err)
	}
	return parsed.Events["Transfer"].ID, nil
}

// DecodeTransfer converts a raw LP token Transfer log into a TransferEvent.
func DecodeTransfer(log types.Log) (model.TransferEvent, error) {
	parsed, err := PairABI()
	if err != nil {
		return model.TransferEvent{}, fmt.Errorf("parse pair abi: %w", err)
	}
	event := parsed.Events["Transfer"]

	if len(log.Topics) == 0 || log.Topics[0] != event.ID {
		return model.TransferEvent{}, fmt.Errorf("log %d/%d is not a transfer", log.BlockNumber, log.Index)
	}
	indexedArgs := indexedArguments(event.Inputs)
	if len(log.Topics) != len(indexedArgs)+1 {
		return model.TransferEvent{}, fmt.Errorf("expected %d topics, got %d", len(indexedArgs)+1, len(log.Topics))
	}

	var indexed struct {
		From common.Address
		To   common.Address
	}
	if err := abi.ParseTopics(&indexed, indexedArgs, log.Topics[1:]); err != nil {
		return model.TransferEvent{}, fmt.Errorf("parse topics: %w", err)
	}

	values, err := event.Inputs.NonIndexed().Unpack(log.Data)
	if err != nil {
		return model.TransferEvent{}, fmt.Errorf("unpack %s: %w", event.Name, err)
	}
	if len(values) != 1 {
		return model.TransferEvent{}, fmt.Errorf("unexpected transfer values: %d", len(values))
	}
	amount, err := asBigInt(values[0])
	if err != nil {
		return model.TransferEvent{}, err
	}

	return model.TransferEvent{
		BlockNumber: log.BlockNumber,
		LogIndex:    log.Index,
		From:        indexed.From,
		To:          indexed.To,
		Amount:      amount,
	}, nil
}

func indexedArguments(args abi.Arguments) abi.Arguments {
	indexed := make(abi.Arguments, 0, len(args))
	for _, arg := range args {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	return indexed
}
