package ledger

import (
	"ballot-node/messages"
	"context"
	"fmt"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"
)

// SubscribeVotes streams VoteCast logs into sink as decoded events. Needs a
// backend that supports subscriptions (websocket or ipc).
func (c *Client) SubscribeVotes(ctx context.Context, sink chan<- messages.VoteEvent) (event.Subscription, error) {
	logs, sub, err := c.contract.WatchLogs(&bind.WatchOpts{Context: ctx}, messages.VoteCastEvent)
	if err != nil {
		return nil, fmt.Errorf("watching %s: %w", messages.VoteCastEvent, err)
	}
	return event.NewSubscription(func(quit <-chan struct{}) error {
		defer sub.Unsubscribe()
		for {
			select {
			case entry := <-logs:
				select {
				case sink <- c.DecodeVoteLog(entry):
				case err := <-sub.Err():
					return err
				case <-quit:
					return nil
				}
			case err := <-sub.Err():
				return err
			case <-quit:
				return nil
			}
		}
	}), nil
}

// DecodeVoteLog produces a named payload when the log matches the VoteCast
// layout and falls back to raw topics followed by the unpacked data otherwise.
// A log that yields neither carries an unknown payload.
func (c *Client) DecodeVoteLog(entry types.Log) messages.VoteEvent {
	vote := messages.VoteEvent{TxHash: entry.TxHash.Hex(), BlockNumber: entry.BlockNumber}
	named := make(map[string]interface{})
	err := c.contract.UnpackLogIntoMap(named, messages.VoteCastEvent, entry)
	if err == nil {
		vote.Payload = messages.NamedPayload(named)
		return vote
	}
	c.logger.Debug("Vote log not decodable by name", "tx", vote.TxHash, "err", err)

	if len(entry.Topics) < 2 {
		return vote
	}
	var positional []interface{}
	for _, topic := range entry.Topics[1:] {
		positional = append(positional, topic)
	}
	if len(entry.Data) > 0 {
		data, err := c.abi.Events[messages.VoteCastEvent].Inputs.NonIndexed().Unpack(entry.Data)
		if err == nil {
			positional = append(positional, data...)
		}
	}
	vote.Payload = messages.PositionalPayload(positional...)
	return vote
}
