package portal

import (
	"github.com/intentnet/portal/runtime"
	"github.com/intentnet/portal/types"
)

// publish announces an intent. It writes no state: discovery is carried by
// the emitted event, which off-chain indexers persist.
func (p *Program) publish(tx *runtime.Tx, ix runtime.Instruction) error {
	args, err := DecodePublishArgs(ix.Data)
	if err != nil {
		return err
	}

	routeHash := types.RouteHashFromBytes(args.RouteBytes)
	rewardHash := args.Reward.Hash()
	intentHash := types.IntentHash(args.DestinationChain, routeHash, rewardHash)

	tx.Emit(IntentPublished{
		IntentHash:       intentHash,
		DestinationChain: args.DestinationChain,
		RouteBytes:       args.RouteBytes,
		Reward:           args.Reward,
	})
	return nil
}
