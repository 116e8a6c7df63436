package rpc

import rpc "github.com/tendermint/tendermint/rpc/jsonrpc/server"

var Routes = map[string]*rpc.RPCFunc{
	"metrics":     rpc.NewRPCFunc(JSONMetrics, "labels"),
	"round_state": rpc.NewRPCFunc(RoundState, ""),
	"guards":      rpc.NewRPCFunc(Guards, ""),
	"evidence":    rpc.NewRPCFunc(Evidence, "from_height"),
	"finalized":   rpc.NewRPCFunc(Finalized, "height"),

	"broadcast_message": rpc.NewRPCFunc(BroadcastMessage, "msg"),
	"submit_bundle":     rpc.NewRPCFunc(SubmitBundle, "bundle"),
	"better_bundle":     rpc.NewRPCFunc(BetterBundle, "data"),
}
