package rpc

import (
	"net"
	"net/http"

	tmcfg "github.com/tendermint/tendermint/config"
	"github.com/tendermint/tendermint/libs/log"
	rpcserver "github.com/tendermint/tendermint/rpc/jsonrpc/server"
)

// NewServeMux serves the json rpc routes, and the feed at feedPath when hub
// is not nil.
func NewServeMux(hub *Hub, feedPath string, logger log.Logger) *http.ServeMux {
	mux := http.NewServeMux()
	rpcserver.RegisterRPCFuncs(mux, Routes, logger)
	if hub != nil {
		mux.Handle(feedPath, hub)
	}
	return mux
}

// StartServer listens on the configured address and serves handler in the
// background until the listener is closed.
func StartServer(cfg *tmcfg.RPCConfig, handler http.Handler, logger log.Logger) (net.Listener, error) {
	config := rpcserver.DefaultConfig()
	config.MaxOpenConnections = cfg.MaxOpenConnections
	config.MaxBodyBytes = cfg.MaxBodyBytes
	config.MaxHeaderBytes = cfg.MaxHeaderBytes

	listener, err := rpcserver.Listen(cfg.ListenAddress, config)
	if err != nil {
		return nil, err
	}
	go func() {
		if err := rpcserver.Serve(listener, handler, logger, config); err != nil {
			logger.Info("rpc server stopped", "err", err)
		}
	}()
	return listener, nil
}
