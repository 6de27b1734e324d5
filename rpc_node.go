package main

import (
	"time"

	"github.com/erc7824/ledgergate/pkg/log"
	"github.com/erc7824/ledgergate/pkg/rpc"
	"github.com/erc7824/ledgergate/pkg/sign"
)

const (
	rpcListenEndpoint = "/ws"

	wsWriteTimeout = 5 * time.Second
)

// NewRPCNode creates the websocket node with its connection hooks feeding
// the metrics.
func NewRPCNode(signer sign.Signer, metrics *Metrics, logger log.Logger) (*rpc.WebsocketNode, error) {
	return rpc.NewWebsocketNode(rpc.WebsocketNodeConfig{
		Signer: signer,
		Logger: logger,
		OnConnectHandler: func(rpc.SendResponseFunc) {
			metrics.ConnectionsTotal.Inc()
			metrics.ConnectedClients.Inc()
		},
		OnDisconnectHandler: func(string) {
			metrics.ConnectedClients.Dec()
		},
		OnMessageSentHandler: func([]byte) {
			metrics.MessageSent.Inc()
		},
		OnBoundHandler: func(userID string, _ rpc.SendResponseFunc) {
			logger.Debug("connection bound", "userID", userID)
		},
		WsConnWriteTimeout: wsWriteTimeout,
	})
}
