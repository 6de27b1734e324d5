// Package rpc implements the websocket transport of ledgergate.
//
// Messages are JSON objects wrapping a compact payload array:
//
//	request:  {"req": [requestId, method, params, timestamp], "sig": [...]}
//	response: {"res": [requestId, method, params, timestamp], "sig": [...]}
//
// Response params always hold exactly one of two keys:
//
//	{"result": <value>}
//	{"error": "<Code>: <detail>"}
//
// Error responses use the method "error". Every response and notification is
// signed by the node's signer over the Keccak256 hash of the payload, so
// clients can check who produced it.
//
// # Server
//
// A WebsocketNode routes methods to handler chains. Middleware registered
// with Use runs before the handlers of its group:
//
//	node, err := rpc.NewWebsocketNode(rpc.WebsocketNodeConfig{Signer: signer, Logger: logger})
//	node.Use(loggingMiddleware)
//
//	ledger := node.NewGroup("ledger")
//	ledger.Use(replayMiddleware)
//	ledger.Handle("confirm_payment", handleCommand)
//
//	http.Handle("/ws", node)
//
// A handler that sets Context.UserID binds the connection to that user, and
// later Notify calls for the user reach the connection.
//
// # Client
//
// WebsocketDialer is the low-level connection, Client adds request ids,
// envelope handling and event dispatch:
//
//	dialer := rpc.NewWebsocketDialer(rpc.DefaultWebsocketDialerConfig)
//	client := rpc.NewClient(dialer)
//	if err := client.Start(ctx, "ws://localhost:8000/ws", onClose); err != nil {
//	    return err
//	}
//	var cfg rpc.GetConfigResponse
//	_, err := client.Call(ctx, rpc.GetConfigMethod, nil, &cfg)
package rpc
