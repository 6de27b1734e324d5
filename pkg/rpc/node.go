package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/erc7824/ledgergate/pkg/errcode"
	"github.com/erc7824/ledgergate/pkg/log"
	"github.com/erc7824/ledgergate/pkg/sign"
)

const (
	nodeGroupHandlerPrefix = "group."
	nodeGroupRoot          = "root"
)

// Node routes RPC methods to handler chains and pushes notifications to
// bound users.
type Node interface {
	Handle(method string, handler Handler)
	Notify(userID string, method string, params Params)
	Use(middleware Handler)
	NewGroup(name string) HandlerGroup
}

// HandlerGroup scopes middleware to the methods registered on it and on its
// subgroups.
type HandlerGroup interface {
	Handle(method string, handler Handler)
	Use(middleware Handler)
	NewGroup(name string) HandlerGroup
}

var (
	_ Node         = &WebsocketNode{}
	_ http.Handler = &WebsocketNode{}

	_ HandlerGroup = &WebsocketHandlerGroup{}
)

type WebsocketNode struct {
	upgrader websocket.Upgrader
	cfg      WebsocketNodeConfig
	groupId  string
	// handlerChain maps a group id or a method to its handlers.
	handlerChain map[string][]Handler
	// routes maps a method to the handlerChain keys run for it, outermost
	// group first.
	routes  map[string][]string
	connHub *ConnectionHub
}

type WebsocketNodeConfig struct {
	// Signer signs every response and notification.
	Signer sign.Signer
	Logger log.Logger

	OnConnectHandler     func(send SendResponseFunc)
	OnDisconnectHandler  func(userID string)
	OnMessageSentHandler func([]byte)
	// OnBoundHandler runs after a handler bound the connection to a new
	// user.
	OnBoundHandler func(userID string, send SendResponseFunc)

	WsUpgraderReadBufferSize  int
	WsUpgraderWriteBufferSize int
	WsUpgraderCheckOrigin     func(r *http.Request) bool

	WsConnWriteTimeout      time.Duration
	WsConnWriteBufferSize   int
	WsConnProcessBufferSize int
}

func NewWebsocketNode(config WebsocketNodeConfig) (*WebsocketNode, error) {
	if config.Signer == nil {
		return nil, fmt.Errorf("signer cannot be nil")
	}
	if config.Logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	config.Logger = config.Logger.WithName("rpc-node")

	if config.OnConnectHandler == nil {
		config.OnConnectHandler = func(send SendResponseFunc) {}
	}
	if config.OnDisconnectHandler == nil {
		config.OnDisconnectHandler = func(userID string) {}
	}
	if config.OnMessageSentHandler == nil {
		config.OnMessageSentHandler = func([]byte) {}
	}
	if config.OnBoundHandler == nil {
		config.OnBoundHandler = func(userID string, send SendResponseFunc) {}
	}
	if config.WsUpgraderReadBufferSize <= 0 {
		config.WsUpgraderReadBufferSize = 1024
	}
	if config.WsUpgraderWriteBufferSize <= 0 {
		config.WsUpgraderWriteBufferSize = 1024
	}
	if config.WsUpgraderCheckOrigin == nil {
		config.WsUpgraderCheckOrigin = func(r *http.Request) bool {
			return true
		}
	}

	node := &WebsocketNode{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.WsUpgraderReadBufferSize,
			WriteBufferSize: config.WsUpgraderWriteBufferSize,
			CheckOrigin:     config.WsUpgraderCheckOrigin,
		},
		cfg:          config,
		groupId:      nodeGroupHandlerPrefix + nodeGroupRoot,
		handlerChain: make(map[string][]Handler),
		routes:       make(map[string][]string),
		connHub:      NewConnectionHub(),
	}

	node.Handle(PingMethod.String(), node.handlePing)

	return node, nil
}

// ServeHTTP upgrades the request and serves the connection until either side
// closes it.
func (wn *WebsocketNode) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	wsConnection, err := wn.upgrader.Upgrade(w, r, nil)
	if err != nil {
		wn.cfg.Logger.Error("failed to upgrade connection to websocket", "error", err)
		return
	}

	connectionID := uuid.NewString()
	connection, err := NewWebsocketConnection(WebsocketConnectionConfig{
		ConnectionID:         connectionID,
		WebsocketConn:        wsConnection,
		Logger:               wn.cfg.Logger,
		OnMessageSentHandler: wn.cfg.OnMessageSentHandler,
		WriteTimeout:         wn.cfg.WsConnWriteTimeout,
		WriteBufferSize:      wn.cfg.WsConnWriteBufferSize,
		ProcessBufferSize:    wn.cfg.WsConnProcessBufferSize,
	})
	if err != nil {
		wn.cfg.Logger.Error("failed to create websocket connection", "error", err, "connectionID", connectionID)
		wsConnection.Close()
		return
	}
	if err := wn.connHub.Add(connection); err != nil {
		wn.cfg.Logger.Error("failed to add connection to hub", "error", err, "connectionID", connectionID)
		wsConnection.Close()
		return
	}

	wn.cfg.OnConnectHandler(wn.getSendResponseFunc(connection))
	wn.cfg.Logger.Info("new websocket connection established", "connectionID", connectionID)

	defer func() {
		userID := connection.UserID()
		wn.connHub.Remove(connectionID)

		wn.cfg.OnDisconnectHandler(userID)
		wn.cfg.Logger.Info("connection closed", "connectionID", connectionID, "userID", userID)
	}()

	parentCtx, cancel := context.WithCancel(r.Context())
	wg := &sync.WaitGroup{}
	wg.Add(2)
	childHandleClosure := func(_ error) {
		cancel()
		wg.Done()
	}

	go connection.Serve(parentCtx, childHandleClosure)
	go wn.processRequests(connection, parentCtx, childHandleClosure)

	wg.Wait()
}

func (wn *WebsocketNode) processRequests(conn Connection, parentCtx context.Context, handleClosure func(error)) {
	defer handleClosure(nil)
	safeStorage := NewSafeStorage()

	for {
		var messageBytes []byte
		select {
		case <-parentCtx.Done():
			wn.cfg.Logger.Debug("context done, stopping message processing")
			return
		case msg, ok := <-conn.RawRequests():
			if !ok {
				return
			}
			messageBytes = msg
		}

		req := Request{}
		if err := json.Unmarshal(messageBytes, &req); err != nil {
			wn.cfg.Logger.Debug("invalid message format", "error", err, "message", string(messageBytes))
			wn.sendErrorResponse(conn, req.Req.RequestID, Errorf("invalid message format"))
			continue
		}

		routeHandlers, ok := wn.route(req.Req.Method)
		if !ok {
			wn.cfg.Logger.Debug("no route found for method", "method", req.Req.Method)
			wn.sendErrorResponse(conn, req.Req.RequestID, Errorf("unknown method: %s", req.Req.Method))
			continue
		}

		wn.cfg.Logger.Debug("processing message",
			"requestID", req.Req.RequestID,
			"userID", conn.UserID(),
			"method", req.Req.Method)

		ctx := &Context{
			Context:  parentCtx,
			UserID:   conn.UserID(),
			Signer:   wn.cfg.Signer,
			Request:  req,
			handlers: routeHandlers,
			Storage:  safeStorage,
		}
		ctx.Next()

		responseBytes, err := ctx.GetRawResponse()
		if err != nil {
			wn.cfg.Logger.Error("failed to prepare response", "error", err, "method", req.Req.Method)
			wn.sendErrorResponse(conn, req.Req.RequestID, errcode.Wrap(errcode.Internal, err))
			continue
		}
		conn.WriteRawResponse(responseBytes)

		if ctx.UserID != "" && conn.UserID() != ctx.UserID {
			if err := wn.connHub.Rebind(conn.ConnectionID(), ctx.UserID); err != nil {
				wn.cfg.Logger.Error("failed to bind connection", "error", err, "userID", ctx.UserID)
				continue
			}
			wn.cfg.OnBoundHandler(ctx.UserID, wn.getSendResponseFunc(conn))
		}
	}
}

// route assembles the middleware of every enclosing group followed by the
// method handler. Groups without middleware are skipped.
func (wn *WebsocketNode) route(method string) ([]Handler, bool) {
	methodRoute, ok := wn.routes[method]
	if !ok || len(methodRoute) == 0 {
		return nil, false
	}

	var routeHandlers []Handler
	for _, handlersId := range methodRoute[:len(methodRoute)-1] {
		routeHandlers = append(routeHandlers, wn.handlerChain[handlersId]...)
	}

	handlers := wn.handlerChain[methodRoute[len(methodRoute)-1]]
	if len(handlers) == 0 {
		wn.cfg.Logger.Error("no handler registered for route", "method", method)
		return nil, false
	}
	return append(routeHandlers, handlers...), true
}

func (wn *WebsocketNode) NewGroup(name string) HandlerGroup {
	return &WebsocketHandlerGroup{
		groupId:     nodeGroupHandlerPrefix + name,
		routePrefix: []string{wn.groupId},
		root:        wn,
	}
}

func (wn *WebsocketNode) Handle(method string, handler Handler) {
	wn.handle(method, handler)
	wn.routes[method] = []string{wn.groupId, method}
}

func (wn *WebsocketNode) handle(method string, handler Handler) {
	if method == "" {
		panic("websocket method cannot be empty")
	}
	if handler == nil {
		panic(fmt.Sprintf("websocket handler cannot be nil for method %s", method))
	}

	wn.handlerChain[method] = []Handler{handler}
}

func (wn *WebsocketNode) Use(middleware Handler) {
	wn.use(wn.groupId, middleware)
}

func (wn *WebsocketNode) use(groupId string, middleware Handler) {
	if middleware == nil {
		panic("websocket middleware handler cannot be nil for group")
	}

	wn.handlerChain[groupId] = append(wn.handlerChain[groupId], middleware)
}

// Notify sends a signed notification to every connection bound to userID.
func (wn *WebsocketNode) Notify(userID, method string, params Params) {
	message, err := prepareRawNotification(wn.cfg.Signer, method, params)
	if err != nil {
		wn.cfg.Logger.Error("failed to prepare notification message", "error", err, "userID", userID, "method", method)
		return
	}

	wn.connHub.Publish(userID, message)
}

// ConnectionCount returns the number of open connections.
func (wn *WebsocketNode) ConnectionCount() int {
	return wn.connHub.Count()
}

func (wn *WebsocketNode) getSendResponseFunc(conn Connection) SendResponseFunc {
	return func(method string, params Params) {
		responseBytes, err := prepareRawNotification(wn.cfg.Signer, method, params)
		if err != nil {
			wn.cfg.Logger.Error("failed to prepare notification message", "error", err, "method", method)
			return
		}

		conn.WriteRawResponse(responseBytes)
	}
}

func (wn *WebsocketNode) sendErrorResponse(conn Connection, requestID uint64, err error) {
	res := NewErrorResponse(requestID, errcode.Message(err))
	responseBytes, err := prepareRawResponse(wn.cfg.Signer, res.Res)
	if err != nil {
		wn.cfg.Logger.Error("failed to prepare error response", "error", err)
		return
	}

	conn.WriteRawResponse(responseBytes)
}

func (wn *WebsocketNode) handlePing(ctx *Context) {
	ctx.Next()
	ctx.Succeed(PongMethod.String(), nil)
}

func prepareRawNotification(signer sign.Signer, method string, params Params) ([]byte, error) {
	return prepareRawResponse(signer, NewPayload(0, method, params))
}

type WebsocketHandlerGroup struct {
	groupId     string
	routePrefix []string
	root        *WebsocketNode
}

func (hg *WebsocketHandlerGroup) NewGroup(name string) HandlerGroup {
	prefix := append(append([]string{}, hg.routePrefix...), hg.groupId)
	return &WebsocketHandlerGroup{
		groupId:     fmt.Sprintf("%s.%s", hg.groupId, name),
		routePrefix: prefix,
		root:        hg.root,
	}
}

func (hg *WebsocketHandlerGroup) Handle(method string, handler Handler) {
	route := append(append([]string{}, hg.routePrefix...), hg.groupId, method)
	hg.root.routes[method] = route
	hg.root.handle(method, handler)
}

func (hg *WebsocketHandlerGroup) Use(middleware Handler) {
	hg.root.use(hg.groupId, middleware)
}
