package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/erc7824/ledgergate/pkg/log"
	"github.com/erc7824/ledgergate/pkg/rpc"
)

const callTimeout = 30 * time.Second

// callOnce sends a single request and writes the result as indented JSON,
// followed by the response signatures.
func callOnce(ctx context.Context, client *rpc.Client, method, params string, out io.Writer) error {
	var reqParams map[string]any
	if params != "" {
		dec := json.NewDecoder(bytes.NewReader([]byte(params)))
		dec.UseNumber()
		if err := dec.Decode(&reqParams); err != nil {
			return fmt.Errorf("params must be a JSON object: %w", err)
		}
	}

	var result json.RawMessage
	sigs, err := client.Call(ctx, method, reqParams, &result)
	if err != nil {
		return err
	}

	var pretty bytes.Buffer
	if len(result) == 0 {
		result = json.RawMessage("null")
	}
	if err := json.Indent(&pretty, result, "", "  "); err != nil {
		return fmt.Errorf("failed to format result: %w", err)
	}
	fmt.Fprintln(out, pretty.String())

	for _, sig := range sigs {
		fmt.Fprintf(out, "signature %s\n", sig)
	}
	return nil
}

func runCallCli(logger log.Logger) {
	logger = logger.WithName("call")
	if len(os.Args) < 4 || len(os.Args) > 5 {
		logger.Fatal("Usage: ledgergate call <ws url> <method> [params json]")
	}
	url, method := os.Args[2], os.Args[3]
	params := ""
	if len(os.Args) == 5 {
		params = os.Args[4]
	}

	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()
	ctx = log.SetContextLogger(ctx, logger)

	dialerCfg := rpc.DefaultWebsocketDialerConfig
	dialerCfg.PingInterval = 0
	client := rpc.NewClient(rpc.NewWebsocketDialer(dialerCfg))
	if err := client.Start(ctx, url, nil); err != nil {
		logger.Fatal("failed to connect", "url", url, "error", err)
	}

	if err := callOnce(ctx, client, method, params, os.Stdout); err != nil {
		logger.Fatal("call failed", "method", method, "error", err)
	}
}
