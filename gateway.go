package main

import (
	"context"
	"fmt"

	"github.com/erc7824/ledgergate/pkg/authz"
	"github.com/erc7824/ledgergate/pkg/codec"
	"github.com/erc7824/ledgergate/pkg/keystore"
	"github.com/erc7824/ledgergate/pkg/ledger"
	"github.com/erc7824/ledgergate/pkg/log"
)

// Gateway holds everything a request handler needs. It is built once at
// startup and passed to the router explicitly.
type Gateway struct {
	Schemas  *codec.Registry
	Commands *authz.CommandTable
	Protocol *authz.Protocol
	Keystore *keystore.Store
	Ledger   ledger.Adapter

	closeLedger func()
}

// NewGateway loads the registries, the allow-list and the keystore, and
// connects to the ledger when one is configured.
func NewGateway(ctx context.Context, conf *Config, logger log.Logger) (*Gateway, error) {
	logger = logger.WithName("gateway")

	schemas, err := loadSchemas(conf.SchemasPath)
	if err != nil {
		return nil, err
	}

	var commands *authz.CommandTable
	if conf.CommandsPath != "" {
		commands, err = authz.LoadCommandsFile(conf.CommandsPath, schemas)
	} else {
		commands, err = authz.DefaultCommands(schemas)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load command table: %w", err)
	}

	allow := authz.NewAllowList()
	if conf.AllowListPath != "" {
		if allow, err = authz.LoadAllowListFile(conf.AllowListPath); err != nil {
			return nil, fmt.Errorf("failed to load allow-list: %w", err)
		}
	}

	authorities, err := conf.Authorities()
	if err != nil {
		return nil, err
	}

	keys := keystore.New()
	if conf.KeystoreDir != "" {
		ids, err := keys.LoadDir(conf.KeystoreDir)
		if err != nil {
			return nil, fmt.Errorf("failed to load keystore: %w", err)
		}
		logger.Info("keystore loaded", "accounts", len(ids))
	}

	gw := &Gateway{
		Schemas:     schemas,
		Commands:    commands,
		Protocol:    authz.NewProtocol(schemas, commands, allow, authorities),
		Keystore:    keys,
		Ledger:      ledger.Unavailable{},
		closeLedger: func() {},
	}

	if conf.LedgerURL != "" {
		adapter, err := ledger.Dial(ctx, conf.LedgerURL, logger)
		if err != nil {
			return nil, err
		}
		gw.Ledger = adapter
		gw.closeLedger = adapter.Close
		logger.Info("connected to ledger", "url", conf.LedgerURL)
	} else {
		logger.Warn("no ledger configured, ledger commands will be rejected")
	}

	logger.Info("gateway ready",
		"schemas", len(schemas.Names()),
		"commands", len(commands.Methods()),
		"allowList", allow.Len(),
		"authorities", len(authorities))
	return gw, nil
}

func (g *Gateway) Close() {
	g.closeLedger()
}

func loadSchemas(path string) (*codec.Registry, error) {
	if path == "" {
		return codec.DefaultRegistry()
	}
	schemas, err := codec.LoadRegistryFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load schema registry: %w", err)
	}
	return schemas, nil
}
