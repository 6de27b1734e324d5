package main

import (
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	gethkeystore "github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/term"

	"github.com/erc7824/ledgergate/pkg/keystore"
	"github.com/erc7824/ledgergate/pkg/log"
)

const accountPassphraseEnv = "LEDGERGATE_ACCOUNT_PASSPHRASE"

// writeAccountFile encrypts key and stores it as <dir>/<address>.json.
func writeAccountFile(dir string, key *ecdsa.PrivateKey, passphrase string, scryptN, scryptP int) (string, error) {
	file, err := keystore.NewAccountFile(key, passphrase, scryptN, scryptP, map[string]any{"source": "ledgergate"})
	if err != nil {
		return "", err
	}
	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	path := filepath.Join(dir, file.Address+".json")
	if err := os.WriteFile(path, data, 0600); err != nil {
		return "", fmt.Errorf("failed to write account file: %w", err)
	}
	return path, nil
}

func readNewPassphrase() (string, error) {
	if value, ok := os.LookupEnv(accountPassphraseEnv); ok {
		if strings.TrimSpace(value) == "" {
			return "", fmt.Errorf("%s is set but empty", accountPassphraseEnv)
		}
		return value, nil
	}

	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return "", fmt.Errorf("passphrase required; set %s or run interactively", accountPassphraseEnv)
	}

	fmt.Fprint(os.Stderr, "Enter passphrase: ")
	first, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read passphrase: %w", err)
	}
	fmt.Fprint(os.Stderr, "Repeat passphrase: ")
	second, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read passphrase: %w", err)
	}

	if string(first) != string(second) {
		return "", errors.New("passphrases do not match")
	}
	if strings.TrimSpace(string(first)) == "" {
		return "", errors.New("passphrase cannot be empty")
	}
	return string(first), nil
}

func runNewAccountCli(logger log.Logger) {
	logger = logger.WithName("new-account")
	if len(os.Args) > 3 {
		logger.Fatal("Usage: ledgergate new-account [dir]")
	}

	dir := os.Getenv("LEDGERGATE_KEYSTORE_DIR")
	if len(os.Args) == 3 {
		dir = os.Args[2]
	}
	if dir == "" {
		dir = "."
	}

	passphrase, err := readNewPassphrase()
	if err != nil {
		logger.Fatal("failed to read passphrase", "error", err)
	}

	key, err := crypto.GenerateKey()
	if err != nil {
		logger.Fatal("failed to generate key", "error", err)
	}

	path, err := writeAccountFile(dir, key, passphrase, gethkeystore.StandardScryptN, gethkeystore.StandardScryptP)
	if err != nil {
		logger.Fatal("failed to create account", "error", err)
	}
	logger.Info("account created", "file", path)
}
