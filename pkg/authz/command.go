package authz

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/erc7824/ledgergate/pkg/codec"
	"github.com/erc7824/ledgergate/pkg/errcode"
)

//go:embed commands.yaml
var defaultCommands []byte

var ErrInvalidCommand = errors.New("invalid command")

// Tier is the signature requirement of a command.
type Tier string

const (
	TierSingle  Tier = "single"
	TierDual    Tier = "dual"
	TierChained Tier = "chained"
)

func (t Tier) parties() int {
	switch t {
	case TierSingle:
		return 1
	case TierDual, TierChained:
		return 2
	default:
		return 0
	}
}

// MessageKind selects what the parties sign.
type MessageKind string

const (
	MessageStruct    MessageKind = "struct"
	MessageCanonical MessageKind = "canonical"
)

// Role identifies a signing party. It decides the error code reported when
// that party's signature does not verify.
type Role string

const (
	RoleSender Role = "sender"
	RoleUser   Role = "user"
	RoleApp    Role = "app"
	RoleAuth   Role = "auth"
)

func (r Role) code() errcode.Code {
	switch r {
	case RoleUser:
		return errcode.UserSignatureInvalid
	case RoleApp:
		return errcode.AppSignatureInvalid
	case RoleAuth:
		return errcode.AuthSignatureInvalid
	default:
		return errcode.SenderSignatureInvalid
	}
}

func (r Role) valid() bool {
	return r == RoleSender || r == RoleUser || r == RoleApp || r == RoleAuth
}

// Party names the request fields holding one signer's public key and
// signature. A trusted party must be a configured authority.
type Party struct {
	Role     Role   `yaml:"role" json:"role"`
	KeyField string `yaml:"key_field" json:"key_field"`
	SigField string `yaml:"sig_field" json:"sig_field"`
	Trusted  bool   `yaml:"trusted,omitempty" json:"trusted,omitempty"`
}

// Command describes how one RPC method is authorized and where it goes.
type Command struct {
	Method       string      `yaml:"method" json:"method"`
	Schema       string      `yaml:"schema,omitempty" json:"schema,omitempty"`
	Message      MessageKind `yaml:"message" json:"message"`
	Tier         Tier        `yaml:"tier" json:"tier"`
	Parties      []Party     `yaml:"parties" json:"parties"`
	Privileged   bool        `yaml:"privileged,omitempty" json:"privileged"`
	Call         string      `yaml:"call,omitempty" json:"call,omitempty"`
	SuccessEvent string      `yaml:"success_event,omitempty" json:"success_event,omitempty"`
	// Secret fields are never written to the request history.
	Secret []string `yaml:"secret,omitempty" json:"secret,omitempty"`
}

// Local reports whether the command is handled by the gateway itself.
func (c *Command) Local() bool {
	return c.Call == ""
}

// IsSecret reports whether the request field name must not be persisted.
func (c *Command) IsSecret(name string) bool {
	return slices.Contains(c.Secret, name)
}

func (c *Command) isSigField(name string) bool {
	for _, p := range c.Parties {
		if p.SigField == name {
			return true
		}
	}
	return false
}

func (c *Command) validate(schemas *codec.Registry) error {
	if c.Method == "" {
		return errors.New("empty method")
	}
	switch c.Message {
	case MessageStruct:
		if c.Schema == "" {
			return errors.New("struct message needs a schema")
		}
	case MessageCanonical:
	default:
		return fmt.Errorf("unknown message kind %q", c.Message)
	}
	if c.Schema != "" {
		if _, err := schemas.Lookup(c.Schema); err != nil {
			return err
		}
	}

	want := c.Tier.parties()
	if want == 0 {
		return fmt.Errorf("unknown tier %q", c.Tier)
	}
	if len(c.Parties) != want {
		return fmt.Errorf("tier %s needs %d parties, got %d", c.Tier, want, len(c.Parties))
	}

	fields := make(map[string]struct{})
	for _, p := range c.Parties {
		if !p.Role.valid() {
			return fmt.Errorf("unknown role %q", p.Role)
		}
		for _, f := range []string{p.KeyField, p.SigField} {
			if f == "" {
				return fmt.Errorf("party %s: empty field name", p.Role)
			}
			if _, dup := fields[f]; dup {
				return fmt.Errorf("party %s: field %q used twice", p.Role, f)
			}
			fields[f] = struct{}{}
		}
	}

	for _, f := range c.Secret {
		if _, party := fields[f]; party {
			return fmt.Errorf("party field %q cannot be secret", f)
		}
	}

	if c.Call != "" && c.SuccessEvent == "" {
		return fmt.Errorf("call %s has no success event", c.Call)
	}
	return nil
}

// CommandTable maps RPC methods to commands. It is read-only once loaded.
type CommandTable struct {
	commands map[string]*Command
	methods  []string
}

func (t *CommandTable) Lookup(method string) (*Command, bool) {
	c, ok := t.commands[method]
	return c, ok
}

// Methods lists methods in declaration order.
func (t *CommandTable) Methods() []string {
	return append([]string(nil), t.methods...)
}

// All returns the commands in declaration order.
func (t *CommandTable) All() []Command {
	out := make([]Command, 0, len(t.methods))
	for _, m := range t.methods {
		out = append(out, *t.commands[m])
	}
	return out
}

type commandFile struct {
	Commands []Command `yaml:"commands"`
}

// LoadCommands parses a command document and checks every referenced schema
// against schemas.
func LoadCommands(data []byte, schemas *codec.Registry) (*CommandTable, error) {
	var file commandFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse commands: %w", err)
	}

	t := &CommandTable{commands: make(map[string]*Command, len(file.Commands))}
	for i := range file.Commands {
		c := file.Commands[i]
		if err := c.validate(schemas); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidCommand, c.Method, err)
		}
		if _, dup := t.commands[c.Method]; dup {
			return nil, fmt.Errorf("%w: %s declared twice", ErrInvalidCommand, c.Method)
		}
		t.commands[c.Method] = &c
		t.methods = append(t.methods, c.Method)
	}
	return t, nil
}

// LoadCommandsFile reads a command document from disk. An empty path yields
// the built-in commands.
func LoadCommandsFile(path string, schemas *codec.Registry) (*CommandTable, error) {
	if path == "" {
		return DefaultCommands(schemas)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read commands file: %w", err)
	}
	return LoadCommands(data, schemas)
}

func DefaultCommands(schemas *codec.Registry) (*CommandTable, error) {
	return LoadCommands(defaultCommands, schemas)
}
