package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/erc7824/ledgergate/pkg/codec"
	"github.com/erc7824/ledgergate/pkg/fixedpoint"
	"github.com/erc7824/ledgergate/pkg/log"
)

// renderSchemas writes one table row per schema field.
func renderSchemas(w io.Writer, schemas *codec.Registry) error {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Schema", "Prefix", "#", "Field", "Type", "Rule", "Detail"})
	t.AppendSeparator()

	for _, name := range schemas.Names() {
		schema, err := schemas.Lookup(name)
		if err != nil {
			return err
		}
		for i, f := range schema.Fields {
			t.AppendRow(table.Row{schema.Name, schema.LengthPrefix, i, f.Name, f.Type, f.Normalize, fieldDetail(f)})
		}
	}
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, AutoMerge: true},
		{Number: 2, AutoMerge: true},
	})
	t.Render()
	return nil
}

func fieldDetail(f codec.Field) string {
	switch f.Normalize {
	case codec.RuleDecimal:
		digits := f.Digits
		if digits == 0 {
			digits = fixedpoint.DefaultDigits
		}
		return fmt.Sprintf("%d fractional digits", digits)
	case codec.RulePercent:
		return strings.TrimSpace(fmt.Sprintf("x%d %s", f.Scale, f.Rounding))
	default:
		return ""
	}
}

func runSchemasCli(logger log.Logger) {
	logger = logger.WithName("schemas")
	if len(os.Args) > 3 {
		logger.Fatal("Usage: ledgergate schemas [schemas.yaml]")
	}

	path := os.Getenv("LEDGERGATE_SCHEMAS_PATH")
	if len(os.Args) == 3 {
		path = os.Args[2]
	}

	schemas, err := loadSchemas(path)
	if err != nil {
		logger.Fatal("failed to load schemas", "error", err)
	}
	if err := renderSchemas(os.Stdout, schemas); err != nil {
		logger.Fatal("failed to render schemas", "error", err)
	}
}
