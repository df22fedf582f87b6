package main

import (
	"fmt"
	"os"
	"reflect"
	"unicode"

	"github.com/naoina/toml"
)

// config mirrors the CLI flags; a TOML file supplies defaults and flags
// override it. Field names double as TOML keys.
type config struct {
	QuoteURL string
	RPCURL   string
	ChainID  int64
	Key      string

	FromChain int64
	ToChain   int64
	FromToken string
	ToToken   string
	Recipient string
	Amount    string
	MinAmount string
	Refund    string

	// ConfirmTimeout is a time.ParseDuration string, e.g. "5m". Empty means
	// no bound beyond each call's context.
	ConfirmTimeout string
}

// tomlSettings follows the strict decoding convention used by geth's config
// loader: unknown keys are an error rather than silently dropped.
var tomlSettings = toml.Config{
	NormFieldName: func(rt reflect.Type, key string) string {
		return key
	},
	FieldToKey: func(rt reflect.Type, field string) string {
		return field
	},
	MissingField: func(rt reflect.Type, field string) error {
		link := ""
		if unicode.IsUpper(rune(rt.Name()[0])) && rt.PkgPath() != "main" {
			link = fmt.Sprintf(", see %s for available fields", rt.String())
		}
		return fmt.Errorf("field '%s' is not defined in %s%s", field, rt.String(), link)
	},
}

func loadConfig(path string, cfg *config) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	err = tomlSettings.NewDecoder(f).Decode(cfg)
	if err != nil {
		return fmt.Errorf("config file %s: %w", path, err)
	}
	return nil
}
