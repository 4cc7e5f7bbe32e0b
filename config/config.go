// Package config resolves the broker's runtime configuration (spec.md
// §6/§9): environment variables are the source of truth, an optional
// ./clawlet.toml supplies per-network RPC endpoint overrides, and
// command-line flags (parsed with gopkg.in/urfave/cli.v1) take the final
// word. The overrides are resolved by Config.RPCEndpoint only; the chainio
// client that clawletd builds dials the chain registry's endpoints and does
// not read them. The
// TOML decoder settings mirror the teacher's dumpconfig command so
// struct field names map onto TOML keys verbatim.
package config

import (
	"bufio"
	"errors"
	"os"
	"reflect"

	"github.com/naoina/toml"
	"gopkg.in/urfave/cli.v1"

	"github.com/clawlet/broker/chain"
)

// tomlSettings mirrors the teacher repo's ranger config decoder: struct
// field names are used as TOML keys unchanged.
var tomlSettings = toml.Config{
	NormFieldName: func(rt reflect.Type, key string) string { return key },
	FieldToKey:    func(rt reflect.Type, field string) string { return field },
}

// RPCOverrides optionally replaces a network's default RPC endpoint.
type RPCOverrides struct {
	Base        string `toml:"Base,omitempty"`
	BaseSepolia string `toml:"BaseSepolia,omitempty"`
}

// fileConfig is the shape of clawlet.toml.
type fileConfig struct {
	RPC RPCOverrides
}

// Config is the fully resolved runtime configuration.
type Config struct {
	Port     string
	DemoMode bool
	DataDir  string
	RPC      RPCOverrides
}

// Flags are the CLI flags accepted by the clawletd entrypoint.
var Flags = []cli.Flag{
	cli.StringFlag{Name: "port", Usage: "HTTP listen port", Value: "8402"},
	cli.BoolFlag{Name: "demo", Usage: "run in demo mode (disables write operations)"},
	cli.StringFlag{Name: "config", Usage: "path to clawlet.toml"},
	cli.StringFlag{Name: "data-dir", Usage: "directory holding state.json", Value: chain.DataDir},
}

// Load resolves configuration from the environment, an optional TOML
// file, then CLI flags, in that order of increasing precedence.
func Load(ctx *cli.Context) (*Config, error) {
	cfg := &Config{
		Port:     envOr("PORT", "8402"),
		DemoMode: os.Getenv("DEMO_MODE") == "true",
		DataDir:  envOr("CLAWLET_DATA_DIR", chain.DataDir),
	}

	configPath := ctx.GlobalString("config")
	if configPath == "" {
		if _, err := os.Stat("./clawlet.toml"); err == nil {
			configPath = "./clawlet.toml"
		}
	}
	if configPath != "" {
		var fc fileConfig
		if err := loadTOML(configPath, &fc); err != nil {
			return nil, err
		}
		cfg.RPC = fc.RPC
	}

	if ctx.GlobalIsSet("port") {
		cfg.Port = ctx.GlobalString("port")
	}
	if ctx.GlobalIsSet("demo") {
		cfg.DemoMode = ctx.GlobalBool("demo")
	}
	if ctx.GlobalIsSet("data-dir") {
		cfg.DataDir = ctx.GlobalString("data-dir")
	}

	return cfg, nil
}

func loadTOML(path string, out interface{}) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	err = tomlSettings.NewDecoder(bufio.NewReader(f)).Decode(out)
	if _, ok := err.(*toml.LineError); ok {
		err = errors.New(path + ", " + err.Error())
	}
	return err
}

// RPCEndpoint resolves the effective RPC endpoint for a network,
// preferring the TOML override when present.
func (c *Config) RPCEndpoint(network chain.Network) string {
	switch network {
	case chain.Base:
		if c.RPC.Base != "" {
			return c.RPC.Base
		}
	case chain.BaseSepolia:
		if c.RPC.BaseSepolia != "" {
			return c.RPC.BaseSepolia
		}
	}
	if cfg, ok := chain.ByNetwork(network); ok {
		return cfg.RPCURL
	}
	return ""
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
