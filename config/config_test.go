package config

import (
	"flag"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"gopkg.in/urfave/cli.v1"

	"github.com/clawlet/broker/chain"
)

func newTestContext(t *testing.T, args ...string) *cli.Context {
	app := cli.NewApp()
	app.Flags = Flags
	set := flag.NewFlagSet("test", flag.ContinueOnError)
	for _, f := range Flags {
		f.Apply(set)
	}
	if err := set.Parse(args); err != nil {
		t.Fatalf("cannot parse flags: %v", err)
	}
	return cli.NewContext(app, set, nil)
}

func TestLoad_DefaultsFromEnvironment(t *testing.T) {
	os.Unsetenv("PORT")
	os.Unsetenv("DEMO_MODE")
	ctx := newTestContext(t)

	cfg, err := Load(ctx)
	assert.NoError(t, err)
	assert.Equal(t, "8402", cfg.Port)
	assert.False(t, cfg.DemoMode)
}

func TestLoad_FlagsOverrideEnvironment(t *testing.T) {
	os.Setenv("PORT", "9000")
	defer os.Unsetenv("PORT")
	ctx := newTestContext(t, "--port", "9500", "--demo")

	cfg, err := Load(ctx)
	assert.NoError(t, err)
	assert.Equal(t, "9500", cfg.Port)
	assert.True(t, cfg.DemoMode)
}

func TestRPCEndpoint_FallsBackToChainDefault(t *testing.T) {
	cfg := &Config{}
	assert.Equal(t, "https://sepolia.base.org", cfg.RPCEndpoint(chain.BaseSepolia))
}

func TestRPCEndpoint_PrefersOverride(t *testing.T) {
	cfg := &Config{RPC: RPCOverrides{BaseSepolia: "https://custom.example.com"}}
	assert.Equal(t, "https://custom.example.com", cfg.RPCEndpoint(chain.BaseSepolia))
}
