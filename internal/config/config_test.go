package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/vnykmshr/forkjoin/internal/testutil"
	fjerrors "github.com/vnykmshr/forkjoin/pkg/common/errors"
	"github.com/vnykmshr/forkjoin/pkg/queue"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	c, err := Load(viper.New(), "")
	testutil.AssertNoError(t, err)

	d := Default()
	testutil.AssertEqual(t, *c, *d)
	testutil.AssertEqual(t, c.InletStrategy, "block")
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "pool.yaml")
	content := "name: batch\nparallelism: 6\ninlet_strategy: error\nlog_level: debug\n"
	testutil.AssertNoError(t, os.WriteFile(file, []byte(content), 0o600))

	t.Setenv("FORKJOIN_PARALLELISM", "3")
	t.Setenv("FORKJOIN_INLET_CAPACITY", "64")

	c, err := Load(viper.New(), file)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, c.Name, "batch")
	testutil.AssertEqual(t, c.Parallelism, 3)
	testutil.AssertEqual(t, c.InletCapacity, 64)
	testutil.AssertEqual(t, c.InletStrategy, "error")
	testutil.AssertEqual(t, c.LogLevel, "debug")
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(viper.New(), filepath.Join(t.TempDir(), "missing.yaml"))
	testutil.AssertError(t, err)
}

func TestBindFlags(t *testing.T) {
	t.Chdir(t.TempDir())

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Int("parallelism", 0, "")
	flags.String("metrics-addr", "", "")
	testutil.AssertNoError(t, flags.Parse([]string{"--parallelism=5", "--metrics-addr=:9090"}))

	v := viper.New()
	testutil.AssertNoError(t, BindFlags(v, flags))
	c, err := Load(v, "")
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, c.Parallelism, 5)
	testutil.AssertEqual(t, c.MetricsAddr, ":9090")
}

func TestPoolConfig(t *testing.T) {
	c := Default()
	c.Parallelism = 2
	c.InletStrategy = "error"
	c.MetricsAddr = ":0"

	var out bytes.Buffer
	logger := c.Logger(&out)
	pc, err := c.PoolConfig(logger)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, pc.Parallelism, 2)
	testutil.AssertEqual(t, pc.InletStrategy, queue.Error)
	testutil.AssertEqual(t, pc.Metrics.Enabled, true)

	logger.Info("hello")
	testutil.AssertEqual(t, strings.Contains(out.String(), "forkjoin: hello"), true)

	c.InletStrategy = "drop"
	_, err = c.PoolConfig(logger)
	testutil.AssertEqual(t, fjerrors.IsValidationError(err), true)
}
