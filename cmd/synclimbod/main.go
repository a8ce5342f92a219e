// Command synclimbod runs a standalone synchronous transaction limbo node:
// the limbo itself, a sqlite-backed log bridge, the admin HTTP surface, and
// the periodic backlog watchdog, wired together the way lxc's command tree
// wires a root cobra.Command to its subcommands.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/canonical/synclimbo/internal/api"
	"github.com/canonical/synclimbo/internal/config"
	"github.com/canonical/synclimbo/internal/logging"
	"github.com/canonical/synclimbo/internal/walstore"
	"github.com/canonical/synclimbo/internal/watchdog"
	"github.com/canonical/synclimbo/limbo"
)

type cmdGlobal struct {
	flagConfigPath string
}

func main() {
	global := &cmdGlobal{}

	app := &cobra.Command{
		Use:   "synclimbod",
		Short: "Synchronous transaction limbo daemon",
	}
	app.PersistentFlags().StringVar(&global.flagConfigPath, "config", "synclimbo.yaml", "Path to the YAML configuration file")

	app.AddCommand((&cmdRun{global: global}).command())
	app.AddCommand((&cmdForceEmpty{global: global}).command())
	app.AddCommand((&cmdStatus{global: global}).command())

	if err := app.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func (g *cmdGlobal) loadConfig() (config.Config, error) {
	if _, err := os.Stat(g.flagConfigPath); os.IsNotExist(err) {
		return config.Default(), nil
	}
	return config.Load(g.flagConfigPath)
}

type cmdRun struct {
	global *cmdGlobal
}

func (c *cmdRun) command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the limbo daemon in the foreground",
		RunE:  c.run,
	}
	return cmd
}

func (c *cmdRun) run(cmd *cobra.Command, args []string) error {
	cfg, err := c.global.loadConfig()
	if err != nil {
		return err
	}

	log := logging.New(logrus.InfoLevel)

	store, err := walstore.Open(cfg.WALPath)
	if err != nil {
		return err
	}
	defer store.Close()

	l := limbo.New(cfg.LocalPeer, store, cfg.Quorum, cfg.Timeout, log.Entry())

	wd, err := watchdog.New(l, cfg.WatchdogInterval, func() (config.Config, error) {
		return c.global.loadConfig()
	}, log.Entry())
	if err != nil {
		return err
	}
	wd.Start()
	defer wd.Stop()

	srv := api.New(l, log.Entry())
	log.Info("listening", logrus.Fields{"address": cfg.ListenAddress})
	return http.ListenAndServe(cfg.ListenAddress, srv.Router())
}

type cmdForceEmpty struct {
	global *cmdGlobal

	flagAddress string
}

func (c *cmdForceEmpty) command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "force-empty <confirm-pos>",
		Short: "Force the remote daemon's limbo empty up to a position",
		Args:  cobra.ExactArgs(1),
		RunE:  c.run,
	}
	cmd.Flags().StringVar(&c.flagAddress, "address", "http://127.0.0.1:8443", "Admin API base address")
	return cmd
}

func (c *cmdForceEmpty) run(cmd *cobra.Command, args []string) error {
	confirmPos, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid confirm-pos %q: %w", args[0], err)
	}
	payload, err := json.Marshal(map[string]int64{"confirm_pos": confirmPos})
	if err != nil {
		return err
	}

	resp, err := http.Post(c.flagAddress+"/1.0/force-empty", "application/json", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("force-empty failed: %s", resp.Status)
	}
	return nil
}

type cmdStatus struct {
	global *cmdGlobal

	flagAddress string
}

func (c *cmdStatus) command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Print the remote daemon's limbo status",
		RunE:  c.run,
	}
	cmd.Flags().StringVar(&c.flagAddress, "address", "http://127.0.0.1:8443", "Admin API base address")
	return cmd
}

func (c *cmdStatus) run(cmd *cobra.Command, args []string) error {
	resp, err := http.Get(c.flagAddress + "/1.0/status")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status request failed: %s", resp.Status)
	}
	_, err = io.Copy(cmd.OutOrStdout(), resp.Body)
	return err
}
