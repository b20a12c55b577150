// Command racecomms-harness is a manual/integration test rig for the comms
// core: it wires up a CommsCore with a console-backed HostCallbacks
// implementation and drives one channel kind at a time through the
// activate/create/send/destroy lifecycle, printing every status callback as
// it fires. It plays the role lncli plays for lnd -- a small control-plane
// client -- except there is no separate daemon process to dial here, so
// each subcommand drives an in-process CommsCore directly instead of an RPC
// connection.
package main

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/btcsuite/btclog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli"

	"github.com/twosix-race/racecomms/boltstore"
	"github.com/twosix-race/racecomms/channel"
	"github.com/twosix-race/racecomms/conn"
	"github.com/twosix-race/racecomms/core"
	"github.com/twosix-race/racecomms/link"
	"github.com/twosix-race/racecomms/metrics"
	"github.com/twosix-race/racecomms/rclog"
	"github.com/twosix-race/racecomms/rctypes"
	"github.com/twosix-race/racecomms/sdk"
	"github.com/twosix-race/racecomms/storage"
	"github.com/twosix-race/racecomms/wire"
)

// log is this binary's own subsystem logger, registered alongside core's and
// link's so rclog.SetLevels applies uniformly.
var log = btclog.Disabled

func useLogger(l btclog.Logger) { log = l }

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "[racecomms-harness] %v\n", err)
	os.Exit(1)
}

func main() {
	configPath := defaultDir("racecomms.conf")
	fc, err := loadFileConfig(configPath)
	if err != nil {
		fatal(fmt.Errorf("parsing %s: %w", configPath, err))
	}

	app := cli.NewApp()
	app.Name = "racecomms-harness"
	app.Version = "0.1"
	app.Usage = "drive a standalone CommsCore through its plugin lifecycle"
	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "etc-dir", Value: override(defaultDir("etc"), fc.EtcDirectory), Usage: "directory for persisted checkpoints and salts"},
		cli.StringFlag{Name: "aux-dir", Value: override(defaultDir("aux"), fc.AuxDirectory), Usage: "directory HostCallbacks file ops are rooted at"},
		cli.StringFlag{Name: "log-level", Value: override("info", fc.LogLevel), Usage: "trace|debug|info|warn|error|critical"},
		cli.StringFlag{Name: "metrics-addr", Value: override(":9090", fc.MetricsAddr), Usage: "address to serve /metrics on, empty to disable"},
		cli.StringFlag{Name: "persona", Value: override("harness", fc.Persona), Usage: "persona name reported to GetActivePersona"},
	}
	app.Commands = []cli.Command{
		directDemoCommand,
		whiteboardDemoCommand,
		bootstrapServeCommand,
	}

	app.Before = func(ctx *cli.Context) error {
		setupLogging(ctx.String("log-level"))
		if addr := ctx.String("metrics-addr"); addr != "" {
			serveMetrics(addr)
		}
		return nil
	}

	if err := app.Run(os.Args); err != nil {
		fatal(err)
	}
}

func defaultDir(sub string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".racecomms", sub)
}

func setupLogging(level string) {
	rclog.Register("HRNS", useLogger)
	rclog.Register("CORE", core.UseLogger)
	rclog.Register("LINK", link.UseLogger)
	rclog.SetLevels(level)
	log.Infof("harness: logging initialized at level %s", level)
}

func serveMetrics(addr string) {
	metrics.MustRegister(prometheus.DefaultRegisterer)
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			fmt.Fprintf(os.Stderr, "[racecomms-harness] metrics server: %v\n", err)
		}
	}()
}

// directDemoCommand builds a direct-TCP channel with a CREATOR-and-LOADER
// ("both") role, creates one link to itself, opens a BIDI connection, sends
// one package, waits for the loopback to land, then tears everything down --
// exercising spec.md's direct-link loopback round-trip end to end.
var directDemoCommand = cli.Command{
	Name:  "direct-demo",
	Usage: "activate a direct channel, create+destroy one loopback link",
	Flags: []cli.Flag{
		cli.IntFlag{Name: "port-min", Value: 32000},
		cli.IntFlag{Name: "port-max", Value: 32100},
		cli.StringFlag{Name: "hostname", Value: "127.0.0.1"},
	},
	Action: func(ctx *cli.Context) error {
		host := newConsoleHost(ctx, "direct-demo")

		connReg := conn.NewRegistry()
		chanReg := channel.NewRegistry()
		const gid rctypes.ChannelGid = "DirectDemo"

		base := channel.NewBase(gid, host, rctypes.ChannelProperties{
			MaxLinks: 4,
			Roles:    []rctypes.Role{{Name: "both", LinkSide: rctypes.LinkSideBoth}},
		})
		inst := channel.NewDirect(base, host, connReg,
			ctx.Int("port-min"), ctx.Int("port-max"), link.DutyCycle{}, link.FaultConfig{})
		chanReg.Register(gid, func() (*channel.Base, channel.Instance) { return base, inst })

		store, err := boltstore.Open(ctx.GlobalString("etc-dir"))
		if err != nil {
			return fmt.Errorf("opening checkpoint store: %w", err)
		}
		defer store.Close()
		restoreCheckpoint(store, gid, base)

		c := core.New(host, chanReg, connReg)
		if err := c.Init(sdk.Config{EtcDirectory: ctx.GlobalString("etc-dir")}); err != nil {
			return err
		}

		host.requestedHostname = ctx.String("hostname")

		if resp := c.ActivateChannel(rctypes.NullRaceHandle, gid, "both"); resp != rctypes.PluginOK {
			return fmt.Errorf("ActivateChannel: %v", resp)
		}
		if resp := c.CreateLink(rctypes.NullRaceHandle, gid); resp != rctypes.PluginOK {
			return fmt.Errorf("CreateLink: %v", resp)
		}
		linkID := host.lastLinkID
		if resp := c.OpenConnection(rctypes.NullRaceHandle, rctypes.LinkBidi, linkID, "", rctypes.RaceUnlimited); resp != rctypes.PluginOK {
			return fmt.Errorf("OpenConnection: %v", resp)
		}
		connID := host.lastConnID
		pkg := wire.EncPkg{PackageType: rctypes.PkgTestHarness, CipherText: []byte("hello from racecomms-harness")}
		if resp := c.SendPackage(rctypes.NullRaceHandle, connID, pkg, 0, 0); resp != rctypes.PluginOK {
			return fmt.Errorf("SendPackage: %v", resp)
		}

		time.Sleep(500 * time.Millisecond)

		c.DestroyLink(rctypes.NullRaceHandle, linkID)
		c.DeactivateChannel(rctypes.NullRaceHandle, gid)
		c.Shutdown()

		if err := store.SaveNumLinks(string(gid), base.NumLinks()); err != nil {
			log.Warnf("direct-demo: checkpointing numLinks: %v", err)
		}
		return nil
	},
}

// whiteboardDemoCommand activates a whiteboard channel against an
// already-running bulletin board HTTP server and creates one link, polling
// it for a few seconds. Cursor state is checkpointed through
// storage.FileCursorStore, so a second run resumes instead of re-reading the
// whole board.
var whiteboardDemoCommand = cli.Command{
	Name:  "whiteboard-demo",
	Usage: "activate a whiteboard channel against a bulletin-board server",
	Flags: []cli.Flag{
		cli.StringFlag{Name: "board-hostname", Value: "127.0.0.1"},
		cli.IntFlag{Name: "board-port", Value: 5000},
		cli.StringFlag{Name: "passphrase", Value: "harness-demo-passphrase"},
		cli.IntFlag{Name: "poll-ms", Value: 1000},
		cli.IntFlag{Name: "max-tries", Value: 5},
		cli.DurationFlag{Name: "run-for", Value: 5 * time.Second},
	},
	Action: func(ctx *cli.Context) error {
		host := newConsoleHost(ctx, "whiteboard-demo")

		env, err := storage.NewEnvelope(host, filepath.Join(ctx.GlobalString("etc-dir"), ".salt"), ctx.String("passphrase"))
		if err != nil {
			return fmt.Errorf("building cursor envelope: %w", err)
		}
		cursors := storage.NewFileCursorStore(host, ctx.GlobalString("etc-dir"), env)

		connReg := conn.NewRegistry()
		chanReg := channel.NewRegistry()
		const gid rctypes.ChannelGid = "WhiteboardDemo"

		chanReg.Register(gid, func() (*channel.Base, channel.Instance) {
			base := channel.NewBase(gid, host, rctypes.ChannelProperties{
				MaxLinks: 4,
				Roles:    []rctypes.Role{{Name: "both", LinkSide: rctypes.LinkSideBoth}},
			})
			inst := channel.NewWhiteboard(base, host, connReg, http.DefaultClient, cursors,
				channel.WhiteboardConfig{
					Hostname: ctx.String("board-hostname"),
					Port:     ctx.Int("board-port"),
					PollMS:   ctx.Int("poll-ms"),
					MaxTries: ctx.Int("max-tries"),
				}, link.DutyCycle{}, link.FaultConfig{})
			return base, inst
		})

		c := core.New(host, chanReg, connReg)
		if err := c.Init(sdk.Config{EtcDirectory: ctx.GlobalString("etc-dir")}); err != nil {
			return err
		}

		if resp := c.ActivateChannel(rctypes.NullRaceHandle, gid, "both"); resp != rctypes.PluginOK {
			return fmt.Errorf("ActivateChannel: %v", resp)
		}
		if resp := c.CreateLink(rctypes.NullRaceHandle, gid); resp != rctypes.PluginOK {
			return fmt.Errorf("CreateLink: %v", resp)
		}
		linkID := host.lastLinkID
		if resp := c.OpenConnection(rctypes.NullRaceHandle, rctypes.LinkRecv, linkID, "", rctypes.RaceUnlimited); resp != rctypes.PluginOK {
			return fmt.Errorf("OpenConnection: %v", resp)
		}

		time.Sleep(ctx.Duration("run-for"))

		c.DestroyLink(rctypes.NullRaceHandle, linkID)
		c.DeactivateChannel(rctypes.NullRaceHandle, gid)
		c.Shutdown()
		return nil
	},
}

// bootstrapServeCommand serves a directory's contents over HTTP for a
// joining peer to fetch, left running until interrupted.
var bootstrapServeCommand = cli.Command{
	Name:      "bootstrap-serve",
	Usage:     "serve a directory as a bootstrap bundle until killed",
	ArgsUsage: "<directory>",
	Flags: []cli.Flag{
		cli.StringFlag{Name: "passphrase", Value: "harness-demo-passphrase"},
	},
	Action: func(ctx *cli.Context) error {
		dir := ctx.Args().First()
		if dir == "" {
			return fmt.Errorf("bootstrap-serve requires a directory argument")
		}
		host := newConsoleHost(ctx, "bootstrap-serve")

		connReg := conn.NewRegistry()
		chanReg := channel.NewRegistry()
		const gid rctypes.ChannelGid = "BootstrapDemo"

		chanReg.Register(gid, func() (*channel.Base, channel.Instance) {
			base := channel.NewBase(gid, host, rctypes.ChannelProperties{
				MaxLinks: 1,
				Roles:    []rctypes.Role{{Name: "creator", LinkSide: rctypes.LinkSideCreator}},
			})
			return base, channel.NewBootstrapFile(base, host, connReg, dir)
		})

		c := core.New(host, chanReg, connReg)
		if err := c.Init(sdk.Config{EtcDirectory: ctx.GlobalString("etc-dir")}); err != nil {
			return err
		}

		if resp := c.ActivateChannel(rctypes.NullRaceHandle, gid, "creator"); resp != rctypes.PluginOK {
			return fmt.Errorf("ActivateChannel: %v", resp)
		}
		if resp := c.CreateBootstrapLink(rctypes.NullRaceHandle, gid, ctx.String("passphrase")); resp != rctypes.PluginOK {
			return fmt.Errorf("CreateBootstrapLink: %v", resp)
		}
		if resp := c.ServeFiles(host.lastLinkID, dir); resp != rctypes.PluginOK {
			return fmt.Errorf("ServeFiles: %v", resp)
		}

		fmt.Printf("serving %s -- press Ctrl-C to stop\n", dir)
		select {}
	},
}

// restoreCheckpoint seeds base's numLinks from the last clean shutdown's
// boltstore checkpoint, before any links have actually been recreated.
func restoreCheckpoint(store *boltstore.Store, gid rctypes.ChannelGid, base *channel.Base) {
	if n, ok, err := store.LoadNumLinks(string(gid)); err == nil && ok {
		base.RestoreNumLinks(n)
	}
}
