// Command adbfsm mounts an Android device, reached over the Android Debug
// Bridge, as a FUSE filesystem.
package main

import (
	"context"
	stdlog "log"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	sahibconfig "github.com/sahib/config"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"github.com/mrizaln/adbfsm/fuse"
	"github.com/mrizaln/adbfsm/internal/config"
	"github.com/mrizaln/adbfsm/internal/control"
	"github.com/mrizaln/adbfsm/internal/deviceconn"
	"github.com/mrizaln/adbfsm/internal/entitystore"
	"github.com/mrizaln/adbfsm/internal/pagecache"
	"github.com/mrizaln/adbfsm/internal/transport"
	ownlog "github.com/mrizaln/adbfsm/util/log"
)

func init() {
	logrus.SetOutput(os.Stderr)
	logrus.SetFormatter(&ownlog.FancyLogFormatter{UseColors: true})
	stdlog.SetOutput(&ownlog.Writer{Level: logrus.DebugLevel})
}

func main() {
	app := cli.NewApp()
	app.Name = "adbfsm"
	app.Usage = "Mount an Android device over adb as a local filesystem"
	app.Version = "0.1.0"

	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:   "config,c",
			Usage:  "Path to the adbfsm config file",
			EnvVar: "ADBFSM_CONFIG",
		},
		cli.StringFlag{
			Name:  "serial,s",
			Usage: "Device serial to mount (default: sole attached device)",
		},
		cli.BoolFlag{
			Name:  "read-only,r",
			Usage: "Mount read-only",
		},
		cli.StringFlag{
			Name:  "root",
			Usage: "Device-side path to expose as the mount's root",
		},
		cli.StringFlag{
			Name:  "control-socket",
			Usage: "Path of the unix-domain control socket",
			Value: "/tmp/adbfsm.sock",
		},
		cli.StringFlag{
			Name:  "log-level",
			Usage: "One of debug, info, warning, error",
		},
	}

	app.Action = runMount

	if err := app.Run(os.Args); err != nil {
		logrus.Fatal(err)
	}
}

func runMount(c *cli.Context) error {
	args := c.Args()
	if len(args) != 1 {
		return cli.NewExitError("usage: adbfsm [options] <mountpoint>", 1)
	}
	mountpoint := args[0]

	cfgPath := c.String("config")
	if cfgPath == "" {
		var err error
		cfgPath, err = config.DefaultPath()
		if err != nil {
			return errors.Wrap(err, "adbfsm: resolve config path")
		}
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return errors.Wrap(err, "adbfsm: load config")
	}
	applyFlagOverrides(cfg, c)

	if level, err := logrus.ParseLevel(cfg.String("log.level")); err == nil {
		logrus.SetLevel(level)
	}

	ctx := context.Background()

	adbPath := cfg.String("adb.path")
	devices, err := deviceconn.ListDevices(ctx, adbPath)
	if err != nil {
		return errors.Wrap(err, "adbfsm: list devices")
	}
	serial, err := deviceconn.SelectSerial(devices, cfg.String("adb.serial"))
	if err != nil {
		return errors.Wrap(err, "adbfsm: select device")
	}
	logrus.WithField("serial", serial).Info("adbfsm: using device")

	tp := transport.New(serial, transport.WithAdbPath(adbPath))

	store, err := entitystore.Open(cfgPath + ".entitystore")
	if err != nil {
		return errors.Wrap(err, "adbfsm: open entity store")
	}
	defer store.Close()

	cache := pagecache.New(config.PageSizeBytes(cfg), config.MaxPages(cfg))
	defer cache.Close()

	root := cfg.String("mount.root")
	readOnly := cfg.Bool("mount.read_only")

	filesys := fuse.NewFilesystem(tp, cache, store, root, readOnly)

	mnt, err := fuse.NewMount(filesys, mountpoint, fuse.MountOptions{ReadOnly: readOnly, Root: root})
	if err != nil {
		return errors.Wrap(err, "adbfsm: mount")
	}

	flushOrphans := func(ctx context.Context) error {
		for _, orphan := range cache.TakeOrphans() {
			key := orphan.Key()
			path, ok, err := store.PathOf(key.ID)
			if err != nil {
				return err
			}
			if !ok {
				logrus.WithField("id", key.ID).Warn("adbfsm: orphan page for unknown file, dropped")
				continue
			}
			offset := int64(key.Index) * int64(cache.PageSize())
			if _, err := tp.Write(ctx, path, orphan.Bytes(), offset); err != nil {
				return errors.Wrapf(err, "adbfsm: flush orphan page for %s", path)
			}
		}
		return nil
	}

	ctlSocketPath := c.String("control-socket")
	os.Remove(ctlSocketPath)

	var ctl *control.Server
	lst, err := net.Listen("unix", ctlSocketPath)
	if err != nil {
		logrus.WithError(err).Warn("adbfsm: control socket unavailable, continuing without it")
	} else {
		ctl = control.NewServer(lst, cache, flushOrphans)
		go func() {
			if err := ctl.Serve(); err != nil {
				logrus.WithError(err).Error("adbfsm: control server stopped")
			}
		}()
	}

	watchCtx, cancelWatch := context.WithCancel(ctx)
	defer cancelWatch()
	go watchDeviceConnectivity(watchCtx, adbPath, serial)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logrus.Info("adbfsm: shutting down")
	if ctl != nil {
		ctl.Quit()
		if err := ctl.Close(); err != nil {
			logrus.WithError(err).Warn("adbfsm: closing control socket")
		}
	}
	if err := flushOrphans(context.Background()); err != nil {
		logrus.WithError(err).Warn("adbfsm: final orphan flush")
	}
	return mnt.Close()
}

// watchDeviceConnectivity logs disconnect/reconnect transitions using the
// same rate-paced probe the reconnect Supervisor drives, so an unplugged
// device doesn't spam the log with per-syscall transport errors.
func watchDeviceConnectivity(ctx context.Context, adbPath, serial string) {
	supervisor := deviceconn.NewSupervisor(adbPath, serial, 2*time.Second)

	for {
		devices, err := deviceconn.ListDevices(ctx, adbPath)
		connected := false
		if err == nil {
			for _, d := range devices {
				if d.Serial == serial && d.Status == deviceconn.StatusDevice {
					connected = true
				}
			}
		}

		if !connected {
			logrus.Warn("adbfsm: device unreachable, waiting for reconnect")
			if err := supervisor.WaitForReconnect(ctx); err != nil {
				return
			}
			logrus.Info("adbfsm: device reconnected")
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(2 * time.Second):
		}
	}
}

func applyFlagOverrides(cfg *sahibconfig.Config, c *cli.Context) {
	if c.IsSet("serial") {
		_ = cfg.SetString("adb.serial", c.String("serial"))
	}
	if c.IsSet("read-only") {
		_ = cfg.SetBool("mount.read_only", c.Bool("read-only"))
	}
	if c.IsSet("root") {
		_ = cfg.SetString("mount.root", c.String("root"))
	}
	if c.IsSet("log-level") {
		_ = cfg.SetString("log.level", c.String("log-level"))
	}
}
