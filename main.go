package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/jacobsa/fuse"
	"github.com/rarydzu/tfs/external"
	"github.com/rarydzu/tfs/tfs"
	"github.com/rarydzu/tfs/tfs/config"
	"github.com/rarydzu/tfs/worker"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	app := cli.App{
		Name:        "tfs",
		Description: "a small in-memory filesystem with a flat root directory",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "path to a YAML config file; TFS_* variables override it",
			},
			&cli.BoolFlag{
				Name:  "dev",
				Usage: "run in development mode",
			},
			&cli.BoolFlag{
				Name:  "fuse_debug",
				Usage: "run in fuse debug mode",
			},
		},
		Commands: []*cli.Command{{
			Name:        "serve",
			Description: "run the stat server and, with a mountpoint, the FUSE mount until SIGINT/SIGTERM",
			Action: withLogger(func(sugarlog *zap.SugaredLogger, ctx *cli.Context) error {
				cfg, err := config.Load(ctx.String("config"))
				if err != nil {
					return err
				}
				cfg.DebugMode = cfg.DebugMode || ctx.Bool("dev")
				cfg.FuseCfg = &fuse.MountConfig{
					ReadOnly:    cfg.ReadOnly,
					ErrorLogger: zap.NewStdLog(sugarlog.Desugar()),
					FSName:      cfg.FilesystemName,
				}
				if ctx.Bool("fuse_debug") {
					cfg.FuseCfg.DebugLogger = zap.NewStdLog(sugarlog.Desugar())
				}
				w, err := worker.New(cfg, sugarlog)
				if err != nil {
					return fmt.Errorf("makeFS: %v", err)
				}
				if err := w.Start(); err != nil {
					return fmt.Errorf("Start: %v", err)
				}
				w.Wait()
				return nil
			}),
		}, {
			Name:        "import",
			Description: "copy an external file into a fresh filesystem and print its size",
			Flags:       copyFlags(),
			Action: withLogger(func(sugarlog *zap.SugaredLogger, ctx *cli.Context) error {
				fs, err := importFile(ctx, sugarlog)
				if err != nil {
					return err
				}
				defer fs.Destroy()
				inum, err := fs.Lookup(ctx.String("dest"))
				if err != nil {
					return err
				}
				attr, err := fs.GetAttr(inum)
				if err != nil {
					return err
				}
				fmt.Printf("%s: %d bytes\n", ctx.String("dest"), attr.Size)
				return nil
			}),
		}, {
			Name:        "cat",
			Description: "import an external file and print its content",
			Flags:       copyFlags(),
			Action: withLogger(func(sugarlog *zap.SugaredLogger, ctx *cli.Context) error {
				fs, err := importFile(ctx, sugarlog)
				if err != nil {
					return err
				}
				defer fs.Destroy()
				h, err := fs.Open(ctx.String("dest"), 0)
				if err != nil {
					return err
				}
				defer fs.Close(h)
				buf := make([]byte, fs.BlockSize())
				n, err := fs.Read(h, buf)
				if err != nil {
					return err
				}
				_, err = os.Stdout.Write(buf[:n])
				return err
			}),
		}, {
			Name:        "stress",
			Description: "append a payload from many goroutines to one file and report the final size",
			Flags: []cli.Flag{
				&cli.IntFlag{
					Name:  "threads",
					Usage: "number of concurrent writers",
					Value: 3,
				},
				&cli.StringFlag{
					Name:  "payload",
					Usage: "bytes each writer appends",
					Value: strings.Repeat("x", 12),
				},
			},
			Action: withLogger(func(sugarlog *zap.SugaredLogger, ctx *cli.Context) error {
				cfg, err := config.Load(ctx.String("config"))
				if err != nil {
					return err
				}
				fs, err := tfs.New(cfg, sugarlog)
				if err != nil {
					return err
				}
				defer fs.Destroy()
				size, err := stress(fs, ctx.Int("threads"), []byte(ctx.String("payload")))
				if err != nil {
					return err
				}
				fmt.Printf("/stress: %d bytes\n", size)
				return nil
			}),
		}},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func copyFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     "src",
			Usage:    "source URI: a local path, file://, s3://, gs:// or an azure blob https URL",
			Required: true,
		},
		&cli.StringFlag{
			Name:  "dest",
			Usage: "destination path inside the filesystem",
			Value: "/imported",
		},
	}
}

func withLogger(f func(*zap.SugaredLogger, *cli.Context) error) cli.ActionFunc {
	return func(ctx *cli.Context) error {
		logger, err := zap.NewProduction()
		if ctx.Bool("dev") {
			logger, err = zap.NewDevelopment()
		}
		if err != nil {
			return fmt.Errorf("Failed to initialize zap logger: %v", err)
		}
		defer logger.Sync()
		return f(logger.Sugar(), ctx)
	}
}

func importFile(ctx *cli.Context, sugarlog *zap.SugaredLogger) (*tfs.Tfs, error) {
	cfg, err := config.Load(ctx.String("config"))
	if err != nil {
		return nil, err
	}
	src, err := external.Open(context.Background(), ctx.String("src"))
	if err != nil {
		return nil, err
	}
	defer src.Close()
	fs, err := tfs.New(cfg, sugarlog)
	if err != nil {
		return nil, err
	}
	if err := fs.CopyFromExternal(src, ctx.String("dest")); err != nil {
		fs.Destroy()
		return nil, err
	}
	return fs, nil
}

// stress appends payload to /stress from n writers at once.
func stress(fs *tfs.Tfs, n int, payload []byte) (int, error) {
	h, err := fs.Open("/stress", tfs.OCreate)
	if err != nil {
		return 0, err
	}
	if err := fs.Close(h); err != nil {
		return 0, err
	}
	var g errgroup.Group
	for i := 0; i < n; i++ {
		g.Go(func() error {
			h, err := fs.Open("/stress", tfs.OAppend)
			if err != nil {
				return err
			}
			defer fs.Close(h)
			_, err = fs.Write(h, payload)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	inum, err := fs.Lookup("/stress")
	if err != nil {
		return 0, err
	}
	attr, err := fs.GetAttr(inum)
	if err != nil {
		return 0, err
	}
	return attr.Size, nil
}
