package main

import (
	"os"

	"github.com/achilleasa/lbvh/cmd"
	"github.com/achilleasa/lbvh/log"
	"github.com/urfave/cli"
)

var logger = log.New("lbvh")

func main() {
	cli.VersionFlag = cli.BoolFlag{
		Name:  "version",
		Usage: "print only the version",
	}

	app := cli.NewApp()
	app.Name = "lbvh"
	app.Usage = "build and trace bounding volume hierarchies over triangle scenes"
	app.Version = "0.0.1"
	app.Flags = []cli.Flag{
		cli.BoolFlag{
			Name:  "v",
			Usage: "enable verbose logging",
		},
		cli.BoolFlag{
			Name:  "vv",
			Usage: "enable even more verbose logging",
		},
		cli.StringFlag{
			Name:  "log-level",
			Usage: "log level (debug, info, notice, warning, error)",
		},
		cli.StringFlag{
			Name:  "config, c",
			Usage: "load scene, bvh and render settings from a TOML file",
		},
	}
	app.Commands = []cli.Command{
		{
			Name:  "build",
			Usage: "generate a scene and build a BVH over it",
			Description: `
Generate a procedural triangle scene, sort its primitives along a morton curve
and build a BVH using agglomerative clustering. The tree is validated and its
statistics are displayed.`,
			Flags:  cmd.SceneFlags,
			Action: cmd.BuildTree,
		},
		{
			Name:  "verify",
			Usage: "compare BVH traversal results against a brute-force oracle",
			Description: `
Trace random rays through the scalar and packet traversal paths and camera
tiles through the frustum batch path. Every nearest hit and occlusion result
is compared against testing each ray with every primitive. The command fails
if any result differs.`,
			Flags: append([]cli.Flag{
				cli.IntFlag{
					Name:  "rays",
					Value: 10000,
					Usage: "number of random rays",
				},
				cli.Int64Flag{
					Name:  "ray-seed",
					Value: 1,
					Usage: "random seed for ray generation",
				},
			}, cmd.SceneFlags...),
			Action: cmd.VerifyTree,
		},
		{
			Name:        "render",
			Usage:       "render a depth and shadow frame",
			Description: `Render a single frame using a pool of CPU tracers and write it to a PNG file.`,
			Flags: append([]cli.Flag{
				cli.IntFlag{
					Name:  "width",
					Value: 512,
					Usage: "frame width",
				},
				cli.IntFlag{
					Name:  "height",
					Value: 512,
					Usage: "frame height",
				},
				cli.IntFlag{
					Name:  "tracers, t",
					Value: 4,
					Usage: "number of CPU tracers",
				},
				cli.StringFlag{
					Name:  "scheduler",
					Value: "perfect",
					Usage: "block scheduler (naive or perfect)",
				},
				cli.IntFlag{
					Name:  "frames",
					Value: 1,
					Usage: "number of frames to render",
				},
				cli.Float64Flag{
					Name:  "exposure",
					Value: 1.0,
					Usage: "camera exposure",
				},
				cli.DurationFlag{
					Name:  "timeout",
					Usage: "abort frames that take longer than this",
				},
				cli.StringFlag{
					Name:  "out, o",
					Value: "frame.png",
					Usage: "image filename for the rendered frame",
				},
			}, cmd.SceneFlags...),
			Action: cmd.RenderFrame,
		},
	}

	if err := app.Run(os.Args); err != nil {
		logger.Error(err.Error())
		os.Exit(1)
	}
}
