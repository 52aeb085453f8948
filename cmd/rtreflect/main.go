// Command rtreflect renders one frame of ray-traced reflections for a
// built-in demo scene and prints the dispatch statistics.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli"
)

func main() {
	cli.VersionFlag = cli.BoolFlag{
		Name:  "version",
		Usage: "print only the version",
	}

	app := cli.NewApp()
	app.Name = "rtreflect"
	app.Usage = "render ray-traced reflections of a demo scene"
	app.Version = "0.1.0"
	app.Flags = []cli.Flag{
		cli.BoolFlag{
			Name:  "v",
			Usage: "enable verbose logging",
		},
		cli.BoolFlag{
			Name:  "vv",
			Usage: "enable even more verbose logging",
		},
	}
	app.Commands = []cli.Command{
		{
			Name:  "render",
			Usage: "render a single frame",
			Description: `
Build the demo scene (a reflective floor, boxes and a pillar spread over
three layers), rasterize its depth and normal buffers, record the
reflection trace and denoise dispatches and submit them to the GPU.

The denoised reflections are composited over the scene albedo and
written to a PNG file. Use --noop to run the whole pipeline on the noop
HAL backend when no GPU is available; the image is then black.`,
			Flags: append(frameFlags(),
				cli.StringFlag{
					Name:  "camera",
					Value: "game",
					Usage: "camera type: game, sceneview, preview or reflection",
				},
				cli.StringFlag{
					Name:  "mask",
					Value: "all",
					Usage: "comma separated layers traced by the game camera filter, or \"all\"",
				},
				cli.BoolFlag{
					Name:  "noop",
					Usage: "use the noop HAL backend instead of Vulkan",
				},
				cli.StringFlag{
					Name:  "out, o",
					Value: "reflections.png",
					Usage: "image filename for the rendered frame",
				},
				cli.Float64Flag{
					Name:  "scale",
					Value: 1.0,
					Usage: "rescale the written image by this factor",
				},
				cli.StringFlag{
					Name:  "caption",
					Usage: "text drawn in the bottom left corner of the image",
				},
			),
			Action: RenderFrame,
		},
		{
			Name:   "info",
			Usage:  "print the resolved pass configuration and program layouts",
			Flags:  frameFlags(),
			Action: Info,
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "rtreflect: %v\n", err)
		os.Exit(1)
	}
}

// frameFlags are shared by every command that sizes a frame.
func frameFlags() []cli.Flag {
	return []cli.Flag{
		cli.IntFlag{
			Name:  "width",
			Value: 640,
			Usage: "frame width",
		},
		cli.IntFlag{
			Name:  "height",
			Value: 360,
			Usage: "frame height",
		},
		cli.Float64Flag{
			Name:  "fov",
			Value: 60,
			Usage: "vertical field of view in degrees",
		},
	}
}
