package cmd

import (
	"bytes"
	"fmt"
	"time"

	"github.com/achilleasa/lbvh/renderer"
	"github.com/achilleasa/lbvh/scene"
	"github.com/anthonynsimon/bild/imgio"
	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli"
)

// Render a still frame.
func RenderFrame(ctx *cli.Context) error {
	if err := setupLogging(ctx); err != nil {
		return err
	}

	cfg, err := configFromContext(ctx)
	if err != nil {
		return err
	}
	if ctx.IsSet("timeout") {
		cfg.Render.FrameTimeout = ctx.Duration("timeout")
	}

	sch, err := cfg.Render.blockScheduler()
	if err != nil {
		return err
	}

	tree, err := buildScene(cfg)
	if err != nil {
		return err
	}

	camera := scene.NewCamera(cfg.Render.FOV)
	camera.Position = cfg.Render.Eye
	camera.LookAt = cfg.Render.LookAt

	// Create renderer
	r, err := renderer.NewCPURenderer(tree, camera, sch, cfg.Render.Options)
	if err != nil {
		return err
	}
	defer r.Close()

	frames := cfg.Render.Frames
	if frames < 1 {
		frames = 1
	}
	for frame := 0; frame < frames; frame++ {
		if err = r.Render(); err != nil {
			return err
		}
		displayFrameStats(frame, r.Stats())
	}

	start := time.Now()
	if err = imgio.Save(cfg.Render.Out, r.Frame(), imgio.PNGEncoder()); err != nil {
		return fmt.Errorf("could not write frame: %w", err)
	}
	logger.Noticef("wrote frame to %s in %d ms", cfg.Render.Out, time.Since(start).Nanoseconds()/1000000)

	return nil
}

func displayFrameStats(frame int, stats renderer.FrameStats) {
	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetHeader([]string{"Tracer", "Block height", "% of frame", "Rays", "Render time"})
	for _, stat := range stats.Tracers {
		table.Append([]string{
			stat.Id,
			fmt.Sprintf("%d", stat.BlockH),
			fmt.Sprintf("%02.1f %%", stat.FramePercent),
			fmt.Sprintf("%d", stat.PrimaryRays+stat.ShadowRays),
			fmt.Sprintf("%s", stat.RenderTime),
		})
	}
	mraysPerSec := 0.0
	if secs := stats.RenderTime.Seconds(); secs > 0 {
		mraysPerSec = float64(stats.Rays()) / secs / 1e6
	}
	table.SetFooter([]string{"", "", "TOTAL", fmt.Sprintf("%.2f Mrays/s", mraysPerSec), fmt.Sprintf("%s", stats.RenderTime)})

	table.Render()
	logger.Noticef("frame %d statistics\n%s", frame, buf.String())
}
