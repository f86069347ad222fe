package cmd

import (
	"bytes"
	"fmt"

	"github.com/achilleasa/lbvh/bvh"
	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli"
)

// Generate a scene, build a BVH over it and display the build statistics.
func BuildTree(ctx *cli.Context) error {
	if err := setupLogging(ctx); err != nil {
		return err
	}

	cfg, err := configFromContext(ctx)
	if err != nil {
		return err
	}

	tree, err := buildScene(cfg)
	if err != nil {
		return err
	}

	if err = tree.Validate(); err != nil {
		logger.Errorf("tree validation failed: %v", err)
		return err
	}

	displayBuildStats(tree)
	return nil
}

func displayBuildStats(tree *bvh.Tree) {
	stats := tree.Stats()
	leafAvg := 0.0
	if stats.Leaves > 0 {
		leafAvg = float64(stats.Primitives) / float64(stats.Leaves)
	}

	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetHeader([]string{"Metric", "Value"})
	table.AppendBulk([][]string{
		{"Primitives", fmt.Sprintf("%d", stats.Primitives)},
		{"Nodes", fmt.Sprintf("%d", stats.Nodes)},
		{"Leaves", fmt.Sprintf("%d", stats.Leaves)},
		{"Max depth", fmt.Sprintf("%d", stats.MaxDepth)},
		{"Max leaf size", fmt.Sprintf("%d", stats.MaxLeafSize)},
		{"Avg leaf size", fmt.Sprintf("%.2f", leafAvg)},
		{"Root surface area", fmt.Sprintf("%.2f", rootArea(tree))},
	})
	table.SetFooter([]string{"Build time", fmt.Sprintf("%s", stats.Duration)})

	table.Render()
	logger.Noticef("build statistics\n%s", buf.String())
}

func rootArea(tree *bvh.Tree) float32 {
	return tree.Nodes()[tree.Root()].Bounds().SurfaceArea()
}
