package main

import (
	"bytes"
	"fmt"

	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli"

	"github.com/gogpu/rtreflect"
	"github.com/gogpu/rtreflect/backend/native"
	"github.com/gogpu/rtreflect/gpucore"
)

// Info prints the configuration a render with the same flags would use.
func Info(ctx *cli.Context) error {
	setupLogging(ctx)

	settings, err := parseFrameSettings(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("pass configuration\n%s", configTable(settings))
	fmt.Printf("program layouts\n%s", layoutTable())
	return nil
}

func configTable(s frameSettings) string {
	cfg := rtreflect.DefaultPipelineConfig()
	cfg.DefaultViewportWidth = s.width
	cfg.DefaultViewportHeight = s.height
	env := rtreflect.DefaultEnvironment()
	lc := cfg.LightCluster
	trace := rtreflect.TiledDispatch(s.width, s.height, 8)
	denoise := rtreflect.DenoiseDispatch(s.width, s.height)

	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetAutoFormatHeaders(false)
	table.SetHeader([]string{"Setting", "Value"})
	table.AppendBulk([][]string{
		{"Viewport", fmt.Sprintf("%d x %d", cfg.DefaultViewportWidth, cfg.DefaultViewportHeight)},
		{"Field of view", fmt.Sprintf("%.1f deg", s.fov)},
		{"Pixel spread", fmt.Sprintf("%.6f rad", rtreflect.PixelSpreadAngle(s.fov, s.width, s.height))},
		{"Trace workgroups", trace.String()},
		{"Denoise workgroups", denoise.String()},
		{"Ray bias", fmt.Sprintf("%g", env.RayBias)},
		{"Ray max length", fmt.Sprintf("%g", env.RayMaxLength)},
		{"Denoise radius", fmt.Sprintf("%d", env.DenoiseRadius)},
		{"Denoise sigma", fmt.Sprintf("%g", env.DenoiseSigma)},
		{"Cluster cells", printer.Sprintf("%d x %d x %d (%d)", lc.CellsX, lc.CellsY, lc.CellsZ, lc.CellCount())},
		{"Cluster range", fmt.Sprintf("%g", lc.ClusterRange)},
		{"Lights per cell", fmt.Sprintf("%d", lc.MaxLightsPerCell)},
	})
	table.Render()
	return buf.String()
}

func layoutTable() string {
	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetAutoFormatHeaders(false)
	table.SetHeader([]string{"Program", "Uniform block", "Resources", "Bindings", "Workgroup"})
	for _, p := range []struct {
		name   string
		layout gpucore.ProgramLayout
	}{
		{"RayGenReflections", rtreflect.ReflectionProgramLayout()},
		{"GaussianBilateralFilter", rtreflect.BilateralFilterLayout()},
	} {
		table.Append([]string{
			p.name,
			fmt.Sprintf("%d B", p.layout.UniformBlockSize()),
			fmt.Sprintf("%d", len(p.layout.Resources)),
			fmt.Sprintf("%d", len(native.BindGroupLayoutEntries(&p.layout))),
			fmt.Sprintf("%d x %d", p.layout.WorkgroupSize[0], p.layout.WorkgroupSize[1]),
		})
	}
	table.Render()
	return buf.String()
}
