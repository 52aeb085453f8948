package main

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"strconv"
	"strings"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/gogpu/wgpu/hal/noop"
	_ "github.com/gogpu/wgpu/hal/vulkan"

	"github.com/gogpu/rtreflect"
	"github.com/gogpu/rtreflect/accel"
	"github.com/gogpu/rtreflect/backend/native"
	"github.com/gogpu/rtreflect/gpucore"
	"github.com/gogpu/rtreflect/lightcluster"
)

const (
	skyWidth, skyHeight = 128, 64
	noiseResolution     = 16
	noiseLayers         = 4
)

var printer = message.NewPrinter(language.English)

// parseMask parses a comma separated layer list. "all" and the empty
// string select every layer.
func parseMask(s string) (rtreflect.VisibilityMask, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "all") {
		return rtreflect.LayerMaskEverything, nil
	}
	var layers []int
	for _, part := range strings.Split(s, ",") {
		l, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || l < 0 || l >= rtreflect.MaxLayers {
			return 0, fmt.Errorf("invalid layer %q", part)
		}
		layers = append(layers, l)
	}
	return rtreflect.LayerMask(layers...), nil
}

// openDevice opens the GPU device selected by the noop flag.
func openDevice(useNoop bool) (*native.Device, error) {
	if useNoop {
		return native.Open(&noop.API{})
	}
	return native.OpenVulkan()
}

// frameSettings are the parsed render flags.
type frameSettings struct {
	width, height int
	fov           float32
	cameraType    rtreflect.CameraType
	mask          rtreflect.VisibilityMask
}

func parseFrameSettings(ctx *cli.Context) (frameSettings, error) {
	s := frameSettings{
		width:  ctx.Int("width"),
		height: ctx.Int("height"),
		fov:    float32(ctx.Float64("fov")),
		mask:   rtreflect.LayerMaskEverything,
	}
	if s.width <= 0 || s.height <= 0 {
		return s, fmt.Errorf("%w: %dx%d", rtreflect.ErrInvalidViewport, s.width, s.height)
	}
	if s.fov <= 0 || s.fov >= 180 {
		return s, fmt.Errorf("invalid field of view %v", s.fov)
	}
	if name := ctx.String("camera"); name != "" {
		t, err := rtreflect.ParseCameraType(name)
		if err != nil {
			return s, err
		}
		s.cameraType = t
	}
	if ctx.String("mask") != "" {
		m, err := parseMask(ctx.String("mask"))
		if err != nil {
			return s, err
		}
		s.mask = m
	}
	return s, nil
}

// RenderFrame renders a still frame of the demo scene.
func RenderFrame(ctx *cli.Context) error {
	setupLogging(ctx)

	settings, err := parseFrameSettings(ctx)
	if err != nil {
		return err
	}

	device, err := openDevice(ctx.Bool("noop"))
	if err != nil {
		return err
	}
	defer device.Close()
	logger.Info("device opened", "adapter", device.Name())

	// Scene and collaborators.
	registry := rtreflect.NewFilterRegistry(nil)
	manager := accel.NewManager(device, registry)
	registry.SetProvider(manager)
	defer manager.Release()
	if err := populateScene(manager); err != nil {
		return err
	}

	camera := rtreflect.NewCamera(1, settings.cameraType, settings.fov, settings.width, settings.height)
	camera.LookAt(mgl32.Vec3{0, 2.5, 7}, mgl32.Vec3{0, 0.6, -0.5}, mgl32.Vec3{0, 1, 0})
	if settings.cameraType == rtreflect.CameraTypeGame {
		f := rtreflect.NewFilter(camera.ID, settings.mask)
		f.Attach(registry)
		defer f.Detach(registry)
	}

	start := time.Now()
	g := rasterize(camera, manager.Triangles(rtreflect.LayerMaskEverything), skyColor)
	rasterTime := time.Since(start)

	inputs, err := createFrameInputs(device, g)
	if err != nil {
		return err
	}
	defer inputs.release(device)

	noise, err := uploadTexture(device, &gpucore.TextureDesc{
		Label: "RaytracingNoise", Width: noiseResolution, Height: noiseResolution, Layers: noiseLayers,
		Format: gpucore.TextureFormatRGBA32Float, Usage: gpucore.TextureUsageTextureBinding,
	}, noiseTexels(noiseResolution, noiseLayers, 1))
	if err != nil {
		return fmt.Errorf("upload noise: %w", err)
	}
	defer device.DestroyTexture(noise.ID)

	output, err := device.CreateTexture(&gpucore.TextureDesc{
		Label: "ReflectionOutput", Width: settings.width, Height: settings.height,
		Format: gpucore.TextureFormatRGBA16Float,
		Usage:  gpucore.TextureUsageStorageBinding | gpucore.TextureUsageCopySrc,
	})
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	defer device.DestroyTexture(output.ID)

	shaders, err := rtreflect.LoadShaders(device, native.ShaderSources())
	if err != nil {
		return err
	}
	defer shaders.Release(device)

	env := rtreflect.DefaultEnvironment()
	env.RayMaxLength = 25
	cfg := rtreflect.DefaultPipelineConfig()
	cfg.DefaultViewportWidth = settings.width
	cfg.DefaultViewportHeight = settings.height
	cfg.Shaders = shaders
	cfg.LightCluster.ClusterRange = 12

	pass, err := rtreflect.NewReflectionPass(rtreflect.Dependencies{
		Device:          device,
		Provider:        manager,
		Environment:     &rtreflect.StaticEnvironment{Env: &env, Noise: noise},
		NewLightCluster: func() rtreflect.LightCluster { return lightcluster.New() },
	})
	if err != nil {
		return err
	}
	if err := pass.Initialize(cfg, inputs, registry, inputs); err != nil {
		return err
	}
	defer pass.Release()

	// Record and submit.
	stream := native.NewStream(device, "Reflections")
	start = time.Now()
	outcome, err := pass.RenderReflections(camera, stream, output)
	if err != nil {
		return err
	}
	recordTime := time.Since(start)

	start = time.Now()
	if err := stream.Submit(); err != nil {
		return fmt.Errorf("submit: %w", err)
	}
	gpuTime := time.Since(start)

	var reflections []float32
	if outcome == rtreflect.OutcomeRendered {
		data, err := device.ReadTexture(output.ID)
		if err != nil {
			return fmt.Errorf("read output: %w", err)
		}
		reflections = bytesFloat32(data)
	} else {
		logger.Warn("reflections skipped", "outcome", outcome)
	}

	stats, _ := manager.Stats(pass.LastFrame().Mask)
	displayFrameStats(pass.LastFrame(), stats, device.Name(), []timing{
		{"rasterize", rasterTime},
		{"record", recordTime},
		{"submit", gpuTime},
	})

	img, err := rescale(composite(g, reflections), ctx.Float64("scale"))
	if err != nil {
		return err
	}
	if caption := ctx.String("caption"); caption != "" {
		dst, ok := img.(*image.NRGBA)
		if !ok {
			return errors.New("caption: unexpected image type")
		}
		if err := drawCaption(dst, caption); err != nil {
			return err
		}
	}
	if err := savePNG(ctx.String("out"), img); err != nil {
		return err
	}
	logger.Info("frame written", "path", ctx.String("out"))
	return nil
}

// createFrameInputs uploads the G-buffer and sky textures.
func createFrameInputs(device gpucore.Device, g *gbuffer) (*frameInputs, error) {
	in := &frameInputs{}
	var err error
	in.depth, err = uploadTexture(device, &gpucore.TextureDesc{
		Label: "DepthStencil", Width: g.width, Height: g.height,
		Format: gpucore.TextureFormatDepth32Float, Usage: gpucore.TextureUsageTextureBinding,
	}, g.depth)
	if err != nil {
		return nil, fmt.Errorf("upload depth: %w", err)
	}
	in.normals, err = uploadTexture(device, &gpucore.TextureDesc{
		Label: "NormalBuffer", Width: g.width, Height: g.height,
		Format: gpucore.TextureFormatRGBA16Float, Usage: gpucore.TextureUsageTextureBinding,
	}, g.normals)
	if err != nil {
		in.release(device)
		return nil, fmt.Errorf("upload normals: %w", err)
	}
	in.sky, err = uploadTexture(device, &gpucore.TextureDesc{
		Label: "SkyReflection", Width: skyWidth, Height: skyHeight,
		Format: gpucore.TextureFormatRGBA16Float, Usage: gpucore.TextureUsageTextureBinding,
	}, skyTexels(skyWidth, skyHeight))
	if err != nil {
		in.release(device)
		return nil, fmt.Errorf("upload sky: %w", err)
	}
	return in, nil
}

type timing struct {
	name string
	d    time.Duration
}

// frameStatsTable renders the statistics of one frame.
func frameStatsTable(frame rtreflect.FrameStats, as accel.Stats, adapter string, timings []timing) string {
	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetHeader([]string{"Stat", "Value"})
	table.Append([]string{"Adapter", adapter})
	table.Append([]string{"Outcome", frame.Outcome.String()})
	if frame.Outcome == rtreflect.OutcomeRendered {
		table.Append([]string{"Mask", frame.Mask.String()})
		table.Append([]string{"Triangles", printer.Sprintf("%d", as.Triangles)})
		table.Append([]string{"BVH nodes", printer.Sprintf("%d", as.Nodes)})
		table.Append([]string{"Rays", printer.Sprintf("%d x %d (%d)", frame.TraceWidth, frame.TraceHeight,
			uint64(frame.TraceWidth)*uint64(frame.TraceHeight))})
		table.Append([]string{"Denoise grid", frame.DenoiseGrid.String()})
		table.Append([]string{"Pixel spread", fmt.Sprintf("%.6f rad", frame.PixelSpreadAngle)})
		table.Append([]string{"Lights", fmt.Sprintf("%d punctual, %d area", frame.PunctualLights, frame.AreaLights)})
	}
	var total time.Duration
	for _, t := range timings {
		table.Append([]string{t.name, t.d.String()})
		total += t.d
	}
	table.SetFooter([]string{"TOTAL", total.String()})
	table.Render()
	return buf.String()
}

func displayFrameStats(frame rtreflect.FrameStats, as accel.Stats, adapter string, timings []timing) {
	fmt.Printf("frame statistics\n%s", frameStatsTable(frame, as, adapter, timings))
}
