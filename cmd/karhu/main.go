// Copyright (c) 2024 karhu3d
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package main

import (
	"errors"
	"os"
	"runtime"
	"strings"

	glm "github.com/go-gl/mathgl/mgl32"
	"github.com/gobuffalo/packr"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/veandco/go-sdl2/sdl"

	"github.com/karhu3d/karhu/asset"
	"github.com/karhu3d/karhu/core"
	"github.com/karhu3d/karhu/job"
	"github.com/karhu3d/karhu/model"
	"github.com/karhu3d/karhu/res"
)

func init() {
	runtime.LockOSThread()
}

// StaticResources carries the fallback shaders compiled into the binary,
// used when no asset directory is configured.
var StaticResources packr.Box

func init() {
	StaticResources = packr.NewBox("./shaders")
}

// boxSource serves assets out of a packr box.
type boxSource struct {
	box packr.Box
}

func (s boxSource) ReadAll(name string) ([]byte, error) {
	return s.box.MustBytes(name)
}

func (s boxSource) Names() ([]string, error) {
	return s.box.List(), nil
}

func assetSource() asset.Source {
	if dir := os.Getenv("KARHU_ASSET_DIR"); dir != "" {
		return asset.Dir(dir)
	}
	if archive := os.Getenv("KARHU_ASSET_PACK"); archive != "" {
		a, err := asset.OpenFile(archive)
		if err != nil {
			log.WithError(err).Fatal("asset pack unusable")
		}
		return a
	}
	return boxSource{box: StaticResources}
}

func newWindow(cfg core.Configuration) *sdl.Window {
	window, err := sdl.CreateWindow(cfg.App.Name,
		sdl.WINDOWPOS_UNDEFINED,
		sdl.WINDOWPOS_UNDEFINED,
		int32(cfg.Renderer.ScreenWidth),
		int32(cfg.Renderer.ScreenHeight),
		sdl.WINDOW_VULKAN|sdl.WINDOW_RESIZABLE)
	if err != nil {
		panic(err)
	}
	return window
}

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("dotenv load failed")
	}
	cfg := core.ConfigFromEnv(core.DefaultConfiguration())

	if err := sdl.Init(sdl.INIT_VIDEO | sdl.INIT_EVENTS); err != nil {
		panic(err)
	}
	defer sdl.Quit()

	if err := sdl.VulkanLoadLibrary(""); err != nil {
		panic(err)
	}
	defer sdl.VulkanUnloadLibrary()

	window := newWindow(cfg)
	defer window.Destroy()

	instance, err := core.NewVulkanInstance(cfg.App, sdl.VulkanGetVkGetInstanceProcAddr(), window.VulkanGetInstanceExtensions())
	if err != nil {
		panic(err)
	}
	defer instance.Destroy()

	if cfg.App.Validation {
		instance.LogInstanceLayerProperties()
	}

	surface, err := window.VulkanCreateSurface(instance.Inner())
	if err != nil {
		panic(err)
	}
	instance.SetSurface(surface)

	context, err := core.NewVulkanContext(instance, cfg.Renderer)
	if err != nil {
		panic(err)
	}
	defer context.Destroy()

	uniforms, err := context.NewUniformBuffers()
	if err != nil {
		panic(err)
	}
	defer uniforms.Release()

	jobs := job.NewQueue(cfg.Jobs.Workers)
	defer jobs.Shutdown()

	source := assetSource()
	manager := res.NewManager(jobs, source)
	compiler := res.NewExternalCompiler(shaderCacheDir())
	manager.RegisterLoader(".glsl", &res.ShaderLoader{Device: context, Compiler: compiler})
	manager.RegisterLoader(".spv", &res.ShaderLoader{Device: context})
	manager.RegisterLoader(".png", &res.TextureLoader{Device: context})
	manager.RegisterLoader(".jpg", &res.TextureLoader{Device: context})
	manager.RegisterLoader(".dae", &res.ModelLoader{Device: context})
	defer manager.Shutdown()

	warmStartupAssets(manager, source)

	time := core.NewTime(cfg.Time)
	defer time.Stop()
	exitC := make(chan struct{}, 2)

EventLoop:
	for {
		select {
		case <-exitC:
			log.Info("event loop exited")
			break EventLoop
		case <-time.EventTicker().C:
			var event sdl.Event
			for event = sdl.PollEvent(); event != nil; event = sdl.PollEvent() {
				switch et := event.(type) {
				case *sdl.KeyboardEvent:
					if et.Keysym.Sym == sdl.K_ESCAPE {
						exitC <- struct{}{}
						continue EventLoop
					}
				case *sdl.WindowEvent:
					if et.Event == sdl.WINDOWEVENT_SIZE_CHANGED {
						if err := context.RecreateSwapchain(); err != nil {
							log.WithError(err).Error("swapchain recreate failed")
							exitC <- struct{}{}
							continue EventLoop
						}
					}
				case *sdl.QuitEvent:
					exitC <- struct{}{}
					continue EventLoop
				}
			}
		case <-time.FpsTicker().C:
			if err := renderFrame(context, uniforms); err != nil {
				log.WithError(err).Error("frame failed")
				exitC <- struct{}{}
				continue EventLoop
			}
		}
	}
}

// renderFrame runs one lap of the frame protocol. An out-of-date swapchain
// is rebuilt and the frame skipped; a lost device ends the run.
func renderFrame(context *core.VulkanContext, uniforms *core.UniformBuffers) error {
	frame, err := context.BeginFrame()
	if errors.Is(err, core.ErrSwapchainOutOfDate) {
		return context.RecreateSwapchain()
	}
	if err != nil {
		return err
	}

	// A swapchain rebuild can change the image count; skip images the
	// buffers were not sized for.
	if int(frame.ImageIndex) < uniforms.Count() {
		uniforms.Update(int(frame.ImageIndex), frameUniform(context))
	}

	idx, err := frame.Commands.Acquire()
	if err != nil {
		return err
	}
	if _, err := frame.Commands.Begin(idx); err != nil {
		return err
	}
	if err := frame.Commands.End(idx); err != nil {
		return err
	}

	err = context.SubmitFrame(frame, []int{idx})
	if errors.Is(err, core.ErrSwapchainOutOfDate) {
		return context.RecreateSwapchain()
	}
	return err
}

var spin float32

// frameUniform builds the per-frame transforms: a slowly spinning model
// under a fixed camera.
func frameUniform(context *core.VulkanContext) model.Uniform {
	spin += 0.005
	width, height := context.SurfaceExtent()
	ubo := model.Uniform{
		Model:      glm.HomogRotate3DZ(spin),
		View:       glm.LookAt(2, 2, 2, 0, 0, 0, 0, 0, 1),
		Projection: glm.Perspective(45, float32(width)/float32(height), 0.1, 10),
	}
	ubo.Projection[5] *= -1 // Flip from OpenGl to Vulkan projection
	return ubo
}

// warmStartupAssets kicks off loads for everything the source can serve.
// Loads run on the job queue; nothing blocks the event loop.
func warmStartupAssets(manager *res.Manager, source asset.Source) {
	names, err := source.Names()
	if err != nil {
		log.WithError(err).Warn("asset listing failed")
		return
	}
	for _, name := range names {
		if !strings.Contains(name, ".") {
			continue
		}
		h, err := manager.Acquire(name)
		if err != nil {
			log.WithField("name", name).Debug("no loader, skipping")
			continue
		}
		go func(name string) {
			if _, err := h.Wait(); err != nil {
				log.WithError(err).WithField("name", name).Warn("startup asset failed")
			}
		}(name)
	}
}

func shaderCacheDir() string {
	if dir := os.Getenv("KARHU_SHADER_CACHE"); dir != "" {
		return dir
	}
	cache, err := os.UserCacheDir()
	if err != nil {
		return ""
	}
	return cache + "/karhu/shaders"
}
