// Copyright (c) 2024 karhu3d
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core

import (
	"strconv"
	"time"

	"github.com/gobuffalo/envy"
)

// Configuration defines a global engine configuration setting. It is built
// once in main and passed into construction; nothing in the engine reads
// process-wide mutable state.
type Configuration struct {
	App      AppConfiguration
	Time     TimeConfiguration
	Renderer RendererConfiguration
	Jobs     JobConfiguration
}

// AppConfiguration identifies the application to the graphics API.
type AppConfiguration struct {
	Name    string
	Version uint32

	// Validation loads the API validation layers. Development only.
	Validation bool
}

// TimeConfiguration is used to configure time services.
type TimeConfiguration struct {
	// FramesPerSecond caps frames per second that is put out.
	// To unlimit, set to 0.
	FramesPerSecond int

	// EventPollDelay is the OS event pump interval in milliseconds.
	EventPollDelay int
}

// RendererConfiguration is used to configure the renderer.
type RendererConfiguration struct {
	SwapchainSize    uint32
	DeviceExtensions []string

	ScreenWidth  uint32
	ScreenHeight uint32

	// FenceTimeout bounds every frame fence wait. A lapsed wait is
	// treated as a lost device, never as a reason to keep blocking.
	FenceTimeout time.Duration

	// CommandBuffersPerFrame sizes each frame slot's command buffer
	// pool. Must cover worst-case concurrent recording.
	CommandBuffersPerFrame int
}

// JobConfiguration configures the worker pool.
type JobConfiguration struct {
	// Workers fixes the worker count. Zero selects the default policy
	// of hardware concurrency minus one.
	Workers int
}

// DefaultConfiguration returns the settings the demos start from.
func DefaultConfiguration() Configuration {
	return Configuration{
		App: AppConfiguration{
			Name:    "Karhu3D",
			Version: 1,
		},
		Time: TimeConfiguration{
			FramesPerSecond: 60,
			EventPollDelay:  50,
		},
		Renderer: RendererConfiguration{
			SwapchainSize:          3,
			DeviceExtensions:       []string{"VK_KHR_swapchain"},
			ScreenWidth:            800,
			ScreenHeight:           600,
			FenceTimeout:           5 * time.Second,
			CommandBuffersPerFrame: 16,
		},
	}
}

// ConfigFromEnv overlays KARHU_* environment variables onto cfg. Unset
// variables leave the corresponding field untouched.
func ConfigFromEnv(cfg Configuration) Configuration {
	cfg.App.Name = envy.Get("KARHU_APP_NAME", cfg.App.Name)
	cfg.App.Validation = envBool("KARHU_VALIDATION", cfg.App.Validation)
	cfg.Time.FramesPerSecond = envInt("KARHU_FPS", cfg.Time.FramesPerSecond)
	cfg.Renderer.ScreenWidth = uint32(envInt("KARHU_WIDTH", int(cfg.Renderer.ScreenWidth)))
	cfg.Renderer.ScreenHeight = uint32(envInt("KARHU_HEIGHT", int(cfg.Renderer.ScreenHeight)))
	cfg.Renderer.SwapchainSize = uint32(envInt("KARHU_SWAPCHAIN_SIZE", int(cfg.Renderer.SwapchainSize)))
	cfg.Jobs.Workers = envInt("KARHU_WORKERS", cfg.Jobs.Workers)
	return cfg
}

func envInt(key string, fallback int) int {
	raw := envy.Get(key, "")
	if raw == "" {
		return fallback
	}
	num, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return num
}

func envBool(key string, fallback bool) bool {
	raw := envy.Get(key, "")
	if raw == "" {
		return fallback
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return b
}
