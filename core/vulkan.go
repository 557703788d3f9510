// Copyright (c) 2024 karhu3d
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core

import (
	"errors"
	"fmt"
	"math"
	"time"
	"unsafe"

	log "github.com/sirupsen/logrus"
	vk "github.com/vulkan-go/vulkan"
)

// NewVulkanInstance creates a Vulkan instance. The window pointer is the
// proc address loader of the windowing library; pass nil to use the system
// loader, which is enough for headless device enumeration.
func NewVulkanInstance(cfg AppConfiguration, window unsafe.Pointer, extensions []string) (Instance, error) {
	// The C side expects null terminated names.
	extensions = safeStrings(extensions)

	layers := []string{}
	if cfg.Validation {
		layers = append(layers, "VK_LAYER_KHRONOS_validation\x00")
		extensions = append(extensions, "VK_EXT_debug_report\x00")
	}

	if window == nil {
		if err := vk.SetDefaultGetInstanceProcAddr(); err != nil {
			return nil, errors.New("vk.InstanceProcAddr(): " + err.Error())
		}
	} else {
		vk.SetGetInstanceProcAddr(window)
	}

	if err := vk.Init(); err != nil {
		return nil, errors.New("vk.Init(): " + err.Error())
	}

	appInfo := &vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		ApiVersion:         vk.MakeVersion(1, 0, 0),
		ApplicationVersion: vk.MakeVersion(1, 0, 0),
		PApplicationName:   safeString(cfg.Name),
		PEngineName:        "Karhu3D\x00",
	}

	instanceInfo := vk.InstanceCreateInfo{
		SType:                   vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo:        appInfo,
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: extensions,
		EnabledLayerCount:       uint32(len(layers)),
		PpEnabledLayerNames:     layers,
	}

	var instance vk.Instance
	if err := vk.Error(vk.CreateInstance(&instanceInfo, nil, &instance)); err != nil {
		return nil, errors.New("vk.CreateInstance(): " + err.Error())
	}
	vk.InitInstance(instance)

	physicalDevices, err := enumerateDevices(instance)
	if err != nil {
		return nil, errors.New("core.enumerateDevices(): " + err.Error())
	}

	return &VulkanInstance{
		extensions:       extensions,
		instance:         instance,
		availableDevices: physicalDevices,
		log:              log.WithField("component", "instance"),
	}, nil
}

// VulkanInstance describes a Vulkan API Instance.
type VulkanInstance struct {
	extensions []string

	availableDevices []vk.PhysicalDevice
	surface          vk.Surface
	instance         vk.Instance

	log *log.Entry
}

func enumerateDevices(instance vk.Instance) ([]vk.PhysicalDevice, error) {
	var deviceCount uint32
	if err := vk.Error(vk.EnumeratePhysicalDevices(instance, &deviceCount, nil)); err != nil {
		return nil, fmt.Errorf("vulkan physical device enumeration failed: %s", err)
	}
	availableDevices := make([]vk.PhysicalDevice, deviceCount)
	if err := vk.Error(vk.EnumeratePhysicalDevices(instance, &deviceCount, availableDevices)); err != nil {
		return nil, fmt.Errorf("vulkan physical device enumeration failed: %s", err)
	}
	return availableDevices, nil
}

// PhysicalDevicesInfo implements interface.
func (v VulkanInstance) PhysicalDevicesInfo() []PhysicalDeviceInfo {
	pdi := make([]PhysicalDeviceInfo, len(v.availableDevices))
	for i := 0; i < len(v.availableDevices); i++ {
		// Get extension info
		var numDeviceExtensions uint32
		if err := vk.Error(vk.EnumerateDeviceExtensionProperties(v.availableDevices[i], "", &numDeviceExtensions, nil)); err != nil {
			pdi[i].Invalid = true
		}
		deviceExt := make([]vk.ExtensionProperties, numDeviceExtensions)
		if err := vk.Error(vk.EnumerateDeviceExtensionProperties(v.availableDevices[i], "", &numDeviceExtensions, deviceExt)); err != nil {
			pdi[i].Invalid = true
		}
		for _, ext := range deviceExt {
			ext.Deref()
			pdi[i].Extensions = append(pdi[i].Extensions, vk.ToString(ext.ExtensionName[:]))
		}

		// Get layers info
		var numDeviceLayers uint32
		if err := vk.Error(vk.EnumerateDeviceLayerProperties(v.availableDevices[i], &numDeviceLayers, nil)); err != nil {
			pdi[i].Invalid = true
		}
		deviceLayers := make([]vk.LayerProperties, numDeviceLayers)
		if err := vk.Error(vk.EnumerateDeviceLayerProperties(v.availableDevices[i], &numDeviceLayers, deviceLayers)); err != nil {
			pdi[i].Invalid = true
		}
		for _, layer := range deviceLayers {
			layer.Deref()
			pdi[i].Layers = append(pdi[i].Layers, vk.ToString(layer.LayerName[:]))
		}

		// Get memory info
		var memoryProperties vk.PhysicalDeviceMemoryProperties
		vk.GetPhysicalDeviceMemoryProperties(v.availableDevices[i], &memoryProperties)
		memoryProperties.Deref()
		for iMem := (uint32)(0); iMem < memoryProperties.MemoryHeapCount; iMem++ {
			memoryProperties.MemoryHeaps[iMem].Deref()
			pdi[i].Memory = pdi[i].Memory + uint(memoryProperties.MemoryHeaps[iMem].Size)
		}

		// Get general device info
		var physicalDeviceProperties vk.PhysicalDeviceProperties
		vk.GetPhysicalDeviceProperties(v.availableDevices[i], &physicalDeviceProperties)
		physicalDeviceProperties.Deref()
		pdi[i].ID = (int)(physicalDeviceProperties.DeviceID)
		pdi[i].VendorID = (int)(physicalDeviceProperties.VendorID)
		pdi[i].Name = vk.ToString(physicalDeviceProperties.DeviceName[:])
		pdi[i].DriverVersion = (int)(physicalDeviceProperties.DriverVersion)
		pdi[i].Discrete = physicalDeviceProperties.DeviceType == vk.PhysicalDeviceTypeDiscreteGpu
	}
	return pdi
}

// LogInstanceLayerProperties implements interface.
func (v VulkanInstance) LogInstanceLayerProperties() {
	var layerCount uint32
	if err := vk.Error(vk.EnumerateInstanceLayerProperties(&layerCount, nil)); err != nil {
		v.log.WithError(err).Warn("instance layer enumeration failed")
		return
	}
	layers := make([]vk.LayerProperties, layerCount)
	if err := vk.Error(vk.EnumerateInstanceLayerProperties(&layerCount, layers)); err != nil {
		v.log.WithError(err).Warn("instance layer enumeration failed")
		return
	}
	for _, layer := range layers {
		layer.Deref()
		v.log.WithFields(log.Fields{
			"layer":       vk.ToString(layer.LayerName[:]),
			"description": vk.ToString(layer.Description[:]),
		}).Info("instance layer")
	}
}

// SetSurface implements interface.
func (v *VulkanInstance) SetSurface(pSurface unsafe.Pointer) {
	v.surface = vk.SurfaceFromPointer(uintptr(pSurface))
}

// Surface implements interface.
func (v VulkanInstance) Surface() vk.Surface {
	if v.surface == nil {
		return vk.NullSurface
	}
	return v.surface
}

// Inner implements interface.
func (v *VulkanInstance) Inner() interface{} {
	return v.instance
}

// Extensions implements interface.
func (v VulkanInstance) Extensions() []string {
	return v.extensions
}

// AvailableDevices implements interface.
func (v VulkanInstance) AvailableDevices() []vk.PhysicalDevice {
	return v.availableDevices
}

// Destroy implements interface.
func (v VulkanInstance) Destroy() {
	v.availableDevices = nil
	vk.DestroyInstance(v.instance, nil)
}

// selectPhysicalDevice picks the rendering device. Discrete GPUs win over
// everything else; among equals the lowest enumeration index wins, so the
// choice is stable across runs on the same machine.
func selectPhysicalDevice(devices []vk.PhysicalDevice) (vk.PhysicalDevice, error) {
	if len(devices) == 0 {
		return nil, errors.New("no vulkan capable devices found")
	}
	for _, device := range devices {
		var props vk.PhysicalDeviceProperties
		vk.GetPhysicalDeviceProperties(device, &props)
		props.Deref()
		if props.DeviceType == vk.PhysicalDeviceTypeDiscreteGpu {
			return device, nil
		}
	}
	return devices[0], nil
}

// frameSlot bundles everything one in-flight frame owns: the fence that
// gates reuse, the semaphore pair ordering acquire, render and present, and
// the slot's command buffers.
type frameSlot struct {
	fence          vk.Fence
	imageAcquired  vk.Semaphore
	renderComplete vk.Semaphore
	commands       *CommandBufferManager
}

// vkFence adapts a vk.Fence to the Fence interface the frame ring waits on.
type vkFence struct {
	device vk.Device
	fence  vk.Fence
}

func (f vkFence) Wait(timeout time.Duration) error {
	result := vk.WaitForFences(f.device, 1, []vk.Fence{f.fence}, vk.True, uint64(timeout.Nanoseconds()))
	switch result {
	case vk.Success:
		return nil
	case vk.Timeout:
		return ErrFenceTimeout
	default:
		return fmt.Errorf("vk.WaitForFences() failed with %d", result)
	}
}

func (f vkFence) Reset() error {
	if result := vk.ResetFences(f.device, 1, []vk.Fence{f.fence}); result != vk.Success {
		return fmt.Errorf("vk.ResetFences() failed with %d", result)
	}
	return nil
}

// Frame is the per-frame token BeginFrame hands out. It names the frame
// slot whose resources the caller may record into and the swapchain image
// the frame will present to.
type Frame struct {
	Slot       int
	ImageIndex uint32
	Number     uint64
	Commands   *CommandBufferManager
}

// VulkanContext owns the logical device, the swapchain and the frame
// pacing machinery. One context per surface. BeginFrame, SubmitFrame and
// RecreateSwapchain must be called from the render thread; resource
// creation methods are safe from any goroutine once construction returns.
type VulkanContext struct {
	configuration RendererConfiguration

	surface              vk.Surface
	currentSurfaceHeight uint32
	currentSurfaceWidth  uint32

	swapchain           vk.Swapchain
	swapchainImages     []vk.Image
	swapchainImageViews []vk.ImageView
	generation          uint64

	logicalDevice  vk.Device
	physicalDevice vk.PhysicalDevice
	graphicsQueue  vk.Queue
	presentQueue   vk.Queue

	imageFormat     vk.Format
	imageColorspace vk.ColorSpace

	commandPool vk.CommandPool

	ring  *FrameRing
	slots []frameSlot

	graphicsQueueIndex uint32
	presentQueueIndex  uint32

	log *log.Entry
}

// NewVulkanContext brings up the logical device, swapchain and frame slots
// over an instance whose surface has been set. Every failure is wrapped in
// a ContextInitError naming the stage that could not complete; the error is
// fatal and the caller must not retry.
func NewVulkanContext(instance Instance, cfg RendererConfiguration) (*VulkanContext, error) {
	physicalDevice, err := selectPhysicalDevice(instance.AvailableDevices())
	if err != nil {
		return nil, initErr("physical device selection", err)
	}

	v := &VulkanContext{
		configuration:        cfg,
		currentSurfaceHeight: cfg.ScreenHeight,
		currentSurfaceWidth:  cfg.ScreenWidth,
		surface:              instance.Surface(),
		physicalDevice:       physicalDevice,
		log:                  log.WithField("component", "context"),
	}

	if err := v.findQueueFamilies(); err != nil {
		return nil, initErr("queue family selection", err)
	}
	if err := v.createLogicalDevice(); err != nil {
		return nil, initErr("logical device", err)
	}
	if err := v.selectSurfaceFormat(); err != nil {
		return nil, initErr("surface format", err)
	}
	if err := v.createSwapchain(nil); err != nil {
		return nil, initErr("swapchain", err)
	}
	if err := v.createImageViews(); err != nil {
		return nil, initErr("swapchain image views", err)
	}
	if err := v.createCommandPool(); err != nil {
		return nil, initErr("command pool", err)
	}
	if err := v.createFrameSlots(); err != nil {
		return nil, initErr("frame slots", err)
	}

	v.log.WithFields(log.Fields{
		"slots":  len(v.slots),
		"format": v.imageFormat,
	}).Info("context ready")
	return v, nil
}

func (v *VulkanContext) findQueueFamilies() error {
	var queueFamilyCount uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(v.physicalDevice, &queueFamilyCount, nil)
	if queueFamilyCount == 0 {
		return errors.New("no queue families on device")
	}
	queueFamilies := make([]vk.QueueFamilyProperties, queueFamilyCount)
	vk.GetPhysicalDeviceQueueFamilyProperties(v.physicalDevice, &queueFamilyCount, queueFamilies)

	var graphicsFound, presentFound bool
	for i := uint32(0); i < queueFamilyCount; i++ {
		queueFamilies[i].Deref()

		var supportsPresent vk.Bool32
		vk.GetPhysicalDeviceSurfaceSupport(v.physicalDevice, i, v.surface, &supportsPresent)

		graphics := queueFamilies[i].QueueFlags&vk.QueueFlags(vk.QueueGraphicsBit) != 0

		// A family serving both keeps submission and present on one
		// queue, which is the simplest correct setup.
		if graphics && supportsPresent.B() {
			v.graphicsQueueIndex = i
			v.presentQueueIndex = i
			return nil
		}
		if graphics && !graphicsFound {
			v.graphicsQueueIndex = i
			graphicsFound = true
		}
		if supportsPresent.B() && !presentFound {
			v.presentQueueIndex = i
			presentFound = true
		}
	}

	if !graphicsFound {
		return errors.New("no graphics capable queue family")
	}
	if !presentFound {
		return errors.New("no present capable queue family")
	}
	return nil
}

func (v *VulkanContext) createLogicalDevice() error {
	queueInfos := []vk.DeviceQueueCreateInfo{{
		SType:            vk.StructureTypeDeviceQueueCreateInfo,
		QueueFamilyIndex: v.graphicsQueueIndex,
		QueueCount:       1,
		PQueuePriorities: []float32{1.0},
	}}
	if v.presentQueueIndex != v.graphicsQueueIndex {
		queueInfos = append(queueInfos, vk.DeviceQueueCreateInfo{
			SType:            vk.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: v.presentQueueIndex,
			QueueCount:       1,
			PQueuePriorities: []float32{1.0},
		})
	}

	extensions := safeStrings(v.configuration.DeviceExtensions)
	dci := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueInfos)),
		PQueueCreateInfos:       queueInfos,
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: extensions,
	}

	var device vk.Device
	if err := vk.Error(vk.CreateDevice(v.physicalDevice, &dci, nil, &device)); err != nil {
		return errors.New("vk.CreateDevice(): " + err.Error())
	}
	v.logicalDevice = device

	var graphicsQueue vk.Queue
	vk.GetDeviceQueue(device, v.graphicsQueueIndex, 0, &graphicsQueue)
	v.graphicsQueue = graphicsQueue

	var presentQueue vk.Queue
	vk.GetDeviceQueue(device, v.presentQueueIndex, 0, &presentQueue)
	v.presentQueue = presentQueue
	return nil
}

func (v *VulkanContext) selectSurfaceFormat() error {
	var surfaceFormatCount uint32
	if err := vk.Error(vk.GetPhysicalDeviceSurfaceFormats(v.physicalDevice, v.surface, &surfaceFormatCount, nil)); err != nil {
		return errors.New("vk.GetPhysicalDeviceSurfaceFormats(): " + err.Error())
	}
	if surfaceFormatCount == 0 {
		return errors.New("surface reports no formats")
	}

	surfaceFormats := make([]vk.SurfaceFormat, surfaceFormatCount)
	if err := vk.Error(vk.GetPhysicalDeviceSurfaceFormats(v.physicalDevice, v.surface, &surfaceFormatCount, surfaceFormats)); err != nil {
		return errors.New("vk.GetPhysicalDeviceSurfaceFormats(): " + err.Error())
	}

	surfaceFormats[0].Deref()
	v.imageFormat = surfaceFormats[0].Format
	v.imageColorspace = surfaceFormats[0].ColorSpace
	return nil
}

func (v *VulkanContext) createSwapchain(oldSwapchain vk.Swapchain) error {
	var surfaceCapabilities vk.SurfaceCapabilities
	if err := vk.Error(vk.GetPhysicalDeviceSurfaceCapabilities(v.physicalDevice, v.surface, &surfaceCapabilities)); err != nil {
		return errors.New("vk.GetPhysicalDeviceSurfaceCapabilities(): " + err.Error())
	}
	surfaceCapabilities.Deref()
	surfaceCapabilities.CurrentExtent.Deref()

	// The surface dictates the extent when it reports a concrete one.
	if surfaceCapabilities.CurrentExtent.Width != math.MaxUint32 {
		v.currentSurfaceWidth = surfaceCapabilities.CurrentExtent.Width
		v.currentSurfaceHeight = surfaceCapabilities.CurrentExtent.Height
	}

	compositeAlpha := vk.CompositeAlphaOpaqueBit
	compositeAlphaFlags := []vk.CompositeAlphaFlagBits{
		vk.CompositeAlphaOpaqueBit,
		vk.CompositeAlphaPreMultipliedBit,
		vk.CompositeAlphaPostMultipliedBit,
		vk.CompositeAlphaInheritBit,
	}
	for i := 0; i < len(compositeAlphaFlags); i++ {
		alphaFlags := vk.CompositeAlphaFlags(compositeAlphaFlags[i])
		if surfaceCapabilities.SupportedCompositeAlpha&alphaFlags != 0 {
			compositeAlpha = compositeAlphaFlags[i]
			break
		}
	}

	var swapchain vk.Swapchain
	scci := vk.SwapchainCreateInfo{
		SType:           vk.StructureTypeSwapchainCreateInfo,
		Surface:         v.surface,
		MinImageCount:   v.configuration.SwapchainSize,
		ImageFormat:     v.imageFormat,
		ImageColorSpace: v.imageColorspace,
		ImageExtent: vk.Extent2D{
			Width:  v.currentSurfaceWidth,
			Height: v.currentSurfaceHeight,
		},
		ImageUsage:       vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit),
		PreTransform:     vk.SurfaceTransformIdentityBit,
		CompositeAlpha:   compositeAlpha,
		PresentMode:      vk.PresentModeFifo,
		Clipped:          vk.True,
		ImageArrayLayers: 1,
		ImageSharingMode: vk.SharingModeExclusive,
		OldSwapchain:     oldSwapchain,
	}

	if err := vk.Error(vk.CreateSwapchain(v.logicalDevice, &scci, nil, &swapchain)); err != nil {
		return errors.New("vk.CreateSwapchain(): " + err.Error())
	}
	if oldSwapchain != nil {
		vk.DestroySwapchain(v.logicalDevice, oldSwapchain, nil)
	}
	v.swapchain = swapchain

	var numImages uint32
	if err := vk.Error(vk.GetSwapchainImages(v.logicalDevice, v.swapchain, &numImages, nil)); err != nil {
		return errors.New("vk.GetSwapchainImages(num): " + err.Error())
	}
	v.swapchainImages = make([]vk.Image, numImages)
	if err := vk.Error(vk.GetSwapchainImages(v.logicalDevice, v.swapchain, &numImages, v.swapchainImages)); err != nil {
		return errors.New("vk.GetSwapchainImages(images): " + err.Error())
	}
	return nil
}

func (v *VulkanContext) createImageViews() error {
	v.swapchainImageViews = make([]vk.ImageView, 0, len(v.swapchainImages))
	for idx := 0; idx < len(v.swapchainImages); idx++ {
		var imageView vk.ImageView
		ivci := vk.ImageViewCreateInfo{
			SType:    vk.StructureTypeImageViewCreateInfo,
			Image:    v.swapchainImages[idx],
			ViewType: vk.ImageViewType2d,
			Format:   v.imageFormat,
			Components: vk.ComponentMapping{
				R: vk.ComponentSwizzleIdentity,
				G: vk.ComponentSwizzleIdentity,
				B: vk.ComponentSwizzleIdentity,
				A: vk.ComponentSwizzleIdentity,
			},
			SubresourceRange: vk.ImageSubresourceRange{
				AspectMask:     vk.ImageAspectFlags(vk.ImageAspectColorBit),
				BaseMipLevel:   0,
				LevelCount:     1,
				BaseArrayLayer: 0,
				LayerCount:     1,
			},
		}

		if err := vk.Error(vk.CreateImageView(v.logicalDevice, &ivci, nil, &imageView)); err != nil {
			return fmt.Errorf("vk.CreateImageView()[%d]: %s", idx, err.Error())
		}
		v.swapchainImageViews = append(v.swapchainImageViews, imageView)
	}
	return nil
}

func (v *VulkanContext) createCommandPool() error {
	cpci := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: v.graphicsQueueIndex,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
	}

	var commandPool vk.CommandPool
	if err := vk.Error(vk.CreateCommandPool(v.logicalDevice, &cpci, nil, &commandPool)); err != nil {
		return errors.New("vk.CreateCommandPool(): " + err.Error())
	}
	v.commandPool = commandPool
	return nil
}

func (v *VulkanContext) createFrameSlots() error {
	count := len(v.swapchainImages)
	if count < 2 {
		count = 2
	}

	sci := vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
	}
	// Fences start signaled so the ring's first lap does not block.
	fci := vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
		Flags: vk.FenceCreateFlags(vk.FenceCreateSignaledBit),
	}

	slots := make([]frameSlot, count)
	fences := make([]Fence, count)
	for i := range slots {
		if err := vk.Error(vk.CreateFence(v.logicalDevice, &fci, nil, &slots[i].fence)); err != nil {
			return errors.New("vk.CreateFence(): " + err.Error())
		}
		if err := vk.Error(vk.CreateSemaphore(v.logicalDevice, &sci, nil, &slots[i].imageAcquired)); err != nil {
			return errors.New("vk.CreateSemaphore(): " + err.Error())
		}
		if err := vk.Error(vk.CreateSemaphore(v.logicalDevice, &sci, nil, &slots[i].renderComplete)); err != nil {
			return errors.New("vk.CreateSemaphore(): " + err.Error())
		}

		commands, err := NewCommandBufferManager(v.logicalDevice, v.commandPool, v.configuration.CommandBuffersPerFrame)
		if err != nil {
			return err
		}
		slots[i].commands = commands
		fences[i] = vkFence{device: v.logicalDevice, fence: slots[i].fence}
	}

	v.slots = slots
	v.ring = NewFrameRing(fences, v.configuration.FenceTimeout)
	return nil
}

// BeginFrame advances the frame ring, recycles the slot's command buffers
// once the fence has retired them and acquires the next swapchain image.
// ErrSwapchainOutOfDate means the caller must RecreateSwapchain and try
// again; a wrapped ErrDeviceLost is fatal.
func (v *VulkanContext) BeginFrame() (Frame, error) {
	slotIdx, err := v.ring.Advance()
	if err != nil {
		return Frame{}, err
	}
	slot := &v.slots[slotIdx]

	if err := slot.commands.Recycle(); err != nil {
		return Frame{}, fmt.Errorf("frame %d command recycle: %w", v.ring.Frame(), err)
	}

	var imageIndex uint32
	result := vk.AcquireNextImage(v.logicalDevice, v.swapchain, math.MaxUint64, slot.imageAcquired, nil, &imageIndex)
	switch result {
	case vk.Success, vk.Suboptimal:
	case vk.ErrorOutOfDate:
		return Frame{}, ErrSwapchainOutOfDate
	case vk.ErrorDeviceLost:
		return Frame{}, ErrDeviceLost
	default:
		return Frame{}, fmt.Errorf("vk.AcquireNextImage() failed with %d", result)
	}

	return Frame{
		Slot:       slotIdx,
		ImageIndex: imageIndex,
		Number:     v.ring.Frame(),
		Commands:   slot.commands,
	}, nil
}

// SubmitFrame submits the frame's recorded command buffers and queues the
// present. The slot fence is reset here, right before the submission that
// will signal it again; a frame abandoned after BeginFrame leaves the
// fence signaled and the slot reusable. The fence signals when the GPU
// retires the submission, which is what lets a later BeginFrame reuse the
// slot.
func (v *VulkanContext) SubmitFrame(frame Frame, bufferIndices []int) error {
	slot := &v.slots[frame.Slot]

	buffers := make([]vk.CommandBuffer, len(bufferIndices))
	for i, idx := range bufferIndices {
		buffers[i] = slot.commands.Buffer(idx)
	}

	submit := []vk.SubmitInfo{{
		SType:              vk.StructureTypeSubmitInfo,
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    []vk.Semaphore{slot.imageAcquired},
		PWaitDstStageMask: []vk.PipelineStageFlags{
			vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		},
		CommandBufferCount:   uint32(len(buffers)),
		PCommandBuffers:      buffers,
		SignalSemaphoreCount: 1,
		PSignalSemaphores:    []vk.Semaphore{slot.renderComplete},
	}}

	if result := vk.ResetFences(v.logicalDevice, 1, []vk.Fence{slot.fence}); result != vk.Success {
		return fmt.Errorf("vk.ResetFences() failed with %d", result)
	}
	if err := vk.Error(vk.QueueSubmit(v.graphicsQueue, 1, submit, slot.fence)); err != nil {
		return errors.New("vk.QueueSubmit(): " + err.Error())
	}
	for _, idx := range bufferIndices {
		slot.commands.MarkSubmitted(idx)
	}

	presentInfo := vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    []vk.Semaphore{slot.renderComplete},
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{v.swapchain},
		PImageIndices:      []uint32{frame.ImageIndex},
	}

	result := vk.QueuePresent(v.presentQueue, &presentInfo)
	switch result {
	case vk.Success, vk.Suboptimal:
		return nil
	case vk.ErrorOutOfDate:
		return ErrSwapchainOutOfDate
	case vk.ErrorDeviceLost:
		return ErrDeviceLost
	default:
		return fmt.Errorf("vk.QueuePresent() failed with %d", result)
	}
}

// RecreateSwapchain rebuilds the swapchain and its image views after the
// surface changed. It waits for the device to go idle first, so in-flight
// frames retire and no slot still references the old images. Calling it
// when the swapchain is already current is harmless.
func (v *VulkanContext) RecreateSwapchain() error {
	vk.DeviceWaitIdle(v.logicalDevice)

	for _, iv := range v.swapchainImageViews {
		vk.DestroyImageView(v.logicalDevice, iv, nil)
	}
	v.swapchainImageViews = nil

	if err := v.createSwapchain(v.swapchain); err != nil {
		return err
	}
	if err := v.createImageViews(); err != nil {
		return err
	}

	v.generation++
	v.log.WithFields(log.Fields{
		"generation": v.generation,
		"width":      v.currentSurfaceWidth,
		"height":     v.currentSurfaceHeight,
	}).Info("swapchain recreated")
	return nil
}

// Generation counts swapchain rebuilds. Anything caching swapchain-derived
// objects (framebuffers, pipelines keyed on the surface format) compares
// generations to know when to rebuild.
func (v *VulkanContext) Generation() uint64 {
	return v.generation
}

// Device returns the logical device handle.
func (v *VulkanContext) Device() vk.Device {
	return v.logicalDevice
}

// GraphicsQueue returns the submission queue.
func (v *VulkanContext) GraphicsQueue() vk.Queue {
	return v.graphicsQueue
}

// SurfaceExtent returns the current swapchain extent.
func (v *VulkanContext) SurfaceExtent() (uint32, uint32) {
	return v.currentSurfaceWidth, v.currentSurfaceHeight
}

// SwapchainImageCount returns how many images the swapchain actually has,
// which can exceed the configured minimum.
func (v *VulkanContext) SwapchainImageCount() int {
	return len(v.swapchainImages)
}

// SwapchainImageViews returns the current generation's image views.
func (v *VulkanContext) SwapchainImageViews() []vk.ImageView {
	return v.swapchainImageViews
}

// ImageFormat returns the swapchain surface format.
func (v *VulkanContext) ImageFormat() vk.Format {
	return v.imageFormat
}

// Destroy tears the context down. It waits for the device to idle, so
// every frame slot's work has retired before anything is freed.
func (v *VulkanContext) Destroy() {
	vk.DeviceWaitIdle(v.logicalDevice)

	for _, slot := range v.slots {
		vk.DestroyFence(v.logicalDevice, slot.fence, nil)
		vk.DestroySemaphore(v.logicalDevice, slot.imageAcquired, nil)
		vk.DestroySemaphore(v.logicalDevice, slot.renderComplete, nil)
	}
	v.slots = nil

	vk.DestroyCommandPool(v.logicalDevice, v.commandPool, nil)

	for _, iv := range v.swapchainImageViews {
		vk.DestroyImageView(v.logicalDevice, iv, nil)
	}
	v.swapchainImageViews = nil

	vk.DestroySwapchain(v.logicalDevice, v.swapchain, nil)
	vk.DestroyDevice(v.logicalDevice, nil)
}
