// Copyright (c) 2024 karhu3d
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core

import (
	"errors"
	"fmt"
	"image"
	"unsafe"

	vk "github.com/vulkan-go/vulkan"

	"github.com/karhu3d/karhu/gfx"
	"github.com/karhu3d/karhu/model"
)

// ShaderModule is a GPU-resident compiled shader.
type ShaderModule struct {
	device vk.Device
	module vk.ShaderModule
	stage  ShaderType
}

// Module returns the vk handle for pipeline construction.
func (s *ShaderModule) Module() vk.ShaderModule {
	return s.module
}

// Stage returns the pipeline stage the module targets.
func (s *ShaderModule) Stage() ShaderType {
	return s.stage
}

// Release implements gfx.Releasable.
func (s *ShaderModule) Release() {
	vk.DestroyShaderModule(s.device, s.module, nil)
}

// NewShaderModule uploads SPIR-V bytecode to the device. The stage is
// inferred from the name's dot-separated tokens.
func (v *VulkanContext) NewShaderModule(name string, spirv []byte) (gfx.Releasable, error) {
	if len(spirv) == 0 || len(spirv)%4 != 0 {
		return nil, fmt.Errorf("shader %q: byte count %d is not valid SPIR-V", name, len(spirv))
	}

	smci := vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint(len(spirv)),
		PCode:    SliceUint32(spirv),
	}

	var module vk.ShaderModule
	if err := vk.Error(vk.CreateShaderModule(v.logicalDevice, &smci, nil, &module)); err != nil {
		return nil, fmt.Errorf("vk.CreateShaderModule(%q): %s", name, err.Error())
	}

	return &ShaderModule{
		device: v.logicalDevice,
		module: module,
		stage:  ShaderTypeFromName(name),
	}, nil
}

// Texture is a sampled GPU image with its backing memory and staging
// resources.
type Texture struct {
	device vk.Device

	image   vk.Image
	memory  vk.DeviceMemory
	view    vk.ImageView
	staging vk.Buffer
	stagMem vk.DeviceMemory

	width, height uint32
}

// View returns the sampled image view.
func (t *Texture) View() vk.ImageView {
	return t.view
}

// Release implements gfx.Releasable.
func (t *Texture) Release() {
	vk.DestroyImageView(t.device, t.view, nil)
	vk.DestroyImage(t.device, t.image, nil)
	vk.FreeMemory(t.device, t.memory, nil)
	vk.DestroyBuffer(t.device, t.staging, nil)
	vk.FreeMemory(t.device, t.stagMem, nil)
}

// NewTexture uploads a decoded image as a sampled device-local texture.
// Pixels go through a host-visible staging buffer and a one-time transfer
// submission; the call returns once the transfer has retired.
func (v *VulkanContext) NewTexture(img image.Image) (gfx.Releasable, error) {
	bounds := img.Bounds()
	width, height := uint32(bounds.Max.X), uint32(bounds.Max.Y)
	bufSize := bounds.Max.X * bounds.Max.Y * 4

	t := &Texture{device: v.logicalDevice, width: width, height: height}

	if err := v.createBuffer(&t.staging, bufSize, vk.BufferUsageTransferSrcBit); err != nil {
		return nil, err
	}

	var memoryRequirements vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(v.logicalDevice, t.staging, &memoryRequirements)
	memoryRequirements.Deref()

	if err := v.allocateMemory(&t.stagMem, memoryRequirements.Size, memoryRequirements.MemoryTypeBits,
		vk.MemoryPropertyHostVisibleBit|vk.MemoryPropertyHostCoherentBit); err != nil {
		t.Release()
		return nil, err
	}
	vk.BindBufferMemory(v.logicalDevice, t.staging, t.stagMem, 0)

	pixels, err := GetPixels(img, 4*bounds.Max.X)
	if err != nil {
		t.Release()
		return nil, err
	}

	var mappedMemory unsafe.Pointer
	vk.MapMemory(v.logicalDevice, t.stagMem, 0, vk.DeviceSize(bufSize), 0, &mappedMemory)
	castMappedMemory := *(*[]uint8)(unsafe.Pointer(&sliceHeader{
		Data: uintptr(mappedMemory),
		Cap:  bufSize,
		Len:  bufSize,
	}))
	copy(castMappedMemory, pixels[:])
	vk.UnmapMemory(v.logicalDevice, t.stagMem)

	ici := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: vk.ImageType2d,
		Extent: vk.Extent3D{
			Width:  width,
			Height: height,
			Depth:  1,
		},
		MipLevels:     1,
		ArrayLayers:   1,
		Format:        vk.FormatR8g8b8a8Unorm,
		Tiling:        vk.ImageTilingOptimal,
		InitialLayout: vk.ImageLayoutUndefined,
		Usage:         vk.ImageUsageFlags(vk.ImageUsageTransferDstBit | vk.ImageUsageSampledBit),
		SharingMode:   vk.SharingModeExclusive,
		Samples:       vk.SampleCount1Bit,
	}

	if err := vk.Error(vk.CreateImage(v.logicalDevice, &ici, nil, &t.image)); err != nil {
		t.Release()
		return nil, fmt.Errorf("vk.CreateImage(): %s", err.Error())
	}

	var memRequirements vk.MemoryRequirements
	vk.GetImageMemoryRequirements(v.logicalDevice, t.image, &memRequirements)
	memRequirements.Deref()

	if err := v.allocateMemory(&t.memory, memRequirements.Size, memRequirements.MemoryTypeBits,
		vk.MemoryPropertyDeviceLocalBit); err != nil {
		t.Release()
		return nil, err
	}
	vk.BindImageMemory(v.logicalDevice, t.image, t.memory, 0)

	if err := v.transitionLayout(t.image, vk.ImageLayoutUndefined, vk.ImageLayoutTransferDstOptimal); err != nil {
		t.Release()
		return nil, err
	}
	if err := v.copyBufferToImage(t.staging, t.image, width, height); err != nil {
		t.Release()
		return nil, err
	}
	if err := v.transitionLayout(t.image, vk.ImageLayoutTransferDstOptimal, vk.ImageLayoutShaderReadOnlyOptimal); err != nil {
		t.Release()
		return nil, err
	}

	ivci := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    t.image,
		ViewType: vk.ImageViewType2d,
		Format:   vk.FormatR8g8b8a8Unorm,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:     vk.ImageAspectFlags(vk.ImageAspectColorBit),
			BaseMipLevel:   0,
			LevelCount:     1,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
	}

	if err := vk.Error(vk.CreateImageView(v.logicalDevice, &ivci, nil, &t.view)); err != nil {
		t.Release()
		return nil, fmt.Errorf("vk.CreateImageView(): %s", err.Error())
	}

	return t, nil
}

// Mesh is a GPU-resident vertex buffer.
type Mesh struct {
	device vk.Device

	buffer vk.Buffer
	memory vk.DeviceMemory
	count  uint32
}

// Buffer returns the vertex buffer handle.
func (m *Mesh) Buffer() vk.Buffer {
	return m.buffer
}

// VertexCount returns how many vertices the buffer holds.
func (m *Mesh) VertexCount() uint32 {
	return m.count
}

// Release implements gfx.Releasable.
func (m *Mesh) Release() {
	vk.DestroyBuffer(m.device, m.buffer, nil)
	vk.FreeMemory(m.device, m.memory, nil)
}

// NewMesh uploads vertices into a host-visible vertex buffer.
func (v *VulkanContext) NewMesh(vertices []model.Vertex) (gfx.Releasable, error) {
	if len(vertices) == 0 {
		return nil, errors.New("mesh upload of zero vertices")
	}

	m := &Mesh{device: v.logicalDevice, count: uint32(len(vertices))}

	size := int(unsafe.Sizeof(model.Vertex{})) * len(vertices)
	if err := v.createBuffer(&m.buffer, size, vk.BufferUsageVertexBufferBit); err != nil {
		return nil, err
	}

	memoryRequirements := vk.MemoryRequirements{}
	vk.GetBufferMemoryRequirements(v.logicalDevice, m.buffer, &memoryRequirements)
	memoryRequirements.Deref()

	if err := v.allocateMemory(&m.memory, memoryRequirements.Size, memoryRequirements.MemoryTypeBits,
		vk.MemoryPropertyHostVisibleBit|vk.MemoryPropertyHostCoherentBit); err != nil {
		m.Release()
		return nil, err
	}
	if err := vk.Error(vk.BindBufferMemory(v.logicalDevice, m.buffer, m.memory, 0)); err != nil {
		m.Release()
		return nil, fmt.Errorf("vk.BindBufferMemory(): %s", err.Error())
	}

	var vertexMappedMemory unsafe.Pointer
	vk.MapMemory(v.logicalDevice, m.memory, 0, memoryRequirements.Size, 0, &vertexMappedMemory)
	vertexCastMemory := *(*[]model.Vertex)(unsafe.Pointer(&sliceHeader{
		Data: uintptr(vertexMappedMemory),
		Cap:  len(vertices),
		Len:  len(vertices),
	}))
	copy(vertexCastMemory, vertices[:])
	vk.UnmapMemory(v.logicalDevice, m.memory)

	return m, nil
}

// UniformBuffers holds one host-visible model-view-projection buffer per
// swapchain image, so a frame can write its transforms without touching a
// buffer the GPU is still reading.
type UniformBuffers struct {
	device   vk.Device
	buffers  []vk.Buffer
	memories []vk.DeviceMemory
}

// Buffer returns the uniform buffer backing the given swapchain image, for
// descriptor set construction.
func (u *UniformBuffers) Buffer(imageIdx int) vk.Buffer {
	return u.buffers[imageIdx]
}

// Count returns the number of per-image buffers.
func (u *UniformBuffers) Count() int {
	return len(u.buffers)
}

// Update writes the transforms into the buffer of the given swapchain
// image. The caller must know the GPU is done with that image, which frame
// pacing guarantees for the image just acquired.
func (u *UniformBuffers) Update(imageIdx int, ubo model.Uniform) {
	var mappedMemory unsafe.Pointer
	vk.MapMemory(u.device, u.memories[imageIdx], 0, vk.DeviceSize(unsafe.Sizeof(ubo)), 0, &mappedMemory)
	castMemory := *(*[]model.Uniform)(unsafe.Pointer(&sliceHeader{
		Data: uintptr(mappedMemory),
		Cap:  1,
		Len:  1,
	}))
	copy(castMemory, []model.Uniform{ubo})
	vk.UnmapMemory(u.device, u.memories[imageIdx])
}

// Release implements gfx.Releasable.
func (u *UniformBuffers) Release() {
	for _, buf := range u.buffers {
		vk.DestroyBuffer(u.device, buf, nil)
	}
	for _, mem := range u.memories {
		vk.FreeMemory(u.device, mem, nil)
	}
}

// NewUniformBuffers allocates one uniform buffer per swapchain image.
func (v *VulkanContext) NewUniformBuffers() (*UniformBuffers, error) {
	count := v.SwapchainImageCount()
	bufferSize := int(unsafe.Sizeof(model.Uniform{}))

	u := &UniformBuffers{
		device:   v.logicalDevice,
		buffers:  make([]vk.Buffer, count),
		memories: make([]vk.DeviceMemory, count),
	}

	for idx := 0; idx < count; idx++ {
		if err := v.createBuffer(&u.buffers[idx], bufferSize, vk.BufferUsageUniformBufferBit); err != nil {
			u.Release()
			return nil, err
		}

		var memoryRequirements vk.MemoryRequirements
		vk.GetBufferMemoryRequirements(v.logicalDevice, u.buffers[idx], &memoryRequirements)
		memoryRequirements.Deref()

		if err := v.allocateMemory(&u.memories[idx], memoryRequirements.Size, memoryRequirements.MemoryTypeBits,
			vk.MemoryPropertyHostVisibleBit|vk.MemoryPropertyHostCoherentBit); err != nil {
			u.Release()
			return nil, err
		}
		vk.BindBufferMemory(v.logicalDevice, u.buffers[idx], u.memories[idx], 0)
	}

	return u, nil
}

func (v *VulkanContext) createBuffer(buffer *vk.Buffer, size int, usage vk.BufferUsageFlagBits) error {
	bci := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(size),
		Usage:       vk.BufferUsageFlags(usage),
		SharingMode: vk.SharingModeExclusive,
	}
	if err := vk.Error(vk.CreateBuffer(v.logicalDevice, &bci, nil, buffer)); err != nil {
		return fmt.Errorf("vk.CreateBuffer(): %s", err.Error())
	}
	return nil
}

func (v *VulkanContext) allocateMemory(memory *vk.DeviceMemory, size vk.DeviceSize, typeBits uint32, properties vk.MemoryPropertyFlagBits) error {
	memTypeIdx, err := findMemoryType(v.physicalDevice, typeBits, vk.MemoryPropertyFlags(properties))
	if err != nil {
		return err
	}

	mai := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  size,
		MemoryTypeIndex: memTypeIdx,
	}

	if err := vk.Error(vk.AllocateMemory(v.logicalDevice, &mai, nil, memory)); err != nil {
		return fmt.Errorf("vk.AllocateMemory(): %s", err.Error())
	}
	return nil
}

func findMemoryType(device vk.PhysicalDevice, filter uint32, properties vk.MemoryPropertyFlags) (uint32, error) {
	memoryProperties := vk.PhysicalDeviceMemoryProperties{}
	vk.GetPhysicalDeviceMemoryProperties(device, &memoryProperties)
	memoryProperties.Deref()

	for idx := uint32(0); idx < memoryProperties.MemoryTypeCount; idx++ {
		memoryProperties.MemoryTypes[idx].Deref()
		if filter&(1<<idx) != 0 && (memoryProperties.MemoryTypes[idx].PropertyFlags&properties) == properties {
			return idx, nil
		}
	}
	return 0, errors.New("requested memory type not found")
}

func (v *VulkanContext) beginSingleTimeCommands() (vk.CommandBuffer, error) {
	cbai := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		Level:              vk.CommandBufferLevelPrimary,
		CommandPool:        v.commandPool,
		CommandBufferCount: 1,
	}

	commandBuffers := make([]vk.CommandBuffer, 1)
	if err := vk.Error(vk.AllocateCommandBuffers(v.logicalDevice, &cbai, commandBuffers)); err != nil {
		return nil, fmt.Errorf("vk.AllocateCommandBuffers(): %s", err.Error())
	}
	commandBuffer := commandBuffers[0]

	cbbi := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	}

	if err := vk.Error(vk.BeginCommandBuffer(commandBuffer, &cbbi)); err != nil {
		vk.FreeCommandBuffers(v.logicalDevice, v.commandPool, 1, []vk.CommandBuffer{commandBuffer})
		return nil, fmt.Errorf("vk.BeginCommandBuffer(): %s", err.Error())
	}

	return commandBuffer, nil
}

func (v *VulkanContext) endSingleTimeCommands(commandBuffer vk.CommandBuffer) error {
	if err := vk.Error(vk.EndCommandBuffer(commandBuffer)); err != nil {
		return fmt.Errorf("vk.EndCommandBuffer(): %s", err.Error())
	}

	si := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: 1,
		PCommandBuffers:    []vk.CommandBuffer{commandBuffer},
	}

	if err := vk.Error(vk.QueueSubmit(v.graphicsQueue, 1, []vk.SubmitInfo{si}, nil)); err != nil {
		return fmt.Errorf("vk.QueueSubmit(): %s", err.Error())
	}

	vk.QueueWaitIdle(v.graphicsQueue)

	vk.FreeCommandBuffers(v.logicalDevice, v.commandPool, 1, []vk.CommandBuffer{commandBuffer})
	return nil
}

func (v *VulkanContext) transitionLayout(img vk.Image, old vk.ImageLayout, new vk.ImageLayout) error {
	cmd, err := v.beginSingleTimeCommands()
	if err != nil {
		return err
	}

	barrier := vk.ImageMemoryBarrier{
		SType:               vk.StructureTypeImageMemoryBarrier,
		OldLayout:           old,
		NewLayout:           new,
		SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
		DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		Image:               img,
		SubresourceRange: vk.ImageSubresourceRange{
			BaseMipLevel:   0,
			LevelCount:     1,
			BaseArrayLayer: 0,
			LayerCount:     1,
			AspectMask:     vk.ImageAspectFlags(vk.ImageAspectColorBit),
		},
	}

	var srcStage, dstStage vk.PipelineStageFlags
	if old == vk.ImageLayoutUndefined && new == vk.ImageLayoutTransferDstOptimal {
		barrier.SrcAccessMask = 0
		barrier.DstAccessMask = vk.AccessFlags(vk.AccessTransferWriteBit)
		srcStage = vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit)
		dstStage = vk.PipelineStageFlags(vk.PipelineStageTransferBit)
	} else if old == vk.ImageLayoutTransferDstOptimal && new == vk.ImageLayoutShaderReadOnlyOptimal {
		barrier.SrcAccessMask = vk.AccessFlags(vk.AccessTransferWriteBit)
		barrier.DstAccessMask = vk.AccessFlags(vk.AccessShaderReadBit)
		srcStage = vk.PipelineStageFlags(vk.PipelineStageTransferBit)
		dstStage = vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit)
	} else {
		return fmt.Errorf("unsupported layout transition")
	}

	vk.CmdPipelineBarrier(cmd, srcStage, dstStage, 0, 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{barrier})

	return v.endSingleTimeCommands(cmd)
}

func (v *VulkanContext) copyBufferToImage(buf vk.Buffer, img vk.Image, width, height uint32) error {
	cmd, err := v.beginSingleTimeCommands()
	if err != nil {
		return err
	}

	bic := vk.BufferImageCopy{
		ImageOffset: vk.Offset3D{},
		ImageExtent: vk.Extent3D{
			Height: height,
			Width:  width,
			Depth:  1,
		},
		ImageSubresource: vk.ImageSubresourceLayers{
			AspectMask:     vk.ImageAspectFlags(vk.ImageAspectColorBit),
			MipLevel:       0,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
	}
	vk.CmdCopyBufferToImage(cmd, buf, img, vk.ImageLayoutTransferDstOptimal, 1, []vk.BufferImageCopy{bic})

	return v.endSingleTimeCommands(cmd)
}
