// Copyright (c) 2024 karhu3d
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package res

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/karhu3d/karhu/gfx"
)

// Compiler turns GLSL source into SPIR-V bytecode.
type Compiler interface {
	Compile(name string, source []byte) ([]byte, error)
}

// ExternalCompiler shells out to glslangValidator and caches its output on
// disk, keyed on the source content hash. A source edit changes the hash,
// so stale cache entries are never served.
type ExternalCompiler struct {
	// Binary is the compiler executable. Empty selects glslangValidator
	// from PATH.
	Binary string

	// CacheDir holds compiled modules. Empty disables caching.
	CacheDir string

	log *log.Entry
}

// NewExternalCompiler returns a compiler caching into cacheDir.
func NewExternalCompiler(cacheDir string) *ExternalCompiler {
	return &ExternalCompiler{
		Binary:   "glslangValidator",
		CacheDir: cacheDir,
		log:      log.WithField("component", "shaderc"),
	}
}

// Compile implements Compiler. The stage is taken from the name's
// dot-separated tokens, so "simple.vert.glsl" compiles as a vertex shader.
func (c *ExternalCompiler) Compile(name string, source []byte) ([]byte, error) {
	stage, err := stageFromName(name)
	if err != nil {
		return nil, err
	}

	id := gfx.ContentID(name, source)
	cached := c.cachePath(id)
	if cached != "" {
		if spirv, err := os.ReadFile(cached); err == nil {
			return spirv, nil
		}
	}

	workDir, err := os.MkdirTemp("", "karhu-shaderc")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(workDir)

	// glslangValidator picks the stage from the input extension.
	srcPath := filepath.Join(workDir, "shader."+stage)
	outPath := filepath.Join(workDir, "shader.spv")
	if err := os.WriteFile(srcPath, source, 0o644); err != nil {
		return nil, err
	}

	binary := c.Binary
	if binary == "" {
		binary = "glslangValidator"
	}
	cmd := exec.Command(binary, "-V", srcPath, "-o", outPath)
	if out, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("shader %q compile failed: %s: %s", name, err, strings.TrimSpace(string(out)))
	}

	spirv, err := os.ReadFile(outPath)
	if err != nil {
		return nil, err
	}

	if cached != "" {
		if err := os.MkdirAll(c.CacheDir, 0o755); err == nil {
			if err := os.WriteFile(cached, spirv, 0o644); err != nil && c.log != nil {
				c.log.WithError(err).Warn("shader cache write failed")
			}
		}
	}
	return spirv, nil
}

func (c *ExternalCompiler) cachePath(id gfx.ResourceID) string {
	if c.CacheDir == "" {
		return ""
	}
	return filepath.Join(c.CacheDir, fmt.Sprintf("%016x.spv", id.Hash))
}

func stageFromName(name string) (string, error) {
	for _, node := range strings.Split(filepath.Base(name), ".") {
		switch node {
		case "vert", "frag", "comp", "geom", "tesc", "tese":
			return node, nil
		}
	}
	return "", fmt.Errorf("shader %q: no stage token in name", name)
}
