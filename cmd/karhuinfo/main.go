// Copyright (c) 2024 karhu3d
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Command karhuinfo dumps the physical device inventory as JSON.
package main

import (
	"encoding/json"
	"fmt"

	"github.com/karhu3d/karhu/core"
)

func main() {
	cfg := core.AppConfiguration{
		Name:       "karhuinfo",
		Validation: false,
	}

	instance, err := core.NewVulkanInstance(cfg, nil, []string{})
	if err != nil {
		panic(err)
	}

	if bytes, err := json.Marshal(instance.PhysicalDevicesInfo()); err == nil {
		fmt.Printf("%s", bytes)
	} else {
		panic(err)
	}

	instance.Destroy()
}
