//go:build !windows

package engine

import "github.com/go-gl/glfw/v3.3/glfw"

func styleWindow(window *glfw.Window, clear [4]float32) {}
