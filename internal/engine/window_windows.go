//go:build windows

package engine

import (
	"syscall"
	"unsafe"

	"github.com/go-gl/glfw/v3.3/glfw"
)

var (
	dwmapi                    = syscall.NewLazyDLL("dwmapi.dll")
	procDwmSetWindowAttribute = dwmapi.NewProc("DwmSetWindowAttribute")
)

const (
	dwmwaUseImmersiveDarkMode = 20
	dwmwaBorderColor          = 34
	dwmwaCaptionColor         = 35
)

func setWindowAttribute(hwnd unsafe.Pointer, attr uintptr, value uint32) {
	procDwmSetWindowAttribute.Call(
		uintptr(hwnd),
		attr,
		uintptr(unsafe.Pointer(&value)),
		unsafe.Sizeof(value),
	)
}

// styleWindow switches the title bar to dark mode and tints caption and
// border with the scene clear color.
func styleWindow(window *glfw.Window, clear [4]float32) {
	hwnd := window.GetWin32Window()
	if hwnd == nil {
		return
	}
	setWindowAttribute(unsafe.Pointer(hwnd), dwmwaUseImmersiveDarkMode, 1)

	// COLORREF is 0x00BBGGRR.
	bgr := uint32(uint8(clear[2]*255))<<16 | uint32(uint8(clear[1]*255))<<8 | uint32(uint8(clear[0]*255))
	setWindowAttribute(unsafe.Pointer(hwnd), dwmwaBorderColor, bgr)
	setWindowAttribute(unsafe.Pointer(hwnd), dwmwaCaptionColor, bgr)
}
