//go:build windows

package auth

import (
	"fmt"
	"syscall"
	"unsafe"
)

var (
	credui             = syscall.NewLazyDLL("credui.dll")
	procPromptForCreds = credui.NewProc("CredUIPromptForCredentialsW")
)

// creduiPrompter shows the Windows credential dialog.
type creduiPrompter struct{}

func platformPrompter() Prompter { return creduiPrompter{} }

// credUIInfo mirrors CREDUI_INFOW.
type credUIInfo struct {
	cbSize         uint32
	hwndParent     uintptr
	pszMessageText *uint16
	pszCaptionText *uint16
	hbmBanner      uintptr
}

func (creduiPrompter) Prompt(reason string) error {
	message, err := syscall.UTF16PtrFromString(reason)
	if err != nil {
		return err
	}
	caption, err := syscall.UTF16PtrFromString("tablemoins")
	if err != nil {
		return err
	}
	info := credUIInfo{
		cbSize:         uint32(unsafe.Sizeof(credUIInfo{})),
		pszMessageText: message,
		pszCaptionText: caption,
	}

	user := make([]uint16, 256)
	pass := make([]uint16, 256)
	ret, _, _ := procPromptForCreds.Call(
		uintptr(unsafe.Pointer(&info)),
		uintptr(unsafe.Pointer(caption)),
		0, 0,
		uintptr(unsafe.Pointer(&user[0])), uintptr(len(user)),
		uintptr(unsafe.Pointer(&pass[0])), uintptr(len(pass)),
		0, 0,
	)
	if ret != 0 {
		return fmt.Errorf("credential prompt returned %d", ret)
	}
	return nil
}

func (creduiPrompter) Available() bool { return true }
