//go:build windows

package comport

import (
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"
)

// Window messages and device broadcast codes.
// https://learn.microsoft.com/en-us/windows/win32/devio/wm-devicechange
const (
	wmDestroy      = 0x0002
	wmClose        = 0x0010
	wmDeviceChange = 0x0219

	dbtDevTypPort        = 0x0003
	dbtDevTypDeviceIface = 0x0005

	deviceNotifyWindowHandle = 0x0000
)

// Device-interface class GUIDs registered for notifications: Windows CE
// USB ActiveSync devices, USB devices, and Ports (COM & LPT).
var deviceClassGUIDs = []windows.GUID{
	{Data1: 0x25dbce51, Data2: 0x6c8f, Data3: 0x4a72, Data4: [8]byte{0x8a, 0x6d, 0xb5, 0x4c, 0x2b, 0x4f, 0xc8, 0x35}},
	{Data1: 0x88bae032, Data2: 0x5a81, Data3: 0x49f0, Data4: [8]byte{0xbc, 0x3d, 0xa4, 0xff, 0x13, 0x82, 0x16, 0xd6}},
	{Data1: 0x4d36e978, Data2: 0xe325, Data3: 0x11ce, Data4: [8]byte{0xbf, 0xc1, 0x08, 0x00, 0x2b, 0xe1, 0x03, 0x18}},
}

var (
	user32                           = windows.NewLazySystemDLL("user32.dll")
	procRegisterClassExW             = user32.NewProc("RegisterClassExW")
	procCreateWindowExW              = user32.NewProc("CreateWindowExW")
	procDefWindowProcW               = user32.NewProc("DefWindowProcW")
	procDestroyWindow                = user32.NewProc("DestroyWindow")
	procGetMessageW                  = user32.NewProc("GetMessageW")
	procTranslateMessage             = user32.NewProc("TranslateMessage")
	procDispatchMessageW             = user32.NewProc("DispatchMessageW")
	procPostMessageW                 = user32.NewProc("PostMessageW")
	procPostQuitMessage              = user32.NewProc("PostQuitMessage")
	procRegisterDeviceNotificationW  = user32.NewProc("RegisterDeviceNotificationW")
	procUnregisterDeviceNotification = user32.NewProc("UnregisterDeviceNotification")
)

type wndClassExW struct {
	size       uint32
	style      uint32
	wndProc    uintptr
	clsExtra   int32
	wndExtra   int32
	instance   windows.Handle
	icon       windows.Handle
	cursor     windows.Handle
	background windows.Handle
	menuName   *uint16
	className  *uint16
	iconSm     windows.Handle
}

// devBroadcastHdr is the fixed header shared by all WM_DEVICECHANGE
// payloads; DEV_BROADCAST_PORT_W follows it with the wide port name.
type devBroadcastHdr struct {
	size       uint32
	deviceType uint32
	reserved   uint32
}

type devBroadcastDeviceInterface struct {
	size       uint32
	deviceType uint32
	reserved   uint32
	classGUID  windows.GUID
	name       uint16
}

type msgW struct {
	hwnd    uintptr
	message uint32
	wparam  uintptr
	lparam  uintptr
	time    uint32
	pt      struct{ x, y int32 }
}

// The window class is registered once per process; windows route their
// messages back to their source through this table.
var (
	classOnce sync.Once
	classErr  error
	className *uint16

	sourcesMu sync.Mutex
	sources   = make(map[uintptr]*windowSource)
)

// windowSource receives WM_DEVICECHANGE broadcasts through a hidden
// window whose message loop runs on a dedicated, OS-locked thread. Raw
// notifications are pushed non-blockingly into a bounded channel; the
// message loop is never allowed to stall on a slow consumer.
type windowSource struct {
	name   string
	log    *slog.Logger
	events chan rawNotification

	hwnd uintptr
	err  error // terminal loop error, set before events is closed

	ready     chan error
	done      chan struct{}
	closeOnce sync.Once
}

func newPlatformSource(name string, log *slog.Logger) (notificationSource, error) {
	return &windowSource{
		name:   name,
		log:    log,
		events: make(chan rawNotification, 64),
		ready:  make(chan error, 1),
		done:   make(chan struct{}),
	}, nil
}

// Start spawns the message-loop thread and blocks until the window is
// created and the device notifications are registered, or that failed.
func (s *windowSource) Start() error {
	go s.run()
	return <-s.ready
}

func (s *windowSource) Events() <-chan rawNotification {
	return s.events
}

// Err reports why the message loop stopped. Valid after the events
// channel has closed; nil means a clean close.
func (s *windowSource) Err() error {
	return s.err
}

// Close asks the message loop to destroy its window and waits for the
// loop to exit. Safe to call from any goroutine, any number of times.
// Shutdown is bounded: the loop always processes WM_CLOSE.
func (s *windowSource) Close() error {
	var err error
	s.closeOnce.Do(func() {
		if s.hwnd != 0 {
			if r, _, e := procPostMessageW.Call(s.hwnd, wmClose, 0, 0); r == 0 {
				err = e
			}
		}
	})
	<-s.done
	return err
}

func (s *windowSource) run() {
	// WM_DEVICECHANGE is delivered to the thread that created the
	// window, so the whole lifetime of the window stays on this thread.
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(s.done)
	defer close(s.events)

	classOnce.Do(registerWindowClass)
	if classErr != nil {
		s.ready <- classErr
		return
	}

	hwnd, err := s.createWindow()
	if err != nil {
		s.ready <- err
		return
	}
	s.hwnd = hwnd

	sourcesMu.Lock()
	sources[hwnd] = s
	sourcesMu.Unlock()
	defer func() {
		sourcesMu.Lock()
		delete(sources, hwnd)
		sourcesMu.Unlock()
	}()

	handles, err := registerDeviceNotifications(hwnd)
	if err != nil {
		procDestroyWindow.Call(hwnd)
		s.ready <- err
		return
	}
	defer func() {
		for _, h := range handles {
			procUnregisterDeviceNotification.Call(h)
		}
	}()

	s.ready <- nil
	s.log.Debug("device notification window running")

	var msg msgW
	for {
		r, _, _ := procGetMessageW.Call(uintptr(unsafe.Pointer(&msg)), 0, 0, 0)
		switch int32(r) {
		case 0: // WM_QUIT
			s.log.Debug("device notification window closed")
			return
		case -1:
			s.err = windows.GetLastError()
			if s.err == nil {
				s.err = fmt.Errorf("GetMessageW failed")
			}
			s.log.Error("message loop failed", "error", s.err)
			return
		default:
			procTranslateMessage.Call(uintptr(unsafe.Pointer(&msg)))
			procDispatchMessageW.Call(uintptr(unsafe.Pointer(&msg)))
		}
	}
}

func (s *windowSource) createWindow() (uintptr, error) {
	title, err := windows.UTF16PtrFromString(s.name)
	if err != nil {
		return 0, err
	}
	var hinst windows.Handle
	if err := windows.GetModuleHandleEx(0, nil, &hinst); err != nil {
		return 0, err
	}
	hwnd, _, callErr := procCreateWindowExW.Call(
		0,                                  // exStyle
		uintptr(unsafe.Pointer(className)), // class name
		uintptr(unsafe.Pointer(title)),     // window name
		0,                                  // style: never shown
		0, 0, 0, 0,                         // x, y, w, h
		0,              // parent
		0,              // menu
		uintptr(hinst), // instance
		0,              // create params
	)
	if hwnd == 0 {
		return 0, callErr
	}
	return hwnd, nil
}

// deviceChange translates one WM_DEVICECHANGE into a raw notification.
// Only DBT_DEVTYP_PORT payloads carry a COM name; everything else (disk
// volumes, device-interface paths, ...) is dropped here, the first of
// the two filtering stages.
func (s *windowSource) deviceChange(wparam, lparam uintptr) {
	action := rawAction(wparam)
	if action != rawArrival && action != rawRemoval {
		return
	}
	if lparam == 0 {
		return
	}
	hdr := (*devBroadcastHdr)(unsafe.Pointer(lparam))
	if hdr.deviceType != dbtDevTypPort {
		return
	}
	namePtr := (*uint16)(unsafe.Pointer(lparam + unsafe.Sizeof(devBroadcastHdr{})))
	port := windows.UTF16PtrToString(namePtr)
	if port == "" {
		return
	}
	select {
	case s.events <- rawNotification{action: action, port: port}:
	default:
		s.log.Warn("device notification dropped, queue full", "port", port)
	}
}

func registerWindowClass() {
	className, classErr = windows.UTF16PtrFromString("ComportDeviceNotifier")
	if classErr != nil {
		return
	}
	var hinst windows.Handle
	if err := windows.GetModuleHandleEx(0, nil, &hinst); err != nil {
		classErr = err
		return
	}
	class := wndClassExW{
		wndProc:   syscall.NewCallback(notifierWndProc),
		instance:  hinst,
		className: className,
	}
	class.size = uint32(unsafe.Sizeof(class))
	if atom, _, err := procRegisterClassExW.Call(uintptr(unsafe.Pointer(&class))); atom == 0 {
		classErr = err
	}
}

func registerDeviceNotifications(hwnd uintptr) ([]uintptr, error) {
	var handles []uintptr
	for _, guid := range deviceClassGUIDs {
		filter := devBroadcastDeviceInterface{
			deviceType: dbtDevTypDeviceIface,
			classGUID:  guid,
		}
		filter.size = uint32(unsafe.Sizeof(filter))
		h, _, err := procRegisterDeviceNotificationW.Call(
			hwnd,
			uintptr(unsafe.Pointer(&filter)),
			deviceNotifyWindowHandle,
		)
		if h == 0 {
			for _, prev := range handles {
				procUnregisterDeviceNotification.Call(prev)
			}
			return nil, err
		}
		handles = append(handles, h)
	}
	return handles, nil
}

func notifierWndProc(hwnd, msg, wparam, lparam uintptr) uintptr {
	switch msg {
	case wmDeviceChange:
		sourcesMu.Lock()
		src := sources[hwnd]
		sourcesMu.Unlock()
		if src != nil {
			src.deviceChange(wparam, lparam)
		}
		return 0
	case wmDestroy:
		procPostQuitMessage.Call(0)
		return 0
	}
	r, _, _ := procDefWindowProcW.Call(hwnd, msg, wparam, lparam)
	return r
}
