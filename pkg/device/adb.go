package device

import (
	"bytes"
	"fmt"
	"net"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"
)

// UIAutomator2 package names on the device.
const (
	uia2ServerPkg = "io.appium.uiautomator2.server"
	uia2TestPkg   = "io.appium.uiautomator2.server.test"
)

const (
	defaultDevicePort = 6790
	portRangeStart    = 6001
	portRangeEnd      = 7001
)

// Android manages a device connection via ADB and the automation
// server running on it. On Linux and Mac the server is reached over a
// forwarded Unix socket; on Windows over a forwarded TCP port.
type Android struct {
	serial     string
	adbPath    string
	socketPath string
	localPort  int
}

// Info contains basic device properties.
type Info struct {
	Serial     string
	Model      string
	SDK        string
	Brand      string
	IsEmulator bool
}

// ListEntry is one row of `adb devices`.
type ListEntry struct {
	Serial string
	State  string
}

// ListDevices returns all devices adb knows about.
func ListDevices() ([]ListEntry, error) {
	adbPath, err := findADB()
	if err != nil {
		return nil, err
	}
	out, err := exec.Command(adbPath, "devices").Output()
	if err != nil {
		return nil, fmt.Errorf("adb devices: %w", err)
	}

	var entries []ListEntry
	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "List of") {
			continue
		}
		parts := strings.Fields(line)
		if len(parts) >= 2 {
			entries = append(entries, ListEntry{Serial: parts[0], State: parts[1]})
		}
	}
	return entries, nil
}

// FirstAvailable connects to the first device in "device" state.
func FirstAvailable() (*Android, error) {
	entries, err := ListDevices()
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if e.State == "device" {
			return Connect(e.Serial)
		}
	}
	return nil, fmt.Errorf("no connected devices found")
}

// Connect opens a connection to the device with the given serial. An
// empty serial auto-detects the first connected device.
func Connect(serial string) (*Android, error) {
	adbPath, err := findADB()
	if err != nil {
		return nil, err
	}

	if serial == "" {
		entries, err := ListDevices()
		if err != nil {
			return nil, fmt.Errorf("no device specified and auto-detect failed: %w", err)
		}
		for _, e := range entries {
			if e.State == "device" {
				serial = e.Serial
				break
			}
		}
		if serial == "" {
			return nil, fmt.Errorf("no connected devices found")
		}
	}

	d := &Android{serial: serial, adbPath: adbPath}
	if err := d.waitForDevice(5 * time.Second); err != nil {
		return nil, fmt.Errorf("device not found: %w", err)
	}
	return d, nil
}

// Serial returns the device serial number.
func (d *Android) Serial() string { return d.serial }

// SocketPath returns the forwarded server socket path, if any.
func (d *Android) SocketPath() string { return d.socketPath }

// LocalPort returns the forwarded server TCP port, if any.
func (d *Android) LocalPort() int { return d.localPort }

// Shell executes a shell command on the device.
func (d *Android) Shell(cmd string) (string, error) {
	return d.adb("shell", cmd)
}

// IsInstalled checks if a package is installed.
func (d *Android) IsInstalled(pkg string) bool {
	out, err := d.Shell("pm list packages " + pkg)
	if err != nil {
		return false
	}
	return strings.Contains(out, "package:"+pkg)
}

// Info returns device properties.
func (d *Android) Info() (Info, error) {
	info := Info{Serial: d.serial}
	if model, err := d.Shell("getprop ro.product.model"); err == nil {
		info.Model = strings.TrimSpace(model)
	}
	if sdk, err := d.Shell("getprop ro.build.version.sdk"); err == nil {
		info.SDK = strings.TrimSpace(sdk)
	}
	if brand, err := d.Shell("getprop ro.product.brand"); err == nil {
		info.Brand = strings.TrimSpace(brand)
	}
	qemu, _ := d.Shell("getprop ro.kernel.qemu")
	info.IsEmulator = strings.TrimSpace(qemu) == "1"
	return info, nil
}

// StartServer launches the UIAutomator2 instrumentation on the device
// and forwards a local endpoint to it. The returned transport is ready
// for session creation.
func (d *Android) StartServer(timeout time.Duration) (*UIA2, error) {
	if !d.IsInstalled(uia2ServerPkg) {
		return nil, fmt.Errorf("automation server not installed: %s", uia2ServerPkg)
	}
	if !d.IsInstalled(uia2TestPkg) {
		return nil, fmt.Errorf("automation test APK not installed: %s", uia2TestPkg)
	}

	d.StopServer()

	var transport *UIA2
	if runtime.GOOS == "windows" {
		port, err := findFreePort(portRangeStart, portRangeEnd)
		if err != nil {
			return nil, err
		}
		if err := d.forward(port, defaultDevicePort); err != nil {
			return nil, err
		}
		d.localPort = port
		transport = NewUIA2TCP(port)
	} else {
		socketPath := d.defaultSocketPath()
		os.Remove(socketPath)
		if err := d.forwardSocket(socketPath, defaultDevicePort); err != nil {
			return nil, err
		}
		d.socketPath = socketPath
		transport = NewUIA2(socketPath)
	}

	// nohup with redirected output keeps the instrumentation alive
	// after the shell exits.
	instrumentCmd := fmt.Sprintf(
		"nohup am instrument -w -e disableAnalytics true "+
			"%s/androidx.test.runner.AndroidJUnitRunner > /dev/null 2>&1 &",
		uia2TestPkg,
	)
	if _, err := d.Shell(instrumentCmd); err != nil {
		return nil, fmt.Errorf("failed to start instrumentation: %w", err)
	}

	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if ready, _ := transport.Ready(); ready {
			return transport, nil
		}
		time.Sleep(500 * time.Millisecond)
	}
	d.StopServer()
	return nil, fmt.Errorf("automation server not ready after %v", timeout)
}

// StopServer stops the automation server and removes forwards.
func (d *Android) StopServer() {
	d.Shell("am force-stop " + uia2ServerPkg)
	d.Shell("am force-stop " + uia2TestPkg)
	time.Sleep(300 * time.Millisecond)

	if d.socketPath != "" {
		d.removeSocketForward(d.socketPath)
		os.Remove(d.socketPath)
		d.socketPath = ""
	}
	// Stale forwards from a previous run.
	defaultSocket := d.defaultSocketPath()
	d.removeSocketForward(defaultSocket)
	os.Remove(defaultSocket)

	if d.localPort != 0 {
		d.removeForward(d.localPort)
		d.localPort = 0
	}
	d.adb("forward", "--remove", fmt.Sprintf("tcp:%d", defaultDevicePort))
}

func (d *Android) defaultSocketPath() string {
	return fmt.Sprintf("/tmp/uia2-%s.sock", d.serial)
}

func (d *Android) forward(localPort, remotePort int) error {
	_, err := d.adb("forward", fmt.Sprintf("tcp:%d", localPort), fmt.Sprintf("tcp:%d", remotePort))
	return err
}

func (d *Android) removeForward(localPort int) error {
	_, err := d.adb("forward", "--remove", fmt.Sprintf("tcp:%d", localPort))
	return err
}

func (d *Android) forwardSocket(socketPath string, remotePort int) error {
	_, err := d.adb("forward", fmt.Sprintf("localfilesystem:%s", socketPath), fmt.Sprintf("tcp:%d", remotePort))
	return err
}

func (d *Android) removeSocketForward(socketPath string) error {
	_, err := d.adb("forward", "--remove", fmt.Sprintf("localfilesystem:%s", socketPath))
	return err
}

func (d *Android) adb(args ...string) (string, error) {
	cmdArgs := make([]string, 0, len(args)+2)
	if d.serial != "" {
		cmdArgs = append(cmdArgs, "-s", d.serial)
	}
	cmdArgs = append(cmdArgs, args...)

	cmd := exec.Command(d.adbPath, cmdArgs...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		errMsg := stderr.String()
		if errMsg == "" {
			errMsg = stdout.String()
		}
		return "", fmt.Errorf("adb %s: %w: %s", strings.Join(args, " "), err, errMsg)
	}
	return stdout.String(), nil
}

func (d *Android) waitForDevice(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		out, err := d.adb("get-state")
		if err == nil && strings.TrimSpace(out) == "device" {
			return nil
		}
		time.Sleep(500 * time.Millisecond)
	}
	return fmt.Errorf("timeout waiting for device %s", d.serial)
}

func findFreePort(start, end int) (int, error) {
	for port := start; port <= end; port++ {
		ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
		if err == nil {
			ln.Close()
			return port, nil
		}
	}
	return 0, fmt.Errorf("no free port found in range %d-%d", start, end)
}

func findADB() (string, error) {
	if path, err := exec.LookPath("adb"); err == nil {
		return path, nil
	}
	return "", fmt.Errorf("adb not found in PATH; ensure Android SDK is installed")
}
