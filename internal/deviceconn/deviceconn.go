// Package deviceconn enumerates devices visible to the Android Debug
// Bridge, lets the caller pick a serial when more than one is attached, and
// supervises reconnection after a transient disconnect, grounded on
// data/connection.hpp's Device/DeviceStatus/list_devices.
package deviceconn

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Status mirrors the original AdbError/DeviceStatus split: a device is
// either usable, or one of a small set of known-bad states.
type Status int

const (
	StatusUnknown Status = iota
	StatusDevice
	StatusOffline
	StatusUnauthorized
)

func (s Status) String() string {
	switch s {
	case StatusDevice:
		return "device"
	case StatusOffline:
		return "offline"
	case StatusUnauthorized:
		return "unauthorized"
	default:
		return "unknown"
	}
}

// Device is one line of `adb devices -l`.
type Device struct {
	Serial string
	Status Status
}

// ListDevices runs `adb devices -l` and parses its output.
func ListDevices(ctx context.Context, adbPath string) ([]Device, error) {
	c := exec.CommandContext(ctx, adbPath, "devices", "-l")
	var stdout bytes.Buffer
	c.Stdout = &stdout
	if err := c.Run(); err != nil {
		return nil, errors.Wrap(err, "deviceconn: adb devices failed")
	}

	var devices []Device
	lines := strings.Split(stdout.String(), "\n")
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "List of devices") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		devices = append(devices, Device{Serial: fields[0], Status: parseStatus(fields[1])})
	}
	return devices, nil
}

func parseStatus(s string) Status {
	switch s {
	case "device":
		return StatusDevice
	case "offline":
		return StatusOffline
	case "unauthorized":
		return StatusUnauthorized
	default:
		return StatusUnknown
	}
}

// SelectSerial picks the serial to mount: the explicit one if given and
// present, the sole device if exactly one is attached and usable, or an
// error describing the ambiguity/absence otherwise.
func SelectSerial(devices []Device, requested string) (string, error) {
	if requested != "" {
		for _, d := range devices {
			if d.Serial == requested {
				if d.Status != StatusDevice {
					return "", fmt.Errorf("deviceconn: device %s is %s", requested, d.Status)
				}
				return requested, nil
			}
		}
		return "", fmt.Errorf("deviceconn: no device with serial %s", requested)
	}

	var usable []Device
	for _, d := range devices {
		if d.Status == StatusDevice {
			usable = append(usable, d)
		}
	}

	switch len(usable) {
	case 0:
		return "", fmt.Errorf("deviceconn: no usable device attached")
	case 1:
		return usable[0].Serial, nil
	default:
		return "", fmt.Errorf("deviceconn: %d devices attached, pass -serial to disambiguate", len(usable))
	}
}

// Supervisor keeps a serial's connectivity checked, pacing reconnect
// attempts with a rate limiter rather than a tight poll loop.
type Supervisor struct {
	adbPath string
	serial  string
	limiter *rate.Limiter
}

// NewSupervisor paces reconnect probes to at most one every interval, with
// a burst of one (no thundering-herd retry immediately after startup).
func NewSupervisor(adbPath, serial string, interval time.Duration) *Supervisor {
	return &Supervisor{
		adbPath: adbPath,
		serial:  serial,
		limiter: rate.NewLimiter(rate.Every(interval), 1),
	}
}

// WaitForReconnect blocks, paced by the limiter, until the supervised
// serial reports status "device" again or ctx is cancelled.
func (s *Supervisor) WaitForReconnect(ctx context.Context) error {
	for {
		if err := s.limiter.Wait(ctx); err != nil {
			return err
		}

		devices, err := ListDevices(ctx, s.adbPath)
		if err != nil {
			log.WithField("err", err).Debug("deviceconn: probe failed, retrying")
			continue
		}

		for _, d := range devices {
			if d.Serial == s.serial && d.Status == StatusDevice {
				return nil
			}
		}
	}
}
