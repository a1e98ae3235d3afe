// Package devices names the compute devices of a single-machine cluster and
// normalizes the spellings an operation may use for its placement.
package devices

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Type is a device class.
type Type string

const (
	CPU Type = "CPU"
	GPU Type = "GPU"
)

// Prefix is the job/replica/task part of every local device name.
const Prefix = "/job:localhost/replica:0/task:0"

// Device identifies one device on the local machine.
type Device struct {
	Type  Type
	Index int
}

// Host is the single CPU device every cluster has.
var Host = Device{Type: CPU, Index: 0}

// Name is the canonical long form, e.g. /job:localhost/replica:0/task:0/device:CPU:0.
func (d Device) Name() string {
	return fmt.Sprintf("%s/device:%s:%d", Prefix, d.Type, d.Index)
}

// Short is the legacy short form, e.g. /cpu:0.
func (d Device) Short() string {
	return fmt.Sprintf("/%s:%d", strings.ToLower(string(d.Type)), d.Index)
}

// IsHost reports whether the device is the CPU.
func (d Device) IsHost() bool {
	return d.Type == CPU
}

func (d Device) String() string {
	return d.Name()
}

var (
	shortRegex = regexp.MustCompile(`^/(cpu|gpu):(\d+)$`)
	longRegex  = regexp.MustCompile(`^(?:/job:localhost(?:/replica:0)?(?:/task:0)?)?/device:(CPU|GPU):(\d+)$`)
)

// Parse accepts the short form, the /device: form, or the full local name.
// An empty string means the host CPU.
func Parse(raw string) (Device, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Host, nil
	}
	if m := shortRegex.FindStringSubmatch(strings.ToLower(s)); m != nil {
		idx, _ := strconv.Atoi(m[2])
		return Device{Type: Type(strings.ToUpper(m[1])), Index: idx}, nil
	}
	if m := longRegex.FindStringSubmatch(s); m != nil {
		idx, _ := strconv.Atoi(m[2])
		return Device{Type: Type(m[1]), Index: idx}, nil
	}
	return Device{}, fmt.Errorf("unrecognized device %q", raw)
}

// Topology is the set of devices a cluster was provisioned with.
type Topology struct {
	NumGPUs int
}

// Devices lists the host CPU followed by every GPU in index order.
func (t Topology) Devices() []Device {
	out := []Device{Host}
	for i := 0; i < t.NumGPUs; i++ {
		out = append(out, Device{Type: GPU, Index: i})
	}
	return out
}

// Names is Devices in canonical long form.
func (t Topology) Names() []string {
	devs := t.Devices()
	names := make([]string, len(devs))
	for i, d := range devs {
		names[i] = d.Name()
	}
	return names
}

// Resolve parses a placement and checks that the device exists.
func (t Topology) Resolve(raw string) (Device, error) {
	d, err := Parse(raw)
	if err != nil {
		return Device{}, err
	}
	switch {
	case d.Type == CPU && d.Index != 0:
		return Device{}, fmt.Errorf("device %q does not exist: only CPU:0 is available", raw)
	case d.Type == GPU && d.Index >= t.NumGPUs:
		return Device{}, fmt.Errorf("device %q does not exist: %d GPU(s) provisioned", raw, t.NumGPUs)
	}
	return d, nil
}
