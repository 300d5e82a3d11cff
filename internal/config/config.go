/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package config loads and validates the JSON configuration for one
// discovery run (spec.md §1's "out of scope" process-entry wrapper still
// needs a typed settings document for the pipeline it drives).
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"
)

var errInvalidDuration = errors.New("invalid duration")

// Duration unmarshals either a JSON number (nanoseconds) or a Go duration
// string ("1500ms"), matching the teacher's config duration convention.
type Duration time.Duration

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}

	switch value := v.(type) {
	case float64:
		*d = Duration(time.Duration(value))
		return nil
	case string:
		dur, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration: %w", err)
		}

		*d = Duration(dur)

		return nil
	default:
		return errInvalidDuration
	}
}

// Config is the settings document for one discovery run (spec.md §4.1,
// §4.2, §4.4, §5).
type Config struct {
	// Subnet descriptor: "A.B.C.S-E".
	SubnetPrefix string `json:"subnet_prefix"`
	HostStart    int    `json:"host_start"`
	HostEnd      int    `json:"host_end"`

	// External scanner binaries (spec.md §4.3, §4.4a); out of scope to
	// specify further, but the pipeline needs their paths.
	TCPScannerPath string `json:"tcp_scanner_path"`
	UDPScannerPath string `json:"udp_scanner_path"`

	// ICMP sweep (spec.md §4.2).
	PingTimeout      Duration `json:"ping_timeout"`
	PingRetries      int      `json:"ping_retries"`
	PingConcurrency  int      `json:"ping_concurrency"`

	// UDP-extra native probers (spec.md §4.4b).
	UDPExtraConcurrency int      `json:"udp_extra_concurrency"`
	UDPExtraTimeout     Duration `json:"udp_extra_timeout"`

	// Reverse DNS (spec.md §4.6).
	DNSServerAddr string   `json:"dns_server_addr"` // empty uses the system resolver
	DNSTimeout    Duration `json:"dns_timeout"`

	// Traverser / adapter dispatch (spec.md §4.8.2, §5).
	HostConcurrency    int      `json:"host_concurrency"`
	AdapterConcurrency int      `json:"adapter_concurrency"`
	PerAdapterTimeout  Duration `json:"per_adapter_timeout"`
	BACnetConcurrency  int      `json:"bacnet_concurrency"`

	Verbose bool `json:"verbose"`
}

// Defaults returns a Config populated with spec.md's stated defaults,
// overridden by whatever LoadFile reads on top.
func Defaults() Config {
	return Config{
		HostStart:           1,
		HostEnd:             254,
		PingTimeout:         Duration(1 * time.Second),
		PingRetries:         1,
		PingConcurrency:     254,
		UDPExtraConcurrency: 100,
		UDPExtraTimeout:     Duration(2 * time.Second),
		DNSTimeout:          Duration(2 * time.Second),
		HostConcurrency:     3,
		AdapterConcurrency:  5,
		PerAdapterTimeout:   Duration(5 * time.Second),
		BACnetConcurrency:   5,
	}
}

// Validate checks the fields a malformed configuration file could get
// wrong (spec.md §7 "configuration errors": fatal, exit 1).
func (c *Config) Validate() error {
	if c.SubnetPrefix == "" {
		return errors.New("subnet_prefix is required")
	}

	if c.HostStart < 1 || c.HostStart > 254 || c.HostEnd < 1 || c.HostEnd > 254 {
		return errors.New("host_start/host_end must be in 1-254")
	}

	if c.HostStart > c.HostEnd {
		return errors.New("host_start must be <= host_end")
	}

	if c.TCPScannerPath == "" || c.UDPScannerPath == "" {
		return errors.New("tcp_scanner_path and udp_scanner_path are required")
	}

	return nil
}

// Validator is implemented by configuration documents that can check their
// own fields.
type Validator interface {
	Validate() error
}

// LoadFile reads a JSON file from path into dst.
func LoadFile(path string, dst interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read file %q: %w", path, err)
	}

	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("failed to unmarshal JSON from %q: %w", path, err)
	}

	return nil
}

// Load reads path on top of Defaults() and validates the result.
func Load(path string) (Config, error) {
	cfg := Defaults()
	if err := LoadFile(path, &cfg); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}
