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

// Package rangeiter expands a subnet descriptor "A.B.C.S-E" into the ordered
// list of host addresses the rest of the pipeline scans.
package rangeiter

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrMalformedPrefix = errors.New("malformed subnet prefix, expected A.B.C")
	ErrOctetRange      = errors.New("prefix octet out of range 0-255")
	ErrHostRange       = errors.New("host range out of bounds 1-254")
	ErrInvertedRange   = errors.New("start must be <= end")
)

// Range is an expanded subnet descriptor.
type Range struct {
	Prefix string // "A.B.C"
	Start  int
	End    int
}

// String renders the descriptor in the canonical "A.B.C.S-E" form used in
// the result document's "subnet" field.
func (r Range) String() string {
	return fmt.Sprintf("%s.%d-%d", r.Prefix, r.Start, r.End)
}

// Parse validates a "A.B.C" prefix and [start,end] host range.
func Parse(prefix string, start, end int) (Range, error) {
	octets := strings.Split(prefix, ".")
	if len(octets) != 3 {
		return Range{}, ErrMalformedPrefix
	}

	for _, o := range octets {
		n, err := strconv.Atoi(o)
		if err != nil || n < 0 || n > 255 {
			return Range{}, fmt.Errorf("%w: %q", ErrOctetRange, o)
		}
	}

	if start < 1 || start > 254 || end < 1 || end > 254 {
		return Range{}, ErrHostRange
	}

	if start > end {
		return Range{}, ErrInvertedRange
	}

	return Range{Prefix: prefix, Start: start, End: end}, nil
}

// Expand returns the ordered list of dotted-quad addresses the range covers.
func (r Range) Expand() []string {
	hosts := make([]string, 0, r.End-r.Start+1)

	for h := r.Start; h <= r.End; h++ {
		hosts = append(hosts, fmt.Sprintf("%s.%d", r.Prefix, h))
	}

	return hosts
}
