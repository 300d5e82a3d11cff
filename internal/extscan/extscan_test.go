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

package extscan

import (
	"context"
	"io"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRunFailedToStartWhenBinaryMissing(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses a unix shell test binary")
	}

	tool := NewTCPTool("/nonexistent/binary/path", []int{80, 443})

	err := tool.Run(context.Background(), []string{"192.0.2.1"}, func(Found) {})
	require.Error(t, err)

	var startErr *ErrFailedToStart
	require.ErrorAs(t, err, &startErr)
}

func TestRunNoHostsIsNoop(t *testing.T) {
	tool := NewTCPTool("/bin/true", nil)
	err := tool.Run(context.Background(), nil, func(Found) {
		t.Fatal("onFound should not be called with no hosts")
	})
	require.NoError(t, err)
}

func TestConsumeStdoutNDJSONDedup(t *testing.T) {
	input := `{"ip":"192.0.2.1","port":80}
{"ip":"192.0.2.1","port":80}
{"ip":"192.0.2.1","port":443,"service":{"slug":"https"}}
`
	var found []Found
	consumeStdout(stringsReader(input), func(f Found) { found = append(found, f) })

	require.Len(t, found, 2)
	require.Equal(t, 80, found[0].Port)
	require.Equal(t, "https", found[1].ServiceSlug)
}

func TestConsumeStdoutJSONArray(t *testing.T) {
	input := `[{"ip":"192.0.2.5","port":161,"probe":{"slug":"snmp"}}]`

	var found []Found
	consumeStdout(stringsReader(input), func(f Found) { found = append(found, f) })

	require.Len(t, found, 1)
	require.Equal(t, "snmp", found[0].ServiceSlug)
}

func stringsReader(s string) *stringReaderCloser {
	return &stringReaderCloser{s: s}
}

type stringReaderCloser struct {
	s string
	i int
}

func (r *stringReaderCloser) Read(p []byte) (int, error) {
	if r.i >= len(r.s) {
		return 0, io.EOF
	}

	n := copy(p, r.s[r.i:])
	r.i += n

	return n, nil
}
