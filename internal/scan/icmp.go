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

// Package scan implements the ICMP sweep and the native UDP-extra probers
// (spec.md §4.2, §4.4b).
package scan

import (
	"context"
	"errors"
	"log"
	"net"
	"sync"
	"time"

	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
	"golang.org/x/time/rate"
)

const (
	// DefaultICMPConcurrency is the in-flight bound from spec.md §5.
	DefaultICMPConcurrency = 254
	defaultICMPTimeout     = 3 * time.Second
	defaultICMPRetries     = 1
	icmpReadBudget         = 1500
)

// PingResult is one host's ICMP outcome.
type PingResult struct {
	Host      string
	Alive     bool
	LatencyMs float64
}

// ICMPSweeper sends one echo request per target per attempt and collects
// replies, grounded on the teacher's raw-socket ICMPSweeper
// (pkg/scan/icmp_scanner.go) but using a token-bucket rate limiter
// (golang.org/x/time/rate, already a teacher dependency) instead of a fixed
// batch ticker.
type ICMPSweeper struct {
	Timeout     time.Duration
	Retries     int
	Concurrency int
	identifier  int

	conn  *icmp.PacketConn
	pacer *limiterPacer
}

// NewICMPSweeper opens the ICMP listener. Requires CAP_NET_RAW / root, per
// spec.md §6. rateLimit bounds total packets/sec across all in-flight
// pings (0 uses the default).
func NewICMPSweeper(timeout time.Duration, concurrency, retries, rateLimit int) (*ICMPSweeper, error) {
	if timeout == 0 {
		timeout = defaultICMPTimeout
	}

	if concurrency == 0 {
		concurrency = DefaultICMPConcurrency
	}

	if retries == 0 {
		retries = defaultICMPRetries
	}

	conn, err := icmp.ListenPacket("ip4:icmp", "0.0.0.0")
	if err != nil {
		return nil, err
	}

	return &ICMPSweeper{
		Timeout:     timeout,
		Retries:     retries,
		Concurrency: concurrency,
		identifier:  int(time.Now().UnixNano() & 0xffff),
		conn:        conn,
		pacer:       newLimiterPacer(rateLimit),
	}, nil
}

// Close releases the ICMP listener.
func (s *ICMPSweeper) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}

	return nil
}

// Sweep pings every host in hosts, invoking onFound once per host with its
// final outcome. Concurrency is bounded to s.Concurrency in-flight pings
// (spec.md §4.2, §5).
func (s *ICMPSweeper) Sweep(ctx context.Context, hosts []string, onFound func(PingResult)) error {
	sem := make(chan struct{}, s.Concurrency)

	var wg sync.WaitGroup

	for _, host := range hosts {
		select {
		case <-ctx.Done():
			wg.Wait()
			return ctx.Err()
		case sem <- struct{}{}:
		}

		wg.Add(1)

		go func(host string) {
			defer wg.Done()
			defer func() { <-sem }()

			result := s.pingWithRetries(ctx, host)
			onFound(result)
		}(host)
	}

	wg.Wait()

	return nil
}

func (s *ICMPSweeper) pingWithRetries(ctx context.Context, host string) PingResult {
	for attempt := 0; attempt <= s.Retries; attempt++ {
		if ok, latency := s.pingOnce(ctx, host); ok {
			return PingResult{Host: host, Alive: true, LatencyMs: latency}
		}
	}

	return PingResult{Host: host, Alive: false}
}

func (s *ICMPSweeper) pingOnce(ctx context.Context, host string) (bool, float64) {
	ip := net.ParseIP(host)
	if ip == nil || ip.To4() == nil {
		log.Printf("icmp: invalid IPv4 address %q", host)
		return false, 0
	}

	seq := int(time.Now().UnixNano() & 0xffff)

	msg := icmp.Message{
		Type: ipv4.ICMPTypeEcho,
		Code: 0,
		Body: &icmp.Echo{ID: s.identifier, Seq: seq, Data: []byte("subnetradar")},
	}

	data, err := msg.Marshal(nil)
	if err != nil {
		return false, 0
	}

	if err := s.pacer.wait(ctx); err != nil {
		return false, 0
	}

	start := time.Now()

	if _, err := s.conn.WriteTo(data, &net.IPAddr{IP: ip}); err != nil {
		return false, 0
	}

	deadline := time.Now().Add(s.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	buf := make([]byte, icmpReadBudget)

	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return false, 0
		}

		if err := s.conn.SetReadDeadline(time.Now().Add(remaining)); err != nil {
			return false, 0
		}

		n, peer, err := s.conn.ReadFrom(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				return false, 0
			}

			return false, 0
		}

		if peer == nil || peer.String() != ip.String() {
			continue
		}

		reply, err := icmp.ParseMessage(1, buf[:n])
		if err != nil {
			continue
		}

		echo, ok := reply.Body.(*icmp.Echo)
		if !ok || reply.Type != ipv4.ICMPTypeEchoReply || echo.ID != s.identifier || echo.Seq != seq {
			continue
		}

		return true, float64(time.Since(start).Microseconds()) / 1000.0
	}
}

// limiterPacer paces ICMP sends across a batch at a fixed rate. Separated
// out so Sweep's per-target goroutines can optionally wait on it before
// transmitting, bounding total packets/sec independent of concurrency.
type limiterPacer struct {
	limiter *rate.Limiter
}

func newLimiterPacer(packetsPerSecond int) *limiterPacer {
	if packetsPerSecond <= 0 {
		packetsPerSecond = 1000
	}

	return &limiterPacer{limiter: rate.NewLimiter(rate.Limit(packetsPerSecond), packetsPerSecond/10+1)}
}

func (p *limiterPacer) wait(ctx context.Context) error {
	return p.limiter.Wait(ctx)
}
