/*
 * This file is part of Loqa (https://github.com/loqalabs/loqa).
 * Copyright (C) 2025 Loqa Labs
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program. If not, see <https://www.gnu.org/licenses/>.
 */

// Package health tracks which backing services the agent can currently reach.
package health

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/loqalabs/loqa-orbit/internal/logging"
)

// Check reports a service as reachable by returning nil
type Check func(ctx context.Context) error

// ServiceStatus is the last observed state of one service
type ServiceStatus struct {
	Available bool          `json:"available"`
	Latency   time.Duration `json:"latency"`
	Error     string        `json:"error,omitempty"`
}

// HardwareInfo contains host information
type HardwareInfo struct {
	CPUCores     int    `json:"cpu_cores"`
	Architecture string `json:"architecture"`
	OS           string `json:"os"`
}

// Capabilities is a snapshot of service availability. Degraded is set when
// any service is down; the agent keeps answering in that case, with
// fallbacks.
type Capabilities struct {
	Services          map[string]ServiceStatus `json:"services"`
	Hardware          HardwareInfo             `json:"hardware"`
	LastDetected      time.Time                `json:"last_detected"`
	Degraded          bool                     `json:"degraded"`
	DegradationReason string                   `json:"degradation_reason,omitempty"`
}

type namedCheck struct {
	name  string
	check Check
}

// Detector periodically probes the configured services
type Detector struct {
	mutex        sync.RWMutex
	capabilities Capabilities
	checks       []namedCheck

	detectionInterval time.Duration
	healthTimeout     time.Duration
	client            *http.Client

	onDegradation func(reason string)
}

// NewDetector creates a detector with no services registered
func NewDetector(interval, timeout time.Duration) *Detector {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Detector{
		detectionInterval: interval,
		healthTimeout:     timeout,
		client:            &http.Client{Timeout: timeout},
		capabilities: Capabilities{
			Services:     map[string]ServiceStatus{},
			Hardware:     detectHardware(),
			LastDetected: time.Now(),
		},
	}
}

// AddCheck registers a service probed with check
func (d *Detector) AddCheck(name string, check Check) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.checks = append(d.checks, namedCheck{name: name, check: check})
}

// AddHTTP registers a service that is healthy when url answers 2xx
func (d *Detector) AddHTTP(name, url string) {
	d.AddCheck(name, func(ctx context.Context) error {
		return d.checkServiceHealth(ctx, url)
	})
}

// OnDegradation sets a callback invoked when detection finds a service down
func (d *Detector) OnDegradation(fn func(reason string)) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.onDegradation = fn
}

// Start runs detection now and then every interval until ctx is done
func (d *Detector) Start(ctx context.Context) {
	d.Detect(ctx)

	ticker := time.NewTicker(d.detectionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.Detect(ctx)
		}
	}
}

// Detect probes every registered service and stores the result
func (d *Detector) Detect(ctx context.Context) Capabilities {
	d.mutex.RLock()
	checks := append([]namedCheck(nil), d.checks...)
	d.mutex.RUnlock()

	services := make(map[string]ServiceStatus, len(checks))
	var degradationReason string

	for _, c := range checks {
		status := d.probe(ctx, c.check)
		services[c.name] = status
		if !status.Available && degradationReason == "" {
			degradationReason = fmt.Sprintf("%s service unavailable", c.name)
		}
	}

	d.mutex.Lock()
	d.capabilities = Capabilities{
		Services:          services,
		Hardware:          d.capabilities.Hardware,
		LastDetected:      time.Now(),
		Degraded:          degradationReason != "",
		DegradationReason: degradationReason,
	}
	caps := d.capabilities
	onDegradation := d.onDegradation
	d.mutex.Unlock()

	fields := []any{"degraded", caps.Degraded}
	for _, c := range checks {
		fields = append(fields, c.name+"_available", services[c.name].Available)
	}
	logging.Sugar.Infow("Health detection completed", fields...)

	if caps.Degraded && onDegradation != nil {
		go onDegradation(degradationReason)
	}

	return caps
}

func (d *Detector) probe(ctx context.Context, check Check) ServiceStatus {
	healthCtx, cancel := context.WithTimeout(ctx, d.healthTimeout)
	defer cancel()

	start := time.Now()
	err := check(healthCtx)
	status := ServiceStatus{Available: err == nil, Latency: time.Since(start)}
	if err != nil {
		status.Error = err.Error()
	}
	return status
}

func (d *Detector) checkServiceHealth(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}
	return nil
}

func detectHardware() HardwareInfo {
	return HardwareInfo{
		CPUCores:     runtime.NumCPU(),
		Architecture: runtime.GOARCH,
		OS:           runtime.GOOS,
	}
}

// Capabilities returns the last detection result
func (d *Detector) Capabilities() Capabilities {
	d.mutex.RLock()
	defer d.mutex.RUnlock()
	return d.capabilities
}

// IsDegraded reports whether the last detection found a service down
func (d *Detector) IsDegraded() bool {
	d.mutex.RLock()
	defer d.mutex.RUnlock()
	return d.capabilities.Degraded
}
