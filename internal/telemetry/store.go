// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package telemetry

import (
	"sync"
	"time"

	"github.com/relabs-tech/leveler/internal/imu"
)

// Frame is one published control cycle.
type Frame struct {
	Seq      uint64           `json:"seq"`
	Time     time.Time        `json:"time"`
	Raw      imu.RawSample    `json:"raw"`
	Sample   imu.ScaledSample `json:"sample"`
	Baseline imu.ScaledSample `json:"baseline"`
	Pattern  uint8            `json:"pattern"`
	Duty     uint16           `json:"duty"`
	State    string           `json:"state"`
	Stopped  bool             `json:"stopped"`
}

// Store holds the latest frame for the mirrors.
type Store struct {
	mu    sync.RWMutex
	frame Frame
	have  bool
}

// Put replaces the latest frame and assigns its sequence number.
func (s *Store) Put(f Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f.Seq = s.frame.Seq + 1
	s.frame = f
	s.have = true
}

// Latest returns a copy of the latest frame, or false when none was stored.
func (s *Store) Latest() (Frame, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.frame, s.have
}

// SetStopped flags the latest frame while a safety hold is active, so the
// mirrors show the stop even though the control loop is not publishing.
func (s *Store) SetStopped(stopped bool, pattern uint8) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.have || s.frame.Stopped == stopped {
		return
	}
	s.frame.Seq++
	s.frame.Stopped = stopped
	s.frame.Pattern = pattern
	s.frame.Time = time.Now()
}
