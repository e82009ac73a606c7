// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package model defines the core data structures for the application.
// This file holds the timecode arithmetic used by the chunked analysis
// workflow. When a long video is split into fixed-duration chunks, the
// model reports issue positions relative to the start of each chunk;
// these helpers translate those chunk-local positions back onto the
// timeline of the whole video.
package model

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseTimecode converts an "HH:MM:SS" or "MM:SS" string into total seconds.
// Both forms appear in model output; hour components are always honored.
func ParseTimecode(timecode string) (int, error) {
	parts := strings.Split(strings.TrimSpace(timecode), ":")
	switch len(parts) {
	case 2:
		parts = append([]string{"0"}, parts...)
	case 3:
		// Already HH:MM:SS.
	default:
		return 0, fmt.Errorf("invalid timecode %q", timecode)
	}
	total := 0
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || n < 0 {
			return 0, fmt.Errorf("invalid timecode %q", timecode)
		}
		total = total*60 + n
	}
	return total, nil
}

// FormatTimecode renders a number of seconds as a zero-padded "HH:MM:SS" string.
func FormatTimecode(totalSeconds int) string {
	if totalSeconds < 0 {
		totalSeconds = 0
	}
	hours := totalSeconds / 3600
	minutes := (totalSeconds % 3600) / 60
	seconds := totalSeconds % 60
	return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, seconds)
}

// ToGlobalTimecode translates a chunk-local timecode to the timeline of the
// full video: global = chunkIndex * chunkDurationSeconds + local.
func ToGlobalTimecode(local string, chunkIndex int, chunkDurationSeconds int) (string, error) {
	localSeconds, err := ParseTimecode(local)
	if err != nil {
		return "", err
	}
	return FormatTimecode(chunkIndex*chunkDurationSeconds + localSeconds), nil
}
