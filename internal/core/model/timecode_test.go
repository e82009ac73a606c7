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

package model

import (
	"testing"

	"github.com/zeebo/assert"
)

func TestParseTimecode(t *testing.T) {
	seconds, err := ParseTimecode("00:11:10")
	assert.NoError(t, err)
	assert.Equal(t, 670, seconds)

	// Minute-and-second form, as emitted by models for short chunks.
	seconds, err = ParseTimecode("01:10")
	assert.NoError(t, err)
	assert.Equal(t, 70, seconds)

	// Hour components must be honored, not dropped.
	seconds, err = ParseTimecode("01:00:05")
	assert.NoError(t, err)
	assert.Equal(t, 3605, seconds)

	_, err = ParseTimecode("not-a-timecode")
	assert.Error(t, err)

	_, err = ParseTimecode("00:-1:00")
	assert.Error(t, err)
}

func TestFormatTimecode(t *testing.T) {
	assert.Equal(t, "00:11:10", FormatTimecode(670))
	assert.Equal(t, "01:00:00", FormatTimecode(3600))
	assert.Equal(t, "00:00:00", FormatTimecode(0))
}

func TestToGlobalTimecode(t *testing.T) {
	// Third chunk of a 300 second split: 600s offset + 70s local.
	global, err := ToGlobalTimecode("01:10", 2, 300)
	assert.NoError(t, err)
	assert.Equal(t, "00:11:10", global)

	// First chunk is identity.
	global, err = ToGlobalTimecode("00:00:42", 0, 300)
	assert.NoError(t, err)
	assert.Equal(t, "00:00:42", global)

	// Hour-bearing local timecodes offset correctly.
	global, err = ToGlobalTimecode("01:00:05", 1, 300)
	assert.NoError(t, err)
	assert.Equal(t, "01:05:05", global)

	_, err = ToGlobalTimecode("bogus", 1, 300)
	assert.Error(t, err)
}
