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

package commands

import (
	"context"
	"testing"

	"github.com/jaycherian/gcp-go-video-compliance/internal/cloud"
	"github.com/jaycherian/gcp-go-video-compliance/internal/core/cor"
	test "github.com/jaycherian/gcp-go-video-compliance/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVideoTriggerParsesNotification(t *testing.T) {
	cmd := NewVideoTriggerToGCSObject("video-trigger-test")

	chainCtx := cor.NewBaseContext()
	defer chainCtx.Close()
	chainCtx.SetContext(context.Background())
	chainCtx.Add(cor.CtxIn, test.GetTestVideoNotificationText())

	cmd.Execute(chainCtx)
	require.False(t, chainCtx.HasErrors())

	obj, ok := chainCtx.Get(cloud.GetGCSObjectName()).(*cloud.GCSObject)
	require.True(t, ok)
	assert.Equal(t, "video_compliance_intake", obj.Bucket)
	assert.Equal(t, "night-shift-trailer.mp4", obj.Name)
	assert.Equal(t, "video/mp4", obj.MIMEType)
	assert.Equal(t, "gs://video_compliance_intake/night-shift-trailer.mp4", obj.URI())

	// The piped output carries the same reference for the next command.
	assert.Equal(t, obj, chainCtx.Get(cmd.GetOutputParam()))
}

func TestVideoTriggerRejectsGarbage(t *testing.T) {
	cmd := NewVideoTriggerToGCSObject("video-trigger-garbage-test")

	chainCtx := cor.NewBaseContext()
	defer chainCtx.Close()
	chainCtx.SetContext(context.Background())
	chainCtx.Add(cor.CtxIn, "this is not a notification")

	cmd.Execute(chainCtx)
	assert.True(t, chainCtx.HasErrors())
}
