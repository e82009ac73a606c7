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

// Package commands provides the concrete implementations of the Chain of
// Responsibility (COR) pattern's Command interface. This file defines the
// command for splitting a long video into fixed-duration chunks with FFmpeg.
//
// Logic Flow:
// Long videos overflow what a single model invocation can usefully review,
// so the chunked workflow first cuts the video into segments of a
// configured duration and analyzes each segment independently. The split
// uses stream copy (no re-encoding), so it is fast and lossless, and
// `-reset_timestamps 1` makes each chunk's timeline start at zero. That
// reset is what allows per-chunk timecodes to be translated back to the
// full-video timeline by adding chunkIndex * chunkDuration.
//
//  1. It retrieves the `model.AnalysisRequest` from the context, which
//     carries the local path of the acquired video.
//  2. It creates a scratch directory and runs FFmpeg's segment muxer
//     against it.
//  3. It collects the produced chunk files, sorted by name. The segment
//     muxer numbers the files sequentially, so lexical order is chunk
//     order.
//  4. The ordered chunk paths are placed into the context, and every chunk
//     file is registered for cleanup at the end of the workflow.
package commands

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jaycherian/gcp-go-video-compliance/internal/core/cor"
	"github.com/jaycherian/gcp-go-video-compliance/internal/core/model"
)

// Constants used for the FFmpeg segment command execution.
const (
	// DefaultSegmentArgs is a format string for the fixed flags of the FFmpeg
	// segment invocation. The input path and output pattern are appended as
	// discrete argv elements because staged filenames may contain spaces.
	// -c copy -map 0: Stream-copies every input stream, no re-encoding.
	// -f segment -segment_time %d: Cuts the output into segments of the given duration in seconds.
	// -reset_timestamps 1: Restarts each segment's timestamps at zero, which
	//   the timecode translation back to the full-video timeline relies on.
	DefaultSegmentArgs = "-c copy -map 0 -f segment -segment_time %d -reset_timestamps 1"
	ChunkDirPrefix     = "video-chunks-"
	ChunkFilePattern   = "chunk_%03d"
	CommandSeparator   = " "
)

// VideoChunkSplitter is a command implementation that wraps FFmpeg's segment
// muxer to cut a local video into fixed-duration chunks.
type VideoChunkSplitter struct {
	cor.BaseCommand
	commandPath     string // The path to the FFmpeg executable (e.g. "/usr/bin/ffmpeg").
	segmentDuration int    // The duration of each chunk in seconds.
}

// NewVideoChunkSplitter is the constructor for creating a new VideoChunkSplitter.
//
// Inputs:
//   - name: A string name for this command instance, used for logging and telemetry.
//   - commandPath: The file system path to the FFmpeg executable.
//   - segmentDuration: The target chunk duration in seconds.
//
// Outputs:
//   - *VideoChunkSplitter: A pointer to the newly instantiated command.
func NewVideoChunkSplitter(name string, commandPath string, segmentDuration int) *VideoChunkSplitter {
	return &VideoChunkSplitter{
		BaseCommand:     *cor.NewBaseCommand(name),
		commandPath:     commandPath,
		segmentDuration: segmentDuration,
	}
}

// IsExecutable checks that the analysis request is present in the context.
func (c *VideoChunkSplitter) IsExecutable(context cor.Context) bool {
	return context != nil &&
		context.Get(GetAnalysisRequestParamName()) != nil &&
		context.GetContext() != nil
}

// Execute runs the FFmpeg segment muxer and collects the produced chunks.
//
// Inputs:
//   - context: The shared `cor.Context` for this workflow execution.
func (c *VideoChunkSplitter) Execute(context cor.Context) {
	req := context.Get(GetAnalysisRequestParamName()).(*model.AnalysisRequest)

	chunkDir, err := os.MkdirTemp("", ChunkDirPrefix)
	if err != nil {
		c.GetErrorCounter().Add(context.GetContext(), 1)
		context.AddError(c.GetName(), fmt.Errorf("could not create chunk directory: %w", err))
		return
	}

	// Keep the source container format so stream copy stays valid.
	ext := filepath.Ext(req.LocalPath)
	if ext == "" {
		ext = ".mp4"
	}
	outputPattern := filepath.Join(chunkDir, ChunkFilePattern+ext)

	// Paths are passed as single argv elements; only the fixed flags go
	// through the split. Acquired filenames keep their spaces, and a spacey
	// path fed through a space-split would reach ffmpeg truncated.
	args := []string{"-y", "-hide_banner", "-i", req.LocalPath}
	args = append(args, strings.Split(fmt.Sprintf(DefaultSegmentArgs, c.segmentDuration), CommandSeparator)...)
	args = append(args, outputPattern)
	cmd := exec.CommandContext(context.GetContext(), c.commandPath, args...)
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		c.GetErrorCounter().Add(context.GetContext(), 1)
		context.AddError(c.GetName(), fmt.Errorf("error running ffmpeg segment split: %w", err))
		return
	}

	chunks, err := filepath.Glob(filepath.Join(chunkDir, "chunk_*"+ext))
	if err != nil {
		c.GetErrorCounter().Add(context.GetContext(), 1)
		context.AddError(c.GetName(), fmt.Errorf("failed to list chunks in %s: %w", chunkDir, err))
		return
	}
	if len(chunks) == 0 {
		c.GetErrorCounter().Add(context.GetContext(), 1)
		context.AddError(c.GetName(), fmt.Errorf("no chunks produced for %s", req.LocalPath))
		return
	}
	sort.Strings(chunks)

	for _, chunk := range chunks {
		context.AddTempFile(chunk)
	}
	// The directory is registered after its contents so cleanup removes the
	// files first and then the (by now empty) directory.
	context.AddTempFile(chunkDir)
	context.AddTempFile(req.LocalPath)

	c.GetSuccessCounter().Add(context.GetContext(), 1)
	context.Add(c.GetOutputParam(), chunks)
}
