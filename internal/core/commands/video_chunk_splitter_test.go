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
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jaycherian/gcp-go-video-compliance/internal/core/cor"
	"github.com/jaycherian/gcp-go-video-compliance/internal/core/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeSegmenterStub installs a shell script standing in for ffmpeg. It
// records the argv it was invoked with and fabricates two chunk files from
// the output pattern, which is always the last argument.
func writeSegmenterStub(t *testing.T) (stubPath string, argvPath string) {
	t.Helper()
	dir := t.TempDir()
	stubPath = filepath.Join(dir, "segmenter.sh")
	argvPath = filepath.Join(dir, "argv.txt")

	script := `#!/bin/sh
dir=$(dirname "$0")
printf '%s\n' "$@" > "$dir/argv.txt"
for a in "$@"; do last="$a"; done
: > "$(printf "$last" 0)"
: > "$(printf "$last" 1)"
`
	require.NoError(t, os.WriteFile(stubPath, []byte(script), 0o755))
	return stubPath, argvPath
}

func TestVideoChunkSplitterKeepsSpaceyPathIntact(t *testing.T) {
	stubPath, argvPath := writeSegmenterStub(t)

	// Staged filenames keep their spaces, so the splitter must not let the
	// input path be broken apart on its way to the segmenter.
	localPath := filepath.Join(t.TempDir(), "my holiday video.mp4")
	require.NoError(t, os.WriteFile(localPath, []byte("not really a video"), 0o644))

	cmd := NewVideoChunkSplitter("chunk-splitter-test", stubPath, 300)

	chainCtx := cor.NewBaseContext()
	defer chainCtx.Close()
	chainCtx.SetContext(context.Background())
	chainCtx.Add(GetAnalysisRequestParamName(), &model.AnalysisRequest{
		VideoID:   "vid-1",
		Title:     "my holiday video",
		LocalPath: localPath,
		MIMEType:  "video/mp4",
	})

	cmd.Execute(chainCtx)
	require.False(t, chainCtx.HasErrors(), "errors: %v", chainCtx.GetErrors())

	data, err := os.ReadFile(argvPath)
	require.NoError(t, err)
	argv := strings.Split(strings.TrimRight(string(data), "\n"), "\n")

	// The full input path must arrive as one argv element, right after -i.
	assert.Contains(t, argv, localPath)
	for i, a := range argv {
		if a == "-i" {
			require.Less(t, i+1, len(argv))
			assert.Equal(t, localPath, argv[i+1])
		}
	}

	chunks, ok := chainCtx.Get(cmd.GetOutputParam()).([]string)
	require.True(t, ok)
	require.Len(t, chunks, 2)
	// The segment muxer numbers files sequentially; lexical order is chunk order.
	assert.True(t, strings.HasSuffix(chunks[0], "chunk_000.mp4"))
	assert.True(t, strings.HasSuffix(chunks[1], "chunk_001.mp4"))
}

func TestVideoChunkSplitterReportsUnlistableChunks(t *testing.T) {
	stubPath, _ := writeSegmenterStub(t)

	// An extension with a glob metacharacter makes the chunk listing fail;
	// that failure must stay distinguishable from "zero chunks".
	localPath := filepath.Join(t.TempDir(), "odd.m[4")
	require.NoError(t, os.WriteFile(localPath, []byte("x"), 0o644))

	cmd := NewVideoChunkSplitter("chunk-splitter-glob-test", stubPath, 300)

	chainCtx := cor.NewBaseContext()
	defer chainCtx.Close()
	chainCtx.SetContext(context.Background())
	chainCtx.Add(GetAnalysisRequestParamName(), &model.AnalysisRequest{
		VideoID:   "vid-3",
		Title:     "odd",
		LocalPath: localPath,
		MIMEType:  "video/mp4",
	})

	cmd.Execute(chainCtx)
	require.True(t, chainCtx.HasErrors())
	for _, e := range chainCtx.GetErrors() {
		assert.Contains(t, e.Error(), "failed to list chunks")
	}
}

func TestVideoChunkSplitterFailsWhenNoChunksProduced(t *testing.T) {
	dir := t.TempDir()
	stubPath := filepath.Join(dir, "noop.sh")
	require.NoError(t, os.WriteFile(stubPath, []byte("#!/bin/sh\nexit 0\n"), 0o755))

	localPath := filepath.Join(t.TempDir(), "empty.mp4")
	require.NoError(t, os.WriteFile(localPath, []byte("x"), 0o644))

	cmd := NewVideoChunkSplitter("chunk-splitter-empty-test", stubPath, 300)

	chainCtx := cor.NewBaseContext()
	defer chainCtx.Close()
	chainCtx.SetContext(context.Background())
	chainCtx.Add(GetAnalysisRequestParamName(), &model.AnalysisRequest{
		VideoID:   "vid-2",
		Title:     "empty",
		LocalPath: localPath,
		MIMEType:  "video/mp4",
	})

	cmd.Execute(chainCtx)
	require.True(t, chainCtx.HasErrors())
	for _, e := range chainCtx.GetErrors() {
		assert.Contains(t, e.Error(), "no chunks produced")
	}
}
