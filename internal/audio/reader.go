package audio

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"lukechampine.com/blake3"
)

// Metadata describes an uploaded audio file. It is produced once per request
// and immutable afterwards.
type Metadata struct {
	FileName    string  `json:"file_name"`
	Format      string  `json:"audio_format"`
	Channels    int     `json:"channel"`
	SampleRate  int     `json:"sample_rate"`
	Duration    float64 `json:"duration"`
	ContentHash string  `json:"content_hash,omitempty"`
}

// Reader extracts container metadata from uploaded audio bytes. WAV payloads
// are probed natively; everything else goes through ffprobe, the same probe
// the original deployment used underneath pydub.
type Reader struct {
	ffprobePath string
}

// NewReader creates a metadata reader. ffprobePath may be empty, in which
// case "ffprobe" is resolved from PATH.
func NewReader(ffprobePath string) *Reader {
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &Reader{ffprobePath: ffprobePath}
}

// Read validates the declared content type, probes container metadata and
// returns an independent copy of the upload bytes. The copy means no
// downstream stage depends on the upload handle's lifetime.
func (r *Reader) Read(ctx context.Context, fileName, contentType string, data []byte) (*Metadata, []byte, error) {
	if !strings.HasPrefix(contentType, "audio/") {
		return nil, nil, fmt.Errorf("file must be an audio file, got content type %q", contentType)
	}

	if len(data) == 0 {
		return nil, nil, fmt.Errorf("uploaded file is empty")
	}

	meta := &Metadata{
		FileName: filepath.Base(fileName),
	}

	if IsWAV(data) {
		info, err := GetWAVInfo(data)
		if err != nil {
			return nil, nil, fmt.Errorf("error while reading audio file: %w", err)
		}
		meta.Format = "wav"
		meta.Channels = info.Channels
		meta.SampleRate = info.SampleRate
		meta.Duration = info.Duration
	} else {
		if err := r.probe(ctx, data, meta); err != nil {
			return nil, nil, fmt.Errorf("error while reading audio file: %w", err)
		}
	}

	hash := blake3.Sum256(data)
	meta.ContentHash = hex.EncodeToString(hash[:])

	raw := make([]byte, len(data))
	copy(raw, data)

	return meta, raw, nil
}

// ffprobe JSON output, limited to the fields the pipeline needs
type probeOutput struct {
	Format struct {
		FormatName string `json:"format_name"`
		Duration   string `json:"duration"`
	} `json:"format"`
	Streams []struct {
		CodecType  string `json:"codec_type"`
		Channels   int    `json:"channels"`
		SampleRate string `json:"sample_rate"`
		Duration   string `json:"duration"`
	} `json:"streams"`
}

func (r *Reader) probe(ctx context.Context, data []byte, meta *Metadata) error {
	cmd := exec.CommandContext(ctx, r.ffprobePath,
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		"pipe:0",
	)
	cmd.Stdin = bytes.NewReader(data)

	out, err := cmd.Output()
	if err != nil {
		return fmt.Errorf("ffprobe failed: %w", err)
	}

	var probed probeOutput
	if err := json.Unmarshal(out, &probed); err != nil {
		return fmt.Errorf("failed to parse ffprobe output: %w", err)
	}

	var found bool
	for _, s := range probed.Streams {
		if s.CodecType != "audio" {
			continue
		}
		meta.Channels = s.Channels
		meta.SampleRate, _ = strconv.Atoi(s.SampleRate)
		if s.Duration != "" {
			meta.Duration, _ = strconv.ParseFloat(s.Duration, 64)
		}
		found = true
		break
	}
	if !found {
		return fmt.Errorf("no audio stream found in file")
	}

	// format_name may list aliases ("mov,mp4,m4a,..."); keep the first
	meta.Format = strings.ToLower(strings.Split(probed.Format.FormatName, ",")[0])
	if meta.Duration == 0 && probed.Format.Duration != "" {
		meta.Duration, _ = strconv.ParseFloat(probed.Format.Duration, 64)
	}

	if meta.Channels < 1 || meta.SampleRate <= 0 {
		return fmt.Errorf("missing stream info (channels=%d, sample_rate=%d)", meta.Channels, meta.SampleRate)
	}

	return nil
}
