package artifact_test

import (
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/discursa/discursa/internal/artifact"
)

// wavHeader holds the fields of a parsed 44-byte WAV header.
type wavHeader struct {
	riff       string
	wave       string
	channels   int
	sampleRate int
	dataSize   int
}

// readWAVHeader parses the header of the WAV file at path.
func readWAVHeader(t *testing.T, path string) (wavHeader, int) {
	t.Helper()
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	if len(raw) < 44 {
		t.Fatalf("%s: %d bytes, want at least 44", path, len(raw))
	}
	return wavHeader{
		riff:       string(raw[0:4]),
		wave:       string(raw[8:12]),
		channels:   int(binary.LittleEndian.Uint16(raw[22:24])),
		sampleRate: int(binary.LittleEndian.Uint32(raw[24:28])),
		dataSize:   int(binary.LittleEndian.Uint32(raw[40:44])),
	}, len(raw)
}

// stereoPCM returns n stereo frames (4 bytes each) of non-silent PCM.
func stereoPCM(n int) []byte {
	buf := make([]byte, n*4)
	for i := range n {
		binary.LittleEndian.PutUint16(buf[i*4:], uint16(int16(100+i)))
		binary.LittleEndian.PutUint16(buf[i*4+2:], uint16(int16(-100-i)))
	}
	return buf
}

// TestPipeline_ConvertWritesWAV verifies the happy path: every speaker gets
// a parseable 16 kHz mono WAV file and a cleanup entry.
func TestPipeline_ConvertWritesWAV(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	p, err := artifact.New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	batch := map[string][]byte{
		"alice": stereoPCM(480),
		"bob":   stereoPCM(480),
	}
	paths, created, err := p.Convert(context.Background(), batch)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if len(paths) != 2 {
		t.Fatalf("paths: want 2 speakers, got %d", len(paths))
	}
	if len(created) != 2 {
		t.Fatalf("created: want 2 files, got %d", len(created))
	}

	for speaker, path := range paths {
		hdr, size := readWAVHeader(t, path)
		if hdr.riff != "RIFF" || hdr.wave != "WAVE" {
			t.Errorf("%s: bad header tags %q %q", speaker, hdr.riff, hdr.wave)
		}
		if hdr.channels != 1 {
			t.Errorf("%s: channels = %d, want 1", speaker, hdr.channels)
		}
		if hdr.sampleRate != 16000 {
			t.Errorf("%s: sample rate = %d, want 16000", speaker, hdr.sampleRate)
		}
		if hdr.dataSize != size-44 {
			t.Errorf("%s: data size %d does not match file size %d", speaker, hdr.dataSize, size)
		}
		// 480 stereo frames at 48kHz → 480 mono samples → 160 samples at 16kHz.
		if want := 160 * 2; hdr.dataSize != want {
			t.Errorf("%s: data size = %d, want %d", speaker, hdr.dataSize, want)
		}
	}
}

// TestPipeline_StereoPassthrough verifies that disabling the mono downmix
// keeps both channels.
func TestPipeline_StereoPassthrough(t *testing.T) {
	t.Parallel()

	p, err := artifact.New(t.TempDir(), artifact.WithMono(false))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	paths, created, err := p.Convert(context.Background(), map[string][]byte{
		"alice": stereoPCM(480),
	})
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	defer p.Cleanup(created)

	hdr, _ := readWAVHeader(t, paths["alice"])
	if hdr.channels != 2 {
		t.Errorf("channels = %d, want 2", hdr.channels)
	}
	if hdr.sampleRate != 16000 {
		t.Errorf("sample rate = %d, want 16000", hdr.sampleRate)
	}
}

// TestPipeline_EmptyBatch verifies that an empty batch yields an empty map
// and no files without error.
func TestPipeline_EmptyBatch(t *testing.T) {
	t.Parallel()

	p, err := artifact.New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	paths, created, err := p.Convert(context.Background(), map[string][]byte{})
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if len(paths) != 0 {
		t.Errorf("paths: want empty, got %d", len(paths))
	}
	if len(created) != 0 {
		t.Errorf("created: want empty, got %d", len(created))
	}
}

// TestPipeline_SpeakerFailureDropsOnlyThatSpeaker verifies that one
// unconvertible speaker does not affect the rest of the batch.
func TestPipeline_SpeakerFailureDropsOnlyThatSpeaker(t *testing.T) {
	t.Parallel()

	p, err := artifact.New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	// The slash makes the artifact path point into a directory that does
	// not exist, so file creation fails for this speaker only.
	batch := map[string][]byte{
		"alice":       stereoPCM(480),
		"bad/speaker": stereoPCM(480),
	}
	paths, created, err := p.Convert(context.Background(), batch)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if len(paths) != 1 {
		t.Fatalf("paths: want 1 surviving speaker, got %d", len(paths))
	}
	if _, ok := paths["alice"]; !ok {
		t.Error("paths: alice missing")
	}
	if len(created) != 1 {
		t.Errorf("created: want 1 file, got %d", len(created))
	}
}

// TestPipeline_Cleanup verifies that cleanup removes files and tolerates
// already-removed ones.
func TestPipeline_Cleanup(t *testing.T) {
	t.Parallel()

	p, err := artifact.New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, created, err := p.Convert(context.Background(), map[string][]byte{
		"alice": stereoPCM(480),
	})
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if len(created) != 1 {
		t.Fatalf("created: want 1 file, got %d", len(created))
	}

	p.Cleanup(created)
	if _, err := os.Stat(created[0]); !os.IsNotExist(err) {
		t.Errorf("artifact still exists after cleanup: %v", err)
	}

	// Cleaning up again must not panic or log spuriously for missing files.
	p.Cleanup(created)
	p.Cleanup([]string{filepath.Join(t.TempDir(), "never-existed.wav")})
}

// TestPipeline_ContextCancelled verifies that a cancelled context aborts the
// batch before any conversion.
func TestPipeline_ContextCancelled(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	p, err := artifact.New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, created, err := p.Convert(ctx, map[string][]byte{"alice": stereoPCM(480)})
	if err == nil {
		t.Fatal("Convert: expected error for cancelled context")
	}
	if len(created) != 0 {
		t.Errorf("created: want no files, got %d", len(created))
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("artifact dir: want empty, got %d entries", len(entries))
	}
}

// TestPipeline_UniqueNames verifies that artifact names never collide across
// batches converted in the same second.
func TestPipeline_UniqueNames(t *testing.T) {
	t.Parallel()

	p, err := artifact.New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	seen := make(map[string]bool)
	for range 3 {
		paths, created, err := p.Convert(context.Background(), map[string][]byte{
			"alice": stereoPCM(480),
			"bob":   stereoPCM(480),
		})
		if err != nil {
			t.Fatalf("Convert: %v", err)
		}
		for _, path := range paths {
			if seen[path] {
				t.Errorf("duplicate artifact path %s", path)
			}
			seen[path] = true
		}
		p.Cleanup(created)
	}
}

// TestNew_CreatesDir verifies that the artifact directory is created on
// construction.
func TestNew_CreatesDir(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "nested", "artifacts")
	if _, err := artifact.New(dir); err != nil {
		t.Fatalf("New: %v", err)
	}
	info, err := os.Stat(dir)
	if err != nil {
		t.Fatalf("stat %s: %v", dir, err)
	}
	if !info.IsDir() {
		t.Errorf("%s is not a directory", dir)
	}
}
