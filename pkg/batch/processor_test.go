package batch

import (
	"context"
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/menta2k/helmet-inspector/pkg/types"
)

// fakeDetector returns a protected and an unprotected head for every image
type fakeDetector struct {
	calls   int
	minConf float64
	err     error
}

func (f *fakeDetector) Detect(ctx context.Context, img image.Image, minConfidence float64) ([]types.Detection, error) {
	f.calls++
	f.minConf = minConfidence
	if f.err != nil {
		return nil, f.err
	}
	return []types.Detection{
		{Label: types.LabelHead, Confidence: 0.9, Box: types.Box{X1: 2, Y1: 2, X2: 20, Y2: 20}},
		{Label: types.LabelHead, Confidence: 0.8, Box: types.Box{X1: 40, Y1: 40, X2: 60, Y2: 60}},
		{Label: types.LabelHelmet, Confidence: 0.7, Box: types.Box{X1: 4, Y1: 2, X2: 18, Y2: 10}},
	}, nil
}

func writeImage(t *testing.T, path string) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, color.RGBA{uint8(x * 4), uint8(y * 4), 128, 255})
		}
	}
	if err := imaging.Save(img, path); err != nil {
		t.Fatal(err)
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestProcessDirFiltersExtensions(t *testing.T) {
	src, dst := t.TempDir(), t.TempDir()
	for _, name := range []string{"a.jpg", "b.jpg", "c.jpg", "d.PNG"} {
		writeImage(t, filepath.Join(src, name))
	}
	writeFile(t, filepath.Join(src, "notes.txt"), "not an image")
	writeFile(t, filepath.Join(src, "readme.txt"), "still not an image")

	det := &fakeDetector{}
	p := NewProcessor(det, zaptest.NewLogger(t).Sugar(), Config{})
	report, err := p.ProcessDir(context.Background(), src, dst)
	if err != nil {
		t.Fatalf("ProcessDir failed: %v", err)
	}

	entries, err := os.ReadDir(dst)
	if err != nil {
		t.Fatal(err)
	}
	var got []string
	for _, e := range entries {
		got = append(got, e.Name())
	}
	want := []string{"processed_a.jpg", "processed_b.jpg", "processed_c.jpg", "processed_d.PNG"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Output files mismatch (-want +got):\n%s", diff)
	}

	if det.calls != 4 {
		t.Errorf("Expected 4 detector calls, got %d", det.calls)
	}
	if det.minConf != DefaultMinConfidence {
		t.Errorf("Expected min confidence %f, got %f", DefaultMinConfidence, det.minConf)
	}
	if report.Protected != 4 || report.Unprotected != 4 {
		t.Errorf("Unexpected counts: protected=%d unprotected=%d", report.Protected, report.Unprotected)
	}
	if len(report.Processed) != 4 || len(report.Skipped) != 0 {
		t.Errorf("Unexpected report: %+v", report)
	}
}

func TestProcessDirSkipsCorruptFiles(t *testing.T) {
	src, dst := t.TempDir(), t.TempDir()
	for _, name := range []string{"1.jpg", "2.jpg", "3.png", "4.jpg", "5.jpg"} {
		writeImage(t, filepath.Join(src, name))
	}
	writeFile(t, filepath.Join(src, "broken.jpg"), "definitely not a jpeg")

	core, logs := observer.New(zapcore.InfoLevel)
	p := NewProcessor(&fakeDetector{}, zap.New(core).Sugar(), Config{})
	report, err := p.ProcessDir(context.Background(), src, dst)
	if err != nil {
		t.Fatalf("ProcessDir should not abort on decode errors: %v", err)
	}

	if len(report.Outputs) != 5 {
		t.Errorf("Expected 5 outputs, got %d", len(report.Outputs))
	}
	if diff := cmp.Diff([]string{filepath.Join(src, "broken.jpg")}, report.Skipped); diff != "" {
		t.Errorf("Skipped mismatch (-want +got):\n%s", diff)
	}

	skips := logs.FilterMessage("skipping file").All()
	if len(skips) != 1 {
		t.Fatalf("Expected one skip log, got %d", len(skips))
	}
	if skips[0].Level != zapcore.WarnLevel {
		t.Errorf("Expected skip at warn level, got %v", skips[0].Level)
	}
	if n := logs.FilterMessage("wrote result").Len(); n != 5 {
		t.Errorf("Expected one log line per output, got %d", n)
	}
}

func TestProcessDirAbortsOnDetectorError(t *testing.T) {
	src, dst := t.TempDir(), t.TempDir()
	writeImage(t, filepath.Join(src, "a.jpg"))
	writeImage(t, filepath.Join(src, "b.jpg"))

	boom := errors.New("invalid tensor")
	det := &fakeDetector{err: boom}
	p := NewProcessor(det, nil, Config{})
	_, err := p.ProcessDir(context.Background(), src, dst)
	if !errors.Is(err, ErrDetection) {
		t.Fatalf("Expected ErrDetection, got %v", err)
	}
	if !errors.Is(err, boom) {
		t.Errorf("Expected underlying error to be preserved, got %v", err)
	}
	if det.calls != 1 {
		t.Errorf("Expected batch to stop after first failure, got %d calls", det.calls)
	}
}

func TestProcessDirSameSourceAndDestination(t *testing.T) {
	dir := t.TempDir()
	writeImage(t, filepath.Join(dir, "a.jpg"))

	p := NewProcessor(&fakeDetector{}, nil, Config{})
	report, err := p.ProcessDir(context.Background(), dir, dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Outputs) != 1 {
		t.Errorf("Expected output not to be reprocessed, got %v", report.Outputs)
	}

	// A second run reprocesses everything, including the earlier output
	report, err = p.ProcessDir(context.Background(), dir, dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Outputs) != 2 {
		t.Errorf("Expected 2 outputs on rerun, got %v", report.Outputs)
	}
}

func TestProcessDirMissingSource(t *testing.T) {
	p := NewProcessor(&fakeDetector{}, nil, Config{})
	if _, err := p.ProcessDir(context.Background(), filepath.Join(t.TempDir(), "absent"), t.TempDir()); err == nil {
		t.Error("Expected error for missing source directory")
	}
}

func TestProcessFileRendersBoxes(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.png")
	out := filepath.Join(dir, "out.png")
	writeImage(t, in)

	p := NewProcessor(&fakeDetector{}, nil, Config{})
	res, err := p.ProcessFile(context.Background(), in, out)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Protected) != 1 || len(res.Unprotected) != 1 {
		t.Fatalf("Unexpected classification: %+v", res)
	}

	img, err := imaging.Open(out)
	if err != nil {
		t.Fatal(err)
	}
	// Left edge of the unprotected box is painted red
	r, g, b, _ := img.At(40, 59).RGBA()
	if r>>8 != 255 || g>>8 != 0 || b>>8 != 0 {
		t.Errorf("Expected red border, got %d,%d,%d", r>>8, g>>8, b>>8)
	}
}
