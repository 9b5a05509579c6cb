package stage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/menta2k/plate-processor/pkg/types"
)

func writeStage(dir string, calls *atomic.Int32, data string) Stage {
	return Stage{
		Name: "write",
		Output: func(_ context.Context, in string) (string, error) {
			return filepath.Join(dir, in+".txt"), nil
		},
		Run: func(_ context.Context, in, tmp string) error {
			calls.Add(1)
			return os.WriteFile(tmp, []byte(data), 0o644)
		},
	}
}

func TestRunProducesThenSkips(t *testing.T) {
	dir := t.TempDir()
	var calls atomic.Int32
	r := NewRunner(nil, "")
	s := writeStage(dir, &calls, "artifact")

	first := r.Run(context.Background(), s, "plate01")
	if first.Outcome != types.OutcomeOK {
		t.Fatalf("Expected ok, got %s: %v", first.Outcome, first.Err)
	}
	if first.Output != filepath.Join(dir, "plate01.txt") {
		t.Errorf("Unexpected output %s", first.Output)
	}

	second := r.Run(context.Background(), s, "plate01")
	if second.Outcome != types.OutcomeSkipped || second.Output != first.Output {
		t.Errorf("Expected skip with the same output, got %+v", second)
	}
	if calls.Load() != 1 {
		t.Errorf("Expected exactly one run, got %d", calls.Load())
	}
}

func TestRunLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	var calls atomic.Int32
	r := NewRunner(nil, "")
	r.Run(context.Background(), writeStage(dir, &calls, "x"), "a")

	failing := writeStage(dir, &calls, "x")
	failing.Run = func(_ context.Context, _, tmp string) error {
		os.WriteFile(tmp, []byte("partial"), 0o644)
		return errors.New("encoder exploded")
	}
	res := r.Run(context.Background(), failing, "b")
	if res.Outcome != types.OutcomeFailed || res.Error == "" {
		t.Errorf("Expected a failure with a message, got %+v", res)
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 || entries[0].Name() != "a.txt" {
		var names []string
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("Expected only a.txt, got %v", names)
	}
}

func TestRunWarning(t *testing.T) {
	errNothing := errors.New("nothing to see")
	s := Stage{
		Name:   "detect",
		Output: func(_ context.Context, in string) (string, error) { return filepath.Join(t.TempDir(), in), nil },
		Run:    func(context.Context, string, string) error { return Warning(errNothing) },
	}

	res := NewRunner(nil, "").Run(context.Background(), s, "x")
	if res.Outcome != types.OutcomeWarn {
		t.Errorf("Expected warn, got %s", res.Outcome)
	}
	if !errors.Is(res.Err, errNothing) {
		t.Errorf("Warning should unwrap to the cause, got %v", res.Err)
	}
	if Warning(nil) != nil {
		t.Error("Warning(nil) should be nil")
	}
}

func TestRunOutputError(t *testing.T) {
	s := Stage{
		Name:   "label",
		Output: func(context.Context, string) (string, error) { return "", errors.New("no label") },
		Run: func(context.Context, string, string) error {
			t.Fatal("Run should not be called")
			return nil
		},
	}
	if res := NewRunner(nil, "").Run(context.Background(), s, "x"); res.Outcome != types.OutcomeFailed {
		t.Errorf("Expected failure, got %s", res.Outcome)
	}
}

func TestRunNoArtifact(t *testing.T) {
	s := Stage{
		Name:   "lazy",
		Output: func(_ context.Context, in string) (string, error) { return filepath.Join(t.TempDir(), in), nil },
		Run:    func(context.Context, string, string) error { return nil },
	}
	if res := NewRunner(nil, "").Run(context.Background(), s, "x"); res.Outcome != types.OutcomeFailed {
		t.Errorf("A stage writing nothing should fail, got %s", res.Outcome)
	}
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls atomic.Int32
	res := NewRunner(nil, "").Run(ctx, writeStage(t.TempDir(), &calls, "x"), "a")
	if res.Outcome != types.OutcomeFailed || !errors.Is(res.Err, context.Canceled) {
		t.Errorf("Expected a cancelled failure, got %+v", res)
	}
}

func TestOwnsRejectsForeignOutput(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "shared.txt")
	if err := os.WriteFile(out, []byte("someone else"), 0o644); err != nil {
		t.Fatal(err)
	}

	errTaken := errors.New("taken")
	s := Stage{
		Name:   "label",
		Output: func(context.Context, string) (string, error) { return out, nil },
		Run:    func(context.Context, string, string) error { return nil },
		Owns: func(in, out string) error {
			if in == "owner" {
				return nil
			}
			return errTaken
		},
	}

	r := NewRunner(nil, "")
	if res := r.Run(context.Background(), s, "owner"); res.Outcome != types.OutcomeSkipped {
		t.Errorf("Owner should skip, got %s", res.Outcome)
	}
	if res := r.Run(context.Background(), s, "intruder"); !errors.Is(res.Err, errTaken) {
		t.Errorf("Intruder should fail with the Owns error, got %v", res.Err)
	}
}

func TestExclusivePublishRace(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "label.txt")
	errTaken := errors.New("taken")

	s := Stage{
		Name:   "label",
		Output: func(context.Context, string) (string, error) { return out, nil },
		Run: func(_ context.Context, in, tmp string) error {
			// Another process wins between the existence check and the publish
			os.WriteFile(out, []byte("winner"), 0o644)
			return os.WriteFile(tmp, []byte(in), 0o644)
		},
		Owns:      func(string, string) error { return errTaken },
		Exclusive: true,
	}

	res := NewRunner(nil, "").Run(context.Background(), s, "loser")
	if !errors.Is(res.Err, errTaken) {
		t.Errorf("Expected the ownership error, got %+v", res)
	}
	data, _ := os.ReadFile(out)
	if string(data) != "winner" {
		t.Errorf("Exclusive publish replaced the existing file: %q", data)
	}
}

func TestLockedRunsAreSerialized(t *testing.T) {
	dir := t.TempDir()
	lockDir := filepath.Join(dir, ".locks")
	var calls atomic.Int32
	s := writeStage(dir, &calls, "x")

	var wg sync.WaitGroup
	results := make([]Result, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = NewRunner(nil, lockDir).Run(context.Background(), s, "same")
		}(i)
	}
	wg.Wait()

	if calls.Load() != 1 {
		t.Errorf("Expected one producer, got %d", calls.Load())
	}
	for _, res := range results {
		if !res.Outcome.Succeeded() {
			t.Errorf("Unexpected outcome %+v", res)
		}
	}
}

func TestTempPath(t *testing.T) {
	tmp := TempPath(filepath.Join("out", "StrainA_Day_3.tiff"))
	if filepath.Dir(tmp) != "out" {
		t.Errorf("Temp file should be a sibling, got %s", tmp)
	}
	base := filepath.Base(tmp)
	if !strings.HasPrefix(base, ".StrainA_Day_3.") || filepath.Ext(base) != ".tiff" {
		t.Errorf("Unexpected temp name %s", base)
	}
	if !IsTemp(tmp) || IsTemp("StrainA_Day_3.tiff") {
		t.Error("IsTemp should recognize hidden siblings only")
	}
}
