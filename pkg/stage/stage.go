// Package stage runs one step of an item's pipeline with file-existence checkpointing.
//
// A stage knows where its artifact belongs before doing any work. If the artifact is
// already there the stage is skipped and the existing file is forwarded; otherwise the
// artifact is produced into a temporary sibling and published with a rename, so a crash
// never leaves a partial file at the checkpoint path.
package stage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"github.com/menta2k/plate-processor/internal/utils"
	"github.com/menta2k/plate-processor/pkg/types"
)

// Stage is one checkpointed step
type Stage struct {
	Name string
	// Output returns the artifact path for input in
	Output func(ctx context.Context, in string) (string, error)
	// Run writes the artifact for in to tmp, which has the same extension as the final path
	Run func(ctx context.Context, in, tmp string) error
	// Owns, when set, checks that an existing output belongs to in; its error fails the stage
	Owns func(in, out string) error
	// Exclusive publishes with a hard link so an existing output is never replaced
	Exclusive bool
}

// Result is the outcome of one stage for one item
type Result struct {
	Stage    string        `json:"stage"`
	Outcome  types.Outcome `json:"outcome"`
	Output   string        `json:"output,omitempty"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
	Err      error         `json:"-"`
}

// warning marks an error as a legitimate content outcome rather than a fault
type warning struct{ err error }

func (w warning) Error() string { return w.err.Error() }
func (w warning) Unwrap() error { return w.err }

// Warning wraps err so the runner records a warn outcome instead of a failure
func Warning(err error) error {
	if err == nil {
		return nil
	}
	return warning{err: err}
}

// IsWarning reports whether err was produced by Warning
func IsWarning(err error) bool {
	var w warning
	return errors.As(err, &w)
}

// Runner applies the skip-if-present wrapper to stages
type Runner struct {
	logger  *slog.Logger
	lockDir string
}

// NewRunner creates a runner. With a non-empty lockDir, every artifact is guarded by a file
// lock there so concurrent processes working on the same directories do not duplicate work.
func NewRunner(logger *slog.Logger, lockDir string) *Runner {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Runner{logger: logger, lockDir: lockDir}
}

// Run executes s for input in
func (r *Runner) Run(ctx context.Context, s Stage, in string) Result {
	start := time.Now()
	res := r.run(ctx, s, in)
	res.Stage = s.Name
	res.Duration = time.Since(start)
	if res.Err != nil {
		res.Error = res.Err.Error()
	}

	logger := r.logger.With("stage", s.Name)
	switch res.Outcome {
	case types.OutcomeSkipped:
		logger.Info("skip", "output", res.Output)
	case types.OutcomeOK:
		logger.Info("ok", "output", res.Output, "duration", res.Duration)
	case types.OutcomeWarn:
		logger.Warn("warn", "error", res.Err)
	default:
		logger.Error("error", "error", res.Err)
	}
	return res
}

func (r *Runner) run(ctx context.Context, s Stage, in string) Result {
	if err := ctx.Err(); err != nil {
		return Result{Outcome: types.OutcomeFailed, Err: err}
	}

	out, err := s.Output(ctx, in)
	if err != nil {
		return failed(err)
	}

	unlock, err := r.lock(ctx, s.Name, out)
	if err != nil {
		return failed(err)
	}
	defer unlock()

	if utils.FileExists(out) {
		if s.Owns != nil {
			if err := s.Owns(in, out); err != nil {
				return Result{Outcome: types.OutcomeFailed, Output: out, Err: fmt.Errorf("%s: %w", filepath.Base(out), err)}
			}
		}
		return Result{Outcome: types.OutcomeSkipped, Output: out}
	}

	if err := utils.EnsureDir(filepath.Dir(out)); err != nil {
		return failed(fmt.Errorf("failed to create output directory: %w", err))
	}

	tmp := TempPath(out)
	defer os.Remove(tmp)

	if err := s.Run(ctx, in, tmp); err != nil {
		if IsWarning(err) {
			return Result{Outcome: types.OutcomeWarn, Err: err}
		}
		return failed(err)
	}

	if err := publish(tmp, out, s.Exclusive); err != nil {
		if errors.Is(err, fs.ErrExist) && s.Owns != nil {
			// Someone else published first; it counts as ours only if Owns agrees
			if ownErr := s.Owns(in, out); ownErr != nil {
				return Result{Outcome: types.OutcomeFailed, Output: out, Err: fmt.Errorf("%s: %w", filepath.Base(out), ownErr)}
			}
			return Result{Outcome: types.OutcomeSkipped, Output: out}
		}
		return failed(fmt.Errorf("failed to publish %s: %w", filepath.Base(out), err))
	}

	return Result{Outcome: types.OutcomeOK, Output: out}
}

func failed(err error) Result {
	return Result{Outcome: types.OutcomeFailed, Err: err}
}

func (r *Runner) lock(ctx context.Context, name, out string) (func(), error) {
	if r.lockDir == "" {
		return func() {}, nil
	}
	if err := utils.EnsureDir(r.lockDir); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}

	fl := flock.New(filepath.Join(r.lockDir, name+"-"+filepath.Base(out)+".lock"))
	ok, err := fl.TryLockContext(ctx, 25*time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("acquire lock: %s is busy", fl.Path())
	}
	return func() { _ = fl.Unlock() }, nil
}

// TempPath is a hidden sibling of out that keeps its extension, so encoders picking a format
// from the file name still work
func TempPath(out string) string {
	dir, base := filepath.Split(out)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	return filepath.Join(dir, "."+stem+"."+uuid.NewString()+ext)
}

// IsTemp reports whether name looks like an unpublished artifact
func IsTemp(name string) bool {
	return strings.HasPrefix(filepath.Base(name), ".")
}

func publish(tmp, out string, exclusive bool) error {
	if !utils.FileExists(tmp) {
		return fmt.Errorf("stage produced no artifact")
	}
	if !exclusive {
		return os.Rename(tmp, out)
	}
	if err := os.Link(tmp, out); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fs.ErrExist
		}
		return err
	}
	return nil
}
