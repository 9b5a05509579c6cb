// Package label derives the output name of a plate photograph from a rename table or from OCR.
package label

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os"

	"github.com/menta2k/plate-processor/pkg/ocr"
	"github.com/menta2k/plate-processor/pkg/processing"
)

// ErrCollision means the labeled artifact already exists and belongs to a different item
var ErrCollision = errors.New("label already taken by another image")

// Source tells where a label came from
type Source string

const (
	SourceTable  Source = "table"
	SourceLedger Source = "ledger"
	SourceOCR    Source = "ocr"
)

// Resolution is a resolved label with its provenance
type Resolution struct {
	Label  string
	Source Source
}

// Options tunes the OCR fallback
type Options struct {
	Language   string
	PSM        int
	StripRatio float64
}

// Resolver looks a stem up in the rename table and falls back to reading the label strips
type Resolver struct {
	renames   RenameMap
	engine    ocr.Engine
	ledger    *Ledger
	options   Options
	processor *processing.Processor
}

// NewResolver builds a resolver. ledger may be nil, in which case OCR results are not cached.
func NewResolver(renames RenameMap, engine ocr.Engine, ledger *Ledger, options Options) *Resolver {
	if options.Language == "" {
		options.Language = ocr.DefaultLanguage
	}
	if options.PSM <= 0 {
		options.PSM = ocr.DefaultPSM
	}
	if options.StripRatio <= 0 {
		options.StripRatio = processing.DefaultStripRatio
	}
	if engine == nil {
		engine = ocr.Nop{}
	}
	return &Resolver{
		renames:   renames,
		engine:    engine,
		ledger:    ledger,
		options:   options,
		processor: processing.NewProcessor(),
	}
}

// Resolve returns the label for stem. load is only called when OCR is needed.
func (r *Resolver) Resolve(ctx context.Context, stem string, load func() (image.Image, error)) (Resolution, error) {
	if label, ok := r.renames.Lookup(stem); ok {
		return Resolution{Label: label, Source: SourceTable}, nil
	}

	if r.ledger != nil {
		label, ok, err := r.ledger.Lookup(stem)
		if err != nil {
			return Resolution{}, err
		}
		if ok {
			return Resolution{Label: label, Source: SourceLedger}, nil
		}
	}

	img, err := load()
	if err != nil {
		return Resolution{}, fmt.Errorf("failed to load image for ocr: %w", err)
	}

	label, err := r.ReadStrips(ctx, img)
	if err != nil {
		return Resolution{}, err
	}

	if r.ledger != nil {
		if err := r.ledger.Store(stem, label); err != nil {
			return Resolution{}, err
		}
	}
	return Resolution{Label: label, Source: SourceOCR}, nil
}

// ReadStrips binarizes img, reads its top and bottom strips and composes the label
func (r *Resolver) ReadStrips(ctx context.Context, img image.Image) (string, error) {
	binary := r.processor.Binarize(img)
	top, bottom, err := r.processor.LabelStrips(binary, r.options.StripRatio)
	if err != nil {
		return "", err
	}

	topText, err := r.engine.ExtractText(ctx, top, r.options.Language, r.options.PSM)
	if err != nil {
		return "", fmt.Errorf("ocr of top strip: %w", err)
	}
	bottomText, err := r.engine.ExtractText(ctx, bottom, r.options.Language, r.options.PSM)
	if err != nil {
		return "", fmt.Errorf("ocr of bottom strip: %w", err)
	}

	return Compose(topText, bottomText)
}

// SameContent reports nil when the files at a and b hold identical bytes, ErrCollision otherwise.
// It decides whether an existing labeled artifact is this item's own copy.
func SameContent(a, b string) error {
	fa, err := os.Open(a)
	if err != nil {
		return err
	}
	defer fa.Close()
	fb, err := os.Open(b)
	if err != nil {
		return err
	}
	defer fb.Close()

	sa, err := fa.Stat()
	if err != nil {
		return err
	}
	sb, err := fb.Stat()
	if err != nil {
		return err
	}
	if sa.Size() != sb.Size() {
		return ErrCollision
	}

	bufA := make([]byte, 64*1024)
	bufB := make([]byte, 64*1024)
	for {
		na, errA := io.ReadFull(fa, bufA)
		nb, errB := io.ReadFull(fb, bufB)
		if na != nb || !bytes.Equal(bufA[:na], bufB[:nb]) {
			return ErrCollision
		}
		doneA := errA == io.EOF || errA == io.ErrUnexpectedEOF
		doneB := errB == io.EOF || errB == io.ErrUnexpectedEOF
		if errA != nil && !doneA {
			return errA
		}
		if errB != nil && !doneB {
			return errB
		}
		if doneA || doneB {
			return nil
		}
	}
}
