//go:build gocv

package main

import (
	"github.com/menta2k/plate-processor/pkg/vision"
)

func newOpenCVLocator(cfg vision.DetectionConfig) (vision.Locator, error) {
	return vision.NewOpenCV(cfg), nil
}
