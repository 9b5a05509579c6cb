//go:build !gocv

package main

import (
	"errors"

	"github.com/menta2k/plate-processor/pkg/vision"
)

func newOpenCVLocator(vision.DetectionConfig) (vision.Locator, error) {
	return nil, errors.New("the opencv detector requires a build with -tags gocv")
}
