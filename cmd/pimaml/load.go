package main

import (
	"unicode/utf8"

	"github.com/YuminosukeSato/pimaml/dataset"
	"github.com/YuminosukeSato/pimaml/pkg/errors"
)

const stageLoad = "load"

func loadTable(opts *rootOptions, path string) (*dataset.Table, error) {
	comma, size := utf8.DecodeRuneInString(opts.comma)
	if size == 0 || size != len(opts.comma) {
		return nil, errors.NewStageError(stageLoad, errors.NewConfigError("comma", "must be a single character"))
	}
	tbl, err := dataset.LoadFile(path, dataset.WithHeader(!opts.noHeader), dataset.WithComma(comma))
	if err != nil {
		return nil, errors.NewStageError(stageLoad, err)
	}
	return tbl, nil
}
