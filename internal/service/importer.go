package service

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"pullview/internal/domain"
)

const maxImportLine = 1 << 20

// LineError reports why one NDJSON line was not imported.
type LineError struct {
	Line  int    `json:"line"`
	Error string `json:"error"`
}

type ImportResult struct {
	TookLines int         `json:"took_lines"`
	Inserted  int         `json:"inserted"`
	Errors    []LineError `json:"errors"`
}

// RecordImporter creates records from newline-delimited JSON.
type RecordImporter struct {
	records   RecordStore
	txManager TransactionManager
	logger    *slog.Logger
}

func NewRecordImporter(records RecordStore, txManager TransactionManager, logger *slog.Logger) *RecordImporter {
	return &RecordImporter{
		records:   records,
		txManager: txManager,
		logger:    logger.With("component", "importer"),
	}
}

// importLine is one non-blank physical line of an import body.
type importLine struct {
	no      int
	text    string
	tooLong bool
}

// readLines splits r into lines numbered from 1. Blank lines are dropped but keep
// their number. A line longer than maxImportLine is discarded up to its newline and
// returned flagged, so its siblings are still read.
func readLines(r io.Reader) ([]importLine, error) {
	br := bufio.NewReaderSize(r, 64*1024)

	var (
		lines []importLine
		buf   []byte
		over  bool
		no    int
	)
	for {
		chunk, err := br.ReadSlice('\n')
		if !over && len(chunk) > 0 {
			if len(buf)+len(chunk) > maxImportLine+2 {
				over = true
				buf = buf[:0]
			} else {
				buf = append(buf, chunk...)
			}
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}

		atEOF := err != nil
		if atEOF && len(buf) == 0 && !over {
			return lines, nil
		}

		no++
		text := strings.TrimSpace(string(buf))
		switch {
		case over || len(text) > maxImportLine:
			lines = append(lines, importLine{no: no, tooLong: true})
		case text != "":
			lines = append(lines, importLine{no: no, text: text})
		}
		buf = buf[:0]
		over = false

		if atEOF {
			return lines, nil
		}
	}
}

// Import reads one record object per line. Blank lines are skipped but still count
// toward line numbers. Each line is inserted inside its own savepoint so a rejected
// line leaves the others intact; existing (source_id, ext_id) pairs are left alone.
func (im *RecordImporter) Import(ctx context.Context, r io.Reader) (*ImportResult, error) {
	lines, err := readLines(r)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if len(lines) == 0 {
		return nil, domain.Invalid("no lines found")
	}

	result := &ImportResult{TookLines: len(lines), Errors: []LineError{}}

	err = im.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		for _, l := range lines {
			if l.tooLong {
				result.Errors = append(result.Errors, LineError{Line: l.no, Error: "line too long"})
				continue
			}

			record, err := parseLine(l.text)
			if err != nil {
				result.Errors = append(result.Errors, LineError{Line: l.no, Error: err.Error()})
				continue
			}

			var inserted bool
			err = im.txManager.WithSavepoint(txCtx, "bulk_line", func(spCtx context.Context) error {
				var err error
				inserted, err = im.records.InsertIgnore(spCtx, record)
				return err
			})
			if err != nil {
				if txCtx.Err() != nil {
					return txCtx.Err()
				}
				result.Errors = append(result.Errors, LineError{Line: l.no, Error: lineStoreError(err)})
				im.logger.Warn("bulk line rejected", "line", l.no, "error", err)
				continue
			}
			if inserted {
				result.Inserted++
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("import records: %w", err)
	}

	im.logger.Info("bulk import completed",
		"lines", result.TookLines,
		"inserted", result.Inserted,
		"errors", len(result.Errors),
	)

	return result, nil
}

func parseLine(text string) (*domain.Record, error) {
	var in domain.RecordInput
	if err := json.Unmarshal([]byte(text), &in); err != nil {
		return nil, fmt.Errorf("invalid JSON: %v", err)
	}
	return in.ToRecord()
}

func lineStoreError(err error) string {
	var validation *domain.ValidationError
	if errors.As(err, &validation) {
		return validation.Msg
	}
	return "insert failed"
}
