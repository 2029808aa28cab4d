package service

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"pullview/internal/domain"
	"pullview/internal/service/mocks"
)

type RecordImporterTestSuite struct {
	suite.Suite
	ctrl *gomock.Controller

	records   *mocks.MockRecordStore
	txManager *mocks.MockTransactionManager

	importer *RecordImporter
}

func (s *RecordImporterTestSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())

	s.records = mocks.NewMockRecordStore(s.ctrl)
	s.txManager = mocks.NewMockTransactionManager(s.ctrl)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	s.importer = NewRecordImporter(s.records, s.txManager, logger)
}

func (s *RecordImporterTestSuite) TearDownTest() {
	s.ctrl.Finish()
}

func TestRecordImporterTestSuite(t *testing.T) {
	suite.Run(t, new(RecordImporterTestSuite))
}

func (s *RecordImporterTestSuite) expectTransaction() {
	s.txManager.EXPECT().WithTransaction(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, fn func(ctx context.Context) error) error {
			return fn(ctx)
		})
	s.txManager.EXPECT().WithSavepoint(gomock.Any(), "bulk_line", gomock.Any()).
		DoAndReturn(func(ctx context.Context, _ string, fn func(ctx context.Context) error) error {
			return fn(ctx)
		}).AnyTimes()
}

const validLine = `{"source_id":"7d1f6c1e-0d5b-4a55-9d36-2f0c0e4b6a11","external_id":"%s","created_at":"2025-09-29T10:00:00Z","rating":4.5,"tags":{"k":"v"}}`

func line(id string) string {
	return strings.Replace(validLine, "%s", id, 1)
}

func (s *RecordImporterTestSuite) TestImport_MalformedLineIsReported() {
	ctx := context.Background()
	s.expectTransaction()

	s.records.EXPECT().InsertIgnore(gomock.Any(), gomock.Any()).Return(true, nil).Times(4)

	body := strings.Join([]string{line("a"), line("b"), `{"source_id": broken`, line("d"), line("e")}, "\n")

	res, err := s.importer.Import(ctx, strings.NewReader(body))
	s.Require().NoError(err)
	s.Equal(5, res.TookLines)
	s.Equal(4, res.Inserted)
	s.Require().Len(res.Errors, 1)
	s.Equal(3, res.Errors[0].Line)
	s.Contains(res.Errors[0].Error, "invalid JSON")
}

func (s *RecordImporterTestSuite) TestImport_LineNumbersArePhysical() {
	ctx := context.Background()
	s.expectTransaction()

	s.records.EXPECT().InsertIgnore(gomock.Any(), gomock.Any()).Return(true, nil).Times(2)

	body := line("a") + "\r\n\r\n" + `{"external_id":"x"}` + "\n" + line("c") + "\n"

	res, err := s.importer.Import(ctx, strings.NewReader(body))
	s.Require().NoError(err)
	s.Equal(3, res.TookLines)
	s.Equal(2, res.Inserted)
	s.Require().Len(res.Errors, 1)
	s.Equal(3, res.Errors[0].Line)
	s.Equal("required fields: source_id, external_id, created_at (ISO-8601)", res.Errors[0].Error)
}

func (s *RecordImporterTestSuite) TestImport_DuplicatesAndStoreErrors() {
	ctx := context.Background()
	s.expectTransaction()

	s.records.EXPECT().InsertIgnore(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, r *domain.Record) (bool, error) {
		switch r.ExternalID {
		case "dup":
			return false, nil
		case "orphan":
			return false, domain.Invalid("unknown source_id")
		case "boom":
			return false, errors.New("pq: connection reset")
		}
		s.Equal(4.5, *r.Rating)
		s.JSONEq(`{"k":"v"}`, string(r.Tags))
		return true, nil
	}).Times(4)

	body := strings.Join([]string{line("ok"), line("dup"), line("orphan"), line("boom")}, "\n")

	res, err := s.importer.Import(ctx, strings.NewReader(body))
	s.Require().NoError(err)
	s.Equal(1, res.Inserted)
	s.Equal([]LineError{
		{Line: 3, Error: "unknown source_id"},
		{Line: 4, Error: "insert failed"},
	}, res.Errors)
}

func (s *RecordImporterTestSuite) TestImport_EmptyBody() {
	_, err := s.importer.Import(context.Background(), strings.NewReader("\n  \n"))

	var validation *domain.ValidationError
	s.Require().True(errors.As(err, &validation))
	s.Equal("no lines found", validation.Msg)
}

func (s *RecordImporterTestSuite) TestImport_OversizedLineIsSkipped() {
	ctx := context.Background()
	s.expectTransaction()

	s.records.EXPECT().InsertIgnore(gomock.Any(), gomock.Any()).Return(true, nil).Times(2)

	oversized := `{"junk":"` + strings.Repeat("x", 2*maxImportLine) + `"}`
	body := line("a") + "\n" + oversized + "\n" + line("b") + "\n" + oversized

	res, err := s.importer.Import(ctx, strings.NewReader(body))
	s.Require().NoError(err)
	s.Equal(4, res.TookLines)
	s.Equal(2, res.Inserted)
	s.Equal([]LineError{
		{Line: 2, Error: "line too long"},
		{Line: 4, Error: "line too long"},
	}, res.Errors)
}

func TestReadLines(t *testing.T) {
	atLimit := strings.Repeat("y", maxImportLine)

	lines, err := readLines(strings.NewReader("one\r\n\n  \n" + atLimit + "\nlast"))
	require.NoError(t, err)
	require.Len(t, lines, 3)

	assert.Equal(t, importLine{no: 1, text: "one"}, lines[0])
	assert.Equal(t, 4, lines[1].no)
	assert.False(t, lines[1].tooLong)
	assert.Len(t, lines[1].text, maxImportLine)
	assert.Equal(t, importLine{no: 5, text: "last"}, lines[2])
}
