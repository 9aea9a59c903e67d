package repo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"stylegen/internal/domain"
	"stylegen/internal/sqlinline"
)

const testJobID = "9b2f9c3e-6f0e-4a43-9d0c-2a7f5d0e8a11"

type stubRow struct {
	values []any
	err    error
}

func (r stubRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if len(dest) != len(r.values) {
		return fmt.Errorf("scan: got %d dest, have %d values", len(dest), len(r.values))
	}
	for i, d := range dest {
		switch ptr := d.(type) {
		case *string:
			*ptr = r.values[i].(string)
		case *[]byte:
			*ptr = r.values[i].([]byte)
		case *bool:
			*ptr = r.values[i].(bool)
		case *time.Time:
			*ptr = r.values[i].(time.Time)
		default:
			return fmt.Errorf("scan: unsupported dest %T", d)
		}
	}
	return nil
}

type stubDB struct {
	row     stubRow
	execErr error
	queries []string
	args    [][]any
}

func (s *stubDB) Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	s.queries = append(s.queries, query)
	s.args = append(s.args, args)
	return pgconn.NewCommandTag("UPDATE 1"), s.execErr
}

func (s *stubDB) QueryRow(ctx context.Context, query string, args ...any) pgx.Row {
	s.queries = append(s.queries, query)
	s.args = append(s.args, args)
	return s.row
}

func (s *stubDB) Query(ctx context.Context, query string, args ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

func generationValues(status, result, errMsg string) []any {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	return []any{testJobID, "T2", "nonblocking", "pollinations", status, result, errMsg, []byte(`{"locale":"en"}`), now, now}
}

func TestGenerationCreate(t *testing.T) {
	db := &stubDB{row: stubRow{values: generationValues("processing", "", "")}}
	store := NewGenerationRepository(db)

	job, err := store.Create(context.Background(), domain.NewGeneration{
		TemplateID: "T2",
		Mode:       domain.ModeNonBlocking,
		Provider:   "pollinations",
		Properties: map[string]any{"locale": "en"},
	})
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if job.ID != testJobID || job.Status != domain.StatusProcessing || job.Mode != domain.ModeNonBlocking {
		t.Fatalf("unexpected job: %+v", job)
	}
	if db.queries[0] != sqlinline.QInsertGeneration {
		t.Fatal("expected insert query")
	}
	if got := string(db.args[0][3].([]byte)); got != `{"locale":"en"}` {
		t.Fatalf("properties arg = %s", got)
	}
}

func TestGenerationCreateRejectsMissingMode(t *testing.T) {
	store := NewGenerationRepository(&stubDB{})
	_, err := store.Create(context.Background(), domain.NewGeneration{TemplateID: "T1"})
	if !errors.Is(err, domain.ErrInvalidRequest) {
		t.Fatalf("err = %v, want ErrInvalidRequest", err)
	}
}

func TestGenerationCreateStoreUnavailable(t *testing.T) {
	store := NewGenerationRepository(&stubDB{row: stubRow{err: errors.New("connection refused")}})
	_, err := store.Create(context.Background(), domain.NewGeneration{TemplateID: "T1", Mode: domain.ModeBlocking})
	if !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("err = %v, want ErrStoreUnavailable", err)
	}
}

func TestGenerationGet(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		row     stubRow
		wantErr error
	}{
		{name: "found", id: testJobID, row: stubRow{values: generationValues("succeeded", "https://cdn/img.png", "")}},
		{name: "no rows", id: testJobID, row: stubRow{err: pgx.ErrNoRows}, wantErr: domain.ErrJobNotFound},
		{name: "malformed id", id: "G1", wantErr: domain.ErrJobNotFound},
		{name: "db down", id: testJobID, row: stubRow{err: errors.New("timeout")}, wantErr: domain.ErrStoreUnavailable},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			store := NewGenerationRepository(&stubDB{row: tc.row})
			job, err := store.Get(context.Background(), tc.id)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("err = %v, want %v", err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Get error: %v", err)
			}
			if job.ResultImage != "https://cdn/img.png" {
				t.Fatalf("ResultImage = %q", job.ResultImage)
			}
		})
	}
}

func TestTransitionToTerminalApplied(t *testing.T) {
	db := &stubDB{row: stubRow{values: generationValues("failed", "", "NSFW content")}}
	store := NewGenerationRepository(db)

	job, applied, err := store.TransitionToTerminal(context.Background(), testJobID, domain.Failed("NSFW content"))
	if err != nil {
		t.Fatalf("TransitionToTerminal error: %v", err)
	}
	if !applied {
		t.Fatal("expected applied")
	}
	if job.Status != domain.StatusFailed || job.ErrorMessage != "NSFW content" {
		t.Fatalf("unexpected job: %+v", job)
	}
	if !strings.Contains(db.queries[0], "and status = 'processing'") {
		t.Fatal("terminal update must be conditional on processing status")
	}
	args := db.args[0]
	if args[1] != "failed" || args[2] != "" || args[3] != "NSFW content" {
		t.Fatalf("unexpected args: %#v", args)
	}
}

func TestTransitionToTerminalNoop(t *testing.T) {
	tests := []struct {
		name string
		id   string
		row  stubRow
	}{
		{name: "already terminal", id: testJobID, row: stubRow{err: pgx.ErrNoRows}},
		{name: "malformed id", id: "unknown"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			store := NewGenerationRepository(&stubDB{row: tc.row})
			_, applied, err := store.TransitionToTerminal(context.Background(), tc.id, domain.Succeeded("https://cdn/img.png"))
			if err != nil {
				t.Fatalf("no-op must not error, got %v", err)
			}
			if applied {
				t.Fatal("expected applied=false")
			}
		})
	}
}

func TestTransitionToTerminalRejectsInvalidOutcome(t *testing.T) {
	db := &stubDB{}
	store := NewGenerationRepository(db)
	_, _, err := store.TransitionToTerminal(context.Background(), testJobID, domain.Outcome{Status: domain.StatusProcessing})
	if !errors.Is(err, domain.ErrInvalidRequest) {
		t.Fatalf("err = %v, want ErrInvalidRequest", err)
	}
	if len(db.queries) != 0 {
		t.Fatal("invalid outcome must not reach the database")
	}
}

func TestMergeProperties(t *testing.T) {
	db := &stubDB{}
	store := NewGenerationRepository(db)
	if err := store.MergeProperties(context.Background(), testJobID, nil); err != nil {
		t.Fatalf("MergeProperties error: %v", err)
	}
	if len(db.queries) != 0 {
		t.Fatal("empty merge should not query")
	}
	if err := store.MergeProperties(context.Background(), testJobID, map[string]any{"external_id": "p-1"}); err != nil {
		t.Fatalf("MergeProperties error: %v", err)
	}
	if db.queries[0] != sqlinline.QMergeGenerationProperties {
		t.Fatal("expected merge query")
	}

	db.execErr = errors.New("down")
	if err := store.MergeProperties(context.Background(), testJobID, map[string]any{"a": 1}); !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("err = %v, want ErrStoreUnavailable", err)
	}
}
