package csvimport

import (
	"context"
	"strings"
	"testing"

	"github.com/roomcal/roomcal/internal/model"
)

type fakeUpserter struct{ sources []model.CalendarSource }

func (f *fakeUpserter) UpsertSourceByURL(ctx context.Context, src model.CalendarSource) error {
	f.sources = append(f.sources, src)
	return nil
}

func TestImportUpsertsEachRow(t *testing.T) {
	csvBody := "primary_url,display_name,room,building\n" +
		"https://a.example.edu,Room A,204,Corp Central\n" +
		"https://b.example.edu,Room B,305,Corp A\n"

	u := &fakeUpserter{}
	res, err := Import(context.Background(), strings.NewReader(csvBody), u)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if res.Imported != 2 || res.Skipped != 0 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if len(u.sources) != 2 || u.sources[0].DisplayName != "Room A" {
		t.Fatalf("unexpected upserted sources: %+v", u.sources)
	}
}

func TestImportSkipsRowMissingPrimaryURL(t *testing.T) {
	csvBody := "primary_url,display_name\n,Missing URL\nhttps://c.example.edu,OK\n"
	u := &fakeUpserter{}
	res, err := Import(context.Background(), strings.NewReader(csvBody), u)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if res.Imported != 1 || res.Skipped != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestImportRequiresPrimaryURLColumn(t *testing.T) {
	csvBody := "display_name\nRoom A\n"
	_, err := Import(context.Background(), strings.NewReader(csvBody), &fakeUpserter{})
	if err == nil {
		t.Fatal("expected error for missing primary_url column")
	}
}
