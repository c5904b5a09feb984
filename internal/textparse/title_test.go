package textparse

import "testing"

func TestParseTitleExtractsProfessorAndGroup(t *testing.T) {
	got := ParseTitle("Curs - Algoritmi si structuri de date Prof. Dr. Ana Maria Popescu anul 2 grupa B")

	if got.Professor == "" {
		t.Fatalf("expected a professor to be extracted, got %+v", got)
	}
	if got.GroupDisplay != "Year 2 • Group B" {
		t.Errorf("group display = %q, want %q", got.GroupDisplay, "Year 2 • Group B")
	}
	if got.Subject == "" {
		t.Errorf("expected non-empty subject")
	}
}

func TestParseTitleCompactGroupForm(t *testing.T) {
	got := ParseTitle("Programare 3A cu Dr. Ion Vasilescu")
	if got.GroupDisplay != "Year 3 • Group A" {
		t.Errorf("group display = %q, want %q", got.GroupDisplay, "Year 3 • Group A")
	}
}

func TestParseTitleNeverErrorsOnGarbage(t *testing.T) {
	inputs := []string{"", "   ", "###???", "12345", "Sala 204"}
	for _, in := range inputs {
		got := ParseTitle(in)
		_ = got // must not panic
	}
}

func TestParseTitleIdempotentOnDisplayTitle(t *testing.T) {
	cases := []string{
		"Curs - Baze de date Conf. Dr. Maria Ionescu anul 1",
		"Retele de calculatoare",
		"Sisteme de operare grupa C",
	}
	for _, in := range cases {
		first := ParseTitle(in)
		second := ParseTitle(first.DisplayTitle)
		if second.DisplayTitle != first.DisplayTitle {
			t.Errorf("parse(parse(%q).DisplayTitle).DisplayTitle = %q, want %q", in, second.DisplayTitle, first.DisplayTitle)
		}
		if second.Subject != first.DisplayTitle {
			t.Errorf("re-parsing an already-normalized title should leave it unchanged: got subject %q, want %q", second.Subject, first.DisplayTitle)
		}
	}
}

func TestParseLocationRoomAndBuilding(t *testing.T) {
	got := ParseLocation("Sala 204, Corp Central")
	if got.Room != "204" {
		t.Errorf("room = %q, want 204", got.Room)
	}
	if got.Building != "Corp Central" {
		t.Errorf("building = %q, want Corp Central", got.Building)
	}
}

func TestParseLocationFallsBackToLastNumeric(t *testing.T) {
	got := ParseLocation("Amfiteatrul mare, etaj 2, 315")
	if got.Room != "315" {
		t.Errorf("room = %q, want 315", got.Room)
	}
}

func TestParseLocationNeverErrors(t *testing.T) {
	for _, in := range []string{"", "   ", "no digits here"} {
		got := ParseLocation(in)
		if got.Room != "" {
			t.Errorf("expected empty room for %q, got %q", in, got.Room)
		}
	}
}
