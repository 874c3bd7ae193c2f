package testhelpers

import (
	"testing"

	"noteflare/internal/models"
)

func TestSetupTestDBCreatesSchema(t *testing.T) {
	db := SetupTestDB(t)
	if !db.Migrator().HasTable(&models.User{}) || !db.Migrator().HasTable(&models.Note{}) {
		t.Fatalf("expected users and notes tables to exist")
	}
	if !db.Migrator().HasTable("note_shares") {
		t.Fatalf("expected share join table to exist")
	}
}

func TestDropNoteTablesRemovesTables(t *testing.T) {
	db := SetupTestDB(t)
	DropNoteTables(t, db)
	if db.Migrator().HasTable(&models.Note{}) {
		t.Fatalf("expected notes table to be dropped")
	}
}
