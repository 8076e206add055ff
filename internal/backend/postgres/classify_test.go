package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "cursorbridge/cli/internal/errors"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		sql  string
		want Verb
	}{
		{"SELECT 1", VerbQuery},
		{"  select * from users", VerbQuery},
		{"(SELECT 1) UNION (SELECT 2)", VerbQuery},
		{"WITH x AS (SELECT 1) SELECT * FROM x", VerbQuery},
		{"-- leading comment\nSELECT 1", VerbQuery},
		{"/* block */ VALUES (1), (2)", VerbQuery},
		{"show server_version", VerbQuery},
		{"TABLE users", VerbQuery},
		{"EXPLAIN SELECT 1", VerbQuery},
		{"CALL do_it($1)", VerbCall},
		{"INSERT INTO t VALUES (1)", VerbWrite},
		{"UPDATE t SET a = 1", VerbWrite},
		{"CREATE TABLE t (id int)", VerbWrite},
		{"SELECTED", VerbWrite},
		{"", VerbWrite},
		{"-- only a comment", VerbWrite},
	}
	for _, tt := range tests {
		t.Run(tt.sql, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.sql))
		})
	}
}

func TestHasReturning(t *testing.T) {
	assert.True(t, HasReturning("INSERT INTO t (a) VALUES (1) RETURNING id"))
	assert.True(t, HasReturning("delete from t where a = 1 returning *"))
	assert.False(t, HasReturning("INSERT INTO t (a) VALUES ('RETURNING')"))
	assert.False(t, HasReturning(`UPDATE t SET "returning" = 1`))
	assert.False(t, HasReturning("UPDATE t SET returning_flag = true"))
	assert.False(t, HasReturning("INSERT INTO t VALUES (1)"))
}

func TestVerbString(t *testing.T) {
	assert.Equal(t, "query", VerbQuery.String())
	assert.Equal(t, "call", VerbCall.String())
	assert.Equal(t, "write", VerbWrite.String())
}

func TestOpenRejectsInvalidDSN(t *testing.T) {
	_, err := Open(context.Background(), "postgres://user@host:notaport/db")
	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.Transport))
}
