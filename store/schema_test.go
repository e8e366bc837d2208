package store_test

import (
	"context"
	"testing"

	"github.com/riftdb/rift/store"
	"github.com/riftdb/rift/value"
	"github.com/stretchr/testify/require"
)

func TestSchemaYAMLRoundTrips(t *testing.T) {
	original := store.Schema{
		Fields: []store.SchemaField{
			{Name: "title", Kind: value.KindString, Required: true},
			{Name: "views", Kind: value.KindInt64},
		},
	}

	encoded, err := store.EncodeSchemaYAML(original)
	require.NoError(t, err)

	decoded, err := store.DecodeSchemaYAML(encoded)
	require.NoError(t, err)
	require.Equal(t, original, decoded)
}

func TestSchemaValidateRejectsMissingRequiredField(t *testing.T) {
	s := store.Schema{Fields: []store.SchemaField{{Name: "title", Kind: value.KindString, Required: true}}}
	err := s.Validate(value.Object())
	require.Error(t, err)
}

func TestSchemaValidateRejectsWrongKind(t *testing.T) {
	s := store.Schema{Fields: []store.SchemaField{{Name: "views", Kind: value.KindInt64}}}
	doc := value.Object(value.Field{Key: "views", Val: value.String("not a number")})
	require.Error(t, s.Validate(doc))
}

func TestSchemaValidateAcceptsExtraUndeclaredFields(t *testing.T) {
	s := store.Schema{Fields: []store.SchemaField{{Name: "title", Kind: value.KindString, Required: true}}}
	doc := value.Object(
		value.Field{Key: "title", Val: value.String("hello")},
		value.Field{Key: "extra", Val: value.Bool(true)},
	)
	require.NoError(t, s.Validate(doc))
}

func TestStoreEnforcesSchemaOnCommit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	info, err := s.CreateTable(ctx, "notes")
	require.NoError(t, err)
	require.NoError(t, s.SetSchema(ctx, "notes", store.Schema{
		Fields: []store.SchemaField{{Name: "title", Kind: value.KindString, Required: true}},
	}))

	txn, handle := s.Begin(testIdentity)
	id := value.NewDocumentID(info.Number)
	require.NoError(t, txn.Insert("notes", id, value.Object(value.Field{Key: "title", Val: value.Int64(1)})))
	_, err = txn.Commit(ctx, s.Committer())
	handle.Release()
	require.Error(t, err)
}
