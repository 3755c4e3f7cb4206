package language

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const testSchema = `
type Query {
  user(id: ID!): User
}
type User {
  id: ID!
  name: String!
}
`

func TestSelectOperation(t *testing.T) {
	doc, err := ParseQuery(`query A { user(id: "1") { id } } query B { user(id: "2") { name } }`)
	require.NoError(t, err)

	op, err := SelectOperation(doc, "B")
	require.NoError(t, err)
	require.Equal(t, "B", op.Name)

	_, err = SelectOperation(doc, "")
	require.Error(t, err)
	_, err = SelectOperation(doc, "C")
	require.Error(t, err)

	single, err := ParseQuery(`{ user(id: "1") { id } }`)
	require.NoError(t, err)
	op, err = SelectOperation(single, "")
	require.NoError(t, err)
	require.Equal(t, Query, op.Operation)
}

func TestLoadQuery_Validates(t *testing.T) {
	schema, err := LoadSchema("schema.graphql", testSchema)
	require.NoError(t, err)

	_, err = LoadQuery(schema, `query Q($id: ID!) { user(id: $id) { name } }`)
	require.NoError(t, err)

	_, err = LoadQuery(schema, `{ user(id: "1") { email } }`)
	require.Error(t, err)
}

func TestParseQuery_SyntaxError(t *testing.T) {
	_, err := ParseQuery(`{ user(`)
	require.Error(t, err)
}
