package language

import "github.com/vektah/gqlparser/v2/ast"

type (
	QueryDocument       = ast.QueryDocument
	Schema              = ast.Schema
	OperationDefinition = ast.OperationDefinition
	VariableDefinition  = ast.VariableDefinition
)

type Operation = ast.Operation

const (
	Query        Operation = ast.Query
	Mutation     Operation = ast.Mutation
	Subscription Operation = ast.Subscription
)
