package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/graphql-go/graphql"
	echo "github.com/labstack/echo/v5"

	"github.com/opsdesk/dispatch/pkg/conversation"
	"github.com/opsdesk/dispatch/pkg/models"
)

// defaultGraphQLLimit bounds turn and session listings when the query
// omits a limit.
const defaultGraphQLLimit = 50

type conversationPayload struct {
	SessionID string
	Turns     []models.Turn
}

type sessionPayload struct {
	SessionID string
}

// graphqlHandler handles POST /graphql with the standard request shape
// {query, variables, operationName}. The schema is read-only over the
// conversation store.
func (s *Server) graphqlHandler(c *echo.Context) error {
	var req graphQLRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if strings.TrimSpace(req.Query) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query is required")
	}

	result := graphql.Do(graphql.Params{
		Schema:         s.schema,
		RequestString:  req.Query,
		VariableValues: req.Variables,
		OperationName:  req.OperationName,
		Context:        c.Request().Context(),
	})
	return c.JSON(http.StatusOK, result)
}

// buildSchema defines the read schema:
//
//	conversation(session_id: String!, limit: Int): Conversation
//	sessions(limit: Int): [Session]
func buildSchema(store conversation.Store) (graphql.Schema, error) {
	turnType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Turn",
		Fields: graphql.Fields{
			"role": &graphql.Field{
				Type: graphql.String,
				Resolve: func(p graphql.ResolveParams) (any, error) {
					t, _ := p.Source.(models.Turn)
					return string(t.Role), nil
				},
			},
			"content": &graphql.Field{
				Type: graphql.String,
				Resolve: func(p graphql.ResolveParams) (any, error) {
					t, _ := p.Source.(models.Turn)
					return t.Content, nil
				},
			},
			"metadata_json": &graphql.Field{
				Type: graphql.String,
				Resolve: func(p graphql.ResolveParams) (any, error) {
					t, _ := p.Source.(models.Turn)
					if len(t.Metadata) == 0 {
						return "{}", nil
					}
					raw, err := json.Marshal(t.Metadata)
					if err != nil {
						return nil, err
					}
					return string(raw), nil
				},
			},
		},
	})

	conversationType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Conversation",
		Fields: graphql.Fields{
			"session_id": &graphql.Field{
				Type: graphql.String,
				Resolve: func(p graphql.ResolveParams) (any, error) {
					cp, _ := p.Source.(conversationPayload)
					return cp.SessionID, nil
				},
			},
			"turns": &graphql.Field{
				Type: graphql.NewList(turnType),
				Resolve: func(p graphql.ResolveParams) (any, error) {
					cp, _ := p.Source.(conversationPayload)
					return cp.Turns, nil
				},
			},
		},
	})

	sessionType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Session",
		Fields: graphql.Fields{
			"session_id": &graphql.Field{
				Type: graphql.String,
				Resolve: func(p graphql.ResolveParams) (any, error) {
					sp, _ := p.Source.(sessionPayload)
					return sp.SessionID, nil
				},
			},
		},
	})

	query := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"conversation": &graphql.Field{
				Type: conversationType,
				Args: graphql.FieldConfigArgument{
					"session_id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
					"limit":      &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: defaultGraphQLLimit},
				},
				Resolve: func(p graphql.ResolveParams) (any, error) {
					sessionID, _ := p.Args["session_id"].(string)
					limit, _ := p.Args["limit"].(int)
					turns, err := store.GetHistory(p.Context, sessionID, limit)
					if err != nil {
						return nil, err
					}
					if len(turns) == 0 {
						// Unknown session resolves to null, not an error.
						return nil, nil
					}
					return conversationPayload{SessionID: sessionID, Turns: turns}, nil
				},
			},
			"sessions": &graphql.Field{
				Type: graphql.NewList(sessionType),
				Args: graphql.FieldConfigArgument{
					"limit": &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: defaultGraphQLLimit},
				},
				Resolve: func(p graphql.ResolveParams) (any, error) {
					limit, _ := p.Args["limit"].(int)
					ids, err := store.ListSessions(p.Context, limit)
					if err != nil {
						return nil, err
					}
					out := make([]sessionPayload, len(ids))
					for i, id := range ids {
						out[i] = sessionPayload{SessionID: id}
					}
					return out, nil
				},
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{Query: query})
}
