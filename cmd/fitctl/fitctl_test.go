package main

import (
	"alcyxob/plan-delivery/internal/service"
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v4"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"gopkg.in/yaml.v3"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestTokenIssueSignsTenantClaims(t *testing.T) {
	tenant := primitive.NewObjectID()
	member := primitive.NewObjectID()

	out, err := run(t, "token", "issue", "--tenant", tenant.Hex(), "--member", member.Hex(), "--role", "reviewer", "--secret", "s3cret", "--ttl", "5m")
	require.NoError(t, err)

	claims := jwt.MapClaims{}
	_, err = jwt.ParseWithClaims(strings.TrimSpace(out), claims, func(*jwt.Token) (interface{}, error) { return []byte("s3cret"), nil })
	require.NoError(t, err)
	assert.Equal(t, tenant.Hex(), claims["tenant_id"])
	assert.Equal(t, member.Hex(), claims["uid"])
	assert.Equal(t, "reviewer", claims["role"])
}

func TestTokenIssueValidation(t *testing.T) {
	_, err := run(t, "token", "issue", "--member", primitive.NewObjectID().Hex(), "--secret", "x")
	assert.ErrorContains(t, err, "--tenant")

	_, err = run(t, "token", "issue", "--tenant", primitive.NewObjectID().Hex(), "--member", "nope", "--secret", "x")
	assert.ErrorContains(t, err, "invalid member id")

	_, err = run(t, "token", "issue", "--tenant", primitive.NewObjectID().Hex(), "--member", primitive.NewObjectID().Hex(), "--secret", "x", "--role", "admin")
	assert.ErrorContains(t, err, "unknown role")
}

func TestDeliveryRowsCarryFailedStep(t *testing.T) {
	ok := primitive.NewObjectID()
	bad := primitive.NewObjectID()
	rows := deliveryRows([]service.BatchItemResult{
		{AssignmentID: ok, Result: &service.DeliveryResult{AssignmentID: ok, PortalLink: "https://portal/x"}},
		{AssignmentID: bad, Err: &service.StepError{Step: "send", Err: errors.New("provider down")}},
	})
	require.Len(t, rows, 2)
	assert.True(t, rows[0].Success)
	assert.Equal(t, "https://portal/x", rows[0].PortalLink)
	assert.False(t, rows[1].Success)
	assert.Equal(t, "send", rows[1].Step)
}

func TestRenderFormats(t *testing.T) {
	rows := []deliveryRow{{AssignmentID: "a1", Success: true, PortalLink: "https://portal/x"}}

	for _, format := range []string{"json", "yaml", "table"} {
		t.Run(format, func(t *testing.T) {
			c := &cli{v: outputViper(format)}
			var buf bytes.Buffer
			require.NoError(t, c.render(&buf, rows, nil, func(add func(table.Row)) {}))

			switch format {
			case "json":
				var got []map[string]any
				require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
				assert.Equal(t, "a1", got[0]["assignment_id"])
			case "yaml":
				var got []map[string]any
				require.NoError(t, yaml.Unmarshal(buf.Bytes(), &got))
				assert.Equal(t, "https://portal/x", got[0]["portal_link"])
			}
		})
	}

	c := &cli{v: outputViper("xml")}
	assert.Error(t, c.render(&bytes.Buffer{}, rows, nil, nil))
}

func outputViper(format string) *viper.Viper {
	v := viper.New()
	v.Set("output", format)
	return v
}
