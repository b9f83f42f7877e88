package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/invepin-international-LLC/invepin-command-center-sub001/internal/messaging"
	"github.com/invepin-international-LLC/invepin-command-center-sub001/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueCommand(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.pair(t, "TAG-2000")

	cmd, err := f.svc.IssueCommand(ctx, owner(), IssueCommandRequest{
		DeviceID:    "TAG-2000",
		CommandType: models.CommandReset,
		Payload:     json.RawMessage(`{"mode":"soft"}`),
		Priority:    intPtr(3),
		ExpiresIn:   intPtr(999999),
	})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, cmd.ID)
	assert.Equal(t, models.CommandPending, cmd.Status)
	assert.Equal(t, 3, cmd.Priority)
	assert.Equal(t, testOperator, cmd.IssuedBy)
	assert.Equal(t, 24*time.Hour, cmd.ExpiresAt.Sub(cmd.CreatedAt), "expiry is clamped")

	stored, err := f.repo.FindCommandByID(ctx, cmd.ID)
	require.NoError(t, err)
	assert.JSONEq(t, `{"mode":"soft"}`, string(stored.Payload))

	assert.Contains(t, f.publisher.published(), messaging.EventCommandIssued)
}

func TestIssueCommand_Validation(t *testing.T) {
	f := newFixture(t)
	f.pair(t, "TAG-2001")

	tests := []struct {
		name  string
		req   IssueCommandRequest
		field string
	}{
		{"priority too high", IssueCommandRequest{DeviceID: "TAG-2001", CommandType: models.CommandLocate, Priority: intPtr(11)}, "priority"},
		{"priority negative", IssueCommandRequest{DeviceID: "TAG-2001", CommandType: models.CommandLocate, Priority: intPtr(-1)}, "priority"},
		{"unknown type", IssueCommandRequest{DeviceID: "TAG-2001", CommandType: "selfdestruct"}, "command_type"},
		{"bad reset mode", IssueCommandRequest{DeviceID: "TAG-2001", CommandType: models.CommandReset, Payload: json.RawMessage(`{"mode":"warm"}`)}, "payload.mode"},
		{"missing device", IssueCommandRequest{CommandType: models.CommandLocate}, "device_id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.IssueCommand(context.Background(), owner(), tt.req)
			svcErr := requireKind(t, err, KindValidation)
			require.NotEmpty(t, svcErr.Fields)
			assert.Equal(t, tt.field, svcErr.Fields[0].Field)
		})
	}
}

func TestIssueCommand_Authorization(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.pair(t, "TAG-2002")

	req := IssueCommandRequest{DeviceID: "TAG-2002", CommandType: models.CommandLocate}

	_, err := f.svc.IssueCommand(ctx, Operator{UserID: "user-viewer", OrganizationID: testOrg}, req)
	requireKind(t, err, KindAuthorization)

	_, err = f.svc.IssueCommand(ctx, Operator{UserID: "user-other", OrganizationID: otherOrg}, req)
	requireKind(t, err, KindAuthorization)

	_, err = f.svc.IssueCommand(ctx, Operator{UserID: "user-manager", OrganizationID: testOrg}, req)
	require.NoError(t, err)

	req.DeviceID = "TAG-MISSING"
	_, err = f.svc.IssueCommand(ctx, owner(), req)
	requireKind(t, err, KindNotFound)
}

func TestAcknowledgeCommand(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.pair(t, "TAG-2003")

	cmd, err := f.svc.IssueCommand(ctx, owner(), IssueCommandRequest{DeviceID: "TAG-2003", CommandType: models.CommandLocate})
	require.NoError(t, err)

	ack := AcknowledgeRequest{CommandID: cmd.ID.String(), Status: models.CommandSent, APIKey: "TAG-2003-key"}
	require.NoError(t, f.svc.AcknowledgeCommand(ctx, ack))

	ack.Status = models.CommandCompleted
	ack.Result = json.RawMessage(`{"found":true}`)
	require.NoError(t, f.svc.AcknowledgeCommand(ctx, ack))

	stored, err := f.repo.FindCommandByID(ctx, cmd.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CommandCompleted, stored.Status)
	assert.NotNil(t, stored.AcknowledgedAt)
	assert.JSONEq(t, `{"found":true}`, string(stored.Result))

	// retried acknowledgement is accepted
	require.NoError(t, f.svc.AcknowledgeCommand(ctx, ack))

	ack.Status = models.CommandFailed
	requireKind(t, f.svc.AcknowledgeCommand(ctx, ack), KindConflict)

	// acknowledged commands leave the piggyback queue
	result, err := f.svc.IngestTelemetry(ctx, ingest("TAG-2003", models.DataTypeHeartbeat, `{}`))
	require.NoError(t, err)
	assert.Empty(t, result.Commands)
}

func TestAcknowledgeCommand_RequiresOwningDeviceKey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.pair(t, "TAG-2004")
	f.pair(t, "TAG-2005")

	cmd, err := f.svc.IssueCommand(ctx, owner(), IssueCommandRequest{DeviceID: "TAG-2004", CommandType: models.CommandLocate})
	require.NoError(t, err)

	ack := AcknowledgeRequest{CommandID: cmd.ID.String(), Status: models.CommandCompleted}
	requireKind(t, f.svc.AcknowledgeCommand(ctx, ack), KindAuthentication)

	ack.APIKey = "TAG-2005-key"
	requireKind(t, f.svc.AcknowledgeCommand(ctx, ack), KindAuthentication)

	stored, err := f.repo.FindCommandByID(ctx, cmd.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CommandPending, stored.Status)
}

func TestAcknowledgeCommand_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.svc.AcknowledgeCommand(ctx, AcknowledgeRequest{CommandID: "not-a-uuid", Status: models.CommandSent, APIKey: "k"})
	requireKind(t, err, KindValidation)

	err = f.svc.AcknowledgeCommand(ctx, AcknowledgeRequest{CommandID: uuid.NewString(), Status: models.CommandPending, APIKey: "k"})
	requireKind(t, err, KindValidation)

	err = f.svc.AcknowledgeCommand(ctx, AcknowledgeRequest{CommandID: uuid.NewString(), Status: models.CommandSent, APIKey: "k"})
	requireKind(t, err, KindNotFound)
}

func TestListDeviceCommands(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.pair(t, "TAG-2006")

	first, err := f.svc.IssueCommand(ctx, owner(), IssueCommandRequest{DeviceID: "TAG-2006", CommandType: models.CommandLocate})
	require.NoError(t, err)
	_, err = f.svc.IssueCommand(ctx, owner(), IssueCommandRequest{DeviceID: "TAG-2006", CommandType: models.CommandIdentify})
	require.NoError(t, err)
	require.NoError(t, f.svc.AcknowledgeCommand(ctx, AcknowledgeRequest{
		CommandID: first.ID.String(),
		Status:    models.CommandCompleted,
		APIKey:    "TAG-2006-key",
	}))

	viewer := Operator{UserID: "user-viewer", OrganizationID: testOrg}
	all, err := f.svc.ListDeviceCommands(ctx, viewer, "TAG-2006", "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	completed, err := f.svc.ListDeviceCommands(ctx, viewer, "TAG-2006", models.CommandCompleted)
	require.NoError(t, err)
	require.Len(t, completed, 1)
	assert.Equal(t, first.ID, completed[0].ID)

	_, err = f.svc.ListDeviceCommands(ctx, viewer, "TAG-2006", "lost")
	requireKind(t, err, KindValidation)

	_, err = f.svc.ListDeviceCommands(ctx, Operator{UserID: "user-other", OrganizationID: otherOrg}, "TAG-2006", "")
	requireKind(t, err, KindAuthorization)
}
