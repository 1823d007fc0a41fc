package postgres_test

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MythologIQ/QoreLogic-sub000/internal/domain"
	"github.com/MythologIQ/QoreLogic-sub000/internal/store/postgres"
)

func newMockedStore(t *testing.T) (*postgres.Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return postgres.NewFromDB(sqlx.NewDb(db, "postgres")), mock
}

func TestCreateAgentIssuesInsert(t *testing.T) {
	st, mock := newMockedStore(t)
	mock.ExpectExec("INSERT INTO agent_registry").WillReturnResult(sqlmock.NewResult(1, 1))

	agent := &domain.Agent{
		ID: "agent-1", Role: domain.RoleGenerator, Trust: domain.InitialTrustScore,
		Influence: domain.InitialInfluence, CreatedAt: time.Now(), LastRotation: time.Now(),
	}
	require.NoError(t, st.CreateAgent(context.Background(), agent))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetAgentMapsRowAndTranslatesNoRows(t *testing.T) {
	st, mock := newMockedStore(t)
	cols := []string{"id", "role", "public_key", "influence_weight", "trust_score", "trust_stage", "probation", "verif_count",
		"probation_start", "quarantine_until", "cooling_off_until", "clean_audits_since", "created_at", "last_rotation"}
	rows := sqlmock.NewRows(cols).AddRow(
		"agent-1", "generator", []byte{}, 1.0, 0.5, "CBT", true, 0,
		time.Now(), time.Time{}, time.Time{}, 0, time.Now(), time.Now(),
	)
	mock.ExpectQuery("SELECT \\* FROM agent_registry").WillReturnRows(rows)

	agent, err := st.GetAgent(context.Background(), "agent-1")
	require.NoError(t, err)
	assert.Equal(t, "agent-1", agent.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBeginCommitWrapsInTransaction(t *testing.T) {
	st, mock := newMockedStore(t)
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO agent_registry").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	ctx, err := st.Begin(context.Background())
	require.NoError(t, err)

	agent := &domain.Agent{ID: "agent-1", Trust: domain.InitialTrustScore, CreatedAt: time.Now(), LastRotation: time.Now()}
	require.NoError(t, st.CreateAgent(ctx, agent))
	require.NoError(t, st.Commit(ctx))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRollbackUndoesExpectedStatements(t *testing.T) {
	st, mock := newMockedStore(t)
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO agent_registry").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectRollback()

	ctx, err := st.Begin(context.Background())
	require.NoError(t, err)

	agent := &domain.Agent{ID: "agent-1", Trust: domain.InitialTrustScore, CreatedAt: time.Now(), LastRotation: time.Now()}
	require.NoError(t, st.CreateAgent(ctx, agent))
	require.NoError(t, st.Rollback(ctx))
	assert.NoError(t, mock.ExpectationsWereMet())
}
