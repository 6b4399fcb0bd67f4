package reliability

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skourtis/boomtown/internal/database"
	"github.com/skourtis/boomtown/internal/modules/auth"
	boomtest "github.com/skourtis/boomtown/internal/testing"
)

func TestMaintenanceRun(t *testing.T) {
	authDB := boomtest.NewTestDB(t, "auth")
	gameDB := boomtest.NewTestDB(t, "game")
	log := zerolog.Nop()
	authRepo := auth.NewRepository(authDB.Conn(), log)

	now := time.Now().Unix()
	require.NoError(t, authRepo.CreateSession(&auth.Session{
		ID: "live", UserID: "u1", ExpiresAt: now + 3600, CreatedAt: now,
	}))
	require.NoError(t, authRepo.CreateSession(&auth.Session{
		ID: "stale", UserID: "u1", ExpiresAt: now - 3600, CreatedAt: now - 7200,
	}))

	job := NewMaintenanceJob([]*database.DB{authDB, gameDB}, authRepo, log)
	assert.Equal(t, "maintenance", job.Name())
	require.NoError(t, job.Run())

	live, err := authRepo.GetSession("live")
	require.NoError(t, err)
	assert.NotNil(t, live)
	stale, err := authRepo.GetSession("stale")
	require.NoError(t, err)
	assert.Nil(t, stale)
}

func TestMaintenanceRun_NilEntries(t *testing.T) {
	job := NewMaintenanceJob([]*database.DB{nil}, nil, zerolog.Nop())
	assert.NoError(t, job.Run())
}
