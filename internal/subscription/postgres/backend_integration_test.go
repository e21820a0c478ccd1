//go:build integration

package postgres

import (
	"context"
	"log"
	"os"
	"testing"
	"time"

	"github.com/bissquit/sjtu-digest/internal/domain"
	dbpool "github.com/bissquit/sjtu-digest/internal/pkg/postgres"
	"github.com/bissquit/sjtu-digest/internal/subscription"
	"github.com/bissquit/sjtu-digest/internal/testutil"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testDB *pgxpool.Pool

func TestMain(m *testing.M) {
	os.Exit(runWithDatabase(m))
}

func runWithDatabase(m *testing.M) int {
	ctx := context.Background()

	pgContainer, err := testutil.NewPostgresContainer(ctx)
	if err != nil {
		log.Printf("start postgres: %v", err)
		return 1
	}
	defer func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			log.Printf("terminate postgres: %v", err)
		}
	}()

	if err := testutil.ApplyMigrations(pgContainer.ConnectionString, "testdata/migrations"); err != nil {
		log.Printf("%v", err)
		return 1
	}

	testDB, err = dbpool.Connect(ctx, dbpool.Config{
		URL:             pgContainer.ConnectionString,
		MaxOpenConns:    4,
		MaxIdleConns:    1,
		ConnMaxLifetime: time.Minute,
		ConnectAttempts: 3,
	})
	if err != nil {
		log.Printf("connect: %v", err)
		return 1
	}
	defer testDB.Close()

	return m.Run()
}

func resetSubscribers(t *testing.T) {
	t.Helper()
	_, err := testDB.Exec(context.Background(), `TRUNCATE subscribers`)
	require.NoError(t, err)
}

func TestBackend_UpsertAndCount(t *testing.T) {
	resetSubscribers(t)
	ctx := context.Background()
	backend := NewBackend(testDB)

	count, err := backend.SubscriberCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	require.NoError(t, backend.UpsertSubscription(ctx, domain.Submission{
		Email:         "a@sjtu.edu.cn",
		Name:          "小明",
		Subscriptions: []string{"计算机学院", "教务处"},
	}))
	require.NoError(t, backend.UpsertSubscription(ctx, domain.Submission{
		Email:         "b@sjtu.edu.cn",
		Subscriptions: []string{"教务处"},
	}))

	// Same email again updates in place.
	require.NoError(t, backend.UpsertSubscription(ctx, domain.Submission{
		Email:         "a@sjtu.edu.cn",
		Subscriptions: []string{"电气工程学院"},
	}))

	count, err = backend.SubscriberCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	var subs []string
	err = testDB.QueryRow(ctx, `SELECT subscriptions FROM subscribers WHERE email = $1`, "a@sjtu.edu.cn").Scan(&subs)
	require.NoError(t, err)
	assert.Equal(t, []string{"电气工程学院"}, subs)
}

func TestBackend_ProcedureErrorReachesUser(t *testing.T) {
	resetSubscribers(t)
	client := subscription.NewClient(NewBackend(testDB), subscription.Options{})

	err := client.SubmitSubscription(context.Background(), "not-an-email", "", []string{"教务处"})
	require.Error(t, err)

	var pgErr *pgconn.PgError
	require.ErrorAs(t, err, &pgErr)
	assert.Equal(t, "邮箱格式不正确", pgErr.Message)
	assert.Equal(t, 0, client.FetchSubscriberCount(context.Background()))
}
