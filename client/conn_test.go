package client

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnect_Validation(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"empty url", Config{Database: "db"}},
		{"bad scheme", Config{URL: "ftp://db.local", Database: "db"}},
		{"unparseable", Config{URL: "http://db local:%zz", Database: "db"}},
		{"missing database", Config{URL: "http://db.local:2480"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Connect(context.Background(), tt.cfg)
			require.Error(t, err)
			assert.Equal(t, KindValidation, KindOf(err))
		})
	}
}

func TestConnect_Defaults(t *testing.T) {
	conn, err := Connect(context.Background(), Config{URL: "http://db.local:2480", Database: "inventory"})
	require.NoError(t, err)

	assert.Equal(t, DefaultPool, conn.Pool())
	assert.Equal(t, "http://db.local:2480", conn.BaseURL())
	assert.False(t, conn.InTransaction())
	assert.Same(t, defaultExecutor, conn.exec)
}

func TestConnect_AllowNoDatabase(t *testing.T) {
	conn, err := Connect(context.Background(), Config{URL: "http://db.local:2480", AllowNoDatabase: true})
	require.NoError(t, err)
	assert.Empty(t, conn.Database())

	_, err = conn.Query(context.Background(), "SELECT 1", nil)
	assert.Equal(t, KindValidation, KindOf(err))
}

func TestConnect_Verify(t *testing.T) {
	x := newRecordingExecutor()
	x.on("ready", ok)

	_, err := Connect(context.Background(), Config{URL: "http://db.local:2480", Database: "db", Executor: x, Verify: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"ready"}, x.endpoints())

	x.on("ready", statusResponse(http.StatusUnauthorized, ""))
	_, err = Connect(context.Background(), Config{URL: "http://db.local:2480", Database: "db", Executor: x, Verify: true})
	assert.Equal(t, KindAuth, KindOf(err))
}

func TestMustConnect_Panics(t *testing.T) {
	assert.Panics(t, func() { MustConnect(context.Background(), Config{}) })
}

func TestWithDatabase_DoesNotMutateOriginal(t *testing.T) {
	x := newRecordingExecutor()
	orig := testConn(t, x)

	other := orig.WithDatabase("archive")

	assert.Equal(t, "inventory", orig.Database())
	assert.Equal(t, "archive", other.Database())
	assert.Equal(t, orig.BaseURL(), other.BaseURL())
	assert.Equal(t, orig.Username(), other.Username())
	assert.Equal(t, orig.Pool(), other.Pool())
	assert.Equal(t, orig.password, other.password)

	_, err := other.Query(context.Background(), "SELECT FROM Product", nil)
	require.NoError(t, err)
	assert.Equal(t, "/api/v1/query/archive", x.requests[0].Path)
}

func TestWithDatabase_PreservesSession(t *testing.T) {
	tx := testConn(t, newRecordingExecutor()).withSession("AS-5")
	assert.Equal(t, "AS-5", tx.WithDatabase("other").SessionID())
}

func TestConn_StringHidesPassword(t *testing.T) {
	conn := testConn(t, newRecordingExecutor())
	s := conn.String()

	assert.NotContains(t, s, "secret")
	assert.Contains(t, s, "inventory")
	assert.Contains(t, s, "user=root")
}

func TestConn_ZeroValueIsRejected(t *testing.T) {
	var conn Conn
	_, err := conn.Command(context.Background(), "SELECT 1", nil)
	assert.Equal(t, KindValidation, KindOf(err))

	err = Transaction(context.Background(), conn, func(ctx context.Context, tx Conn) error { return nil })
	assert.Equal(t, KindValidation, KindOf(err))
}

func TestConn_TimeoutApplied(t *testing.T) {
	var hadDeadline bool
	x := ExecutorFunc(func(ctx context.Context, req *Request) (*Response, error) {
		_, hadDeadline = ctx.Deadline()
		return &Response{Status: http.StatusOK, Body: []byte(`{"result":[]}`)}, nil
	})
	conn, err := Connect(context.Background(), Config{URL: "http://db.local:2480", Database: "db", Executor: x, Timeout: 1e9})
	require.NoError(t, err)

	_, err = conn.Query(context.Background(), "SELECT 1", nil)
	require.NoError(t, err)
	assert.True(t, hadDeadline)
}
