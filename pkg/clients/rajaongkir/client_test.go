package rajaongkir

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	apperrors "github.com/wagate/pkg/errors"
)

const costBody = `{
  "rajaongkir": {
    "status": {"code": 200, "description": "OK"},
    "results": [{
      "code": "jne",
      "name": "Jalur Nugraha Ekakurir (JNE)",
      "costs": [
        {"service": "REG", "description": "Layanan Reguler", "cost": [{"value": 18000, "etd": "2-3"}]},
        {"service": "YES", "description": "Yakin Esok Sampai", "cost": [{"value": 30000, "etd": "1-1"}]}
      ]
    }]
  }
}`

func TestCostParsesResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/cost", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("key"))
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "jakarta", r.PostForm.Get("origin"))
		assert.Equal(t, "2000", r.PostForm.Get("weight"))
		w.Write([]byte(costBody))
	}))
	defer srv.Close()

	client := NewClient("test-key", srv.URL)
	result, err := client.Cost(context.Background(), "jakarta", "bandung", 2000, "jne")
	require.NoError(t, err)

	assert.Equal(t, "JNE", result.Courier)
	require.Len(t, result.Services, 2)
	assert.Equal(t, "REG", result.Services[0].Service)
	assert.Equal(t, int64(18000), result.Services[0].Cost)
	assert.Equal(t, "2-3", result.Services[0].ETA)
}

func TestCostProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"rajaongkir": {"status": {"code": 400, "description": "invalid origin"}}}`))
	}))
	defer srv.Close()

	client := NewClient("test-key", srv.URL)
	_, err := client.Cost(context.Background(), "nowhere", "bandung", 1000, "jne")
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeDependencyFailed))
	assert.Contains(t, err.Error(), "invalid origin")
}

func TestCostUnreachableProvider(t *testing.T) {
	client := NewClient("test-key", "http://127.0.0.1:1")
	_, err := client.Cost(context.Background(), "jakarta", "bandung", 1000, "jne")
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeDependencyFailed))
}
