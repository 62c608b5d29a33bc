package outbox

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEnsureSchemaReturnsExistingVersion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/subjects/category_rule_changes-value/versions/latest" {
			http.Error(w, "unexpected request", http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`{"id": 12, "version": 3}`))
	}))
	defer srv.Close()

	id, err := NewSchemaRegistryClient(srv.URL+"/").EnsureSchema(context.Background(), "category_rule_changes-value", categoryRuleChangedSchema)
	require.NoError(t, err)
	require.Equal(t, 12, id)
}

func TestEnsureSchemaRegistersMissingSubject(t *testing.T) {
	var registered map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if r.URL.Path != "/subjects/rules-value/versions" || r.Header.Get("Content-Type") != "application/vnd.schemaregistry.v1+json" {
			http.Error(w, "unexpected request", http.StatusBadRequest)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&registered); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`{"id": 7}`))
	}))
	defer srv.Close()

	id, err := NewSchemaRegistryClient(srv.URL).EnsureSchema(context.Background(), "rules-value", categoryRuleChangedSchema)
	require.NoError(t, err)
	require.Equal(t, 7, id)
	require.Equal(t, "JSON", registered["schemaType"])
	require.JSONEq(t, categoryRuleChangedSchema, registered["schema"])
}

func TestEnsureSchemaSurfacesRegistryErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewSchemaRegistryClient(srv.URL).EnsureSchema(context.Background(), "rules-value", categoryRuleChangedSchema)
	require.ErrorContains(t, err, "status 503")
}

func TestEncodeWireFormat(t *testing.T) {
	frame := encodeWireFormat(258, []byte(`{}`))
	require.Equal(t, []byte{0, 0, 0, 1, 2, '{', '}'}, frame)
}

func TestBackoffDelay(t *testing.T) {
	m := NewDLQManager(nil, 3, 10*time.Second, nil)
	require.Equal(t, 10*time.Second, m.backoffDelay(1))
	require.Equal(t, 40*time.Second, m.backoffDelay(3))
	require.Equal(t, time.Hour, m.backoffDelay(12))
	require.Equal(t, time.Hour, m.backoffDelay(64))
}
