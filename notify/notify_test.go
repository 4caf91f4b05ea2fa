package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/ruteri/device-activation-backend/interfaces"
	"github.com/stretchr/testify/require"
)

func TestProfileClient(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/v1/users/{id}/profile", func(w http.ResponseWriter, r *http.Request) {
		switch chi.URLParam(r, "id") {
		case "user-1":
			_ = json.NewEncoder(w).Encode(interfaces.UserProfile{UserID: "user-1", PhoneNumber: "+4915100000000", Locale: "de"})
		case "broken":
			http.Error(w, "boom", http.StatusInternalServerError)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	server := httptest.NewServer(r)
	defer server.Close()

	client := NewProfileClient(server.URL, nil)

	profile, err := client.Profile(context.Background(), "user-1")
	require.NoError(t, err)
	require.Equal(t, "+4915100000000", profile.PhoneNumber)

	_, err = client.Profile(context.Background(), "user-2")
	require.ErrorIs(t, err, interfaces.ErrProfileNotFound)

	_, err = client.Profile(context.Background(), "broken")
	require.Error(t, err)
	require.NotErrorIs(t, err, interfaces.ErrProfileNotFound)
}

func TestSMSClient(t *testing.T) {
	var received SMSRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Api-Key") != "key" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&received)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	require.NoError(t, NewSMSClient(server.URL, "key", nil).SendSMS(context.Background(), "+4915100000000", "hello"))
	require.Equal(t, SMSRequest{To: "+4915100000000", Message: "hello"}, received)

	require.Error(t, NewSMSClient(server.URL, "other", nil).SendSMS(context.Background(), "+49", "hello"))
}
