package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sap-mcp-sse/internal/odata"
	"sap-mcp-sse/internal/tools"
)

type stubFetcher struct {
	body json.RawMessage
	err  error
	urls []string
}

func (f *stubFetcher) Fetch(_ context.Context, url string) (json.RawMessage, error) {
	f.urls = append(f.urls, url)
	return f.body, f.err
}

func newRegistry(t *testing.T, fetcher Fetcher, opts Options) *tools.Registry {
	t.Helper()
	reg := tools.NewRegistry(zerolog.Nop())
	require.NoError(t, Register(reg, odata.NewQueryBuilder("https://sap.example.com/srv", ""), fetcher, opts))
	return reg
}

func TestRegister_ExactlyTwoTools(t *testing.T) {
	reg := newRegistry(t, &stubFetcher{}, Options{})

	list := reg.List()
	require.Len(t, list, 2)
	assert.Equal(t, FetchDueNotificationsTool, list[0].Name)
	assert.Equal(t, GetNotificationDetailsTool, list[1].Name)

	assert.Error(t, Register(reg, odata.NewQueryBuilder("https://sap.example.com/srv", ""), &stubFetcher{}, Options{}))
}

func TestFetchDueNotifications_Defaults(t *testing.T) {
	fetcher := &stubFetcher{body: json.RawMessage(`{"d":{"results":[]}}`)}
	reg := newRegistry(t, fetcher, Options{DefaultExpand: "EvMessage,EtNotifHeader"})

	out, err := reg.Call(context.Background(), FetchDueNotificationsTool, nil)
	require.NoError(t, err)
	assert.Equal(t, `{"d":{"results":[]}}`, string(out))

	require.Len(t, fetcher.urls, 1)
	assert.Equal(t,
		"https://sap.example.com/srv/DueNotificationSet?$expand=EvMessage,EtNotifHeader&$format=json&sap-language=EN",
		fetcher.urls[0])
}

func TestFetchDueNotifications_Arguments(t *testing.T) {
	fetcher := &stubFetcher{body: json.RawMessage(`{}`)}
	reg := newRegistry(t, fetcher, Options{DefaultExpand: odata.DefaultExpand})

	_, err := reg.Call(context.Background(), FetchDueNotificationsTool,
		json.RawMessage(`{"filter_query":"Priok eq '1'","expand":"","sap_language":"DE"}`))
	require.NoError(t, err)

	u, err := url.Parse(fetcher.urls[0])
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, "Priok eq '1'", q.Get(odata.QueryFilter))
	assert.False(t, q.Has(odata.QueryExpand))
	assert.Equal(t, "DE", q.Get(odata.SAPLanguage))
	assert.Equal(t, "json", q.Get(odata.QueryFormat))
}

func TestGetNotificationDetails(t *testing.T) {
	fetcher := &stubFetcher{body: json.RawMessage(`{"d":{"Qmnum":"1000123"}}`)}
	reg := newRegistry(t, fetcher, Options{})

	out, err := reg.Call(context.Background(), GetNotificationDetailsTool, json.RawMessage(`{"notification_id":"1000123"}`))
	require.NoError(t, err)
	assert.Equal(t, `{"d":{"Qmnum":"1000123"}}`, string(out))
	assert.Equal(t, "https://sap.example.com/srv/DueNotificationSet('1000123')?$format=json", fetcher.urls[0])
}

func TestGetNotificationDetails_InvalidID(t *testing.T) {
	fetcher := &stubFetcher{}
	reg := newRegistry(t, fetcher, Options{})

	for _, args := range []string{`{}`, `{"notification_id":null}`, `{"notification_id":""}`} {
		_, err := reg.Call(context.Background(), GetNotificationDetailsTool, json.RawMessage(args))
		require.Error(t, err, args)

		var kinded interface{ ErrorKind() string }
		require.True(t, errors.As(err, &kinded), args)
		assert.Equal(t, "InvalidArgument", kinded.ErrorKind(), args)
	}
	assert.Empty(t, fetcher.urls)
}

func TestHandlers_WithDataSourceClient(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantKind odata.ErrorKind
	}{
		{name: "upstream 500", status: http.StatusInternalServerError, body: "Internal Server Error", wantKind: odata.KindRequestFailed},
		{name: "non-JSON body", status: http.StatusOK, body: "not json", wantKind: odata.KindMalformedResponse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			reg := tools.NewRegistry(zerolog.Nop())
			client := odata.NewClient(odata.ClientConfig{VerifyTLS: true}, zerolog.Nop())
			require.NoError(t, Register(reg, odata.NewQueryBuilder(srv.URL, ""), client, Options{}))

			_, err := reg.Call(context.Background(), FetchDueNotificationsTool, nil)

			var odataErr *odata.Error
			require.True(t, errors.As(err, &odataErr))
			assert.Equal(t, tt.wantKind, odataErr.Kind)
			assert.Equal(t, tt.status, odataErr.StatusCode)
		})
	}
}
