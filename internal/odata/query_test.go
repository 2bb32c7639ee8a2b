package odata

import (
	"errors"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testServiceURL = "https://sap.example.com/sap/opu/odata/sap/ZEMT_PMAPP_SRV"

func TestDueNotificationsURL_ParameterPresence(t *testing.T) {
	b := NewQueryBuilder(testServiceURL, "")

	tests := []struct {
		name       string
		query      NotificationQuery
		wantFilter bool
		wantExpand bool
	}{
		{name: "no optional parameters", query: NotificationQuery{}},
		{name: "filter only", query: NotificationQuery{Filter: "Qmnum eq '1000123'"}, wantFilter: true},
		{name: "expand only", query: NotificationQuery{Expand: []string{"EtNotifHeader", "EtNotifItems"}}, wantExpand: true},
		{
			name:       "filter and expand",
			query:      NotificationQuery{Filter: "Priok eq '1'", Expand: []string{"EtNotifHeader/EtNotifHeaderFields"}},
			wantFilter: true,
			wantExpand: true,
		},
		{name: "blank filter is omitted", query: NotificationQuery{Filter: "   "}},
		{name: "blank expand entries are omitted", query: NotificationQuery{Expand: []string{"", " , "}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := b.DueNotificationsURL(tt.query)

			u, err := url.Parse(raw)
			require.NoError(t, err)
			assert.Equal(t, "/sap/opu/odata/sap/ZEMT_PMAPP_SRV/DueNotificationSet", u.Path)

			query := u.Query()
			assert.Equal(t, tt.wantFilter, query.Has(QueryFilter))
			assert.Equal(t, tt.wantExpand, query.Has(QueryExpand))
			assert.Equal(t, 1, strings.Count(raw, QueryFormat+"="))
			assert.Equal(t, 1, strings.Count(raw, SAPLanguage+"="))
			assert.Equal(t, []string{"json"}, query[QueryFormat])
			assert.Equal(t, []string{"EN"}, query[SAPLanguage])
			assert.False(t, query.Has(SAPClient))

			if tt.wantFilter {
				assert.Equal(t, 1, strings.Count(raw, QueryFilter+"="))
				assert.Equal(t, tt.query.Filter, query.Get(QueryFilter))
			}
			if tt.wantExpand {
				assert.Equal(t, 1, strings.Count(raw, QueryExpand+"="))
				assert.Equal(t, strings.Join(tt.query.Expand, ","), query.Get(QueryExpand))
			}
		})
	}
}

func TestDueNotificationsURL_Encoding(t *testing.T) {
	b := NewQueryBuilder(testServiceURL+"/", "800")

	raw := b.DueNotificationsURL(NotificationQuery{
		Filter:   "Qmart eq 'M1' and Ktext eq 'A&B=C'",
		Expand:   ParseExpand("EvMessage, EtNotifHeader/EtNotifHeaderFields"),
		Format:   "xml",
		Language: "DE",
	})

	assert.Equal(t, testServiceURL+"/DueNotificationSet"+
		"?$filter=Qmart%20eq%20'M1'%20and%20Ktext%20eq%20'A%26B%3DC'"+
		"&$expand=EvMessage,EtNotifHeader/EtNotifHeaderFields"+
		"&$format=xml&sap-language=DE&sap-client=800", raw)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "Qmart eq 'M1' and Ktext eq 'A&B=C'", u.Query().Get(QueryFilter))
}

func TestDueNotificationsURL_Deterministic(t *testing.T) {
	b := NewQueryBuilder(testServiceURL, "800")
	q := NotificationQuery{Filter: "Priok eq '2'", Expand: ParseExpand(DefaultExpand)}

	assert.Equal(t, b.DueNotificationsURL(q), b.DueNotificationsURL(q))
}

func TestNotificationDetailURL(t *testing.T) {
	b := NewQueryBuilder(testServiceURL, "")

	raw, err := b.NotificationDetailURL("1000123")
	require.NoError(t, err)
	assert.Equal(t, testServiceURL+"/DueNotificationSet('1000123')?$format=json", raw)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Contains(t, u.Path, "'1000123'")
}

func TestNotificationDetailURL_QuotesAndSAPClient(t *testing.T) {
	b := NewQueryBuilder(testServiceURL, "800")

	raw, err := b.NotificationDetailURL("O'Brien 1")
	require.NoError(t, err)
	assert.Equal(t, testServiceURL+"/DueNotificationSet('O%27%27Brien%201')?$format=json&sap-client=800", raw)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(u.Path, "DueNotificationSet('O''Brien 1')"))
}

func TestNotificationDetailURL_Empty(t *testing.T) {
	b := NewQueryBuilder(testServiceURL, "")

	for _, id := range []string{"", "  "} {
		_, err := b.NotificationDetailURL(id)
		require.Error(t, err)

		var odataErr *Error
		require.True(t, errors.As(err, &odataErr))
		assert.Equal(t, KindInvalidArgument, odataErr.Kind)
		assert.Equal(t, "InvalidArgument", odataErr.ErrorKind())
	}
}

func TestParseExpand(t *testing.T) {
	assert.Nil(t, ParseExpand(""))
	assert.Equal(t, []string{"A", "B/C"}, ParseExpand(" A ,, B/C ,"))
	assert.Len(t, ParseExpand(DefaultExpand), 14)
}
