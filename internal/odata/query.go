package odata

import (
	"net/url"
	"strings"
)

// DefaultServiceURL is the SAP gateway service the notification tools talk to.
const DefaultServiceURL = "https://ed9.enstrapp.com:8200/sap/opu/odata/sap/ZEMT_PMAPP_SRV"

// NotificationEntitySet is the collection holding due notifications.
const NotificationEntitySet = "DueNotificationSet"

// OData system query options and SAP-specific parameters.
const (
	QueryFilter = "$filter"
	QueryExpand = "$expand"
	QueryFormat = "$format"
	SAPLanguage = "sap-language"
	SAPClient   = "sap-client"
)

const (
	DefaultFormat   = "json"
	DefaultLanguage = "EN"
)

// DefaultExpand is the navigation set requested when the caller gives no expand list.
const DefaultExpand = "EvMessage,EtNotifHeader,EtNotifHeader/EtNotifHeaderFields," +
	"EtNotifHeader/EtNotifHeaderEquipHistory,EtNotifItems,EtNotifItems/EtNotifItemsFields," +
	"EtNotifTasks,EtNotifTasks/EtNotifTasksFields,EtNotifActvs,EtNotifActvs/EtNotifActvsFields," +
	"EtNotifLongtext,EtNotifStatus,EtImrg,EtDocs"

// NotificationQuery describes one due-notifications lookup.
type NotificationQuery struct {
	Filter   string
	Expand   []string
	Format   string
	Language string
}

// ParseExpand splits a comma-separated expand list, dropping blanks.
func ParseExpand(s string) []string {
	var names []string
	for _, name := range strings.Split(s, ",") {
		name = strings.TrimSpace(name)
		if name != "" {
			names = append(names, name)
		}
	}
	return names
}

// QueryBuilder builds notification URLs below a fixed service root.
type QueryBuilder struct {
	serviceURL string
	sapClient  string
}

// NewQueryBuilder creates a builder for the given service root. sapClient is
// appended as sap-client on every URL when non-empty.
func NewQueryBuilder(serviceURL, sapClient string) *QueryBuilder {
	return &QueryBuilder{
		serviceURL: strings.TrimSuffix(serviceURL, "/"),
		sapClient:  sapClient,
	}
}

// DueNotificationsURL returns the collection URL for q.
func (b *QueryBuilder) DueNotificationsURL(q NotificationQuery) string {
	format := q.Format
	if format == "" {
		format = DefaultFormat
	}
	language := q.Language
	if language == "" {
		language = DefaultLanguage
	}

	var params queryParams
	if strings.TrimSpace(q.Filter) != "" {
		params.add(QueryFilter, q.Filter)
	}
	if expand := normalizeExpand(q.Expand); expand != "" {
		params.add(QueryExpand, expand)
	}
	params.add(QueryFormat, format)
	params.add(SAPLanguage, language)
	if b.sapClient != "" {
		params.add(SAPClient, b.sapClient)
	}

	return b.serviceURL + "/" + NotificationEntitySet + "?" + params.encode()
}

// NotificationDetailURL returns the entity URL for a single notification.
func (b *QueryBuilder) NotificationDetailURL(notificationID string) (string, error) {
	if strings.TrimSpace(notificationID) == "" {
		return "", newInvalidArgument("notification_id must be a non-empty string")
	}

	var params queryParams
	params.add(QueryFormat, DefaultFormat)
	if b.sapClient != "" {
		params.add(SAPClient, b.sapClient)
	}

	return b.serviceURL + "/" + NotificationEntitySet + "(" + keyLiteral(notificationID) + ")?" + params.encode(), nil
}

// keyLiteral renders s as an OData string key: single quotes, embedded quotes doubled.
func keyLiteral(s string) string {
	return "'" + url.PathEscape(strings.ReplaceAll(s, "'", "''")) + "'"
}

func normalizeExpand(names []string) string {
	var kept []string
	for _, name := range names {
		kept = append(kept, ParseExpand(name)...)
	}
	return strings.Join(kept, ",")
}

// queryParams keeps insertion order so URLs are reproducible.
type queryParams []struct{ key, value string }

func (p *queryParams) add(key, value string) {
	*p = append(*p, struct{ key, value string }{key, value})
}

func (p queryParams) encode() string {
	var sb strings.Builder
	for i, kv := range p {
		if i > 0 {
			sb.WriteByte('&')
		}
		sb.WriteString(kv.key)
		sb.WriteByte('=')
		sb.WriteString(escapeQueryValue(kv.value))
	}
	return sb.String()
}

// escapeQueryValue percent-encodes only what would break the query string.
// OData punctuation stays readable; spaces become %20 rather than '+'.
func escapeQueryValue(s string) string {
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if keepLiteral(c) {
			sb.WriteByte(c)
			continue
		}
		sb.WriteByte('%')
		sb.WriteByte("0123456789ABCDEF"[c>>4])
		sb.WriteByte("0123456789ABCDEF"[c&15])
	}
	return sb.String()
}

func keepLiteral(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	switch c {
	case '-', '.', '_', '~', '\'', '(', ')', ',', '/', ':', '$', '*', '@', '!':
		return true
	}
	return false
}
