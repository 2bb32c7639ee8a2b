// Package notifications declares the SAP due-notification tools.
package notifications

import (
	"context"
	"encoding/json"

	"sap-mcp-sse/internal/odata"
	"sap-mcp-sse/internal/tools"
)

// Tool names exposed to clients.
const (
	FetchDueNotificationsTool  = "fetch_due_notifications"
	GetNotificationDetailsTool = "get_notification_details"
)

// Fetcher retrieves a JSON document from the data source.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (json.RawMessage, error)
}

// URLBuilder turns notification queries into data source URLs.
type URLBuilder interface {
	DueNotificationsURL(q odata.NotificationQuery) string
	NotificationDetailURL(notificationID string) (string, error)
}

// Options tunes the tool defaults.
type Options struct {
	// DefaultExpand is used when fetch_due_notifications gets no expand argument.
	DefaultExpand string
}

// Register adds both notification tools to reg.
func Register(reg *tools.Registry, builder URLBuilder, fetcher Fetcher, opts Options) error {
	for _, d := range Descriptors(builder, fetcher, opts) {
		if err := reg.Register(d); err != nil {
			return err
		}
	}
	return nil
}

// Descriptors returns the tool descriptors without registering them.
func Descriptors(builder URLBuilder, fetcher Fetcher, opts Options) []tools.Descriptor {
	return []tools.Descriptor{
		{
			Name:        FetchDueNotificationsTool,
			Description: "Fetch due notifications from the SAP OData service with optional filter and expansions.",
			Params: []tools.Param{
				{Name: "filter_query", Type: tools.TypeString, Default: "", Description: "OData $filter expression"},
				{Name: "expand", Type: tools.TypeString, Default: opts.DefaultExpand, Description: "Comma-separated list of entities to expand"},
				{Name: "format", Type: tools.TypeString, Default: odata.DefaultFormat, Description: "Response format"},
				{Name: "sap_language", Type: tools.TypeString, Default: odata.DefaultLanguage, Description: "SAP language code"},
			},
			Handler: func(ctx context.Context, args tools.Args) (json.RawMessage, error) {
				url := builder.DueNotificationsURL(odata.NotificationQuery{
					Filter:   args.String("filter_query"),
					Expand:   odata.ParseExpand(args.String("expand")),
					Format:   args.String("format"),
					Language: args.String("sap_language"),
				})
				return fetcher.Fetch(ctx, url)
			},
		},
		{
			Name:        GetNotificationDetailsTool,
			Description: "Get detailed information for a specific notification.",
			Params: []tools.Param{
				{Name: "notification_id", Type: tools.TypeString, Required: true, Description: "The ID of the notification to fetch"},
			},
			Handler: func(ctx context.Context, args tools.Args) (json.RawMessage, error) {
				url, err := builder.NotificationDetailURL(args.String("notification_id"))
				if err != nil {
					return nil, err
				}
				return fetcher.Fetch(ctx, url)
			},
		},
	}
}
