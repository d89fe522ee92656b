package plugin

import "context"

// Content describes what the dashboard should render for a service
// widget: an iframe URL, inline HTML, or structured data.
type Content struct {
	Kind string         `json:"kind"`
	URL  string         `json:"url,omitempty"`
	HTML string         `json:"html,omitempty"`
	Data map[string]any `json:"data,omitempty"`
}

const (
	ContentKindIframe = "iframe"
	ContentKindHTML   = "html"
	ContentKindData   = "data"
)

// ServiceSource is the contract service-category plugins satisfy.
type ServiceSource interface {
	Plugin
	// Content returns the descriptor the dashboard renders.
	Content(ctx context.Context) (*Content, error)
	// ValidateConfig checks candidate settings without applying them.
	ValidateConfig(cfg map[string]any) error
}

// WebhookHandler is the optional inbound-webhook capability.
type WebhookHandler interface {
	HandleWebhook(ctx context.Context, payload []byte) error
}

// APIHandler is the optional request-proxy capability.
type APIHandler interface {
	HandleAPI(ctx context.Context, method, path string, data map[string]any) (any, error)
}

// DataFetcher is the optional backing-data capability.
type DataFetcher interface {
	FetchData(ctx context.Context, params map[string]any) (any, error)
}

// HandleWebhook dispatches to the source's webhook capability when
// present and reports ErrUnsupported otherwise.
func HandleWebhook(ctx context.Context, src ServiceSource, payload []byte) error {
	if h, ok := src.(WebhookHandler); ok {
		return h.HandleWebhook(ctx, payload)
	}
	return ErrUnsupported
}

// HandleAPI dispatches to the source's API capability when present and
// reports ErrUnsupported otherwise.
func HandleAPI(ctx context.Context, src ServiceSource, method, path string, data map[string]any) (any, error) {
	if h, ok := src.(APIHandler); ok {
		return h.HandleAPI(ctx, method, path, data)
	}
	return nil, ErrUnsupported
}

// FetchData dispatches to the source's data capability when present and
// reports ErrUnsupported otherwise.
func FetchData(ctx context.Context, src ServiceSource, params map[string]any) (any, error) {
	if f, ok := src.(DataFetcher); ok {
		return f.FetchData(ctx, params)
	}
	return nil, ErrUnsupported
}
