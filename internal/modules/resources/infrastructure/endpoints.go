package infrastructure

import (
	"fmt"
	"net/url"
	"strings"
)

// Endpoint binds a resource to its REST collection. Scope lists the query parameters
// every list/create call must carry (the parent selection), in request order.
type Endpoint struct {
	Name          string
	Collection    string
	Scope         []string
	FilterAliases map[string]string
}

type pathBuilder func(string) (string, error)

func (e Endpoint) collectionPath() (string, error) {
	return staticPathBuilder(e.Collection)("")
}

func (e Endpoint) resourcePath(id string) (string, error) {
	return resourcePathBuilder(e.Collection)(id)
}

func (e Endpoint) subresourcePath(id, child string) (string, error) {
	base, err := e.resourcePath(id)
	if err != nil {
		return "", err
	}
	return base + "/" + strings.Trim(child, "/"), nil
}

// scopeValues checks that every required scope key is present and non-empty.
func (e Endpoint) scopeValues(scope map[string]string) (url.Values, error) {
	values := url.Values{}
	for _, key := range e.Scope {
		value := strings.TrimSpace(scope[key])
		if value == "" {
			return nil, fmt.Errorf("%w: %s requires %s", ErrMissingParam, e.Name, key)
		}
		values.Set(key, value)
	}
	return values, nil
}

var (
	StoresEndpoint = Endpoint{
		Name:       "stores",
		Collection: "/api/v1/stores",
		FilterAliases: map[string]string{
			"active": "active",
		},
	}
	CopypointsEndpoint = Endpoint{
		Name:       "copypoints",
		Collection: "/api/v1/copypoints",
		Scope:      []string{"storeId"},
		FilterAliases: map[string]string{
			"status": "status",
		},
	}
	SalesEndpoint = Endpoint{
		Name:       "sales",
		Collection: "/api/v1/sales",
		Scope:      []string{"copypointId"},
		FilterAliases: map[string]string{
			"status":    "status",
			"startdate": "startDate",
			"enddate":   "endDate",
		},
	}
	PaymentsEndpoint = Endpoint{
		Name:       "payments",
		Collection: "/api/v1/payments",
		Scope:      []string{"saleId"},
		FilterAliases: map[string]string{
			"method": "method",
		},
	}
	ConversationsEndpoint = Endpoint{
		Name:       "conversations",
		Collection: "/api/v1/conversations",
		Scope:      []string{"copypointId"},
		FilterAliases: map[string]string{
			"channel": "channel",
			"unread":  "unread",
		},
	}
	MessagesEndpoint = Endpoint{
		Name:       "messages",
		Collection: "/api/v1/messages",
		Scope:      []string{"conversationId"},
	}
	AttachmentsEndpoint = Endpoint{
		Name:       "attachments",
		Collection: "/api/v1/attachments",
		Scope:      []string{"conversationId"},
		FilterAliases: map[string]string{
			"saleid": "saleId",
		},
	}
	IntegrationsEndpoint = Endpoint{
		Name:       "integrations",
		Collection: "/api/v1/integrations",
		Scope:      []string{"storeId"},
		FilterAliases: map[string]string{
			"provider": "provider",
		},
	}
)

func staticPathBuilder(path string) pathBuilder {
	trimmed := strings.TrimSpace(path)
	return func(string) (string, error) {
		if trimmed == "" {
			return "", fmt.Errorf("missing path configuration")
		}
		return trimmed, nil
	}
}

func resourcePathBuilder(base string) pathBuilder {
	trimmed := strings.TrimSpace(base)
	return func(value string) (string, error) {
		identifier := strings.TrimSpace(value)
		if identifier == "" {
			return "", fmt.Errorf("%w: id", ErrMissingParam)
		}
		return strings.TrimRight(trimmed, "/") + "/" + url.PathEscape(identifier), nil
	}
}
