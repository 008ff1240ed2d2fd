package normalization

import "strings"

// entityAliases maps the spellings used by the change feed, URLs and clients onto
// canonical resource names.
var entityAliases = map[string]string{
	"":        "",
	"-":       "",
	"default": "",

	"store":  "stores",
	"stores": "stores",
	"shop":   "stores",
	"shops":  "stores",

	"copypoint":   "copypoints",
	"copypoints":  "copypoints",
	"copy-point":  "copypoints",
	"copy-points": "copypoints",
	"copypointid": "copypoints",

	"sale":  "sales",
	"sales": "sales",
	"order": "sales",

	"payment":  "payments",
	"payments": "payments",

	"conversation":  "conversations",
	"conversations": "conversations",
	"chat":          "conversations",
	"chats":         "conversations",

	"message":  "messages",
	"messages": "messages",

	"attachment":  "attachments",
	"attachments": "attachments",
	"file":        "attachments",
	"files":       "attachments",

	"integration":  "integrations",
	"integrations": "integrations",
}

var canonicalEntities = []string{
	"stores",
	"copypoints",
	"sales",
	"payments",
	"conversations",
	"messages",
	"attachments",
	"integrations",
}

// NormalizeEntity converts singular/plural forms, "_" or "-" separators and known
// aliases to the canonical resource name. Unknown names come back lower-cased with
// "_" replaced by "-".
//
//	NormalizeEntity("Copy_Point") => "copypoints"
//	NormalizeEntity("chat")       => "conversations"
func NormalizeEntity(raw string) string {
	trimmed := strings.ToLower(strings.TrimSpace(raw))
	normalized := strings.ReplaceAll(trimmed, "_", "-")
	if canonical, found := entityAliases[normalized]; found {
		return canonical
	}
	if canonical, found := entityAliases[strings.ReplaceAll(normalized, "-", "")]; found {
		return canonical
	}
	return normalized
}

// IsValidEntity checks if raw names a known resource.
func IsValidEntity(raw string) bool {
	normalized := NormalizeEntity(raw)
	for _, entity := range canonicalEntities {
		if entity == normalized {
			return true
		}
	}
	return false
}
