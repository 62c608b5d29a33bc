package outbox

const categoryRuleChangedSchema = `{
  "type": "object",
  "title": "CategoryRuleChanged",
  "properties": {
    "action": {"type": "string", "enum": ["upserted", "updated", "deleted", "classified"]},
    "rule_id": {"type": "integer"},
    "field": {"type": "string", "enum": ["app", "url_domain", "title"]},
    "pattern": {"type": "string"},
    "category_id": {"type": "integer"},
    "affected": {"type": "integer", "minimum": 0},
    "occurred_at": {"type": "string", "format": "date-time"}
  },
  "required": ["action", "affected", "occurred_at"],
  "additionalProperties": false
}`
