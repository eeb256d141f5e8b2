package outbox

// rosterEventSchema is registered as JSON Schema for every record on the roster topic.
const rosterEventSchema = `{
  "type": "object",
  "title": "RosterEvent",
  "properties": {
    "event_id": {"type": "string"},
    "event_type": {"type": "string", "enum": ["participant.signed_up", "participant.removed"]},
    "activity": {"type": "string"},
    "email": {"type": "string"},
    "participant_count": {"type": "integer", "minimum": 0},
    "max_participants": {"type": "integer", "minimum": 1},
    "occurred_at": {"type": "string", "format": "date-time"}
  },
  "required": ["event_id", "event_type", "activity", "email", "participant_count", "max_participants", "occurred_at"],
  "additionalProperties": false
}`
