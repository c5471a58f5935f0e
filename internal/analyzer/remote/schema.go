package remote

var responseSchemas = map[string]string{
	"/detect": `{
  "type": "object",
  "required": ["language"],
  "properties": {"language": {"type": "string", "minLength": 2, "maxLength": 35}}
}`,
	"/translate": `{
  "type": "object",
  "required": ["text"],
  "properties": {"text": {"type": "string"}}
}`,
	"/sentiment": `{
  "type": "object",
  "required": ["label", "score"],
  "properties": {
    "label": {"type": "string", "minLength": 1},
    "score": {"type": "number", "minimum": 0, "maximum": 1}
  }
}`,
	"/summarize": `{
  "type": "object",
  "required": ["summary"],
  "properties": {"summary": {"type": "string"}}
}`,
	"/entities": `{
  "type": "object",
  "required": ["entities"],
  "properties": {
    "entities": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["text", "type", "start", "end"],
        "properties": {
          "text": {"type": "string"},
          "type": {"type": "string"},
          "start": {"type": "integer", "minimum": 0},
          "end": {"type": "integer", "minimum": 0}
        }
      }
    }
  }
}`,
}
