package embedding

// ContentType represents the type of content being embedded.
type ContentType string

const (
	ContentTypeMemory ContentType = "memory" // Stored user facts
	ContentTypeQuery  ContentType = "query"  // Search queries
	ContentTypeCode   ContentType = "code"   // Source code snippets
)

// SelectTaskType picks the GenAI task type for a content type.
func SelectTaskType(contentType ContentType) string {
	switch contentType {
	case ContentTypeQuery:
		return "RETRIEVAL_QUERY"
	case ContentTypeCode:
		return "CODE_RETRIEVAL_QUERY"
	case ContentTypeMemory:
		return "RETRIEVAL_DOCUMENT"
	default:
		return "SEMANTIC_SIMILARITY"
	}
}
